package access

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResource_WriteExcludesEverything(t *testing.T) {
	owner := NewOwner()
	r := NewResource("chunk", owner)

	w := r.TryAcquire(owner, Write)
	require.NotNil(t, w)
	assert.True(t, r.IsWritten())

	assert.Nil(t, r.TryAcquire(owner, Write), "Второй писатель не должен получить доступ")
	assert.Nil(t, r.TryAcquire(owner, Read), "Читатель не должен получить доступ при писателе")
	assert.False(t, r.CanAcquire(Read))

	w.Release()
	assert.True(t, r.IsFree())
	assert.True(t, r.CanAcquire(Write))
}

func TestResource_ManyReaders(t *testing.T) {
	owner := NewOwner()
	r := NewResource("chunk", owner)

	a := r.TryAcquire(owner, Read)
	b := r.TryAcquire(owner, Read)
	require.NotNil(t, a)
	require.NotNil(t, b)
	assert.Equal(t, 2, r.Readers())
	assert.Nil(t, r.TryAcquire(owner, Write), "Писатель не должен получить доступ при читателях")

	a.Release()
	assert.Nil(t, r.TryAcquire(owner, Write))
	b.Release()
	assert.NotNil(t, r.TryAcquire(owner, Write))
}

func TestResource_NeverWriterAndReadersTogether(t *testing.T) {
	owner := NewOwner()
	r := NewResource("chunk", owner)
	var guards []*Guard

	// Случайная, но детерминированная последовательность операций
	ops := []Access{Read, Write, Read, Read, Write, Read, Write, Write, Read}
	for i, op := range ops {
		if g := r.TryAcquire(owner, op); g != nil {
			guards = append(guards, g)
		}
		if i%3 == 2 && len(guards) > 0 {
			guards[0].Release()
			guards = guards[1:]
		}
		assert.False(t, r.IsWritten() && r.Readers() > 0, "Писатель и читатели одновременно")
	}
}

func TestResource_ReleasedFiresOncePerDrain(t *testing.T) {
	owner := NewOwner()
	r := NewResource("chunk", owner)
	fired := 0
	r.OnReleased(func(*Resource) { fired++ })

	a := r.TryAcquire(owner, Read)
	b := r.TryAcquire(owner, Read)
	a.Release()
	assert.Equal(t, 0, fired, "Ресурс ещё занят читателем")
	b.Release()
	assert.Equal(t, 1, fired)

	w := r.TryAcquire(owner, Write)
	w.Release()
	assert.Equal(t, 2, fired)
}

func TestResource_HandlerMayReacquireAndSubscribe(t *testing.T) {
	owner := NewOwner()
	r := NewResource("chunk", owner)

	var taken *Guard
	late := 0
	r.OnReleased(func(res *Resource) {
		taken = res.TryAcquire(owner, Write)
		res.OnReleased(func(*Resource) { late++ })
	})

	g := r.TryAcquire(owner, Write)
	g.Release()
	require.NotNil(t, taken, "Подписчик захватил освободившийся ресурс")
	assert.True(t, r.IsWritten())
	assert.Equal(t, 0, late, "Подписка из обработчика не вызывается в том же освобождении")
}

func TestGuard_IsHeldBy(t *testing.T) {
	owner := NewOwner()
	r := NewResource("a", owner)
	other := NewResource("b", owner)

	g := r.TryAcquire(owner, Read)
	assert.True(t, r.IsHeldBy(g, Read))
	assert.False(t, r.IsHeldBy(g, Write), "Токен чтения не даёт запись")
	assert.False(t, other.IsHeldBy(g, Read), "Токен чужого ресурса")

	g.Release()
	assert.False(t, r.IsHeldBy(g, Read), "Освобождённый токен недействителен")
	assert.False(t, r.IsHeldBy(nil, None))
}

func TestGuard_DoubleReleasePanics(t *testing.T) {
	owner := NewOwner()
	r := NewResource("chunk", owner)
	g := r.TryAcquire(owner, Write)
	g.Release()

	assert.PanicsWithValue(t, ErrGuardReleased, func() { g.Release() })
}

func TestResource_WrongOwnerPanics(t *testing.T) {
	r := NewResource("chunk", NewOwner())

	assert.PanicsWithValue(t, ErrWrongOwner, func() {
		r.TryAcquire(NewOwner(), Read)
	})
}

func TestResource_NoneAccessYieldsNoGuard(t *testing.T) {
	owner := NewOwner()
	r := NewResource("chunk", owner)

	assert.Nil(t, r.TryAcquire(owner, None))
	assert.True(t, r.CanAcquire(None))
	assert.True(t, r.IsFree())
}

func TestReleaseAll_SkipsReleased(t *testing.T) {
	owner := NewOwner()
	r := NewResource("chunk", owner)
	a := r.TryAcquire(owner, Read)
	b := r.TryAcquire(owner, Read)
	a.Release()

	assert.NotPanics(t, func() { ReleaseAll([]*Guard{a, b, nil}) })
	assert.True(t, r.IsFree())
}
