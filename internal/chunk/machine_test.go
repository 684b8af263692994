package chunk

import (
	"bytes"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/annel0/chunk-engine/internal/access"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/request"
	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestContainer_GeneratesAndActivatesRequestedChunk(t *testing.T) {
	env := newTestEnv(t)
	log := env.recordTransitions(vec.Zero)

	require.NotNil(t, env.container.Request(env.owner, vec.Zero, env.actor))
	assert.Nil(t, env.container.Request(env.owner, vec.Zero, env.actor), "Повторный запрос того же актора")
	env.settle(t)

	require.GreaterOrEqual(t, len(*log), 3)
	assert.Equal(t, []Kind{KindUnloaded, KindLoading, KindGenerating, KindActive}, kinds(*log)[:4])

	c := env.container.GetActive(vec.Zero)
	require.NotNil(t, c)
	assert.True(t, c.IsActive())
	assert.Equal(t, request.Highest, c.Level())
	assert.Equal(t, uint32(testStoneBlock), c.GetBlock(vec.Zero))
	assert.Equal(t, KindActive, c.Kind())
}

func TestContainer_ActivationDeniedLeavesChunkHidden(t *testing.T) {
	env := newTestEnv(t, withActivator(func(*Chunk) State { return nil }))
	log := env.recordTransitions(vec.Zero)

	env.container.Request(env.owner, vec.Zero, env.actor)
	env.settle(t)

	assert.Equal(t, []Kind{KindUnloaded, KindLoading, KindGenerating, KindHidden}, kinds(*log)[:4])

	c := env.container.GetAny(vec.Zero)
	require.NotNil(t, c)
	assert.False(t, c.IsActive())
	assert.Nil(t, env.container.GetActive(vec.Zero))
	assert.Equal(t, 0, env.container.ActiveCount())
}

func TestContainer_ActiveWithoutDataIsDowngraded(t *testing.T) {
	env := newTestEnv(t, withActivator(func(c *Chunk) State {
		c.decoration &^= DecorationCenter
		return NewActive()
	}))

	env.container.Request(env.owner, vec.Zero, env.actor)
	env.settle(t)

	assert.Equal(t, KindHidden, env.container.GetAny(vec.Zero).Kind())
}

func TestContainer_RequestLevelsFollowField(t *testing.T) {
	env := newTestEnv(t)
	env.container.Request(env.owner, vec.Zero, env.actor)
	env.container.ProcessRequests(env.owner)

	for d := 0; d <= request.Radius+1; d++ {
		p := vec.Vec3{Y: d}
		assert.Equal(t, request.Highest.Decay(d), env.container.Level(p), "distance %d", d)
	}
	assert.Nil(t, env.container.GetAny(vec.Vec3{Y: request.Radius + 1}))
	assert.NotNil(t, env.container.GetAny(vec.Vec3{Y: request.Radius}))

	env.settle(t)
}

func TestContainer_IsActiveOnlyBetweenEnterAndExit(t *testing.T) {
	env := newTestEnv(t)
	var seen []bool
	env.container.OnTransition(func(tr Transition) {
		if tr.Chunk.Position() != vec.Zero {
			return
		}
		if tr.To == KindActive || tr.From == KindActive {
			seen = append(seen, tr.Chunk.IsActive())
		}
	})

	env.container.Request(env.owner, vec.Zero, env.actor)
	env.settle(t)

	c := env.container.GetAny(vec.Zero)
	require.True(t, c.IsActive(), "После входа чанк активен")

	require.True(t, c.BeginHiding(env.owner))
	env.settle(t)
	assert.False(t, c.IsActive())
	assert.Equal(t, KindHidden, c.Kind(), "Скрытый по запросу чанк не активируется сам")

	require.NotEmpty(t, seen)
	for _, v := range seen {
		assert.False(t, v, "В момент перехода в Active или из него флаг активности снят")
	}
}

func TestChunk_StealFromLoadingFails(t *testing.T) {
	env := newTestEnv(t)
	env.persistence.gate = make(chan struct{})

	env.container.Request(env.owner, vec.Zero, env.actor)
	env.pumpUntil(t, func() bool {
		c := env.container.GetAny(vec.Zero)
		return c != nil && c.Kind() == KindLoading && c.WaitMode().Has(WaitForCompletion)
	})

	c := env.container.GetAny(vec.Zero)
	assert.False(t, c.CanStealAccess())
	assert.Nil(t, c.TryStealAccess(env.owner))

	close(env.persistence.gate)
	env.settle(t)
}

func TestChunk_StealFromGeneratingFails(t *testing.T) {
	env := newTestEnv(t)
	env.generator.gate = make(chan struct{})

	env.container.Request(env.owner, vec.Zero, env.actor)
	env.pumpUntil(t, func() bool {
		c := env.container.GetAny(vec.Zero)
		return c != nil && c.Kind() == KindGenerating && c.WaitMode().Has(WaitForCompletion)
	})

	assert.Nil(t, env.container.GetAny(vec.Zero).TryStealAccess(env.owner))

	close(env.generator.gate)
	env.settle(t)
}

func TestChunk_StealFromActiveAndRecover(t *testing.T) {
	env := newTestEnv(t)
	env.container.Request(env.owner, vec.Zero, env.actor)
	env.settle(t)

	c := env.container.GetActive(vec.Zero)
	require.NotNil(t, c)
	require.True(t, c.CanStealAccess())

	g := c.TryStealAccess(env.owner)
	require.NotNil(t, g)
	assert.Equal(t, access.Write, g.Access())
	assert.Equal(t, KindHidden, c.Kind())
	assert.False(t, c.IsActive())
	assert.Nil(t, env.container.GetActive(vec.Zero))
	assert.Nil(t, c.TryStealAccess(env.owner), "Повторная кража невозможна")

	// Пока токен у вора, автомат ждёт ресурс
	env.container.Update(env.owner)
	assert.True(t, c.WaitMode().Has(WaitForResource))
	assert.True(t, c.Resource().IsWritten())

	g.Release()
	env.settle(t)
	assert.Equal(t, KindActive, c.Kind())
	assert.True(t, c.IsActive())
}

func TestChunk_StealThenQueuedRequest(t *testing.T) {
	env := newTestEnv(t)
	env.container.Request(env.owner, vec.Zero, env.actor)
	env.settle(t)

	c := env.container.GetActive(vec.Zero)
	require.NotNil(t, c)
	log := env.recordTransitions(vec.Zero)

	require.True(t, c.BeginSaving(env.owner))
	assert.False(t, c.BeginSaving(env.owner), "Запросы одного вида не дублируются")

	g := c.TryStealAccess(env.owner)
	require.NotNil(t, g)
	g.Release()
	env.settle(t)

	assert.Equal(t, []Kind{KindActive, KindHidden, KindActive, KindSaving, KindActive}, kinds(*log))
	saves, _, _ := env.persistence.stats()
	assert.GreaterOrEqual(t, saves, 1)
}

func TestContainer_DeactivationSavesDirtyChunks(t *testing.T) {
	env := newTestEnv(t)
	req := env.container.Request(env.owner, vec.Zero, env.actor)
	env.settle(t)

	total := env.container.Count()
	require.Greater(t, total, 0)
	generated := env.generator.generationCount()
	assert.Equal(t, total, generated)

	log := env.recordTransitions(vec.Zero)
	env.container.Release(env.owner, req)
	env.settle(t)

	assert.Equal(t, 0, env.container.Count())
	assert.Equal(t, 0, env.container.ActiveCount())
	assert.Contains(t, kinds(*log), KindSaving)
	assert.Equal(t, KindUnloaded, kinds(*log)[len(kinds(*log))-1])

	_, _, stored := env.persistence.stats()
	assert.Equal(t, total, stored, "Каждый сгенерированный чанк сохранён перед выгрузкой")

	// Повторный запрос загружает чанки из хранилища без генерации
	env.container.Request(env.owner, vec.Zero, env.actor)
	env.settle(t)
	assert.Equal(t, generated, env.generator.generationCount())

	c := env.container.GetActive(vec.Zero)
	require.NotNil(t, c)
	assert.Equal(t, uint32(testStoneBlock), c.GetBlock(vec.Zero))
	assert.True(t, c.Decoration().IsComplete())
	assert.False(t, c.IsDirty())

	allocated, reused := env.container.Pool().Stats()
	assert.Greater(t, reused, 0)
	assert.Greater(t, allocated, 0)
}

func TestDecoration_SharedCornerFlagsAndIdempotence(t *testing.T) {
	env := newTestEnv(t)
	env.container.Request(env.owner, vec.Zero, env.actor)
	env.settle(t)

	a := env.container.GetAny(vec.Zero)
	b := env.container.GetAny(vec.Vec3{X: 1, Y: 1, Z: 1})
	require.NotNil(t, a)
	require.NotNil(t, b)

	assert.True(t, a.Decoration().Has(DecorationCorner(7)))
	assert.True(t, b.Decoration().Has(DecorationCorner(0)))
	assert.True(t, a.Decoration().IsComplete())

	for corner, n := range env.generator.cornerCounts() {
		assert.Equal(t, 1, n, "Угол %v декорирован повторно", corner)
	}

	assert.Nil(t, env.container.tryBeginDecoration(a), "Все углы уже декорированы")

	// Блок угла записан в секцию соседа
	assert.Equal(t, uint32(testCornerBlock), a.GetBlock(CornerSections(7)[0].Scale(SectionSize)))
}

func TestDecoration_BusyNeighborDefers(t *testing.T) {
	env := newTestEnv(t)
	owner := env.owner

	center := vec.Vec3{X: 50}
	k := env.container
	for dx := 0; dx <= 1; dx++ {
		for dy := 0; dy <= 1; dy++ {
			for dz := 0; dz <= 1; dz++ {
				p := center.Add(vec.Vec3{X: dx, Y: dy, Z: dz})
				c := k.create(p, request.NewRequests())
				c.EnsureSections()
				c.decoration = DecorationCenter
				c.generated = true
			}
		}
	}
	k.list.Clear()

	c := k.GetAny(center)
	busy := k.GetAny(center.Add(vec.Vec3{X: 1}))
	g := busy.Resource().TryAcquire(owner, access.Read)
	require.NotNil(t, g)

	assert.Nil(t, k.tryBeginDecoration(c), "Сосед занят чтением")
	for _, p := range []vec.Vec3{{X: 1, Y: 1}, {Y: 1}, {Z: 1}} {
		assert.True(t, k.GetAny(center.Add(p)).Resource().IsFree(), "Ничего не захвачено при неудаче")
	}

	g.Release()
	d := k.tryBeginDecoration(c)
	require.NotNil(t, d)
	assert.Equal(t, KindDecorating, d.Kind())
	assert.Equal(t, []int{7}, d.(*decorating).hood.Corners)
	assert.Equal(t, 8, d.(*decorating).hood.Len())
	assert.True(t, busy.Resource().IsWritten())

	d.cleanup(nil)
	assert.True(t, busy.Resource().IsFree())
}

func TestDecoration_CenterKeepsWriteAcrossTransition(t *testing.T) {
	env := newTestEnv(t)
	var held []bool
	env.container.OnTransition(func(tr Transition) {
		if tr.To != KindDecorating {
			return
		}
		held = append(held, tr.Chunk.Resource().IsWritten() && tr.Chunk.machine.holds(access.Write))
	})

	env.container.Request(env.owner, vec.Zero, env.actor)
	env.settle(t)

	require.NotEmpty(t, held, "Украшение должно было начаться")
	for _, v := range held {
		assert.True(t, v, "Токен записи центра переходит в украшение без освобождения")
	}
	c := env.container.GetAny(vec.Zero)
	require.NotNil(t, c)
	assert.True(t, c.Decoration().IsComplete())
}

func TestContainer_GenerationErrorIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.generator.fail = errors.New("шум сломан")

	env.container.Request(env.owner, vec.Zero, env.actor)

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		deadline := time.Now().Add(20 * time.Second)
		for time.Now().Before(deadline) {
			env.container.ProcessRequests(env.owner)
			env.container.Update(env.owner)
			time.Sleep(time.Millisecond)
		}
	}()

	require.NotNil(t, recovered)
	err, ok := recovered.(error)
	require.True(t, ok)
	assert.ErrorIs(t, err, ErrGenerationFailed)
}

func TestContainer_DecorationErrorIsFatal(t *testing.T) {
	env := newTestEnv(t)
	env.generator.decorErr = errors.New("boom")

	env.container.Request(env.owner, vec.Zero, env.actor)

	var recovered any
	func() {
		defer func() { recovered = recover() }()
		deadline := time.Now().Add(20 * time.Second)
		for time.Now().Before(deadline) {
			env.container.ProcessRequests(env.owner)
			env.container.Update(env.owner)
			time.Sleep(time.Millisecond)
		}
	}()

	require.NotNil(t, recovered, "Ошибка декорирования останавливает цикл")
	err, ok := recovered.(error)
	require.True(t, ok)
	assert.ErrorIs(t, err, ErrDecorationFailed)
	assert.Contains(t, err.Error(), "boom")
}

func TestContainer_SaveFailureIsNotFatal(t *testing.T) {
	var logs bytes.Buffer
	env := newTestEnv(t, func(ctx *Context) {
		ctx.Logger = logging.NewWriterLogger("chunk", &logs, logging.ERROR)
	})
	req := env.container.Request(env.owner, vec.Zero, env.actor)
	env.settle(t)

	total := env.container.Count()
	active := env.container.ActiveCount()
	require.Greater(t, total, 0)

	env.persistence.mu.Lock()
	env.persistence.saveErr = errors.New("диск заполнен")
	env.persistence.mu.Unlock()

	require.Equal(t, total, env.container.BeginSavingAll(env.owner))
	env.settle(t)

	assert.Equal(t, total, env.container.Count(), "Неудачное сохранение не выгружает чанк")
	assert.Equal(t, active, env.container.ActiveCount())
	env.container.ForEach(func(c *Chunk) {
		assert.True(t, c.IsDirty(), "Чанк %v остаётся изменённым", c.Position())
	})

	// При выгрузке попытки продолжаются до предела, затем чанк выгружается без сохранения
	env.container.Release(env.owner, req)
	env.settle(t)

	assert.Equal(t, 0, env.container.Count())
	saves, _, stored := env.persistence.stats()
	assert.Equal(t, total*maxSaveAttempts, saves)
	assert.Equal(t, 0, stored)
	assert.Equal(t, saves, strings.Count(logs.String(), "Не удалось сохранить"), "Одна запись об ошибке на попытку")
}

func TestContainer_BrokenSaveIsRegenerated(t *testing.T) {
	for _, result := range []LoadingResult{LoadFormatError, LoadValidationError} {
		t.Run(result.String(), func(t *testing.T) {
			env := newTestEnv(t)
			env.persistence.results = map[vec.Vec3]LoadingResult{vec.Zero: result}
			log := env.recordTransitions(vec.Zero)

			env.container.Request(env.owner, vec.Zero, env.actor)
			env.settle(t)

			require.GreaterOrEqual(t, len(*log), 3)
			assert.Equal(t, []Kind{KindUnloaded, KindLoading, KindGenerating}, kinds(*log)[:3])

			c := env.container.GetActive(vec.Zero)
			require.NotNil(t, c)
			assert.Equal(t, uint32(testStoneBlock), c.GetBlock(vec.Zero))
			assert.Equal(t, env.container.Count(), env.generator.generationCount())
		})
	}
}

func TestContainer_WrongOwnerPanics(t *testing.T) {
	env := newTestEnv(t)
	stranger := access.NewOwner()

	assert.PanicsWithValue(t, access.ErrWrongOwner, func() {
		env.container.Request(stranger, vec.Zero, env.actor)
	})
	assert.PanicsWithValue(t, access.ErrWrongOwner, func() {
		env.container.Update(stranger)
	})
}

func TestContainer_BeginSavingAll(t *testing.T) {
	env := newTestEnv(t)
	env.container.Request(env.owner, vec.Zero, env.actor)
	env.settle(t)

	n := env.container.BeginSavingAll(env.owner)
	assert.Equal(t, env.container.Count(), n, "Все сгенерированные чанки изменены")
	env.settle(t)

	env.container.ForEach(func(c *Chunk) {
		assert.False(t, c.IsDirty(), "Чанк %v не сохранён", c.Position())
	})
	assert.Equal(t, 0, env.container.BeginSavingAll(env.owner))
}
