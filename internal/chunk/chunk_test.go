package chunk

import (
	"testing"

	"github.com/annel0/chunk-engine/internal/access"
	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSection_FillGetSet(t *testing.T) {
	var s Section
	assert.True(t, s.IsEmpty())

	s.Set(1, 2, 3, 42)
	assert.Equal(t, uint32(42), s.Get(1, 2, 3))
	assert.False(t, s.IsEmpty())

	s.Fill(0)
	assert.True(t, s.IsEmpty())
}

func TestChunk_SetBlockRequiresWriteGuard(t *testing.T) {
	owner := access.NewOwner()
	c := newChunk()
	c.resource = access.NewResource("chunk", owner)
	local := vec.Vec3{X: 9, Y: 17, Z: 31}

	assert.ErrorIs(t, c.SetBlock(nil, local, 5), ErrNotHeld)

	r := c.resource.TryAcquire(owner, access.Read)
	require.NotNil(t, r)
	assert.ErrorIs(t, c.SetBlock(r, local, 5), ErrNotHeld, "Токен чтения не даёт права записи")
	r.Release()

	w := c.resource.TryAcquire(owner, access.Write)
	require.NotNil(t, w)
	require.NoError(t, c.SetBlock(w, local, 5))
	assert.Equal(t, uint32(5), c.GetBlock(local))
	assert.True(t, c.IsDirty())

	assert.ErrorIs(t, c.SetBlock(w, vec.Vec3{X: Size}, 1), ErrOutOfBounds)

	w.Release()
	assert.ErrorIs(t, c.SetBlock(w, local, 6), ErrNotHeld, "Освобождённый токен недействителен")
}

func TestChunk_CanBeActive(t *testing.T) {
	c := newChunk()
	assert.False(t, c.CanBeActive())

	c.EnsureSections()
	assert.False(t, c.CanBeActive(), "Без центрального декора")

	c.RestoreDecoration(DecorationCenter)
	assert.True(t, c.CanBeActive())
}

func TestUpdateScheduler_ProcessInDueOrder(t *testing.T) {
	s := NewUpdateScheduler()
	a := vec.Vec3{X: 1}
	b := vec.Vec3{Y: 2}
	c := vec.Vec3{Z: 3}

	s.Schedule(a, 5, 0)
	s.Schedule(b, 1, 0)
	s.Schedule(c, 3, 0)
	assert.Equal(t, 3, s.Len())

	var got []vec.Vec3
	n := s.Process(3, func(p vec.Vec3) { got = append(got, p) })
	assert.Equal(t, 2, n)
	assert.Equal(t, []vec.Vec3{b, c}, got)
	assert.Equal(t, 1, s.Len())

	restored := NewUpdateScheduler()
	restored.Restore(s.Entries())
	assert.Equal(t, s.Entries(), restored.Entries())
}

func TestLocalIndex_RoundTrip(t *testing.T) {
	for _, p := range []vec.Vec3{{}, {X: 31, Y: 31, Z: 31}, {X: 3, Y: 17, Z: 8}} {
		assert.Equal(t, p, LocalPosition(LocalIndex(p)))
	}
}

func TestDecoration_Flags(t *testing.T) {
	d := DecorationCenter | DecorationCorner(0) | DecorationCorner(7)
	assert.True(t, d.Has(DecorationCenter))
	assert.True(t, d.Has(DecorationCorner(7)))
	assert.False(t, d.Has(DecorationCorner(3)))
	assert.False(t, d.IsComplete())
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, d.MissingCorners())
	assert.Equal(t, "center+corners[0,7]", d.String())

	var all Decoration = DecorationCenter
	for i := 0; i < CornerCount; i++ {
		all |= DecorationCorner(i)
	}
	assert.Equal(t, DecorationAll, all)
	assert.True(t, all.IsComplete())
}

func TestCornerShares_SharedCornerIndex(t *testing.T) {
	for i := 0; i < CornerCount; i++ {
		shares := CornerShares(i)
		assert.Equal(t, vec.Zero, shares[0].Offset)
		assert.Equal(t, i, shares[0].Corner)

		dir := CornerDirection(i)
		cornerPoint := vec.Vec3{X: max(dir.X, 0), Y: max(dir.Y, 0), Z: max(dir.Z, 0)}

		seen := map[vec.Vec3]bool{}
		for _, s := range shares {
			seen[s.Offset] = true
			// Угол в системе соседа должен указывать на ту же точку
			d := CornerDirection(s.Corner)
			theirs := s.Offset.Add(vec.Vec3{X: max(d.X, 0), Y: max(d.Y, 0), Z: max(d.Z, 0)})
			assert.Equal(t, cornerPoint, theirs, "corner %d offset %v", i, s.Offset)
		}
		assert.Len(t, seen, 8)
	}
}

func TestCornerSections_ExcludeTips(t *testing.T) {
	for i := 0; i < CornerCount; i++ {
		sections := CornerSections(i)
		assert.Len(t, sections, 56)

		for _, s := range sections {
			local := vec.Vec3{
				X: vec.FloorMod(s.X, SectionsPerAxis),
				Y: vec.FloorMod(s.Y, SectionsPerAxis),
				Z: vec.FloorMod(s.Z, SectionsPerAxis),
			}
			inCenter := func(v int) bool { return v == 1 || v == 2 }
			assert.False(t, inCenter(local.X) && inCenter(local.Y) && inCenter(local.Z),
				"Секция %v принадлежит центру чанка", s)
		}
	}
}

func TestPool_ReuseResetsChunk(t *testing.T) {
	p := NewPool(1)
	c := p.Get(vec.Vec3{X: 1})
	c.EnsureSections()
	c.Section(3).Fill(9)
	c.RestoreDecoration(DecorationAll)
	c.MarkDirty()
	c.BlockUpdates().Schedule(vec.Zero, 1, 0)

	p.Put(c)
	assert.Equal(t, 1, p.Len())

	again := p.Get(vec.Vec3{Y: 2})
	assert.Same(t, c, again)
	assert.Equal(t, vec.Vec3{Y: 2}, again.Position())
	assert.True(t, again.Section(3).IsEmpty())
	assert.Equal(t, Decoration(0), again.Decoration())
	assert.False(t, again.IsDirty())
	assert.Equal(t, 0, again.BlockUpdates().Len())

	allocated, reused := p.Stats()
	assert.Equal(t, 1, allocated)
	assert.Equal(t, 1, reused)
}

func TestPool_PutRejectsLiveChunk(t *testing.T) {
	p := NewPool(1)
	c := p.Get(vec.Zero)
	c.machine = newMachine(c, newUnloaded())
	assert.PanicsWithValue(t, ErrNotReleased, func() { p.Put(c) })
}
