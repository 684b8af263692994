package world

import (
	"github.com/annel0/chunk-engine/internal/access"
	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/generation"
	"github.com/annel0/chunk-engine/internal/vec"
)

// Rules правила отложенных обновлений блоков
type Rules struct {
	Air uint32
	// Fluids блоки, стекающие вниз в воздух
	Fluids map[uint32]bool
	// Falling блоки, падающие вниз в воздух
	Falling map[uint32]bool

	FluidDelay uint64
	BlockDelay uint64
}

// DefaultRules вода течёт раз в 5 тиков, песок падает каждый тик
func DefaultRules() Rules {
	return Rules{
		Air:        generation.AirBlockID,
		Fluids:     map[uint32]bool{generation.WaterBlockID: true},
		Falling:    map[uint32]bool{generation.SandBlockID: true},
		FluidDelay: 5,
		BlockDelay: 1,
	}
}

var down = vec.Vec3{Y: -1}

// simulate выполняет наступившие обновления блоков и жидкостей
// в активных симулируемых чанках
func (w *World) simulate(o *access.Owner) {
	var blocks, fluids int
	var due []*chunk.Chunk
	w.container.ForEach(func(c *chunk.Chunk) {
		if c.IsActive() && c.IsRequestedToSimulate() {
			due = append(due, c)
		}
	})

	for _, c := range due {
		if c.SharedGuard(o) == nil {
			continue
		}
		origin := c.Origin()
		blocks += c.BlockUpdates().Process(w.tick, func(local vec.Vec3) {
			w.updateFalling(o, origin.Add(local))
		})
		fluids += c.FluidUpdates().Process(w.tick, func(local vec.Vec3) {
			w.updateFluid(o, origin.Add(local))
		})
	}

	if m := w.deps.Metrics; m != nil {
		m.AddUpdates("block", blocks)
		m.AddUpdates("fluid", fluids)
	}
}

func (w *World) updateFalling(o *access.Owner, p vec.Vec3) {
	id, ok := w.GetBlock(o, p)
	if !ok || !w.rules.Falling[id] {
		return
	}
	below := p.Add(down)
	if b, ok := w.GetBlock(o, below); !ok || b != w.rules.Air {
		return
	}
	if w.write(o, below, id) && w.write(o, p, w.rules.Air) {
		w.scheduleBlock(o, below, w.rules.BlockDelay)
		w.scheduleBlock(o, p.Add(vec.Vec3{Y: 1}), w.rules.BlockDelay)
	}
}

func (w *World) updateFluid(o *access.Owner, p vec.Vec3) {
	id, ok := w.GetBlock(o, p)
	if !ok || !w.rules.Fluids[id] {
		return
	}
	below := p.Add(down)
	if b, ok := w.GetBlock(o, below); !ok || b != w.rules.Air {
		return
	}
	if w.write(o, below, id) {
		w.scheduleFluid(o, below, w.rules.FluidDelay)
	}
}

// write пишет блок в активный чанк через общий токен записи
func (w *World) write(o *access.Owner, p vec.Vec3, id uint32) bool {
	cp, local := ChunkOf(p)
	c := w.container.GetActive(cp)
	if c == nil {
		return false
	}
	g := c.SharedGuard(o)
	return g != nil && c.SetBlock(g, local, id) == nil
}

func (w *World) scheduleBlock(o *access.Owner, p vec.Vec3, delay uint64) {
	cp, local := ChunkOf(p)
	if c := w.container.GetActive(cp); c != nil && c.SharedGuard(o) != nil {
		c.BlockUpdates().Schedule(local, delay, w.tick)
	}
}

func (w *World) scheduleFluid(o *access.Owner, p vec.Vec3, delay uint64) {
	cp, local := ChunkOf(p)
	if c := w.container.GetActive(cp); c != nil && c.SharedGuard(o) != nil {
		c.FluidUpdates().Schedule(local, delay, w.tick)
	}
}

// scheduleAround планирует обновления блока и его окрестности после изменения
func (w *World) scheduleAround(c *chunk.Chunk, local vec.Vec3) {
	p := c.Origin().Add(local)
	o := w.owner
	w.scheduleBlock(o, p, w.rules.BlockDelay)
	w.scheduleBlock(o, p.Add(vec.Vec3{Y: 1}), w.rules.BlockDelay)
	for _, d := range []vec.Vec3{{Y: 1}, {X: 1}, {X: -1}, {Z: 1}, {Z: -1}} {
		w.scheduleFluid(o, p.Add(d), w.rules.FluidDelay)
	}
	w.scheduleFluid(o, p, w.rules.FluidDelay)
}
