package world

import (
	"time"

	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/schedule"
	"github.com/annel0/chunk-engine/internal/vec"
)

// ChunkInfo состояние одного чанка на момент снимка
type ChunkInfo struct {
	Position   vec.Vec3 `json:"position"`
	State      string   `json:"state"`
	Level      string   `json:"level"`
	Decoration string   `json:"decoration"`
	Active     bool     `json:"active"`
	Dirty      bool     `json:"dirty"`
	Generated  bool     `json:"generated"`
	Wait       string   `json:"wait"`
	// Busy идёт фоновая задача; Decoration взят из прошлого снимка
	Busy bool `json:"busy"`
}

// Snapshot неизменяемый снимок мира после тика. Читается из любой горутины.
type Snapshot struct {
	Tick        uint64         `json:"tick"`
	Chunks      int            `json:"chunks"`
	Active      int            `json:"active"`
	ByState     map[string]int `json:"by_state"`
	ListLen     int            `json:"list_len"`
	Strategy    string         `json:"strategy"`
	Budget      int            `json:"budget"` // -1 без ограничения
	InFlight    int64          `json:"in_flight"`
	Interactive bool           `json:"interactive"`
	Observers   []string       `json:"observers"`
	TickTime    time.Duration  `json:"tick_time_ns"`

	chunks map[vec.Vec3]ChunkInfo
}

// Chunk сведения о чанке позиции pos
func (s *Snapshot) Chunk(pos vec.Vec3) (ChunkInfo, bool) {
	info, ok := s.chunks[pos]
	return info, ok
}

// Snapshot последний опубликованный снимок
func (w *World) Snapshot() *Snapshot {
	w.snapMu.RLock()
	defer w.snapMu.RUnlock()
	return w.snapshot
}

func (w *World) budget() int {
	if li, ok := w.container.Strategy().(*schedule.LowImpact); ok {
		return li.Budget()
	}
	return -1
}

func (w *World) publishSnapshot(elapsed time.Duration) *Snapshot {
	s := &Snapshot{
		Tick:        w.tick,
		TickTime:    elapsed,
		Chunks:      w.container.Count(),
		Active:      w.container.ActiveCount(),
		ByState:     make(map[string]int, len(chunk.Kinds())),
		ListLen:     w.container.ListLen(),
		Strategy:    w.container.Strategy().Name(),
		Budget:      w.budget(),
		InFlight:    w.dispatcher.InFlight(),
		Interactive: w.interactive,
		Observers:   w.Observers(),
		chunks:      make(map[vec.Vec3]ChunkInfo, w.container.Count()),
	}
	prev := w.Snapshot()
	for _, k := range chunk.Kinds() {
		s.ByState[k.String()] = w.container.CountByKind(k)
	}
	w.container.ForEach(func(c *chunk.Chunk) {
		info := ChunkInfo{
			Position:  c.Position(),
			State:     c.Kind().String(),
			Level:     c.Level().String(),
			Active:    c.IsActive(),
			Dirty:     c.IsDirty(),
			Generated: c.IsGenerated(),
			Wait:      c.WaitMode().String(),
			Busy:      c.JobInFlight(),
		}
		if info.Busy {
			// Флаги декора пишет задача загрузки
			if old, ok := prev.Chunk(c.Position()); ok {
				info.Decoration = old.Decoration
			}
		} else {
			info.Decoration = c.Decoration().String()
		}
		s.chunks[c.Position()] = info
	})

	w.snapMu.Lock()
	w.snapshot = s
	w.snapMu.Unlock()
	return s
}

func (w *World) observeMetrics(s *Snapshot) {
	m := w.deps.Metrics
	if m == nil {
		return
	}
	for state, n := range s.ByState {
		m.SetChunks(state, n)
	}
	m.SetActive(s.Active)
	m.SetListLen(s.ListLen)
	m.SetBudget(s.Budget)
	m.SetInFlight(int(s.InFlight))
	m.ObserveTick(s.TickTime)
}
