package chunk

import (
	"sort"

	"github.com/annel0/chunk-engine/internal/vec"
)

// ScheduledUpdate отложенное обновление блока
type ScheduledUpdate struct {
	Index uint16 // локальный индекс блока в чанке
	Due   uint64 // тик, на котором обновление должно выполниться
}

// LocalIndex упаковывает локальную позицию в индекс
func LocalIndex(local vec.Vec3) uint16 {
	return uint16(local.X + local.Y*Size + local.Z*Size*Size)
}

// LocalPosition распаковывает индекс в локальную позицию
func LocalPosition(index uint16) vec.Vec3 {
	i := int(index)
	return vec.Vec3{X: i % Size, Y: (i / Size) % Size, Z: i / (Size * Size)}
}

// UpdateScheduler очередь отложенных обновлений чанка, упорядоченная по тику
type UpdateScheduler struct {
	entries []ScheduledUpdate
}

// NewUpdateScheduler создаёт пустую очередь
func NewUpdateScheduler() *UpdateScheduler {
	return &UpdateScheduler{}
}

// Schedule добавляет обновление через delay тиков от now
func (s *UpdateScheduler) Schedule(local vec.Vec3, delay, now uint64) {
	s.insert(ScheduledUpdate{Index: LocalIndex(local), Due: now + delay})
}

func (s *UpdateScheduler) insert(u ScheduledUpdate) {
	i := sort.Search(len(s.entries), func(i int) bool {
		return s.entries[i].Due > u.Due
	})
	s.entries = append(s.entries, ScheduledUpdate{})
	copy(s.entries[i+1:], s.entries[i:])
	s.entries[i] = u
}

// Process выполняет и удаляет все обновления с Due <= now в порядке срока
func (s *UpdateScheduler) Process(now uint64, fn func(local vec.Vec3)) int {
	n := 0
	for n < len(s.entries) && s.entries[n].Due <= now {
		n++
	}
	due := s.entries[:n]
	s.entries = append([]ScheduledUpdate(nil), s.entries[n:]...)
	for _, u := range due {
		fn(LocalPosition(u.Index))
	}
	return n
}

// Len число запланированных обновлений
func (s *UpdateScheduler) Len() int {
	return len(s.entries)
}

// Entries копия очереди
func (s *UpdateScheduler) Entries() []ScheduledUpdate {
	return append([]ScheduledUpdate(nil), s.entries...)
}

// Restore заменяет очередь (при загрузке)
func (s *UpdateScheduler) Restore(entries []ScheduledUpdate) {
	s.entries = s.entries[:0]
	for _, u := range entries {
		s.insert(u)
	}
}

// Clear очищает очередь
func (s *UpdateScheduler) Clear() {
	s.entries = s.entries[:0]
}
