package request

import (
	"fmt"

	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/google/uuid"
)

// Actor сторона, запрашивающая чанки (наблюдатель, игрок, система)
type Actor struct {
	ID   uuid.UUID
	Name string
}

// NewActor создаёт актора с новым UUID
func NewActor(name string) *Actor {
	return &Actor{ID: uuid.New(), Name: name}
}

// String для логов
func (a *Actor) String() string {
	return fmt.Sprintf("%s(%s)", a.Name, a.ID.String()[:8])
}

// Request связывает позицию чанка с актором; освобождается вызывающей стороной
type Request struct {
	Position vec.Vec3
	Actor    *Actor
}

// Change результат пересчёта уровня
type Change struct {
	Old Level
	New Level
}

// Changed уровень изменился
func (c Change) Changed() bool {
	return c.Old != c.New
}

// BecameWanted чанк стал нужен
func (c Change) BecameWanted() bool {
	return !c.Old.IsLoaded() && c.New.IsLoaded()
}

// BecameUnwanted чанк перестал быть нужен
func (c Change) BecameUnwanted() bool {
	return c.Old.IsLoaded() && !c.New.IsLoaded()
}

// Requests агрегирует запросы к одной позиции
type Requests struct {
	actors map[uuid.UUID]*Actor
	spread Level
	level  Level
}

// NewRequests создаёт пустой агрегат
func NewRequests() *Requests {
	return &Requests{actors: make(map[uuid.UUID]*Actor)}
}

// Add регистрирует актора. Возвращает false, если он уже зарегистрирован.
func (r *Requests) Add(a *Actor) bool {
	if _, exists := r.actors[a.ID]; exists {
		return false
	}
	r.actors[a.ID] = a
	return true
}

// Remove снимает регистрацию актора
func (r *Requests) Remove(a *Actor) bool {
	if _, exists := r.actors[a.ID]; !exists {
		return false
	}
	delete(r.actors, a.ID)
	return true
}

// Has проверяет наличие актора
func (r *Requests) Has(a *Actor) bool {
	_, exists := r.actors[a.ID]
	return exists
}

// Count количество прямых запросов
func (r *Requests) Count() int {
	return len(r.actors)
}

// SetSpread задаёт уровень, полученный от соседей
func (r *Requests) SetSpread(l Level) {
	r.spread = l
}

// Spread уровень, полученный от соседей
func (r *Requests) Spread() Level {
	return r.spread
}

// Desired уровень по текущим данным (без фиксации)
func (r *Requests) Desired() Level {
	if len(r.actors) > 0 {
		return Highest
	}
	return r.spread
}

// Level зафиксированный уровень после последнего Update
func (r *Requests) Level() Level {
	return r.level
}

// Update фиксирует новый уровень и сообщает об изменении
func (r *Requests) Update() Change {
	change := Change{Old: r.level, New: r.Desired()}
	r.level = change.New
	return change
}

// IsEmpty нет ни прямых запросов, ни уровня от соседей
func (r *Requests) IsEmpty() bool {
	return len(r.actors) == 0 && r.spread == Lowest && r.level == Lowest
}
