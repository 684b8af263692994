package world

import (
	"fmt"
	"sort"

	"github.com/annel0/chunk-engine/internal/access"
	"github.com/annel0/chunk-engine/internal/request"
	"github.com/annel0/chunk-engine/internal/vec"
)

// Observer источник запроса: игрок или другой потребитель, вокруг
// которого чанки загружаются, активируются и симулируются
type Observer struct {
	name     string
	actor    *request.Actor
	position vec.Vec3
	request  *request.Request
}

// Name имя наблюдателя
func (ob *Observer) Name() string {
	return ob.name
}

// Position позиция чанка наблюдателя
func (ob *Observer) Position() vec.Vec3 {
	return ob.position
}

// AddObserver ставит запрос наблюдателя в позицию чанка pos
func (w *World) AddObserver(o *access.Owner, name string, pos vec.Vec3) (*Observer, error) {
	w.owner.Check(o)
	if _, ok := w.observers[name]; ok {
		return nil, fmt.Errorf("%w: %s", ErrObserverExists, name)
	}
	ob := &Observer{name: name, actor: request.NewActor(name), position: pos}
	ob.request = w.container.Request(o, pos, ob.actor)
	w.observers[name] = ob
	w.logger.Info("👁 Наблюдатель %s в чанке %v", name, pos)
	return ob, nil
}

// MoveObserver переносит запрос. Новый запрос ставится до снятия старого,
// чтобы общая область не выгружалась между кадрами.
func (w *World) MoveObserver(o *access.Owner, name string, pos vec.Vec3) error {
	w.owner.Check(o)
	ob, ok := w.observers[name]
	if !ok {
		return fmt.Errorf("world: наблюдатель %s не найден", name)
	}
	if ob.position == pos {
		return nil
	}
	next := w.container.Request(o, pos, ob.actor)
	w.container.Release(o, ob.request)
	ob.request = next
	ob.position = pos
	w.logger.Debug("Наблюдатель %s перемещён в %v", name, pos)
	return nil
}

// RemoveObserver снимает запрос наблюдателя
func (w *World) RemoveObserver(o *access.Owner, name string) bool {
	w.owner.Check(o)
	ob, ok := w.observers[name]
	if !ok {
		return false
	}
	w.container.Release(o, ob.request)
	delete(w.observers, name)
	w.logger.Info("Наблюдатель %s удалён", name)
	return true
}

// Observers имена наблюдателей по алфавиту
func (w *World) Observers() []string {
	names := make([]string, 0, len(w.observers))
	for name := range w.observers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}
