package world

import (
	"context"
	"time"

	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/eventbus"
	"github.com/annel0/chunk-engine/internal/vec"
)

const eventSource = "world"

// activate сильная политика первой активации: уровень требует активности,
// данные готовы и все 26 соседей пригодны для использования.
// Иначе чанк остаётся скрытым и ждёт готовности соседа.
func (w *World) activate(c *chunk.Chunk) chunk.State {
	if !c.Level().IsActive() || !c.CanBeActive() {
		return nil
	}
	ready := true
	c.Position().ForEachNeighbor(func(p vec.Vec3) {
		if n := w.container.GetAny(p); n == nil || !n.IsUsable() {
			ready = false
		}
	})
	if !ready {
		return nil
	}
	return chunk.NewActive()
}

// reactivate слабая политика для уже бывших активными чанков
func (w *World) reactivate(c *chunk.Chunk) chunk.State {
	return chunk.ActivateWhenRequested(c)
}

func (w *World) onActivated(c *chunk.Chunk) {
	w.logger.Trace("Чанк %v активирован", c.Position())
}

func (w *World) onDeactivated(c *chunk.Chunk) {
	w.logger.Trace("Чанк %v деактивирован", c.Position())
}

func (w *World) onDeactivate(c *chunk.Chunk) {
	if c.IsDirty() && w.deps.Persistence != nil {
		w.logger.Warn("Чанк %v выгружен с несохранёнными изменениями", c.Position())
	}
}

func (w *World) onLoaded(c *chunk.Chunk, result chunk.LoadingResult) {
	if m := w.deps.Metrics; m != nil {
		m.ObserveLoad(result.String())
	}
	if w.publishing() {
		w.emit(eventbus.NewLoadEvent(eventSource, c.Position(), result.String()))
	}
}

func (w *World) onSaved(c *chunk.Chunk, err error) {
	if m := w.deps.Metrics; m != nil {
		m.ObserveSave(err)
	}
	if w.publishing() {
		w.emit(eventbus.NewSaveEvent(eventSource, c.Position(), err))
	}
}

func (w *World) onTransition(t chunk.Transition) {
	from, to := t.From.String(), t.To.String()
	if m := w.deps.Metrics; m != nil {
		m.ObserveTransition(from, to)
	}
	if w.publishing() {
		w.emit(eventbus.NewTransitionEvent(eventSource, t.Chunk.Position(), from, to, w.tick))
	}
}

func (w *World) publishing() bool { return w.events != nil }

// emit ставит событие в очередь публикации. Переполненная очередь
// отбрасывает событие, цикл тиков не блокируется.
func (w *World) emit(ev *eventbus.Envelope, err error) {
	if err != nil {
		w.logger.Error("Не удалось упаковать событие: %v", err)
		return
	}
	select {
	case w.events <- ev:
	default:
		w.logger.Debug("Очередь событий переполнена, %s %s отброшено", ev.EventType, ev.Chunk)
	}
}

func (w *World) publishLoop() {
	defer w.eventsWG.Done()
	for ev := range w.events {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		if err := w.deps.Bus.Publish(ctx, ev); err != nil {
			w.logger.Debug("Публикация %s: %v", ev.EventType, err)
		}
		cancel()
	}
}
