package world

import (
	"context"
	"errors"

	"github.com/annel0/chunk-engine/internal/access"
)

// ErrClosed мир закрыт и команды больше не выполняются
var ErrClosed = errors.New("world: мир закрыт")

// Command действие, которое выполняется циклом-владельцем в начале тика
type Command func(o *access.Owner)

// Post ставит команду в очередь. Безопасен из любой горутины.
func (w *World) Post(cmd Command) error {
	w.cmdMu.Lock()
	defer w.cmdMu.Unlock()
	if w.cmdClosed {
		return ErrClosed
	}
	w.commands = append(w.commands, cmd)
	return nil
}

// Do ставит команду в очередь и ждёт её выполнения или отмены ctx.
// Отменённая команда всё равно выполнится на ближайшем тике.
func (w *World) Do(ctx context.Context, cmd Command) error {
	done := make(chan struct{})
	err := w.Post(func(o *access.Owner) {
		defer close(done)
		cmd(o)
	})
	if err != nil {
		return err
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (w *World) runCommands(o *access.Owner) int {
	w.cmdMu.Lock()
	pending := w.commands
	w.commands = nil
	w.cmdMu.Unlock()

	for _, cmd := range pending {
		cmd(o)
	}
	return len(pending)
}

// closeCommands выполняет оставшиеся команды и запрещает новые
func (w *World) closeCommands(o *access.Owner) {
	w.cmdMu.Lock()
	w.cmdClosed = true
	w.cmdMu.Unlock()
	w.runCommands(o)
}
