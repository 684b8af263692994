// Package access реализует неблокирующую схему "читатели/писатель" для ресурсов чанков.
//
// Ресурс выдаёт охранные токены (Guard). Одновременно может существовать либо один
// токен записи, либо любое количество токенов чтения. Захват никогда не блокирует
// вызывающего: при конфликте возвращается nil, а ожидающая сторона подписывается
// на событие освобождения ресурса.
//
// Вся бухгалтерия ведётся в цикле-владельце. Доказательством того, что вызов
// выполняется в нём, служит токен Owner, который передаётся явно.
package access

import (
	"errors"
	"fmt"
	"sync/atomic"
)

// Access уровень доступа к ресурсу
type Access uint8

const (
	None Access = iota
	Read
	Write
)

// String возвращает строковое представление уровня доступа
func (a Access) String() string {
	switch a {
	case None:
		return "none"
	case Read:
		return "read"
	case Write:
		return "write"
	default:
		return "unknown"
	}
}

var (
	// ErrWrongOwner вызов из чужого цикла (нарушение протокола)
	ErrWrongOwner = errors.New("access: вызов вне цикла-владельца")
	// ErrGuardReleased повторное освобождение токена
	ErrGuardReleased = errors.New("access: токен уже освобождён")
	// ErrForeignGuard токен принадлежит другому ресурсу
	ErrForeignGuard = errors.New("access: токен не принадлежит ресурсу")
)

var ownerIDs atomic.Uint64

// Owner токен цикла-владельца. Все изменяющие операции требуют его предъявления.
type Owner struct {
	id uint64
}

// NewOwner создаёт новый токен владельца
func NewOwner() *Owner {
	return &Owner{id: ownerIDs.Add(1)}
}

// Check паникует, если предъявлен чужой токен
func (o *Owner) Check(presented *Owner) {
	if o == nil || presented == nil || o.id != presented.id {
		panic(ErrWrongOwner)
	}
}

// String для логов
func (o *Owner) String() string {
	if o == nil {
		return "owner(nil)"
	}
	return fmt.Sprintf("owner(%d)", o.id)
}

// Resource ресурс с учётом читателей и писателя
type Resource struct {
	name     string
	owner    *Owner
	readers  int
	writer   bool
	handlers []func(*Resource)
}

// NewResource создаёт ресурс, привязанный к циклу-владельцу
func NewResource(name string, owner *Owner) *Resource {
	return &Resource{name: name, owner: owner}
}

// Name возвращает имя ресурса
func (r *Resource) Name() string {
	return r.name
}

// Readers возвращает число выданных токенов чтения
func (r *Resource) Readers() int {
	return r.readers
}

// IsWritten сообщает, выдан ли токен записи
func (r *Resource) IsWritten() bool {
	return r.writer
}

// IsFree сообщает, что ни один токен не выдан
func (r *Resource) IsFree() bool {
	return !r.writer && r.readers == 0
}

// CanAcquire проверяет возможность захвата без побочных эффектов
func (r *Resource) CanAcquire(a Access) bool {
	switch a {
	case None:
		return true
	case Read:
		return !r.writer
	case Write:
		return !r.writer && r.readers == 0
	default:
		return false
	}
}

// TryAcquire пытается захватить ресурс. Возвращает nil, если доступ несовместим
// с уже выданными токенами или если запрошен доступ None.
func (r *Resource) TryAcquire(o *Owner, a Access) *Guard {
	r.owner.Check(o)

	if a == None || !r.CanAcquire(a) {
		return nil
	}

	if a == Write {
		r.writer = true
	} else {
		r.readers++
	}

	return &Guard{resource: r, access: a}
}

// IsHeldBy проверяет, что токен всё ещё действителен и даёт не меньше указанного доступа
func (r *Resource) IsHeldBy(g *Guard, a Access) bool {
	if g == nil || g.released || g.resource != r {
		return false
	}
	return g.access >= a
}

// OnReleased подписывает обработчик на событие полного освобождения ресурса
func (r *Resource) OnReleased(handler func(*Resource)) {
	r.handlers = append(r.handlers, handler)
}

// ClearHandlers снимает все подписки (при возврате чанка в пул)
func (r *Resource) ClearHandlers() {
	r.handlers = nil
}

// String для логов
func (r *Resource) String() string {
	switch {
	case r.writer:
		return fmt.Sprintf("%s[write]", r.name)
	case r.readers > 0:
		return fmt.Sprintf("%s[read x%d]", r.name, r.readers)
	default:
		return fmt.Sprintf("%s[free]", r.name)
	}
}

func (r *Resource) release(g *Guard) {
	if g.access == Write {
		r.writer = false
	} else {
		r.readers--
	}

	if r.IsFree() {
		// Подписчики могут снова захватить ресурс, поэтому работаем с копией.
		handlers := append(([]func(*Resource))(nil), r.handlers...)
		for _, h := range handlers {
			h(r)
		}
	}
}

// Guard токен выданного доступа
type Guard struct {
	resource *Resource
	access   Access
	released bool
}

// Access возвращает уровень доступа токена
func (g *Guard) Access() Access {
	return g.access
}

// Resource возвращает ресурс токена
func (g *Guard) Resource() *Resource {
	return g.resource
}

// IsReleased сообщает, освобождён ли токен
func (g *Guard) IsReleased() bool {
	return g.released
}

// Release освобождает токен. Повторное освобождение считается нарушением протокола.
// Токен выдан в цикле-владельце, поэтому сам служит доказательством владения.
func (g *Guard) Release() {
	if g.released {
		panic(ErrGuardReleased)
	}
	g.released = true
	g.resource.release(g)
}

// ReleaseAll освобождает все неосвобождённые токены из списка
func ReleaseAll(guards []*Guard) {
	for _, g := range guards {
		if g != nil && !g.released {
			g.Release()
		}
	}
}
