// Package schedule содержит список обновлений чанков и стратегии планирования шагов.
package schedule

import "sync"

// Stepper элемент, который стратегия может продвинуть на один шаг
type Stepper interface {
	// Step выполняет один шаг конечного автомата
	Step()
	// IsRequestedToSimulate элемент нужен для симуляции и не может голодать
	IsRequestedToSimulate() bool
}

// Slot позиция элемента в списке обновлений. Хранится в самом элементе.
type Slot struct {
	index  int
	listed bool
}

// Listed находится ли элемент в списке
func (s *Slot) Listed() bool {
	return s.listed
}

// Entry элемент списка обновлений
type Entry interface {
	Stepper
	Slot() *Slot
}

type completion[T Entry] struct {
	entry  T
	action func()
}

// List набор элементов, ожидающих шага автомата, плюс очередь завершений,
// в которую фоновые горутины кладут продолжения для цикла-владельца.
// Все методы, кроме Enqueue, вызываются только из цикла-владельца.
type List[T Entry] struct {
	bag      Bag[T]
	strategy Strategy

	mu      sync.Mutex
	pending []completion[T]
}

// NewList создаёт список с указанной стратегией
func NewList[T Entry](strategy Strategy) *List[T] {
	if strategy == nil {
		strategy = MaxThroughput{}
	}
	return &List[T]{strategy: strategy}
}

// Add добавляет элемент, если его ещё нет в списке
func (l *List[T]) Add(entry T) bool {
	slot := entry.Slot()
	if slot.listed {
		return false
	}
	slot.index = l.bag.Push(entry)
	slot.listed = true
	return true
}

// Remove удаляет элемент, если он есть в списке
func (l *List[T]) Remove(entry T) bool {
	slot := entry.Slot()
	if !slot.listed {
		return false
	}
	l.bag.Pop(slot.index)
	slot.listed = false
	slot.index = -1
	return true
}

// Contains находится ли элемент в списке
func (l *List[T]) Contains(entry T) bool {
	return entry.Slot().listed
}

// Len число элементов в списке
func (l *List[T]) Len() int {
	return l.bag.Count()
}

// Pending число ещё не обработанных завершений
func (l *List[T]) Pending() int {
	l.mu.Lock()
	defer l.mu.Unlock()
	return len(l.pending)
}

// Strategy текущая стратегия
func (l *List[T]) Strategy() Strategy {
	return l.strategy
}

// SetStrategy меняет стратегию
func (l *List[T]) SetStrategy(strategy Strategy) {
	l.strategy = strategy
}

// Enqueue ставит продолжение в очередь завершений. Безопасно вызывать из любой горутины.
// Продолжение будет выполнено в цикле-владельце, после чего элемент вернётся в список.
func (l *List[T]) Enqueue(entry T, action func()) {
	l.mu.Lock()
	l.pending = append(l.pending, completion[T]{entry: entry, action: action})
	l.mu.Unlock()
}

// Update сначала разбирает очередь завершений, затем передаёт снимок списка стратегии.
// Возвращает число выполненных шагов.
func (l *List[T]) Update() int {
	l.drain()

	entries := l.bag.Snapshot()
	steppers := make([]Stepper, len(entries))
	for i, e := range entries {
		steppers[i] = e
	}
	return l.strategy.Process(steppers)
}

func (l *List[T]) drain() {
	l.mu.Lock()
	pending := l.pending
	l.pending = nil
	l.mu.Unlock()

	for _, c := range pending {
		if c.action != nil {
			c.action()
		}
		l.Add(c.entry)
	}
}

// Clear удаляет все элементы и незавершённые продолжения
func (l *List[T]) Clear() {
	for _, e := range l.bag.Snapshot() {
		l.Remove(e)
	}
	l.mu.Lock()
	l.pending = nil
	l.mu.Unlock()
}
