package schedule

// Bag коллекция с адресацией по индексу: вставка и удаление за O(1),
// освободившиеся ячейки переиспользуются.
type Bag[T any] struct {
	items   []T
	present []bool
	gaps    []int
	count   int
}

// Push добавляет элемент, заполняя пропуск при наличии. Возвращает индекс.
func (b *Bag[T]) Push(item T) int {
	if n := len(b.gaps); n > 0 {
		index := b.gaps[n-1]
		b.gaps = b.gaps[:n-1]
		b.items[index] = item
		b.present[index] = true
		b.count++
		return index
	}

	b.items = append(b.items, item)
	b.present = append(b.present, true)
	b.count++
	return len(b.items) - 1
}

// Pop удаляет элемент по индексу и возвращает его
func (b *Bag[T]) Pop(index int) T {
	if index < 0 || index >= len(b.items) || !b.present[index] {
		panic("schedule: удаление отсутствующего элемента")
	}

	item := b.items[index]
	var zero T
	b.items[index] = zero
	b.present[index] = false
	b.gaps = append(b.gaps, index)
	b.count--
	return item
}

// At возвращает элемент по индексу
func (b *Bag[T]) At(index int) (T, bool) {
	if index < 0 || index >= len(b.items) || !b.present[index] {
		var zero T
		return zero, false
	}
	return b.items[index], true
}

// Count количество элементов
func (b *Bag[T]) Count() int {
	return b.count
}

// Capacity размер с учётом пропусков
func (b *Bag[T]) Capacity() int {
	return len(b.items)
}

// IsEmpty коллекция пуста
func (b *Bag[T]) IsEmpty() bool {
	return b.count == 0
}

// Snapshot копия элементов в порядке индексов
func (b *Bag[T]) Snapshot() []T {
	result := make([]T, 0, b.count)
	for i, item := range b.items {
		if b.present[i] {
			result = append(result, item)
		}
	}
	return result
}

// Clear удаляет все элементы
func (b *Bag[T]) Clear() {
	b.items = b.items[:0]
	b.present = b.present[:0]
	b.gaps = b.gaps[:0]
	b.count = 0
}
