package chunk

import "github.com/annel0/chunk-engine/internal/vec"

// DefaultPoolCapacity сколько выгруженных чанков хранить для повторного использования
const DefaultPoolCapacity = 256

// Pool переиспользует память выгруженных чанков. Используется только из цикла-владельца.
type Pool struct {
	free     []*Chunk
	capacity int

	allocated int
	reused    int
}

// NewPool создаёт пул заданной ёмкости
func NewPool(capacity int) *Pool {
	if capacity < 0 {
		capacity = 0
	}
	return &Pool{capacity: capacity}
}

// Get возвращает сброшенный чанк для позиции
func (p *Pool) Get(pos vec.Vec3) *Chunk {
	var c *Chunk
	if n := len(p.free); n > 0 {
		c = p.free[n-1]
		p.free[n-1] = nil
		p.free = p.free[:n-1]
		p.reused++
	} else {
		c = newChunk()
		p.allocated++
	}
	c.position = pos
	return c
}

// Put возвращает чанк в пул. Чанк должен быть выгружен.
func (p *Pool) Put(c *Chunk) {
	if c.machine != nil && !c.machine.released {
		panic(ErrNotReleased)
	}
	c.reset(vec.Zero)
	if len(p.free) < p.capacity {
		p.free = append(p.free, c)
	}
}

// Len число свободных чанков
func (p *Pool) Len() int {
	return len(p.free)
}

// Stats число новых выделений и повторных использований
func (p *Pool) Stats() (allocated, reused int) {
	return p.allocated, p.reused
}
