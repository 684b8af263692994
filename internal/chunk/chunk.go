// Package chunk содержит чанк, его конечный автомат состояний, контейнер
// чанков и координатор декорирования.
//
// Все изменения состояния выполняются в цикле-владельце, который предъявляет
// токен access.Owner. Фоновые задачи (загрузка, генерация, декорирование,
// сохранение) работают с данными чанка только пока состояние удерживает
// охранный токен ресурса чанка.
package chunk

import (
	"errors"
	"fmt"
	"sync/atomic"

	"github.com/annel0/chunk-engine/internal/access"
	"github.com/annel0/chunk-engine/internal/request"
	"github.com/annel0/chunk-engine/internal/schedule"
	"github.com/annel0/chunk-engine/internal/vec"
)

// Геометрия чанка
const (
	// SectionSize ребро секции в блоках
	SectionSize = 8
	// SectionsPerAxis секций по каждой оси
	SectionsPerAxis = 4
	// Size ребро чанка в блоках
	Size = SectionSize * SectionsPerAxis
	// SectionCount число секций в чанке
	SectionCount = SectionsPerAxis * SectionsPerAxis * SectionsPerAxis
	// SectionVolume число блоков в секции
	SectionVolume = SectionSize * SectionSize * SectionSize
)

var (
	// ErrNotHeld запись в чанк без токена записи
	ErrNotHeld = errors.New("chunk: нет токена записи")
	// ErrOutOfBounds локальная позиция вне чанка
	ErrOutOfBounds = errors.New("chunk: позиция вне чанка")
	// ErrActivationInvariant попытка войти в Active с неготовыми данными
	ErrActivationInvariant = errors.New("chunk: чанк не готов к активации")
	// ErrNotReleased возврат в пул чанка, который ещё участвует в работе
	ErrNotReleased = errors.New("chunk: чанк не освобождён")
	// ErrGenerationFailed фатальная ошибка генерации
	ErrGenerationFailed = errors.New("chunk: ошибка генерации")
	// ErrDecorationFailed фатальная ошибка декорирования
	ErrDecorationFailed = errors.New("chunk: ошибка декорирования")
)

// Section куб блоков 8x8x8
type Section struct {
	Blocks [SectionVolume]uint32
}

// BlockIndex индекс блока внутри секции
func BlockIndex(x, y, z int) int {
	return x + y*SectionSize + z*SectionSize*SectionSize
}

// Get возвращает блок по локальным координатам секции
func (s *Section) Get(x, y, z int) uint32 {
	return s.Blocks[BlockIndex(x, y, z)]
}

// Set записывает блок по локальным координатам секции
func (s *Section) Set(x, y, z int, id uint32) {
	s.Blocks[BlockIndex(x, y, z)] = id
}

// Fill заполняет секцию одним блоком
func (s *Section) Fill(id uint32) {
	for i := range s.Blocks {
		s.Blocks[i] = id
	}
}

// IsEmpty секция состоит только из нулевых блоков
func (s *Section) IsEmpty() bool {
	for _, b := range s.Blocks {
		if b != 0 {
			return false
		}
	}
	return true
}

// SectionIndex индекс секции в чанке по координатам секции
func SectionIndex(sx, sy, sz int) int {
	return sx + sy*SectionsPerAxis + sz*SectionsPerAxis*SectionsPerAxis
}

// InBounds лежит ли локальная позиция внутри чанка
func InBounds(local vec.Vec3) bool {
	return local.X >= 0 && local.X < Size &&
		local.Y >= 0 && local.Y < Size &&
		local.Z >= 0 && local.Z < Size
}

// Chunk кубический участок мира 32x32x32 блока
type Chunk struct {
	position vec.Vec3
	sections [SectionCount]*Section

	blockUpdates *UpdateScheduler
	fluidUpdates *UpdateScheduler

	decoration Decoration
	requests   *request.Requests
	resource   *access.Resource
	machine    *machine
	container  *Container
	slot       schedule.Slot

	// Поля ниже меняются только в цикле-владельце
	generated     bool
	activatedOnce bool
	usable        bool
	saveFailures  int

	dirty atomic.Bool
}

func newChunk() *Chunk {
	return &Chunk{
		blockUpdates: NewUpdateScheduler(),
		fluidUpdates: NewUpdateScheduler(),
	}
}

// Position координаты чанка
func (c *Chunk) Position() vec.Vec3 {
	return c.position
}

// Origin мировая позиция блока (0,0,0) чанка
func (c *Chunk) Origin() vec.Vec3 {
	return c.position.Scale(Size)
}

// String для логов
func (c *Chunk) String() string {
	return fmt.Sprintf("chunk%v", c.position)
}

// Resource ресурс чанка
func (c *Chunk) Resource() *access.Resource {
	return c.resource
}

// Requests агрегат запросов позиции чанка
func (c *Chunk) Requests() *request.Requests {
	return c.requests
}

// Level зафиксированный уровень запроса
func (c *Chunk) Level() request.Level {
	return c.requests.Level()
}

// Section возвращает секцию по индексу (nil, если не выделена)
func (c *Chunk) Section(i int) *Section {
	return c.sections[i]
}

// EnsureSections выделяет все секции. Вызывается держателем токена записи.
func (c *Chunk) EnsureSections() {
	for i := range c.sections {
		if c.sections[i] == nil {
			c.sections[i] = &Section{}
		}
	}
}

// SectionsAllocated все ли секции выделены
func (c *Chunk) SectionsAllocated() bool {
	for _, s := range c.sections {
		if s == nil {
			return false
		}
	}
	return true
}

// GetBlock возвращает блок по локальной позиции. Невыделенная секция читается как воздух.
func (c *Chunk) GetBlock(local vec.Vec3) uint32 {
	if !InBounds(local) {
		return 0
	}
	s := c.sections[SectionIndex(local.X/SectionSize, local.Y/SectionSize, local.Z/SectionSize)]
	if s == nil {
		return 0
	}
	return s.Get(local.X%SectionSize, local.Y%SectionSize, local.Z%SectionSize)
}

// SetBlock записывает блок. Требует действующий токен записи на ресурс чанка.
func (c *Chunk) SetBlock(g *access.Guard, local vec.Vec3, id uint32) error {
	if !c.resource.IsHeldBy(g, access.Write) {
		return ErrNotHeld
	}
	if !InBounds(local) {
		return fmt.Errorf("%w: %v", ErrOutOfBounds, local)
	}
	c.setBlock(local, id)
	return nil
}

func (c *Chunk) setBlock(local vec.Vec3, id uint32) {
	i := SectionIndex(local.X/SectionSize, local.Y/SectionSize, local.Z/SectionSize)
	if c.sections[i] == nil {
		c.sections[i] = &Section{}
	}
	c.sections[i].Set(local.X%SectionSize, local.Y%SectionSize, local.Z%SectionSize, id)
	c.dirty.Store(true)
}

// BlockUpdates планировщик отложенных обновлений блоков
func (c *Chunk) BlockUpdates() *UpdateScheduler {
	return c.blockUpdates
}

// FluidUpdates планировщик отложенных обновлений жидкостей
func (c *Chunk) FluidUpdates() *UpdateScheduler {
	return c.fluidUpdates
}

// Decoration флаги декорирования
func (c *Chunk) Decoration() Decoration {
	return c.decoration
}

// RestoreDecoration восстанавливает флаги при загрузке
func (c *Chunk) RestoreDecoration(d Decoration) {
	c.decoration = d & DecorationAll
}

// JobInFlight у чанка есть незавершённая фоновая задача. Пока она идёт,
// данные чанка (секции, декор, планировщики) принадлежат задаче.
func (c *Chunk) JobInFlight() bool {
	f := c.machine.future
	return f != nil && !f.Done()
}

// IsGenerated данные чанка сгенерированы или загружены
func (c *Chunk) IsGenerated() bool {
	return c.generated
}

// IsDirty чанк изменён после последнего сохранения
func (c *Chunk) IsDirty() bool {
	return c.dirty.Load()
}

// MarkDirty помечает чанк изменённым
func (c *Chunk) MarkDirty() {
	c.dirty.Store(true)
}

// IsUsable соседи могут рассчитывать на данные чанка
func (c *Chunk) IsUsable() bool {
	return c.usable
}

// WasActivated чанк хотя бы раз был активен
func (c *Chunk) WasActivated() bool {
	return c.activatedOnce
}

// CanBeActive выполнены ли условия входа в Active
func (c *Chunk) CanBeActive() bool {
	return c.SectionsAllocated() && c.decoration.Has(DecorationCenter)
}

// State текущее состояние
func (c *Chunk) State() State {
	return c.machine.state
}

// Kind вид текущего состояния
func (c *Chunk) Kind() Kind {
	return c.machine.state.Kind()
}

// IsActive состояние вошло, разрешает совместный доступ и ещё не вышло
func (c *Chunk) IsActive() bool {
	m := c.machine
	return m != nil && !m.released && m.entered && m.state.AllowSharing()
}

// SharedGuard токен записи активного состояния. Действует в пределах текущего кадра.
func (c *Chunk) SharedGuard(o *access.Owner) *access.Guard {
	c.container.ctx.Owner.Check(o)
	if !c.IsActive() {
		return nil
	}
	return c.machine.guard
}

// WaitMode текущая маска ожидания
func (c *Chunk) WaitMode() WaitMode {
	return c.machine.wait
}

// Step один шаг автомата. Вызывается стратегией из цикла-владельца.
func (c *Chunk) Step() {
	if c.machine == nil || !c.slot.Listed() {
		return
	}
	c.machine.step()
}

// Slot позиция чанка в списке обновлений
func (c *Chunk) Slot() *schedule.Slot {
	return &c.slot
}

// IsRequestedToSimulate чанк нужен для симуляции
func (c *Chunk) IsRequestedToSimulate() bool {
	return c.requests != nil && c.requests.Level().IsSimulated()
}

// BeginSaving запрашивает сохранение чанка
func (c *Chunk) BeginSaving(o *access.Owner) bool {
	c.container.ctx.Owner.Check(o)
	return c.machine.request(KindSaving)
}

// BeginHiding запрашивает переход в Hidden
func (c *Chunk) BeginHiding(o *access.Owner) bool {
	c.container.ctx.Owner.Check(o)
	return c.machine.request(KindHidden)
}

// CanStealAccess можно ли отобрать токен записи у текущего состояния
func (c *Chunk) CanStealAccess() bool {
	return c.machine.canStealAccess()
}

// TryStealAccess отбирает токен записи у простаивающего состояния.
// Состояние выходит без освобождения токена, его место занимает Hidden.
func (c *Chunk) TryStealAccess(o *access.Owner) *access.Guard {
	c.container.ctx.Owner.Check(o)
	return c.machine.steal()
}

func (c *Chunk) reset(pos vec.Vec3) {
	c.position = pos
	for _, s := range c.sections {
		if s != nil {
			s.Fill(0)
		}
	}
	c.blockUpdates.Clear()
	c.fluidUpdates.Clear()
	c.decoration = 0
	c.requests = nil
	c.resource = nil
	c.machine = nil
	c.container = nil
	c.generated = false
	c.activatedOnce = false
	c.usable = false
	c.saveFailures = 0
	c.dirty.Store(false)
}

// clearContent сбрасывает данные перед повторной генерацией
func (c *Chunk) clearContent() {
	for _, s := range c.sections {
		if s != nil {
			s.Fill(0)
		}
	}
	c.blockUpdates.Clear()
	c.fluidUpdates.Clear()
	c.decoration = 0
}
