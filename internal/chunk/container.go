package chunk

import (
	"github.com/annel0/chunk-engine/internal/access"
	"github.com/annel0/chunk-engine/internal/request"
	"github.com/annel0/chunk-engine/internal/schedule"
	"github.com/annel0/chunk-engine/internal/vec"
)

// Container владеет всеми чанками мира, списком обновлений и запросами.
// Все методы, кроме IsIdle, вызываются из цикла-владельца.
type Container struct {
	ctx  *Context
	pool *Pool
	list *schedule.List[*Chunk]

	chunks   map[vec.Vec3]*Chunk
	active   map[vec.Vec3]*Chunk
	requests map[vec.Vec3]*request.Requests

	field           *request.Field
	requestsChanged bool

	counts   [len(kindNames)]int
	handlers []func(Transition)
}

// NewContainer создаёт контейнер. pool может быть nil.
func NewContainer(ctx *Context, strategy schedule.Strategy, pool *Pool) (*Container, error) {
	if err := ctx.validate(); err != nil {
		return nil, err
	}
	if pool == nil {
		pool = NewPool(DefaultPoolCapacity)
	}
	return &Container{
		ctx:      ctx,
		pool:     pool,
		list:     schedule.NewList[*Chunk](strategy),
		chunks:   make(map[vec.Vec3]*Chunk),
		active:   make(map[vec.Vec3]*Chunk),
		requests: make(map[vec.Vec3]*request.Requests),
	}, nil
}

// Context контекст контейнера
func (k *Container) Context() *Context {
	return k.ctx
}

// Request регистрирует запрос актора к позиции. Возвращает nil, если актор уже запросил её.
// Уровни пересчитываются в ProcessRequests.
func (k *Container) Request(o *access.Owner, pos vec.Vec3, actor *request.Actor) *request.Request {
	k.ctx.Owner.Check(o)

	r := k.requests[pos]
	if r == nil {
		r = request.NewRequests()
		k.requests[pos] = r
	}
	if !r.Add(actor) {
		return nil
	}
	k.requestsChanged = true
	return &request.Request{Position: pos, Actor: actor}
}

// Release снимает запрос
func (k *Container) Release(o *access.Owner, req *request.Request) {
	k.ctx.Owner.Check(o)
	if req == nil {
		return
	}
	if r := k.requests[req.Position]; r != nil && r.Remove(req.Actor) {
		k.requestsChanged = true
	}
}

// ProcessRequests пересчитывает поле уровней, создаёт чанки для ставших нужными
// позиций и будит чанки, чей уровень изменился
func (k *Container) ProcessRequests(o *access.Owner) {
	k.ctx.Owner.Check(o)
	if !k.requestsChanged {
		return
	}
	k.requestsChanged = false

	var sources []vec.Vec3
	for pos, r := range k.requests {
		if r.Count() > 0 {
			sources = append(sources, pos)
		}
	}
	k.field = request.Propagate(sources)

	positions := make(map[vec.Vec3]struct{}, k.field.Len()+len(k.requests))
	k.field.ForEach(func(p vec.Vec3, _ request.Level) {
		positions[p] = struct{}{}
	})
	for p := range k.requests {
		positions[p] = struct{}{}
	}

	for p := range positions {
		r := k.requests[p]
		spread := k.field.At(p)
		if r == nil {
			if !spread.IsLoaded() {
				continue
			}
			r = request.NewRequests()
			k.requests[p] = r
		}
		r.SetSpread(spread)
		change := r.Update()

		c := k.chunks[p]
		switch {
		case c == nil && change.New.IsLoaded():
			k.create(p, r)
		case c != nil && change.Changed():
			c.machine.onRequestLevelChanged()
		}

		if c == nil && r.IsEmpty() {
			delete(k.requests, p)
		}
	}
}

// Level уровень запроса позиции
func (k *Container) Level(pos vec.Vec3) request.Level {
	if r := k.requests[pos]; r != nil {
		return r.Level()
	}
	return request.Lowest
}

func (k *Container) create(pos vec.Vec3, r *request.Requests) *Chunk {
	c := k.pool.Get(pos)
	c.requests = r
	c.container = k
	c.resource = access.NewResource(c.String(), k.ctx.Owner)

	m := newMachine(c, newUnloaded())
	c.machine = m
	c.resource.OnReleased(func(*access.Resource) {
		m.onResourceReleased()
	})

	k.chunks[pos] = c
	k.counts[KindUnloaded]++
	k.list.Add(c)
	k.ctx.Logger.Trace("Чанк %v создан (%v)", pos, r.Level())
	return c
}

// deactivate выгружает чанк и возвращает его в пул
func (k *Container) deactivate(c *Chunk) {
	pos := c.position
	from := c.machine.state.Kind()
	c.machine.release()

	k.fireTransition(c, from, KindUnloaded)
	k.counts[KindUnloaded]--

	if hook := k.ctx.Deactivate; hook != nil {
		hook(c)
	}

	delete(k.chunks, pos)
	delete(k.active, pos)
	if r := k.requests[pos]; r != nil && r.IsEmpty() {
		delete(k.requests, pos)
	}
	k.pool.Put(c)
	k.ctx.Logger.Trace("Чанк %v выгружен", pos)
}

// Update разбирает очередь завершений и шагает чанки выбранной стратегией
func (k *Container) Update(o *access.Owner) int {
	k.ctx.Owner.Check(o)
	return k.list.Update()
}

// GetActive активный чанк позиции
func (k *Container) GetActive(pos vec.Vec3) *Chunk {
	return k.active[pos]
}

// GetAny чанк позиции в любом состоянии
func (k *Container) GetAny(pos vec.Vec3) *Chunk {
	return k.chunks[pos]
}

// ForEach обходит все чанки
func (k *Container) ForEach(fn func(c *Chunk)) {
	for _, c := range k.chunks {
		fn(c)
	}
}

// Count число чанков в памяти
func (k *Container) Count() int {
	return len(k.chunks)
}

// ActiveCount число активных чанков
func (k *Container) ActiveCount() int {
	return len(k.active)
}

// CountByKind число чанков в состоянии k
func (k *Container) CountByKind(kind Kind) int {
	return k.counts[kind]
}

// ListLen число чанков, ожидающих шага
func (k *Container) ListLen() int {
	return k.list.Len()
}

// Pool пул чанков
func (k *Container) Pool() *Pool {
	return k.pool
}

// OnTransition подписывает обработчик на смену состояний. Обработчик вызывается
// в цикле-владельце и не должен сохранять ссылку на чанк.
func (k *Container) OnTransition(fn func(Transition)) {
	k.handlers = append(k.handlers, fn)
}

// SetStrategy меняет стратегию планирования
func (k *Container) SetStrategy(o *access.Owner, s schedule.Strategy) {
	k.ctx.Owner.Check(o)
	k.list.SetStrategy(s)
}

// Strategy текущая стратегия
func (k *Container) Strategy() schedule.Strategy {
	return k.list.Strategy()
}

// BeginSavingAll запрашивает сохранение всех изменённых чанков. Возвращает число запросов.
func (k *Container) BeginSavingAll(o *access.Owner) int {
	k.ctx.Owner.Check(o)
	n := 0
	for _, c := range k.chunks {
		if c.IsDirty() && c.machine.request(KindSaving) {
			n++
		}
	}
	return n
}

// IsIdle нет чанков в списке, незавершённых задач и необработанных завершений
func (k *Container) IsIdle() bool {
	return k.list.Len() == 0 && k.list.Pending() == 0 && k.ctx.Dispatcher.InFlight() == 0
}

func (k *Container) registerActive(c *Chunk) {
	k.active[c.position] = c
}

func (k *Container) unregisterActive(c *Chunk) {
	delete(k.active, c.position)
}

func (k *Container) notifyNeighborUsable(c *Chunk) {
	c.position.ForEachNeighbor(func(p vec.Vec3) {
		if n := k.chunks[p]; n != nil {
			n.machine.onNeighborUsable()
		}
	})
}

func (k *Container) fireTransition(c *Chunk, from, to Kind) {
	k.counts[from]--
	k.counts[to]++
	t := Transition{Chunk: c, From: from, To: to}
	for _, h := range k.handlers {
		h(t)
	}
}
