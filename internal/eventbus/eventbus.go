package eventbus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"
)

// Envelope событие движка в том виде, в каком оно уходит в шину
type Envelope struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"ts"`
	Source    string    `json:"source"`
	EventType string    `json:"type"`
	Version   int       `json:"v"`
	// Chunk ключ чанка "x,y,z", пустой у событий без позиции
	Chunk    string   `json:"chunk,omitempty"`
	Priority Priority `json:"prio"`
	Payload  []byte   `json:"payload"`
}

// Filter пустое поле пропускает всё
type Filter struct {
	Types   []string
	Sources []string
	Chunks  []string
}

// Match подходит ли событие под фильтр
func (f Filter) Match(ev *Envelope) bool {
	return anyOf(ev.EventType, f.Types) && anyOf(ev.Source, f.Sources) && anyOf(ev.Chunk, f.Chunks)
}

func anyOf(v string, set []string) bool {
	if len(set) == 0 {
		return true
	}
	for _, s := range set {
		if s == v {
			return true
		}
	}
	return false
}

// Subscription отписка
type Subscription interface {
	Unsubscribe()
}

// Handler вызывается на горутине шины
type Handler func(ctx context.Context, ev *Envelope)

// Stats счётчики шины
type Stats struct {
	Published uint64
	Consumed  uint64
	Dropped   uint64
	InFlight  int
}

// EventBus шина событий чанков: в памяти процесса или NATS JetStream
type EventBus interface {
	Publish(ctx context.Context, ev *Envelope) error
	Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error)
	Metrics() Stats
	Close() error
}

// ErrClosed публикация в закрытую шину
var ErrClosed = errors.New("eventbus: шина закрыта")

// memoryBus очередь фиксированной ёмкости и одна горутина рассылки.
// Обработчики вызываются параллельно, каждый на своей горутине.
type memoryBus struct {
	queue chan *Envelope

	mu     sync.RWMutex
	subs   map[int]*subscriber
	nextID int

	// gate защищает закрытие queue; блокирующая публикация держит его на чтение
	gate   sync.RWMutex
	closed bool

	published atomic.Uint64
	consumed  atomic.Uint64
	dropped   atomic.Uint64

	done     chan struct{}
	handlers sync.WaitGroup
}

type subscriber struct {
	filter  Filter
	handler Handler
	ctx     context.Context
	cancel  context.CancelFunc
}

// NewMemoryBus шина в памяти с очередью на capacity событий
func NewMemoryBus(capacity int) EventBus {
	b := &memoryBus{
		queue: make(chan *Envelope, capacity),
		subs:  make(map[int]*subscriber),
		done:  make(chan struct{}),
	}
	go b.dispatch()
	return b
}

// Publish при полной очереди отбрасывает переходы и ждёт места для
// событий с приоритетом PriorityBlocking и выше.
func (b *memoryBus) Publish(ctx context.Context, ev *Envelope) error {
	b.gate.RLock()
	defer b.gate.RUnlock()
	if b.closed {
		return ErrClosed
	}

	select {
	case b.queue <- ev:
	default:
		if ev.Priority.Droppable() {
			b.dropped.Add(1)
			return nil
		}
		select {
		case b.queue <- ev:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	b.published.Add(1)
	return nil
}

func (b *memoryBus) Subscribe(ctx context.Context, f Filter, h Handler) (Subscription, error) {
	cctx, cancel := context.WithCancel(ctx)
	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = &subscriber{filter: f, handler: h, ctx: cctx, cancel: cancel}
	b.mu.Unlock()
	return &memSub{bus: b, id: id}, nil
}

func (b *memoryBus) Metrics() Stats {
	return Stats{
		Published: b.published.Load(),
		Consumed:  b.consumed.Load(),
		Dropped:   b.dropped.Load(),
		InFlight:  len(b.queue),
	}
}

// Close доставляет уже принятые события и ждёт обработчиков
func (b *memoryBus) Close() error {
	b.gate.Lock()
	if b.closed {
		b.gate.Unlock()
		return nil
	}
	b.closed = true
	close(b.queue)
	b.gate.Unlock()

	<-b.done
	b.handlers.Wait()
	return nil
}

func (b *memoryBus) dispatch() {
	defer close(b.done)
	for ev := range b.queue {
		for _, s := range b.matching(ev) {
			b.handlers.Add(1)
			go b.deliver(s, ev)
		}
	}
}

func (b *memoryBus) matching(ev *Envelope) []*subscriber {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]*subscriber, 0, len(b.subs))
	for _, s := range b.subs {
		if s.filter.Match(ev) {
			out = append(out, s)
		}
	}
	return out
}

func (b *memoryBus) deliver(s *subscriber, ev *Envelope) {
	defer b.handlers.Done()
	if s.ctx.Err() != nil {
		return
	}
	s.handler(s.ctx, ev)
	b.consumed.Add(1)
}

type memSub struct {
	bus *memoryBus
	id  int
}

func (s *memSub) Unsubscribe() {
	s.bus.mu.Lock()
	if sub, ok := s.bus.subs[s.id]; ok {
		sub.cancel()
		delete(s.bus.subs, s.id)
	}
	s.bus.mu.Unlock()
}
