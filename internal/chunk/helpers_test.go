package chunk

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/annel0/chunk-engine/internal/access"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/request"
	"github.com/annel0/chunk-engine/internal/schedule"
	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/stretchr/testify/require"
)

const (
	testStoneBlock  = 1
	testCenterBlock = 2
	testCornerBlock = 3
)

// fakeGenerator заполняет нижнюю секцию камнем и считает вызовы
type fakeGenerator struct {
	mu        sync.Mutex
	generated map[vec.Vec3]int
	corners   map[vec.Vec3]int
	fail      error
	decorErr  error
	gate      chan struct{}
}

func newFakeGenerator() *fakeGenerator {
	return &fakeGenerator{
		generated: make(map[vec.Vec3]int),
		corners:   make(map[vec.Vec3]int),
	}
}

func (g *fakeGenerator) CreateGenerationContext(pos vec.Vec3) GenerationContext {
	return &fakeGeneration{g: g, pos: pos}
}

func (g *fakeGenerator) CreateDecorationContext(vec.Vec3, Extents) DecorationContext {
	return &fakeDecoration{g: g}
}

func (g *fakeGenerator) generationCount() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	total := 0
	for _, n := range g.generated {
		total += n
	}
	return total
}

func (g *fakeGenerator) cornerCounts() map[vec.Vec3]int {
	g.mu.Lock()
	defer g.mu.Unlock()
	out := make(map[vec.Vec3]int, len(g.corners))
	for k, v := range g.corners {
		out[k] = v
	}
	return out
}

type fakeGeneration struct {
	g   *fakeGenerator
	pos vec.Vec3
}

func (f *fakeGeneration) Generate(_ context.Context, c *Chunk) error {
	if f.g.gate != nil {
		<-f.g.gate
	}
	f.g.mu.Lock()
	f.g.generated[f.pos]++
	err := f.g.fail
	f.g.mu.Unlock()
	if err != nil {
		return err
	}
	c.Section(0).Fill(testStoneBlock)
	return nil
}

func (f *fakeGeneration) Close() {}

type fakeDecoration struct {
	g *fakeGenerator
}

func (f *fakeDecoration) DecorateCenter(_ context.Context, c *Chunk) error {
	c.Section(SectionIndex(1, 1, 1)).Set(0, 0, 0, testCenterBlock)
	return nil
}

func (f *fakeDecoration) Decorate(_ context.Context, n *Neighborhood) error {
	f.g.mu.Lock()
	defer f.g.mu.Unlock()
	if f.g.decorErr != nil {
		return f.g.decorErr
	}
	for _, i := range n.Corners {
		corner := n.Center().Position()
		dir := CornerDirection(i)
		corner = corner.Add(vec.Vec3{X: max(dir.X, 0), Y: max(dir.Y, 0), Z: max(dir.Z, 0)})
		f.g.corners[corner]++

		s := CornerSections(i)[0]
		n.SetBlock(s.Scale(SectionSize), testCornerBlock)
	}
	return nil
}

func (f *fakeDecoration) Close() {}

type savedChunk struct {
	pos        vec.Vec3
	sections   [SectionCount][SectionVolume]uint32
	decoration Decoration
}

// memoryPersistence хранит копии чанков в памяти
type memoryPersistence struct {
	mu    sync.Mutex
	data  map[vec.Vec3]*savedChunk
	saves int
	loads int
	gate  chan struct{}
	// saveErr возвращается каждым Save, чанк при этом не сохраняется
	saveErr error
	// results подменяет итог загрузки для отдельных позиций
	results map[vec.Vec3]LoadingResult
}

func newMemoryPersistence() *memoryPersistence {
	return &memoryPersistence{data: make(map[vec.Vec3]*savedChunk)}
}

func (p *memoryPersistence) Load(pos vec.Vec3, c *Chunk) (LoadingResult, error) {
	if p.gate != nil {
		<-p.gate
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.loads++

	if r, ok := p.results[pos]; ok {
		return r, fmt.Errorf("подменённый итог %v", r)
	}

	saved, ok := p.data[pos]
	if !ok {
		return LoadIOError, errors.New("нет данных")
	}
	if saved.pos != pos {
		return LoadValidationError, errors.New("позиция не совпадает")
	}
	c.EnsureSections()
	for i := range saved.sections {
		c.Section(i).Blocks = saved.sections[i]
	}
	c.RestoreDecoration(saved.decoration)
	return LoadSuccess, nil
}

func (p *memoryPersistence) Save(c *Chunk) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.saves++
	if p.saveErr != nil {
		return p.saveErr
	}

	saved := &savedChunk{pos: c.Position(), decoration: c.Decoration()}
	for i := range saved.sections {
		if s := c.Section(i); s != nil {
			saved.sections[i] = s.Blocks
		}
	}
	p.data[c.Position()] = saved
	return nil
}

func (p *memoryPersistence) stats() (saves, loads, stored int) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.saves, p.loads, len(p.data)
}

type testEnv struct {
	owner       *access.Owner
	container   *Container
	generator   *fakeGenerator
	persistence *memoryPersistence
	actor       *request.Actor
}

type envOption func(ctx *Context)

func withActivator(a Activator) envOption {
	return func(ctx *Context) {
		ctx.Activate = a
		ctx.Reactivate = a
	}
}

func newTestEnv(t *testing.T, opts ...envOption) *testEnv {
	t.Helper()

	env := &testEnv{
		owner:       access.NewOwner(),
		generator:   newFakeGenerator(),
		persistence: newMemoryPersistence(),
		actor:       request.NewActor("test"),
	}
	ctx := &Context{
		Owner:       env.owner,
		Generator:   env.generator,
		Persistence: env.persistence,
		Dispatcher:  NewDispatcher(8),
		Logger:      logging.NewWriterLogger("chunk", io.Discard, logging.OFF),
		Activate:    ActivateWhenRequested,
		Reactivate:  ActivateWhenRequested,
	}
	for _, opt := range opts {
		opt(ctx)
	}

	k, err := NewContainer(ctx, schedule.MaxThroughput{}, nil)
	require.NoError(t, err)
	env.container = k

	t.Cleanup(func() {
		ctx.Dispatcher.Wait()
	})
	return env
}

// settle крутит цикл-владелец, пока контейнер не успокоится
func (e *testEnv) settle(t *testing.T) {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		e.container.ProcessRequests(e.owner)
		e.container.Update(e.owner)
		if e.container.IsIdle() {
			return
		}
		if e.container.ListLen() == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatalf("контейнер не успокоился: %d в списке", e.container.ListLen())
}

// pumpUntil крутит цикл-владелец, пока cond не станет истинным
func (e *testEnv) pumpUntil(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(20 * time.Second)
	for time.Now().Before(deadline) {
		e.container.ProcessRequests(e.owner)
		e.container.Update(e.owner)
		if cond() {
			return
		}
		if e.container.ListLen() == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	t.Fatal("условие не выполнено")
}

// recordTransitions записывает переходы чанка в позиции pos
func (e *testEnv) recordTransitions(pos vec.Vec3) *[]Transition {
	var log []Transition
	e.container.OnTransition(func(tr Transition) {
		if tr.Chunk.Position() == pos {
			log = append(log, Transition{From: tr.From, To: tr.To})
		}
	})
	return &log
}

func kinds(log []Transition) []Kind {
	out := make([]Kind, 0, len(log)+1)
	for i, tr := range log {
		if i == 0 {
			out = append(out, tr.From)
		}
		out = append(out, tr.To)
	}
	return out
}
