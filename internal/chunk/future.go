package chunk

import (
	"context"
	"errors"
	"fmt"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/annel0/chunk-engine/internal/vec"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/semaphore"
)

// ErrJobPanicked фоновая задача завершилась паникой
var ErrJobPanicked = errors.New("chunk: паника в фоновой задаче")

const tracerName = "github.com/annel0/chunk-engine/internal/chunk"

// Job фоновая работа над чанком
type Job func(ctx context.Context) error

// Future результат фоновой задачи. Цикл-владелец не ждёт его, а проверяет
// после того, как очередь завершений вернула чанк в список.
type Future struct {
	name string
	done atomic.Bool
	err  error
}

// Name имя задачи
func (f *Future) Name() string {
	return f.name
}

// Done задача завершилась
func (f *Future) Done() bool {
	return f.done.Load()
}

// Err ошибка задачи. Имеет смысл только после Done.
func (f *Future) Err() error {
	if !f.done.Load() {
		return nil
	}
	return f.err
}

// Dispatcher запускает фоновые задачи с ограничением параллелизма
type Dispatcher struct {
	sem      *semaphore.Weighted
	tracer   trace.Tracer
	inFlight atomic.Int64
	wg       sync.WaitGroup
}

// NewDispatcher создаёт диспетчер на workers одновременных задач
func NewDispatcher(workers int) *Dispatcher {
	if workers <= 0 {
		workers = 1
	}
	return &Dispatcher{
		sem:    semaphore.NewWeighted(int64(workers)),
		tracer: otel.Tracer(tracerName),
	}
}

// Go запускает задачу. done вызывается из фоновой горутины после завершения.
func (d *Dispatcher) Go(name string, pos vec.Vec3, job Job, done func(*Future)) *Future {
	f := &Future{name: name}
	d.inFlight.Add(1)
	d.wg.Add(1)

	go func() {
		defer d.wg.Done()

		ctx := context.Background()
		if err := d.sem.Acquire(ctx, 1); err != nil {
			f.err = err
		} else {
			f.err = d.execute(ctx, name, pos, job)
			d.sem.Release(1)
		}

		f.done.Store(true)
		if done != nil {
			done(f)
		}
		d.inFlight.Add(-1)
	}()

	return f
}

func (d *Dispatcher) execute(ctx context.Context, name string, pos vec.Vec3, job Job) (err error) {
	ctx, span := d.tracer.Start(ctx, name, trace.WithAttributes(
		attribute.Int("chunk.x", pos.X),
		attribute.Int("chunk.y", pos.Y),
		attribute.Int("chunk.z", pos.Z),
	))
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %s %v: %v\n%s", ErrJobPanicked, name, pos, r, debug.Stack())
		}
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	return job(ctx)
}

// InFlight число незавершённых задач
func (d *Dispatcher) InFlight() int64 {
	return d.inFlight.Load()
}

// Wait ждёт завершения всех запущенных задач
func (d *Dispatcher) Wait() {
	d.wg.Wait()
}
