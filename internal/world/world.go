// Package world мир-владелец чанков: цикл тиков, наблюдатели, политика
// активации, переключение стратегий, сохранение при остановке и снимок
// состояния для отладочного API.
package world

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/annel0/chunk-engine/internal/access"
	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/config"
	"github.com/annel0/chunk-engine/internal/eventbus"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/metrics"
	"github.com/annel0/chunk-engine/internal/schedule"
	"github.com/annel0/chunk-engine/internal/vec"
)

var (
	// ErrShutdownTimeout чанки не выгрузились за отведённое число тиков
	ErrShutdownTimeout = errors.New("world: остановка не завершилась")
	// ErrChunkNotActive блок принадлежит неактивному чанку
	ErrChunkNotActive = errors.New("world: чанк не активен")
	// ErrObserverExists наблюдатель с таким именем уже есть
	ErrObserverExists = errors.New("world: наблюдатель уже существует")
)

// Deps внешние зависимости мира. Persistence, Bus и Metrics необязательны.
type Deps struct {
	Generator   chunk.Generator
	Persistence chunk.Persistence
	Bus         eventbus.EventBus
	Metrics     *metrics.Metrics
	Logger      *logging.Logger
	Rules       *Rules
}

// World владеет контейнером чанков. Все методы, принимающие *access.Owner,
// вызываются из одной горутины цикла тиков. Snapshot безопасен из любой горутины.
type World struct {
	owner      *access.Owner
	cfg        config.Config
	container  *chunk.Container
	dispatcher *chunk.Dispatcher
	deps       Deps
	rules      Rules
	logger     *logging.Logger

	observers   map[string]*Observer
	interactive bool
	tick        uint64
	lastSave    uint64

	events   chan *eventbus.Envelope
	eventsWG sync.WaitGroup

	snapMu   sync.RWMutex
	snapshot *Snapshot

	cmdMu     sync.Mutex
	commands  []Command
	cmdClosed bool

	closeOnce sync.Once
}

// New создаёт мир. Горутина, вызывающая методы с токеном Owner(), становится циклом-владельцем.
func New(cfg *config.Config, deps Deps) (*World, error) {
	if deps.Logger == nil {
		deps.Logger = logging.GetWorldLogger()
	}

	w := &World{
		owner:       access.NewOwner(),
		cfg:         *cfg,
		dispatcher:  chunk.NewDispatcher(cfg.Scheduling.Workers),
		deps:        deps,
		rules:       DefaultRules(),
		logger:      deps.Logger,
		observers:   make(map[string]*Observer),
		interactive: cfg.Scheduling.Strategy == "low-impact",
		snapshot:    &Snapshot{ByState: map[string]int{}},
	}
	if deps.Rules != nil {
		w.rules = *deps.Rules
	}

	ctx := &chunk.Context{
		Owner:         w.owner,
		Generator:     deps.Generator,
		Persistence:   deps.Persistence,
		Dispatcher:    w.dispatcher,
		Logger:        logging.GetChunkLogger(),
		Activate:      w.activate,
		Reactivate:    w.reactivate,
		Deactivate:    w.onDeactivate,
		OnActivated:   w.onActivated,
		OnDeactivated: w.onDeactivated,
		OnLoaded:      w.onLoaded,
		OnSaved:       w.onSaved,
	}

	container, err := chunk.NewContainer(ctx, w.strategyFor(w.interactive), chunk.NewPool(cfg.World.PoolCapacity))
	if err != nil {
		return nil, fmt.Errorf("создание контейнера чанков: %w", err)
	}
	w.container = container
	container.OnTransition(w.onTransition)

	if deps.Bus != nil {
		buffer := cfg.EventBus.Buffer
		if buffer <= 0 {
			buffer = 1024
		}
		w.events = make(chan *eventbus.Envelope, buffer)
		w.eventsWG.Add(1)
		go w.publishLoop()
	}

	w.logger.Info("🌍 Мир создан: seed=%d, стратегия=%s, потоков=%d",
		cfg.World.Seed, container.Strategy().Name(), cfg.Scheduling.Workers)
	return w, nil
}

// Owner токен цикла-владельца
func (w *World) Owner() *access.Owner {
	return w.owner
}

// Container контейнер чанков
func (w *World) Container() *chunk.Container {
	return w.container
}

// CurrentTick номер последнего тика
func (w *World) CurrentTick() uint64 {
	return w.tick
}

// Tick один кадр: команды из очереди, пересчёт запросов, шаги автоматов, отложенные обновления,
// автосохранение, снимок и метрики. Возвращает число шагов автоматов.
func (w *World) Tick(o *access.Owner) int {
	w.owner.Check(o)
	start := time.Now()
	w.tick++

	w.runCommands(o)
	w.container.ProcessRequests(o)
	stepped := w.container.Update(o)
	w.simulate(o)

	if every := uint64(w.cfg.World.AutosaveTicks); every > 0 && w.deps.Persistence != nil && w.tick-w.lastSave >= every {
		w.lastSave = w.tick
		if n := w.container.BeginSavingAll(o); n > 0 {
			w.logger.Debug("Автосохранение: запрошено сохранение %d чанков", n)
		}
	}

	w.observeMetrics(w.publishSnapshot(time.Since(start)))
	return stepped
}

// SetInteractive переключает стратегию: в интерактивном режиме шаги
// ограничиваются бюджетом, вне его выполняются все
func (w *World) SetInteractive(o *access.Owner, interactive bool) {
	w.owner.Check(o)
	if w.interactive == interactive {
		return
	}
	w.interactive = interactive
	s := w.strategyFor(interactive)
	w.container.SetStrategy(o, s)
	w.logger.Info("Стратегия обновления чанков: %s", s.Name())
}

// IsInteractive включён ли интерактивный режим
func (w *World) IsInteractive() bool {
	return w.interactive
}

func (w *World) strategyFor(interactive bool) schedule.Strategy {
	if !interactive {
		return schedule.MaxThroughput{}
	}
	s := w.cfg.Scheduling
	return schedule.NewLowImpact(s.BudgetCeiling, s.BudgetRecovery, s.BudgetFloor)
}

// SaveAll запрашивает сохранение всех изменённых чанков. Без хранилища ничего не делает.
func (w *World) SaveAll(o *access.Owner) int {
	w.owner.Check(o)
	if w.deps.Persistence == nil {
		return 0
	}
	w.lastSave = w.tick
	return w.container.BeginSavingAll(o)
}

// Shutdown снимает все запросы и крутит тики, пока все чанки не сохранятся
// и не выгрузятся. Не более maxTicks тиков.
func (w *World) Shutdown(o *access.Owner, maxTicks int) error {
	w.owner.Check(o)
	w.logger.Info("Остановка мира: %d чанков в памяти", w.container.Count())

	w.closeCommands(o)
	w.SetInteractive(o, false)
	for _, obs := range w.observers {
		w.container.Release(o, obs.request)
	}
	w.observers = make(map[string]*Observer)

	for i := 0; i < maxTicks; i++ {
		stepped := w.Tick(o)
		if w.container.Count() == 0 && w.container.IsIdle() {
			w.logger.Info("Мир остановлен за %d тиков", i+1)
			return nil
		}
		if stepped == 0 {
			time.Sleep(time.Millisecond)
		}
	}
	return fmt.Errorf("%w: за %d тиков осталось %d чанков", ErrShutdownTimeout, maxTicks, w.container.Count())
}

// Close дожидается фоновых задач и останавливает публикацию событий.
// Вызывается из цикла-владельца после последнего тика.
func (w *World) Close() {
	w.closeOnce.Do(func() {
		w.dispatcher.Wait()
		if w.events != nil {
			close(w.events)
			w.eventsWG.Wait()
		}
	})
}

// ChunkOf позиция чанка и локальная позиция для мировой позиции блока
func ChunkOf(p vec.Vec3) (vec.Vec3, vec.Vec3) {
	return vec.Vec3{
			X: vec.FloorDiv(p.X, chunk.Size),
			Y: vec.FloorDiv(p.Y, chunk.Size),
			Z: vec.FloorDiv(p.Z, chunk.Size),
		}, vec.Vec3{
			X: vec.FloorMod(p.X, chunk.Size),
			Y: vec.FloorMod(p.Y, chunk.Size),
			Z: vec.FloorMod(p.Z, chunk.Size),
		}
}

// GetBlock блок по мировой позиции. false, если чанк не активен.
func (w *World) GetBlock(o *access.Owner, p vec.Vec3) (uint32, bool) {
	w.owner.Check(o)
	cp, local := ChunkOf(p)
	c := w.container.GetActive(cp)
	if c == nil {
		return 0, false
	}
	return c.GetBlock(local), true
}

// SetBlock меняет блок активного чанка через общий токен записи
// и планирует обновление этого блока на следующий тик
func (w *World) SetBlock(o *access.Owner, p vec.Vec3, id uint32) error {
	w.owner.Check(o)
	cp, local := ChunkOf(p)
	c := w.container.GetActive(cp)
	if c == nil {
		return fmt.Errorf("%w: %v", ErrChunkNotActive, cp)
	}
	g := c.SharedGuard(o)
	if g == nil {
		return fmt.Errorf("%w: %v", ErrChunkNotActive, cp)
	}
	if err := c.SetBlock(g, local, id); err != nil {
		return err
	}
	w.scheduleAround(c, local)
	return nil
}
