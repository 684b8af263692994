package chunk

import (
	"context"
	"fmt"

	"github.com/annel0/chunk-engine/internal/access"
	"github.com/annel0/chunk-engine/internal/request"
)

// maxSaveAttempts после стольких неудачных сохранений подряд чанк выгружается без сохранения
const maxSaveAttempts = 3

const idleWait = WaitForNeighborUsability | WaitForTransitionRequest | WaitForRequestLevelChange

// NewActive состояние активного чанка
func NewActive() State {
	return &active{traits: traits{
		access:          access.Write,
		allowSharing:    true,
		allowStealing:   true,
		canDiscard:      true,
		acceptsRequests: true,
	}}
}

// NewHidden состояние загруженного, но неактивного чанка
func NewHidden() State {
	return newHidden()
}

func newHidden() *hidden {
	return &hidden{traits: traits{
		access:          access.Write,
		allowStealing:   true,
		canDiscard:      true,
		acceptsRequests: true,
	}}
}

func newUnloaded() State {
	return &unloaded{traits: traits{access: access.Write}}
}

func newLoading() State {
	return &loading{traits: traits{access: access.Write}}
}

func newGenerating() State {
	return &generating{traits: traits{access: access.Write}}
}

func newDecorating(guards []*access.Guard, hood *Neighborhood) State {
	return &decorating{traits: traits{access: access.Write, inheritAccess: true}, guards: guards, hood: hood}
}

func newSaving() State {
	return &saving{traits: traits{access: access.Read}}
}

func newDeactivating() State {
	return &deactivating{traits: traits{access: access.Write}}
}

// requestedState состояние для внешнего запроса из очереди
func requestedState(k Kind) State {
	switch k {
	case KindSaving:
		return newSaving()
	case KindHidden:
		h := newHidden()
		h.hold = true
		return h
	default:
		panic(fmt.Sprintf("chunk: запрос перехода в %v не поддерживается", k))
	}
}

// --- unloaded ---

type unloaded struct {
	traits
	hooks
}

func (*unloaded) Kind() Kind { return KindUnloaded }

func (*unloaded) update(m *machine) {
	m.setNext(newLoading())
}

// --- loading ---

type loading struct {
	traits
	hooks
	result  LoadingResult
	loadErr error
}

func (*loading) Kind() Kind { return KindLoading }

func (s *loading) update(m *machine) {
	c := m.chunk
	ctx := m.ctx()

	if ctx.Persistence == nil {
		m.setNext(newGenerating())
		return
	}

	if m.future == nil {
		persistence := ctx.Persistence
		pos := c.position
		m.run("chunk.load", func(context.Context) error {
			s.result, s.loadErr = persistence.Load(pos, c)
			return nil
		})
		return
	}
	if !m.future.Done() {
		m.waitFor(WaitForCompletion)
		return
	}

	if err := m.future.Err(); err != nil {
		s.result, s.loadErr = LoadFormatError, err
	}
	if s.result == LoadSuccess && !c.CanBeActive() {
		s.result = LoadFormatError
		s.loadErr = fmt.Errorf("чанк %v загружен без центрального декора", c.position)
	}
	if ctx.OnLoaded != nil {
		ctx.OnLoaded(c, s.result)
	}

	switch s.result {
	case LoadSuccess:
		c.generated = true
		c.dirty.Store(false)
		ctx.Logger.Trace("Чанк %v загружен", c.position)
		m.setNext(m.tryActivation())
		return
	case LoadIOError:
		ctx.Logger.Debug("Чанк %v не найден в хранилище (%v), генерируем", c.position, s.loadErr)
	default:
		ctx.Logger.Warn("Чанк %v не загружен: %v: %v, генерируем заново", c.position, s.result, s.loadErr)
	}

	c.clearContent()
	m.setNext(newGenerating())
}

// --- generating ---

type generating struct {
	traits
	hooks
}

func (*generating) Kind() Kind { return KindGenerating }

func (*generating) update(m *machine) {
	c := m.chunk
	ctx := m.ctx()

	if m.future == nil {
		gen := ctx.Generator
		pos := c.position
		m.run("chunk.generate", func(jctx context.Context) error {
			c.EnsureSections()

			gc := gen.CreateGenerationContext(pos)
			defer gc.Close()
			if err := gc.Generate(jctx, c); err != nil {
				return err
			}

			dc := gen.CreateDecorationContext(pos, Extents{Min: pos, Max: pos})
			defer dc.Close()
			return dc.DecorateCenter(jctx, c)
		})
		return
	}
	if !m.future.Done() {
		m.waitFor(WaitForCompletion)
		return
	}

	if err := m.future.Err(); err != nil {
		ctx.Logger.Error("Генерация чанка %v завершилась ошибкой: %v", c.position, err)
		panic(fmt.Errorf("%w: %v: %w", ErrGenerationFailed, c.position, err))
	}

	c.decoration |= DecorationCenter
	c.generated = true
	c.MarkDirty()
	m.setNext(m.tryActivation())
}

// --- decorating ---

type decorating struct {
	traits
	hooks
	guards []*access.Guard
	hood   *Neighborhood
}

func (*decorating) Kind() Kind { return KindDecorating }

func (s *decorating) update(m *machine) {
	c := m.chunk
	ctx := m.ctx()

	if m.future == nil {
		gen := ctx.Generator
		hood := s.hood
		m.run("chunk.decorate", func(jctx context.Context) error {
			dc := gen.CreateDecorationContext(c.position, hood.Extents())
			defer dc.Close()
			return dc.Decorate(jctx, hood)
		})
		return
	}
	if !m.future.Done() {
		m.waitFor(WaitForCompletion)
		return
	}

	if err := m.future.Err(); err != nil {
		ctx.Logger.Error("Декорирование углов %v чанка %v завершилось ошибкой: %v", s.hood.Corners, c.position, err)
		panic(fmt.Errorf("%w: %v: %w", ErrDecorationFailed, c.position, err))
	}

	s.hood.markCorners()
	m.setNext(m.tryActivation())
}

func (s *decorating) cleanup(*machine) {
	access.ReleaseAll(s.guards)
	s.guards = nil
}

// --- saving ---

type saving struct {
	traits
	hooks
}

func (*saving) Kind() Kind { return KindSaving }

func (*saving) update(m *machine) {
	c := m.chunk
	ctx := m.ctx()

	if ctx.Persistence == nil {
		m.setNext(m.tryActivation())
		return
	}

	if m.future == nil {
		persistence := ctx.Persistence
		m.run("chunk.save", func(context.Context) error {
			return persistence.Save(c)
		})
		return
	}
	if !m.future.Done() {
		m.waitFor(WaitForCompletion)
		return
	}

	if err := m.future.Err(); err != nil {
		c.saveFailures++
		ctx.Logger.Error("Не удалось сохранить чанк %v (попытка %d): %v", c.position, c.saveFailures, err)
	} else {
		c.saveFailures = 0
		c.dirty.Store(false)
		ctx.Logger.Trace("Чанк %v сохранён", c.position)
	}
	if ctx.OnSaved != nil {
		ctx.OnSaved(c, m.future.Err())
	}

	m.setNext(m.tryActivation())
}

// --- active ---

type active struct {
	traits
}

func (*active) Kind() Kind { return KindActive }

func (*active) enter(m *machine) {
	c := m.chunk
	if !c.CanBeActive() {
		panic(fmt.Errorf("%w: %v", ErrActivationInvariant, c.position))
	}
	c.activatedOnce = true
	m.neighborUsable = true
	c.container.registerActive(c)
	if hook := m.ctx().OnActivated; hook != nil {
		hook(c)
	}
}

func (*active) update(m *machine) {
	c := m.chunk
	if !c.Level().IsActive() {
		m.setNext(newHidden())
		return
	}
	if m.takeNeighborUsable() && !c.decoration.IsComplete() {
		if d := c.container.tryBeginDecoration(c); d != nil {
			m.setNext(d)
			return
		}
	}
	m.waitFor(idleWait)
}

func (*active) exit(m *machine) {
	c := m.chunk
	c.container.unregisterActive(c)
	if hook := m.ctx().OnDeactivated; hook != nil {
		hook(c)
	}
}

func (*active) cleanup(*machine) {}

// --- hidden ---

type hidden struct {
	traits
	hooks
	// hold не активировать чанк, пока не изменится уровень запроса
	hold      bool
	heldLevel request.Level
}

func (*hidden) Kind() Kind { return KindHidden }

func (s *hidden) enter(m *machine) {
	m.neighborUsable = true
	s.heldLevel = m.chunk.Level()
}

func (s *hidden) update(m *machine) {
	c := m.chunk

	if m.takeNeighborUsable() && c.Level().IsLoaded() && !c.decoration.IsComplete() {
		if d := c.container.tryBeginDecoration(c); d != nil {
			m.setNext(d)
			return
		}
	}

	if s.hold && c.Level() != s.heldLevel {
		s.hold = false
	}
	if !s.hold && c.Level().IsActive() {
		if next := m.tryActivation(); next.Kind() != KindHidden {
			m.setNext(next)
			return
		}
	}

	m.waitFor(idleWait)
}

// --- deactivating ---

type deactivating struct {
	traits
	hooks
}

func (*deactivating) Kind() Kind { return KindDeactivating }

func (*deactivating) update(m *machine) {
	c := m.chunk
	ctx := m.ctx()

	if c.Level().IsLoaded() {
		m.setNext(m.tryActivation())
		return
	}

	if c.IsDirty() && ctx.Persistence != nil {
		if c.saveFailures < maxSaveAttempts {
			m.setNext(newSaving())
			return
		}
		ctx.Logger.Error("Чанк %v выгружается без сохранения после %d неудачных попыток", c.position, c.saveFailures)
	}

	c.container.deactivate(c)
}
