package chunk

import "github.com/annel0/chunk-engine/internal/access"

// machine постоянная часть автомата чанка. Переживает смену состояний:
// очередь запросов, токен, флаг входа, маска ожидания и отложенный переход
// принадлежат ей, а не конкретному состоянию.
type machine struct {
	chunk *Chunk
	state State
	guard *access.Guard

	entered bool
	wait    WaitMode
	next    State
	queue   *requestQueue
	future  *Future

	// сосед стал пригоден с момента последней проверки декорирования
	neighborUsable bool

	released bool
}

func newMachine(c *Chunk, initial State) *machine {
	return &machine{
		chunk: c,
		state: initial,
		queue: &requestQueue{},
	}
}

func (m *machine) ctx() *Context {
	return m.chunk.container.ctx
}

func (m *machine) owner() *access.Owner {
	return m.chunk.container.ctx.Owner
}

// setNext задаёт явный переход. Имеет приоритет над очередью запросов.
func (m *machine) setNext(s State) {
	m.next = s
}

// waitFor приостанавливает чанк до наступления одного из событий
func (m *machine) waitFor(mode WaitMode) {
	m.wait |= mode
}

// step один шаг: захват, вход, обновление, выбор следующего состояния
func (m *machine) step() {
	if m.released {
		return
	}
	st := m.state

	if need := st.Access(); need != access.None && m.guard == nil {
		g := m.chunk.resource.TryAcquire(m.owner(), need)
		if g == nil {
			m.wait = WaitForResource
			m.chunk.container.list.Remove(m.chunk)
			return
		}
		m.guard = g
	}

	if !m.entered {
		m.entered = true
		m.queue.remove(st.Kind())
		st.enter(m)
		if m.released {
			return
		}
		if m.holds(access.Write) && st.AllowStealing() {
			m.chunk.usable = true
			m.chunk.container.notifyNeighborUsable(m.chunk)
		}
	}

	m.wait = 0
	st.update(m)
	if m.released {
		return
	}

	if next := m.resolve(); next != nil {
		m.transition(next)
		return
	}

	if m.wait != 0 {
		m.chunk.container.list.Remove(m.chunk)
	}
}

// resolve выбирает следующее состояние: явный переход, затем очередь запросов,
// затем перенаправление в Deactivating, если чанк больше не нужен
func (m *machine) resolve() State {
	next := m.next
	m.next = nil

	if next == nil && m.state.AcceptsRequests() {
		if k, ok := m.queue.pop(); ok {
			next = requestedState(k)
		}
	}

	if !m.chunk.Level().IsLoaded() && m.state.Kind() != KindDeactivating {
		switch {
		case next != nil && next.CanDiscard():
			next = newDeactivating()
		case next == nil && m.state.CanDiscard():
			next = newDeactivating()
		}
	}

	return next
}

// transition выход из текущего состояния и замена его следующим
func (m *machine) transition(next State) {
	prev := m.state

	if m.entered {
		prev.exit(m)
		m.entered = false
	}
	prev.cleanup(m)

	m.wait = 0
	m.future = nil
	m.neighborUsable = false
	m.state = next

	// Токен центра не отпускается между активным состоянием и украшением,
	// иначе соседнее украшение успеет его забрать.
	if g := m.guard; g != nil {
		m.guard = nil
		if next.inheritsAccess() && m.chunk.resource.IsHeldBy(g, next.Access()) {
			m.guard = g
		} else {
			g.Release()
		}
	}

	m.chunk.container.fireTransition(m.chunk, prev.Kind(), next.Kind())
	m.schedule()
}

func (m *machine) holds(a access.Access) bool {
	return m.guard != nil && m.chunk.resource.IsHeldBy(m.guard, a)
}

func (m *machine) canStealAccess() bool {
	return !m.released && m.entered && m.state.AllowStealing() && m.holds(access.Write)
}

// steal отдаёт токен записи вызывающему. Состояние выходит без освобождения
// токена, на его место ставится Hidden, которое снова захватит ресурс
// после возврата токена.
func (m *machine) steal() *access.Guard {
	if !m.canStealAccess() {
		return nil
	}

	g := m.guard
	m.guard = nil

	prev := m.state
	prev.exit(m)
	m.entered = false
	prev.cleanup(m)

	m.next = nil
	m.wait = 0
	m.future = nil
	m.neighborUsable = false
	m.state = newHidden()

	m.chunk.container.fireTransition(m.chunk, prev.Kind(), KindHidden)
	m.schedule()
	return g
}

// request ставит внешний запрос перехода в очередь
func (m *machine) request(k Kind) bool {
	if m.released {
		return false
	}
	if !m.queue.push(k) {
		return false
	}
	m.wake(WaitForTransitionRequest)
	return true
}

// wake возвращает чанк в список, если он ждал одного из событий mode
func (m *machine) wake(mode WaitMode) {
	if m.released || !m.wait.Has(mode) {
		return
	}
	m.wait = 0
	m.schedule()
}

func (m *machine) schedule() {
	if m.released {
		return
	}
	m.chunk.container.list.Add(m.chunk)
}

func (m *machine) onNeighborUsable() {
	m.neighborUsable = true
	m.wake(WaitForNeighborUsability)
}

func (m *machine) onRequestLevelChanged() {
	m.wake(WaitForRequestLevelChange)
}

func (m *machine) onResourceReleased() {
	m.wake(WaitForResource)
}

// takeNeighborUsable сбрасывает и возвращает признак готовности соседа
func (m *machine) takeNeighborUsable() bool {
	v := m.neighborUsable
	m.neighborUsable = false
	return v
}

// run запускает фоновую задачу. Завершение возвращает чанк в список
// через очередь завершений.
func (m *machine) run(name string, job Job) {
	m.waitFor(WaitForCompletion)
	list := m.chunk.container.list
	m.future = m.ctx().Dispatcher.Go(name, m.chunk.position, job, func(f *Future) {
		list.Enqueue(m.chunk, func() {
			if m.future == f {
				m.wait &^= WaitForCompletion
			}
		})
	})
}

// tryActivation выбирает состояние через сильный или слабый активатор.
// Active с неготовыми данными заменяется на Hidden.
func (m *machine) tryActivation() State {
	c := m.chunk
	ctx := m.ctx()

	activator := ctx.Activate
	if c.activatedOnce {
		activator = ctx.Reactivate
	}

	var next State
	if activator != nil {
		next = activator(c)
	}
	if next == nil {
		return newHidden()
	}
	if next.Kind() == KindActive && !c.CanBeActive() {
		ctx.Logger.Warn("Чанк %v не готов к активации (секции=%t, декор=%v), остаётся скрытым",
			c.position, c.SectionsAllocated(), c.decoration)
		return newHidden()
	}
	return next
}

// release завершает работу автомата при выгрузке чанка
func (m *machine) release() {
	if m.released {
		return
	}
	if m.entered {
		m.state.exit(m)
		m.entered = false
	}
	m.state.cleanup(m)
	m.chunk.container.list.Remove(m.chunk)
	m.released = true
	m.wait = 0
	m.next = nil

	if g := m.guard; g != nil {
		m.guard = nil
		g.Release()
	}
}
