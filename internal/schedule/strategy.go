package schedule

// Strategy определяет, какие элементы получат шаг в текущем кадре
type Strategy interface {
	// Process выполняет шаги и возвращает их число
	Process(entries []Stepper) int
	// Name имя стратегии для логов и метрик
	Name() string
}

// MaxThroughput шагает все элементы без ограничений. Используется при массовой
// загрузке мира, когда частота кадров не важна.
type MaxThroughput struct{}

// Process шагает каждый элемент один раз
func (MaxThroughput) Process(entries []Stepper) int {
	for _, e := range entries {
		e.Step()
	}
	return len(entries)
}

// Name имя стратегии
func (MaxThroughput) Name() string {
	return "max-throughput"
}

// Параметры бюджета по умолчанию
const (
	DefaultBudgetCeiling  = 250
	DefaultBudgetRecovery = 25
	DefaultBudgetFloor    = 1
)

// LowImpact шагает все элементы, нужные для симуляции, и ограниченное бюджетом
// число остальных. Бюджет расходуется по одному на каждый шаг без приоритета
// и пополняется на recovery в конце каждого кадра, но не выше ceiling.
// Не менее floor шагов без приоритета выполняется в любом кадре.
type LowImpact struct {
	budget   int
	ceiling  int
	recovery int
	floor    int
	cursor   int
}

// NewLowImpact создаёт стратегию с полным бюджетом
func NewLowImpact(ceiling, recovery, floor int) *LowImpact {
	if ceiling <= 0 {
		ceiling = DefaultBudgetCeiling
	}
	if recovery <= 0 {
		recovery = DefaultBudgetRecovery
	}
	if floor < 0 {
		floor = 0
	}
	return &LowImpact{
		budget:   ceiling,
		ceiling:  ceiling,
		recovery: recovery,
		floor:    floor,
	}
}

// Budget текущий бюджет
func (s *LowImpact) Budget() int {
	return s.budget
}

// Name имя стратегии
func (s *LowImpact) Name() string {
	return "low-impact"
}

// Process выполняет шаги в пределах бюджета. Остальные элементы обходятся по кругу,
// чтобы ни один не голодал дольше, чем backlog/recovery кадров.
func (s *LowImpact) Process(entries []Stepper) int {
	steps := 0
	rest := make([]Stepper, 0, len(entries))

	for _, e := range entries {
		if e.IsRequestedToSimulate() {
			e.Step()
			steps++
		} else {
			rest = append(rest, e)
		}
	}

	allowance := max(s.budget, s.floor)
	n := min(allowance, len(rest))

	if len(rest) > 0 {
		start := s.cursor % len(rest)
		for i := 0; i < n; i++ {
			rest[(start+i)%len(rest)].Step()
		}
		s.cursor = start + n
	}
	steps += n

	s.budget = max(s.budget-n, 0)
	s.budget = min(s.budget+s.recovery, s.ceiling)

	return steps
}
