package chunk

import (
	"strings"

	"github.com/annel0/chunk-engine/internal/access"
)

// Kind вид состояния чанка
type Kind uint8

const (
	KindUnloaded Kind = iota
	KindLoading
	KindGenerating
	KindDecorating
	KindSaving
	KindActive
	KindHidden
	KindDeactivating
)

var kindNames = [...]string{
	KindUnloaded:     "unloaded",
	KindLoading:      "loading",
	KindGenerating:   "generating",
	KindDecorating:   "decorating",
	KindSaving:       "saving",
	KindActive:       "active",
	KindHidden:       "hidden",
	KindDeactivating: "deactivating",
}

// Kinds все виды состояний в порядке объявления
func Kinds() []Kind {
	return []Kind{
		KindUnloaded, KindLoading, KindGenerating, KindDecorating,
		KindSaving, KindActive, KindHidden, KindDeactivating,
	}
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// WaitMode набор условий, которых ждёт состояние
type WaitMode uint8

const (
	// WaitForCompletion ожидается завершение фоновой задачи
	WaitForCompletion WaitMode = 1 << iota
	// WaitForResource ресурс чанка занят
	WaitForResource
	// WaitForNeighborUsability ожидается готовность соседа
	WaitForNeighborUsability
	// WaitForTransitionRequest ожидается внешний запрос перехода
	WaitForTransitionRequest
	// WaitForRequestLevelChange ожидается изменение уровня запроса
	WaitForRequestLevelChange
)

// Has проверяет наличие любого из флагов
func (w WaitMode) Has(mode WaitMode) bool {
	return w&mode != 0
}

func (w WaitMode) String() string {
	if w == 0 {
		return "none"
	}
	var parts []string
	names := []struct {
		mode WaitMode
		name string
	}{
		{WaitForCompletion, "completion"},
		{WaitForResource, "resource"},
		{WaitForNeighborUsability, "neighbor"},
		{WaitForTransitionRequest, "transition"},
		{WaitForRequestLevelChange, "level"},
	}
	for _, n := range names {
		if w.Has(n.mode) {
			parts = append(parts, n.name)
		}
	}
	return strings.Join(parts, "|")
}

// State состояние конечного автомата чанка. Набор реализаций закрыт:
// внешние пакеты получают состояния только через конструкторы NewActive и NewHidden.
type State interface {
	Kind() Kind
	// Access доступ, который состояние удерживает на ресурсе чанка
	Access() access.Access
	// AllowSharing чанк считается активным, пока состояние вошло
	AllowSharing() bool
	// AllowStealing токен записи можно отобрать
	AllowStealing() bool
	// CanDiscard состояние можно заменить деактивацией
	CanDiscard() bool
	// AcceptsRequests состояние обслуживает очередь внешних запросов
	AcceptsRequests() bool

	// inheritsAccess при входе состояние забирает токен предыдущего, если его доступа хватает
	inheritsAccess() bool
	enter(m *machine)
	update(m *machine)
	exit(m *machine)
	cleanup(m *machine)
}

// traits статические свойства состояния
type traits struct {
	access          access.Access
	allowSharing    bool
	allowStealing   bool
	canDiscard      bool
	acceptsRequests bool
	inheritAccess   bool
}

func (t traits) Access() access.Access { return t.access }
func (t traits) AllowSharing() bool    { return t.allowSharing }
func (t traits) AllowStealing() bool   { return t.allowStealing }
func (t traits) CanDiscard() bool      { return t.canDiscard }
func (t traits) AcceptsRequests() bool { return t.acceptsRequests }
func (t traits) inheritsAccess() bool  { return t.inheritAccess }

// hooks пустые реализации необязательных хуков
type hooks struct{}

func (hooks) enter(*machine)   {}
func (hooks) exit(*machine)    {}
func (hooks) cleanup(*machine) {}

// Activator выбирает состояние после загрузки, генерации или сохранения.
// nil означает, что активация сейчас невозможна и чанк уходит в Hidden.
type Activator func(c *Chunk) State

// Deactivator вызывается перед возвратом выгружаемого чанка в пул
type Deactivator func(c *Chunk)

// Transition событие смены состояния
type Transition struct {
	Chunk *Chunk
	From  Kind
	To    Kind
}

// requestQueue FIFO внешних запросов перехода без повторов по виду
type requestQueue struct {
	kinds []Kind
}

func (q *requestQueue) push(k Kind) bool {
	for _, existing := range q.kinds {
		if existing == k {
			return false
		}
	}
	q.kinds = append(q.kinds, k)
	return true
}

func (q *requestQueue) pop() (Kind, bool) {
	if len(q.kinds) == 0 {
		return 0, false
	}
	k := q.kinds[0]
	q.kinds = q.kinds[1:]
	return k, true
}

func (q *requestQueue) remove(k Kind) {
	for i, existing := range q.kinds {
		if existing == k {
			q.kinds = append(q.kinds[:i], q.kinds[i+1:]...)
			return
		}
	}
}

func (q *requestQueue) len() int {
	return len(q.kinds)
}
