package request

import "fmt"

// Level уровень востребованности чанка. Убывает на единицу за каждый шаг
// манхэттенского расстояния от источника запроса.
type Level byte

const (
	// Lowest нижняя граница: чанк не нужен
	Lowest Level = 0
	// LevelUnloaded чанк может быть выгружен
	LevelUnloaded Level = Lowest
	// LevelLoaded чанк должен находиться в памяти
	LevelLoaded Level = 1
	// LevelActive чанк должен быть активен
	LevelActive Level = LevelLoaded + Spacing
	// LevelSimulated чанк должен симулироваться
	LevelSimulated Level = LevelActive + Spacing
	// Highest уровень, который получает чанк от прямого запроса
	Highest Level = LevelSimulated
)

// Spacing расстояние между порогами. Равно максимальному манхэттенскому
// расстоянию внутри окрестности из 26 соседей: все соседи активного чанка
// загружены, все соседи симулируемого чанка активны.
const Spacing = 3

// Radius максимальное расстояние, на которое распространяется запрос
const Radius = int(Highest - LevelLoaded)

// Decay возвращает уровень на расстоянии distance от источника
func (l Level) Decay(distance int) Level {
	if distance <= 0 {
		return l
	}
	if distance >= int(l-Lowest) {
		return Lowest
	}
	return l - Level(distance)
}

// IsLoaded чанк должен быть загружен
func (l Level) IsLoaded() bool {
	return l >= LevelLoaded
}

// IsActive чанк должен быть активен
func (l Level) IsActive() bool {
	return l >= LevelActive
}

// IsSimulated чанк должен симулироваться
func (l Level) IsSimulated() bool {
	return l >= LevelSimulated
}

// String возвращает строковое представление уровня
func (l Level) String() string {
	var name string
	switch {
	case l.IsSimulated():
		name = "simulated"
	case l.IsActive():
		name = "active"
	case l.IsLoaded():
		name = "loaded"
	default:
		name = "unloaded"
	}
	return fmt.Sprintf("%s(%d)", name, byte(l))
}

// Max возвращает больший из уровней
func Max(a, b Level) Level {
	if a > b {
		return a
	}
	return b
}
