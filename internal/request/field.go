package request

import "github.com/annel0/chunk-engine/internal/vec"

// Field распространяет уровень от источников по манхэттенскому расстоянию.
// Уровень позиции: максимум по всем источникам.
type Field struct {
	levels map[vec.Vec3]Level
}

// Propagate вычисляет поле для набора источников с уровнем Highest
func Propagate(sources []vec.Vec3) *Field {
	f := &Field{levels: make(map[vec.Vec3]Level, len(sources)*64)}
	for _, src := range sources {
		src.ForEachWithin(Radius, func(p vec.Vec3, distance int) {
			l := Highest.Decay(distance)
			if l > f.levels[p] {
				f.levels[p] = l
			}
		})
	}
	return f
}

// At уровень в позиции (Lowest вне поля)
func (f *Field) At(p vec.Vec3) Level {
	if f == nil {
		return Lowest
	}
	return f.levels[p]
}

// Len число позиций с ненулевым уровнем
func (f *Field) Len() int {
	if f == nil {
		return 0
	}
	return len(f.levels)
}

// ForEach обходит все позиции поля
func (f *Field) ForEach(fn func(p vec.Vec3, l Level)) {
	if f == nil {
		return
	}
	for p, l := range f.levels {
		fn(p, l)
	}
}
