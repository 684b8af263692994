package vec

import (
	"fmt"
	"math"
)

// Vec3 представляет трехмерный вектор с целочисленными координатами
type Vec3 struct {
	X int
	Y int
	Z int
}

// Vec3Float представляет трехмерный вектор с плавающими координатами
type Vec3Float struct {
	X float64
	Y float64
	Z float64
}

// Zero нулевой вектор
var Zero = Vec3{}

// String возвращает строковое представление в виде (x, y, z)
func (v Vec3) String() string {
	return fmt.Sprintf("(%d, %d, %d)", v.X, v.Y, v.Z)
}

// Equals проверяет равенство векторов
func (v Vec3) Equals(other Vec3) bool {
	return v.X == other.X && v.Y == other.Y && v.Z == other.Z
}

// Add складывает два вектора
func (v Vec3) Add(other Vec3) Vec3 {
	return Vec3{
		X: v.X + other.X,
		Y: v.Y + other.Y,
		Z: v.Z + other.Z,
	}
}

// Sub вычитает вектор
func (v Vec3) Sub(other Vec3) Vec3 {
	return Vec3{
		X: v.X - other.X,
		Y: v.Y - other.Y,
		Z: v.Z - other.Z,
	}
}

// Scale умножает вектор на целое число
func (v Vec3) Scale(k int) Vec3 {
	return Vec3{X: v.X * k, Y: v.Y * k, Z: v.Z * k}
}

// Manhattan возвращает манхэттенское расстояние до другого вектора
func (v Vec3) Manhattan(other Vec3) int {
	return abs(v.X-other.X) + abs(v.Y-other.Y) + abs(v.Z-other.Z)
}

// Chebyshev возвращает расстояние по максимальной компоненте
func (v Vec3) Chebyshev(other Vec3) int {
	return max(abs(v.X-other.X), abs(v.Y-other.Y), abs(v.Z-other.Z))
}

// DistanceTo возвращает квадрат евклидова расстояния до другого вектора
func (v Vec3) DistanceTo(other Vec3) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	dz := v.Z - other.Z
	return float64(dx*dx + dy*dy + dz*dz)
}

// ForEachNeighbor вызывает fn для всех 26 соседей (без самой позиции)
func (v Vec3) ForEachNeighbor(fn func(n Vec3)) {
	for dx := -1; dx <= 1; dx++ {
		for dy := -1; dy <= 1; dy++ {
			for dz := -1; dz <= 1; dz++ {
				if dx == 0 && dy == 0 && dz == 0 {
					continue
				}
				fn(Vec3{X: v.X + dx, Y: v.Y + dy, Z: v.Z + dz})
			}
		}
	}
}

// Neighbors возвращает 26 соседних позиций
func (v Vec3) Neighbors() []Vec3 {
	result := make([]Vec3, 0, 26)
	v.ForEachNeighbor(func(n Vec3) {
		result = append(result, n)
	})
	return result
}

// ForEachWithin вызывает fn для всех позиций на манхэттенском расстоянии <= radius
func (v Vec3) ForEachWithin(radius int, fn func(p Vec3, distance int)) {
	for dx := -radius; dx <= radius; dx++ {
		restX := radius - abs(dx)
		for dy := -restX; dy <= restX; dy++ {
			restY := restX - abs(dy)
			for dz := -restY; dz <= restY; dz++ {
				fn(Vec3{X: v.X + dx, Y: v.Y + dy, Z: v.Z + dz}, abs(dx)+abs(dy)+abs(dz))
			}
		}
	}
}

// ToChunk переводит мировую позицию в координаты чанка заданного размера
func (v Vec3Float) ToChunk(size int) Vec3 {
	return Vec3{
		X: FloorDiv(int(math.Floor(v.X)), size),
		Y: FloorDiv(int(math.Floor(v.Y)), size),
		Z: FloorDiv(int(math.Floor(v.Z)), size),
	}
}

// FloorDiv целочисленное деление с округлением вниз
func FloorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// FloorMod остаток, согласованный с FloorDiv
func FloorMod(a, b int) int {
	return a - FloorDiv(a, b)*b
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
