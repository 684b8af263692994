package generation

import (
	"github.com/aquilax/go-perlin"
)

// Параметры шума Перлина
const (
	noiseAlpha   = 2.0 // Сглаживание шума
	noiseBeta    = 2.0 // Частота шума
	noiseOctaves = 3   // Количество октав
)

// Noise шум Перлина с фиксированным сидом. Только чтение после создания,
// поэтому безопасен для фоновых задач.
type Noise struct {
	perlin *perlin.Perlin
}

// NewNoise создаёт шум с указанным сидом
func NewNoise(seed int64) *Noise {
	return &Noise{perlin: perlin.NewPerlin(noiseAlpha, noiseBeta, noiseOctaves, seed)}
}

// Raw2D значение шума в диапазоне примерно от -1 до 1
func (n *Noise) Raw2D(x, y float64) float64 {
	return n.perlin.Noise2D(x, y)
}

// Value2D значение шума от 0 до 1
func (n *Noise) Value2D(x, y float64) float64 {
	v := (n.perlin.Noise2D(x, y) + 1.0) / 2.0
	switch {
	case v < 0:
		return 0
	case v > 1:
		return 1
	}
	return v
}
