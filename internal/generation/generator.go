// Package generation генератор ландшафта на шуме Перлина: рельеф и биомы
// при генерации, деревья и цветы в центре чанка, руды и цветы в общих углах.
package generation

import (
	"context"
	"math/rand"

	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/vec"
)

// Biome тип биома
type Biome int

const (
	BiomePlains Biome = iota
	BiomeDesert
	BiomeForest
	BiomeMountains
	BiomeWater
)

// Пороги нормализованной высоты
const (
	WaterMax      = 0.30 // Ниже - водоём
	MountainStart = 0.80 // Выше - горы
)

// Config параметры генератора
type Config struct {
	Seed        int64
	NoiseScale  float64 // Масштаб основного шума (высота)
	BiomeScale  float64 // Масштаб шума биомов
	BaseHeight  int     // Минимальная высота поверхности
	HeightRange int     // Размах высот над BaseHeight
	SeaLevel    int
	TreeDensity float64 // Доля колонок центра с попыткой посадить дерево
	OreAttempts int     // Попыток поставить руду на секцию угла
}

// DefaultConfig параметры по умолчанию для сида
func DefaultConfig(seed int64) Config {
	return Config{
		Seed:        seed,
		NoiseScale:  0.02,
		BiomeScale:  0.008,
		BaseHeight:  16,
		HeightRange: 12,
		SeaLevel:    20,
		TreeDensity: 0.04,
		OreAttempts: 3,
	}
}

// Generator реализует chunk.Generator
type Generator struct {
	cfg    Config
	height *Noise
	biome  *Noise
	logger *logging.Logger
}

// New создаёт генератор
func New(cfg Config) *Generator {
	if cfg.NoiseScale == 0 {
		cfg.NoiseScale = DefaultConfig(cfg.Seed).NoiseScale
	}
	if cfg.BiomeScale == 0 {
		cfg.BiomeScale = DefaultConfig(cfg.Seed).BiomeScale
	}
	return &Generator{
		cfg:    cfg,
		height: NewNoise(cfg.Seed),
		biome:  NewNoise(cfg.Seed + 42),
		logger: logging.GetComponentLogger(logging.ComponentGenerator),
	}
}

// Config параметры генератора
func (g *Generator) Config() Config {
	return g.cfg
}

// Surface высота поверхности и биом колонки (x, z) в мировых координатах блоков
func (g *Generator) Surface(x, z int) (int, Biome) {
	h := g.height.Value2D(float64(x)*g.cfg.NoiseScale, float64(z)*g.cfg.NoiseScale)
	b := g.biome.Raw2D(float64(x)*g.cfg.BiomeScale, float64(z)*g.cfg.BiomeScale)
	return g.cfg.BaseHeight + int(h*float64(g.cfg.HeightRange)), biomeFor(h, b)
}

// biomeFor определяет биом по высоте и значению шума биомов
func biomeFor(height, biomeValue float64) Biome {
	switch {
	case height < WaterMax:
		return BiomeWater
	case height > MountainStart:
		return BiomeMountains
	case biomeValue < -0.3:
		return BiomeDesert
	case biomeValue > 0.3:
		return BiomeForest
	default:
		return BiomePlains
	}
}

// blockAt блок на высоте y колонки с поверхностью surface
func (g *Generator) blockAt(y, surface int, biome Biome) uint32 {
	sandy := biome == BiomeDesert || surface <= g.cfg.SeaLevel
	switch {
	case y > surface:
		if y <= g.cfg.SeaLevel {
			return WaterBlockID
		}
		return AirBlockID
	case y == surface:
		switch {
		case biome == BiomeMountains:
			return StoneBlockID
		case sandy:
			return SandBlockID
		default:
			return GrassBlockID
		}
	case y > surface-4:
		if sandy {
			return SandBlockID
		}
		return DirtBlockID
	default:
		return StoneBlockID
	}
}

// chunkRand детерминированный генератор случайных чисел для позиции
func (g *Generator) chunkRand(p vec.Vec3) *rand.Rand {
	return rand.New(rand.NewSource(g.cfg.Seed + int64(p.X)*31 + int64(p.Y)*17 + int64(p.Z)*13))
}

func setLocal(c *chunk.Chunk, p vec.Vec3, id uint32) {
	s := c.Section(chunk.SectionIndex(p.X/chunk.SectionSize, p.Y/chunk.SectionSize, p.Z/chunk.SectionSize))
	s.Set(p.X%chunk.SectionSize, p.Y%chunk.SectionSize, p.Z%chunk.SectionSize, id)
}

// CreateGenerationContext контекст генерации чанка pos
func (g *Generator) CreateGenerationContext(pos vec.Vec3) chunk.GenerationContext {
	return &generationContext{g: g, pos: pos}
}

// CreateDecorationContext контекст декорирования чанка pos
func (g *Generator) CreateDecorationContext(pos vec.Vec3, extents chunk.Extents) chunk.DecorationContext {
	return &decorationContext{g: g, pos: pos, extents: extents}
}

type generationContext struct {
	g   *Generator
	pos vec.Vec3
}

// Generate заполняет чанк рельефом. Секции уже выделены.
func (gc *generationContext) Generate(ctx context.Context, c *chunk.Chunk) error {
	g := gc.g
	origin := c.Origin()

	for lz := 0; lz < chunk.Size; lz++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for lx := 0; lx < chunk.Size; lx++ {
			surface, biome := g.Surface(origin.X+lx, origin.Z+lz)
			for ly := 0; ly < chunk.Size; ly++ {
				y := origin.Y + ly
				id := g.blockAt(y, surface, biome)
				if id == AirBlockID {
					continue
				}
				local := vec.Vec3{X: lx, Y: ly, Z: lz}
				setLocal(c, local, id)
				// Поверхность воды над берегом проверит соседние колонки
				if id == WaterBlockID && y == g.cfg.SeaLevel {
					c.FluidUpdates().Schedule(local, 1, 0)
				}
			}
		}
	}
	return nil
}

func (gc *generationContext) Close() {}

type decorationContext struct {
	g       *Generator
	pos     vec.Vec3
	extents chunk.Extents
}

func (dc *decorationContext) Close() {}

// Границы центральной области чанка в локальных блоках (включительно)
const (
	centerMin = chunk.SectionSize
	centerMax = chunk.Size - chunk.SectionSize - 1
)

func inCenter(p vec.Vec3) bool {
	in := func(v int) bool { return v >= centerMin && v <= centerMax }
	return in(p.X) && in(p.Y) && in(p.Z)
}

// DecorateCenter сажает деревья, кактусы и цветы в центральной области чанка
func (dc *decorationContext) DecorateCenter(ctx context.Context, c *chunk.Chunk) error {
	g := dc.g
	rng := g.chunkRand(c.Position())
	origin := c.Origin()

	put := func(p vec.Vec3, id uint32) {
		if inCenter(p) && c.GetBlock(p) == AirBlockID {
			setLocal(c, p, id)
		}
	}

	planted := 0
	for lz := centerMin; lz <= centerMax; lz++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		for lx := centerMin; lx <= centerMax; lx++ {
			surface, biome := g.Surface(origin.X+lx, origin.Z+lz)
			base := vec.Vec3{X: lx, Y: surface + 1 - origin.Y, Z: lz}
			if !inCenter(base) || c.GetBlock(base) != AirBlockID {
				continue
			}
			ground := c.GetBlock(vec.Vec3{X: lx, Y: base.Y - 1, Z: lz})
			roll := rng.Float64()

			switch {
			case ground == GrassBlockID && biome == BiomeForest && roll < g.cfg.TreeDensity*4:
				planted += placeTree(base, rng, put)
			case ground == GrassBlockID && roll < g.cfg.TreeDensity:
				planted += placeTree(base, rng, put)
			case ground == SandBlockID && biome == BiomeDesert && roll < 0.02:
				for i := 0; i < 2+rng.Intn(2); i++ {
					put(base.Add(vec.Vec3{Y: i}), CactusBlockID)
				}
				planted++
			case ground == GrassBlockID && roll < 0.1:
				put(base, FlowerBlockID)
			}
		}
	}

	if planted > 0 {
		g.logger.Trace("Чанк %v: посажено %d растений в центре", c.Position(), planted)
	}
	return nil
}

// placeTree ствол 4 блока и крона радиуса 2
func placeTree(base vec.Vec3, rng *rand.Rand, put func(vec.Vec3, uint32)) int {
	trunk := 4 + rng.Intn(2)
	for i := 0; i < trunk; i++ {
		put(base.Add(vec.Vec3{Y: i}), LogBlockID)
	}
	top := base.Add(vec.Vec3{Y: trunk - 1})
	for dy := -1; dy <= 1; dy++ {
		for dz := -2; dz <= 2; dz++ {
			for dx := -2; dx <= 2; dx++ {
				if dx*dx+dz*dz+dy*dy > 5 {
					continue
				}
				put(top.Add(vec.Vec3{X: dx, Y: dy, Z: dz}), LeavesBlockID)
			}
		}
	}
	put(top.Add(vec.Vec3{Y: 2}), LeavesBlockID)
	return 1
}

// Decorate ставит руды и цветы в областях общих углов группы.
// Результат зависит только от мировой позиции угла, а не от того,
// какой из восьми чанков запустил декорирование.
func (dc *decorationContext) Decorate(ctx context.Context, n *chunk.Neighborhood) error {
	g := dc.g
	origin := n.Center().Origin()

	for _, corner := range n.Corners {
		dir := chunk.CornerDirection(corner)
		point := vec.Vec3{X: max(dir.X, 0), Y: max(dir.Y, 0), Z: max(dir.Z, 0)}.Scale(chunk.Size)
		rng := g.chunkRand(origin.Add(point))

		sections := chunk.CornerSections(corner)
		allowed := make(map[vec.Vec3]bool, len(sections))
		for _, s := range sections {
			allowed[s] = true
		}
		inRegion := func(p vec.Vec3) bool {
			return allowed[vec.Vec3{
				X: vec.FloorDiv(p.X, chunk.SectionSize),
				Y: vec.FloorDiv(p.Y, chunk.SectionSize),
				Z: vec.FloorDiv(p.Z, chunk.SectionSize),
			}]
		}

		ores := 0
		for _, s := range sections {
			if err := ctx.Err(); err != nil {
				return err
			}
			base := s.Scale(chunk.SectionSize)
			for k := 0; k < g.cfg.OreAttempts; k++ {
				p := base.Add(vec.Vec3{X: rng.Intn(chunk.SectionSize), Y: rng.Intn(chunk.SectionSize), Z: rng.Intn(chunk.SectionSize)})
				ore := CoalOreBlockID
				if rng.Intn(4) == 0 {
					ore = IronOreBlockID
				}
				if n.GetBlock(p) == StoneBlockID && n.SetBlock(p, ore) {
					ores++
				}
			}
		}

		flowers := 0
		half := chunk.Size / 2
		for dz := -half; dz < half; dz++ {
			for dx := -half; dx < half; dx++ {
				x, z := point.X+dx, point.Z+dz
				surface, _ := g.Surface(origin.X+x, origin.Z+z)
				p := vec.Vec3{X: x, Y: surface + 1 - origin.Y, Z: z}
				roll := rng.Float64()
				if !inRegion(p) || roll >= 0.03 {
					continue
				}
				if n.GetBlock(p) == AirBlockID && n.GetBlock(p.Sub(vec.Vec3{Y: 1})) == GrassBlockID && n.SetBlock(p, FlowerBlockID) {
					flowers++
				}
			}
		}

		g.logger.Trace("Угол %d чанка %v: руд %d, цветов %d", corner, n.Center().Position(), ores, flowers)
	}
	return nil
}
