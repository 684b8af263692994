package generation

import (
	"context"
	"os"
	"testing"

	"github.com/annel0/chunk-engine/internal/chunk"
	"github.com/annel0/chunk-engine/internal/logging"
	"github.com/annel0/chunk-engine/internal/vec"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logging.SetLogDir("")
	os.Exit(m.Run())
}

const testSeed = 1337

func generate(t *testing.T, g *Generator, pos vec.Vec3) *chunk.Chunk {
	t.Helper()
	c := chunk.NewPool(0).Get(pos)
	c.EnsureSections()
	gc := g.CreateGenerationContext(pos)
	defer gc.Close()
	require.NoError(t, gc.Generate(context.Background(), c))
	return c
}

func blocks(c *chunk.Chunk) [chunk.SectionCount][chunk.SectionVolume]uint32 {
	var out [chunk.SectionCount][chunk.SectionVolume]uint32
	for i := range out {
		out[i] = c.Section(i).Blocks
	}
	return out
}

// changedLocal позиции блоков, отличающиеся от снимка
func changedLocal(before [chunk.SectionCount][chunk.SectionVolume]uint32, c *chunk.Chunk) []vec.Vec3 {
	var out []vec.Vec3
	for z := 0; z < chunk.Size; z++ {
		for y := 0; y < chunk.Size; y++ {
			for x := 0; x < chunk.Size; x++ {
				p := vec.Vec3{X: x, Y: y, Z: z}
				si := chunk.SectionIndex(x/chunk.SectionSize, y/chunk.SectionSize, z/chunk.SectionSize)
				bi := chunk.BlockIndex(x%chunk.SectionSize, y%chunk.SectionSize, z%chunk.SectionSize)
				if before[si][bi] != c.GetBlock(p) {
					out = append(out, p)
				}
			}
		}
	}
	return out
}

func TestGenerate_Deterministic(t *testing.T) {
	pos := vec.Vec3{X: 3, Z: -2}
	a := generate(t, New(DefaultConfig(testSeed)), pos)
	b := generate(t, New(DefaultConfig(testSeed)), pos)
	assert.Equal(t, blocks(a), blocks(b))
}

func TestGenerate_Layers(t *testing.T) {
	g := New(DefaultConfig(testSeed))
	c := generate(t, g, vec.Zero)

	for z := 0; z < chunk.Size; z++ {
		for x := 0; x < chunk.Size; x++ {
			surface, _ := g.Surface(x, z)
			require.GreaterOrEqual(t, surface, g.Config().BaseHeight)
			require.Less(t, surface, chunk.Size-1)

			assert.Equal(t, StoneBlockID, c.GetBlock(vec.Vec3{X: x, Z: z}), "Низ колонки (%d,%d) каменный", x, z)
			assert.Equal(t, AirBlockID, c.GetBlock(vec.Vec3{X: x, Y: chunk.Size - 1, Z: z}), "Верх колонки (%d,%d) пустой", x, z)
			assert.NotEqual(t, AirBlockID, c.GetBlock(vec.Vec3{X: x, Y: surface, Z: z}))
		}
	}

	below := generate(t, g, vec.Vec3{Y: -1})
	for i := 0; i < chunk.SectionCount; i++ {
		for _, b := range below.Section(i).Blocks {
			require.Equal(t, StoneBlockID, b)
		}
	}
}

func TestGenerate_Cancelled(t *testing.T) {
	g := New(DefaultConfig(testSeed))
	c := chunk.NewPool(0).Get(vec.Zero)
	c.EnsureSections()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	assert.ErrorIs(t, g.CreateGenerationContext(vec.Zero).Generate(ctx, c), context.Canceled)
}

func TestDecorateCenter_StaysInCenterRegion(t *testing.T) {
	cfg := DefaultConfig(testSeed)
	cfg.TreeDensity = 0.5
	g := New(cfg)

	for _, pos := range []vec.Vec3{vec.Zero, {X: 1}, {X: -4, Z: 7}} {
		c := generate(t, g, pos)
		before := blocks(c)

		dc := g.CreateDecorationContext(pos, chunk.Extents{Min: pos, Max: pos})
		require.NoError(t, dc.DecorateCenter(context.Background(), c))
		dc.Close()

		for _, p := range changedLocal(before, c) {
			assert.True(t, inCenter(p), "Чанк %v: блок %v вне центральной области", pos, p)
		}
	}
}

// decorateCorner генерирует восемь чанков вокруг угла и декорирует угол из center
func decorateCorner(t *testing.T, g *Generator, center vec.Vec3, corner int) map[vec.Vec3]*chunk.Chunk {
	t.Helper()
	world := make(map[vec.Vec3]*chunk.Chunk)
	neighbors := make(map[vec.Vec3]*chunk.Chunk)
	for _, share := range chunk.CornerShares(corner) {
		pos := center.Add(share.Offset)
		c := generate(t, g, pos)
		world[pos] = c
		if share.Offset != vec.Zero {
			neighbors[share.Offset] = c
		}
	}

	hood := chunk.NewNeighborhood(world[center], neighbors, []int{corner})
	dc := g.CreateDecorationContext(center, hood.Extents())
	defer dc.Close()
	require.NoError(t, dc.Decorate(context.Background(), hood))
	return world
}

func TestDecorate_StaysInCornerRegion(t *testing.T) {
	g := New(DefaultConfig(testSeed))
	center := vec.Zero
	const corner = 0

	fresh := make(map[vec.Vec3][chunk.SectionCount][chunk.SectionVolume]uint32)
	for _, share := range chunk.CornerShares(corner) {
		pos := center.Add(share.Offset)
		fresh[pos] = blocks(generate(t, g, pos))
	}

	allowed := make(map[vec.Vec3]bool)
	for _, s := range chunk.CornerSections(corner) {
		allowed[s] = true
	}

	world := decorateCorner(t, g, center, corner)
	total := 0
	for pos, c := range world {
		offset := pos.Sub(center)
		for _, p := range changedLocal(fresh[pos], c) {
			rel := offset.Scale(chunk.Size).Add(p)
			section := vec.Vec3{
				X: vec.FloorDiv(rel.X, chunk.SectionSize),
				Y: vec.FloorDiv(rel.Y, chunk.SectionSize),
				Z: vec.FloorDiv(rel.Z, chunk.SectionSize),
			}
			assert.True(t, allowed[section], "Блок %v чанка %v вне области угла", p, pos)
			total++
		}
	}
	assert.Positive(t, total, "Угол под поверхностью должен получить руды")
}

func TestDecorate_SameResultFromAnySharingChunk(t *testing.T) {
	g := New(DefaultConfig(testSeed))

	// Угол 0 чанка (0,0,0) и угол 7 чанка (-1,-1,-1) одна и та же точка мира
	fromOrigin := decorateCorner(t, g, vec.Zero, 0)
	fromOpposite := decorateCorner(t, g, vec.Vec3{X: -1, Y: -1, Z: -1}, 7)

	require.Len(t, fromOpposite, len(fromOrigin))
	for pos, c := range fromOrigin {
		other, ok := fromOpposite[pos]
		require.True(t, ok, "Чанк %v отсутствует во второй группе", pos)
		assert.Equal(t, blocks(c), blocks(other), "Чанк %v", pos)
	}
}

func TestBlockName(t *testing.T) {
	assert.Equal(t, "stone", BlockName(StoneBlockID))
	assert.Equal(t, "iron_ore", BlockName(IronOreBlockID))
	assert.Equal(t, "unknown", BlockName(999999))
}
