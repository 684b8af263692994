package chunk

import (
	"fmt"
	"strings"

	"github.com/annel0/chunk-engine/internal/access"
	"github.com/annel0/chunk-engine/internal/vec"
)

// Decoration флаги декорирования: центр и восемь углов
type Decoration uint16

const (
	// DecorationCenter центр чанка декорирован сразу после генерации
	DecorationCenter Decoration = 1
	// DecorationAll центр и все углы
	DecorationAll Decoration = 0x1FF
)

// CornerCount число углов чанка
const CornerCount = 8

// DecorationCorner флаг угла i (0..7). Бит 0 индекса соответствует оси X,
// бит 1 оси Y, бит 2 оси Z: установленный бит означает угол на положительной стороне.
func DecorationCorner(i int) Decoration {
	return 1 << (1 + i)
}

// Has установлены ли все флаги f
func (d Decoration) Has(f Decoration) bool {
	return d&f == f
}

// IsComplete чанк декорирован полностью
func (d Decoration) IsComplete() bool {
	return d&DecorationAll == DecorationAll
}

// MissingCorners углы без флага
func (d Decoration) MissingCorners() []int {
	var out []int
	for i := 0; i < CornerCount; i++ {
		if !d.Has(DecorationCorner(i)) {
			out = append(out, i)
		}
	}
	return out
}

func (d Decoration) String() string {
	var parts []string
	if d.Has(DecorationCenter) {
		parts = append(parts, "center")
	}
	var corners []string
	for i := 0; i < CornerCount; i++ {
		if d.Has(DecorationCorner(i)) {
			corners = append(corners, fmt.Sprint(i))
		}
	}
	if len(corners) > 0 {
		parts = append(parts, "corners["+strings.Join(corners, ",")+"]")
	}
	if len(parts) == 0 {
		return "none"
	}
	return strings.Join(parts, "+")
}

// CornerDirection направление угла i: +1 по оси, если соответствующий бит установлен, иначе -1
func CornerDirection(i int) vec.Vec3 {
	sign := func(bit int) int {
		if i&bit != 0 {
			return 1
		}
		return -1
	}
	return vec.Vec3{X: sign(1), Y: sign(2), Z: sign(4)}
}

// CornerShare чанк, разделяющий угол, и индекс этого угла у него
type CornerShare struct {
	Offset vec.Vec3
	Corner int
}

// CornerShares восемь чанков, разделяющих угол i чанка. Первый элемент сам чанк.
func CornerShares(i int) [8]CornerShare {
	dir := CornerDirection(i)
	var out [8]CornerShare
	for k := 0; k < 8; k++ {
		a, b, c := k&1, (k>>1)&1, (k>>2)&1
		out[k] = CornerShare{
			Offset: vec.Vec3{X: a * dir.X, Y: b * dir.Y, Z: c * dir.Z},
			Corner: i ^ k,
		}
	}
	return out
}

// CornerSections секции области угла в координатах секций центрального чанка.
// Область 4x4x4 секции вокруг угла без восьми вершинных секций:
// они принадлежат центрам чанков.
func CornerSections(i int) []vec.Vec3 {
	start := func(bit int) int {
		if i&bit != 0 {
			return SectionsPerAxis - 2
		}
		return -2
	}
	sx, sy, sz := start(1), start(2), start(4)

	edge := func(d int) bool { return d == 0 || d == 3 }

	out := make([]vec.Vec3, 0, 56)
	for dz := 0; dz < 4; dz++ {
		for dy := 0; dy < 4; dy++ {
			for dx := 0; dx < 4; dx++ {
				if edge(dx) && edge(dy) && edge(dz) {
					continue
				}
				out = append(out, vec.Vec3{X: sx + dx, Y: sy + dy, Z: sz + dz})
			}
		}
	}
	return out
}

// Neighborhood группа чанков, захваченных для декорирования углов.
// Координаты блоков отсчитываются от начала центрального чанка.
type Neighborhood struct {
	center  *Chunk
	chunks  map[vec.Vec3]*Chunk
	Corners []int
}

// NewNeighborhood собирает группу вручную (инструменты и тесты генераторов).
// Центр добавляется под нулевым смещением.
func NewNeighborhood(center *Chunk, neighbors map[vec.Vec3]*Chunk, corners []int) *Neighborhood {
	chunks := make(map[vec.Vec3]*Chunk, len(neighbors)+1)
	for offset, c := range neighbors {
		chunks[offset] = c
	}
	chunks[vec.Zero] = center
	return &Neighborhood{center: center, chunks: chunks, Corners: corners}
}

// Center центральный чанк
func (n *Neighborhood) Center() *Chunk {
	return n.center
}

// Chunk чанк по смещению от центра (nil, если не захвачен)
func (n *Neighborhood) Chunk(offset vec.Vec3) *Chunk {
	return n.chunks[offset]
}

// Len число чанков в группе, включая центр
func (n *Neighborhood) Len() int {
	return len(n.chunks)
}

// Extents область группы в координатах чанков
func (n *Neighborhood) Extents() Extents {
	pos := n.center.position
	e := Extents{Min: pos, Max: pos}
	for offset := range n.chunks {
		p := pos.Add(offset)
		e.Min = vec.Vec3{X: min(e.Min.X, p.X), Y: min(e.Min.Y, p.Y), Z: min(e.Min.Z, p.Z)}
		e.Max = vec.Vec3{X: max(e.Max.X, p.X), Y: max(e.Max.Y, p.Y), Z: max(e.Max.Z, p.Z)}
	}
	return e
}

func (n *Neighborhood) locate(p vec.Vec3) (*Chunk, vec.Vec3) {
	offset := vec.Vec3{X: vec.FloorDiv(p.X, Size), Y: vec.FloorDiv(p.Y, Size), Z: vec.FloorDiv(p.Z, Size)}
	local := vec.Vec3{X: vec.FloorMod(p.X, Size), Y: vec.FloorMod(p.Y, Size), Z: vec.FloorMod(p.Z, Size)}
	return n.chunks[offset], local
}

// GetBlock читает блок. Вне группы возвращает 0.
func (n *Neighborhood) GetBlock(p vec.Vec3) uint32 {
	c, local := n.locate(p)
	if c == nil {
		return 0
	}
	return c.GetBlock(local)
}

// SetBlock записывает блок. Возвращает false, если позиция вне группы.
func (n *Neighborhood) SetBlock(p vec.Vec3, id uint32) bool {
	c, local := n.locate(p)
	if c == nil {
		return false
	}
	c.setBlock(local, id)
	return true
}

// markCorners ставит флаги декорированных углов всем участникам
func (n *Neighborhood) markCorners() {
	for _, i := range n.Corners {
		for _, share := range CornerShares(i) {
			if c := n.chunks[share.Offset]; c != nil {
				c.decoration |= DecorationCorner(share.Corner)
				c.MarkDirty()
			}
		}
	}
}

// tryBeginDecoration выбирает недекорированные углы, все восемь чанков которых
// существуют и сгенерированы, и захватывает соседей на запись обычным
// захватом или кражей. Если хотя бы один сосед недоступен, ничего не захватывает.
func (k *Container) tryBeginDecoration(c *Chunk) State {
	if !c.generated || c.decoration.IsComplete() {
		return nil
	}

	var corners []int
	var offsets []vec.Vec3
	participants := map[vec.Vec3]*Chunk{vec.Zero: c}

	for i := 0; i < CornerCount; i++ {
		if c.decoration.Has(DecorationCorner(i)) {
			continue
		}

		shares := CornerShares(i)
		found := make([]*Chunk, len(shares))
		ready := true
		for j, share := range shares[1:] {
			n := k.chunks[c.position.Add(share.Offset)]
			if n == nil || !n.generated || n.machine.released {
				ready = false
				break
			}
			found[j+1] = n
		}
		if !ready {
			continue
		}

		corners = append(corners, i)
		for j, share := range shares[1:] {
			if _, ok := participants[share.Offset]; !ok {
				participants[share.Offset] = found[j+1]
				offsets = append(offsets, share.Offset)
			}
		}
	}
	if len(corners) == 0 {
		return nil
	}

	for _, offset := range offsets {
		n := participants[offset]
		if !n.resource.CanAcquire(access.Write) && !n.machine.canStealAccess() {
			return nil
		}
	}

	owner := k.ctx.Owner
	guards := make([]*access.Guard, 0, len(offsets))
	for _, offset := range offsets {
		n := participants[offset]
		g := n.resource.TryAcquire(owner, access.Write)
		if g == nil {
			g = n.machine.steal()
		}
		if g == nil {
			access.ReleaseAll(guards)
			return nil
		}
		guards = append(guards, g)
	}

	k.ctx.Logger.Debug("Чанк %v декорирует углы %v вместе с %d соседями", c.position, corners, len(offsets))
	return newDecorating(guards, &Neighborhood{center: c, chunks: participants, Corners: corners})
}
