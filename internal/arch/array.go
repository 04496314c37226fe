package arch

import (
	"fmt"

	"github.com/pkg/errors"
)

// TileKind selects a sub-location of a tile.
type TileKind int

const (
	TileLogic TileKind = iota
	TileXChan
	TileYChan
	TileSwitch
	numTileKinds
)

func (k TileKind) String() string {
	switch k {
	case TileLogic:
		return "logic"
	case TileXChan:
		return "xchan"
	case TileYChan:
		return "ychan"
	case TileSwitch:
		return "switch"
	}
	return "?"
}

// Placement is a model placed at a tile sub-location. Blocks larger than one
// tile share one placement among all covered tiles; Root is the anchor.
// Capacity above one places several instances at the same location.
type Placement struct {
	Model     *Module
	Root      Position
	Instances []*Instance
}

type grid struct {
	width, height int
	cells         [][][numTileKinds]*Placement
}

// NewArray creates an empty array of width x height tiles.
func NewArray(name string, width, height int) (*Module, error) {
	if width < 1 || height < 1 {
		return nil, errors.Wrapf(ErrInvalidArg, "array %s size %dx%d", name, width, height)
	}
	m := newModule(name, ModBlock, ViewBoth)
	m.block = BlockArray
	m.width, m.height = width, height
	g := &grid{width: width, height: height, cells: make([][][numTileKinds]*Placement, width)}
	for x := range g.cells {
		g.cells[x] = make([][numTileKinds]*Placement, height)
	}
	m.grid = g
	return m, nil
}

func (g *grid) in(p Position) bool {
	return p.X >= 0 && p.Y >= 0 && p.X < g.width && p.Y < g.height
}

func (m *Module) arrayGrid() (*grid, error) {
	if m.grid == nil {
		return nil, errors.Wrapf(ErrInvalidArg, "%s is not an array", m.name)
	}
	return m.grid, nil
}

// AddBlock places a logic block, IO block or array with its anchor at
// (x, y). Blocks with capacity above one get one instance per sub-block.
func (m *Module) AddBlock(block *Module, x, y int) ([]*Instance, error) {
	g, err := m.arrayGrid()
	if err != nil {
		return nil, err
	}
	if block.kind != ModBlock || block.block.IsRouting() {
		return nil, errors.Wrapf(ErrInvalidArg, "%s cannot be placed at a logic location", block.name)
	}
	root := Position{x, y}
	for dx := 0; dx < block.width; dx++ {
		for dy := 0; dy < block.height; dy++ {
			p := Position{x + dx, y + dy}
			if !g.in(p) {
				return nil, errors.Wrapf(ErrInvalidOffset, "%s at %s exceeds %s", block.name, root, m.name)
			}
			if g.cells[p.X][p.Y][TileLogic] != nil {
				return nil, errors.Wrapf(ErrOccupied, "%s at %s", m.name, p)
			}
		}
	}
	pl := &Placement{Model: block, Root: root}
	for sub := 0; sub < block.capacity; sub++ {
		name := "blk_" + posTag(root)
		if block.capacity > 1 {
			name = fmt.Sprintf("%s_%d", name, sub)
		}
		inst, err := m.AddInstance(block, name)
		if err != nil {
			return nil, err
		}
		pl.Instances = append(pl.Instances, inst)
	}
	for dx := 0; dx < block.width; dx++ {
		for dy := 0; dy < block.height; dy++ {
			g.cells[x+dx][y+dy][TileLogic] = pl
		}
	}
	return pl.Instances, nil
}

// PlaceRoutingBlock places a connection or switch block at a channel or
// switch sub-location.
func (m *Module) PlaceRoutingBlock(block *Module, kind TileKind, x, y int) (*Instance, error) {
	g, err := m.arrayGrid()
	if err != nil {
		return nil, err
	}
	var prefix string
	switch {
	case kind == TileXChan && block.IsBlock(BlockXConnection):
		prefix = "cbx_"
	case kind == TileYChan && block.IsBlock(BlockYConnection):
		prefix = "cby_"
	case kind == TileSwitch && block.IsBlock(BlockSwitch):
		prefix = "sb_"
	case kind == TileXChan && block.IsBlock(BlockXRoute):
		prefix = "rbx_"
	case kind == TileYChan && block.IsBlock(BlockYRoute):
		prefix = "rby_"
	default:
		return nil, errors.Wrapf(ErrInvalidArg, "%s cannot be placed at a %s location", block.name, kind)
	}
	p := Position{x, y}
	if !g.in(p) {
		return nil, errors.Wrapf(ErrInvalidOffset, "%s at %s", block.name, p)
	}
	if g.cells[x][y][kind] != nil {
		return nil, errors.Wrapf(ErrOccupied, "%s %s at %s", m.name, kind, p)
	}
	inst, err := m.AddInstance(block, prefix+posTag(p))
	if err != nil {
		return nil, err
	}
	g.cells[x][y][kind] = &Placement{Model: block, Root: p, Instances: []*Instance{inst}}
	return inst, nil
}

// GetBlock returns the placement covering pos and the offset of pos from
// its anchor. A non-zero offset marks a non-root tile of a large block.
func (m *Module) GetBlock(pos Position, kind TileKind) (*Placement, Position) {
	if m.grid == nil || !m.grid.in(pos) {
		return nil, Position{}
	}
	pl := m.grid.cells[pos.X][pos.Y][kind]
	if pl == nil {
		return nil, Position{}
	}
	return pl, pos.Sub(pl.Root)
}

// GetRootBlock returns the placement covering pos only if pos is its anchor.
func (m *Module) GetRootBlock(pos Position, kind TileKind) *Placement {
	pl, off := m.GetBlock(pos, kind)
	if pl == nil || off != (Position{}) {
		return nil
	}
	return pl
}

// Visit is a root placement reached while walking an array hierarchy.
type Visit struct {
	Kind      TileKind
	Placement *Placement
	// Origin is the absolute position of the enclosing array's (0, 0).
	Origin Position
	// Path lists the enclosing sub-array instances, outermost first.
	Path []*Instance
}

// Pos returns the absolute anchor position.
func (v Visit) Pos() Position { return v.Origin.Add(v.Placement.Root) }

// Walk visits every root placement of the array and of nested arrays in a
// deterministic order: column-major by tile, then by sub-location. Nested
// arrays are visited before their contents.
func (m *Module) Walk(fn func(Visit) error) error {
	return m.walk(Position{}, nil, fn)
}

func (m *Module) walk(origin Position, path []*Instance, fn func(Visit) error) error {
	g, err := m.arrayGrid()
	if err != nil {
		return err
	}
	for x := 0; x < g.width; x++ {
		for y := 0; y < g.height; y++ {
			for kind := TileKind(0); kind < numTileKinds; kind++ {
				pl := g.cells[x][y][kind]
				if pl == nil || pl.Root != (Position{x, y}) {
					continue
				}
				v := Visit{Kind: kind, Placement: pl, Origin: origin, Path: path}
				if err := fn(v); err != nil {
					return err
				}
				if pl.Model.IsArray() {
					sub := append(append([]*Instance(nil), path...), pl.Instances[0])
					if err := pl.Model.walk(v.Pos(), sub, fn); err != nil {
						return err
					}
				}
			}
		}
	}
	return nil
}

// LeafBlock returns the logic or IO block covering pos, looking through
// nested arrays, and its anchor in m's coordinates.
func (m *Module) LeafBlock(pos Position) (*Module, Position, bool) {
	pl, _ := m.GetBlock(pos, TileLogic)
	if pl == nil {
		return nil, Position{}, false
	}
	if !pl.Model.IsArray() {
		return pl.Model, pl.Root, true
	}
	b, r, ok := pl.Model.LeafBlock(pos.Sub(pl.Root))
	return b, r.Add(pl.Root), ok
}

func (m *Module) leafRoot(pos Position) (Position, bool) {
	_, r, ok := m.LeafBlock(pos)
	return r, ok
}

// Locate finds the placement of kind covering pos, descending into nested
// arrays. For TileLogic the leaf block is returned, not its enclosing arrays.
func (m *Module) Locate(pos Position, kind TileKind) (Visit, bool) {
	return m.locate(pos, kind, Position{}, nil)
}

func (m *Module) locate(pos Position, kind TileKind, origin Position, path []*Instance) (Visit, bool) {
	if m.grid == nil || !m.grid.in(pos) {
		return Visit{}, false
	}
	if pl := m.grid.cells[pos.X][pos.Y][kind]; pl != nil && (kind != TileLogic || !pl.Model.IsArray()) {
		return Visit{Kind: kind, Placement: pl, Origin: origin, Path: path}, true
	}
	pl := m.grid.cells[pos.X][pos.Y][TileLogic]
	if pl == nil || !pl.Model.IsArray() {
		return Visit{}, false
	}
	sub := append(append([]*Instance(nil), path...), pl.Instances[0])
	return pl.Model.locate(pos.Sub(pl.Root), kind, origin.Add(pl.Root), sub)
}

func (m *Module) sameLeaf(a, b Position) bool {
	ra, oka := m.leafRoot(a)
	rb, okb := m.leafRoot(b)
	return oka && okb && ra == rb
}

func (m *Module) sameSubArray(ps ...Position) bool {
	var first *Placement
	for i, p := range ps {
		pl, _ := m.GetBlock(p, TileLogic)
		if pl == nil || !pl.Model.IsArray() {
			return false
		}
		if i == 0 {
			first = pl
		} else if pl != first {
			return false
		}
	}
	return true
}

// ChannelInRange reports whether a channel position lies inside the routing
// area of an array. The top-level array has no channels along its perimeter
// tiles, as VPR expects.
func (m *Module) ChannelInRange(dim Dimension, pos Position, isTop bool) bool {
	w, h := m.width, m.height
	lo := 0
	if isTop {
		lo = 1
	}
	if dim == DimX {
		return pos.X >= lo && pos.X <= w-1-lo && pos.Y >= 0 && pos.Y <= h-2
	}
	return pos.X >= 0 && pos.X <= w-2 && pos.Y >= lo && pos.Y <= h-1-lo
}

// ChannelTiles returns the two tiles a channel runs between: below and above
// for X, left and right for Y.
func ChannelTiles(dim Dimension, pos Position) (Position, Position) {
	if dim == DimX {
		return pos, Position{pos.X, pos.Y + 1}
	}
	return pos, Position{pos.X + 1, pos.Y}
}

// ChannelExists reports whether a channel exists at pos, possibly inside a
// nested array. No channel runs between two tiles of the same block.
func (m *Module) ChannelExists(dim Dimension, pos Position, isTop bool) bool {
	if !m.ChannelInRange(dim, pos, isTop) {
		return false
	}
	a, b := ChannelTiles(dim, pos)
	return !m.sameLeaf(a, b)
}

// OwnsChannel reports whether the channel at pos belongs to m rather than to
// a nested array.
func (m *Module) OwnsChannel(dim Dimension, pos Position, isTop bool) bool {
	if !m.ChannelExists(dim, pos, isTop) {
		return false
	}
	a, b := ChannelTiles(dim, pos)
	return !m.sameSubArray(a, b)
}

// CornerEnvironment inspects the four channels around the switch corner at
// the top-right of tile pos.
func (m *Module) CornerEnvironment(pos Position, isTop bool) SwitchBlockEnvironment {
	return SwitchBlockEnvironment{
		Left:   m.ChannelExists(DimX, pos, isTop),
		Right:  m.ChannelExists(DimX, Position{pos.X + 1, pos.Y}, isTop),
		Bottom: m.ChannelExists(DimY, pos, isTop),
		Top:    m.ChannelExists(DimY, Position{pos.X, pos.Y + 1}, isTop),
	}
}

// OwnsCorner reports whether m places the switch block of the corner at pos.
func (m *Module) OwnsCorner(pos Position, isTop bool) bool {
	if pos.X < 0 || pos.Y < 0 || pos.X > m.width-2 || pos.Y > m.height-2 {
		return false
	}
	if m.CornerEnvironment(pos, isTop).Empty() {
		return false
	}
	return !m.sameSubArray(pos, Position{pos.X + 1, pos.Y}, Position{pos.X, pos.Y + 1}, Position{pos.X + 1, pos.Y + 1})
}
