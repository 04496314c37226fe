package arch

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"
)

// Routing-node port name prefixes.
const (
	PrefixIn     = "i"
	PrefixOut    = "o"
	PrefixBridge = "b"
)

func posTag(p Position) string {
	n := func(v int) string {
		if v < 0 {
			return fmt.Sprintf("m%d", -v)
		}
		return fmt.Sprintf("%d", v)
	}
	return "x" + n(p.X) + "y" + n(p.Y)
}

// Sanitize turns a name into a Verilog-safe identifier fragment.
func Sanitize(s string) string {
	var b strings.Builder
	for i, r := range s {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r == '_':
			b.WriteRune(r)
		case r >= '0' && r <= '9':
			if i == 0 {
				b.WriteByte('_')
			}
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}

// NodePortName derives the routing-block port name of a node.
func NodePortName(prefix string, n RoutingNode) string {
	switch v := n.(type) {
	case SegmentNode:
		return fmt.Sprintf("%s_%s_%s%s_%s_%d", prefix, Sanitize(v.Prototype.Name), v.Direction, v.Dimension, posTag(v.Position), v.Section)
	case BlockPinNode:
		return fmt.Sprintf("%s_%s_%s_%d_%s", prefix, Sanitize(v.Port.parent.name), posTag(v.Position), v.Subblock, Sanitize(v.Port.name))
	}
	return prefix
}

// nodePort returns the routing-node port for n in direction dir, creating it
// on first use.
func nodePort(m *Module, prefix string, n RoutingNode, dir PortDirection, bridge bool) (*Port, error) {
	name := NodePortName(prefix, n)
	if p := m.Port(name); p != nil {
		return p, nil
	}
	width := 1
	switch v := n.(type) {
	case SegmentNode:
		width = v.Prototype.Width
	case BlockPinNode:
		width = v.Port.width
	}
	opts := []PortOption{WithNode(n)}
	if bridge {
		opts = append(opts, AsBridge())
	}
	return m.CreatePort(name, width, dir, opts...)
}

// NodePorts returns the ports of m whose routing node equals n.
func NodePorts(m *Module, n RoutingNode) []*Port {
	var out []*Port
	for _, p := range m.Ports() {
		if p.node != nil && p.node == n {
			out = append(out, p)
		}
	}
	return out
}

func newRoutingBlock(name string, kind BlockKind, dim Dimension) *Module {
	m := newModule(name, ModBlock, ViewBoth)
	m.block = kind
	m.dimension = dim
	return m
}

// NewConnectionBlock creates an empty connection block for a channel of the
// given dimension.
func NewConnectionBlock(name string, dim Dimension) *Module {
	kind := BlockXConnection
	if dim == DimY {
		kind = BlockYConnection
	}
	return newRoutingBlock(name, kind, dim)
}

// NewSwitchBlock creates an empty switch block.
func NewSwitchBlock(name string) *Module {
	return newRoutingBlock(name, BlockSwitch, DimX)
}

// NewRouteBlock creates an empty combined routing block holding the channel
// of the given dimension and the switch corner at its increasing end.
func NewRouteBlock(name string, dim Dimension) *Module {
	kind := BlockXRoute
	if dim == DimY {
		kind = BlockYRoute
	}
	return newRoutingBlock(name, kind, dim)
}

func (m *Module) hasChannel() bool {
	switch m.block {
	case BlockXConnection, BlockYConnection, BlockXRoute, BlockYRoute:
		return m.kind == ModBlock
	}
	return false
}

func (m *Module) hasCorner() bool {
	switch m.block {
	case BlockSwitch, BlockXRoute, BlockYRoute:
		return m.kind == ModBlock
	}
	return false
}

var directions = []Direction{DirInc, DirDec}

// PopulateConnectionSegments adds one input per segment prototype, direction
// and section passing through the channel. With bridge set, it also adds one
// bridge output per prototype and direction that collects block output pins
// and feeds the switch block driving the wire.
func PopulateConnectionSegments(m *Module, protos []*SegmentPrototype, bridge bool) error {
	if !m.hasChannel() {
		return errors.Wrapf(ErrInvalidArg, "%s has no channel", m.name)
	}
	for _, proto := range protos {
		for _, dir := range directions {
			for s := 0; s < proto.Length; s++ {
				n := SegmentNode{Prototype: proto, Direction: dir, Dimension: m.dimension, Section: s}
				if _, err := nodePort(m, PrefixIn, n, Input, false); err != nil {
					return err
				}
			}
			if bridge {
				n := SegmentNode{Prototype: proto, Direction: dir, Dimension: m.dimension}
				if _, err := nodePort(m, PrefixBridge, n, Output, true); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

// FCTarget describes the neighbor whose pins a connection block serves.
type FCTarget struct {
	// Block is the neighboring logic or IO block.
	Block *Module
	// Root is the position of the block anchor relative to the channel.
	Root Position
	// Tile is the tile of the block footprint adjacent to the channel.
	Tile Position
	// Side is the side of the block facing the channel. Ports without a
	// side, as on IO blocks, connect on every side.
	Side Orientation
}

type fcCounters struct {
	track map[fcKey]int
}

type fcKey struct {
	proto *SegmentPrototype
	dir   Direction
	out   bool
}

func (c *fcCounters) advance(k fcKey, step, domain int) int {
	cur := c.track[k]
	next := cur + step
	if next >= domain {
		next -= domain
		if step > 1 {
			next = (next + 1) % domain
		}
	}
	c.track[k] = next
	return cur
}

// ImplementFC connects the pins of a neighboring block to the channel. Each
// block input pin bit is driven by Fc tracks of every direction, picked over
// all sections of a prototype; each block output pin bit drives Fc tracks
// through the bridge outputs. Track selection round-robins with a stride of
// max(1, domain/Fc) and shifts by one on every wrap when the stride exceeds
// one.
func ImplementFC(m *Module, protos []*SegmentPrototype, target FCTarget) error {
	if !m.hasChannel() {
		return errors.Wrapf(ErrInvalidArg, "%s has no channel", m.name)
	}
	blk := target.Block
	if blk.kind != ModBlock || (blk.block != BlockLogic && blk.block != BlockIO) {
		return errors.Wrapf(ErrInvalidArg, "%s is not a logic or IO block", blk.name)
	}
	counters := &fcCounters{track: map[fcKey]int{}}
	for sub := 0; sub < blk.capacity; sub++ {
		for _, port := range blk.RoutingPorts() {
			if (port.side != OrientNone && port.side != target.Side) || port.xoffset != target.Tile.X || port.yoffset != target.Tile.Y {
				continue
			}
			node := BlockPinNode{Position: target.Root, Subblock: sub, Port: port}
			fc := blk.fc.For(port)
			for _, proto := range protos {
				if port.direction == Input {
					if err := connectWireToPin(m, proto, node, fc, counters); err != nil {
						return err
					}
				} else if err := connectPinToWire(m, proto, node, fc, counters); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func connectWireToPin(m *Module, proto *SegmentPrototype, node BlockPinNode, fc FCValue, c *fcCounters) error {
	sink, err := nodePort(m, PrefixOut, node, Output, false)
	if err != nil {
		return err
	}
	domain := proto.Width * proto.Length
	nc := fc.Connections(domain)
	if nc == 0 {
		return nil
	}
	step := max(1, domain/nc)
	for _, dir := range directions {
		k := fcKey{proto: proto, dir: dir}
		for bit := 0; bit < sink.width; bit++ {
			for j := 0; j < nc; j++ {
				t := c.advance(k, step, domain)
				n := SegmentNode{Prototype: proto, Direction: dir, Dimension: m.dimension, Section: t / proto.Width}
				src := m.Port(NodePortName(PrefixIn, n))
				if src == nil {
					return errors.Wrapf(ErrUnknown, "%s has no segment input %s", m.name, n)
				}
				if err := Connect(src.Bit(t%proto.Width), sink.Bit(bit)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func connectPinToWire(m *Module, proto *SegmentPrototype, node BlockPinNode, fc FCValue, c *fcCounters) error {
	src, err := nodePort(m, PrefixIn, node, Input, false)
	if err != nil {
		return err
	}
	domain := proto.Width
	nc := fc.Connections(domain)
	if nc == 0 {
		return nil
	}
	step := max(1, domain/nc)
	for _, dir := range directions {
		k := fcKey{proto: proto, dir: dir, out: true}
		n := SegmentNode{Prototype: proto, Direction: dir, Dimension: m.dimension}
		sink := m.Port(NodePortName(PrefixOut, n))
		if sink == nil {
			if sink, err = nodePort(m, PrefixBridge, n, Output, true); err != nil {
				return err
			}
		}
		for bit := 0; bit < src.width; bit++ {
			for j := 0; j < nc; j++ {
				t := c.advance(k, step, domain)
				if err := Connect(src.Bit(bit), sink.Bit(t)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
