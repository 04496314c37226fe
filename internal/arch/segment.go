package arch

import "fmt"

// SegmentPrototype is a class of wires: Width parallel tracks originate at
// every channel location in each direction and each wire spans Length
// tiles.
type SegmentPrototype struct {
	Name   string
	Width  int
	Length int
}

func (s *SegmentPrototype) String() string {
	return fmt.Sprintf("%s(w%d,l%d)", s.Name, s.Width, s.Length)
}

// Global is a fabric-wide wire such as a clock or an enable.
type Global struct {
	Name    string
	IsClock bool
	Width   int
	Binding *GlobalBinding
}

// GlobalBinding pins a global to the IO sub-block driving it.
type GlobalBinding struct {
	Position Position
	Subblock int
}

// RoutingNode is a segment or a block pin at a specific position. The
// concrete types are SegmentNode and BlockPinNode; both are comparable.
type RoutingNode interface {
	Pos() Position
	String() string
	isRoutingNode()
}

// SegmentNode is the set of Prototype.Width parallel tracks of one wire
// bundle seen at Position. Section 0 is the driver end.
type SegmentNode struct {
	Position  Position
	Prototype *SegmentPrototype
	Direction Direction
	Dimension Dimension
	Section   int
}

func (SegmentNode) isRoutingNode() {}

func (n SegmentNode) Pos() Position { return n.Position }

// OriginEquivalent returns the same wire viewed from its section 0.
func (n SegmentNode) OriginEquivalent() SegmentNode {
	if n.Section == 0 {
		return n
	}
	o := n
	o.Position = n.Position.Step(n.Dimension, n.Direction, -n.Section)
	o.Section = 0
	return o
}

// AtSection returns the same wire viewed from another section.
func (n SegmentNode) AtSection(section int) SegmentNode {
	o := n.OriginEquivalent()
	o.Position = o.Position.Step(n.Dimension, n.Direction, section)
	o.Section = section
	return o
}

// Equivalent reports whether two views refer to the same physical wire.
func (n SegmentNode) Equivalent(o SegmentNode) bool {
	return n.OriginEquivalent() == o.OriginEquivalent()
}

func (n SegmentNode) String() string {
	return fmt.Sprintf("%s.%s%s%s@%d", n.Prototype.Name, n.Direction, n.Dimension, n.Position, n.Section)
}

// BlockPinNode is a block port at a position. Subblock selects one of the
// block's sub-block copies when its capacity exceeds one.
type BlockPinNode struct {
	Position Position
	Subblock int
	Port     *Port
}

func (BlockPinNode) isRoutingNode() {}

func (n BlockPinNode) Pos() Position { return n.Position }

func (n BlockPinNode) String() string {
	return fmt.Sprintf("%s[%d]%s", n.Port, n.Subblock, n.Position)
}

// MoveNode translates a node by offset.
func MoveNode(n RoutingNode, offset Position) RoutingNode {
	switch v := n.(type) {
	case SegmentNode:
		v.Position = v.Position.Add(offset)
		return v
	case BlockPinNode:
		v.Position = v.Position.Add(offset)
		return v
	}
	return n
}
