package arch

import (
	"strings"

	"github.com/pkg/errors"
)

// SwitchBlockEnvironment records which of the four channels around a switch
// corner exist.
type SwitchBlockEnvironment struct {
	Top, Right, Bottom, Left bool
}

// Key is a short stable identifier of the environment.
func (e SwitchBlockEnvironment) Key() string {
	var b strings.Builder
	for _, f := range []struct {
		on bool
		c  byte
	}{{e.Top, 't'}, {e.Right, 'r'}, {e.Bottom, 'b'}, {e.Left, 'l'}} {
		if f.on {
			b.WriteByte(f.c)
		}
	}
	if b.Len() == 0 {
		return "none"
	}
	return b.String()
}

// Empty reports whether no channel touches the corner.
func (e SwitchBlockEnvironment) Empty() bool {
	return !e.Top && !e.Right && !e.Bottom && !e.Left
}

// outputSide reports whether the channel a wire of (dim, dir) leaves into
// exists, and where the output node sits relative to the corner.
func (e SwitchBlockEnvironment) outputSide(dim Dimension, dir Direction) (bool, Position) {
	switch {
	case dim == DimX && dir == DirInc:
		return e.Right, Position{1, 0}
	case dim == DimX:
		return e.Left, Position{0, 0}
	case dir == DirInc:
		return e.Top, Position{0, 1}
	default:
		return e.Bottom, Position{0, 0}
	}
}

// inputSide reports whether wires of (dim, dir) arrive at the corner, and
// where their last section sits relative to the corner.
func (e SwitchBlockEnvironment) inputSide(dim Dimension, dir Direction) (bool, Position) {
	switch {
	case dim == DimX && dir == DirInc:
		return e.Left, Position{0, 0}
	case dim == DimX:
		return e.Right, Position{1, 0}
	case dir == DirInc:
		return e.Bottom, Position{0, 0}
	default:
		return e.Top, Position{0, 1}
	}
}

var dimensions = []Dimension{DimX, DimY}

// SwitchOutputOffset returns where a switch block places the section-0
// output of a (dim, dir) wire, relative to its corner.
func SwitchOutputOffset(dim Dimension, dir Direction) Position {
	_, pos := SwitchBlockEnvironment{}.outputSide(dim, dir)
	return pos
}

// IsWireOwner reports whether p is the port a wire's node ID is assigned to:
// the section-0 input of the channel a wire starts in, or a truncated switch
// output standing in for a wire that starts outside the fabric.
func IsWireOwner(p *Port) bool {
	n, ok := p.node.(SegmentNode)
	if !ok || p.bridge {
		return false
	}
	m := p.parent
	switch {
	case p.direction == Input && m.hasChannel():
		return n.Section == 0 && n.Dimension == m.dimension && n.Position == (Position{})
	case p.direction == Output && m.hasCorner():
		return n.Section > 0
	}
	return false
}


// PopulateSwitchSegments adds, for every (direction, dimension) whose
// outgoing channel exists, one output per prototype, and for every arriving
// channel, one input carrying the last section of each prototype. With
// driveTruncated set, outputs without a straight input also drive the
// sections of wires truncated at this corner. With bridgeFromConnectionBlock
// set, each section-0 output gets a bridge input connected as its first
// logical source.
func PopulateSwitchSegments(m *Module, protos []*SegmentPrototype, env SwitchBlockEnvironment, driveTruncated, bridgeFromConnectionBlock bool) error {
	if !m.hasCorner() {
		return errors.Wrapf(ErrInvalidArg, "%s has no switch corner", m.name)
	}
	m.env = env
	for _, dim := range dimensions {
		for _, dir := range directions {
			if ok, _ := env.inputSide(dim, dir); ok {
				if err := addSwitchInputs(m, protos, env, dim, dir); err != nil {
					return err
				}
			}
		}
	}
	for _, dim := range dimensions {
		for _, dir := range directions {
			ok, pos := env.outputSide(dim, dir)
			if !ok {
				continue
			}
			straight, _ := env.inputSide(dim, dir)
			for _, proto := range protos {
				n := SegmentNode{Position: pos, Prototype: proto, Direction: dir, Dimension: dim}
				out, err := nodePort(m, PrefixOut, n, Output, false)
				if err != nil {
					return err
				}
				if bridgeFromConnectionBlock && !drivenInternally(m, n) {
					br, err := nodePort(m, PrefixBridge, n, Input, true)
					if err != nil {
						return err
					}
					if err := Connect(br, out); err != nil {
						return err
					}
				}
				if driveTruncated && !straight {
					for s := 1; s < proto.Length; s++ {
						tn := n
						tn.Section = s
						if _, err := nodePort(m, PrefixOut, tn, Output, false); err != nil {
							return err
						}
					}
				}
			}
		}
	}
	return nil
}

func addSwitchInputs(m *Module, protos []*SegmentPrototype, env SwitchBlockEnvironment, dim Dimension, dir Direction) error {
	_, pos := env.inputSide(dim, dir)
	for _, proto := range protos {
		n := SegmentNode{Position: pos, Prototype: proto, Direction: dir, Dimension: dim, Section: proto.Length - 1}
		if _, err := nodePort(m, PrefixIn, n, Input, false); err != nil {
			return err
		}
	}
	return nil
}

// drivenInternally reports whether a combined routing block owns the channel
// a section-0 output enters, in which case no bridge is needed.
func drivenInternally(m *Module, n SegmentNode) bool {
	return m.hasChannel() && n.Dimension == m.dimension && n.Position == (Position{})
}

// SwitchOutputs returns the segment outputs of a switch block, section-0
// outputs first.
func SwitchOutputs(m *Module) []*Port {
	var first, rest []*Port
	for _, p := range m.Ports() {
		n, ok := p.node.(SegmentNode)
		if !ok || p.direction != Output || p.bridge {
			continue
		}
		if n.Section == 0 {
			first = append(first, p)
		} else {
			rest = append(rest, p)
		}
	}
	return append(first, rest...)
}

// ImplementWilton connects the inputs of a switch block to its outputs with
// a Wilton pattern. Every output takes the straight input of the same
// direction and dimension track by track, and the two turning inputs through
// a per-turn permutation. U-turns are never made.
func ImplementWilton(m *Module, protos []*SegmentPrototype) error {
	if !m.hasCorner() {
		return errors.Wrapf(ErrInvalidArg, "%s has no switch corner", m.name)
	}
	for _, out := range SwitchOutputs(m) {
		on := out.node.(SegmentNode)
		for _, from := range wiltonInputs(on.Dimension, on.Direction) {
			ok, pos := m.env.inputSide(from.dim, from.dir)
			if !ok {
				continue
			}
			in := m.Port(NodePortName(PrefixIn, SegmentNode{
				Position: pos, Prototype: on.Prototype, Direction: from.dir,
				Dimension: from.dim, Section: on.Prototype.Length - 1,
			}))
			if in == nil {
				return errors.Wrapf(ErrUnknown, "%s has no input for %s%s", m.name, from.dir, from.dim)
			}
			w := on.Prototype.Width
			for i := 0; i < w; i++ {
				o := wiltonTrack(i, w, from.dim, from.dir, on.Dimension, on.Direction)
				if err := Connect(in.Bit(i), out.Bit(o)); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type heading struct {
	dim Dimension
	dir Direction
}

// wiltonInputs lists the straight input first, then both turns.
func wiltonInputs(dim Dimension, dir Direction) []heading {
	p := dim.Perpendicular()
	return []heading{{dim, dir}, {p, DirInc}, {p, DirDec}}
}

func wiltonTrack(i, w int, fromDim Dimension, fromDir Direction, toDim Dimension, toDir Direction) int {
	if fromDim == toDim {
		return i
	}
	o := i
	if (int(fromDir)+int(toDir)+int(fromDim))%2 == 1 {
		o = w - 1 - i
	}
	skip := 1
	if toDir == DirDec {
		skip = w - 1
	}
	return (o + skip) % w
}

// PopulateRouteSegments populates a combined routing block: the channel
// part as a connection block and the corner part as a switch block selected
// by env. Bridges are only created for wires entering neighboring blocks.
func PopulateRouteSegments(m *Module, protos []*SegmentPrototype, env SwitchBlockEnvironment, driveTruncated bool) error {
	if m.kind != ModBlock || (m.block != BlockXRoute && m.block != BlockYRoute) {
		return errors.Wrapf(ErrInvalidArg, "%s is not a routing block", m.name)
	}
	if err := PopulateSwitchSegments(m, protos, env, driveTruncated, true); err != nil {
		return err
	}
	for _, proto := range protos {
		for _, dir := range directions {
			for s := 0; s < proto.Length; s++ {
				n := SegmentNode{Prototype: proto, Direction: dir, Dimension: m.dimension, Section: s}
				if _, err := nodePort(m, PrefixIn, n, Input, false); err != nil {
					return err
				}
			}
			n := SegmentNode{Prototype: proto, Direction: dir, Dimension: m.dimension}
			if m.Port(NodePortName(PrefixOut, n)) == nil {
				if _, err := nodePort(m, PrefixBridge, n, Output, true); err != nil {
					return err
				}
			}
		}
	}
	return nil
}
