package arch

import (
	"fmt"
	"strings"
)

// NetType enumerates the kinds of single-bit nets.
type NetType int

const (
	netInvalid NetType = iota
	NetOpen
	NetZero
	NetOne
	NetPort
	NetPin
)

func (t NetType) String() string {
	switch t {
	case NetOpen:
		return "open"
	case NetZero:
		return "zero"
	case NetOne:
		return "one"
	case NetPort:
		return "port"
	case NetPin:
		return "pin"
	default:
		return "invalid"
	}
}

// PortDirection enumerates supported port directions.
type PortDirection int

const (
	Input PortDirection = iota
	Output
)

func (d PortDirection) String() string {
	if d == Output {
		return "output"
	}
	return "input"
}

// View selects the logical and/or physical view of the netlist.
type View uint8

const (
	ViewLogical View = 1 << iota
	ViewPhysical
	ViewBoth = ViewLogical | ViewPhysical
)

// Has reports whether v includes all views in other.
func (v View) Has(other View) bool { return v&other == other }

// Net is a bus or a single bit. Ports, pins, bits and concatenations
// implement it.
type Net interface {
	Type() NetType
	Width() int
	Bit(i int) Bit
	String() string
}

// Bit identifies a single net bit by value. Bits are comparable and are the
// only form in which the netlist stores references, so a Bit never aliases a
// transient pin object.
type Bit struct {
	typ   NetType
	inst  *Instance
	port  *Port
	index int
}

// Process-wide constant nets.
var (
	Open = Bit{typ: NetOpen}
	Zero = Bit{typ: NetZero}
	One  = Bit{typ: NetOne}
)

func (b Bit) Type() NetType { return b.typ }
func (b Bit) Width() int { return 1 }

// Bit returns b itself; i must be zero.
func (b Bit) Bit(i int) Bit {
	if i != 0 {
		panic(fmt.Sprintf("bit index %d out of range for %s", i, b))
	}
	return b
}

// Valid reports whether b refers to a net at all.
func (b Bit) Valid() bool { return b.typ != netInvalid }

// IsConst reports whether b is one of Open, Zero or One.
func (b Bit) IsConst() bool {
	return b.typ == NetOpen || b.typ == NetZero || b.typ == NetOne
}

// Port returns the port backing the bit. For pin bits this is the port of the
// instantiated model.
func (b Bit) Port() *Port { return b.port }

// Instance returns the instance owning a pin bit, nil otherwise.
func (b Bit) Instance() *Instance { return b.inst }

// Index returns the bit position within its bus.
func (b Bit) Index() int { return b.index }

// Parent returns the module in which the bit is visible.
func (b Bit) Parent() *Module {
	switch b.typ {
	case NetPort:
		return b.port.parent
	case NetPin:
		return b.inst.parent
	}
	return nil
}

// Bus returns the port or pin containing the bit.
func (b Bit) Bus() Net {
	switch b.typ {
	case NetPort:
		return b.port
	case NetPin:
		return b.inst.Pin(b.port.name)
	}
	return b
}

// IsSink reports whether the bit is driven inside its parent module.
func (b Bit) IsSink() bool {
	switch b.typ {
	case NetPort:
		return b.port.direction == Output
	case NetPin:
		return b.port.direction == Input
	}
	return false
}

// IsSource reports whether the bit may drive other bits in its parent.
func (b Bit) IsSource() bool {
	switch b.typ {
	case NetPort:
		return b.port.direction == Input
	case NetPin:
		return b.port.direction == Output
	case NetOpen, NetZero, NetOne:
		return true
	}
	return false
}

func (b Bit) view() View {
	switch b.typ {
	case NetPort:
		return b.port.view
	case NetPin:
		return b.port.view & b.inst.view
	case NetOpen, NetZero, NetOne:
		return ViewBoth
	}
	return 0
}

// IsLogical reports whether the bit exists in the logical view.
func (b Bit) IsLogical() bool { return b.view().Has(ViewLogical) }

// IsPhysical reports whether the bit exists in the physical view.
func (b Bit) IsPhysical() bool { return b.view().Has(ViewPhysical) }

func (b Bit) IsLogicalSink() bool { return b.IsSink() && b.IsLogical() }
func (b Bit) IsPhysicalSink() bool { return b.IsSink() && b.IsPhysical() }
func (b Bit) IsLogicalSource() bool { return b.IsSource() && b.IsLogical() && b.typ != NetOpen }
func (b Bit) IsPhysicalSource() bool { return b.IsSource() && b.IsPhysical() }

func (b Bit) String() string {
	switch b.typ {
	case NetOpen:
		return "open"
	case NetZero:
		return "1'b0"
	case NetOne:
		return "1'b1"
	case NetPort:
		if b.port.width == 1 {
			return fmt.Sprintf("%s.%s", b.port.parent.name, b.port.name)
		}
		return fmt.Sprintf("%s.%s[%d]", b.port.parent.name, b.port.name, b.index)
	case NetPin:
		if b.port.width == 1 {
			return fmt.Sprintf("%s.%s.%s", b.inst.parent.name, b.inst.name, b.port.name)
		}
		return fmt.Sprintf("%s.%s.%s[%d]", b.inst.parent.name, b.inst.name, b.port.name, b.index)
	}
	return "<invalid>"
}

// Concat is an ordered list of bits viewed as a bus, bit 0 first.
type Concat []Bit

func (c Concat) Width() int { return len(c) }
func (c Concat) Bit(i int) Bit { return c[i] }

// Type returns the shared constant type of all bits, or NetPort/NetPin when
// every bit is of that type.
func (c Concat) Type() NetType {
	if len(c) == 0 {
		return netInvalid
	}
	t := c[0].typ
	for _, b := range c[1:] {
		if b.typ != t {
			return netInvalid
		}
	}
	return t
}

func (c Concat) String() string {
	parts := make([]string, len(c))
	for i := range c {
		parts[len(c)-1-i] = c[i].String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// Bits expands any net into its bits.
func Bits(n Net) []Bit {
	if c, ok := n.(Concat); ok {
		return append([]Bit(nil), c...)
	}
	out := make([]Bit, n.Width())
	for i := range out {
		out[i] = n.Bit(i)
	}
	return out
}

// Slice returns bits [low, low+width) of n as a concatenation.
func Slice(n Net, low, width int) Concat {
	out := make(Concat, width)
	for i := 0; i < width; i++ {
		out[i] = n.Bit(low + i)
	}
	return out
}
