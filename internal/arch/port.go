package arch

import (
	"fmt"
)

// Port is a named, fixed-width bus owned by a module.
type Port struct {
	name      string
	parent    *Module
	width     int
	direction PortDirection
	clock     bool
	view      View

	global           *Global
	side             Orientation
	xoffset, yoffset int
	node             RoutingNode
	bridge           bool
	external         bool

	state netState
}

// PortOption customizes a port at creation.
type PortOption func(*Port)

// WithClock marks the port as a clock.
func WithClock() PortOption { return func(p *Port) { p.clock = true } }

// WithView restricts the port to the given views.
func WithView(v View) PortOption { return func(p *Port) { p.view = v } }

// WithGlobal binds a block input port to a global wire.
func WithGlobal(g *Global) PortOption {
	return func(p *Port) {
		p.global = g
		p.clock = g.IsClock
	}
}

// WithSide places a block port on a side of the tile at the given offset
// into the block footprint.
func WithSide(side Orientation, xoffset, yoffset int) PortOption {
	return func(p *Port) {
		p.side = side
		p.xoffset = xoffset
		p.yoffset = yoffset
	}
}

// WithNode attaches a routing node to a routing-block port.
func WithNode(n RoutingNode) PortOption { return func(p *Port) { p.node = n } }

// AsBridge marks a routing-node port as part of the bridge view.
func AsBridge() PortOption { return func(p *Port) { p.bridge = true } }

// AsExternal marks a port that must be exported to the top level, such as
// an IO pad.
func AsExternal() PortOption { return func(p *Port) { p.external = true } }

func (p *Port) Type() NetType { return NetPort }
func (p *Port) Width() int { return p.width }

// Bit returns bit i of the port.
func (p *Port) Bit(i int) Bit {
	if i < 0 || i >= p.width {
		panic(fmt.Sprintf("bit index %d out of range for %s", i, p))
	}
	return Bit{typ: NetPort, port: p, index: i}
}

func (p *Port) Name() string { return p.name }
func (p *Port) Parent() *Module { return p.parent }
func (p *Port) Direction() PortDirection { return p.direction }
func (p *Port) IsClock() bool { return p.clock }
func (p *Port) View() View { return p.view }
func (p *Port) IsLogical() bool { return p.view.Has(ViewLogical) }
func (p *Port) IsPhysical() bool { return p.view.Has(ViewPhysical) }
func (p *Port) Global() *Global { return p.global }
func (p *Port) Side() Orientation { return p.side }
func (p *Port) Offset() (x, y int) { return p.xoffset, p.yoffset }
func (p *Port) Node() RoutingNode { return p.node }
func (p *Port) IsBridge() bool { return p.bridge }
func (p *Port) IsExternal() bool { return p.external }
func (p *Port) String() string { return p.parent.name + "." + p.name }
func (p *Port) sinkRole() bool { return p.direction == Output }
func (p *Port) statePtr() *netState { return &p.state }
func (p *Port) busRef() busRef { return busRef{typ: NetPort, port: p} }
