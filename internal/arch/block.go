package arch

import (
	"math"

	"github.com/pkg/errors"
)

// FCValue is a connection-block fullness for one pin. A positive count is an
// absolute number of tracks; a fraction in (0, 1] is relative to the tracks
// available. The zero value connects to every track.
type FCValue struct {
	count    int
	fraction float64
}

// FCCount returns an absolute Fc value.
func FCCount(n int) FCValue { return FCValue{count: n} }

// FCFraction returns a relative Fc value.
func FCFraction(f float64) FCValue { return FCValue{fraction: f} }

// Count returns the absolute track count, or 0 for relative values.
func (v FCValue) Count() int { return v.count }

// Fraction returns the relative value, or 0 for absolute values.
func (v FCValue) Fraction() float64 { return v.fraction }

// IsZero reports whether v is the full-connectivity default.
func (v FCValue) IsZero() bool { return v.count == 0 && v.fraction == 0 }

// Connections converts v into a number of connections out of domain tracks.
func (v FCValue) Connections(domain int) int {
	var n int
	switch {
	case v.count > 0:
		n = v.count
	case v.fraction > 0:
		n = int(math.Ceil(v.fraction * float64(domain)))
	default:
		n = domain
	}
	if n > domain {
		n = domain
	}
	return n
}

// FC holds the block-wide Fc defaults and per-port overrides.
type FC struct {
	In, Out FCValue
	Ports   map[string]FCValue
}

// For returns the Fc value of a block port.
func (fc FC) For(p *Port) FCValue {
	if v, ok := fc.Ports[p.name]; ok {
		return v
	}
	if p.direction == Input {
		return fc.In
	}
	return fc.Out
}

func (fc FC) validate() error {
	for _, v := range append([]FCValue{fc.In, fc.Out}, mapValues(fc.Ports)...) {
		if v.count < 0 || v.fraction < 0 || v.fraction > 1 {
			return errors.Wrapf(ErrInvalidArg, "Fc value %+v", v)
		}
	}
	return nil
}

func mapValues(m map[string]FCValue) []FCValue {
	out := make([]FCValue, 0, len(m))
	for _, v := range m {
		out = append(out, v)
	}
	return out
}

// NewLogicBlock creates a user logic block with the given footprint.
func NewLogicBlock(name string, width, height int) (*Module, error) {
	if width < 1 || height < 1 {
		return nil, errors.Wrapf(ErrInvalidArg, "block %s size %dx%d", name, width, height)
	}
	m := newModule(name, ModBlock, ViewBoth)
	m.block = BlockLogic
	m.width, m.height = width, height
	return m, nil
}

// NewIOBlock creates an IO block holding one pad. The block exposes the
// fabric-side ports outpad and inpad and forwards the pad's package-side
// ports physically.
func NewIOBlock(name string, capacity int, pad *Module) (*Module, error) {
	if capacity < 1 {
		return nil, errors.Wrapf(ErrInvalidArg, "IO block %s capacity %d", name, capacity)
	}
	if pad == nil || pad.primitive != PrimIOPad {
		return nil, errors.Wrapf(ErrInvalidArg, "IO block %s needs an IO pad", name)
	}
	m := newModule(name, ModBlock, ViewBoth)
	m.block = BlockIO
	m.capacity = capacity
	io, err := m.AddInstance(pad, "io")
	if err != nil {
		return nil, err
	}
	outpad := mustPort(m, "outpad", 1, Input)
	inpad := mustPort(m, "inpad", 1, Output)
	if err := Connect(outpad, io.Pin("outpad")); err != nil {
		return nil, err
	}
	if err := Connect(io.Pin("inpad"), inpad); err != nil {
		return nil, err
	}
	for _, p := range pad.Ports() {
		if !p.external {
			continue
		}
		ext := mustPort(m, p.name, p.width, p.direction, WithView(ViewPhysical), AsExternal())
		if p.direction == Input {
			err = SetPhysicalSource(io.Pin(p.name), ext)
		} else {
			err = SetPhysicalSource(ext, io.Pin(p.name))
		}
		if err != nil {
			return nil, err
		}
	}
	return m, nil
}

// SetFC sets the Fc values of a logic or IO block.
func (m *Module) SetFC(fc FC) error {
	if m.kind != ModBlock || (m.block != BlockLogic && m.block != BlockIO) {
		return errors.Wrapf(ErrInvalidArg, "%s does not take Fc values", m.name)
	}
	if err := fc.validate(); err != nil {
		return err
	}
	for name := range fc.Ports {
		if m.Port(name) == nil {
			return errors.Wrapf(ErrUnknown, "Fc override for port %s.%s", m.name, name)
		}
	}
	m.fc = fc
	return nil
}

// FC returns the Fc values of a block.
func (m *Module) FC() FC { return m.fc }

// RoutingPorts returns the block ports that connect to routing channels, in
// creation order.
func (m *Module) RoutingPorts() []*Port {
	var out []*Port
	for _, p := range m.Ports() {
		if p.external || p.global != nil || !p.IsLogical() {
			continue
		}
		out = append(out, p)
	}
	return out
}
