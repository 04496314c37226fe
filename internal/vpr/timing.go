package vpr

import "prga/internal/arch"

// SwitchTiming is the electrical model of a routing switch.
type SwitchTiming struct {
	R, Cin, Cout, Tdel float64
	MuxTransSize       float64
	BufSize            float64
}

// WireTiming is the per-unit-length model of a routing segment.
type WireTiming struct {
	RMetal, CMetal float64
}

// PrimitiveTiming holds the delays VPR reads from a primitive pb_type.
type PrimitiveTiming struct {
	// Delay is the combinational delay from any input to any output.
	Delay float64
	// Setup and ClockToQ apply to sequential primitives.
	Setup, ClockToQ float64
}

// Timing answers the delay questions the VPR writers ask.
type Timing interface {
	Switch() SwitchTiming
	Wire(p *arch.SegmentPrototype) WireTiming
	Primitive(m *arch.Module) PrimitiveTiming
}

// ConstantTiming returns the same values for every query.
type ConstantTiming struct {
	SwitchValues    SwitchTiming
	WireValues      WireTiming
	PrimitiveValues PrimitiveTiming
}

// DefaultTiming is used when no timing engine is configured.
var DefaultTiming = ConstantTiming{
	SwitchValues:    SwitchTiming{R: 0, Cin: 0, Cout: 0, Tdel: 1e-11, MuxTransSize: 1, BufSize: 1},
	WireValues:      WireTiming{RMetal: 0, CMetal: 0},
	PrimitiveValues: PrimitiveTiming{Delay: 1e-11, Setup: 1e-11, ClockToQ: 1e-11},
}

func (c ConstantTiming) Switch() SwitchTiming { return c.SwitchValues }

func (c ConstantTiming) Wire(*arch.SegmentPrototype) WireTiming { return c.WireValues }

func (c ConstantTiming) Primitive(*arch.Module) PrimitiveTiming { return c.PrimitiveValues }
