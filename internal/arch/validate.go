package arch

import (
	"github.com/pkg/errors"
)

// CheckPhysicalAcyclic walks the physical sources of every physical sink in
// m and fails on a combinational loop. Switch instances are transparent: their
// output depends on their data inputs. Other instances are opaque.
func CheckPhysicalAcyclic(m *Module) error {
	const (
		white = iota
		grey
		black
	)
	color := map[Bit]int{}
	var visit func(b Bit) error
	visit = func(b Bit) error {
		switch color[b] {
		case grey:
			return errors.Wrapf(ErrPhysicalCycle, "through %s", b)
		case black:
			return nil
		}
		color[b] = grey
		var next []Bit
		switch {
		case b.IsPhysicalSink():
			if src := PhysicalSource(b); !src.IsConst() {
				next = append(next, src)
			}
		case b.typ == NetPin && b.inst.model.kind == ModSwitch:
			if in := b.inst.Pin("i"); in != nil {
				next = append(next, Bits(in)...)
			}
		}
		for _, n := range next {
			if err := visit(n); err != nil {
				return err
			}
		}
		color[b] = black
		return nil
	}
	for _, sink := range physicalSinks(m) {
		if err := visit(sink); err != nil {
			return err
		}
	}
	return nil
}

// physicalSinks lists the physical sink bits of m: its output ports and its
// instances' input pins, in declaration order.
func physicalSinks(m *Module) []Bit {
	var out []Bit
	for _, p := range m.Ports() {
		if p.direction == Output && p.IsPhysical() {
			out = append(out, Bits(p)...)
		}
	}
	for _, inst := range m.Instances() {
		if !inst.view.Has(ViewPhysical) {
			continue
		}
		for _, pin := range inst.Pins() {
			if pin.Direction() == Input && pin.model.IsPhysical() {
				out = append(out, Bits(pin)...)
			}
		}
	}
	return out
}

// LogicalSinks lists the logical sink bits of m in declaration order.
func LogicalSinks(m *Module) []Bit {
	var out []Bit
	for _, p := range m.Ports() {
		if p.direction == Output && p.IsLogical() {
			out = append(out, Bits(p)...)
		}
	}
	for _, inst := range m.Instances() {
		if !inst.view.Has(ViewLogical) {
			continue
		}
		for _, pin := range inst.Pins() {
			if pin.Direction() == Input && pin.model.IsLogical() {
				out = append(out, Bits(pin)...)
			}
		}
	}
	return out
}

// PhysicalSinks lists the physical sink bits of m in declaration order.
func PhysicalSinks(m *Module) []Bit { return physicalSinks(m) }
