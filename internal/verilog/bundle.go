package verilog

import (
	"fmt"
	"strings"

	"prga/internal/arch"
)

// segment is a run of bits that renders as one Verilog term.
type segment struct {
	// bus bits
	name      string
	busWidth  int
	low, high int
	// constant bits
	constant arch.NetType
	width    int
}

func (s segment) isConst() bool { return s.name == "" }

func (s segment) String() string {
	if s.isConst() {
		digit := "x"
		switch s.constant {
		case arch.NetZero:
			digit = "0"
		case arch.NetOne:
			digit = "1"
		}
		return fmt.Sprintf("%d'b%s", s.width, strings.Repeat(digit, s.width))
	}
	switch {
	case s.low == 0 && s.high == s.busWidth-1:
		return s.name
	case s.low == s.high:
		return fmt.Sprintf("%s[%d]", s.name, s.low)
	}
	return fmt.Sprintf("%s[%d:%d]", s.name, s.high, s.low)
}

// NetBundle is a list of bits collapsed into the fewest Verilog terms.
// Adjacent bits of one bus become a slice and adjacent constants of the
// same value become one literal.
type NetBundle struct {
	segments []segment
	width    int
	open     int
}

// Bundle collapses the bits of n, bit 0 first.
func Bundle(n arch.Net) NetBundle {
	var b NetBundle
	for _, bit := range arch.Bits(n) {
		b.add(bit)
	}
	return b
}

func (b *NetBundle) add(bit arch.Bit) {
	b.width++
	if bit.Type() == arch.NetOpen {
		b.open++
	}
	if bit.IsConst() {
		if n := len(b.segments); n > 0 && b.segments[n-1].isConst() && b.segments[n-1].constant == bit.Type() {
			b.segments[n-1].width++
			return
		}
		b.segments = append(b.segments, segment{constant: bit.Type(), width: 1})
		return
	}
	name := NetName(bit)
	if n := len(b.segments); n > 0 {
		last := &b.segments[n-1]
		if last.name == name && bit.Index() == last.high+1 {
			last.high++
			return
		}
	}
	b.segments = append(b.segments, segment{name: name, busWidth: bit.Port().Width(), low: bit.Index(), high: bit.Index()})
}

// Width returns the number of bits in the bundle.
func (b NetBundle) Width() int { return b.width }

// IsOpen reports whether every bit is unconnected.
func (b NetBundle) IsOpen() bool { return b.open == b.width }

// String renders the bundle, most significant term first.
func (b NetBundle) String() string {
	switch len(b.segments) {
	case 0:
		return ""
	case 1:
		return b.segments[0].String()
	}
	parts := make([]string, len(b.segments))
	for i, s := range b.segments {
		parts[len(b.segments)-1-i] = s.String()
	}
	return "{" + strings.Join(parts, ", ") + "}"
}

// NetName returns the Verilog net a port or pin bit lives on. Output pins
// of instances are declared as wires named after the instance and port.
func NetName(bit arch.Bit) string {
	if bit.Type() == arch.NetPin {
		return PinWire(bit.Instance(), bit.Port())
	}
	return bit.Port().Name()
}

// PinWire names the wire carrying an instance output pin.
func PinWire(inst *arch.Instance, port *arch.Port) string {
	return inst.Name() + "__" + port.Name()
}
