package arch

import (
	"fmt"
	"math/bits"

	"github.com/pkg/errors"
)

// Builtin Verilog template names.
const (
	TemplateLUT       = "lut"
	TemplateFlipflop  = "flipflop"
	TemplateIOPad     = "iopad"
	TemplateMux       = "cmux"
	TemplateMemory    = "memory"
	TemplateBitchain  = "bitchain"
	TemplateMultimode = "multimode"
)

// CfgPortName is the configuration data input of every configurable module.
const CfgPortName = "cfg_d"

// SelectBits returns ceil(log2(n)) for n >= 1.
func SelectBits(n int) int {
	if n <= 1 {
		return 0
	}
	return bits.Len(uint(n - 1))
}

func newPrimitive(name string, kind PrimitiveKind, template string) *Module {
	m := newModule(name, ModPrimitive, ViewBoth)
	m.primitive = kind
	m.template = template
	return m
}

func mustPort(m *Module, name string, width int, dir PortDirection, opts ...PortOption) *Port {
	p, err := m.CreatePort(name, width, dir, opts...)
	if err != nil {
		panic(err)
	}
	return p
}

func addCfgPort(m *Module, width int) {
	m.cfgWidth = width
	mustPort(m, CfgPortName, width, Input, WithView(ViewPhysical))
}

// NewLUT creates a K-input look-up table named lutK.
func NewLUT(k int) (*Module, error) {
	if k < 2 || k > 8 {
		return nil, errors.Wrapf(ErrInvalidArg, "LUT size %d", k)
	}
	m := newPrimitive(fmt.Sprintf("lut%d", k), PrimLUT, TemplateLUT)
	m.lutSize = k
	mustPort(m, "in", k, Input)
	mustPort(m, "out", 1, Output)
	addCfgPort(m, 1<<k)
	return m, nil
}

// NewFlipflop creates a D flip-flop.
func NewFlipflop() *Module {
	m := newPrimitive("flipflop", PrimFlipflop, TemplateFlipflop)
	mustPort(m, "clk", 1, Input, WithClock())
	mustPort(m, "D", 1, Input)
	mustPort(m, "Q", 1, Output)
	return m
}

// NewIOPad creates a bidirectional pad. outpad and inpad face the fabric;
// ipin, opin and oe face the package and exist only physically. A single
// configuration bit selects input or output mode.
func NewIOPad() *Module {
	m := newPrimitive("iopad", PrimIOPad, TemplateIOPad)
	mustPort(m, "outpad", 1, Input)
	mustPort(m, "inpad", 1, Output)
	mustPort(m, "ipin", 1, Input, WithView(ViewPhysical), AsExternal())
	mustPort(m, "opin", 1, Output, WithView(ViewPhysical), AsExternal())
	mustPort(m, "oe", 1, Output, WithView(ViewPhysical), AsExternal())
	addCfgPort(m, 1)
	return m
}

// NewMemory creates a single-clock memory with one read and one write port.
func NewMemory(name string, addrWidth, dataWidth int) (*Module, error) {
	if addrWidth < 1 || dataWidth < 1 {
		return nil, errors.Wrapf(ErrInvalidArg, "memory %s shape %dx%d", name, addrWidth, dataWidth)
	}
	m := newPrimitive(name, PrimMemory, TemplateMemory)
	m.addrWidth, m.dataWidth = addrWidth, dataWidth
	mustPort(m, "clk", 1, Input, WithClock())
	mustPort(m, "we", 1, Input)
	mustPort(m, "waddr", addrWidth, Input)
	mustPort(m, "din", dataWidth, Input)
	mustPort(m, "raddr", addrWidth, Input)
	mustPort(m, "dout", dataWidth, Output)
	return m, nil
}

// NewCustom creates a user primitive. Its Verilog body is supplied through
// the verilog_template side table.
func NewCustom(name string) *Module {
	return newPrimitive(name, PrimCustom, "")
}

// NewMultimode creates a primitive that implements one of several logical
// modes. The mode modules must only use ports that the multimode primitive
// declares; mode selection costs ceil(log2(len(modes))) configuration bits.
func NewMultimode(name string, modes ...*Module) (*Module, error) {
	if len(modes) < 2 {
		return nil, errors.Wrapf(ErrInvalidArg, "multimode %s needs at least two modes", name)
	}
	m := newPrimitive(name, PrimMultimode, TemplateMultimode)
	seen := map[string]bool{}
	for _, md := range modes {
		if seen[md.name] {
			return nil, errors.Wrapf(ErrDuplicate, "mode %s of %s", md.name, name)
		}
		seen[md.name] = true
		m.modes = append(m.modes, md)
	}
	return m, nil
}

// FinalizeMultimode allocates the mode-select configuration port once all
// user ports are declared. It returns the names of mode ports that have no
// counterpart on the multimode primitive.
func FinalizeMultimode(m *Module) ([]string, error) {
	if m.kind != ModPrimitive || m.primitive != PrimMultimode {
		return nil, errors.Wrapf(ErrInvalidArg, "%s is not a multimode primitive", m.name)
	}
	var orphans []string
	for _, md := range m.modes {
		for _, p := range md.Ports() {
			mp := m.Port(p.name)
			if mp == nil || mp.width != p.width || mp.direction != p.direction {
				orphans = append(orphans, md.name+"."+p.name)
			}
		}
	}
	if m.Port(CfgPortName) == nil {
		addCfgPort(m, SelectBits(len(m.modes)))
	}
	return orphans, nil
}

// NewMux creates the configurable N-to-1 switch cmuxN.
func NewMux(n int) (*Module, error) {
	if n < 2 {
		return nil, errors.Wrapf(ErrInvalidArg, "mux width %d", n)
	}
	m := newModule(fmt.Sprintf("cmux%d", n), ModSwitch, ViewPhysical)
	m.template = TemplateMux
	m.muxWidth = n
	mustPort(m, "i", n, Input)
	mustPort(m, "o", 1, Output)
	addCfgPort(m, SelectBits(n))
	return m, nil
}

// NewBitchain creates a serial configuration shift register of the given
// length. Its parallel output feeds the cfg_d port of the array it is placed
// in.
func NewBitchain(length int) (*Module, error) {
	if length < 1 {
		return nil, errors.Wrapf(ErrInvalidArg, "bitchain length %d", length)
	}
	m := newModule(fmt.Sprintf("cfg_bitchain_%d", length), ModConfig, ViewPhysical)
	m.template = TemplateBitchain
	mustPort(m, "cfg_clk", 1, Input, WithClock())
	mustPort(m, "cfg_e", 1, Input)
	mustPort(m, "cfg_i", 1, Input)
	mustPort(m, "cfg_o", 1, Output)
	mustPort(m, "cfg_d", length, Output)
	return m, nil
}
