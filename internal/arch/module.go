package arch

import (
	"github.com/pkg/errors"
)

// ModuleKind partitions modules into disjoint classes.
type ModuleKind int

const (
	ModPrimitive ModuleKind = iota
	ModSwitch
	ModConfig
	ModShadow
	ModSlice
	ModBlock
)

func (k ModuleKind) String() string {
	switch k {
	case ModPrimitive:
		return "primitive"
	case ModSwitch:
		return "switch"
	case ModConfig:
		return "config"
	case ModShadow:
		return "shadow"
	case ModSlice:
		return "slice"
	case ModBlock:
		return "block"
	}
	return "?"
}

// PrimitiveKind refines ModPrimitive.
type PrimitiveKind int

const (
	PrimCustom PrimitiveKind = iota
	PrimLUT
	PrimFlipflop
	PrimInputPad
	PrimOutputPad
	PrimIOPad
	PrimMemory
	PrimMultimode
)

// BlockKind refines ModBlock.
type BlockKind int

const (
	BlockLogic BlockKind = iota
	BlockIO
	BlockXConnection
	BlockYConnection
	BlockSwitch
	BlockXRoute
	BlockYRoute
	BlockArray
)

func (k BlockKind) String() string {
	switch k {
	case BlockLogic:
		return "logic"
	case BlockIO:
		return "io"
	case BlockXConnection:
		return "xconn"
	case BlockYConnection:
		return "yconn"
	case BlockSwitch:
		return "switch"
	case BlockXRoute:
		return "xroute"
	case BlockYRoute:
		return "yroute"
	case BlockArray:
		return "array"
	}
	return "?"
}

// IsRouting reports whether blocks of this kind are synthesized routing
// blocks.
func (k BlockKind) IsRouting() bool {
	switch k {
	case BlockXConnection, BlockYConnection, BlockSwitch, BlockXRoute, BlockYRoute:
		return true
	}
	return false
}

// Module is a reusable definition owning ports and instances.
type Module struct {
	name      string
	kind      ModuleKind
	primitive PrimitiveKind
	block     BlockKind
	view      View
	ports     ordered[*Port]
	instances ordered[*Instance]

	cfgWidth  int
	lutSize   int
	muxWidth  int
	addrWidth int
	dataWidth int
	modes     []*Module
	template  string

	width, height, capacity int
	fc                      FC
	dimension               Dimension
	env                     SwitchBlockEnvironment
	grid                    *grid
}

func newModule(name string, kind ModuleKind, view View) *Module {
	return &Module{
		name:      name,
		kind:      kind,
		view:      view,
		ports:     newOrdered[*Port](),
		instances: newOrdered[*Instance](),
		width:     1,
		height:    1,
		capacity:  1,
	}
}

// NewSlice creates an intermediate grouping module used inside blocks.
func NewSlice(name string) *Module { return newModule(name, ModSlice, ViewBoth) }

// NewShadow creates a physical-only module.
func NewShadow(name string) *Module { return newModule(name, ModShadow, ViewPhysical) }

func (m *Module) Name() string                 { return m.name }
func (m *Module) Kind() ModuleKind             { return m.kind }
func (m *Module) PrimitiveKind() PrimitiveKind { return m.primitive }
func (m *Module) BlockKind() BlockKind         { return m.block }
func (m *Module) View() View                   { return m.view }
func (m *Module) IsLogical() bool              { return m.view.Has(ViewLogical) }
func (m *Module) IsPhysical() bool             { return m.view.Has(ViewPhysical) }
func (m *Module) String() string               { return m.name }

// IsBlock reports whether m is a block of the given kind.
func (m *Module) IsBlock(kind BlockKind) bool { return m.kind == ModBlock && m.block == kind }

// IsRoutingBlock reports whether m is a synthesized routing block.
func (m *Module) IsRoutingBlock() bool { return m.kind == ModBlock && m.block.IsRouting() }

// IsArray reports whether m is an array.
func (m *Module) IsArray() bool { return m.IsBlock(BlockArray) }

// IsConfigurable reports whether the module itself stores configuration
// bits, apart from those of its children.
func (m *Module) IsConfigurable() bool { return m.cfgWidth > 0 }

// CfgWidth returns the configuration bits the module contributes by itself.
func (m *Module) CfgWidth() int { return m.cfgWidth }

// LUTSize returns K for a K-input LUT.
func (m *Module) LUTSize() int { return m.lutSize }

// MuxWidth returns the number of inputs of a switch.
func (m *Module) MuxWidth() int { return m.muxWidth }

// MemoryShape returns the address and data width of a memory.
func (m *Module) MemoryShape() (addr, data int) { return m.addrWidth, m.dataWidth }

// Modes returns the logical mode modules of a multimode primitive.
func (m *Module) Modes() []*Module { return append([]*Module(nil), m.modes...) }

// Template names the builtin Verilog body of the module; empty for modules
// emitted structurally.
func (m *Module) Template() string { return m.template }

// Size returns the footprint of a block.
func (m *Module) Size() (width, height int) { return m.width, m.height }

// Capacity returns the number of sub-blocks of a block.
func (m *Module) Capacity() int { return m.capacity }

// Dimension returns the channel dimension of a connection or route block.
func (m *Module) Dimension() Dimension { return m.dimension }

// Environment returns the environment a switch block was populated for.
func (m *Module) Environment() SwitchBlockEnvironment { return m.env }

// Ports returns the ports in creation order.
func (m *Module) Ports() []*Port { return m.ports.values() }

// Port returns the named port or nil.
func (m *Module) Port(name string) *Port {
	p, _ := m.ports.get(name)
	return p
}

// Instances returns the sub-instances in creation order.
func (m *Module) Instances() []*Instance { return m.instances.values() }

// Instance returns the named sub-instance or nil.
func (m *Module) Instance(name string) *Instance {
	i, _ := m.instances.get(name)
	return i
}

// CreatePort adds a port. The port view is clipped to the module view.
func (m *Module) CreatePort(name string, width int, dir PortDirection, opts ...PortOption) (*Port, error) {
	if width < 1 {
		return nil, errors.Wrapf(ErrInvalidArg, "port %s.%s width %d", m.name, name, width)
	}
	if name == "" {
		return nil, errors.Wrapf(ErrInvalidArg, "empty port name in %s", m.name)
	}
	if _, ok := m.ports.get(name); ok {
		return nil, errors.Wrapf(ErrDuplicate, "port %s.%s", m.name, name)
	}
	p := &Port{
		name:      name,
		parent:    m,
		width:     width,
		direction: dir,
		view:      m.view,
	}
	for _, opt := range opts {
		opt(p)
	}
	p.view &= m.view
	if p.view == 0 {
		return nil, errors.Wrapf(ErrInvalidArg, "port %s.%s has no view", m.name, name)
	}
	if p.xoffset < 0 || p.xoffset >= m.width || p.yoffset < 0 || p.yoffset >= m.height {
		return nil, errors.Wrapf(ErrInvalidOffset, "port %s.%s offset (%d, %d)", m.name, name, p.xoffset, p.yoffset)
	}
	m.ports.put(name, p)
	return p, nil
}

// AddInstance instantiates model inside m. Instantiating m inside itself,
// directly or transitively, is rejected.
func (m *Module) AddInstance(model *Module, name string) (*Instance, error) {
	if name == "" {
		return nil, errors.Wrapf(ErrInvalidArg, "empty instance name in %s", m.name)
	}
	if _, ok := m.instances.get(name); ok {
		return nil, errors.Wrapf(ErrDuplicate, "instance %s.%s", m.name, name)
	}
	if model == m || model.contains(m) {
		return nil, errors.Wrapf(ErrCyclicInstance, "%s inside %s", model.name, m.name)
	}
	inst := &Instance{name: name, parent: m, model: model, view: model.view & m.view}
	if inst.view == 0 {
		return nil, errors.Wrapf(ErrInvalidArg, "instance %s.%s has no view", m.name, name)
	}
	m.instances.put(name, inst)
	return inst, nil
}

func (m *Module) contains(target *Module) bool {
	seen := map[*Module]bool{}
	var walk func(*Module) bool
	walk = func(cur *Module) bool {
		if seen[cur] {
			return false
		}
		seen[cur] = true
		for _, inst := range cur.instances.values() {
			if inst.model == target || walk(inst.model) {
				return true
			}
		}
		return false
	}
	return walk(m)
}
