package passes

import (
	"github.com/pkg/errors"

	"prga/internal/arch"
	"prga/internal/diag"
	"prga/internal/flow"
)

// Bitchain port and instance names on the top-level array.
const (
	BitchainInstance = "cfg_bitchain"
	PortCfgClk       = "cfg_clk"
	PortCfgEnable    = "cfg_e"
	PortCfgIn        = "cfg_i"
	PortCfgOut       = "cfg_o"
)

// BitchainAllocation lays out the configuration memory. Every module gets a
// cfg_bits total and every configurable instance a cfg_offset into its
// parent's cfg_d bus. The top-level array is fed by one serial shift
// register covering the whole fabric.
type BitchainAllocation struct {
	flow.Base
	reporter *diag.Reporter
}

func NewBitchainAllocation(reporter *diag.Reporter) *BitchainAllocation {
	return &BitchainAllocation{reporter: reporter}
}

func (b *BitchainAllocation) Key() string { return KeyBitchain }

func (b *BitchainAllocation) Dependences() []string { return []string{"switch"} }

func (b *BitchainAllocation) Run(ctx *arch.Context) error {
	top := ctx.Top()
	if top == nil {
		return errors.Wrap(arch.ErrInvalidArg, "configuration allocation requires a top-level array")
	}
	bits, err := arch.RegisterTable[*arch.Module, int](ctx, TableCfgBits, KeyBitchain)
	if err != nil {
		return err
	}
	offsets, err := arch.RegisterTable[*arch.Instance, int](ctx, TableCfgOffset, KeyBitchain)
	if err != nil {
		return err
	}
	for _, m := range modulesBottomUp(top) {
		if err := allocate(ctx, m, m == top, bits, offsets); err != nil {
			return errors.Wrapf(err, "module %s", m.Name())
		}
	}
	if b.reporter != nil {
		b.reporter.Infof("configuration memory: %d bits", bits.Lookup(top))
	}
	return nil
}

func allocate(ctx *arch.Context, m *arch.Module, isTop bool, bits *arch.Table[*arch.Module, int], offsets *arch.Table[*arch.Instance, int]) error {
	switch m.Kind() {
	case arch.ModPrimitive, arch.ModSwitch:
		bits.Set(m, m.CfgWidth())
		return nil
	case arch.ModConfig:
		bits.Set(m, 0)
		return nil
	}
	var children []*arch.Instance
	total := 0
	for _, inst := range m.Instances() {
		if !inst.View().Has(arch.ViewPhysical) {
			continue
		}
		n := bits.Lookup(inst.Model())
		if n == 0 {
			continue
		}
		offsets.Set(inst, total)
		children = append(children, inst)
		total += n
	}
	bits.Set(m, total)
	if total == 0 {
		return nil
	}
	var bus arch.Net
	if isTop {
		chain, err := bitchain(ctx, m, total)
		if err != nil {
			return err
		}
		bus = chain.Pin(arch.CfgPortName)
	} else {
		p, err := m.CreatePort(arch.CfgPortName, total, arch.Input, arch.WithView(arch.ViewPhysical))
		if err != nil {
			return err
		}
		bus = p
	}
	for _, inst := range children {
		pin := inst.Pin(arch.CfgPortName)
		if pin == nil {
			return errors.Wrapf(arch.ErrUnknown, "%s has configuration bits but no %s port", inst, arch.CfgPortName)
		}
		if err := arch.SetPhysicalSource(pin, arch.Slice(bus, offsets.Lookup(inst), pin.Width())); err != nil {
			return err
		}
	}
	return nil
}

// bitchain instantiates the shift register in the top-level array and
// exposes its serial interface.
func bitchain(ctx *arch.Context, top *arch.Module, length int) (*arch.Instance, error) {
	model, err := arch.NewBitchain(length)
	if err != nil {
		return nil, err
	}
	if existing := ctx.Module(model.Name()); existing != nil {
		model = existing
	} else if err := ctx.AddModule(model); err != nil {
		return nil, err
	}
	inst, err := top.AddInstance(model, BitchainInstance)
	if err != nil {
		return nil, err
	}
	ports := []struct {
		name string
		dir  arch.PortDirection
		opts []arch.PortOption
	}{
		{PortCfgClk, arch.Input, []arch.PortOption{arch.WithClock()}},
		{PortCfgEnable, arch.Input, nil},
		{PortCfgIn, arch.Input, nil},
		{PortCfgOut, arch.Output, nil},
	}
	for _, p := range ports {
		opts := append([]arch.PortOption{arch.WithView(arch.ViewPhysical), arch.AsExternal()}, p.opts...)
		port, err := top.CreatePort(p.name, 1, p.dir, opts...)
		if err != nil {
			return nil, err
		}
		if p.dir == arch.Input {
			err = arch.SetPhysicalSource(inst.Pin(p.name), port)
		} else {
			err = arch.SetPhysicalSource(port, inst.Pin(p.name))
		}
		if err != nil {
			return nil, err
		}
	}
	return inst, nil
}
