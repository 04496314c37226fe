package fabric

import (
	"regexp"
	"strconv"
	"strings"

	"github.com/pkg/errors"

	"prga/internal/arch"
	"prga/internal/diag"
	"prga/internal/verilog"
)

var lutName = regexp.MustCompile(`^lut([0-9]+)$`)

type builder struct {
	ctx      *arch.Context
	reporter *diag.Reporter
}

// Build creates the context described by d. reporter may be nil.
func Build(d *Description, reporter *diag.Reporter) (*arch.Context, error) {
	if d.Name == "" {
		return nil, errors.Wrap(arch.ErrInvalidArg, "fabric: missing name")
	}
	b := &builder{ctx: arch.NewContext(d.Name), reporter: reporter}
	for _, g := range d.Globals {
		width := g.Width
		if width == 0 {
			width = 1
		}
		if _, err := b.ctx.CreateGlobal(g.Name, width, g.Clock); err != nil {
			return nil, errors.Wrap(err, "fabric")
		}
	}
	for _, s := range d.Segments {
		if _, err := b.ctx.CreateSegment(s.Name, s.Width, s.Length); err != nil {
			return nil, errors.Wrap(err, "fabric")
		}
	}
	for _, p := range d.Primitives {
		if err := b.primitive(p); err != nil {
			return nil, errors.Wrapf(err, "fabric: primitive %s", p.Name)
		}
	}
	for _, blk := range d.Blocks {
		if err := b.block(blk); err != nil {
			return nil, errors.Wrapf(err, "fabric: block %s", blk.Name)
		}
	}
	for _, a := range d.Arrays {
		if err := b.array(a); err != nil {
			return nil, errors.Wrapf(err, "fabric: array %s", a.Name)
		}
	}
	if b.ctx.Top() == nil {
		return nil, errors.Wrap(arch.ErrInvalidArg, "fabric: no array is marked top")
	}
	for _, g := range d.Globals {
		if g.Bind == nil {
			continue
		}
		if err := b.ctx.BindGlobal(g.Name, arch.Position{X: g.Bind.X, Y: g.Bind.Y}, g.Bind.Subblock); err != nil {
			return nil, errors.Wrap(err, "fabric")
		}
	}
	return b.ctx, nil
}

// Load reads and builds the description stored at path.
func Load(path string, reporter *diag.Reporter) (*arch.Context, error) {
	d, err := ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Build(d, reporter)
}

// model resolves a builtin primitive or a previously declared module.
func (b *builder) model(name string) (*arch.Module, error) {
	if m := lutName.FindStringSubmatch(name); m != nil {
		k, _ := strconv.Atoi(m[1])
		return b.ctx.LUT(k)
	}
	switch name {
	case "flipflop":
		return b.ctx.Flipflop()
	case "iopad":
		return b.ctx.IOPad()
	}
	if m := b.ctx.Module(name); m != nil {
		return m, nil
	}
	return nil, errors.Wrapf(arch.ErrUnknown, "model %s", name)
}

func (b *builder) ports(m *arch.Module, ports []Port) error {
	for _, p := range ports {
		dir, err := parseDirection(p.Dir)
		if err != nil {
			return err
		}
		width := p.Width
		if width == 0 {
			width = 1
		}
		var opts []arch.PortOption
		if p.Side != "" {
			side, err := arch.ParseOrientation(p.Side)
			if err != nil {
				return errors.Wrapf(arch.ErrInvalidArg, "port %s: %v", p.Name, err)
			}
			opts = append(opts, arch.WithSide(side, p.XOffset, p.YOffset))
		}
		if p.Global != "" {
			g := b.ctx.Global(p.Global)
			if g == nil {
				return errors.Wrapf(arch.ErrUnknown, "global %s of port %s", p.Global, p.Name)
			}
			opts = append(opts, arch.WithGlobal(g))
		}
		if p.Clock {
			opts = append(opts, arch.WithClock())
		}
		if _, err := m.CreatePort(p.Name, width, dir, opts...); err != nil {
			return err
		}
	}
	return nil
}

func parseDirection(s string) (arch.PortDirection, error) {
	switch s {
	case "input", "in":
		return arch.Input, nil
	case "output", "out":
		return arch.Output, nil
	}
	return arch.Input, errors.Wrapf(arch.ErrInvalidArg, "port direction %q", s)
}

func (b *builder) custom(name string, ports []Port, body string) (*arch.Module, error) {
	m := arch.NewCustom(name)
	if err := b.ports(m, ports); err != nil {
		return nil, err
	}
	if body != "" {
		if err := verilog.SetBody(b.ctx, m, body); err != nil {
			return nil, err
		}
	}
	return m, nil
}

func (b *builder) primitive(p Primitive) error {
	var (
		m   *arch.Module
		err error
	)
	switch p.Kind {
	case "custom", "":
		m, err = b.custom(p.Name, p.Ports, p.Verilog)
	case "memory":
		m, err = arch.NewMemory(p.Name, p.AddrWidth, p.DataWidth)
	case "multimode":
		m, err = b.multimode(p)
	default:
		err = errors.Wrapf(arch.ErrInvalidArg, "primitive kind %q", p.Kind)
	}
	if err != nil {
		return err
	}
	return b.ctx.AddModule(m)
}

func (b *builder) multimode(p Primitive) (*arch.Module, error) {
	var modes []*arch.Module
	for _, md := range p.Modes {
		m, err := b.custom(md.Name, md.Ports, md.Verilog)
		if err != nil {
			return nil, errors.Wrapf(err, "mode %s", md.Name)
		}
		modes = append(modes, m)
	}
	m, err := arch.NewMultimode(p.Name, modes...)
	if err != nil {
		return nil, err
	}
	if err := b.ports(m, p.Ports); err != nil {
		return nil, err
	}
	orphans, err := arch.FinalizeMultimode(m)
	if err != nil {
		return nil, err
	}
	if len(orphans) > 0 && b.reporter != nil {
		b.reporter.Warningf(p.Name, "mode ports without a multimode counterpart: %s", strings.Join(orphans, ", "))
	}
	return m, nil
}

func (b *builder) block(blk Block) error {
	var (
		m   *arch.Module
		err error
	)
	switch blk.Kind {
	case "logic", "":
		width, height := blk.Width, blk.Height
		if width == 0 {
			width = 1
		}
		if height == 0 {
			height = 1
		}
		m, err = arch.NewLogicBlock(blk.Name, width, height)
	case "io":
		pad := blk.Pad
		if pad == "" {
			pad = "iopad"
		}
		var model *arch.Module
		if model, err = b.model(pad); err == nil {
			capacity := blk.Capacity
			if capacity == 0 {
				capacity = 1
			}
			m, err = arch.NewIOBlock(blk.Name, capacity, model)
		}
	default:
		err = errors.Wrapf(arch.ErrInvalidArg, "block kind %q", blk.Kind)
	}
	if err != nil {
		return err
	}
	if err := b.ports(m, blk.Ports); err != nil {
		return err
	}
	for _, inst := range blk.Instances {
		model, err := b.model(inst.Model)
		if err != nil {
			return err
		}
		if _, err := m.AddInstance(model, inst.Name); err != nil {
			return err
		}
	}
	for _, c := range blk.Connections {
		if err := connect(m, c); err != nil {
			return errors.Wrapf(err, "connection %s -> %s", c.From, c.To)
		}
	}
	if blk.FC != nil {
		fc := arch.FC{In: blk.FC.In.FCValue, Out: blk.FC.Out.FCValue}
		if len(blk.FC.Pins) > 0 {
			fc.Ports = make(map[string]arch.FCValue, len(blk.FC.Pins))
			for name, v := range blk.FC.Pins {
				fc.Ports[name] = v.FCValue
			}
		}
		if err := m.SetFC(fc); err != nil {
			return err
		}
	}
	return b.ctx.AddModule(m)
}

func connect(m *arch.Module, c Connection) error {
	src, err := endpoint(m, c.From)
	if err != nil {
		return err
	}
	sink, err := endpoint(m, c.To)
	if err != nil {
		return err
	}
	switch c.Mode {
	case "pairwise", "":
		return arch.Connect(src, sink)
	case "fanout":
		return arch.ConnectFanout(src, sink)
	case "crossbar":
		return arch.ConnectCrossbar(src, sink)
	}
	return errors.Wrapf(arch.ErrInvalidArg, "connection mode %q", c.Mode)
}

var endpointRE = regexp.MustCompile(`^([A-Za-z_][A-Za-z0-9_]*)(?:\.([A-Za-z_][A-Za-z0-9_]*))?(?:\[([0-9]+)(?::([0-9]+))?\])?$`)

// endpoint resolves port, inst.port, port[i] or inst.port[hi:lo] inside m.
func endpoint(m *arch.Module, s string) (arch.Net, error) {
	g := endpointRE.FindStringSubmatch(strings.TrimSpace(s))
	if g == nil {
		return nil, errors.Wrapf(arch.ErrInvalidArg, "endpoint %q", s)
	}
	var net arch.Net
	if g[2] == "" {
		p := m.Port(g[1])
		if p == nil {
			return nil, errors.Wrapf(arch.ErrUnknown, "port %s.%s", m.Name(), g[1])
		}
		net = p
	} else {
		inst := m.Instance(g[1])
		if inst == nil {
			return nil, errors.Wrapf(arch.ErrUnknown, "instance %s.%s", m.Name(), g[1])
		}
		pin := inst.Pin(g[2])
		if pin == nil {
			return nil, errors.Wrapf(arch.ErrUnknown, "pin %s.%s", inst, g[2])
		}
		net = pin
	}
	if g[3] == "" {
		return net, nil
	}
	hi, _ := strconv.Atoi(g[3])
	lo := hi
	if g[4] != "" {
		lo, _ = strconv.Atoi(g[4])
	}
	if lo > hi || hi >= net.Width() {
		return nil, errors.Wrapf(arch.ErrInvalidArg, "endpoint %q: range out of %d bits", s, net.Width())
	}
	return arch.Slice(net, lo, hi-lo+1), nil
}

func (b *builder) array(a Array) error {
	m, err := arch.NewArray(a.Name, a.Width, a.Height)
	if err != nil {
		return err
	}
	for _, p := range a.Placements {
		model, err := b.model(p.Model)
		if err != nil {
			return err
		}
		if _, err := m.AddBlock(model, p.X, p.Y); err != nil {
			return errors.Wrapf(err, "place %s at (%d, %d)", p.Model, p.X, p.Y)
		}
	}
	if err := b.ctx.AddModule(m); err != nil {
		return err
	}
	if a.Top {
		return b.ctx.SetTop(m)
	}
	return nil
}
