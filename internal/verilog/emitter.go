// Package verilog renders the physical view of a fabric as synthesizable
// Verilog: one module per file, builtin primitives from embedded templates
// and everything else as a structural netlist.
package verilog

import (
	"embed"
	"fmt"
	"io"
	"sync"
	"text/template"

	"github.com/pkg/errors"

	"prga/internal/arch"
)

// TableBody is the side table holding user Verilog for custom primitives.
// Bodies are templates executed with the same data as the builtin ones, so
// they may start with {{template "header" .}}.
const TableBody = "verilog_template"

// ErrNoBody is returned for custom primitives without a Verilog body.
var ErrNoBody = errors.New("no Verilog body")

//go:embed templates/*.v.tmpl
var templateFS embed.FS

var (
	templatesOnce sync.Once
	templates     *template.Template
	templatesErr  error
)

var templateFuncs = template.FuncMap{
	"msb":    func(w int) int { return w - 1 },
	"depth":  func(addr int) int { return 1 << addr },
	"vrange": vrange,
}

// vrange returns the packed range of a w-bit net, empty for single bits.
func vrange(w int) string {
	if w == 1 {
		return ""
	}
	return fmt.Sprintf("[%d:0] ", w-1)
}

func loadTemplates() (*template.Template, error) {
	templatesOnce.Do(func() {
		templates, templatesErr = template.New("verilog").Funcs(templateFuncs).ParseFS(templateFS, "templates/*.v.tmpl")
	})
	return templates, templatesErr
}

// SetBody attaches Verilog text to a custom primitive.
func SetBody(ctx *arch.Context, m *arch.Module, text string) error {
	t, err := arch.RegisterTable[*arch.Module, string](ctx, TableBody, "verilog")
	if err != nil {
		return err
	}
	t.Set(m, text)
	return nil
}

type portData struct {
	Dir   string
	Width int
	Name  string
}

type wireData struct {
	Width int
	Name  string
}

type connData struct {
	Port, Expr string
}

type instanceData struct {
	Model, Name string
	Conns       []connData
}

type assignData struct {
	LHS, RHS string
}

type moduleData struct {
	Name      string
	Ports     []portData
	Wires     []wireData
	Instances []instanceData
	Assigns   []assignData

	LUTSize   int
	MuxWidth  int
	CfgWidth  int
	AddrWidth int
	DataWidth int
	Length    int
}

// Emitter renders modules of one fabric.
type Emitter struct {
	ctx    *arch.Context
	tmpl   *template.Template
	bodies *arch.Table[*arch.Module, string]
}

func NewEmitter(ctx *arch.Context) (*Emitter, error) {
	tmpl, err := loadTemplates()
	if err != nil {
		return nil, errors.Wrap(err, "verilog: load templates")
	}
	e := &Emitter{ctx: ctx, tmpl: tmpl}
	if t, err := arch.TableOf[*arch.Module, string](ctx, TableBody); err == nil {
		e.bodies = t
	}
	return e, nil
}

// Modules lists every module the physical view of top depends on, children
// before parents. Mode implementations of multimode primitives are
// included.
func (e *Emitter) Modules() []*arch.Module {
	var out []*arch.Module
	seen := map[string]bool{}
	var visit func(m *arch.Module)
	visit = func(m *arch.Module) {
		if seen[m.Name()] {
			return
		}
		seen[m.Name()] = true
		for _, md := range m.Modes() {
			visit(md)
		}
		for _, inst := range m.Instances() {
			if inst.View().Has(arch.ViewPhysical) && inst.Model().IsPhysical() {
				visit(inst.Model())
			}
		}
		out = append(out, m)
	}
	if top := e.ctx.Top(); top != nil {
		visit(top)
	}
	return out
}

// Render writes the Verilog of m to w.
func (e *Emitter) Render(w io.Writer, m *arch.Module) error {
	if m.Kind() == arch.ModPrimitive && m.PrimitiveKind() == arch.PrimCustom {
		return e.renderCustom(w, m)
	}
	name := m.Template()
	var data moduleData
	switch name {
	case "":
		name, data = "netlist", netlist(m)
	case arch.TemplateMultimode:
		data = multimode(m)
	default:
		data = header(m)
	}
	if err := e.tmpl.ExecuteTemplate(w, name, data); err != nil {
		return errors.Wrapf(err, "verilog: render %s", m.Name())
	}
	return nil
}

func (e *Emitter) renderCustom(w io.Writer, m *arch.Module) error {
	var (
		text string
		ok   bool
	)
	if e.bodies != nil {
		text, ok = e.bodies.Get(m)
	}
	if !ok {
		return errors.Wrapf(ErrNoBody, "custom primitive %s", m.Name())
	}
	base, err := e.tmpl.Clone()
	if err != nil {
		return err
	}
	t, err := base.New(m.Name()).Parse(text)
	if err != nil {
		return errors.Wrapf(err, "verilog: parse body of %s", m.Name())
	}
	if err := t.Execute(w, header(m)); err != nil {
		return errors.Wrapf(err, "verilog: render %s", m.Name())
	}
	return nil
}

// header collects the physical ports and primitive parameters of m.
func header(m *arch.Module) moduleData {
	d := moduleData{Name: m.Name(), CfgWidth: m.CfgWidth(), LUTSize: m.LUTSize(), MuxWidth: m.MuxWidth()}
	d.AddrWidth, d.DataWidth = m.MemoryShape()
	for _, p := range m.Ports() {
		if !p.IsPhysical() {
			continue
		}
		d.Ports = append(d.Ports, portData{Dir: p.Direction().String(), Width: p.Width(), Name: p.Name()})
	}
	if m.Kind() == arch.ModConfig {
		if p := m.Port(arch.CfgPortName); p != nil {
			d.Length = p.Width()
		}
	}
	return d
}

// netlist walks the physical view of m.
func netlist(m *arch.Module) moduleData {
	d := header(m)
	for _, inst := range m.Instances() {
		if !inst.View().Has(arch.ViewPhysical) || !inst.Model().IsPhysical() {
			continue
		}
		id := instanceData{Model: inst.Model().Name(), Name: inst.Name()}
		for _, pin := range inst.Pins() {
			if !pin.Model().IsPhysical() {
				continue
			}
			if pin.Direction() == arch.Output {
				wire := PinWire(inst, pin.Model())
				d.Wires = append(d.Wires, wireData{Width: pin.Width(), Name: wire})
				id.Conns = append(id.Conns, connData{Port: pin.Name(), Expr: wire})
				continue
			}
			b := Bundle(arch.PhysicalSourceOf(pin))
			expr := ""
			if !b.IsOpen() {
				expr = b.String()
			}
			id.Conns = append(id.Conns, connData{Port: pin.Name(), Expr: expr})
		}
		d.Instances = append(d.Instances, id)
	}
	for _, p := range m.Ports() {
		if p.Direction() != arch.Output || !p.IsPhysical() {
			continue
		}
		if b := Bundle(arch.PhysicalSourceOf(p)); !b.IsOpen() {
			d.Assigns = append(d.Assigns, assignData{LHS: p.Name(), RHS: b.String()})
		}
	}
	return d
}

// multimode instantiates every mode and selects the outputs of the mode
// chosen by cfg_d.
func multimode(m *arch.Module) moduleData {
	d := header(m)
	modes := m.Modes()
	for _, md := range modes {
		inst := instanceData{Model: md.Name(), Name: "mode_" + md.Name()}
		for _, p := range md.Ports() {
			if p.Direction() == arch.Output {
				wire := inst.Name + "__" + p.Name()
				d.Wires = append(d.Wires, wireData{Width: p.Width(), Name: wire})
				inst.Conns = append(inst.Conns, connData{Port: p.Name(), Expr: wire})
				continue
			}
			expr := ""
			if mp := m.Port(p.Name()); mp != nil && mp.Direction() == arch.Input && mp.Width() == p.Width() {
				expr = mp.Name()
			}
			inst.Conns = append(inst.Conns, connData{Port: p.Name(), Expr: expr})
		}
		d.Instances = append(d.Instances, inst)
	}
	for _, p := range m.Ports() {
		if p.Direction() != arch.Output || !p.IsPhysical() {
			continue
		}
		rhs := fmt.Sprintf("{%d{1'bx}}", p.Width())
		for k := len(modes) - 1; k >= 0; k-- {
			mp := modes[k].Port(p.Name())
			if mp == nil || mp.Direction() != arch.Output || mp.Width() != p.Width() {
				continue
			}
			wire := "mode_" + modes[k].Name() + "__" + p.Name()
			rhs = fmt.Sprintf("%s == %d'd%d ? %s : %s", arch.CfgPortName, d.CfgWidth, k, wire, rhs)
		}
		d.Assigns = append(d.Assigns, assignData{LHS: p.Name(), RHS: rhs})
	}
	return d
}
