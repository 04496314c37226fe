// Package vpr writes the VPR architecture description and routing-resource
// graph of a fabric.
package vpr

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"prga/internal/arch"
	"prga/internal/rrg"
)

type archDoc struct {
	XMLName  xml.Name     `xml:"architecture"`
	Models   models       `xml:"models"`
	Tiles    tiles        `xml:"tiles"`
	Layout   layout       `xml:"layout"`
	Device   device       `xml:"device"`
	Switches []archSwitch `xml:"switchlist>switch"`
	Segments []segment    `xml:"segmentlist>segment"`
	Blocks   []pbType     `xml:"complexblocklist>pb_type"`
}

type models struct {
	Models []model `xml:"model"`
}

type model struct {
	Name    string      `xml:"name,attr"`
	Inputs  []modelPort `xml:"input_ports>port"`
	Outputs []modelPort `xml:"output_ports>port"`
}

type modelPort struct {
	Name    string `xml:"name,attr"`
	IsClock int    `xml:"is_clock,attr,omitempty"`
	Clock   string `xml:"clock,attr,omitempty"`
}

type tiles struct {
	Tiles []tile `xml:"tile"`
}

type tile struct {
	Name         string       `xml:"name,attr"`
	Capacity     int          `xml:"capacity,attr"`
	Width        int          `xml:"width,attr"`
	Height       int          `xml:"height,attr"`
	Sites        []site       `xml:"equivalent_sites>site"`
	Inputs       []pbPort     `xml:"input"`
	Outputs      []pbPort     `xml:"output"`
	Clocks       []pbPort     `xml:"clock"`
	FC           fc           `xml:"fc"`
	PinLocations pinLocations `xml:"pinlocations"`
}

type site struct {
	PBType string `xml:"pb_type,attr"`
}

type fc struct {
	InType    string       `xml:"in_type,attr"`
	InVal     string       `xml:"in_val,attr"`
	OutType   string       `xml:"out_type,attr"`
	OutVal    string       `xml:"out_val,attr"`
	Overrides []fcOverride `xml:"fc_override"`
}

type fcOverride struct {
	PortName string `xml:"port_name,attr"`
	Type     string `xml:"fc_type,attr"`
	Val      string `xml:"fc_val,attr"`
}

type pinLocations struct {
	Pattern string `xml:"pattern,attr"`
	Locs    []loc  `xml:"loc"`
}

type loc struct {
	Side    string `xml:"side,attr"`
	XOffset int    `xml:"xoffset,attr"`
	YOffset int    `xml:"yoffset,attr"`
	Pins    string `xml:",chardata"`
}

type layout struct {
	Fixed fixedLayout `xml:"fixed_layout"`
}

type fixedLayout struct {
	Name    string   `xml:"name,attr"`
	Width   int      `xml:"width,attr"`
	Height  int      `xml:"height,attr"`
	Singles []single `xml:"single"`
}

type single struct {
	Type     string `xml:"type,attr"`
	X        int    `xml:"x,attr"`
	Y        int    `xml:"y,attr"`
	Priority int    `xml:"priority,attr"`
}

type device struct {
	Sizing struct {
		RMinWNMOS float64 `xml:"R_minW_nmos,attr"`
		RMinWPMOS float64 `xml:"R_minW_pmos,attr"`
	} `xml:"sizing"`
	Area struct {
		GridLogicTileArea float64 `xml:"grid_logic_tile_area,attr"`
	} `xml:"area"`
	ChanWidthDistr struct {
		X chanDistr `xml:"x"`
		Y chanDistr `xml:"y"`
	} `xml:"chan_width_distr"`
	SwitchBlock struct {
		Type string `xml:"type,attr"`
		Fs   int    `xml:"fs,attr"`
	} `xml:"switch_block"`
	ConnectionBlock struct {
		InputSwitchName string `xml:"input_switch_name,attr"`
	} `xml:"connection_block"`
}

type chanDistr struct {
	Distr string  `xml:"distr,attr"`
	Peak  float64 `xml:"peak,attr"`
}

type archSwitch struct {
	Type         string  `xml:"type,attr"`
	Name         string  `xml:"name,attr"`
	R            float64 `xml:"R,attr"`
	Cin          float64 `xml:"Cin,attr"`
	Cout         float64 `xml:"Cout,attr"`
	Tdel         float64 `xml:"Tdel,attr"`
	MuxTransSize float64 `xml:"mux_trans_size,attr"`
	BufSize      float64 `xml:"buf_size,attr"`
}

type segment struct {
	Name   string  `xml:"name,attr"`
	Length int     `xml:"length,attr"`
	Freq   float64 `xml:"freq,attr"`
	Type   string  `xml:"type,attr"`
	RMetal float64 `xml:"Rmetal,attr"`
	CMetal float64 `xml:"Cmetal,attr"`
	Mux    struct {
		Name string `xml:"name,attr"`
	} `xml:"mux"`
	SB pattern `xml:"sb"`
	CB pattern `xml:"cb"`
}

type pattern struct {
	Type   string `xml:"type,attr"`
	Values string `xml:",chardata"`
}

type pbType struct {
	Name         string         `xml:"name,attr"`
	NumPB        int            `xml:"num_pb,attr,omitempty"`
	BlifModel    string         `xml:"blif_model,attr,omitempty"`
	Class        string         `xml:"class,attr,omitempty"`
	Inputs       []pbPort       `xml:"input"`
	Outputs      []pbPort       `xml:"output"`
	Clocks       []pbPort       `xml:"clock"`
	Children     []pbType       `xml:"pb_type"`
	Modes        []mode         `xml:"mode"`
	Interconnect *interconnect  `xml:"interconnect"`
	Delays       []delay        `xml:"delay_constant"`
	Setups       []clockedDelay `xml:"T_setup"`
	ClockToQ     []clockedDelay `xml:"T_clock_to_Q"`
}

type pbPort struct {
	Name      string `xml:"name,attr"`
	NumPins   int    `xml:"num_pins,attr"`
	PortClass string `xml:"port_class,attr,omitempty"`
}

type mode struct {
	Name         string        `xml:"name,attr"`
	Children     []pbType      `xml:"pb_type"`
	Interconnect *interconnect `xml:"interconnect"`
}

type interconnect struct {
	Directs []link `xml:"direct"`
	Muxes   []link `xml:"mux"`
}

type link struct {
	Name   string `xml:"name,attr"`
	Input  string `xml:"input,attr"`
	Output string `xml:"output,attr"`
}

type delay struct {
	Max     float64 `xml:"max,attr"`
	InPort  string  `xml:"in_port,attr"`
	OutPort string  `xml:"out_port,attr"`
}

type clockedDelay struct {
	Value float64 `xml:"value,attr,omitempty"`
	Max   float64 `xml:"max,attr,omitempty"`
	Port  string  `xml:"port,attr"`
	Clock string  `xml:"clock,attr"`
}

// sideName maps an orientation to the VPR side keyword.
func sideName(o arch.Orientation) string {
	switch o {
	case arch.North:
		return "top"
	case arch.East:
		return "right"
	case arch.South:
		return "bottom"
	case arch.West:
		return "left"
	}
	return ""
}

func fcValue(v arch.FCValue) (string, string) {
	switch {
	case v.Count() > 0:
		return "abs", fmt.Sprint(v.Count())
	case v.Fraction() > 0:
		return "frac", fmt.Sprint(v.Fraction())
	}
	return "frac", "1"
}

func bitName(block *arch.Module, b arch.Bit) string {
	owner := block.Name()
	if inst := b.Instance(); inst != nil {
		owner = inst.Name()
	}
	return fmt.Sprintf("%s.%s[%d]", owner, b.Port().Name(), b.Index())
}

// archWriter accumulates the parts of arch.xml that are shared between
// blocks.
type archWriter struct {
	timing Timing
	models map[string]bool
	doc    archDoc
}

// WriteArch writes the VPR architecture description of the fabric in ctx.
func WriteArch(ctx *arch.Context, w io.Writer, timing Timing) error {
	top := ctx.Top()
	if top == nil {
		return errors.Wrap(arch.ErrInvalidArg, "no top-level array")
	}
	if timing == nil {
		timing = DefaultTiming
	}
	aw := &archWriter{timing: timing, models: map[string]bool{}}
	doc := &aw.doc

	for _, m := range rrg.LeafBlocks(top) {
		doc.Tiles.Tiles = append(doc.Tiles.Tiles, aw.tile(m))
		pb, err := aw.block(m)
		if err != nil {
			return err
		}
		doc.Blocks = append(doc.Blocks, pb)
	}

	width, height := top.Size()
	doc.Layout.Fixed = fixedLayout{Name: ctx.Name(), Width: width, Height: height}
	err := top.Walk(func(v arch.Visit) error {
		m := v.Placement.Model
		if m.IsBlock(arch.BlockLogic) || m.IsBlock(arch.BlockIO) {
			p := v.Pos()
			doc.Layout.Fixed.Singles = append(doc.Layout.Fixed.Singles, single{Type: m.Name(), X: p.X, Y: p.Y, Priority: 1})
		}
		return nil
	})
	if err != nil {
		return err
	}

	doc.Device.Sizing.RMinWNMOS = 8926
	doc.Device.Sizing.RMinWPMOS = 16067
	doc.Device.Area.GridLogicTileArea = 0
	doc.Device.ChanWidthDistr.X = chanDistr{Distr: "uniform", Peak: 1}
	doc.Device.ChanWidthDistr.Y = chanDistr{Distr: "uniform", Peak: 1}
	doc.Device.SwitchBlock.Type = "wilton"
	doc.Device.SwitchBlock.Fs = 3
	doc.Device.ConnectionBlock.InputSwitchName = "default"

	st := timing.Switch()
	doc.Switches = []archSwitch{{
		Type: "mux", Name: "default",
		R: st.R, Cin: st.Cin, Cout: st.Cout, Tdel: st.Tdel,
		MuxTransSize: st.MuxTransSize, BufSize: st.BufSize,
	}}
	for _, p := range ctx.Segments() {
		wt := timing.Wire(p)
		s := segment{Name: p.Name, Length: p.Length, Freq: 1, Type: "unidir", RMetal: wt.RMetal, CMetal: wt.CMetal}
		s.Mux.Name = "default"
		s.SB = pattern{Type: "pattern", Values: strings.TrimSpace(strings.Repeat("1 ", p.Length+1))}
		s.CB = pattern{Type: "pattern", Values: strings.TrimSpace(strings.Repeat("1 ", p.Length))}
		doc.Segments = append(doc.Segments, s)
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(doc); err != nil {
		return errors.Wrap(err, "vpr: encode arch.xml")
	}
	_, err = io.WriteString(w, "\n")
	return err
}

func (aw *archWriter) tile(m *arch.Module) tile {
	w, h := m.Size()
	capacity := 1
	if m.IsBlock(arch.BlockIO) {
		capacity = m.Capacity()
		w, h = 1, 1
	}
	t := tile{Name: m.Name(), Capacity: capacity, Width: w, Height: h, Sites: []site{{PBType: m.Name()}}}
	t.Inputs, t.Outputs, t.Clocks = blockPorts(m)

	blockFC := m.FC()
	t.FC.InType, t.FC.InVal = fcValue(blockFC.In)
	t.FC.OutType, t.FC.OutVal = fcValue(blockFC.Out)
	names := make([]string, 0, len(blockFC.Ports))
	for name := range blockFC.Ports {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		typ, val := fcValue(blockFC.Ports[name])
		t.FC.Overrides = append(t.FC.Overrides, fcOverride{PortName: name, Type: typ, Val: val})
	}

	t.PinLocations.Pattern = "custom"
	type key struct {
		side   string
		xo, yo int
	}
	var (
		order  []key
		groups = map[key][]string{}
	)
	for _, p := range m.RoutingPorts() {
		side := sideName(p.Side())
		if side == "" {
			t.PinLocations = pinLocations{Pattern: "spread"}
			return t
		}
		xo, yo := p.Offset()
		k := key{side, xo, yo}
		if _, ok := groups[k]; !ok {
			order = append(order, k)
		}
		groups[k] = append(groups[k], m.Name()+"."+p.Name())
	}
	for _, k := range order {
		t.PinLocations.Locs = append(t.PinLocations.Locs, loc{Side: k.side, XOffset: k.xo, YOffset: k.yo, Pins: strings.Join(groups[k], " ")})
	}
	return t
}

// blockPorts splits the logical ports of a block into VPR inputs, outputs
// and clocks. Package-side ports are not visible to VPR.
func blockPorts(m *arch.Module) (in, out, clk []pbPort) {
	for _, p := range m.Ports() {
		if p.IsExternal() || !p.IsLogical() {
			continue
		}
		pp := pbPort{Name: p.Name(), NumPins: p.Width()}
		switch {
		case p.Direction() == arch.Output:
			out = append(out, pp)
		case p.IsClock():
			clk = append(clk, pp)
		default:
			in = append(in, pp)
		}
	}
	return in, out, clk
}

func (aw *archWriter) block(m *arch.Module) (pbType, error) {
	pb := pbType{Name: m.Name()}
	pb.Inputs, pb.Outputs, pb.Clocks = blockPorts(m)
	for _, inst := range m.Instances() {
		if !inst.Model().IsLogical() || inst.Model().Kind() != arch.ModPrimitive {
			continue
		}
		child, err := aw.primitive(inst)
		if err != nil {
			return pbType{}, err
		}
		pb.Children = append(pb.Children, child)
	}
	ic, err := interconnectOf(m)
	if err != nil {
		return pbType{}, err
	}
	pb.Interconnect = ic
	return pb, nil
}

// interconnectOf derives the pb_type interconnect from the logical
// connections of m: one direct per single-source sink and one mux per sink
// with several sources.
func interconnectOf(m *arch.Module) (*interconnect, error) {
	ic := &interconnect{}
	for i, sink := range arch.LogicalSinks(m) {
		srcs := arch.LogicalSources(sink)
		if len(srcs) == 0 {
			continue
		}
		names := make([]string, len(srcs))
		for k, s := range srcs {
			if s.IsConst() {
				return nil, errors.Wrapf(arch.ErrInvalidArg, "%s: constant source of %s has no VPR interconnect", m.Name(), sink)
			}
			names[k] = bitName(m, s)
		}
		l := link{Name: fmt.Sprintf("ic%d", i), Input: strings.Join(names, " "), Output: bitName(m, sink)}
		if len(srcs) == 1 {
			ic.Directs = append(ic.Directs, l)
		} else {
			ic.Muxes = append(ic.Muxes, l)
		}
	}
	return ic, nil
}

func (aw *archWriter) primitive(inst *arch.Instance) (pbType, error) {
	m := inst.Model()
	name := inst.Name()
	pt := aw.timing.Primitive(m)
	pb := pbType{Name: name, NumPB: 1}
	switch m.PrimitiveKind() {
	case arch.PrimLUT:
		pb.BlifModel, pb.Class = ".names", "lut"
		pb.Inputs = []pbPort{{Name: "in", NumPins: m.LUTSize(), PortClass: "lut_in"}}
		pb.Outputs = []pbPort{{Name: "out", NumPins: 1, PortClass: "lut_out"}}
		pb.Delays = []delay{{Max: pt.Delay, InPort: name + ".in", OutPort: name + ".out"}}
	case arch.PrimFlipflop:
		pb.BlifModel, pb.Class = ".latch", "flipflop"
		pb.Inputs = []pbPort{{Name: "D", NumPins: 1, PortClass: "D"}}
		pb.Outputs = []pbPort{{Name: "Q", NumPins: 1, PortClass: "Q"}}
		pb.Clocks = []pbPort{{Name: "clk", NumPins: 1, PortClass: "clock"}}
		pb.Setups = []clockedDelay{{Value: pt.Setup, Port: name + ".D", Clock: "clk"}}
		pb.ClockToQ = []clockedDelay{{Max: pt.ClockToQ, Port: name + ".Q", Clock: "clk"}}
	case arch.PrimIOPad:
		pb.Inputs = []pbPort{{Name: "outpad", NumPins: 1}}
		pb.Outputs = []pbPort{{Name: "inpad", NumPins: 1}}
		pb.Modes = []mode{
			{
				Name:     "inpad",
				Children: []pbType{{Name: "inpad", NumPB: 1, BlifModel: ".input", Outputs: []pbPort{{Name: "inpad", NumPins: 1}}}},
				Interconnect: &interconnect{Directs: []link{
					{Name: "inpad", Input: "inpad.inpad", Output: name + ".inpad"},
				}},
			},
			{
				Name:     "outpad",
				Children: []pbType{{Name: "outpad", NumPB: 1, BlifModel: ".output", Inputs: []pbPort{{Name: "outpad", NumPins: 1}}}},
				Interconnect: &interconnect{Directs: []link{
					{Name: "outpad", Input: name + ".outpad", Output: "outpad.outpad"},
				}},
			},
		}
	case arch.PrimMultimode:
		pb.Inputs, pb.Outputs, pb.Clocks = blockPorts(m)
		for _, md := range m.Modes() {
			aw.model(md)
			child := pbType{Name: md.Name(), NumPB: 1, BlifModel: ".subckt " + md.Name()}
			child.Inputs, child.Outputs, child.Clocks = blockPorts(md)
			ic := &interconnect{}
			for _, p := range md.Ports() {
				if !p.IsLogical() {
					continue
				}
				if m.Port(p.Name()) == nil {
					continue
				}
				l := link{Name: p.Name(), Input: name + "." + p.Name(), Output: md.Name() + "." + p.Name()}
				if p.Direction() == arch.Output {
					l.Input, l.Output = l.Output, l.Input
				}
				ic.Directs = append(ic.Directs, l)
			}
			pb.Modes = append(pb.Modes, mode{Name: md.Name(), Children: []pbType{child}, Interconnect: ic})
		}
	default:
		aw.model(m)
		pb.BlifModel = ".subckt " + m.Name()
		pb.Inputs, pb.Outputs, pb.Clocks = blockPorts(m)
	}
	return pb, nil
}

// model registers a VPR model for a user primitive. Outputs and inputs of
// sequential primitives are attached to their first clock.
func (aw *archWriter) model(m *arch.Module) {
	if aw.models[m.Name()] {
		return
	}
	aw.models[m.Name()] = true
	var clock string
	for _, p := range m.Ports() {
		if p.IsClock() && p.IsLogical() {
			clock = p.Name()
			break
		}
	}
	md := model{Name: m.Name()}
	for _, p := range m.Ports() {
		if !p.IsLogical() {
			continue
		}
		mp := modelPort{Name: p.Name()}
		switch {
		case p.IsClock():
			mp.IsClock = 1
		case clock != "":
			mp.Clock = clock
		}
		if p.Direction() == arch.Output {
			md.Outputs = append(md.Outputs, mp)
		} else {
			md.Inputs = append(md.Inputs, mp)
		}
	}
	aw.doc.Models.Models = append(aw.doc.Models.Models, md)
}
