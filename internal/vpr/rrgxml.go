package vpr

import (
	"encoding/xml"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/pkg/errors"

	"prga/internal/arch"
	"prga/internal/passes"
	"prga/internal/rrg"
)

// Switch IDs of the routing-resource graph.
const (
	SwitchDelayless = 0
	SwitchDefault   = 1
)

type rrGraph struct {
	XMLName     xml.Name    `xml:"rr_graph"`
	ToolName    string      `xml:"tool_name,attr"`
	ToolVersion string      `xml:"tool_version,attr"`
	Channels    channels    `xml:"channels"`
	Switches    []rrSwitch  `xml:"switches>switch"`
	Segments    []rrSegment `xml:"segments>segment"`
	BlockTypes  []blockType `xml:"block_types>block_type"`
	Grid        []gridLoc   `xml:"grid>grid_loc"`
	Nodes       []rrNode    `xml:"rr_nodes>node"`
	Edges       []rrEdge    `xml:"rr_edges>edge"`
}

type channels struct {
	Channel struct {
		ChanWidthMax int `xml:"chan_width_max,attr"`
		XMin         int `xml:"x_min,attr"`
		YMin         int `xml:"y_min,attr"`
		XMax         int `xml:"x_max,attr"`
		YMax         int `xml:"y_max,attr"`
	} `xml:"channel"`
	XList []chanList `xml:"x_list"`
	YList []chanList `xml:"y_list"`
}

type chanList struct {
	Index int `xml:"index,attr"`
	Info  int `xml:"info,attr"`
}

type rrSwitch struct {
	ID     int    `xml:"id,attr"`
	Type   string `xml:"type,attr"`
	Name   string `xml:"name,attr"`
	Timing struct {
		R    float64 `xml:"R,attr"`
		Cin  float64 `xml:"Cin,attr"`
		Cout float64 `xml:"Cout,attr"`
		Tdel float64 `xml:"Tdel,attr"`
	} `xml:"timing"`
	Sizing struct {
		MuxTransSize float64 `xml:"mux_trans_size,attr"`
		BufSize      float64 `xml:"buf_size,attr"`
	} `xml:"sizing"`
}

type rrSegment struct {
	ID     int    `xml:"id,attr"`
	Name   string `xml:"name,attr"`
	Timing struct {
		RPerMeter float64 `xml:"R_per_meter,attr"`
		CPerMeter float64 `xml:"C_per_meter,attr"`
	} `xml:"timing"`
}

type blockType struct {
	ID         int        `xml:"id,attr"`
	Name       string     `xml:"name,attr"`
	Width      int        `xml:"width,attr"`
	Height     int        `xml:"height,attr"`
	PinClasses []pinClass `xml:"pin_class"`
}

type pinClass struct {
	Type string     `xml:"type,attr"`
	Pins []classPin `xml:"pin"`
}

type classPin struct {
	PTC  int    `xml:"ptc,attr"`
	Name string `xml:",chardata"`
}

type gridLoc struct {
	X            int `xml:"x,attr"`
	Y            int `xml:"y,attr"`
	BlockTypeID  int `xml:"block_type_id,attr"`
	WidthOffset  int `xml:"width_offset,attr"`
	HeightOffset int `xml:"height_offset,attr"`
}

type rrNode struct {
	ID        int    `xml:"id,attr"`
	Type      string `xml:"type,attr"`
	Capacity  int    `xml:"capacity,attr"`
	Direction string `xml:"direction,attr,omitempty"`
	Loc       struct {
		XLow  int    `xml:"xlow,attr"`
		YLow  int    `xml:"ylow,attr"`
		XHigh int    `xml:"xhigh,attr"`
		YHigh int    `xml:"yhigh,attr"`
		Side  string `xml:"side,attr,omitempty"`
		PTC   string `xml:"ptc,attr"`
	} `xml:"loc"`
	Timing struct {
		R float64 `xml:"R,attr"`
		C float64 `xml:"C,attr"`
	} `xml:"timing"`
	Segment *struct {
		ID int `xml:"segment_id,attr"`
	} `xml:"segment"`
}

type rrEdge struct {
	Src    int `xml:"src_node,attr"`
	Sink   int `xml:"sink_node,attr"`
	Switch int `xml:"switch_id,attr"`
}

func nodeSide(o arch.Orientation) string {
	switch o {
	case arch.North:
		return "TOP"
	case arch.East:
		return "RIGHT"
	case arch.South:
		return "BOTTOM"
	case arch.West:
		return "LEFT"
	}
	return ""
}

func joinInts(vs []int) string {
	parts := make([]string, len(vs))
	for i, v := range vs {
		parts[i] = fmt.Sprint(v)
	}
	return strings.Join(parts, ",")
}

// WriteRRGraph writes the routing-resource graph of the fabric in ctx. The
// fabric must have been through switch insertion and VPR ID assignment.
// Wires list the track number of every channel they cross in their ptc
// attribute.
func WriteRRGraph(ctx *arch.Context, w io.Writer, timing Timing) error {
	if timing == nil {
		timing = DefaultTiming
	}
	r, err := rrg.NewResolver(ctx)
	if err != nil {
		return err
	}
	var offsets *arch.Table[*arch.Instance, int]
	if t, err := passes.CfgOffsets(ctx); err == nil {
		offsets = t
	}
	e := rrg.NewEnumerator(r, nil, offsets)
	ids := r.IDs()
	top := r.Top()
	width, height := top.Size()

	g := &rrGraph{ToolName: "prga", ToolVersion: "1"}
	cw := ids.ChannelWidth.Lookup(top)
	g.Channels.Channel.ChanWidthMax = cw
	g.Channels.Channel.XMax, g.Channels.Channel.YMax = cw, cw
	g.Channels.Channel.XMin, g.Channels.Channel.YMin = cw, cw
	for y := 0; y < height; y++ {
		g.Channels.XList = append(g.Channels.XList, chanList{Index: y, Info: cw})
	}
	for x := 0; x < width; x++ {
		g.Channels.YList = append(g.Channels.YList, chanList{Index: x, Info: cw})
	}

	st := timing.Switch()
	for _, sw := range []struct {
		id   int
		name string
		typ  string
	}{{SwitchDelayless, "__vpr_delayless_switch__", "mux"}, {SwitchDefault, "default", "mux"}} {
		s := rrSwitch{ID: sw.id, Type: sw.typ, Name: sw.name}
		if sw.id == SwitchDefault {
			s.Timing.R, s.Timing.Cin, s.Timing.Cout, s.Timing.Tdel = st.R, st.Cin, st.Cout, st.Tdel
			s.Sizing.MuxTransSize, s.Sizing.BufSize = st.MuxTransSize, st.BufSize
		}
		g.Switches = append(g.Switches, s)
	}

	for _, p := range ctx.Segments() {
		s := rrSegment{ID: ids.SegmentID.Lookup(p), Name: p.Name}
		wt := timing.Wire(p)
		s.Timing.RPerMeter, s.Timing.CPerMeter = wt.RMetal, wt.CMetal
		g.Segments = append(g.Segments, s)
	}

	g.BlockTypes = append(g.BlockTypes, blockType{ID: 0, Name: "EMPTY", Width: 1, Height: 1})
	for _, m := range rrg.LeafBlocks(top) {
		g.BlockTypes = append(g.BlockTypes, blockTypeOf(m, ids))
	}
	sort.Slice(g.BlockTypes, func(i, j int) bool { return g.BlockTypes[i].ID < g.BlockTypes[j].ID })

	for x := 0; x < width; x++ {
		for y := 0; y < height; y++ {
			gl := gridLoc{X: x, Y: y}
			if m, anchor, ok := top.LeafBlock(arch.Position{X: x, Y: y}); ok {
				gl.BlockTypeID = ids.BlockTypeID.Lookup(m)
				gl.WidthOffset, gl.HeightOffset = x-anchor.X, y-anchor.Y
			}
			g.Grid = append(g.Grid, gl)
		}
	}

	nodes, err := e.Nodes()
	if err != nil {
		return err
	}
	for _, n := range nodes {
		g.Nodes = append(g.Nodes, rrNodeOf(n))
	}

	pins, err := e.PinEdges()
	if err != nil {
		return err
	}
	for _, edge := range pins {
		g.Edges = append(g.Edges, rrEdge{Src: edge.Src, Sink: edge.Sink, Switch: SwitchDelayless})
	}
	routing, err := e.RoutingEdges()
	if err != nil {
		return err
	}
	for _, edge := range routing {
		g.Edges = append(g.Edges, rrEdge{Src: edge.Src, Sink: edge.Sink, Switch: SwitchDefault})
	}

	if _, err := io.WriteString(w, xml.Header); err != nil {
		return err
	}
	enc := xml.NewEncoder(w)
	enc.Indent("", "  ")
	if err := enc.Encode(g); err != nil {
		return errors.Wrap(err, "vpr: encode rr_graph.xml")
	}
	_, err = io.WriteString(w, "\n")
	return err
}

// blockTypeOf lists one pin class per pin bit. Sub-blocks of an IO block
// repeat the pins of the first with their PTC shifted by the pin count.
func blockTypeOf(m *arch.Module, ids *passes.IDs) blockType {
	bt := blockType{ID: ids.BlockTypeID.Lookup(m), Name: m.Name()}
	bt.Width, bt.Height = m.Size()
	capacity := 1
	if m.IsBlock(arch.BlockIO) {
		capacity = m.Capacity()
		bt.Width, bt.Height = 1, 1
	}
	n := ids.NumNodes.Lookup(m)
	for sub := 0; sub < capacity; sub++ {
		for _, p := range m.RoutingPorts() {
			typ := "INPUT"
			if p.Direction() == arch.Output {
				typ = "OUTPUT"
			}
			ptc := ids.PTC.Lookup(p)
			for i := 0; i < p.Width(); i++ {
				name := fmt.Sprintf("%s.%s[%d]", m.Name(), p.Name(), i)
				if capacity > 1 {
					name = fmt.Sprintf("%s[%d].%s[%d]", m.Name(), sub, p.Name(), i)
				}
				bt.PinClasses = append(bt.PinClasses, pinClass{Type: typ, Pins: []classPin{{PTC: sub*n + ptc + i, Name: name}}})
			}
		}
	}
	return bt
}

func rrNodeOf(n rrg.Node) rrNode {
	out := rrNode{ID: n.ID, Type: n.Type.String(), Capacity: 1}
	out.Loc.XLow, out.Loc.YLow = n.Low.X, n.Low.Y
	out.Loc.XHigh, out.Loc.YHigh = n.High.X, n.High.Y
	out.Loc.PTC = joinInts(n.PTC)
	switch n.Type {
	case rrg.NodeIPin, rrg.NodeOPin:
		out.Loc.Side = nodeSide(n.Side)
	case rrg.NodeChanX, rrg.NodeChanY:
		out.Direction = "INC_DIR"
		if n.Direction == arch.DirDec {
			out.Direction = "DEC_DIR"
		}
		out.Segment = &struct {
			ID int `xml:"segment_id,attr"`
		}{ID: n.Segment}
	}
	return out
}
