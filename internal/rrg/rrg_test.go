package rrg

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"prga/internal/arch"
	"prga/internal/flow"
	"prga/internal/passes"
)

func mustPort(t *testing.T, m *arch.Module, name string, width int, dir arch.PortDirection, opts ...arch.PortOption) *arch.Port {
	t.Helper()
	p, err := m.CreatePort(name, width, dir, opts...)
	if err != nil {
		t.Fatalf("port %s: %v", name, err)
	}
	return p
}

func mustConnect(t *testing.T, src, sink arch.Net) {
	t.Helper()
	if err := arch.Connect(src, sink); err != nil {
		t.Fatalf("connect %s -> %s: %v", src, sink, err)
	}
}

// lutBlock is a logic block holding a single LUT4 with its inputs on the
// west side and its output on the east side.
func lutBlock(t *testing.T, ctx *arch.Context) *arch.Module {
	t.Helper()
	lut, err := ctx.LUT(4)
	if err != nil {
		t.Fatalf("lut: %v", err)
	}
	clb, err := arch.NewLogicBlock("clb", 1, 1)
	if err != nil {
		t.Fatalf("clb: %v", err)
	}
	in := mustPort(t, clb, "I", 4, arch.Input, arch.WithSide(arch.West, 0, 0))
	out := mustPort(t, clb, "O", 1, arch.Output, arch.WithSide(arch.East, 0, 0))
	l, err := clb.AddInstance(lut, "lut")
	if err != nil {
		t.Fatalf("instance: %v", err)
	}
	mustConnect(t, in, l.Pin("in"))
	mustConnect(t, l.Pin("out"), out)
	if err := clb.SetFC(arch.FC{In: arch.FCCount(1), Out: arch.FCCount(1)}); err != nil {
		t.Fatalf("fc: %v", err)
	}
	if err := ctx.AddModule(clb); err != nil {
		t.Fatalf("register: %v", err)
	}
	return clb
}

// newFabric builds a 3x3 array with the LUT block in the middle and an IO
// block of capacity 2 on every edge, and runs the full pass pipeline.
func newFabric(t *testing.T) *arch.Context {
	t.Helper()
	ctx := arch.NewContext("fabric")
	if _, err := ctx.CreateSegment("L1", 2, 1); err != nil {
		t.Fatalf("segment: %v", err)
	}
	clb := lutBlock(t, ctx)
	pad, _ := ctx.IOPad()
	iob, err := arch.NewIOBlock("iob", 2, pad)
	if err != nil {
		t.Fatalf("iob: %v", err)
	}
	top, _ := arch.NewArray("top", 3, 3)
	for _, m := range []*arch.Module{iob, top} {
		if err := ctx.AddModule(m); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	if _, err := top.AddBlock(clb, 1, 1); err != nil {
		t.Fatalf("place clb: %v", err)
	}
	for _, p := range []arch.Position{{X: 1, Y: 0}, {X: 0, Y: 1}, {X: 2, Y: 1}, {X: 1, Y: 2}} {
		if _, err := top.AddBlock(iob, p.X, p.Y); err != nil {
			t.Fatalf("place iob: %v", err)
		}
	}
	if err := ctx.SetTop(top); err != nil {
		t.Fatalf("top: %v", err)
	}
	runPipeline(t, ctx)
	return ctx
}

func runPipeline(t *testing.T, ctx *arch.Context) {
	t.Helper()
	f := flow.NewFlow(nil,
		passes.NewRoutingCompleter(nil),
		passes.NewSwitchInsertion(nil),
		passes.NewBitchainAllocation(nil),
		passes.NewVPRIDAssignment(nil),
	)
	if err := f.Run(ctx); err != nil {
		t.Fatalf("flow: %v", err)
	}
}

func newEnumerator(t *testing.T, ctx *arch.Context) *Enumerator {
	t.Helper()
	r, err := NewResolver(ctx)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	bits, err := passes.CfgBits(ctx)
	if err != nil {
		t.Fatalf("cfg bits: %v", err)
	}
	offsets, err := passes.CfgOffsets(ctx)
	if err != nil {
		t.Fatalf("cfg offsets: %v", err)
	}
	return NewEnumerator(r, bits, offsets)
}

func TestSegmentIDStableAcrossSections(t *testing.T) {
	ctx := arch.NewContext("long")
	l2, err := ctx.CreateSegment("L2", 4, 2)
	if err != nil {
		t.Fatalf("segment: %v", err)
	}
	clb := lutBlock(t, ctx)
	top, _ := arch.NewArray("top", 5, 5)
	if err := ctx.AddModule(top); err != nil {
		t.Fatalf("register: %v", err)
	}
	for x := 1; x <= 3; x++ {
		for y := 1; y <= 3; y++ {
			if _, err := top.AddBlock(clb, x, y); err != nil {
				t.Fatalf("place: %v", err)
			}
		}
	}
	if err := ctx.SetTop(top); err != nil {
		t.Fatalf("top: %v", err)
	}
	runPipeline(t, ctx)
	e := newEnumerator(t, ctx)
	r := e.r

	n := arch.SegmentNode{Position: arch.Position{X: 2, Y: 3}, Prototype: l2, Direction: arch.DirDec, Dimension: arch.DimY}
	at1 := n.AtSection(1)
	if at1.Position != (arch.Position{X: 2, Y: 2}) {
		t.Fatalf("expected section 1 at (2, 2), got %s", at1.Position)
	}
	for i := 0; i < l2.Width; i++ {
		id0, err := r.SegmentID(n, i)
		if err != nil {
			t.Fatalf("section 0: %v", err)
		}
		id1, err := r.SegmentID(at1, i)
		if err != nil {
			t.Fatalf("section 1: %v", err)
		}
		again, _ := r.SegmentID(n, i)
		if id0 != id1 || id0 != again {
			t.Fatalf("track %d: expected one ID per wire, got %d, %d and %d", i, id0, id1, again)
		}
		if got := r.TrackPTC(at1, i) - r.TrackPTC(n, i); got != l2.Width {
			t.Fatalf("expected section 1 one track stride after section 0, got %d", got)
		}
	}

	nodes, err := e.Nodes()
	if err != nil {
		t.Fatalf("nodes: %v", err)
	}
	if len(nodes) != r.NumNodes() {
		t.Fatalf("expected %d nodes, got %d", r.NumNodes(), len(nodes))
	}
	for i, node := range nodes {
		if node.ID != i {
			t.Fatalf("expected dense IDs, node %d has ID %d", i, node.ID)
		}
	}
	id, _ := r.SegmentID(n, 0)
	got := nodes[id]
	want := Node{
		ID:        id,
		Type:      NodeChanY,
		Low:       arch.Position{X: 2, Y: 2},
		High:      arch.Position{X: 2, Y: 3},
		PTC:       []int{r.TrackPTC(n, 0), r.TrackPTC(at1, 0)},
		Direction: arch.DirDec,
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("wire node mismatch (-want +got):\n%s", diff)
	}

	outside := arch.SegmentNode{Position: arch.Position{X: 2, Y: 9}, Prototype: l2, Direction: arch.DirDec, Dimension: arch.DimY}
	if _, err := r.SegmentID(outside, 0); arch.KindOf(err) != arch.KindUnresolvedRouting {
		t.Fatalf("expected unresolved routing outside the fabric, got %v", err)
	}
}

func TestTruncatedWiresOwnTheirIDs(t *testing.T) {
	ctx := arch.NewContext("long")
	l2, _ := ctx.CreateSegment("L2", 1, 2)
	clb := lutBlock(t, ctx)
	top, _ := arch.NewArray("top", 5, 5)
	if err := ctx.AddModule(top); err != nil {
		t.Fatalf("register: %v", err)
	}
	for x := 1; x <= 3; x++ {
		for y := 1; y <= 3; y++ {
			if _, err := top.AddBlock(clb, x, y); err != nil {
				t.Fatalf("place: %v", err)
			}
		}
	}
	if err := ctx.SetTop(top); err != nil {
		t.Fatalf("top: %v", err)
	}
	runPipeline(t, ctx)
	r, err := NewResolver(ctx)
	if err != nil {
		t.Fatalf("resolver: %v", err)
	}
	// The wire whose section 1 sits in the topmost channel starts outside
	// the fabric; the switch block at (2, 3) drives what is left of it.
	n := arch.SegmentNode{Position: arch.Position{X: 2, Y: 3}, Prototype: l2, Direction: arch.DirDec, Dimension: arch.DimY, Section: 1}
	id, err := r.SegmentID(n, 0)
	if err != nil {
		t.Fatalf("truncated: %v", err)
	}
	start := arch.SegmentNode{Position: arch.Position{X: 2, Y: 3}, Prototype: l2, Direction: arch.DirDec, Dimension: arch.DimY}
	other, _ := r.SegmentID(start, 0)
	if id == other {
		t.Fatalf("a truncated wire must not share the ID of the wire starting in the same channel")
	}
	sb := top.Instance("sb_x2y3")
	if sb == nil || sb.Model().Port("o_L2_ny_x0y0_1") == nil {
		t.Fatalf("expected sb_x2y3 to drive the truncated section")
	}
}

func TestPlacementsCopyBlockConfiguration(t *testing.T) {
	ctx := newFabric(t)
	e := newEnumerator(t, ctx)
	pls, err := e.Placements()
	if err != nil {
		t.Fatalf("placements: %v", err)
	}
	if len(pls) != 9 {
		t.Fatalf("expected one placement per sub-block, got %d", len(pls))
	}
	offsets, _ := passes.CfgOffsets(ctx)
	var clb *Placement
	for i := range pls {
		if pls[i].Block.Name() == "clb" {
			clb = &pls[i]
		}
	}
	if clb == nil || clb.Position != (arch.Position{X: 1, Y: 1}) || clb.Subblock != 0 {
		t.Fatalf("expected the clb at (1, 1) sub-block 0, got %+v", clb)
	}
	want := []Action{CopyValue{Offset: offsets.Lookup(ctx.Top().Instance("blk_x1y1")), Width: 16, Begin: 0}}
	if diff := cmp.Diff(want, clb.Actions); diff != "" {
		t.Fatalf("actions mismatch (-want +got):\n%s", diff)
	}
}

func TestRoutingEdgesAreUniqueAndProgrammed(t *testing.T) {
	ctx := newFabric(t)
	e := newEnumerator(t, ctx)
	r := e.r
	edges, err := e.RoutingEdges()
	if err != nil {
		t.Fatalf("edges: %v", err)
	}
	if len(edges) == 0 {
		t.Fatalf("expected routing edges")
	}
	total := r.NumNodes()
	seen := map[[2]int]bool{}
	for _, edge := range edges {
		k := [2]int{edge.Src, edge.Sink}
		if seen[k] {
			t.Fatalf("duplicate edge %v", k)
		}
		seen[k] = true
		if edge.Src < 0 || edge.Src >= total || edge.Sink < 0 || edge.Sink >= total {
			t.Fatalf("edge %v out of range [0, %d)", k, total)
		}
	}

	clb := ctx.Module("clb")
	opin, err := r.PinID(arch.BlockPinNode{Position: arch.Position{X: 1, Y: 1}, Port: clb.Port("O")}, 0, true)
	if err != nil {
		t.Fatalf("opin: %v", err)
	}
	l1 := ctx.Segment("L1")
	wire, err := r.SegmentID(arch.SegmentNode{Position: arch.Position{X: 1, Y: 1}, Prototype: l1, Direction: arch.DirInc, Dimension: arch.DimY}, 0)
	if err != nil {
		t.Fatalf("wire: %v", err)
	}
	var found *Edge
	for i := range edges {
		if edges[i].Src == opin && edges[i].Sink == wire {
			found = &edges[i]
		}
	}
	if found == nil {
		t.Fatalf("expected the clb output to drive the increasing y wire at (1, 1)")
	}
	if len(found.Actions) != 2 {
		t.Fatalf("expected the connection block and the switch block to be programmed, got %v", found.Actions)
	}
	cb, ok1 := found.Actions[0].(SetValue)
	sb, ok2 := found.Actions[1].(SetValue)
	if !ok1 || !ok2 || cb.Value != 0 || sb.Value != 0 || cb.Offset == sb.Offset {
		t.Fatalf("expected the first input of two distinct switches, got %v", found.Actions)
	}
	if cb.Width != arch.SelectBits(3) || sb.Width != arch.SelectBits(2) {
		t.Fatalf("unexpected selector widths %d and %d", cb.Width, sb.Width)
	}

	ipin, _ := r.PinID(arch.BlockPinNode{Position: arch.Position{X: 1, Y: 1}, Port: clb.Port("I")}, 0, true)
	drivers := 0
	for _, edge := range edges {
		if edge.Sink == ipin {
			drivers++
			if len(edge.Actions) != 1 {
				t.Fatalf("expected one selector per input pin edge, got %v", edge.Actions)
			}
		}
	}
	if drivers != 2 {
		t.Fatalf("expected Fc=1 per direction to give two drivers, got %d", drivers)
	}
}

func TestPinEdges(t *testing.T) {
	ctx := newFabric(t)
	e := newEnumerator(t, ctx)
	edges, err := e.PinEdges()
	if err != nil {
		t.Fatalf("pin edges: %v", err)
	}
	// 5 clb pins and 2 pins on each of 8 IO sub-blocks.
	if len(edges) != 21 {
		t.Fatalf("expected 21 pin edges, got %d", len(edges))
	}
	clb := ctx.Module("clb")
	r := e.r
	sink, _ := r.PinID(arch.BlockPinNode{Position: arch.Position{X: 1, Y: 1}, Port: clb.Port("I")}, 2, false)
	ipin, _ := r.PinID(arch.BlockPinNode{Position: arch.Position{X: 1, Y: 1}, Port: clb.Port("I")}, 2, true)
	source, _ := r.PinID(arch.BlockPinNode{Position: arch.Position{X: 1, Y: 1}, Port: clb.Port("O")}, 0, false)
	opin, _ := r.PinID(arch.BlockPinNode{Position: arch.Position{X: 1, Y: 1}, Port: clb.Port("O")}, 0, true)
	want := map[[2]int]bool{{ipin, sink}: false, {source, opin}: false}
	for _, edge := range edges {
		k := [2]int{edge.Src, edge.Sink}
		if _, ok := want[k]; ok {
			want[k] = true
		}
	}
	for k, ok := range want {
		if !ok {
			t.Fatalf("missing pin edge %d -> %d", k[0], k[1])
		}
	}
}

func TestDFSPhysicalPaths(t *testing.T) {
	ctx := arch.NewContext("paths")
	m := arch.NewSlice("sel")
	a := mustPort(t, m, "a", 1, arch.Input)
	b := mustPort(t, m, "b", 1, arch.Input)
	c := mustPort(t, m, "c", 1, arch.Input)
	d := mustPort(t, m, "d", 1, arch.Input)
	o := mustPort(t, m, "o", 1, arch.Output)
	p := mustPort(t, m, "p", 1, arch.Output)
	for _, src := range []*arch.Port{a, b, c} {
		mustConnect(t, src, o)
	}
	mustConnect(t, d, p)
	if _, err := passes.InsertSwitches(ctx, m); err != nil {
		t.Fatalf("switches: %v", err)
	}

	paths := DFSPhysicalPaths(o.Bit(0), []arch.Bit{c.Bit(0), a.Bit(0), d.Bit(0)}, nil)
	want := [][]Action{
		{SetValue{Offset: 0, Width: 2, Value: 2}},
		{SetValue{Offset: 0, Width: 2, Value: 0}},
		nil,
	}
	if diff := cmp.Diff(want, paths); diff != "" {
		t.Fatalf("paths mismatch (-want +got):\n%s", diff)
	}
	direct := DFSPhysicalPaths(p.Bit(0), []arch.Bit{d.Bit(0)}, nil)
	if direct[0] == nil || len(direct[0]) != 0 {
		t.Fatalf("expected an empty path for a hard-wired source, got %v", direct[0])
	}
}

func TestBlockConnections(t *testing.T) {
	ctx := arch.NewContext("block")
	lut, _ := ctx.LUT(2)
	ff, _ := ctx.Flipflop()
	clb, err := arch.NewLogicBlock("clb", 1, 1)
	if err != nil {
		t.Fatalf("clb: %v", err)
	}
	in := mustPort(t, clb, "I", 2, arch.Input, arch.WithSide(arch.West, 0, 0))
	out := mustPort(t, clb, "O", 1, arch.Output, arch.WithSide(arch.East, 0, 0))
	l, _ := clb.AddInstance(lut, "lut")
	f, _ := clb.AddInstance(ff, "ff")
	mustConnect(t, in, l.Pin("in"))
	mustConnect(t, l.Pin("out"), f.Pin("D"))
	mustConnect(t, f.Pin("Q"), out)
	mustConnect(t, l.Pin("out"), out)
	if _, err := passes.InsertSwitches(ctx, clb); err != nil {
		t.Fatalf("switches: %v", err)
	}

	conns, err := BlockConnections(clb, nil)
	if err != nil {
		t.Fatalf("connections: %v", err)
	}
	got := map[string][]Action{}
	for _, c := range conns {
		got[c.Src.String()+" -> "+c.Sink.String()] = c.Actions
	}
	want := map[string][]Action{
		"clb.I[0] -> clb.lut.in[0]": {},
		"clb.I[1] -> clb.lut.in[1]": {},
		"clb.lut.out -> clb.ff.D":   {},
		"clb.ff.Q -> clb.O":         {SetValue{Offset: 0, Width: 1, Value: 0}},
		"clb.lut.out -> clb.O":      {SetValue{Offset: 0, Width: 1, Value: 1}},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("connections mismatch (-want +got):\n%s", diff)
	}
}
