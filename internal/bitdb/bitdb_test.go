package bitdb

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"

	"prga/internal/arch"
	"prga/internal/flow"
	"prga/internal/passes"
	"prga/internal/rrg"
)

type countingWriter struct {
	bytes.Buffer
	writes []int
}

func (w *countingWriter) Write(p []byte) (int, error) {
	w.writes = append(w.writes, len(p))
	return w.Buffer.Write(p)
}

func TestStreamRoundTripInBatches(t *testing.T) {
	packets := []Packet{
		&Header{Signature: Signature, Width: 4, Height: 3, NodeSize: 120, TotalCfgSize: 77},
		&Block{
			Name:    "clb",
			CfgSize: 17,
			Ports:   []Port{{Name: "I", Width: 4}, {Name: "O", Width: 1, Output: true}},
			Connections: []BlockConnection{
				{Src: "clb.I[0]", Sink: "clb.lut.in[0]"},
				{Src: "clb.lut.out", Sink: "clb.O", Actions: []rrg.Action{rrg.SetValue{Offset: 16, Width: 1, Value: 1}}},
			},
		},
		&Placement{X: 1, Y: 1, Block: "clb", Actions: []rrg.Action{rrg.CopyValue{Offset: 40, Width: 16}}},
		&Placement{X: 0, Y: 1, Subblock: 1, Block: "iob"},
		&Edge{Src: 3, Sink: 9, Actions: []rrg.Action{rrg.SetValue{Offset: 2, Width: 2, Value: 3}, rrg.SetValue{Offset: 7, Width: 1}}},
	}
	var out countingWriter
	w := NewWriter(&out, 32)
	for _, p := range packets {
		if err := w.Write(p); err != nil {
			t.Fatalf("write: %v", err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("close: %v", err)
	}
	if len(out.writes) < 2 {
		t.Fatalf("expected several batches, got %v", out.writes)
	}
	data := out.Bytes()
	if string(data[:len(Magic)]) != Magic {
		t.Fatalf("expected magic %q, got %q", Magic, data[:len(Magic)])
	}
	if tail := binary.LittleEndian.Uint32(data[len(data)-4:]); tail != 0 {
		t.Fatalf("expected zero terminator, got %d", tail)
	}

	got, err := ReadAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if diff := cmp.Diff(packets, got); diff != "" {
		t.Fatalf("packets mismatch (-want +got):\n%s", diff)
	}
}

func TestReaderRejectsBadStreams(t *testing.T) {
	if _, err := NewReader(bytes.NewReader([]byte("notprga!"))); err != ErrBadMagic {
		t.Fatalf("expected ErrBadMagic, got %v", err)
	}

	var buf bytes.Buffer
	w := NewWriter(&buf, 0)
	if err := w.Write(&Edge{Src: 1, Sink: 2}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("flush: %v", err)
	}
	if _, err := ReadAll(bytes.NewReader(buf.Bytes())); err != ErrTruncated {
		t.Fatalf("expected ErrTruncated without terminator, got %v", err)
	}
}

func TestUnmarshalRejectsGarbage(t *testing.T) {
	if _, err := Unmarshal([]byte{0x0a, 0x05, 0x01}); err == nil {
		t.Fatalf("expected short envelope to fail")
	}
}

func newFabric(t *testing.T) *arch.Context {
	t.Helper()
	ctx := arch.NewContext("db")
	if _, err := ctx.CreateSegment("L1", 2, 1); err != nil {
		t.Fatalf("segment: %v", err)
	}
	lut, _ := ctx.LUT(4)
	pad, _ := ctx.IOPad()
	clb, _ := arch.NewLogicBlock("clb", 1, 1)
	in, _ := clb.CreatePort("I", 4, arch.Input, arch.WithSide(arch.West, 0, 0))
	out, _ := clb.CreatePort("O", 1, arch.Output, arch.WithSide(arch.East, 0, 0))
	l, _ := clb.AddInstance(lut, "lut")
	if err := arch.Connect(in, l.Pin("in")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := arch.Connect(l.Pin("out"), out); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := clb.SetFC(arch.FC{In: arch.FCCount(1), Out: arch.FCCount(1)}); err != nil {
		t.Fatalf("fc: %v", err)
	}
	iob, _ := arch.NewIOBlock("iob", 2, pad)
	top, _ := arch.NewArray("top", 3, 3)
	for _, m := range []*arch.Module{clb, iob, top} {
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
	return ctx
}

func TestPassWritesFabricDatabase(t *testing.T) {
	ctx := newFabric(t)
	path := filepath.Join(t.TempDir(), "out", "bitstream.db")
	f := flow.NewFlow(nil,
		NewPass(nil, path, 64),
		passes.NewRoutingCompleter(nil),
		passes.NewSwitchInsertion(nil),
		passes.NewBitchainAllocation(nil),
		passes.NewVPRIDAssignment(nil),
	)
	if err := f.Run(ctx); err != nil {
		t.Fatalf("flow: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read database: %v", err)
	}
	packets, err := ReadAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}

	ids, err := passes.LoadIDs(ctx)
	if err != nil {
		t.Fatalf("ids: %v", err)
	}
	bits, _ := passes.CfgBits(ctx)
	wantHeader := &Header{
		Signature:    Signature,
		Width:        3,
		Height:       3,
		NodeSize:     ids.NumNodes.Lookup(ctx.Top()),
		TotalCfgSize: bits.Lookup(ctx.Top()),
	}
	if diff := cmp.Diff(Packet(wantHeader), packets[0]); diff != "" {
		t.Fatalf("header mismatch (-want +got):\n%s", diff)
	}

	var (
		blocks     []string
		placements int
		edges      int
	)
	for _, p := range packets[1:] {
		switch p := p.(type) {
		case *Block:
			blocks = append(blocks, p.Name)
			if p.Name == "clb" && p.CfgSize != 16 {
				t.Fatalf("expected clb to hold 16 bits, got %d", p.CfgSize)
			}
		case *Placement:
			placements++
		case *Edge:
			edges++
		case *Header:
			t.Fatalf("unexpected second header")
		}
	}
	if diff := cmp.Diff([]string{"iob", "clb"}, blocks); diff != "" {
		t.Fatalf("blocks mismatch (-want +got):\n%s", diff)
	}
	if placements != 9 {
		t.Fatalf("expected 9 placements, got %d", placements)
	}
	if edges == 0 {
		t.Fatalf("expected routing edges")
	}

	hdr, st, err := Summarize(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("summarize: %v", err)
	}
	if diff := cmp.Diff(wantHeader, hdr); diff != "" {
		t.Fatalf("summary header mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(Stats{Blocks: 2, Placements: 9, Edges: edges}, st); diff != "" {
		t.Fatalf("summary mismatch (-want +got):\n%s", diff)
	}
}

func TestPassWritesNestedArrayDatabase(t *testing.T) {
	ctx := arch.NewContext("nested")
	if _, err := ctx.CreateSegment("L1", 2, 1); err != nil {
		t.Fatalf("segment: %v", err)
	}
	lut, _ := ctx.LUT(4)
	pad, _ := ctx.IOPad()
	clb, _ := arch.NewLogicBlock("clb", 1, 1)
	in, _ := clb.CreatePort("I", 4, arch.Input, arch.WithSide(arch.West, 0, 0))
	out, _ := clb.CreatePort("O", 1, arch.Output, arch.WithSide(arch.East, 0, 0))
	l, _ := clb.AddInstance(lut, "lut")
	if err := arch.Connect(in, l.Pin("in")); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := arch.Connect(l.Pin("out"), out); err != nil {
		t.Fatalf("connect: %v", err)
	}
	if err := clb.SetFC(arch.FC{In: arch.FCCount(1), Out: arch.FCCount(1)}); err != nil {
		t.Fatalf("fc: %v", err)
	}
	iob, _ := arch.NewIOBlock("iob", 2, pad)
	sub, _ := arch.NewArray("sub", 2, 2)
	top, _ := arch.NewArray("top", 4, 4)
	for _, m := range []*arch.Module{clb, iob, sub, top} {
		if err := ctx.AddModule(m); err != nil {
			t.Fatalf("register: %v", err)
		}
	}
	for x := 0; x < 2; x++ {
		for y := 0; y < 2; y++ {
			if _, err := sub.AddBlock(clb, x, y); err != nil {
				t.Fatalf("place clb: %v", err)
			}
		}
	}
	if _, err := top.AddBlock(sub, 1, 1); err != nil {
		t.Fatalf("place sub: %v", err)
	}
	for _, p := range []arch.Position{{X: 1, Y: 0}, {X: 2, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: 2}, {X: 3, Y: 1}, {X: 3, Y: 2}, {X: 1, Y: 3}, {X: 2, Y: 3}} {
		if _, err := top.AddBlock(iob, p.X, p.Y); err != nil {
			t.Fatalf("place iob: %v", err)
		}
	}
	if err := ctx.SetTop(top); err != nil {
		t.Fatalf("top: %v", err)
	}

	path := filepath.Join(t.TempDir(), "bitstream.db")
	f := flow.NewFlow(nil,
		NewPass(nil, path, 0),
		passes.NewRoutingCompleter(nil),
		passes.NewSwitchInsertion(nil),
		passes.NewBitchainAllocation(nil),
		passes.NewVPRIDAssignment(nil),
	)
	if err := f.Run(ctx); err != nil {
		t.Fatalf("flow: %v", err)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read database: %v", err)
	}
	packets, err := ReadAll(bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ids, _ := passes.LoadIDs(ctx)
	bits, _ := passes.CfgBits(ctx)
	hdr, ok := packets[0].(*Header)
	if !ok {
		t.Fatalf("expected a header first, got %T", packets[0])
	}
	if hdr.NodeSize != ids.NumNodes.Lookup(top) || hdr.TotalCfgSize != bits.Lookup(top) {
		t.Fatalf("expected %d nodes and %d bits, got %+v", ids.NumNodes.Lookup(top), bits.Lookup(top), hdr)
	}

	clbs := map[arch.Position]int{}
	offsets := map[int]bool{}
	placements, edges := 0, 0
	for _, p := range packets[1:] {
		switch p := p.(type) {
		case *Placement:
			placements++
			if p.Block != "clb" {
				continue
			}
			clbs[arch.Position{X: p.X, Y: p.Y}]++
			for _, a := range p.Actions {
				cv, ok := a.(rrg.CopyValue)
				if !ok {
					continue
				}
				if offsets[cv.Offset] || cv.Offset+cv.Width > hdr.TotalCfgSize {
					t.Fatalf("clb at (%d, %d) copies to a bad offset %d", p.X, p.Y, cv.Offset)
				}
				offsets[cv.Offset] = true
			}
		case *Edge:
			edges++
			if p.Src < 0 || p.Src >= hdr.NodeSize || p.Sink < 0 || p.Sink >= hdr.NodeSize {
				t.Fatalf("edge %d -> %d outside %d nodes", p.Src, p.Sink, hdr.NodeSize)
			}
		}
	}
	want := map[arch.Position]int{{X: 1, Y: 1}: 1, {X: 2, Y: 1}: 1, {X: 1, Y: 2}: 1, {X: 2, Y: 2}: 1}
	if diff := cmp.Diff(want, clbs); diff != "" {
		t.Fatalf("clb placements mismatch (-want +got):\n%s", diff)
	}
	if len(offsets) != 4 {
		t.Fatalf("expected four distinct clb copy offsets, got %v", offsets)
	}
	if placements != 4+8*2 || edges == 0 {
		t.Fatalf("expected 20 placements and some edges, got %d and %d", placements, edges)
	}
}
