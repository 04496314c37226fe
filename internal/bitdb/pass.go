package bitdb

import (
	"io"
	"os"
	"path/filepath"

	"github.com/pkg/errors"

	"prga/internal/arch"
	"prga/internal/diag"
	"prga/internal/flow"
	"prga/internal/passes"
	"prga/internal/rrg"
)

// KeyBitstreamDB is the pass key of the database writer.
const KeyBitstreamDB = "bitstream.db"

// Stats counts the packets of each kind written to a database.
type Stats struct {
	Blocks, Placements, Edges int
}

// Write emits the database of ctx to w. ctx must have been through
// configuration allocation and VPR ID assignment.
func Write(ctx *arch.Context, w io.Writer, batch int) (Stats, error) {
	var st Stats
	r, err := rrg.NewResolver(ctx)
	if err != nil {
		return st, err
	}
	bits, err := passes.CfgBits(ctx)
	if err != nil {
		return st, err
	}
	offsets, err := passes.CfgOffsets(ctx)
	if err != nil {
		return st, err
	}
	top := r.Top()
	e := rrg.NewEnumerator(r, bits, offsets)
	out := NewWriter(w, batch)

	width, height := top.Size()
	if err := out.Write(&Header{
		Signature:    Signature,
		Width:        width,
		Height:       height,
		NodeSize:     r.NumNodes(),
		TotalCfgSize: bits.Lookup(top),
	}); err != nil {
		return st, err
	}

	for _, m := range rrg.LeafBlocks(top) {
		conns, err := rrg.BlockConnections(m, offsets)
		if err != nil {
			return st, err
		}
		blk := &Block{Name: m.Name(), CfgSize: bits.Lookup(m)}
		for _, p := range m.RoutingPorts() {
			blk.Ports = append(blk.Ports, Port{Name: p.Name(), Width: p.Width(), Output: p.Direction() == arch.Output})
		}
		for _, c := range conns {
			blk.Connections = append(blk.Connections, BlockConnection{Src: c.Src.String(), Sink: c.Sink.String(), Actions: c.Actions})
		}
		if err := out.Write(blk); err != nil {
			return st, err
		}
		st.Blocks++
	}

	placements, err := e.Placements()
	if err != nil {
		return st, err
	}
	for _, p := range placements {
		if err := out.Write(&Placement{X: p.Position.X, Y: p.Position.Y, Subblock: p.Subblock, Block: p.Block.Name(), Actions: p.Actions}); err != nil {
			return st, err
		}
		st.Placements++
	}

	edges, err := e.RoutingEdges()
	if err != nil {
		return st, err
	}
	for _, edge := range edges {
		if err := out.Write(&Edge{Src: edge.Src, Sink: edge.Sink, Actions: edge.Actions}); err != nil {
			return st, err
		}
		st.Edges++
	}
	return st, out.Close()
}

// Pass writes the database to a file.
type Pass struct {
	flow.Base
	reporter *diag.Reporter
	path     string
	batch    int
}

// NewPass writes to path, batching writes of batch bytes.
func NewPass(reporter *diag.Reporter, path string, batch int) *Pass {
	return &Pass{reporter: reporter, path: path, batch: batch}
}

func (p *Pass) Key() string { return KeyBitstreamDB }

func (p *Pass) Dependences() []string { return []string{passes.KeyBitchain, passes.KeyVPRID} }

func (p *Pass) Run(ctx *arch.Context) error {
	if err := os.MkdirAll(filepath.Dir(p.path), 0o755); err != nil {
		return errors.Wrap(err, "bitdb: create output dir")
	}
	f, err := os.Create(p.path)
	if err != nil {
		return errors.Wrap(err, "bitdb: create database")
	}
	defer f.Close()
	st, err := Write(ctx, f, p.batch)
	if err != nil {
		return err
	}
	if p.reporter != nil {
		p.reporter.Infof("wrote %s: %d blocks, %d placements, %d edges", p.path, st.Blocks, st.Placements, st.Edges)
	}
	return f.Close()
}
