package rrg

import (
	"github.com/pkg/errors"

	"prga/internal/arch"
)

// Connection is a logical connection inside a block and the configuration
// that realizes it, relative to the block's cfg_d bus.
type Connection struct {
	Src, Sink arch.Bit
	Actions   []Action
}

// LeafBlocks lists the logic and IO blocks placed anywhere in top, in the
// order they are first reached.
func LeafBlocks(top *arch.Module) []*arch.Module {
	var out []*arch.Module
	seen := map[*arch.Module]bool{}
	_ = top.Walk(func(v arch.Visit) error {
		m := v.Placement.Model
		if isLeafBlock(m) && !seen[m] {
			seen[m] = true
			out = append(out, m)
		}
		return nil
	})
	return out
}

// BlockConnections lists every logical connection inside m with its switch
// settings. A connection without a physical path is reported as unresolved.
func BlockConnections(m *arch.Module, offsets *arch.Table[*arch.Instance, int]) ([]Connection, error) {
	var out []Connection
	for _, sink := range arch.LogicalSinks(m) {
		srcs := arch.LogicalSources(sink)
		if len(srcs) == 0 {
			continue
		}
		phys := sink
		if cp, ok := arch.PhysicalCounterpart(sink); ok {
			phys = cp
		}
		if !phys.IsPhysicalSink() {
			continue
		}
		cands := make([]arch.Bit, len(srcs))
		for i, src := range srcs {
			cands[i] = src
			if cp, ok := arch.PhysicalCounterpart(src); ok {
				cands[i] = cp
			}
		}
		for i, path := range DFSPhysicalPaths(phys, cands, offsets) {
			if path == nil {
				return nil, errors.Wrapf(arch.ErrUnresolved, "%s: no physical path from %s to %s", m.Name(), srcs[i], sink)
			}
			out = append(out, Connection{Src: srcs[i], Sink: sink, Actions: path})
		}
	}
	return out, nil
}
