// Package passes implements the architecture passes: routing completion,
// physical switch insertion, configuration allocation and VPR ID assignment.
package passes

import (
	"prga/internal/arch"
)

// Pass keys.
const (
	KeyCompleter = "completer.routing"
	KeySwitches  = "switch.physical"
	KeyBitchain  = "config.bitchain"
	KeyVPRID     = "vpr.id"
)

// Side tables owned by the passes of this package.
const (
	TableRoutingEnvironments = "routing_environments"
	TableCfgBits             = "cfg_bits"
	TableCfgOffset           = "cfg_offset"
	TableSegmentID           = "segment_id"
	TablePTC                 = "ptc"
	TableChannelWidth        = "channel_width"
	TableBlockTypeID         = "block_type_id"
	TableNumNodes            = "num_nodes"
	TableNodeID              = "node_id"
)

// CfgBits returns the configuration bit count of every module visited by the
// bit-chain allocation.
func CfgBits(ctx *arch.Context) (*arch.Table[*arch.Module, int], error) {
	return arch.TableOf[*arch.Module, int](ctx, TableCfgBits)
}

// CfgOffsets returns the offset of every configurable instance within its
// parent's cfg_d bus.
func CfgOffsets(ctx *arch.Context) (*arch.Table[*arch.Instance, int], error) {
	return arch.TableOf[*arch.Instance, int](ctx, TableCfgOffset)
}

// IDs bundles the tables written by the VPR ID assignment.
type IDs struct {
	SegmentID    *arch.Table[*arch.SegmentPrototype, int]
	PTC          *arch.Table[any, int]
	ChannelWidth *arch.Table[*arch.Module, int]
	BlockTypeID  *arch.Table[*arch.Module, int]
	NumNodes     *arch.Table[*arch.Module, int]
	NodeID       *arch.Table[any, int]
}

// LoadIDs looks up the VPR ID tables.
func LoadIDs(ctx *arch.Context) (*IDs, error) {
	var (
		ids IDs
		err error
	)
	if ids.SegmentID, err = arch.TableOf[*arch.SegmentPrototype, int](ctx, TableSegmentID); err != nil {
		return nil, err
	}
	if ids.PTC, err = arch.TableOf[any, int](ctx, TablePTC); err != nil {
		return nil, err
	}
	if ids.ChannelWidth, err = arch.TableOf[*arch.Module, int](ctx, TableChannelWidth); err != nil {
		return nil, err
	}
	if ids.BlockTypeID, err = arch.TableOf[*arch.Module, int](ctx, TableBlockTypeID); err != nil {
		return nil, err
	}
	if ids.NumNodes, err = arch.TableOf[*arch.Module, int](ctx, TableNumNodes); err != nil {
		return nil, err
	}
	if ids.NodeID, err = arch.TableOf[any, int](ctx, TableNodeID); err != nil {
		return nil, err
	}
	return &ids, nil
}

// RoutingEnvironments returns the neighbor tuples every reused routing block
// was placed in.
func RoutingEnvironments(ctx *arch.Context) (*arch.Table[*arch.Module, []string], error) {
	return arch.TableOf[*arch.Module, []string](ctx, TableRoutingEnvironments)
}

// arrays lists the arrays reachable from top, children before parents.
func arrays(top *arch.Module) []*arch.Module {
	var out []*arch.Module
	seen := map[*arch.Module]bool{}
	var visit func(m *arch.Module)
	visit = func(m *arch.Module) {
		if seen[m] {
			return
		}
		seen[m] = true
		for _, inst := range m.Instances() {
			if inst.Model().IsArray() {
				visit(inst.Model())
			}
		}
		out = append(out, m)
	}
	visit(top)
	return out
}

// modulesBottomUp lists every module reachable from top, children first.
func modulesBottomUp(top *arch.Module) []*arch.Module {
	var out []*arch.Module
	seen := map[*arch.Module]bool{}
	var visit func(m *arch.Module)
	visit = func(m *arch.Module) {
		if seen[m] {
			return
		}
		seen[m] = true
		for _, inst := range m.Instances() {
			visit(inst.Model())
		}
		out = append(out, m)
	}
	visit(top)
	return out
}
