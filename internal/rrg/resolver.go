// Package rrg derives the routing-resource graph of a fabric: node IDs,
// routing edges with the configuration that realizes them, and block
// placements.
package rrg

import (
	"github.com/pkg/errors"

	"prga/internal/arch"
	"prga/internal/passes"
)

// Resolver computes the VPR node ID of routing nodes in the top-level array
// by descending from the top through nested arrays and summing node_id
// offsets along the way.
type Resolver struct {
	top     *arch.Module
	ids     *passes.IDs
	offsets *arch.Table[*arch.Instance, int]

	segments map[arch.SegmentNode]int
}

// NewResolver looks up the ID tables of ctx. The configuration offsets are
// optional; without them CfgBase reports zero.
func NewResolver(ctx *arch.Context) (*Resolver, error) {
	top := ctx.Top()
	if top == nil {
		return nil, errors.Wrap(arch.ErrInvalidArg, "no top-level array")
	}
	ids, err := passes.LoadIDs(ctx)
	if err != nil {
		return nil, err
	}
	r := &Resolver{top: top, ids: ids, segments: map[arch.SegmentNode]int{}}
	if offsets, err := passes.CfgOffsets(ctx); err == nil {
		r.offsets = offsets
	}
	return r, nil
}

// Top returns the top-level array.
func (r *Resolver) Top() *arch.Module { return r.top }

// IDs returns the ID tables the resolver reads.
func (r *Resolver) IDs() *passes.IDs { return r.ids }

// NumNodes returns the total node count of the fabric.
func (r *Resolver) NumNodes() int { return r.ids.NumNodes.Lookup(r.top) }

// Base returns the first node ID of inst reached through path.
func (r *Resolver) Base(path []*arch.Instance, inst *arch.Instance) int {
	base := r.ids.NodeID.Lookup(inst)
	for _, p := range path {
		base += r.ids.NodeID.Lookup(p)
	}
	return base
}

// CfgBase returns the absolute configuration offset of inst reached through
// path.
func (r *Resolver) CfgBase(path []*arch.Instance, inst *arch.Instance) int {
	if r.offsets == nil {
		return 0
	}
	base := r.offsets.Lookup(inst)
	for _, p := range path {
		base += r.offsets.Lookup(p)
	}
	return base
}

func chanKind(dim arch.Dimension) arch.TileKind {
	if dim == arch.DimY {
		return arch.TileYChan
	}
	return arch.TileXChan
}

// wireOwner finds the port a wire's ID is assigned to. Starting at the
// queried section it walks upstream: a truncated switch output at a later
// section takes precedence over the channel the wire originates in.
func (r *Resolver) wireOwner(n arch.SegmentNode) (arch.Visit, *arch.Port, int, bool) {
	origin := n.OriginEquivalent()
	for s := n.Section; s >= 1; s-- {
		sec := origin.AtSection(s)
		off := arch.SwitchOutputOffset(sec.Dimension, sec.Direction)
		v, ok := r.top.Locate(sec.Position.Sub(off), arch.TileSwitch)
		if !ok {
			continue
		}
		rel := sec
		rel.Position = off
		p := v.Placement.Model.Port(arch.NodePortName(arch.PrefixOut, rel))
		if p != nil && arch.IsWireOwner(p) {
			return v, p, s, true
		}
	}
	v, ok := r.top.Locate(origin.Position, chanKind(origin.Dimension))
	if !ok {
		return arch.Visit{}, nil, 0, false
	}
	rel := origin
	rel.Position = arch.Position{}
	p := v.Placement.Model.Port(arch.NodePortName(arch.PrefixIn, rel))
	if p == nil || !arch.IsWireOwner(p) {
		return arch.Visit{}, nil, 0, false
	}
	return v, p, 0, true
}

// SegmentID returns the node ID of track index of the wire n is a view of.
// Every section of a wire has the same ID.
func (r *Resolver) SegmentID(n arch.SegmentNode, index int) (int, error) {
	if index < 0 || index >= n.Prototype.Width {
		return 0, errors.Wrapf(arch.ErrInvalidArg, "track %d of %s", index, n)
	}
	if base, ok := r.segments[n]; ok {
		return base + index, nil
	}
	v, p, _, ok := r.wireOwner(n)
	if !ok {
		return 0, errors.Wrapf(arch.ErrUnresolved, "no routing block owns %s", n)
	}
	base := r.Base(v.Path, v.Placement.Instances[0]) + r.ids.NodeID.Lookup(p)
	r.segments[n] = base
	return base + index, nil
}

// PinID returns the node ID of bit index of a block pin. The physical view
// is the IPIN/OPIN node; the logical view is the SINK/SOURCE node.
func (r *Resolver) PinID(n arch.BlockPinNode, index int, physical bool) (int, error) {
	v, ok := r.top.Locate(n.Position, arch.TileLogic)
	if !ok || v.Placement.Root.Add(v.Origin) != n.Position {
		return 0, errors.Wrapf(arch.ErrUnresolved, "no block anchored at %s", n.Position)
	}
	model := v.Placement.Model
	if n.Subblock < 0 || n.Subblock >= len(v.Placement.Instances) {
		return 0, errors.Wrapf(arch.ErrUnresolved, "sub-block %d of %s", n.Subblock, model.Name())
	}
	port := model.Port(n.Port.Name())
	if port == nil || port != n.Port {
		return 0, errors.Wrapf(arch.ErrUnresolved, "%s has no pin %s", model.Name(), n.Port.Name())
	}
	if index < 0 || index >= port.Width() {
		return 0, errors.Wrapf(arch.ErrInvalidArg, "bit %d of %s", index, port)
	}
	id := r.Base(v.Path, v.Placement.Instances[n.Subblock]) + r.ids.PTC.Lookup(port) + index
	if physical {
		id += r.ids.NumNodes.Lookup(model)
	}
	return id, nil
}

// TrackPTC returns the VPR track number of track index of a wire at the
// section n views.
func (r *Resolver) TrackPTC(n arch.SegmentNode, index int) int {
	p := n.Prototype
	return r.ids.PTC.Lookup(p) + int(n.Direction)*p.Width*p.Length + n.Section*p.Width + index
}

// SegmentIndex returns the VPR segment ID of a prototype.
func (r *Resolver) SegmentIndex(p *arch.SegmentPrototype) int {
	return r.ids.SegmentID.Lookup(p)
}
