package rrg

import (
	"github.com/pkg/errors"
	"golang.org/x/tools/container/intsets"

	"prga/internal/arch"
)

// Edge is a programmable connection between two routing-graph nodes and the
// configuration that enables it.
type Edge struct {
	Src, Sink int
	Actions   []Action
}

// Placement is one sub-block of a logic or IO block at its anchor, with
// the action that loads its configuration.
type Placement struct {
	Position arch.Position
	Subblock int
	Block    *arch.Module
	Actions  []Action
}

// Enumerator walks the top-level array and lists routing edges, pin edges
// and placements in a deterministic order.
type Enumerator struct {
	r       *Resolver
	bits    *arch.Table[*arch.Module, int]
	offsets *arch.Table[*arch.Instance, int]
}

// NewEnumerator requires the resolver's context to carry configuration
// tables.
func NewEnumerator(r *Resolver, bits *arch.Table[*arch.Module, int], offsets *arch.Table[*arch.Instance, int]) *Enumerator {
	return &Enumerator{r: r, bits: bits, offsets: offsets}
}

func isLeafBlock(m *arch.Module) bool {
	return m.IsBlock(arch.BlockLogic) || m.IsBlock(arch.BlockIO)
}

// RoutingEdges returns one edge per distinct (src, sink) pair realized by a
// routing block. Sinks are wires and block input pins; sources are wires and
// block output pins. A block output driving a wire through a connection
// block bridge also programs the switch block that selects the bridge.
func (e *Enumerator) RoutingEdges() ([]Edge, error) {
	var (
		edges []Edge
		seen  intsets.Sparse
	)
	total := e.r.NumNodes()
	add := func(src, sink int, actions []Action) {
		if seen.Insert(src*total + sink) {
			edges = append(edges, Edge{Src: src, Sink: sink, Actions: actions})
		}
	}
	err := e.r.Top().Walk(func(v arch.Visit) error {
		model := v.Placement.Model
		if !model.IsRoutingBlock() {
			return nil
		}
		inst := v.Placement.Instances[0]
		cfg := e.r.CfgBase(v.Path, inst)
		for _, port := range model.Ports() {
			if port.Direction() != arch.Output || port.Node() == nil {
				continue
			}
			node := arch.MoveNode(port.Node(), v.Pos())
			for i := 0; i < port.Width(); i++ {
				if err := e.portEdges(v, port, node, i, cfg, add); err != nil {
					return errors.Wrapf(err, "%s.%s[%d]", inst, port.Name(), i)
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return edges, nil
}

func (e *Enumerator) portEdges(v arch.Visit, port *arch.Port, node arch.RoutingNode, i, cfg int, add func(src, sink int, actions []Action)) error {
	sinkBit := port.Bit(i)
	var (
		sink  int
		extra []Action
		err   error
	)
	switch n := node.(type) {
	case arch.SegmentNode:
		if sink, err = e.r.SegmentID(n, i); err != nil {
			return err
		}
		if port.IsBridge() {
			if extra, err = e.bridgeActions(n, i); err != nil {
				return err
			}
		}
	case arch.BlockPinNode:
		if sink, err = e.r.PinID(n, i, true); err != nil {
			return err
		}
	}

	var (
		sources []arch.Bit
		ids     []int
	)
	for _, src := range arch.LogicalSources(sinkBit) {
		sp := src.Port()
		if sp == nil || sp.Node() == nil {
			continue
		}
		srcNode := arch.MoveNode(sp.Node(), v.Pos())
		var id int
		switch n := srcNode.(type) {
		case arch.SegmentNode:
			if sp.IsBridge() {
				if own, ok := node.(arch.SegmentNode); ok && own.Equivalent(n) {
					continue
				}
				return errors.Wrapf(arch.ErrUnresolved, "bridge %s does not feed its own wire", sp.Name())
			}
			id, err = e.r.SegmentID(n, src.Index())
		case arch.BlockPinNode:
			id, err = e.r.PinID(n, src.Index(), true)
		}
		if err != nil {
			return err
		}
		sources = append(sources, src)
		ids = append(ids, id)
	}
	paths := DFSPhysicalPaths(sinkBit, sources, e.offsets)
	for k, path := range paths {
		if path == nil {
			return errors.Wrapf(arch.ErrUnresolved, "no physical path from %s", sources[k])
		}
		actions := append(shiftAll(path, cfg), extra...)
		add(ids[k], sink, actions)
	}
	return nil
}

// bridgeActions programs the switch block that drives the wire n from the
// bridge of the connection block at its origin.
func (e *Enumerator) bridgeActions(n arch.SegmentNode, i int) ([]Action, error) {
	off := arch.SwitchOutputOffset(n.Dimension, n.Direction)
	v, ok := e.r.Top().Locate(n.Position.Sub(off), arch.TileSwitch)
	if !ok {
		return nil, errors.Wrapf(arch.ErrUnresolved, "no switch block drives %s", n)
	}
	rel := n
	rel.Position = off
	model := v.Placement.Model
	out := model.Port(arch.NodePortName(arch.PrefixOut, rel))
	br := model.Port(arch.NodePortName(arch.PrefixBridge, rel))
	if out == nil || br == nil {
		return nil, errors.Wrapf(arch.ErrUnresolved, "%s has no bridge for %s", model.Name(), n)
	}
	path := DFSPhysicalPaths(out.Bit(i), []arch.Bit{br.Bit(i)}, e.offsets)[0]
	if path == nil {
		return nil, errors.Wrapf(arch.ErrUnresolved, "%s does not select its bridge for %s", model.Name(), n)
	}
	return shiftAll(path, e.r.CfgBase(v.Path, v.Placement.Instances[0])), nil
}

// PinEdges connects the logical and physical node of every block pin bit:
// IPIN to SINK for inputs and SOURCE to OPIN for outputs.
func (e *Enumerator) PinEdges() ([]Edge, error) {
	var edges []Edge
	err := e.r.Top().Walk(func(v arch.Visit) error {
		model := v.Placement.Model
		if !isLeafBlock(model) {
			return nil
		}
		n := e.r.IDs().NumNodes.Lookup(model)
		for _, inst := range v.Placement.Instances {
			base := e.r.Base(v.Path, inst)
			for _, port := range model.RoutingPorts() {
				ptc := e.r.IDs().PTC.Lookup(port)
				for i := 0; i < port.Width(); i++ {
					logical := base + ptc + i
					if port.Direction() == arch.Input {
						edges = append(edges, Edge{Src: logical + n, Sink: logical})
					} else {
						edges = append(edges, Edge{Src: logical, Sink: logical + n})
					}
				}
			}
		}
		return nil
	})
	return edges, err
}

// Placements lists every logic and IO sub-block with the copy action that
// loads its configuration bits.
func (e *Enumerator) Placements() ([]Placement, error) {
	var out []Placement
	err := e.r.Top().Walk(func(v arch.Visit) error {
		model := v.Placement.Model
		if !isLeafBlock(model) {
			return nil
		}
		bits := e.bits.Lookup(model)
		for sub, inst := range v.Placement.Instances {
			pl := Placement{Position: v.Pos(), Subblock: sub, Block: model}
			if bits > 0 {
				pl.Actions = []Action{CopyValue{Offset: e.r.CfgBase(v.Path, inst), Width: bits}}
			}
			out = append(out, pl)
		}
		return nil
	})
	return out, err
}
