package rrg

import (
	"sort"

	"github.com/pkg/errors"
	"golang.org/x/tools/container/intsets"

	"prga/internal/arch"
)

// NodeType is the VPR routing-resource node type.
type NodeType int

const (
	NodeSource NodeType = iota
	NodeSink
	NodeIPin
	NodeOPin
	NodeChanX
	NodeChanY
)

func (t NodeType) String() string {
	switch t {
	case NodeSource:
		return "SOURCE"
	case NodeSink:
		return "SINK"
	case NodeIPin:
		return "IPIN"
	case NodeOPin:
		return "OPIN"
	case NodeChanX:
		return "CHANX"
	case NodeChanY:
		return "CHANY"
	}
	return "?"
}

// Node is one routing-resource node. Wires list the track number of every
// section they span; pins and classes have a single PTC.
type Node struct {
	ID        int
	Type      NodeType
	Low, High arch.Position
	PTC       []int
	Side      arch.Orientation
	Direction arch.Direction
	Segment   int
	BlockType int
}

// Nodes lists every node of the fabric ordered by ID. Each ID in
// [0, NumNodes) appears exactly once.
func (e *Enumerator) Nodes() ([]Node, error) {
	var (
		nodes []Node
		seen  intsets.Sparse
	)
	add := func(n Node) error {
		if !seen.Insert(n.ID) {
			return errors.Wrapf(arch.ErrInvalidArg, "node %d assigned twice", n.ID)
		}
		nodes = append(nodes, n)
		return nil
	}
	ids := e.r.IDs()
	top := e.r.Top()
	w, h := top.Size()
	err := top.Walk(func(v arch.Visit) error {
		model := v.Placement.Model
		switch {
		case isLeafBlock(model):
			n := ids.NumNodes.Lookup(model)
			bw, bh := model.Size()
			low := v.Pos()
			high := low.Add(arch.Position{X: bw - 1, Y: bh - 1})
			for sub, inst := range v.Placement.Instances {
				base := e.r.Base(v.Path, inst)
				for _, port := range model.RoutingPorts() {
					ptc := ids.PTC.Lookup(port)
					xo, yo := port.Offset()
					at := low.Add(arch.Position{X: xo, Y: yo})
					side := port.Side()
					if side == arch.OrientNone {
						side = facing(at, w, h)
					}
					class, pin := NodeSink, NodeIPin
					if port.Direction() == arch.Output {
						class, pin = NodeSource, NodeOPin
					}
					for i := 0; i < port.Width(); i++ {
						num := sub*n + ptc + i
						logical := Node{ID: base + ptc + i, Type: class, Low: low, High: high, PTC: []int{num}, BlockType: ids.BlockTypeID.Lookup(model)}
						physical := Node{ID: base + ptc + i + n, Type: pin, Low: at, High: at, PTC: []int{num}, Side: side, BlockType: logical.BlockType}
						if err := add(logical); err != nil {
							return err
						}
						if err := add(physical); err != nil {
							return err
						}
					}
				}
			}
		case model.IsRoutingBlock():
			base := e.r.Base(v.Path, v.Placement.Instances[0])
			for _, port := range model.Ports() {
				if !arch.IsWireOwner(port) {
					continue
				}
				view := arch.MoveNode(port.Node(), v.Pos()).(arch.SegmentNode)
				for i := 0; i < port.Width(); i++ {
					if err := add(e.wireNode(view, base+ids.NodeID.Lookup(port)+i, i)); err != nil {
						return err
					}
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if total := e.r.NumNodes(); len(nodes) != total {
		return nil, errors.Wrapf(arch.ErrUnresolved, "%d of %d nodes enumerated", len(nodes), total)
	}
	sort.Slice(nodes, func(i, j int) bool { return nodes[i].ID < nodes[j].ID })
	return nodes, nil
}

// wireNode describes track i of the wire driven at view. The wire spans
// every following section up to the first channel missing from the fabric.
func (e *Enumerator) wireNode(view arch.SegmentNode, id, i int) Node {
	typ := NodeChanX
	if view.Dimension == arch.DimY {
		typ = NodeChanY
	}
	n := Node{ID: id, Type: typ, Direction: view.Direction, Segment: e.r.SegmentIndex(view.Prototype)}
	first := true
	for s := view.Section; s < view.Prototype.Length; s++ {
		sec := view.AtSection(s)
		if !e.r.Top().ChannelExists(sec.Dimension, sec.Position, true) {
			break
		}
		if first {
			n.Low, n.High = sec.Position, sec.Position
			first = false
		}
		n.Low.X, n.Low.Y = min(n.Low.X, sec.Position.X), min(n.Low.Y, sec.Position.Y)
		n.High.X, n.High.Y = max(n.High.X, sec.Position.X), max(n.High.Y, sec.Position.Y)
		n.PTC = append(n.PTC, e.r.TrackPTC(sec, i))
	}
	return n
}

// facing picks the side of a perimeter tile that looks into the fabric.
func facing(p arch.Position, w, h int) arch.Orientation {
	switch {
	case p.X == 0:
		return arch.East
	case p.X == w-1:
		return arch.West
	case p.Y == 0:
		return arch.North
	case p.Y == h-1:
		return arch.South
	}
	return arch.North
}
