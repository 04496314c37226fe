package passes

import (
	"github.com/pkg/errors"

	"prga/internal/arch"
	"prga/internal/diag"
	"prga/internal/flow"
)

// VPRIDAssignment numbers segments, block types, pins and routing nodes the
// way VPR expects them in arch.xml and rr_graph.xml.
//
// Every logic or IO sub-block consumes two IDs per pin bit: a logical one
// (SOURCE/SINK) followed by a physical one (OPIN/IPIN). Routing blocks
// consume one ID per bit of each wire they own. Arrays consume the sum of
// their children, so the ID of any node is the sum of the node_id offsets
// on the path to it.
type VPRIDAssignment struct {
	flow.Base
	reporter *diag.Reporter
}

func NewVPRIDAssignment(reporter *diag.Reporter) *VPRIDAssignment {
	return &VPRIDAssignment{reporter: reporter}
}

func (v *VPRIDAssignment) Key() string { return KeyVPRID }

func (v *VPRIDAssignment) Dependences() []string { return []string{"completer"} }

func (v *VPRIDAssignment) Run(ctx *arch.Context) error {
	top := ctx.Top()
	if top == nil {
		return errors.Wrap(arch.ErrInvalidArg, "ID assignment requires a top-level array")
	}
	ids, err := registerIDs(ctx)
	if err != nil {
		return err
	}
	width := 0
	for i, proto := range ctx.Segments() {
		ids.SegmentID.Set(proto, i)
		ids.PTC.Set(proto, width)
		width += 2 * proto.Width * proto.Length
	}
	ids.ChannelWidth.Set(top, width)

	typeID := 1
	for _, m := range modulesBottomUp(top) {
		switch {
		case m.IsBlock(arch.BlockLogic), m.IsBlock(arch.BlockIO):
			ids.BlockTypeID.Set(m, typeID)
			typeID++
			ptc := 0
			for _, p := range m.RoutingPorts() {
				ids.PTC.Set(p, ptc)
				ptc += p.Width()
			}
			ids.NumNodes.Set(m, ptc)
		case m.IsRoutingBlock():
			n := 0
			for _, p := range m.Ports() {
				if arch.IsWireOwner(p) {
					ids.NodeID.Set(p, n)
					n += p.Width()
				}
			}
			ids.NumNodes.Set(m, n)
		case m.IsArray():
			if err := assignArray(m, ids); err != nil {
				return errors.Wrapf(err, "array %s", m.Name())
			}
		}
	}
	if v.reporter != nil {
		v.reporter.Infof("routing graph: %d nodes, channel width %d, %d block types",
			ids.NumNodes.Lookup(top), width, typeID-1)
	}
	return nil
}

func assignArray(a *arch.Module, ids *IDs) error {
	base := 0
	err := a.Walk(func(v arch.Visit) error {
		if len(v.Path) != 0 {
			return nil
		}
		model := v.Placement.Model
		n, ok := ids.NumNodes.Get(model)
		if !ok {
			return errors.Wrapf(arch.ErrInvalidArg, "no node count for %s", model.Name())
		}
		if model.IsBlock(arch.BlockLogic) || model.IsBlock(arch.BlockIO) {
			n *= 2
		}
		for _, inst := range v.Placement.Instances {
			ids.NodeID.Set(inst, base)
			base += n
		}
		return nil
	})
	if err != nil {
		return err
	}
	ids.NumNodes.Set(a, base)
	return nil
}

func registerIDs(ctx *arch.Context) (*IDs, error) {
	var (
		ids IDs
		err error
	)
	if ids.SegmentID, err = arch.RegisterTable[*arch.SegmentPrototype, int](ctx, TableSegmentID, KeyVPRID); err != nil {
		return nil, err
	}
	if ids.PTC, err = arch.RegisterTable[any, int](ctx, TablePTC, KeyVPRID); err != nil {
		return nil, err
	}
	if ids.ChannelWidth, err = arch.RegisterTable[*arch.Module, int](ctx, TableChannelWidth, KeyVPRID); err != nil {
		return nil, err
	}
	if ids.BlockTypeID, err = arch.RegisterTable[*arch.Module, int](ctx, TableBlockTypeID, KeyVPRID); err != nil {
		return nil, err
	}
	if ids.NumNodes, err = arch.RegisterTable[*arch.Module, int](ctx, TableNumNodes, KeyVPRID); err != nil {
		return nil, err
	}
	if ids.NodeID, err = arch.RegisterTable[any, int](ctx, TableNodeID, KeyVPRID); err != nil {
		return nil, err
	}
	return &ids, nil
}
