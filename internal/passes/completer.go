package passes

import (
	"fmt"
	"strings"

	"github.com/pkg/errors"

	"prga/internal/arch"
	"prga/internal/diag"
	"prga/internal/flow"
)

// RoutingCompleter places connection and switch blocks at every channel and
// corner of the fabric and wires everything together by routing node.
// Routing blocks are shared between locations with the same neighbors.
type RoutingCompleter struct {
	flow.Base
	reporter *diag.Reporter
}

// NewRoutingCompleter constructs the pass. reporter is optional.
func NewRoutingCompleter(reporter *diag.Reporter) *RoutingCompleter {
	return &RoutingCompleter{reporter: reporter}
}

func (c *RoutingCompleter) Key() string { return KeyCompleter }

// Run completes every array reachable from the top, innermost first.
func (c *RoutingCompleter) Run(ctx *arch.Context) error {
	top := ctx.Top()
	if top == nil {
		return errors.Wrap(arch.ErrInvalidArg, "routing completion requires a top-level array")
	}
	protos := ctx.Segments()
	if len(protos) == 0 {
		return errors.Wrap(arch.ErrInvalidArg, "routing completion requires at least one segment")
	}
	envs, err := arch.RegisterTable[*arch.Module, []string](ctx, TableRoutingEnvironments, KeyCompleter)
	if err != nil {
		return err
	}
	for _, a := range arrays(top) {
		if err := c.completeArray(ctx, a, a == top, protos, envs); err != nil {
			return errors.Wrapf(err, "array %s", a.Name())
		}
	}
	return nil
}

func (c *RoutingCompleter) completeArray(ctx *arch.Context, a *arch.Module, isTop bool, protos []*arch.SegmentPrototype, envs *arch.Table[*arch.Module, []string]) error {
	w, h := a.Size()
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			pos := arch.Position{X: x, Y: y}
			for _, dim := range []arch.Dimension{arch.DimX, arch.DimY} {
				if !a.OwnsChannel(dim, pos, isTop) {
					continue
				}
				cb, err := c.connectionBlock(ctx, a, dim, pos, protos)
				if err != nil {
					return err
				}
				kind := arch.TileXChan
				if dim == arch.DimY {
					kind = arch.TileYChan
				}
				if _, err := a.PlaceRoutingBlock(cb, kind, x, y); err != nil {
					return err
				}
				c.record(envs, cb, channelTuple(a, dim, pos, isTop))
			}
		}
	}
	for x := 0; x < w; x++ {
		for y := 0; y < h; y++ {
			pos := arch.Position{X: x, Y: y}
			if !a.OwnsCorner(pos, isTop) {
				continue
			}
			env := a.CornerEnvironment(pos, isTop)
			sb, err := c.switchBlock(ctx, env, protos)
			if err != nil {
				return err
			}
			if _, err := a.PlaceRoutingBlock(sb, arch.TileSwitch, x, y); err != nil {
				return err
			}
			c.record(envs, sb, cornerTuple(a, pos))
		}
	}
	unconnected, err := a.AutoCompletePorts(isTop)
	if err != nil {
		return err
	}
	for _, pin := range unconnected {
		c.warnf(a.Name(), "routing pin %s has no driver", pin)
	}
	return nil
}

// connectionBlock returns the connection block serving the channel at pos,
// creating it on first use. Blocks are keyed by the neighbors on both sides
// of the channel and the footprint tile each neighbor exposes.
func (c *RoutingCompleter) connectionBlock(ctx *arch.Context, a *arch.Module, dim arch.Dimension, pos arch.Position, protos []*arch.SegmentPrototype) (*arch.Module, error) {
	lo, hi := arch.ChannelTiles(dim, pos)
	sides := [2]arch.Orientation{arch.North, arch.South}
	prefix := "cbx"
	if dim == arch.DimY {
		sides = [2]arch.Orientation{arch.East, arch.West}
		prefix = "cby"
	}
	var (
		targets []arch.FCTarget
		parts   []string
	)
	for i, tile := range [2]arch.Position{lo, hi} {
		blk, root, ok := a.LeafBlock(tile)
		if !ok {
			parts = append(parts, "none")
			continue
		}
		off := tile.Sub(root)
		targets = append(targets, arch.FCTarget{Block: blk, Root: root.Sub(pos), Tile: off, Side: sides[i]})
		parts = append(parts, fmt.Sprintf("%s_x%dy%d%s", blk.Name(), off.X, off.Y, sides[i].Short()))
	}
	name := arch.Sanitize(prefix + "_" + strings.Join(parts, "_"))
	if m := ctx.Module(name); m != nil {
		if !m.IsRoutingBlock() || m.Dimension() != dim {
			return nil, errors.Wrapf(arch.ErrDuplicate, "module %s is not a connection block", name)
		}
		return m, nil
	}
	cb := arch.NewConnectionBlock(name, dim)
	if err := arch.PopulateConnectionSegments(cb, protos, true); err != nil {
		return nil, err
	}
	for _, t := range targets {
		if err := arch.ImplementFC(cb, protos, t); err != nil {
			return nil, err
		}
	}
	if err := ctx.AddModule(cb); err != nil {
		return nil, err
	}
	c.debugf("created connection block %s", name)
	return cb, nil
}

// switchBlock returns the switch block for a corner environment, creating
// it on first use.
func (c *RoutingCompleter) switchBlock(ctx *arch.Context, env arch.SwitchBlockEnvironment, protos []*arch.SegmentPrototype) (*arch.Module, error) {
	name := "sb_" + env.Key()
	if m := ctx.Module(name); m != nil {
		if !m.IsBlock(arch.BlockSwitch) || m.Environment() != env {
			return nil, errors.Wrapf(arch.ErrDuplicate, "module %s is not a switch block for %s", name, env.Key())
		}
		return m, nil
	}
	sb := arch.NewSwitchBlock(name)
	if err := arch.PopulateSwitchSegments(sb, protos, env, true, true); err != nil {
		return nil, err
	}
	if err := arch.ImplementWilton(sb, protos); err != nil {
		return nil, err
	}
	if err := ctx.AddModule(sb); err != nil {
		return nil, err
	}
	c.debugf("created switch block %s", name)
	return sb, nil
}

// channelTuple names the switch blocks at both ends of a channel.
func channelTuple(a *arch.Module, dim arch.Dimension, pos arch.Position, isTop bool) string {
	prev := arch.Position{X: pos.X - 1, Y: pos.Y}
	if dim == arch.DimY {
		prev = arch.Position{X: pos.X, Y: pos.Y - 1}
	}
	var ends []string
	for _, corner := range []arch.Position{prev, pos} {
		env := a.CornerEnvironment(corner, isTop)
		if env.Empty() {
			ends = append(ends, "none")
			continue
		}
		ends = append(ends, "sb_"+env.Key())
	}
	return strings.Join(ends, ",")
}

// cornerTuple names the connection blocks around a corner.
func cornerTuple(a *arch.Module, pos arch.Position) string {
	at := func(p arch.Position, kind arch.TileKind) string {
		if v, ok := a.Locate(p, kind); ok {
			return v.Placement.Model.Name()
		}
		return "none"
	}
	return strings.Join([]string{
		at(pos, arch.TileXChan),
		at(arch.Position{X: pos.X + 1, Y: pos.Y}, arch.TileXChan),
		at(pos, arch.TileYChan),
		at(arch.Position{X: pos.X, Y: pos.Y + 1}, arch.TileYChan),
	}, ",")
}

func (c *RoutingCompleter) record(envs *arch.Table[*arch.Module, []string], m *arch.Module, tuple string) {
	list := envs.Lookup(m)
	for _, t := range list {
		if t == tuple {
			return
		}
	}
	envs.Set(m, append(list, tuple))
	if len(list) == 1 {
		c.warnf(m.Name(), "reused across differing neighbor environments: %s and %s", list[0], tuple)
	}
}

func (c *RoutingCompleter) warnf(subject, format string, args ...any) {
	if c.reporter != nil {
		c.reporter.Warningf(subject, format, args...)
	}
}

func (c *RoutingCompleter) debugf(format string, args ...any) {
	if c.reporter != nil {
		c.reporter.Debugf(format, args...)
	}
}
