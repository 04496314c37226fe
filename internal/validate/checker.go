// Package validate checks that a fabric is consistent before it is emitted.
package validate

import (
	"fmt"

	"github.com/pkg/errors"

	"prga/internal/arch"
	"prga/internal/diag"
	"prga/internal/flow"
)

// KeyChecker is the pass key of the fabric checker.
const KeyChecker = "check.fabric"

// ErrInvalidFabric is returned when the checker reported at least one error.
var ErrInvalidFabric = arch.NewKindError(arch.KindInvariant, "invalid fabric")

// CheckFabric validates the physical view of every module reachable from the
// top-level array and the bindings of all globals. Each problem is reported
// through reporter; the returned error summarizes them.
func CheckFabric(ctx *arch.Context, reporter *diag.Reporter) error {
	if ctx == nil || ctx.Top() == nil {
		return errors.Wrap(arch.ErrInvalidArg, "no top-level array to validate")
	}
	if reporter == nil {
		return errors.Wrap(arch.ErrInvalidArg, "no reporter provided for validation")
	}
	c := &checker{reporter: reporter}
	c.run(ctx)
	if c.errCount > 0 {
		return errors.Wrapf(ErrInvalidFabric, "validation failed with %d issue(s)", c.errCount)
	}
	return nil
}

type checker struct {
	reporter *diag.Reporter
	errCount int
}

func (c *checker) run(ctx *arch.Context) {
	for _, m := range reachable(ctx.Top()) {
		if err := arch.CheckPhysicalAcyclic(m); err != nil {
			c.error(m.Name(), "%v", err)
		}
		if m.Kind() == arch.ModSlice || m.Kind() == arch.ModBlock {
			c.checkRealized(m)
		}
	}
	c.checkGlobals(ctx)
}

// checkRealized reports logical connections that have no physical driver.
func (c *checker) checkRealized(m *arch.Module) {
	for _, sink := range arch.LogicalSinks(m) {
		if len(arch.LogicalSources(sink)) == 0 {
			continue
		}
		phys := sink
		if cp, ok := arch.PhysicalCounterpart(sink); ok {
			phys = cp
		}
		if !phys.IsPhysicalSink() {
			continue
		}
		if arch.PhysicalSource(phys) == arch.Open {
			c.error(m.Name(), "logical connection to %s is not realized physically", sink)
		}
	}
}

func (c *checker) checkGlobals(ctx *arch.Context) {
	top := ctx.Top()
	for _, g := range ctx.Globals() {
		if g.Binding == nil {
			if top.Port(g.Name) != nil {
				c.reporter.Warningf(g.Name, "global %s is used but never bound to an IO block", g.Name)
			}
			continue
		}
		blk, _, ok := top.LeafBlock(g.Binding.Position)
		switch {
		case !ok || !blk.IsBlock(arch.BlockIO):
			c.error(g.Name, "global %s is bound to %s, which holds no IO block", g.Name, g.Binding.Position)
		case g.Binding.Subblock < 0 || g.Binding.Subblock >= blk.Capacity():
			c.error(g.Name, "global %s is bound to sub-block %d of %s, which has %d", g.Name, g.Binding.Subblock, blk.Name(), blk.Capacity())
		}
	}
}

func (c *checker) error(subject, format string, args ...any) {
	c.errCount++
	if c.reporter != nil {
		c.reporter.Error(subject, fmt.Sprintf(format, args...))
	}
}

func reachable(top *arch.Module) []*arch.Module {
	var out []*arch.Module
	seen := map[*arch.Module]bool{}
	var visit func(m *arch.Module)
	visit = func(m *arch.Module) {
		if seen[m] {
			return
		}
		seen[m] = true
		out = append(out, m)
		for _, inst := range m.Instances() {
			visit(inst.Model())
		}
	}
	visit(top)
	return out
}

// Pass runs CheckFabric as part of a flow.
type Pass struct {
	flow.Base
	reporter *diag.Reporter
}

func NewPass(reporter *diag.Reporter) *Pass { return &Pass{reporter: reporter} }

func (p *Pass) Key() string { return KeyChecker }

func (p *Pass) Dependences() []string { return []string{"switch"} }

func (p *Pass) PassesBeforeSelf() []string { return []string{"config"} }

func (p *Pass) Run(ctx *arch.Context) error { return CheckFabric(ctx, p.reporter) }
