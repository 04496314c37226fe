package passes

import (
	"fmt"

	"github.com/pkg/errors"

	"prga/internal/arch"
	"prga/internal/diag"
	"prga/internal/flow"
)

// SwitchInsertion realizes the logical connections of every module in the
// physical view. A sink with one logical source is hard-wired; a sink with
// several is driven by a shared cmuxN whose input k is the k-th logical
// source.
type SwitchInsertion struct {
	flow.Base
	reporter *diag.Reporter
}

func NewSwitchInsertion(reporter *diag.Reporter) *SwitchInsertion {
	return &SwitchInsertion{reporter: reporter}
}

func (s *SwitchInsertion) Key() string { return KeySwitches }

func (s *SwitchInsertion) Dependences() []string { return []string{"completer"} }

func (s *SwitchInsertion) Run(ctx *arch.Context) error {
	muxes := 0
	for _, m := range contextModules(ctx) {
		if m.View() != arch.ViewBoth {
			continue
		}
		switch m.Kind() {
		case arch.ModSlice, arch.ModBlock:
		default:
			continue
		}
		n, err := InsertSwitches(ctx, m)
		if err != nil {
			return errors.Wrapf(err, "module %s", m.Name())
		}
		muxes += n
	}
	if s.reporter != nil {
		s.reporter.Debugf("inserted %d switches", muxes)
	}
	return nil
}

// InsertSwitches realizes the logical connections of m and returns the
// number of switch instances added.
func InsertSwitches(ctx *arch.Context, m *arch.Module) (int, error) {
	added := 0
	for _, sink := range arch.LogicalSinks(m) {
		srcs := arch.LogicalSources(sink)
		if len(srcs) == 0 {
			continue
		}
		if cp, ok := arch.PhysicalCounterpart(sink); ok {
			sink = cp
		}
		if !sink.IsPhysicalSink() {
			continue
		}
		for i, src := range srcs {
			if cp, ok := arch.PhysicalCounterpart(src); ok {
				srcs[i] = cp
			}
		}
		if len(srcs) == 1 {
			if err := arch.SetPhysicalSource(sink, srcs[0]); err != nil {
				return added, err
			}
			continue
		}
		mux, err := ctx.Mux(len(srcs))
		if err != nil {
			return added, err
		}
		inst, err := m.AddInstance(mux, switchName(sink))
		if err != nil {
			return added, err
		}
		in := inst.Pin("i")
		for k, src := range srcs {
			if err := arch.SetPhysicalSource(in.Bit(k), src); err != nil {
				return added, err
			}
		}
		if err := arch.SetPhysicalSource(sink, inst.Pin("o").Bit(0)); err != nil {
			return added, err
		}
		added++
	}
	return added, nil
}

func switchName(sink arch.Bit) string {
	name := "sw_" + sink.Port().Name()
	if inst := sink.Instance(); inst != nil {
		name = "sw_" + inst.Name() + "_" + sink.Port().Name()
	}
	if sink.Port().Width() > 1 {
		name = fmt.Sprintf("%s_%d", name, sink.Index())
	}
	return arch.Sanitize(name)
}

// contextModules lists the registered modules followed by any module
// reachable from the top array that was never registered.
func contextModules(ctx *arch.Context) []*arch.Module {
	out := ctx.Modules()
	if ctx.Top() == nil {
		return out
	}
	seen := map[*arch.Module]bool{}
	for _, m := range out {
		seen[m] = true
	}
	for _, m := range modulesBottomUp(ctx.Top()) {
		if !seen[m] {
			out = append(out, m)
		}
	}
	return out
}
