// Package flow schedules and runs passes over an architecture context.
package flow

import (
	"sort"
	"strings"

	"github.com/pkg/errors"

	"prga/internal/arch"
	"prga/internal/diag"
)

// Pass is one step of the architecture flow. Keys are dotted names; a key
// rule such as "completer" matches "completer" and "completer.routing".
type Pass interface {
	// Key uniquely identifies the pass.
	Key() string
	// Dependences lists rules that must match an applied or scheduled pass.
	Dependences() []string
	// Conflicts lists rules that must match no applied or scheduled pass.
	Conflicts() []string
	// PassesBeforeSelf lists rules for passes that run first if scheduled.
	PassesBeforeSelf() []string
	// PassesAfterSelf lists rules for passes that run later if scheduled.
	PassesAfterSelf() []string
	// Run applies the pass.
	Run(ctx *arch.Context) error
}

// Base provides empty scheduling rules for embedding.
type Base struct{}

func (Base) Dependences() []string      { return nil }
func (Base) Conflicts() []string        { return nil }
func (Base) PassesBeforeSelf() []string { return nil }
func (Base) PassesAfterSelf() []string  { return nil }

var (
	ErrDependenceUnmet = arch.NewKindError(arch.KindDependence, "unmet dependence")
	ErrConflict        = arch.NewKindError(arch.KindDependence, "conflicting passes")
	ErrDuplicateKey    = arch.NewKindError(arch.KindDependence, "duplicate pass key")
	ErrCycle           = arch.NewKindError(arch.KindDependence, "cyclic pass ordering")
)

// Matches reports whether key is selected by the dotted rule.
func Matches(rule, key string) bool {
	return key == rule || strings.HasPrefix(key, rule+".")
}

// Flow holds the passes pending execution.
type Flow struct {
	pending  []Pass
	reporter *diag.Reporter
}

// NewFlow creates a flow. reporter is optional.
func NewFlow(reporter *diag.Reporter, passes ...Pass) *Flow {
	return &Flow{pending: append([]Pass(nil), passes...), reporter: reporter}
}

// Add schedules more passes.
func (f *Flow) Add(passes ...Pass) {
	f.pending = append(f.pending, passes...)
}

// Pending returns the scheduled passes in insertion order.
func (f *Flow) Pending() []Pass { return append([]Pass(nil), f.pending...) }

// Run validates and orders the pending passes, then runs them on ctx. Nothing
// runs when validation or ordering fails. A failing pass stops the flow and
// is not marked applied; the passes after it stay pending.
func (f *Flow) Run(ctx *arch.Context) error {
	order, err := f.Schedule(ctx)
	if err != nil {
		return err
	}
	for i, p := range order {
		f.debugf("running pass %s", p.Key())
		if err := p.Run(ctx); err != nil {
			f.pending = order[i:]
			return errors.Wrapf(err, "pass %s", p.Key())
		}
		ctx.MarkApplied(p.Key())
	}
	f.pending = nil
	return nil
}

// Schedule validates the pending passes against ctx and returns them in
// execution order without running them.
func (f *Flow) Schedule(ctx *arch.Context) ([]Pass, error) {
	if err := f.validate(ctx); err != nil {
		return nil, err
	}
	return f.sort()
}

func (f *Flow) validate(ctx *arch.Context) error {
	applied := ctx.Applied()
	var keys []string
	for i, p := range f.pending {
		key := p.Key()
		if key == "" {
			return errors.Wrapf(ErrDuplicateKey, "pass %d has an empty key", i)
		}
		for _, k := range applied {
			if k == key {
				return errors.Wrapf(ErrDuplicateKey, "pass %s already applied", key)
			}
		}
		for _, k := range keys {
			if Matches(k, key) || Matches(key, k) {
				return errors.Wrapf(ErrDuplicateKey, "passes %s and %s", k, key)
			}
		}
		keys = append(keys, key)
	}
	all := append(applied, keys...)
	for _, p := range f.pending {
		for _, rule := range p.Conflicts() {
			for _, k := range all {
				if k != p.Key() && Matches(rule, k) {
					return errors.Wrapf(ErrConflict, "pass %s conflicts with %s", p.Key(), k)
				}
			}
		}
		for _, rule := range p.Dependences() {
			if !anyMatch(rule, all) {
				return errors.Wrapf(ErrDependenceUnmet, "pass %s requires %s", p.Key(), rule)
			}
		}
	}
	return nil
}

func anyMatch(rule string, keys []string) bool {
	for _, k := range keys {
		if Matches(rule, k) {
			return true
		}
	}
	return false
}

// sort orders the pending passes topologically, preferring insertion order
// among passes that are ready at the same time.
func (f *Flow) sort() ([]Pass, error) {
	n := len(f.pending)
	succ := make([][]int, n)
	indeg := make([]int, n)
	edge := func(a, b int) {
		for _, s := range succ[a] {
			if s == b {
				return
			}
		}
		succ[a] = append(succ[a], b)
		indeg[b]++
	}
	for b, pb := range f.pending {
		before := append(append([]string(nil), pb.Dependences()...), pb.PassesBeforeSelf()...)
		for a, pa := range f.pending {
			if a == b {
				continue
			}
			if anyRule(before, pa.Key()) {
				edge(a, b)
			}
			if anyRule(pb.PassesAfterSelf(), pa.Key()) {
				edge(b, a)
			}
		}
	}
	var ready []int
	for i := 0; i < n; i++ {
		if indeg[i] == 0 {
			ready = append(ready, i)
		}
	}
	order := make([]Pass, 0, n)
	for len(ready) > 0 {
		sort.Ints(ready)
		i := ready[0]
		ready = ready[1:]
		order = append(order, f.pending[i])
		for _, s := range succ[i] {
			indeg[s]--
			if indeg[s] == 0 {
				ready = append(ready, s)
			}
		}
	}
	if len(order) != n {
		var stuck []string
		for i := 0; i < n; i++ {
			if indeg[i] > 0 {
				stuck = append(stuck, f.pending[i].Key())
			}
		}
		return nil, errors.Wrapf(ErrCycle, "among %s", strings.Join(stuck, ", "))
	}
	return order, nil
}

func anyRule(rules []string, key string) bool {
	for _, r := range rules {
		if Matches(r, key) {
			return true
		}
	}
	return false
}

func (f *Flow) debugf(format string, args ...any) {
	if f.reporter != nil {
		f.reporter.Debugf(format, args...)
	}
}
