package flow_test

import (
	"errors"
	"fmt"

	gomock "github.com/golang/mock/gomock"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"prga/internal/arch"
	"prga/internal/flow"
)

type rules struct {
	deps, conflicts, before, after []string
}

var _ = Describe("Flow", func() {
	var (
		mockCtrl *gomock.Controller
		ctx      *arch.Context
	)

	BeforeEach(func() {
		mockCtrl = gomock.NewController(GinkgoT())
		ctx = arch.NewContext("fabric")
	})

	AfterEach(func() {
		mockCtrl.Finish()
	})

	newPass := func(key string, r rules) *MockPass {
		p := NewMockPass(mockCtrl)
		p.EXPECT().Key().Return(key).AnyTimes()
		p.EXPECT().Dependences().Return(r.deps).AnyTimes()
		p.EXPECT().Conflicts().Return(r.conflicts).AnyTimes()
		p.EXPECT().PassesBeforeSelf().Return(r.before).AnyTimes()
		p.EXPECT().PassesAfterSelf().Return(r.after).AnyTimes()
		return p
	}

	It("should run passes in dependence and hint order", func() {
		vpr := newPass("vpr.id", rules{deps: []string{"completer"}})
		sw := newPass("switch.physical", rules{deps: []string{"completer"}, after: []string{"vpr"}})
		comp := newPass("completer.routing", rules{})

		gomock.InOrder(
			comp.EXPECT().Run(ctx).Return(nil),
			sw.EXPECT().Run(ctx).Return(nil),
			vpr.EXPECT().Run(ctx).Return(nil),
		)

		f := flow.NewFlow(nil, vpr, sw, comp)
		Expect(f.Run(ctx)).To(Succeed())
		Expect(ctx.Applied()).To(Equal([]string{"completer.routing", "switch.physical", "vpr.id"}))
		Expect(f.Pending()).To(BeEmpty())
	})

	It("should keep insertion order among independent passes", func() {
		a := newPass("rtl.verilog", rules{})
		b := newPass("vpr.xml.arch", rules{})
		c := newPass("bitstream.db", rules{before: []string{"rtl"}})

		order, err := flow.NewFlow(nil, c, a, b).Schedule(ctx)
		Expect(err).NotTo(HaveOccurred())
		var keys []string
		for _, p := range order {
			keys = append(keys, p.Key())
		}
		Expect(keys).To(Equal([]string{"rtl.verilog", "bitstream.db", "vpr.xml.arch"}))
	})

	It("should reject prefix-duplicate keys without running anything", func() {
		a := newPass("x.y", rules{})
		b := newPass("x", rules{})

		err := flow.NewFlow(nil, a, b).Run(ctx)
		Expect(err).To(MatchError(flow.ErrDuplicateKey))
		Expect(arch.KindOf(err)).To(Equal(arch.KindDependence))
		Expect(ctx.Applied()).To(BeEmpty())
	})

	It("should reject a pass that was already applied", func() {
		ctx.MarkApplied("completer.routing")
		a := newPass("completer.routing", rules{})

		Expect(flow.NewFlow(nil, a).Run(ctx)).To(MatchError(flow.ErrDuplicateKey))
	})

	It("should accept dependences satisfied by applied passes", func() {
		ctx.MarkApplied("completer.routing")
		a := newPass("switch.physical", rules{deps: []string{"completer"}})
		a.EXPECT().Run(ctx).Return(nil)

		Expect(flow.NewFlow(nil, a).Run(ctx)).To(Succeed())
		Expect(ctx.IsApplied("switch.physical")).To(BeTrue())
	})

	It("should report unmet dependences", func() {
		a := newPass("vpr.id", rules{deps: []string{"completer"}})

		err := flow.NewFlow(nil, a).Run(ctx)
		Expect(err).To(MatchError(flow.ErrDependenceUnmet))
		Expect(err.Error()).To(ContainSubstring("completer"))
	})

	It("should report conflicts with applied and scheduled passes", func() {
		ctx.MarkApplied("config.scanchain")
		a := newPass("config.bitchain", rules{conflicts: []string{"config.scanchain"}})
		Expect(flow.NewFlow(nil, a).Run(ctx)).To(MatchError(flow.ErrConflict))

		other := arch.NewContext("other")
		b := newPass("translation", rules{conflicts: []string{"config"}})
		c := newPass("config.bitchain", rules{})
		Expect(flow.NewFlow(nil, b, c).Run(other)).To(MatchError(flow.ErrConflict))
	})

	It("should report cyclic ordering", func() {
		a := newPass("a", rules{before: []string{"b"}})
		b := newPass("b", rules{before: []string{"c"}})
		c := newPass("c", rules{after: []string{"b"}, before: []string{"a"}})

		err := flow.NewFlow(nil, a, b, c).Run(ctx)
		Expect(err).To(MatchError(flow.ErrCycle))
		Expect(ctx.Applied()).To(BeEmpty())
	})

	It("should stop at a failing pass and leave it unapplied", func() {
		boom := errors.New("boom")
		a := newPass("a", rules{})
		b := newPass("b", rules{deps: []string{"a"}})
		c := newPass("c", rules{deps: []string{"b"}})
		a.EXPECT().Run(ctx).Return(nil)
		b.EXPECT().Run(ctx).Return(boom)

		f := flow.NewFlow(nil, c, b, a)
		err := f.Run(ctx)
		Expect(err).To(MatchError(boom))
		Expect(ctx.Applied()).To(Equal([]string{"a"}))
		Expect(f.Pending()).To(HaveLen(2))
	})

	It("should order long chains regardless of insertion order", func() {
		const n = 8
		var passes []flow.Pass
		for i := n - 1; i >= 0; i-- {
			r := rules{}
			if i > 0 {
				r.deps = []string{fmt.Sprintf("p%d", i-1)}
			}
			if i%3 == 0 && i+2 < n {
				r.after = []string{fmt.Sprintf("p%d", i+2)}
			}
			p := newPass(fmt.Sprintf("p%d", i), r)
			p.EXPECT().Run(ctx).Return(nil)
			passes = append(passes, p)
		}

		Expect(flow.NewFlow(nil, passes...).Run(ctx)).To(Succeed())
		applied := ctx.Applied()
		Expect(applied).To(HaveLen(n))
		for i, k := range applied {
			Expect(k).To(Equal(fmt.Sprintf("p%d", i)))
		}
	})

	DescribeTable("key rules",
		func(rule, key string, want bool) {
			Expect(flow.Matches(rule, key)).To(Equal(want))
		},
		Entry("exact", "vpr.id", "vpr.id", true),
		Entry("dotted prefix", "vpr", "vpr.id", true),
		Entry("partial word", "vp", "vpr.id", false),
		Entry("longer rule", "vpr.id.x", "vpr.id", false),
	)
})
