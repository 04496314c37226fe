package main

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/briandowns/spinner"
	"github.com/spf13/cobra"

	"prga/internal/arch"
	"prga/internal/bitdb"
	"prga/internal/fabric"
	"prga/internal/flow"
	"prga/internal/passes"
	"prga/internal/validate"
	"prga/internal/verilog"
	"prga/internal/vpr"
)

func (c *cli) buildCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "build <fabric.yaml>",
		Args:  cobra.ExactArgs(1),
		Short: "Builds every artifact of a fabric",
		RunE: func(cmd *cobra.Command, args []string) error {
			return c.runBuild(args[0])
		},
	}
}

// newFlow schedules the architecture passes and the emitters, minus the
// ones matched by the skip setting.
func (c *cli) newFlow() *flow.Flow {
	out := c.settings.Output
	f := flow.NewFlow(c.reporter)
	for _, p := range []flow.Pass{
		passes.NewRoutingCompleter(c.reporter),
		passes.NewSwitchInsertion(c.reporter),
		passes.NewBitchainAllocation(c.reporter),
		passes.NewVPRIDAssignment(c.reporter),
		validate.NewPass(c.reporter),
		verilog.NewPass(c.reporter, filepath.Join(out, "rtl")),
		vpr.NewArchPass(c.reporter, filepath.Join(out, "vpr", "arch.xml"), nil),
		vpr.NewRRGPass(c.reporter, filepath.Join(out, "vpr", "rr_graph.xml"), nil),
		bitdb.NewPass(c.reporter, c.dbPath(), c.settings.BatchSize),
	} {
		if c.skipped(p.Key()) {
			c.reporter.Debugf("skipping pass %s", p.Key())
			continue
		}
		f.Add(p)
	}
	return f
}

func (c *cli) skipped(key string) bool {
	for _, rule := range c.settings.Skip {
		if flow.Matches(rule, key) {
			return true
		}
	}
	return false
}

func (c *cli) dbPath() string { return filepath.Join(c.settings.Output, "bitstream.db") }

func (c *cli) runBuild(path string) error {
	ctx, err := fabric.Load(path, c.reporter)
	if err != nil {
		return err
	}
	f := c.newFlow()
	if !c.settings.Verbose {
		s := spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(c.stderr))
		s.Suffix = " building " + ctx.Name()
		s.Start()
		err = f.Run(ctx)
		s.Stop()
	} else {
		err = f.Run(ctx)
	}
	if err != nil {
		return err
	}
	return c.summary(ctx)
}

func (c *cli) summary(ctx *arch.Context) error {
	top := ctx.Top()
	w, h := top.Size()
	fmt.Fprintf(c.stdout, "fabric %s: %dx%d tiles", ctx.Name(), w, h)
	if bits, err := passes.CfgBits(ctx); err == nil {
		fmt.Fprintf(c.stdout, ", %d configuration bits", bits.Lookup(top))
	}
	fmt.Fprintln(c.stdout)
	if !ctx.IsApplied(bitdb.KeyBitstreamDB) {
		return nil
	}
	db, err := os.Open(c.dbPath())
	if err != nil {
		return err
	}
	defer db.Close()
	_, st, err := bitdb.Summarize(db)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.stdout, "%s: %d blocks, %d placements, %d edges\n", c.dbPath(), st.Blocks, st.Placements, st.Edges)
	return nil
}
