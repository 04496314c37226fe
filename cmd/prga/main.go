// Command prga builds FPGA fabrics from YAML descriptions: Verilog RTL,
// VPR architecture files and the bitstream database.
package main

import (
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"github.com/tebeka/atexit"

	"prga/internal/bitdb"
	"prga/internal/diag"
)

const version = "v0.1.0"

func main() {
	if err := newRootCmd(os.Stdout, os.Stderr).Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		atexit.Exit(1)
	}
	atexit.Exit(0)
}

type cli struct {
	v       *viper.Viper
	cfgFile string
	stdout  io.Writer
	stderr  io.Writer

	settings settings
	reporter *diag.Reporter
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{v: viper.New(), stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "prga",
		Short: "FPGA architecture compiler",
		Long: `prga completes the routing of a fabric described in YAML, inserts the
physical switches and configuration circuitry, and writes the fabric RTL,
the VPR architecture and routing-resource graph, and the bitstream database.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return c.load()
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	flags := root.PersistentFlags()
	flags.StringVar(&c.cfgFile, "config", "", "config file (default prga.yaml in . or ~/.config/prga)")
	flags.StringP("output", "o", "build", "output directory")
	flags.Int("batch-size", bitdb.DefaultBatchSize, "bitstream database write batch in bytes")
	flags.String("diag-format", "text", "diagnostic output format (text|json)")
	flags.BoolP("verbose", "v", false, "print debug output")
	flags.StringSlice("skip", nil, "pass keys to leave out")
	for key, name := range map[string]string{
		keyOutput:     "output",
		keyBatchSize:  "batch-size",
		keyDiagFormat: "diag-format",
		keyVerbose:    "verbose",
		keySkip:       "skip",
	} {
		if err := c.v.BindPFlag(key, flags.Lookup(name)); err != nil {
			panic(err)
		}
	}

	root.AddCommand(c.buildCmd(), c.passesCmd(), c.versionCmd())
	return root
}

func (c *cli) versionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Args:  cobra.NoArgs,
		Short: "Prints the version of this tool",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(c.stdout, "prga %s\n", version)
		},
	}
}
