package main

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"prga/internal/arch"
)

func (c *cli) passesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "passes",
		Args:  cobra.NoArgs,
		Short: "Prints the passes of a build in execution order",
		RunE: func(cmd *cobra.Command, args []string) error {
			order, err := c.newFlow().Schedule(arch.NewContext("passes"))
			if err != nil {
				return err
			}
			for _, p := range order {
				if deps := p.Dependences(); len(deps) > 0 {
					fmt.Fprintf(c.stdout, "%s\trequires %s\n", p.Key(), strings.Join(deps, ", "))
				} else {
					fmt.Fprintln(c.stdout, p.Key())
				}
			}
			return nil
		},
	}
}
