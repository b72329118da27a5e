package main

import (
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/hupe1980/concierge/doorman"
)

func newAgentsCommand(root *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "agents",
		Short: "List the doorman agents and their tools",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(root)
			if err != nil {
				return err
			}
			reg, err := doorman.NewRegistry(func(o *doorman.Options) {
				o.Building = cfg.Building.Name
			})
			if err != nil {
				return err
			}
			return listAgents(cmd.OutOrStdout(), reg.IDs(), func(id string) []string {
				def, err := reg.Lookup(id)
				if err != nil {
					return nil
				}
				row := []string{id, def.DisplayName(), def.Persona.Voice}
				names := make([]string, 0, len(def.Tools))
				for _, t := range def.Tools {
					names = append(names, t.Name())
				}
				return append(row, strings.Join(names, ", "))
			})
		},
	}
}

func listAgents(out io.Writer, ids []string, row func(id string) []string) error {
	tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "ID\tPERSONA\tVOICE\tTOOLS")
	for _, id := range ids {
		if cols := row(id); cols != nil {
			fmt.Fprintln(tw, strings.Join(cols, "\t"))
		}
	}
	return tw.Flush()
}
