package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/legacore/legacore/control-plane/internal/catalog"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

func newAgentsCommand(opts *rootOptions) *cobra.Command {
	var category string

	cmd := &cobra.Command{
		Use:     "agents",
		Aliases: []string{"ls"},
		Short:   "List the agent catalog",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validateOutput(); err != nil {
				return err
			}
			cat, err := catalog.Load(opts.cfg.AgentsDir)
			if err != nil {
				return err
			}

			agents := cat.List()
			if category != "" {
				agents = cat.ByCategory(category)
			}
			if opts.output != "table" {
				if agents == nil {
					agents = []*models.AgentConfig{}
				}
				return writeStructured(cmd.OutOrStdout(), opts.output, agents)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tNAME\tCATEGORY\tTOOLS\tACTIVE")
			for _, a := range agents {
				fmt.Fprintf(w, "%s\t%s\t%s\t%d\t%t\n", a.ID, a.Name, a.Category, len(a.Tools), a.Active)
			}
			return w.Flush()
		},
	}
	cmd.Flags().StringVarP(&category, "category", "c", "", "Only list active agents in this category")
	return cmd
}
