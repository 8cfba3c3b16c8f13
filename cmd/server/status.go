package main

import (
	"fmt"
	"sort"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/legacore/legacore/control-plane/internal/credentials"
	"github.com/legacore/legacore/control-plane/pkg/models"
)

func newStatusCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show AI provider credential status",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := opts.validateOutput(); err != nil {
				return err
			}
			v := credentials.Validate(opts.cfg.Credentials)
			if opts.output != "table" {
				return writeStructured(cmd.OutOrStdout(), opts.output, v)
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
			fmt.Fprintln(w, "PROVIDER\tENABLED\tSTATUS\tKEY SOURCE\tMODEL")
			for _, name := range models.ProviderNames {
				pc := v.Provider(name)
				fmt.Fprintf(w, "%s\t%t\t%s\t%s\t%s\n", pc.Name, pc.Enabled, pc.Status, pc.KeySource, dash(pc.Model))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			_, current := credentials.CurrentModel(v)
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "\nCurrent model: %s\n", current)
			for _, msg := range sorted(v.Warnings) {
				fmt.Fprintf(out, "warning: %s\n", msg)
			}
			for _, msg := range sorted(v.Errors) {
				fmt.Fprintf(out, "error: %s\n", msg)
			}
			return nil
		},
	}
}

func dash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func sorted(in []string) []string {
	out := append([]string(nil), in...)
	sort.Strings(out)
	return out
}
