package main

import (
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/sells-group/healthmetrics-cli/internal/config"
	"github.com/sells-group/healthmetrics-cli/internal/provider"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "Show provider priority order and configuration status",
	RunE: func(cmd *cobra.Command, args []string) error {
		formatProviders(cmd.OutOrStdout(), config.NewResolver(cfg), provider.NewDefaultRegistry())
		return nil
	},
}

func init() {
	rootCmd.AddCommand(providersCmd)
}

// formatProviders writes one row per provider in priority order. Credentials
// are never printed.
func formatProviders(out io.Writer, resolver *config.Resolver, registry *provider.Registry) {
	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	_, _ = fmt.Fprintln(w, "#\tPROVIDER\tPRIORITY\tMODEL\tTIMEOUT\tRETRIES\tSTATUS")
	_, _ = fmt.Fprintln(w, "-\t--------\t--------\t-----\t-------\t-------\t------")

	for i, name := range resolver.PriorityOrder() {
		status := "ok"
		if _, ok := registry.Get(name); !ok {
			status = "no implementation"
		}

		pc, err := resolver.Resolve(name)
		if err != nil {
			_, _ = fmt.Fprintf(w, "%d\t%s\t-\t-\t-\t-\t%s\n", i+1, name, err.Error())
			continue
		}
		_, _ = fmt.Fprintf(w, "%d\t%s\t%d\t%s\t%s\t%d\t%s\n",
			i+1, name, pc.Priority, pc.Model, pc.Timeout, pc.MaxRetries, status)
	}
	_ = w.Flush()
}
