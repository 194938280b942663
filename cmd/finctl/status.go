package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"finance-datalayer/internal/datalayer"
)

func init() {
	rootCmd.AddCommand(statusCmd)
}

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show connectivity, sync and cache status",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDataLayer(func(ctx context.Context, dl *datalayer.DataLayer) error {
			s := dl.SyncStatus()
			out := cmd.OutOrStdout()

			fmt.Fprintln(out, "Sync:")
			fmt.Fprintf(out, "  Online:     %t\n", s.IsOnline)
			fmt.Fprintf(out, "  Pending:    %d\n", s.PendingOperations)
			if s.LastSync != nil {
				fmt.Fprintf(out, "  Last sync:  %s\n", s.LastSync.Format(time.RFC3339))
			} else {
				fmt.Fprintln(out, "  Last sync:  (never)")
			}
			for _, e := range s.Errors {
				fmt.Fprintf(out, "  Error:      %s\n", e)
			}

			c := dl.CacheStats()
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Cache:")
			fmt.Fprintf(out, "  Entries:    %d\n", c.TotalEntries)
			fmt.Fprintf(out, "  Hit rate:   %.2f\n", c.HitRate)

			cfg := dl.Config()
			fmt.Fprintln(out)
			fmt.Fprintln(out, "Backend:")
			fmt.Fprintf(out, "  Primary:    %s\n", cfg.BaseURL)
			fmt.Fprintf(out, "  Secondary:  %s\n", valueOrDefault(cfg.SecondaryURL, "(none)"))
			return nil
		})
	},
}

func valueOrDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}
