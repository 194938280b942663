package main

import (
	"context"
	"errors"
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"finance-datalayer/internal/datalayer"
	syncmgr "finance-datalayer/internal/sync"
)

var pendingRemove string

func init() {
	pendingCmd.Flags().StringVar(&pendingRemove, "remove", "", "Drop the pending operation with this id")
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(syncCmd)
}

var pendingCmd = &cobra.Command{
	Use:   "pending",
	Short: "List (or drop) operations waiting to be replayed",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDataLayer(func(ctx context.Context, dl *datalayer.DataLayer) error {
			out := cmd.OutOrStdout()
			if pendingRemove != "" {
				removed, err := dl.RemovePendingOperation(ctx, pendingRemove)
				if err != nil {
					return err
				}
				if !removed {
					return fmt.Errorf("no pending operation %q", pendingRemove)
				}
				fmt.Fprintf(out, "Removed %s\n", pendingRemove)
				return nil
			}

			ops := dl.PendingOperations()
			if len(ops) == 0 {
				fmt.Fprintln(out, "No pending operations.")
				return nil
			}
			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tOPERATION\tRESOURCE\tTARGET\tRETRIES\tQUEUED")
			for _, op := range ops {
				fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d/%d\t%s\n",
					op.ID, op.Operation, op.Resource, valueOrDefault(op.ResourceID(), "-"),
					op.RetryCount, op.MaxRetries, op.Timestamp.Format(time.RFC3339))
			}
			return tw.Flush()
		})
	},
}

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Replay pending operations against the backend",
	RunE: func(cmd *cobra.Command, args []string) error {
		return withDataLayer(func(ctx context.Context, dl *datalayer.DataLayer) error {
			before := len(dl.PendingOperations())
			err := dl.ForceSyncAll(ctx)
			if errors.Is(err, syncmgr.ErrOffline) {
				return fmt.Errorf("backend unreachable, %d operation(s) still pending", before)
			}
			if err != nil {
				return err
			}

			s := dl.SyncStatus()
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Synced: %d operation(s) processed, %d pending\n", before-s.PendingOperations, s.PendingOperations)
			for _, e := range s.Errors {
				fmt.Fprintf(out, "  %s\n", e)
			}
			return nil
		})
	},
}
