package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"finance-datalayer/internal/datalayer"
)

var (
	getParams  []string
	getFresh   bool
	createData string
	updateData string
)

func init() {
	getCmd.Flags().StringSliceVar(&getParams, "param", nil, "Query parameter as key=value (repeatable)")
	getCmd.Flags().BoolVar(&getFresh, "fresh", false, "Bypass the cache")
	createCmd.Flags().StringVar(&createData, "data", "", "Resource as a JSON object")
	updateCmd.Flags().StringVar(&updateData, "data", "", "Fields to change as a JSON object")

	rootCmd.AddCommand(getCmd, createCmd, updateCmd, deleteCmd)
}

var getCmd = &cobra.Command{
	Use:   "get <resource> [id]",
	Short: "Read a collection or a single resource",
	Args:  cobra.RangeArgs(1, 2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		var id string
		if len(args) == 2 {
			id = args[1]
		}
		params, err := parseParams(getParams)
		if err != nil {
			return err
		}

		return withDataLayer(func(ctx context.Context, dl *datalayer.DataLayer) error {
			var opts []datalayer.ReadOption
			if getFresh {
				opts = append(opts, datalayer.WithBypassCache())
			}
			data, err := dl.Read(ctx, kind, id, params, opts...)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), data)
		})
	},
}

var createCmd = &cobra.Command{
	Use:   "create <resource>",
	Short: "Create a resource (queued when the backend is unreachable)",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		data, err := parseData(createData)
		if err != nil {
			return err
		}

		return withDataLayer(func(ctx context.Context, dl *datalayer.DataLayer) error {
			created, err := dl.Create(ctx, kind, data)
			if err != nil {
				return err
			}
			if created.Offline() {
				fmt.Fprintf(cmd.ErrOrStderr(), "Backend unreachable, created locally as %s\n", created.ID())
			}
			return printJSON(cmd.OutOrStdout(), created)
		})
	},
}

var updateCmd = &cobra.Command{
	Use:   "update <resource> <id>",
	Short: "Update a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}
		data, err := parseData(updateData)
		if err != nil {
			return err
		}

		return withDataLayer(func(ctx context.Context, dl *datalayer.DataLayer) error {
			updated, err := dl.Update(ctx, kind, args[1], data)
			if err != nil {
				return err
			}
			return printJSON(cmd.OutOrStdout(), updated)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <resource> <id>",
	Short: "Delete a resource",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind, err := parseKind(args[0])
		if err != nil {
			return err
		}

		return withDataLayer(func(ctx context.Context, dl *datalayer.DataLayer) error {
			if err := dl.Delete(ctx, kind, args[1]); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s/%s\n", kind, args[1])
			return nil
		})
	},
}
