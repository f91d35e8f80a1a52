package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"logqueue/internal/store"
)

func newSchemaCommand(a *app) *cobra.Command {
	var apply bool

	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print or apply the log_entries DDL",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			d, err := store.ParseDialect(a.cfg.Database.Driver)
			if err != nil {
				return err
			}
			if !apply {
				fmt.Fprint(cmd.OutOrStdout(), store.Schema(d))
				return nil
			}
			st, err := newStore(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer st.Close()
			if err := st.EnsureSchema(cmd.Context()); err != nil {
				return err
			}
			a.logger.Info("schema applied", "driver", d)
			return nil
		},
	}
	cmd.Flags().BoolVar(&apply, "apply", false, "create missing tables instead of printing the DDL")
	return cmd
}

func newRecentCommand(a *app) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "recent",
		Short: "Show the most recently persisted log entries",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			st, err := newStore(cmd.Context(), a.cfg, a.logger)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.Recent(cmd.Context(), limit)
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "TIMESTAMP\tLEVEL\tEVENT ID\tMESSAGE")
			for _, e := range entries {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", e.Timestamp.UTC().Format(time.RFC3339), e.Level, e.EventID, e.Message)
			}
			return w.Flush()
		},
	}
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "number of entries to show")
	return cmd
}
