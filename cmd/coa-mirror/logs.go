// ABOUTME: logs command: prints recent sync log entries from the local store

package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coa-mirror/internal/server"
	"github.com/2389/coa-mirror/internal/store"
)

func newLogsCommand(opts *rootOptions) *cobra.Command {
	var limit int

	cmd := &cobra.Command{
		Use:   "logs",
		Short: "Show recent sync attempts, newest first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.load()
			if err != nil {
				return err
			}

			st, err := server.OpenStore(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			entries, err := st.RecentSyncLogs(cmd.Context(), limit)
			if err != nil {
				return fmt.Errorf("listing sync logs: %w", err)
			}

			out := cmd.OutOrStdout()
			if len(entries) == 0 {
				fmt.Fprintln(out, "No sync attempts recorded yet.")
				return nil
			}

			tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "TIME\tSTATUS\tRECORDS\tMESSAGE")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%s\t%d\t%s\n",
					e.CreatedAt.Local().Format(time.DateTime),
					statusString(e.Status),
					e.RecordCount,
					e.Message,
				)
			}
			return tw.Flush()
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", store.DefaultLogLimit, "number of entries to show")
	return cmd
}

func statusString(s store.SyncStatus) string {
	if s == store.SyncStatusSuccess {
		return color.GreenString(string(s))
	}
	return color.RedString(string(s))
}
