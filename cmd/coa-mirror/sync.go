// ABOUTME: sync command: runs one sync pass against the configured store and exits

package main

import (
	"errors"
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coa-mirror/internal/server"
	"github.com/2389/coa-mirror/internal/syncer"
)

func newSyncCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "sync",
		Short: "Run one sync pass without starting the server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := opts.loadForRemote()
			if err != nil {
				return err
			}
			logger := setupLogger(cfg.Logging)

			st, err := server.OpenStore(cmd.Context(), cfg.Database)
			if err != nil {
				return err
			}
			defer st.Close()

			engine, err := server.NewEngine(cfg, st, logger)
			if err != nil {
				return err
			}

			result, err := engine.Run(cmd.Context())
			if errors.Is(err, syncer.ErrBusy) {
				return fmt.Errorf("sync skipped: %w (a running server or another sync holds the lease)", err)
			}
			if err != nil {
				return fmt.Errorf("sync failed: %w", err)
			}

			out := cmd.OutOrStdout()
			color.New(color.FgGreen).Fprint(out, "✓ ")
			fmt.Fprintf(out, "%s (received %d)\n", result.Message(), result.Total)
			return nil
		},
	}
}
