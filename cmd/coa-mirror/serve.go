// ABOUTME: serve command: runs the HTTP API and the background sync schedule

package main

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/2389/coa-mirror/internal/server"
)

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server and the sync schedule",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runServe(cmd, opts)
		},
	}
}

func runServe(cmd *cobra.Command, opts *rootOptions) error {
	ctx := cmd.Context()
	out := cmd.OutOrStdout()

	cyan := color.New(color.FgCyan)
	cyan.Fprint(out, banner)

	gray := color.New(color.FgHiBlack)
	gray.Fprintf(out, "    version: %s\n\n", version)

	cfg, err := opts.loadForRemote()
	if err != nil {
		return err
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Config:    %s\n", opts.path())
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Database:  %s\n", describeDatabase(cfg.Database.Driver, cfg.Database.Path))
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Remote:    %s\n", cfg.Remote.DataURL)
	green.Fprint(out, "    ▶ ")
	fmt.Fprintf(out, "Schedule:  every %s", cfg.Sync.Interval)
	if cfg.Sync.RunOnStart {
		gray.Fprint(out, " (and on start)")
	}
	fmt.Fprintln(out)

	if cfg.Tailscale.Enabled {
		green.Fprint(out, "    ▶ ")
		fmt.Fprint(out, "Tailscale: ")
		cyan.Fprint(out, cfg.Tailscale.Hostname)
		if cfg.Tailscale.Ephemeral {
			gray.Fprint(out, " (ephemeral)")
		}
		fmt.Fprintln(out)
	} else {
		green.Fprint(out, "    ▶ ")
		fmt.Fprintf(out, "HTTP:      %s\n", cfg.Server.HTTPAddr)
	}
	fmt.Fprintln(out)

	srv, err := server.New(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("creating server: %w", err)
	}

	return srv.Run(ctx)
}

func describeDatabase(driver, path string) string {
	if driver == "postgres" {
		return "postgres"
	}
	return fmt.Sprintf("%s (%s)", path, driver)
}
