// ABOUTME: accounts command: prints the account hierarchy from the local store
// ABOUTME: Renders the report markdown with glamour, or raw markdown/JSON on request

package main

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/2389/coa-mirror/internal/hierarchy"
	"github.com/2389/coa-mirror/internal/report"
	"github.com/2389/coa-mirror/internal/server"
)

func newAccountsCommand(opts *rootOptions) *cobra.Command {
	var (
		format string
		width  int
		style  string
	)

	cmd := &cobra.Command{
		Use:   "accounts",
		Short: "Show the account hierarchy with rolled-up debit totals",
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

			records, err := st.ListAccounts(cmd.Context())
			if err != nil {
				return fmt.Errorf("listing accounts: %w", err)
			}

			labels := hierarchy.LabelsFor(cfg.Report.Locale)
			roots := hierarchy.Build(records, labels)
			out := cmd.OutOrStdout()

			switch format {
			case "json":
				enc := json.NewEncoder(out)
				enc.SetIndent("", "  ")
				return enc.Encode(roots)
			case "markdown", "terminal":
			default:
				return fmt.Errorf("unknown format %q (use terminal, markdown or json)", format)
			}

			md := report.Markdown(roots, len(records), report.Options{
				Title:       report.TitleFor(cfg.Report.Locale),
				Currency:    cfg.Report.Currency,
				Labels:      labels,
				GeneratedAt: time.Now(),
			})
			if format == "markdown" {
				_, err = fmt.Fprint(out, md)
				return err
			}

			rendered, err := report.Terminal(md, width, style)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(out, rendered)
			return err
		},
	}

	cmd.Flags().StringVarP(&format, "format", "f", "terminal", "output format: terminal, markdown or json")
	cmd.Flags().IntVar(&width, "width", 100, "word wrap width for terminal output")
	cmd.Flags().StringVar(&style, "style", "", "glamour style (dark, light, notty); empty detects from the terminal")

	return cmd
}
