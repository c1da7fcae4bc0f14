// ABOUTME: Root cobra command and shared helpers for the coa-mirror CLI
// ABOUTME: Resolves the config path and loads configuration for subcommands

package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/2389/coa-mirror/internal/config"
)

type rootOptions struct {
	configPath string
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:     "coa-mirror",
		Short:   "Mirror a remote chart of accounts into a local store",
		Version: version,
		CompletionOptions: cobra.CompletionOptions{
			DisableDefaultCmd: true,
		},
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	rootCmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "",
		"config file (default $COA_MIRROR_CONFIG or $XDG_CONFIG_HOME/coa-mirror/config.yaml)")

	rootCmd.AddCommand(
		newServeCommand(opts),
		newSyncCommand(opts),
		newAccountsCommand(opts),
		newLogsCommand(opts),
		newHealthCommand(opts),
		newInitCommand(opts),
		newTokenCommand(opts),
	)

	return rootCmd
}

// path returns the --config value or the default location.
func (o *rootOptions) path() string {
	if o.configPath != "" {
		return o.configPath
	}
	return config.Path()
}

func (o *rootOptions) load() (*config.Config, error) {
	cfg, err := config.Load(o.path())
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}

// loadForRemote is load plus the remote section checks, for commands that
// call the finance API.
func (o *rootOptions) loadForRemote() (*config.Config, error) {
	cfg, err := o.load()
	if err != nil {
		return nil, err
	}
	if err := cfg.ValidateRemote(); err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	return cfg, nil
}
