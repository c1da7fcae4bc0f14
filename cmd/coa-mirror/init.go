// ABOUTME: init command: interactively writes a new config file
// ABOUTME: Generates a random JWT secret and encodes YAML or TOML by file extension

package main

import (
	"bufio"
	"bytes"
	"crypto/rand"
	"encoding/base64"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/2389/coa-mirror/internal/config"
)

const passwordEnvRef = "${COA_MIRROR_REMOTE_PASSWORD}"

func newInitCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create a new config file interactively",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runInit(cmd.InOrStdin(), cmd.OutOrStdout(), opts.path())
		},
	}
}

func runInit(in io.Reader, out io.Writer, defaultPath string) error {
	reader := bufio.NewReader(in)

	fmt.Fprintln(out, "coa-mirror configuration setup")
	fmt.Fprintln(out, "==============================")
	fmt.Fprintln(out)

	outputFile := prompt(reader, out, "Config file path (.yaml or .toml)", defaultPath)

	if _, err := os.Stat(outputFile); err == nil {
		if !yes(prompt(reader, out, "File exists. Overwrite?", "no")) {
			fmt.Fprintln(out, "Aborted.")
			return nil
		}
	}

	cfg := config.Default()

	fmt.Fprintln(out, "\n--- Remote Finance API ---")
	cfg.Remote.TokenURL = prompt(reader, out, "Session (token) URL", "")
	cfg.Remote.DataURL = prompt(reader, out, "Record (data) URL", "")
	cfg.Remote.Username = prompt(reader, out, "Username", "")
	cfg.Remote.Password = prompt(reader, out, "Password (empty reads "+passwordEnvRef+")", "")
	if cfg.Remote.Password == "" {
		cfg.Remote.Password = passwordEnvRef
	}
	cfg.Remote.Script = prompt(reader, out, "Script name", cfg.Remote.Script)
	cfg.Remote.InsecureSkipVerify = yes(prompt(reader, out, "Skip TLS verification?", "no"))

	fmt.Fprintln(out, "\n--- Server ---")
	cfg.Server.HTTPAddr = prompt(reader, out, "HTTP address", cfg.Server.HTTPAddr)

	fmt.Fprintln(out, "\n--- Database ---")
	cfg.Database.Driver = prompt(reader, out, "Driver (sqlite/sqlite3/postgres)", cfg.Database.Driver)
	if cfg.Database.Driver == config.DriverPostgres {
		cfg.Database.Path = ""
		cfg.Database.URL = prompt(reader, out, "PostgreSQL URL", "")
	} else {
		cfg.Database.Path = prompt(reader, out, "SQLite database path", cfg.Database.Path)
	}

	fmt.Fprintln(out, "\n--- Schedule ---")
	cfg.Sync.IntervalRaw = prompt(reader, out, "Sync interval", cfg.Sync.IntervalRaw)
	cfg.Sync.RunOnStart = yes(prompt(reader, out, "Sync on start?", "yes"))

	fmt.Fprintln(out, "\n--- Tailscale ---")
	cfg.Tailscale.Enabled = yes(prompt(reader, out, "Enable Tailscale?", "no"))
	if cfg.Tailscale.Enabled {
		cfg.Tailscale.Hostname = prompt(reader, out, "Tailscale hostname", "coa-mirror")
		cfg.Tailscale.AuthKey = prompt(reader, out, "Tailscale auth key (empty reads TS_AUTHKEY)", "")
		cfg.Tailscale.Ephemeral = yes(prompt(reader, out, "Ephemeral node?", "no"))
	}

	fmt.Fprintln(out, "\n--- Access ---")
	if yes(prompt(reader, out, "Require a bearer token for POST /api/sync?", "yes")) {
		secret, err := randomSecret()
		if err != nil {
			return err
		}
		cfg.Auth.JWTSecret = secret
	}

	data, err := encodeConfig(cfg, outputFile)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(outputFile), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	// The file may hold the remote password and JWT secret.
	if err := os.WriteFile(outputFile, data, 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Fprintf(out, "\nConfig written to %s\n", outputFile)
	if cfg.Remote.Password == passwordEnvRef {
		fmt.Fprintln(out, "Set COA_MIRROR_REMOTE_PASSWORD before starting the server.")
	}
	fmt.Fprintln(out, "\nTo start the server:")
	fmt.Fprintln(out, "  coa-mirror serve")
	if cfg.Auth.JWTSecret != "" {
		fmt.Fprintln(out, "To trigger a sync over HTTP:")
		fmt.Fprintln(out, "  curl -X POST -H \"Authorization: Bearer $(coa-mirror token)\" http://"+cfg.Server.HTTPAddr+"/api/sync")
	}

	return nil
}

// encodeConfig serializes cfg as TOML for .toml paths and YAML otherwise.
func encodeConfig(cfg *config.Config, path string) ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteString("# coa-mirror configuration\n")
	buf.WriteString("# Generated by coa-mirror init\n\n")

	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
			return nil, fmt.Errorf("encoding TOML: %w", err)
		}
		return buf.Bytes(), nil
	}

	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(cfg); err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding YAML: %w", err)
	}
	return buf.Bytes(), nil
}

func randomSecret() (string, error) {
	b := make([]byte, 32)
	if _, err := rand.Read(b); err != nil {
		return "", fmt.Errorf("generating JWT secret: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func yes(s string) bool {
	s = strings.ToLower(s)
	return s == "yes" || s == "y"
}

func prompt(reader *bufio.Reader, out io.Writer, question, defaultVal string) string {
	if defaultVal != "" {
		fmt.Fprintf(out, "%s [%s]: ", question, defaultVal)
	} else {
		fmt.Fprintf(out, "%s: ", question)
	}

	input, err := reader.ReadString('\n')
	if err != nil && input == "" {
		// On EOF or error, return default
		fmt.Fprintln(out)
		return defaultVal
	}
	input = strings.TrimSpace(input)

	if input == "" {
		return defaultVal
	}
	return input
}
