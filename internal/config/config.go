// ABOUTME: Configuration loading and parsing for coa-mirror
// ABOUTME: Supports YAML or TOML files with environment variable expansion and duration parsing

package config

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"github.com/2389/coa-mirror/internal/auth"
)

// Database drivers accepted in database.driver.
const (
	DriverSQLite   = "sqlite"
	DriverSQLite3  = "sqlite3"
	DriverPostgres = "postgres"
)

// Config represents the complete coa-mirror configuration
type Config struct {
	Server    ServerConfig    `yaml:"server" toml:"server"`
	Tailscale TailscaleConfig `yaml:"tailscale" toml:"tailscale"`
	Database  DatabaseConfig  `yaml:"database" toml:"database"`
	Remote    RemoteConfig    `yaml:"remote" toml:"remote"`
	Sync      SyncConfig      `yaml:"sync" toml:"sync"`
	Auth      AuthConfig      `yaml:"auth" toml:"auth"`
	Logging   LoggingConfig   `yaml:"logging" toml:"logging"`
	Report    ReportConfig    `yaml:"report" toml:"report"`
}

// ServerConfig holds server address configuration
type ServerConfig struct {
	HTTPAddr string `yaml:"http_addr" toml:"http_addr"`
}

// TailscaleConfig holds Tailscale tsnet configuration
type TailscaleConfig struct {
	Enabled   bool   `yaml:"enabled" toml:"enabled"`
	Hostname  string `yaml:"hostname" toml:"hostname"`
	AuthKey   string `yaml:"auth_key" toml:"auth_key"`
	StateDir  string `yaml:"state_dir" toml:"state_dir"`
	Ephemeral bool   `yaml:"ephemeral" toml:"ephemeral"`
}

// DatabaseConfig selects the store backend
type DatabaseConfig struct {
	Driver string `yaml:"driver" toml:"driver"`
	Path   string `yaml:"path" toml:"path"` // sqlite, sqlite3
	URL    string `yaml:"url" toml:"url"`   // postgres
}

// RemoteConfig describes the finance API the accounts are mirrored from
type RemoteConfig struct {
	TokenURL           string `yaml:"token_url" toml:"token_url"`
	DataURL            string `yaml:"data_url" toml:"data_url"`
	Username           string `yaml:"username" toml:"username"`
	Password           string `yaml:"password" toml:"password"`
	Script             string `yaml:"script" toml:"script"`
	TokenPath          string `yaml:"token_path" toml:"token_path"`
	ResultPath         string `yaml:"result_path" toml:"result_path"`
	InsecureSkipVerify bool   `yaml:"insecure_skip_verify" toml:"insecure_skip_verify"`

	Timeout    time.Duration `yaml:"-" toml:"-"`
	TimeoutRaw string        `yaml:"timeout" toml:"timeout"`
}

// SyncConfig holds schedule configuration
type SyncConfig struct {
	RunOnStart bool `yaml:"run_on_start" toml:"run_on_start"`

	Interval time.Duration `yaml:"-" toml:"-"`
	Timeout  time.Duration `yaml:"-" toml:"-"`

	// Raw string values for unmarshaling
	IntervalRaw string `yaml:"interval" toml:"interval"`
	TimeoutRaw  string `yaml:"timeout" toml:"timeout"`
}

// AuthConfig holds authentication configuration
type AuthConfig struct {
	JWTSecret string `yaml:"jwt_secret" toml:"jwt_secret"`
}

// LoggingConfig holds logging configuration
type LoggingConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Format string `yaml:"format" toml:"format"`
}

// ReportConfig controls the rendered account report
type ReportConfig struct {
	Locale   string `yaml:"locale" toml:"locale"`
	Currency string `yaml:"currency" toml:"currency"`
}

// Default returns a configuration with every optional field filled in.
func Default() *Config {
	return &Config{
		Server: ServerConfig{HTTPAddr: "localhost:3001"},
		Database: DatabaseConfig{
			Driver: DriverSQLite,
			Path:   filepath.Join(DataDir(), "coa-mirror.db"),
		},
		Remote: RemoteConfig{
			Script:     "getData",
			TimeoutRaw: "30s",
		},
		Sync: SyncConfig{
			RunOnStart:  true,
			IntervalRaw: "5m",
			TimeoutRaw:  "2m",
		},
		Logging: LoggingConfig{Level: "info", Format: "text"},
		Report:  ReportConfig{Locale: "tr-TR", Currency: "TRY"},
	}
}

// Load reads a configuration file from the given path and returns a parsed Config.
// Files ending in .toml are decoded as TOML, anything else as YAML.
// Environment variables in the format ${VAR_NAME} are expanded.
// Duration strings are parsed into time.Duration values.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	// Expand environment variables in the raw content
	expanded := expandEnvVars(string(data))

	cfg := Default()
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	}

	if err := parseDurations(cfg); err != nil {
		return nil, fmt.Errorf("parsing durations: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// envVarPattern matches ${VAR_NAME}
var envVarPattern = regexp.MustCompile(`\$\{([^}]+)\}`)

// expandEnvVars replaces ${VAR_NAME} patterns with the corresponding environment variable values.
// If the environment variable is not set, it is replaced with an empty string.
func expandEnvVars(s string) string {
	return envVarPattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := envVarPattern.FindStringSubmatch(match)[1]
		return os.Getenv(varName)
	})
}

// Validate checks the fields every command needs. The remote section is
// left to ValidateRemote so read-only commands work without API secrets.
// Returns an error describing the first validation failure encountered.
func (c *Config) Validate() error {
	// Server address is required unless Tailscale is enabled
	if !c.Tailscale.Enabled && c.Server.HTTPAddr == "" {
		return fmt.Errorf("server.http_addr is required (or enable tailscale)")
	}
	if c.Tailscale.Enabled && c.Tailscale.Hostname == "" {
		return fmt.Errorf("tailscale.hostname is required when tailscale is enabled")
	}

	switch c.Database.Driver {
	case DriverSQLite, DriverSQLite3:
		if c.Database.Path == "" {
			return fmt.Errorf("database.path is required for driver %q", c.Database.Driver)
		}
	case DriverPostgres:
		if c.Database.URL == "" {
			return fmt.Errorf("database.url is required for driver %q", c.Database.Driver)
		}
	default:
		return fmt.Errorf("database.driver %q is not supported (use sqlite, sqlite3 or postgres)", c.Database.Driver)
	}

	if c.Sync.Interval < 0 || c.Sync.Timeout < 0 || c.Remote.Timeout < 0 {
		return fmt.Errorf("durations must not be negative")
	}

	if c.Auth.JWTSecret != "" && len(c.Auth.JWTSecret) < auth.MinSecretLength {
		return fmt.Errorf("auth.jwt_secret must be at least %d bytes", auth.MinSecretLength)
	}

	switch strings.ToLower(c.Logging.Format) {
	case "", "text", "json":
	default:
		return fmt.Errorf("logging.format %q is not supported (use text or json)", c.Logging.Format)
	}

	return nil
}

// ValidateRemote checks the finance API endpoints and credentials. Commands
// that talk to the remote call it before building a client.
func (c *Config) ValidateRemote() error {
	if err := validateHTTPURL("remote.token_url", c.Remote.TokenURL); err != nil {
		return err
	}
	if err := validateHTTPURL("remote.data_url", c.Remote.DataURL); err != nil {
		return err
	}
	if c.Remote.Username == "" {
		return fmt.Errorf("remote.username is required")
	}
	if c.Remote.Password == "" {
		return fmt.Errorf("remote.password is required")
	}
	return nil
}

func validateHTTPURL(field, raw string) error {
	if raw == "" {
		return fmt.Errorf("%s is required", field)
	}
	u, err := url.Parse(raw)
	if err != nil {
		return fmt.Errorf("%s is not a valid URL: %w", field, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("%s must use http or https scheme", field)
	}
	return nil
}

// parseDurations converts the raw duration strings into time.Duration values
func parseDurations(cfg *Config) error {
	var err error

	if cfg.Sync.IntervalRaw != "" {
		cfg.Sync.Interval, err = time.ParseDuration(cfg.Sync.IntervalRaw)
		if err != nil {
			return fmt.Errorf("parsing sync.interval %q: %w", cfg.Sync.IntervalRaw, err)
		}
	}

	if cfg.Sync.TimeoutRaw != "" {
		cfg.Sync.Timeout, err = time.ParseDuration(cfg.Sync.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing sync.timeout %q: %w", cfg.Sync.TimeoutRaw, err)
		}
	}

	if cfg.Remote.TimeoutRaw != "" {
		cfg.Remote.Timeout, err = time.ParseDuration(cfg.Remote.TimeoutRaw)
		if err != nil {
			return fmt.Errorf("parsing remote.timeout %q: %w", cfg.Remote.TimeoutRaw, err)
		}
	}

	return nil
}

// Path returns the config file location.
// Priority: COA_MIRROR_CONFIG > XDG_CONFIG_HOME/coa-mirror/config.yaml > ~/.config/coa-mirror/config.yaml
func Path() string {
	if envPath := os.Getenv("COA_MIRROR_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "coa-mirror", "config.yaml")
}

// DataDir returns the directory for the default database and tsnet state.
// Priority: XDG_DATA_HOME/coa-mirror > ~/.local/share/coa-mirror
func DataDir() string {
	dataDir := os.Getenv("XDG_DATA_HOME")
	if dataDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "data" // fallback
		}
		dataDir = filepath.Join(homeDir, ".local", "share")
	}

	return filepath.Join(dataDir, "coa-mirror")
}
