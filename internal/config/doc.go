// Package config handles configuration loading for coa-mirror.
//
// # Overview
//
// Configuration is loaded from a YAML or TOML file (chosen by extension) with
// environment variable expansion. Default supplies every optional value, so
// a file only needs the remote connection settings.
//
// # Configuration File
//
// Default locations (in order):
//
//  1. Path from COA_MIRROR_CONFIG environment variable
//  2. $XDG_CONFIG_HOME/coa-mirror/config.yaml
//  3. ~/.config/coa-mirror/config.yaml
//
// # Environment Variable Expansion
//
// Configuration values can reference environment variables:
//
//	remote:
//	  password: "${COA_MIRROR_REMOTE_PASSWORD}"
//
// Syntax: ${VAR_NAME}. Unset variables expand to an empty string.
//
// # Duration Parsing
//
// Duration values use Go's time.ParseDuration syntax:
//
//	sync:
//	  interval: "5m"
//	  timeout: "2m"
//
// # Configuration Sections
//
// Server and database:
//
//	server:
//	  http_addr: "localhost:3001"
//	database:
//	  driver: "sqlite"          # sqlite (pure Go), sqlite3 (cgo) or postgres
//	  path: "/var/lib/coa-mirror/coa-mirror.db"
//	  url: "postgres://..."     # postgres only
//
// Remote finance API:
//
//	remote:
//	  token_url: "https://fm.example.com/.../sessions"
//	  data_url: "https://fm.example.com/.../records/1"
//	  username: "api"
//	  password: "${COA_MIRROR_REMOTE_PASSWORD}"
//	  script: "getData"
//	  timeout: "30s"
//	  insecure_skip_verify: false
//	  token_path: "$.response.token"
//	  result_path: "$.response.scriptResult"
//
// Schedule:
//
//	sync:
//	  interval: "5m"
//	  run_on_start: true
//	  timeout: "2m"
//
// Optional sections: tailscale (tsnet listener), auth.jwt_secret (protects
// POST /api/sync), logging (level, text|json) and report (locale, currency).
package config
