// ABOUTME: Tests for the coa-mirror CLI commands
// ABOUTME: Runs the cobra tree against temp configs and an httptest fake of the finance API

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/fatih/color"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coa-mirror/internal/auth"
	"github.com/2389/coa-mirror/internal/config"
	"github.com/2389/coa-mirror/internal/store"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func newFinanceAPI(t *testing.T, scriptResult string) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		if _, _, ok := r.BasicAuth(); !ok {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"response":{"token":"cli-token"}}`))
	})
	mux.HandleFunc("/records", func(w http.ResponseWriter, r *http.Request) {
		body, _ := json.Marshal(map[string]any{"response": map[string]any{"scriptResult": scriptResult}})
		_, _ = w.Write(body)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func writeTestConfig(t *testing.T, remoteURL string) string {
	t.Helper()
	dir := t.TempDir()
	content := fmt.Sprintf(`
database:
  driver: "sqlite"
  path: %q
remote:
  token_url: "%s/sessions"
  data_url: "%s/records"
  username: "api"
  password: "secret"
sync:
  run_on_start: false
auth:
  jwt_secret: %q
logging:
  level: "error"
report:
  locale: "en-US"
  currency: "USD"
`, filepath.Join(dir, "mirror.db"), remoteURL, remoteURL, testSecret)

	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0600))
	return path
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	color.NoColor = true

	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func TestSyncAccountsAndLogs(t *testing.T) {
	api := newFinanceAPI(t, `[
		{"hesap_kodu":"100.01.001","borc":"1000"},
		{"hesap_kodu":"100.02.001","borc":234.5},
		{"hesap_kodu":"","borc":1}
	]`)
	cfgPath := writeTestConfig(t, api.URL)

	out, err := execute(t, "--config", cfgPath, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Created: 2, Updated: 0, Skipped: 1 (received 3)")

	out, err = execute(t, "--config", cfgPath, "accounts", "--format", "markdown")
	require.NoError(t, err)
	assert.Contains(t, out, "# Chart of Accounts")
	assert.Contains(t, out, "**Accounts:** 2")
	assert.Contains(t, out, "$1,234.50")

	out, err = execute(t, "--config", cfgPath, "accounts", "--format", "json")
	require.NoError(t, err)
	var roots []struct {
		Code       string `json:"code"`
		TotalDebit string `json:"totalDebit"`
	}
	require.NoError(t, json.Unmarshal([]byte(out), &roots))
	require.Len(t, roots, 1)
	assert.Equal(t, "100", roots[0].Code)
	assert.Equal(t, "1234.5", roots[0].TotalDebit)

	out, err = execute(t, "--config", cfgPath, "accounts", "--style", "notty")
	require.NoError(t, err)
	assert.Contains(t, out, "Chart of Accounts")

	out, err = execute(t, "--config", cfgPath, "logs")
	require.NoError(t, err)
	assert.Contains(t, out, "STATUS")
	assert.Contains(t, out, "SUCCESS")
	assert.Contains(t, out, "Created: 2, Updated: 0, Skipped: 1")
}

func TestAccounts_UnknownFormat(t *testing.T) {
	cfgPath := writeTestConfig(t, "http://127.0.0.1:1")

	_, err := execute(t, "--config", cfgPath, "accounts", "--format", "xml")
	assert.ErrorContains(t, err, "unknown format")
}

func TestLogs_Empty(t *testing.T) {
	cfgPath := writeTestConfig(t, "http://127.0.0.1:1")

	out, err := execute(t, "--config", cfgPath, "logs")
	require.NoError(t, err)
	assert.Contains(t, out, "No sync attempts recorded yet.")
}

func TestSync_FailureIsReported(t *testing.T) {
	api := newFinanceAPI(t, `not json`)
	cfgPath := writeTestConfig(t, api.URL)

	_, err := execute(t, "--config", cfgPath, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync failed")

	out, err := execute(t, "--config", cfgPath, "logs")
	require.NoError(t, err)
	assert.Contains(t, out, "ERROR")
}

// Simulates "serve" mid-run in another process on the same database.
func TestSync_RefusedWhileAnotherRunHoldsLease(t *testing.T) {
	api := newFinanceAPI(t, `[{"hesap_kodu":"100.01.001","borc":"1000"}]`)
	cfgPath := writeTestConfig(t, api.URL)

	st, err := store.NewSQLiteStore(filepath.Join(filepath.Dir(cfgPath), "mirror.db"))
	require.NoError(t, err)
	defer st.Close()

	ok, err := st.AcquireLease(context.Background(), "sync", "serve-process", time.Minute)
	require.NoError(t, err)
	require.True(t, ok)

	_, err = execute(t, "--config", cfgPath, "sync")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "sync skipped")

	count, err := st.CountAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)

	require.NoError(t, st.ReleaseLease(context.Background(), "sync", "serve-process"))
	out, err := execute(t, "--config", cfgPath, "sync")
	require.NoError(t, err)
	assert.Contains(t, out, "Created: 1, Updated: 0")
}

func TestReadOnlyCommands_WithoutRemoteSettings(t *testing.T) {
	dir := t.TempDir()
	content := fmt.Sprintf(`
database:
  driver: "sqlite"
  path: %q
auth:
  jwt_secret: %q
logging:
  level: "error"
`, filepath.Join(dir, "mirror.db"), testSecret)
	cfgPath := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte(content), 0600))

	out, err := execute(t, "--config", cfgPath, "logs")
	require.NoError(t, err)
	assert.Contains(t, out, "No sync attempts recorded yet.")

	_, err = execute(t, "--config", cfgPath, "accounts", "--format", "json")
	require.NoError(t, err)

	out, err = execute(t, "--config", cfgPath, "token", "--subject", "ops")
	require.NoError(t, err)
	assert.NotEmpty(t, strings.TrimSpace(out))

	_, err = execute(t, "--config", cfgPath, "sync")
	assert.ErrorContains(t, err, "remote.token_url is required")
}

func TestToken(t *testing.T) {
	cfgPath := writeTestConfig(t, "http://127.0.0.1:1")

	out, err := execute(t, "--config", cfgPath, "token", "--subject", "ops")
	require.NoError(t, err)

	verifier, err := auth.NewJWTVerifier([]byte(testSecret))
	require.NoError(t, err)
	subject, err := verifier.Verify(strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", subject)
}

func TestHealth(t *testing.T) {
	healthy := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/health", r.URL.Path)
		_, _ = w.Write([]byte(`{"status":"OK"}`))
	}))
	defer healthy.Close()

	out, err := execute(t, "health", "--addr", strings.TrimPrefix(healthy.URL, "http://"))
	require.NoError(t, err)
	assert.Equal(t, "healthy\n", out)

	broken := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer broken.Close()

	_, err = execute(t, "health", "--addr", strings.TrimPrefix(broken.URL, "http://"))
	assert.ErrorContains(t, err, "unhealthy: status 503")
}

func TestInit_YAML(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "config.yaml")
	dbPath := filepath.Join(dir, "mirror.db")

	answers := strings.Join([]string{
		path,
		"https://fm.example.com/sessions",
		"https://fm.example.com/records",
		"api",
		"s3cret",
		"",     // script
		"",     // skip TLS
		"",     // http addr
		"",     // driver
		dbPath, // sqlite path
		"10m",  // interval
		"no",   // sync on start
		"",     // tailscale
		"yes",  // bearer token
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader(answers), &out, "unused.yaml"))
	assert.Contains(t, out.String(), "Config written to "+path)

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0600), info.Mode().Perm())

	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "https://fm.example.com/records", cfg.Remote.DataURL)
	assert.Equal(t, "s3cret", cfg.Remote.Password)
	assert.Equal(t, "getData", cfg.Remote.Script)
	assert.Equal(t, dbPath, cfg.Database.Path)
	assert.Equal(t, "10m0s", cfg.Sync.Interval.String())
	assert.False(t, cfg.Sync.RunOnStart)
	assert.GreaterOrEqual(t, len(cfg.Auth.JWTSecret), auth.MinSecretLength)
}

func TestInit_TOMLWithPasswordFromEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.toml")

	answers := strings.Join([]string{
		path,
		"http://localhost:9000/sessions",
		"http://localhost:9000/records",
		"api",
		"", // password from env
	}, "\n") + "\n"

	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader(answers), &out, "unused.yaml"))
	assert.Contains(t, out.String(), "Set COA_MIRROR_REMOTE_PASSWORD")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "[remote]")
	assert.Contains(t, string(raw), passwordEnvRef)

	t.Setenv("COA_MIRROR_REMOTE_PASSWORD", "from-env")
	cfg, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "from-env", cfg.Remote.Password)
	assert.True(t, cfg.Sync.RunOnStart)
	assert.NotEmpty(t, cfg.Auth.JWTSecret)
}

func TestInit_KeepsExistingFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("original"), 0600))

	var out bytes.Buffer
	require.NoError(t, runInit(strings.NewReader(path+"\nno\n"), &out, path))
	assert.Contains(t, out.String(), "Aborted.")

	raw, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "original", string(raw))
}
