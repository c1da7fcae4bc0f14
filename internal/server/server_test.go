// ABOUTME: Tests for server construction, lifecycle and end-to-end sync over HTTP
// ABOUTME: Runs the full stack against an httptest fake of the remote finance API

package server

import (
	"context"
	"encoding/json"
	"errors"
	"net"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/coa-mirror/internal/config"
	"github.com/2389/coa-mirror/internal/store"
)

// fakeRemote serves the session and script endpoints of the finance API.
type fakeRemote struct {
	srv        *httptest.Server
	payload    atomic.Value // string: scriptResult
	tokenCalls atomic.Int32
	dataCalls  atomic.Int32
	delay      atomic.Int64 // time.Duration before the data endpoint answers
}

func newFakeRemote(t *testing.T, payload string) *fakeRemote {
	t.Helper()
	f := &fakeRemote{}
	f.payload.Store(payload)

	mux := http.NewServeMux()
	mux.HandleFunc("/sessions", func(w http.ResponseWriter, r *http.Request) {
		f.tokenCalls.Add(1)
		user, pass, ok := r.BasicAuth()
		if !ok || user != "api" || pass != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"response":{"token":"tok-1"}}`))
	})
	mux.HandleFunc("/records", func(w http.ResponseWriter, r *http.Request) {
		f.dataCalls.Add(1)
		if d := time.Duration(f.delay.Load()); d > 0 {
			select {
			case <-time.After(d):
			case <-r.Context().Done():
				return
			}
		}
		if r.Method != http.MethodPatch || r.Header.Get("Authorization") != "Bearer tok-1" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		body, _ := json.Marshal(map[string]any{
			"response": map[string]any{"scriptResult": f.payload.Load().(string)},
		})
		_, _ = w.Write(body)
	})
	f.srv = httptest.NewServer(mux)
	t.Cleanup(f.srv.Close)
	return f
}

func testConfig(t *testing.T, remoteURL string) *config.Config {
	t.Helper()
	cfg := config.Default()
	cfg.Server.HTTPAddr = "127.0.0.1:0"
	cfg.Database.Path = filepath.Join(t.TempDir(), "coa-mirror.db")
	cfg.Remote.TokenURL = remoteURL + "/sessions"
	cfg.Remote.DataURL = remoteURL + "/records"
	cfg.Remote.Username = "api"
	cfg.Remote.Password = "secret"
	cfg.Remote.Timeout = 5 * time.Second
	cfg.Sync.RunOnStart = false
	cfg.Sync.Interval = time.Hour
	cfg.Sync.Timeout = 10 * time.Second
	cfg.Report.Locale = "en-US"
	return cfg
}

func TestNew(t *testing.T) {
	remote := newFakeRemote(t, `[]`)
	cfg := testConfig(t, remote.srv.URL)

	s, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	assert.Same(t, cfg, s.config)
	assert.NotNil(t, s.store)
	assert.NotNil(t, s.scheduler)
	assert.Nil(t, s.verifier)
}

func TestNew_WithJWTSecret(t *testing.T) {
	remote := newFakeRemote(t, `[]`)
	cfg := testConfig(t, remote.srv.URL)
	cfg.Auth.JWTSecret = "0123456789abcdef0123456789abcdef"

	s, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	defer s.Shutdown(context.Background())

	assert.NotNil(t, s.verifier)
}

func TestOpenStore(t *testing.T) {
	t.Run("modernc", func(t *testing.T) {
		st, err := OpenStore(context.Background(), config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Path:   filepath.Join(t.TempDir(), "a.db"),
		})
		require.NoError(t, err)
		assert.IsType(t, &store.SQLiteStore{}, st)
		require.NoError(t, st.Close())
	})

	t.Run("env override", func(t *testing.T) {
		override := filepath.Join(t.TempDir(), "nested", "override.db")
		t.Setenv("COA_MIRROR_DB_PATH", override)

		st, err := OpenStore(context.Background(), config.DatabaseConfig{
			Driver: config.DriverSQLite,
			Path:   "/nonexistent/ignored.db",
		})
		require.NoError(t, err)
		require.NoError(t, st.Close())
		assert.FileExists(t, override)
	})

	t.Run("unsupported", func(t *testing.T) {
		_, err := OpenStore(context.Background(), config.DatabaseConfig{Driver: "mysql"})
		assert.ErrorContains(t, err, "unsupported database driver")
	})
}

func TestResolveTailscaleAuthKey(t *testing.T) {
	t.Setenv("TS_AUTHKEY", "")
	_, err := resolveTailscaleAuthKey("")
	assert.Error(t, err)

	key, err := resolveTailscaleAuthKey("tskey-config")
	require.NoError(t, err)
	assert.Equal(t, "tskey-config", key)

	t.Setenv("TS_AUTHKEY", "tskey-env")
	key, err = resolveTailscaleAuthKey("")
	require.NoError(t, err)
	assert.Equal(t, "tskey-env", key)
}

func TestResolveTailscaleStateDir(t *testing.T) {
	assert.Equal(t, "/var/lib/ts", resolveTailscaleStateDir("/var/lib/ts"))

	t.Setenv("XDG_DATA_HOME", "/tmp/data")
	assert.Equal(t, filepath.Join("/tmp/data", "coa-mirror", "tailscale"), resolveTailscaleStateDir(""))
}

// startServer runs s on a loopback listener and returns its base URL.
func startServer(t *testing.T, s *Server) (string, <-chan error) {
	t.Helper()
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Serve(ctx, ln) }()
	t.Cleanup(func() {
		cancel()
		select {
		case <-errCh:
		case <-time.After(5 * time.Second):
			t.Error("server did not shut down in time")
		}
	})
	return "http://" + ln.Addr().String(), errCh
}

func TestRunAndShutdown(t *testing.T) {
	remote := newFakeRemote(t, `[]`)
	cfg := testConfig(t, remote.srv.URL)

	s, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- s.Run(ctx) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			t.Errorf("Run() returned unexpected error: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("server did not shut down in time")
	}
}

func TestEndToEndSync(t *testing.T) {
	remote := newFakeRemote(t, `[
		{"hesap_kodu":"100.01.001","borc":"1500.25"},
		{"hesap_kodu":"100.01.002","borc":250},
		{"hesap_kodu":"120.03.010","borc":"99.75"},
		{"borc":10},
		{"hesap_kodu":"130.01.001"}
	]`)
	cfg := testConfig(t, remote.srv.URL)

	s, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	baseURL, _ := startServer(t, s)

	resp, err := http.Post(baseURL+"/api/sync", "application/json", nil)
	require.NoError(t, err)
	var syncResp SyncResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&syncResp))
	resp.Body.Close()
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 3, syncResp.Data.Created)
	assert.Equal(t, 0, syncResp.Data.Updated)
	assert.Equal(t, 5, syncResp.Data.Total)
	assert.Equal(t, 2, syncResp.Data.Skipped)

	// An unchanged payload writes nothing.
	resp, err = http.Post(baseURL+"/api/sync", "application/json", nil)
	require.NoError(t, err)
	syncResp = SyncResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&syncResp))
	resp.Body.Close()
	assert.Equal(t, 0, syncResp.Data.Created)
	assert.Equal(t, 0, syncResp.Data.Updated)

	// A changed value is reported as an update.
	remote.payload.Store(`[{"hesap_kodu":"100.01.001","borc":"1600"}]`)
	resp, err = http.Post(baseURL+"/api/sync", "application/json", nil)
	require.NoError(t, err)
	syncResp = SyncResponse{}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&syncResp))
	resp.Body.Close()
	assert.Equal(t, 1, syncResp.Data.Updated)
	assert.Equal(t, "Created: 0, Updated: 1", syncResp.Data.Message)

	resp, err = http.Get(baseURL + "/api/accounts")
	require.NoError(t, err)
	var accounts struct {
		Total int `json:"total"`
		Data  []struct {
			Code       string `json:"code"`
			TotalDebit string `json:"totalDebit"`
		} `json:"data"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&accounts))
	resp.Body.Close()
	assert.Equal(t, 3, accounts.Total)
	require.Len(t, accounts.Data, 2)
	assert.Equal(t, "100", accounts.Data[0].Code)
	assert.Equal(t, "1850", accounts.Data[0].TotalDebit)
	assert.Equal(t, "120", accounts.Data[1].Code)
	assert.Equal(t, "99.75", accounts.Data[1].TotalDebit)

	resp, err = http.Get(baseURL + "/api/logs")
	require.NoError(t, err)
	var logs LogsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&logs))
	resp.Body.Close()
	require.Len(t, logs.Data, 3)
	assert.Equal(t, store.SyncStatusSuccess, logs.Data[0].Status)
	assert.Equal(t, 1, logs.Data[0].RecordCount)
	assert.Equal(t, "Created: 3, Updated: 0, Skipped: 2", logs.Data[2].Message)

	// The session token is cached across runs.
	assert.Equal(t, int32(1), remote.tokenCalls.Load())
	assert.Equal(t, int32(3), remote.dataCalls.Load())
}

func TestEndToEndSync_RemoteFailureIsLogged(t *testing.T) {
	remote := newFakeRemote(t, `{"not":"an array"}`)
	cfg := testConfig(t, remote.srv.URL)

	s, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	baseURL, _ := startServer(t, s)

	resp, err := http.Post(baseURL+"/api/sync", "application/json", nil)
	require.NoError(t, err)
	var errResp ErrorResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&errResp))
	resp.Body.Close()
	assert.Equal(t, http.StatusInternalServerError, resp.StatusCode)
	assert.Contains(t, errResp.Error, "API data is not an array")

	resp, err = http.Get(baseURL + "/api/logs")
	require.NoError(t, err)
	var logs LogsResponse
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&logs))
	resp.Body.Close()
	require.Len(t, logs.Data, 1)
	assert.Equal(t, store.SyncStatusError, logs.Data[0].Status)
	assert.Equal(t, 0, logs.Data[0].RecordCount)
}

func TestRunOnStart(t *testing.T) {
	remote := newFakeRemote(t, `[{"hesap_kodu":"100.01.001","borc":1}]`)
	cfg := testConfig(t, remote.srv.URL)
	cfg.Sync.RunOnStart = true

	s, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	baseURL, _ := startServer(t, s)

	require.Eventually(t, func() bool {
		resp, err := http.Get(baseURL + "/api/logs")
		if err != nil {
			return false
		}
		defer resp.Body.Close()
		var logs LogsResponse
		if json.NewDecoder(resp.Body).Decode(&logs) != nil {
			return false
		}
		return len(logs.Data) == 1
	}, 5*time.Second, 20*time.Millisecond)
}

func TestShutdown_ManualSyncStillLogsOnce(t *testing.T) {
	remote := newFakeRemote(t, `[{"hesap_kodu":"100.01.001","borc":1}]`)
	remote.delay.Store(int64(3 * time.Second))
	cfg := testConfig(t, remote.srv.URL)

	s, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)
	front := httptest.NewServer(s.Handler())
	defer front.Close()

	statusCh := make(chan int, 1)
	go func() {
		resp, err := http.Post(front.URL+"/api/sync", "application/json", nil)
		if err != nil {
			statusCh <- 0
			return
		}
		resp.Body.Close()
		statusCh <- resp.StatusCode
	}()
	require.Eventually(t, func() bool { return remote.dataCalls.Load() == 1 }, 5*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	require.NoError(t, s.Shutdown(ctx))
	assert.Less(t, time.Since(start), 2*time.Second, "the run is cancelled, not waited out")
	assert.Equal(t, http.StatusServiceUnavailable, <-statusCh)

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	require.NoError(t, err)
	defer st.Close()

	logs, err := st.RecentSyncLogs(context.Background(), 10)
	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, store.SyncStatusError, logs[0].Status)
	assert.Contains(t, logs[0].Message, "context canceled")

	count, err := st.CountAccounts(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, count)
}

func TestServe_ListenerFailureStopsScheduledRun(t *testing.T) {
	remote := newFakeRemote(t, `[{"hesap_kodu":"100.01.001","borc":1}]`)
	remote.delay.Store(int64(5 * time.Second))
	cfg := testConfig(t, remote.srv.URL)
	cfg.Sync.RunOnStart = true

	s, err := New(context.Background(), cfg, testLogger())
	require.NoError(t, err)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, ln.Close())

	start := time.Now()
	err = s.Serve(context.Background(), ln)
	assert.ErrorContains(t, err, "HTTP server")
	assert.Less(t, time.Since(start), 3*time.Second, "scheduled run must not outlive the server")

	st, err := store.NewSQLiteStore(cfg.Database.Path)
	require.NoError(t, err)
	defer st.Close()

	logs, err := st.RecentSyncLogs(context.Background(), 10)
	require.NoError(t, err)
	assert.LessOrEqual(t, len(logs), 1)
	for _, e := range logs {
		assert.Equal(t, store.SyncStatusError, e.Status)
	}
}
