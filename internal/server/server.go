// ABOUTME: Server orchestrator that wires store, sync engine, scheduler and HTTP API
// ABOUTME: Manages listener setup (TCP or tailnet), background sync and graceful shutdown

package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"time"

	"tailscale.com/tsnet"

	"github.com/2389/coa-mirror/internal/auth"
	"github.com/2389/coa-mirror/internal/config"
	"github.com/2389/coa-mirror/internal/remote"
	"github.com/2389/coa-mirror/internal/scheduler"
	"github.com/2389/coa-mirror/internal/store"
	"github.com/2389/coa-mirror/internal/syncer"
)

// SyncTrigger runs one sync pass on demand.
type SyncTrigger interface {
	Trigger(ctx context.Context) (*syncer.Result, error)
}

// RunCloser refuses new sync runs and waits for the active one.
type RunCloser interface {
	Close(ctx context.Context) error
}

// runDrainTimeout bounds the wait for a cancelled run to record its outcome
// during Shutdown. It applies even when the caller's deadline is shorter.
const runDrainTimeout = 15 * time.Second

// Deps are the collaborators the HTTP layer needs.
type Deps struct {
	Store store.Store
	Sync  SyncTrigger

	// Scheduler, when set, is started by Run and closed by Shutdown.
	Scheduler *scheduler.Scheduler

	// Engine, when set, is drained by Shutdown before the store is closed.
	Engine RunCloser

	// Verifier, when set, guards POST /api/sync.
	Verifier auth.TokenVerifier
}

// Server serves the account hierarchy and sync log over HTTP and owns the
// background sync schedule.
type Server struct {
	config      *config.Config
	store       store.Store
	sync        SyncTrigger
	scheduler   *scheduler.Scheduler
	engine      RunCloser
	verifier    auth.TokenVerifier
	httpServer  *http.Server
	tsnetServer *tsnet.Server
	logger      *slog.Logger
	startedAt   time.Time

	// runCtx outlives requests and is cancelled by Shutdown. Sync runs
	// started by the server derive from it.
	runCtx     context.Context
	cancelRuns context.CancelFunc
}

// OpenStore creates the store selected by database.driver.
// COA_MIRROR_DB_PATH overrides database.path for the SQLite drivers.
func OpenStore(ctx context.Context, cfg config.DatabaseConfig) (store.Store, error) {
	switch cfg.Driver {
	case config.DriverPostgres:
		s, err := store.NewPostgresStore(ctx, cfg.URL)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		return s, nil
	case config.DriverSQLite, config.DriverSQLite3, "":
		dbPath := cfg.Path
		if envPath := os.Getenv("COA_MIRROR_DB_PATH"); envPath != "" {
			dbPath = envPath
		}
		driver := cfg.Driver
		if driver == "" {
			driver = config.DriverSQLite
		}
		s, err := store.NewSQLiteStoreWithDriver(driver, dbPath)
		if err != nil {
			return nil, fmt.Errorf("initializing store: %w", err)
		}
		return s, nil
	default:
		return nil, fmt.Errorf("unsupported database driver %q", cfg.Driver)
	}
}

// NewEngine builds the remote client, token manager and sync engine from cfg.
func NewEngine(cfg *config.Config, st store.Store, logger *slog.Logger) (*syncer.Engine, error) {
	if err := cfg.ValidateRemote(); err != nil {
		return nil, err
	}

	client, err := remote.NewClient(remote.Config{
		TokenURL:           cfg.Remote.TokenURL,
		DataURL:            cfg.Remote.DataURL,
		Script:             cfg.Remote.Script,
		TokenPath:          cfg.Remote.TokenPath,
		ResultPath:         cfg.Remote.ResultPath,
		Timeout:            cfg.Remote.Timeout,
		InsecureSkipVerify: cfg.Remote.InsecureSkipVerify,
	}, logger)
	if err != nil {
		return nil, fmt.Errorf("creating remote client: %w", err)
	}

	if cfg.Remote.InsecureSkipVerify {
		logger.Warn("TLS verification disabled for remote finance API")
	}

	cred := &remote.Credential{Username: cfg.Remote.Username, Password: cfg.Remote.Password}
	tokens := remote.NewTokenManager(cred, client, logger)

	return syncer.New(st, client, tokens, syncer.Options{
		Timeout: cfg.Sync.Timeout,
		Logger:  logger,
	}), nil
}

// New creates a fully wired server from configuration.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger) (*Server, error) {
	if logger == nil {
		logger = slog.Default()
	}

	st, err := OpenStore(ctx, cfg.Database)
	if err != nil {
		return nil, err
	}

	engine, err := NewEngine(cfg, st, logger)
	if err != nil {
		_ = st.Close()
		return nil, err
	}

	sched := scheduler.New(engine, cfg.Sync.Interval, cfg.Sync.RunOnStart, logger)

	var verifier auth.TokenVerifier
	if cfg.Auth.JWTSecret != "" {
		v, err := auth.NewJWTVerifier([]byte(cfg.Auth.JWTSecret))
		if err != nil {
			_ = st.Close()
			return nil, fmt.Errorf("creating JWT verifier: %w", err)
		}
		verifier = v
	} else {
		logger.Warn("auth.jwt_secret not set, POST /api/sync is unauthenticated")
	}

	return NewWithDeps(cfg, Deps{
		Store:     st,
		Sync:      sched,
		Scheduler: sched,
		Engine:    engine,
		Verifier:  verifier,
	}, logger), nil
}

// NewWithDeps creates a server around existing collaborators.
func NewWithDeps(cfg *config.Config, deps Deps, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}

	s := &Server{
		config:    cfg,
		store:     deps.Store,
		sync:      deps.Sync,
		scheduler: deps.Scheduler,
		engine:    deps.Engine,
		verifier:  deps.Verifier,
		logger:    logger.With("component", "server"),
		startedAt: time.Now(),
	}
	s.runCtx, s.cancelRuns = context.WithCancel(context.Background())

	s.httpServer = &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the HTTP handler with all routes and middleware.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/health", s.handleHealth)
	mux.HandleFunc("/api/accounts", s.handleAccounts)
	mux.HandleFunc("/api/accounts/report", s.handleReport)
	mux.HandleFunc("/api/logs", s.handleLogs)
	mux.Handle("/api/sync", auth.RequireBearer(s.verifier)(http.HandlerFunc(s.handleSync)))
	return withCORS(mux)
}

// setupTCPListener listens on server.http_addr.
func (s *Server) setupTCPListener() (net.Listener, error) {
	s.logger.Info("starting coa-mirror", "http_addr", s.config.Server.HTTPAddr)

	ln, err := net.Listen("tcp", s.config.Server.HTTPAddr)
	if err != nil {
		return nil, fmt.Errorf("listening on HTTP address: %w", err)
	}
	return ln, nil
}

// setupListener creates the listener based on configuration (Tailscale or TCP).
func (s *Server) setupListener(ctx context.Context) (net.Listener, error) {
	if s.config.Tailscale.Enabled {
		if s.config.Server.HTTPAddr != "" {
			s.logger.Warn("server.http_addr is ignored when tailscale is enabled",
				"http_addr", s.config.Server.HTTPAddr,
			)
		}
		return s.setupTailscaleListener(ctx)
	}
	return s.setupTCPListener()
}

// resolveTailscaleStateDir returns the state directory, using default if not configured.
func resolveTailscaleStateDir(configured string) string {
	if configured != "" {
		return configured
	}
	return filepath.Join(config.DataDir(), "tailscale")
}

// resolveTailscaleAuthKey returns the auth key from config or environment.
func resolveTailscaleAuthKey(configured string) (string, error) {
	authKey := configured
	if authKey == "" {
		authKey = os.Getenv("TS_AUTHKEY")
	}
	if authKey == "" {
		return "", errors.New("tailscale auth key required: set tailscale.auth_key in config or TS_AUTHKEY environment variable")
	}
	return authKey, nil
}

// setupTailscaleListener joins the tailnet and listens on port 80 there.
func (s *Server) setupTailscaleListener(ctx context.Context) (net.Listener, error) {
	tsCfg := s.config.Tailscale

	authKey, err := resolveTailscaleAuthKey(tsCfg.AuthKey)
	if err != nil {
		return nil, err
	}
	stateDir := resolveTailscaleStateDir(tsCfg.StateDir)

	s.tsnetServer = &tsnet.Server{
		Hostname:  tsCfg.Hostname,
		Dir:       stateDir,
		Ephemeral: tsCfg.Ephemeral,
		AuthKey:   authKey,
	}

	s.logger.Info("starting tailscale node", "hostname", tsCfg.Hostname, "state_dir", stateDir, "ephemeral", tsCfg.Ephemeral)
	status, err := s.tsnetServer.Up(ctx)
	if err != nil {
		_ = s.tsnetServer.Close()
		s.tsnetServer = nil
		return nil, fmt.Errorf("starting tailscale: %w", err)
	}

	var tsAddr, dnsName string
	if len(status.TailscaleIPs) > 0 {
		tsAddr = status.TailscaleIPs[0].String()
	}
	if status.Self != nil {
		dnsName = status.Self.DNSName
	}
	s.logger.Info("tailscale node ready", "hostname", tsCfg.Hostname, "tailscale_ip", tsAddr, "dns_name", dnsName)

	ln, err := s.tsnetServer.Listen("tcp", ":80")
	if err != nil {
		_ = s.tsnetServer.Close()
		s.tsnetServer = nil
		return nil, fmt.Errorf("listening on tailscale HTTP port: %w", err)
	}
	return ln, nil
}

// Run starts the HTTP server and the sync schedule, and blocks until the
// context is canceled or the server fails. Shutdown runs before returning.
func (s *Server) Run(ctx context.Context) error {
	ln, err := s.setupListener(ctx)
	if err != nil {
		return err
	}
	return s.Serve(ctx, ln)
}

// Serve is Run with a caller-provided listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	if s.scheduler != nil {
		s.scheduler.Start(s.runCtx)
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("HTTP server listening", "addr", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("HTTP server: %w", err)
		}
	}()

	var serverErr error
	select {
	case <-ctx.Done():
		s.logger.Info("context canceled, initiating shutdown")
	case serverErr = <-errCh:
		s.logger.Error("server error", "error", serverErr)
	}

	shutdownErr := s.gracefulShutdown()
	if serverErr != nil {
		return serverErr
	}
	return shutdownErr
}

// gracefulShutdown performs shutdown with a fresh context and timeout.
// The run context is already canceled at this point.
func (s *Server) gracefulShutdown() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.Shutdown(ctx)
}

func appendCloseError(errs []error, label string, err error) []error {
	if err != nil {
		return append(errs, fmt.Errorf("%s: %w", label, err))
	}
	return errs
}

// Shutdown cancels sync runs, waits for them to write their log entries,
// drains HTTP requests and closes the store.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down coa-mirror")

	var errs []error
	s.cancelRuns()
	if s.scheduler != nil {
		s.scheduler.Close()
	}
	if s.engine != nil {
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), runDrainTimeout)
		errs = appendCloseError(errs, "sync drain", s.engine.Close(drainCtx))
		cancel()
	}
	errs = appendCloseError(errs, "HTTP shutdown", s.httpServer.Shutdown(ctx))

	if s.tsnetServer != nil {
		errs = appendCloseError(errs, "tailscale shutdown", s.tsnetServer.Close())
	}
	errs = appendCloseError(errs, "store close", s.store.Close())

	if len(errs) > 0 {
		return fmt.Errorf("shutdown errors: %w", errors.Join(errs...))
	}
	return nil
}
