// ABOUTME: Sync engine: fetches the remote account list and reconciles it into the store
// ABOUTME: One run at a time; every run appends exactly one sync log entry

package syncer

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/2389/coa-mirror/internal/remote"
	"github.com/2389/coa-mirror/internal/store"
)

const (
	// maxFetchAttempts allows one retry after a 401 from the data endpoint.
	maxFetchAttempts = 2

	// logWriteTimeout bounds the final log write, which runs even when the
	// run's context has been cancelled.
	logWriteTimeout = 5 * time.Second

	// runLease names the store lease that keeps runs from separate
	// processes sharing one database from overlapping.
	runLease = "sync"

	// defaultLeaseTTL is used when the engine has no run timeout. A lease
	// left by a crashed process frees itself after this long.
	defaultLeaseTTL = 30 * time.Minute
)

// Source returns the string-encoded payload from the data endpoint.
type Source interface {
	FetchScriptResult(ctx context.Context, token string) (string, error)
}

// Tokens hands out and drops the bearer token.
type Tokens interface {
	Acquire(ctx context.Context) (string, error)
	Invalidate()
}

// Result summarizes a successful run.
type Result struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Total   int `json:"total"`
	Skipped int `json:"skipped"`
}

// Message is the human-readable summary stored in the sync log.
func (r Result) Message() string {
	msg := fmt.Sprintf("Created: %d, Updated: %d", r.Created, r.Updated)
	if r.Skipped > 0 {
		msg += fmt.Sprintf(", Skipped: %d", r.Skipped)
	}
	return msg
}

// Options configures an Engine.
type Options struct {
	// Timeout bounds a whole run. Zero leaves only the caller's deadline.
	Timeout time.Duration
	Logger  *slog.Logger
}

// Engine performs reconciliation passes. Runs never overlap: a call made
// while another is in flight, in this process or in another one using the
// same database, returns ErrBusy immediately.
type Engine struct {
	store   store.Store
	source  Source
	tokens  Tokens
	timeout time.Duration
	holder  string
	logger  *slog.Logger

	// slot holds one token while a run is active.
	slot   chan struct{}
	closed atomic.Bool
}

// New creates an Engine.
func New(st store.Store, source Source, tokens Tokens, opts Options) *Engine {
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Engine{
		store:   st,
		source:  source,
		tokens:  tokens,
		timeout: opts.Timeout,
		holder:  uuid.NewString(),
		logger:  logger.With("component", "syncer"),
		slot:    make(chan struct{}, 1),
	}
}

// Close makes later calls to Run return ErrClosed and waits until an
// in-flight run, including its log write, has returned. Cancel the run's
// context first to make the wait short.
func (e *Engine) Close(ctx context.Context) error {
	e.closed.Store(true)
	select {
	case e.slot <- struct{}{}:
		<-e.slot
		return nil
	case <-ctx.Done():
		return fmt.Errorf("waiting for sync run: %w", ctx.Err())
	}
}

func (e *Engine) leaseTTL() time.Duration {
	if e.timeout <= 0 {
		return defaultLeaseTTL
	}
	return e.timeout + 2*logWriteTimeout
}

// Run performs one pass: fetch, validate, create or update changed
// accounts, then append one sync log entry describing the outcome. Writes
// already applied are kept when a later step fails.
func (e *Engine) Run(ctx context.Context) (*Result, error) {
	select {
	case e.slot <- struct{}{}:
	default:
		return nil, ErrBusy
	}
	defer func() { <-e.slot }()

	if e.closed.Load() {
		return nil, ErrClosed
	}

	start := time.Now()
	var result *Result

	acquired, err := e.acquireLease(ctx)
	switch {
	case err != nil:
		err = fmt.Errorf("%w: acquiring run lease: %w", ErrPersistence, err)
	case !acquired:
		e.logger.Info("sync skipped, another process holds the run lease")
		return nil, ErrBusy
	default:
		defer e.releaseLease(ctx)

		runCtx := ctx
		if e.timeout > 0 {
			var cancel context.CancelFunc
			runCtx, cancel = context.WithTimeout(ctx, e.timeout)
			defer cancel()
		}
		result, err = e.run(runCtx)
	}

	entry := &store.SyncLogEntry{Status: store.SyncStatusSuccess}
	if err != nil {
		entry.Status = store.SyncStatusError
		entry.Message = err.Error()
	} else {
		entry.Message = result.Message()
		entry.RecordCount = result.Total
	}

	if logErr := e.appendLog(ctx, entry); logErr != nil {
		logErr = fmt.Errorf("%w: writing sync log: %w", ErrPersistence, logErr)
		if err != nil {
			err = errors.Join(err, logErr)
		} else {
			err = logErr
		}
	}

	if err != nil {
		e.logger.Error("sync failed", "error", err, "duration", time.Since(start))
		return nil, err
	}

	e.logger.Info("sync completed",
		"created", result.Created,
		"updated", result.Updated,
		"total", result.Total,
		"skipped", result.Skipped,
		"duration", time.Since(start),
	)
	return result, nil
}

func (e *Engine) run(ctx context.Context) (*Result, error) {
	payload, err := e.fetch(ctx)
	if err != nil {
		return nil, err
	}

	raw, err := decodePayload(payload)
	if err != nil {
		return nil, err
	}

	return e.reconcile(ctx, raw)
}

// fetch gets the payload, retrying once with a fresh token on a 401.
func (e *Engine) fetch(ctx context.Context) (string, error) {
	for attempt := 1; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return "", err
		}

		token, err := e.tokens.Acquire(ctx)
		if err != nil {
			return "", err
		}

		payload, err := e.source.FetchScriptResult(ctx, token)
		if err == nil {
			return payload, nil
		}
		if !remote.IsUnauthorized(err) {
			return "", err
		}

		e.tokens.Invalidate()
		if attempt >= maxFetchAttempts {
			return "", fmt.Errorf("%w: data endpoint rejected a fresh token: %w", ErrAuth, err)
		}
		e.logger.Warn("token rejected, retrying with a new one", "attempt", attempt)
	}
}

// reconcile applies valid items to the store.
func (e *Engine) reconcile(ctx context.Context, raw []any) (*Result, error) {
	result := &Result{Total: len(raw)}

	for i, r := range raw {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		it, err := parseItem(r)
		if err != nil {
			result.Skipped++
			e.logger.Warn("skipping invalid record", "index", i, "error", err)
			continue
		}

		existing, err := e.store.FindByCode(ctx, it.code)
		switch {
		case errors.Is(err, store.ErrNotFound):
			if _, err := e.store.Upsert(ctx, it.code, it.debit); err != nil {
				return nil, fmt.Errorf("%w: creating %s: %w", ErrPersistence, it.code, err)
			}
			result.Created++
			e.logger.Debug("account created", "code", it.code, "total_debit", it.debit.String())

		case err != nil:
			return nil, fmt.Errorf("%w: looking up %s: %w", ErrPersistence, it.code, err)

		case existing.TotalDebit.Equal(it.debit):
			// unchanged

		default:
			if _, err := e.store.Upsert(ctx, it.code, it.debit); err != nil {
				return nil, fmt.Errorf("%w: updating %s: %w", ErrPersistence, it.code, err)
			}
			result.Updated++
			e.logger.Debug("account updated",
				"code", it.code,
				"from", existing.TotalDebit.String(),
				"to", it.debit.String(),
			)
		}
	}

	return result, nil
}

// acquireLease and releaseLease ignore cancellation of ctx so that a
// cancelled run still records its outcome under the lease.
func (e *Engine) acquireLease(ctx context.Context) (bool, error) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()
	return e.store.AcquireLease(ctx, runLease, e.holder, e.leaseTTL())
}

func (e *Engine) releaseLease(ctx context.Context) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()
	if err := e.store.ReleaseLease(ctx, runLease, e.holder); err != nil {
		e.logger.Warn("failed to release run lease", "error", err, "ttl", e.leaseTTL())
	}
}

func (e *Engine) appendLog(ctx context.Context, entry *store.SyncLogEntry) error {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), logWriteTimeout)
	defer cancel()
	return e.store.AppendSyncLog(ctx, entry)
}
