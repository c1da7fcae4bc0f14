// ABOUTME: PostgreSQL implementation of the Store interface using pgx connection pools
// ABOUTME: Used when database.driver is "postgres"; schema is created on startup

package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"
)

// DriverPostgres selects PostgresStore in configuration.
const DriverPostgres = "postgres"

// PostgresStore implements the Store interface on top of a pgx pool.
type PostgresStore struct {
	pool   *pgxpool.Pool
	logger *slog.Logger
	now    func() time.Time
}

// NewPostgresStore connects to databaseURL, verifies the connection and creates the schema.
func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	logger := slog.Default().With("component", "store")

	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("creating postgres pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("pinging postgres: %w", err)
	}

	s := &PostgresStore{pool: pool, logger: logger, now: time.Now}
	if err := s.createSchema(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("Postgres store initialized")
	return s, nil
}

func (s *PostgresStore) createSchema(ctx context.Context) error {
	statements := []string{
		`CREATE TABLE IF NOT EXISTS account_data (
			code        TEXT PRIMARY KEY,
			total_debit NUMERIC NOT NULL,
			created_at  TIMESTAMPTZ NOT NULL,
			updated_at  TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS sync_logs (
			id           UUID PRIMARY KEY,
			status       TEXT NOT NULL CHECK (status IN ('SUCCESS', 'ERROR')),
			message      TEXT NOT NULL,
			record_count INTEGER NOT NULL DEFAULT 0,
			created_at   TIMESTAMPTZ NOT NULL,
			seq          BIGSERIAL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_sync_logs_created ON sync_logs(created_at DESC)`,
		`CREATE TABLE IF NOT EXISTS leases (
			name       TEXT PRIMARY KEY,
			holder     TEXT NOT NULL,
			expires_at TIMESTAMPTZ NOT NULL
		)`,
	}

	for _, stmt := range statements {
		if _, err := s.pool.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Close closes the pool.
func (s *PostgresStore) Close() error {
	s.logger.Info("closing Postgres store")
	s.pool.Close()
	return nil
}

// FindByCode retrieves an account by its code.
// Returns ErrNotFound if no account has that code.
func (s *PostgresStore) FindByCode(ctx context.Context, code string) (*AccountRecord, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT code, total_debit::text, created_at, updated_at
		FROM account_data
		WHERE code = $1
	`, code)

	rec, err := scanPgAccount(row)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}
	return rec, nil
}

// Upsert creates the account or replaces its debit total and bumps updated_at.
func (s *PostgresStore) Upsert(ctx context.Context, code string, totalDebit decimal.Decimal) (*AccountRecord, error) {
	now := s.now().UTC()

	row := s.pool.QueryRow(ctx, `
		INSERT INTO account_data (code, total_debit, created_at, updated_at)
		VALUES ($1, $2::numeric, $3, $3)
		ON CONFLICT (code) DO UPDATE SET
			total_debit = EXCLUDED.total_debit,
			updated_at = EXCLUDED.updated_at
		RETURNING code, total_debit::text, created_at, updated_at
	`, code, totalDebit.String(), now)

	rec, err := scanPgAccount(row)
	if err != nil {
		return nil, fmt.Errorf("upserting account: %w", err)
	}

	s.logger.Debug("upserted account", "code", code, "total_debit", totalDebit.String())
	return rec, nil
}

// ListAccounts returns every account ordered ascending by code.
// COLLATE "C" keeps byte ordering consistent with the SQLite store.
func (s *PostgresStore) ListAccounts(ctx context.Context) ([]AccountRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT code, total_debit::text, created_at, updated_at
		FROM account_data
		ORDER BY code COLLATE "C" ASC
	`)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	accounts := []AccountRecord{}
	for rows.Next() {
		rec, err := scanPgAccount(rows)
		if err != nil {
			return nil, fmt.Errorf("scanning account row: %w", err)
		}
		accounts = append(accounts, *rec)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating account rows: %w", err)
	}
	return accounts, nil
}

// CountAccounts returns the number of mirrored accounts.
func (s *PostgresStore) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM account_data`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return n, nil
}

// AppendSyncLog inserts a sync log entry. ID and CreatedAt are filled in when empty.
func (s *PostgresStore) AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error {
	prepareLogEntry(entry, s.now)

	_, err := s.pool.Exec(ctx, `
		INSERT INTO sync_logs (id, status, message, record_count, created_at)
		VALUES ($1, $2, $3, $4, $5)
	`, entry.ID, string(entry.Status), entry.Message, entry.RecordCount, entry.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("inserting sync log: %w", err)
	}

	s.logger.Debug("appended sync log", "id", entry.ID, "status", entry.Status)
	return nil
}

// RecentSyncLogs returns the newest entries first.
func (s *PostgresStore) RecentSyncLogs(ctx context.Context, limit int) ([]*SyncLogEntry, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id::text, status, message, record_count, created_at
		FROM sync_logs
		ORDER BY created_at DESC, seq DESC
		LIMIT $1
	`, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying sync logs: %w", err)
	}
	defer rows.Close()

	entries := []*SyncLogEntry{}
	for rows.Next() {
		var entry SyncLogEntry
		var status string
		if err := rows.Scan(&entry.ID, &status, &entry.Message, &entry.RecordCount, &entry.CreatedAt); err != nil {
			return nil, fmt.Errorf("scanning sync log row: %w", err)
		}
		entry.Status = SyncStatus(status)
		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync log rows: %w", err)
	}
	return entries, nil
}

// AcquireLease takes the named lease for holder, or extends it when holder
// already has it. It reports false while another holder's lease is live.
func (s *PostgresStore) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	now := s.now().UTC()

	tag, err := s.pool.Exec(ctx, `
		INSERT INTO leases (name, holder, expires_at)
		VALUES ($1, $2, $3)
		ON CONFLICT (name) DO UPDATE SET
			holder = EXCLUDED.holder,
			expires_at = EXCLUDED.expires_at
		WHERE leases.holder = EXCLUDED.holder OR leases.expires_at <= $4
	`, name, holder, now.Add(ttl), now)
	if err != nil {
		return false, fmt.Errorf("acquiring lease %s: %w", name, err)
	}

	acquired := tag.RowsAffected() == 1
	s.logger.Debug("lease attempt", "name", name, "holder", holder, "acquired", acquired)
	return acquired, nil
}

// ReleaseLease drops the named lease if holder still has it.
func (s *PostgresStore) ReleaseLease(ctx context.Context, name, holder string) error {
	if _, err := s.pool.Exec(ctx, `DELETE FROM leases WHERE name = $1 AND holder = $2`, name, holder); err != nil {
		return fmt.Errorf("releasing lease %s: %w", name, err)
	}
	return nil
}

func scanPgAccount(row pgx.Row) (*AccountRecord, error) {
	var rec AccountRecord
	var debitStr string

	if err := row.Scan(&rec.Code, &debitStr, &rec.CreatedAt, &rec.UpdatedAt); err != nil {
		return nil, err
	}

	var err error
	rec.TotalDebit, err = decimal.NewFromString(debitStr)
	if err != nil {
		return nil, fmt.Errorf("parsing total_debit %q: %w", debitStr, err)
	}
	return &rec, nil
}
