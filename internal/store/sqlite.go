// ABOUTME: SQLite implementation of the Store interface using database/sql
// ABOUTME: Supports the pure-Go modernc driver ("sqlite") and the cgo mattn driver ("sqlite3")

package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"
)

// Driver names accepted by NewSQLiteStoreWithDriver.
const (
	DriverModernc = "sqlite"
	DriverMattn   = "sqlite3"
)

// timeFormat is fixed-width so that lexical ORDER BY matches chronological order.
const timeFormat = "2006-01-02T15:04:05.000000000Z07:00"

// SQLiteStore implements the Store interface using SQLite
type SQLiteStore struct {
	db     *sql.DB
	logger *slog.Logger
	now    func() time.Time
}

// NewSQLiteStore creates a new SQLite store at the given path using the pure-Go driver.
// The schema is automatically created if it doesn't exist.
// Parent directories are created if needed.
func NewSQLiteStore(path string) (*SQLiteStore, error) {
	return NewSQLiteStoreWithDriver(DriverModernc, path)
}

// NewSQLiteStoreWithDriver opens the store with an explicit database/sql driver name.
func NewSQLiteStoreWithDriver(driver, path string) (*SQLiteStore, error) {
	logger := slog.Default().With("component", "store")

	if driver != DriverModernc && driver != DriverMattn {
		return nil, fmt.Errorf("unsupported sqlite driver %q", driver)
	}

	if path != ":memory:" {
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0755); err != nil {
			return nil, fmt.Errorf("creating database directory: %w", err)
		}
	}

	db, err := sql.Open(driver, path)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}

	// An in-memory database exists per connection.
	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	}

	// Enable WAL mode for better concurrent performance
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("enabling WAL mode: %w", err)
	}

	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("setting busy timeout: %w", err)
	}

	s := &SQLiteStore{
		db:     db,
		logger: logger,
		now:    time.Now,
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("creating schema: %w", err)
	}

	logger.Info("SQLite store initialized", "path", path, "driver", driver)
	return s, nil
}

// createSchema creates the database tables if they don't exist
func (s *SQLiteStore) createSchema() error {
	schema := `
		CREATE TABLE IF NOT EXISTS account_data (
			code        TEXT PRIMARY KEY,
			total_debit TEXT NOT NULL,
			created_at  TEXT NOT NULL,
			updated_at  TEXT NOT NULL
		);

		CREATE TABLE IF NOT EXISTS sync_logs (
			id           TEXT PRIMARY KEY,
			status       TEXT NOT NULL,
			message      TEXT NOT NULL,
			record_count INTEGER NOT NULL DEFAULT 0,
			created_at   TEXT NOT NULL,

			CHECK (status IN ('SUCCESS', 'ERROR'))
		);

		CREATE INDEX IF NOT EXISTS idx_sync_logs_created ON sync_logs(created_at DESC);

		CREATE TABLE IF NOT EXISTS leases (
			name       TEXT PRIMARY KEY,
			holder     TEXT NOT NULL,
			expires_at TEXT NOT NULL
		);
	`

	_, err := s.db.Exec(schema)
	return err
}

// Close closes the database connection
func (s *SQLiteStore) Close() error {
	s.logger.Info("closing SQLite store")
	return s.db.Close()
}

// FindByCode retrieves an account by its code.
// Returns ErrNotFound if no account has that code.
func (s *SQLiteStore) FindByCode(ctx context.Context, code string) (*AccountRecord, error) {
	query := `
		SELECT code, total_debit, created_at, updated_at
		FROM account_data
		WHERE code = ?
	`

	rec, err := scanAccount(s.db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("querying account: %w", err)
	}
	return rec, nil
}

// Upsert creates the account or replaces its debit total and bumps updated_at.
func (s *SQLiteStore) Upsert(ctx context.Context, code string, totalDebit decimal.Decimal) (*AccountRecord, error) {
	now := s.now().UTC().Format(timeFormat)

	query := `
		INSERT INTO account_data (code, total_debit, created_at, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(code) DO UPDATE SET
			total_debit = excluded.total_debit,
			updated_at = excluded.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, code, totalDebit.String(), now, now); err != nil {
		return nil, fmt.Errorf("upserting account: %w", err)
	}

	s.logger.Debug("upserted account", "code", code, "total_debit", totalDebit.String())
	return s.FindByCode(ctx, code)
}

// ListAccounts returns every account ordered ascending by code.
func (s *SQLiteStore) ListAccounts(ctx context.Context) ([]AccountRecord, error) {
	query := `
		SELECT code, total_debit, created_at, updated_at
		FROM account_data
		ORDER BY code ASC
	`

	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("querying accounts: %w", err)
	}
	defer rows.Close()

	accounts := []AccountRecord{}
	for rows.Next() {
		rec, err := scanAccount(rows)
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
func (s *SQLiteStore) CountAccounts(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM account_data`).Scan(&n); err != nil {
		return 0, fmt.Errorf("counting accounts: %w", err)
	}
	return n, nil
}

// AppendSyncLog inserts a sync log entry. ID and CreatedAt are filled in when empty.
func (s *SQLiteStore) AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error {
	prepareLogEntry(entry, s.now)

	query := `
		INSERT INTO sync_logs (id, status, message, record_count, created_at)
		VALUES (?, ?, ?, ?, ?)
	`

	_, err := s.db.ExecContext(ctx, query,
		entry.ID,
		string(entry.Status),
		entry.Message,
		entry.RecordCount,
		entry.CreatedAt.UTC().Format(timeFormat),
	)
	if err != nil {
		return fmt.Errorf("inserting sync log: %w", err)
	}

	s.logger.Debug("appended sync log", "id", entry.ID, "status", entry.Status)
	return nil
}

// RecentSyncLogs returns the newest entries first.
// If limit is 0 or negative, DefaultLogLimit is used.
func (s *SQLiteStore) RecentSyncLogs(ctx context.Context, limit int) ([]*SyncLogEntry, error) {
	query := `
		SELECT id, status, message, record_count, created_at
		FROM sync_logs
		ORDER BY created_at DESC, rowid DESC
		LIMIT ?
	`

	rows, err := s.db.QueryContext(ctx, query, clampLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("querying sync logs: %w", err)
	}
	defer rows.Close()

	entries := []*SyncLogEntry{}
	for rows.Next() {
		var entry SyncLogEntry
		var status, createdAtStr string

		if err := rows.Scan(&entry.ID, &status, &entry.Message, &entry.RecordCount, &createdAtStr); err != nil {
			return nil, fmt.Errorf("scanning sync log row: %w", err)
		}

		entry.Status = SyncStatus(status)
		entry.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
		if err != nil {
			return nil, fmt.Errorf("parsing created_at: %w", err)
		}

		entries = append(entries, &entry)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating sync log rows: %w", err)
	}

	return entries, nil
}

// AcquireLease takes the named lease for holder, or extends it when holder
// already has it. It reports false while another holder's lease is live.
func (s *SQLiteStore) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	now := s.now().UTC()

	query := `
		INSERT INTO leases (name, holder, expires_at)
		VALUES (?, ?, ?)
		ON CONFLICT(name) DO UPDATE SET
			holder = excluded.holder,
			expires_at = excluded.expires_at
		WHERE leases.holder = excluded.holder OR leases.expires_at <= ?
	`

	res, err := s.db.ExecContext(ctx, query, name, holder, now.Add(ttl).Format(timeFormat), now.Format(timeFormat))
	if err != nil {
		return false, fmt.Errorf("acquiring lease %s: %w", name, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquiring lease %s: %w", name, err)
	}

	s.logger.Debug("lease attempt", "name", name, "holder", holder, "acquired", n == 1)
	return n == 1, nil
}

// ReleaseLease drops the named lease if holder still has it.
func (s *SQLiteStore) ReleaseLease(ctx context.Context, name, holder string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE name = ? AND holder = ?`, name, holder); err != nil {
		return fmt.Errorf("releasing lease %s: %w", name, err)
	}
	return nil
}

// rowScanner is satisfied by *sql.Row and *sql.Rows.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAccount(row rowScanner) (*AccountRecord, error) {
	var rec AccountRecord
	var debitStr, createdAtStr, updatedAtStr string

	if err := row.Scan(&rec.Code, &debitStr, &createdAtStr, &updatedAtStr); err != nil {
		return nil, err
	}

	var err error
	rec.TotalDebit, err = decimal.NewFromString(debitStr)
	if err != nil {
		return nil, fmt.Errorf("parsing total_debit %q: %w", debitStr, err)
	}

	rec.CreatedAt, err = time.Parse(timeFormat, createdAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing created_at: %w", err)
	}

	rec.UpdatedAt, err = time.Parse(timeFormat, updatedAtStr)
	if err != nil {
		return nil, fmt.Errorf("parsing updated_at: %w", err)
	}

	return &rec, nil
}
