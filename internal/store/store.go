// ABOUTME: Store interface and data types for coa-mirror persistence
// ABOUTME: Defines AccountRecord, SyncLogEntry and the Store contract used by sync and read paths

package store

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// ErrNotFound is returned when a requested entity does not exist
var ErrNotFound = errors.New("not found")

// SyncStatus is the outcome recorded for one sync attempt.
type SyncStatus string

const (
	SyncStatusSuccess SyncStatus = "SUCCESS"
	SyncStatusError   SyncStatus = "ERROR"
)

// AccountRecord is a mirrored chart-of-accounts row keyed by its dot-segmented code.
type AccountRecord struct {
	Code       string
	TotalDebit decimal.Decimal
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// SyncLogEntry records the outcome of a single sync attempt. Entries are append-only.
type SyncLogEntry struct {
	ID          string
	Status      SyncStatus
	Message     string
	RecordCount int // items received; 0 when the attempt failed
	CreatedAt   time.Time
}

// Store defines the persistence contract consumed by the sync engine and the read API.
type Store interface {
	// Accounts
	FindByCode(ctx context.Context, code string) (*AccountRecord, error)
	Upsert(ctx context.Context, code string, totalDebit decimal.Decimal) (*AccountRecord, error)
	ListAccounts(ctx context.Context) ([]AccountRecord, error)
	CountAccounts(ctx context.Context) (int, error)

	// Sync log
	AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error
	RecentSyncLogs(ctx context.Context, limit int) ([]*SyncLogEntry, error)

	// Leases. A lease is held by one holder until it is released or its
	// ttl passes, and is visible to every process sharing the database.
	AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error)
	ReleaseLease(ctx context.Context, name, holder string) error

	// Close releases any resources held by the store
	Close() error
}

// DefaultLogLimit is used when RecentSyncLogs is called with a non-positive limit.
const DefaultLogLimit = 50

// maxLogLimit caps RecentSyncLogs regardless of the requested limit.
const maxLogLimit = 1000

func clampLimit(limit int) int {
	if limit <= 0 {
		return DefaultLogLimit
	}
	if limit > maxLogLimit {
		return maxLogLimit
	}
	return limit
}

// prepareLogEntry fills the generated fields of a log entry before it is written.
func prepareLogEntry(entry *SyncLogEntry, now func() time.Time) {
	if entry.ID == "" {
		entry.ID = uuid.New().String()
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = now().UTC()
	}
}
