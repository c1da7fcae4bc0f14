// ABOUTME: Mock Store implementation for testing
// ABOUTME: Allows tests to run without SQLite and to inject persistence failures

package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// MockStore is an in-memory Store implementation for testing.
// The Fail* fields make the matching operation return that error.
type MockStore struct {
	mu       sync.RWMutex
	accounts map[string]*AccountRecord // keyed by code
	logs     []*SyncLogEntry           // append order
	leases   map[string]mockLease
	now      func() time.Time

	FailFind   error
	FailUpsert error
	FailList   error
	FailAppend error
	FailLease  error

	upserts int
}

// NewMockStore creates a new MockStore.
func NewMockStore() *MockStore {
	return &MockStore{
		accounts: make(map[string]*AccountRecord),
		leases:   make(map[string]mockLease),
		now:      time.Now,
	}
}

// FindByCode retrieves an account by code.
func (m *MockStore) FindByCode(ctx context.Context, code string) (*AccountRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailFind != nil {
		return nil, m.FailFind
	}

	rec, ok := m.accounts[code]
	if !ok {
		return nil, ErrNotFound
	}

	// Return a copy
	result := *rec
	return &result, nil
}

// Upsert creates or updates an account.
func (m *MockStore) Upsert(ctx context.Context, code string, totalDebit decimal.Decimal) (*AccountRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailUpsert != nil {
		return nil, m.FailUpsert
	}

	now := m.now().UTC()
	rec, ok := m.accounts[code]
	if !ok {
		rec = &AccountRecord{Code: code, CreatedAt: now}
		m.accounts[code] = rec
	}
	rec.TotalDebit = totalDebit
	rec.UpdatedAt = now
	m.upserts++

	result := *rec
	return &result, nil
}

// ListAccounts returns copies of all accounts ordered ascending by code.
func (m *MockStore) ListAccounts(ctx context.Context) ([]AccountRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.FailList != nil {
		return nil, m.FailList
	}

	result := make([]AccountRecord, 0, len(m.accounts))
	for _, rec := range m.accounts {
		result = append(result, *rec)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].Code < result[j].Code
	})
	return result, nil
}

// CountAccounts returns the number of stored accounts.
func (m *MockStore) CountAccounts(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.accounts), nil
}

// AppendSyncLog stores a copy of the entry.
func (m *MockStore) AppendSyncLog(ctx context.Context, entry *SyncLogEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailAppend != nil {
		return m.FailAppend
	}

	prepareLogEntry(entry, m.now)
	e := *entry
	m.logs = append(m.logs, &e)
	return nil
}

// RecentSyncLogs returns the newest entries first.
func (m *MockStore) RecentSyncLogs(ctx context.Context, limit int) ([]*SyncLogEntry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	limit = clampLimit(limit)
	result := make([]*SyncLogEntry, 0, limit)
	for i := len(m.logs) - 1; i >= 0 && len(result) < limit; i-- {
		e := *m.logs[i]
		result = append(result, &e)
	}
	return result, nil
}

type mockLease struct {
	holder    string
	expiresAt time.Time
}

// AcquireLease grants the lease when it is free, expired or already held by holder.
func (m *MockStore) AcquireLease(ctx context.Context, name, holder string, ttl time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.FailLease != nil {
		return false, m.FailLease
	}

	now := m.now()
	if l, ok := m.leases[name]; ok && l.holder != holder && now.Before(l.expiresAt) {
		return false, nil
	}
	m.leases[name] = mockLease{holder: holder, expiresAt: now.Add(ttl)}
	return true, nil
}

// ReleaseLease drops the lease if holder has it.
func (m *MockStore) ReleaseLease(ctx context.Context, name, holder string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if l, ok := m.leases[name]; ok && l.holder == holder {
		delete(m.leases, name)
	}
	return nil
}

// Close is a no-op.
func (m *MockStore) Close() error {
	return nil
}

// LogCount returns how many sync log entries have been appended.
func (m *MockStore) LogCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.logs)
}

// UpsertCount returns how many successful Upsert calls were made.
func (m *MockStore) UpsertCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.upserts
}
