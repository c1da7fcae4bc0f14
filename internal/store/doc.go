// Package store provides persistent storage for mirrored accounts and sync logs.
//
// # Architecture
//
// The Store interface is the only contract the sync engine and the HTTP read
// path depend on. Three implementations exist:
//
//   - SQLiteStore: default; pure-Go modernc driver ("sqlite") or the cgo mattn
//     driver ("sqlite3")
//   - PostgresStore: pgx connection pool, selected with database.driver=postgres
//   - MockStore: in-memory, with failure injection for tests
//
// # Data Models
//
//   - AccountRecord: one chart-of-accounts row keyed by its dot-segmented code,
//     holding the debit total as a shopspring decimal
//   - SyncLogEntry: append-only outcome of a single sync attempt
//
// # Ordering
//
// ListAccounts returns accounts ascending by code using byte ordering. The
// hierarchy builder relies on this. RecentSyncLogs returns newest first.
//
// # SQLite Configuration
//
//	PRAGMA journal_mode=WAL;
//	PRAGMA busy_timeout=5000;
//
// Timestamps are stored as fixed-width UTC strings so lexical ordering matches
// chronological ordering. Debit totals are stored as decimal strings to avoid
// float rounding.
//
// # Testing
//
// Use NewMockStore() for unit tests and NewSQLiteStore(":memory:") for
// integration tests with real SQLite. PostgresStore tests run only when
// COA_MIRROR_TEST_POSTGRES_URL is set.
package store
