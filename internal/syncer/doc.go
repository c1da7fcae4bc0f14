// Package syncer mirrors the remote chart of accounts into the local store.
//
// # Run
//
// Engine.Run performs one reconciliation pass:
//
//  1. Acquire a bearer token and fetch the string-encoded payload. A 401 from
//     the data endpoint invalidates the token and retries exactly once; a
//     second 401 is ErrAuth.
//  2. Decode the payload, which must be a JSON array (ErrDataFormat otherwise).
//  3. Validate each item. Items without a usable hesap_kodu or borc are
//     skipped and counted, never fatal.
//  4. Create unknown codes, update codes whose debit changed, and leave equal
//     ones untouched, so a second run over the same payload reports zero
//     creates and updates.
//  5. Append exactly one SyncLogEntry, SUCCESS or ERROR.
//
// # Concurrency
//
// Runs are exclusive. A call made while a run is in flight fails fast with
// ErrBusy and writes no log entry. Exclusion spans processes: each run holds
// the "sync" lease in the store, so a CLI sync next to a running server is
// refused the same way. The cached token is only touched inside a run, so it
// needs no other coordination.
//
// Engine.Close refuses new runs with ErrClosed and waits for the active one
// to write its log entry, so the store can be closed safely afterwards.
//
// # Cancellation
//
// The run context is checked before each network call and between records.
// Writes already committed stay committed; the log entry is still written
// using a detached context.
package syncer
