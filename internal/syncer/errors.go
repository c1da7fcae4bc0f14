// ABOUTME: Error kinds surfaced by a sync run
// ABOUTME: Remote kinds are re-exported so callers only need this package

package syncer

import (
	"errors"

	"github.com/2389/coa-mirror/internal/remote"
)

var (
	// ErrAuth means the credential could not be obtained or was rejected twice.
	ErrAuth = remote.ErrAuth

	// ErrNetwork means a remote endpoint could not be reached or answered
	// with an unexpected status.
	ErrNetwork = remote.ErrNetwork

	// ErrDataFormat means the payload was not the expected string-encoded array.
	ErrDataFormat = remote.ErrDataFormat

	// ErrValidation marks a single unusable item. It never aborts a run.
	ErrValidation = errors.New("invalid record")

	// ErrPersistence means the store failed to read or write.
	ErrPersistence = errors.New("persistence failure")

	// ErrBusy is returned when a run is already in progress.
	ErrBusy = errors.New("sync already in progress")

	// ErrClosed is returned by Run after Close.
	ErrClosed = errors.New("sync engine closed")
)
