// Package errs defines the error taxonomy shared by every layer of the
// lake: input validation, transient connector failures, on-disk integrity
// problems, environment failures, and task-lifecycle conditions. Callers
// use errors.Is against the sentinels below; the REST adapter maps them to
// HTTP status codes.
package errs

import (
	"errors"
	"fmt"
)

// Input errors.
var (
	ErrInvalidIdentity = errors.New("invalid identity")
	ErrMissingStart    = errors.New("missing start timestamp")
	ErrSchemaMismatch  = errors.New("schema mismatch")
	ErrUnknownExchange = errors.New("unknown exchange")
	ErrUnknownSymbol   = errors.New("unknown symbol")
)

// Transient errors.
var (
	ErrRateLimited    = errors.New("rate limited")
	ErrNetworkTimeout = errors.New("network timeout")
	ErrBanned         = errors.New("banned")
)

// Integrity errors.
var (
	ErrDataIntegrity    = errors.New("data integrity check failed")
	ErrCorruptExisting  = errors.New("existing partition is corrupt")
	ErrChecksumMismatch = errors.New("checksum mismatch")
)

// Environment errors.
var (
	ErrDiskFull         = errors.New("disk full")
	ErrPermissionDenied = errors.New("permission denied")
	ErrManifestLocked   = errors.New("manifest locked")
)

// Lifecycle errors.
var (
	ErrAlreadyRunning = errors.New("already running")
	ErrCancelled      = errors.New("cancelled")
	ErrNotFound       = errors.New("not found")
)

// Wrap attaches context to a sentinel while preserving errors.Is matching.
func Wrap(sentinel error, format string, args ...any) error {
	return fmt.Errorf("%s: %w", fmt.Sprintf(format, args...), sentinel)
}
