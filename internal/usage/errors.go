package usage

import "errors"

// Sentinel errors for the usage engine. A skipped line is signaled by
// ParseLine's boolean return, not an error, since it is routine rather
// than exceptional.
var (
	// ErrLeaseUnavailable names the "usage.sync lease held elsewhere"
	// condition. SyncUsage does not return it: an unavailable lease is
	// reported as LockAcquired=false with a nil error.
	ErrLeaseUnavailable = errors.New("usage: sync lease held by another writer")

	// ErrFileUnreadable marks a session file that could not be stat'd or
	// opened; the file is still counted as scanned ( step 1).
	ErrFileUnreadable = errors.New("usage: session file unreadable")

	// ErrValidation marks a caller input (Explore Query filters, Parity
	// Scope Resolver bounds) that failed validation before reaching the
	// query engine.
	ErrValidation = errors.New("usage: validation error")
)
