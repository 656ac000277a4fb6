package dispatch

import "errors"

// Sentinel errors for the dispatch package.
var (
	// ErrDispatchModeFailed means both run and agent_local (when tried)
	// failed to produce a usable result.
	ErrDispatchModeFailed = errors.New("dispatch: mode failed")

	// ErrSessionIDMissing means the runtime's stdout JSON never surfaced a
	// session id at any of the candidate paths — this is fatal for the
	// spawn
	ErrSessionIDMissing = errors.New("dispatch: session id missing from runtime output")

	// ErrExternalCommandTimeout means the runtime process did not finish
	// within the caller's timeoutSeconds budget.
	ErrExternalCommandTimeout = errors.New("dispatch: external command timed out")
)
