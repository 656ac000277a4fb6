package actionable

import "errors"

// Sentinel errors for the actionable-intake package.
var (
	// ErrWorkOrderCreateFailed means the event was inserted but its
	// WorkOrder could not be created or the fingerprint could not be
	// patched with the resulting workOrderId. The event row still exists;
	// callers should retry the patch rather than re-ingest (re-ingesting
	// the same payload only dedupes).
	ErrWorkOrderCreateFailed = errors.New("actionable: work order creation failed")

	// ErrPollLimitInvalid means Poll was called with maxItems <= 0 or
	// above the ceiling of 100.
	ErrPollLimitInvalid = errors.New("actionable: maxItems out of range")
)
