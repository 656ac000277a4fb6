package actionable

import (
	"context"
	"fmt"
)

// maxPollItems bounds Poll: a maxItems above 100 is rejected with
// ErrPollLimitInvalid, so one call never returns more than 100 events.
const maxPollItems = 100

// Poll implements Poll operation: select up to maxItems
// pending (relayedAt == null) events matching scope, mark exactly those
// relayed, and return them. The whole select-then-mark step runs inside
// one transaction in the Store implementation, so a second Poll call
// racing the first never double-claims a row; two back-to-back calls with
// nothing new arriving in between return items then an empty slice.
func (in *Intake) Poll(ctx context.Context, scope PollScope, maxItems int) ([]Event, error) {
	if maxItems <= 0 || maxItems > maxPollItems {
		return nil, fmt.Errorf("%w: %d", ErrPollLimitInvalid, maxItems)
	}
	events, err := in.Store.PollUnrelayed(ctx, scope, maxItems)
	if err != nil {
		return nil, fmt.Errorf("actionable: poll: %w", err)
	}
	return events, nil
}
