// Package telemetry reconciles live session state reported by the
// external runtime's status command onto persisted AgentSession rows,
// Reconciliation is non-destructive: canonical
// agentId/sessionKey fields are overwritten each poll (the runtime is
// authoritative for those), everything else is upserted from whatever
// the runtime reports.
package telemetry

import (
	"context"
	"encoding/json"
	"time"
)

// State is an AgentSession's derived liveness state
type State string

const (
	StateActive State = "active"
	StateIdle State = "idle"
	StateError State = "error"
)

var stateRank = map[State]int{
	StateIdle: 0,
	StateActive: 1,
	StateError: 2,
}

// higherPriority returns true if a outranks b under error > active > idle
// ( overlay priority).
func higherPriority(a, b State) bool {
	return stateRank[a] > stateRank[b]
}

// AgentSession is the persisted row described in
type AgentSession struct {
	SessionID string
	SessionKey string
	AgentID string
	Kind string
	Model string

	State State
	UpdatedAtMs int64
	LastSeenAt time.Time
	AbortedLastRun bool
	PercentUsed *float64

	OperationID string
	WorkOrderID string

	RawJSON json.RawMessage
}

// Store is the persistence boundary for AgentSession rows.
type Store interface {
	Upsert(ctx context.Context, s AgentSession) error
	ListByAgent(ctx context.Context, agentID string) ([]AgentSession, error)
	Get(ctx context.Context, sessionID string) (*AgentSession, error)
}

// DeriveState applies rule: abortedLastRun ⇒ error; else
// age < 5min ⇒ active; else idle.
func DeriveState(abortedLastRun bool, age time.Duration) State {
	if abortedLastRun {
		return StateError
	}
	if age < 5*time.Minute {
		return StateActive
	}
	return StateIdle
}
