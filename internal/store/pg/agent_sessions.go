package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clawcontrol/clawcontrol/internal/telemetry"
)

// PGAgentSessionStore implements telemetry.Store backed by Postgres,
// grounded on the same upsert-then-read shape as PGUsageStore's
// GetAggregate/UpsertAggregate (not on sessions.go's chat-message cache —
// AgentSession rows hold no message history to cache).
type PGAgentSessionStore struct {
	db *sql.DB
}

// NewPGAgentSessionStore builds a PGAgentSessionStore.
func NewPGAgentSessionStore(db *sql.DB) *PGAgentSessionStore {
	return &PGAgentSessionStore{db: db}
}

// Upsert writes an AgentSession row, overwriting every column on conflict
// (the runtime's latest status report is authoritative).
func (s *PGAgentSessionStore) Upsert(ctx context.Context, a telemetry.AgentSession) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO agent_sessions
			(session_id, session_key, agent_id, kind, model, state,
			 updated_at_ms, last_seen_at, aborted_last_run, percent_used,
			 operation_id, work_order_id, raw_json)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)
		ON CONFLICT (session_id) DO UPDATE SET
			session_key = EXCLUDED.session_key,
			agent_id = EXCLUDED.agent_id,
			kind = EXCLUDED.kind,
			model = EXCLUDED.model,
			state = EXCLUDED.state,
			updated_at_ms = EXCLUDED.updated_at_ms,
			last_seen_at = EXCLUDED.last_seen_at,
			aborted_last_run = EXCLUDED.aborted_last_run,
			percent_used = EXCLUDED.percent_used,
			operation_id = EXCLUDED.operation_id,
			work_order_id = EXCLUDED.work_order_id,
			raw_json = EXCLUDED.raw_json`,
		a.SessionID, a.SessionKey, a.AgentID, a.Kind, a.Model, string(a.State),
		a.UpdatedAtMs, a.LastSeenAt, a.AbortedLastRun, a.PercentUsed,
		nilAgentStr(a.OperationID), nilAgentStr(a.WorkOrderID), []byte(a.RawJSON))
	if err != nil {
		return fmt.Errorf("telemetry: upsert agent session %s: %w", a.SessionID, err)
	}
	return nil
}

// Get reads one AgentSession row, or (nil, nil) if it does not exist.
func (s *PGAgentSessionStore) Get(ctx context.Context, sessionID string) (*telemetry.AgentSession, error) {
	a, err := scanAgentSessionRow(s.db.QueryRowContext(ctx, agentSessionSelectCols+` FROM agent_sessions WHERE session_id = $1`, sessionID))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("telemetry: get agent session %s: %w", sessionID, err)
	}
	return a, nil
}

// ListByAgent returns every AgentSession row for agentID, most recently
// seen first.
func (s *PGAgentSessionStore) ListByAgent(ctx context.Context, agentID string) ([]telemetry.AgentSession, error) {
	rows, err := s.db.QueryContext(ctx, agentSessionSelectCols+` FROM agent_sessions WHERE agent_id = $1 ORDER BY last_seen_at DESC`, agentID)
	if err != nil {
		return nil, fmt.Errorf("telemetry: list agent sessions for %s: %w", agentID, err)
	}
	defer rows.Close()

	var out []telemetry.AgentSession
	for rows.Next() {
		a, err := scanAgentSessionRow(rows)
		if err != nil {
			return nil, fmt.Errorf("telemetry: scan agent session row: %w", err)
		}
		out = append(out, *a)
	}
	return out, rows.Err()
}

const agentSessionSelectCols = `
	SELECT session_id, session_key, agent_id, kind, model, state,
	 updated_at_ms, last_seen_at, aborted_last_run, percent_used,
	 operation_id, work_order_id, raw_json`

// rowScanner abstracts *sql.Row and *sql.Rows, both of which expose Scan.
type rowScanner interface {
	Scan(dest...any) error
}

func scanAgentSessionRow(row rowScanner) (*telemetry.AgentSession, error) {
	var a telemetry.AgentSession
	var state string
	var operationID, workOrderID sql.NullString
	var rawJSON []byte
	if err := row.Scan(&a.SessionID, &a.SessionKey, &a.AgentID, &a.Kind, &a.Model, &state,
		&a.UpdatedAtMs, &a.LastSeenAt, &a.AbortedLastRun, &a.PercentUsed,
		&operationID, &workOrderID, &rawJSON); err != nil {
		return nil, err
	}
	a.State = telemetry.State(state)
	a.OperationID = operationID.String
	a.WorkOrderID = workOrderID.String
	a.RawJSON = rawJSON
	return &a, nil
}

// nilAgentStr maps an empty string to SQL NULL so optional linkage
// columns (operation_id, work_order_id) stay unset rather than "".
func nilAgentStr(s string) any {
	if s == "" {
		return nil
	}
	return s
}
