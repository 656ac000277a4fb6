package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/clawcontrol/clawcontrol/internal/actionable"
)

// PGActionableStore implements actionable.Store against the
// actionable_events/work_orders tables: one *sql.DB, no in-process cache
// (actionable events are low-volume and always read fresh).
type PGActionableStore struct {
	db *sql.DB
}

func NewPGActionableStore(db *sql.DB) *PGActionableStore {
	return &PGActionableStore{db: db}
}

func (s *PGActionableStore) InsertEvent(ctx context.Context, e actionable.Event) (*actionable.Event, bool, error) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO actionable_events
			(fingerprint, source, job_id, run_at_ms, team_id, ops_runtime_agent_id,
			 relay_key, severity, decision_required, summary, recommendation,
			 evidence, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		e.Fingerprint, e.Source, e.JobID, e.RunAtMs, e.TeamID, e.OpsRuntimeAgentID,
		e.RelayKey, e.Severity, e.DecisionRequired, e.Summary, e.Recommendation,
		e.Evidence, e.CreatedAt)
	if err == nil {
		return nil, true, nil
	}
	if !isUniqueViolation(err) {
		return nil, false, fmt.Errorf("insert actionable event: %w", err)
	}

	existing, getErr := s.getByFingerprint(ctx, e.Fingerprint)
	if getErr != nil {
		return nil, false, fmt.Errorf("load existing event after dedupe: %w", getErr)
	}
	return existing, false, nil
}

func (s *PGActionableStore) getByFingerprint(ctx context.Context, fingerprint string) (*actionable.Event, error) {
	var e actionable.Event
	var teamID, opsAgent, relayKey, recommendation sql.NullString
	var workOrderID sql.NullString
	var relayedAt sql.NullTime
	err := s.db.QueryRowContext(ctx, `
		SELECT fingerprint, source, job_id, run_at_ms, team_id, ops_runtime_agent_id,
		 relay_key, severity, decision_required, summary, recommendation,
		 evidence, work_order_id, relayed_at, created_at
		FROM actionable_events WHERE fingerprint = $1`, fingerprint).Scan(&e.Fingerprint, &e.Source, &e.JobID, &e.RunAtMs, &teamID, &opsAgent,
		&relayKey, &e.Severity, &e.DecisionRequired, &e.Summary, &recommendation,
		&e.Evidence, &workOrderID, &relayedAt, &e.CreatedAt)
	if err != nil {
		return nil, err
	}
	e.TeamID = teamID.String
	e.OpsRuntimeAgentID = opsAgent.String
	e.RelayKey = relayKey.String
	e.Recommendation = recommendation.String
	e.WorkOrderID = workOrderID.String
	if relayedAt.Valid {
		t := relayedAt.Time
		e.RelayedAt = &t
	}
	return &e, nil
}

func (s *PGActionableStore) SetWorkOrderID(ctx context.Context, fingerprint, workOrderID string) error {
	_, err := s.db.ExecContext(ctx,
		`UPDATE actionable_events SET work_order_id = $1 WHERE fingerprint = $2`,
		workOrderID, fingerprint)
	if err != nil {
		return fmt.Errorf("set work order id: %w", err)
	}
	return nil
}

// CreateWorkOrder persists the minimal work-order row — enough columns
// for Ops Actionable Intake to link one row, not the full work-order
// CRUD surface (out of scope).
func (s *PGActionableStore) CreateWorkOrder(ctx context.Context, wo actionable.WorkOrder) (string, error) {
	id := uuid.NewString()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO work_orders (id, owner_agent, title, priority, tags, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`,
		id, wo.OwnerAgent, wo.Title, wo.Priority, strings.Join(wo.Tags, ","), wo.CreatedAt)
	if err != nil {
		return "", fmt.Errorf("create work order: %w", err)
	}
	return id, nil
}

// PollUnrelayed implements transactional poll-and-mark:
// select up to limit matching rows ordered by created_at, mark exactly
// those relayed, all inside one transaction so a racing second caller
// never observes or claims the same row twice.
func (s *PGActionableStore) PollUnrelayed(ctx context.Context, scope actionable.PollScope, limit int) ([]actionable.Event, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	query := `
		SELECT fingerprint, source, job_id, run_at_ms, team_id, ops_runtime_agent_id,
		 relay_key, severity, decision_required, summary, recommendation,
		 evidence, work_order_id, created_at
		FROM actionable_events
		WHERE relayed_at IS NULL`
	args := []any{}
	if scope.TeamID != "" {
		args = append(args, scope.TeamID)
		query += fmt.Sprintf(" AND team_id = $%d", len(args))
	}
	if scope.RelayKey != "" {
		args = append(args, scope.RelayKey)
		query += fmt.Sprintf(" AND relay_key = $%d", len(args))
	}
	args = append(args, limit)
	query += fmt.Sprintf(" ORDER BY created_at ASC LIMIT $%d FOR UPDATE", len(args))

	rows, err := tx.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("select unrelayed events: %w", err)
	}
	var events []actionable.Event
	var fingerprints []string
	for rows.Next() {
		var e actionable.Event
		var teamID, opsAgent, relayKey, recommendation, workOrderID sql.NullString
		if err := rows.Scan(&e.Fingerprint, &e.Source, &e.JobID, &e.RunAtMs, &teamID, &opsAgent,
			&relayKey, &e.Severity, &e.DecisionRequired, &e.Summary, &recommendation,
			&e.Evidence, &workOrderID, &e.CreatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("scan unrelayed event: %w", err)
		}
		e.TeamID = teamID.String
		e.OpsRuntimeAgentID = opsAgent.String
		e.RelayKey = relayKey.String
		e.Recommendation = recommendation.String
		e.WorkOrderID = workOrderID.String
		events = append(events, e)
		fingerprints = append(fingerprints, e.Fingerprint)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, fmt.Errorf("iterate unrelayed events: %w", err)
	}
	rows.Close()

	if len(fingerprints) > 0 {
		now := time.Now().UTC()
		placeholders := make([]string, len(fingerprints))
		markArgs := make([]any, 0, len(fingerprints)+1)
		markArgs = append(markArgs, now)
		for i, fp := range fingerprints {
			placeholders[i] = fmt.Sprintf("$%d", i+2)
			markArgs = append(markArgs, fp)
		}
		updateQuery := fmt.Sprintf(
			`UPDATE actionable_events SET relayed_at = $1 WHERE fingerprint IN (%s)`,
			strings.Join(placeholders, ", "))
		if _, err := tx.ExecContext(ctx, updateQuery, markArgs...); err != nil {
			return nil, fmt.Errorf("mark events relayed: %w", err)
		}
		for i := range events {
			events[i].RelayedAt = &now
		}
	}

	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit poll: %w", err)
	}
	return events, nil
}
