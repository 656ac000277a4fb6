package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clawcontrol/clawcontrol/internal/actionable"
)

// PGTeamGovernanceStore implements actionable.TeamLookup backed by
// Postgres: a single db *sql.DB field and constructor. Team-delegation,
// messaging, and task-routing machinery (agent_teams, agent_team_members,
// handoff_routes) has nothing in this repo to attach to — only the
// per-team governance pair (ops_runtime_agent_id, relay_key) that Ops
// Actionable Intake resolves scope against survives.
type PGTeamGovernanceStore struct {
	db *sql.DB
}

// NewPGTeamGovernanceStore builds a PGTeamGovernanceStore.
func NewPGTeamGovernanceStore(db *sql.DB) *PGTeamGovernanceStore {
	return &PGTeamGovernanceStore{db: db}
}

// LookupGovernance reads a team's ops_runtime_agent_id/relay_key pair. The
// bool return is false when teamID has no governance row configured
// (actionable.Intake then falls through to its legacy default).
func (s *PGTeamGovernanceStore) LookupGovernance(ctx context.Context, teamID string) (actionable.TeamGovernance, bool, error) {
	var g actionable.TeamGovernance
	var opsAgent, relayKey sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT ops_runtime_agent_id, relay_key FROM team_governance WHERE team_id = $1`, teamID).Scan(&opsAgent, &relayKey)
	if errors.Is(err, sql.ErrNoRows) {
		return actionable.TeamGovernance{}, false, nil
	}
	if err != nil {
		return actionable.TeamGovernance{}, false, fmt.Errorf("store: lookup team governance for %s: %w", teamID, err)
	}
	g.OpsRuntimeAgentID = opsAgent.String
	g.RelayKey = relayKey.String
	return g, true, nil
}

// SetGovernance upserts a team's governance pair. Not part of
// actionable.TeamLookup; exposed for administrative seeding (e.g. from a
// cobra subcommand or a one-off migration data hook).
func (s *PGTeamGovernanceStore) SetGovernance(ctx context.Context, teamID string, g actionable.TeamGovernance) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO team_governance (team_id, ops_runtime_agent_id, relay_key)
		 VALUES ($1, $2, $3)
		 ON CONFLICT (team_id) DO UPDATE SET
			ops_runtime_agent_id = EXCLUDED.ops_runtime_agent_id,
			relay_key = EXCLUDED.relay_key`,
		teamID, nilAgentStr(g.OpsRuntimeAgentID), nilAgentStr(g.RelayKey))
	if err != nil {
		return fmt.Errorf("store: set team governance for %s: %w", teamID, err)
	}
	return nil
}
