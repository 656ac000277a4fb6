package pg

import (
	"database/sql"
	"fmt"

	"github.com/clawcontrol/clawcontrol/internal/actionable"
	"github.com/clawcontrol/clawcontrol/internal/lease"
	"github.com/clawcontrol/clawcontrol/internal/telemetry"
	"github.com/clawcontrol/clawcontrol/internal/usage"
)

// Stores is the top-level container for every Postgres-backed store
// ClawControl's components use: usage, lease, telemetry, actionable + team
// governance. Chat-gateway store concerns (Memory, Cron, Pairing, Skills,
// Agents, Providers, Tracing, MCP, CustomTools, ChannelInstances,
// ConfigSecrets, AgentLinks, BuiltinTools) have no ClawControl component
// and were dropped along with their store implementations.
type Stores struct {
	DB *sql.DB
	Usage usage.Store
	Leases lease.Store
	Sessions telemetry.Store
	Actionable actionable.Store
	Teams *PGTeamGovernanceStore
}

// NewStores opens the Postgres connection and builds every store.
func NewStores(dsn string) (*Stores, error) {
	db, err := OpenDB(dsn)
	if err != nil {
		return nil, fmt.Errorf("store: new stores: %w", err)
	}

	return &Stores{
		DB: db,
		Usage: NewPGUsageStore(db),
		Leases: NewPGLeaseStore(db),
		Sessions: NewPGAgentSessionStore(db),
		Actionable: NewPGActionableStore(db),
		Teams: NewPGTeamGovernanceStore(db),
	}, nil
}
