package upgrade

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clawcontrol/clawcontrol/internal/usage"
)

func init() {
	RegisterDataHook(6, "backfill_provider_key", backfillProviderKey)
}

// backfillProviderKey recomputes provider_key for every session_aggregates
// row written before provider classification existed (migration 000006
// and earlier), using the same usage.ProviderKey derivation ingestion
// applies to every new row. Safe to re-run: it only touches rows whose
// provider_key is still empty.
func backfillProviderKey(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, `SELECT session_id, model FROM session_aggregates WHERE provider_key = ''`)
	if err != nil {
		return fmt.Errorf("select rows missing provider_key: %w", err)
	}

	type update struct {
		sessionID, providerKey string
	}
	var updates []update
	for rows.Next() {
		var sessionID, model string
		if err := rows.Scan(&sessionID, &model); err != nil {
			rows.Close()
			return fmt.Errorf("scan row: %w", err)
		}
		updates = append(updates, update{sessionID: sessionID, providerKey: usage.ProviderKey(model)})
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("iterate rows: %w", err)
	}
	rows.Close()

	for _, u := range updates {
		if u.providerKey == "" {
			continue
		}
		if _, err := db.ExecContext(ctx,
			`UPDATE session_aggregates SET provider_key = $1 WHERE session_id = $2`,
			u.providerKey, u.sessionID); err != nil {
			return fmt.Errorf("update provider_key for %s: %w", u.sessionID, err)
		}
	}
	return nil
}
