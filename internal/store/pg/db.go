// Package pg implements the Postgres-backed stores for the usage,
// lease, telemetry, and actionable-event domains: a thin *sql.DB wrapper
// per entity and ON CONFLICT upserts. No store here keeps an in-process
// cache; every read goes to Postgres.
package pg

import (
	"database/sql"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// OpenDB opens a pgx-backed *sql.DB and verifies connectivity.
func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}
