package pg

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/clawcontrol/clawcontrol/internal/usage"
)

// PGUsageStore implements usage.Store. It is deliberately thin: every
// method issues one or a few statements against tables created by the
// migrations under migrations/000001_usage_core.up.sql. There is no
// in-process cache here because ingestion
// reads and writes are already funneled through the single usage.sync
// lease — caching would just be another thing to invalidate for no
// reduction in contention.
type PGUsageStore struct {
	db execer
}

// execer is satisfied by both *sql.DB and *sql.Tx, letting every method
// run unchanged whether or not it is inside WithTx.
type execer interface {
	ExecContext(ctx context.Context, query string, args...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args...any) *sql.Row
}

// NewPGUsageStore builds a PGUsageStore over db.
func NewPGUsageStore(db *sql.DB) *PGUsageStore {
	return &PGUsageStore{db: db}
}

// WithTx runs fn with a Store bound to a single transaction, satisfying
// the atomicity requirement in: delta application and the
// matching cursor upsert commit together, or neither does.
func (s *PGUsageStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx usage.Store) error) error {
	db, ok := s.db.(*sql.DB)
	if !ok {
		// Already inside a transaction (nested WithTx); just run fn against
		// the current store rather than opening a sub-transaction.
		return fn(ctx, s)
	}
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(ctx, &PGUsageStore{db: tx}); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
