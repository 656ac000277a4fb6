package pg

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"
)

// PGLeaseStore implements lease.Store. Acquire purges expired rows for
// name before attempting the unique insert, matching "purge
// expired leases for name; try insert unique row; unique-violation→false
// else true".
type PGLeaseStore struct {
	db *sql.DB
}

// NewPGLeaseStore builds a PGLeaseStore.
func NewPGLeaseStore(db *sql.DB) *PGLeaseStore {
	return &PGLeaseStore{db: db}
}

func (s *PGLeaseStore) Acquire(ctx context.Context, name, ownerID string, expiresAt time.Time) (bool, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `DELETE FROM leases WHERE name = $1 AND expires_at <= $2`, name, now); err != nil {
		return false, fmt.Errorf("purge expired lease: %w", err)
	}

	_, err = tx.ExecContext(ctx, `
		INSERT INTO leases (name, owner_id, acquired_at, expires_at)
		VALUES ($1, $2, $3, $4)`,
		name, ownerID, now, expiresAt)
	if err != nil {
		// A unique violation on name means another owner holds a live
		// lease; that is the expected, non-exceptional outcome here, so it
		// resolves to (false, nil) rather than propagating the error.
		if isUniqueViolation(err) {
			return false, nil
		}
		return false, fmt.Errorf("insert lease: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("commit lease acquire: %w", err)
	}
	return true, nil
}

func (s *PGLeaseStore) Release(ctx context.Context, name, ownerID string) error {
	_, err := s.db.ExecContext(ctx, `DELETE FROM leases WHERE name = $1 AND owner_id = $2`, name, ownerID)
	if err != nil {
		return fmt.Errorf("release lease: %w", err)
	}
	return nil
}

// isUniqueViolation recognizes pgx's unique_violation SQLSTATE (23505)
// without importing pgconn directly here, keeping this file portable to
// the modernc.org/sqlite test driver, which surfaces constraint failures
// as a plain error whose text contains "UNIQUE constraint failed".
func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	for _, sub := range []string{"SQLSTATE 23505", "duplicate key value", "UNIQUE constraint failed"} {
		if strings.Contains(msg, sub) {
			return true
		}
	}
	return false
}
