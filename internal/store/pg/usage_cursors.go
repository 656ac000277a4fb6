package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clawcontrol/clawcontrol/internal/usage"
)

// GetCursor reads the persisted cursor for (agentID, sessionID).
// Returns (nil, nil) when no cursor exists
// yet — unseen files resolve their offset as 0 via usage.ResolveOffset.
func (s *PGUsageStore) GetCursor(ctx context.Context, agentID, sessionID string) (*usage.Cursor, error) {
	var c usage.Cursor
	err := s.db.QueryRowContext(ctx, `
		SELECT agent_id, session_id, device_id, inode, offset_bytes,
		 file_size_bytes, file_mtime_ms, updated_at
		FROM usage_cursors WHERE agent_id = $1 AND session_id = $2`,
		agentID, sessionID).Scan(&c.AgentID, &c.SessionID, &c.DeviceID, &c.Inode, &c.OffsetBytes,
		&c.FileSizeBytes, &c.FileMtimeMs, &c.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get cursor: %w", err)
	}
	return &c, nil
}

// UpsertCursor writes the cursor row: cursors are
// keyed by (agentID, sessionID) and simply overwritten with the latest
// fingerprint/offset — there is no increment semantics here, unlike the
// aggregate tables.
func (s *PGUsageStore) UpsertCursor(ctx context.Context, c usage.Cursor) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO usage_cursors
			(agent_id, session_id, device_id, inode, offset_bytes,
			 file_size_bytes, file_mtime_ms, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		ON CONFLICT (agent_id, session_id) DO UPDATE SET
			device_id = EXCLUDED.device_id,
			inode = EXCLUDED.inode,
			offset_bytes = EXCLUDED.offset_bytes,
			file_size_bytes = EXCLUDED.file_size_bytes,
			file_mtime_ms = EXCLUDED.file_mtime_ms,
			updated_at = EXCLUDED.updated_at`,
		c.AgentID, c.SessionID, c.DeviceID, c.Inode, c.OffsetBytes,
		c.FileSizeBytes, c.FileMtimeMs, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("upsert cursor: %w", err)
	}
	return nil
}
