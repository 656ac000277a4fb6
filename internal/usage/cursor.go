package usage

import "time"

// FileFingerprint identifies a session file on disk at a point in time,
//: identity is (deviceID, inode); size/mtime are carried
// alongside to detect truncation and rewinds.
type FileFingerprint struct {
	DeviceID uint64
	Inode uint64
	SizeBytes int64
	ModTimeMillis int64
}

// Cursor is the persisted read position for one session file.
type Cursor struct {
	AgentID string
	SessionID string
	DeviceID uint64
	Inode uint64
	OffsetBytes int64
	FileSizeBytes int64
	FileMtimeMs int64
	UpdatedAt time.Time
}

// Fingerprint extracts the fingerprint half of a cursor.
func (c Cursor) Fingerprint() FileFingerprint {
	return FileFingerprint{
		DeviceID: c.DeviceID,
		Inode: c.Inode,
		SizeBytes: c.FileSizeBytes,
		ModTimeMillis: c.FileMtimeMs,
	}
}

// ResolveOffset applies the invalidation rules and returns the
// read offset to resume from plus whether the cursor was reset. A nil
// cursor (no prior cursor) resolves to offset 0, not reset (there was
// nothing to invalidate).
//
// Invalidated (offset reset to 0) when:
// - deviceID differs, or
// - inode differs, or
// - fileSizeBytes < cursor.offsetBytes (truncation), or
// - fileMtimeMs < cursor.fileMtimeMs AND fileSizeBytes != cursor.fileSizeBytes (suspicious rewind)
func ResolveOffset(cursor *Cursor, current FileFingerprint) (offset int64, reset bool) {
	if cursor == nil {
		return 0, false
	}
	if cursor.DeviceID != current.DeviceID {
		return 0, true
	}
	if cursor.Inode != current.Inode {
		return 0, true
	}
	if current.SizeBytes < cursor.OffsetBytes {
		return 0, true
	}
	if current.ModTimeMillis < cursor.FileMtimeMs && current.SizeBytes != cursor.FileSizeBytes {
		return 0, true
	}
	return cursor.OffsetBytes, false
}

// NextCursor builds the cursor row to persist after processing a file up
// to offsetBytes ("if current size == cursor offset,
// cursor advances as idempotent no-op").
func NextCursor(agentID, sessionID string, current FileFingerprint, offsetBytes int64, now time.Time) Cursor {
	return Cursor{
		AgentID: agentID,
		SessionID: sessionID,
		DeviceID: current.DeviceID,
		Inode: current.Inode,
		OffsetBytes: offsetBytes,
		FileSizeBytes: current.SizeBytes,
		FileMtimeMs: current.ModTimeMillis,
		UpdatedAt: now,
	}
}
