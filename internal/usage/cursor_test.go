package usage

import (
	"testing"
	"time"
)

func TestResolveOffsetNilCursor(t *testing.T) {
	offset, reset := ResolveOffset(nil, FileFingerprint{SizeBytes: 100})
	if offset != 0 || reset {
		t.Fatalf("nil cursor should resolve to (0, false), got (%d, %v)", offset, reset)
	}
}

func TestResolveOffsetNormalAdvance(t *testing.T) {
	cursor := &Cursor{DeviceID: 1, Inode: 2, OffsetBytes: 500, FileSizeBytes: 500, FileMtimeMs: 1000}
	current := FileFingerprint{DeviceID: 1, Inode: 2, SizeBytes: 800, ModTimeMillis: 2000}
	offset, reset := ResolveOffset(cursor, current)
	if reset {
		t.Fatal("expected no reset on plain growth")
	}
	if offset != 500 {
		t.Fatalf("offset = %d, want 500", offset)
	}
}

func TestResolveOffsetDeviceChangeResets(t *testing.T) {
	cursor := &Cursor{DeviceID: 1, Inode: 2, OffsetBytes: 500, FileSizeBytes: 500}
	current := FileFingerprint{DeviceID: 9, Inode: 2, SizeBytes: 500}
	_, reset := ResolveOffset(cursor, current)
	if !reset {
		t.Fatal("expected device change to reset")
	}
}

func TestResolveOffsetInodeChangeResets(t *testing.T) {
	cursor := &Cursor{DeviceID: 1, Inode: 2, OffsetBytes: 500, FileSizeBytes: 500}
	current := FileFingerprint{DeviceID: 1, Inode: 99, SizeBytes: 500}
	_, reset := ResolveOffset(cursor, current)
	if !reset {
		t.Fatal("expected inode change to reset")
	}
}

func TestResolveOffsetTruncationResets(t *testing.T) {
	cursor := &Cursor{DeviceID: 1, Inode: 2, OffsetBytes: 500, FileSizeBytes: 500}
	current := FileFingerprint{DeviceID: 1, Inode: 2, SizeBytes: 100}
	offset, reset := ResolveOffset(cursor, current)
	if !reset || offset != 0 {
		t.Fatalf("expected truncation to reset to 0, got (%d, %v)", offset, reset)
	}
}

func TestResolveOffsetSuspiciousRewindResets(t *testing.T) {
	cursor := &Cursor{DeviceID: 1, Inode: 2, OffsetBytes: 500, FileSizeBytes: 500, FileMtimeMs: 5000}
	current := FileFingerprint{DeviceID: 1, Inode: 2, SizeBytes: 600, ModTimeMillis: 1000}
	_, reset := ResolveOffset(cursor, current)
	if !reset {
		t.Fatal("expected earlier mtime with changed size to reset")
	}
}

func TestResolveOffsetEarlierMtimeSameSizeNoReset(t *testing.T) {
	// mtime went backward but size is unchanged — not suspicious (e.g. clock
	// skew on an otherwise untouched file).
	cursor := &Cursor{DeviceID: 1, Inode: 2, OffsetBytes: 500, FileSizeBytes: 500, FileMtimeMs: 5000}
	current := FileFingerprint{DeviceID: 1, Inode: 2, SizeBytes: 500, ModTimeMillis: 1000}
	offset, reset := ResolveOffset(cursor, current)
	if reset || offset != 500 {
		t.Fatalf("expected no reset, got (%d, %v)", offset, reset)
	}
}

func TestNextCursorRoundTrip(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	fp := FileFingerprint{DeviceID: 1, Inode: 2, SizeBytes: 900, ModTimeMillis: 123}
	c := NextCursor("agent-1", "sess-1", fp, 900, now)
	if c.Fingerprint() != fp {
		t.Fatalf("fingerprint round-trip mismatch: %+v vs %+v", c.Fingerprint(), fp)
	}
	if c.OffsetBytes != 900 || c.UpdatedAt != now {
		t.Fatalf("unexpected cursor: %+v", c)
	}
}
