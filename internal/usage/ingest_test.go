package usage

import (
	"bytes"
	"context"
	"io"
	"testing"
	"time"

	"github.com/clawcontrol/clawcontrol/internal/lease"
)

type fakeLeaseStore struct {
	held map[string]time.Time
}

func newFakeLeaseStore() *fakeLeaseStore { return &fakeLeaseStore{held: make(map[string]time.Time)} }

func (s *fakeLeaseStore) Acquire(ctx context.Context, name, ownerID string, expiresAt time.Time) (bool, error) {
	if exp, ok := s.held[name]; ok && exp.After(time.Now()) {
		return false, nil
	}
	s.held[name] = expiresAt
	return true, nil
}

func (s *fakeLeaseStore) Release(ctx context.Context, name, ownerID string) error {
	delete(s.held, name)
	return nil
}

type fakeLister struct {
	files []SessionFileInfo
}

func (f *fakeLister) ListSessionFiles(ctx context.Context) ([]SessionFileInfo, error) {
	return f.files, nil
}

type fakeOpener struct {
	content map[string][]byte
}

func (o *fakeOpener) OpenAt(ctx context.Context, path string, offset int64) (io.ReadCloser, error) {
	data := o.content[path]
	if offset > int64(len(data)) {
		offset = int64(len(data))
	}
	return io.NopCloser(bytes.NewReader(data[offset:])), nil
}

func newTestIngester(files []SessionFileInfo, content map[string][]byte, store Store) *Ingester {
	mgr := lease.NewManager(newFakeLeaseStore(), func() string { return "owner-1" }, time.Now)
	return NewIngester(mgr, &fakeLister{files: files}, &fakeOpener{content: content}, store, time.Minute)
}

func TestSyncUsageIngestsNewSessionFile(t *testing.T) {
	store := newFakeStore()
	line := `{"seenAt":"2026-01-05T10:00:00Z","model":"claude-opus-4","usage":{"inputTokens":10,"outputTokens":5,"totalTokens":15}}` + "\n"
	content := map[string][]byte{"/sessions/a.jsonl": []byte(line)}
	files := []SessionFileInfo{{
		AgentID: "agent-1",
		SessionID: "sess-1",
		Path: "/sessions/a.jsonl",
		ModTime: time.Now(),
		Fingerprint: FileFingerprint{DeviceID: 1, Inode: 1, SizeBytes: int64(len(line))},
	}}

	in := newTestIngester(files, content, store)
	res, err := in.SyncUsage(context.Background())
	if err != nil {
		t.Fatalf("SyncUsage failed: %v", err)
	}
	if !res.LockAcquired {
		t.Fatal("expected lock acquired")
	}
	if res.FilesScanned != 1 || res.FilesUpdated != 1 || res.SessionsUpdated != 1 {
		t.Fatalf("unexpected result: %+v", res)
	}

	agg, err := store.GetAggregate(context.Background(), "sess-1")
	if err != nil || agg == nil {
		t.Fatalf("expected aggregate persisted, err=%v", err)
	}
	if agg.Counters.TotalTokens != 15 {
		t.Fatalf("TotalTokens = %d, want 15", agg.Counters.TotalTokens)
	}

	cursor, err := store.GetCursor(context.Background(), "agent-1", "sess-1")
	if err != nil || cursor == nil {
		t.Fatalf("expected cursor persisted, err=%v", err)
	}
	if cursor.OffsetBytes != int64(len(line)) {
		t.Fatalf("cursor offset = %d, want %d", cursor.OffsetBytes, len(line))
	}
}

func TestSyncUsageSkipsUnchangedFile(t *testing.T) {
	store := newFakeStore()
	size := int64(42)
	store.cursors["agent-1|sess-1"] = Cursor{
		AgentID: "agent-1", SessionID: "sess-1",
		DeviceID: 1, Inode: 1, OffsetBytes: size, FileSizeBytes: size,
	}
	files := []SessionFileInfo{{
		AgentID: "agent-1",
		SessionID: "sess-1",
		Path: "/sessions/a.jsonl",
		Fingerprint: FileFingerprint{DeviceID: 1, Inode: 1, SizeBytes: size},
	}}

	in := newTestIngester(files, map[string][]byte{}, store)
	res, err := in.SyncUsage(context.Background())
	if err != nil {
		t.Fatalf("SyncUsage failed: %v", err)
	}
	if res.FilesUpdated != 0 {
		t.Fatalf("expected no file update when offset already matches size, got %+v", res)
	}
}

func TestSyncUsageOnlyReadsNewBytes(t *testing.T) {
	store := newFakeStore()
	line1 := `{"usage":{"inputTokens":1,"outputTokens":1,"totalTokens":2}}` + "\n"
	line2 := `{"usage":{"inputTokens":3,"outputTokens":3,"totalTokens":6}}` + "\n"
	full := line1 + line2

	store.cursors["agent-1|sess-1"] = Cursor{
		AgentID: "agent-1", SessionID: "sess-1",
		DeviceID: 1, Inode: 1, OffsetBytes: int64(len(line1)), FileSizeBytes: int64(len(line1)),
	}
	store.aggregates["sess-1"] = SessionAggregate{SessionID: "sess-1", Counters: Counters{TotalTokens: 2}}

	content := map[string][]byte{"/sessions/a.jsonl": []byte(full)}
	files := []SessionFileInfo{{
		AgentID: "agent-1",
		SessionID: "sess-1",
		Path: "/sessions/a.jsonl",
		Fingerprint: FileFingerprint{DeviceID: 1, Inode: 1, SizeBytes: int64(len(full))},
	}}

	in := newTestIngester(files, content, store)
	if _, err := in.SyncUsage(context.Background()); err != nil {
		t.Fatalf("SyncUsage failed: %v", err)
	}

	agg, _ := store.GetAggregate(context.Background(), "sess-1")
	if agg.Counters.TotalTokens != 8 {
		t.Fatalf("TotalTokens = %d, want 8 (2 existing + 6 new, not reprocessing line1)", agg.Counters.TotalTokens)
	}
}

func TestSyncUsageLeaseUnavailableSkipsRun(t *testing.T) {
	store := newFakeStore()
	leaseStore := newFakeLeaseStore()
	leaseStore.held[syncLeaseName] = time.Now().Add(time.Hour)
	mgr := lease.NewManager(leaseStore, func() string { return "owner-1" }, time.Now)
	in := NewIngester(mgr, &fakeLister{}, &fakeOpener{content: map[string][]byte{}}, store, time.Minute)

	res, err := in.SyncUsage(context.Background())
	if err != nil {
		t.Fatalf("expected no error on lease unavailable, got %v", err)
	}
	if res.LockAcquired {
		t.Fatal("expected LockAcquired to be false")
	}
}
