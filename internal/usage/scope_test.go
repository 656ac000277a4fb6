package usage

import (
	"context"
	"testing"
	"time"
)

type fakeScopeLister struct {
	files []SessionFileInfo
}

func (f *fakeScopeLister) ListSessionFiles(ctx context.Context) ([]SessionFileInfo, error) {
	return f.files, nil
}

func TestResolveScopeSamplesMostRecentFirst(t *testing.T) {
	now := time.Now()
	files := []SessionFileInfo{
		{AgentID: "a1", SessionID: "s1", Path: "/1.jsonl", ModTime: now.Add(-3 * time.Hour)},
		{AgentID: "a1", SessionID: "s2", Path: "/2.jsonl", ModTime: now.Add(-1 * time.Hour)},
		{AgentID: "a1", SessionID: "s3", Path: "/3.jsonl", ModTime: now.Add(-2 * time.Hour)},
	}
	store := newFakeStore()
	resolver := NewScopeResolver(&fakeScopeLister{files: files}, store, NewTTLCache[ScopeResult](nil))

	res, err := resolver.ResolveScope(context.Background(), ScopeRequest{From: now.Add(-24 * time.Hour), To: now, SessionLimit: 2})
	if err != nil {
		t.Fatalf("ResolveScope failed: %v", err)
	}
	if res.SessionsInRangeTotal != 3 {
		t.Fatalf("SessionsInRangeTotal = %d, want 3", res.SessionsInRangeTotal)
	}
	if res.SampledCount != 2 {
		t.Fatalf("SampledCount = %d, want 2 (clamped to SessionLimit)", res.SampledCount)
	}
	if res.SampledSessionIDs[0] != "s2" {
		t.Fatalf("expected most-recently-modified file first, got %v", res.SampledSessionIDs)
	}
}

func TestResolveScopeClampsLimitToDefaultAndMax(t *testing.T) {
	store := newFakeStore()
	resolver := NewScopeResolver(&fakeScopeLister{}, store, NewTTLCache[ScopeResult](nil))

	res, err := resolver.ResolveScope(context.Background(), ScopeRequest{SessionLimit: 0})
	if err != nil {
		t.Fatalf("ResolveScope failed: %v", err)
	}
	if res.SessionLimit != defaultSessionLimit {
		t.Fatalf("SessionLimit = %d, want default %d", res.SessionLimit, defaultSessionLimit)
	}

	res2, err := resolver.ResolveScope(context.Background(), ScopeRequest{SessionLimit: 999999})
	if err != nil {
		t.Fatalf("ResolveScope failed: %v", err)
	}
	if res2.SessionLimit != maxSessionLimit {
		t.Fatalf("SessionLimit = %d, want max %d", res2.SessionLimit, maxSessionLimit)
	}
}

func TestResolveScopeFlagsFilesNeedingPriority(t *testing.T) {
	now := time.Now()
	fp := FileFingerprint{DeviceID: 1, Inode: 1, SizeBytes: 100, ModTimeMillis: 1000}
	files := []SessionFileInfo{
		{AgentID: "a1", SessionID: "s1", Path: "/1.jsonl", ModTime: now, Fingerprint: fp},
		{AgentID: "a1", SessionID: "s2", Path: "/2.jsonl", ModTime: now, Fingerprint: fp},
	}
	store := newFakeStore()
	// s1 has a cursor that exactly matches its fingerprint (fully ingested);
	// s2 has no cursor at all (needs priority ingestion).
	store.cursors["a1|s1"] = Cursor{
		AgentID: "a1", SessionID: "s1",
		DeviceID: fp.DeviceID, Inode: fp.Inode,
		OffsetBytes: fp.SizeBytes, FileSizeBytes: fp.SizeBytes, FileMtimeMs: fp.ModTimeMillis,
	}

	resolver := NewScopeResolver(&fakeScopeLister{files: files}, store, NewTTLCache[ScopeResult](nil))
	res, err := resolver.ResolveScope(context.Background(), ScopeRequest{From: now.Add(-time.Hour), To: now})
	if err != nil {
		t.Fatalf("ResolveScope failed: %v", err)
	}
	if len(res.PriorityPaths) != 1 || res.PriorityPaths[0] != "/2.jsonl" {
		t.Fatalf("PriorityPaths = %v, want only /2.jsonl", res.PriorityPaths)
	}
}

func TestResolveScopeCachesResultForSameKey(t *testing.T) {
	now := time.Now()
	lister := &fakeScopeLister{files: []SessionFileInfo{
		{AgentID: "a1", SessionID: "s1", Path: "/1.jsonl", ModTime: now},
	}}
	store := newFakeStore()
	resolver := NewScopeResolver(lister, store, NewTTLCache[ScopeResult](nil))

	req := ScopeRequest{From: now.Add(-time.Hour), To: now, SessionLimit: 10}
	res1, err := resolver.ResolveScope(context.Background(), req)
	if err != nil {
		t.Fatalf("first ResolveScope failed: %v", err)
	}

	// Mutate the lister's backing files; a cached result should mask this.
	lister.files = nil
	res2, err := resolver.ResolveScope(context.Background(), req)
	if err != nil {
		t.Fatalf("second ResolveScope failed: %v", err)
	}
	if res2.SessionsInRangeTotal != res1.SessionsInRangeTotal {
		t.Fatalf("expected cached result to be returned, got %+v vs %+v", res2, res1)
	}
}
