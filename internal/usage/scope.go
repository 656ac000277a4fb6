package usage

import (
	"context"
	"sort"
	"strconv"
	"time"
)

// SessionFileInfo is one enumerated session file, as listed by a
// FileLister (`<runtimeHome>/agents/<agentId>/sessions/
// <sessionId>.jsonl`).
type SessionFileInfo struct {
	AgentID string
	SessionID string
	Path string
	ModTime time.Time
	Fingerprint FileFingerprint
}

// FileLister enumerates session files on disk. The ingestion engine and
// the Parity Scope Resolver share this abstraction.
type FileLister interface {
	ListSessionFiles(ctx context.Context) ([]SessionFileInfo, error)
}

const (
	defaultSessionLimit = 1000
	maxSessionLimit = 5000
)

// ScopeRequest is ResolveScope's input
type ScopeRequest struct {
	From time.Time
	To time.Time
	SessionLimit int
}

// ScopeResult is ResolveScope's output
type ScopeResult struct {
	SampledSessionIDs []string
	SampledCount int
	SessionsInRangeTotal int
	PriorityPaths []string
	MissingCoverageCount int
	SessionLimit int
}

// ScopeResolver implements the Parity Scope Resolver, with a
// 15s advisory cache keyed by (from, to, sessionLimit).
type ScopeResolver struct {
	lister FileLister
	store Store
	cache *TTLCache[ScopeResult]
}

// NewScopeResolver builds a ScopeResolver.
func NewScopeResolver(lister FileLister, store Store, cache *TTLCache[ScopeResult]) *ScopeResolver {
	return &ScopeResolver{lister: lister, store: store, cache: cache}
}

// ResolveScope implements
func (r *ScopeResolver) ResolveScope(ctx context.Context, req ScopeRequest) (ScopeResult, error) {
	limit := req.SessionLimit
	if limit <= 0 {
		limit = defaultSessionLimit
	}
	if limit > maxSessionLimit {
		limit = maxSessionLimit
	}

	key := scopeCacheKey(req.From, req.To, limit)
	if r.cache != nil {
		if cached, ok := r.cache.Get(key); ok {
			return cached, nil
		}
	}

	files, err := r.lister.ListSessionFiles(ctx)
	if err != nil {
		return ScopeResult{}, err
	}

	var inRange []SessionFileInfo
	distinctSessions := make(map[string]bool)
	for _, f := range files {
		if f.ModTime.Before(req.From) {
			continue
		}
		inRange = append(inRange, f)
		distinctSessions[f.SessionID] = true
	}

	sort.SliceStable(inRange, func(i, j int) bool {
		if !inRange[i].ModTime.Equal(inRange[j].ModTime) {
			return inRange[i].ModTime.After(inRange[j].ModTime)
		}
		return inRange[i].Path < inRange[j].Path
	})

	// Keep only the newest file per session so the sample counts distinct
	// sessions.
	seen := make(map[string]bool, len(inRange))
	deduped := inRange[:0]
	for _, f := range inRange {
		if seen[f.SessionID] {
			continue
		}
		seen[f.SessionID] = true
		deduped = append(deduped, f)
	}
	inRange = deduped

	sampleN := limit
	if sampleN > len(inRange) {
		sampleN = len(inRange)
	}
	sample := inRange[:sampleN]

	result := ScopeResult{
		SessionsInRangeTotal: len(distinctSessions),
		SessionLimit: limit,
	}
	for _, f := range sample {
		result.SampledSessionIDs = append(result.SampledSessionIDs, f.SessionID)

		cursor, err := r.store.GetCursor(ctx, f.AgentID, f.SessionID)
		if err != nil {
			return ScopeResult{}, err
		}
		if isPriority(cursor, f.Fingerprint) {
			result.PriorityPaths = append(result.PriorityPaths, f.Path)
		}
	}
	result.SampledCount = len(result.SampledSessionIDs)
	result.MissingCoverageCount = len(result.PriorityPaths)

	if r.cache != nil {
		r.cache.Set(key, result, 15*time.Second)
	}
	return result, nil
}

// isPriority reports whether a sampled path needs re-ingestion before it
// can be trusted for parity: true iff the cursor is
// missing, or any of (deviceId, inode, offsetBytes==fileSizeBytes,
// fileSizeBytes, fileMtimeMs) disagrees with the current fingerprint.
func isPriority(cursor *Cursor, current FileFingerprint) bool {
	if cursor == nil {
		return true
	}
	if cursor.DeviceID != current.DeviceID {
		return true
	}
	if cursor.Inode != current.Inode {
		return true
	}
	if cursor.OffsetBytes != current.SizeBytes {
		return true
	}
	if cursor.FileSizeBytes != current.SizeBytes {
		return true
	}
	if cursor.FileMtimeMs != current.ModTimeMillis {
		return true
	}
	return false
}

func scopeCacheKey(from, to time.Time, limit int) string {
	return from.UTC().Format(time.RFC3339Nano) + "|" + to.UTC().Format(time.RFC3339Nano) + "|" + strconv.Itoa(limit)
}
