package telemetry

import (
	"context"
	"encoding/json"
	"fmt"
	"regexp"
	"sync"
	"time"
)

// StatusCommand invokes the external runtime's status command and
// returns its stdout JSON (`bin status.all.json`, 15s budget).
type StatusCommand func(ctx context.Context) ([]byte, error)

// statusPayload is the subset of the runtime status JSON this package
// reads: `sessions.recent[]`.
type statusPayload struct {
	Sessions struct {
		Recent []recentSession `json:"recent"`
	} `json:"sessions"`
}

type recentSession struct {
	SessionID string `json:"sessionId"`
	Key string `json:"key"`
	AgentID string `json:"agentId"`
	Kind string `json:"kind"`
	Model string `json:"model"`
	UpdatedAt int64 `json:"updatedAt"`
	AgeMs *int64 `json:"age"`
	AbortedLastRun bool `json:"abortedLastRun"`
	PercentUsed *float64 `json:"percentUsed"`
	Flags []string `json:"flags"`
	Metadata json.RawMessage `json:"metadata"`
}

var (
	opFlagPattern = regexp.MustCompile(`(?:^|:)op:([a-z0-9]{10,})`)
	woFlagPattern = regexp.MustCompile(`(?:^|:)wo:([a-z0-9]{10,})`)
)

type metadataLinkage struct {
	OperationID string `json:"operationId"`
	WorkOrderID string `json:"workOrderId"`
}

// linkage derives operationId/workOrderId with priority
// {metadata, flags[op:…|wo:…], sessionKey regex}
func linkage(rs recentSession) (operationID, workOrderID string) {
	if len(rs.Metadata) > 0 {
		var m metadataLinkage
		if err := json.Unmarshal(rs.Metadata, &m); err == nil {
			operationID, workOrderID = m.OperationID, m.WorkOrderID
		}
	}
	for _, flag := range rs.Flags {
		if operationID == "" {
			if m := opFlagPattern.FindStringSubmatch(flag); m != nil {
				operationID = m[1]
			}
		}
		if workOrderID == "" {
			if m := woFlagPattern.FindStringSubmatch(flag); m != nil {
				workOrderID = m[1]
			}
		}
	}
	if operationID == "" {
		if m := opFlagPattern.FindStringSubmatch(rs.Key); m != nil {
			operationID = m[1]
		}
	}
	if workOrderID == "" {
		if m := woFlagPattern.FindStringSubmatch(rs.Key); m != nil {
			workOrderID = m[1]
		}
	}
	return operationID, workOrderID
}

// Stats is SyncAgentSessions's result.
type Stats struct {
	SessionsSeen int
	SessionsUpdated int
	DurationMs int64
}

// Syncer runs periodic telemetry reconciliation. It gates concurrent
// polls behind a 4s TTL: only one poll runs at a time, and a poll that
// starts within 4s of the previous poll's completion returns the cached
// result instead of invoking the status command again.
type Syncer struct {
	store Store
	status StatusCommand
	timeout time.Duration
	ttl time.Duration

	mu sync.Mutex
	lastRun time.Time
	lastStat Stats
	lastErr error
	inFlight chan struct{}
}

// NewSyncer builds a Syncer. timeout bounds the status command (default
// 15s); ttl is the poll-coalescing window (default 4s).
func NewSyncer(store Store, status StatusCommand, timeout, ttl time.Duration) *Syncer {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	if ttl <= 0 {
		ttl = 4 * time.Second
	}
	return &Syncer{store: store, status: status, timeout: timeout, ttl: ttl}
}

// SyncAgentSessions polls the runtime status command (unless a poll
// completed within the last ttl, or one is already in flight, in which
// case it returns the existing result) and upserts every recent session.
func (s *Syncer) SyncAgentSessions(ctx context.Context) (Stats, error) {
	s.mu.Lock()
	if wait := s.inFlight; wait != nil {
		s.mu.Unlock()
		<-wait
		s.mu.Lock()
		defer s.mu.Unlock()
		return s.lastStat, s.lastErr
	}
	if !s.lastRun.IsZero() && time.Since(s.lastRun) < s.ttl {
		defer s.mu.Unlock()
		return s.lastStat, s.lastErr
	}
	done := make(chan struct{})
	s.inFlight = done
	s.mu.Unlock()

	stat, err := s.runOnce(ctx)

	s.mu.Lock()
	s.lastRun = time.Now()
	s.lastStat = stat
	s.lastErr = err
	s.inFlight = nil
	s.mu.Unlock()
	close(done)

	return stat, err
}

func (s *Syncer) runOnce(ctx context.Context) (Stats, error) {
	start := time.Now()
	ctx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	raw, err := s.status(ctx)
	if err != nil {
		// A failed poll leaves the previously cached state untouched
		// ("failures leave stale cache untouched") — the caller's
		// read path still has last-known-good data via the store.
		return Stats{}, fmt.Errorf("status command: %w", err)
	}

	var payload statusPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		return Stats{}, fmt.Errorf("parse status payload: %w", err)
	}

	now := time.Now()
	stat := Stats{SessionsSeen: len(payload.Sessions.Recent)}
	for _, rs := range payload.Sessions.Recent {
		age := ageOf(rs, now)
		operationID, workOrderID := linkage(rs)

		as := AgentSession{
			SessionID: rs.SessionID,
			SessionKey: rs.Key,
			AgentID: rs.AgentID,
			Kind: rs.Kind,
			Model: rs.Model,
			State: DeriveState(rs.AbortedLastRun, age),
			UpdatedAtMs: rs.UpdatedAt,
			LastSeenAt: now,
			AbortedLastRun: rs.AbortedLastRun,
			PercentUsed: rs.PercentUsed,
			OperationID: operationID,
			WorkOrderID: workOrderID,
		}
		if err := s.store.Upsert(ctx, as); err != nil {
			return stat, fmt.Errorf("upsert agent session %s: %w", rs.SessionID, err)
		}
		stat.SessionsUpdated++
	}

	stat.DurationMs = time.Since(start).Milliseconds()
	return stat, nil
}

func ageOf(rs recentSession, now time.Time) time.Duration {
	if rs.AgeMs != nil {
		return time.Duration(*rs.AgeMs) * time.Millisecond
	}
	if rs.UpdatedAt > 0 {
		return now.Sub(time.UnixMilli(rs.UpdatedAt))
	}
	return 0
}
