package usage

import (
	"context"
	"testing"
	"time"
)

// fakeStore is an in-memory Store for testing ApplyDelta without a
// database, mirroring what a real Store.WithTx does but in plain maps.
type fakeStore struct {
	cursors map[string]Cursor
	aggregates map[string]SessionAggregate
	daily map[string]SessionDailyUsage
	hourly map[string]SessionHourlyUsage
	toolDaily map[string]SessionToolDaily
	toolTotal map[string]SessionToolTotal
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		cursors: make(map[string]Cursor),
		aggregates: make(map[string]SessionAggregate),
		daily: make(map[string]SessionDailyUsage),
		hourly: make(map[string]SessionHourlyUsage),
		toolDaily: make(map[string]SessionToolDaily),
		toolTotal: make(map[string]SessionToolTotal),
	}
}

func (s *fakeStore) GetCursor(ctx context.Context, agentID, sessionID string) (*Cursor, error) {
	c, ok := s.cursors[agentID+"|"+sessionID]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (s *fakeStore) UpsertCursor(ctx context.Context, c Cursor) error {
	s.cursors[c.AgentID+"|"+c.SessionID] = c
	return nil
}

func (s *fakeStore) GetAggregate(ctx context.Context, sessionID string) (*SessionAggregate, error) {
	a, ok := s.aggregates[sessionID]
	if !ok {
		return nil, nil
	}
	return &a, nil
}

func (s *fakeStore) UpsertAggregate(ctx context.Context, a SessionAggregate) error {
	s.aggregates[a.SessionID] = a
	return nil
}

func (s *fakeStore) UpsertDaily(ctx context.Context, rows []SessionDailyUsage) error {
	for _, r := range rows {
		key := r.SessionID + "|" + r.DayStart.String() + "|" + r.ModelKey
		existing := s.daily[key]
		existing.SessionID, existing.DayStart, existing.ModelKey = r.SessionID, r.DayStart, r.ModelKey
		existing.Counters = existing.Counters.Add(r.Counters)
		s.daily[key] = existing
	}
	return nil
}

func (s *fakeStore) UpsertHourly(ctx context.Context, rows []SessionHourlyUsage) error {
	for _, r := range rows {
		key := r.SessionID + "|" + r.HourStart.String() + "|" + r.ModelKey
		existing := s.hourly[key]
		existing.SessionID, existing.HourStart, existing.ModelKey = r.SessionID, r.HourStart, r.ModelKey
		existing.Counters = existing.Counters.Add(r.Counters)
		s.hourly[key] = existing
	}
	return nil
}

func (s *fakeStore) UpsertToolDaily(ctx context.Context, rows []SessionToolDaily) error {
	for _, r := range rows {
		key := r.SessionID + "|" + r.DayStart.String() + "|" + r.ToolName
		existing := s.toolDaily[key]
		existing.SessionID, existing.DayStart, existing.ToolName = r.SessionID, r.DayStart, r.ToolName
		existing.CallCount += r.CallCount
		s.toolDaily[key] = existing
	}
	return nil
}

func (s *fakeStore) UpsertToolTotal(ctx context.Context, rows []SessionToolTotal) error {
	for _, r := range rows {
		key := r.SessionID + "|" + r.ToolName
		existing := s.toolTotal[key]
		existing.SessionID, existing.ToolName = r.SessionID, r.ToolName
		existing.CallCount += r.CallCount
		s.toolTotal[key] = existing
	}
	return nil
}

func (s *fakeStore) WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error {
	return fn(ctx, s)
}

func TestMergeAggregateIncrementsCounters(t *testing.T) {
	existing := &SessionAggregate{SessionID: "sess-1", Counters: Counters{TotalTokens: 10}}
	d := NewSessionDelta("sess-1", "agent-1")
	d.Fold(UsageEvent{HasUsage: true, Counters: Counters{TotalTokens: 5}})

	merged := MergeAggregate(existing, d)
	if merged.Counters.TotalTokens != 15 {
		t.Fatalf("TotalTokens = %d, want 15", merged.Counters.TotalTokens)
	}
}

func TestMergeAggregateIdentityCoalesceOverlay(t *testing.T) {
	existing := &SessionAggregate{SessionID: "sess-1", Source: "web"}
	d := NewSessionDelta("sess-1", "agent-1")
	d.Fold(UsageEvent{Source: "overlay", HasUsage: true, Counters: Counters{TotalTokens: 1}})

	merged := MergeAggregate(existing, d)
	if merged.Source != "web" {
		t.Fatalf("Source = %q, want existing value to win (first non-empty)", merged.Source)
	}
}

func TestMergeAggregateHasErrorsStickyOR(t *testing.T) {
	existing := &SessionAggregate{SessionID: "sess-1", HasErrors: true}
	d := NewSessionDelta("sess-1", "agent-1")
	d.Fold(UsageEvent{HasUsage: true, Counters: Counters{TotalTokens: 1}})

	merged := MergeAggregate(existing, d)
	if !merged.HasErrors {
		t.Fatal("expected HasErrors to remain sticky true")
	}
}

func TestMergeAggregateNilExisting(t *testing.T) {
	d := NewSessionDelta("sess-1", "agent-1")
	d.Fold(UsageEvent{Model: "claude-opus-4", HasUsage: true, Counters: Counters{TotalTokens: 7}})

	merged := MergeAggregate(nil, d)
	if merged.SessionID != "sess-1" {
		t.Fatalf("SessionID = %q", merged.SessionID)
	}
	if merged.ProviderKey != "anthropic" {
		t.Fatalf("ProviderKey = %q, want anthropic", merged.ProviderKey)
	}
}

func TestApplyDeltaPersistsAggregateAndDailyRows(t *testing.T) {
	store := newFakeStore()
	ctx := context.Background()
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)

	d := NewSessionDelta("sess-1", "agent-1")
	d.Fold(UsageEvent{SeenAt: now, Model: "claude-opus-4", HasUsage: true, Counters: Counters{TotalTokens: 10}})
	d.Fold(UsageEvent{SeenAt: now, ToolCalls: []string{"bash"}})

	if err := ApplyDelta(ctx, store, d); err != nil {
		t.Fatalf("ApplyDelta failed: %v", err)
	}

	agg, err := store.GetAggregate(ctx, "sess-1")
	if err != nil || agg == nil {
		t.Fatalf("expected persisted aggregate, err=%v", err)
	}
	if agg.Counters.TotalTokens != 10 {
		t.Fatalf("aggregate TotalTokens = %d, want 10", agg.Counters.TotalTokens)
	}
	if len(store.daily) != 1 {
		t.Fatalf("daily rows = %d, want 1", len(store.daily))
	}
	if len(store.toolDaily) != 1 {
		t.Fatalf("toolDaily rows = %d, want 1", len(store.toolDaily))
	}

	// Apply a second delta and confirm increment (not overwrite) semantics.
	d2 := NewSessionDelta("sess-1", "agent-1")
	d2.Fold(UsageEvent{SeenAt: now, Model: "claude-opus-4", HasUsage: true, Counters: Counters{TotalTokens: 5}})
	if err := ApplyDelta(ctx, store, d2); err != nil {
		t.Fatalf("second ApplyDelta failed: %v", err)
	}
	agg, _ = store.GetAggregate(ctx, "sess-1")
	if agg.Counters.TotalTokens != 15 {
		t.Fatalf("aggregate TotalTokens after second delta = %d, want 15", agg.Counters.TotalTokens)
	}
}
