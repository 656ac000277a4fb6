package usage

import (
	"context"
	"testing"
	"time"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestGetSummaryAggregatesAndZeroFillsSeries(t *testing.T) {
	store := &fakeExploreStore{daily: []DailyRow{
		{SessionID: "s1", DayStart: day(2026, 1, 1), ModelKey: "claude-opus-4", AgentID: "a1", Model: "claude-opus-4", ProviderKey: "anthropic", Counters: Counters{InputTokens: 10, CacheReadTokens: 5, TotalTokens: 15, CostMicros: 1000}},
		{SessionID: "s2", DayStart: day(2026, 1, 3), ModelKey: "gpt-5", AgentID: "a2", Model: "gpt-5", ProviderKey: "openai", Counters: Counters{InputTokens: 20, TotalTokens: 20, CostMicros: 2000}},
	}}
	e := NewExplorer(store, NewTTLCache[any](nil))

	q := Normalize(ExploreQuery{Range: Range{From: day(2026, 1, 1), To: day(2026, 1, 3)}}, time.Now())
	summary, err := e.GetSummary(context.Background(), q)
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if summary.SessionCount != 2 {
		t.Fatalf("SessionCount = %d, want 2", summary.SessionCount)
	}
	if summary.Counters.TotalTokens != 35 {
		t.Fatalf("TotalTokens = %d, want 35", summary.Counters.TotalTokens)
	}
	if len(summary.Series) != 3 {
		t.Fatalf("Series length = %d, want 3 (zero-filled inclusive days)", len(summary.Series))
	}
	if summary.Series[1].Counters.TotalTokens != 0 {
		t.Fatalf("expected day 2 to be zero-filled, got %+v", summary.Series[1])
	}
	wantEff := float64(5) / float64(5+30) * 100
	if summary.CacheEfficiencyPct != wantEff {
		t.Fatalf("CacheEfficiencyPct = %v, want %v", summary.CacheEfficiencyPct, wantEff)
	}
}

func TestGetSummaryAppliesAgentFilter(t *testing.T) {
	store := &fakeExploreStore{daily: []DailyRow{
		{SessionID: "s1", DayStart: day(2026, 1, 1), AgentID: "a1", Counters: Counters{TotalTokens: 10}},
		{SessionID: "s2", DayStart: day(2026, 1, 1), AgentID: "a2", Counters: Counters{TotalTokens: 20}},
	}}
	e := NewExplorer(store, NewTTLCache[any](nil))
	q := Normalize(ExploreQuery{
		Range: Range{From: day(2026, 1, 1), To: day(2026, 1, 1)},
		Filters: Filters{AgentIDs: []string{"a1"}},
	}, time.Now())

	summary, err := e.GetSummary(context.Background(), q)
	if err != nil {
		t.Fatalf("GetSummary failed: %v", err)
	}
	if summary.Counters.TotalTokens != 10 {
		t.Fatalf("TotalTokens = %d, want 10 (filtered to a1)", summary.Counters.TotalTokens)
	}
}

func TestGetSummaryCachesResult(t *testing.T) {
	store := &fakeExploreStore{daily: []DailyRow{
		{SessionID: "s1", DayStart: day(2026, 1, 1), Counters: Counters{TotalTokens: 10}},
	}}
	cache := NewTTLCache[any](nil)
	e := NewExplorer(store, cache)
	q := Normalize(ExploreQuery{Range: Range{From: day(2026, 1, 1), To: day(2026, 1, 1)}}, time.Now())

	s1, err := e.GetSummary(context.Background(), q)
	if err != nil {
		t.Fatalf("first GetSummary failed: %v", err)
	}
	store.daily = nil // mutate backing store; cached result should mask this
	s2, err := e.GetSummary(context.Background(), q)
	if err != nil {
		t.Fatalf("second GetSummary failed: %v", err)
	}
	if s1.Counters.TotalTokens != s2.Counters.TotalTokens {
		t.Fatalf("expected cached summary, got %+v vs %+v", s1, s2)
	}
}
