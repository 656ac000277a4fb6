package usage

import (
	"context"
	"testing"
	"time"
)

func TestGetOptionsReturnsDistinctSortedValues(t *testing.T) {
	store := &fakeExploreStore{
		daily: []DailyRow{
			{SessionID: "s1", DayStart: day(2026, 1, 1), AgentID: "a2", Model: "gpt-5", ProviderKey: "openai", Source: "web", SessionClass: "interactive"},
			{SessionID: "s1", DayStart: day(2026, 1, 1), AgentID: "a1", Model: "claude-opus-4", ProviderKey: "anthropic", Source: "overlay", SessionClass: "background_cron"},
		},
		toolDaily: []SessionToolDaily{
			{SessionID: "s1", DayStart: day(2026, 1, 1), ToolName: "bash"},
			{SessionID: "s1", DayStart: day(2026, 1, 1), ToolName: "read"},
		},
	}
	e := NewExplorer(store, NewTTLCache[any](nil))
	q := Normalize(ExploreQuery{Range: Range{From: day(2026, 1, 1), To: day(2026, 1, 1)}}, time.Now())

	opts, err := e.GetOptions(context.Background(), q)
	if err != nil {
		t.Fatalf("GetOptions failed: %v", err)
	}
	if len(opts.AgentIDs) != 2 || opts.AgentIDs[0] != "a1" {
		t.Fatalf("AgentIDs = %v", opts.AgentIDs)
	}
	if len(opts.Models) != 2 {
		t.Fatalf("Models = %v", opts.Models)
	}
	if len(opts.Tools) != 2 || opts.Tools[0] != "bash" {
		t.Fatalf("Tools = %v", opts.Tools)
	}
}

func TestGetOptionsEmptyWhenNoRows(t *testing.T) {
	store := &fakeExploreStore{}
	e := NewExplorer(store, NewTTLCache[any](nil))
	q := Normalize(ExploreQuery{Range: Range{From: day(2026, 1, 1), To: day(2026, 1, 1)}}, time.Now())

	opts, err := e.GetOptions(context.Background(), q)
	if err != nil {
		t.Fatalf("GetOptions failed: %v", err)
	}
	if len(opts.AgentIDs) != 0 || len(opts.Tools) != 0 {
		t.Fatalf("expected empty options, got %+v", opts)
	}
}
