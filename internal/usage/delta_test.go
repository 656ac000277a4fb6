package usage

import (
	"testing"
	"time"
)

func TestSessionDeltaIsEmptyInitially(t *testing.T) {
	d := NewSessionDelta("sess-1", "agent-1")
	if !d.IsEmpty() {
		t.Fatal("expected fresh delta to be empty")
	}
}

func TestSessionDeltaFoldAccumulatesCounters(t *testing.T) {
	d := NewSessionDelta("sess-1", "agent-1")
	t0 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	d.Fold(UsageEvent{SeenAt: t0, Model: "claude-opus-4", HasUsage: true, Counters: Counters{InputTokens: 10, TotalTokens: 10}})
	d.Fold(UsageEvent{SeenAt: t0.Add(time.Hour), Model: "claude-opus-4", HasUsage: true, Counters: Counters{InputTokens: 20, TotalTokens: 20}})

	if d.IsEmpty() {
		t.Fatal("expected non-empty delta after folding")
	}
	if d.Counters.InputTokens != 30 {
		t.Fatalf("InputTokens = %d, want 30", d.Counters.InputTokens)
	}
	if !d.FirstSeenAt.Equal(t0) {
		t.Fatalf("FirstSeenAt = %v, want %v", d.FirstSeenAt, t0)
	}
	if !d.LastSeenAt.Equal(t0.Add(time.Hour)) {
		t.Fatalf("LastSeenAt = %v", d.LastSeenAt)
	}
}

func TestSessionDeltaFirstNonEmptyIdentityWins(t *testing.T) {
	d := NewSessionDelta("sess-1", "agent-1")
	d.Fold(UsageEvent{SessionKey: "web:first", HasUsage: true, Counters: Counters{TotalTokens: 1}})
	d.Fold(UsageEvent{SessionKey: "", HasUsage: true, Counters: Counters{TotalTokens: 1}})
	d.Fold(UsageEvent{SessionKey: "web:second", HasUsage: true, Counters: Counters{TotalTokens: 1}})

	if d.SessionKey != "web:first" {
		t.Fatalf("SessionKey = %q, want first non-empty value to stick", d.SessionKey)
	}
}

func TestSessionDeltaDailyAndHourlyBucketing(t *testing.T) {
	d := NewSessionDelta("sess-1", "agent-1")
	day1 := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	day2 := time.Date(2026, 1, 6, 3, 0, 0, 0, time.UTC)

	d.Fold(UsageEvent{SeenAt: day1, Model: "gpt-5", HasUsage: true, Counters: Counters{TotalTokens: 5}})
	d.Fold(UsageEvent{SeenAt: day2, Model: "gpt-5", HasUsage: true, Counters: Counters{TotalTokens: 7}})

	if len(d.Daily) != 2 {
		t.Fatalf("Daily buckets = %d, want 2", len(d.Daily))
	}
	if len(d.Hourly) != 2 {
		t.Fatalf("Hourly buckets = %d, want 2", len(d.Hourly))
	}
}

func TestSessionDeltaToolCallsCounted(t *testing.T) {
	d := NewSessionDelta("sess-1", "agent-1")
	now := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	d.Fold(UsageEvent{SeenAt: now, ToolCalls: []string{"bash", "read"}})
	d.Fold(UsageEvent{SeenAt: now, ToolCalls: []string{"bash"}})

	if d.ToolTotals["bash"] != 2 {
		t.Fatalf("bash total = %d, want 2", d.ToolTotals["bash"])
	}
	if d.ToolTotals["read"] != 1 {
		t.Fatalf("read total = %d, want 1", d.ToolTotals["read"])
	}
	if len(d.Tools) != 2 {
		t.Fatalf("Tools buckets = %d, want 2 (one per distinct tool for that day)", len(d.Tools))
	}
}

func TestSessionDeltaClassifiesCronOverWorkflow(t *testing.T) {
	d := NewSessionDelta("sess-1", "agent-1")
	d.Fold(UsageEvent{OperationID: "op1234567890", HasUsage: true, Counters: Counters{TotalTokens: 1}})
	if d.SessionClass != ClassBackgroundWorkflow {
		t.Fatalf("class = %v, want background_workflow", d.SessionClass)
	}
	d.Fold(UsageEvent{Source: "cron-runner", HasUsage: true, Counters: Counters{TotalTokens: 1}})
	if d.SessionClass != ClassBackgroundCron {
		t.Fatalf("class = %v, want background_cron after elevation", d.SessionClass)
	}
}

func TestSessionDeltaHasErrorsSticky(t *testing.T) {
	d := NewSessionDelta("sess-1", "agent-1")
	d.Fold(UsageEvent{HasError: true})
	d.Fold(UsageEvent{HasError: false, HasUsage: true, Counters: Counters{TotalTokens: 1}})
	if !d.HasErrors {
		t.Fatal("expected HasErrors to remain sticky true")
	}
}
