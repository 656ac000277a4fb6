package usage

import (
	"context"
	"testing"
	"time"
)

func TestGetActivityReturnsAll168BucketsZeroFilled(t *testing.T) {
	store := &fakeExploreStore{}
	e := NewExplorer(store, NewTTLCache[any](nil))
	q := Normalize(ExploreQuery{}, time.Now())

	buckets, err := e.GetActivity(context.Background(), q)
	if err != nil {
		t.Fatalf("GetActivity failed: %v", err)
	}
	if len(buckets) != 7*24 {
		t.Fatalf("buckets = %d, want 168", len(buckets))
	}
}

func TestGetActivityBucketsByLocalWeekdayHour(t *testing.T) {
	// 2026-01-05 is a Monday. 10:00 UTC.
	hourUTC := time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC)
	store := &fakeExploreStore{hourly: []HourlyRow{
		{SessionID: "s1", HourStart: hourUTC, ModelKey: "claude-opus-4", Counters: Counters{TotalTokens: 10}},
	}}
	e := NewExplorer(store, NewTTLCache[any](nil))
	q := Normalize(ExploreQuery{Range: Range{Timezone: "UTC"}}, time.Now())

	buckets, err := e.GetActivity(context.Background(), q)
	if err != nil {
		t.Fatalf("GetActivity failed: %v", err)
	}
	var found bool
	for _, b := range buckets {
		if b.Weekday == time.Monday && b.Hour == 10 {
			found = true
			if b.Counters.TotalTokens != 10 {
				t.Fatalf("bucket TotalTokens = %d, want 10", b.Counters.TotalTokens)
			}
		} else if b.Counters.TotalTokens != 0 {
			t.Fatalf("unexpected non-zero bucket at weekday=%v hour=%d", b.Weekday, b.Hour)
		}
	}
	if !found {
		t.Fatal("expected Monday 10:00 bucket to be present")
	}
}

func TestGetActivityFallsBackToUTCOnInvalidTimezone(t *testing.T) {
	store := &fakeExploreStore{hourly: []HourlyRow{
		{SessionID: "s1", HourStart: time.Date(2026, 1, 5, 10, 0, 0, 0, time.UTC), Counters: Counters{TotalTokens: 1}},
	}}
	e := NewExplorer(store, NewTTLCache[any](nil))
	q := Normalize(ExploreQuery{Range: Range{Timezone: "Not/A_Real_Zone"}}, time.Now())

	buckets, err := e.GetActivity(context.Background(), q)
	if err != nil {
		t.Fatalf("GetActivity failed: %v", err)
	}
	var total int64
	for _, b := range buckets {
		total += b.Counters.TotalTokens
	}
	if total != 1 {
		t.Fatalf("total across buckets = %d, want 1 (invalid zone must still bucket via UTC fallback)", total)
	}
}
