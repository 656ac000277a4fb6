// Package usage implements the ClawControl usage ingestion, aggregation,
// parity-scope, and explore-query core.
package usage

import "time"

// Micros is an integer micro-USD amount (10⁻⁶ USD)
type Micros int64

// MicrosFromUSD rounds a USD float to the nearest micro-USD.
func MicrosFromUSD(usd float64) Micros {
	return Micros(int64(usd*1_000_000 + sign(usd)*0.5))
}

func sign(f float64) float64 {
	if f < 0 {
		return -1
	}
	return 1
}

// Counters holds the six token/cost counters that appear on every
// aggregate row in the data model.
type Counters struct {
	InputTokens int64
	OutputTokens int64
	CacheReadTokens int64
	CacheWriteTokens int64
	TotalTokens int64
	CostMicros Micros
}

// Add returns the element-wise sum of c and o. Never produces a negative
// counter ("64-bit addition, never negative").
func (c Counters) Add(o Counters) Counters {
	return Counters{
		InputTokens: clampAdd(c.InputTokens, o.InputTokens),
		OutputTokens: clampAdd(c.OutputTokens, o.OutputTokens),
		CacheReadTokens: clampAdd(c.CacheReadTokens, o.CacheReadTokens),
		CacheWriteTokens: clampAdd(c.CacheWriteTokens, o.CacheWriteTokens),
		TotalTokens: clampAdd(c.TotalTokens, o.TotalTokens),
		CostMicros: Micros(clampAdd(int64(c.CostMicros), int64(o.CostMicros))),
	}
}

func clampAdd(a, b int64) int64 {
	sum := a + b
	if sum < 0 {
		return 0
	}
	return sum
}

// UsageEvent is one parsed JSONL line
type UsageEvent struct {
	SeenAt time.Time
	Model string
	SessionKey string
	Source string
	Channel string
	Kind string
	OperationID string
	WorkOrderID string

	Counters Counters
	ToolCalls []string // lowercased, trimmed, deduped within the event

	HasError bool
	HasUsage bool
}

// SessionClass ranks, in priority order (cron > workflow >
// interactive > unknown).
type SessionClass string

const (
	ClassUnknown SessionClass = "unknown"
	ClassInteractive SessionClass = "interactive"
	ClassBackgroundWorkflow SessionClass = "background_workflow"
	ClassBackgroundCron SessionClass = "background_cron"
)

var classRank = map[SessionClass]int{
	ClassUnknown: 0,
	ClassInteractive: 1,
	ClassBackgroundWorkflow: 2,
	ClassBackgroundCron: 3,
}

// MaxClass returns the higher-ranked of a and b.
func MaxClass(a, b SessionClass) SessionClass {
	if classRank[b] > classRank[a] {
		return b
	}
	return a
}

// DayStart floors t to the UTC midnight it falls in.
func DayStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), 0, 0, 0, 0, time.UTC)
}

// HourStart floors t to the UTC hour it falls in.
func HourStart(t time.Time) time.Time {
	u := t.UTC()
	return time.Date(u.Year(), u.Month(), u.Day(), u.Hour(), 0, 0, 0, time.UTC)
}
