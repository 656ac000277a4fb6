package usage

import (
	"context"
	"time"
)

// DailyPoint is one zero-filled day in a Summary's series.
type DailyPoint struct {
	Day time.Time
	Counters Counters
}

// Summary is GetSummary's result
type Summary struct {
	Counters Counters
	CacheEfficiencyPct float64
	SessionCount int
	AvgCostPerDay Micros
	AvgTokensPerDay int64
	Series []DailyPoint
}

// Explorer implements the Explore Query Engine, backed by an
// ExploreStore and a 15s TTL cache of its own (separate from the Parity
// Scope Resolver's cache, since the two have disjoint key spaces).
type Explorer struct {
	store ExploreStore
	cache *TTLCache[any]
}

// NewExplorer builds an Explorer.
func NewExplorer(store ExploreStore, cache *TTLCache[any]) *Explorer {
	return &Explorer{store: store, cache: cache}
}

// GetSummary implements GetSummary.
func (e *Explorer) GetSummary(ctx context.Context, q ExploreQuery) (Summary, error) {
	key := q.CacheKey("summary")
	v, err := e.cache.LoadOrCompute(ctx, key, 15*time.Second, func(ctx context.Context) (any, error) {
		return e.computeSummary(ctx, q)
	})
	if err != nil {
		return Summary{}, err
	}
	return v.(Summary), nil
}

func (e *Explorer) computeSummary(ctx context.Context, q ExploreQuery) (Summary, error) {
	rows, err := e.store.QueryDaily(ctx, q.Range, q.Filters)
	if err != nil {
		return Summary{}, err
	}

	byDay := make(map[time.Time]Counters)
	sessions := make(map[string]bool)
	var total Counters
	for _, r := range rows {
		if !matchesFilters(q.Filters, r.AgentID, r.Model, r.ProviderKey, r.Source, r.SessionClass, r.Counters.CostMicros) {
			continue
		}
		if !matchesQuery(q.Filters.Query, r.SessionID, r.AgentID, r.Source, r.SessionClass, r.ProviderKey, r.Model) {
			continue
		}
		total = total.Add(r.Counters)
		byDay[r.DayStart] = byDay[r.DayStart].Add(r.Counters)
		sessions[r.SessionID] = true
	}

	days := inclusiveDays(q.Range.From, q.Range.To)
	series := make([]DailyPoint, 0, len(days))
	for _, d := range days {
		series = append(series, DailyPoint{Day: d, Counters: byDay[d]})
	}

	summary := Summary{
		Counters: total,
		SessionCount: len(sessions),
		Series: series,
	}
	if total.CacheReadTokens+total.InputTokens > 0 {
		summary.CacheEfficiencyPct = float64(total.CacheReadTokens) / float64(total.CacheReadTokens+total.InputTokens) * 100
	}
	if n := len(days); n > 0 {
		summary.AvgCostPerDay = Micros(int64(total.CostMicros) / int64(n))
		summary.AvgTokensPerDay = total.TotalTokens / int64(n)
	}
	return summary, nil
}

// inclusiveDays returns every UTC day-start from from through to,
// inclusive of both ends, for the dense zero-filled series.
func inclusiveDays(from, to time.Time) []time.Time {
	start := DayStart(from)
	end := DayStart(to)
	var out []time.Time
	for d := start; !d.After(end); d = d.AddDate(0, 0, 1) {
		out = append(out, d)
	}
	return out
}
