package usage

import (
	"context"
	"sort"
	"time"
)

// BreakdownRow is one group in GetBreakdown's result
type BreakdownRow struct {
	Key string
	Counters Counters
}

// GetBreakdown implements GetBreakdown, grouping filtered
// daily usage by agent, model, provider, source, sessionClass, or — with
// proportional tool-call attribution — tool.
func (e *Explorer) GetBreakdown(ctx context.Context, q ExploreQuery, groupBy GroupBy) ([]BreakdownRow, error) {
	key := q.CacheKey("breakdown:" + string(groupBy))
	v, err := e.cache.LoadOrCompute(ctx, key, 15*time.Second, func(ctx context.Context) (any, error) {
		return e.computeBreakdown(ctx, q, groupBy)
	})
	if err != nil {
		return nil, err
	}
	return v.([]BreakdownRow), nil
}

func (e *Explorer) computeBreakdown(ctx context.Context, q ExploreQuery, groupBy GroupBy) ([]BreakdownRow, error) {
	rows, err := e.store.QueryDaily(ctx, q.Range, q.Filters)
	if err != nil {
		return nil, err
	}

	filtered := make([]DailyRow, 0, len(rows))
	for _, r := range rows {
		if !matchesFilters(q.Filters, r.AgentID, r.Model, r.ProviderKey, r.Source, r.SessionClass, r.Counters.CostMicros) {
			continue
		}
		if !matchesQuery(q.Filters.Query, r.SessionID, r.AgentID, r.Source, r.SessionClass, r.ProviderKey, r.Model) {
			continue
		}
		filtered = append(filtered, r)
	}

	var totals map[string]Counters
	if groupBy == GroupByTool {
		totals, err = e.toolBreakdown(ctx, q.Range, filtered)
		if err != nil {
			return nil, err
		}
	} else {
		totals = make(map[string]Counters)
		for _, r := range filtered {
			totals[groupKeyOf(groupBy, r)] = totals[groupKeyOf(groupBy, r)].Add(r.Counters)
		}
	}

	out := make([]BreakdownRow, 0, len(totals))
	for k, c := range totals {
		out = append(out, BreakdownRow{Key: k, Counters: c})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Counters.CostMicros != out[j].Counters.CostMicros {
			return out[i].Counters.CostMicros > out[j].Counters.CostMicros
		}
		return out[i].Key < out[j].Key
	})
	return out, nil
}

func groupKeyOf(groupBy GroupBy, r DailyRow) string {
	switch groupBy {
	case GroupByAgent:
		return nonEmptyOr(r.AgentID, "unknown")
	case GroupByModel:
		return ModelKey(r.Model)
	case GroupByProvider:
		return nonEmptyOr(r.ProviderKey, "unknown")
	case GroupBySource:
		return nonEmptyOr(r.Source, "unknown")
	case GroupBySessionClass:
		return string(r.SessionClass)
	default:
		return "unknown"
	}
}

func nonEmptyOr(v, fallback string) string {
	if v == "" {
		return fallback
	}
	return v
}

// toolBreakdown implements the weighted attribution rule from:
// for each (sessionId, dayStart) daily row, distribute its token/cost
// counters across that day's tool-daily rows proportionally to
// call_count; a day with no tool rows attributes fully to "unknown"; the
// integer-division remainder is added to the heaviest-weight tool (ties
// broken by first occurrence).
func (e *Explorer) toolBreakdown(ctx context.Context, rng Range, daily []DailyRow) (map[string]Counters, error) {
	sessionIDs := make([]string, 0, len(daily))
	seen := make(map[string]bool)
	for _, r := range daily {
		if !seen[r.SessionID] {
			seen[r.SessionID] = true
			sessionIDs = append(sessionIDs, r.SessionID)
		}
	}

	type sessionDay struct {
		SessionID string
		Day time.Time
	}
	toolRows := make(map[sessionDay][]SessionToolDaily)
	for _, chunk := range chunkSessionIDs(sessionIDs) {
		rows, err := e.store.QueryToolDaily(ctx, rng, chunk)
		if err != nil {
			return nil, err
		}
		for _, tr := range rows {
			k := sessionDay{SessionID: tr.SessionID, Day: tr.DayStart}
			toolRows[k] = append(toolRows[k], tr)
		}
	}

	totals := make(map[string]Counters)
	for _, r := range daily {
		tools := toolRows[sessionDay{SessionID: r.SessionID, Day: r.DayStart}]
		if len(tools) == 0 {
			totals["unknown"] = totals["unknown"].Add(r.Counters)
			continue
		}

		var callTotal int64
		for _, t := range tools {
			callTotal += t.CallCount
		}
		if callTotal <= 0 {
			totals["unknown"] = totals["unknown"].Add(r.Counters)
			continue
		}

		distributeField(totals, tools, callTotal, r.Counters.InputTokens, func(c Counters, v int64) Counters { c.InputTokens = v; return c })
		distributeField(totals, tools, callTotal, r.Counters.OutputTokens, func(c Counters, v int64) Counters { c.OutputTokens = v; return c })
		distributeField(totals, tools, callTotal, r.Counters.CacheReadTokens, func(c Counters, v int64) Counters { c.CacheReadTokens = v; return c })
		distributeField(totals, tools, callTotal, r.Counters.CacheWriteTokens, func(c Counters, v int64) Counters { c.CacheWriteTokens = v; return c })
		distributeField(totals, tools, callTotal, r.Counters.TotalTokens, func(c Counters, v int64) Counters { c.TotalTokens = v; return c })
		distributeField(totals, tools, callTotal, int64(r.Counters.CostMicros), func(c Counters, v int64) Counters { c.CostMicros = Micros(v); return c })
	}
	return totals, nil
}

// distributeField splits amount across tools proportionally to call
// count, adding each tool's integer share to totals[tool], then adds the
// remainder to the heaviest-weight tool (first occurrence on tie).
func distributeField(totals map[string]Counters, tools []SessionToolDaily, callTotal, amount int64, set func(Counters, int64) Counters) {
	if amount == 0 {
		return
	}
	shares := make([]int64, len(tools))
	var distributed int64
	heaviestIdx := 0
	for i, t := range tools {
		share := amount * t.CallCount / callTotal
		shares[i] = share
		distributed += share
		if t.CallCount > tools[heaviestIdx].CallCount {
			heaviestIdx = i
		}
	}
	remainder := amount - distributed
	shares[heaviestIdx] += remainder

	for i, t := range tools {
		if shares[i] == 0 {
			continue
		}
		cur := totals[t.ToolName]
		totals[t.ToolName] = addField(cur, shares[i], set)
	}
}

func addField(c Counters, delta int64, set func(Counters, int64) Counters) Counters {
	zero := set(Counters{}, delta)
	c.InputTokens += zero.InputTokens
	c.OutputTokens += zero.OutputTokens
	c.CacheReadTokens += zero.CacheReadTokens
	c.CacheWriteTokens += zero.CacheWriteTokens
	c.TotalTokens += zero.TotalTokens
	c.CostMicros += zero.CostMicros
	return c
}
