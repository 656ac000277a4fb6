package usage

import (
	"context"
	"sort"
	"time"
)

// SessionSummary is one row of GetSessions' paginated result.
type SessionSummary struct {
	SessionID string
	AgentID string
	SessionKey string
	Source string
	Channel string
	Kind string
	SessionClass string
	ProviderKey string
	OperationID string
	WorkOrderID string
	Models []string // top 5 model labels
	ModelCount int // distinct modelKeys across the session
	Counters Counters
	LastSeenAt time.Time
}

// SessionsPage is GetSessions' paginated result envelope.
type SessionsPage struct {
	Sessions []SessionSummary
	Total int
	Page int
	PageSize int
}

const maxModelLabels = 5

// GetSessions implements GetSessions: collapses daily
// aggregates per session, sorts by the chosen key, and paginates.
func (e *Explorer) GetSessions(ctx context.Context, q ExploreQuery) (SessionsPage, error) {
	key := q.CacheKey("sessions")
	v, err := e.cache.LoadOrCompute(ctx, key, 15*time.Second, func(ctx context.Context) (any, error) {
		return e.computeSessions(ctx, q)
	})
	if err != nil {
		return SessionsPage{}, err
	}
	return v.(SessionsPage), nil
}

func (e *Explorer) computeSessions(ctx context.Context, q ExploreQuery) (SessionsPage, error) {
	rows, err := e.store.QueryDaily(ctx, q.Range, q.Filters)
	if err != nil {
		return SessionsPage{}, err
	}

	type accum struct {
		summary SessionSummary
		modelSeen map[string]bool
		modelOrder []string
	}
	bySession := make(map[string]*accum)
	order := make([]string, 0)

	for _, r := range rows {
		if !matchesFilters(q.Filters, r.AgentID, r.Model, r.ProviderKey, r.Source, r.SessionClass, r.Counters.CostMicros) {
			continue
		}
		if !matchesQuery(q.Filters.Query, r.SessionID, r.AgentID, r.Source, r.SessionClass, r.ProviderKey, r.Model) {
			continue
		}

		a, ok := bySession[r.SessionID]
		if !ok {
			a = &accum{
				summary: SessionSummary{
					SessionID: r.SessionID,
					AgentID: r.AgentID,
					Source: r.Source,
					SessionClass: r.SessionClass,
					ProviderKey: r.ProviderKey,
				},
				modelSeen: make(map[string]bool),
			}
			bySession[r.SessionID] = a
			order = append(order, r.SessionID)
		}
		a.summary.Counters = a.summary.Counters.Add(r.Counters)
		if r.DayStart.After(a.summary.LastSeenAt) {
			a.summary.LastSeenAt = r.DayStart
		}

		label := modelLabel(r.Model, r.ModelKey)
		if !a.modelSeen[r.ModelKey] {
			a.modelSeen[r.ModelKey] = true
			a.modelOrder = append(a.modelOrder, label)
		}
	}

	summaries := make([]SessionSummary, 0, len(order))
	for _, sid := range order {
		a := bySession[sid]
		a.summary.ModelCount = len(a.modelSeen)
		if len(a.modelOrder) > maxModelLabels {
			a.summary.Models = a.modelOrder[:maxModelLabels]
		} else {
			a.summary.Models = a.modelOrder
		}
		summaries = append(summaries, a.summary)
	}

	sortSessions(summaries, q.Sort)

	total := len(summaries)
	start := (q.Page - 1) * q.PageSize
	if start > total {
		start = total
	}
	end := start + q.PageSize
	if end > total {
		end = total
	}

	return SessionsPage{
		Sessions: summaries[start:end],
		Total: total,
		Page: q.Page,
		PageSize: q.PageSize,
	}, nil
}

// modelLabel is the model label used in GetSessions: the model string if
// present, else the modelKey; "unknown" if both are empty.
func modelLabel(model, modelKey string) string {
	if model != "" {
		return model
	}
	if modelKey != "" {
		return modelKey
	}
	return "unknown"
}

func sortSessions(rows []SessionSummary, s Sort) {
	switch s {
	case SortTokensDesc:
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Counters.TotalTokens > rows[j].Counters.TotalTokens })
	case SortRecentDesc:
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].LastSeenAt.After(rows[j].LastSeenAt) })
	default:
		sort.SliceStable(rows, func(i, j int) bool { return rows[i].Counters.CostMicros > rows[j].Counters.CostMicros })
	}
}
