package usage

import (
	"context"
	"sort"
	"time"
)

// Options is GetOptions' result: distinct non-empty values per filter
// dimension observed in the filtered result set
type Options struct {
	AgentIDs []string
	Models []string
	Providers []string
	Sources []string
	SessionClass []string
	Tools []string
}

// GetOptions implements GetOptions.
func (e *Explorer) GetOptions(ctx context.Context, q ExploreQuery) (Options, error) {
	key := q.CacheKey("options")
	v, err := e.cache.LoadOrCompute(ctx, key, 15*time.Second, func(ctx context.Context) (any, error) {
		return e.computeOptions(ctx, q)
	})
	if err != nil {
		return Options{}, err
	}
	return v.(Options), nil
}

func (e *Explorer) computeOptions(ctx context.Context, q ExploreQuery) (Options, error) {
	rows, err := e.store.QueryDaily(ctx, q.Range, q.Filters)
	if err != nil {
		return Options{}, err
	}

	agentIDs := make(map[string]bool)
	models := make(map[string]bool)
	providers := make(map[string]bool)
	sources := make(map[string]bool)
	classes := make(map[string]bool)
	sessionIDs := make([]string, 0)
	seenSession := make(map[string]bool)

	for _, r := range rows {
		if !matchesFilters(q.Filters, r.AgentID, r.Model, r.ProviderKey, r.Source, r.SessionClass, r.Counters.CostMicros) {
			continue
		}
		addIfNonEmpty(agentIDs, r.AgentID)
		addIfNonEmpty(models, r.Model)
		addIfNonEmpty(providers, r.ProviderKey)
		addIfNonEmpty(sources, r.Source)
		addIfNonEmpty(classes, r.SessionClass)
		if !seenSession[r.SessionID] {
			seenSession[r.SessionID] = true
			sessionIDs = append(sessionIDs, r.SessionID)
		}
	}

	tools := make(map[string]bool)
	for _, chunk := range chunkSessionIDs(sessionIDs) {
		toolRows, err := e.store.QueryToolDaily(ctx, q.Range, chunk)
		if err != nil {
			return Options{}, err
		}
		for _, tr := range toolRows {
			addIfNonEmpty(tools, tr.ToolName)
		}
	}

	return Options{
		AgentIDs: sortedKeys(agentIDs),
		Models: sortedKeys(models),
		Providers: sortedKeys(providers),
		Sources: sortedKeys(sources),
		SessionClass: sortedKeys(classes),
		Tools: sortedKeys(tools),
	}, nil
}

func addIfNonEmpty(set map[string]bool, v string) {
	if v != "" {
		set[v] = true
	}
}

func sortedKeys(set map[string]bool) []string {
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}
