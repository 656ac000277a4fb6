package pg

import (
	"context"
	"fmt"
	"strings"

	"github.com/clawcontrol/clawcontrol/internal/usage"
)

// filterBuilder builds the WHERE clause fragments shared by every
// Query* method below, joining session_daily_usage/session_hourly_usage
// against session_aggregates for the identity columns Filters selects on
//.
type filterBuilder struct {
	clauses []string
	args []any
}

func (b *filterBuilder) add(clause string, arg any) {
	b.args = append(b.args, arg)
	b.clauses = append(b.clauses, fmt.Sprintf(clause, len(b.args)))
}

func (b *filterBuilder) addList(col string, vals []string) {
	if len(vals) == 0 {
		return
	}
	placeholders := make([]string, len(vals))
	for i, v := range vals {
		b.args = append(b.args, v)
		placeholders[i] = fmt.Sprintf("$%d", len(b.args))
	}
	b.clauses = append(b.clauses, fmt.Sprintf("%s IN (%s)", col, strings.Join(placeholders, ",")))
}

func newFilterBuilder(r usage.Range, f usage.Filters, rangeCol string) *filterBuilder {
	b := &filterBuilder{}
	b.add(rangeCol+" >= $%d", r.From)
	b.add(rangeCol+" < $%d", r.To)
	b.addList("sa.agent_id", f.AgentIDs)
	b.addList("sa.model", f.Models)
	b.addList("sa.provider_key", f.Providers)
	b.addList("sa.source", f.Sources)
	b.addList("sa.session_class", f.SessionClass)
	b.addList("sa.session_id", f.SessionIDs)
	if f.Query != "" {
		b.args = append(b.args, "%"+f.Query+"%")
		b.clauses = append(b.clauses, fmt.Sprintf("(sa.session_key ILIKE $%d OR sa.model ILIKE $%d)", len(b.args), len(b.args)))
	}
	if f.MinCostMicros != nil {
		b.add("sa.cost_micros >= $%d", int64(*f.MinCostMicros))
	}
	return b
}

func (b *filterBuilder) where() string {
	if len(b.clauses) == 0 {
		return ""
	}
	return "WHERE " + strings.Join(b.clauses, " AND ")
}

// QueryDaily implements usage.ExploreStore, joining session_daily_usage
// with session_aggregates for the identity/classification columns a
// DailyRow needs.
func (s *PGUsageStore) QueryDaily(ctx context.Context, r usage.Range, f usage.Filters) ([]usage.DailyRow, error) {
	fb := newFilterBuilder(r, f, "d.day_start")
	query := fmt.Sprintf(`
		SELECT d.session_id, d.day_start, d.model_key, sa.agent_id, sa.model,
		 sa.provider_key, sa.source, sa.session_class,
		 d.input_tokens, d.output_tokens, d.cache_read_tokens,
		 d.cache_write_tokens, d.total_tokens, d.cost_micros
		FROM session_daily_usage d
		JOIN session_aggregates sa ON sa.session_id = d.session_id
		%s
		ORDER BY d.day_start`, fb.where())

	rows, err := s.db.QueryContext(ctx, query, fb.args...)
	if err != nil {
		return nil, fmt.Errorf("query daily: %w", err)
	}
	defer rows.Close()

	var out []usage.DailyRow
	for rows.Next() {
		var r usage.DailyRow
		var class string
		if err := rows.Scan(&r.SessionID, &r.DayStart, &r.ModelKey, &r.AgentID, &r.Model,
			&r.ProviderKey, &r.Source, &class,
			&r.Counters.InputTokens, &r.Counters.OutputTokens, &r.Counters.CacheReadTokens,
			&r.Counters.CacheWriteTokens, &r.Counters.TotalTokens, &r.Counters.CostMicros); err != nil {
			return nil, fmt.Errorf("scan daily row: %w", err)
		}
		r.SessionClass = class
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryHourly mirrors QueryDaily against session_hourly_usage.
func (s *PGUsageStore) QueryHourly(ctx context.Context, r usage.Range, f usage.Filters) ([]usage.HourlyRow, error) {
	fb := newFilterBuilder(r, f, "h.hour_start")
	query := fmt.Sprintf(`
		SELECT h.session_id, h.hour_start, h.model_key,
		 h.input_tokens, h.output_tokens, h.cache_read_tokens,
		 h.cache_write_tokens, h.total_tokens, h.cost_micros
		FROM session_hourly_usage h
		JOIN session_aggregates sa ON sa.session_id = h.session_id
		%s
		ORDER BY h.hour_start`, fb.where())

	rows, err := s.db.QueryContext(ctx, query, fb.args...)
	if err != nil {
		return nil, fmt.Errorf("query hourly: %w", err)
	}
	defer rows.Close()

	var out []usage.HourlyRow
	for rows.Next() {
		var r usage.HourlyRow
		if err := rows.Scan(&r.SessionID, &r.HourStart, &r.ModelKey,
			&r.Counters.InputTokens, &r.Counters.OutputTokens, &r.Counters.CacheReadTokens,
			&r.Counters.CacheWriteTokens, &r.Counters.TotalTokens, &r.Counters.CostMicros); err != nil {
			return nil, fmt.Errorf("scan hourly row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QueryToolDaily returns tool call counts for sessionIDs within r,
// restricted to the session set the caller already resolved.
func (s *PGUsageStore) QueryToolDaily(ctx context.Context, r usage.Range, sessionIDs []string) ([]usage.SessionToolDaily, error) {
	if len(sessionIDs) == 0 {
		return nil, nil
	}
	fb := &filterBuilder{}
	fb.add("t.day_start >= $%d", r.From)
	fb.add("t.day_start < $%d", r.To)
	fb.addList("t.session_id", sessionIDs)

	query := fmt.Sprintf(`
		SELECT t.session_id, t.day_start, t.tool_name, t.call_count
		FROM session_tool_daily t
		%s
		ORDER BY t.day_start`, fb.where())

	rows, err := s.db.QueryContext(ctx, query, fb.args...)
	if err != nil {
		return nil, fmt.Errorf("query tool daily: %w", err)
	}
	defer rows.Close()

	var out []usage.SessionToolDaily
	for rows.Next() {
		var r usage.SessionToolDaily
		if err := rows.Scan(&r.SessionID, &r.DayStart, &r.ToolName, &r.CallCount); err != nil {
			return nil, fmt.Errorf("scan tool daily row: %w", err)
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// QuerySessions returns one collapsed row per session whose aggregate
// falls in [r.From, r.To) and matches f. Models holds only the single
// model recorded on the aggregate row (empty when none is recorded); the
// per-day model keys are not read.
func (s *PGUsageStore) QuerySessions(ctx context.Context, r usage.Range, f usage.Filters) ([]usage.SessionRow, error) {
	fb := newFilterBuilder(r, f, "sa.last_seen_at")
	query := fmt.Sprintf(`
		SELECT sa.session_id, sa.agent_id, sa.session_key, sa.source, sa.channel,
		 sa.kind, sa.session_class, sa.provider_key, sa.operation_id, sa.work_order_id,
		 sa.model, sa.input_tokens, sa.output_tokens, sa.cache_read_tokens,
		 sa.cache_write_tokens, sa.total_tokens, sa.cost_micros, sa.last_seen_at
		FROM session_aggregates sa
		%s
		ORDER BY sa.last_seen_at DESC`, fb.where())

	rows, err := s.db.QueryContext(ctx, query, fb.args...)
	if err != nil {
		return nil, fmt.Errorf("query sessions: %w", err)
	}
	defer rows.Close()

	var out []usage.SessionRow
	for rows.Next() {
		var r usage.SessionRow
		var class, model string
		if err := rows.Scan(&r.SessionID, &r.AgentID, &r.SessionKey, &r.Source, &r.Channel,
			&r.Kind, &class, &r.ProviderKey, &r.OperationID, &r.WorkOrderID,
			&model, &r.Counters.InputTokens, &r.Counters.OutputTokens, &r.Counters.CacheReadTokens,
			&r.Counters.CacheWriteTokens, &r.Counters.TotalTokens, &r.Counters.CostMicros, &r.LastSeenAt); err != nil {
			return nil, fmt.Errorf("scan session row: %w", err)
		}
		r.SessionClass = class
		if model != "" {
			r.Models = []string{model}
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

var _ usage.ExploreStore = (*PGUsageStore)(nil)
