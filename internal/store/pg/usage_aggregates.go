package pg

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/clawcontrol/clawcontrol/internal/usage"
)

// GetAggregate reads the persisted SessionAggregate row for sessionID, or
// (nil, nil) when the session has never been seen.
func (s *PGUsageStore) GetAggregate(ctx context.Context, sessionID string) (*usage.SessionAggregate, error) {
	var a usage.SessionAggregate
	var class string
	err := s.db.QueryRowContext(ctx, `
		SELECT session_id, agent_id, session_key, source, channel, kind,
		 model, operation_id, work_order_id, provider_key, session_class,
		 input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
		 total_tokens, cost_micros, first_seen_at, last_seen_at, has_errors
		FROM session_aggregates WHERE session_id = $1`, sessionID).Scan(&a.SessionID, &a.AgentID, &a.SessionKey, &a.Source, &a.Channel, &a.Kind,
		&a.Model, &a.OperationID, &a.WorkOrderID, &a.ProviderKey, &class,
		&a.Counters.InputTokens, &a.Counters.OutputTokens, &a.Counters.CacheReadTokens,
		&a.Counters.CacheWriteTokens, &a.Counters.TotalTokens, &a.Counters.CostMicros,
		&a.FirstSeenAt, &a.LastSeenAt, &a.HasErrors)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("get aggregate: %w", err)
	}
	a.SessionClass = usage.SessionClass(class)
	return &a, nil
}

// UpsertAggregate writes the merged aggregate. Identity and classification
// fields are overwritten outright (MergeAggregate already applied the
// coalesce-then-overlay rule before calling this); the counter fields are
// likewise overwritten with their already-summed values, not
// incremented again here — MergeAggregate is the single place increment
// semantics are applied for this table.
func (s *PGUsageStore) UpsertAggregate(ctx context.Context, a usage.SessionAggregate) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO session_aggregates
			(session_id, agent_id, session_key, source, channel, kind, model,
			 operation_id, work_order_id, provider_key, session_class,
			 input_tokens, output_tokens, cache_read_tokens, cache_write_tokens,
			 total_tokens, cost_micros, first_seen_at, last_seen_at, has_errors)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,$17,$18,$19,$20)
		ON CONFLICT (session_id) DO UPDATE SET
			agent_id = EXCLUDED.agent_id,
			session_key = EXCLUDED.session_key,
			source = EXCLUDED.source,
			channel = EXCLUDED.channel,
			kind = EXCLUDED.kind,
			model = EXCLUDED.model,
			operation_id = EXCLUDED.operation_id,
			work_order_id = EXCLUDED.work_order_id,
			provider_key = EXCLUDED.provider_key,
			session_class = EXCLUDED.session_class,
			input_tokens = EXCLUDED.input_tokens,
			output_tokens = EXCLUDED.output_tokens,
			cache_read_tokens = EXCLUDED.cache_read_tokens,
			cache_write_tokens = EXCLUDED.cache_write_tokens,
			total_tokens = EXCLUDED.total_tokens,
			cost_micros = EXCLUDED.cost_micros,
			first_seen_at = EXCLUDED.first_seen_at,
			last_seen_at = EXCLUDED.last_seen_at,
			has_errors = EXCLUDED.has_errors`,
		a.SessionID, a.AgentID, a.SessionKey, a.Source, a.Channel, a.Kind,
		a.Model, a.OperationID, a.WorkOrderID, a.ProviderKey, string(a.SessionClass),
		a.Counters.InputTokens, a.Counters.OutputTokens, a.Counters.CacheReadTokens,
		a.Counters.CacheWriteTokens, a.Counters.TotalTokens, int64(a.Counters.CostMicros),
		a.FirstSeenAt, a.LastSeenAt, a.HasErrors)
	if err != nil {
		return fmt.Errorf("upsert aggregate: %w", err)
	}
	return nil
}

// UpsertDaily upserts SessionDailyUsage rows with increment semantics on
// every counter, keyed by (session_id, day_start, model_key)
func (s *PGUsageStore) UpsertDaily(ctx context.Context, rows []usage.SessionDailyUsage) error {
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO session_daily_usage
				(session_id, day_start, model_key, input_tokens, output_tokens,
				 cache_read_tokens, cache_write_tokens, total_tokens, cost_micros)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (session_id, day_start, model_key) DO UPDATE SET
				input_tokens = session_daily_usage.input_tokens + EXCLUDED.input_tokens,
				output_tokens = session_daily_usage.output_tokens + EXCLUDED.output_tokens,
				cache_read_tokens = session_daily_usage.cache_read_tokens + EXCLUDED.cache_read_tokens,
				cache_write_tokens = session_daily_usage.cache_write_tokens + EXCLUDED.cache_write_tokens,
				total_tokens = session_daily_usage.total_tokens + EXCLUDED.total_tokens,
				cost_micros = session_daily_usage.cost_micros + EXCLUDED.cost_micros`,
			r.SessionID, r.DayStart, r.ModelKey,
			r.Counters.InputTokens, r.Counters.OutputTokens, r.Counters.CacheReadTokens,
			r.Counters.CacheWriteTokens, r.Counters.TotalTokens, int64(r.Counters.CostMicros))
		if err != nil {
			return fmt.Errorf("upsert daily: %w", err)
		}
	}
	return nil
}

// UpsertHourly mirrors UpsertDaily for the hourly table.
func (s *PGUsageStore) UpsertHourly(ctx context.Context, rows []usage.SessionHourlyUsage) error {
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO session_hourly_usage
				(session_id, hour_start, model_key, input_tokens, output_tokens,
				 cache_read_tokens, cache_write_tokens, total_tokens, cost_micros)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
			ON CONFLICT (session_id, hour_start, model_key) DO UPDATE SET
				input_tokens = session_hourly_usage.input_tokens + EXCLUDED.input_tokens,
				output_tokens = session_hourly_usage.output_tokens + EXCLUDED.output_tokens,
				cache_read_tokens = session_hourly_usage.cache_read_tokens + EXCLUDED.cache_read_tokens,
				cache_write_tokens = session_hourly_usage.cache_write_tokens + EXCLUDED.cache_write_tokens,
				total_tokens = session_hourly_usage.total_tokens + EXCLUDED.total_tokens,
				cost_micros = session_hourly_usage.cost_micros + EXCLUDED.cost_micros`,
			r.SessionID, r.HourStart, r.ModelKey,
			r.Counters.InputTokens, r.Counters.OutputTokens, r.Counters.CacheReadTokens,
			r.Counters.CacheWriteTokens, r.Counters.TotalTokens, int64(r.Counters.CostMicros))
		if err != nil {
			return fmt.Errorf("upsert hourly: %w", err)
		}
	}
	return nil
}

// UpsertToolDaily increments call_count for (session_id, day_start, tool_name).
func (s *PGUsageStore) UpsertToolDaily(ctx context.Context, rows []usage.SessionToolDaily) error {
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO session_tool_daily (session_id, day_start, tool_name, call_count)
			VALUES ($1,$2,$3,$4)
			ON CONFLICT (session_id, day_start, tool_name) DO UPDATE SET
				call_count = session_tool_daily.call_count + EXCLUDED.call_count`,
			r.SessionID, r.DayStart, r.ToolName, r.CallCount)
		if err != nil {
			return fmt.Errorf("upsert tool daily: %w", err)
		}
	}
	return nil
}

// UpsertToolTotal increments call_count for (session_id, tool_name).
func (s *PGUsageStore) UpsertToolTotal(ctx context.Context, rows []usage.SessionToolTotal) error {
	for _, r := range rows {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO session_tool_totals (session_id, tool_name, call_count)
			VALUES ($1,$2,$3)
			ON CONFLICT (session_id, tool_name) DO UPDATE SET
				call_count = session_tool_totals.call_count + EXCLUDED.call_count`,
			r.SessionID, r.ToolName, r.CallCount)
		if err != nil {
			return fmt.Errorf("upsert tool total: %w", err)
		}
	}
	return nil
}
