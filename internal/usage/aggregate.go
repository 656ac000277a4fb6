package usage

import (
	"context"
	"time"
)

// SessionAggregate is the persisted per-session rollup
type SessionAggregate struct {
	SessionID string

	AgentID string
	SessionKey string
	Source string
	Channel string
	Kind string
	Model string
	OperationID string
	WorkOrderID string

	ProviderKey string
	SessionClass SessionClass

	Counters Counters

	FirstSeenAt time.Time
	LastSeenAt time.Time

	HasErrors bool
}

// SessionDailyUsage is one (session, day, model) row
type SessionDailyUsage struct {
	SessionID string
	DayStart time.Time
	ModelKey string
	Counters Counters
}

// SessionHourlyUsage is one (session, hour, model) row
type SessionHourlyUsage struct {
	SessionID string
	HourStart time.Time
	ModelKey string
	Counters Counters
}

// SessionToolDaily is one (session, day, tool) row
type SessionToolDaily struct {
	SessionID string
	DayStart time.Time
	ToolName string
	CallCount int64
}

// SessionToolTotal is one (session, tool) row
type SessionToolTotal struct {
	SessionID string
	ToolName string
	CallCount int64
}

// MergeAggregate applies a delta onto an existing aggregate (or a zero
// aggregate when existing is nil): every numeric field
// uses increment semantics; identity fields keep the existing non-empty
// value and take the delta's value only where the existing one is empty
// (firstNonEmpty(existing, delta)); sessionClass is re-derived
// then elevated to the max rank of {existing, delta, derived}; hasErrors
// is a sticky OR.
func MergeAggregate(existing *SessionAggregate, d *SessionDelta) SessionAggregate {
	var out SessionAggregate
	if existing != nil {
		out = *existing
	} else {
		out.SessionID = d.SessionID
	}

	out.AgentID = firstNonEmpty(out.AgentID, d.AgentID)
	out.SessionKey = firstNonEmpty(out.SessionKey, d.SessionKey)
	out.Source = firstNonEmpty(out.Source, d.Source)
	out.Channel = firstNonEmpty(out.Channel, d.Channel)
	out.Kind = firstNonEmpty(out.Kind, d.Kind)
	out.Model = firstNonEmpty(out.Model, d.Model)
	out.OperationID = firstNonEmpty(out.OperationID, d.OperationID)
	out.WorkOrderID = firstNonEmpty(out.WorkOrderID, d.WorkOrderID)

	out.ProviderKey = ProviderKey(out.Model)

	derived := ClassifySession(IdentityHints{
		Source: out.Source,
		Channel: out.Channel,
		SessionKey: out.SessionKey,
		SessionKind: out.Kind,
		OperationID: out.OperationID,
		WorkOrderID: out.WorkOrderID,
	})
	class := MaxClass(out.SessionClass, d.SessionClass)
	out.SessionClass = MaxClass(class, derived)

	out.Counters = out.Counters.Add(d.Counters)

	if out.FirstSeenAt.IsZero() || (!d.FirstSeenAt.IsZero() && d.FirstSeenAt.Before(out.FirstSeenAt)) {
		if !d.FirstSeenAt.IsZero() {
			out.FirstSeenAt = d.FirstSeenAt
		}
	}
	if d.LastSeenAt.After(out.LastSeenAt) {
		out.LastSeenAt = d.LastSeenAt
	}

	out.HasErrors = out.HasErrors || d.HasErrors

	return out
}

// Store is the persistence boundary for the aggregate tables. The daily,
// hourly and tool upserts are composite-key upserts with increment
// semantics on the numeric fields; UpsertAggregate and UpsertCursor
// overwrite the stored row with the values they are given (the aggregate's
// counters are already summed by MergeAggregate); callers wrap the group of
// calls made for one file in a transaction atomicity
// requirement.
type Store interface {
	GetCursor(ctx context.Context, agentID, sessionID string) (*Cursor, error)
	UpsertCursor(ctx context.Context, c Cursor) error

	GetAggregate(ctx context.Context, sessionID string) (*SessionAggregate, error)
	UpsertAggregate(ctx context.Context, a SessionAggregate) error

	UpsertDaily(ctx context.Context, rows []SessionDailyUsage) error
	UpsertHourly(ctx context.Context, rows []SessionHourlyUsage) error
	UpsertToolDaily(ctx context.Context, rows []SessionToolDaily) error
	UpsertToolTotal(ctx context.Context, rows []SessionToolTotal) error

	// WithTx runs fn with a Store bound to a single transaction; fn's
	// Store calls must commit together ("delta application and
	// cursor upsert MUST commit together").
	WithTx(ctx context.Context, fn func(ctx context.Context, tx Store) error) error
}

// ApplyDelta persists one SessionDelta: merges it onto the existing
// aggregate and upserts the daily/hourly/tool rows Callers
// invoke this inside Store.WithTx alongside the matching cursor upsert.
func ApplyDelta(ctx context.Context, store Store, d *SessionDelta) error {
	existing, err := store.GetAggregate(ctx, d.SessionID)
	if err != nil {
		return err
	}
	merged := MergeAggregate(existing, d)
	if err := store.UpsertAggregate(ctx, merged); err != nil {
		return err
	}

	if len(d.Daily) > 0 {
		rows := make([]SessionDailyUsage, 0, len(d.Daily))
		for k, c := range d.Daily {
			rows = append(rows, SessionDailyUsage{SessionID: d.SessionID, DayStart: k.Day, ModelKey: k.ModelKey, Counters: c})
		}
		if err := store.UpsertDaily(ctx, rows); err != nil {
			return err
		}
	}

	if len(d.Hourly) > 0 {
		rows := make([]SessionHourlyUsage, 0, len(d.Hourly))
		for k, c := range d.Hourly {
			rows = append(rows, SessionHourlyUsage{SessionID: d.SessionID, HourStart: k.Hour, ModelKey: k.ModelKey, Counters: c})
		}
		if err := store.UpsertHourly(ctx, rows); err != nil {
			return err
		}
	}

	if len(d.Tools) > 0 {
		rows := make([]SessionToolDaily, 0, len(d.Tools))
		for k, n := range d.Tools {
			rows = append(rows, SessionToolDaily{SessionID: d.SessionID, DayStart: k.Day, ToolName: k.Tool, CallCount: n})
		}
		if err := store.UpsertToolDaily(ctx, rows); err != nil {
			return err
		}
	}

	if len(d.ToolTotals) > 0 {
		rows := make([]SessionToolTotal, 0, len(d.ToolTotals))
		for tool, n := range d.ToolTotals {
			rows = append(rows, SessionToolTotal{SessionID: d.SessionID, ToolName: tool, CallCount: n})
		}
		if err := store.UpsertToolTotal(ctx, rows); err != nil {
			return err
		}
	}

	return nil
}
