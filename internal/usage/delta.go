package usage

import "time"

// dayModelKey and hourModelKey/dayToolKey are the composite group keys
// used by the daily/hourly/tool-daily maps
type dayModelKey struct {
	Day time.Time
	ModelKey string
}

type hourModelKey struct {
	Hour time.Time
	ModelKey string
}

type dayToolKey struct {
	Day time.Time
	Tool string
}

// SessionDelta accumulates everything one ingestion pass over one file
// contributes to one session step 4. It folds events in
// file (causal) order; across files there is no ordering guarantee and
// deltas merge commutatively.
type SessionDelta struct {
	SessionID string

	Counters Counters

	FirstSeenAt time.Time
	LastSeenAt time.Time

	AgentID string
	SessionKey string
	Source string
	Channel string
	Kind string
	Model string
	OperationID string
	WorkOrderID string

	SessionClass SessionClass
	HasErrors bool

	Daily map[dayModelKey]Counters
	Hourly map[hourModelKey]Counters
	Tools map[dayToolKey]int64
	ToolTotals map[string]int64
}

// NewSessionDelta starts an empty delta for a session.
func NewSessionDelta(sessionID, agentID string) *SessionDelta {
	return &SessionDelta{
		SessionID: sessionID,
		AgentID: agentID,
		Daily: make(map[dayModelKey]Counters),
		Hourly: make(map[hourModelKey]Counters),
		Tools: make(map[dayToolKey]int64),
		ToolTotals: make(map[string]int64),
	}
}

// IsEmpty reports whether no event has been folded in yet ( step
// 5: "if delta non-empty, apply it").
func (d *SessionDelta) IsEmpty() bool {
	return d.FirstSeenAt.IsZero() && d.LastSeenAt.IsZero() && len(d.Daily) == 0 && len(d.Tools) == 0 &&
		d.Counters == (Counters{}) && !d.HasErrors && len(d.ToolTotals) == 0
}

// firstNonEmpty keeps the first non-empty value seen; later empty values
// never overwrite an existing value ("first non-null identity
// fields win, later nulls never overwrite").
func firstNonEmpty(existing, candidate string) string {
	if existing != "" {
		return existing
	}
	return candidate
}

// Fold accumulates one parsed UsageEvent into the delta, in file order.
func (d *SessionDelta) Fold(ev UsageEvent) {
	if !ev.SeenAt.IsZero() {
		if d.FirstSeenAt.IsZero() || ev.SeenAt.Before(d.FirstSeenAt) {
			d.FirstSeenAt = ev.SeenAt
		}
		if ev.SeenAt.After(d.LastSeenAt) {
			d.LastSeenAt = ev.SeenAt
		}
	}

	d.SessionKey = firstNonEmpty(d.SessionKey, ev.SessionKey)
	d.Source = firstNonEmpty(d.Source, ev.Source)
	d.Channel = firstNonEmpty(d.Channel, ev.Channel)
	d.Kind = firstNonEmpty(d.Kind, ev.Kind)
	d.Model = firstNonEmpty(d.Model, ev.Model)
	d.OperationID = firstNonEmpty(d.OperationID, ev.OperationID)
	d.WorkOrderID = firstNonEmpty(d.WorkOrderID, ev.WorkOrderID)

	if d.Source == "" {
		d.Source = SourceFromSessionKey(d.SessionKey)
	}

	class := ClassifySession(IdentityHints{
		Source: d.Source,
		Channel: d.Channel,
		SessionKey: d.SessionKey,
		SessionKind: d.Kind,
		OperationID: d.OperationID,
		WorkOrderID: d.WorkOrderID,
	})
	d.SessionClass = MaxClass(d.SessionClass, class)

	if ev.HasError {
		d.HasErrors = true
	}

	if ev.HasUsage {
		d.Counters = d.Counters.Add(ev.Counters)

		if !ev.SeenAt.IsZero() {
			mk := ModelKey(d.Model)
			if ev.Model != "" {
				mk = ModelKey(ev.Model)
			}
			dk := dayModelKey{Day: DayStart(ev.SeenAt), ModelKey: mk}
			d.Daily[dk] = d.Daily[dk].Add(ev.Counters)

			hk := hourModelKey{Hour: HourStart(ev.SeenAt), ModelKey: mk}
			d.Hourly[hk] = d.Hourly[hk].Add(ev.Counters)
		}
	}

	if len(ev.ToolCalls) > 0 && !ev.SeenAt.IsZero() {
		day := DayStart(ev.SeenAt)
		for _, tool := range ev.ToolCalls {
			d.Tools[dayToolKey{Day: day, Tool: tool}]++
			d.ToolTotals[tool]++
		}
	}
}
