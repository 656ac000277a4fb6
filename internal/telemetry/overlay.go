package telemetry

// Overlay computes, per agent, the highest-priority live session state
// (error > active > idle), ties broken by the most recently seen
// session The overlay only affects in-memory responses —
// it is never persisted back onto the agent row.
type Overlay struct {
	State State
	SessionID string
	LastSeenAt int64 // unix millis, for deterministic tie-break comparisons
}

// ComputeOverlay reduces a set of sessions belonging to one agent to a
// single overlay value. Returns (Overlay{}, false) when sessions is empty.
func ComputeOverlay(sessions []AgentSession) (Overlay, bool) {
	if len(sessions) == 0 {
		return Overlay{}, false
	}

	best := Overlay{
		State: sessions[0].State,
		SessionID: sessions[0].SessionID,
		LastSeenAt: sessions[0].LastSeenAt.UnixMilli(),
	}
	for _, s := range sessions[1:] {
		candidate := Overlay{State: s.State, SessionID: s.SessionID, LastSeenAt: s.LastSeenAt.UnixMilli()}
		if higherPriority(candidate.State, best.State) {
			best = candidate
			continue
		}
		if candidate.State == best.State && candidate.LastSeenAt > best.LastSeenAt {
			best = candidate
		}
	}
	return best, true
}

// GroupByAgent partitions sessions by AgentID and computes one overlay per
// agent, for the `/agents` list path.
func GroupByAgent(sessions []AgentSession) map[string]Overlay {
	byAgent := make(map[string][]AgentSession)
	for _, s := range sessions {
		byAgent[s.AgentID] = append(byAgent[s.AgentID], s)
	}
	out := make(map[string]Overlay, len(byAgent))
	for agentID, group := range byAgent {
		if ov, ok := ComputeOverlay(group); ok {
			out[agentID] = ov
		}
	}
	return out
}
