package actionable

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"
)

// legacyOpsAgentID is the fallback ops runtime agent used when neither the
// payload nor team governance names one ( "legacy wf-ops").
const legacyOpsAgentID = "wf-ops"

// maxTitleSummaryRunes bounds the summary slice embedded in a WorkOrder
// title so a pathologically long summary never produces an unusable title.
const maxTitleSummaryRunes = 80

// Intake wires the Ops Actionable Intake engine: dedupe by fingerprint,
// resolve scope (ops agent, relay key), create a WorkOrder on first sight,
// and optionally hand the result to a Relay.
type Intake struct {
	Store Store
	Teams TeamLookup // optional; nil means TeamID never resolves governance
	Relay Relay // optional; nil means skip the publish step
	Now func() time.Time
}

// NewIntake builds an Intake. now is injected for deterministic tests;
// production wiring passes time.Now.
func NewIntake(store Store, teams TeamLookup, relay Relay, now func() time.Time) *Intake {
	if now == nil {
		now = time.Now
	}
	return &Intake{Store: store, Teams: teams, Relay: relay, Now: now}
}

// Ingest implements Ingest operation end to end.
func (in *Intake) Ingest(ctx context.Context, p Payload) (IngestResult, error) {
	if isNoAction(p) {
		return IngestResult{Ignored: true}, nil
	}

	opsAgent, relayKey, err := in.resolveScope(ctx, p)
	if err != nil {
		return IngestResult{}, fmt.Errorf("actionable: resolve scope: %w", err)
	}

	fp := Fingerprint(p)
	now := in.Now()
	event := Event{
		Fingerprint: fp,
		Source: p.Source,
		JobID: p.JobID,
		RunAtMs: p.RunAtMs,
		TeamID: p.TeamID,
		OpsRuntimeAgentID: opsAgent,
		RelayKey: relayKey,
		Severity: p.Severity,
		DecisionRequired: p.DecisionRequired,
		Summary: p.Summary,
		Recommendation: p.Recommendation,
		Evidence: p.Evidence,
		CreatedAt: now,
	}

	existing, inserted, err := in.Store.InsertEvent(ctx, event)
	if err != nil {
		return IngestResult{}, fmt.Errorf("actionable: insert event: %w", err)
	}
	if !inserted {
		slog.Info("actionable.ingest.deduped", "fingerprint", fp)
		return IngestResult{Deduped: true, Fingerprint: fp, Event: existing}, nil
	}

	wo := WorkOrder{
		OwnerAgent: opsAgent,
		Title: workOrderTitle(p.Severity, p.Summary),
		Priority: priorityForSeverity(p.Severity),
		Tags: workOrderTags(p, relayKey),
		CreatedAt: now,
	}
	woID, err := in.Store.CreateWorkOrder(ctx, wo)
	if err != nil {
		return IngestResult{}, fmt.Errorf("%w: %v", ErrWorkOrderCreateFailed, err)
	}
	if err := in.Store.SetWorkOrderID(ctx, fp, woID); err != nil {
		return IngestResult{}, fmt.Errorf("%w: patch fingerprint: %v", ErrWorkOrderCreateFailed, err)
	}
	event.WorkOrderID = woID

	if in.Relay != nil {
		if err := in.Relay.Publish(ctx, event); err != nil {
			// The event and its work order already exist; a relay failure
			// is logged, not fatal to Ingest ( only requires
			// the row and the work order, the relay hop is "downstream").
			slog.Warn("actionable.relay.publish_failed", "fingerprint", fp, "error", err)
		}
	}

	slog.Info("actionable.ingest.created", "fingerprint", fp, "workOrderId", woID, "opsAgent", opsAgent)
	return IngestResult{Created: true, Fingerprint: fp, Event: &event}, nil
}

// isNoAction implements ignore rule.
func isNoAction(p Payload) bool {
	if p.NoAction {
		return true
	}
	if p.Actionability == "no_action" {
		return true
	}
	switch p.normalizedSummary() {
	case "NO_ACTION", "NO_REPLY":
		return true
	}
	return false
}

func trimUpper(s string) string {
	return strings.ToUpper(strings.TrimSpace(s))
}

// resolveScope derives (opsRuntimeAgentId, relayKey):
// explicit payload value wins, then team governance, then the legacy
// default (relayKey has no legacy default — it may end up empty).
func (in *Intake) resolveScope(ctx context.Context, p Payload) (opsAgent, relayKey string, err error) {
	opsAgent = p.OpsRuntimeAgentID
	relayKey = p.RelayKey

	if (opsAgent == "" || relayKey == "") && p.TeamID != "" && in.Teams != nil {
		gov, ok, lookupErr := in.Teams.LookupGovernance(ctx, p.TeamID)
		if lookupErr != nil {
			return "", "", lookupErr
		}
		if ok {
			if opsAgent == "" {
				opsAgent = gov.OpsRuntimeAgentID
			}
			if relayKey == "" {
				relayKey = gov.RelayKey
			}
		}
	}

	if opsAgent == "" {
		opsAgent = legacyOpsAgentID
	}
	return opsAgent, relayKey, nil
}

// Fingerprint computes dedupe key:
//
//	sha256(scopeToken + "|" + source + "|" + jobId + "|" + runAtMs + "|" + sha256(summary)[0:16])
//	scopeToken = (teamId ?? "team:none") + "|" + (relayKey ?? "relay:none")
//
// Computed from the raw Payload, before scope resolution, so that two
// payloads which differ only in how their ops agent/relay key happen to
// resolve (e.g. team governance changes between calls) still collide on
// the same fingerprint when everything the caller actually supplied is
// identical. relayKey here is deliberately the payload's own RelayKey, not
// the resolved one, to keep Fingerprint a pure function of its input.
func Fingerprint(p Payload) string {
	teamID := p.TeamID
	if teamID == "" {
		teamID = "team:none"
	}
	relayKey := p.RelayKey
	if relayKey == "" {
		relayKey = "relay:none"
	}
	scopeToken := teamID + "|" + relayKey

	summaryHash := sha256Hex(p.Summary)[:16]
	material := scopeToken + "|" + p.Source + "|" + p.JobID + "|" + strconv.FormatInt(p.RunAtMs, 10) + "|" + summaryHash
	return sha256Hex(material)
}

func sha256Hex(s string) string {
	sum := sha256.Sum256([]byte(s))
	return hex.EncodeToString(sum[:])
}

// workOrderTitle builds "[Ops][SEV] <summary slice>"
func workOrderTitle(sev Severity, summary string) string {
	sevLabel := strings.ToUpper(string(sev))
	if sevLabel == "" {
		sevLabel = "UNKNOWN"
	}
	r := []rune(strings.TrimSpace(summary))
	if len(r) > maxTitleSummaryRunes {
		r = r[:maxTitleSummaryRunes]
	}
	return fmt.Sprintf("[Ops][%s] %s", sevLabel, string(r))
}

// workOrderTags encodes source/job/team/relay onto the created WorkOrder
//, dropping any that are empty rather than emitting a
// placeholder tag.
func workOrderTags(p Payload, relayKey string) []string {
	var tags []string
	add := func(prefix, v string) {
		if v != "" {
			tags = append(tags, prefix+":"+v)
		}
	}
	add("source", p.Source)
	add("job", p.JobID)
	add("team", p.TeamID)
	add("relay", relayKey)
	return tags
}
