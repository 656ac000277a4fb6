// Package sessionkey builds and parses ClawControl's canonical session key
// grammar ("human-meaningful label containing
// colon-separated tokens like agent:<id>:wo:<woId>:op:<opId>"), built as
// plain colon-joined string construction — no channel/DM/group/cron
// builders, since ClawControl has no caller for those.
package sessionkey

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	opToken = regexp.MustCompile(`(?:^|:)op:([a-z0-9]{10,})`)
	woToken = regexp.MustCompile(`(?:^|:)wo:([a-z0-9]{10,})`)
)

// Build composes a canonical session key for a dispatched run, using the
// `agent:<id>:wo:<woId>:op:<opId>` grammar. Either id may
// be empty, in which case its token is omitted.
func Build(agentID, workOrderID, operationID string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "agent:%s", agentID)
	if workOrderID != "" {
		fmt.Fprintf(&b, ":wo:%s", workOrderID)
	}
	if operationID != "" {
		fmt.Fprintf(&b, ":op:%s", operationID)
	}
	return b.String()
}

// BuildSubagent composes the session key for a subagent spawn labeled by
// label, still carrying the op:/wo: linkage tokens when present.
func BuildSubagent(agentID, label, workOrderID, operationID string) string {
	base := fmt.Sprintf("agent:%s:subagent:%s", agentID, label)
	if workOrderID != "" {
		base += ":wo:" + workOrderID
	}
	if operationID != "" {
		base += ":op:" + operationID
	}
	return base
}

// AgentID extracts the agent id from a canonical session key, or "" if
// the key does not start with the "agent:" prefix.
func AgentID(sessionKey string) string {
	if !strings.HasPrefix(sessionKey, "agent:") {
		return ""
	}
	parts := strings.SplitN(sessionKey, ":", 3)
	if len(parts) < 2 {
		return ""
	}
	return parts[1]
}

// OperationID extracts the op: token from a session key, matching the
// lowercase regex usage.ExtractOperationID applies to runtime status
// sessionKey fields ( linkage resolution).
func OperationID(sessionKey string) string {
	if m := opToken.FindStringSubmatch(strings.ToLower(sessionKey)); m != nil {
		return m[1]
	}
	return ""
}

// WorkOrderID extracts the wo: token from a session key.
func WorkOrderID(sessionKey string) string {
	if m := woToken.FindStringSubmatch(strings.ToLower(sessionKey)); m != nil {
		return m[1]
	}
	return ""
}

// IsCronKeyword reports whether sessionKey contains any of the
// cron/heartbeat/scheduler/scheduled keywords uses to classify a
// session as background_cron when scanning source/channel/sessionKey/kind.
func IsCronKeyword(sessionKey string) bool {
	lower := strings.ToLower(sessionKey)
	for _, kw := range []string{"cron", "heartbeat", "scheduler", "scheduled"} {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
