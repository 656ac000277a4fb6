package usage

import (
	"regexp"
	"strings"
)

// opIDPattern and woIDPattern extract operationId/workOrderId from a
// sessionKey: "(?:^|:)op:([a-z0-9]{10,})" and
// "(?:^|:)wo:([a-z0-9]{10,})".
var (
	opIDPattern = regexp.MustCompile(`(?:^|:)op:([a-z0-9]{10,})`)
	woIDPattern = regexp.MustCompile(`(?:^|:)wo:([a-z0-9]{10,})`)
)

// ExtractOperationID pulls an operationId out of a sessionKey, if present.
func ExtractOperationID(sessionKey string) string {
	if m := opIDPattern.FindStringSubmatch(strings.ToLower(sessionKey)); m != nil {
		return m[1]
	}
	return ""
}

// ExtractWorkOrderID pulls a workOrderId out of a sessionKey, if present.
func ExtractWorkOrderID(sessionKey string) string {
	if m := woIDPattern.FindStringSubmatch(strings.ToLower(sessionKey)); m != nil {
		return m[1]
	}
	return ""
}

// providerRules maps a model name prefix (no "/") to its provider key,
// providerKey classification rules.
var providerRules = []struct {
	match func(model string) bool
	key string
}{
	{func(m string) bool { return hasAny(m, "claude", "sonnet", "opus", "haiku") }, "anthropic"},
	{func(m string) bool { return strings.Contains(m, "codex") }, "openai-codex"},
	{func(m string) bool { return strings.HasPrefix(m, "gpt-") }, "openai"},
	{func(m string) bool { return strings.Contains(m, "gemini") }, "google"},
	{func(m string) bool { return strings.Contains(m, "grok") }, "xai"},
}

func hasAny(s string, needles...string) bool {
	for _, n := range needles {
		if strings.Contains(s, n) {
			return true
		}
	}
	return false
}

// ProviderKey derives the provider for a model string: the prefix before
// "/" when one is present, else the rule-map fallback, else "unknown".
func ProviderKey(model string) string {
	model = strings.ToLower(strings.TrimSpace(model))
	if model == "" {
		return "unknown"
	}
	if idx := strings.Index(model, "/"); idx > 0 {
		return model[:idx]
	}
	for _, rule := range providerRules {
		if rule.match(model) {
			return rule.key
		}
	}
	return "unknown"
}

// ModelKey is the canonical dimension used to group daily/hourly usage:
// the full model string when present, else "unknown".
func ModelKey(model string) string {
	if model == "" {
		return "unknown"
	}
	return model
}

var cronKeywords = []string{"cron", "heartbeat", "scheduler", "scheduled"}

// IdentityHints bundles the fields sessionClass classification inspects.
type IdentityHints struct {
	Source string
	Channel string
	SessionKey string
	SessionKind string
	OperationID string
	WorkOrderID string
}

// ClassifySession applies the precedence rule:
// 1. cron/heartbeat/scheduler/scheduled in source/channel/sessionKey/sessionKind → background_cron
// 2. operationId or workOrderId present → background_workflow
// 3. any identity hint present → interactive
// 4. else → unknown
func ClassifySession(h IdentityHints) SessionClass {
	haystack := strings.ToLower(h.Source + " " + h.Channel + " " + h.SessionKey + " " + h.SessionKind)
	for _, kw := range cronKeywords {
		if strings.Contains(haystack, kw) {
			return ClassBackgroundCron
		}
	}
	if h.OperationID != "" || h.WorkOrderID != "" {
		return ClassBackgroundWorkflow
	}
	if h.Source != "" || h.Channel != "" || h.SessionKey != "" || h.SessionKind != "" {
		return ClassInteractive
	}
	return ClassUnknown
}

// sourceLabelMap normalizes a raw first-token source label.
var sourceLabelMap = map[string]string{
	"agent": "overlay",
	"webchat": "web",
	"browser": "web",
}

// SourceFromSessionKey derives a fallback source: the first ':'-delimited
// token of sessionKey, normalized via sourceLabelMap (passthrough
// otherwise)
func SourceFromSessionKey(sessionKey string) string {
	if sessionKey == "" {
		return ""
	}
	token := sessionKey
	if idx := strings.Index(sessionKey, ":"); idx >= 0 {
		token = sessionKey[:idx]
	}
	token = strings.ToLower(token)
	if norm, ok := sourceLabelMap[token]; ok {
		return norm
	}
	return token
}
