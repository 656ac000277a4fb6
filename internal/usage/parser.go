package usage

import (
	"encoding/json"
	"strconv"
	"strings"
	"time"
)

// ParseLine parses one JSONL line into a UsageEvent. It never panics on
// malformed input; unusable lines return (zero, false) — the ParseSkipped
// error kind from is modeled as this boolean, not an error value,
// since a skipped line is not exceptional.
func ParseLine(line []byte) (UsageEvent, bool) {
	line = trimLine(line)
	if len(line) == 0 {
		return UsageEvent{}, false
	}

	var raw map[string]any
	if err := json.Unmarshal(line, &raw); err != nil {
		return UsageEvent{}, false
	}
	if raw == nil {
		return UsageEvent{}, false
	}

	usageNode, hasUsage := findUsageNode(raw)
	toolCalls := extractToolCalls(raw)
	hasErr := detectError(raw)

	if !hasUsage && len(toolCalls) == 0 && !hasErr {
		return UsageEvent{}, false
	}

	ev := UsageEvent{
		SeenAt: extractSeenAt(raw),
		Model: stringAt(raw, "model"),
		ToolCalls: toolCalls,
		HasError: hasErr,
		HasUsage: hasUsage,
	}

	ev.SessionKey = firstNonEmptyPath(raw, "sessionKey", "session_key")
	ev.Source = firstNonEmptyPath(raw, "source")
	ev.Channel = firstNonEmptyPath(raw, "channel")
	ev.Kind = firstNonEmptyPath(raw, "kind", "sessionKind")
	ev.OperationID = firstNonEmptyPath(raw, "operationId", "operation_id")
	ev.WorkOrderID = firstNonEmptyPath(raw, "workOrderId", "work_order_id")

	if ev.OperationID == "" {
		ev.OperationID = ExtractOperationID(ev.SessionKey)
	}
	if ev.WorkOrderID == "" {
		ev.WorkOrderID = ExtractWorkOrderID(ev.SessionKey)
	}

	if hasUsage {
		ev.Counters = parseCounters(usageNode)
	}
	ev.Counters.CostMicros = parseCost(raw, usageNode)

	return ev, true
}

func trimLine(b []byte) []byte {
	start, end := 0, len(b)
	for start < end && isSpace(b[start]) {
		start++
	}
	for end > start && isSpace(b[end-1]) {
		end--
	}
	return b[start:end]
}

func isSpace(c byte) bool {
	return c == ' ' || c == '\t' || c == '\n' || c == '\r'
}

// findUsageNode tolerates three shapes: top-level, under "message", under
// "payload".
func findUsageNode(raw map[string]any) (map[string]any, bool) {
	if u, ok := mapAt(raw, "usage"); ok {
		return u, true
	}
	if msg, ok := mapAt(raw, "message"); ok {
		if u, ok := mapAt(msg, "usage"); ok {
			return u, true
		}
	}
	if payload, ok := mapAt(raw, "payload"); ok {
		if u, ok := mapAt(payload, "usage"); ok {
			return u, true
		}
	}
	return nil, false
}

func mapAt(raw map[string]any, key string) (map[string]any, bool) {
	v, ok := raw[key]
	if !ok {
		return nil, false
	}
	m, ok := v.(map[string]any)
	return m, ok
}

// parseCounters reads the four raw token fields and derives/validates
// totalTokens invariant.
func parseCounters(u map[string]any) Counters {
	c := Counters{
		InputTokens: coerceInt(u["inputTokens"]),
		OutputTokens: coerceInt(u["outputTokens"]),
		CacheReadTokens: coerceInt(firstPresent(u, "cacheReadTokens", "cacheReadInputTokens")),
		CacheWriteTokens: coerceInt(firstPresent(u, "cacheWriteTokens", "cacheCreationInputTokens")),
	}
	sum := c.InputTokens + c.OutputTokens + c.CacheReadTokens + c.CacheWriteTokens
	if v, ok := u["totalTokens"]; ok {
		// Explicit totalTokens is trusted even when it disagrees with the
		// component sum (open question in, resolved toward the
		// source's own behavior: trust the explicit value).
		c.TotalTokens = coerceInt(v)
	} else {
		c.TotalTokens = sum
	}
	return c
}

func firstPresent(m map[string]any, keys...string) any {
	for _, k := range keys {
		if v, ok := m[k]; ok {
			return v
		}
	}
	return nil
}

// parseCost handles a scalar USD cost, an object with "total", or the sum
// of {input,output,cacheRead,cacheWrite} Cost may live
// alongside usage or at the raw event's top level under "cost".
func parseCost(raw map[string]any, usageNode map[string]any) Micros {
	var node any
	if usageNode != nil {
		if v, ok := usageNode["cost"]; ok {
			node = v
		}
	}
	if node == nil {
		node = raw["cost"]
	}
	if node == nil {
		return 0
	}

	switch v := node.(type) {
	case map[string]any:
		if total, ok := v["total"]; ok {
			return MicrosFromUSD(coerceFloat(total))
		}
		sum := coerceFloat(v["input"]) + coerceFloat(v["output"]) +
			coerceFloat(v["cacheRead"]) + coerceFloat(v["cacheWrite"])
		return MicrosFromUSD(sum)
	default:
		return MicrosFromUSD(coerceFloat(v))
	}
}

// coerceInt accepts number, numeric string, or bigint-like string; invalid
// values coerce to 0.
func coerceInt(v any) int64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return int64(t)
	case json.Number:
		n, err := t.Int64()
		if err != nil {
			f, ferr := t.Float64()
			if ferr != nil {
				return 0
			}
			return int64(f)
		}
		return n
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return n
		}
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return int64(f)
		}
		return 0
	default:
		return 0
	}
}

func coerceFloat(v any) float64 {
	switch t := v.(type) {
	case nil:
		return 0
	case float64:
		return t
	case json.Number:
		f, err := t.Float64()
		if err != nil {
			return 0
		}
		return f
	case string:
		s := strings.TrimSpace(t)
		if s == "" {
			return 0
		}
		f, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0
		}
		return f
	default:
		return 0
	}
}

// extractToolCalls reads a "toolCalls" array, lowercases and trims each
// tool name, and collapses duplicates within this event into a set
//.
func extractToolCalls(raw map[string]any) []string {
	v, ok := raw["toolCalls"]
	if !ok {
		return nil
	}
	arr, ok := v.([]any)
	if !ok {
		return nil
	}
	seen := make(map[string]bool, len(arr))
	var out []string
	for _, item := range arr {
		name := toolNameOf(item)
		name = strings.ToLower(strings.TrimSpace(name))
		if name == "" || seen[name] {
			continue
		}
		seen[name] = true
		out = append(out, name)
	}
	return out
}

func toolNameOf(item any) string {
	switch t := item.(type) {
	case string:
		return t
	case map[string]any:
		if n, ok := t["name"].(string); ok {
			return n
		}
		if n, ok := t["tool"].(string); ok {
			return n
		}
		if n, ok := t["toolName"].(string); ok {
			return n
		}
	}
	return ""
}

// detectError implements the hasError predicate of: true iff
// any of: level in {error,fatal}; type contains error|exception|failed;
// presence of error/err/exception; or a system-role message whose content
// mentions "error".
func detectError(raw map[string]any) bool {
	if lvl, ok := raw["level"].(string); ok {
		l := strings.ToLower(lvl)
		if l == "error" || l == "fatal" {
			return true
		}
	}
	if typ, ok := raw["type"].(string); ok {
		t := strings.ToLower(typ)
		if strings.Contains(t, "error") || strings.Contains(t, "exception") || strings.Contains(t, "failed") {
			return true
		}
	}
	for _, key := range []string{"error", "err", "exception"} {
		if v, ok := raw[key]; ok && v != nil {
			return true
		}
	}
	if role, ok := raw["role"].(string); ok && strings.EqualFold(role, "system") {
		if content, ok := raw["content"].(string); ok && strings.Contains(strings.ToLower(content), "error") {
			return true
		}
	}
	if msg, ok := mapAt(raw, "message"); ok {
		if role, ok := msg["role"].(string); ok && strings.EqualFold(role, "system") {
			if content, ok := msg["content"].(string); ok && strings.Contains(strings.ToLower(content), "error") {
				return true
			}
		}
	}
	return false
}

// extractSeenAt reads the event timestamp from a fixed set of candidate
// fields, falling back to the zero time (the ingestion engine folds this
// through min/max so a zero time is only ever used when no better
// candidate exists for the whole delta).
func extractSeenAt(raw map[string]any) time.Time {
	for _, key := range []string{"seenAt", "timestamp", "ts", "time", "createdAt"} {
		v, ok := raw[key]
		if !ok {
			continue
		}
		switch t := v.(type) {
		case string:
			if parsed, err := time.Parse(time.RFC3339, t); err == nil {
				return parsed.UTC()
			}
			if parsed, err := time.Parse(time.RFC3339Nano, t); err == nil {
				return parsed.UTC()
			}
		case float64:
			return unixFromFloat(t)
		}
	}
	return time.Time{}
}

func unixFromFloat(f float64) time.Time {
	if f > 1e12 {
		return time.UnixMilli(int64(f)).UTC()
	}
	return time.Unix(int64(f), 0).UTC()
}

// firstNonEmptyPath returns the first non-empty string value found at any
// of the candidate top-level keys, also checking under "message" and
// "payload" (mirroring findUsageNode's tolerant shapes for identity
// fields).
func firstNonEmptyPath(raw map[string]any, keys...string) string {
	for _, k := range keys {
		if s := stringAt(raw, k); s != "" {
			return s
		}
	}
	for _, wrapper := range []string{"message", "payload"} {
		if m, ok := mapAt(raw, wrapper); ok {
			for _, k := range keys {
				if s := stringAt(m, k); s != "" {
					return s
				}
			}
		}
	}
	return ""
}

func stringAt(raw map[string]any, key string) string {
	v, ok := raw[key]
	if !ok {
		return ""
	}
	s, _ := v.(string)
	return strings.TrimSpace(s)
}
