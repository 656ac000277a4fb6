package usage

import "testing"

func TestClassifySessionPrecedence(t *testing.T) {
	cases := []struct {
		name string
		h IdentityHints
		want SessionClass
	}{
		{"cron keyword wins over workflow", IdentityHints{Source: "cron-dispatch", OperationID: "op1234567890"}, ClassBackgroundCron},
		{"workflow from operationId", IdentityHints{OperationID: "op1234567890"}, ClassBackgroundWorkflow},
		{"workflow from workOrderId", IdentityHints{WorkOrderID: "wo1234567890"}, ClassBackgroundWorkflow},
		{"interactive from source alone", IdentityHints{Source: "web"}, ClassInteractive},
		{"unknown with nothing", IdentityHints{}, ClassUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ClassifySession(tc.h); got != tc.want {
				t.Fatalf("ClassifySession(%+v) = %v, want %v", tc.h, got, tc.want)
			}
		})
	}
}

func TestMaxClassRanking(t *testing.T) {
	if MaxClass(ClassInteractive, ClassBackgroundCron) != ClassBackgroundCron {
		t.Fatal("expected cron to outrank interactive")
	}
	if MaxClass(ClassBackgroundWorkflow, ClassUnknown) != ClassBackgroundWorkflow {
		t.Fatal("expected workflow to outrank unknown")
	}
}

func TestProviderKeyExplicitPrefix(t *testing.T) {
	if got := ProviderKey("anthropic/claude-opus-4"); got != "anthropic" {
		t.Fatalf("ProviderKey = %q", got)
	}
}

func TestProviderKeyRuleFallback(t *testing.T) {
	cases := map[string]string{
		"claude-opus-4": "anthropic",
		"gpt-5.3-codex": "openai-codex",
		"gpt-5": "openai",
		"gemini-2.5-pro": "google",
		"grok-4": "xai",
		"some-other-model": "unknown",
	}
	for model, want := range cases {
		if got := ProviderKey(model); got != want {
			t.Fatalf("ProviderKey(%q) = %q, want %q", model, got, want)
		}
	}
}

func TestExtractOperationAndWorkOrderID(t *testing.T) {
	key := "overlay:op:abc1234567:wo:def9876543"
	if got := ExtractOperationID(key); got != "abc1234567" {
		t.Fatalf("operationID = %q", got)
	}
	if got := ExtractWorkOrderID(key); got != "def9876543" {
		t.Fatalf("workOrderID = %q", got)
	}
}

func TestSourceFromSessionKeyNormalizes(t *testing.T) {
	if got := SourceFromSessionKey("agent:foo"); got != "overlay" {
		t.Fatalf("source = %q, want overlay", got)
	}
	if got := SourceFromSessionKey("webchat:foo"); got != "web" {
		t.Fatalf("source = %q, want web", got)
	}
	if got := SourceFromSessionKey(""); got != "" {
		t.Fatalf("expected empty passthrough, got %q", got)
	}
}
