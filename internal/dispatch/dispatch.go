// Package dispatch implements Agent Dispatch Core: spawning
// sessions via the external runtime's `run` or `agent_local` execution
// modes, with auto fallback between them, deterministic session-id
// derivation for agent_local, and AgentSession linkage extraction.
package dispatch

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"sync/atomic"
	"time"

	"github.com/clawcontrol/clawcontrol/internal/telemetry"
	"github.com/clawcontrol/clawcontrol/internal/usage"
	"golang.org/x/time/rate"
)

// Mode selects how Spawn dispatches a session
type Mode string

const (
	ModeAuto Mode = "auto"
	ModeRun Mode = "run"
	ModeAgentLocal Mode = "agent_local"
)

const defaultFallbackModel = "openai-codex/gpt-5.3-codex"

// maxRawJSONBytes is the AgentSession.RawJSON truncation bound from
// ("truncated to ≤48KiB").
const maxRawJSONBytes = 48 * 1024

// fallbackSignatures are the stderr/stdout substrings that mean "the
// runtime doesn't understand `run`", triggering the auto mode's fallback
// to agent_local.
var fallbackSignatures = []string{
	"unknown command 'run'",
	"did you mean cron?",
	"enoent",
	"not found",
}

// AgentConfigSync enriches the runtime's agent configuration before an
// agent_local dispatch model-fallback-chain injection.
// It is best-effort: a failure here never blocks the spawn, it only adds
// a model_sync_warning to a later error.
type AgentConfigSync interface {
	EnsureModelFallback(ctx context.Context, agentID string, fallbacks []string) error
}

// SpawnRequest is Spawn's input
type SpawnRequest struct {
	AgentID string
	Label string
	Task string
	Context any
	Model string
	TimeoutSeconds int
}

// SpawnResult is Spawn's output
type SpawnResult struct {
	SessionKey string
	SessionID string
}

// Config configures a Spawner.
type Config struct {
	RuntimeBin string
	Mode Mode
	HasOpenAIAPIKey bool
	SpawnsPerMinute float64 // 0 disables the limiter
}

// Spawner implements Agent Dispatch Core.
type Spawner struct {
	cfg Config
	runner CommandRunner
	sessions telemetry.Store
	agentSync AgentConfigSync
	limiter *rate.Limiter
	now func() time.Time

	// resolvedMode is memoized across calls once auto mode has picked a
	// concrete mode ("resolved mode memoized in-process").
	resolvedMode atomic.Value // Mode
}

// NewSpawner builds a Spawner.
func NewSpawner(cfg Config, runner CommandRunner, sessions telemetry.Store, agentSync AgentConfigSync) *Spawner {
	if cfg.Mode == "" {
		cfg.Mode = ModeAuto
	}
	s := &Spawner{cfg: cfg, runner: runner, sessions: sessions, agentSync: agentSync, now: time.Now}
	if cfg.SpawnsPerMinute > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.SpawnsPerMinute/60.0), 1)
	}
	return s
}

// Spawn dispatches one session
func (s *Spawner) Spawn(ctx context.Context, req SpawnRequest) (SpawnResult, error) {
	if s.limiter != nil {
		if err := s.limiter.Wait(ctx); err != nil {
			return SpawnResult{}, fmt.Errorf("dispatch: rate limiter: %w", err)
		}
	}
	if req.TimeoutSeconds <= 0 {
		req.TimeoutSeconds = 300
	}
	timeout := time.Duration(req.TimeoutSeconds) * time.Second

	mode := s.effectiveMode()

	if mode == ModeRun || mode == ModeAuto {
		res, err := s.spawnRun(ctx, req, timeout)
		if err == nil {
			s.rememberMode(ModeRun)
			return s.persist(ctx, req, res, "")
		}
		if mode == ModeRun || !looksLikeFallbackSignature(err) {
			return SpawnResult{}, err
		}
		// auto mode, run-mode signature matched: fall through to agent_local.
	}

	res, warning, err := s.spawnAgentLocal(ctx, req, timeout)
	if err != nil {
		return SpawnResult{}, err
	}
	s.rememberMode(ModeAgentLocal)
	return s.persist(ctx, req, res, warning)
}

func (s *Spawner) effectiveMode() Mode {
	if v := s.resolvedMode.Load(); v != nil {
		return v.(Mode)
	}
	return s.cfg.Mode
}

func (s *Spawner) rememberMode(m Mode) {
	if s.cfg.Mode == ModeAuto {
		s.resolvedMode.Store(m)
	}
}

func looksLikeFallbackSignature(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, sig := range fallbackSignatures {
		if strings.Contains(msg, sig) {
			return true
		}
	}
	return false
}

type runStdout struct {
	SessionID string `json:"sessionId"`
	ID string `json:"id"`
}

// spawnRun implements the `run` dispatch mode.
func (s *Spawner) spawnRun(ctx context.Context, req SpawnRequest, timeout time.Duration) (SpawnResult, error) {
	payload, err := json.Marshal(req.Context)
	if err != nil {
		return SpawnResult{}, fmt.Errorf("dispatch: marshal context: %w", err)
	}

	argv := []string{s.cfg.RuntimeBin, "run", req.AgentID, "--label", req.Label, "--timeout", strconv.Itoa(req.TimeoutSeconds)}
	if req.Model != "" {
		argv = append(argv, "--model", req.Model)
	}
	argv = append(argv, "--", string(payload))

	result, err := s.runner.Run(ctx, timeout, argv)
	if err != nil {
		return SpawnResult{}, fmt.Errorf("dispatch run %s: %w", req.AgentID, err)
	}

	var out runStdout
	if err := json.Unmarshal(result.Stdout, &out); err != nil {
		return SpawnResult{}, fmt.Errorf("%w: unparseable run output: %s", ErrSessionIDMissing, truncate(result.Stdout, 512))
	}
	sessionID := firstNonEmpty(out.SessionID, out.ID)
	if sessionID == "" {
		return SpawnResult{}, fmt.Errorf("%w: run output %s", ErrSessionIDMissing, truncate(result.Stdout, 512))
	}
	return SpawnResult{SessionKey: req.Label, SessionID: sessionID}, nil
}

type agentLocalStdout struct {
	SessionID string `json:"sessionId"`
	Meta struct {
		SessionID string `json:"sessionId"`
		AgentMeta struct {
			SessionID string `json:"sessionId"`
		} `json:"agentMeta"`
		SystemPromptReport struct {
			SessionID string `json:"sessionId"`
		} `json:"systemPromptReport"`
	} `json:"meta"`
}

type contextJSONEnvelope struct {
	SessionKey string `json:"sessionKey"`
	Context any `json:"context"`
}

// spawnAgentLocal implements the `agent_local` dispatch mode.
func (s *Spawner) spawnAgentLocal(ctx context.Context, req SpawnRequest, timeout time.Duration) (SpawnResult, string, error) {
	var warning string
	if req.Model != "" && !strings.HasPrefix(req.Model, "openai-codex/") && !s.cfg.HasOpenAIAPIKey && s.agentSync != nil {
		fallbacks := []string{defaultFallbackModel}
		if err := s.agentSync.EnsureModelFallback(ctx, req.AgentID, fallbacks); err != nil {
			warning = fmt.Sprintf("model_sync_warning: %v", err)
		}
	}

	contextJSON, err := json.Marshal(contextJSONEnvelope{SessionKey: req.Label, Context: req.Context})
	if err != nil {
		return SpawnResult{}, warning, fmt.Errorf("dispatch: marshal context envelope: %w", err)
	}
	composedMessage := req.Task + "\n\nCLAWCONTROL_CONTEXT_JSON:" + string(contextJSON)

	determID := DeterministicSessionID(req.Label)

	argv := []string{
		s.cfg.RuntimeBin, "agent", "--local", "--agent", req.AgentID,
		"--session-id", determID, "--message", composedMessage, "--json",
		"--timeout", strconv.Itoa(req.TimeoutSeconds),
	}

	result, err := s.runner.Run(ctx, timeout, argv)
	if err != nil {
		return SpawnResult{}, warning, appendWarning(fmt.Errorf("dispatch agent_local %s: %w", req.AgentID, err), warning)
	}

	var out agentLocalStdout
	if err := json.Unmarshal(result.Stdout, &out); err != nil {
		return SpawnResult{}, warning, appendWarning(
			fmt.Errorf("%w: stdout=%s stderr=%s", ErrSessionIDMissing, truncate(result.Stdout, 512), truncate(result.Stderr, 512)),
			warning)
	}
	sessionID := firstNonEmpty(out.SessionID, out.Meta.SessionID, out.Meta.AgentMeta.SessionID, out.Meta.SystemPromptReport.SessionID)
	if sessionID == "" {
		return SpawnResult{}, warning, appendWarning(
			fmt.Errorf("%w: stdout=%s stderr=%s", ErrSessionIDMissing, truncate(result.Stdout, 512), truncate(result.Stderr, 512)),
			warning)
	}

	return SpawnResult{SessionKey: req.Label, SessionID: sessionID}, warning, nil
}

func appendWarning(err error, warning string) error {
	if warning == "" {
		return err
	}
	return fmt.Errorf("%w (%s)", err, warning)
}

func firstNonEmpty(vals...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "...(truncated)"
}

type rawJSONWrapper struct {
	Truncated bool `json:"truncated"`
	OriginalLength int `json:"originalLength"`
	Preview string `json:"preview"`
}

// persist writes the successful spawn's AgentSession row
func (s *Spawner) persist(ctx context.Context, req SpawnRequest, res SpawnResult, warning string) (SpawnResult, error) {
	if s.sessions == nil {
		return res, nil
	}
	now := s.now()

	spawnRecord := map[string]any{
		"spawn": map[string]any{
			"sessionKey": res.SessionKey,
			"sessionId": res.SessionID,
		},
		"parsed": true,
	}
	if warning != "" {
		spawnRecord["warning"] = warning
	}
	raw, err := json.Marshal(spawnRecord)
	if err != nil {
		raw = []byte(`{}`)
	}
	if len(raw) > maxRawJSONBytes {
		wrapped, _ := json.Marshal(rawJSONWrapper{Truncated: true, OriginalLength: len(raw), Preview: truncate(raw, 1024)})
		raw = wrapped
	}

	as := telemetry.AgentSession{
		SessionID: res.SessionID,
		SessionKey: res.SessionKey,
		AgentID: req.AgentID,
		State: telemetry.StateActive,
		UpdatedAtMs: now.UnixMilli(),
		LastSeenAt: now,
		Model: req.Model,
		OperationID: usage.ExtractOperationID(req.Label),
		WorkOrderID: usage.ExtractWorkOrderID(req.Label),
		RawJSON: raw,
	}
	if err := s.sessions.Upsert(ctx, as); err != nil {
		return res, fmt.Errorf("dispatch: persist agent session: %w", err)
	}
	return res, nil
}

// OpenAIAPIKeyConfigured reports whether OPENAI_API_KEY is present in the
// environment env var table.
func OpenAIAPIKeyConfigured() bool {
	return os.Getenv("OPENAI_API_KEY") != ""
}
