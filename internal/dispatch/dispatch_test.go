package dispatch

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/clawcontrol/clawcontrol/internal/telemetry"
)

type fakeSessionStore struct {
	upserted []telemetry.AgentSession
}

func (s *fakeSessionStore) Upsert(ctx context.Context, as telemetry.AgentSession) error {
	s.upserted = append(s.upserted, as)
	return nil
}
func (s *fakeSessionStore) ListByAgent(ctx context.Context, agentID string) ([]telemetry.AgentSession, error) {
	return nil, nil
}
func (s *fakeSessionStore) Get(ctx context.Context, sessionID string) (*telemetry.AgentSession, error) {
	return nil, nil
}

type scriptedRunner struct {
	calls int
	results []ExecResult
	errs []error
}

func (r *scriptedRunner) Run(ctx context.Context, timeout time.Duration, argv []string) (ExecResult, error) {
	i := r.calls
	r.calls++
	if i >= len(r.results) {
		return ExecResult{}, errors.New("scriptedRunner: no more scripted calls")
	}
	return r.results[i], r.errs[i]
}

func TestSpawnRunModeSuccess(t *testing.T) {
	stdout, _ := json.Marshal(runStdout{SessionID: "sess-123"})
	runner := &scriptedRunner{results: []ExecResult{{Stdout: stdout}}, errs: []error{nil}}
	store := &fakeSessionStore{}
	sp := NewSpawner(Config{RuntimeBin: "clawrt", Mode: ModeRun}, runner, store, nil)

	res, err := sp.Spawn(context.Background(), SpawnRequest{AgentID: "agent-1", Label: "label-1", Task: "do it"})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if res.SessionID != "sess-123" {
		t.Fatalf("SessionID = %q", res.SessionID)
	}
	if len(store.upserted) != 1 {
		t.Fatalf("expected one persisted AgentSession, got %d", len(store.upserted))
	}
}

func TestSpawnAutoFallsBackToAgentLocalOnSignature(t *testing.T) {
	agentOut, _ := json.Marshal(agentLocalStdout{SessionID: "sess-456"})
	runner := &scriptedRunner{
		results: []ExecResult{{}, {Stdout: agentOut}},
		errs: []error{errors.New("unknown command 'run'"), nil},
	}
	store := &fakeSessionStore{}
	sp := NewSpawner(Config{RuntimeBin: "clawrt", Mode: ModeAuto}, runner, store, nil)

	res, err := sp.Spawn(context.Background(), SpawnRequest{AgentID: "agent-1", Label: "label-1", Task: "do it"})
	if err != nil {
		t.Fatalf("Spawn failed: %v", err)
	}
	if res.SessionID != "sess-456" {
		t.Fatalf("SessionID = %q, want fallback result", res.SessionID)
	}
}

func TestSpawnRunModeFailsHardOnNonFallbackError(t *testing.T) {
	runner := &scriptedRunner{results: []ExecResult{{}}, errs: []error{errors.New("permission denied")}}
	store := &fakeSessionStore{}
	sp := NewSpawner(Config{RuntimeBin: "clawrt", Mode: ModeRun}, runner, store, nil)

	_, err := sp.Spawn(context.Background(), SpawnRequest{AgentID: "agent-1", Label: "label-1", Task: "do it"})
	if err == nil {
		t.Fatal("expected hard error in explicit run mode")
	}
}

func TestSpawnMemoizesResolvedModeAfterFallback(t *testing.T) {
	agentOut, _ := json.Marshal(agentLocalStdout{SessionID: "sess-1"})
	runner := &scriptedRunner{
		results: []ExecResult{{}, {Stdout: agentOut}, {Stdout: agentOut}},
		errs: []error{errors.New("unknown command 'run'"), nil, nil},
	}
	store := &fakeSessionStore{}
	sp := NewSpawner(Config{RuntimeBin: "clawrt", Mode: ModeAuto}, runner, store, nil)

	if _, err := sp.Spawn(context.Background(), SpawnRequest{AgentID: "a", Label: "l1", Task: "t"}); err != nil {
		t.Fatalf("first spawn failed: %v", err)
	}
	if _, err := sp.Spawn(context.Background(), SpawnRequest{AgentID: "a", Label: "l2", Task: "t"}); err != nil {
		t.Fatalf("second spawn failed: %v", err)
	}
	// Second spawn should go straight to agent_local (no "run" attempt),
	// so 3 scripted calls in total should have been consumed: the first
	// spawn's 2 calls plus the second spawn's single agent_local call.
	if runner.calls != 3 {
		t.Fatalf("runner.calls = %d, want 3 (1 run + 1 fallback + 1 memoized agent_local)", runner.calls)
	}
}

func TestSpawnSessionIDMissingReturnsError(t *testing.T) {
	runner := &scriptedRunner{results: []ExecResult{{Stdout: []byte(`{}`)}}, errs: []error{nil}}
	store := &fakeSessionStore{}
	sp := NewSpawner(Config{RuntimeBin: "clawrt", Mode: ModeRun}, runner, store, nil)

	_, err := sp.Spawn(context.Background(), SpawnRequest{AgentID: "agent-1", Label: "label-1", Task: "do it"})
	if !errors.Is(err, ErrSessionIDMissing) {
		t.Fatalf("expected ErrSessionIDMissing, got %v", err)
	}
}
