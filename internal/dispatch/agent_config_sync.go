package dispatch

import (
	"context"
	"fmt"
	"time"
)

// agentLocalFallbackTimeout bounds the config-sync side channel so a slow
// runtime invocation never stalls a spawn by more than a few seconds.
const agentLocalFallbackTimeout = 5 * time.Second

// execAgentConfigSync is the production AgentConfigSync: it shells out to
// the runtime binary the same way spawnAgentLocal does, via the Spawner's
// own CommandRunner, rather than opening a second execution path.
type execAgentConfigSync struct {
	runtimeBin string
	runner CommandRunner
}

// NewExecAgentConfigSync builds an AgentConfigSync backed by runner.
func NewExecAgentConfigSync(runtimeBin string, runner CommandRunner) AgentConfigSync {
	return &execAgentConfigSync{runtimeBin: runtimeBin, runner: runner}
}

// EnsureModelFallback sets the agent's model fallback chain via the
// runtime's agent-config subcommand.
func (s *execAgentConfigSync) EnsureModelFallback(ctx context.Context, agentID string, fallbacks []string) error {
	argv := []string{s.runtimeBin, "agent", "config", "set-model-fallback", "--agent", agentID}
	for _, f := range fallbacks {
		argv = append(argv, "--fallback", f)
	}
	result, err := s.runner.Run(ctx, agentLocalFallbackTimeout, argv)
	if err != nil {
		return fmt.Errorf("dispatch: ensure model fallback for %s: %w", agentID, err)
	}
	if result.ExitCode != 0 {
		return fmt.Errorf("dispatch: set-model-fallback for %s exited %d: %s", agentID, result.ExitCode, truncate(result.Stderr, 256))
	}
	return nil
}
