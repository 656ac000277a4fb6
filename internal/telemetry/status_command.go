package telemetry

import (
	"context"
	"fmt"
	"os/exec"
)

// NewExecStatusCommand returns a StatusCommand that shells out to
// `<runtimeBin> status --json` (`bin status.all.json`, 15s
// budget enforced by the caller's context).
func NewExecStatusCommand(runtimeBin string) StatusCommand {
	return func(ctx context.Context) ([]byte, error) {
		cmd := exec.CommandContext(ctx, runtimeBin, "status", "--json")
		out, err := cmd.Output()
		if err != nil {
			return nil, fmt.Errorf("telemetry: run status command: %w", err)
		}
		return out, nil
	}
}
