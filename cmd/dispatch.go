package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/clawcontrol/clawcontrol/internal/dispatch"
)

func dispatchCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "dispatch",
		Short: "Agent dispatch core: spawn sessions against the agent runtime",
	}
	cmd.AddCommand(dispatchSpawnCmd())
	return cmd
}

func dispatchSpawnCmd() *cobra.Command {
	var agentID, label, task, model, mode string
	var timeoutSeconds int
	c := &cobra.Command{
		Use: "spawn",
		Short: "Spawn one agent session",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, stores, err := openStores()
			if err != nil {
				return err
			}
			defer stores.DB.Close()

			dispatchMode := dispatch.Mode(mode)
			if dispatchMode == "" {
				dispatchMode = dispatch.Mode(cfg.Dispatch.Mode)
			}

			runner := dispatch.NewCommandRunner()
			agentSync := dispatch.NewExecAgentConfigSync(cfg.Runtime.BinaryPath, runner)
			spawner := dispatch.NewSpawner(dispatch.Config{
				RuntimeBin: cfg.Runtime.BinaryPath,
				Mode: dispatchMode,
				HasOpenAIAPIKey: cfg.Dispatch.AgentLocalFallback,
				SpawnsPerMinute: cfg.Dispatch.SpawnsPerMinute,
			}, runner, stores.Sessions, agentSync)

			if timeoutSeconds <= 0 {
				timeoutSeconds = cfg.Dispatch.TimeoutSeconds
			}

			var taskContext any
			if raw := os.Getenv("CLAWCONTROL_DISPATCH_CONTEXT"); raw != "" {
				if err := json.Unmarshal([]byte(raw), &taskContext); err != nil {
					return fmt.Errorf("parse CLAWCONTROL_DISPATCH_CONTEXT: %w", err)
				}
			}

			res, err := spawner.Spawn(cmd.Context(), dispatch.SpawnRequest{
				AgentID: agentID,
				Label: label,
				Task: task,
				Context: taskContext,
				Model: model,
				TimeoutSeconds: timeoutSeconds,
			})
			if err != nil {
				return fmt.Errorf("spawn: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(res)
		},
	}
	c.Flags().StringVar(&agentID, "agent", "", "agent id to dispatch")
	c.Flags().StringVar(&label, "label", "", "subagent label, empty for the primary session")
	c.Flags().StringVar(&task, "task", "", "task instructions")
	c.Flags().StringVar(&model, "model", "", "model override")
	c.Flags().StringVar(&mode, "mode", "", "dispatch mode: auto, run, agent_local (default: config)")
	c.Flags().IntVar(&timeoutSeconds, "timeout-seconds", 0, "spawn timeout (default: config)")
	c.MarkFlagRequired("agent")
	c.MarkFlagRequired("task")
	return c
}
