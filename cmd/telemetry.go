package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawcontrol/clawcontrol/internal/telemetry"
)

func telemetryCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "telemetry",
		Short: "Session telemetry overlay: sync agent runtime status into sessions",
	}
	cmd.AddCommand(telemetrySyncCmd())
	return cmd
}

func telemetrySyncCmd() *cobra.Command {
	var timeoutSeconds int
	c := &cobra.Command{
		Use: "sync",
		Short: "Run one telemetry sync pass against the agent runtime's status command",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, stores, err := openStores()
			if err != nil {
				return err
			}
			defer stores.DB.Close()

			if timeoutSeconds <= 0 {
				timeoutSeconds = cfg.Dispatch.TimeoutSeconds
			}

			status := telemetry.NewExecStatusCommand(cfg.Runtime.BinaryPath)
			syncer := telemetry.NewSyncer(stores.Sessions, status, time.Duration(timeoutSeconds)*time.Second, 15*time.Second)

			stats, err := syncer.SyncAgentSessions(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync agent sessions: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(stats)
		},
	}
	c.Flags().IntVar(&timeoutSeconds, "timeout-seconds", 0, "status command timeout (default: config dispatch timeout)")
	return c
}
