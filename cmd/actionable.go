package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawcontrol/clawcontrol/internal/actionable"
	"github.com/clawcontrol/clawcontrol/internal/bus"
)

func actionableCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "actionable",
		Short: "Ops actionable intake: dedupe, scope-resolve, and relay ops findings",
	}
	cmd.AddCommand(actionableIngestCmd())
	cmd.AddCommand(actionableSeedTeamCmd())
	return cmd
}

func actionableIngestCmd() *cobra.Command {
	return &cobra.Command{
		Use: "ingest",
		Short: "Ingest one actionable payload (reads Payload JSON from stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var p actionable.Payload
			if err := json.NewDecoder(os.Stdin).Decode(&p); err != nil {
				return fmt.Errorf("decode payload: %w", err)
			}

			_, stores, err := openStores()
			if err != nil {
				return err
			}
			defer stores.DB.Close()

			var relay actionable.Relay
			if addr := os.Getenv("CLAWCONTROL_NATS_URL"); addr != "" {
				relay, err = bus.NewRelay(addr, "clawcontrol.actionable")
				if err != nil {
					return fmt.Errorf("connect relay: %w", err)
				}
			}

			intake := actionable.NewIntake(stores.Actionable, stores.Teams, relay, time.Now)
			res, err := intake.Ingest(cmd.Context(), p)
			if err != nil {
				return fmt.Errorf("ingest: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(res)
		},
	}
}

func actionableSeedTeamCmd() *cobra.Command {
	var teamID, opsAgentID, relayKey string
	c := &cobra.Command{
		Use: "seed-team",
		Short: "Seed or update a team's ops governance record",
		RunE: func(cmd *cobra.Command, args []string) error {
			_, stores, err := openStores()
			if err != nil {
				return err
			}
			defer stores.DB.Close()

			return stores.Teams.SetGovernance(cmd.Context(), teamID, actionable.TeamGovernance{
				OpsRuntimeAgentID: opsAgentID,
				RelayKey: relayKey,
			})
		},
	}
	c.Flags().StringVar(&teamID, "team", "", "team id")
	c.Flags().StringVar(&opsAgentID, "ops-agent", "", "ops runtime agent id")
	c.Flags().StringVar(&relayKey, "relay-key", "", "relay key")
	c.MarkFlagRequired("team")
	return c
}
