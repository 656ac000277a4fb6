package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/clawcontrol/clawcontrol/internal/actionable"
	"github.com/clawcontrol/clawcontrol/internal/bus"
	"github.com/clawcontrol/clawcontrol/internal/dispatch"
	"github.com/clawcontrol/clawcontrol/internal/httpapi"
	"github.com/clawcontrol/clawcontrol/internal/telemetry"
	"github.com/clawcontrol/clawcontrol/internal/usage"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use: "serve",
		Short: "Run the HTTP gateway and background sync loops",
		RunE: func(cmd *cobra.Command, args []string) error {
			logLevel := slog.LevelInfo
			if verbose {
				logLevel = slog.LevelDebug
			}
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: logLevel})))

			cfg, stores, err := openStores()
			if err != nil {
				return err
			}
			defer stores.DB.Close()

			lister := usage.NewFSLister(cfg.Runtime.Home)
			opener := usage.NewOSFileOpener()
			leaseMgr := newLeaseManager(stores.Leases)
			syncTTL := time.Duration(cfg.Usage.SyncTimeoutSeconds) * time.Second
			ingester := usage.NewIngester(leaseMgr, lister, opener, stores.Usage, syncTTL)

			scopeCache := usage.NewTTLCache[usage.ScopeResult](remoteCache(cfg))
			scope := usage.NewScopeResolver(lister, stores.Usage, scopeCache)

			var explore *usage.Explorer
			if exploreStore, ok := stores.Usage.(usage.ExploreStore); ok {
				explore = usage.NewExplorer(exploreStore, usage.NewTTLCache[any](remoteCache(cfg)))
			}

			runner := dispatch.NewCommandRunner()
			agentSync := dispatch.NewExecAgentConfigSync(cfg.Runtime.BinaryPath, runner)
			spawner := dispatch.NewSpawner(dispatch.Config{
				RuntimeBin: cfg.Runtime.BinaryPath,
				Mode: dispatch.Mode(cfg.Dispatch.Mode),
				HasOpenAIAPIKey: cfg.Dispatch.AgentLocalFallback,
				SpawnsPerMinute: cfg.Dispatch.SpawnsPerMinute,
			}, runner, stores.Sessions, agentSync)

			status := telemetry.NewExecStatusCommand(cfg.Runtime.BinaryPath)
			syncer := telemetry.NewSyncer(stores.Sessions, status,
				15*time.Second, 4*time.Second)

			var relay actionable.Relay
			if addr := os.Getenv("CLAWCONTROL_NATS_URL"); addr != "" {
				relay, err = bus.NewRelay(addr, "clawcontrol.actionable")
				if err != nil {
					return fmt.Errorf("connect relay: %w", err)
				}
			}
			intake := actionable.NewIntake(stores.Actionable, stores.Teams, relay, time.Now)

			server := httpapi.NewServer(
				fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port),
				cfg.Gateway.Token,
				httpapi.NewUsageHandler(ingester, scope, explore),
				httpapi.NewDispatchHandler(spawner),
				httpapi.NewTelemetryHandler(syncer, stores.Sessions),
				httpapi.NewActionableHandler(intake))

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			go func() {
				sig := <-sigCh
				slog.Info("shutdown initiated", "signal", sig)
				cancel()
			}()

			go runSyncLoop(ctx, "usage.sync", time.Duration(cfg.Usage.SyncIntervalSeconds)*time.Second, func(ctx context.Context) error {
				_, err := ingester.SyncUsage(ctx)
				return err
			})
			go runSyncLoop(ctx, "telemetry.sync", 30*time.Second, func(ctx context.Context) error {
				_, err := syncer.SyncAgentSessions(ctx)
				return err
			})

			slog.Info("clawcontrol serving", "addr", fmt.Sprintf("%s:%d", cfg.Gateway.Host, cfg.Gateway.Port))
			return server.Start(ctx)
		},
	}
}

// runSyncLoop runs fn on a fixed interval until ctx is canceled, logging
// (not panicking on) every failure — a sync failure this tick is retried
// next tick, per the single-writer lease's skip-not-block design.
func runSyncLoop(ctx context.Context, name string, interval time.Duration, fn func(ctx context.Context) error) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := fn(ctx); err != nil {
				slog.Warn("sync loop failed", "loop", name, "error", err)
			}
		}
	}
}
