package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/clawcontrol/clawcontrol/internal/lease"
	"github.com/clawcontrol/clawcontrol/internal/usage"
)

func usageCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use: "usage",
		Short: "Usage ingestion, parity scope, and explore queries",
	}
	cmd.AddCommand(usageSyncCmd())
	cmd.AddCommand(usageScopeCmd())
	cmd.AddCommand(usageExploreCmd())
	return cmd
}

func newLeaseManager(leaseStore lease.Store) *lease.Manager {
	return lease.NewManager(leaseStore, uuid.NewString, time.Now)
}

func usageSyncCmd() *cobra.Command {
	return &cobra.Command{
		Use: "sync",
		Short: "Run one usage ingestion pass over session files",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, stores, err := openStores()
			if err != nil {
				return err
			}
			defer stores.DB.Close()

			lister := usage.NewFSLister(cfg.Runtime.Home)
			opener := usage.NewOSFileOpener()
			leaseMgr := newLeaseManager(stores.Leases)
			ttl := time.Duration(cfg.Usage.SyncTimeoutSeconds) * time.Second
			ingester := usage.NewIngester(leaseMgr, lister, opener, stores.Usage, ttl)

			res, err := ingester.SyncUsage(cmd.Context())
			if err != nil {
				return fmt.Errorf("sync usage: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(res)
		},
	}
}

func usageScopeCmd() *cobra.Command {
	var from, to string
	var limit int
	c := &cobra.Command{
		Use: "scope",
		Short: "Resolve the parity scope for a time window",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			fromT, err := time.Parse(time.RFC3339, from)
			if err != nil {
				return fmt.Errorf("invalid --from: %w", err)
			}
			toT, err := time.Parse(time.RFC3339, to)
			if err != nil {
				return fmt.Errorf("invalid --to: %w", err)
			}

			_, stores, err := openStores()
			if err != nil {
				return err
			}
			defer stores.DB.Close()

			lister := usage.NewFSLister(cfg.Runtime.Home)
			cache := usage.NewTTLCache[usage.ScopeResult](remoteCache(cfg))
			resolver := usage.NewScopeResolver(lister, stores.Usage, cache)

			res, err := resolver.ResolveScope(cmd.Context(), usage.ScopeRequest{
				From: fromT,
				To: toT,
				SessionLimit: limit,
			})
			if err != nil {
				return fmt.Errorf("resolve scope: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(res)
		},
	}
	c.Flags().StringVar(&from, "from", "", "window start, RFC3339")
	c.Flags().StringVar(&to, "to", "", "window end, RFC3339")
	c.Flags().IntVar(&limit, "limit", 0, "session sample limit (0 = default)")
	return c
}

func usageExploreCmd() *cobra.Command {
	return &cobra.Command{
		Use: "explore",
		Short: "Run an explore summary query (reads ExploreQuery JSON from stdin)",
		RunE: func(cmd *cobra.Command, args []string) error {
			var q usage.ExploreQuery
			if err := json.NewDecoder(os.Stdin).Decode(&q); err != nil {
				return fmt.Errorf("decode query: %w", err)
			}

			cfg, stores, err := openStores()
			if err != nil {
				return err
			}
			defer stores.DB.Close()

			exploreStore, ok := stores.Usage.(usage.ExploreStore)
			if !ok {
				return fmt.Errorf("usage store does not implement ExploreStore")
			}

			cache := usage.NewTTLCache[any](remoteCache(cfg))
			explorer := usage.NewExplorer(exploreStore, cache)

			summary, err := explorer.GetSummary(cmd.Context(), usage.Normalize(q, time.Now()))
			if err != nil {
				return fmt.Errorf("get summary: %w", err)
			}
			return json.NewEncoder(os.Stdout).Encode(summary)
		},
	}
}
