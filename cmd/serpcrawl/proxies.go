package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/JakeFAU/serp-crawler/internal/identity"
	"github.com/JakeFAU/serp-crawler/internal/metrics"
)

func newProxiesCmd() *cobra.Command {
	var (
		engineName string
		extra      []string
	)
	cmd := &cobra.Command{
		Use:   "proxies",
		Short: "Collect and validate proxies, then print the healthy ones",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			cfg := configFrom(ctx)
			if engineName != "" {
				if err := cfg.UsePreset(engineName); err != nil {
					return err
				}
			}
			cfg.Proxy.Enabled = true
			metrics.Init()
			ua := identity.NewRotator(cfg.Fetch.UserAgents, 0).UserAgent()
			pool, err := buildProxyPool(ctx, cfg, extra, ua, loggerFrom(ctx))
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			for _, rec := range pool.Snapshot() {
				fmt.Fprintln(out, rec.Address)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "%d healthy proxies (probe %s)\n", pool.Size(), cfg.Source.ProbeURL())
			return nil
		},
	}
	cmd.Flags().StringVar(&engineName, "engine", "", "source preset whose probe URL is used")
	cmd.Flags().StringSliceVar(&extra, "proxy", nil, "extra host:port proxies, repeatable")
	return cmd
}
