package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/serp-crawler/internal/config"
	"github.com/JakeFAU/serp-crawler/internal/crawler"
	"github.com/JakeFAU/serp-crawler/internal/logging"
)

type cfgKey struct{}

type loggerKey struct{}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "serpcrawl",
		Short:         "Resumable search result crawler with rotating proxies.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			zap.ReplaceGlobals(logger)
			ctx := context.WithValue(cmd.Context(), cfgKey{}, cfg)
			ctx = context.WithValue(ctx, loggerKey{}, logger)
			cmd.SetContext(ctx)
			return nil
		},
		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if logger, ok := cmd.Context().Value(loggerKey{}).(*zap.Logger); ok {
				_ = logger.Sync()
			}
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML, TOML or JSON)")
	cmd.AddCommand(newCrawlCmd(), newProxiesCmd())
	return cmd
}

// Execute runs the CLI and returns the process exit code.
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "serpcrawl: %v\n", err)
		if errors.Is(err, crawler.ErrNoProxies) {
			fmt.Fprintln(os.Stderr, noProxiesHint)
		}
		return 1
	}
	return 0
}

const noProxiesHint = `No working proxies are left and proxy.required is set.
Progress was checkpointed; rerun with --resume once proxies are available, add
addresses with --proxy or proxy.file, or unset proxy.required to fetch directly.`

func configFrom(ctx context.Context) config.Config {
	cfg, _ := ctx.Value(cfgKey{}).(config.Config)
	return cfg
}

func loggerFrom(ctx context.Context) *zap.Logger {
	if logger, ok := ctx.Value(loggerKey{}).(*zap.Logger); ok {
		return logger
	}
	return zap.NewNop()
}
