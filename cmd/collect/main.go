package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/LJTian/TransitAlerts/internal/config"
	"github.com/LJTian/TransitAlerts/internal/pipeline"
	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	cfgPath string
	limit   int
)

// 仅执行一轮采集任务的命令行入口：适合 cron / 手动触发
var rootCmd = &cobra.Command{
	Use:           "collect",
	Short:         "Fetch transit alert posts, classify them and store new ones",
	SilenceUsage:  true,
	SilenceErrors: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(cfgPath)
		if err != nil {
			return err
		}
		if err := config.InitLogger(cfg.Log); err != nil {
			return err
		}
		defer func() { _ = zap.L().Sync() }()

		if cmd.Flags().Changed("limit") {
			cfg.Fetch.Limit = limit
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		p, _, closeAll, err := pipeline.FromConfig(ctx, cfg)
		if err != nil {
			return eris.Wrap(err, "collect: init")
		}
		defer func() {
			if err := closeAll(); err != nil {
				zap.L().Warn("close resources failed", zap.Error(err))
			}
		}()

		res, err := p.Run(ctx)
		if err != nil {
			return err
		}
		zap.L().Info("collect done",
			zap.String("run_id", res.RunID),
			zap.Int("fetched", res.Fetched),
			zap.Int("saved", res.Saved),
			zap.Int("skipped", res.Skipped),
			zap.Int("failed", res.Failed),
		)
		return nil
	},
}

func init() {
	rootCmd.Flags().StringVar(&cfgPath, "config", "", "path to config file (default ./config.yaml when present)")
	rootCmd.Flags().IntVar(&limit, "limit", 10, "maximum number of posts to fetch")
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		zap.L().Error("collect failed", zap.Error(err))
		fmt.Fprintln(os.Stderr, eris.ToString(err, false))
		os.Exit(1)
	}
}
