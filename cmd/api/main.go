package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/LJTian/TransitAlerts/internal/api"
	"github.com/LJTian/TransitAlerts/internal/config"
	"github.com/LJTian/TransitAlerts/internal/pipeline"
	"github.com/LJTian/TransitAlerts/internal/scheduler"
	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

// 单轮采集的上限时长，避免卡住的外部接口阻塞后续调度
const runTimeout = 10 * time.Minute

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("load config failed: %v", err)
	}
	if err := config.InitLogger(cfg.Log); err != nil {
		log.Fatalf("init logger failed: %v", err)
	}
	defer func() { _ = zap.L().Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	p, store, closeAll, err := pipeline.FromConfig(ctx, cfg)
	if err != nil {
		zap.L().Fatal("init pipeline failed", zap.Error(err))
	}
	defer func() {
		if err := closeAll(); err != nil {
			zap.L().Warn("close resources failed", zap.Error(err))
		}
	}()

	s, err := scheduler.New(cfg.CronSpec, p, runTimeout)
	if err != nil {
		zap.L().Fatal("init scheduler failed", zap.String("spec", cfg.CronSpec), zap.Error(err))
	}
	s.Start()
	defer s.Stop()

	r := gin.Default()
	// 若配置了全局访问密码，则启用 Basic Auth 保护（/health 仍然免认证）
	if cfg.BasicAuthUser != "" && cfg.BasicAuthPass != "" {
		r.Use(api.BasicAuth(cfg.BasicAuthUser, cfg.BasicAuthPass))
	}
	api.NewServer(store, s).RegisterRoutes(r)

	srv := &http.Server{Addr: ":" + cfg.AppPort, Handler: r}
	go func() {
		zap.L().Info("starting api server", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			zap.L().Error("server exit", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		zap.L().Warn("server shutdown", zap.Error(err))
	}
}
