// Package main wires together the render service binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/renderfetch/renderfetch/internal/api"
	"github.com/renderfetch/renderfetch/internal/config"
	"github.com/renderfetch/renderfetch/internal/extract"
	"github.com/renderfetch/renderfetch/internal/logging"
	"github.com/renderfetch/renderfetch/internal/metrics"
	"github.com/renderfetch/renderfetch/internal/render"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	metrics.Init()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	blocklist := render.NewBlocklist(cfg.Blocklist.ExtraHosts)
	engine := render.NewChromedpClient(blocklist, logger.Named("engine"))

	pool := render.NewPool(engine, render.PoolConfig{
		Profile: render.LaunchProfile{
			ExecPath:  cfg.Engine.ExecPath,
			Headless:  cfg.Engine.Headless,
			UserAgent: cfg.Engine.UserAgent,
			WaitUntil: render.WaitCondition(cfg.Engine.WaitUntil),
		},
		PageCeiling:   cfg.Pool.PageCeiling,
		HealthProbe:   time.Duration(cfg.Pool.HealthProbeSeconds) * time.Second,
		ShutdownGrace: time.Duration(cfg.Pool.ShutdownGraceSeconds) * time.Second,
	}, logger.Named("pool"))
	pool.ObserveLaunches(metrics.ObserveLaunch)
	pool.ObserveRecycles(metrics.ObserveRecycle)

	executor := render.NewExecutor(pool, render.ExecutorConfig{
		MaxConcurrent: cfg.Executor.MaxConcurrent,
		RetryBudget:   cfg.Executor.RetryBudget,
		BackoffBase:   time.Duration(cfg.Executor.BackoffBaseMs) * time.Millisecond,
		NavTimeout:    time.Duration(cfg.Executor.NavigationTimeoutSecs) * time.Second,
		OpTimeout:     time.Duration(cfg.Executor.OperationTimeoutSeconds) * time.Second,
	}, logger.Named("executor"))

	pipeline := extract.NewPipeline(cfg.Extract.MinTextLen, logger.Named("extract"))
	service := render.NewService(executor, pool, pipeline,
		time.Duration(cfg.Extract.CaptureTimeoutSeconds)*time.Second)

	reaper := render.NewReaper(pool, executor.Gate(),
		time.Duration(cfg.Reaper.IntervalSeconds)*time.Second, logger.Named("reaper"))
	reaper.ObserveReaped(metrics.ObservePagesReaped)
	go reaper.Run(ctx)

	apiServer := api.NewServer(service, cfg, logger.Named("api"))

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           apiServer.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutdown initiated")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	if err := pool.Shutdown(); err != nil {
		logger.Error("pool shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
}
