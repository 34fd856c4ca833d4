// Package main 工作台事件消费者入口（job-worker）
package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	_ "go.uber.org/automaxprocs"
	"golang.org/x/sync/errgroup"

	"z-novel-studio/internal/config"
	"z-novel-studio/internal/infrastructure/messaging"
	"z-novel-studio/internal/wire"
	"z-novel-studio/pkg/logger"
	"z-novel-studio/pkg/tracer"
)

// dlqAlertThreshold 死信队列告警阈值
const dlqAlertThreshold = 10

func main() {
	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Printf("Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger.Init(cfg.Observability.Logging.Level, cfg.Observability.Logging.Format)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	shutdown, err := tracer.Init(ctx, tracer.Config{
		ServiceName: "job-worker",
		Endpoint:    cfg.Observability.Tracing.Endpoint,
		SampleRate:  cfg.Observability.Tracing.SampleRate,
		Enabled:     cfg.Observability.Tracing.Enabled,
	})
	if err != nil {
		logger.Fatal(ctx, "failed to init tracer", err)
	}
	defer func() { _ = shutdown(context.Background()) }()

	worker, cleanup, err := wire.InitializeWorker(ctx, cfg)
	if err != nil {
		logger.Fatal(ctx, "failed to initialize worker", err)
	}
	defer cleanup()

	consumer := worker.Consumer
	consumer.RegisterHandler(messaging.MessageTypeLLMUsage, worker.Recorder.HandleMessage)
	worker.Projector.Register(consumer.RegisterHandler)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		if err := consumer.Start(gctx); err != nil {
			return err
		}
		logger.Info(gctx, "job-worker started", "stream", messaging.StreamStudioEvents)
		<-gctx.Done()
		consumer.Stop()
		return nil
	})

	g.Go(func() error {
		consumer.MonitorDLQ(gctx, dlqAlertThreshold)
		return nil
	})

	if cfg.Observability.Metrics.Enabled && cfg.Observability.Metrics.WorkerAddr != "" {
		mux := http.NewServeMux()
		mux.Handle(cfg.Observability.Metrics.Path, promhttp.Handler())
		srv := &http.Server{
			Addr:              cfg.Observability.Metrics.WorkerAddr,
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}

		g.Go(func() error {
			logger.Info(gctx, "metrics server starting", "addr", srv.Addr)
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		})
	}

	if err := g.Wait(); err != nil {
		logger.Error(context.Background(), "job-worker stopped with error", err)
		os.Exit(1)
	}
	logger.Info(context.Background(), "job-worker exited")
}
