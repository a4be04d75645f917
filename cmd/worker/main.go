package main

import (
	"context"
	"log"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/finsheet-io/finsheet/internal/bootstrap"
	"github.com/finsheet-io/finsheet/internal/config"
	"github.com/finsheet-io/finsheet/internal/observability/logging"
	"github.com/finsheet-io/finsheet/internal/observability/metrics"
)

const serviceName = "finsheet-worker"

func main() {
	cfg := config.Load()
	slog.SetDefault(logging.NewJSONLogger(serviceName, cfg.LogLevel))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, err := bootstrap.New(ctx, cfg)
	if err != nil {
		log.Fatalf("bootstrap error: %v", err)
	}
	defer app.Close()

	workerMetrics := metrics.NewWorkerMetrics(serviceName)
	metricsServer := &http.Server{
		Addr:    ":" + cfg.WorkerMetricsPort,
		Handler: workerMetrics.Handler(),
	}
	go func() {
		slog.Info("worker_metrics_listening", "port", cfg.WorkerMetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			slog.Error("worker_metrics_server_error", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	slog.Info("worker_subscribed", "subject", cfg.NATSSubject)
	err = app.Queue.SubscribeRunQueued(ctx, func(handlerCtx context.Context, runID string) error {
		processCtx, cancel := context.WithTimeout(handlerCtx, 10*time.Minute)
		defer cancel()

		workerMetrics.StartRun()
		start := time.Now()
		if run, repoErr := app.Repo.GetRun(processCtx, runID); repoErr == nil {
			workerMetrics.ObserveQueueLag(serviceName, start.Sub(run.CreatedAt))
		}
		processErr := app.RunUC.ProcessRunByID(processCtx, runID)
		workerMetrics.FinishRun(serviceName, time.Since(start), processErr)
		if processErr != nil {
			slog.Error("run_processing_failed", "run_id", runID, "error", processErr)
		}
		return processErr
	})
	if err != nil {
		log.Fatalf("worker subscribe error: %v", err)
	}
}
