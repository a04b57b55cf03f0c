package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/wolfman30/wellness-companion/internal/app/bootstrap"
	appconfig "github.com/wolfman30/wellness-companion/internal/config"
	"github.com/wolfman30/wellness-companion/pkg/logging"
)

func main() {
	_ = godotenv.Load()
	cfg := appconfig.Load()
	logger := logging.New(cfg.LogLevel)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	worker, cleanup, err := bootstrap.BuildSummaryWorker(ctx, cfg, logger, nil)
	if err != nil {
		logger.Error("failed to build summary worker", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	worker.Start(ctx)
	logger.Info("summary worker started", "queue_url", cfg.SummaryQueueURL, "workers", cfg.SummaryWorkerCount)

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)
	<-stop

	logger.Info("shutting down summary worker...")
	cancel()

	doneCtx, doneCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer doneCancel()

	waitCh := make(chan struct{})
	go func() {
		worker.Wait()
		close(waitCh)
	}()

	select {
	case <-waitCh:
		logger.Info("summary worker stopped")
	case <-doneCtx.Done():
		logger.Error("summary worker shutdown timed out", "error", doneCtx.Err())
	}
}
