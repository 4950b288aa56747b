package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/logger"
	"github.com/shopspring/decimal"

	. "github.com/DrGermanius/buyback/internal"
	"github.com/DrGermanius/buyback/internal/dates"
	"github.com/DrGermanius/buyback/internal/ingest"
	"github.com/DrGermanius/buyback/internal/metrics"
)

const shutdownTimeout = 30 * time.Second

func main() {
	//decimals at json as numbers
	decimal.MarshalJSONWithoutQuotes = true

	cfg, err := NewConfig()
	if err != nil {
		log.Fatal(err)
	}
	sugaredLogger, err := NewLogger(cfg.LogLevel)
	if err != nil {
		log.Fatal(err)
	}
	defer sugaredLogger.Sync()

	repository, err := NewRepository(cfg.DatabaseURI, sugaredLogger)
	if err != nil {
		sugaredLogger.Fatal(err)
	}
	defer repository.Close()

	reg := metrics.NewRegistry()
	normalizer := dates.NewNormalizer(cfg.Location)
	meta := ingest.NewFileMetadata(cfg.MetadataPath)
	converter := ingest.NewFileConverter(cfg.UploadsDir, repository, ingest.NewMapper(normalizer), cfg.MaxRows, sugaredLogger, reg)
	queue := ingest.NewQueue(converter, meta, sugaredLogger, reg)

	watcher, err := ingest.NewWatcher(cfg.WatcherConfig(), queue, meta, sugaredLogger)
	if err != nil {
		sugaredLogger.Fatal(err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	watchDone := make(chan struct{})
	go func() {
		defer close(watchDone)
		if err := watcher.Run(ctx); err != nil {
			sugaredLogger.Errorw("Watcher stopped", "error", err)
		}
	}()

	service := NewService(repository, queue, meta, cfg.UploadsDir, sugaredLogger)
	handlers := NewHandlers(service, normalizer, sugaredLogger)

	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	app.Use(logger.New())
	handlers.Routes(app.Group("/api"), NewAuth(cfg.JWTSecret))

	metricsSrv := &http.Server{Addr: cfg.MetricsAddress, Handler: reg.Handler()}
	go func() {
		if err := metricsSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			sugaredLogger.Errorw("Metrics listener stopped", "error", err)
		}
	}()

	go func() {
		if err := app.Listen(cfg.RunAddress); err != nil {
			sugaredLogger.Errorw("HTTP listener stopped", "error", err)
			stop()
		}
	}()
	sugaredLogger.Infow("Service started", "address", cfg.RunAddress, "metrics", cfg.MetricsAddress)

	<-ctx.Done()
	sugaredLogger.Info("Shutting down service...")

	if err := app.Shutdown(); err != nil {
		sugaredLogger.Errorw("HTTP shutdown failed", "error", err)
	}
	<-watchDone

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := queue.Shutdown(shutdownCtx); err != nil {
		sugaredLogger.Errorw("Queue shutdown failed", "error", err)
	}
	if err := metricsSrv.Shutdown(shutdownCtx); err != nil {
		sugaredLogger.Errorw("Metrics shutdown failed", "error", err)
	}
}
