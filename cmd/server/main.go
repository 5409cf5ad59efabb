/**
 * OCR Text Service - Main Entry Point
 *
 * Accepts PDF and image uploads, runs word-level OCR and rebuilds
 * reading-order text with layout-aware spacing.
 *
 * Architecture:
 * - net/http API (synchronous extraction, async submission, job lookup)
 * - One OCR engine per process (pooled Tesseract or docTR sidecar)
 * - Optional Redis result cache and Asynq job queue
 * - Optional PostgreSQL job persistence
 */

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

	"github.com/adverant/nexus/ocr-text-service/internal/api"
	"github.com/adverant/nexus/ocr-text-service/internal/config"
	"github.com/adverant/nexus/ocr-text-service/internal/document"
	"github.com/adverant/nexus/ocr-text-service/internal/logging"
	"github.com/adverant/nexus/ocr-text-service/internal/ocr"
	"github.com/adverant/nexus/ocr-text-service/internal/processor"
	"github.com/adverant/nexus/ocr-text-service/internal/queue"
	"github.com/adverant/nexus/ocr-text-service/internal/storage"
	"github.com/joho/godotenv"
)

func main() {
	logger := logging.NewLogger("Main")

	// Load environment variables
	if err := godotenv.Load(); err != nil {
		logger.Warn(".env not found, using system environment variables")
	}

	if err := run(logger); err != nil {
		logger.Error("OCR Text Service failed", "error", err)
		os.Exit(1)
	}
}

// run wires the service and blocks until shutdown. Returning instead of
// exiting lets every deferred Close run on startup failures too.
func run(logger *logging.Logger) error {
	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	if err := logging.Configure(cfg.LogLevel, cfg.LogFormat); err != nil {
		return fmt.Errorf("failed to configure logging: %w", err)
	}

	logger.Info("OCR Text Service starting",
		"addr", cfg.HTTPAddr,
		"engine", cfg.OCREngine,
		"ocrConcurrency", cfg.OCRConcurrency,
		"cache", cfg.RedisURL != "",
		"jobStore", cfg.DatabaseURL != "")

	// OCR engine is created once and shared by every request
	engine, err := ocr.New(cfg)
	if err != nil {
		return fmt.Errorf("failed to initialize OCR engine: %w", err)
	}
	defer func() {
		if err := engine.Close(); err != nil {
			logger.Warn("Error closing OCR engine", "error", err)
		}
	}()

	// Storage backends are optional
	initCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	storageManager, err := storage.NewStorageManager(initCtx, storage.Options{
		DatabaseURL: cfg.DatabaseURL,
		RedisURL:    cfg.RedisURL,
		CacheTTL:    cfg.CacheExpiration(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize storage manager: %w", err)
	}
	defer storageManager.Close()

	if err := storageManager.Ping(initCtx); err != nil {
		return fmt.Errorf("storage backends unreachable: %w", err)
	}

	proc, err := processor.NewProcessor(&processor.ProcessorConfig{
		Loader: document.NewDecoder(&document.DecoderConfig{
			Rasterizer: document.NewPopplerRasterizer(cfg.PdftoppmPath),
			DPI:        cfg.PDFRenderDPI,
			TempDir:    cfg.TempDir,
		}),
		Engine:  engine,
		Store:   storageManager,
		TempDir: cfg.TempDir,
		Timeout: cfg.Timeout(),
	})
	if err != nil {
		return fmt.Errorf("failed to initialize processor: %w", err)
	}

	// Async queue needs Redis for tasks and PostgreSQL for results
	var enqueuer api.Enqueuer
	var consumer *queue.Consumer
	switch {
	case cfg.AsyncEnabled() && storageManager.HasJobStore():
		e, err := queue.NewEnqueuer(&queue.EnqueuerConfig{
			RedisURL:  cfg.RedisURL,
			QueueName: cfg.QueueName,
			Timeout:   cfg.Timeout(),
			Recorder:  proc,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize queue enqueuer: %w", err)
		}
		defer e.Close()
		enqueuer = e

		consumer, err = queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:    cfg.RedisURL,
			QueueName:   cfg.QueueName,
			Concurrency: cfg.WorkerConcurrency,
			Processor:   proc,
		})
		if err != nil {
			return fmt.Errorf("failed to initialize queue consumer: %w", err)
		}
		if err := consumer.Start(); err != nil {
			return err
		}
		defer func() {
			consumer.Stop()
			logger.Info("Queue consumer statistics", "stats", consumer.GetStatistics())
		}()
	case cfg.RedisURL != "":
		logger.Warn("REDIS_URL is set without DATABASE_URL; async extraction disabled, Redis used for caching only")
	}

	server := &http.Server{
		Addr: cfg.HTTPAddr,
		Handler: api.NewServer(&api.ServerConfig{
			Processor:     proc,
			Enqueuer:      enqueuer,
			Backends:      storageManager,
			MaxUploadSize: cfg.MaxUploadSize,
		}).Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("HTTP server listening", "addr", cfg.HTTPAddr)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Setup graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	var runErr error
	select {
	case sig := <-sigChan:
		logger.Info("Received signal, initiating graceful shutdown", "signal", sig.String())
	case err := <-serverErr:
		runErr = fmt.Errorf("HTTP server failed: %w", err)
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), cfg.Timeout())
	defer cancelShutdown()

	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Error shutting down HTTP server", "error", err)
	}

	logger.Info("Storage statistics", "stats", storageManager.GetStats())
	logger.Info("Shutdown complete")
	return runErr
}
