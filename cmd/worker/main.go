/**
 * StreamABLE Frame Worker - Main Entry Point
 *
 * Reads broadcast frames from a Redis-backed job queue, extracts the text
 * of every configured HUD region, and stores the ordered results.
 *
 * Architecture:
 * - Redis list consumer (default) or asynq consumer
 * - Per-region pipeline: crop, whitelisted OCR, type-aware normalization
 * - Local Tesseract OCR, or a remote vision service when VISION_OCR_URL is set
 * - PostgreSQL or SQLite persistence for analyses and job status
 */

package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hoovercj/streamABLE/internal/clients"
	"github.com/hoovercj/streamABLE/internal/config"
	"github.com/hoovercj/streamABLE/internal/logging"
	"github.com/hoovercj/streamABLE/internal/processor"
	"github.com/hoovercj/streamABLE/internal/queue"
	"github.com/hoovercj/streamABLE/internal/regions"
	"github.com/hoovercj/streamABLE/internal/storage"
)

// consumer is the lifecycle shared by both queue backends
type consumer interface {
	start(ctx context.Context) error
	stop(ctx context.Context) error
}

type redisBackend struct{ c *queue.RedisConsumer }

func (b redisBackend) start(context.Context) error { return b.c.Start() }
func (b redisBackend) stop(context.Context) error  { return b.c.Stop() }

type asynqBackend struct{ c *queue.Consumer }

func (b asynqBackend) start(ctx context.Context) error { return b.c.Start(ctx) }
func (b asynqBackend) stop(ctx context.Context) error  { return b.c.Stop(ctx) }

func main() {
	logger := logging.NewLogger("Worker")

	if err := config.LoadEnvFile(config.EnvFile); err != nil {
		logger.Warn("Env file not loaded, using system environment variables", "file", config.EnvFile)
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		logger.Error("Failed to load configuration", "error", err)
		os.Exit(1)
	}

	level, _ := logging.ParseLevel(cfg.LogLevel) // validated by LoadConfig
	logging.SetDefaultLevel(level)
	logger.SetLevel(level)

	logger.Info("StreamABLE frame worker starting",
		"queue", cfg.QueueName,
		"backend", cfg.QueueBackend,
		"database", cfg.DatabaseDriver,
		"workers", cfg.WorkerConcurrency,
		"catalog", cfg.Catalog)

	ctx := context.Background()

	storageManager, err := storage.NewStorageManager(ctx, cfg.DatabaseDriver, cfg.DatabaseURL)
	if err != nil {
		logger.Error("Failed to initialize storage manager", "error", err)
		os.Exit(1)
	}
	defer storageManager.Close()

	catalog, err := regions.Lookup(cfg.Catalog)
	if err != nil {
		logger.Error("Unknown region catalog", "catalog", cfg.Catalog, "error", err)
		os.Exit(1)
	}

	recognizer := newRecognizer(ctx, cfg, logger)

	proc, err := processor.NewFrameProcessor(&processor.ProcessorConfig{
		Analyzer: processor.NewFrameAnalyzer(catalog, recognizer, logging.NewLogger("FrameAnalyzer")),
		Fetcher: clients.NewFrameClient(&clients.FrameClientConfig{
			MaxFrameSize: cfg.MaxFrameSize,
		}),
		Store:  storageManager,
		Logger: logging.NewLogger("FrameProcessor"),
	})
	if err != nil {
		logger.Error("Failed to initialize frame processor", "error", err)
		os.Exit(1)
	}

	queueConsumer, err := newConsumer(cfg, proc)
	if err != nil {
		logger.Error("Failed to initialize queue consumer", "error", err)
		os.Exit(1)
	}

	if err := queueConsumer.start(ctx); err != nil {
		logger.Error("Failed to start queue consumer", "error", err)
		os.Exit(1)
	}

	logger.Info("Worker ready, waiting for frames",
		"regions", catalog.Len(),
		"timeoutMs", cfg.ProcessingTimeout)

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	sig := <-sigChan
	logger.Info("Received signal, initiating graceful shutdown", "signal", sig)

	shutdownCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ProcessingTimeout)*time.Millisecond+5*time.Second)
	defer cancel()

	if err := queueConsumer.stop(shutdownCtx); err != nil {
		logger.Error("Error stopping queue consumer", "error", err)
	}

	logger.Info("Shutdown complete")
}

// newRecognizer prefers the remote vision service when it is configured and
// reachable, and falls back to local Tesseract otherwise.
func newRecognizer(ctx context.Context, cfg *config.Config, logger *logging.Logger) processor.Recognizer {
	if cfg.VisionOCRURL != "" {
		vision := clients.NewVisionClient(cfg.VisionOCRURL, logging.NewLogger("VisionClient"))

		checkCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		err := vision.HealthCheck(checkCtx)
		if err == nil {
			logger.Info("Using remote vision OCR", "url", cfg.VisionOCRURL)
			return vision
		}
		logger.Warn("Vision OCR unavailable, falling back to Tesseract", "url", cfg.VisionOCRURL, "error", err)
	}

	logger.Info("Using Tesseract OCR", "language", cfg.TesseractLanguage)
	return processor.NewTesseractOCR(&processor.TesseractConfig{
		Language:    cfg.TesseractLanguage,
		TessdataDir: cfg.TessdataPrefix,
	})
}

func newConsumer(cfg *config.Config, proc processor.FrameProcessorInterface) (consumer, error) {
	if cfg.QueueBackend == "asynq" {
		c, err := queue.NewConsumer(&queue.ConsumerConfig{
			RedisURL:          cfg.RedisURL,
			QueueName:         cfg.QueueName,
			Concurrency:       cfg.WorkerConcurrency,
			Processor:         proc,
			ProcessingTimeout: int64(cfg.ProcessingTimeout),
		})
		if err != nil {
			return nil, err
		}
		return asynqBackend{c}, nil
	}

	c, err := queue.NewRedisConsumer(&queue.RedisConsumerConfig{
		RedisURL:          cfg.RedisURL,
		QueueName:         cfg.QueueName,
		Concurrency:       cfg.WorkerConcurrency,
		Processor:         proc,
		ProcessingTimeout: int64(cfg.ProcessingTimeout),
	})
	if err != nil {
		return nil, err
	}
	return redisBackend{c}, nil
}
