/**
 * Queue Consumer for the OCR Text Service
 *
 * Consumes asynchronous extraction tasks from Redis via Asynq and runs
 * them through the same processor as the synchronous endpoint.
 */

package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/ocr-text-service/internal/errors"
	"github.com/adverant/nexus/ocr-text-service/internal/logging"
	"github.com/adverant/nexus/ocr-text-service/internal/processor"
	"github.com/adverant/nexus/ocr-text-service/internal/storage"
	"github.com/hibiken/asynq"
)

// Consumer handles job consumption from Redis queue
type Consumer struct {
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.ExtractorInterface
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL    string
	QueueName   string
	Concurrency int
	Processor   processor.ExtractorInterface
}

// NewConsumer creates a new queue consumer
func NewConsumer(cfg *ConsumerConfig) (*Consumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		return nil, fmt.Errorf("QueueName is required")
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	// Parse Redis connection options
	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := logging.NewLogger("QueueConsumer")

	// Create Asynq server for task processing
	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10, // Priority 10 for main queue
				"default":     1,  // Priority 1 for fallback
			},
			// Exponential backoff: 5s, 10s, 20s, capped at 60s
			RetryDelayFunc: func(n int, err error, task *asynq.Task) time.Duration {
				delay := time.Duration(5*(1<<uint(n))) * time.Second
				if delay > 60*time.Second {
					delay = 60 * time.Second
				}
				return delay
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				retried, _ := asynq.GetRetryCount(ctx)
				maxRetry, _ := asynq.GetMaxRetry(ctx)
				logger.Error("Task processing error",
					"type", task.Type(), "retry", retried, "maxRetry", maxRetry, "error", err)
			}),
			Logger: logging.NewLogger("asynq").Entry(),
		},
	)

	// Create multiplexer for task routing
	mux := asynq.NewServeMux()

	consumer := &Consumer{
		server:    server,
		mux:       mux,
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
	}

	// Register task handler
	mux.HandleFunc(TypeExtractText, consumer.handleExtractText)

	return consumer, nil
}

// Start starts the queue consumer without blocking
func (c *Consumer) Start() error {
	c.logger.Info("Starting queue consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start queue consumer: %w", err)
	}
	return nil
}

// Stop waits for active tasks and stops the consumer
func (c *Consumer) Stop() {
	c.logger.Info("Stopping queue consumer")
	c.server.Shutdown()
	c.logger.Info("Queue consumer stopped")
}

// handleExtractText processes one queued extraction
func (c *Consumer) handleExtractText(ctx context.Context, task *asynq.Task) error {
	startTime := time.Now()

	// Parse job data
	var payload ExtractionPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// A malformed payload never becomes valid on retry
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}

	logger := c.logger.With("jobId", payload.JobID, "filename", payload.Filename)
	logger.Info("Processing queued extraction",
		"size", len(payload.FileBuffer), "queuedFor", time.Since(payload.SubmittedAt))

	// Update job status to processing
	if err := c.processor.UpdateJobStatus(ctx, payload.JobID, storage.StatusProcessing, map[string]interface{}{
		"filename": payload.Filename,
	}); err != nil {
		logger.Warn("Failed to update status to processing", "error", err)
	}

	result, err := c.processor.Extract(ctx, &processor.ExtractRequest{
		JobID:    payload.JobID,
		Filename: payload.Filename,
		Data:     payload.FileBuffer,
	})

	duration := time.Since(startTime)

	if err != nil {
		logger.Error("Queued extraction failed", "duration", duration, "error", err)

		if errors.HasCode(err, errors.ErrorUnsupportedFormat) {
			return fmt.Errorf("text extraction failed: %v: %w", err, asynq.SkipRetry)
		}
		return fmt.Errorf("text extraction failed: %w", err)
	}

	logger.Info("Queued extraction completed",
		"duration", duration,
		"pages", result.PageCount,
		"words", result.WordCount,
		"cached", result.Cached)

	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}
