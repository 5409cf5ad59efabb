package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/adverant/nexus/ocr-text-service/internal/logging"
	"github.com/adverant/nexus/ocr-text-service/internal/storage"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
)

// TypeExtractText is the asynq task type for queued extractions
const TypeExtractText = "ocr:extract-text"

// ExtractionPayload is the task body; FileBuffer travels base64 encoded
type ExtractionPayload struct {
	JobID       string    `json:"jobId"`
	Filename    string    `json:"filename"`
	FileBuffer  []byte    `json:"fileBuffer"`
	SubmittedAt time.Time `json:"submittedAt"`
}

// taskClient is the subset of *asynq.Client the enqueuer uses
type taskClient interface {
	EnqueueContext(ctx context.Context, task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
	Close() error
}

// statusRecorder records the initial job status
type statusRecorder interface {
	UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error
}

// Enqueuer submits extraction tasks
type Enqueuer struct {
	client   taskClient
	queue    string
	timeout  time.Duration
	recorder statusRecorder
	logger   *logging.Logger
}

// EnqueuerConfig holds enqueuer configuration
type EnqueuerConfig struct {
	RedisURL  string
	QueueName string
	Timeout   time.Duration // per-task processing deadline
	Recorder  statusRecorder
}

// NewEnqueuer creates an enqueuer backed by Redis
func NewEnqueuer(cfg *EnqueuerConfig) (*Enqueuer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	return newEnqueuer(asynq.NewClient(redisOpt), cfg), nil
}

func newEnqueuer(client taskClient, cfg *EnqueuerConfig) *Enqueuer {
	queue := cfg.QueueName
	if queue == "" {
		queue = "default"
	}
	return &Enqueuer{
		client:   client,
		queue:    queue,
		timeout:  cfg.Timeout,
		recorder: cfg.Recorder,
		logger:   logging.NewLogger("QueueEnqueuer"),
	}
}

// EnqueueExtraction queues a file and returns its job ID
func (e *Enqueuer) EnqueueExtraction(ctx context.Context, payload *ExtractionPayload) (string, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	if payload.SubmittedAt.IsZero() {
		payload.SubmittedAt = time.Now().UTC()
	}

	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(e.queue),
		asynq.TaskID(payload.JobID),
		asynq.MaxRetry(3),
		asynq.Retention(24 * time.Hour),
	}
	if e.timeout > 0 {
		opts = append(opts, asynq.Timeout(e.timeout))
	}

	// Recorded first: a worker may pick the task up before EnqueueContext returns
	if e.recorder != nil {
		if err := e.recorder.UpdateJobStatus(ctx, payload.JobID, storage.StatusQueued, map[string]interface{}{
			"filename": payload.Filename,
		}); err != nil {
			e.logger.Warn("Failed to record queued job", "jobId", payload.JobID, "error", err)
		}
	}

	info, err := e.client.EnqueueContext(ctx, asynq.NewTask(TypeExtractText, data), opts...)
	if err != nil {
		return "", fmt.Errorf("failed to enqueue extraction: %w", err)
	}

	e.logger.Info("Extraction queued",
		"jobId", payload.JobID, "filename", payload.Filename, "queue", info.Queue, "size", len(payload.FileBuffer))

	return payload.JobID, nil
}

// Close closes the Redis connection
func (e *Enqueuer) Close() error {
	return e.client.Close()
}
