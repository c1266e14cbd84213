/**
 * Asynq Queue Consumer for the StreamABLE frame worker
 *
 * Alternative to the list consumer for producers that speak the asynq
 * task protocol. Frame jobs arrive as "analyze-frame" tasks.
 */

package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	procerrors "github.com/hoovercj/streamABLE/internal/errors"
	"github.com/hoovercj/streamABLE/internal/logging"
	"github.com/hoovercj/streamABLE/internal/processor"
)

// Consumer handles job consumption through asynq
type Consumer struct {
	client    *asynq.Client
	server    *asynq.Server
	mux       *asynq.ServeMux
	processor processor.FrameProcessorInterface
	config    *ConsumerConfig
	logger    *logging.Logger
}

// ConsumerConfig holds consumer configuration
type ConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.FrameProcessorInterface
	ProcessingTimeout int64 // milliseconds, default 30000
	Logger            *logging.Logger
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

	redisOpt, err := asynq.ParseRedisURI(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("AsynqConsumer")
	}

	server := asynq.NewServer(
		redisOpt,
		asynq.Config{
			Concurrency: cfg.Concurrency,
			Queues: map[string]int{
				cfg.QueueName: 10,
				"default":     1,
			},
			RetryDelayFunc: retryDelay,
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Error("Task processing error", "type", task.Type(), "error", err)
			}),
		},
	)

	consumer := &Consumer{
		client:    asynq.NewClient(redisOpt),
		server:    server,
		mux:       asynq.NewServeMux(),
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
	}

	consumer.mux.HandleFunc(TaskAnalyzeFrame, consumer.handleAnalyzeFrame)

	return consumer, nil
}

// retryDelay backs off exponentially: 2s, 4s, 8s, capped at 30s.
// Frames go stale quickly so the cap stays short.
func retryDelay(n int, err error, task *asynq.Task) time.Duration {
	delay := time.Duration(2*(1<<uint(n))) * time.Second
	if delay > 30*time.Second || delay <= 0 {
		delay = 30 * time.Second
	}
	return delay
}

// Start starts the queue consumer
func (c *Consumer) Start(ctx context.Context) error {
	c.logger.Info("Starting asynq consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	if err := c.server.Start(c.mux); err != nil {
		return fmt.Errorf("failed to start asynq server: %w", err)
	}
	return nil
}

// Stop stops the queue consumer gracefully
func (c *Consumer) Stop(ctx context.Context) error {
	c.logger.Info("Stopping asynq consumer")
	c.server.Shutdown()

	if err := c.client.Close(); err != nil {
		return fmt.Errorf("failed to close client: %w", err)
	}
	return nil
}

// Enqueue submits a frame job as an analyze-frame task. A missing JobID is
// filled with a new UUID.
func (c *Consumer) Enqueue(ctx context.Context, payload *JobPayload) (string, error) {
	return Enqueue(ctx, c.client, c.config.QueueName, payload)
}

// Enqueue submits a frame job through any asynq client
func Enqueue(ctx context.Context, client *asynq.Client, queueName string, payload *JobPayload) (string, error) {
	task, err := NewAnalyzeFrameTask(payload)
	if err != nil {
		return "", err
	}
	if _, err := client.EnqueueContext(ctx, task, asynq.Queue(queueName), asynq.TaskID(payload.JobID)); err != nil {
		return "", fmt.Errorf("failed to enqueue frame job: %w", err)
	}
	return payload.JobID, nil
}

// NewAnalyzeFrameTask builds the asynq task for a frame job
func NewAnalyzeFrameTask(payload *JobPayload) (*asynq.Task, error) {
	if payload.JobID == "" {
		payload.JobID = uuid.New().String()
	}
	if len(payload.FrameBuffer) == 0 && payload.FrameURL == "" {
		return nil, fmt.Errorf("job %s has no frame buffer or URL", payload.JobID)
	}
	data, err := json.Marshal(payload)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal frame job: %w", err)
	}
	return asynq.NewTask(TaskAnalyzeFrame, data, asynq.MaxRetry(3)), nil
}

// handleAnalyzeFrame processes one analyze-frame task
func (c *Consumer) handleAnalyzeFrame(ctx context.Context, task *asynq.Task) error {
	if err := ValidatePayload(task.Payload()); err != nil {
		c.reject(ctx, task, err)
		return fmt.Errorf("rejected analyze-frame task: %v: %w", err, asynq.SkipRetry)
	}

	var payload JobPayload
	if err := json.Unmarshal(task.Payload(), &payload); err != nil {
		// Malformed payloads never succeed on retry
		c.reject(ctx, task, err)
		return fmt.Errorf("failed to unmarshal job data: %v: %w", err, asynq.SkipRetry)
	}

	return c.runJob(ctx, &payload)
}

// reject records a task whose payload failed validation as failed. The job
// ID comes from the payload when it has one, else from the asynq task ID.
func (c *Consumer) reject(ctx context.Context, task *asynq.Task, cause error) {
	var ident struct {
		JobID string `json:"jobId"`
	}
	_ = json.Unmarshal(task.Payload(), &ident)
	jobID := ident.JobID
	if jobID == "" {
		jobID, _ = asynq.GetTaskID(ctx)
	}
	if jobID == "" {
		c.logger.Warn("Rejected task has no job ID", "error", cause)
		return
	}

	c.logger.Warn("Rejected frame job", "job", jobID, "error", cause)
	if err := c.processor.UpdateJobStatus(ctx, jobID, "failed", rejectionMetadata(cause)); err != nil {
		c.logger.Warn("Failed to update status to failed", "job", jobID, "error", err)
	}
}

func (c *Consumer) runJob(ctx context.Context, payload *JobPayload) error {
	start := time.Now()
	c.logger.Info("Processing frame job", "job", payload.JobID, "stream", payload.StreamID)

	if err := c.processor.UpdateJobStatus(ctx, payload.JobID, "processing", nil); err != nil {
		c.logger.Warn("Failed to update status to processing", "job", payload.JobID, "error", err)
	}

	timeout := processingTimeout(c.config.ProcessingTimeout)
	processCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	result, err := c.processor.ProcessFrame(processCtx, payload.toRequest())
	duration := time.Since(start)

	if err != nil {
		if errors.Is(processCtx.Err(), context.DeadlineExceeded) {
			err = procerrors.NewProcessingTimeoutError(payload.JobID, timeout, err)
		}
		c.logger.Error("Frame job failed", "job", payload.JobID, "duration", duration, "error", err)

		metadata := failureMetadata(err, 0)
		metadata["processingTime"] = duration.Milliseconds()
		if updateErr := c.processor.UpdateJobStatus(ctx, payload.JobID, "failed", metadata); updateErr != nil {
			c.logger.Warn("Failed to update status to failed", "job", payload.JobID, "error", updateErr)
		}

		return fmt.Errorf("frame analysis failed: %w", err)
	}

	c.logger.Info("Frame job completed",
		"job", payload.JobID, "duration", duration, "failedRegions", result.FailedRegions)

	if err := c.processor.UpdateJobStatus(ctx, payload.JobID, "completed", completionMetadata(result)); err != nil {
		c.logger.Warn("Failed to update status to completed", "job", payload.JobID, "error", err)
	}

	return nil
}

// GetStatistics returns consumer statistics
func (c *Consumer) GetStatistics() map[string]interface{} {
	return map[string]interface{}{
		"concurrency": c.config.Concurrency,
		"queue":       c.config.QueueName,
	}
}
