/**
 * Direct Redis Queue Consumer for the StreamABLE frame worker
 *
 * Compatible with the extension's RedisQueue producer.
 * Uses plain Redis LIST operations: job IDs are pushed onto the queue list,
 * job bodies live in the {queue}:data hash.
 */

package queue

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	procerrors "github.com/hoovercj/streamABLE/internal/errors"
	"github.com/hoovercj/streamABLE/internal/logging"
	"github.com/hoovercj/streamABLE/internal/processor"
)

var errNoJobs = errors.New("no jobs available")

// RedisJobData represents a job from the Redis queue
type RedisJobData struct {
	ID         string     `json:"id"`
	Type       string     `json:"type"`
	Payload    JobPayload `json:"payload"`
	CreatedAt  time.Time  `json:"createdAt"`
	Attempts   int        `json:"attempts"`
	MaxRetries int        `json:"maxRetries"`
}

// JobPayload contains the actual job data
type JobPayload struct {
	JobID       string                 `json:"jobId"`
	StreamID    string                 `json:"streamId"`
	FrameURL    string                 `json:"frameUrl,omitempty"`
	FrameBuffer []byte                 `json:"-"` // set by UnmarshalJSON
	CapturedAt  time.Time              `json:"capturedAt,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts frameBuffer either as a base64 string or as a
// serialized Node.js Buffer ({"type":"Buffer","data":[...]}).
func (p *JobPayload) UnmarshalJSON(data []byte) error {
	type Alias JobPayload
	aux := &struct {
		FrameBuffer interface{} `json:"frameBuffer,omitempty"`
		*Alias
	}{
		Alias: (*Alias)(p),
	}

	if err := json.Unmarshal(data, &aux); err != nil {
		return fmt.Errorf("failed to unmarshal JobPayload: %w", err)
	}

	if aux.FrameBuffer == nil {
		return nil
	}

	switch v := aux.FrameBuffer.(type) {
	case string:
		decoded, err := base64.StdEncoding.DecodeString(v)
		if err != nil {
			return fmt.Errorf("failed to decode base64 frameBuffer: %w", err)
		}
		p.FrameBuffer = decoded

	case map[string]interface{}:
		if bufferType, ok := v["type"].(string); !ok || bufferType != "Buffer" {
			return fmt.Errorf("invalid Buffer object format (missing or incorrect 'type' field)")
		}
		dataArray, ok := v["data"].([]interface{})
		if !ok {
			return fmt.Errorf("Buffer object missing 'data' array")
		}
		p.FrameBuffer = make([]byte, len(dataArray))
		for i, val := range dataArray {
			byteVal, ok := val.(float64)
			if !ok || byteVal < 0 || byteVal > 255 {
				return fmt.Errorf("invalid byte value in Buffer data array at index %d", i)
			}
			p.FrameBuffer[i] = byte(byteVal)
		}

	default:
		return fmt.Errorf("frameBuffer must be either base64 string or Buffer object, got %T", v)
	}

	return nil
}

// MarshalJSON writes frameBuffer back as base64 so re-queued jobs round-trip
func (p JobPayload) MarshalJSON() ([]byte, error) {
	type Alias JobPayload
	aux := struct {
		FrameBuffer string `json:"frameBuffer,omitempty"`
		Alias
	}{
		Alias: Alias(p),
	}
	if len(p.FrameBuffer) > 0 {
		aux.FrameBuffer = base64.StdEncoding.EncodeToString(p.FrameBuffer)
	}
	return json.Marshal(aux)
}

// toRequest converts the payload into a processor request
func (p *JobPayload) toRequest() *processor.ProcessRequest {
	return &processor.ProcessRequest{
		JobID:       p.JobID,
		StreamID:    p.StreamID,
		FrameURL:    p.FrameURL,
		FrameBuffer: p.FrameBuffer,
		CapturedAt:  p.CapturedAt,
		Metadata:    p.Metadata,
	}
}

// RedisConsumer handles job consumption from Redis queue
type RedisConsumer struct {
	client    *redis.Client
	processor processor.FrameProcessorInterface
	config    *RedisConsumerConfig
	logger    *logging.Logger
	ctx       context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup
}

// RedisConsumerConfig holds consumer configuration
type RedisConsumerConfig struct {
	RedisURL          string
	QueueName         string
	Concurrency       int
	Processor         processor.FrameProcessorInterface
	ProcessingTimeout int64 // milliseconds, default 30000
	Logger            *logging.Logger
}

// NewRedisConsumer creates a new Redis-based queue consumer
func NewRedisConsumer(cfg *RedisConsumerConfig) (*RedisConsumer, error) {
	if cfg.RedisURL == "" {
		return nil, fmt.Errorf("RedisURL is required")
	}

	if cfg.QueueName == "" {
		cfg.QueueName = DefaultQueueName
	}

	if cfg.Processor == nil {
		return nil, fmt.Errorf("Processor is required")
	}

	if cfg.Concurrency <= 0 {
		cfg.Concurrency = 4
	}

	opt, err := redis.ParseURL(cfg.RedisURL)
	if err != nil {
		return nil, fmt.Errorf("failed to parse Redis URL: %w", err)
	}

	client := redis.NewClient(opt)

	pingCtx, pingCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer pingCancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("RedisConsumer")
	}

	consumerCtx, cancel := context.WithCancel(context.Background())

	return &RedisConsumer{
		client:    client,
		processor: cfg.Processor,
		config:    cfg,
		logger:    logger,
		ctx:       consumerCtx,
		cancel:    cancel,
	}, nil
}

// Start begins processing jobs from the queue
func (c *RedisConsumer) Start() error {
	c.logger.Info("Starting Redis queue consumer",
		"concurrency", c.config.Concurrency, "queue", c.config.QueueName)

	for i := 0; i < c.config.Concurrency; i++ {
		c.wg.Add(1)
		go c.worker(i)
	}

	return nil
}

// Stop gracefully stops the consumer
func (c *RedisConsumer) Stop() error {
	c.logger.Info("Stopping queue consumer")
	c.cancel()
	c.wg.Wait()
	return c.client.Close()
}

func (c *RedisConsumer) worker(id int) {
	defer c.wg.Done()
	c.logger.Debug("Worker started", "worker", id)

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Debug("Worker stopping", "worker", id)
			return
		default:
			if err := c.processNextJob(); err != nil {
				if errors.Is(err, errNoJobs) || c.ctx.Err() != nil {
					continue
				}
				c.logger.Error("Worker error", "worker", id, "error", err)
				select {
				case <-time.After(time.Second):
				case <-c.ctx.Done():
				}
			}
		}
	}
}

func (c *RedisConsumer) key(suffix string) string {
	return fmt.Sprintf("%s:%s", c.config.QueueName, suffix)
}

// processNextJob fetches and processes the next job from the queue.
// Only the BRPOP observes the consumer context: once a job has been popped
// it runs to a final state even while Stop drains the workers.
func (c *RedisConsumer) processNextJob() error {
	result, err := c.client.BRPop(c.ctx, 5*time.Second, c.config.QueueName).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return errNoJobs
		}
		return fmt.Errorf("failed to fetch job: %w", err)
	}

	if len(result) < 2 {
		return fmt.Errorf("invalid job result")
	}

	id := result[1]

	ctx, cancel := c.jobContext(statusTimeout)
	jobData, err := c.client.HGet(ctx, c.key("data"), id).Result()
	cancel()
	if err != nil {
		return fmt.Errorf("failed to get job data: %w", err)
	}

	if err := ValidateQueuedJob([]byte(jobData)); err != nil {
		c.updateJobStatus(id, "failed", rejectionMetadata(err))
		return fmt.Errorf("rejected job %s: %w", id, err)
	}

	var job RedisJobData
	if err := json.Unmarshal([]byte(jobData), &job); err != nil {
		c.updateJobStatus(id, "failed", rejectionMetadata(err))
		return fmt.Errorf("failed to unmarshal job %s: %w", id, err)
	}
	if job.Payload.JobID == "" {
		job.Payload.JobID = id
	}

	c.updateJobStatus(job.Payload.JobID, "processing", nil)

	processResult, err := c.processJob(&job)
	if err != nil {
		c.logger.Error("Job failed", "job", job.Payload.JobID, "error", err)

		job.Attempts++
		if job.Attempts < job.MaxRetries {
			return c.requeue(&job)
		}

		c.updateJobStatus(job.Payload.JobID, "failed", failureMetadata(err, job.Attempts))
		return nil
	}

	c.updateJobStatus(job.Payload.JobID, "completed", processResult)
	return nil
}

// jobContext is detached from Stop's cancellation
func (c *RedisConsumer) jobContext(timeout time.Duration) (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.WithoutCancel(c.ctx), timeout)
}

// requeue stores the bumped attempt count and pushes the job back
func (c *RedisConsumer) requeue(job *RedisJobData) error {
	updatedData, err := json.Marshal(job)
	if err != nil {
		return fmt.Errorf("failed to marshal job for retry: %w", err)
	}

	ctx, cancel := c.jobContext(statusTimeout)
	defer cancel()

	pipe := c.client.TxPipeline()
	pipe.HSet(ctx, c.key("data"), job.ID, updatedData)
	pipe.SRem(ctx, c.key("processing"), job.Payload.JobID)
	pipe.LPush(ctx, c.config.QueueName, job.ID)
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to re-queue job: %w", err)
	}

	c.logger.Info("Job re-queued for retry",
		"job", job.Payload.JobID, "attempt", job.Attempts, "maxRetries", job.MaxRetries)
	return nil
}

// processJob runs the frame analysis under the processing timeout
func (c *RedisConsumer) processJob(job *RedisJobData) (*processor.ProcessResult, error) {
	timeout := processingTimeout(c.config.ProcessingTimeout)
	ctx, cancel := c.jobContext(timeout)
	defer cancel()

	start := time.Now()
	result, err := c.processor.ProcessFrame(ctx, job.Payload.toRequest())
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			c.logger.Warn("Processing timed out",
				"job", job.Payload.JobID, "elapsed", time.Since(start), "timeout", timeout)
			return nil, procerrors.NewProcessingTimeoutError(job.Payload.JobID, timeout, err)
		}
		return nil, err
	}

	return result, nil
}

func (c *RedisConsumer) markFailed(ctx context.Context, id string, metadata map[string]interface{}) {
	c.client.SAdd(ctx, c.key("failed"), id)
	errorData, _ := json.Marshal(metadata)
	c.client.HSet(ctx, c.key("errors"), id, errorData)
}

// updateJobStatus updates the status of a job in Redis and in the analysis store
func (c *RedisConsumer) updateJobStatus(jobID string, status string, result interface{}) {
	ctx, cancel := c.jobContext(statusTimeout)
	defer cancel()

	switch status {
	case "processing":
		c.client.SAdd(ctx, c.key("processing"), jobID)
		if err := c.processor.UpdateJobStatus(ctx, jobID, status, nil); err != nil {
			c.logger.Warn("Failed to record processing status", "job", jobID, "error", err)
		}

	case "completed":
		c.client.SRem(ctx, c.key("processing"), jobID)
		c.client.SAdd(ctx, c.key("completed"), jobID)
		if result != nil {
			resultData, _ := json.Marshal(result)
			c.client.HSet(ctx, c.key("results"), jobID, resultData)
		}
		if err := c.processor.UpdateJobStatus(ctx, jobID, status, completionMetadata(result)); err != nil {
			c.logger.Warn("Failed to record completed status", "job", jobID, "error", err)
		}

	case "failed":
		c.client.SRem(ctx, c.key("processing"), jobID)
		metadata, _ := result.(map[string]interface{})
		c.markFailed(ctx, jobID, metadata)
		if err := c.processor.UpdateJobStatus(ctx, jobID, status, metadata); err != nil {
			c.logger.Warn("Failed to record failed status", "job", jobID, "error", err)
		}
	}

	// Published for the extension's live overlay
	event := map[string]interface{}{
		"event":     fmt.Sprintf("job:%s", status),
		"jobId":     jobID,
		"timestamp": time.Now().Format(time.RFC3339),
	}
	if r, ok := result.(*processor.ProcessResult); ok {
		event["results"] = r.Results
	}
	if metadata, ok := result.(map[string]interface{}); ok && status == "failed" {
		event["error"] = metadata["error"]
		event["errorCode"] = metadata["error_code"]
	}
	eventData, _ := json.Marshal(event)
	c.client.Publish(ctx, c.key("events"), eventData)
}

// GetStats returns queue statistics
func (c *RedisConsumer) GetStats(ctx context.Context) (map[string]int64, error) {
	pipe := c.client.Pipeline()
	waiting := pipe.LLen(ctx, c.config.QueueName)
	processing := pipe.SCard(ctx, c.key("processing"))
	completed := pipe.SCard(ctx, c.key("completed"))
	failed := pipe.SCard(ctx, c.key("failed"))
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("failed to read queue stats: %w", err)
	}

	return map[string]int64{
		"waiting":    waiting.Val(),
		"processing": processing.Val(),
		"completed":  completed.Val(),
		"failed":     failed.Val(),
	}, nil
}
