package queue

import (
	"errors"
	"time"

	procerrors "github.com/hoovercj/streamABLE/internal/errors"
	"github.com/hoovercj/streamABLE/internal/processor"
)

const (
	// DefaultQueueName is the Redis list the extension pushes frame jobs onto
	DefaultQueueName = "streamable:frames"

	// TaskAnalyzeFrame is the asynq task type for frame jobs
	TaskAnalyzeFrame = "analyze-frame"

	defaultProcessingTimeout = 30 * time.Second

	// statusTimeout bounds each status write after a job leaves the queue
	statusTimeout = 5 * time.Second
)

func processingTimeout(ms int64) time.Duration {
	if ms <= 0 {
		return defaultProcessingTimeout
	}
	return time.Duration(ms) * time.Millisecond
}

// failureMetadata builds the job-status metadata for a failed job.
// Structured errors contribute their code and details.
func failureMetadata(err error, attempts int) map[string]interface{} {
	metadata := map[string]interface{}{
		"error": err.Error(),
	}
	var perr *procerrors.ProcessingError
	if errors.As(err, &perr) {
		for k, v := range perr.ToMap() {
			metadata[k] = v
		}
		// ToMap's message is the short form; keep the full chain
		metadata["error"] = err.Error()
	}
	if attempts > 0 {
		metadata["attempts"] = attempts
	}
	return metadata
}

// rejectionMetadata is the failure metadata of a job whose payload never
// passed validation
func rejectionMetadata(err error) map[string]interface{} {
	return map[string]interface{}{
		"error":      err.Error(),
		"error_code": string(procerrors.ErrorInvalidPayload),
	}
}

func completionMetadata(result interface{}) map[string]interface{} {
	r, ok := result.(*processor.ProcessResult)
	if !ok || r == nil {
		return nil
	}
	return map[string]interface{}{
		"processingTime": r.ProcessingTimeMs,
		"analysisId":     r.AnalysisID,
		"failedRegions":  r.FailedRegions,
	}
}
