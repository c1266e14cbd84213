package errors

import (
	"fmt"
	"time"
)

/**
 * Custom error types for the StreamABLE frame worker
 *
 * Frame-level and job-level failures carry an ErrorCode so they can be
 * stored and published alongside job results. Per-region OCR failures are
 * recovered by the analyzer and never surface as job failures.
 */

// ErrorCode enum for structured error handling
type ErrorCode string

const (
	// Processing errors
	ErrorProcessingTimeout ErrorCode = "PROCESSING_TIMEOUT"
	ErrorOCRFailed         ErrorCode = "OCR_FAILED"
	ErrorRegionOutOfBounds ErrorCode = "REGION_OUT_OF_BOUNDS"
	ErrorFrameDecodeFailed ErrorCode = "FRAME_DECODE_FAILED"

	// Storage errors
	ErrorStorageFailed ErrorCode = "STORAGE_FAILED"

	// Network errors
	ErrorFrameFetchFailed ErrorCode = "FRAME_FETCH_FAILED"
	ErrorAPICallFailed    ErrorCode = "API_CALL_FAILED"

	// Queue errors
	ErrorInvalidPayload ErrorCode = "INVALID_PAYLOAD"
)

// ProcessingError represents a structured processing error
type ProcessingError struct {
	Code      ErrorCode
	Message   string
	JobID     string
	Timestamp time.Time
	Details   map[string]interface{}
	Cause     error
}

func (e *ProcessingError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s (caused by: %v)", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *ProcessingError) Unwrap() error {
	return e.Cause
}

// Factory functions for common errors

func NewProcessingTimeoutError(jobID string, duration time.Duration, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorProcessingTimeout,
		Message:   fmt.Sprintf("Processing timed out after %v", duration),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"timeout_duration": duration.String(),
		},
		Cause: cause,
	}
}

func NewOCRFailedError(jobID string, region string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorOCRFailed,
		Message:   fmt.Sprintf("OCR failed for region: %s", region),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"region": region,
		},
		Cause: cause,
	}
}

func NewRegionOutOfBoundsError(jobID string, region string, width, height int) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorRegionOutOfBounds,
		Message:   fmt.Sprintf("Region %s does not fit a %dx%d frame", region, width, height),
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"region":       region,
			"frame_width":  width,
			"frame_height": height,
		},
	}
}

func NewFrameDecodeError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorFrameDecodeFailed,
		Message:   "Failed to decode frame image",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

func NewFrameFetchError(jobID string, url string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorFrameFetchFailed,
		Message:   "Failed to fetch frame",
		JobID:     jobID,
		Timestamp: time.Now(),
		Details: map[string]interface{}{
			"frame_url": url,
		},
		Cause: cause,
	}
}

func NewStorageFailedError(jobID string, cause error) *ProcessingError {
	return &ProcessingError{
		Code:      ErrorStorageFailed,
		Message:   "Failed to store analysis results",
		JobID:     jobID,
		Timestamp: time.Now(),
		Cause:     cause,
	}
}

// ToMap converts error to map for database storage
func (e *ProcessingError) ToMap() map[string]interface{} {
	result := map[string]interface{}{
		"error_code": string(e.Code),
		"message":    e.Message,
		"timestamp":  e.Timestamp,
	}

	for k, v := range e.Details {
		result[k] = v
	}

	if e.Cause != nil {
		result["cause"] = e.Cause.Error()
	}

	return result
}
