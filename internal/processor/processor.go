/**
 * Frame Processor for the StreamABLE frame worker
 *
 * Orchestrates one analysis job:
 * - Load the frame (inline buffer or snapshot URL)
 * - Analyze every catalog region (crop, OCR with whitelist, normalize)
 * - Persist the ordered region results
 */

package processor

import (
	"context"
	"fmt"
	"time"

	"github.com/hoovercj/streamABLE/internal/errors"
	"github.com/hoovercj/streamABLE/internal/logging"
	"github.com/hoovercj/streamABLE/internal/storage"
)

// FrameProcessorInterface defines the interface for frame processing
type FrameProcessorInterface interface {
	ProcessFrame(ctx context.Context, req *ProcessRequest) (*ProcessResult, error)
	UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error
}

// FrameFetcher downloads frames referenced by URL
type FrameFetcher interface {
	FetchFrame(ctx context.Context, jobID string, url string) ([]byte, error)
}

// AnalysisStore persists analyses and job status
type AnalysisStore interface {
	SaveAnalysis(ctx context.Context, input *storage.AnalysisInput) (string, error)
	UpdateJobStatus(ctx context.Context, update *storage.JobUpdate) error
}

// ProcessorConfig holds processor configuration
type ProcessorConfig struct {
	Analyzer *FrameAnalyzer
	Fetcher  FrameFetcher  // optional, required only for FrameURL jobs
	Store    AnalysisStore // optional, results are not persisted without it
	Logger   *logging.Logger
}

// ProcessRequest represents a frame analysis request
type ProcessRequest struct {
	JobID       string
	StreamID    string
	FrameURL    string
	FrameBuffer []byte
	CapturedAt  time.Time
	Metadata    map[string]interface{}
}

// ProcessResult represents the processing result
type ProcessResult struct {
	AnalysisID       string         `json:"analysisId,omitempty"`
	Catalog          string         `json:"catalog"`
	Results          []RegionResult `json:"results"`
	FailedRegions    int            `json:"failedRegions"`
	ProcessingTimeMs int64          `json:"processingTimeMs"`
}

// FrameProcessor handles frame processing
type FrameProcessor struct {
	analyzer *FrameAnalyzer
	fetcher  FrameFetcher
	store    AnalysisStore
	logger   *logging.Logger
}

// NewFrameProcessor creates a new frame processor
func NewFrameProcessor(cfg *ProcessorConfig) (*FrameProcessor, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}

	if cfg.Analyzer == nil {
		return nil, fmt.Errorf("frame analyzer is required")
	}

	logger := cfg.Logger
	if logger == nil {
		logger = logging.NewLogger("FrameProcessor")
	}

	if cfg.Store == nil {
		logger.Warn("No analysis store configured. Results will not be persisted.")
	}

	return &FrameProcessor{
		analyzer: cfg.Analyzer,
		fetcher:  cfg.Fetcher,
		store:    cfg.Store,
		logger:   logger,
	}, nil
}

// ProcessFrame runs the analysis pipeline for one frame
func (p *FrameProcessor) ProcessFrame(ctx context.Context, req *ProcessRequest) (*ProcessResult, error) {
	start := time.Now()
	p.logger.Info("Starting frame analysis", "job", req.JobID, "stream", req.StreamID)

	frameData, err := p.loadFrame(ctx, req)
	if err != nil {
		return nil, err
	}

	analysis, err := p.analyzer.AnalyzeFrame(ctx, req.JobID, frameData)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{
		Catalog:       analysis.Catalog,
		Results:       analysis.Results,
		FailedRegions: analysis.FailedRegions,
	}

	if p.store != nil {
		texts := make([]storage.RegionText, len(analysis.Results))
		for i, r := range analysis.Results {
			texts[i] = storage.RegionText{Name: r.Name, Text: r.Text}
		}

		analysisID, err := p.store.SaveAnalysis(ctx, &storage.AnalysisInput{
			JobID:         req.JobID,
			StreamID:      req.StreamID,
			Catalog:       analysis.Catalog,
			Results:       texts,
			FailedRegions: analysis.FailedRegions,
			Duration:      analysis.Duration,
			CapturedAt:    req.CapturedAt,
		})
		if err != nil {
			return nil, errors.NewStorageFailedError(req.JobID, err)
		}
		result.AnalysisID = analysisID
	}

	result.ProcessingTimeMs = time.Since(start).Milliseconds()

	for _, r := range result.Results {
		p.logger.Info("Region result", "job", req.JobID, "region", r.Name, "text", r.Text)
	}
	p.logger.Info("Frame analysis complete",
		"job", req.JobID,
		"analysisId", result.AnalysisID,
		"failedRegions", result.FailedRegions,
		"processingTimeMs", result.ProcessingTimeMs)

	return result, nil
}

// UpdateJobStatus updates job status in the analysis store
func (p *FrameProcessor) UpdateJobStatus(ctx context.Context, jobID string, status string, metadata map[string]interface{}) error {
	if p.store == nil {
		return nil
	}

	update := &storage.JobUpdate{
		JobID:  jobID,
		Status: status,
	}

	// Extract specific fields from metadata if present
	if metadata != nil {
		if processingTime, ok := metadata["processingTime"].(int64); ok {
			update.ProcessingTimeMs = processingTime
		}
		if analysisID, ok := metadata["analysisId"].(string); ok {
			update.AnalysisID = analysisID
		}
		if errorCode, ok := metadata["error_code"].(string); ok {
			update.ErrorCode = errorCode
		}
		if errorMsg, ok := metadata["error"].(string); ok {
			if update.ErrorCode == "" {
				update.ErrorCode = "PROCESSING_ERROR"
			}
			update.ErrorMessage = errorMsg
		}
	}

	return p.store.UpdateJobStatus(ctx, update)
}

// loadFrame loads the frame from buffer or URL
func (p *FrameProcessor) loadFrame(ctx context.Context, req *ProcessRequest) ([]byte, error) {
	if len(req.FrameBuffer) > 0 {
		p.logger.Debug("Using frame buffer", "job", req.JobID, "bytes", len(req.FrameBuffer))
		return req.FrameBuffer, nil
	}

	if req.FrameURL != "" {
		if p.fetcher == nil {
			return nil, errors.NewFrameFetchError(req.JobID, req.FrameURL, fmt.Errorf("no frame fetcher configured"))
		}
		data, err := p.fetcher.FetchFrame(ctx, req.JobID, req.FrameURL)
		if err != nil {
			return nil, errors.NewFrameFetchError(req.JobID, req.FrameURL, err)
		}
		return data, nil
	}

	return nil, errors.NewFrameDecodeError(req.JobID, fmt.Errorf("no frame source provided (buffer or URL)"))
}
