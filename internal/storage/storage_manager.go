/**
 * Storage Manager for the StreamABLE frame worker
 *
 * Validates analyses, assigns their IDs and keeps job status in step
 * with stored results.
 */

package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// StorageManager coordinates analysis and job status persistence
type StorageManager struct {
	store *SQLStore
}

// AnalysisInput represents input for storing a frame analysis
type AnalysisInput struct {
	JobID         string
	StreamID      string
	Catalog       string
	Results       []RegionText
	FailedRegions int
	Duration      time.Duration
	CapturedAt    time.Time
}

// NewStorageManager opens the SQL store behind the manager
func NewStorageManager(ctx context.Context, driver, databaseURL string) (*StorageManager, error) {
	store, err := OpenSQLStore(ctx, driver, databaseURL)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize %s store: %w", driver, err)
	}
	return &StorageManager{store: store}, nil
}

// NewStorageManagerWithStore wraps an already opened store
func NewStorageManagerWithStore(store *SQLStore) *StorageManager {
	return &StorageManager{store: store}
}

// SaveAnalysis stores a frame analysis and returns its generated ID
func (sm *StorageManager) SaveAnalysis(ctx context.Context, input *AnalysisInput) (string, error) {
	if input == nil {
		return "", fmt.Errorf("input is required")
	}
	if input.JobID == "" {
		return "", fmt.Errorf("job ID is required")
	}
	if input.Catalog == "" {
		return "", fmt.Errorf("catalog is required")
	}
	if len(input.Results) == 0 {
		return "", fmt.Errorf("at least one region result is required")
	}

	rec := &AnalysisRecord{
		ID:            uuid.New().String(),
		JobID:         input.JobID,
		StreamID:      input.StreamID,
		Catalog:       input.Catalog,
		Results:       input.Results,
		FailedRegions: input.FailedRegions,
		DurationMs:    input.Duration.Milliseconds(),
		CapturedAt:    input.CapturedAt,
		CreatedAt:     time.Now(),
	}

	if err := sm.store.InsertAnalysis(ctx, rec); err != nil {
		return "", err
	}
	return rec.ID, nil
}

// GetAnalysis retrieves a stored analysis
func (sm *StorageManager) GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error) {
	return sm.store.GetAnalysis(ctx, id)
}

// LatestForStream retrieves the newest analysis of a stream
func (sm *StorageManager) LatestForStream(ctx context.Context, streamID string) (*AnalysisRecord, error) {
	return sm.store.LatestForStream(ctx, streamID)
}

// ListForStream retrieves the analyses of a stream, oldest capture first
func (sm *StorageManager) ListForStream(ctx context.Context, streamID string, limit int) ([]*AnalysisRecord, error) {
	if streamID == "" {
		return nil, fmt.Errorf("stream ID is required")
	}
	return sm.store.ListForStream(ctx, streamID, limit)
}

// UpdateJobStatus records the status of a job
func (sm *StorageManager) UpdateJobStatus(ctx context.Context, update *JobUpdate) error {
	return sm.store.UpsertJobStatus(ctx, update)
}

// GetJob retrieves the stored status of a job
func (sm *StorageManager) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	return sm.store.GetJob(ctx, jobID)
}

// HealthCheck verifies the database is reachable
func (sm *StorageManager) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := sm.store.Ping(ctx); err != nil {
		return fmt.Errorf("database health check failed: %w", err)
	}
	return nil
}

// Close closes the underlying store
func (sm *StorageManager) Close() error {
	return sm.store.Close()
}
