/**
 * SQL Client for the StreamABLE frame worker
 *
 * Persists frame analyses and job status through database/sql.
 * PostgreSQL (lib/pq) in deployments, SQLite (modernc) for local runs and tests.
 */

package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Supported database drivers
const (
	DriverPostgres = "postgres"
	DriverSQLite   = "sqlite"
)

var schema = []string{
	`CREATE TABLE IF NOT EXISTS frame_analyses (
		id             TEXT PRIMARY KEY,
		job_id         TEXT NOT NULL,
		stream_id      TEXT NOT NULL DEFAULT '',
		catalog        TEXT NOT NULL,
		results        TEXT NOT NULL,
		failed_regions INTEGER NOT NULL DEFAULT 0,
		duration_ms    BIGINT NOT NULL DEFAULT 0,
		captured_at_ms BIGINT NOT NULL DEFAULT 0,
		created_at_ms  BIGINT NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS frame_analyses_stream_idx ON frame_analyses (stream_id, created_at_ms)`,
	`CREATE TABLE IF NOT EXISTS frame_jobs (
		job_id             TEXT PRIMARY KEY,
		status             TEXT NOT NULL,
		analysis_id        TEXT NOT NULL DEFAULT '',
		error_code         TEXT NOT NULL DEFAULT '',
		error_message      TEXT NOT NULL DEFAULT '',
		processing_time_ms BIGINT NOT NULL DEFAULT 0,
		updated_at_ms      BIGINT NOT NULL
	)`,
}

// RegionText is one stored region result
type RegionText struct {
	Name string `json:"name"`
	Text string `json:"text"`
}

// AnalysisRecord is a stored frame analysis
type AnalysisRecord struct {
	ID            string
	JobID         string
	StreamID      string
	Catalog       string
	Results       []RegionText
	FailedRegions int
	DurationMs    int64
	CapturedAt    time.Time
	CreatedAt     time.Time
}

// JobUpdate represents a job status update
type JobUpdate struct {
	JobID            string
	Status           string
	AnalysisID       string
	ErrorCode        string
	ErrorMessage     string
	ProcessingTimeMs int64
}

// JobRecord is the stored state of a job
type JobRecord struct {
	JobUpdate
	UpdatedAt time.Time
}

// SQLStore handles database operations
type SQLStore struct {
	db     *sql.DB
	driver string
}

// OpenSQLStore opens the database, verifies connectivity and creates the schema
func OpenSQLStore(ctx context.Context, driver, dsn string) (*SQLStore, error) {
	if dsn == "" {
		return nil, fmt.Errorf("database URL is required")
	}
	if driver != DriverPostgres && driver != DriverSQLite {
		return nil, fmt.Errorf("unsupported database driver: %q", driver)
	}

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	// Configure connection pool
	if driver == DriverSQLite {
		// a single connection keeps in-memory databases alive and serializes writers
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		db.SetConnMaxLifetime(5 * time.Minute)
		db.SetConnMaxIdleTime(2 * time.Minute)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	s := &SQLStore{db: db, driver: driver}
	if err := s.migrate(ctx); err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLStore) migrate(ctx context.Context) error {
	for _, stmt := range schema {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to apply schema: %w", err)
		}
	}
	return nil
}

// rebind rewrites ? placeholders into $n for PostgreSQL
func (s *SQLStore) rebind(query string) string {
	if s.driver != DriverPostgres {
		return query
	}
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// InsertAnalysis stores a frame analysis
func (s *SQLStore) InsertAnalysis(ctx context.Context, rec *AnalysisRecord) error {
	resultsJSON, err := json.Marshal(rec.Results)
	if err != nil {
		return fmt.Errorf("failed to marshal results: %w", err)
	}

	query := s.rebind(`
		INSERT INTO frame_analyses (
			id, job_id, stream_id, catalog, results,
			failed_regions, duration_ms, captured_at_ms, created_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
	`)

	_, err = s.db.ExecContext(ctx, query,
		rec.ID,
		rec.JobID,
		rec.StreamID,
		rec.Catalog,
		string(resultsJSON),
		rec.FailedRegions,
		rec.DurationMs,
		toMillis(rec.CapturedAt),
		toMillis(rec.CreatedAt),
	)
	if err != nil {
		return fmt.Errorf("failed to insert analysis (job=%s): %w", rec.JobID, err)
	}
	return nil
}

const analysisColumns = `id, job_id, stream_id, catalog, results,
	failed_regions, duration_ms, captured_at_ms, created_at_ms`

// GetAnalysis retrieves an analysis by ID
func (s *SQLStore) GetAnalysis(ctx context.Context, id string) (*AnalysisRecord, error) {
	if id == "" {
		return nil, fmt.Errorf("analysis ID is required")
	}
	row := s.db.QueryRowContext(ctx,
		s.rebind(`SELECT `+analysisColumns+` FROM frame_analyses WHERE id = ?`), id)

	rec, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("analysis not found: %s", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get analysis: %w", err)
	}
	return rec, nil
}

// LatestForStream returns the most recent analysis stored for streamID
func (s *SQLStore) LatestForStream(ctx context.Context, streamID string) (*AnalysisRecord, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT `+analysisColumns+` FROM frame_analyses
		WHERE stream_id = ?
		ORDER BY created_at_ms DESC, id DESC
		LIMIT 1
	`), streamID)

	rec, err := scanAnalysis(row)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("no analysis for stream: %s", streamID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest analysis: %w", err)
	}
	return rec, nil
}

// ListForStream returns up to limit analyses of streamID in capture order,
// oldest first. A non-positive limit returns every analysis.
func (s *SQLStore) ListForStream(ctx context.Context, streamID string, limit int) ([]*AnalysisRecord, error) {
	query := `SELECT ` + analysisColumns + ` FROM frame_analyses
		WHERE stream_id = ?
		ORDER BY captured_at_ms ASC, created_at_ms ASC, id ASC`
	args := []interface{}{streamID}
	if limit > 0 {
		query += ` LIMIT ?`
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, s.rebind(query), args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	defer rows.Close()

	var records []*AnalysisRecord
	for rows.Next() {
		rec, err := scanAnalysis(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan analysis: %w", err)
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to list analyses: %w", err)
	}
	return records, nil
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanAnalysis(row scanner) (*AnalysisRecord, error) {
	var (
		rec                   AnalysisRecord
		resultsJSON           string
		capturedAt, createdAt int64
	)
	err := row.Scan(
		&rec.ID, &rec.JobID, &rec.StreamID, &rec.Catalog, &resultsJSON,
		&rec.FailedRegions, &rec.DurationMs, &capturedAt, &createdAt,
	)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(resultsJSON), &rec.Results); err != nil {
		return nil, fmt.Errorf("failed to unmarshal results: %w", err)
	}
	rec.CapturedAt = fromMillis(capturedAt)
	rec.CreatedAt = fromMillis(createdAt)
	return &rec, nil
}

// UpsertJobStatus creates or updates the status row of a job
func (s *SQLStore) UpsertJobStatus(ctx context.Context, update *JobUpdate) error {
	if update.JobID == "" {
		return fmt.Errorf("job ID is required")
	}
	if update.Status == "" {
		return fmt.Errorf("status is required")
	}

	// empty analysis IDs and zero durations keep the previous value
	query := s.rebind(`
		INSERT INTO frame_jobs (
			job_id, status, analysis_id, error_code, error_message,
			processing_time_ms, updated_at_ms
		) VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (job_id) DO UPDATE SET
			status = EXCLUDED.status,
			analysis_id = CASE WHEN EXCLUDED.analysis_id = '' THEN frame_jobs.analysis_id ELSE EXCLUDED.analysis_id END,
			error_code = EXCLUDED.error_code,
			error_message = EXCLUDED.error_message,
			processing_time_ms = CASE WHEN EXCLUDED.processing_time_ms = 0 THEN frame_jobs.processing_time_ms ELSE EXCLUDED.processing_time_ms END,
			updated_at_ms = EXCLUDED.updated_at_ms
	`)

	_, err := s.db.ExecContext(ctx, query,
		update.JobID,
		update.Status,
		update.AnalysisID,
		update.ErrorCode,
		update.ErrorMessage,
		update.ProcessingTimeMs,
		toMillis(time.Now()),
	)
	if err != nil {
		return fmt.Errorf("failed to update job status (job=%s, status=%s): %w",
			update.JobID, update.Status, err)
	}
	return nil
}

// GetJob retrieves a job status row
func (s *SQLStore) GetJob(ctx context.Context, jobID string) (*JobRecord, error) {
	var (
		rec       JobRecord
		updatedAt int64
	)
	err := s.db.QueryRowContext(ctx, s.rebind(`
		SELECT job_id, status, analysis_id, error_code, error_message,
			processing_time_ms, updated_at_ms
		FROM frame_jobs WHERE job_id = ?
	`), jobID).Scan(
		&rec.JobID, &rec.Status, &rec.AnalysisID, &rec.ErrorCode, &rec.ErrorMessage,
		&rec.ProcessingTimeMs, &updatedAt,
	)
	if err == sql.ErrNoRows {
		return nil, fmt.Errorf("job not found: %s", jobID)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get job: %w", err)
	}
	rec.UpdatedAt = fromMillis(updatedAt)
	return &rec, nil
}

// Ping checks database connectivity
func (s *SQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database connection
func (s *SQLStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

// GetStats returns connection pool statistics
func (s *SQLStore) GetStats() sql.DBStats {
	return s.db.Stats()
}

func toMillis(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	if ms == 0 {
		return time.Time{}
	}
	return time.UnixMilli(ms).UTC()
}
