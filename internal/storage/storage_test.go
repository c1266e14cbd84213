package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func newTestManager(t *testing.T) *StorageManager {
	t.Helper()
	dsn := "file:" + filepath.Join(t.TempDir(), "streamable.db")
	sm, err := NewStorageManager(context.Background(), DriverSQLite, dsn)
	if err != nil {
		t.Fatalf("NewStorageManager failed: %v", err)
	}
	t.Cleanup(func() { sm.Close() })
	return sm
}

func sampleInput(jobID, streamID string) *AnalysisInput {
	return &AnalysisInput{
		JobID:    jobID,
		StreamID: streamID,
		Catalog:  "lol-tournament",
		Results: []RegionText{
			{Name: "Time", Text: "12:34"},
			{Name: "Gold: Blue team", Text: "123.4k"},
			{Name: "Name: Red team", Text: "Could not find Name: Red team"},
		},
		FailedRegions: 1,
		Duration:      1500 * time.Millisecond,
		CapturedAt:    time.UnixMilli(1700000000000),
	}
}

func TestSaveAndGetAnalysis(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()

	id, err := sm.SaveAnalysis(ctx, sampleInput("job-1", "stream-a"))
	if err != nil {
		t.Fatalf("SaveAnalysis failed: %v", err)
	}
	if id == "" {
		t.Fatal("expected generated ID")
	}

	rec, err := sm.GetAnalysis(ctx, id)
	if err != nil {
		t.Fatalf("GetAnalysis failed: %v", err)
	}
	if rec.JobID != "job-1" || rec.StreamID != "stream-a" || rec.Catalog != "lol-tournament" {
		t.Errorf("unexpected record: %+v", rec)
	}
	if rec.FailedRegions != 1 || rec.DurationMs != 1500 {
		t.Errorf("unexpected counters: failed=%d duration=%d", rec.FailedRegions, rec.DurationMs)
	}
	if !rec.CapturedAt.Equal(time.UnixMilli(1700000000000)) {
		t.Errorf("CapturedAt = %v", rec.CapturedAt)
	}

	want := []string{"Time", "Gold: Blue team", "Name: Red team"}
	if len(rec.Results) != len(want) {
		t.Fatalf("expected %d results, got %d", len(want), len(rec.Results))
	}
	for i, name := range want {
		if rec.Results[i].Name != name {
			t.Errorf("result %d: expected %q, got %q", i, name, rec.Results[i].Name)
		}
	}
	if rec.Results[1].Text != "123.4k" {
		t.Errorf("unexpected gold text %q", rec.Results[1].Text)
	}
}

func TestSaveAnalysisValidation(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()

	testCases := []struct {
		name  string
		input *AnalysisInput
	}{
		{"nil input", nil},
		{"missing job", &AnalysisInput{Catalog: "c", Results: []RegionText{{Name: "a"}}}},
		{"missing catalog", &AnalysisInput{JobID: "j", Results: []RegionText{{Name: "a"}}}},
		{"no results", &AnalysisInput{JobID: "j", Catalog: "c"}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := sm.SaveAnalysis(ctx, tc.input); err == nil {
				t.Error("expected validation error")
			}
		})
	}
}

func TestLatestForStream(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()

	var lastID string
	for i := 0; i < 3; i++ {
		id, err := sm.SaveAnalysis(ctx, sampleInput(fmt.Sprintf("job-%d", i), "stream-a"))
		if err != nil {
			t.Fatal(err)
		}
		lastID = id
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := sm.SaveAnalysis(ctx, sampleInput("other", "stream-b")); err != nil {
		t.Fatal(err)
	}

	rec, err := sm.LatestForStream(ctx, "stream-a")
	if err != nil {
		t.Fatalf("LatestForStream failed: %v", err)
	}
	if rec.ID != lastID || rec.JobID != "job-2" {
		t.Errorf("expected latest job-2 (%s), got %s (%s)", lastID, rec.JobID, rec.ID)
	}

	if _, err := sm.LatestForStream(ctx, "stream-missing"); err == nil {
		t.Error("expected error for unknown stream")
	}
}

func TestUpdateJobStatusKeepsAnalysisID(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()

	if err := sm.UpdateJobStatus(ctx, &JobUpdate{JobID: "job-1", Status: "processing"}); err != nil {
		t.Fatalf("UpdateJobStatus failed: %v", err)
	}
	if err := sm.UpdateJobStatus(ctx, &JobUpdate{
		JobID: "job-1", Status: "completed", AnalysisID: "a-1", ProcessingTimeMs: 420,
	}); err != nil {
		t.Fatal(err)
	}
	if err := sm.UpdateJobStatus(ctx, &JobUpdate{
		JobID: "job-1", Status: "failed", ErrorCode: "STORAGE_FAILED", ErrorMessage: "boom",
	}); err != nil {
		t.Fatal(err)
	}

	job, err := sm.GetJob(ctx, "job-1")
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if job.Status != "failed" || job.ErrorCode != "STORAGE_FAILED" {
		t.Errorf("unexpected status: %+v", job)
	}
	if job.AnalysisID != "a-1" || job.ProcessingTimeMs != 420 {
		t.Errorf("expected analysis ID and duration to be preserved, got %+v", job)
	}
	if job.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt to be set")
	}

	if err := sm.UpdateJobStatus(ctx, &JobUpdate{Status: "processing"}); err == nil {
		t.Error("expected error for missing job ID")
	}
	if _, err := sm.GetJob(ctx, "missing"); err == nil {
		t.Error("expected error for missing job")
	}
}

func TestRebind(t *testing.T) {
	pg := &SQLStore{driver: DriverPostgres}
	lite := &SQLStore{driver: DriverSQLite}
	q := "SELECT a FROM t WHERE b = ? AND c = ?"

	if got := pg.rebind(q); got != "SELECT a FROM t WHERE b = $1 AND c = $2" {
		t.Errorf("postgres rebind: %q", got)
	}
	if got := lite.rebind(q); got != q {
		t.Errorf("sqlite rebind should be identity: %q", got)
	}
}

func TestOpenSQLStoreRejectsUnknownDriver(t *testing.T) {
	_, err := OpenSQLStore(context.Background(), "mysql", "dsn")
	if err == nil || !strings.Contains(err.Error(), "unsupported") {
		t.Errorf("expected unsupported driver error, got %v", err)
	}
	if _, err := OpenSQLStore(context.Background(), DriverSQLite, ""); err == nil {
		t.Error("expected error for empty DSN")
	}
}

func TestListForStream(t *testing.T) {
	sm := newTestManager(t)
	ctx := context.Background()

	base := time.UnixMilli(1700000000000)
	// inserted out of capture order
	for _, offset := range []int{2, 0, 1} {
		in := sampleInput(fmt.Sprintf("job-%d", offset), "stream-a")
		in.CapturedAt = base.Add(time.Duration(offset) * time.Second)
		if _, err := sm.SaveAnalysis(ctx, in); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := sm.SaveAnalysis(ctx, sampleInput("other", "stream-b")); err != nil {
		t.Fatal(err)
	}

	all, err := sm.ListForStream(ctx, "stream-a", 0)
	if err != nil {
		t.Fatalf("ListForStream failed: %v", err)
	}
	if len(all) != 3 {
		t.Fatalf("expected 3 analyses, got %d", len(all))
	}
	for i, rec := range all {
		if want := fmt.Sprintf("job-%d", i); rec.JobID != want {
			t.Errorf("analysis %d: job = %s, want %s", i, rec.JobID, want)
		}
		if len(rec.Results) != 3 {
			t.Errorf("analysis %d: %d results", i, len(rec.Results))
		}
	}

	limited, err := sm.ListForStream(ctx, "stream-a", 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(limited) != 2 {
		t.Errorf("expected 2 analyses with limit, got %d", len(limited))
	}

	if _, err := sm.ListForStream(ctx, "", 0); err == nil {
		t.Error("expected error for empty stream ID")
	}
}
