package store

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/datallboy/gonzb/internal/job"
)

func newTestStore(t *testing.T) *PersistentStore {
	t.Helper()
	dir := t.TempDir()
	s, err := NewPersistentStore(filepath.Join(dir, "gonzb.db"), filepath.Join(dir, "blobs"))
	if err != nil {
		t.Fatalf("NewPersistentStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

func TestPersistentStore_SaveAndGetJob_RoundTrips(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	j := &job.Job{ID: "job1", Name: "release.one", Status: job.StatusDownloading, TotalBytes: 100}
	j.BytesWritten.Store(50)

	if err := s.SaveJob(ctx, j); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	got, err := s.GetJob(ctx, "job1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got == nil {
		t.Fatal("expected a job, got nil")
	}
	if got.Name != "release.one" || got.Status != job.StatusDownloading {
		t.Fatalf("unexpected job: %+v", got)
	}
	if got.BytesWritten.Load() != 50 {
		t.Fatalf("expected BytesWritten 50, got %d", got.BytesWritten.Load())
	}
}

func TestPersistentStore_GetJob_UnknownReturnsNilNoError(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	got, err := s.GetJob(context.Background(), "does-not-exist")
	if err != nil {
		t.Fatalf("expected no error for unknown job, got %v", err)
	}
	if got != nil {
		t.Fatalf("expected nil job, got %+v", got)
	}
}

func TestPersistentStore_SaveJob_UpsertsOnConflict(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	j := &job.Job{ID: "job1", Name: "release.one", Status: job.StatusQueued}
	if err := s.SaveJob(ctx, j); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	j.Status = job.StatusCompleted
	if err := s.SaveJob(ctx, j); err != nil {
		t.Fatalf("SaveJob (update): %v", err)
	}

	got, err := s.GetJob(ctx, "job1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if got.Status != job.StatusCompleted {
		t.Fatalf("expected updated status completed, got %s", got.Status)
	}

	all, err := s.GetJobs(ctx)
	if err != nil {
		t.Fatalf("GetJobs: %v", err)
	}
	if len(all) != 1 {
		t.Fatalf("expected exactly 1 row after upsert, got %d", len(all))
	}
}

func TestPersistentStore_GetActiveJobs_ExcludesTerminalStates(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	jobs := []*job.Job{
		{ID: "active1", Status: job.StatusDownloading},
		{ID: "active2", Status: job.StatusPaused},
		{ID: "done1", Status: job.StatusCompleted},
		{ID: "failed1", Status: job.StatusFailed},
	}
	for _, j := range jobs {
		if err := s.SaveJob(ctx, j); err != nil {
			t.Fatalf("SaveJob %s: %v", j.ID, err)
		}
	}

	active, err := s.GetActiveJobs(ctx)
	if err != nil {
		t.Fatalf("GetActiveJobs: %v", err)
	}
	if len(active) != 2 {
		t.Fatalf("expected 2 active jobs, got %d", len(active))
	}
	ids := map[string]bool{}
	for _, j := range active {
		ids[j.ID] = true
	}
	if !ids["active1"] || !ids["active2"] {
		t.Fatalf("expected active1 and active2, got %v", ids)
	}
}

func TestPersistentStore_ResetStuckJobs_MarksAndPersistsNewStatus(t *testing.T) {
	t.Parallel()

	s := newTestStore(t)
	ctx := context.Background()

	if err := s.SaveJob(ctx, &job.Job{ID: "stuck1", Status: job.StatusDownloading}); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}
	if err := s.SaveJob(ctx, &job.Job{ID: "fine1", Status: job.StatusCompleted}); err != nil {
		t.Fatalf("SaveJob: %v", err)
	}

	err := s.ResetStuckJobs(ctx, job.StatusFailed, job.StatusDownloading, job.StatusPaused)
	if err != nil {
		t.Fatalf("ResetStuckJobs: %v", err)
	}

	stuck, err := s.GetJob(ctx, "stuck1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if stuck.Status != job.StatusFailed {
		t.Fatalf("expected stuck job reset to Failed, got %s", stuck.Status)
	}
	if stuck.ErrorMsg == "" {
		t.Fatal("expected an error message explaining the reset")
	}

	fine, err := s.GetJob(ctx, "fine1")
	if err != nil {
		t.Fatalf("GetJob: %v", err)
	}
	if fine.Status != job.StatusCompleted {
		t.Fatalf("expected untouched completed job, got %s", fine.Status)
	}
}
