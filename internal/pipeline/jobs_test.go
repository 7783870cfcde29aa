package pipeline

import (
	"testing"
	"time"

	"github.com/google/uuid"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	// SHA-256 of "hello world" is well-known.
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("pages.xml", "es", []byte("<pages/>"))
	if _, err := uuid.Parse(job.ID); err != nil {
		t.Errorf("expected uuid job id, got %q", job.ID)
	}
	if job.Status != StatusQueued || job.Language != "es" {
		t.Errorf("unexpected job %+v", job.Snapshot())
	}
	if string(job.FileData()) != "<pages/>" {
		t.Errorf("expected file data kept, got %q", job.FileData())
	}
	if job.ContentHash != ContentHashHex([]byte("<pages/>")) {
		t.Errorf("unexpected content hash %q", job.ContentHash)
	}
	if other := NewJob("pages.xml", "es", nil); other.ID == job.ID {
		t.Error("expected distinct job ids")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{
		ID:        "test-1",
		Status:    StatusQueued,
		Phase:     "queued",
		CreatedAt: time.Now(),
		UpdatedAt: time.Now(),
	}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusReading, "reading"},
		{StatusSegmenting, "segmenting"},
		{StatusCompleted, "done"},
	}

	for _, tr := range transitions {
		before := job.UpdatedAt
		// Small sleep to ensure time difference is detectable.
		time.Sleep(time.Millisecond)
		job.SetStatus(tr.status, tr.phase)

		if job.Status != tr.status {
			t.Errorf("expected status %q, got %q", tr.status, job.Status)
		}
		if job.Phase != tr.phase {
			t.Errorf("expected phase %q, got %q", tr.phase, job.Phase)
		}
		if !job.UpdatedAt.After(before) {
			t.Errorf("expected UpdatedAt to advance after SetStatus(%q)", tr.status)
		}
	}
}

func TestJobStatus_Done(t *testing.T) {
	for st, want := range map[JobStatus]bool{
		StatusQueued: false, StatusReading: false, StatusSegmenting: false,
		StatusCompleted: true, StatusPartial: true, StatusFailed: true,
	} {
		if st.Done() != want {
			t.Errorf("%s: expected Done()=%v", st, want)
		}
	}
}

func TestJob_AddError(t *testing.T) {
	job := &Job{ID: "err-test", UpdatedAt: time.Now()}
	job.AddError("page 3 failed")
	job.AddError("page 7 failed")

	snap := job.Snapshot()
	if len(snap.Progress.Errors) != 2 {
		t.Fatalf("expected 2 errors, got %d", len(snap.Progress.Errors))
	}
	if snap.Progress.Errors[0] != "page 3 failed" {
		t.Errorf("expected first error %q, got %q", "page 3 failed", snap.Progress.Errors[0])
	}
}

func TestJob_UpdateProgress(t *testing.T) {
	job := &Job{ID: "progress-test", UpdatedAt: time.Now()}
	job.UpdateProgress(Report{PagesProcessed: 10, PagesEmpty: 2, PagesFailed: 1, Turns: 31})

	snap := job.Snapshot()
	if snap.Progress.PagesProcessed != 10 || snap.Progress.PagesEmpty != 2 ||
		snap.Progress.PagesFailed != 1 || snap.Progress.Turns != 31 {
		t.Errorf("unexpected progress %+v", snap.Progress)
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	// Snapshot should always return non-nil errors slice.
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
	if len(snap.Progress.Errors) != 0 {
		t.Errorf("expected empty errors, got %d", len(snap.Progress.Errors))
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	job := &Job{ID: "store-1", UpdatedAt: time.Now()}
	store.Put(job)

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if got.ID != "store-1" {
		t.Errorf("expected ID %q, got %q", "store-1", got.ID)
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)

	store.Put(&Job{ID: "old", Status: StatusCompleted, UpdatedAt: time.Now()})
	store.Put(&Job{ID: "running", Status: StatusSegmenting, UpdatedAt: time.Now()})

	// Wait for the TTL to pass.
	time.Sleep(100 * time.Millisecond)

	store.Put(&Job{ID: "new", Status: StatusCompleted, UpdatedAt: time.Now()})
	store.Cleanup()

	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("running") == nil {
		t.Error("expected running job to survive cleanup")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
	if store.Len() != 2 {
		t.Errorf("expected 2 jobs left, got %d", store.Len())
	}
}

func TestJobStore_CleanupEmpty(t *testing.T) {
	store := NewJobStore(time.Hour)
	// Should not panic on empty store.
	store.Cleanup()
}
