package ingest

import (
	"testing"
	"time"
)

func TestContentHashHex_Consistency(t *testing.T) {
	data := []byte("hello world")
	h1 := ContentHashHex(data)
	h2 := ContentHashHex(data)
	if h1 != h2 {
		t.Errorf("expected identical hashes, got %q and %q", h1, h2)
	}
	want := "b94d27b9934d3e08a52e52d7da7dabfac484efe37a5380ee9088f7ace2efcde9"
	if h1 != want {
		t.Errorf("expected hash %q, got %q", want, h1)
	}
}

func TestDocumentIDFor(t *testing.T) {
	h := ContentHashHex([]byte("hello world"))
	if got := DocumentIDFor(h); got != "doc-b94d27b9934d3e08" {
		t.Errorf("unexpected document id %q", got)
	}
	if got := DocumentIDFor("abc"); got != "doc-abc" {
		t.Errorf("short hash: got %q", got)
	}
}

func TestNewJob(t *testing.T) {
	job := NewJob("j1", KindOutline, "rooms.md", []byte("# Kitchen"))
	if job.Status != StatusQueued || job.Phase != "queued" {
		t.Errorf("expected queued job, got %q/%q", job.Status, job.Phase)
	}
	if job.ContentHash != ContentHashHex([]byte("# Kitchen")) {
		t.Error("expected content hash of the upload")
	}
	if string(job.FileData()) != "# Kitchen" {
		t.Error("expected file data to be kept until processing")
	}
}

func TestJob_StateTransitions(t *testing.T) {
	job := &Job{ID: "test-1", Status: StatusQueued, Phase: "queued", UpdatedAt: time.Now()}

	transitions := []struct {
		status JobStatus
		phase  string
	}{
		{StatusParsing, "parsing"},
		{StatusStoring, "creating entities"},
		{StatusCompleted, "done"},
	}
	for _, tr := range transitions {
		before := job.UpdatedAt
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

func TestJob_Counters(t *testing.T) {
	job := &Job{ID: "c"}
	job.SetTotal(4)
	job.Done(true)
	job.Done(true)
	job.Done(false)
	job.Failed("cabinet \"B1\": boom")

	snap := job.Snapshot()
	p := snap.Progress
	if p.Total != 4 || p.Processed != 4 || p.Created != 2 || p.Reused != 1 {
		t.Errorf("unexpected progress %+v", p)
	}
	if len(p.Errors) != 1 {
		t.Fatalf("expected 1 error, got %d", len(p.Errors))
	}
}

func TestJob_Finish(t *testing.T) {
	tests := []struct {
		name    string
		created int
		failed  int
		want    JobStatus
	}{
		{"clean", 3, 0, StatusCompleted},
		{"some failed", 2, 1, StatusPartial},
		{"all failed", 0, 2, StatusFailed},
		{"nothing to do", 0, 0, StatusCompleted},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			job := NewJob("f", KindPages, "set.pdf", []byte("x"))
			for range tt.created {
				job.Done(true)
			}
			for range tt.failed {
				job.Failed("nope")
			}
			job.finish()
			if job.Status != tt.want {
				t.Errorf("expected %q, got %q", tt.want, job.Status)
			}
			if job.FileData() != nil {
				t.Error("expected file data to be released")
			}
		})
	}
}

func TestJob_SnapshotErrorsNotNil(t *testing.T) {
	job := &Job{ID: "snap-test", UpdatedAt: time.Now()}
	snap := job.Snapshot()
	if snap.Progress.Errors == nil {
		t.Error("expected non-nil errors slice in snapshot")
	}
}

func TestJob_SnapshotPageIDsAreCopied(t *testing.T) {
	job := &Job{ID: "p"}
	job.addPage("a")
	snap := job.Snapshot()
	job.addPage("b")
	if len(snap.PageIDs) != 1 {
		t.Errorf("expected snapshot to be isolated, got %v", snap.PageIDs)
	}
}

func TestJobStore_PutGet(t *testing.T) {
	store := NewJobStore(time.Hour)
	store.Put(&Job{ID: "store-1", UpdatedAt: time.Now()})

	got := store.Get("store-1")
	if got == nil {
		t.Fatal("expected to get job back")
	}
	if store.Get("nonexistent") != nil {
		t.Error("expected nil for missing job")
	}
}

func TestJobStore_TTLCleanup(t *testing.T) {
	store := NewJobStore(50 * time.Millisecond)
	store.Put(&Job{ID: "old", UpdatedAt: time.Now()})

	time.Sleep(100 * time.Millisecond)
	store.Put(&Job{ID: "new", UpdatedAt: time.Now()})

	if n := store.Cleanup(); n != 1 {
		t.Errorf("expected 1 job removed, got %d", n)
	}
	if store.Get("old") != nil {
		t.Error("expected expired job to be cleaned up")
	}
	if store.Get("new") == nil {
		t.Error("expected fresh job to survive cleanup")
	}
}
