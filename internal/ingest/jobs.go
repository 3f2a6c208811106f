// Package ingest runs uploads in the background: PDF drawing sets become
// pages, room schedules become entity hierarchies.
package ingest

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"
)

// JobKind selects what a job produces.
type JobKind string

const (
	KindPages   JobKind = "pages"
	KindOutline JobKind = "outline"
)

// JobStatus represents the state of an ingestion job.
type JobStatus string

const (
	StatusQueued    JobStatus = "queued"
	StatusParsing   JobStatus = "parsing"
	StatusStoring   JobStatus = "storing"
	StatusCompleted JobStatus = "completed"
	StatusFailed    JobStatus = "failed"
	StatusPartial   JobStatus = "partial"
)

// Job tracks the state of a single upload.
type Job struct {
	mu sync.Mutex

	ID         string  `json:"job_id"`
	Kind       JobKind `json:"kind"`
	DocumentID string  `json:"document_id"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Title    string    `json:"title"`

	// DrawingScale is real inches per paper inch for page uploads.
	DrawingScale float64 `json:"drawing_scale,omitempty"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	errors   []string
	pageIDs  []string
}

// Progress tracks processing progress.
type Progress struct {
	Total     int      `json:"total"`
	Processed int      `json:"processed"`
	Created   int      `json:"created"`
	Reused    int      `json:"reused"`
	Errors    []string `json:"errors"`
}

// NewJob returns a queued job for data.
func NewJob(id string, kind JobKind, filename string, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:          id,
		Kind:        kind,
		Status:      StatusQueued,
		Phase:       "queued",
		Filename:    filename,
		ContentHash: ContentHashHex(data),
		CreatedAt:   now,
		UpdatedAt:   now,
		fileData:    data,
	}
}

// JobStore is a thread-safe in-memory job registry with TTL eviction.
type JobStore struct {
	mu   sync.Mutex
	jobs map[string]*Job
	ttl  time.Duration
}

func NewJobStore(ttl time.Duration) *JobStore {
	return &JobStore{
		jobs: make(map[string]*Job),
		ttl:  ttl,
	}
}

func (s *JobStore) Put(job *Job) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.jobs[job.ID] = job
}

func (s *JobStore) Get(id string) *Job {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jobs[id]
}

// Cleanup removes jobs that have not changed within the TTL.
func (s *JobStore) Cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	n := 0
	for id, job := range s.jobs {
		if now.Sub(job.updatedAt()) > s.ttl {
			delete(s.jobs, id)
			n++
		}
	}
	return n
}

func (j *Job) updatedAt() time.Time {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.UpdatedAt
}

// SetStatus updates job status atomically.
func (j *Job) SetStatus(status JobStatus, phase string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Status = status
	j.Phase = phase
	j.UpdatedAt = time.Now()
}

// AddError records an error.
func (j *Job) AddError(err string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.errors = append(j.errors, err)
	j.Progress.Errors = j.errors
	j.UpdatedAt = time.Now()
}

// SetTotal records how many items the job will write.
func (j *Job) SetTotal(n int) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Total = n
	j.UpdatedAt = time.Now()
}

// Done records one processed item, created or reused.
func (j *Job) Done(created bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.Processed++
	if created {
		j.Progress.Created++
	} else {
		j.Progress.Reused++
	}
	j.UpdatedAt = time.Now()
}

// Failed records one processed item that could not be written.
func (j *Job) Failed(err string) {
	j.mu.Lock()
	j.Progress.Processed++
	j.mu.Unlock()
	j.AddError(err)
}

func (j *Job) addPage(id string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.pageIDs = append(j.pageIDs, id)
}

// SetFileData sets the raw file bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw file bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// finish sets the final status from the counters and drops the upload.
func (j *Job) finish() {
	j.mu.Lock()
	defer j.mu.Unlock()
	written := j.Progress.Created + j.Progress.Reused
	switch {
	case len(j.errors) == 0:
		j.Status = StatusCompleted
	case written > 0:
		j.Status = StatusPartial
	default:
		j.Status = StatusFailed
	}
	j.Phase = "done"
	j.fileData = nil
	j.UpdatedAt = time.Now()
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID          string    `json:"job_id"`
	Kind        JobKind   `json:"kind"`
	DocumentID  string    `json:"document_id"`
	Status      JobStatus `json:"status"`
	Phase       string    `json:"phase"`
	Filename    string    `json:"filename"`
	Title       string    `json:"title"`
	ContentHash string    `json:"content_hash,omitempty"`
	PageIDs     []string  `json:"page_ids,omitempty"`
	Progress    Progress  `json:"progress"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := append([]string{}, j.Progress.Errors...)
	return JobSnapshot{
		ID:          j.ID,
		Kind:        j.Kind,
		DocumentID:  j.DocumentID,
		Status:      j.Status,
		Phase:       j.Phase,
		Filename:    j.Filename,
		Title:       j.Title,
		ContentHash: j.ContentHash,
		PageIDs:     append([]string(nil), j.pageIDs...),
		Progress: Progress{
			Total:     j.Progress.Total,
			Processed: j.Progress.Processed,
			Created:   j.Progress.Created,
			Reused:    j.Progress.Reused,
			Errors:    errs,
		},
		CreatedAt: j.CreatedAt,
		UpdatedAt: j.UpdatedAt,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}

// DocumentIDFor derives a stable document id from an upload's content hash,
// so re-uploading the same drawing set lands on the same document.
func DocumentIDFor(contentHash string) string {
	if len(contentHash) > 16 {
		contentHash = contentHash[:16]
	}
	return "doc-" + contentHash
}
