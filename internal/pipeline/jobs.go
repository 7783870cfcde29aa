package pipeline

import (
	"crypto/sha256"
	"fmt"
	"sync"
	"time"

	"github.com/dgallion1/talkturns/internal/talk"
	"github.com/google/uuid"
)

// JobStatus represents the state of a segmentation job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusReading    JobStatus = "reading"
	StatusSegmenting JobStatus = "segmenting"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
	StatusPartial    JobStatus = "partial"
)

// Job tracks the state of a single uploaded dump.
type Job struct {
	mu sync.Mutex

	ID       string        `json:"job_id"`
	Language talk.Language `json:"lang"`

	Status   JobStatus `json:"status"`
	Phase    string    `json:"phase"`
	Filename string    `json:"filename"`
	Output   string    `json:"output,omitempty"`

	Progress Progress `json:"progress"`

	ContentHash string    `json:"content_hash,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	// Internal: not serialized.
	fileData []byte
	errors   []string
}

// Progress tracks processing progress.
type Progress struct {
	PagesProcessed int      `json:"pages_processed"`
	PagesEmpty     int      `json:"pages_empty"`
	PagesFailed    int      `json:"pages_failed"`
	Turns          int      `json:"turns"`
	Errors         []string `json:"errors"`
}

// NewJob creates a queued job for an uploaded dump.
func NewJob(filename string, lang talk.Language, data []byte) *Job {
	now := time.Now()
	return &Job{
		ID:          uuid.NewString(),
		Language:    lang,
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

// Len returns the number of tracked jobs.
func (s *JobStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.jobs)
}

// Cleanup removes expired jobs. Jobs still running are kept.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		job.mu.Lock()
		expired := now.Sub(job.UpdatedAt) > s.ttl && job.Status.Done()
		job.mu.Unlock()
		if expired {
			delete(s.jobs, id)
		}
	}
}

// Done reports whether the status is final.
func (st JobStatus) Done() bool {
	return st == StatusCompleted || st == StatusFailed || st == StatusPartial
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

// UpdateProgress copies the running totals of a report.
func (j *Job) UpdateProgress(r Report) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Progress.PagesProcessed = r.PagesProcessed
	j.Progress.PagesEmpty = r.PagesEmpty
	j.Progress.PagesFailed = r.PagesFailed
	j.Progress.Turns = r.Turns
	j.UpdatedAt = time.Now()
}

// SetOutput records where the turns are being written.
func (j *Job) SetOutput(dest string) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.Output = dest
}

// SetFileData sets the raw upload bytes for processing.
func (j *Job) SetFileData(data []byte) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.fileData = data
}

// FileData returns the raw upload bytes.
func (j *Job) FileData() []byte {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.fileData
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID       string        `json:"job_id"`
	Language talk.Language `json:"lang"`
	Status   JobStatus     `json:"status"`
	Phase    string        `json:"phase"`
	Filename string        `json:"filename"`
	Output   string        `json:"output,omitempty"`
	Progress Progress      `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := make([]string, len(j.Progress.Errors))
	copy(errs, j.Progress.Errors)
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:       j.ID,
		Language: j.Language,
		Status:   j.Status,
		Phase:    j.Phase,
		Filename: j.Filename,
		Output:   j.Output,
		Progress: p,
	}
}

// ContentHashHex computes SHA-256 of content and returns hex string.
func ContentHashHex(data []byte) string {
	h := sha256.Sum256(data)
	return fmt.Sprintf("%x", h[:])
}
