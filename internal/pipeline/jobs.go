package pipeline

import (
	"sync"
	"time"

	"github.com/psylab/epochsync/internal/clocksync"
	"github.com/psylab/epochsync/internal/config"
	"github.com/psylab/epochsync/internal/logtree"
)

// JobStatus represents the state of a synchronization job.
type JobStatus string

const (
	StatusQueued     JobStatus = "queued"
	StatusParsing    JobStatus = "parsing"
	StatusReordering JobStatus = "reordering"
	StatusExtracting JobStatus = "extracting"
	StatusAligning   JobStatus = "aligning"
	StatusCompleted  JobStatus = "completed"
	StatusFailed     JobStatus = "failed"
)

// Result is the output of one completed run.
type Result struct {
	SessionID      string                        `json:"session_id"`
	Epochs         map[string][]clocksync.Window `json:"epochs"`
	Aligned        []clocksync.AlignedEpoch      `json:"aligned"`
	SkippedMarkers int                           `json:"skipped_markers"`
	Tree           *logtree.Node                 `json:"tree,omitempty"`
}

// Progress tracks per-phase counters.
type Progress struct {
	Entries        int      `json:"entries"`
	Entities       int      `json:"entities"`
	Triggers       int      `json:"triggers"`
	EpochSpecs     int      `json:"epoch_specs"`
	SkippedMarkers int      `json:"skipped_markers"`
	AlignedEpochs  int      `json:"aligned_epochs"`
	Errors         []string `json:"errors"`
}

// Job tracks the state of one session synchronization.
type Job struct {
	mu sync.Mutex

	ID        string `json:"job_id"`
	SessionID string `json:"session_id"`

	Status JobStatus `json:"status"`
	Phase  string    `json:"phase"`

	LogFilename     string `json:"log_filename"`
	TriggerFilename string `json:"trigger_filename"`

	Progress Progress `json:"progress"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`

	// Internal: not serialized.
	logData     []byte
	triggerData []byte
	options     config.SyncOptions
	keepTree    bool
	result      *Result
	errors      []string
}

// SetInput attaches the raw payloads and run options.
func (j *Job) SetInput(logData, triggerData []byte, opts config.SyncOptions, keepTree bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.logData = logData
	j.triggerData = triggerData
	j.options = opts
	j.keepTree = keepTree
}

// Input returns the raw payloads and run options.
func (j *Job) Input() (logData, triggerData []byte, opts config.SyncOptions, keepTree bool) {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.logData, j.triggerData, j.options, j.keepTree
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

// UpdateProgress applies fn under the job lock.
func (j *Job) UpdateProgress(fn func(*Progress)) {
	j.mu.Lock()
	defer j.mu.Unlock()
	fn(&j.Progress)
	j.UpdatedAt = time.Now()
}

// SetResult stores the completed run output and drops the raw payloads.
func (j *Job) SetResult(r *Result) {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.result = r
	j.logData = nil
	j.triggerData = nil
	j.UpdatedAt = time.Now()
}

// Result returns the completed run output, or nil.
func (j *Job) Result() *Result {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.result
}

// JobSnapshot is a read-only, JSON-safe copy of job state.
type JobSnapshot struct {
	ID              string    `json:"job_id"`
	SessionID       string    `json:"session_id"`
	Status          JobStatus `json:"status"`
	Phase           string    `json:"phase"`
	LogFilename     string    `json:"log_filename"`
	TriggerFilename string    `json:"trigger_filename"`
	Progress        Progress  `json:"progress"`
}

// Snapshot returns a JSON-safe copy of the job state.
func (j *Job) Snapshot() JobSnapshot {
	j.mu.Lock()
	defer j.mu.Unlock()
	errs := j.Progress.Errors
	if errs == nil {
		errs = []string{}
	}
	p := j.Progress
	p.Errors = errs
	return JobSnapshot{
		ID:              j.ID,
		SessionID:       j.SessionID,
		Status:          j.Status,
		Phase:           j.Phase,
		LogFilename:     j.LogFilename,
		TriggerFilename: j.TriggerFilename,
		Progress:        p,
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

// Cleanup removes expired jobs.
func (s *JobStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()
	now := time.Now()
	for id, job := range s.jobs {
		if now.Sub(job.UpdatedAt) > s.ttl {
			delete(s.jobs, id)
		}
	}
}
