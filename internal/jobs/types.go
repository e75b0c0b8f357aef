package jobs

import (
	"context"
	"errors"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/spending-tracker/internal/domain"
)

// ErrNotFound is returned by a JobStore for an unknown job ID.
var ErrNotFound = errors.New("job not found")

// ErrClosed is returned when publishing to a stopped queue.
var ErrClosed = errors.New("queue is closed")

// JobStatus represents the current status of a job.
type JobStatus string

const (
	// JobStatusPending indicates the job is waiting to be processed.
	JobStatusPending JobStatus = "pending"
	// JobStatusRunning indicates the job is currently being processed.
	JobStatusRunning JobStatus = "running"
	// JobStatusCompleted indicates the job completed successfully.
	JobStatusCompleted JobStatus = "completed"
	// JobStatusFailed indicates the job failed.
	JobStatusFailed JobStatus = "failed"
	// JobStatusRetrying indicates the job failed and is waiting to be retried.
	JobStatusRetrying JobStatus = "retrying"
)

// SyncJob asks the worker to run the orchestrator once.
type SyncJob struct {
	// JobID is the unique identifier for this job.
	JobID string `json:"job_id"`

	// Kind selects a historical backfill or an incremental sync.
	Kind domain.SyncKind `json:"kind"`

	// From and To optionally override the run's date range.
	From *civil.Date `json:"from,omitempty"`
	To   *civil.Date `json:"to,omitempty"`

	Status JobStatus `json:"status"`

	CreatedAt   time.Time  `json:"created_at"`
	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`

	// Error contains error details if the last attempt failed.
	Error string `json:"error,omitempty"`

	// RunID is the sync_log row of the last attempt, when one was recorded.
	RunID int64 `json:"run_id,omitempty"`

	// RunStatus is the terminal status of that run.
	RunStatus domain.RunStatus `json:"run_status,omitempty"`

	RetryCount int `json:"retry_count"`
	MaxRetries int `json:"max_retries"`
}

// Result is what a handler reports back about the run it executed.
type Result struct {
	RunID     int64
	RunStatus domain.RunStatus
}

// Publisher enqueues sync jobs.
type Publisher interface {
	// PublishSync assigns an ID when missing and enqueues a copy of job.
	PublishSync(ctx context.Context, job *SyncJob) error

	Close() error
}

// Consumer runs published jobs.
type Consumer interface {
	// Start begins consuming jobs; the handler is called for each one.
	Start(ctx context.Context, handler JobHandler) error

	// Stop stops consuming jobs and waits for the in-flight job to complete.
	Stop(ctx context.Context) error
}

// JobHandler processes a job. A returned error marks the attempt failed and
// may be retried.
type JobHandler func(ctx context.Context, job *SyncJob) (Result, error)

// JobStore keeps job state for the status endpoints.
type JobStore interface {
	SaveJob(ctx context.Context, job *SyncJob) error
	GetJob(ctx context.Context, jobID string) (*SyncJob, error)
	ListJobs(ctx context.Context, filter JobFilter) ([]*SyncJob, error)
	UpdateJobStatus(ctx context.Context, jobID string, status JobStatus, errorMsg string) error
}

// JobFilter defines filtering criteria for listing jobs.
type JobFilter struct {
	Kind   domain.SyncKind
	Status JobStatus

	// Limit limits the number of results.
	Limit int

	// Offset for pagination.
	Offset int
}
