package inmemory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dvloznov/spending-tracker/internal/jobs"
	"github.com/dvloznov/spending-tracker/internal/logger"
	"github.com/google/uuid"
)

// DefaultRetryBackoff is multiplied by the attempt number between retries.
const DefaultRetryBackoff = 30 * time.Second

// Queue is an in-memory job publisher and consumer backed by a channel.
// A single worker drains it, so two sync runs in one process never overlap.
type Queue struct {
	jobChan   chan jobs.SyncJob
	closeChan chan struct{}
	wg        sync.WaitGroup
	mu        sync.RWMutex
	store     jobs.JobStore
	closed    bool
	started   bool

	maxRetries int
	backoff    time.Duration
}

// Option configures a Queue.
type Option func(*Queue)

// WithMaxRetries sets the default retry budget for jobs that do not carry one.
func WithMaxRetries(n int) Option {
	return func(q *Queue) {
		if n >= 0 {
			q.maxRetries = n
		}
	}
}

// WithRetryBackoff sets the base delay between attempts.
func WithRetryBackoff(d time.Duration) Option {
	return func(q *Queue) {
		if d >= 0 {
			q.backoff = d
		}
	}
}

// NewQueue creates a new in-memory job queue.
// bufferSize determines how many jobs can wait before PublishSync blocks.
func NewQueue(bufferSize int, store jobs.JobStore, opts ...Option) *Queue {
	q := &Queue{
		jobChan:    make(chan jobs.SyncJob, bufferSize),
		closeChan:  make(chan struct{}),
		store:      store,
		maxRetries: 1,
		backoff:    DefaultRetryBackoff,
	}
	for _, opt := range opts {
		opt(q)
	}
	return q
}

// PublishSync implements jobs.Publisher.
func (q *Queue) PublishSync(ctx context.Context, job *jobs.SyncJob) error {
	q.mu.RLock()
	closed := q.closed
	q.mu.RUnlock()
	if closed {
		return jobs.ErrClosed
	}

	if job.JobID == "" {
		job.JobID = uuid.New().String()
	}
	if job.Status == "" {
		job.Status = jobs.JobStatusPending
	}
	if job.CreatedAt.IsZero() {
		job.CreatedAt = time.Now().UTC()
	}
	if job.MaxRetries == 0 {
		job.MaxRetries = q.maxRetries
	}

	if q.store != nil {
		if err := q.store.SaveJob(ctx, job); err != nil {
			return fmt.Errorf("PublishSync: saving job: %w", err)
		}
	}

	var err error
	select {
	case q.jobChan <- *job:
		return nil
	case <-ctx.Done():
		err = ctx.Err()
	case <-q.closeChan:
		err = jobs.ErrClosed
	}

	// The job was never queued; it must not stay pending in the store.
	now := time.Now().UTC()
	job.Status = jobs.JobStatusFailed
	job.Error = fmt.Sprintf("not queued: %v", err)
	job.CompletedAt = &now
	q.save(context.WithoutCancel(ctx), job)
	return err
}

// Start implements jobs.Consumer. It starts the single worker goroutine.
func (q *Queue) Start(ctx context.Context, handler jobs.JobHandler) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.closed {
		return jobs.ErrClosed
	}
	if q.started {
		return fmt.Errorf("queue already started")
	}
	q.started = true

	q.wg.Add(1)
	go q.worker(ctx, handler)
	return nil
}

func (q *Queue) worker(ctx context.Context, handler jobs.JobHandler) {
	defer q.wg.Done()

	for {
		select {
		case <-ctx.Done():
			return
		case <-q.closeChan:
			return
		case job := <-q.jobChan:
			q.processJob(ctx, &job, handler)
		}
	}
}

// processJob runs job until it succeeds or exhausts its retries. Retries
// happen inline so later jobs wait behind them.
func (q *Queue) processJob(ctx context.Context, job *jobs.SyncJob, handler jobs.JobHandler) {
	ctx = logger.WithFields(ctx, map[string]any{"job_id": job.JobID, "kind": string(job.Kind)})
	log := logger.FromContext(ctx)

	for {
		now := time.Now().UTC()
		job.Status = jobs.JobStatusRunning
		job.StartedAt = &now
		job.CompletedAt = nil
		q.save(ctx, job)

		res, err := handler(ctx, job)

		completedAt := time.Now().UTC()
		job.CompletedAt = &completedAt
		job.RunID = res.RunID
		job.RunStatus = res.RunStatus

		if err == nil {
			job.Status = jobs.JobStatusCompleted
			job.Error = ""
			q.save(ctx, job)
			return
		}

		job.Error = err.Error()
		if job.RetryCount >= job.MaxRetries || ctx.Err() != nil {
			job.Status = jobs.JobStatusFailed
			q.save(ctx, job)
			log.Error().Err(err).Int("attempts", job.RetryCount+1).Msg("sync job failed")
			return
		}

		job.RetryCount++
		job.Status = jobs.JobStatusRetrying
		q.save(ctx, job)
		log.Warn().Err(err).Int("retry", job.RetryCount).Msg("sync job failed; retrying")

		if !q.wait(ctx, time.Duration(job.RetryCount)*q.backoff) {
			job.Status = jobs.JobStatusFailed
			q.save(context.WithoutCancel(ctx), job)
			return
		}
	}
}

// wait sleeps for d unless the queue stops first.
func (q *Queue) wait(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	case <-q.closeChan:
		return false
	}
}

func (q *Queue) save(ctx context.Context, job *jobs.SyncJob) {
	if q.store == nil {
		return
	}
	if err := q.store.SaveJob(ctx, job); err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", job.JobID).Msg("saving job state")
	}
}

// Stop implements jobs.Consumer.
// It stops the queue and waits for the in-flight job to complete.
func (q *Queue) Stop(ctx context.Context) error {
	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return nil
	}
	q.closed = true
	close(q.closeChan)
	q.mu.Unlock()

	done := make(chan struct{})
	go func() {
		q.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close implements jobs.Publisher.
func (q *Queue) Close() error {
	return q.Stop(context.Background())
}

var _ jobs.Publisher = (*Queue)(nil)
var _ jobs.Consumer = (*Queue)(nil)
