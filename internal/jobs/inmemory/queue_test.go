package inmemory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/jobs"
)

// waitForStatus polls the store until the job reaches status or the test times out.
func waitForStatus(t *testing.T, store *Store, jobID string, status jobs.JobStatus) *jobs.SyncJob {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		job, err := store.GetJob(context.Background(), jobID)
		if err == nil && job.Status == status {
			return job
		}
		time.Sleep(5 * time.Millisecond)
	}
	job, _ := store.GetJob(context.Background(), jobID)
	t.Fatalf("job %s did not reach %s, last state %+v", jobID, status, job)
	return nil
}

func TestQueue_RunsJobsOneAtATime(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := NewStore()
	q := NewQueue(10, store)

	var running, maxRunning int32
	handler := func(ctx context.Context, job *jobs.SyncJob) (jobs.Result, error) {
		n := atomic.AddInt32(&running, 1)
		for {
			m := atomic.LoadInt32(&maxRunning)
			if n <= m || atomic.CompareAndSwapInt32(&maxRunning, m, n) {
				break
			}
		}
		time.Sleep(10 * time.Millisecond)
		atomic.AddInt32(&running, -1)
		return jobs.Result{RunID: 7, RunStatus: domain.RunSucceeded}, nil
	}
	if err := q.Start(ctx, handler); err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	var ids []string
	for i := 0; i < 4; i++ {
		job := &jobs.SyncJob{Kind: domain.SyncIncremental}
		if err := q.PublishSync(ctx, job); err != nil {
			t.Fatalf("PublishSync failed: %v", err)
		}
		if job.JobID == "" || job.Status != jobs.JobStatusPending {
			t.Fatalf("Expected id and pending status, got %+v", job)
		}
		ids = append(ids, job.JobID)
	}

	for _, id := range ids {
		job := waitForStatus(t, store, id, jobs.JobStatusCompleted)
		if job.RunID != 7 || job.RunStatus != domain.RunSucceeded || job.CompletedAt == nil {
			t.Errorf("Unexpected completed job %+v", job)
		}
	}
	if got := atomic.LoadInt32(&maxRunning); got != 1 {
		t.Errorf("Expected at most one concurrent run, got %d", got)
	}

	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	if err := q.PublishSync(ctx, &jobs.SyncJob{Kind: domain.SyncIncremental}); !errors.Is(err, jobs.ErrClosed) {
		t.Errorf("Expected ErrClosed after stop, got %v", err)
	}
}

func TestQueue_Retries(t *testing.T) {
	tests := []struct {
		name       string
		failures   int
		maxRetries int
		want       jobs.JobStatus
		wantCalls  int
	}{
		{name: "succeeds on retry", failures: 1, maxRetries: 1, want: jobs.JobStatusCompleted, wantCalls: 2},
		{name: "exhausts retries", failures: 5, maxRetries: 2, want: jobs.JobStatusFailed, wantCalls: 3},
		{name: "no retries", failures: 1, maxRetries: 0, want: jobs.JobStatusFailed, wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			store := NewStore()
			q := NewQueue(1, store, WithMaxRetries(tt.maxRetries), WithRetryBackoff(time.Millisecond))

			var mu sync.Mutex
			calls := 0
			handler := func(ctx context.Context, job *jobs.SyncJob) (jobs.Result, error) {
				mu.Lock()
				defer mu.Unlock()
				calls++
				if calls <= tt.failures {
					return jobs.Result{RunID: int64(calls), RunStatus: domain.RunFailed}, errors.New("registry unavailable")
				}
				return jobs.Result{RunID: int64(calls), RunStatus: domain.RunSucceeded}, nil
			}
			if err := q.Start(ctx, handler); err != nil {
				t.Fatalf("Start failed: %v", err)
			}
			defer q.Close()

			job := &jobs.SyncJob{Kind: domain.SyncHistorical}
			if err := q.PublishSync(ctx, job); err != nil {
				t.Fatalf("PublishSync failed: %v", err)
			}

			got := waitForStatus(t, store, job.JobID, tt.want)
			mu.Lock()
			defer mu.Unlock()
			if calls != tt.wantCalls {
				t.Errorf("Expected %d calls, got %d", tt.wantCalls, calls)
			}
			if got.RetryCount != tt.wantCalls-1 {
				t.Errorf("Expected retry count %d, got %d", tt.wantCalls-1, got.RetryCount)
			}
			if tt.want == jobs.JobStatusFailed && got.Error == "" {
				t.Error("Expected error recorded on failed job")
			}
			if tt.want == jobs.JobStatusCompleted && got.Error != "" {
				t.Errorf("Expected error cleared, got %q", got.Error)
			}
		})
	}
}

func TestQueue_StartTwice(t *testing.T) {
	q := NewQueue(1, nil)
	defer q.Close()
	noop := func(ctx context.Context, job *jobs.SyncJob) (jobs.Result, error) { return jobs.Result{}, nil }

	if err := q.Start(context.Background(), noop); err != nil {
		t.Fatalf("Start failed: %v", err)
	}
	if err := q.Start(context.Background(), noop); err == nil {
		t.Error("Expected second Start to fail")
	}
}

func TestQueue_RejectedPublishIsNotLeftPending(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, store)

	first := &jobs.SyncJob{Kind: domain.SyncIncremental}
	if err := q.PublishSync(context.Background(), first); err != nil {
		t.Fatalf("PublishSync failed: %v", err)
	}

	// No consumer is running, so the buffer stays full.
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	second := &jobs.SyncJob{Kind: domain.SyncIncremental}
	if err := q.PublishSync(ctx, second); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Expected deadline exceeded, got %v", err)
	}

	pending, err := store.ListJobs(context.Background(), jobs.JobFilter{Status: jobs.JobStatusPending})
	if err != nil {
		t.Fatalf("ListJobs failed: %v", err)
	}
	if len(pending) != 1 || pending[0].JobID != first.JobID {
		t.Fatalf("Expected only the queued job pending, got %d", len(pending))
	}

	rejected, err := store.GetJob(context.Background(), second.JobID)
	if err != nil {
		t.Fatalf("GetJob failed: %v", err)
	}
	if rejected.Status != jobs.JobStatusFailed || rejected.Error == "" || rejected.CompletedAt == nil {
		t.Errorf("Expected rejected job marked failed, got %+v", rejected)
	}
}

func TestQueue_PublishAfterStopDoesNotBlock(t *testing.T) {
	store := NewStore()
	q := NewQueue(1, store)
	if err := q.PublishSync(context.Background(), &jobs.SyncJob{Kind: domain.SyncIncremental}); err != nil {
		t.Fatalf("PublishSync failed: %v", err)
	}

	done := make(chan error, 1)
	blocked := &jobs.SyncJob{Kind: domain.SyncIncremental}
	go func() { done <- q.PublishSync(context.Background(), blocked) }()

	// Stop must not wait on the blocked publisher.
	time.Sleep(10 * time.Millisecond)
	if err := q.Stop(context.Background()); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}

	select {
	case err := <-done:
		if !errors.Is(err, jobs.ErrClosed) {
			t.Errorf("Expected ErrClosed, got %v", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("PublishSync still blocked after Stop")
	}

	pending, _ := store.ListJobs(context.Background(), jobs.JobFilter{Status: jobs.JobStatusPending})
	for _, job := range pending {
		if job.JobID == blocked.JobID {
			t.Errorf("Expected blocked job not left pending, got %+v", job)
		}
	}
}
