package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/jobs"
	"github.com/dvloznov/spending-tracker/internal/jobs/inmemory"
)

// MockPublisher is a mock implementation of jobs.Publisher.
type MockPublisher struct {
	PublishSyncFunc func(ctx context.Context, job *jobs.SyncJob) error
	published       []jobs.SyncJob
}

func (m *MockPublisher) PublishSync(ctx context.Context, job *jobs.SyncJob) error {
	if m.PublishSyncFunc != nil {
		if err := m.PublishSyncFunc(ctx, job); err != nil {
			return err
		}
	}
	job.JobID = "job-1"
	job.Status = jobs.JobStatusPending
	m.published = append(m.published, *job)
	return nil
}

func (m *MockPublisher) Close() error { return nil }

// MockRunLister is a mock implementation of RunLister.
type MockRunLister struct {
	ListRunsFunc func(ctx context.Context, limit int) ([]domain.SyncRun, error)
	limits       []int
}

func (m *MockRunLister) ListRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	m.limits = append(m.limits, limit)
	if m.ListRunsFunc != nil {
		return m.ListRunsFunc(ctx, limit)
	}
	return nil, nil
}

func newTestMux(pub *MockPublisher, store jobs.JobStore, runs *MockRunLister) http.Handler {
	return NewMux(NewSyncHandler(pub), NewJobsHandler(store), NewRunsHandler(runs))
}

func do(t *testing.T, h http.Handler, method, path, body string) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var out map[string]any
	if rec.Body.Len() > 0 {
		if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
			t.Fatalf("decoding response %q: %v", rec.Body.String(), err)
		}
	}
	return rec, out
}

func TestTriggerSync(t *testing.T) {
	tests := []struct {
		name     string
		method   string
		body     string
		want     int
		wantKind domain.SyncKind
		wantFrom string
	}{
		{name: "empty body is incremental", method: http.MethodPost, body: "", want: http.StatusAccepted, wantKind: domain.SyncIncremental},
		{name: "historical", method: http.MethodPost, body: `{"kind":"historical"}`, want: http.StatusAccepted, wantKind: domain.SyncHistorical},
		{name: "historical from", method: http.MethodPost, body: `{"kind":"historical","from":"2023-01-01"}`, want: http.StatusAccepted, wantKind: domain.SyncHistorical, wantFrom: "2023-01-01"},
		{name: "incremental range", method: http.MethodPost, body: `{"kind":"incremental","from":"2024-05-01","to":"2024-05-08"}`, want: http.StatusAccepted, wantKind: domain.SyncIncremental, wantFrom: "2024-05-01"},
		{name: "incremental half range", method: http.MethodPost, body: `{"from":"2024-05-01"}`, want: http.StatusBadRequest},
		{name: "unknown kind", method: http.MethodPost, body: `{"kind":"weekly"}`, want: http.StatusBadRequest},
		{name: "bad date", method: http.MethodPost, body: `{"kind":"historical","from":"01/05/2024"}`, want: http.StatusBadRequest},
		{name: "inverted range", method: http.MethodPost, body: `{"kind":"historical","from":"2024-05-08","to":"2024-05-01"}`, want: http.StatusBadRequest},
		{name: "invalid json", method: http.MethodPost, body: `{`, want: http.StatusBadRequest},
		{name: "wrong method", method: http.MethodGet, want: http.StatusMethodNotAllowed},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			pub := &MockPublisher{}
			rec, body := do(t, newTestMux(pub, inmemory.NewStore(), &MockRunLister{}), tt.method, "/api/sync", tt.body)
			if rec.Code != tt.want {
				t.Fatalf("Expected %d, got %d: %v", tt.want, rec.Code, body)
			}
			if tt.want != http.StatusAccepted {
				if len(pub.published) != 0 {
					t.Error("Expected nothing published")
				}
				return
			}
			if len(pub.published) != 1 || pub.published[0].Kind != tt.wantKind {
				t.Fatalf("Expected one %s job, got %+v", tt.wantKind, pub.published)
			}
			if body["job_id"] != "job-1" || body["kind"] != string(tt.wantKind) {
				t.Errorf("Unexpected response %v", body)
			}
			if tt.wantFrom != "" {
				want, _ := civil.ParseDate(tt.wantFrom)
				if pub.published[0].From == nil || *pub.published[0].From != want {
					t.Errorf("Expected from %s, got %v", tt.wantFrom, pub.published[0].From)
				}
			}
		})
	}
}

func TestTriggerSync_PublishErrors(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{err: jobs.ErrClosed, want: http.StatusServiceUnavailable},
		{err: errors.New("store down"), want: http.StatusInternalServerError},
	}
	for _, tt := range tests {
		pub := &MockPublisher{PublishSyncFunc: func(ctx context.Context, job *jobs.SyncJob) error { return tt.err }}
		rec, _ := do(t, newTestMux(pub, inmemory.NewStore(), &MockRunLister{}), http.MethodPost, "/api/sync", "")
		if rec.Code != tt.want {
			t.Errorf("%v: expected %d, got %d", tt.err, tt.want, rec.Code)
		}
	}
}

func TestJobsEndpoints(t *testing.T) {
	ctx := context.Background()
	store := inmemory.NewStore()
	_ = store.SaveJob(ctx, &jobs.SyncJob{JobID: "a", Kind: domain.SyncIncremental, Status: jobs.JobStatusCompleted, CreatedAt: time.Now()})
	_ = store.SaveJob(ctx, &jobs.SyncJob{JobID: "b", Kind: domain.SyncHistorical, Status: jobs.JobStatusRunning, CreatedAt: time.Now()})
	h := newTestMux(&MockPublisher{}, store, &MockRunLister{})

	rec, body := do(t, h, http.MethodGet, "/api/jobs", "")
	if rec.Code != http.StatusOK || body["count"] != float64(2) {
		t.Errorf("Expected 2 jobs, got %d %v", rec.Code, body)
	}

	rec, body = do(t, h, http.MethodGet, "/api/jobs?kind=historical", "")
	if rec.Code != http.StatusOK || body["count"] != float64(1) {
		t.Errorf("Expected 1 historical job, got %d %v", rec.Code, body)
	}

	rec, body = do(t, h, http.MethodGet, "/api/jobs/a", "")
	if rec.Code != http.StatusOK || body["job_id"] != "a" || body["status"] != "completed" {
		t.Errorf("Unexpected job response %d %v", rec.Code, body)
	}

	rec, _ = do(t, h, http.MethodGet, "/api/jobs/missing", "")
	if rec.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rec.Code)
	}

	rec, _ = do(t, h, http.MethodGet, "/api/jobs/", "")
	if rec.Code != http.StatusBadRequest {
		t.Errorf("Expected 400 without id, got %d", rec.Code)
	}
}

func TestListRuns(t *testing.T) {
	completed := time.Date(2024, 5, 20, 3, 0, 0, 0, time.UTC)
	runs := &MockRunLister{ListRunsFunc: func(ctx context.Context, limit int) ([]domain.SyncRun, error) {
		return []domain.SyncRun{{
			ID:             3,
			Kind:           domain.SyncIncremental,
			Status:         domain.RunSucceeded,
			From:           civil.Date{Year: 2024, Month: time.May, Day: 11},
			To:             civil.Date{Year: 2024, Month: time.May, Day: 21},
			RecordsFetched: 12,
			CompletedAt:    &completed,
		}}, nil
	}}
	h := newTestMux(&MockPublisher{}, inmemory.NewStore(), runs)

	rec, body := do(t, h, http.MethodGet, "/api/runs?limit=5", "")
	if rec.Code != http.StatusOK || body["count"] != float64(1) {
		t.Fatalf("Unexpected response %d %v", rec.Code, body)
	}
	run := body["runs"].([]any)[0].(map[string]any)
	if run["from"] != "2024-05-11" || run["to"] != "2024-05-21" || run["status"] != "succeeded" {
		t.Errorf("Unexpected run %v", run)
	}
	if len(runs.limits) != 1 || runs.limits[0] != 5 {
		t.Errorf("Expected limit 5, got %v", runs.limits)
	}

	do(t, h, http.MethodGet, "/api/runs?limit=100000", "")
	if runs.limits[1] != 20 {
		t.Errorf("Expected out-of-range limit to fall back to 20, got %d", runs.limits[1])
	}

	failing := &MockRunLister{ListRunsFunc: func(ctx context.Context, limit int) ([]domain.SyncRun, error) {
		return nil, errors.New("db down")
	}}
	rec, _ = do(t, newTestMux(&MockPublisher{}, inmemory.NewStore(), failing), http.MethodGet, "/api/runs", "")
	if rec.Code != http.StatusInternalServerError {
		t.Errorf("Expected 500, got %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	rec, body := do(t, newTestMux(&MockPublisher{}, inmemory.NewStore(), &MockRunLister{}), http.MethodGet, "/health", "")
	if rec.Code != http.StatusOK || body["status"] != "healthy" {
		t.Errorf("Unexpected health response %d %v", rec.Code, body)
	}
}
