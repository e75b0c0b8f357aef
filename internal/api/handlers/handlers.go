package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/spending-tracker/internal/api/middleware"
	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/jobs"
	"github.com/dvloznov/spending-tracker/internal/logger"
)

// RunLister reads recent sync runs.
type RunLister interface {
	ListRuns(ctx context.Context, limit int) ([]domain.SyncRun, error)
}

// SyncHandler queues sync runs.
type SyncHandler struct {
	publisher jobs.Publisher
}

// NewSyncHandler creates a new sync handler.
func NewSyncHandler(publisher jobs.Publisher) *SyncHandler {
	return &SyncHandler{publisher: publisher}
}

type syncRequest struct {
	Kind string `json:"kind"`
	From string `json:"from"`
	To   string `json:"to"`
}

// TriggerSync handles POST /api/sync. An empty body queues an incremental run.
func (h *SyncHandler) TriggerSync(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	log := logger.FromContext(ctx)

	var req syncRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid request body")
		return
	}

	job := &jobs.SyncJob{Kind: domain.SyncIncremental}
	switch domain.SyncKind(req.Kind) {
	case "", domain.SyncIncremental:
	case domain.SyncHistorical:
		job.Kind = domain.SyncHistorical
	default:
		middleware.WriteError(w, http.StatusBadRequest, "kind must be incremental or historical")
		return
	}

	var err error
	if job.From, err = parseDate(req.From); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid from date, expected YYYY-MM-DD")
		return
	}
	if job.To, err = parseDate(req.To); err != nil {
		middleware.WriteError(w, http.StatusBadRequest, "Invalid to date, expected YYYY-MM-DD")
		return
	}
	if job.From != nil && job.To != nil && !job.From.Before(*job.To) {
		middleware.WriteError(w, http.StatusBadRequest, "from must be before to")
		return
	}
	if job.Kind == domain.SyncIncremental && (job.From == nil) != (job.To == nil) {
		middleware.WriteError(w, http.StatusBadRequest, "an incremental range needs both from and to")
		return
	}

	if err := h.publisher.PublishSync(ctx, job); err != nil {
		log.Error().Err(err).Msg("Failed to enqueue sync job")
		if errors.Is(err, jobs.ErrClosed) {
			middleware.WriteError(w, http.StatusServiceUnavailable, "Server is shutting down")
			return
		}
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue sync job")
		return
	}

	log.Info().Str("job_id", job.JobID).Str("kind", string(job.Kind)).Msg("Sync job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"kind":   string(job.Kind),
		"status": string(job.Status),
	})
}

func parseDate(s string) (*civil.Date, error) {
	if s == "" {
		return nil, nil
	}
	d, err := civil.ParseDate(s)
	if err != nil {
		return nil, err
	}
	return &d, nil
}

// JobsHandler handles job-related endpoints.
type JobsHandler struct {
	store jobs.JobStore
}

// NewJobsHandler creates a new jobs handler.
func NewJobsHandler(store jobs.JobStore) *JobsHandler {
	return &JobsHandler{store: store}
}

// GetJob handles GET /api/jobs/{id}
func (h *JobsHandler) GetJob(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if errors.Is(err, jobs.ErrNotFound) {
		middleware.WriteError(w, http.StatusNotFound, "Job not found")
		return
	}
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to get job")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListJobs handles GET /api/jobs
func (h *JobsHandler) ListJobs(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		Kind:   domain.SyncKind(query.Get("kind")),
		Status: jobs.JobStatus(query.Get("status")),
	}
	if limit, err := strconv.Atoi(query.Get("limit")); err == nil {
		filter.Limit = limit
	}
	if offset, err := strconv.Atoi(query.Get("offset")); err == nil {
		filter.Offset = offset
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list jobs")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"jobs":  jobsList,
		"count": len(jobsList),
	})
}

// RunsHandler lists sync_log rows.
type RunsHandler struct {
	runs RunLister
}

// NewRunsHandler creates a new runs handler.
func NewRunsHandler(runs RunLister) *RunsHandler {
	return &RunsHandler{runs: runs}
}

type runResponse struct {
	ID              int64      `json:"id"`
	Kind            string     `json:"kind"`
	Status          string     `json:"status"`
	From            string     `json:"from"`
	To              string     `json:"to"`
	RecordsFetched  int        `json:"records_fetched"`
	RecordsInserted int        `json:"records_inserted"`
	FailedWindows   int        `json:"failed_windows"`
	Error           string     `json:"error,omitempty"`
	StartedAt       time.Time  `json:"started_at"`
	CompletedAt     *time.Time `json:"completed_at,omitempty"`
}

// ListRuns handles GET /api/runs
func (h *RunsHandler) ListRuns(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	limit := 20
	if l, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && l > 0 && l <= 200 {
		limit = l
	}

	runs, err := h.runs.ListRuns(ctx, limit)
	if err != nil {
		log := logger.FromContext(ctx)
		log.Error().Err(err).Msg("Failed to list runs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list runs")
		return
	}

	out := make([]runResponse, 0, len(runs))
	for _, run := range runs {
		out = append(out, runResponse{
			ID:              run.ID,
			Kind:            string(run.Kind),
			Status:          string(run.Status),
			From:            run.From.String(),
			To:              run.To.String(),
			RecordsFetched:  run.RecordsFetched,
			RecordsInserted: run.RecordsInserted,
			FailedWindows:   run.FailedWindows,
			Error:           run.ErrorMessage,
			StartedAt:       run.StartedAt,
			CompletedAt:     run.CompletedAt,
		})
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"runs":  out,
		"count": len(out),
	})
}

// Health handles GET /health
func Health(w http.ResponseWriter, r *http.Request) {
	middleware.WriteJSON(w, http.StatusOK, map[string]string{
		"status": "healthy",
		"time":   time.Now().UTC().Format(time.RFC3339),
	})
}

// NewMux routes the trigger surface.
func NewMux(sync *SyncHandler, jobsH *JobsHandler, runs *RunsHandler) *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/sync", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodPost {
			sync.TriggerSync(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			jobsH.ListJobs(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/jobs/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/jobs/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		jobsH.GetJob(w, r, jobID)
	})

	mux.HandleFunc("/api/runs", func(w http.ResponseWriter, r *http.Request) {
		if r.Method == http.MethodGet {
			runs.ListRuns(w, r)
		} else {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/health", Health)

	return mux
}
