package postgres

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/civil"
	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/logger"
	"gorm.io/gorm"
)

const maxErrorMessageLen = 2000

// StartSyncRunWithDB inserts a sync_log row with status=running and returns its id.
func StartSyncRunWithDB(ctx context.Context, db *gorm.DB, kind domain.SyncKind, w domain.Window) (int64, error) {
	row := SyncRunRow{
		SyncType:  string(kind),
		Status:    string(domain.RunRunning),
		FromDate:  w.From.In(time.UTC),
		ToDate:    w.To.In(time.UTC),
		StartedAt: time.Now().UTC(),
	}
	if err := db.WithContext(ctx).Create(&row).Error; err != nil {
		return 0, fmt.Errorf("StartSyncRun: inserting row: %w", err)
	}
	return row.ID, nil
}

// CompleteSyncRunWithDB applies the single terminal update to a running row.
// Completing a run twice is an error.
func CompleteSyncRunWithDB(ctx context.Context, db *gorm.DB, runID int64, out domain.RunOutcome) error {
	if !out.Status.Terminal() {
		return fmt.Errorf("CompleteSyncRun: status %q is not terminal", out.Status)
	}

	var msg *string
	if out.Err != nil {
		m := out.Err.Error()
		if len(m) > maxErrorMessageLen {
			m = m[:maxErrorMessageLen]
		}
		msg = &m
	}

	res := db.WithContext(ctx).
		Model(&SyncRunRow{}).
		Where("id = ? AND status = ?", runID, string(domain.RunRunning)).
		Updates(map[string]any{
			"status":           string(out.Status),
			"records_fetched":  out.RecordsFetched,
			"records_inserted": out.RecordsInserted,
			"failed_windows":   out.FailedWindows,
			"error_message":    msg,
			"completed_at":     time.Now().UTC(),
		})
	if res.Error != nil {
		return fmt.Errorf("CompleteSyncRun: updating run %d: %w", runID, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("CompleteSyncRun: run %d is not running", runID)
	}
	return nil
}

// MarkSyncRunFailedWithDB records a failure and only logs its own errors.
func MarkSyncRunFailedWithDB(ctx context.Context, db *gorm.DB, runID int64, cause error) {
	log := logger.FromContext(ctx)
	if err := CompleteSyncRunWithDB(ctx, db, runID, domain.RunOutcome{Status: domain.RunFailed, Err: cause}); err != nil {
		log.Error().
			Err(err).
			Int64("run_id", runID).
			Msg("MarkSyncRunFailed: recording failure")
	}
}

// LastSuccessfulSyncRunWithDB returns the most recently completed succeeded
// run of any kind, or nil.
func LastSuccessfulSyncRunWithDB(ctx context.Context, db *gorm.DB) (*domain.SyncRun, error) {
	var rows []SyncRunRow
	err := db.WithContext(ctx).
		Where("status = ?", string(domain.RunSucceeded)).
		Order("completed_at DESC").
		Order("id DESC").
		Limit(1).
		Find(&rows).Error
	if err != nil {
		return nil, fmt.Errorf("LastSuccessfulSyncRun: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	run := rows[0].toDomain()
	return &run, nil
}

// ListSyncRunsWithDB returns the newest runs first.
func ListSyncRunsWithDB(ctx context.Context, db *gorm.DB, limit int) ([]domain.SyncRun, error) {
	if limit <= 0 {
		limit = 20
	}
	var rows []SyncRunRow
	if err := db.WithContext(ctx).Order("id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListSyncRuns: %w", err)
	}
	runs := make([]domain.SyncRun, 0, len(rows))
	for _, r := range rows {
		runs = append(runs, r.toDomain())
	}
	return runs, nil
}

func (r SyncRunRow) toDomain() domain.SyncRun {
	run := domain.SyncRun{
		ID:              r.ID,
		Kind:            domain.SyncKind(r.SyncType),
		Status:          domain.RunStatus(r.Status),
		RecordsFetched:  r.RecordsFetched,
		RecordsInserted: r.RecordsInserted,
		FailedWindows:   r.FailedWindows,
		From:            civil.DateOf(r.FromDate.UTC()),
		To:              civil.DateOf(r.ToDate.UTC()),
		StartedAt:       r.StartedAt,
		CompletedAt:     r.CompletedAt,
	}
	if r.ErrorMessage != nil {
		run.ErrorMessage = *r.ErrorMessage
	}
	return run
}
