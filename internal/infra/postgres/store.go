package postgres

import (
	"context"
	"fmt"

	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/logger"
	"gorm.io/gorm"
)

// Store is the gorm-backed implementation of the pipeline's storage side.
// It holds a shared *gorm.DB handle; the caller owns its lifetime.
type Store struct {
	db *gorm.DB
}

// NewStore creates a Store over an open database handle.
func NewStore(db *gorm.DB) *Store {
	return &Store{db: db}
}

// DB exposes the underlying handle for read-side callers.
func (s *Store) DB() *gorm.DB { return s.db }

// Reconcile upserts every batch in one transaction. An unexpected unique
// violation, typically a concurrent writer, retries the whole transaction once.
func (s *Store) Reconcile(ctx context.Context, batches []domain.DecisionBatch, policy domain.ConflictPolicy) (domain.ReconcileStats, error) {
	stats, err := s.reconcileOnce(ctx, batches, policy)
	if err == nil {
		return stats, nil
	}
	constraint, ok := uniqueViolation(err)
	if !ok {
		return domain.ReconcileStats{}, err
	}

	log := logger.FromContext(ctx)
	log.Warn().Err(err).Str("constraint", constraint).Msg("unique violation during reconcile; retrying once")
	stats, err = s.reconcileOnce(ctx, batches, policy)
	if err != nil {
		return domain.ReconcileStats{}, err
	}
	return stats, nil
}

func (s *Store) reconcileOnce(ctx context.Context, batches []domain.DecisionBatch, policy domain.ConflictPolicy) (domain.ReconcileStats, error) {
	var stats domain.ReconcileStats
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		for _, b := range batches {
			id, err := UpsertDecisionWithDB(ctx, tx, b.Decision)
			if err != nil {
				return &domain.ReconciliationError{NaturalKey: b.Decision.ADA, Err: err}
			}
			stats.DecisionsUpserted++

			for _, e := range b.Expenses {
				w, err := UpsertExpenseWithDB(ctx, tx, id, e, policy)
				if err != nil {
					return &domain.ReconciliationError{NaturalKey: e.NaturalKey(), Err: err}
				}
				switch w {
				case ExpenseInserted:
					stats.ExpensesInserted++
				case ExpenseUpdated:
					stats.ExpensesUpdated++
				default:
					stats.ExpensesUnchanged++
				}
			}
		}
		return nil
	})
	if err != nil {
		return domain.ReconcileStats{}, fmt.Errorf("Reconcile: %w", err)
	}
	return stats, nil
}

// StartRun records a new running sync.
func (s *Store) StartRun(ctx context.Context, kind domain.SyncKind, w domain.Window) (int64, error) {
	return StartSyncRunWithDB(ctx, s.db, kind, w)
}

// CompleteRun applies the terminal update of a run.
func (s *Store) CompleteRun(ctx context.Context, runID int64, out domain.RunOutcome) error {
	return CompleteSyncRunWithDB(ctx, s.db, runID, out)
}

// LastSuccessfulRun returns the checkpoint run, or nil.
func (s *Store) LastSuccessfulRun(ctx context.Context) (*domain.SyncRun, error) {
	return LastSuccessfulSyncRunWithDB(ctx, s.db)
}

// ListRuns returns the newest runs first.
func (s *Store) ListRuns(ctx context.Context, limit int) ([]domain.SyncRun, error) {
	return ListSyncRunsWithDB(ctx, s.db, limit)
}
