package pipeline

import (
	"context"

	"github.com/dvloznov/spending-tracker/internal/diavgeia"
	"github.com/dvloznov/spending-tracker/internal/domain"
)

// Fetcher retrieves all decisions of one type within one window.
// *diavgeia.Client is the production implementation.
type Fetcher interface {
	FetchWindow(ctx context.Context, t domain.DecisionType, w domain.Window) (*diavgeia.WindowResult, error)
}

// Reconciler persists batches atomically: either every batch is stored or none is.
type Reconciler interface {
	Reconcile(ctx context.Context, batches []domain.DecisionBatch, policy domain.ConflictPolicy) (domain.ReconcileStats, error)
}

// RunStore records sync runs. CompleteRun is applied exactly once per run.
type RunStore interface {
	StartRun(ctx context.Context, kind domain.SyncKind, w domain.Window) (int64, error)
	CompleteRun(ctx context.Context, runID int64, outcome domain.RunOutcome) error
	// LastSuccessfulRun returns nil when no run has succeeded yet.
	LastSuccessfulRun(ctx context.Context) (*domain.SyncRun, error)
}

// Store is the persistent side of a sync.
type Store interface {
	Reconciler
	RunStore
}

// Refresher rebuilds the precomputed aggregates after reconciliation.
type Refresher interface {
	Refresh(ctx context.Context) error
}

// Exporter mirrors reconciled expenses to a secondary sink.
type Exporter interface {
	ExportExpenses(ctx context.Context, runID int64, expenses []domain.Expense) error
}
