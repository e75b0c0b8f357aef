package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/dvloznov/spending-tracker/internal/logger"
)

// Warehouse mirrors reconciled expenses into BigQuery. Mirroring is
// best-effort: the relational store stays the source of truth.
type Warehouse struct {
	client  *bigquery.Client
	putter  RowPutter
	dataset string
	table   string
	now     func() time.Time
}

// New creates a Warehouse with its own BigQuery client and makes sure the
// target table exists.
func New(ctx context.Context, project, dataset, table string) (*Warehouse, error) {
	client, err := bigquery.NewClient(ctx, project)
	if err != nil {
		return nil, fmt.Errorf("NewWarehouse: creating client: %w", err)
	}
	if err := EnsureExpensesTableWithClient(ctx, client, dataset, table); err != nil {
		client.Close()
		return nil, err
	}
	return &Warehouse{
		client:  client,
		putter:  client.Dataset(dataset).Table(table).Inserter(),
		dataset: dataset,
		table:   table,
		now:     time.Now,
	}, nil
}

// NewWithPutter creates a Warehouse over an arbitrary putter.
func NewWithPutter(putter RowPutter, dataset, table string) *Warehouse {
	return &Warehouse{putter: putter, dataset: dataset, table: table, now: time.Now}
}

// Close closes the BigQuery client connection.
func (w *Warehouse) Close() error {
	if w.client != nil {
		return w.client.Close()
	}
	return nil
}

// ExportExpenses streams the expenses reconciled by runID.
func (w *Warehouse) ExportExpenses(ctx context.Context, runID int64, expenses []domain.Expense) error {
	if len(expenses) == 0 {
		return nil
	}
	exported := w.now().UTC()
	rows := make([]*ExpenseRow, 0, len(expenses))
	for _, e := range expenses {
		rows = append(rows, ExpenseRowFrom(runID, e, exported))
	}

	if err := InsertExpensesWithPutter(ctx, w.putter, rows); err != nil {
		return fmt.Errorf("ExportExpenses: %s.%s: %w", w.dataset, w.table, err)
	}

	log := logger.FromContext(ctx)
	log.Debug().
		Int64("run_id", runID).
		Int("rows", len(rows)).
		Str("table", w.dataset+"."+w.table).
		Msg("exported expenses to warehouse")
	return nil
}
