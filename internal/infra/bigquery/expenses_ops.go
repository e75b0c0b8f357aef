package bigquery

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
	"github.com/dvloznov/spending-tracker/internal/domain"
	"github.com/google/uuid"
)

// maxRowsPerPut keeps each streaming insert well below the request size limit.
const maxRowsPerPut = 500

// insertIDNamespace scopes the name-based UUIDs used as insert IDs.
var insertIDNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("https://diavgeia.gov.gr/expenses"))

// expenseSchema is inferred once from ExpenseRow.
var expenseSchema = mustInferSchema(ExpenseRow{})

func mustInferSchema(st any) bigquery.Schema {
	s, err := bigquery.InferSchema(st)
	if err != nil {
		panic(err)
	}
	return s
}

// ExpenseRowFrom maps a domain expense into its warehouse row.
func ExpenseRowFrom(runID int64, e domain.Expense, exported time.Time) *ExpenseRow {
	row := &ExpenseRow{
		NaturalKey:         e.NaturalKey(),
		RunID:              runID,
		ADA:                e.ADA,
		DecisionType:       string(e.DecisionType),
		IssueDate:          civil.DateOf(e.IssueDate.UTC()),
		Amount:             e.Amount.Round(2).Rat(),
		Currency:           e.Currency,
		KAE:                nullString(e.KAE),
		Description:        nullString(e.Description),
		AssignmentType:     nullString(e.AssignmentType),
		IsDirectAssignment: e.IsDirectAssignment,
		CPVCodes:           e.CPVCodes,
		BeneficiaryAFM:     nullString(e.BeneficiaryAFM),
		BeneficiaryName:    nullString(e.BeneficiaryName),
		ExportedTS:         exported,
	}
	if e.FinancialYear != nil {
		row.FinancialYear = bigquery.NullInt64{Int64: int64(*e.FinancialYear), Valid: true}
	}
	return row
}

func nullString(s *string) bigquery.NullString {
	if s == nil {
		return bigquery.NullString{}
	}
	return bigquery.NullString{StringVal: *s, Valid: true}
}

// InsertID derives the streaming insert ID from the natural key, so a row
// re-sent within the de-duplication window is dropped by BigQuery.
func InsertID(naturalKey string) string {
	return uuid.NewSHA1(insertIDNamespace, []byte(naturalKey)).String()
}

// RowPutter is the part of *bigquery.Inserter used here.
type RowPutter interface {
	Put(ctx context.Context, src interface{}) error
}

// InsertExpensesWithPutter streams rows in chunks with natural-key insert IDs.
func InsertExpensesWithPutter(ctx context.Context, putter RowPutter, rows []*ExpenseRow) error {
	for start := 0; start < len(rows); start += maxRowsPerPut {
		end := min(start+maxRowsPerPut, len(rows))
		savers := make([]*bigquery.StructSaver, 0, end-start)
		for _, r := range rows[start:end] {
			savers = append(savers, &bigquery.StructSaver{
				Schema:   expenseSchema,
				InsertID: InsertID(r.NaturalKey),
				Struct:   r,
			})
		}
		if err := putter.Put(ctx, savers); err != nil {
			return fmt.Errorf("InsertExpenses: inserting rows %d-%d: %w", start, end, err)
		}
	}
	return nil
}

// InsertExpensesWithClient inserts rows into dataset.table using client.
func InsertExpensesWithClient(ctx context.Context, client *bigquery.Client, dataset, table string, rows []*ExpenseRow) error {
	if len(rows) == 0 {
		return nil
	}
	return InsertExpensesWithPutter(ctx, client.Dataset(dataset).Table(table).Inserter(), rows)
}

// EnsureExpensesTableWithClient creates dataset.table, partitioned by
// issue_date, when it does not exist yet.
func EnsureExpensesTableWithClient(ctx context.Context, client *bigquery.Client, dataset, table string) error {
	t := client.Dataset(dataset).Table(table)
	if _, err := t.Metadata(ctx); err == nil {
		return nil
	}
	meta := &bigquery.TableMetadata{
		Schema:           expenseSchema,
		TimePartitioning: &bigquery.TimePartitioning{Type: bigquery.MonthPartitioningType, Field: "issue_date"},
		Clustering:       &bigquery.Clustering{Fields: []string{"decision_type", "beneficiary_afm"}},
		Description:      "Reconciled expenses mirrored from the spending tracker",
	}
	if err := t.Create(ctx, meta); err != nil {
		return fmt.Errorf("EnsureExpensesTable: creating %s.%s: %w", dataset, table, err)
	}
	return nil
}
