package bigquery

import (
	"math/big"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"
)

// ExpenseRow is one reconciled expense as mirrored to the warehouse.
type ExpenseRow struct {
	NaturalKey string `bigquery:"natural_key"` // REQUIRED
	RunID      int64  `bigquery:"run_id"`      // REQUIRED, sync_log id that exported it

	ADA          string     `bigquery:"ada"`           // REQUIRED
	DecisionType string     `bigquery:"decision_type"` // REQUIRED
	IssueDate    civil.Date `bigquery:"issue_date"`    // REQUIRED, partitioning column

	FinancialYear bigquery.NullInt64 `bigquery:"financial_year"` // NULLABLE

	Amount   *big.Rat `bigquery:"amount"`   // REQUIRED NUMERIC
	Currency string   `bigquery:"currency"` // REQUIRED

	KAE            bigquery.NullString `bigquery:"kae"`             // NULLABLE
	Description    bigquery.NullString `bigquery:"description"`     // NULLABLE
	AssignmentType bigquery.NullString `bigquery:"assignment_type"` // NULLABLE

	IsDirectAssignment bool     `bigquery:"is_direct_assignment"` // REQUIRED
	CPVCodes           []string `bigquery:"cpv_codes"`            // REPEATED

	BeneficiaryAFM  bigquery.NullString `bigquery:"beneficiary_afm"`  // NULLABLE
	BeneficiaryName bigquery.NullString `bigquery:"beneficiary_name"` // NULLABLE

	ExportedTS time.Time `bigquery:"exported_ts"` // REQUIRED
}
