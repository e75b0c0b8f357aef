package domain

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// DefaultCurrency is used when the registry omits a currency on an amount.
const DefaultCurrency = "EUR"

// Expense is one normalized monetary line derived from a Decision.
// This is a domain struct, not a table row; the reconciler maps it into the
// expenses table and links it to the stored decision.
type Expense struct {
	ADA           string       // owning decision's natural key
	DecisionType  DecisionType // denormalized from the decision
	IssueDate     time.Time    // denormalized from the decision
	FinancialYear *int

	Amount   decimal.Decimal // always > 0, two decimals
	Currency string

	KAE            *string // budget-line code
	Description    *string
	AssignmentType *string

	IsDirectAssignment bool
	CPVCodes           []string

	BeneficiaryAFM  *string // tax id
	BeneficiaryName *string
}

// NaturalKey renders the de-duplication key (decision, beneficiary,
// budget line, amount). Two source lines agreeing on all four collapse
// into one stored expense.
func (e Expense) NaturalKey() string {
	return fmt.Sprintf("%s|%s|%s|%s", e.ADA, deref(e.BeneficiaryAFM), deref(e.KAE), e.Amount.StringFixed(2))
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

// ConflictPolicy selects what happens when an expense already exists under
// its natural key.
type ConflictPolicy int

const (
	// PreserveExisting keeps whatever was first recorded (backfill).
	PreserveExisting ConflictPolicy = iota

	// RefreshLabels updates description and the direct-assignment flag but
	// never the amount or beneficiary (incremental sync).
	RefreshLabels
)

func (p ConflictPolicy) String() string {
	switch p {
	case PreserveExisting:
		return "preserve_existing"
	case RefreshLabels:
		return "refresh_labels"
	default:
		return fmt.Sprintf("ConflictPolicy(%d)", int(p))
	}
}
