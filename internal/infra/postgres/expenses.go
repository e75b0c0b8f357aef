package postgres

import (
	"time"

	"github.com/shopspring/decimal"
)

// ExpenseRow maps to the expenses table.
//
// beneficiary_afm and kae are part of the natural key and stored as '' when
// absent: a unique index treats NULLs as distinct, which would let the same
// obligation line be inserted on every run.
type ExpenseRow struct {
	ID                 int64           `gorm:"column:id;primaryKey;autoIncrement"`
	DecisionID         int64           `gorm:"column:decision_id;not null;index"`
	Decision           *DecisionRow    `gorm:"foreignKey:DecisionID;constraint:OnDelete:CASCADE"`
	ADA                string          `gorm:"column:ada;not null;uniqueIndex:ux_expenses_natural_key,priority:1"`
	DecisionType       string          `gorm:"column:decision_type;not null;index"`
	IssueDate          time.Time       `gorm:"column:issue_date;not null;index"`
	FinancialYear      *int            `gorm:"column:financial_year"`
	Amount             decimal.Decimal `gorm:"column:amount;type:numeric(15,2);not null;uniqueIndex:ux_expenses_natural_key,priority:4"`
	Currency           string          `gorm:"column:currency;not null"`
	KAE                string          `gorm:"column:kae;not null;uniqueIndex:ux_expenses_natural_key,priority:3"`
	Description        *string         `gorm:"column:description"`
	AssignmentType     *string         `gorm:"column:assignment_type"`
	IsDirectAssignment bool            `gorm:"column:is_direct_assignment;not null"`
	CPVCodes           []string        `gorm:"column:cpv_codes;serializer:json"`
	BeneficiaryAFM     string          `gorm:"column:beneficiary_afm;not null;uniqueIndex:ux_expenses_natural_key,priority:2"`
	BeneficiaryName    *string         `gorm:"column:beneficiary_name"`
	CreatedAt          time.Time       `gorm:"column:created_at;not null"`
	UpdatedAt          time.Time       `gorm:"column:updated_at;not null"`
}

func (ExpenseRow) TableName() string { return "expenses" }
