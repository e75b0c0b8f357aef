package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/dvloznov/spending-tracker/internal/domain"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// ExpenseWrite is what an expense upsert did.
type ExpenseWrite int

const (
	ExpenseUnchanged ExpenseWrite = iota
	ExpenseInserted
	ExpenseUpdated
)

var expenseNaturalKey = []clause.Column{{Name: "ada"}, {Name: "beneficiary_afm"}, {Name: "kae"}, {Name: "amount"}}

func expenseRowFrom(decisionID int64, e domain.Expense) ExpenseRow {
	row := ExpenseRow{
		DecisionID:         decisionID,
		ADA:                e.ADA,
		DecisionType:       string(e.DecisionType),
		IssueDate:          e.IssueDate.UTC(),
		FinancialYear:      e.FinancialYear,
		Amount:             e.Amount.Round(2),
		Currency:           e.Currency,
		Description:        e.Description,
		AssignmentType:     e.AssignmentType,
		IsDirectAssignment: e.IsDirectAssignment,
		CPVCodes:           e.CPVCodes,
		BeneficiaryName:    e.BeneficiaryName,
	}
	if row.Currency == "" {
		row.Currency = domain.DefaultCurrency
	}
	if e.KAE != nil {
		row.KAE = *e.KAE
	}
	if e.BeneficiaryAFM != nil {
		row.BeneficiaryAFM = *e.BeneficiaryAFM
	}
	return row
}

// UpsertExpenseWithDB inserts e under its natural key. When the key already
// exists, PreserveExisting leaves the row alone and RefreshLabels rewrites
// description and is_direct_assignment only; amount and beneficiary are
// never changed.
func UpsertExpenseWithDB(ctx context.Context, db *gorm.DB, decisionID int64, e domain.Expense, policy domain.ConflictPolicy) (ExpenseWrite, error) {
	row := expenseRowFrom(decisionID, e)

	res := db.WithContext(ctx).
		Clauses(clause.OnConflict{Columns: expenseNaturalKey, DoNothing: true}).
		Create(&row)
	if res.Error != nil {
		return ExpenseUnchanged, fmt.Errorf("UpsertExpense: inserting: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return ExpenseInserted, nil
	}
	if policy != domain.RefreshLabels {
		return ExpenseUnchanged, nil
	}

	res = db.WithContext(ctx).
		Model(&ExpenseRow{}).
		Where("ada = ? AND beneficiary_afm = ? AND kae = ? AND amount = ?", row.ADA, row.BeneficiaryAFM, row.KAE, row.Amount).
		Where("description IS DISTINCT FROM ? OR is_direct_assignment <> ?", row.Description, row.IsDirectAssignment).
		Updates(map[string]any{
			"description":          row.Description,
			"is_direct_assignment": row.IsDirectAssignment,
			"updated_at":           time.Now().UTC(),
		})
	if res.Error != nil {
		return ExpenseUnchanged, fmt.Errorf("UpsertExpense: refreshing labels: %w", res.Error)
	}
	if res.RowsAffected > 0 {
		return ExpenseUpdated, nil
	}
	return ExpenseUnchanged, nil
}

// ListExpensesByADAWithDB returns the stored expenses of one decision ordered by id.
func ListExpensesByADAWithDB(ctx context.Context, db *gorm.DB, ada string) ([]ExpenseRow, error) {
	var rows []ExpenseRow
	if err := db.WithContext(ctx).Where("ada = ?", ada).Order("id").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("ListExpensesByADA: %w", err)
	}
	return rows, nil
}

// CountExpensesWithDB counts all stored expenses.
func CountExpensesWithDB(ctx context.Context, db *gorm.DB) (int64, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&ExpenseRow{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("CountExpenses: %w", err)
	}
	return n, nil
}
