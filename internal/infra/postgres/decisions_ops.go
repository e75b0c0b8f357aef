package postgres

import (
	"context"
	"fmt"

	"github.com/dvloznov/spending-tracker/internal/domain"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// decisionMutableColumns are overwritten when a decision is seen again.
// id and created_at are never touched.
var decisionMutableColumns = []string{"subject", "status", "url", "document_url", "extra_fields", "updated_at"}

func decisionRowFrom(d domain.Decision) DecisionRow {
	extra := datatypes.JSON(d.ExtraFields)
	if len(extra) == 0 {
		extra = datatypes.JSON("{}")
	}
	return DecisionRow{
		ADA:                 d.ADA,
		ProtocolNumber:      d.ProtocolNumber,
		Subject:             d.Subject,
		DecisionType:        string(d.Type),
		IssueDate:           d.IssueDate.UTC(),
		PublishDate:         d.PublishDate,
		OrganizationID:      d.OrganizationID,
		Status:              d.Status,
		URL:                 d.URL,
		DocumentURL:         d.DocumentURL,
		SignerIDs:           d.SignerIDs,
		UnitIDs:             d.UnitIDs,
		ThematicCategoryIDs: d.ThematicCategoryIDs,
		ExtraFields:         extra,
	}
}

// UpsertDecisionWithDB inserts d or refreshes its mutable fields, and returns
// the internal id expenses link to.
func UpsertDecisionWithDB(ctx context.Context, db *gorm.DB, d domain.Decision) (int64, error) {
	row := decisionRowFrom(d)
	err := db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns:   []clause.Column{{Name: "ada"}},
			DoUpdates: clause.AssignmentColumns(decisionMutableColumns),
		}).
		Create(&row).Error
	if err != nil {
		return 0, fmt.Errorf("UpsertDecision: upserting %s: %w", d.ADA, err)
	}
	if row.ID != 0 {
		return row.ID, nil
	}

	var id int64
	if err := db.WithContext(ctx).Model(&DecisionRow{}).Where("ada = ?", d.ADA).Pluck("id", &id).Error; err != nil {
		return 0, fmt.Errorf("UpsertDecision: loading id of %s: %w", d.ADA, err)
	}
	if id == 0 {
		return 0, fmt.Errorf("UpsertDecision: no id for %s after upsert", d.ADA)
	}
	return id, nil
}

// FindDecisionWithDB loads a decision by ADA; it returns nil when absent.
func FindDecisionWithDB(ctx context.Context, db *gorm.DB, ada string) (*DecisionRow, error) {
	var rows []DecisionRow
	if err := db.WithContext(ctx).Where("ada = ?", ada).Limit(1).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("FindDecision: %w", err)
	}
	if len(rows) == 0 {
		return nil, nil
	}
	return &rows[0], nil
}
