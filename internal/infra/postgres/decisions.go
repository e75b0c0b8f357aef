package postgres

import (
	"time"

	"gorm.io/datatypes"
)

// DecisionRow maps to the decisions table.
type DecisionRow struct {
	ID                  int64          `gorm:"column:id;primaryKey;autoIncrement"`
	ADA                 string         `gorm:"column:ada;not null;uniqueIndex"`
	ProtocolNumber      *string        `gorm:"column:protocol_number"`
	Subject             string         `gorm:"column:subject;not null"`
	DecisionType        string         `gorm:"column:decision_type;not null;index:idx_decisions_type_date,priority:1"`
	IssueDate           time.Time      `gorm:"column:issue_date;not null;index:idx_decisions_type_date,priority:2"`
	PublishDate         *time.Time     `gorm:"column:publish_date"`
	OrganizationID      string         `gorm:"column:organization_id;not null"`
	Status              string         `gorm:"column:status;not null"`
	URL                 *string        `gorm:"column:url"`
	DocumentURL         *string        `gorm:"column:document_url"`
	SignerIDs           []string       `gorm:"column:signer_ids;serializer:json"`
	UnitIDs             []string       `gorm:"column:unit_ids;serializer:json"`
	ThematicCategoryIDs []string       `gorm:"column:thematic_category_ids;serializer:json"`
	ExtraFields         datatypes.JSON `gorm:"column:extra_fields;not null"`
	CreatedAt           time.Time      `gorm:"column:created_at;not null"`
	UpdatedAt           time.Time      `gorm:"column:updated_at;not null"`
}

func (DecisionRow) TableName() string { return "decisions" }
