package postgres

import "time"

// SyncRunRow maps to the sync_log table.
type SyncRunRow struct {
	ID              int64      `gorm:"column:id;primaryKey;autoIncrement"`
	SyncType        string     `gorm:"column:sync_type;not null"`
	Status          string     `gorm:"column:status;not null;index"`
	RecordsFetched  int        `gorm:"column:records_fetched;not null"`
	RecordsInserted int        `gorm:"column:records_inserted;not null"`
	FailedWindows   int        `gorm:"column:failed_windows;not null"`
	FromDate        time.Time  `gorm:"column:from_date;type:date;not null"`
	ToDate          time.Time  `gorm:"column:to_date;type:date;not null"`
	ErrorMessage    *string    `gorm:"column:error_message"`
	StartedAt       time.Time  `gorm:"column:started_at;not null"`
	CompletedAt     *time.Time `gorm:"column:completed_at"`
}

func (SyncRunRow) TableName() string { return "sync_log" }
