package config

import (
	"time"

	"github.com/dvloznov/spending-tracker/internal/pipeline"
)

// Default returns the configuration used when nothing overrides it.
func Default() *Config {
	return &Config{
		Source: SourceConfig{
			BaseURL:         "https://diavgeia.gov.gr/opendata",
			OrgID:           pipeline.DefaultOrgID,
			OrgTaxID:        pipeline.DefaultOrgTaxID,
			PageSize:        500,
			RequestDelay:    200 * time.Millisecond,
			Timeout:         30 * time.Second,
			DefaultCurrency: "EUR",
		},
		Backfill: BackfillConfig{
			StartDate:    pipeline.DefaultBackfillStart.String(),
			WindowMonths: pipeline.DefaultWindowMonths,
		},
		Sync: SyncConfig{
			Lookback:     pipeline.DefaultLookbackDays * 24 * time.Hour,
			Overlap:      pipeline.DefaultOverlapDays * 24 * time.Hour,
			MaxRetries:   1,
			RetryBackoff: 30 * time.Second,
		},
		Warehouse: WarehouseConfig{
			Dataset: "spending",
			Table:   "expenses",
		},
		API: APIConfig{
			Port:      "8080",
			QueueSize: 16,
		},
		Log: LogConfig{
			Level:  "info",
			Format: "console",
		},
	}
}
