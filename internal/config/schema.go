package config

import "time"

// Config is the full service configuration.
type Config struct {
	Database  DatabaseConfig  `yaml:"database" mapstructure:"database"`
	Source    SourceConfig    `yaml:"source" mapstructure:"source"`
	Backfill  BackfillConfig  `yaml:"backfill" mapstructure:"backfill"`
	Sync      SyncConfig      `yaml:"sync" mapstructure:"sync"`
	Archive   ArchiveConfig   `yaml:"archive" mapstructure:"archive"`
	Warehouse WarehouseConfig `yaml:"warehouse" mapstructure:"warehouse"`
	API       APIConfig       `yaml:"api" mapstructure:"api"`
	Log       LogConfig       `yaml:"log" mapstructure:"log"`
}

// DatabaseConfig points at the relational store. A "sqlite:" prefix selects
// a local SQLite file.
type DatabaseConfig struct {
	URL string `yaml:"url" mapstructure:"url"`
}

// SourceConfig configures the registry API client.
type SourceConfig struct {
	BaseURL         string        `yaml:"base_url" mapstructure:"base_url"`
	OrgID           string        `yaml:"org_id" mapstructure:"org_id"`
	OrgTaxID        string        `yaml:"org_tax_id" mapstructure:"org_tax_id"`
	PageSize        int           `yaml:"page_size" mapstructure:"page_size"`
	RequestDelay    time.Duration `yaml:"request_delay" mapstructure:"request_delay"`
	Timeout         time.Duration `yaml:"timeout" mapstructure:"timeout"`
	DefaultCurrency string        `yaml:"default_currency" mapstructure:"default_currency"`
}

// BackfillConfig configures historical runs.
type BackfillConfig struct {
	StartDate    string `yaml:"start_date" mapstructure:"start_date"`
	WindowMonths int    `yaml:"window_months" mapstructure:"window_months"`
}

// SyncConfig configures incremental runs and their retries.
type SyncConfig struct {
	Lookback     time.Duration `yaml:"lookback" mapstructure:"lookback"`
	Overlap      time.Duration `yaml:"overlap" mapstructure:"overlap"`
	MaxRetries   int           `yaml:"max_retries" mapstructure:"max_retries"`
	RetryBackoff time.Duration `yaml:"retry_backoff" mapstructure:"retry_backoff"`
}

// ArchiveConfig enables the raw page archive when Bucket is set.
type ArchiveConfig struct {
	Bucket string `yaml:"bucket" mapstructure:"bucket"`
	Prefix string `yaml:"prefix" mapstructure:"prefix"`
}

// WarehouseConfig enables the BigQuery mirror when Project is set.
type WarehouseConfig struct {
	Project string `yaml:"project" mapstructure:"project"`
	Dataset string `yaml:"dataset" mapstructure:"dataset"`
	Table   string `yaml:"table" mapstructure:"table"`
}

// APIConfig configures the trigger server.
type APIConfig struct {
	Port          string `yaml:"port" mapstructure:"port"`
	TriggerSecret string `yaml:"trigger_secret" mapstructure:"trigger_secret"`
	QueueSize     int    `yaml:"queue_size" mapstructure:"queue_size"`
}

// LogConfig selects level and output format (console or json).
type LogConfig struct {
	Level  string `yaml:"level" mapstructure:"level"`
	Format string `yaml:"format" mapstructure:"format"`
}
