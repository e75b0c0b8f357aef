package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"cloud.google.com/go/civil"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	want := Default()
	if cfg.Source != want.Source || cfg.Backfill != want.Backfill || cfg.Sync != want.Sync || cfg.API != want.API {
		t.Errorf("Expected defaults, got %+v", cfg)
	}
	if cfg.LookbackDays() != 7 || cfg.OverlapDays() != 2 {
		t.Errorf("Expected 7/2 days, got %d/%d", cfg.LookbackDays(), cfg.OverlapDays())
	}
	if cfg.ArchivePrefix() != "6135" {
		t.Errorf("Expected archive prefix to default to org id, got %q", cfg.ArchivePrefix())
	}
}

func TestLoad_FileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := `
database:
  url: postgres://app:secret@db:5432/spending
source:
  page_size: 100
  request_delay: 1s
backfill:
  start_date: "2021-01-01"
archive:
  bucket: raw-pages
`
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("SPENDING_SOURCE_PAGE_SIZE", "250")
	t.Setenv("SPENDING_API_TRIGGER_SECRET", "s3cret")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}
	if cfg.Source.PageSize != 250 {
		t.Errorf("Expected env to win over file, got page size %d", cfg.Source.PageSize)
	}
	if cfg.Source.RequestDelay != time.Second {
		t.Errorf("Expected 1s delay from file, got %s", cfg.Source.RequestDelay)
	}
	if cfg.Source.OrgID != "6135" {
		t.Errorf("Expected default org id kept, got %q", cfg.Source.OrgID)
	}
	if cfg.API.TriggerSecret != "s3cret" || cfg.Archive.Bucket != "raw-pages" {
		t.Errorf("Unexpected api/archive %+v / %+v", cfg.API, cfg.Archive)
	}
	start, err := cfg.BackfillStart()
	if err != nil || start != (civil.Date{Year: 2021, Month: time.January, Day: 1}) {
		t.Errorf("Unexpected backfill start %v / %v", start, err)
	}
	if err := cfg.Validate(); err != nil {
		t.Errorf("Expected valid config, got %v", err)
	}

	red := cfg.Redacted()
	if red.API.TriggerSecret != "REDACTED" || strings.Contains(red.Database.URL, "secret") {
		t.Errorf("Expected secrets redacted, got %+v", red)
	}
	if red.Database.URL != "postgres://app:REDACTED@db:5432/spending" {
		t.Errorf("Unexpected redacted url %q", red.Database.URL)
	}
	if cfg.API.TriggerSecret != "s3cret" {
		t.Error("Redacted must not modify the original")
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("Expected error for missing config file")
	}
}

func TestValidate(t *testing.T) {
	valid := func() *Config {
		c := Default()
		c.Database.URL = "sqlite:test.db"
		return c
	}

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "valid", mutate: func(c *Config) {}},
		{name: "missing database", mutate: func(c *Config) { c.Database.URL = "" }, wantErr: "database.url"},
		{name: "page size zero", mutate: func(c *Config) { c.Source.PageSize = 0 }, wantErr: "page_size"},
		{name: "page size too large", mutate: func(c *Config) { c.Source.PageSize = 501 }, wantErr: "page_size"},
		{name: "negative delay", mutate: func(c *Config) { c.Source.RequestDelay = -time.Second }, wantErr: "request_delay"},
		{name: "window months", mutate: func(c *Config) { c.Backfill.WindowMonths = 0 }, wantErr: "window_months"},
		{name: "bad start date", mutate: func(c *Config) { c.Backfill.StartDate = "2019-13-01" }, wantErr: "start_date"},
		{name: "negative overlap", mutate: func(c *Config) { c.Sync.Overlap = -time.Hour }, wantErr: "sync durations"},
		{name: "warehouse without dataset", mutate: func(c *Config) { c.Warehouse.Project = "p"; c.Warehouse.Dataset = "" }, wantErr: "warehouse.dataset"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := valid()
			tt.mutate(c)
			err := c.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected valid, got %v", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %v", tt.wantErr, err)
			}
		})
	}
}

func TestRedactURL(t *testing.T) {
	tests := []struct{ in, want string }{
		{"postgres://u:p@h/db", "postgres://u:REDACTED@h/db"},
		{"postgres://u@h/db", "postgres://u@h/db"},
		{"sqlite:local.db", "sqlite:local.db"},
		{"host=db user=u", "host=db user=u"},
	}
	for _, tt := range tests {
		if got := redactURL(tt.in); got != tt.want {
			t.Errorf("redactURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}
