package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/dvloznov/spending-tracker/internal/infra/postgres"
)

func TestMigrationSource(t *testing.T) {
	ctx := context.Background()

	embedded, err := postgres.LoadMigrations(ctx, migrationSource(""))
	if err != nil {
		t.Fatalf("loading embedded migrations: %v", err)
	}
	if len(embedded) == 0 {
		t.Fatal("Expected embedded migrations")
	}

	dir := t.TempDir()
	if err := os.WriteFile(filepath.Join(dir, "0001_only.sql"), []byte("SELECT 1;"), 0o644); err != nil {
		t.Fatalf("writing migration: %v", err)
	}
	got, err := postgres.LoadMigrations(ctx, migrationSource(dir))
	if err != nil {
		t.Fatalf("loading directory migrations: %v", err)
	}
	if len(got) != 1 || got[0].Name != "only" {
		t.Errorf("Expected the override directory to be used, got %+v", got)
	}
}
