package main

import (
	"context"
	"flag"
	"io/fs"
	"os"

	"github.com/dvloznov/spending-tracker/internal/infra/postgres"
	"github.com/dvloznov/spending-tracker/internal/logger"
)

var (
	databaseURL   = flag.String("database-url", os.Getenv("SPENDING_DATABASE_URL"), "Postgres connection string (or set SPENDING_DATABASE_URL)")
	appliedBy     = flag.String("applied-by", "migrate-cli", "Name of the tool applying migrations")
	migrationsDir = flag.String("migrations", "", "Directory of NNNN_name.sql files (defaults to the embedded set)")
)

func main() {
	flag.Parse()

	log := logger.New()
	ctx := logger.WithContext(context.Background(), log)

	if *databaseURL == "" {
		log.Fatal().Msg("-database-url is required")
	}

	db, err := postgres.Open(*databaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to connect to database")
	}
	defer postgres.Close(db)

	migrations, err := postgres.LoadMigrations(ctx, migrationSource(*migrationsDir))
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to read migrations")
	}
	log.Info().Int("count", len(migrations)).Msg("Found migration files")

	applied, err := postgres.ApplyMigrations(ctx, db, migrations, *appliedBy)
	if err != nil {
		log.Fatal().Err(err).Int("applied", applied).Msg("Migration failed")
	}

	if applied == 0 {
		log.Info().Msg("No new migrations to apply. Database is up to date.")
		return
	}
	log.Info().Int("applied", applied).Msg("Successfully applied migrations")
}

// migrationSource picks the override directory when given, else the
// migrations compiled into the binary.
func migrationSource(dir string) fs.FS {
	if dir == "" {
		return postgres.Migrations()
	}
	return os.DirFS(dir)
}
