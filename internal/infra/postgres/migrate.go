package postgres

import (
	"context"
	"crypto/sha256"
	"embed"
	"fmt"
	"io/fs"
	"regexp"
	"sort"
	"strconv"
	"time"

	"github.com/dvloznov/spending-tracker/internal/logger"
	"gorm.io/gorm"
)

//go:embed migrations/*.sql
var embeddedMigrations embed.FS

// Migrations returns the schema migrations shipped with the binary.
func Migrations() fs.FS {
	sub, err := fs.Sub(embeddedMigrations, "migrations")
	if err != nil {
		panic(err)
	}
	return sub
}

// Migration is one versioned SQL file.
type Migration struct {
	Version  int
	Name     string
	Filename string
	SQL      string
	Checksum string
}

// AppliedMigration is a row of schema_migrations.
type AppliedMigration struct {
	Version   int       `gorm:"column:version;primaryKey;autoIncrement:false"`
	Name      string    `gorm:"column:name;not null"`
	AppliedAt time.Time `gorm:"column:applied_at;not null"`
	Checksum  string    `gorm:"column:checksum"`
	AppliedBy string    `gorm:"column:applied_by"`
}

func (AppliedMigration) TableName() string { return "schema_migrations" }

// migrationPattern matches files such as 0001_core_tables.sql.
var migrationPattern = regexp.MustCompile(`^(\d{4})_(.+)\.sql$`)

// LoadMigrations reads every NNNN_name.sql file at the root of fsys, ordered
// by version. Files with other names are skipped.
func LoadMigrations(ctx context.Context, fsys fs.FS) ([]Migration, error) {
	log := logger.FromContext(ctx)

	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("LoadMigrations: reading directory: %w", err)
	}

	seen := make(map[int]string)
	var migrations []Migration
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		m := migrationPattern.FindStringSubmatch(e.Name())
		if m == nil {
			log.Debug().Str("file", e.Name()).Msg("skipping file with invalid migration name")
			continue
		}
		version, err := strconv.Atoi(m[1])
		if err != nil {
			return nil, fmt.Errorf("LoadMigrations: parsing version of %s: %w", e.Name(), err)
		}
		if prev, dup := seen[version]; dup {
			return nil, fmt.Errorf("LoadMigrations: version %04d used by %s and %s", version, prev, e.Name())
		}
		seen[version] = e.Name()

		content, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("LoadMigrations: reading %s: %w", e.Name(), err)
		}
		migrations = append(migrations, Migration{
			Version:  version,
			Name:     m[2],
			Filename: e.Name(),
			SQL:      string(content),
			Checksum: fmt.Sprintf("%x", sha256.Sum256(content)),
		})
	}

	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Version < migrations[j].Version
	})
	return migrations, nil
}

// ApplyMigrations runs each pending migration in its own transaction together
// with its schema_migrations record, and returns how many were applied. A
// changed checksum on an applied migration is logged, not re-applied.
func ApplyMigrations(ctx context.Context, db *gorm.DB, migrations []Migration, appliedBy string) (int, error) {
	log := logger.FromContext(ctx)

	if err := db.WithContext(ctx).AutoMigrate(&AppliedMigration{}); err != nil {
		return 0, fmt.Errorf("ApplyMigrations: ensuring schema_migrations: %w", err)
	}

	var applied []AppliedMigration
	if err := db.WithContext(ctx).Order("version").Find(&applied).Error; err != nil {
		return 0, fmt.Errorf("ApplyMigrations: reading applied migrations: %w", err)
	}
	byVersion := make(map[int]AppliedMigration, len(applied))
	for _, a := range applied {
		byVersion[a.Version] = a
	}

	count := 0
	for _, m := range migrations {
		if a, ok := byVersion[m.Version]; ok {
			if a.Checksum != "" && a.Checksum != m.Checksum {
				log.Warn().
					Str("migration", m.Filename).
					Str("applied_checksum", a.Checksum).
					Str("file_checksum", m.Checksum).
					Msg("applied migration has changed on disk")
			}
			log.Debug().Str("migration", m.Filename).Msg("already applied")
			continue
		}

		err := db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if err := tx.Exec(m.SQL).Error; err != nil {
				return fmt.Errorf("executing: %w", err)
			}
			rec := AppliedMigration{
				Version:   m.Version,
				Name:      m.Name,
				AppliedAt: time.Now().UTC(),
				Checksum:  m.Checksum,
				AppliedBy: appliedBy,
			}
			if err := tx.Create(&rec).Error; err != nil {
				return fmt.Errorf("recording: %w", err)
			}
			return nil
		})
		if err != nil {
			return count, fmt.Errorf("ApplyMigrations: %s: %w", m.Filename, err)
		}
		log.Info().Str("migration", m.Filename).Msg("applied migration")
		count++
	}
	return count, nil
}
