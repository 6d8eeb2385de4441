package storage

import (
	"context"
	"embed"
	"fmt"
	"io/fs"
	"log"
	"path"
	"sort"
	"strings"

	"github.com/jmoiron/sqlx"
)

//go:embed migrations/*.sql
var migrationsFS embed.FS

type migration struct {
	Name    string
	Content string
}

// RunMigrations executes all pending database migrations.
// Migrations are SQL files in the migrations/ directory, named with a numeric prefix,
// and each one is applied in its own transaction together with its bookkeeping row.
func RunMigrations(ctx context.Context, db *DB) error {
	if _, err := db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS _migrations (
			name TEXT PRIMARY KEY,
			applied_at DATETIME DEFAULT CURRENT_TIMESTAMP
		)
	`); err != nil {
		return fmt.Errorf("creating migrations table: %w", err)
	}

	var appliedNames []string
	if err := db.SelectContext(ctx, &appliedNames, "SELECT name FROM _migrations"); err != nil {
		return fmt.Errorf("getting applied migrations: %w", err)
	}
	applied := make(map[string]bool, len(appliedNames))
	for _, name := range appliedNames {
		applied[name] = true
	}

	migrations, err := loadMigrations()
	if err != nil {
		return fmt.Errorf("reading migration files: %w", err)
	}

	for _, m := range migrations {
		if applied[m.Name] {
			continue
		}

		log.Printf("Applying migration: %s", m.Name)
		err := db.Transaction(ctx, func(tx *sqlx.Tx) error {
			if _, err := tx.ExecContext(ctx, m.Content); err != nil {
				return fmt.Errorf("executing SQL: %w", err)
			}
			if _, err := tx.ExecContext(ctx, "INSERT INTO _migrations (name) VALUES (?)", m.Name); err != nil {
				return fmt.Errorf("recording migration: %w", err)
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("applying migration %s: %w", m.Name, err)
		}
	}

	return nil
}

// loadMigrations returns the embedded migrations sorted by file name.
func loadMigrations() ([]migration, error) {
	entries, err := fs.ReadDir(migrationsFS, "migrations")
	if err != nil {
		return nil, err
	}

	var migrations []migration
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		content, err := migrationsFS.ReadFile(path.Join("migrations", e.Name()))
		if err != nil {
			return nil, fmt.Errorf("reading %s: %w", e.Name(), err)
		}
		migrations = append(migrations, migration{Name: e.Name(), Content: string(content)})
	}

	// Numeric prefix ensures correct order
	sort.Slice(migrations, func(i, j int) bool {
		return migrations[i].Name < migrations[j].Name
	})

	return migrations, nil
}
