// Package main loads books and users from a JSON fixture into the database.
//
// The fixture looks like:
//
//	{"books": [{"slug": "dune", "title": "Dune"}],
//	 "users": [{"username": "alice", "email": "alice@example.com", "is_staff": false}]}
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	jsoniter "github.com/json-iterator/go"

	"github.com/library-reservations/backend/internal/storage"
	"github.com/library-reservations/backend/internal/storage/models"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Fixture is the seed file layout.
type Fixture struct {
	Books []models.Book `json:"books"`
	Users []models.User `json:"users"`
}

func main() {
	dataDir := flag.String("data", "./data", "Data directory for SQLite database")
	file := flag.String("file", "seed.json", "Fixture file to load")
	flag.Parse()

	if err := run(context.Background(), filepath.Join(*dataDir, "library.db"), *file); err != nil {
		log.Fatalf("Seeding failed: %v", err)
	}
}

func run(ctx context.Context, dbPath, file string) error {
	raw, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("reading fixture: %w", err)
	}

	var fixture Fixture
	if err := json.Unmarshal(raw, &fixture); err != nil {
		return fmt.Errorf("parsing fixture: %w", err)
	}

	db, err := storage.NewDB(dbPath)
	if err != nil {
		return err
	}
	defer db.Close()

	if err := storage.RunMigrations(ctx, db); err != nil {
		return err
	}

	catalog := storage.NewCatalogRepository(db)
	for i := range fixture.Books {
		if err := catalog.UpsertBook(ctx, &fixture.Books[i]); err != nil {
			return fmt.Errorf("book %s: %w", fixture.Books[i].Slug, err)
		}
	}
	for i := range fixture.Users {
		if err := catalog.UpsertUser(ctx, &fixture.Users[i]); err != nil {
			return fmt.Errorf("user %s: %w", fixture.Users[i].Username, err)
		}
	}

	log.Printf("Seeded %d books and %d users into %s", len(fixture.Books), len(fixture.Users), dbPath)
	return nil
}
