package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/doug-martin/goqu/v9"
	_ "github.com/doug-martin/goqu/v9/dialect/sqlite3"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"github.com/mattn/go-sqlite3"
)

// Queryable represents a database handle that can execute queries.
// Both *sqlx.DB and *sqlx.Tx implement this interface.
type Queryable interface {
	sqlx.ExtContext
}

// dialect builds SQLite statements with ? placeholders.
var dialect = goqu.Dialect("sqlite3")

// Sentinel errors for store-level constraint violations.
var (
	ErrReservationOverlap = errors.New("reservation overlaps an active reservation")
	ErrStatusChanged      = errors.New("record status changed concurrently")
	ErrOpenGroupExists    = errors.New("user already has an open strike group")
	ErrInsufficientCredit = errors.New("not enough credits")
	ErrDuplicate          = errors.New("record already exists")
)

// BaseRepository provides common functionality for all repositories.
type BaseRepository struct {
	db *DB
	q  Queryable
}

// NewBaseRepository creates a new base repository with the given database connection.
func NewBaseRepository(db *DB) BaseRepository {
	return BaseRepository{db: db, q: db}
}

// withTx returns a copy of the repository that runs its statements on tx.
func (r BaseRepository) withTx(tx *sqlx.Tx) BaseRepository {
	return BaseRepository{db: r.db, q: tx}
}

// DB returns the underlying database connection.
func (r *BaseRepository) DB() *DB {
	return r.db
}

// Q returns the handle statements run on: the database or the bound transaction.
func (r *BaseRepository) Q() Queryable {
	return r.q
}

// Now returns the current time in UTC for database timestamps.
func (r *BaseRepository) Now() time.Time {
	return time.Now().UTC()
}

// getOne runs a built select and scans a single row into dest.
// It reports false when no row matched.
func (r *BaseRepository) getOne(ctx context.Context, dest any, ds *goqu.SelectDataset) (bool, error) {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return false, fmt.Errorf("building query: %w", err)
	}
	if err := sqlx.GetContext(ctx, r.q, dest, query, args...); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

// selectAll runs a built select and scans every row into dest.
func (r *BaseRepository) selectAll(ctx context.Context, dest any, ds *goqu.SelectDataset) error {
	query, args, err := ds.Prepared(true).ToSQL()
	if err != nil {
		return fmt.Errorf("building query: %w", err)
	}
	return sqlx.SelectContext(ctx, r.q, dest, query, args...)
}

// count runs a built COUNT(*) select.
func (r *BaseRepository) count(ctx context.Context, ds *goqu.SelectDataset) (int, error) {
	query, args, err := ds.Select(goqu.COUNT(goqu.Star())).Prepared(true).ToSQL()
	if err != nil {
		return 0, fmt.Errorf("building query: %w", err)
	}
	var n int
	if err := sqlx.GetContext(ctx, r.q, &n, query, args...); err != nil {
		return 0, err
	}
	return n, nil
}

// GenerateID creates a new UUID for use as a primary key.
func GenerateID() string {
	return uuid.NewString()
}

// isTriggerAbort reports whether err was raised by a trigger guard.
func isTriggerAbort(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintTrigger
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY violation.
func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique || sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey
}
