// Package store persists SaveEntry records as a single JSON array collection.
package store

import (
	"context"
	"database/sql"
	"fmt"
	"sync"

	"github.com/pavelanni/casesim/internal/model"

	_ "github.com/jackc/pgx/v5/stdlib" // driver: pgx
	_ "modernc.org/sqlite"             // driver: sqlite
)

// Saves is the persistence port for attempts.
type Saves interface {
	// Save appends e. It never merges or deduplicates by id.
	Save(ctx context.Context, e model.SaveEntry) error
	// LoadAll returns entries most recent first. Corrupted storage reads as empty.
	LoadAll(ctx context.Context) ([]model.SaveEntry, error)
	// Delete removes every entry with id. Unknown ids are a no-op.
	Delete(ctx context.Context, id string) error
}

// Driver selects the SQL backend.
type Driver string

const (
	DriverSQLite   Driver = "sqlite"
	DriverPostgres Driver = "postgres"
)

// SavesCollection is the collection name attempts are stored under.
const SavesCollection = "saves"

// Store keeps named collections in a SQL table.
type Store struct {
	db     *sql.DB
	driver Driver
	mu     sync.Mutex
}

// New opens the database and ensures the schema exists.
func New(driver Driver, dsn string) (*Store, error) {
	var drvName string
	switch driver {
	case DriverSQLite:
		drvName = "sqlite"
		if dsn == "" {
			dsn = "casesim.db"
		}
		if dsn != ":memory:" {
			dsn += "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
		}
	case DriverPostgres:
		drvName = "pgx"
		if dsn == "" {
			dsn = "postgres://localhost:5432/casesim?sslmode=disable"
		}
	default:
		return nil, fmt.Errorf("unsupported driver: %s", driver)
	}

	db, err := sql.Open(drvName, dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if driver == DriverSQLite {
		// One connection keeps :memory: databases alive and serializes writers.
		db.SetMaxOpenConns(1)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	s := &Store{db: db, driver: driver}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

// Close closes the underlying database.
func (s *Store) Close() error {
	return s.db.Close()
}

func (s *Store) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS collections (
		name TEXT PRIMARY KEY,
		body TEXT NOT NULL,
		updated_at BIGINT NOT NULL
	);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Save appends e to the saves collection.
func (s *Store) Save(ctx context.Context, e model.SaveEntry) error {
	return s.update(ctx, SavesCollection, func(all []model.SaveEntry) []model.SaveEntry {
		return append(all, e)
	})
}

// LoadAll returns all saved entries, most recent first.
func (s *Store) LoadAll(ctx context.Context) ([]model.SaveEntry, error) {
	body, err := s.GetCollection(ctx, SavesCollection)
	if err != nil {
		return nil, err
	}
	return newestFirst(decodeEntries(body)), nil
}

// Delete removes entries with the given id.
func (s *Store) Delete(ctx context.Context, id string) error {
	return s.update(ctx, SavesCollection, func(all []model.SaveEntry) []model.SaveEntry {
		return without(all, id)
	})
}

func (s *Store) update(ctx context.Context, name string, fn func([]model.SaveEntry) []model.SaveEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	query := `SELECT body FROM collections WHERE name = $1`
	if s.driver == DriverPostgres {
		query += ` FOR UPDATE`
	}
	var body string
	err = tx.QueryRowContext(ctx, query, name).Scan(&body)
	if err != nil && err != sql.ErrNoRows {
		return fmt.Errorf("read collection %s: %w", name, err)
	}

	data, err := encodeEntries(fn(decodeEntries(body)))
	if err != nil {
		return err
	}
	if err := putCollection(ctx, tx, name, data); err != nil {
		return err
	}
	return tx.Commit()
}
