package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"github.com/pavelanni/casesim/internal/model"
)

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// GetCollection returns the raw body of a collection.
// Returns empty string and nil error if the collection is missing.
func (s *Store) GetCollection(ctx context.Context, name string) (string, error) {
	var body string
	err := s.db.QueryRowContext(ctx, `SELECT body FROM collections WHERE name = $1`, name).Scan(&body)
	if err == sql.ErrNoRows {
		return "", nil
	}
	return body, err
}

// SetCollection overwrites the raw body of a collection.
func (s *Store) SetCollection(ctx context.Context, name, body string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return putCollection(ctx, s.db, name, body)
}

func putCollection(ctx context.Context, db execer, name, body string) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO collections (name, body, updated_at) VALUES ($1, $2, $3)
		 ON CONFLICT (name) DO UPDATE SET body = EXCLUDED.body, updated_at = EXCLUDED.updated_at`,
		name, body, time.Now().UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("write collection %s: %w", name, err)
	}
	return nil
}

// decodeEntries parses a stored JSON array. Anything unparseable reads as an
// empty collection.
func decodeEntries(body string) []model.SaveEntry {
	if body == "" {
		return nil
	}
	var all []model.SaveEntry
	if err := json.Unmarshal([]byte(body), &all); err != nil {
		slog.Warn("saved attempts are corrupted, treating as empty", "error", err)
		return nil
	}
	return all
}

func encodeEntries(all []model.SaveEntry) (string, error) {
	if all == nil {
		all = []model.SaveEntry{}
	}
	data, err := json.Marshal(all)
	if err != nil {
		return "", fmt.Errorf("encode saves: %w", err)
	}
	return string(data), nil
}

func newestFirst(all []model.SaveEntry) []model.SaveEntry {
	out := make([]model.SaveEntry, len(all))
	for i, e := range all {
		out[len(all)-1-i] = e
	}
	return out
}

func without(all []model.SaveEntry, id string) []model.SaveEntry {
	out := all[:0:0]
	for _, e := range all {
		if e.ID != id {
			out = append(out, e)
		}
	}
	return out
}

// Find returns the entry with id, or nil when there is none.
func Find(ctx context.Context, s Saves, id string) (*model.SaveEntry, error) {
	all, err := s.LoadAll(ctx)
	if err != nil {
		return nil, err
	}
	for i := range all {
		if all[i].ID == id {
			return &all[i], nil
		}
	}
	return nil, nil
}
