package store

import (
	"context"
	"sync"

	"github.com/pavelanni/casesim/internal/model"
)

// Memory is an in-process Saves implementation holding the same JSON array
// layout as the SQL store.
type Memory struct {
	mu   sync.Mutex
	body string
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{}
}

// SetRaw replaces the stored body verbatim.
func (m *Memory) SetRaw(body string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.body = body
}

// Save appends e to the collection.
func (m *Memory) Save(_ context.Context, e model.SaveEntry) error {
	return m.update(func(all []model.SaveEntry) []model.SaveEntry { return append(all, e) })
}

// LoadAll returns every entry, most recent first.
func (m *Memory) LoadAll(_ context.Context) ([]model.SaveEntry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return newestFirst(decodeEntries(m.body)), nil
}

// Delete removes every entry with the given id.
func (m *Memory) Delete(_ context.Context, id string) error {
	return m.update(func(all []model.SaveEntry) []model.SaveEntry { return without(all, id) })
}

func (m *Memory) update(fn func([]model.SaveEntry) []model.SaveEntry) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	body, err := encodeEntries(fn(decodeEntries(m.body)))
	if err != nil {
		return err
	}
	m.body = body
	return nil
}
