package service

import (
	"context"
	"sync"

	"logqueue/internal/model"
)

// fakeStore mimics a table with a unique event_id column.
type fakeStore struct {
	mu      sync.Mutex
	entries []model.LogEntry
	byID    map[string]struct{}
	lookups [][]string
	inserts [][]model.LogEntry

	// failInsert, when set, is consulted before each insert with the
	// 1-based call number; a non-nil result aborts that insert.
	failInsert func(call int, entries []model.LogEntry) error
	// failLookup runs after the lookup has read the stored ids.
	failLookup func(call int) error
}

func newFakeStore() *fakeStore {
	return &fakeStore{byID: make(map[string]struct{})}
}

func (f *fakeStore) ExistingEventIDs(ctx context.Context, ids []string) (map[string]struct{}, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.lookups = append(f.lookups, append([]string(nil), ids...))
	found := make(map[string]struct{})
	for _, id := range ids {
		if _, ok := f.byID[id]; ok {
			found[id] = struct{}{}
		}
	}
	if f.failLookup != nil {
		if err := f.failLookup(len(f.lookups)); err != nil {
			return nil, err
		}
	}
	return found, nil
}

func (f *fakeStore) InsertEntries(ctx context.Context, entries []model.LogEntry) (int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.inserts = append(f.inserts, append([]model.LogEntry(nil), entries...))
	if f.failInsert != nil {
		if err := f.failInsert(len(f.inserts), entries); err != nil {
			return 0, err
		}
	}
	var n int64
	for _, e := range entries {
		if _, ok := f.byID[e.EventID]; ok {
			continue
		}
		f.byID[e.EventID] = struct{}{}
		e.ID = int64(len(f.entries) + 1)
		f.entries = append(f.entries, e)
		n++
	}
	return n, nil
}

// seed stores entries directly, as a concurrent worker would.
func (f *fakeStore) seed(ids ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, id := range ids {
		f.byID[id] = struct{}{}
		f.entries = append(f.entries, model.LogEntry{ID: int64(len(f.entries) + 1), EventID: id})
	}
}

func (f *fakeStore) eventIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, len(f.entries))
	for i, e := range f.entries {
		ids[i] = e.EventID
	}
	return ids
}
