// FILE: away/inmem_store.go

package away

import (
	"context"
	"sync"
	"time"

	"github.com/illmade-knight/away-tracker/pkg/reconciliation"
)

// InMemoryStore is a thread-safe, in-memory implementation of the Store interface.
// Records are kept in insertion order so Update behaves like the log backend.
type InMemoryStore struct {
	sync.RWMutex
	records []Record
	now     func() time.Time
}

// NewInMemoryStore creates a new in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{now: time.Now}
}

// Read retrieves records matching the filter.
func (s *InMemoryStore) Read(ctx context.Context, filter Filter) ([]Record, error) {
	p, err := filter.Resolve(s.now())
	if err != nil {
		return nil, err
	}

	s.RLock()
	defer s.RUnlock()

	results := []Record{}
	for _, r := range s.records {
		if p.Matches(r) {
			results = append(results, r)
		}
	}
	return results, nil
}

// Write adds records, or replaces everything when mode is WriteOverwrite.
func (s *InMemoryStore) Write(ctx context.Context, records []Record, mode WriteMode) ([]string, error) {
	prepared, ids, err := PrepareWrite(records)
	if err != nil {
		return nil, err
	}

	s.Lock()
	defer s.Unlock()

	if mode == WriteOverwrite {
		s.records = prepared
		return ids, nil
	}

	existing := make(map[string]struct{}, len(s.records))
	for _, r := range s.records {
		existing[r.ID] = struct{}{}
	}
	for _, r := range prepared {
		if _, dup := existing[r.ID]; dup {
			return nil, &DuplicateIDError{ID: r.ID}
		}
	}
	s.records = append(s.records, prepared...)
	return ids, nil
}

// Update merges records into the store by id.
func (s *InMemoryStore) Update(ctx context.Context, records []Record, upsert bool) (int, error) {
	if err := PrepareUpdate(records); err != nil {
		return 0, err
	}

	s.Lock()
	defer s.Unlock()

	res := reconciliation.Merge(s.records, records, RecordID, Supersede, upsert)
	s.records = res.Items
	return res.Replaced, nil
}

// CancelActive flips the active records in scope to cancelled.
func (s *InMemoryStore) CancelActive(ctx context.Context, scope Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	s.Lock()
	defer s.Unlock()

	changed := 0
	for i, r := range s.records {
		if r.TeamID == scope.TeamID && r.UserID == scope.UserID && r.Status == StatusActive {
			s.records[i].Status = StatusCancelled
			changed++
		}
	}
	return changed, nil
}

// Close is a no-op for the in-memory store.
func (s *InMemoryStore) Close() error { return nil }

// RecordID is the merge key for records.
func RecordID(r Record) string { return r.ID }
