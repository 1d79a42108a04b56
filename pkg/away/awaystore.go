// FILE: away/store.go

package away

import (
	"context"
)

// Store is the interface for persisting and querying away records. Every
// backend must behave identically for the same sequence of calls; which one is
// used is a deployment decision.
//
// No ordering is guaranteed by Read. Each call is atomic at the level the
// backend provides; nothing spans more than one call.
type Store interface {
	// Read returns every record matching the resolved filter, or an empty
	// slice when nothing matches.
	Read(ctx context.Context, filter Filter) ([]Record, error)
	// Write persists records, assigning ids to records that have none, and
	// returns the ids in input order. A duplicate id fails with ErrDuplicateID.
	Write(ctx context.Context, records []Record, mode WriteMode) ([]string, error)
	// Update fully replaces stored records with the same id. Unknown ids are
	// inserted when upsert is true and dropped otherwise. The count covers
	// replaced records only, never upserted ones.
	Update(ctx context.Context, records []Record, upsert bool) (int, error)
	// CancelActive moves every active record in scope to cancelled and returns
	// how many changed. A second identical call returns 0.
	CancelActive(ctx context.Context, scope Scope) (int, error)
	// Close releases the backend handle.
	Close() error
}

// PrepareWrite validates records and assigns missing ids. It rejects ids that
// repeat within the batch.
func PrepareWrite(records []Record) ([]Record, []string, error) {
	prepared := make([]Record, len(records))
	ids := make([]string, len(records))
	seen := make(map[string]struct{}, len(records))
	for i, r := range records {
		if err := r.Validate(); err != nil {
			return nil, nil, err
		}
		if r.ID == "" {
			r.ID = newID()
		}
		if r.Version == 0 {
			r.Version = RecordVersion
		}
		if _, dup := seen[r.ID]; dup {
			return nil, nil, &DuplicateIDError{ID: r.ID}
		}
		seen[r.ID] = struct{}{}
		prepared[i] = r
		ids[i] = r.ID
	}
	return prepared, ids, nil
}

// PrepareUpdate validates update input. Every record must carry an id.
func PrepareUpdate(records []Record) error {
	for _, r := range records {
		if r.ID == "" {
			return NewValidationError(FieldID, "update requires an id")
		}
		if err := r.Validate(); err != nil {
			return err
		}
	}
	return nil
}
