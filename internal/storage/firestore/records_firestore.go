// Package firestore provides a persistent away.Store using Google Cloud Firestore.
package firestore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/illmade-knight/away-tracker/pkg/reconciliation"
	"google.golang.org/api/iterator"
	"google.golang.org/api/option"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

// DefaultCollection is the collection records live in unless configured otherwise.
const DefaultCollection = "afk_records"

// maxInValues is the largest value set Firestore accepts for a single "in" clause.
const maxInValues = 30

// recordDocument is the private struct that is actually stored in Firestore.
// Field names match the record attributes verbatim.
type recordDocument struct {
	ID            string    `firestore:"id"`
	TeamID        string    `firestore:"team_id"`
	ChannelID     string    `firestore:"channel_id"`
	UserID        string    `firestore:"user_id"`
	Command       string    `firestore:"command"`
	Text          string    `firestore:"text"`
	TriggerID     string    `firestore:"trigger_id"`
	StartDatetime time.Time `firestore:"start_datetime"`
	EndDatetime   time.Time `firestore:"end_datetime"`
	Status        string    `firestore:"status"`
	Created       time.Time `firestore:"created"`
	Version       int       `firestore:"version"`
}

func toDocument(r away.Record) recordDocument {
	return recordDocument{
		ID:            r.ID,
		TeamID:        r.TeamID,
		ChannelID:     r.ChannelID,
		UserID:        r.UserID,
		Command:       r.Command,
		Text:          r.Text,
		TriggerID:     r.TriggerID,
		StartDatetime: away.Instant(r.StartDatetime),
		EndDatetime:   away.Instant(r.EndDatetime),
		Status:        string(r.Status),
		Created:       away.Instant(r.Created),
		Version:       r.Version,
	}
}

func (d recordDocument) toRecord() away.Record {
	return away.Record{
		ID:            d.ID,
		TeamID:        d.TeamID,
		ChannelID:     d.ChannelID,
		UserID:        d.UserID,
		Command:       d.Command,
		Text:          d.Text,
		TriggerID:     d.TriggerID,
		StartDatetime: away.Instant(d.StartDatetime),
		EndDatetime:   away.Instant(d.EndDatetime),
		Status:        away.Status(d.Status),
		Created:       away.Instant(d.Created),
		Version:       d.Version,
	}.Decoded()
}

// RecordStore is a concrete implementation of the away.Store interface using
// Firestore. Each record is one document keyed by its id.
//
// Write, Update and CancelActive each run in a single transaction, which
// Firestore caps at 500 writes; an OVERWRITE of a larger collection fails.
type RecordStore struct {
	client     *firestore.Client
	collection *firestore.CollectionRef
	ownsClient bool
	now        func() time.Time
}

// NewRecordStore creates a Firestore-backed store on a caller-owned client.
// Close leaves the client open.
func NewRecordStore(client *firestore.Client, collection string) *RecordStore {
	if collection == "" {
		collection = DefaultCollection
	}
	return &RecordStore{
		client:     client,
		collection: client.Collection(collection),
		now:        time.Now,
	}
}

// Open creates a client for projectID and a store that owns it.
func Open(ctx context.Context, projectID, collection string, opts ...option.ClientOption) (*RecordStore, error) {
	client, err := firestore.NewClient(ctx, projectID, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create firestore client: %w", err)
	}
	store := NewRecordStore(client, collection)
	store.ownsClient = true
	return store, nil
}

// Close releases the client when the store created it.
func (s *RecordStore) Close() error {
	if !s.ownsClient {
		return nil
	}
	return s.client.Close()
}

// BuildQuery translates a predicate into a Firestore query. Single values use
// "==", and at most one multi-valued set is pushed down as "in"; whatever the
// query cannot express is left to Predicate.Matches on the results.
func (s *RecordStore) BuildQuery(p away.Predicate) firestore.Query {
	q := s.collection.Query
	inUsed := false
	sets := []struct {
		field  string
		values []string
	}{
		{away.FieldID, p.IDs},
		{away.FieldTeamID, p.TeamIDs},
		{away.FieldUserID, p.UserIDs},
		{away.FieldStatus, p.StatusStrings()},
	}
	for _, set := range sets {
		switch {
		case len(set.values) == 0:
		case len(set.values) == 1:
			q = q.Where(set.field, "==", set.values[0])
		case !inUsed && len(set.values) <= maxInValues:
			q = q.Where(set.field, "in", set.values)
			inUsed = true
		}
	}
	return q.Where(away.FieldEndDatetime, ">=", p.ReadFrom)
}

// Read retrieves records matching the filter.
func (s *RecordStore) Read(ctx context.Context, filter away.Filter) ([]away.Record, error) {
	p, err := filter.Resolve(s.now())
	if err != nil {
		return nil, err
	}

	iter := s.BuildQuery(p).Documents(ctx)
	defer iter.Stop()

	results := []away.Record{}
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to query away records: %w", err)
		}
		var rd recordDocument
		if err := doc.DataTo(&rd); err != nil {
			return nil, err
		}
		if r := rd.toRecord(); p.Matches(r) {
			results = append(results, r)
		}
	}
	return results, nil
}

// Write creates one document per record in a single transaction. With
// WriteOverwrite every document outside the new set is deleted and the rest
// are replaced in place, since a commit may touch each document only once.
func (s *RecordStore) Write(ctx context.Context, records []away.Record, mode away.WriteMode) ([]string, error) {
	prepared, ids, err := away.PrepareWrite(records)
	if err != nil {
		return nil, err
	}
	if mode == away.WriteAppend && len(prepared) == 0 {
		return ids, nil
	}

	refs := make([]*firestore.DocumentRef, len(prepared))
	for i, r := range prepared {
		refs[i] = s.collection.Doc(r.ID)
	}

	err = s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		if mode == away.WriteOverwrite {
			existing, err := tx.Documents(s.collection).GetAll()
			if err != nil {
				return err
			}
			keep := make(map[string]struct{}, len(ids))
			for _, id := range ids {
				keep[id] = struct{}{}
			}
			for _, doc := range existing {
				if _, ok := keep[doc.Ref.ID]; ok {
					continue
				}
				if err := tx.Delete(doc.Ref); err != nil {
					return err
				}
			}
		} else {
			snaps, err := tx.GetAll(refs)
			if err != nil {
				return err
			}
			for _, snap := range snaps {
				if snap.Exists() {
					return &away.DuplicateIDError{ID: snap.Ref.ID}
				}
			}
		}
		for i, r := range prepared {
			var err error
			if mode == away.WriteOverwrite {
				err = tx.Set(refs[i], toDocument(r))
			} else {
				err = tx.Create(refs[i], toDocument(r))
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, mapError(err)
	}
	return ids, nil
}

// Update replaces documents by id in one transaction. A stored cancelled
// record stays cancelled.
func (s *RecordStore) Update(ctx context.Context, records []away.Record, upsert bool) (int, error) {
	if err := away.PrepareUpdate(records); err != nil {
		return 0, err
	}
	latest := reconciliation.Latest(records, away.RecordID)
	if len(latest) == 0 {
		return 0, nil
	}

	refs := make([]*firestore.DocumentRef, len(latest))
	for i, r := range latest {
		refs[i] = s.collection.Doc(r.ID)
	}

	replaced := 0
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		replaced = 0
		snaps, err := tx.GetAll(refs)
		if err != nil {
			return err
		}
		for i, snap := range snaps {
			r := latest[i]
			if !snap.Exists() {
				if !upsert {
					continue
				}
				if err := tx.Set(refs[i], toDocument(r)); err != nil {
					return err
				}
				continue
			}
			var stored recordDocument
			if err := snap.DataTo(&stored); err != nil {
				return err
			}
			r = away.Supersede(stored.toRecord(), r)
			if err := tx.Set(refs[i], toDocument(r)); err != nil {
				return err
			}
			replaced++
		}
		return nil
	})
	if err != nil {
		return 0, mapError(err)
	}
	return replaced, nil
}

// CancelActive sets status to cancelled on the active documents in scope.
func (s *RecordStore) CancelActive(ctx context.Context, scope away.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	q := s.collection.
		Where(away.FieldTeamID, "==", scope.TeamID).
		Where(away.FieldUserID, "==", scope.UserID).
		Where(away.FieldStatus, "==", string(away.StatusActive))

	changed := 0
	err := s.client.RunTransaction(ctx, func(ctx context.Context, tx *firestore.Transaction) error {
		changed = 0
		docs, err := tx.Documents(q).GetAll()
		if err != nil {
			return err
		}
		for _, doc := range docs {
			err := tx.Update(doc.Ref, []firestore.Update{
				{Path: away.FieldStatus, Value: string(away.StatusCancelled)},
			})
			if err != nil {
				return err
			}
			changed++
		}
		return nil
	})
	if err != nil {
		return 0, mapError(err)
	}
	return changed, nil
}

// mapError turns Firestore status codes into away sentinels.
func mapError(err error) error {
	var dup *away.DuplicateIDError
	if errors.As(err, &dup) {
		return err
	}
	if status.Code(err) == codes.AlreadyExists {
		return fmt.Errorf("%w: %v", away.ErrDuplicateID, err)
	}
	return fmt.Errorf("firestore: %w", err)
}
