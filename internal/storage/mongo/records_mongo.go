// Package mongo provides a persistent away.Store on MongoDB.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/illmade-knight/away-tracker/pkg/reconciliation"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Defaults used when the database or collection name is not configured.
const (
	DefaultDatabase   = "afk_slackbot"
	DefaultCollection = "afk_records"
)

// recordDocument is the stored shape; field names match the record attributes.
// The driver assigns _id; lookups go through the unique index on id.
type recordDocument struct {
	ID            string    `bson:"id"`
	TeamID        string    `bson:"team_id"`
	ChannelID     string    `bson:"channel_id"`
	UserID        string    `bson:"user_id"`
	Command       string    `bson:"command"`
	Text          string    `bson:"text"`
	TriggerID     string    `bson:"trigger_id"`
	StartDatetime time.Time `bson:"start_datetime"`
	EndDatetime   time.Time `bson:"end_datetime"`
	Status        string    `bson:"status"`
	Created       time.Time `bson:"created"`
	Version       int       `bson:"version"`
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

// RecordStore implements away.Store on a MongoDB collection.
//
// Each call is one native operation, except that Write pre-checks ids before
// InsertMany and OVERWRITE is DeleteMany followed by InsertMany. Neither pair
// is atomic; the unique index on id still rejects a duplicate that slips
// between the check and the insert.
type RecordStore struct {
	client     *mongo.Client
	collection *mongo.Collection
	ownsClient bool
	now        func() time.Time
}

// NewRecordStore wraps a caller-owned collection and ensures its indexes.
func NewRecordStore(ctx context.Context, collection *mongo.Collection) (*RecordStore, error) {
	s := &RecordStore{
		client:     collection.Database().Client(),
		collection: collection,
		now:        time.Now,
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

// Open connects to uri and returns a store that owns the connection.
func Open(ctx context.Context, uri, database, collection string) (*RecordStore, error) {
	if database == "" {
		database = DefaultDatabase
	}
	if collection == "" {
		collection = DefaultCollection
	}

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongodb: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("failed to ping mongodb: %w", err)
	}

	s, err := NewRecordStore(ctx, client.Database(database).Collection(collection))
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	s.ownsClient = true
	return s, nil
}

// Close disconnects when the store opened the connection itself.
func (s *RecordStore) Close() error {
	if !s.ownsClient {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *RecordStore) ensureIndexes(ctx context.Context) error {
	_, err := s.collection.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: away.FieldID, Value: 1}},
			Options: options.Index().SetUnique(true).SetName("uniq_record_id"),
		},
		{
			Keys: bson.D{
				{Key: away.FieldTeamID, Value: 1},
				{Key: away.FieldUserID, Value: 1},
				{Key: away.FieldStatus, Value: 1},
			},
			Options: options.Index().SetName("record_scope"),
		},
	})
	if err != nil {
		return fmt.Errorf("failed to create indexes: %w", err)
	}
	return nil
}

// Translate renders a resolved predicate as a Mongo filter document.
func Translate(p away.Predicate) bson.D {
	filter := bson.D{}
	in := func(field string, values []string) {
		if len(values) > 0 {
			filter = append(filter, bson.E{Key: field, Value: bson.D{{Key: "$in", Value: values}}})
		}
	}
	in(away.FieldID, p.IDs)
	in(away.FieldTeamID, p.TeamIDs)
	in(away.FieldUserID, p.UserIDs)
	in(away.FieldStatus, p.StatusStrings())
	filter = append(filter, bson.E{Key: away.FieldEndDatetime, Value: bson.D{{Key: "$gte", Value: p.ReadFrom}}})
	return filter
}

// Read returns every record matching the filter.
func (s *RecordStore) Read(ctx context.Context, filter away.Filter) ([]away.Record, error) {
	p, err := filter.Resolve(s.now())
	if err != nil {
		return nil, err
	}

	cursor, err := s.collection.Find(ctx, Translate(p))
	if err != nil {
		return nil, fmt.Errorf("failed to query away records: %w", err)
	}
	var docs []recordDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode away records: %w", err)
	}

	results := make([]away.Record, 0, len(docs))
	for _, d := range docs {
		results = append(results, d.toRecord())
	}
	return results, nil
}

// Write inserts records. WriteOverwrite deletes every document first.
func (s *RecordStore) Write(ctx context.Context, records []away.Record, mode away.WriteMode) ([]string, error) {
	prepared, ids, err := away.PrepareWrite(records)
	if err != nil {
		return nil, err
	}

	if mode == away.WriteOverwrite {
		if _, err := s.collection.DeleteMany(ctx, bson.D{}); err != nil {
			return nil, fmt.Errorf("failed to clear away records: %w", err)
		}
	} else if len(ids) > 0 {
		var clash recordDocument
		err := s.collection.FindOne(ctx, bson.D{{Key: away.FieldID, Value: bson.D{{Key: "$in", Value: ids}}}}).Decode(&clash)
		switch {
		case err == nil:
			return nil, &away.DuplicateIDError{ID: clash.ID}
		case !errors.Is(err, mongo.ErrNoDocuments):
			return nil, fmt.Errorf("failed to check record ids: %w", err)
		}
	}

	if len(prepared) == 0 {
		return ids, nil
	}
	docs := make([]any, len(prepared))
	for i, r := range prepared {
		docs[i] = toDocument(r)
	}
	if _, err := s.collection.InsertMany(ctx, docs); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, fmt.Errorf("%w: %v", away.ErrDuplicateID, err)
		}
		return nil, fmt.Errorf("failed to insert away records: %w", err)
	}
	return ids, nil
}

// Update replaces documents by id with a single bulk write.
func (s *RecordStore) Update(ctx context.Context, records []away.Record, upsert bool) (int, error) {
	if err := away.PrepareUpdate(records); err != nil {
		return 0, err
	}
	latest := reconciliation.Latest(records, away.RecordID)
	if len(latest) == 0 {
		return 0, nil
	}

	stored, err := s.storedStatuses(ctx, latest)
	if err != nil {
		return 0, err
	}

	models := make([]mongo.WriteModel, 0, len(latest))
	for _, r := range latest {
		status, exists := stored[r.ID]
		if !exists && !upsert {
			continue
		}
		if exists {
			r = away.Supersede(away.Record{Status: status}, r)
		}
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.D{{Key: away.FieldID, Value: r.ID}}).
			SetReplacement(toDocument(r)).
			SetUpsert(upsert))
	}
	if len(models) == 0 {
		return 0, nil
	}

	res, err := s.collection.BulkWrite(ctx, models)
	if err != nil {
		return 0, fmt.Errorf("failed to update away records: %w", err)
	}
	return int(res.MatchedCount), nil
}

func (s *RecordStore) storedStatuses(ctx context.Context, records []away.Record) (map[string]away.Status, error) {
	ids := make([]string, len(records))
	for i, r := range records {
		ids[i] = r.ID
	}
	cursor, err := s.collection.Find(ctx,
		bson.D{{Key: away.FieldID, Value: bson.D{{Key: "$in", Value: ids}}}},
		options.Find().SetProjection(bson.D{{Key: away.FieldID, Value: 1}, {Key: away.FieldStatus, Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to look up records: %w", err)
	}
	var docs []recordDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode records: %w", err)
	}
	out := make(map[string]away.Status, len(docs))
	for _, d := range docs {
		out[d.ID] = away.Status(d.Status)
	}
	return out, nil
}

// CancelActive sets status to cancelled on the active documents in scope.
func (s *RecordStore) CancelActive(ctx context.Context, scope away.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	res, err := s.collection.UpdateMany(ctx,
		bson.D{
			{Key: away.FieldTeamID, Value: scope.TeamID},
			{Key: away.FieldUserID, Value: scope.UserID},
			{Key: away.FieldStatus, Value: string(away.StatusActive)},
		},
		bson.D{{Key: "$set", Value: bson.D{{Key: away.FieldStatus, Value: string(away.StatusCancelled)}}}},
	)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel away records: %w", err)
	}
	return int(res.ModifiedCount), nil
}
