//go:build integration

package mongo_test

import (
	"context"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	mstore "github.com/illmade-knight/away-tracker/internal/storage/mongo"
	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/illmade-knight/away-tracker/pkg/away/awaytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/mongodb"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var (
	once      sync.Once
	container *mongodb.MongoDBContainer
	sharedURI string
	initErr   error
)

func TestMain(m *testing.M) {
	code := m.Run()
	if container != nil {
		_ = testcontainers.TerminateContainer(container)
	}
	os.Exit(code)
}

// setupMongo starts one MongoDB container for the whole test run and returns a
// client connected to it. The client is disconnected via t.Cleanup.
func setupMongo(t *testing.T) (context.Context, *mongo.Client) {
	t.Helper()
	ctx := context.Background()

	once.Do(func() {
		var err error
		container, err = mongodb.Run(ctx, "mongo:7")
		if err != nil {
			initErr = err
			return
		}
		sharedURI, initErr = container.ConnectionString(ctx)
	})
	require.NoError(t, initErr)

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(sharedURI))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = client.Disconnect(context.Background())
	})
	return ctx, client
}

func TestRecordStore_Contract(t *testing.T) {
	ctx, client := setupMongo(t)
	db := client.Database("afk_test")

	awaytest.RunStoreContract(t, func(t *testing.T) away.Store {
		store, err := mstore.NewRecordStore(ctx, db.Collection("afk-"+uuid.NewString()))
		require.NoError(t, err)
		return store
	})
}

func TestTranslate(t *testing.T) {
	from := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	p, err := away.Filter{TeamIDs: []string{"T"}, ReadFrom: &from}.Resolve(time.Now())
	require.NoError(t, err)

	got := mstore.Translate(p)

	want := bson.D{
		{Key: "team_id", Value: bson.D{{Key: "$in", Value: []string{"T"}}}},
		{Key: "status", Value: bson.D{{Key: "$in", Value: []string{"active"}}}},
		{Key: "end_datetime", Value: bson.D{{Key: "$gte", Value: from}}},
	}
	assert.Equal(t, want, got)
}

func TestOpen(t *testing.T) {
	ctx, _ := setupMongo(t)

	store, err := mstore.Open(ctx, sharedURI, "afk_open_test", "")
	require.NoError(t, err)
	defer store.Close()

	ids, err := store.Write(ctx, []away.Record{awaytest.NewActive("T", "U", time.Now().Add(time.Hour))}, away.WriteAppend)
	require.NoError(t, err)
	assert.Len(t, ids, 1)
}
