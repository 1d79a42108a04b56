//go:build integration

package firestore_test

import (
	"context"
	"testing"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	fst "github.com/illmade-knight/away-tracker/internal/storage/firestore"
	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/illmade-knight/away-tracker/pkg/away/awaytest"
	"github.com/illmade-knight/go-test/emulators"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupFirestore(t *testing.T) (context.Context, *firestore.Client) {
	t.Helper()
	ctx := context.Background()
	fsConn := emulators.SetupFirestoreEmulator(t, ctx, emulators.GetDefaultFirestoreConfig("test-project"))
	fsClient, err := firestore.NewClient(ctx, "test-project", fsConn.ClientOptions...)
	require.NoError(t, err)

	t.Cleanup(func() {
		fsClient.Close()
	})
	return ctx, fsClient
}

// newCollectionStore gives every subtest its own collection so OVERWRITE in one
// cannot touch another.
func newCollectionStore(client *firestore.Client) awaytest.StoreFactory {
	return func(t *testing.T) away.Store {
		store := fst.NewRecordStore(client, "afk-"+uuid.NewString())
		t.Cleanup(func() {
			_ = store.Close()
		})
		return store
	}
}

func TestRecordStore_Contract(t *testing.T) {
	_, client := setupFirestore(t)
	awaytest.RunStoreContract(t, newCollectionStore(client))
}

func TestRecordStore_DocumentLayout(t *testing.T) {
	ctx, client := setupFirestore(t)
	collection := "afk-" + uuid.NewString()
	store := fst.NewRecordStore(client, collection)
	r := awaytest.NewActive("T", "U", time.Now().Add(time.Hour))

	// Act
	_, err := store.Write(ctx, []away.Record{r}, away.WriteAppend)
	require.NoError(t, err)

	// Assert: the document is keyed by id and carries the record field names
	snap, err := client.Collection(collection).Doc(r.ID).Get(ctx)
	require.NoError(t, err)
	data := snap.Data()
	for _, key := range []string{"id", "team_id", "channel_id", "user_id", "command", "text",
		"trigger_id", "start_datetime", "end_datetime", "status", "created", "version"} {
		assert.Contains(t, data, key)
	}
	assert.Equal(t, "active", data["status"])
}

func TestRecordStore_WideFilters(t *testing.T) {
	ctx, client := setupFirestore(t)
	store := fst.NewRecordStore(client, "afk-"+uuid.NewString())
	end := time.Now().Add(time.Hour)

	// Arrange: more teams than a single "in" clause can carry
	var records []away.Record
	var teams []string
	for i := 0; i < 35; i++ {
		team := uuid.NewString()
		teams = append(teams, team)
		records = append(records, awaytest.NewActive(team, "U", end))
	}
	records = append(records, awaytest.NewActive("elsewhere", "U", end))
	_, err := store.Write(ctx, records, away.WriteAppend)
	require.NoError(t, err)

	// Act
	results, err := store.Read(ctx, away.Filter{
		TeamIDs:  teams,
		UserIDs:  []string{"U", "V"},
		Statuses: away.AllStatuses(),
	})

	// Assert
	require.NoError(t, err)
	assert.Len(t, results, 35)
}
