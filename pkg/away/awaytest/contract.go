// Package awaytest holds the black-box behaviour every away.Store backend must
// share. Backend packages call RunStoreContract from their own tests.
package awaytest

import (
	"context"
	"testing"
	"time"

	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// StoreFactory returns an empty store. It is called once per subtest and is
// responsible for registering any cleanup on t.
type StoreFactory func(t *testing.T) away.Store

// NewActive builds an active record for team and user whose interval ends at end.
func NewActive(team, user string, end time.Time) away.Record {
	return away.NewRecord(away.Provenance{
		TeamID:    team,
		ChannelID: "C-" + team,
		UserID:    user,
		Command:   "/afk",
		Text:      "lunch",
		TriggerID: "trigger-" + user,
	}, end.Add(-2*time.Hour), end)
}

// ReadAll returns every record in the store regardless of status or age.
func ReadAll(t *testing.T, ctx context.Context, store away.Store) []away.Record {
	t.Helper()
	records, err := store.Read(ctx, away.HistoryFilter())
	require.NoError(t, err)
	return records
}

// Normalize puts records into a form that compares equal across backends.
func Normalize(records []away.Record) []away.Record {
	out := make([]away.Record, len(records))
	for i, r := range records {
		r.StartDatetime = away.Instant(r.StartDatetime)
		r.EndDatetime = away.Instant(r.EndDatetime)
		r.Created = away.Instant(r.Created)
		out[i] = r
	}
	return out
}

func ids(records []away.Record) []string {
	out := make([]string, len(records))
	for i, r := range records {
		out[i] = r.ID
	}
	return out
}

// RunStoreContract runs the shared behaviour suite against a backend.
func RunStoreContract(t *testing.T, newStore StoreFactory) {
	ctx := context.Background()
	now := time.Now()

	t.Run("Read on empty store returns empty slice", func(t *testing.T) {
		store := newStore(t)

		results, err := store.Read(ctx, away.Filter{})

		require.NoError(t, err)
		assert.NotNil(t, results)
		assert.Empty(t, results)
	})

	t.Run("Empty value sets impose no constraint", func(t *testing.T) {
		store := newStore(t)
		// Arrange
		r1 := NewActive("T1", "U1", now.Add(time.Hour))
		r2 := NewActive("T2", "U2", now.Add(time.Hour))
		_, err := store.Write(ctx, []away.Record{r1, r2}, away.WriteAppend)
		require.NoError(t, err)

		// Act
		results, err := store.Read(ctx, away.Filter{TeamIDs: []string{}, UserIDs: []string{}, IDs: nil})

		// Assert
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{r1.ID, r2.ID}, ids(results))
	})

	t.Run("Filter fields combine with AND", func(t *testing.T) {
		store := newStore(t)
		r1 := NewActive("T1", "U1", now.Add(time.Hour))
		r2 := NewActive("T1", "U2", now.Add(time.Hour))
		r3 := NewActive("T2", "U1", now.Add(time.Hour))
		_, err := store.Write(ctx, []away.Record{r1, r2, r3}, away.WriteAppend)
		require.NoError(t, err)

		results, err := store.Read(ctx, away.Filter{TeamIDs: []string{"T1"}, UserIDs: []string{"U1"}})
		require.NoError(t, err)
		assert.Equal(t, []string{r1.ID}, ids(results))

		results, err = store.Read(ctx, away.Filter{UserIDs: []string{"U1", "U2"}})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{r1.ID, r2.ID, r3.ID}, ids(results))

		results, err = store.Read(ctx, away.Filter{IDs: []string{r2.ID, r3.ID}, TeamIDs: []string{"T2"}})
		require.NoError(t, err)
		assert.Equal(t, []string{r3.ID}, ids(results))
	})

	t.Run("Default read excludes cancelled records", func(t *testing.T) {
		store := newStore(t)
		active := NewActive("T", "U1", now.Add(time.Hour))
		cancelled := NewActive("T", "U2", now.Add(time.Hour))
		cancelled.Status = away.StatusCancelled
		_, err := store.Write(ctx, []away.Record{active, cancelled}, away.WriteAppend)
		require.NoError(t, err)

		results, err := store.Read(ctx, away.Filter{TeamIDs: []string{"T"}})
		require.NoError(t, err)
		assert.Equal(t, []string{active.ID}, ids(results))

		results, err = store.Read(ctx, away.Filter{TeamIDs: []string{"T"}, Statuses: []away.Status{away.StatusCancelled}})
		require.NoError(t, err)
		assert.Equal(t, []string{cancelled.ID}, ids(results))
	})

	t.Run("Default read excludes expired records", func(t *testing.T) {
		store := newStore(t)
		past := NewActive("T", "U", now.Add(-time.Hour))
		future := NewActive("T", "U", now.Add(time.Hour))
		_, err := store.Write(ctx, []away.Record{past, future}, away.WriteAppend)
		require.NoError(t, err)

		results, err := store.Read(ctx, away.Filter{TeamIDs: []string{"T"}})
		require.NoError(t, err)
		assert.Equal(t, []string{future.ID}, ids(results))

		from := now.Add(-2 * time.Hour)
		results, err = store.Read(ctx, away.Filter{TeamIDs: []string{"T"}, ReadFrom: &from})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{past.ID, future.ID}, ids(results))
	})

	t.Run("Invalid filter is rejected", func(t *testing.T) {
		store := newStore(t)

		_, err := store.Read(ctx, away.Filter{Statuses: []away.Status{"ACTIVE?"}})

		require.Error(t, err)
		assert.ErrorIs(t, err, away.ErrValidation)
	})

	t.Run("Write assigns ids and returns them in order", func(t *testing.T) {
		store := newStore(t)
		r1 := NewActive("T", "U1", now.Add(time.Hour))
		r1.ID = ""
		r2 := NewActive("T", "U2", now.Add(time.Hour))

		written, err := store.Write(ctx, []away.Record{r1, r2}, away.WriteAppend)

		require.NoError(t, err)
		require.Len(t, written, 2)
		assert.NotEmpty(t, written[0])
		assert.Equal(t, r2.ID, written[1])
		assert.ElementsMatch(t, written, ids(ReadAll(t, ctx, store)))
	})

	t.Run("Write round-trips every field", func(t *testing.T) {
		store := newStore(t)
		r := NewActive("T", "U", now.Add(90*time.Minute))
		r.Text = "dentist, back after 3 ✓"
		_, err := store.Write(ctx, []away.Record{r}, away.WriteAppend)
		require.NoError(t, err)

		results, err := store.Read(ctx, away.Filter{IDs: []string{r.ID}})

		require.NoError(t, err)
		require.Len(t, results, 1)
		assert.Equal(t, Normalize([]away.Record{r}), Normalize(results))
	})

	t.Run("Write rejects a duplicate id and leaves the store unchanged", func(t *testing.T) {
		store := newStore(t)
		r1 := NewActive("T", "U", now.Add(time.Hour))
		_, err := store.Write(ctx, []away.Record{r1}, away.WriteAppend)
		require.NoError(t, err)

		fresh := NewActive("T", "U2", now.Add(time.Hour))
		clash := NewActive("T", "U3", now.Add(time.Hour))
		clash.ID = r1.ID
		_, err = store.Write(ctx, []away.Record{fresh, clash}, away.WriteAppend)

		require.Error(t, err)
		assert.ErrorIs(t, err, away.ErrDuplicateID)
		assert.Equal(t, []string{r1.ID}, ids(ReadAll(t, ctx, store)))
	})

	t.Run("Write rejects ids repeated within a batch", func(t *testing.T) {
		store := newStore(t)
		r1 := NewActive("T", "U", now.Add(time.Hour))
		r2 := NewActive("T", "U", now.Add(time.Hour))
		r2.ID = r1.ID

		_, err := store.Write(ctx, []away.Record{r1, r2}, away.WriteAppend)

		assert.ErrorIs(t, err, away.ErrDuplicateID)
		assert.Empty(t, ReadAll(t, ctx, store))
	})

	t.Run("Overwrite leaves exactly the given records", func(t *testing.T) {
		store := newStore(t)
		old := []away.Record{
			NewActive("T1", "U1", now.Add(time.Hour)),
			NewActive("T2", "U2", now.Add(-time.Hour)),
		}
		_, err := store.Write(ctx, old, away.WriteAppend)
		require.NoError(t, err)

		replacement := []away.Record{
			NewActive("T3", "U3", now.Add(time.Hour)),
			NewActive("T3", "U4", now.Add(-3*time.Hour)),
		}
		replacement[1].Status = away.StatusCancelled

		_, err = store.Write(ctx, replacement, away.WriteOverwrite)

		require.NoError(t, err)
		assert.ElementsMatch(t, Normalize(replacement), Normalize(ReadAll(t, ctx, store)))
	})

	t.Run("Write rejects invalid UTF-8 and leaves the store unchanged", func(t *testing.T) {
		store := newStore(t)
		kept := NewActive("T", "U", now.Add(time.Hour))
		_, err := store.Write(ctx, []away.Record{kept}, away.WriteAppend)
		require.NoError(t, err)

		bad := NewActive("T", "U2", now.Add(time.Hour))
		bad.Text = "a\xffb"
		_, err = store.Write(ctx, []away.Record{NewActive("T", "U3", now.Add(time.Hour)), bad}, away.WriteAppend)

		assert.ErrorIs(t, err, away.ErrValidation)
		assert.Equal(t, []string{kept.ID}, ids(ReadAll(t, ctx, store)))
	})

	t.Run("Update rejects invalid UTF-8", func(t *testing.T) {
		store := newStore(t)
		r := NewActive("T", "U", now.Add(time.Hour))
		_, err := store.Write(ctx, []away.Record{r}, away.WriteAppend)
		require.NoError(t, err)

		changed := r
		changed.ChannelID = "C-\xc3"
		n, err := store.Update(ctx, []away.Record{changed}, false)

		assert.ErrorIs(t, err, away.ErrValidation)
		assert.Zero(t, n)
		assert.Equal(t, Normalize([]away.Record{r}), Normalize(ReadAll(t, ctx, store)))
	})

	t.Run("Overwrite may reuse ids already stored", func(t *testing.T) {
		store := newStore(t)
		old := []away.Record{
			NewActive("T1", "U1", now.Add(time.Hour)),
			NewActive("T1", "U2", now.Add(time.Hour)),
		}
		_, err := store.Write(ctx, old, away.WriteAppend)
		require.NoError(t, err)

		reused := old[0]
		reused.Text = "back at three"
		reused.Status = away.StatusCancelled
		replacement := []away.Record{reused, NewActive("T2", "U3", now.Add(time.Hour))}

		written, err := store.Write(ctx, replacement, away.WriteOverwrite)

		require.NoError(t, err)
		assert.Equal(t, []string{old[0].ID, replacement[1].ID}, written)
		assert.ElementsMatch(t, Normalize(replacement), Normalize(ReadAll(t, ctx, store)))
	})

	t.Run("Overwrite with nothing empties the store", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Write(ctx, []away.Record{NewActive("T", "U", now.Add(time.Hour))}, away.WriteAppend)
		require.NoError(t, err)

		_, err = store.Write(ctx, nil, away.WriteOverwrite)

		require.NoError(t, err)
		assert.Empty(t, ReadAll(t, ctx, store))
	})

	t.Run("Update replaces whole records and counts them", func(t *testing.T) {
		store := newStore(t)
		r1 := NewActive("T", "U1", now.Add(time.Hour))
		r2 := NewActive("T", "U2", now.Add(time.Hour))
		_, err := store.Write(ctx, []away.Record{r1, r2}, away.WriteAppend)
		require.NoError(t, err)

		changed := r1
		changed.Text = "changed plans"
		changed.EndDatetime = away.Instant(now.Add(3 * time.Hour))
		changed.ChannelID = ""

		n, err := store.Update(ctx, []away.Record{changed}, false)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		results, err := store.Read(ctx, away.Filter{IDs: []string{r1.ID}})
		require.NoError(t, err)
		assert.Equal(t, Normalize([]away.Record{changed}), Normalize(results))
	})

	t.Run("Update without upsert drops novel ids", func(t *testing.T) {
		store := newStore(t)
		r1 := NewActive("T", "U1", now.Add(time.Hour))
		_, err := store.Write(ctx, []away.Record{r1}, away.WriteAppend)
		require.NoError(t, err)

		novel := []away.Record{NewActive("T", "U2", now.Add(time.Hour)), NewActive("T", "U3", now.Add(time.Hour))}

		n, err := store.Update(ctx, novel, false)

		require.NoError(t, err)
		assert.Equal(t, 0, n)
		assert.Len(t, ReadAll(t, ctx, store), 1)
	})

	t.Run("Update with upsert inserts novel ids without counting them", func(t *testing.T) {
		store := newStore(t)
		r1 := NewActive("T", "U1", now.Add(time.Hour))
		_, err := store.Write(ctx, []away.Record{r1}, away.WriteAppend)
		require.NoError(t, err)

		replaced := r1
		replaced.Text = "longer lunch"
		novel1 := NewActive("T", "U2", now.Add(time.Hour))
		novel2 := NewActive("T", "U3", now.Add(time.Hour))

		n, err := store.Update(ctx, []away.Record{novel1, replaced, novel2}, true)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		all := ReadAll(t, ctx, store)
		assert.Len(t, all, 3)
		assert.ElementsMatch(t, Normalize([]away.Record{replaced, novel1, novel2}), Normalize(all))
	})

	t.Run("Update collapses repeated ids to the last value", func(t *testing.T) {
		store := newStore(t)
		r1 := NewActive("T", "U1", now.Add(time.Hour))
		_, err := store.Write(ctx, []away.Record{r1}, away.WriteAppend)
		require.NoError(t, err)

		first, second := r1, r1
		first.Text = "first"
		second.Text = "second"

		n, err := store.Update(ctx, []away.Record{first, second}, false)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		all := ReadAll(t, ctx, store)
		require.Len(t, all, 1)
		assert.Equal(t, "second", all[0].Text)
	})

	t.Run("Update never reactivates a cancelled record", func(t *testing.T) {
		store := newStore(t)
		r1 := NewActive("T", "U", now.Add(time.Hour))
		r1.Status = away.StatusCancelled
		_, err := store.Write(ctx, []away.Record{r1}, away.WriteAppend)
		require.NoError(t, err)

		revived := r1
		revived.Status = away.StatusActive
		revived.Text = "back again"

		n, err := store.Update(ctx, []away.Record{revived}, true)

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		all := ReadAll(t, ctx, store)
		require.Len(t, all, 1)
		assert.Equal(t, away.StatusCancelled, all[0].Status)
		assert.Equal(t, "back again", all[0].Text)
	})

	t.Run("Update rejects a record without id", func(t *testing.T) {
		store := newStore(t)
		r := NewActive("T", "U", now.Add(time.Hour))
		r.ID = ""

		_, err := store.Update(ctx, []away.Record{r}, true)

		assert.ErrorIs(t, err, away.ErrValidation)
		assert.Empty(t, ReadAll(t, ctx, store))
	})

	t.Run("CancelActive is idempotent", func(t *testing.T) {
		store := newStore(t)
		_, err := store.Write(ctx, []away.Record{
			NewActive("T", "U", now.Add(time.Hour)),
			NewActive("T", "U", now.Add(2*time.Hour)),
		}, away.WriteAppend)
		require.NoError(t, err)

		first, err := store.CancelActive(ctx, away.Scope{TeamID: "T", UserID: "U"})
		require.NoError(t, err)
		second, err := store.CancelActive(ctx, away.Scope{TeamID: "T", UserID: "U"})
		require.NoError(t, err)

		assert.Equal(t, 2, first)
		assert.Equal(t, 0, second)
	})

	t.Run("CancelActive stays inside its scope", func(t *testing.T) {
		store := newStore(t)
		target := NewActive("T", "U", now.Add(time.Hour))
		sameTeam := NewActive("T", "Other", now.Add(time.Hour))
		sameUser := NewActive("Other", "U", now.Add(time.Hour))
		_, err := store.Write(ctx, []away.Record{target, sameTeam, sameUser}, away.WriteAppend)
		require.NoError(t, err)

		n, err := store.CancelActive(ctx, away.Scope{TeamID: "T", UserID: "U"})

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		active, err := store.Read(ctx, away.Filter{})
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{sameTeam.ID, sameUser.ID}, ids(active))
	})

	t.Run("CancelActive also cancels expired active records", func(t *testing.T) {
		store := newStore(t)
		expired := NewActive("T", "U", now.Add(-time.Hour))
		_, err := store.Write(ctx, []away.Record{expired}, away.WriteAppend)
		require.NoError(t, err)

		n, err := store.CancelActive(ctx, away.Scope{TeamID: "T", UserID: "U"})

		require.NoError(t, err)
		assert.Equal(t, 1, n)
		all := ReadAll(t, ctx, store)
		require.Len(t, all, 1)
		assert.Equal(t, away.StatusCancelled, all[0].Status)
	})

	t.Run("CancelActive requires team and user", func(t *testing.T) {
		store := newStore(t)

		_, err := store.CancelActive(ctx, away.Scope{TeamID: "T"})

		assert.ErrorIs(t, err, away.ErrValidation)
	})

	t.Run("Declare then clear lifecycle", func(t *testing.T) {
		store := newStore(t)
		// Arrange
		r1 := NewActive("T", "U", time.Now().Add(time.Hour))
		_, err := store.Write(ctx, []away.Record{r1}, away.WriteAppend)
		require.NoError(t, err)

		// Act & Assert
		results, err := store.Read(ctx, away.Filter{TeamIDs: []string{"T"}})
		require.NoError(t, err)
		assert.Equal(t, Normalize([]away.Record{r1}), Normalize(results))

		n, err := store.CancelActive(ctx, away.Scope{TeamID: "T", UserID: "U"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		results, err = store.Read(ctx, away.Filter{TeamIDs: []string{"T"}})
		require.NoError(t, err)
		assert.Empty(t, results)

		results, err = store.Read(ctx, away.Filter{
			TeamIDs:  []string{"T"},
			Statuses: []away.Status{away.StatusActive, away.StatusCancelled},
		})
		require.NoError(t, err)
		want := r1
		want.Status = away.StatusCancelled
		assert.Equal(t, Normalize([]away.Record{want}), Normalize(results))
	})

	t.Run("ReadFrom selects the unexpired record", func(t *testing.T) {
		store := newStore(t)
		start := time.Now()
		past := NewActive("T", "U", start.Add(-time.Hour))
		future := NewActive("T", "U", start.Add(time.Hour))
		_, err := store.Write(ctx, []away.Record{past, future}, away.WriteAppend)
		require.NoError(t, err)

		results, err := store.Read(ctx, away.Filter{ReadFrom: &start})

		require.NoError(t, err)
		assert.Equal(t, []string{future.ID}, ids(results))
	})
}
