package away_test

import (
	"net/url"
	"testing"
	"time"

	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFilter_Resolve(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 123456789, time.FixedZone("CEST", 2*3600))

	t.Run("Defaults to active records ending from now", func(t *testing.T) {
		p, err := away.Filter{}.Resolve(now)

		require.NoError(t, err)
		assert.Equal(t, []away.Status{away.StatusActive}, p.Statuses)
		assert.Equal(t, away.Instant(now), p.ReadFrom)
		assert.Equal(t, time.UTC, p.ReadFrom.Location())
	})

	t.Run("Explicit values override the defaults", func(t *testing.T) {
		from := now.Add(-48 * time.Hour)

		p, err := away.Filter{
			Statuses: []away.Status{away.StatusCancelled, away.StatusActive, away.StatusCancelled},
			ReadFrom: &from,
		}.Resolve(now)

		require.NoError(t, err)
		assert.Equal(t, []away.Status{away.StatusActive, away.StatusCancelled}, p.Statuses)
		assert.Equal(t, away.Instant(from), p.ReadFrom)
	})

	t.Run("Empty value sets are no constraint", func(t *testing.T) {
		p, err := away.Filter{TeamIDs: []string{}, UserIDs: []string{""}, IDs: []string{"a", "a", ""}}.Resolve(now)

		require.NoError(t, err)
		assert.Empty(t, p.TeamIDs)
		assert.Empty(t, p.UserIDs)
		assert.Equal(t, []string{"a"}, p.IDs)
	})

	t.Run("Unknown status is a validation error", func(t *testing.T) {
		_, err := away.Filter{Statuses: []away.Status{"ACTIVE"}}.Resolve(now)

		require.Error(t, err)
		assert.ErrorIs(t, err, away.ErrValidation)
		var vErr *away.ValidationError
		require.ErrorAs(t, err, &vErr)
		assert.Equal(t, away.FieldStatus, vErr.Errors[0].Field)
	})
}

func TestPredicate_Matches(t *testing.T) {
	now := away.Instant(time.Now())
	base := away.Record{ID: "r1", TeamID: "T", UserID: "U", Status: away.StatusActive, EndDatetime: now}

	testCases := []struct {
		name   string
		filter away.Filter
		record func(away.Record) away.Record
		want   bool
	}{
		{
			name:   "End equal to bound is included",
			filter: away.Filter{},
			want:   true,
		},
		{
			name:   "End before bound is excluded",
			filter: away.Filter{},
			record: func(r away.Record) away.Record { r.EndDatetime = now.Add(-time.Millisecond); return r },
			want:   false,
		},
		{
			name:   "Cancelled excluded by default",
			filter: away.Filter{},
			record: func(r away.Record) away.Record { r.Status = away.StatusCancelled; return r },
			want:   false,
		},
		{
			name:   "Team outside the set",
			filter: away.Filter{TeamIDs: []string{"A", "B"}},
			want:   false,
		},
		{
			name:   "Every field in its set",
			filter: away.Filter{IDs: []string{"r1"}, TeamIDs: []string{"A", "T"}, UserIDs: []string{"U"}},
			want:   true,
		},
		{
			name:   "User outside the set",
			filter: away.Filter{UserIDs: []string{"V"}},
			want:   false,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			p, err := tc.filter.Resolve(now)
			require.NoError(t, err)
			r := base
			if tc.record != nil {
				r = tc.record(r)
			}
			assert.Equal(t, tc.want, p.Matches(r))
		})
	}
}

func TestHistoryFilter(t *testing.T) {
	p, err := away.HistoryFilter().Resolve(time.Now())
	require.NoError(t, err)

	old := away.Record{Status: away.StatusCancelled, EndDatetime: time.Date(1999, 1, 1, 0, 0, 0, 0, time.UTC)}
	assert.True(t, p.Matches(old))
	assert.Equal(t, []string{"active", "cancelled"}, p.StatusStrings())
}

func TestFilterFromValues(t *testing.T) {
	t.Run("Builds a filter from query parameters", func(t *testing.T) {
		values := url.Values{
			"team_id":      {"T1,T2"},
			"user_id":      {"U1", "U2"},
			"status":       {"Active,CANCELLED"},
			"end_datetime": {"2024-05-01T10:00:00Z"},
		}

		f, err := away.FilterFromValues(values)

		require.NoError(t, err)
		assert.Equal(t, []string{"T1", "T2"}, f.TeamIDs)
		assert.Equal(t, []string{"U1", "U2"}, f.UserIDs)
		assert.Equal(t, []away.Status{away.StatusActive, away.StatusCancelled}, f.Statuses)
		require.NotNil(t, f.ReadFrom)
		assert.True(t, f.ReadFrom.Equal(time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)))
	})

	t.Run("Empty values leave fields unconstrained", func(t *testing.T) {
		f, err := away.FilterFromValues(url.Values{"team_id": {""}, "end_datetime": {""}})

		require.NoError(t, err)
		assert.Empty(t, f.TeamIDs)
		assert.Nil(t, f.ReadFrom)
	})

	t.Run("Collects every problem", func(t *testing.T) {
		values := url.Values{
			"colour":       {"blue"},
			"status":       {"gone"},
			"end_datetime": {"yesterday"},
		}

		_, err := away.FilterFromValues(values)

		require.Error(t, err)
		var vErr *away.ValidationError
		require.ErrorAs(t, err, &vErr)
		require.Len(t, vErr.Errors, 3)
		assert.Equal(t, "colour", vErr.Errors[0].Field)
		assert.Equal(t, "unrecognized filter field", vErr.Errors[0].Message)
		assert.Equal(t, away.FieldEndDatetime, vErr.Errors[1].Field)
		assert.Equal(t, away.FieldStatus, vErr.Errors[2].Field)
		assert.True(t, away.IsClientError(err))
	})

	t.Run("Rejects more than one lower bound", func(t *testing.T) {
		_, err := away.FilterFromValues(url.Values{"end_datetime": {"2024-05-01T10:00:00Z,2024-05-02T10:00:00Z"}})

		assert.ErrorIs(t, err, away.ErrValidation)
	})
}
