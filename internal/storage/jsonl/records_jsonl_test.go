package jsonl_test

import (
	"bufio"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/illmade-knight/away-tracker/internal/storage/jsonl"
	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/illmade-knight/away-tracker/pkg/away/awaytest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openStore(t *testing.T) *jsonl.RecordStore {
	t.Helper()
	store, err := jsonl.Open(filepath.Join(t.TempDir(), "afk.jsonl"))
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	return store
}

func readLines(t *testing.T, path string) []string {
	t.Helper()
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	var lines []string
	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	return lines
}

func TestRecordStore_Contract(t *testing.T) {
	awaytest.RunStoreContract(t, func(t *testing.T) away.Store {
		return openStore(t)
	})
}

func TestOpen_RejectsOtherSuffixes(t *testing.T) {
	dir := t.TempDir()

	for _, name := range []string{"afk.json", "afk", "afk.jsonl.bak"} {
		_, err := jsonl.Open(filepath.Join(dir, name))
		assert.ErrorIs(t, err, jsonl.ErrInvalidPath, name)
	}

	store, err := jsonl.Open(filepath.Join(dir, "AFK.JSONL"))
	require.NoError(t, err)
	require.NoError(t, store.Close())
}

func TestRecordStore_FileLayout(t *testing.T) {
	ctx := context.Background()
	store := openStore(t)
	end := time.Now().Add(time.Hour)

	t.Run("One JSON object per line", func(t *testing.T) {
		records := []away.Record{awaytest.NewActive("T", "U1", end), awaytest.NewActive("T", "U2", end)}
		_, err := store.Write(ctx, records, away.WriteAppend)
		require.NoError(t, err)

		lines := readLines(t, store.Path())
		require.Len(t, lines, 2)
		for i, line := range lines {
			var decoded away.Record
			require.NoError(t, json.Unmarshal([]byte(line), &decoded))
			assert.Equal(t, records[i].ID, decoded.ID)
		}
	})

	t.Run("Overwrite truncates", func(t *testing.T) {
		replacement := awaytest.NewActive("T", "U3", end)

		_, err := store.Write(ctx, []away.Record{replacement}, away.WriteOverwrite)
		require.NoError(t, err)

		lines := readLines(t, store.Path())
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], replacement.ID)
	})

	t.Run("Clear rewrites statuses in place", func(t *testing.T) {
		n, err := store.CancelActive(ctx, away.Scope{TeamID: "T", UserID: "U3"})
		require.NoError(t, err)
		require.Equal(t, 1, n)

		lines := readLines(t, store.Path())
		require.Len(t, lines, 1)
		assert.Contains(t, lines[0], `"status":"cancelled"`)
	})
}

func TestRecordStore_Reopen(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "afk.jsonl")

	// Arrange: write through one instance and close it
	first, err := jsonl.Open(path)
	require.NoError(t, err)
	r := awaytest.NewActive("T", "U", time.Now().Add(time.Hour))
	_, err = first.Write(ctx, []away.Record{r}, away.WriteAppend)
	require.NoError(t, err)
	require.NoError(t, first.Close())

	// Act
	second, err := jsonl.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = second.Close() })
	results, err := second.Read(ctx, away.Filter{IDs: []string{r.ID}})

	// Assert
	require.NoError(t, err)
	assert.Equal(t, awaytest.Normalize([]away.Record{r}), results)
}

func TestRecordStore_ExistingContent(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "legacy.jsonl")

	t.Run("Blank lines and missing versions are tolerated", func(t *testing.T) {
		content := `{"id":"old","team_id":"T","user_id":"U","status":"active","start_datetime":"2020-01-01T09:00:00Z","end_datetime":"2999-01-01T09:00:00Z"}

{"id":"new","team_id":"T","user_id":"U","status":"cancelled","start_datetime":"2020-01-01T09:00:00Z","end_datetime":"2999-01-01T09:00:00Z","version":1}
`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		store, err := jsonl.Open(path)
		require.NoError(t, err)
		defer store.Close()

		all := awaytest.ReadAll(t, ctx, store)

		require.Len(t, all, 2)
		assert.Equal(t, "old", all[0].ID)
		assert.Equal(t, 1, all[0].Version)
	})

	t.Run("A corrupt line is reported", func(t *testing.T) {
		require.NoError(t, os.WriteFile(path, []byte("{not json}\n"), 0o644))
		store, err := jsonl.Open(path)
		require.NoError(t, err)
		defer store.Close()

		_, err = store.Read(ctx, away.Filter{})

		require.Error(t, err)
		assert.Contains(t, err.Error(), "line 1")
	})

	t.Run("Append after a missing final newline starts a new line", func(t *testing.T) {
		content := `{"id":"old","team_id":"T","user_id":"U","status":"active","start_datetime":"2020-01-01T09:00:00Z","end_datetime":"2999-01-01T09:00:00Z","version":1}`
		require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
		store, err := jsonl.Open(path)
		require.NoError(t, err)
		defer store.Close()

		_, err = store.Write(ctx, []away.Record{awaytest.NewActive("T", "U2", time.Now().Add(time.Hour))}, away.WriteAppend)
		require.NoError(t, err)

		all := awaytest.ReadAll(t, ctx, store)
		require.Len(t, all, 2)
		assert.Equal(t, "old", all[0].ID)
		assert.Len(t, readLines(t, path), 2)
	})
}

func TestRecordStore_Rewrite(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()
	path := filepath.Join(dir, "afk.jsonl")
	store, err := jsonl.Open(path)
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	end := time.Now().Add(time.Hour)

	t.Run("Leaves only the log behind", func(t *testing.T) {
		replacement := []away.Record{awaytest.NewActive("T", "U1", end), awaytest.NewActive("T", "U2", end)}
		_, err := store.Write(ctx, replacement, away.WriteOverwrite)
		require.NoError(t, err)
		_, err = store.CancelActive(ctx, away.Scope{TeamID: "T", UserID: "U1"})
		require.NoError(t, err)

		entries, err := os.ReadDir(dir)
		require.NoError(t, err)
		require.Len(t, entries, 1)
		assert.Equal(t, "afk.jsonl", entries[0].Name())
		info, err := entries[0].Info()
		require.NoError(t, err)
		assert.Equal(t, os.FileMode(0o644), info.Mode().Perm())
	})

	t.Run("The handle follows the replaced file", func(t *testing.T) {
		_, err := store.Write(ctx, []away.Record{awaytest.NewActive("T", "U3", end)}, away.WriteAppend)
		require.NoError(t, err)

		assert.Len(t, awaytest.ReadAll(t, ctx, store), 3)
		assert.Len(t, readLines(t, path), 3)

		reopened, err := jsonl.Open(path)
		require.NoError(t, err)
		defer reopened.Close()
		assert.Len(t, awaytest.ReadAll(t, ctx, reopened), 3)
	})
}
