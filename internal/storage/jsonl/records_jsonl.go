// Package jsonl stores away records in a line-delimited JSON file.
//
// Every operation other than an append rewrites the whole file through a
// temporary file and a rename, so a failed rewrite leaves the previous log in
// place. A RecordStore is single-writer only: one process, one instance per file. The
// mutex serializes calls inside the process but nothing guards against a
// second process or a second instance on the same path.
package jsonl

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/illmade-knight/away-tracker/pkg/reconciliation"
)

// Suffix is the only file extension the store accepts.
const Suffix = ".jsonl"

const maxLineBytes = 1 << 20

// ErrInvalidPath is returned by Open for a path without the .jsonl suffix.
var ErrInvalidPath = errors.New("jsonl store path must end in " + Suffix)

// RecordStore is an append-log implementation of away.Store.
type RecordStore struct {
	mu   sync.Mutex
	path string
	file *os.File
	now  func() time.Time
}

// Open opens or creates the log at path. The handle is held until Close.
func Open(path string) (*RecordStore, error) {
	if !strings.EqualFold(filepath.Ext(path), Suffix) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidPath, path)
	}
	f, err := os.OpenFile(path, os.O_RDWR|os.O_CREATE, 0o644)
	if err != nil {
		return nil, fmt.Errorf("failed to open record log: %w", err)
	}
	return &RecordStore{path: path, file: f, now: time.Now}, nil
}

// Path returns the file backing the store.
func (s *RecordStore) Path() string { return s.path }

// Read scans the whole log and returns the records matching filter.
func (s *RecordStore) Read(ctx context.Context, filter away.Filter) ([]away.Record, error) {
	p, err := filter.Resolve(s.now())
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return nil, err
	}
	results := []away.Record{}
	for _, r := range all {
		if p.Matches(r) {
			results = append(results, r)
		}
	}
	return results, nil
}

// Write appends records to the log, or truncates and rewrites it when mode is
// WriteOverwrite.
func (s *RecordStore) Write(ctx context.Context, records []away.Record, mode away.WriteMode) ([]string, error) {
	prepared, ids, err := away.PrepareWrite(records)
	if err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if mode == away.WriteOverwrite {
		if err := s.rewrite(prepared); err != nil {
			return nil, err
		}
		return ids, nil
	}

	existing, err := s.readAll()
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(existing))
	for _, r := range existing {
		seen[r.ID] = struct{}{}
	}
	for _, r := range prepared {
		if _, dup := seen[r.ID]; dup {
			return nil, &away.DuplicateIDError{ID: r.ID}
		}
	}

	if err := s.appendLines(prepared); err != nil {
		return nil, err
	}
	return ids, nil
}

// Update reconciles records against the full history of the log and
// rewrites it.
func (s *RecordStore) Update(ctx context.Context, records []away.Record, upsert bool) (int, error) {
	if err := away.PrepareUpdate(records); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return 0, err
	}
	res := reconciliation.Merge(all, records, away.RecordID, away.Supersede, upsert)
	if res.Replaced == 0 && res.Inserted == 0 {
		return 0, nil
	}
	if err := s.rewrite(res.Items); err != nil {
		return 0, err
	}
	return res.Replaced, nil
}

// CancelActive marks the active records in scope cancelled.
func (s *RecordStore) CancelActive(ctx context.Context, scope away.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	all, err := s.readAll()
	if err != nil {
		return 0, err
	}
	changed := 0
	for i, r := range all {
		if r.TeamID == scope.TeamID && r.UserID == scope.UserID && r.Status == away.StatusActive {
			all[i].Status = away.StatusCancelled
			changed++
		}
	}
	if changed == 0 {
		return 0, nil
	}
	if err := s.rewrite(all); err != nil {
		return 0, err
	}
	return changed, nil
}

// Close releases the file handle.
func (s *RecordStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.file.Close()
}

func (s *RecordStore) readAll() ([]away.Record, error) {
	if _, err := s.file.Seek(0, io.SeekStart); err != nil {
		return nil, fmt.Errorf("failed to rewind record log: %w", err)
	}

	scanner := bufio.NewScanner(s.file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)

	var records []away.Record
	line := 0
	for scanner.Scan() {
		line++
		raw := bytes.TrimSpace(scanner.Bytes())
		if len(raw) == 0 {
			continue
		}
		var r away.Record
		if err := json.Unmarshal(raw, &r); err != nil {
			return nil, fmt.Errorf("record log %s line %d: %w", s.path, line, err)
		}
		records = append(records, normalize(r.Decoded()))
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to scan record log: %w", err)
	}
	return records, nil
}

func (s *RecordStore) appendLines(records []away.Record) error {
	if len(records) == 0 {
		return nil
	}
	payload, err := encode(records)
	if err != nil {
		return err
	}
	info, err := s.file.Stat()
	if err != nil {
		return fmt.Errorf("failed to stat record log: %w", err)
	}
	if size := info.Size(); size > 0 {
		// A log edited by hand may end without a newline.
		last := make([]byte, 1)
		if _, err := s.file.ReadAt(last, size-1); err != nil {
			return fmt.Errorf("failed to read record log tail: %w", err)
		}
		if last[0] != '\n' {
			payload = append([]byte{'\n'}, payload...)
		}
	}
	if _, err := s.file.Seek(0, io.SeekEnd); err != nil {
		return fmt.Errorf("failed to seek record log: %w", err)
	}
	if _, err := s.file.Write(payload); err != nil {
		return fmt.Errorf("failed to append to record log: %w", err)
	}
	return s.file.Sync()
}

// rewrite replaces the log through a temporary file in the same directory, so
// a failure part way leaves the previous log intact.
func (s *RecordStore) rewrite(records []away.Record) (err error) {
	payload, err := encode(records)
	if err != nil {
		return err
	}
	tmp, err := os.CreateTemp(filepath.Dir(s.path), filepath.Base(s.path)+".tmp-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary record log: %w", err)
	}
	defer func() {
		if err != nil {
			_ = tmp.Close()
			_ = os.Remove(tmp.Name())
		}
	}()
	if _, err = tmp.Write(payload); err != nil {
		return fmt.Errorf("failed to write temporary record log: %w", err)
	}
	if err = tmp.Sync(); err != nil {
		return fmt.Errorf("failed to sync temporary record log: %w", err)
	}
	if err = tmp.Chmod(0o644); err != nil {
		return fmt.Errorf("failed to set record log mode: %w", err)
	}
	if err = os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("failed to replace record log: %w", err)
	}
	// The renamed handle now refers to s.path.
	_ = s.file.Close()
	s.file = tmp
	return nil
}

// encode renders one JSON object per line.
func encode(records []away.Record) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	for _, r := range records {
		if err := enc.Encode(normalize(r)); err != nil {
			return nil, fmt.Errorf("failed to encode record %s: %w", r.ID, err)
		}
	}
	return buf.Bytes(), nil
}

func normalize(r away.Record) away.Record {
	r.StartDatetime = away.Instant(r.StartDatetime)
	r.EndDatetime = away.Instant(r.EndDatetime)
	r.Created = away.Instant(r.Created)
	return r
}
