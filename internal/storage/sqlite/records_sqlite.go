/*
Package sqlite provides a SQLite-backed implementation of away.Store.

TABLE:

	away_records: one row per record. Instants are stored as INTEGER unix
	milliseconds so range predicates compare numerically.

QUERIES:

	Filters are translated with squirrel: every populated set becomes an IN
	clause, the lower bound a >= clause, all combined with AND.

CONCURRENCY:

	The pool is limited to one connection; SQLite allows a single writer and
	each store call runs in its own transaction.

USAGE:

	store, err := sqlite.Open("./data/afk.db")
	if err != nil {
	    log.Fatal(err)
	}
	defer store.Close()
*/
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Masterminds/squirrel"
	"github.com/illmade-knight/away-tracker/pkg/away"
	"github.com/illmade-knight/away-tracker/pkg/reconciliation"
	"github.com/mattn/go-sqlite3"
)

const table = "away_records"

const (
	colID        = "id"
	colTeamID    = "team_id"
	colChannelID = "channel_id"
	colUserID    = "user_id"
	colCommand   = "command"
	colText      = "text"
	colTriggerID = "trigger_id"
	colStart     = "start_datetime"
	colEnd       = "end_datetime"
	colStatus    = "status"
	colCreated   = "created"
	colVersion   = "version"
)

var columns = []string{
	colID, colTeamID, colChannelID, colUserID, colCommand, colText, colTriggerID,
	colStart, colEnd, colStatus, colCreated, colVersion,
}

// RecordStore implements away.Store on SQLite.
type RecordStore struct {
	db  *sql.DB
	now func() time.Time
}

// Open opens (creating if needed) the database at path and migrates it.
func Open(path string) (*RecordStore, error) {
	dsn := path
	if !strings.Contains(dsn, "?") {
		dsn += "?_journal_mode=WAL&_busy_timeout=5000"
	}
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	db.SetMaxOpenConns(1)

	store := &RecordStore{db: db, now: time.Now}
	if err := store.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to migrate database: %w", err)
	}
	return store, nil
}

// Close closes the database connection.
func (s *RecordStore) Close() error {
	return s.db.Close()
}

func (s *RecordStore) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS away_records (
		id TEXT PRIMARY KEY,
		team_id TEXT NOT NULL,
		channel_id TEXT NOT NULL,
		user_id TEXT NOT NULL,
		command TEXT NOT NULL,
		text TEXT NOT NULL,
		trigger_id TEXT NOT NULL,
		start_datetime INTEGER NOT NULL,
		end_datetime INTEGER NOT NULL,
		status TEXT NOT NULL,
		created INTEGER NOT NULL,
		version INTEGER NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_away_records_scope
		ON away_records(team_id, user_id, status);
	CREATE INDEX IF NOT EXISTS idx_away_records_end
		ON away_records(end_datetime);
	`
	_, err := s.db.Exec(schema)
	return err
}

// Translate renders a resolved predicate as a squirrel condition.
func Translate(p away.Predicate) squirrel.And {
	cond := squirrel.And{}
	if len(p.IDs) > 0 {
		cond = append(cond, squirrel.Eq{colID: p.IDs})
	}
	if len(p.TeamIDs) > 0 {
		cond = append(cond, squirrel.Eq{colTeamID: p.TeamIDs})
	}
	if len(p.UserIDs) > 0 {
		cond = append(cond, squirrel.Eq{colUserID: p.UserIDs})
	}
	cond = append(cond,
		squirrel.Eq{colStatus: p.StatusStrings()},
		squirrel.GtOrEq{colEnd: p.ReadFrom.UnixMilli()},
	)
	return cond
}

// Read returns the records matching filter.
func (s *RecordStore) Read(ctx context.Context, filter away.Filter) ([]away.Record, error) {
	p, err := filter.Resolve(s.now())
	if err != nil {
		return nil, err
	}

	query, args, err := squirrel.Select(columns...).From(table).Where(Translate(p)).OrderBy("rowid").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query away records: %w", err)
	}
	defer rows.Close()

	results := []away.Record{}
	for rows.Next() {
		r, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, r)
	}
	return results, rows.Err()
}

// Write inserts records in one transaction. WriteOverwrite deletes every row
// first.
func (s *RecordStore) Write(ctx context.Context, records []away.Record, mode away.WriteMode) ([]string, error) {
	prepared, ids, err := away.PrepareWrite(records)
	if err != nil {
		return nil, err
	}

	err = s.inTx(ctx, func(tx *sql.Tx) error {
		if mode == away.WriteOverwrite {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear away records: %w", err)
			}
		}
		for _, r := range prepared {
			if err := insert(ctx, tx, r); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// Update replaces rows by id inside one transaction.
func (s *RecordStore) Update(ctx context.Context, records []away.Record, upsert bool) (int, error) {
	if err := away.PrepareUpdate(records); err != nil {
		return 0, err
	}

	replaced := 0
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		replaced = 0
		for _, r := range reconciliation.Latest(records, away.RecordID) {
			var stored string
			err := tx.QueryRowContext(ctx, "SELECT status FROM "+table+" WHERE id = ?", r.ID).Scan(&stored)
			switch {
			case errors.Is(err, sql.ErrNoRows):
				if !upsert {
					continue
				}
				if err := insert(ctx, tx, r); err != nil {
					return err
				}
			case err != nil:
				return fmt.Errorf("failed to look up record %s: %w", r.ID, err)
			default:
				r = away.Supersede(away.Record{Status: away.Status(stored)}, r)
				query, args, err := squirrel.Update(table).
					SetMap(rowValues(r)).
					Where(squirrel.Eq{colID: r.ID}).
					ToSql()
				if err != nil {
					return fmt.Errorf("failed to build update: %w", err)
				}
				if _, err := tx.ExecContext(ctx, query, args...); err != nil {
					return fmt.Errorf("failed to update record %s: %w", r.ID, err)
				}
				replaced++
			}
		}
		return nil
	})
	if err != nil {
		return 0, err
	}
	return replaced, nil
}

// CancelActive flips the active rows in scope to cancelled.
func (s *RecordStore) CancelActive(ctx context.Context, scope away.Scope) (int, error) {
	if err := scope.Validate(); err != nil {
		return 0, err
	}

	query, args, err := squirrel.Update(table).
		Set(colStatus, string(away.StatusCancelled)).
		Where(squirrel.Eq{
			colTeamID: scope.TeamID,
			colUserID: scope.UserID,
			colStatus: string(away.StatusActive),
		}).
		ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build update: %w", err)
	}

	res, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return 0, fmt.Errorf("failed to cancel away records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

func (s *RecordStore) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

func insert(ctx context.Context, tx *sql.Tx, r away.Record) error {
	query, args, err := squirrel.Insert(table).SetMap(rowValues(r)).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build insert: %w", err)
	}
	if _, err := tx.ExecContext(ctx, query, args...); err != nil {
		if isConstraintViolation(err) {
			return &away.DuplicateIDError{ID: r.ID}
		}
		return fmt.Errorf("failed to insert record %s: %w", r.ID, err)
	}
	return nil
}

func isConstraintViolation(err error) bool {
	var sqliteErr sqlite3.Error
	if !errors.As(err, &sqliteErr) {
		return false
	}
	return sqliteErr.ExtendedCode == sqlite3.ErrConstraintPrimaryKey ||
		sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

func rowValues(r away.Record) map[string]any {
	return map[string]any{
		colID:        r.ID,
		colTeamID:    r.TeamID,
		colChannelID: r.ChannelID,
		colUserID:    r.UserID,
		colCommand:   r.Command,
		colText:      r.Text,
		colTriggerID: r.TriggerID,
		colStart:     r.StartDatetime.UnixMilli(),
		colEnd:       r.EndDatetime.UnixMilli(),
		colStatus:    string(r.Status),
		colCreated:   r.Created.UnixMilli(),
		colVersion:   r.Version,
	}
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(row scanner) (away.Record, error) {
	var (
		r                   away.Record
		status              string
		start, end, created int64
	)
	err := row.Scan(&r.ID, &r.TeamID, &r.ChannelID, &r.UserID, &r.Command, &r.Text, &r.TriggerID,
		&start, &end, &status, &created, &r.Version)
	if err != nil {
		return away.Record{}, fmt.Errorf("failed to scan away record: %w", err)
	}
	r.Status = away.Status(status)
	r.StartDatetime = time.UnixMilli(start).UTC()
	r.EndDatetime = time.UnixMilli(end).UTC()
	r.Created = time.UnixMilli(created).UTC()
	return r.Decoded(), nil
}
