// Package store persists resolution runs and publishes resolved corpora.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"github.com/google/uuid"
	_ "modernc.org/sqlite"
)

// ErrRunNotFound is returned by RunLog.Get for an unknown run id.
var ErrRunNotFound = errors.New("store: run not found")

// Run is one recorded orchestrator run.
type Run struct {
	ID          string               `json:"id"`
	Corpus      string               `json:"corpus"`
	Started     time.Time            `json:"started"`
	Finished    time.Time            `json:"finished"`
	Chains      int                  `json:"chains"`
	Total       int                  `json:"total"`
	Resolved    int                  `json:"resolved"`
	ByMethod    map[isnad.Method]int `json:"by_method"`
	Unresolved  []string             `json:"unresolved_names,omitempty"`
	Diagnostics int                  `json:"diagnostics"`
	Error       string               `json:"error,omitempty"`
}

// RunLog is the SQLite run history.
type RunLog struct {
	db *sql.DB
}

// OpenRunLog opens (or creates) the run log database at path.
func OpenRunLog(path string) (*RunLog, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("store: runs: mkdir %s: %w", dir, err)
		}
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("store: runs: open db: %w", err)
	}
	db.SetMaxOpenConns(1) // SQLite: single writer
	if err := initRunSchema(db); err != nil {
		db.Close()
		return nil, fmt.Errorf("store: runs: init schema: %w", err)
	}
	return &RunLog{db: db}, nil
}

func initRunSchema(db *sql.DB) error {
	_, err := db.Exec(`CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		corpus      TEXT NOT NULL,
		started_at  TEXT NOT NULL,
		finished_at TEXT NOT NULL,
		chains      INTEGER NOT NULL,
		total       INTEGER NOT NULL,
		resolved    INTEGER NOT NULL,
		by_method   TEXT NOT NULL,
		unresolved  TEXT NOT NULL,
		diagnostics INTEGER NOT NULL,
		error       TEXT
	)`)
	return err
}

// Close closes the database.
func (l *RunLog) Close() error { return l.db.Close() }

// Record stores the report of a finished run under a new id.
func (l *RunLog) Record(ctx context.Context, corpus string, rep *isnad.Report, runErr error) (Run, error) {
	if rep == nil {
		return Run{}, errors.New("store: runs: nil report")
	}
	r := Run{
		ID:          uuid.NewString(),
		Corpus:      corpus,
		Started:     rep.Started.UTC(),
		Finished:    rep.Finished.UTC(),
		Chains:      rep.Chains,
		Total:       rep.Total,
		Resolved:    rep.Resolved(),
		ByMethod:    rep.ByMethod,
		Unresolved:  rep.Unresolved,
		Diagnostics: len(rep.Diagnostics),
	}
	if runErr != nil {
		r.Error = runErr.Error()
	}

	byMethod, err := json.Marshal(r.ByMethod)
	if err != nil {
		return Run{}, fmt.Errorf("store: runs: encode counts: %w", err)
	}
	unresolved, err := json.Marshal(r.Unresolved)
	if err != nil {
		return Run{}, fmt.Errorf("store: runs: encode names: %w", err)
	}
	_, err = l.db.ExecContext(ctx,
		`INSERT INTO runs (id, corpus, started_at, finished_at, chains, total, resolved, by_method, unresolved, diagnostics, error)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.Corpus, r.Started.Format(tsLayout), r.Finished.Format(tsLayout),
		r.Chains, r.Total, r.Resolved, string(byMethod), string(unresolved), r.Diagnostics, nullString(r.Error),
	)
	if err != nil {
		return Run{}, fmt.Errorf("store: runs: insert: %w", err)
	}
	return r, nil
}

// fixed width so stored timestamps sort as text
const tsLayout = "2006-01-02T15:04:05.000000000Z07:00"

const runColumns = `id, corpus, started_at, finished_at, chains, total, resolved, by_method, unresolved, diagnostics, error`

// List returns the most recent runs, newest first.
func (l *RunLog) List(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 || limit > 500 {
		limit = 50
	}
	rows, err := l.db.QueryContext(ctx,
		`SELECT `+runColumns+` FROM runs ORDER BY started_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("store: runs: query: %w", err)
	}
	defer rows.Close()

	runs := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, r)
	}
	return runs, rows.Err()
}

// Get returns one run by id.
func (l *RunLog) Get(ctx context.Context, id string) (Run, error) {
	row := l.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM runs WHERE id = ?`, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, fmt.Errorf("%w: %s", ErrRunNotFound, id)
	}
	return r, err
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var (
		r                 Run
		started, finished string
		byMethod, names   string
		runErr            sql.NullString
	)
	if err := s.Scan(&r.ID, &r.Corpus, &started, &finished, &r.Chains, &r.Total, &r.Resolved,
		&byMethod, &names, &r.Diagnostics, &runErr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Run{}, err
		}
		return Run{}, fmt.Errorf("store: runs: scan: %w", err)
	}
	r.Started, _ = time.Parse(tsLayout, started)
	r.Finished, _ = time.Parse(tsLayout, finished)
	r.Error = runErr.String
	if err := json.Unmarshal([]byte(byMethod), &r.ByMethod); err != nil {
		return Run{}, fmt.Errorf("store: runs: decode counts: %w", err)
	}
	if err := json.Unmarshal([]byte(names), &r.Unresolved); err != nil {
		return Run{}, fmt.Errorf("store: runs: decode names: %w", err)
	}
	return r, nil
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
