package store

import (
	"cmp"
	"context"
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"slices"
	"strings"

	"github.com/anatolykoptev/go_isnad/internal/isnad"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

//go:embed schema/*.sql
var schemaFS embed.FS

const publishBatch = 1000

// Postgres holds the pgx connection pool for the registry table and the
// published mentions.
type Postgres struct {
	pool *pgxpool.Pool
}

// ConnectPostgres creates a pgx pool and runs schema migrations.
func ConnectPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	if databaseURL == "" {
		return nil, errors.New("store: DATABASE_URL is required")
	}

	config, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("store: parse DATABASE_URL: %w", err)
	}
	config.MaxConns = 8
	config.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("store: create pgx pool: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: ping postgres: %w", err)
	}

	db := &Postgres{pool: pool}
	if err := db.runMigrations(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("store: run migrations: %w", err)
	}
	slog.Info("isnad postgres connected", slog.String("addr", config.ConnConfig.Host))
	return db, nil
}

func (db *Postgres) Close() {
	db.pool.Close()
}

func (db *Postgres) runMigrations(ctx context.Context) error {
	entries, err := schemaFS.ReadDir("schema")
	if err != nil {
		return fmt.Errorf("read schema dir: %w", err)
	}
	slices.SortFunc(entries, func(a, b fs.DirEntry) int { return cmp.Compare(a.Name(), b.Name()) })

	for _, entry := range entries {
		if entry.IsDir() || !strings.HasSuffix(entry.Name(), ".sql") {
			continue
		}
		data, err := schemaFS.ReadFile("schema/" + entry.Name())
		if err != nil {
			return fmt.Errorf("read %s: %w", entry.Name(), err)
		}
		if _, err := db.pool.Exec(ctx, string(data)); err != nil {
			return fmt.Errorf("execute %s: %w", entry.Name(), err)
		}
		slog.Info("migration applied", slog.String("file", entry.Name()))
	}
	return nil
}

// NameRow is one row of narrator_names.
type NameRow struct {
	ID   int64
	Name string
}

// LoadRegistry reads every narrator name variant from narrator_names.
func (db *Postgres) LoadRegistry(ctx context.Context) ([]isnad.Record, error) {
	rows, err := db.pool.Query(ctx, `SELECT narrator_id, name FROM narrator_names ORDER BY narrator_id, name`)
	if err != nil {
		return nil, fmt.Errorf("store: registry: query: %w", err)
	}
	names, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (NameRow, error) {
		var r NameRow
		err := row.Scan(&r.ID, &r.Name)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("store: registry: scan: %w", err)
	}
	return groupNames(names), nil
}

// SaveRegistry upserts registry records into narrator_names.
func (db *Postgres) SaveRegistry(ctx context.Context, records []isnad.Record) (int, error) {
	b := &pgx.Batch{}
	for _, rec := range records {
		for _, v := range rec.Variants {
			if rec.ID == 0 || strings.TrimSpace(v) == "" {
				continue
			}
			b.Queue(`INSERT INTO narrator_names (narrator_id, name) VALUES ($1, $2) ON CONFLICT DO NOTHING`, rec.ID, v)
		}
	}
	if b.Len() == 0 {
		return 0, nil
	}
	if err := db.pool.SendBatch(ctx, b).Close(); err != nil {
		return 0, fmt.Errorf("store: registry: save: %w", err)
	}
	return b.Len(), nil
}

// groupNames folds name rows into one record per identifier, in id order.
func groupNames(rows []NameRow) []isnad.Record {
	var out []isnad.Record
	idx := make(map[int64]int)
	for _, r := range rows {
		if r.ID == 0 || r.Name == "" {
			continue
		}
		i, ok := idx[r.ID]
		if !ok {
			i = len(out)
			idx[r.ID] = i
			out = append(out, isnad.Record{ID: r.ID})
		}
		out[i].Variants = append(out[i].Variants, r.Name)
	}
	slices.SortFunc(out, func(a, b isnad.Record) int { return cmp.Compare(a.ID, b.ID) })
	return out
}

// MentionRow is one row of isnad_mentions.
type MentionRow struct {
	ChainID    string
	Position   int
	Source     string
	RawText    string
	NarratorID *int64
	Method     string
	RunID      string
}

// mentionRows flattens chains into rows. Unresolved mentions carry a nil id.
func mentionRows(runID string, chains []isnad.Chain) []MentionRow {
	var out []MentionRow
	for _, c := range chains {
		for i, m := range c.Mentions {
			row := MentionRow{
				ChainID:  c.ID,
				Position: i,
				Source:   c.Source,
				RawText:  m.RawText,
				Method:   string(isnad.MethodUnresolved),
				RunID:    runID,
			}
			if m.Resolution.Resolved() {
				id := m.Resolution.ID
				row.NarratorID = &id
				row.Method = string(m.Resolution.Method)
			}
			out = append(out, row)
		}
	}
	return out
}

// An identifier already published is never replaced by an unresolved row.
const upsertMention = `INSERT INTO isnad_mentions (chain_id, position, source, raw_text, narrator_id, method, run_id, updated_at)
VALUES ($1, $2, $3, $4, $5, $6, $7, now())
ON CONFLICT (chain_id, position) DO UPDATE SET
    source = EXCLUDED.source,
    raw_text = EXCLUDED.raw_text,
    narrator_id = EXCLUDED.narrator_id,
    method = EXCLUDED.method,
    run_id = EXCLUDED.run_id,
    updated_at = now()
WHERE EXCLUDED.narrator_id IS NOT NULL OR isnad_mentions.narrator_id IS NULL`

// PublishChains upserts every mention of chains keyed by (chain_id, position)
// in one transaction. It returns the number of rows sent.
func (db *Postgres) PublishChains(ctx context.Context, runID string, chains []isnad.Chain) (int, error) {
	rows := mentionRows(runID, chains)
	if len(rows) == 0 {
		return 0, nil
	}
	tx, err := db.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("store: publish: begin: %w", err)
	}
	defer tx.Rollback(ctx) //nolint:errcheck

	for chunk := range slices.Chunk(rows, publishBatch) {
		b := &pgx.Batch{}
		for _, r := range chunk {
			b.Queue(upsertMention, r.ChainID, r.Position, r.Source, r.RawText, r.NarratorID, r.Method, r.RunID)
		}
		if err := tx.SendBatch(ctx, b).Close(); err != nil {
			return 0, fmt.Errorf("store: publish: batch: %w", err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return 0, fmt.Errorf("store: publish: commit: %w", err)
	}
	slog.Info("isnad: corpus published", slog.String("run", runID), slog.Int("rows", len(rows)))
	return len(rows), nil
}
