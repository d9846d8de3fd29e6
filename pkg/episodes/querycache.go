package episodes

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite"
)

// QueryCache is a rebuildable SQLite mirror of index.json, kept only to
// make Query fast over large episode counts. It is never the source of
// truth: on any doubt the JSONL log and index.json win, and RebuildFromIndex
// can always regenerate this cache from them.
type QueryCache struct {
	db *sql.DB
}

// OpenSQLiteDB opens the modernc.org/sqlite-backed database at dsn (a
// filesystem path, or "file::memory:?cache=shared" for an ephemeral one).
// It does not migrate the schema; pass the result to NewQueryCache for
// that.
func OpenSQLiteDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("episodes: open sqlite %q: %w", dsn, err)
	}
	return db, nil
}

// NewQueryCache opens (and migrates) a query cache backed by db.
func NewQueryCache(db *sql.DB) (*QueryCache, error) {
	c := &QueryCache{db: db}
	if err := c.migrate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *QueryCache) migrate() error {
	query := `
	CREATE TABLE IF NOT EXISTS episode_index (
		episode_id TEXT PRIMARY KEY,
		run_id TEXT NOT NULL,
		tick_id INTEGER NOT NULL,
		thread_id TEXT NOT NULL,
		tags JSON NOT NULL,
		hash TEXT NOT NULL,
		line_no INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_episode_index_thread ON episode_index(thread_id);
	CREATE INDEX IF NOT EXISTS idx_episode_index_tick_line ON episode_index(tick_id, line_no);
	`
	_, err := c.db.ExecContext(context.Background(), query)
	return err
}

// RebuildFromIndex drops and repopulates the cache from idx. Callers rebuild
// after every Store.Append rather than trying to keep the cache and the
// authoritative index incrementally in sync.
func (c *QueryCache) RebuildFromIndex(ctx context.Context, idx Index) error {
	tx, err := c.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("episodes: begin rebuild tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "DELETE FROM episode_index"); err != nil {
		return fmt.Errorf("episodes: clear query cache: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO episode_index (
		episode_id, run_id, tick_id, thread_id, tags, hash, line_no
	) VALUES (?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("episodes: prepare insert: %w", err)
	}
	defer stmt.Close()

	for _, e := range idx.Entries {
		tagsJSON, err := json.Marshal(e.Tags)
		if err != nil {
			return fmt.Errorf("episodes: marshal tags: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, e.EpisodeID, e.RunID, e.TickID, e.ThreadID, string(tagsJSON), e.Hash, e.LineNo); err != nil {
			return fmt.Errorf("episodes: insert cache row: %w", err)
		}
	}

	return tx.Commit()
}

// Query mirrors Store.Query's filtering and ordering, but reads from the
// SQLite cache instead of scanning index.json in process memory.
func (c *QueryCache) Query(ctx context.Context, opts QueryOptions) ([]IndexEntry, error) {
	query := `SELECT episode_id, run_id, tick_id, thread_id, tags, hash, line_no FROM episode_index WHERE 1=1`
	var args []any
	if opts.ThreadID != "" {
		query += " AND thread_id = ?"
		args = append(args, opts.ThreadID)
	}
	if opts.SinceTick != nil {
		query += " AND tick_id >= ?"
		args = append(args, *opts.SinceTick)
	}
	query += " ORDER BY tick_id ASC, line_no ASC"
	if opts.Limit > 0 && len(opts.TagsAll) == 0 {
		query += " LIMIT ?"
		args = append(args, opts.Limit)
	}

	rows, err := c.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("episodes: query cache: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []IndexEntry
	for rows.Next() {
		var e IndexEntry
		var tagsJSON string
		if err := rows.Scan(&e.EpisodeID, &e.RunID, &e.TickID, &e.ThreadID, &tagsJSON, &e.Hash, &e.LineNo); err != nil {
			return nil, fmt.Errorf("episodes: scan cache row: %w", err)
		}
		if err := json.Unmarshal([]byte(tagsJSON), &e.Tags); err != nil {
			return nil, fmt.Errorf("episodes: unmarshal tags: %w", err)
		}
		if !hasAllTags(e.Tags, opts.TagsAll) {
			continue
		}
		out = append(out, e)
		if opts.Limit > 0 && len(out) >= opts.Limit {
			break
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the underlying database handle.
func (c *QueryCache) Close() error {
	return c.db.Close()
}
