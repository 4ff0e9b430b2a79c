// Package forklog persists per-fork accounting records so operators can audit
// cache effectiveness over time. SQLite is the default backend; Postgres is
// supported for shared deployments.
package forklog

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"
)

// Entry represents a persistent record of one completed fork invocation.
type Entry struct {
	TraceID      string
	Provider     string
	Model        string
	Strategy     string
	WarmupMode   string
	Branches     int
	WarmupCost   int
	SavedTokens  int
	CacheHitRate float64
	ErrorMessage string
	CreatedAt    time.Time
}

// Writer persists fork log entries.
type Writer interface {
	Write(ctx context.Context, entry Entry) error
}

// NoopWriter ignores all log writes.
type NoopWriter struct{}

func (NoopWriter) Write(_ context.Context, _ Entry) error { return nil }

// SQLWriter persists entries to SQLite/Postgres.
type SQLWriter struct {
	db      *sql.DB
	dialect string
}

func NewSQLiteWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		dsn = "forkcache-forks.db"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open sqlite fork log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "sqlite"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func NewPostgresWriter(dsn string) (*SQLWriter, error) {
	dsn = strings.TrimSpace(dsn)
	if dsn == "" {
		return nil, fmt.Errorf("postgres dsn is required")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres fork log writer: %w", err)
	}
	w := &SQLWriter{db: db, dialect: "postgres"}
	if err := w.init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return w, nil
}

func (w *SQLWriter) init() error {
	if err := w.db.Ping(); err != nil {
		return fmt.Errorf("ping %s fork log writer: %w", w.dialect, err)
	}

	ddl := `
CREATE TABLE IF NOT EXISTS fork_logs (
	id INTEGER PRIMARY KEY,
	trace_id TEXT,
	provider TEXT,
	model TEXT,
	strategy TEXT NOT NULL,
	warmup_mode TEXT NOT NULL,
	branches INTEGER NOT NULL,
	warmup_cost INTEGER NOT NULL,
	saved_tokens INTEGER NOT NULL,
	cache_hit_rate REAL NOT NULL,
	error_message TEXT,
	created_at TIMESTAMP NOT NULL
);`

	if w.dialect == "postgres" {
		ddl = `
CREATE TABLE IF NOT EXISTS fork_logs (
	id BIGSERIAL PRIMARY KEY,
	trace_id TEXT,
	provider TEXT,
	model TEXT,
	strategy TEXT NOT NULL,
	warmup_mode TEXT NOT NULL,
	branches INTEGER NOT NULL,
	warmup_cost INTEGER NOT NULL,
	saved_tokens INTEGER NOT NULL,
	cache_hit_rate DOUBLE PRECISION NOT NULL,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL
);`
	}

	if _, err := w.db.Exec(ddl); err != nil {
		return fmt.Errorf("initialize fork log schema: %w", err)
	}
	return nil
}

func (w *SQLWriter) Write(ctx context.Context, entry Entry) error {
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}

	query := `INSERT INTO fork_logs(trace_id, provider, model, strategy, warmup_mode, branches, warmup_cost, saved_tokens, cache_hit_rate, error_message, created_at)
	VALUES(?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	if w.dialect == "postgres" {
		query = `INSERT INTO fork_logs(trace_id, provider, model, strategy, warmup_mode, branches, warmup_cost, saved_tokens, cache_hit_rate, error_message, created_at)
		VALUES($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`
	}

	_, err := w.db.ExecContext(ctx, query,
		entry.TraceID,
		entry.Provider,
		entry.Model,
		entry.Strategy,
		entry.WarmupMode,
		entry.Branches,
		entry.WarmupCost,
		entry.SavedTokens,
		entry.CacheHitRate,
		entry.ErrorMessage,
		entry.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("write fork log: %w", err)
	}
	return nil
}

// Query filters List results. Zero-value fields match everything.
type Query struct {
	Provider string
	Strategy string
	Limit    int
	Offset   int
}

// QueryResult carries one page of entries plus the unpaged total.
type QueryResult struct {
	Data  []Entry
	Total int
}

func (w *SQLWriter) List(ctx context.Context, q Query) (*QueryResult, error) {
	if q.Limit <= 0 {
		q.Limit = 50
	}

	var conds []string
	var args []interface{}
	add := func(cond string, val interface{}) {
		if w.dialect == "postgres" {
			cond = strings.Replace(cond, "?", fmt.Sprintf("$%d", len(args)+1), 1)
		}
		conds = append(conds, cond)
		args = append(args, val)
	}
	if q.Provider != "" {
		add("provider = ?", q.Provider)
	}
	if q.Strategy != "" {
		add("strategy = ?", q.Strategy)
	}

	where := ""
	if len(conds) > 0 {
		where = " WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := w.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM fork_logs"+where, args...).Scan(&total); err != nil {
		return nil, fmt.Errorf("count fork logs: %w", err)
	}

	page := fmt.Sprintf(" ORDER BY created_at DESC LIMIT %d OFFSET %d", q.Limit, q.Offset)
	rows, err := w.db.QueryContext(ctx,
		"SELECT trace_id, provider, model, strategy, warmup_mode, branches, warmup_cost, saved_tokens, cache_hit_rate, error_message, created_at FROM fork_logs"+where+page,
		args...)
	if err != nil {
		return nil, fmt.Errorf("list fork logs: %w", err)
	}
	defer rows.Close()

	result := &QueryResult{Total: total}
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.TraceID, &e.Provider, &e.Model, &e.Strategy, &e.WarmupMode,
			&e.Branches, &e.WarmupCost, &e.SavedTokens, &e.CacheHitRate, &e.ErrorMessage, &e.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan fork log row: %w", err)
		}
		result.Data = append(result.Data, e)
	}
	return result, rows.Err()
}

// Prune deletes entries created before the cutoff and reports how many rows
// were removed. Used by operators to keep the observational log bounded.
func (w *SQLWriter) Prune(ctx context.Context, before time.Time) (int64, error) {
	query := "DELETE FROM fork_logs WHERE created_at < ?"
	if w.dialect == "postgres" {
		query = "DELETE FROM fork_logs WHERE created_at < $1"
	}
	res, err := w.db.ExecContext(ctx, query, before)
	if err != nil {
		return 0, fmt.Errorf("prune fork logs: %w", err)
	}
	return res.RowsAffected()
}

func (w *SQLWriter) Close() error {
	if w == nil || w.db == nil {
		return nil
	}
	return w.db.Close()
}
