// Package sqlite is the relational half of durable storage: sessions, usage logs
// and popular cached answers, on modernc.org/sqlite.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // registers the "sqlite" driver

	"github.com/bassam-ai/bassam/internal/db"
)

const schema = `
CREATE TABLE IF NOT EXISTS user_sessions (
	session_id     TEXT PRIMARY KEY,
	created_at     INTEGER NOT NULL,
	last_activity  INTEGER NOT NULL,
	queries_count  INTEGER NOT NULL DEFAULT 0,
	tokens_used    INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS usage_logs (
	id             INTEGER PRIMARY KEY AUTOINCREMENT,
	ts             INTEGER NOT NULL,
	service        TEXT NOT NULL,
	operation      TEXT NOT NULL,
	tokens_used    INTEGER NOT NULL DEFAULT 0,
	response_time  REAL NOT NULL DEFAULT 0,
	success        INTEGER NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_usage_logs_ts ON usage_logs(ts);

CREATE TABLE IF NOT EXISTS cached_responses (
	query_hash     TEXT PRIMARY KEY,
	query_text     TEXT NOT NULL,
	response_data  TEXT NOT NULL,
	model_used     TEXT NOT NULL,
	created_at     INTEGER NOT NULL,
	access_count   INTEGER NOT NULL DEFAULT 0
);
CREATE INDEX IF NOT EXISTS idx_cached_responses_created_at ON cached_responses(created_at);
`

// Store wraps a pooled *sql.DB.
type Store struct {
	db *sql.DB
}

// Open creates the parent directory, opens the database with at most maxConns
// connections, and applies the schema.
func Open(ctx context.Context, path string, maxConns int) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create database directory: %w", err)
	}
	dsn := "file:" + path + "?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	conn, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if maxConns > 0 {
		conn.SetMaxOpenConns(maxConns)
		conn.SetMaxIdleConns(maxConns)
	}
	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}
	if _, err := conn.ExecContext(ctx, schema); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate database: %w", err)
	}
	return &Store{db: conn}, nil
}

// Ping checks connectivity.
func (s *Store) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return &db.Error{Op: db.OpPing, Err: err}
	}
	return nil
}

// Close releases the pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// TouchSession creates the session row or bumps its counters.
func (s *Store) TouchSession(ctx context.Context, id string, at time.Time, tokens int) error {
	const q = `
	INSERT INTO user_sessions (session_id, created_at, last_activity, queries_count, tokens_used)
	VALUES (?, ?, ?, 1, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		last_activity = excluded.last_activity,
		queries_count = user_sessions.queries_count + 1,
		tokens_used   = user_sessions.tokens_used + excluded.tokens_used`
	ms := at.UnixMilli()
	if _, err := s.db.ExecContext(ctx, q, id, ms, ms, tokens); err != nil {
		return &db.Error{Op: db.OpExec, Err: fmt.Errorf("upsert session: %w", err)}
	}
	return nil
}

// SessionRow is a persisted session summary.
type SessionRow struct {
	ID           string
	CreatedAt    time.Time
	LastActivity time.Time
	QueriesCount int
	TokensUsed   int
}

// GetSession loads one session summary.
func (s *Store) GetSession(ctx context.Context, id string) (SessionRow, error) {
	const q = `SELECT session_id, created_at, last_activity, queries_count, tokens_used
	FROM user_sessions WHERE session_id = ?`
	var (
		row              SessionRow
		created, lastAct int64
	)
	err := s.db.QueryRowContext(ctx, q, id).Scan(&row.ID, &created, &lastAct, &row.QueriesCount, &row.TokensUsed)
	if errors.Is(err, sql.ErrNoRows) {
		return SessionRow{}, db.ErrKeyNotFound
	}
	if err != nil {
		return SessionRow{}, &db.Error{Op: db.OpQuery, Err: err}
	}
	row.CreatedAt = time.UnixMilli(created).UTC()
	row.LastActivity = time.UnixMilli(lastAct).UTC()
	return row, nil
}

// UsageLog is one ledger record.
type UsageLog struct {
	TS           time.Time
	Service      string
	Operation    string
	TokensUsed   int
	ResponseTime time.Duration
	Success      bool
}

// InsertUsageLogs writes a batch of ledger records in one transaction.
func (s *Store) InsertUsageLogs(ctx context.Context, logs []UsageLog) error {
	if len(logs) == 0 {
		return nil
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return &db.Error{Op: db.OpTx, Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO usage_logs
		(ts, service, operation, tokens_used, response_time, success) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return &db.Error{Op: db.OpTx, Err: err}
	}
	defer stmt.Close()

	for _, l := range logs {
		if _, err := stmt.ExecContext(ctx, l.TS.UnixMilli(), l.Service, l.Operation, l.TokensUsed,
			l.ResponseTime.Seconds(), boolToInt(l.Success)); err != nil {
			return &db.Error{Op: db.OpExec, Err: fmt.Errorf("insert usage log: %w", err)}
		}
	}
	if err := tx.Commit(); err != nil {
		return &db.Error{Op: db.OpTx, Err: err}
	}
	return nil
}

// ServiceUsage aggregates usage_logs for one service.
type ServiceUsage struct {
	Service    string  `json:"service"`
	Requests   int     `json:"requests"`
	Failures   int     `json:"failures"`
	TokensUsed int     `json:"tokens_used"`
	AvgSeconds float64 `json:"avg_seconds"`
}

// UsageSince summarizes usage_logs newer than since, ordered by service name.
func (s *Store) UsageSince(ctx context.Context, since time.Time) ([]ServiceUsage, error) {
	const q = `SELECT service, COUNT(*), SUM(CASE WHEN success = 0 THEN 1 ELSE 0 END),
		COALESCE(SUM(tokens_used), 0), COALESCE(AVG(response_time), 0)
	FROM usage_logs WHERE ts >= ? GROUP BY service ORDER BY service`
	rows, err := s.db.QueryContext(ctx, q, since.UnixMilli())
	if err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	defer rows.Close()

	var out []ServiceUsage
	for rows.Next() {
		var u ServiceUsage
		if err := rows.Scan(&u.Service, &u.Requests, &u.Failures, &u.TokensUsed, &u.AvgSeconds); err != nil {
			return nil, &db.Error{Op: db.OpQuery, Err: err}
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, &db.Error{Op: db.OpQuery, Err: err}
	}
	return out, nil
}

// CachedResponse is a row of cached_responses.
type CachedResponse struct {
	QueryHash    string
	QueryText    string
	ResponseData []byte
	ModelUsed    string
	CreatedAt    time.Time
	AccessCount  int
}

// PutCachedResponse inserts or replaces an answer, resetting its access counter.
func (s *Store) PutCachedResponse(ctx context.Context, r CachedResponse) error {
	const q = `
	INSERT INTO cached_responses (query_hash, query_text, response_data, model_used, created_at, access_count)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(query_hash) DO UPDATE SET
		query_text    = excluded.query_text,
		response_data = excluded.response_data,
		model_used    = excluded.model_used,
		created_at    = excluded.created_at,
		access_count  = excluded.access_count`
	if _, err := s.db.ExecContext(ctx, q, r.QueryHash, r.QueryText, string(r.ResponseData), r.ModelUsed,
		r.CreatedAt.UnixMilli(), r.AccessCount); err != nil {
		return &db.Error{Op: db.OpExec, Err: fmt.Errorf("upsert cached response: %w", err)}
	}
	return nil
}

// GetCachedResponse loads one answer row.
func (s *Store) GetCachedResponse(ctx context.Context, hash string) (CachedResponse, error) {
	const q = `SELECT query_hash, query_text, response_data, model_used, created_at, access_count
	FROM cached_responses WHERE query_hash = ?`
	var (
		r       CachedResponse
		data    string
		created int64
	)
	err := s.db.QueryRowContext(ctx, q, hash).Scan(&r.QueryHash, &r.QueryText, &data, &r.ModelUsed, &created, &r.AccessCount)
	if errors.Is(err, sql.ErrNoRows) {
		return CachedResponse{}, db.ErrKeyNotFound
	}
	if err != nil {
		return CachedResponse{}, &db.Error{Op: db.OpQuery, Err: err}
	}
	r.ResponseData = []byte(data)
	r.CreatedAt = time.UnixMilli(created).UTC()
	return r, nil
}

// IncrementAccess bumps access_count in a single statement.
func (s *Store) IncrementAccess(ctx context.Context, hash string) error {
	const q = `UPDATE cached_responses SET access_count = access_count + 1 WHERE query_hash = ?`
	if _, err := s.db.ExecContext(ctx, q, hash); err != nil {
		return &db.Error{Op: db.OpExec, Err: fmt.Errorf("increment access: %w", err)}
	}
	return nil
}

// PurgeResult reports rows removed by Purge.
type PurgeResult struct {
	CachedResponses int64
	UsageLogs       int64
}

// Purge deletes answers created before answersBefore and usage logs older than
// logsBefore in one transaction.
func (s *Store) Purge(ctx context.Context, answersBefore, logsBefore time.Time) (PurgeResult, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return PurgeResult{}, &db.Error{Op: db.OpTx, Err: err}
	}
	defer tx.Rollback() //nolint:errcheck // no-op after commit

	var res PurgeResult
	r, err := tx.ExecContext(ctx, `DELETE FROM cached_responses WHERE created_at <= ?`, answersBefore.UnixMilli())
	if err != nil {
		return PurgeResult{}, &db.Error{Op: db.OpExec, Err: fmt.Errorf("purge cached responses: %w", err)}
	}
	res.CachedResponses, _ = r.RowsAffected()

	r, err = tx.ExecContext(ctx, `DELETE FROM usage_logs WHERE ts <= ?`, logsBefore.UnixMilli())
	if err != nil {
		return PurgeResult{}, &db.Error{Op: db.OpExec, Err: fmt.Errorf("purge usage logs: %w", err)}
	}
	res.UsageLogs, _ = r.RowsAffected()

	if err := tx.Commit(); err != nil {
		return PurgeResult{}, &db.Error{Op: db.OpTx, Err: err}
	}
	return res, nil
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
