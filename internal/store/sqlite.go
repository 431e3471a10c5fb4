package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	_ "modernc.org/sqlite"

	"github.com/yourorg/qbmcp/pkg/types"
)

// ErrNotFound is returned by GetCall for an unknown id.
var ErrNotFound = errors.New("not found")

const callColumns = `id,operation,method,route,query,body_fields,status_code,attempts,latency_ms,error_msg,created_at`

type SQLiteStore struct {
	db *sql.DB
}

func NewSQLiteStore(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	s := &SQLiteStore{db: db}
	if err := s.Init(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *SQLiteStore) Init() error {
	if _, err := s.db.Exec(`PRAGMA journal_mode=WAL;`); err != nil {
		return err
	}
	if _, err := s.db.Exec(`PRAGMA busy_timeout=5000;`); err != nil {
		return err
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS calls (
			id TEXT PRIMARY KEY,
			operation TEXT NOT NULL,
			method TEXT NOT NULL,
			route TEXT NOT NULL,
			query TEXT,
			body_fields TEXT,
			status_code INTEGER NOT NULL,
			attempts INTEGER NOT NULL,
			latency_ms INTEGER NOT NULL,
			error_msg TEXT NOT NULL,
			created_at DATETIME NOT NULL
		);`,
		`CREATE INDEX IF NOT EXISTS idx_calls_created ON calls(created_at);`,
		`CREATE TABLE IF NOT EXISTS credentials (
			realm_id TEXT PRIMARY KEY,
			refresh_token TEXT NOT NULL,
			origin_token TEXT NOT NULL DEFAULT '',
			updated_at DATETIME NOT NULL
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.Exec(stmt); err != nil {
			return err
		}
	}
	// Databases created before origin_token existed.
	if _, err := s.db.Exec(`ALTER TABLE credentials ADD COLUMN origin_token TEXT NOT NULL DEFAULT ''`); err != nil && !strings.Contains(err.Error(), "duplicate column") {
		return err
	}
	return nil
}

func (s *SQLiteStore) RecordCall(ctx context.Context, rec types.CallRecord) error {
	if rec.ID == "" {
		return errors.New("call record has no id")
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = time.Now().UTC()
	}
	q, err := encodeJSON(rec.Query)
	if err != nil {
		return fmt.Errorf("encode query: %w", err)
	}
	fields, err := encodeJSON(rec.BodyFields)
	if err != nil {
		return fmt.Errorf("encode body fields: %w", err)
	}
	_, err = s.db.ExecContext(ctx, `INSERT INTO calls(`+callColumns+`) VALUES(?,?,?,?,?,?,?,?,?,?,?)`,
		rec.ID, rec.Operation, rec.Method, rec.Route, q, fields, rec.StatusCode, rec.Attempts, rec.LatencyMs, rec.Error, rec.CreatedAt)
	return err
}

// ListCalls returns the newest calls first. limit <= 0 returns all.
func (s *SQLiteStore) ListCalls(ctx context.Context, limit int) ([]types.CallRecord, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := s.db.QueryContext(ctx, `SELECT `+callColumns+` FROM calls ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make([]types.CallRecord, 0)
	for rows.Next() {
		rec, err := scanCall(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	return out, rows.Err()
}

func (s *SQLiteStore) GetCall(ctx context.Context, id string) (*types.CallRecord, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+callColumns+` FROM calls WHERE id=?`, id)
	rec, err := scanCall(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("call %s: %w", id, ErrNotFound)
	}
	return rec, err
}

// LoadRefreshToken returns empty strings when no token was saved for realmID.
func (s *SQLiteStore) LoadRefreshToken(ctx context.Context, realmID string) (string, string, error) {
	var token, origin string
	err := s.db.QueryRowContext(ctx, `SELECT refresh_token,origin_token FROM credentials WHERE realm_id=?`, realmID).Scan(&token, &origin)
	if errors.Is(err, sql.ErrNoRows) {
		return "", "", nil
	}
	return token, origin, err
}

// SaveRefreshToken stores token together with the configured token it was
// rotated from.
func (s *SQLiteStore) SaveRefreshToken(ctx context.Context, realmID, token, origin string) error {
	_, err := s.db.ExecContext(ctx, `INSERT INTO credentials(realm_id,refresh_token,origin_token,updated_at) VALUES(?,?,?,?)
	ON CONFLICT(realm_id) DO UPDATE SET refresh_token=excluded.refresh_token,origin_token=excluded.origin_token,updated_at=excluded.updated_at`,
		realmID, token, origin, time.Now().UTC())
	return err
}

func (s *SQLiteStore) Close() error {
	if s.db == nil {
		return errors.New("store is nil")
	}
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanCall(r scanner) (*types.CallRecord, error) {
	var rec types.CallRecord
	var q, fields sql.NullString
	if err := r.Scan(&rec.ID, &rec.Operation, &rec.Method, &rec.Route, &q, &fields, &rec.StatusCode, &rec.Attempts, &rec.LatencyMs, &rec.Error, &rec.CreatedAt); err != nil {
		return nil, err
	}
	if q.Valid && q.String != "" {
		_ = json.Unmarshal([]byte(q.String), &rec.Query)
	}
	if fields.Valid && fields.String != "" {
		_ = json.Unmarshal([]byte(fields.String), &rec.BodyFields)
	}
	return &rec, nil
}

func encodeJSON(v any) (sql.NullString, error) {
	switch val := v.(type) {
	case map[string]any:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	case []string:
		if len(val) == 0 {
			return sql.NullString{}, nil
		}
	}
	data, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(data), Valid: true}, nil
}
