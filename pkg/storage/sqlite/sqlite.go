// Package sqlite provides a storage.Store backed by a single SQLite file,
// using the pure-Go modernc.org/sqlite driver. The schema keeps the table
// names of existing bot backup files (*.kbp) so they can be opened as is.
package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/kikaiken/kikaiken/pkg/debug"
	"github.com/kikaiken/kikaiken/pkg/storage"
)

// Config holds SQLite settings.
type Config struct {
	// Path of the database file. See ResolvePath for the fallback order.
	Path string

	// Dir is searched for existing *.kbp files (default: ".").
	Dir string

	// BusyTimeout is how long to wait for locks before failing (default: 5s).
	BusyTimeout time.Duration

	// LookupEnv overrides os.LookupEnv for BACKUP_PATH.
	LookupEnv func(string) (string, bool)
}

const schema = `
CREATE TABLE IF NOT EXISTS llm_apikey (
	id         INTEGER PRIMARY KEY AUTOINCREMENT,
	model_type TEXT    NOT NULL,
	model_name TEXT    NOT NULL DEFAULT '',
	api_key    TEXT    NOT NULL,
	notice     TEXT    NOT NULL DEFAULT '',
	created_at INTEGER NOT NULL DEFAULT 0,
	UNIQUE (model_type, model_name, api_key)
);

CREATE TABLE IF NOT EXISTS kikaiken_user_record (
	id          INTEGER PRIMARY KEY AUTOINCREMENT,
	qid         TEXT    NOT NULL,
	record_time INTEGER NOT NULL,
	content     TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_user_record_qid ON kikaiken_user_record (qid, record_time);

CREATE TABLE IF NOT EXISTS config_persistence (
	id    INTEGER PRIMARY KEY AUTOINCREMENT,
	key   TEXT    NOT NULL UNIQUE,
	value TEXT    NOT NULL
);
`

// Store is a SQLite-backed storage.Store.
type Store struct {
	db   *sql.DB
	path string
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New opens (creating if needed) the database file chosen by ResolvePath
// and ensures the schema exists.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.BusyTimeout == 0 {
		cfg.BusyTimeout = 5 * time.Second
	}
	path := ResolvePath(cfg, time.Now())
	debug.Log("storage", "opening sqlite database", "path", path)

	dsn := fmt.Sprintf("file:%s?_pragma=busy_timeout(%d)&_pragma=foreign_keys(1)",
		path, cfg.BusyTimeout.Milliseconds())
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	// Single writer.
	db.SetMaxOpenConns(1)

	s := newStore(db, path)
	if err := s.initSchema(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing schema: %w", err)
	}

	slog.Info("sqlite storage ready", "path", path)
	return s, nil
}

func newStore(db *sql.DB, path string) *Store {
	return &Store{db: db, path: path}
}

// Path returns the database file in use.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) initSchema(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, schema)
	return err
}

// ListKeys returns all keys ordered by ID.
func (s *Store) ListKeys(ctx context.Context) ([]storage.APIKeyRecord, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, model_type, model_name, api_key, notice, created_at FROM llm_apikey ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	defer rows.Close()

	var out []storage.APIKeyRecord
	for rows.Next() {
		rec, err := scanKey(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating keys: %w", err)
	}
	return out, nil
}

// AddKey stores a key.
func (s *Store) AddKey(ctx context.Context, rec *storage.APIKeyRecord) error {
	now := time.Now()
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO llm_apikey (model_type, model_name, api_key, notice, created_at) VALUES (?, ?, ?, ?, ?)`,
		rec.ProviderType, rec.ModelName, rec.Key, rec.Notice, now.UnixNano())
	if err != nil {
		if isUniqueViolation(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting key: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("reading key id: %w", err)
	}
	rec.ID = id
	rec.CreatedAt = now
	return nil
}

// DeleteKey removes a key by ID.
func (s *Store) DeleteKey(ctx context.Context, id int64) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM llm_apikey WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	if n == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FindKey returns the oldest matching key.
func (s *Store) FindKey(ctx context.Context, providerType, modelName string) (*storage.APIKeyRecord, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT id, model_type, model_name, api_key, notice, created_at FROM llm_apikey
		 WHERE model_type = ? AND (? = '' OR model_name = ?)
		 ORDER BY id LIMIT 1`,
		providerType, modelName, modelName)
	rec, err := scanKey(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	return rec, err
}

// AddRecord stores a user message truncated to storage.MaxRecordContent.
func (s *Store) AddRecord(ctx context.Context, uid, content string) (*storage.UserRecord, error) {
	rec := &storage.UserRecord{
		UID:       uid,
		Content:   storage.TruncateContent(content),
		CreatedAt: time.Now(),
	}
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO kikaiken_user_record (qid, record_time, content) VALUES (?, ?, ?)`,
		rec.UID, rec.CreatedAt.UnixNano(), rec.Content)
	if err != nil {
		return nil, fmt.Errorf("inserting record: %w", err)
	}
	if rec.ID, err = res.LastInsertId(); err != nil {
		return nil, fmt.Errorf("reading record id: %w", err)
	}
	return rec, nil
}

// QueryRecords returns up to limit records of uid, newest first.
func (s *Store) QueryRecords(ctx context.Context, uid string, limit int) ([]storage.UserRecord, error) {
	if limit <= 0 {
		return []storage.UserRecord{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT id, qid, record_time, content FROM kikaiken_user_record
		 WHERE qid = ? ORDER BY record_time DESC, id DESC LIMIT ?`,
		uid, limit)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	defer rows.Close()

	out := []storage.UserRecord{}
	for rows.Next() {
		var rec storage.UserRecord
		var ts int64
		if err := rows.Scan(&rec.ID, &rec.UID, &ts, &rec.Content); err != nil {
			return nil, fmt.Errorf("scanning record: %w", err)
		}
		rec.CreatedAt = time.Unix(0, ts)
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterating records: %w", err)
	}
	return out, nil
}

// GetSetting returns the value stored for key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `SELECT value FROM config_persistence WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying setting: %w", err)
	}
	return v, nil
}

// SetSetting inserts or replaces the value of key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO config_persistence (key, value) VALUES (?, ?)
		 ON CONFLICT (key) DO UPDATE SET value = excluded.value`,
		key, value)
	if err != nil {
		return fmt.Errorf("upserting setting: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database.
func (s *Store) Close() error {
	return s.db.Close()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanKey(row scanner) (*storage.APIKeyRecord, error) {
	var rec storage.APIKeyRecord
	var ts int64
	if err := row.Scan(&rec.ID, &rec.ProviderType, &rec.ModelName, &rec.Key, &rec.Notice, &ts); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("scanning key: %w", err)
	}
	if ts != 0 {
		rec.CreatedAt = time.Unix(0, ts)
	}
	return &rec, nil
}

// isUniqueViolation reports whether err is a UNIQUE or PRIMARY KEY
// constraint failure.
func isUniqueViolation(err error) bool {
	var sqliteErr *sqlite.Error
	if errors.As(err, &sqliteErr) {
		code := sqliteErr.Code()
		return code == sqlite3.SQLITE_CONSTRAINT_UNIQUE || code == sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY
	}
	return strings.Contains(err.Error(), "UNIQUE constraint failed")
}
