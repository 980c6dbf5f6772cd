// Package postgres provides a PostgreSQL implementation of storage.Store.
// It uses pgx/v5 for connection pooling and embedded SQL migrations.
package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/kikaiken/kikaiken/pkg/debug"
	"github.com/kikaiken/kikaiken/pkg/storage"
)

// uniqueViolation is the PostgreSQL SQLSTATE for unique_violation.
const uniqueViolation = "23505"

// Store is a PostgreSQL-backed storage.Store.
type Store struct {
	pool *pgxpool.Pool
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New creates a new PostgreSQL store with the given configuration.
// If MigrateOnStart is true, schema migrations are applied automatically.
func New(ctx context.Context, cfg Config) (*Store, error) {
	cfg = cfg.withDefaults()

	poolCfg, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parsing DSN: %w", err)
	}

	poolCfg.MaxConns = cfg.MaxConns
	poolCfg.MinConns = cfg.MinConns
	poolCfg.MaxConnLifetime = cfg.MaxConnLifetime
	poolCfg.MaxConnIdleTime = cfg.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("creating connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}

	s := &Store{pool: pool}

	if cfg.MigrateOnStart {
		if err := s.migrate(ctx); err != nil {
			pool.Close()
			return nil, fmt.Errorf("running migrations: %w", err)
		}
	}

	debug.Log("storage", "postgres pool ready", "max_conns", cfg.MaxConns)
	return s, nil
}

// ListKeys returns all keys ordered by ID.
func (s *Store) ListKeys(ctx context.Context) ([]storage.APIKeyRecord, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, model_type, model_name, api_key, notice, created_at FROM llm_apikey ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("querying keys: %w", err)
	}
	keys, err := pgx.CollectRows(rows, scanKey)
	if err != nil {
		return nil, fmt.Errorf("scanning keys: %w", err)
	}
	return keys, nil
}

// AddKey stores a key. Returns storage.ErrConflict for a duplicate.
func (s *Store) AddKey(ctx context.Context, rec *storage.APIKeyRecord) error {
	err := s.pool.QueryRow(ctx, `
		INSERT INTO llm_apikey (model_type, model_name, api_key, notice)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at
	`, rec.ProviderType, rec.ModelName, rec.Key, rec.Notice).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return storage.ErrConflict
		}
		return fmt.Errorf("inserting key: %w", err)
	}
	return nil
}

// DeleteKey removes a key by ID.
func (s *Store) DeleteKey(ctx context.Context, id int64) error {
	result, err := s.pool.Exec(ctx, "DELETE FROM llm_apikey WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("deleting key: %w", err)
	}
	if result.RowsAffected() == 0 {
		return storage.ErrNotFound
	}
	return nil
}

// FindKey returns the oldest matching key.
func (s *Store) FindKey(ctx context.Context, providerType, modelName string) (*storage.APIKeyRecord, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, model_type, model_name, api_key, notice, created_at FROM llm_apikey
		WHERE model_type = $1 AND ($2::text = '' OR model_name = $2)
		ORDER BY id LIMIT 1
	`, providerType, modelName)
	if err != nil {
		return nil, fmt.Errorf("querying key: %w", err)
	}
	rec, err := pgx.CollectExactlyOneRow(rows, scanKey)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, storage.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scanning key: %w", err)
	}
	return &rec, nil
}

// AddRecord stores a user message truncated to storage.MaxRecordContent.
func (s *Store) AddRecord(ctx context.Context, uid, content string) (*storage.UserRecord, error) {
	rec := &storage.UserRecord{UID: uid, Content: storage.TruncateContent(content)}
	err := s.pool.QueryRow(ctx, `
		INSERT INTO kikaiken_user_record (qid, content) VALUES ($1, $2)
		RETURNING id, record_time
	`, rec.UID, rec.Content).Scan(&rec.ID, &rec.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("inserting record: %w", err)
	}
	return rec, nil
}

// QueryRecords returns up to limit records of uid, newest first.
func (s *Store) QueryRecords(ctx context.Context, uid string, limit int) ([]storage.UserRecord, error) {
	if limit <= 0 {
		return []storage.UserRecord{}, nil
	}
	rows, err := s.pool.Query(ctx, `
		SELECT id, qid, record_time, content FROM kikaiken_user_record
		WHERE qid = $1 ORDER BY record_time DESC, id DESC LIMIT $2
	`, uid, limit)
	if err != nil {
		return nil, fmt.Errorf("querying records: %w", err)
	}
	recs, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (storage.UserRecord, error) {
		var r storage.UserRecord
		err := row.Scan(&r.ID, &r.UID, &r.CreatedAt, &r.Content)
		return r, err
	})
	if err != nil {
		return nil, fmt.Errorf("scanning records: %w", err)
	}
	if recs == nil {
		recs = []storage.UserRecord{}
	}
	return recs, nil
}

// GetSetting returns the value stored for key.
func (s *Store) GetSetting(ctx context.Context, key string) (string, error) {
	var v string
	err := s.pool.QueryRow(ctx, "SELECT value FROM config_persistence WHERE key = $1", key).Scan(&v)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", storage.ErrNotFound
	}
	if err != nil {
		return "", fmt.Errorf("querying setting: %w", err)
	}
	return v, nil
}

// SetSetting inserts or replaces the value of key.
func (s *Store) SetSetting(ctx context.Context, key, value string) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO config_persistence (key, value) VALUES ($1, $2)
		ON CONFLICT (key) DO UPDATE SET value = EXCLUDED.value
	`, key, value)
	if err != nil {
		return fmt.Errorf("upserting setting: %w", err)
	}
	return nil
}

// HealthCheck verifies the database connection.
func (s *Store) HealthCheck(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close releases the connection pool.
func (s *Store) Close() error {
	s.pool.Close()
	return nil
}

func scanKey(row pgx.CollectableRow) (storage.APIKeyRecord, error) {
	var rec storage.APIKeyRecord
	err := row.Scan(&rec.ID, &rec.ProviderType, &rec.ModelName, &rec.Key, &rec.Notice, &rec.CreatedAt)
	return rec, err
}

// isDuplicateKey checks if the error is a PostgreSQL unique violation.
func isDuplicateKey(err error) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == uniqueViolation
}
