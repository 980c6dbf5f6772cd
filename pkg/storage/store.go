package storage

import (
	"context"
	"time"
	"unicode/utf8"
)

// MaxRecordContent is the maximum number of characters kept for a user
// record. Longer content is truncated.
const MaxRecordContent = 255

// APIKeyRecord is a stored vendor API key.
type APIKeyRecord struct {
	ID           int64
	ProviderType string
	ModelName    string
	Key          string
	Notice       string
	CreatedAt    time.Time
}

// UserRecord is a message a user sent to the bot.
type UserRecord struct {
	ID        int64
	UID       string
	Content   string
	CreatedAt time.Time
}

// KeyStore manages vendor API keys. Keys are unique per
// (provider type, model name, key).
type KeyStore interface {
	// ListKeys returns all keys ordered by ID.
	ListKeys(ctx context.Context) ([]APIKeyRecord, error)

	// AddKey stores a key and fills in its ID and CreatedAt.
	// Returns ErrConflict for a duplicate.
	AddKey(ctx context.Context, rec *APIKeyRecord) error

	// DeleteKey removes a key. Returns ErrNotFound if it does not exist.
	DeleteKey(ctx context.Context, id int64) error

	// FindKey returns the oldest key for the provider type. When modelName
	// is non-empty only keys for that model match.
	FindKey(ctx context.Context, providerType, modelName string) (*APIKeyRecord, error)
}

// RecordStore keeps the message history of users.
type RecordStore interface {
	// AddRecord stores content for uid, truncated to MaxRecordContent.
	AddRecord(ctx context.Context, uid, content string) (*UserRecord, error)

	// QueryRecords returns up to limit records of uid, newest first.
	QueryRecords(ctx context.Context, uid string, limit int) ([]UserRecord, error)
}

// SettingStore persists global key/value settings.
type SettingStore interface {
	// GetSetting returns ErrNotFound for unknown keys.
	GetSetting(ctx context.Context, key string) (string, error)

	// SetSetting inserts or replaces the value of key.
	SetSetting(ctx context.Context, key, value string) error
}

// Store is the full persistence backend.
type Store interface {
	KeyStore
	RecordStore
	SettingStore

	// HealthCheck verifies the backend is reachable.
	HealthCheck(ctx context.Context) error

	Close() error
}

// TruncateContent shortens s to MaxRecordContent characters without
// splitting a multi-byte character.
func TruncateContent(s string) string {
	if utf8.RuneCountInString(s) <= MaxRecordContent {
		return s
	}
	n := 0
	for i := range s {
		if n == MaxRecordContent {
			return s[:i]
		}
		n++
	}
	return s
}
