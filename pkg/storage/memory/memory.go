// Package memory provides an in-memory implementation of storage.Store for
// testing and lightweight deployments. Data is lost when the process
// restarts. Optional eviction bounds the number of user records kept.
package memory

import (
	"container/list"
	"context"
	"sort"
	"sync"
	"time"

	"github.com/kikaiken/kikaiken/pkg/storage"
)

// Store is an in-memory storage.Store.
type Store struct {
	mu       sync.RWMutex
	keys     map[int64]storage.APIKeyRecord
	nextKey  int64
	settings map[string]string

	records    *list.List // front = newest, back = oldest
	byUID      map[string][]*list.Element
	nextRecord int64
	maxRecords int // 0 = unlimited
}

// Ensure Store implements storage.Store at compile time.
var _ storage.Store = (*Store)(nil)

// New creates a new in-memory store. If maxRecords is 0, user records grow
// without limit. Otherwise the oldest record is evicted when the limit is
// reached.
func New(maxRecords int) *Store {
	return &Store{
		keys:       make(map[int64]storage.APIKeyRecord),
		settings:   make(map[string]string),
		records:    list.New(),
		byUID:      make(map[string][]*list.Element),
		maxRecords: maxRecords,
	}
}

// ListKeys returns all keys ordered by ID.
func (s *Store) ListKeys(_ context.Context) ([]storage.APIKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]storage.APIKeyRecord, 0, len(s.keys))
	for _, k := range s.keys {
		out = append(out, k)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// AddKey stores a key. Returns storage.ErrConflict for a duplicate.
func (s *Store) AddKey(_ context.Context, rec *storage.APIKeyRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, k := range s.keys {
		if k.ProviderType == rec.ProviderType && k.ModelName == rec.ModelName && k.Key == rec.Key {
			return storage.ErrConflict
		}
	}

	s.nextKey++
	rec.ID = s.nextKey
	rec.CreatedAt = time.Now()
	s.keys[rec.ID] = *rec
	return nil
}

// DeleteKey removes a key by ID.
func (s *Store) DeleteKey(_ context.Context, id int64) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.keys[id]; !ok {
		return storage.ErrNotFound
	}
	delete(s.keys, id)
	return nil
}

// FindKey returns the oldest matching key.
func (s *Store) FindKey(_ context.Context, providerType, modelName string) (*storage.APIKeyRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *storage.APIKeyRecord
	for _, k := range s.keys {
		if k.ProviderType != providerType || (modelName != "" && k.ModelName != modelName) {
			continue
		}
		if found == nil || k.ID < found.ID {
			k := k
			found = &k
		}
	}
	if found == nil {
		return nil, storage.ErrNotFound
	}
	return found, nil
}

// AddRecord stores a user message, evicting the oldest record at capacity.
func (s *Store) AddRecord(_ context.Context, uid, content string) (*storage.UserRecord, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.maxRecords > 0 && s.records.Len() >= s.maxRecords {
		s.evictOldest()
	}

	s.nextRecord++
	rec := &storage.UserRecord{
		ID:        s.nextRecord,
		UID:       uid,
		Content:   storage.TruncateContent(content),
		CreatedAt: time.Now(),
	}
	elem := s.records.PushFront(rec)
	s.byUID[uid] = append(s.byUID[uid], elem)

	out := *rec
	return &out, nil
}

// QueryRecords returns up to limit records of uid, newest first.
func (s *Store) QueryRecords(_ context.Context, uid string, limit int) ([]storage.UserRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	elems := s.byUID[uid]
	out := make([]storage.UserRecord, 0, min(len(elems), max(limit, 0)))
	for i := len(elems) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, *elems[i].Value.(*storage.UserRecord))
	}
	return out, nil
}

// GetSetting returns the value stored for key.
func (s *Store) GetSetting(_ context.Context, key string) (string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	v, ok := s.settings[key]
	if !ok {
		return "", storage.ErrNotFound
	}
	return v, nil
}

// SetSetting inserts or replaces the value of key.
func (s *Store) SetSetting(_ context.Context, key, value string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.settings[key] = value
	return nil
}

// HealthCheck always returns nil for the in-memory store.
func (s *Store) HealthCheck(_ context.Context) error {
	return nil
}

// Close is a no-op for the in-memory store.
func (s *Store) Close() error {
	return nil
}

// evictOldest removes the oldest record. Must be called with the write lock.
func (s *Store) evictOldest() {
	back := s.records.Back()
	if back == nil {
		return
	}
	rec := back.Value.(*storage.UserRecord)
	s.records.Remove(back)

	elems := s.byUID[rec.UID]
	for i, e := range elems {
		if e == back {
			elems = append(elems[:i], elems[i+1:]...)
			break
		}
	}
	if len(elems) == 0 {
		delete(s.byUID, rec.UID)
	} else {
		s.byUID[rec.UID] = elems
	}
}
