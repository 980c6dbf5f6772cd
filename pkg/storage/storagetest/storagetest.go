// Package storagetest provides a behavioural test suite shared by all
// storage.Store backends.
package storagetest

import (
	"context"
	"errors"
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/kikaiken/kikaiken/pkg/storage"
)

// Factory returns an empty store. The suite closes it when the subtest ends.
type Factory func(t *testing.T) storage.Store

// Run exercises every storage.Store operation against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Keys", func(t *testing.T) { testKeys(t, newStore(t)) })
	t.Run("KeyConflict", func(t *testing.T) { testKeyConflict(t, newStore(t)) })
	t.Run("FindKey", func(t *testing.T) { testFindKey(t, newStore(t)) })
	t.Run("Records", func(t *testing.T) { testRecords(t, newStore(t)) })
	t.Run("RecordTruncation", func(t *testing.T) { testRecordTruncation(t, newStore(t)) })
	t.Run("Settings", func(t *testing.T) { testSettings(t, newStore(t)) })
	t.Run("HealthCheck", func(t *testing.T) {
		s := newStore(t)
		t.Cleanup(func() { s.Close() })
		if err := s.HealthCheck(context.Background()); err != nil {
			t.Errorf("HealthCheck: %v", err)
		}
	})
}

func testKeys(t *testing.T, s storage.Store) {
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	keys, err := s.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 0 {
		t.Fatalf("expected empty store, got %d keys", len(keys))
	}

	first := &storage.APIKeyRecord{ProviderType: "deepseek", ModelName: "deepseek-chat", Key: "sk-1", Notice: "main"}
	second := &storage.APIKeyRecord{ProviderType: "siliconflow", ModelName: "deepseek-ai/DeepSeek-V3", Key: "sk-2"}
	for _, rec := range []*storage.APIKeyRecord{first, second} {
		if err := s.AddKey(ctx, rec); err != nil {
			t.Fatalf("AddKey: %v", err)
		}
	}
	if first.ID == 0 || second.ID <= first.ID {
		t.Errorf("expected increasing IDs, got %d and %d", first.ID, second.ID)
	}
	if first.CreatedAt.IsZero() {
		t.Error("AddKey should set CreatedAt")
	}

	keys, err = s.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys: %v", err)
	}
	if len(keys) != 2 {
		t.Fatalf("expected 2 keys, got %d", len(keys))
	}
	if keys[0].ID != first.ID || keys[0].Key != "sk-1" || keys[0].Notice != "main" {
		t.Errorf("first key = %+v", keys[0])
	}
	if keys[1].ProviderType != "siliconflow" || keys[1].ModelName != "deepseek-ai/DeepSeek-V3" {
		t.Errorf("second key = %+v", keys[1])
	}

	if err := s.DeleteKey(ctx, first.ID); err != nil {
		t.Fatalf("DeleteKey: %v", err)
	}
	if err := s.DeleteKey(ctx, first.ID); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second DeleteKey: expected ErrNotFound, got %v", err)
	}
	keys, err = s.ListKeys(ctx)
	if err != nil {
		t.Fatalf("ListKeys after delete: %v", err)
	}
	if len(keys) != 1 || keys[0].ID != second.ID {
		t.Errorf("after delete: %+v", keys)
	}
}

func testKeyConflict(t *testing.T, s storage.Store) {
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	if err := s.AddKey(ctx, &storage.APIKeyRecord{ProviderType: "deepseek", ModelName: "deepseek-chat", Key: "sk-dup"}); err != nil {
		t.Fatalf("AddKey: %v", err)
	}
	err := s.AddKey(ctx, &storage.APIKeyRecord{ProviderType: "deepseek", ModelName: "deepseek-chat", Key: "sk-dup"})
	if !errors.Is(err, storage.ErrConflict) {
		t.Errorf("expected ErrConflict, got %v", err)
	}
	// Same key for another model is allowed.
	if err := s.AddKey(ctx, &storage.APIKeyRecord{ProviderType: "deepseek", ModelName: "deepseek-reasoner", Key: "sk-dup"}); err != nil {
		t.Errorf("AddKey for other model: %v", err)
	}
}

func testFindKey(t *testing.T, s storage.Store) {
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	if _, err := s.FindKey(ctx, "deepseek", ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("empty store: expected ErrNotFound, got %v", err)
	}

	recs := []*storage.APIKeyRecord{
		{ProviderType: "siliconflow", ModelName: "Qwen/Qwen2.5-7B-Instruct", Key: "sk-qwen"},
		{ProviderType: "siliconflow", ModelName: "deepseek-ai/DeepSeek-V3", Key: "sk-v3"},
		{ProviderType: "deepseek", ModelName: "deepseek-chat", Key: "sk-ds"},
	}
	for _, r := range recs {
		if err := s.AddKey(ctx, r); err != nil {
			t.Fatalf("AddKey: %v", err)
		}
	}

	got, err := s.FindKey(ctx, "siliconflow", "")
	if err != nil {
		t.Fatalf("FindKey: %v", err)
	}
	if got.Key != "sk-qwen" {
		t.Errorf("expected oldest siliconflow key, got %q", got.Key)
	}

	got, err = s.FindKey(ctx, "siliconflow", "deepseek-ai/DeepSeek-V3")
	if err != nil {
		t.Fatalf("FindKey with model: %v", err)
	}
	if got.Key != "sk-v3" {
		t.Errorf("expected model match, got %q", got.Key)
	}

	if _, err := s.FindKey(ctx, "deepseek", "deepseek-reasoner"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("unknown model: expected ErrNotFound, got %v", err)
	}
}

func testRecords(t *testing.T, s storage.Store) {
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	for _, c := range []string{"one", "two", "three"} {
		rec, err := s.AddRecord(ctx, "10001", c)
		if err != nil {
			t.Fatalf("AddRecord: %v", err)
		}
		if rec.ID == 0 || rec.UID != "10001" || rec.Content != c || rec.CreatedAt.IsZero() {
			t.Errorf("AddRecord returned %+v", rec)
		}
	}
	if _, err := s.AddRecord(ctx, "20002", "other user"); err != nil {
		t.Fatalf("AddRecord: %v", err)
	}

	recs, err := s.QueryRecords(ctx, "10001", 2)
	if err != nil {
		t.Fatalf("QueryRecords: %v", err)
	}
	if len(recs) != 2 {
		t.Fatalf("expected 2 records, got %d", len(recs))
	}
	if recs[0].Content != "three" || recs[1].Content != "two" {
		t.Errorf("expected newest first, got %q, %q", recs[0].Content, recs[1].Content)
	}

	recs, err = s.QueryRecords(ctx, "10001", 10)
	if err != nil {
		t.Fatalf("QueryRecords: %v", err)
	}
	if len(recs) != 3 {
		t.Errorf("expected 3 records, got %d", len(recs))
	}
	for _, r := range recs {
		if r.UID != "10001" {
			t.Errorf("record of another user leaked: %+v", r)
		}
	}

	recs, err = s.QueryRecords(ctx, "unknown", 10)
	if err != nil {
		t.Fatalf("QueryRecords unknown: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("expected no records, got %d", len(recs))
	}
}

func testRecordTruncation(t *testing.T, s storage.Store) {
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	long := strings.Repeat("研", storage.MaxRecordContent+20)
	rec, err := s.AddRecord(ctx, "10001", long)
	if err != nil {
		t.Fatalf("AddRecord: %v", err)
	}
	if n := utf8.RuneCountInString(rec.Content); n != storage.MaxRecordContent {
		t.Errorf("returned content has %d characters, want %d", n, storage.MaxRecordContent)
	}

	recs, err := s.QueryRecords(ctx, "10001", 1)
	if err != nil || len(recs) != 1 {
		t.Fatalf("QueryRecords: %v, %d", err, len(recs))
	}
	if recs[0].Content != rec.Content {
		t.Error("stored content differs from returned content")
	}
}

func testSettings(t *testing.T, s storage.Store) {
	t.Cleanup(func() { s.Close() })
	ctx := context.Background()

	if _, err := s.GetSetting(ctx, "talk.model"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if err := s.SetSetting(ctx, "talk.model", "deepseek-chat"); err != nil {
		t.Fatalf("SetSetting: %v", err)
	}
	if err := s.SetSetting(ctx, "talk.model", "deepseek-reasoner"); err != nil {
		t.Fatalf("SetSetting overwrite: %v", err)
	}
	v, err := s.GetSetting(ctx, "talk.model")
	if err != nil {
		t.Fatalf("GetSetting: %v", err)
	}
	if v != "deepseek-reasoner" {
		t.Errorf("setting = %q, want overwritten value", v)
	}
}
