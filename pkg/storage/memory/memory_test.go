package memory

import (
	"context"
	"fmt"
	"testing"

	"github.com/kikaiken/kikaiken/pkg/storage"
	"github.com/kikaiken/kikaiken/pkg/storage/storagetest"
)

func TestConformance(t *testing.T) {
	storagetest.Run(t, func(t *testing.T) storage.Store { return New(0) })
}

func TestRecordEviction(t *testing.T) {
	s := New(3)
	ctx := context.Background()

	s.AddRecord(ctx, "a", "a-1")
	s.AddRecord(ctx, "b", "b-1")
	s.AddRecord(ctx, "a", "a-2")
	// Evicts a-1, the oldest record overall.
	s.AddRecord(ctx, "b", "b-2")

	recs, _ := s.QueryRecords(ctx, "a", 10)
	if len(recs) != 1 || recs[0].Content != "a-2" {
		t.Errorf("records of a = %+v, want only a-2", recs)
	}
	recs, _ = s.QueryRecords(ctx, "b", 10)
	if len(recs) != 2 {
		t.Errorf("expected 2 records of b, got %d", len(recs))
	}
	if s.records.Len() != 3 {
		t.Errorf("store holds %d records, want 3", s.records.Len())
	}
}

func TestRecordEviction_DropsEmptyUser(t *testing.T) {
	s := New(1)
	ctx := context.Background()

	s.AddRecord(ctx, "a", "first")
	s.AddRecord(ctx, "b", "second")

	if _, ok := s.byUID["a"]; ok {
		t.Error("user index should drop users without records")
	}
}

func TestRecordEviction_Unlimited(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	for i := 0; i < 500; i++ {
		s.AddRecord(ctx, "a", fmt.Sprintf("msg-%d", i))
	}
	recs, _ := s.QueryRecords(ctx, "a", 1000)
	if len(recs) != 500 {
		t.Errorf("expected 500 records, got %d", len(recs))
	}
}

func TestQueryRecords_NonPositiveLimit(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.AddRecord(ctx, "a", "x")

	recs, err := s.QueryRecords(ctx, "a", 0)
	if err != nil {
		t.Fatalf("QueryRecords: %v", err)
	}
	if len(recs) != 0 {
		t.Errorf("limit 0 should return nothing, got %d", len(recs))
	}
}

func TestFindKey_ReturnsCopy(t *testing.T) {
	s := New(0)
	ctx := context.Background()
	s.AddKey(ctx, &storage.APIKeyRecord{ProviderType: "deepseek", Key: "sk-1"})

	got, _ := s.FindKey(ctx, "deepseek", "")
	got.Key = "mutated"

	again, _ := s.FindKey(ctx, "deepseek", "")
	if again.Key != "sk-1" {
		t.Error("FindKey must not expose internal state")
	}
}
