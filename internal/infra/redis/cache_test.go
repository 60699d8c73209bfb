package redis

import (
	"context"
	"testing"
	"time"

	"github.com/dpin8449/KOMBUCHAS/internal/domain"
)

func newTestBatchCache(t *testing.T) *RedisBatchCache {
	t.Helper()

	cache, err := NewRedisBatchCache(newTestRedisClient(t), time.Minute)
	if err != nil {
		t.Fatalf("NewRedisBatchCache() error = %v", err)
	}
	return cache
}

func sampleBatch(id string) domain.Batch {
	start := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC)
	days := 10
	return domain.Batch{
		ID:        id,
		Type:      domain.TypeBase,
		StartDate: &start,
		Days:      &days,
	}
}

func TestRedisBatchCacheBatchRoundTrip(t *testing.T) {
	t.Parallel()

	cache := newTestBatchCache(t)
	ctx := context.Background()

	if _, found, err := cache.GetBatch(ctx, "11B2"); err != nil || found {
		t.Fatalf("GetBatch() on empty cache = found %v, err %v", found, err)
	}

	original := sampleBatch("11B2")
	if err := cache.SetBatch(ctx, &original); err != nil {
		t.Fatalf("SetBatch() error = %v", err)
	}

	cached, found, err := cache.GetBatch(ctx, "11B2")
	if err != nil {
		t.Fatalf("GetBatch() error = %v", err)
	}
	if !found {
		t.Fatal("GetBatch() should hit after SetBatch")
	}
	if cached.ID != "11B2" || cached.Type != domain.TypeBase {
		t.Fatalf("cached batch = %+v, want original fields", cached)
	}
	if cached.Days == nil || *cached.Days != 10 {
		t.Fatalf("cached days = %v, want 10", cached.Days)
	}
	if cached.StartDate == nil || !cached.StartDate.Equal(*original.StartDate) {
		t.Fatalf("cached start date = %v, want %v", cached.StartDate, original.StartDate)
	}
}

func TestRedisBatchCacheListRoundTrip(t *testing.T) {
	t.Parallel()

	cache := newTestBatchCache(t)
	ctx := context.Background()

	if _, found, err := cache.GetList(ctx); err != nil || found {
		t.Fatalf("GetList() on empty cache = found %v, err %v", found, err)
	}

	if err := cache.SetList(ctx, []domain.Batch{sampleBatch("11B2"), sampleBatch("12B2")}); err != nil {
		t.Fatalf("SetList() error = %v", err)
	}

	batches, found, err := cache.GetList(ctx)
	if err != nil {
		t.Fatalf("GetList() error = %v", err)
	}
	if !found {
		t.Fatal("GetList() should hit after SetList")
	}
	if len(batches) != 2 || batches[0].ID != "11B2" || batches[1].ID != "12B2" {
		t.Fatalf("cached list = %+v, want 11B2 and 12B2 in order", batches)
	}
}

func TestRedisBatchCacheEmptyListIsAHit(t *testing.T) {
	t.Parallel()

	cache := newTestBatchCache(t)
	ctx := context.Background()

	if err := cache.SetList(ctx, []domain.Batch{}); err != nil {
		t.Fatalf("SetList() error = %v", err)
	}

	batches, found, err := cache.GetList(ctx)
	if err != nil {
		t.Fatalf("GetList() error = %v", err)
	}
	if !found {
		t.Fatal("an empty cached list is still a hit")
	}
	if len(batches) != 0 {
		t.Fatalf("cached list = %+v, want empty", batches)
	}
}

func TestRedisBatchCacheInvalidateDropsListAndBatches(t *testing.T) {
	t.Parallel()

	cache := newTestBatchCache(t)
	ctx := context.Background()

	kept := sampleBatch("10B2")
	dropped := sampleBatch("11B2")
	if err := cache.SetBatch(ctx, &kept); err != nil {
		t.Fatalf("SetBatch() error = %v", err)
	}
	if err := cache.SetBatch(ctx, &dropped); err != nil {
		t.Fatalf("SetBatch() error = %v", err)
	}
	if err := cache.SetList(ctx, []domain.Batch{kept, dropped}); err != nil {
		t.Fatalf("SetList() error = %v", err)
	}

	if err := cache.Invalidate(ctx, "11B2"); err != nil {
		t.Fatalf("Invalidate() error = %v", err)
	}

	if _, found, _ := cache.GetList(ctx); found {
		t.Fatal("list should be dropped on any invalidation")
	}
	if _, found, _ := cache.GetBatch(ctx, "11B2"); found {
		t.Fatal("invalidated batch should be dropped")
	}
	if _, found, _ := cache.GetBatch(ctx, "10B2"); !found {
		t.Fatal("untouched batch should remain cached")
	}
}
