package store

import (
	"context"
	"os"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/models"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/report"
)

func setupTestRedis(t *testing.T) *redis.Client {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("Skipping Redis cache test. Set REDIS_URL to run.")
	}
	opts, err := redis.ParseURL(url)
	if err != nil {
		t.Fatalf("Invalid REDIS_URL: %v", err)
	}
	rdb := redis.NewClient(opts)
	if err := rdb.Ping(context.Background()).Err(); err != nil {
		t.Skipf("Redis not reachable: %v", err)
	}
	t.Cleanup(func() { rdb.Close() })
	return rdb
}

func TestCachedStoreServesFromCache(t *testing.T) {
	rdb := setupTestRedis(t)
	s, db := setupTestStore(t)
	ctx := context.Background()
	prefix := "sniplinks-test:" + time.Now().Format("150405.000000")

	cached := NewCachedStore(s, rdb, WithCachePrefix(prefix), WithCacheTTL(time.Minute))
	link := &models.Link{ShortCode: "cached", OriginalURL: "https://example.com/cached"}
	if err := cached.InsertLinkUnique(ctx, link); err != nil {
		t.Fatalf("InsertLinkUnique failed: %v", err)
	}

	// Remove the row behind the cache's back; the warm entry still resolves.
	db.Delete(&models.Link{}, link.ID)
	found, err := cached.FindLinkByCode(ctx, "cached")
	if err != nil {
		t.Fatalf("Expected cached lookup to succeed, got %v", err)
	}
	if found.OriginalURL != link.OriginalURL || found.ID != link.ID {
		t.Errorf("Unexpected cached link: %+v", found)
	}

	if err := cached.Invalidate(ctx, "cached"); err != nil {
		t.Fatalf("Invalidate failed: %v", err)
	}
	if _, err := cached.FindLinkByCode(ctx, "cached"); !IsNotFound(err) {
		t.Errorf("Expected ErrNotFound after invalidation, got %v", err)
	}
}

func TestCachedStoreFallsBackWhenRedisDown(t *testing.T) {
	s, _ := setupTestStore(t)
	ctx := context.Background()

	rdb := redis.NewClient(&redis.Options{Addr: "127.0.0.1:1", DialTimeout: 50 * time.Millisecond, MaxRetries: -1})
	defer rdb.Close()
	var rec report.Recorder
	cached := NewCachedStore(s, rdb, WithCacheReporter(&rec))

	if err := s.InsertLinkUnique(ctx, &models.Link{ShortCode: "fallback", OriginalURL: "https://e.x"}); err != nil {
		t.Fatalf("InsertLinkUnique failed: %v", err)
	}

	found, err := cached.FindLinkByCode(ctx, "fallback")
	if err != nil {
		t.Fatalf("Expected lookup to fall back to the store, got %v", err)
	}
	if found.OriginalURL != "https://e.x" {
		t.Errorf("Unexpected link: %+v", found)
	}
	if len(rec.Entries()) == 0 {
		t.Error("Expected cache failure to be reported")
	}
}
