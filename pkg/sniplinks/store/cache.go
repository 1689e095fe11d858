package store

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/models"
	"github.com/sniplinks/sniplinks/pkg/sniplinks/report"
)

// CachedStore puts a Redis cache-aside in front of FindLinkByCode. Every
// other call goes straight to the wrapped store. Cache failures are reported
// and never fail a lookup.
type CachedStore struct {
	LinkStore

	rdb      *redis.Client
	prefix   string
	ttl      time.Duration
	reporter report.Reporter
}

// CacheOption configures a CachedStore.
type CacheOption func(*CachedStore)

// WithCachePrefix sets the key prefix (default "sniplinks:link").
func WithCachePrefix(prefix string) CacheOption {
	return func(s *CachedStore) { s.prefix = strings.Trim(prefix, ":") }
}

// WithCacheTTL sets how long a resolved link stays cached (default 10m).
func WithCacheTTL(d time.Duration) CacheOption {
	return func(s *CachedStore) { s.ttl = d }
}

// WithCacheReporter sets where cache errors go.
func WithCacheReporter(r report.Reporter) CacheOption {
	return func(s *CachedStore) { s.reporter = r }
}

// NewCachedStore wraps next with rdb.
func NewCachedStore(next LinkStore, rdb *redis.Client, opts ...CacheOption) *CachedStore {
	s := &CachedStore{
		LinkStore: next,
		rdb:       rdb,
		prefix:    "sniplinks:link",
		ttl:       10 * time.Minute,
		reporter:  report.Discard,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// cachedLink is the cached projection. The click counter is left out; it
// changes on every visit and is read from the store where it matters.
type cachedLink struct {
	ID          uint      `json:"id"`
	OriginalURL string    `json:"original_url"`
	ShortCode   string    `json:"short_code"`
	OwnerID     *string   `json:"owner_id,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
}

func (s *CachedStore) key(code string) string {
	return s.prefix + ":" + code
}

// FindLinkByCode implements LinkStore.
func (s *CachedStore) FindLinkByCode(ctx context.Context, code string) (*models.Link, error) {
	if s.rdb == nil {
		return s.LinkStore.FindLinkByCode(ctx, code)
	}

	raw, err := s.rdb.Get(ctx, s.key(code)).Bytes()
	switch {
	case err == nil:
		var c cachedLink
		jsonErr := json.Unmarshal(raw, &c)
		if jsonErr == nil {
			return &models.Link{
				ID:          c.ID,
				OriginalURL: c.OriginalURL,
				ShortCode:   c.ShortCode,
				OwnerID:     c.OwnerID,
				CreatedAt:   c.CreatedAt,
			}, nil
		}
		s.reporter.Report(jsonErr, "decode cached link", "code", code)
	case errors.Is(err, redis.Nil):
		// miss
	default:
		s.reporter.Report(err, "read link cache", "code", code)
	}

	link, err := s.LinkStore.FindLinkByCode(ctx, code)
	if err != nil {
		return nil, err
	}
	s.put(ctx, link)
	return link, nil
}

// InsertLinkUnique implements LinkStore. A successful insert warms the cache
// so the first visit skips the database.
func (s *CachedStore) InsertLinkUnique(ctx context.Context, link *models.Link) error {
	if err := s.LinkStore.InsertLinkUnique(ctx, link); err != nil {
		return err
	}
	if s.rdb != nil {
		s.put(ctx, link)
	}
	return nil
}

func (s *CachedStore) put(ctx context.Context, link *models.Link) {
	raw, err := json.Marshal(cachedLink{
		ID:          link.ID,
		OriginalURL: link.OriginalURL,
		ShortCode:   link.ShortCode,
		OwnerID:     link.OwnerID,
		CreatedAt:   link.CreatedAt,
	})
	if err != nil {
		s.reporter.Report(err, "encode cached link", "code", link.ShortCode)
		return
	}
	if err := s.rdb.Set(ctx, s.key(link.ShortCode), raw, s.ttl).Err(); err != nil {
		s.reporter.Report(err, "write link cache", "code", link.ShortCode)
	}
}

// Invalidate drops code from the cache. Whoever deletes links outside the
// engine calls this so visitors stop being sent to the old destination.
func (s *CachedStore) Invalidate(ctx context.Context, code string) error {
	if s.rdb == nil {
		return nil
	}
	return s.rdb.Del(ctx, s.key(code)).Err()
}
