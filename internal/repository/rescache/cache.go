// Package rescache is the two-tier result cache: an in-process LRU in
// front of Redis. Entries are keyed by the full query identity and
// tracked in a reverse index so content changes can evict every page
// that referenced the changed item.
package rescache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/hashicorp/golang-lru/v2/expirable"

	"github.com/lumen-kb/knolens/internal/db"
	"github.com/lumen-kb/knolens/internal/domain"
	"github.com/lumen-kb/knolens/internal/domain/candidate"
	"github.com/lumen-kb/knolens/internal/domain/principal"
	"github.com/lumen-kb/knolens/internal/domain/query"
	"github.com/lumen-kb/knolens/internal/metrics"
)

// Key layout under domain.KeyPrefix:
//
//	rescache:<key> string: JSON result page, SETEX with class TTL
//	qfreq:<qhash>  string: query frequency counter inside one window
//	inval:<itemID> set:    cache keys whose pages referenced the item
const (
	entryKeyPrefix   = domain.KeyPrefix + "rescache:"
	counterKeyPrefix = domain.KeyPrefix + "qfreq:"
	invalKeyPrefix   = domain.KeyPrefix + "inval:"
)

// store is the consumer interface for the result cache (ISP).
type store interface {
	Get(ctx context.Context, key string) ([]byte, error)
	SetWithTTL(ctx context.Context, key string, value []byte, ttl time.Duration) error
	Del(ctx context.Context, keys ...string) error
	IncrBy(ctx context.Context, key string, val int64) (int64, error)
	Expire(ctx context.Context, key string, ttl time.Duration, nx bool) error
	SAdd(ctx context.Context, key string, members ...string) error
	SMembers(ctx context.Context, key string) ([]string, error)
}

// Config tunes TTL classes and the frequency promotion rule.
type Config struct {
	CommonTTL        time.Duration
	RareTTL          time.Duration
	PromoteThreshold int64
	CounterWindow    time.Duration
	L1Size           int
}

// Cache is the two-tier result cache.
type Cache struct {
	store store
	l1    *expirable.LRU[string, candidate.RankedResults]
	cfg   Config
}

// New creates a result cache. The in-process tier expires entries after
// the rare-class TTL so it can never outlive the Redis tier.
func New(s store, cfg Config) *Cache {
	return &Cache{
		store: s,
		l1:    expirable.NewLRU[string, candidate.RankedResults](cfg.L1Size, nil, cfg.RareTTL),
		cfg:   cfg,
	}
}

// Get looks a key up in both tiers. A miss returns (nil, nil); the
// caller decides whether a tier error degrades to a miss.
func (c *Cache) Get(ctx context.Context, key string) (*candidate.RankedResults, error) {
	if res, ok := c.l1.Get(key); ok {
		metrics.ResultCacheTotal.WithLabelValues("l1", "hit").Inc()
		return &res, nil
	}
	metrics.ResultCacheTotal.WithLabelValues("l1", "miss").Inc()

	raw, err := c.store.Get(ctx, entryKeyPrefix+key)
	if errors.Is(err, db.ErrKeyNotFound) {
		metrics.ResultCacheTotal.WithLabelValues("l2", "miss").Inc()
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("cache get: %w", err)
	}

	var res candidate.RankedResults
	if err := json.Unmarshal(raw, &res); err != nil {
		return nil, fmt.Errorf("cache entry corrupt: %w", err)
	}

	metrics.ResultCacheTotal.WithLabelValues("l2", "hit").Inc()
	c.l1.Add(key, res)
	return &res, nil
}

// Put stores a result page in both tiers with a TTL chosen by query
// frequency, and registers the page in the reverse invalidation index.
// Degraded pages are never cached.
func (c *Cache) Put(ctx context.Context, key, normalizedQuery string, res candidate.RankedResults) error {
	if res.Degraded {
		return nil
	}

	ttl, err := c.classify(ctx, normalizedQuery)
	if err != nil {
		return fmt.Errorf("classify query: %w", err)
	}

	raw, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal cache entry: %w", err)
	}
	if err := c.store.SetWithTTL(ctx, entryKeyPrefix+key, raw, ttl); err != nil {
		return fmt.Errorf("cache put: %w", err)
	}
	c.l1.Add(key, res)

	for _, itemID := range res.ItemIDs() {
		invalKey := invalKeyPrefix + itemID
		if err := c.store.SAdd(ctx, invalKey, key); err != nil {
			return fmt.Errorf("index cache key: %w", err)
		}
		// keep the reverse index alive at least as long as any entry in it
		if err := c.store.Expire(ctx, invalKey, c.cfg.CommonTTL, false); err != nil {
			return fmt.Errorf("expire invalidation set: %w", err)
		}
	}
	return nil
}

// GetQuery looks up the cached page for one query identity. Every
// lookup, hit or miss, bumps the query's frequency counter: the TTL
// class of the next write reflects how often the query is asked, not
// how often it is recomputed.
func (c *Cache) GetQuery(ctx context.Context, q *query.Query, p principal.Principal) (*candidate.RankedResults, error) {
	c.touch(ctx, q.Normalized())
	return c.Get(ctx, Key(q, p))
}

// PutQuery stores the result page for one query identity.
func (c *Cache) PutQuery(ctx context.Context, q *query.Query, p principal.Principal, res candidate.RankedResults) error {
	return c.Put(ctx, Key(q, p), q.Normalized(), res)
}

// Invalidate evicts every cached page that referenced the given item
// from both tiers. Returns the number of evicted entries.
func (c *Cache) Invalidate(ctx context.Context, itemID string) (int, error) {
	invalKey := invalKeyPrefix + itemID
	keys, err := c.store.SMembers(ctx, invalKey)
	if err != nil {
		return 0, fmt.Errorf("load invalidation set: %w", err)
	}

	del := make([]string, 0, len(keys)+1)
	for _, key := range keys {
		c.l1.Remove(key)
		del = append(del, entryKeyPrefix+key)
	}
	del = append(del, invalKey)

	if err := c.store.Del(ctx, del...); err != nil {
		return 0, fmt.Errorf("evict cache entries: %w", err)
	}

	metrics.CacheInvalidationsTotal.Inc()
	return len(keys), nil
}

// touch bumps the windowed frequency counter for the normalized query.
// The window starts on the first lookup (EXPIRE NX), so the counter
// resets even for queries that keep arriving. Counting is advisory: a
// counter failure must not fail the lookup.
func (c *Cache) touch(ctx context.Context, normalizedQuery string) {
	key := counterKeyPrefix + domain.ContentHash(normalizedQuery)
	if _, err := c.store.IncrBy(ctx, key, 1); err != nil {
		return
	}
	_ = c.store.Expire(ctx, key, c.cfg.CounterWindow, true)
}

// classify reads the current window's lookup count and maps it onto a
// TTL class. Writes never advance the counter themselves, otherwise a
// page recomputed once per window would look exactly as popular as one
// asked a hundred times and served from cache.
func (c *Cache) classify(ctx context.Context, normalizedQuery string) (time.Duration, error) {
	key := counterKeyPrefix + domain.ContentHash(normalizedQuery)
	count, err := c.store.IncrBy(ctx, key, 0)
	if err != nil {
		return 0, err
	}
	if err := c.store.Expire(ctx, key, c.cfg.CounterWindow, true); err != nil {
		return 0, err
	}
	if count >= c.cfg.PromoteThreshold {
		return c.cfg.CommonTTL, nil
	}
	return c.cfg.RareTTL, nil
}
