package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	goredis "github.com/redis/go-redis/v9"
	"golang.org/x/sync/singleflight"

	"github.com/codegouvfr/sill-web/internal/domain"
)

const (
	softwaresKey   = "softwares"
	agencyNamesKey = "agency_names"
)

// ReferenceSource loads the reference data shared by every session.
type ReferenceSource interface {
	Softwares(ctx context.Context) ([]domain.Software, error)
	AgencyNames(ctx context.Context) ([]string, error)
}

// CacheRecorder observes cache behavior. *metrics.CacheMetrics implements it.
type CacheRecorder interface {
	RecordHit(layer string)
	RecordMiss(layer string)
	RecordLoad(err error)
}

type noopRecorder struct{}

func (noopRecorder) RecordHit(string)  {}
func (noopRecorder) RecordMiss(string) {}
func (noopRecorder) RecordLoad(error)  {}

// ReferenceCache serves the software list and agency names from memory
// (L1), then Redis (L2), then the backend. rdb may be nil, in which case
// only the memory layer is used. Concurrent misses share one backend load.
type ReferenceCache struct {
	rdb      goredis.Cmdable
	source   ReferenceSource
	mem      *memoryCache
	ttl      time.Duration
	clock    clockwork.Clock
	recorder CacheRecorder
	group    singleflight.Group
}

func NewReferenceCache(rdb goredis.Cmdable, source ReferenceSource, ttl time.Duration, clock clockwork.Clock, recorder CacheRecorder) *ReferenceCache {
	if recorder == nil {
		recorder = noopRecorder{}
	}
	return &ReferenceCache{
		rdb:      rdb,
		source:   source,
		mem:      newMemoryCache(ttl, clock),
		ttl:      ttl,
		clock:    clock,
		recorder: recorder,
	}
}

func (r *ReferenceCache) Softwares(ctx context.Context) ([]domain.Software, error) {
	return cached(ctx, r, softwaresKey, r.source.Softwares)
}

func (r *ReferenceCache) AgencyNames(ctx context.Context) ([]string, error) {
	return cached(ctx, r, agencyNamesKey, r.source.AgencyNames)
}

// InvalidateAgencyNames drops the cached agency names, which change when a
// user picks a new one.
func (r *ReferenceCache) InvalidateAgencyNames(ctx context.Context) error {
	return r.invalidate(ctx, agencyNamesKey)
}

func (r *ReferenceCache) invalidate(ctx context.Context, key string) error {
	r.mem.invalidate(key)
	if r.rdb == nil {
		return nil
	}
	if err := r.rdb.Del(ctx, referenceKey(key)).Err(); err != nil {
		return fmt.Errorf("failed to invalidate reference cache: %w", err)
	}
	return nil
}

// StartEvictionTimer periodically drops expired memory entries. The
// returned function stops it.
func (r *ReferenceCache) StartEvictionTimer(interval time.Duration) func() {
	ticker := r.clock.NewTicker(interval)
	done := make(chan struct{})

	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ticker.Chan():
				if evicted := r.mem.evictExpired(); evicted > 0 {
					slog.Debug("Evicted expired reference cache entries", "count", evicted)
				}
			case <-done:
				return
			}
		}
	}()

	var once sync.Once
	return func() { once.Do(func() { close(done) }) }
}

func cached[T any](ctx context.Context, r *ReferenceCache, key string, load func(context.Context) (T, error)) (T, error) {
	var zero T

	// Layer 1: memory
	if data, ok := r.mem.get(key); ok {
		r.recorder.RecordHit("memory")
		return decodeReference[T](data)
	}
	r.recorder.RecordMiss("memory")

	v, err, _ := r.group.Do(key, func() (any, error) {
		// a concurrent load may have completed since the check above
		if data, ok := r.mem.get(key); ok {
			return data, nil
		}

		// Layer 2: Redis
		if data, ok := r.getCached(ctx, key); ok {
			r.recorder.RecordHit("redis")
			r.mem.set(key, data)
			return data, nil
		}
		if r.rdb != nil {
			r.recorder.RecordMiss("redis")
		}

		// Layer 3: backend
		value, err := load(ctx)
		r.recorder.RecordLoad(err)
		if err != nil {
			return nil, err
		}
		data, err := json.Marshal(value)
		if err != nil {
			return nil, fmt.Errorf("failed to encode %s: %w", key, err)
		}
		r.mem.set(key, data)
		r.writeCache(ctx, key, data)
		return data, nil
	})
	if err != nil {
		return zero, fmt.Errorf("reference data %s: %w", key, err)
	}
	return decodeReference[T](v.([]byte))
}

func decodeReference[T any](data []byte) (T, error) {
	var v T
	if err := json.Unmarshal(data, &v); err != nil {
		return v, fmt.Errorf("failed to decode cached reference data: %w", err)
	}
	return v, nil
}

func (r *ReferenceCache) getCached(ctx context.Context, key string) ([]byte, bool) {
	if r.rdb == nil {
		return nil, false
	}
	data, err := r.rdb.Get(ctx, referenceKey(key)).Bytes()
	if err != nil {
		if !errors.Is(err, goredis.Nil) {
			slog.WarnContext(ctx, "Redis reference cache GET failed", "key", key, "error", err)
		}
		return nil, false
	}
	return data, true
}

func (r *ReferenceCache) writeCache(ctx context.Context, key string, data []byte) {
	if r.rdb == nil {
		return
	}
	if err := r.rdb.Set(ctx, referenceKey(key), data, r.ttl).Err(); err != nil {
		slog.WarnContext(ctx, "Failed to populate Redis reference cache", "key", key, "error", err)
	}
}

func referenceKey(key string) string {
	return keyPrefix + "reference:" + key
}

// memoryCache is the L1 layer: encoded values with a TTL.
type memoryCache struct {
	mu      sync.RWMutex
	entries map[string]memoryCacheEntry
	ttl     time.Duration
	clock   clockwork.Clock
}

type memoryCacheEntry struct {
	data      []byte
	expiresAt time.Time
}

func newMemoryCache(ttl time.Duration, clock clockwork.Clock) *memoryCache {
	return &memoryCache{
		entries: make(map[string]memoryCacheEntry),
		ttl:     ttl,
		clock:   clock,
	}
}

func (c *memoryCache) get(key string) ([]byte, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.entries[key]
	if !ok || c.clock.Now().After(entry.expiresAt) {
		return nil, false
	}
	return entry.data, true
}

func (c *memoryCache) set(key string, data []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[key] = memoryCacheEntry{data: data, expiresAt: c.clock.Now().Add(c.ttl)}
}

func (c *memoryCache) invalidate(key string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, key)
}

func (c *memoryCache) evictExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.clock.Now()
	evicted := 0
	for key, entry := range c.entries {
		if now.After(entry.expiresAt) {
			delete(c.entries, key)
			evicted++
		}
	}
	return evicted
}
