package cache

import (
	"context"
	"errors"
	"fmt"

	"github.com/bytedance/sonic"
	"github.com/redis/go-redis/v9"
)

var (
	// ErrCacheMiss indicates the requested key was not found in cache
	ErrCacheMiss = errors.New("cache miss")

	// ErrInvalidEntry indicates the cache entry is invalid or corrupted
	ErrInvalidEntry = errors.New("invalid cache entry")
)

// Manager handles caching operations with Redis backend.
type Manager struct {
	redis *redis.Client
}

// NewManager creates a new cache manager with Redis backend.
func NewManager(redisClient *redis.Client) *Manager {
	if redisClient == nil {
		panic("redis client cannot be nil")
	}
	return &Manager{
		redis: redisClient,
	}
}

// Get retrieves a cache entry by key.
// Returns ErrCacheMiss if the key doesn't exist or entry is expired.
func (m *Manager) Get(ctx context.Context, key RequestKey) (*Entry, error) {
	cacheKey := key.String()

	data, err := m.redis.Get(ctx, cacheKey).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			CacheMisses.Inc()
			return nil, ErrCacheMiss
		}
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("redis get: %w", err)
	}

	var entry Entry
	if err := sonic.Unmarshal(data, &entry); err != nil {
		CacheErrors.WithLabelValues("get").Inc()
		return nil, fmt.Errorf("%w: %v", ErrInvalidEntry, err)
	}

	if entry.IsExpired() {
		_ = m.redis.Del(ctx, cacheKey).Err()
		CacheMisses.Inc()
		return nil, ErrCacheMiss
	}

	CacheHits.Inc()
	return &entry, nil
}

// Set stores a cache entry and indexes it under each of its tags.
// Entries with an expiry get a matching Redis TTL; indefinite entries persist until
// invalidated. Tag sets expire with their longest-lived member.
func (m *Manager) Set(ctx context.Context, key RequestKey, entry *Entry) error {
	if entry == nil {
		return fmt.Errorf("cache entry cannot be nil")
	}

	ttl := entry.TTL()
	if !entry.Indefinite() && ttl <= 0 {
		// Already expired, don't cache
		return nil
	}

	data, err := sonic.Marshal(entry)
	if err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("marshal cache entry: %w", err)
	}

	indexTTL := int64(0)
	if !entry.Indefinite() {
		indexTTL = max(ttl.Milliseconds(), 1)
	}

	// Index first: a failed SET then leaves a dangling member, never an unindexed entry.
	cacheKey := key.String()
	pipe := m.redis.Pipeline()
	for _, tag := range entry.Tags {
		indexScript.Eval(ctx, pipe, []string{tagKey(tag)}, cacheKey, indexTTL)
	}
	pipe.Set(ctx, cacheKey, data, ttl)
	if _, err := pipe.Exec(ctx); err != nil {
		CacheErrors.WithLabelValues("set").Inc()
		return fmt.Errorf("redis set: %w", err)
	}

	CacheBytesWritten.Add(float64(len(data)))
	return nil
}

// indexScript adds a member to a tag set and keeps the set alive at least as long as
// its longest-lived member. ARGV[2] is the member TTL in ms, 0 for indefinite; a set
// holding an indefinite member never expires.
var indexScript = redis.NewScript(`
local created = redis.call('EXISTS', KEYS[1]) == 0
redis.call('SADD', KEYS[1], ARGV[1])
local ttl = tonumber(ARGV[2])
if ttl <= 0 then
	redis.call('PERSIST', KEYS[1])
	return 0
end
local current = redis.call('PTTL', KEYS[1])
if created or (current >= 0 and current < ttl) then
	redis.call('PEXPIRE', KEYS[1], ttl)
end
return 1
`)

// Delete removes a cache entry.
func (m *Manager) Delete(ctx context.Context, key RequestKey) error {
	if err := m.redis.Del(ctx, key.String()).Err(); err != nil {
		CacheErrors.WithLabelValues("delete").Inc()
		return fmt.Errorf("redis del: %w", err)
	}
	return nil
}

// InvalidateTags removes every entry indexed under any of the given tags and returns
// the number of response keys removed.
func (m *Manager) InvalidateTags(ctx context.Context, tags ...string) (int, error) {
	removed := 0
	for _, tag := range tags {
		if tag == "" {
			continue
		}
		members, err := m.redis.SMembers(ctx, tagKey(tag)).Result()
		if err != nil {
			CacheErrors.WithLabelValues("invalidate").Inc()
			return removed, fmt.Errorf("redis smembers %q: %w", tag, err)
		}

		keys := append(members, tagKey(tag))
		n, err := m.redis.Del(ctx, keys...).Result()
		if err != nil {
			CacheErrors.WithLabelValues("invalidate").Inc()
			return removed, fmt.Errorf("redis del tag %q: %w", tag, err)
		}

		// Del counts the tag set itself when it existed.
		count := int(n)
		if count > 0 {
			count--
		}
		removed += count
		CacheInvalidations.WithLabelValues(TagClass(tag)).Add(float64(count))
	}
	return removed, nil
}
