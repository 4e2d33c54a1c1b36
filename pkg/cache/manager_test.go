package cache

import (
	"context"
	"errors"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/redis/go-redis/v9"
)

// setupTestRedis creates a Redis client backed by miniredis.
func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	return client, mr
}

func TestNewManager_Panic(t *testing.T) {
	defer func() {
		if r := recover(); r == nil {
			t.Error("NewManager should panic with nil redis client")
		}
	}()
	NewManager(nil)
}

func TestManager_SetAndGet(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := RequestKey{Method: "POST", URL: "https://inventory.example.com/v1/search", Body: []byte(`{"page":1}`)}
	entry := NewEntry([]byte(`{"results":[]}`), []string{"inventory", "srp"}, 5*time.Minute)

	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	retrieved, err := manager.Get(ctx, key)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if string(retrieved.Data) != string(entry.Data) {
		t.Errorf("Data mismatch: got %s, want %s", retrieved.Data, entry.Data)
	}
	if len(retrieved.Tags) != 2 {
		t.Errorf("Tags = %v, want 2 tags", retrieved.Tags)
	}

	if ttl := mr.TTL(key.String()); ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("redis TTL = %v, want (0, 5m]", ttl)
	}
	if ok, _ := mr.SIsMember("srp:tag:inventory", key.String()); !ok {
		t.Error("key not indexed under tag inventory")
	}
}

func TestManager_Indefinite(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := RequestKey{URL: "https://inventory.example.com/v1/dealers"}
	if err := manager.Set(ctx, key, NewEntry([]byte(`[]`), []string{"dealer"}, 0)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if ttl := mr.TTL(key.String()); ttl != 0 {
		t.Errorf("indefinite entry has TTL %v", ttl)
	}

	mr.FastForward(24 * time.Hour)
	if _, err := manager.Get(ctx, key); err != nil {
		t.Errorf("indefinite entry gone after a day: %v", err)
	}
}

func TestManager_Get_CacheMiss(t *testing.T) {
	client, _ := setupTestRedis(t)
	manager := NewManager(client)

	_, err := manager.Get(context.Background(), RequestKey{URL: "https://x/none"})
	if !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss, got %v", err)
	}
}

func TestManager_Get_ExpiredEntry(t *testing.T) {
	client, _ := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := RequestKey{URL: "https://x/expired"}
	entry := &Entry{
		Data:    []byte(`{}`),
		Expires: time.Now().Add(-1 * time.Hour),
	}

	// Set should not cache expired entries
	if err := manager.Set(ctx, key, entry); err != nil {
		t.Fatalf("Set failed: %v", err)
	}

	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss for expired entry, got %v", err)
	}
}

func TestManager_Get_Corrupted(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client)

	key := RequestKey{URL: "https://x/corrupt"}
	if err := mr.Set(key.String(), "not json"); err != nil {
		t.Fatalf("miniredis set: %v", err)
	}

	if _, err := manager.Get(context.Background(), key); !errors.Is(err, ErrInvalidEntry) {
		t.Errorf("Expected ErrInvalidEntry, got %v", err)
	}
}

func TestManager_Delete(t *testing.T) {
	client, _ := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	key := RequestKey{URL: "https://x/delete"}
	if err := manager.Set(ctx, key, NewEntry([]byte(`{}`), nil, time.Minute)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if err := manager.Delete(ctx, key); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if _, err := manager.Get(ctx, key); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("Expected ErrCacheMiss after Delete, got %v", err)
	}
}

func TestManager_InvalidateTags(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	rows1 := RequestKey{Method: "POST", URL: "https://x/search", Body: []byte(`{"page":1}`)}
	rows2 := RequestKey{Method: "POST", URL: "https://x/search", Body: []byte(`{"page":2}`)}
	facets := RequestKey{Method: "POST", URL: "https://x/facets"}

	mustSet := func(key RequestKey, tags ...string) {
		t.Helper()
		if err := manager.Set(ctx, key, NewEntry([]byte(`{}`), tags, time.Hour)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}
	mustSet(rows1, "inventory", "srp")
	mustSet(rows2, "inventory", "srp")
	mustSet(facets, "facets", "srp")

	removed, err := manager.InvalidateTags(ctx, "inventory")
	if err != nil {
		t.Fatalf("InvalidateTags failed: %v", err)
	}
	if removed != 2 {
		t.Errorf("removed = %d, want 2", removed)
	}
	if _, err := manager.Get(ctx, rows1); !errors.Is(err, ErrCacheMiss) {
		t.Errorf("rows1 still cached: %v", err)
	}
	if _, err := manager.Get(ctx, facets); err != nil {
		t.Errorf("facets removed by unrelated tag: %v", err)
	}
	if mr.Exists("srp:tag:inventory") {
		t.Error("tag index not removed")
	}

	removed, err = manager.InvalidateTags(ctx, "srp", "unknown", "")
	if err != nil {
		t.Fatalf("InvalidateTags failed: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1 (only facets left)", removed)
	}
}

func TestManager_TagIndexExpiry(t *testing.T) {
	client, mr := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	set := func(url string, ttl time.Duration, tags ...string) {
		t.Helper()
		if err := manager.Set(ctx, RequestKey{URL: url}, NewEntry([]byte(`{}`), tags, ttl)); err != nil {
			t.Fatalf("Set failed: %v", err)
		}
	}

	set("https://x/a", 5*time.Minute, "inventory")
	if ttl := mr.TTL("srp:tag:inventory"); ttl <= 0 || ttl > 5*time.Minute {
		t.Errorf("tag TTL = %v, want (0, 5m]", ttl)
	}

	set("https://x/b", time.Hour, "inventory")
	set("https://x/c", time.Minute, "inventory")
	if ttl := mr.TTL("srp:tag:inventory"); ttl <= 5*time.Minute {
		t.Errorf("tag TTL = %v, want extended to the longest member", ttl)
	}

	set("https://x/d", time.Minute, "dealer")
	set("https://x/e", 0, "dealer")
	set("https://x/f", time.Minute, "dealer")
	if ttl := mr.TTL("srp:tag:dealer"); ttl != 0 {
		t.Errorf("tag with indefinite member has TTL %v", ttl)
	}

	mr.FastForward(2 * time.Hour)
	if mr.Exists("srp:tag:inventory") {
		t.Error("tag index outlived all of its members")
	}
	if !mr.Exists("srp:tag:dealer") {
		t.Error("tag index with indefinite member expired")
	}
}

func TestManager_InvalidationMetricByClass(t *testing.T) {
	client, _ := setupTestRedis(t)
	manager := NewManager(client)
	ctx := context.Background()

	before := testutil.ToFloat64(CacheInvalidations.WithLabelValues("site"))
	if err := manager.Set(ctx, RequestKey{URL: "https://x/site"}, NewEntry([]byte(`{}`), []string{"site:demo-motors"}, time.Hour)); err != nil {
		t.Fatalf("Set failed: %v", err)
	}
	if _, err := manager.InvalidateTags(ctx, "site:demo-motors"); err != nil {
		t.Fatalf("InvalidateTags failed: %v", err)
	}
	if got := testutil.ToFloat64(CacheInvalidations.WithLabelValues("site")) - before; got != 1 {
		t.Errorf("site invalidations = %v, want 1", got)
	}
}

func TestTagClass(t *testing.T) {
	tests := map[string]string{
		"inventory":      "inventory",
		"srp":            "srp",
		"site:demo":      "site",
		"make:toyota":    "make",
		"campaign-42":    "other",
		":leading-colon": "other",
	}
	for tag, want := range tests {
		if got := TagClass(tag); got != want {
			t.Errorf("TagClass(%q) = %q, want %q", tag, got, want)
		}
	}
}

func TestManager_Set_NilEntry(t *testing.T) {
	client, _ := setupTestRedis(t)
	manager := NewManager(client)

	if err := manager.Set(context.Background(), RequestKey{URL: "https://x"}, nil); err == nil {
		t.Error("Set with nil entry should return error")
	}
}
