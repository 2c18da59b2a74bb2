package cowin

import (
	"strconv"
	"testing"
	"time"
)

func TestTTLCacheExpiry(t *testing.T) {
	now := time.Now()
	c := newTTLCache(2*time.Minute, 10)
	c.now = func() time.Time { return now }

	c.Put("k", []RawCenter{{CenterID: 1}})
	if _, ok := c.Get("k"); !ok {
		t.Fatal("expected hit before expiry")
	}

	now = now.Add(2*time.Minute + time.Second)
	if _, ok := c.Get("k"); ok {
		t.Fatal("expected miss after TTL")
	}
	if c.Len() != 0 {
		t.Fatalf("expired entry not removed, len=%d", c.Len())
	}
}

func TestTTLCacheLRUEviction(t *testing.T) {
	c := newTTLCache(time.Hour, 3)
	for i := 0; i < 3; i++ {
		c.Put("k"+strconv.Itoa(i), nil)
	}
	// Touch k0 so k1 becomes the LRU victim.
	if _, ok := c.Get("k0"); !ok {
		t.Fatal("k0 should be present")
	}
	c.Put("k3", nil)

	if _, ok := c.Get("k1"); ok {
		t.Fatal("k1 should have been evicted as least recently used")
	}
	for _, k := range []string{"k0", "k2", "k3"} {
		if _, ok := c.Get(k); !ok {
			t.Fatalf("%s should still be cached", k)
		}
	}
}

func TestTTLCacheEvict(t *testing.T) {
	c := newTTLCache(time.Hour, 3)
	c.Put("k", nil)
	c.Evict("k")
	if _, ok := c.Get("k"); ok {
		t.Fatal("evicted key still present")
	}
	// Evicting a missing key is a no-op.
	c.Evict("missing")
}

func TestTTLCachePutUpdatesExisting(t *testing.T) {
	c := newTTLCache(time.Hour, 2)
	c.Put("k", []RawCenter{{CenterID: 1}})
	c.Put("k", []RawCenter{{CenterID: 2}})
	if c.Len() != 1 {
		t.Fatalf("len = %d, want 1", c.Len())
	}
	got, _ := c.Get("k")
	if len(got) != 1 || got[0].CenterID != 2 {
		t.Fatalf("stale value after update: %+v", got)
	}
}
