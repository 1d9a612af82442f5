package chat

import (
	"sync"
	"time"

	"chatrelay/internal/models"
)

const DefaultCacheTTL = 30 * time.Second

// Snapshotter is the read side of Log used by the cache and the persistence
// scheduler.
type Snapshotter interface {
	SnapshotAll() []models.Message
}

// SnapshotCache holds the serialized full history for a short TTL. Readers may
// see a payload up to TTL old only if no Invalidate happened since it was built.
type SnapshotCache struct {
	ttl time.Duration
	now func() time.Time

	mu          sync.Mutex
	payload     []byte
	generatedAt time.Time
	valid       bool
	gen         uint64
}

func NewSnapshotCache(ttl time.Duration, now func() time.Time) *SnapshotCache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if now == nil {
		now = time.Now
	}
	return &SnapshotCache{ttl: ttl, now: now}
}

// Get returns a copy of the cached payload while fresh, otherwise rebuilds it
// from src. A rebuild that raced with Invalidate is returned but not stored.
func (c *SnapshotCache) Get(src Snapshotter) ([]byte, error) {
	c.mu.Lock()
	if c.valid && c.now().Sub(c.generatedAt) < c.ttl {
		out := append([]byte(nil), c.payload...)
		c.mu.Unlock()
		cacheHits.Inc()
		return out, nil
	}
	gen := c.gen
	c.mu.Unlock()
	cacheMisses.Inc()

	payload, err := models.MarshalList(src.SnapshotAll())
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	if c.gen == gen {
		c.payload = append([]byte(nil), payload...)
		c.generatedAt = c.now()
		c.valid = true
	}
	c.mu.Unlock()
	return payload, nil
}

func (c *SnapshotCache) Invalidate() {
	c.mu.Lock()
	c.payload = nil
	c.valid = false
	c.gen++
	c.mu.Unlock()
}
