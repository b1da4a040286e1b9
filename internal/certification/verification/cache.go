package verification

import (
	"strconv"
	"sync"
	"time"

	"agrocert/certification-backend/internal/certification"
)

// RecordCache keeps successful verifications in memory.
// Minted metadata is immutable, so a cached record can only go stale if the unit is burned.
type RecordCache struct {
	data    map[string]*cacheEntry
	ttl     time.Duration
	mu      sync.RWMutex
	now     func() time.Time
	cleanup *time.Ticker
	done    chan struct{}
	once    sync.Once
}

type cacheEntry struct {
	record     certification.VerificationRecord
	expiration time.Time
}

// NewRecordCache creates a cache and starts its cleanup loop. Call Close to stop it.
func NewRecordCache(ttl time.Duration) *RecordCache {
	cache := &RecordCache{
		data:    make(map[string]*cacheEntry),
		ttl:     ttl,
		now:     time.Now,
		cleanup: time.NewTicker(time.Minute),
		done:    make(chan struct{}),
	}

	go cache.cleanupLoop()

	return cache
}

func cacheKey(assetID string, serial int64) string {
	return assetID + "#" + strconv.FormatInt(serial, 10)
}

// Get returns a copy of the cached record
func (c *RecordCache) Get(assetID string, serial int64) (*certification.VerificationRecord, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	entry, ok := c.data[cacheKey(assetID, serial)]
	if !ok || c.now().After(entry.expiration) {
		return nil, false
	}
	record := entry.record
	return &record, true
}

// Set stores a copy of record
func (c *RecordCache) Set(record *certification.VerificationRecord) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.data[cacheKey(record.AssetID, record.Serial)] = &cacheEntry{
		record:     *record,
		expiration: c.now().Add(c.ttl),
	}
}

// Delete drops one entry
func (c *RecordCache) Delete(assetID string, serial int64) {
	c.mu.Lock()
	defer c.mu.Unlock()

	delete(c.data, cacheKey(assetID, serial))
}

// Size returns the number of entries, expired ones included until the next sweep
func (c *RecordCache) Size() int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return len(c.data)
}

// Close stops the cleanup loop
func (c *RecordCache) Close() {
	c.once.Do(func() {
		c.cleanup.Stop()
		close(c.done)
	})
}

func (c *RecordCache) cleanupLoop() {
	for {
		select {
		case <-c.cleanup.C:
			c.removeExpired()
		case <-c.done:
			return
		}
	}
}

func (c *RecordCache) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	for key, entry := range c.data {
		if now.After(entry.expiration) {
			delete(c.data, key)
		}
	}
}
