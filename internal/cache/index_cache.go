package cache

import (
	"context"
	"dashsidx/internal/logger"
	"dashsidx/internal/models"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru"
)

// Fetcher is the network collaborator being cached.
type Fetcher interface {
	Fetch(ctx context.Context, segment *models.Segment) ([]byte, error)
}

type entry struct {
	data     []byte
	storedAt time.Time
}

// IndexCache memoizes fetched bytes by URL and byte range, so re-selecting a
// representation does not repeat its index round trips. It is bounded in entries
// and expires entries older than the TTL.
type IndexCache struct {
	next   Fetcher
	lru    *lru.Cache
	ttl    time.Duration
	logger logger.Logger
	now    func() time.Time

	// Control
	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a cache in front of next holding at most size entries.
func New(next Fetcher, size int, ttl time.Duration, log logger.Logger) (*IndexCache, error) {
	store, err := lru.New(size)
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &IndexCache{
		next:   next,
		lru:    store,
		ttl:    ttl,
		logger: log,
		now:    time.Now,
		ctx:    ctx,
		cancel: cancel,
	}, nil
}

// Start begins the background eviction worker.
func (c *IndexCache) Start() {
	c.logger.Infof("Starting index cache eviction worker...")
	c.wg.Add(1)
	go c.evictionWorker()
}

// Stop gracefully shuts down the eviction worker.
func (c *IndexCache) Stop() {
	c.logger.Infof("Stopping index cache eviction worker...")
	c.cancel()
	c.wg.Wait()
}

// Fetch returns cached bytes for segment, fetching and storing them on a miss.
// Failed or empty fetches are not cached.
func (c *IndexCache) Fetch(ctx context.Context, segment *models.Segment) ([]byte, error) {
	key := segment.Key()
	if v, ok := c.lru.Get(key); ok {
		e := v.(entry)
		if c.now().Sub(e.storedAt) < c.ttl {
			c.logger.Debugf("Index cache hit: %s", key)
			return e.data, nil
		}
		c.lru.Remove(key)
	}

	data, err := c.next.Fetch(ctx, segment)
	if err != nil || len(data) == 0 {
		return data, err
	}

	c.lru.Add(key, entry{data: data, storedAt: c.now()})
	c.logger.Debugf("Cached %s, size: %d bytes", key, len(data))
	return data, nil
}

// Len returns the number of cached entries.
func (c *IndexCache) Len() int {
	return c.lru.Len()
}

// evictionWorker runs in the background to clean up expired entries.
func (c *IndexCache) evictionWorker() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.evictionInterval())
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			c.logger.Infof("Eviction worker stopped.")
			return
		case <-ticker.C:
			c.runEviction()
		}
	}
}

func (c *IndexCache) evictionInterval() time.Duration {
	return min(max(c.ttl/2, time.Second), time.Minute)
}

func (c *IndexCache) runEviction() {
	now := c.now()
	evictedCount := 0
	for _, key := range c.lru.Keys() {
		v, ok := c.lru.Peek(key)
		if !ok {
			continue
		}
		if now.Sub(v.(entry).storedAt) >= c.ttl {
			c.lru.Remove(key)
			evictedCount++
		}
	}

	if evictedCount > 0 {
		c.logger.Infof("Evicted %d entries from index cache. Current cache size: %d entries.", evictedCount, c.lru.Len())
	} else {
		c.logger.Debugf("No entries to evict. Current cache size: %d entries.", c.lru.Len())
	}
}
