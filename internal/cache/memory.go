package cache

import (
	"context"
	"strings"
	"sync"
	"time"
)

const defaultMaxEntries = 1000

type entry struct {
	value     []byte
	expiresAt time.Time
}

// MemoryClient is an in-process Client for single-instance deployments and
// tests. When full, the entry closest to expiry is evicted.
type MemoryClient struct {
	mu         sync.RWMutex
	entries    map[string]entry
	maxEntries int
	now        func() time.Time

	stop     chan struct{}
	stopOnce sync.Once
}

// NewMemoryClient starts a client whose sweeper drops expired entries every
// minute until Close.
func NewMemoryClient(maxEntries int) *MemoryClient {
	if maxEntries <= 0 {
		maxEntries = defaultMaxEntries
	}
	c := &MemoryClient{
		entries:    make(map[string]entry),
		maxEntries: maxEntries,
		now:        time.Now,
		stop:       make(chan struct{}),
	}
	go c.sweepEvery(time.Minute)
	return c
}

// SetClock replaces the time source used for expiry.
func (c *MemoryClient) SetClock(now func() time.Time) {
	c.mu.Lock()
	c.now = now
	c.mu.Unlock()
}

func (c *MemoryClient) Get(_ context.Context, key string) ([]byte, error) {
	c.mu.RLock()
	e, ok := c.entries[key]
	live := ok && c.now().Before(e.expiresAt)
	c.mu.RUnlock()

	if !live {
		return nil, ErrCacheMiss
	}
	return e.value, nil
}

func (c *MemoryClient) Set(_ context.Context, key string, value []byte, ttl time.Duration) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.entries[key]; !ok && len(c.entries) >= c.maxEntries {
		c.evictSoonest()
	}
	c.entries[key] = entry{value: value, expiresAt: c.now().Add(ttl)}
	return nil
}

func (c *MemoryClient) Delete(_ context.Context, key string) error {
	c.mu.Lock()
	delete(c.entries, key)
	c.mu.Unlock()
	return nil
}

func (c *MemoryClient) DeleteByPrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for key := range c.entries {
		if strings.HasPrefix(key, prefix) {
			delete(c.entries, key)
		}
	}
	return nil
}

// Close stops the sweeper. It is safe to call more than once.
func (c *MemoryClient) Close() error {
	c.stopOnce.Do(func() { close(c.stop) })
	return nil
}

func (c *MemoryClient) evictSoonest() {
	var (
		victim string
		first  = true
		at     time.Time
	)
	for key, e := range c.entries {
		if first || e.expiresAt.Before(at) {
			victim, at, first = key, e.expiresAt, false
		}
	}
	if !first {
		delete(c.entries, victim)
	}
}

func (c *MemoryClient) sweepEvery(d time.Duration) {
	ticker := time.NewTicker(d)
	defer ticker.Stop()
	for {
		select {
		case <-c.stop:
			return
		case <-ticker.C:
			c.removeExpired()
		}
	}
}

func (c *MemoryClient) removeExpired() {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	for key, e := range c.entries {
		if !now.Before(e.expiresAt) {
			delete(c.entries, key)
		}
	}
}
