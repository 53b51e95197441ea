package memcache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/darasahq/darasa/core/session"
)

type entry struct {
	val []byte
	exp time.Time // zero means no expiry
}

// Cache is a process-local keyed byte cache with lazy TTL expiry.
type Cache struct {
	mu      sync.RWMutex
	table   map[string]entry
	nowFunc func() time.Time // mockable
}

var _ session.Cache = (*Cache)(nil)

func New() *Cache {
	return &Cache{
		table:   make(map[string]entry),
		nowFunc: time.Now,
	}
}

func (c *Cache) Get(_ context.Context, key string) ([]byte, bool, error) {
	c.mu.RLock()
	e, ok := c.table[key]
	c.mu.RUnlock()
	if !ok {
		return nil, false, nil
	}
	if !e.exp.IsZero() && c.nowFunc().After(e.exp) {
		c.mu.Lock()
		delete(c.table, key)
		c.mu.Unlock()
		return nil, false, nil
	}
	return e.val, true, nil
}

func (c *Cache) Set(_ context.Context, key string, val []byte, ttl time.Duration) error {
	e := entry{val: val}
	if ttl > 0 {
		e.exp = c.nowFunc().Add(ttl)
	}
	c.mu.Lock()
	c.table[key] = e
	c.mu.Unlock()
	return nil
}

func (c *Cache) Delete(_ context.Context, keys ...string) error {
	c.mu.Lock()
	for _, key := range keys {
		delete(c.table, key)
	}
	c.mu.Unlock()
	return nil
}

func (c *Cache) DeletePrefix(_ context.Context, prefix string) error {
	c.mu.Lock()
	for key := range c.table {
		if strings.HasPrefix(key, prefix) {
			delete(c.table, key)
		}
	}
	c.mu.Unlock()
	return nil
}

// Len is a test helper.
func (c *Cache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.table)
}
