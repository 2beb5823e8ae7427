// Package cache provides bounded in-memory caches backed by
// hashicorp/golang-lru, adapted from this codebase's common/cache.go.
// The sharded variant there existed to spread lock contention across many
// common.Hash/common.Address keys in the blockchain's state cache; nothing
// in this fabric takes that many distinct keys through one cache, so only
// the plain LRU and ARC backends are carried forward.
package cache

import (
	"github.com/hashicorp/golang-lru"

	"github.com/a2afabric/core/internal/errs"
)

// Cache is a bounded key-value cache keyed by string (entity ids, peer
// ids, session ids throughout this module).
type Cache interface {
	Add(key string, value interface{}) (evicted bool)
	Get(key string) (value interface{}, ok bool)
	Contains(key string) bool
	Remove(key string)
	Len() int
	Purge()
}

type lruCache struct {
	lru *lru.Cache
}

// NewLRU constructs a plain least-recently-used cache holding at most size
// entries.
func NewLRU(size int) (Cache, error) {
	if size <= 0 {
		return nil, errs.New(errs.InvalidArgument, "cache size must be positive")
	}
	l, err := lru.New(size)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "construct lru cache")
	}
	return &lruCache{lru: l}, nil
}

func (c *lruCache) Add(key string, value interface{}) (evicted bool) {
	return c.lru.Add(key, value)
}
func (c *lruCache) Get(key string) (interface{}, bool) { return c.lru.Get(key) }
func (c *lruCache) Contains(key string) bool           { return c.lru.Contains(key) }
func (c *lruCache) Remove(key string)                  { c.lru.Remove(key) }
func (c *lruCache) Len() int                            { return c.lru.Len() }
func (c *lruCache) Purge()                              { c.lru.Purge() }

type arcCache struct {
	arc *lru.ARCCache
}

// NewARC constructs an adaptive replacement cache, which tracks both
// recency and frequency, holding at most size entries.
func NewARC(size int) (Cache, error) {
	if size <= 0 {
		return nil, errs.New(errs.InvalidArgument, "cache size must be positive")
	}
	a, err := lru.NewARC(size)
	if err != nil {
		return nil, errs.Wrap(errs.Internal, err, "construct arc cache")
	}
	return &arcCache{arc: a}, nil
}

func (c *arcCache) Add(key string, value interface{}) (evicted bool) {
	c.arc.Add(key, value)
	return false
}
func (c *arcCache) Get(key string) (interface{}, bool) { return c.arc.Get(key) }
func (c *arcCache) Contains(key string) bool           { return c.arc.Contains(key) }
func (c *arcCache) Remove(key string)                  { c.arc.Remove(key) }
func (c *arcCache) Len() int                            { return c.arc.Len() }
func (c *arcCache) Purge()                              { c.arc.Purge() }
