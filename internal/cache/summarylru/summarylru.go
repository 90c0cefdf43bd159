// Package summarylru is the in-process tier in front of the grid cache. It
// holds small per-grid summaries so repeat requests skip artifact decoding.
package summarylru

import (
	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/mohammed-shakir/pvgrid-cache/internal/core/observability"
)

const defaultSize = 256

// Cache is safe for concurrent use. A nil *Cache is a disabled tier.
type Cache[V any] struct {
	lru *lru.Cache[string, V]
}

// New returns nil when size is negative, which disables the tier.
func New[V any](size int) *Cache[V] {
	if size < 0 {
		return nil
	}
	if size == 0 {
		size = defaultSize
	}
	c, _ := lru.New[string, V](size)
	return &Cache[V]{lru: c}
}

func (c *Cache[V]) Get(key string) (V, bool) {
	if c == nil {
		var zero V
		return zero, false
	}
	v, ok := c.lru.Get(key)
	observability.ObserveCacheLookup("memory", ok)
	return v, ok
}

func (c *Cache[V]) Add(key string, v V) {
	if c == nil {
		return
	}
	c.lru.Add(key, v)
}

func (c *Cache[V]) Len() int {
	if c == nil {
		return 0
	}
	return c.lru.Len()
}
