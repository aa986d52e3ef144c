package ir

import (
	"sync/atomic"

	lru "github.com/hashicorp/golang-lru/v2"

	"graphir/internal/shape"
)

// DefaultShapeCacheSize is the capacity of the process-wide shape cache.
const DefaultShapeCacheSize = 4096

var shapeCache atomic.Pointer[lru.Cache[Hash, shape.Shape]]

func init() {
	SetShapeCacheSize(DefaultShapeCacheSize)
}

// SetShapeCacheSize replaces the shape cache with an empty one of the given
// capacity. A size <= 0 disables caching.
func SetShapeCacheSize(size int) {
	if size <= 0 {
		shapeCache.Store(nil)
		return
	}
	c, err := lru.New[Hash, shape.Shape](size)
	if err != nil {
		panic(err)
	}
	shapeCache.Store(c)
}

// ResetShapeCache drops every cached shape.
func ResetShapeCache() {
	if c := shapeCache.Load(); c != nil {
		c.Purge()
	}
}

// ShapeCacheLen returns the number of cached shapes.
func ShapeCacheLen() int {
	if c := shapeCache.Load(); c != nil {
		return c.Len()
	}
	return 0
}

// resolveShape returns the cached shape for key or computes it with fn.
// A shape rejected by check panics and is never cached.
func resolveShape(key Hash, fn ShapeFn, check func(shape.Shape) error) shape.Shape {
	c := shapeCache.Load()
	if c != nil {
		if s, ok := c.Get(key); ok && check(s) == nil {
			return s
		}
	}
	s := fn()
	if err := check(s); err != nil {
		panic(err)
	}
	if c != nil {
		c.Add(key, s)
	}
	return s
}
