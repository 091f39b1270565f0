// Package pool wraps sync.Pool with a typed API so callers don't repeat
// the any-assertion at every Get.
package pool

import "sync"

// Pool is a typed object pool.
type Pool[T any] struct {
	internal sync.Pool
}

// New creates a pool that builds fresh items with newFn when empty.
func New[T any](newFn func() T) *Pool[T] {
	return &Pool[T]{
		internal: sync.Pool{
			New: func() any {
				return newFn()
			},
		},
	}
}

// Get retrieves an item from the pool, creating one if needed.
func (p *Pool[T]) Get() T {
	return p.internal.Get().(T)
}

// Put returns an item to the pool for reuse.
func (p *Pool[T]) Put(item T) {
	p.internal.Put(item)
}
