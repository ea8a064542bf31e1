package partition

import "sync"

// Pool is a per-partition, per-object-class allocator. It is backed by
// sync.Pool rather than a bespoke intrusive free-list slab allocator of the
// kind msquic's CXPLAT_POOL is in C. The common path
// (Alloc/Free on the owning partition's own pool) never touches another
// partition's pool, matching §5's "uncontended common path" guarantee —
// sync.Pool's per-P shard does the rest.
type Pool[T any] struct {
	pool sync.Pool
	new  func() *T
}

// NewPool creates a Pool whose zero-value objects are produced by newFn.
func NewPool[T any](newFn func() *T) *Pool[T] {
	p := &Pool[T]{new: newFn}
	p.pool.New = func() any { return newFn() }
	return p
}

// Alloc returns an object from the pool, allocating a fresh one (the
// "overflow path" falling back to the heap, §4.3) if the pool is empty.
func (p *Pool[T]) Alloc() *T {
	return p.pool.Get().(*T)
}

// Free returns obj to the pool for reuse.
func (p *Pool[T]) Free(obj *T) {
	p.pool.Put(obj)
}
