package blockpool

// DefaultCacheSize is the number of free blocks a Cache may hold.
const DefaultCacheSize = 16

// Cache is a small stash of free blocks owned by a single goroutine. It
// serves Allocate and Free without touching the shared list head until it
// runs empty or full. A Cache is not safe for concurrent use; give each
// goroutine its own.
type Cache[T Element] struct {
	pool  *Pool[T]
	items []int
}

// NewCache returns a cache holding at most size blocks (DefaultCacheSize
// when size < 2).
func (p *Pool[T]) NewCache(size int) *Cache[T] {
	if size < 2 {
		size = DefaultCacheSize
	}
	return &Cache[T]{pool: p, items: make([]int, 0, size)}
}

// Allocate returns a block from the cache, falling through to the shared
// free list when the cache is empty. It returns nil when exhausted.
func (c *Cache[T]) Allocate() []T {
	var idx int
	if n := len(c.items); n > 0 {
		idx = c.items[n-1]
		c.items = c.items[:n-1]
	} else if idx = c.pool.pop(); idx < 0 {
		return nil
	}
	c.pool.markLive(idx)
	return c.pool.block(idx)
}

// Free parks a block in the cache. When the cache is full, half of it is
// flushed to the shared list as one chain.
func (c *Cache[T]) Free(b []T) {
	idx, ok := c.pool.indexOf(b)
	if !ok || !c.pool.markFree(idx) {
		return
	}
	if len(c.items) == cap(c.items) {
		c.flush(len(c.items) / 2)
	}
	c.items = append(c.items, idx)
}

// Flush returns every parked block to the shared list.
func (c *Cache[T]) Flush() {
	c.flush(len(c.items))
}

// Len returns the number of parked blocks.
func (c *Cache[T]) Len() int {
	return len(c.items)
}

func (c *Cache[T]) flush(n int) {
	if n <= 0 {
		return
	}
	chain := c.items[:n]
	for i := 0; i < n-1; i++ {
		c.pool.nodes[chain[i]].next.Store(uint32(chain[i+1] + 1))
	}
	c.pool.pushChain(chain[0], chain[n-1])

	remaining := copy(c.items, c.items[n:])
	c.items = c.items[:remaining]
}
