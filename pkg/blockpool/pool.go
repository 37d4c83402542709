// Package blockpool implements a fixed-capacity slab of equally sized,
// cache-line aligned blocks with lock-free allocation.
//
// Free blocks form a Treiber stack. Each block has a free-node header (the
// index of the next free block) kept in an array parallel to the slab, and
// the stack head packs a generation counter next to the top index so a
// stale compare-and-swap can never reinstall a block that was popped and
// pushed back in between (ABA).
package blockpool

import (
	"errors"
	"math/bits"
	"sync/atomic"
	"unsafe"
)

// DefaultAlignment is the block alignment in bytes (one cache line).
const DefaultAlignment = 64

// maxBlocks is bounded by the 32-bit index stored in free-node headers.
const maxBlocks = 1<<32 - 2

// ErrAllocationFailed is returned when the slab cannot be reserved.
var ErrAllocationFailed = errors.New("blockpool: allocation failed")

// Element is the set of plain numeric types a pool can hold.
type Element interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~int8 | ~int16 | ~int32 | ~int64 |
		~float32 | ~float64
}

// Option configures a pool.
type Option func(*options)

type options struct {
	alignment int
}

// WithAlignment sets the block alignment in bytes. It must be a power of two.
func WithAlignment(n int) Option {
	return func(o *options) { o.alignment = n }
}

// freeNode is the header of a block while it sits on the free list.
type freeNode struct {
	next atomic.Uint32 // index+1 of the next free block, 0 terminates
}

// Pool hands out blocks of BlockLen elements of T.
type Pool[T Element] struct {
	blockLen   int
	stride     int // elements between block starts, padding included
	blockCount int
	blockBytes uintptr
	alignment  int

	raw        []byte
	slab       []T
	base       uintptr
	totalBytes uintptr

	head  atomic.Uint64 // generation<<32 | top index+1
	nodes []freeNode
	live  []atomic.Bool

	allocated   atomic.Int64
	peak        atomic.Int64
	totalAllocs atomic.Uint64
	totalFrees  atomic.Uint64
}

// New reserves blockCount blocks of blockLen elements each.
func New[T Element](blockLen, blockCount int, opts ...Option) (p *Pool[T], err error) {
	o := options{alignment: DefaultAlignment}
	for _, opt := range opts {
		opt(&o)
	}

	var zero T
	elemSize := uintptr(unsafe.Sizeof(zero))

	if blockLen <= 0 || blockCount <= 0 || blockCount > maxBlocks {
		return nil, ErrAllocationFailed
	}
	if o.alignment <= 0 || o.alignment&(o.alignment-1) != 0 || uintptr(o.alignment) < elemSize {
		return nil, ErrAllocationFailed
	}

	hi, payload := bits.Mul64(uint64(blockLen), uint64(elemSize))
	if hi != 0 {
		return nil, ErrAllocationFailed
	}
	blockBytes := alignUp(uintptr(payload), uintptr(o.alignment))
	hi, total := bits.Mul64(uint64(blockBytes), uint64(blockCount))
	if hi != 0 || total > uint64(^uintptr(0)>>1)-uint64(o.alignment) {
		return nil, ErrAllocationFailed
	}

	// make panics when the runtime refuses the size; report it as a failed
	// reservation instead.
	defer func() {
		if r := recover(); r != nil {
			p, err = nil, ErrAllocationFailed
		}
	}()

	raw := make([]byte, uintptr(total)+uintptr(o.alignment))
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(raw)))
	offset := alignUp(addr, uintptr(o.alignment)) - addr
	slabLen := int(uintptr(total) / elemSize)

	p = &Pool[T]{
		blockLen:   blockLen,
		stride:     int(blockBytes / elemSize),
		blockCount: blockCount,
		blockBytes: blockBytes,
		alignment:  o.alignment,
		raw:        raw,
		slab:       unsafe.Slice((*T)(unsafe.Pointer(&raw[offset])), slabLen),
		base:       addr + offset,
		totalBytes: uintptr(total),
		nodes:      make([]freeNode, blockCount),
		live:       make([]atomic.Bool, blockCount),
	}
	p.buildFreeList()
	return p, nil
}

func (p *Pool[T]) buildFreeList() {
	for i := 0; i < p.blockCount-1; i++ {
		p.nodes[i].next.Store(uint32(i + 2))
	}
	p.nodes[p.blockCount-1].next.Store(0)
	p.head.Store(pack(0, 1))
}

// Allocate pops a free block. It returns nil when the pool is exhausted.
func (p *Pool[T]) Allocate() []T {
	idx := p.pop()
	if idx < 0 {
		return nil
	}
	p.markLive(idx)
	return p.block(idx)
}

// Free returns a block to the pool. Blocks the pool does not own, and
// blocks that are already free, are ignored.
func (p *Pool[T]) Free(b []T) {
	idx, ok := p.indexOf(b)
	if !ok || !p.markFree(idx) {
		return
	}
	p.pushChain(idx, idx)
}

// Owns reports whether b points into the pool's slab.
func (p *Pool[T]) Owns(b []T) bool {
	if cap(b) == 0 {
		return false
	}
	addr := uintptr(unsafe.Pointer(unsafe.SliceData(b)))
	return addr >= p.base && addr < p.base+p.totalBytes
}

// BlockLen returns the usable elements per block.
func (p *Pool[T]) BlockLen() int { return p.blockLen }

// BlockCount returns the pool capacity in blocks.
func (p *Pool[T]) BlockCount() int { return p.blockCount }

// BlockBytes returns the padded size of one block.
func (p *Pool[T]) BlockBytes() int { return int(p.blockBytes) }

// TotalBytes returns the reserved slab size.
func (p *Pool[T]) TotalBytes() int { return int(p.totalBytes) }

// Alignment returns the block alignment in bytes.
func (p *Pool[T]) Alignment() int { return p.alignment }

func (p *Pool[T]) block(idx int) []T {
	start := idx * p.stride
	return p.slab[start : start+p.blockLen : start+p.blockLen]
}

func (p *Pool[T]) indexOf(b []T) (int, bool) {
	if !p.Owns(b) {
		return 0, false
	}
	off := uintptr(unsafe.Pointer(unsafe.SliceData(b))) - p.base
	if off%p.blockBytes != 0 {
		return 0, false
	}
	return int(off / p.blockBytes), true
}

func (p *Pool[T]) pop() int {
	for {
		h := p.head.Load()
		top := uint32(h)
		if top == 0 {
			return -1
		}
		next := p.nodes[top-1].next.Load()
		if p.head.CompareAndSwap(h, pack(uint32(h>>32)+1, next)) {
			return int(top - 1)
		}
	}
}

// pushChain links first..last (already chained through their headers)
// onto the free list with a single CAS.
func (p *Pool[T]) pushChain(first, last int) {
	for {
		h := p.head.Load()
		p.nodes[last].next.Store(uint32(h))
		if p.head.CompareAndSwap(h, pack(uint32(h>>32)+1, uint32(first+1))) {
			return
		}
	}
}

func (p *Pool[T]) markLive(idx int) {
	p.live[idx].Store(true)
	p.totalAllocs.Add(1)
	current := p.allocated.Add(1)

	// Racy by nature, only feeds Stats.
	for {
		peak := p.peak.Load()
		if current <= peak || p.peak.CompareAndSwap(peak, current) {
			break
		}
	}
}

func (p *Pool[T]) markFree(idx int) bool {
	if !p.live[idx].CompareAndSwap(true, false) {
		return false
	}
	p.totalFrees.Add(1)
	p.allocated.Add(-1)
	return true
}

func pack(gen, top uint32) uint64 {
	return uint64(gen)<<32 | uint64(top)
}

func alignUp(n, alignment uintptr) uintptr {
	return (n + alignment - 1) &^ (alignment - 1)
}
