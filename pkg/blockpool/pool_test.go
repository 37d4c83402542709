package blockpool

import (
	"errors"
	"math/rand"
	"sync"
	"testing"
	"unsafe"
)

func addrOf(b []uint16) uintptr {
	return uintptr(unsafe.Pointer(unsafe.SliceData(b)))
}

func TestNewInvalid(t *testing.T) {
	tests := []struct {
		name       string
		blockLen   int
		blockCount int
		opts       []Option
	}{
		{"zero length", 0, 4, nil},
		{"zero count", 8, 0, nil},
		{"negative count", 8, -1, nil},
		{"alignment not power of two", 8, 4, []Option{WithAlignment(48)}},
		{"alignment below element size", 8, 4, []Option{WithAlignment(1)}},
		{"size overflow", 1 << 62, 1 << 20, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New[uint16](tt.blockLen, tt.blockCount, tt.opts...)
			if !errors.Is(err, ErrAllocationFailed) {
				t.Errorf("expected ErrAllocationFailed, got %v", err)
			}
		})
	}
}

func TestAllocateUntilExhausted(t *testing.T) {
	p, err := New[uint16](100, 8)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	if p.BlockBytes() != 256 {
		t.Errorf("expected padded block of 256 bytes, got %d", p.BlockBytes())
	}

	seen := make(map[uintptr]bool)
	for i := 0; i < 8; i++ {
		b := p.Allocate()
		if b == nil {
			t.Fatalf("allocation %d failed early", i)
		}
		if len(b) != 100 || cap(b) != 100 {
			t.Errorf("block %d: len=%d cap=%d, want 100/100", i, len(b), cap(b))
		}
		addr := addrOf(b)
		if addr%DefaultAlignment != 0 {
			t.Errorf("block %d not aligned: %x", i, addr)
		}
		if seen[addr] {
			t.Errorf("block %d handed out twice", i)
		}
		seen[addr] = true
	}

	if b := p.Allocate(); b != nil {
		t.Error("expected nil from exhausted pool")
	}

	st := p.Stats()
	if st.Allocated != 8 || st.Free != 0 || st.Peak != 8 {
		t.Errorf("unexpected stats: %+v", st)
	}
	if st.Utilization() != 1 {
		t.Errorf("expected full utilization, got %v", st.Utilization())
	}
}

func TestFreeAndReuse(t *testing.T) {
	p, err := New[uint16](16, 2)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}

	a := p.Allocate()
	b := p.Allocate()
	a[0] = 42

	p.Free(a)
	if p.AllocatedCount() != 1 {
		t.Errorf("expected 1 allocated, got %d", p.AllocatedCount())
	}

	c := p.Allocate()
	if addrOf(c) != addrOf(a) {
		t.Error("expected freed block to be reused")
	}
	p.Free(b)
	p.Free(c)

	st := p.Stats()
	if st.TotalAllocs != 3 || st.TotalFrees != 3 || st.Allocated != 0 {
		t.Errorf("unexpected stats: %+v", st)
	}
}

func TestFreeIgnoresForeignAndDoubleFree(t *testing.T) {
	p, _ := New[uint16](16, 2)
	other, _ := New[uint16](16, 2)

	a := p.Allocate()
	foreign := other.Allocate()

	if p.Owns(foreign) {
		t.Error("pool should not own a block from another pool")
	}
	if !p.Owns(a) {
		t.Error("pool should own its own block")
	}

	p.Free(foreign)
	p.Free(make([]uint16, 16))
	p.Free(nil)
	if p.AllocatedCount() != 1 {
		t.Errorf("foreign frees changed the count: %d", p.AllocatedCount())
	}

	// Interior slices are owned but are not block starts.
	p.Free(a[1:])
	if p.AllocatedCount() != 1 {
		t.Errorf("interior free changed the count: %d", p.AllocatedCount())
	}

	p.Free(a)
	p.Free(a)
	if p.AllocatedCount() != 0 {
		t.Errorf("double free changed the count: %d", p.AllocatedCount())
	}

	x := p.Allocate()
	y := p.Allocate()
	if x == nil || y == nil || addrOf(x) == addrOf(y) {
		t.Error("double free corrupted the free list")
	}
	if p.Allocate() != nil {
		t.Error("pool should be exhausted after two allocations")
	}
}

func TestCacheFlushesHalf(t *testing.T) {
	p, _ := New[uint32](8, 32)
	c := p.NewCache(4)

	blocks := make([][]uint32, 0, 6)
	for i := 0; i < 6; i++ {
		blocks = append(blocks, c.Allocate())
	}
	if p.AllocatedCount() != 6 {
		t.Fatalf("expected 6 allocated, got %d", p.AllocatedCount())
	}

	for _, b := range blocks {
		c.Free(b)
	}
	// 4 parked, fifth free flushes 2, sixth parks again.
	if c.Len() != 4 {
		t.Errorf("expected 4 parked blocks, got %d", c.Len())
	}
	if p.AllocatedCount() != 0 {
		t.Errorf("expected 0 allocated, got %d", p.AllocatedCount())
	}

	c.Flush()
	if c.Len() != 0 {
		t.Errorf("expected empty cache after flush, got %d", c.Len())
	}

	count := 0
	for p.Allocate() != nil {
		count++
	}
	if count != 32 {
		t.Errorf("expected all 32 blocks back on the free list, got %d", count)
	}
}

func TestConcurrentAllocateFree(t *testing.T) {
	const (
		capacity   = 64
		goroutines = 8
		iterations = 5000
	)

	p, err := New[uint16](32, capacity)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	base := addrOf(p.slab)
	end := base + uintptr(p.TotalBytes())

	var owners sync.Map
	var wg sync.WaitGroup
	errs := make(chan string, goroutines)

	for g := 0; g < goroutines; g++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			rng := rand.New(rand.NewSource(int64(id)))
			var cache *Cache[uint16]
			if id%2 == 0 {
				cache = p.NewCache(DefaultCacheSize)
			}
			var held [][]uint16

			alloc := func() []uint16 {
				if cache != nil {
					return cache.Allocate()
				}
				return p.Allocate()
			}
			free := func(b []uint16) {
				if cache != nil {
					cache.Free(b)
				} else {
					p.Free(b)
				}
			}

			for i := 0; i < iterations; i++ {
				if rng.Intn(2) == 0 || len(held) == 0 {
					b := alloc()
					if b == nil {
						continue
					}
					addr := addrOf(b)
					if addr < base || addr >= end {
						errs <- "block outside the slab"
						return
					}
					if _, dup := owners.LoadOrStore(addr, id); dup {
						errs <- "block handed out twice"
						return
					}
					b[0] = uint16(id)
					held = append(held, b)
				} else {
					j := rng.Intn(len(held))
					b := held[j]
					if b[0] != uint16(id) {
						errs <- "block contents changed while owned"
						return
					}
					owners.Delete(addrOf(b))
					free(b)
					held[j] = held[len(held)-1]
					held = held[:len(held)-1]
				}

				if n := p.AllocatedCount(); n > capacity {
					errs <- "allocated count exceeds capacity"
					return
				}
			}

			for _, b := range held {
				owners.Delete(addrOf(b))
				free(b)
			}
			if cache != nil {
				cache.Flush()
			}
		}(g)
	}

	wg.Wait()
	close(errs)
	for msg := range errs {
		t.Error(msg)
	}

	if p.AllocatedCount() != 0 {
		t.Errorf("expected every block returned, %d still allocated", p.AllocatedCount())
	}
	count := 0
	for p.Allocate() != nil {
		count++
	}
	if count != capacity {
		t.Errorf("free list lost blocks: recovered %d of %d", count, capacity)
	}
}
