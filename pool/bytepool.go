// File: pool/bytepool.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

package pool

import (
	"sync"
	"sync/atomic"
)

// Size classes served from the pool. Larger requests are allocated
// directly and never retained.
var classes = [...]int{512, 4 << 10, 64 << 10}

// BytePool hands out byte slices in a few size classes.
type BytePool struct {
	pools [len(classes)]sync.Pool

	allocs atomic.Uint64
	reuses atomic.Uint64
}

// Stats reports how many Get calls allocated and how many reused a buffer.
type Stats struct {
	Allocs uint64
	Reuses uint64
}

// NewBytePool creates an empty pool.
func NewBytePool() *BytePool {
	return &BytePool{}
}

func classOf(size int) int {
	for i, c := range classes {
		if size <= c {
			return i
		}
	}
	return -1
}

// Get returns a slice of length n.
func (p *BytePool) Get(n int) []byte {
	idx := classOf(n)
	if idx < 0 {
		p.allocs.Add(1)
		return make([]byte, n)
	}
	if v := p.pools[idx].Get(); v != nil {
		p.reuses.Add(1)
		return (*(v.(*[]byte)))[:n]
	}
	p.allocs.Add(1)
	return make([]byte, n, classes[idx])
}

// Put returns buf to the pool. Slices not obtained from Get are dropped.
func (p *BytePool) Put(buf []byte) {
	idx := classOf(cap(buf))
	if idx < 0 || cap(buf) != classes[idx] {
		return
	}
	buf = buf[:0]
	p.pools[idx].Put(&buf)
}

// Stats returns the allocation counters.
func (p *BytePool) Stats() Stats {
	return Stats{Allocs: p.allocs.Load(), Reuses: p.reuses.Load()}
}
