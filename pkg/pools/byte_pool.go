package pools

import (
	"sync"
)

// Size classes, chosen around the record header (16 bytes) plus typical
// key and value lengths.
var sizeClasses = [...]int{
	64,      // header + short key, tombstones
	256,     // small values
	1 << 10, // 1 KiB
	4 << 10, // 4 KiB
	16 << 10,
	64 << 10,
}

// MaxPool is the largest capacity kept; bigger frames are allocated directly.
const MaxPool = 64 << 10

// BytePool pools byte slices by size class.
type BytePool struct {
	classes [len(sizeClasses)]sync.Pool
}

// NewBytePool creates a new byte pool.
func NewBytePool() *BytePool {
	p := &BytePool{}
	for i, size := range sizeClasses {
		size := size
		p.classes[i].New = func() any {
			b := make([]byte, 0, size)
			return &b
		}
	}
	return p
}

// classFor returns the index of the smallest class holding size, or -1.
func classFor(size int) int {
	for i, c := range sizeClasses {
		if size <= c {
			return i
		}
	}
	return -1
}

// Get returns a zero-length slice with at least the requested capacity.
func (p *BytePool) Get(size int) []byte {
	i := classFor(size)
	if i < 0 {
		return make([]byte, 0, size)
	}
	bp, ok := p.classes[i].Get().(*[]byte)
	if !ok || cap(*bp) < size {
		return make([]byte, 0, size)
	}
	return (*bp)[:0]
}

// Put returns b to the pool. A slice goes to the largest class its
// capacity fully covers, so Get never sees an undersized buffer.
func (p *BytePool) Put(b []byte) {
	c := cap(b)
	if c > MaxPool || c < sizeClasses[0] {
		return
	}
	i := len(sizeClasses) - 1
	for i > 0 && sizeClasses[i] > c {
		i--
	}
	b = b[:0]
	p.classes[i].Put(&b)
}
