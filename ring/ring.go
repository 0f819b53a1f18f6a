// ring.go
//
// Lock-free single-producer/single-consumer hand-off buffer between the
// stats sampler and the archive writer. The structure deliberately separates
// producer and consumer fields with full cache-lines to eliminate false
// sharing, and each slot carries a sequence number so Push/Pop stay
// wait-free without additional atomics.
//
// SPSC discipline is the caller's contract: one sampler pushes, one writer
// pops. Push never blocks — a full ring drops the snapshot at the producer,
// which is the right failure mode for telemetry.

package ring

import (
	"sync/atomic"

	"arachne/perfstats"
)

// slot couples a snapshot with its sequence stamp.
type slot struct {
	seq  uint64 // position in the sequence space
	snap *perfstats.Stats
}

// Ring is a fixed-capacity circular buffer dedicated to one producer and one
// consumer.
type Ring struct {
	_    [64]byte // consumer head isolated on its own cache-line
	head uint64
	//lint:ignore U1000 padding to keep head & tail on different cache-lines
	_pad1 [64]byte
	tail  uint64
	//lint:ignore U1000 padding to keep hot fields from colliding with metadata
	_pad2 [64]byte
	mask  uint64
	buf   []slot
}

// New allocates a ring whose size must be a power-of-two; otherwise it
// panics so that the bit-masking arithmetic stays valid.
func New(size int) *Ring {
	if size <= 0 || size&(size-1) != 0 {
		panic("ring: size must be >0 and a power of two")
	}
	r := &Ring{
		mask: uint64(size - 1),
		buf:  make([]slot, size),
	}
	for i := range r.buf {
		r.buf[i].seq = uint64(i)
	}
	return r
}

// Push enqueues one snapshot, returning false if the buffer is full.
//
//go:nosplit
func (r *Ring) Push(s *perfstats.Stats) bool {
	t := r.tail
	sl := &r.buf[t&r.mask]
	if atomic.LoadUint64(&sl.seq) != t {
		return false // consumer has not yet reclaimed the slot
	}
	sl.snap = s
	atomic.StoreUint64(&sl.seq, t+1)
	r.tail = t + 1
	return true
}

// Pop dequeues one snapshot or nil if the buffer is empty.
//
//go:nosplit
func (r *Ring) Pop() *perfstats.Stats {
	h := r.head
	sl := &r.buf[h&r.mask]
	if atomic.LoadUint64(&sl.seq) != h+1 {
		return nil // producer has not yet published to the slot
	}
	s := sl.snap
	sl.snap = nil
	atomic.StoreUint64(&sl.seq, h+uint64(len(r.buf)))
	r.head = h + 1
	return s
}
