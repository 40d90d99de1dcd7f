// Package erq implements the Exitless RPC Queue: a bounded multi-producer
// multi-consumer ring of request descriptors living in host memory.
// Enclave threads are producers; untrusted RPC worker threads are
// consumers. A full queue is not an error — it signals the caller (the
// OCALL Gateway) to fall back to a direct enclave-exit call.
package erq

import "sync/atomic"

// Request is the minimal shape the queue needs: a pointer-sized handle to
// a Request Descriptor living in host memory. The Gateway package defines
// the richer RD type; erq only moves opaque handles around.
type Request = uintptr

// Queue is a bounded MPMC ring buffer of Request handles, implemented with
// a classic head/tail pair of atomic counters modulo a power-of-two
// capacity, in the style of gvisor's lock-free ring constructions. No
// FIFO ordering is guaranteed between requests from different producers;
// a single producer's requests are linearized externally
// by blocking on the request's own lock after Enqueue.
type Queue struct {
	mask uintptr
	buf  []atomic.Uintptr
	head atomic.Uint64 // next slot a producer may claim
	tail atomic.Uint64 // next slot a consumer may claim
	// seq tracks, per slot, whether a producer has finished writing
	// so that a consumer racing ahead of a still-in-flight producer does
	// not observe a torn write. Modeled as a generation-stamped sequence
	// array (Vyukov MPMC queue), not the raw head/tail pair alone. A slot
	// is free for the producer at position p when its stamp is 2*p, and
	// holds that producer's request when its stamp is 2*p+1; doubling the
	// stamps keeps "free" and "full" apart even in a one-slot ring.
	seq []atomic.Uint64
}

// New returns an empty Queue with room for capacity requests. capacity is
// rounded up to the next power of two.
func New(capacity int) *Queue {
	if capacity < 1 {
		capacity = 1
	}
	n := 1
	for n < capacity {
		n <<= 1
	}
	q := &Queue{
		mask: uintptr(n - 1),
		buf:  make([]atomic.Uintptr, n),
		seq:  make([]atomic.Uint64, n),
	}
	for i := range q.seq {
		q.seq[i].Store(uint64(2 * i))
	}
	return q
}

// Enqueue attempts to add req to the queue. It returns false iff the
// queue is full, in which case the caller must fall back to a direct
// enclave-exit call rather than blocking.
func (q *Queue) Enqueue(req Request) bool {
	for {
		pos := q.head.Load()
		slot := &q.seq[uintptr(pos)&q.mask]
		seq := slot.Load()
		diff := int64(seq) - int64(2*pos)
		switch {
		case diff == 0:
			if q.head.CompareAndSwap(pos, pos+1) {
				q.buf[uintptr(pos)&q.mask].Store(req)
				slot.Store(seq + 1)
				return true
			}
		case diff < 0:
			// seq < 2*pos: slot not yet freed by a consumer - queue is full.
			return false
		default:
			// Lost the race for this slot; retry with a fresh pos.
		}
	}
}

// Dequeue removes and returns the next available request, or (0, false)
// if the queue is currently empty.
func (q *Queue) Dequeue() (Request, bool) {
	for {
		pos := q.tail.Load()
		slot := &q.seq[uintptr(pos)&q.mask]
		seq := slot.Load()
		diff := int64(seq) - int64(2*pos+1)
		switch {
		case diff == 0:
			if q.tail.CompareAndSwap(pos, pos+1) {
				req := q.buf[uintptr(pos)&q.mask].Load()
				slot.Store(2 * (pos + uint64(q.mask) + 1))
				return req, true
			}
		case diff < 0:
			return 0, false
		default:
			// Lost the race; retry.
		}
	}
}

// Cell is a write-once holder for the global queue pointer (the
// equivalent of g_rpc_queue): set exactly once at enclave initialization
// before any OCALL can occur, read concurrently thereafter without
// further synchronization.
type Cell struct {
	p atomic.Pointer[Queue]
}

// Set installs q. It must be called at most once; calling it a second
// time panics, since g_rpc_queue is a write-once configuration cell, not
// a mutable global.
func (c *Cell) Set(q *Queue) {
	if !c.p.CompareAndSwap(nil, q) {
		panic("erq: Cell.Set called more than once")
	}
}

// Get returns the installed queue, or nil if none was ever set (in which
// case the Gateway must unconditionally use the direct-exit path).
func (c *Cell) Get() *Queue {
	return c.p.Load()
}
