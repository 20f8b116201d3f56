package core

import "sync/atomic"

const (
	defaultDequeCap = 16
)

// WorkQueue is the per-worker double-ended work queue.
//
// The owning worker pushes and pops at the bottom (LIFO, for locality);
// thieves take from the top (FIFO, so they grab the oldest and usually
// largest subproblem). It is the lock-free circular-array deque of Chase and
// Lev: bottom is written only by the owner, top is advanced by CAS, and the
// single-element race between PopBottom and PopTop is arbitrated by a CAS on
// top so exactly one caller wins.
//
// Go's sync/atomic operations are sequentially consistent, which is stronger
// than the original algorithm requires.
type WorkQueue struct {
	bottom atomic.Int64
	top    atomic.Int64
	ring   atomic.Pointer[dequeRing]

	// maxCap bounds growth when > 0. PushBottom reports false when full;
	// the caller decides the overflow policy.
	maxCap int64
}

type dequeRing struct {
	mask  int64
	slots []atomic.Pointer[taskCell]
}

func newDequeRing(size int64) *dequeRing {
	return &dequeRing{
		mask:  size - 1,
		slots: make([]atomic.Pointer[taskCell], size),
	}
}

func (r *dequeRing) size() int64 {
	return r.mask + 1
}

func (r *dequeRing) get(i int64) *taskCell {
	return r.slots[i&r.mask].Load()
}

func (r *dequeRing) put(i int64, c *taskCell) {
	r.slots[i&r.mask].Store(c)
}

// NewWorkQueue creates a deque with the given capacity bound. capacity <= 0
// means unbounded; the ring grows as needed. A positive capacity is rounded
// up to a power of two.
func NewWorkQueue(capacity int) *WorkQueue {
	initial := int64(defaultDequeCap)
	maxCap := int64(0)
	if capacity > 0 {
		maxCap = ceilPowerOfTwo(int64(capacity))
		if maxCap < initial {
			initial = maxCap
		}
	}
	q := &WorkQueue{maxCap: maxCap}
	q.ring.Store(newDequeRing(initial))
	return q
}

func ceilPowerOfTwo(n int64) int64 {
	p := int64(1)
	for p < n {
		p <<= 1
	}
	return p
}

// Len returns the approximate number of queued cells. Exact only when no
// concurrent operations are in flight.
func (q *WorkQueue) Len() int {
	n := q.bottom.Load() - q.top.Load()
	if n < 0 {
		return 0
	}
	return int(n)
}

// PushBottom inserts a cell at the bottom. Owner-only. Reports false when
// the queue is bounded and full.
func (q *WorkQueue) PushBottom(c *taskCell) bool {
	b := q.bottom.Load()
	t := q.top.Load()
	r := q.ring.Load()

	if b-t >= r.size() {
		if q.maxCap > 0 && r.size() >= q.maxCap {
			return false
		}
		r = q.grow(r, b, t)
	}

	r.put(b, c)
	q.bottom.Store(b + 1)
	return true
}

// grow doubles the ring, copying the live range. Owner-only, so the old ring
// contents are stable apart from top, which only moves forward; copying a
// few already-stolen slots is harmless because top still guards them.
func (q *WorkQueue) grow(old *dequeRing, b, t int64) *dequeRing {
	bigger := newDequeRing(old.size() * 2)
	for i := t; i < b; i++ {
		bigger.put(i, old.get(i))
	}
	q.ring.Store(bigger)
	return bigger
}

// PopBottom removes and returns the most recently pushed cell. Owner-only.
func (q *WorkQueue) PopBottom() (*taskCell, bool) {
	b := q.bottom.Load() - 1
	r := q.ring.Load()
	q.bottom.Store(b)

	t := q.top.Load()
	switch {
	case b < t:
		// Empty; restore the invariant bottom >= top.
		q.bottom.Store(t)
		return nil, false
	case b == t:
		// Last element: race against thieves for it.
		c := r.get(b)
		won := q.top.CompareAndSwap(t, t+1)
		q.bottom.Store(t + 1)
		if !won {
			return nil, false
		}
		return c, true
	default:
		return r.get(b), true
	}
}

// PopTop removes and returns the oldest cell. Safe to call from any
// goroutine; used by thieves. A lost CAS means another thief (or the owner
// taking the last element) won; the caller simply retries elsewhere.
func (q *WorkQueue) PopTop() (*taskCell, bool) {
	t := q.top.Load()
	b := q.bottom.Load()
	if b <= t {
		return nil, false
	}
	r := q.ring.Load()
	c := r.get(t)
	if !q.top.CompareAndSwap(t, t+1) {
		return nil, false
	}
	return c, true
}
