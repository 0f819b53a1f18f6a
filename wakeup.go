// wakeup.go
//
// User-visible blocking and wakeup primitives. All of them are expressed as
// mutations of a context's wakeup word followed by (or observed by) a pass
// through dispatch; none of them promise the awaited condition — a return
// from dispatch is an event, and callers recheck their predicates.

package arachne

import (
	"sync/atomic"
	"time"

	"arachne/cycles"
)

// GetThreadId returns the identity of the calling user thread.
func GetThreadId() ThreadId {
	c := currentCore()
	if c == nil || c.loadedContext == nil {
		return NullThread
	}
	ctx := c.loadedContext
	return ThreadId{ctx: ctx, generation: atomic.LoadUint64(&ctx.generation)}
}

// Yield cedes the core to the next runnable context. With a single occupant
// on the core there is nobody to cede to and the call is free.
func Yield() {
	c := currentCore()
	if c == nil {
		return
	}
	if c.occupied.Count() <= 1 {
		return
	}
	c.loadedContext.setWakeup(0)
	dispatchOn(c)
}

// Sleep blocks the calling thread for at least d. Cooperative scheduling
// bounds only the early side: the thread never resumes before the deadline,
// and may resume arbitrarily later.
func Sleep(d time.Duration) {
	c := currentCore()
	if c == nil {
		return
	}
	if d < 0 {
		d = 0
	}
	c.loadedContext.setWakeup(cycles.Rdtsc() + cycles.FromNanoseconds(uint64(d)))
	dispatchOn(c)
}

// Block deschedules the calling thread until another thread signals its
// ThreadId. The return is an event, not a promise of any condition; callers
// recheck whatever they were waiting for.
func Block() {
	dispatch()
}

// Signal makes the thread named by id runnable and elevates it to the head
// of its core's dispatch order. Signals to exited or recycled threads are
// absorbed by the generation and occupancy guards.
func Signal(id ThreadId) {
	ctx := id.ctx
	if ctx == nil {
		return
	}
	if atomic.LoadUint64(&ctx.generation) != id.generation {
		return
	}
	old := atomic.LoadUint64(&ctx.wakeupTimeInCycles)
	if old == slotUnoccupied {
		return
	}
	// Single-shot CAS: losing the race means the state moved and the signal
	// is either already satisfied or belongs to a recycled slot.
	atomic.CompareAndSwapUint64(&ctx.wakeupTimeInCycles, old, 0)

	if c := coreByIndex(atomic.LoadInt32(&ctx.coreId)); c != nil {
		atomic.OrUint64(&c.publicPriorityMask, uint64(1)<<ctx.idInCore)
	}
}

// Join blocks until the thread named by id exits. Returns immediately when
// the target already exited (its slot's generation moved on).
func Join(id ThreadId) {
	ctx := id.ctx
	if ctx == nil {
		return
	}
	ctx.joinLock.Lock()
	for atomic.LoadUint64(&ctx.generation) == id.generation {
		ctx.joinCV.Wait(&ctx.joinLock)
	}
	ctx.joinLock.Unlock()
}
