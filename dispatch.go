// dispatch.go
//
// The per-core cooperative scheduler. dispatch is entered only from a user
// stack and represents the act of blocking the current thread; it returns
// when this context is selected again. Selection order is priority bits
// first, then a round-robin scan of the occupancy bitmap.
//
// The returning context's wakeup word is set to BLOCKED *after* the switch,
// never before: a signal racing with dispatch wins by CASing 0 into the word,
// and the switch itself is the serialization that keeps a late BLOCKED store
// from clobbering it.

package arachne

import (
	"math/bits"
	"sync/atomic"

	"arachne/cycles"
	"arachne/debug"
	"arachne/swap"
	"arachne/utils"
)

// coreIncreaseThreshold is the scan-iteration bound under which finding a
// runnable context counts as pressure worth another core.
const coreIncreaseThreshold = 3

// dispatch blocks the calling user thread until its slot is selected again.
func dispatch() {
	c := currentCore()
	if c == nil {
		debug.Fatal("ARACHNE_CONTEXT",
			"scheduler primitive invoked outside an arachne thread (missing Init or TestInit?)")
	}
	dispatchOn(c)
}

// dispatchOn runs the selection loop on core c.
func dispatchOn(c *coreState) {
	// Canary check before anything else: if the departing context scribbled
	// past its stack there is nothing sane left to schedule.
	if !c.loadedContext.canaryIntact() {
		debug.Fatal("ARACHNE_STACK_OVERFLOW",
			"stack canary corrupted, core "+utils.Itoa(int(c.id))+
				" slot "+utils.Itoa(int(c.loadedContext.idInCore)))
	}

	now := cycles.Rdtsc()

	// The interval since the last switch-in was spent running user code;
	// attribute it as loaded time weighted by current occupancy.
	if c.lastDispatchExit != 0 && now > c.lastDispatchExit {
		c.stats.AddLoaded(now-c.lastDispatchExit, c.occupied.Count())
	}

	iterations := 0
	for {
		// Priority path: drain public elevations once the private word runs
		// dry (copy-then-clear, so elevations landing mid-dispatch stay
		// pending for the next drain).
		if c.privatePriorityMask == 0 {
			c.privatePriorityMask = atomic.SwapUint64(&c.publicPriorityMask, 0)
		}
		for c.privatePriorityMask != 0 {
			k := bits.TrailingZeros64(c.privatePriorityMask)
			c.privatePriorityMask &^= uint64(1) << uint(k)
			if k < slotsPerCore && c.occupied.Occupied(k) && c.slots[k].wakeup() == 0 {
				c.switchTo(k)
				return
			}
			// Stale elevation: slot gone or not immediately runnable.
			// Consumed, falls through.
		}

		// Round-robin scan over the occupied bitmap.
		mask, count := c.occupied.Load()
		start := c.nextCandidateIndex
		for i := 0; i < slotsPerCore; i++ {
			k := start + i
			if k >= slotsPerCore {
				k -= slotsPerCore
			}
			if mask&(uint64(1)<<uint(k)) == 0 {
				continue
			}
			if c.slots[k].wakeup() <= now {
				if iterations < coreIncreaseThreshold &&
					atomic.LoadInt32(&numCoresPrecursor) < atomic.LoadInt32(&maxNumCores) {
					requestCoreIncrease()
				}
				c.switchTo(k)
				return
			}
			iterations++
		}

		// Wrap: termination checks, then a fresh snapshot of clock and
		// bitmap so threads sleeping until "now" fire on the next pass.
		if count == 0 {
			if atomic.LoadUint32(&shutdownFlag) != 0 || atomic.LoadUint32(&c.draining) != 0 {
				c.exitScheduler()
				return
			}
		}

		wrapStart := now
		now = cycles.Rdtsc()
		if now > wrapStart {
			c.stats.AddIdle(now - wrapStart)
		}
		cpuRelax()
	}
}

// switchTo hands the core to slot k. When k is the currently loaded context
// the switch is a no-op beyond marking it running (BLOCKED).
func (c *coreState) switchTo(k int) {
	ctx := c.slots[k]
	c.nextCandidateIndex = k + 1
	if c.nextCandidateIndex >= slotsPerCore {
		c.nextCandidateIndex = 0
	}

	if ctx == c.loadedContext {
		ctx.setWakeup(slotBlocked)
		c.lastDispatchExit = cycles.Rdtsc()
		return
	}

	prev := c.loadedContext
	c.loadedContext = ctx
	c.lastDispatchExit = cycles.Rdtsc()
	// Repoint the goroutine's stack descriptor at the target stack so the
	// split checks of whatever runs there pass.
	swap.SetGStack(c.g, ctx.stack)
	swap.Swap(&prev.sp, &ctx.sp)

	// Resumed: a later dispatch selected prev's slot and switched back here,
	// retargeting loadedContext and the stack descriptor before the swap.
	c.loadedContext.setWakeup(slotBlocked)
}

// exitScheduler returns the core to its saved kernel stack, restoring the
// goroutine's real stack descriptor first. The abandoned dispatch frame is
// never resumed; kernelThreadMain unwinds the core. nosplit: between the
// restore and the switch SP still points into a user stack the descriptor no
// longer covers.
//
//go:nosplit
func (c *coreState) exitScheduler() {
	c.privatePriorityMask = 0
	swap.RestoreG(c.g, c.gState)
	swap.Swap(&c.loadedContext.sp, &c.kernelSP)
}
