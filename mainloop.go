// mainloop.go
//
// The per-slot scheduler main loop and the kernel-thread bootstrap around it.
//
// Every context's stack is seeded so its first activation lands at
// schedulerMainLoop. The loop alternates between blocking in dispatch and
// running one user invocation to completion; the reclaim steps afterwards are
// ordered so a creation already in flight against this core can never have
// its occupancy bit clobbered (UNOCCUPIED and generation are published before
// the bit clears, and the bit clears before priority bits reset).

package arachne

import (
	"runtime"
	"sync/atomic"

	"arachne/perfstats"
	"arachne/swap"
)

// schedulerMainLoop is the entry point of every user stack.
func schedulerMainLoop() {
	c := currentCore()
	for {
		dispatchOn(c)

		// Selected with no pending invocation: a stale elevation landed on
		// this idle slot. Back to dispatch.
		ctx := c.loadedContext
		task := ctx.task
		if task == nil {
			continue
		}
		ctx.task = nil
		task()

		// Reclaim. Cancel self-scheduled wakeups first so a stale ThreadId
		// can no longer make this slot runnable, then retire the identity.
		ctx.setWakeup(slotUnoccupied)
		atomic.AddUint64(&ctx.generation, 1)

		ctx.joinLock.Lock()
		ctx.joinCV.NotifyAll()
		ctx.joinLock.Unlock()

		c.stats.NoteFinished()
		c.occupied.Clear(int(ctx.idInCore))

		// A recycled slot starts at normal priority.
		c.privatePriorityMask &^= uint64(1) << ctx.idInCore
		atomic.AndUint64(&c.publicPriorityMask, ^(uint64(1) << ctx.idInCore))
	}
}

// kernelThreadMain is the entry of one scheduling core: register, pin to the
// physical CPU matching the assigned index, hand the OS thread over to slot
// 0's stack, and unwind after the scheduler loop exits on shutdown or drain.
func kernelThreadMain(c *coreState) {
	defer kernelThreads.Done()

	runtime.LockOSThread()

	coreChangeMutex.Lock()
	cores := coreSnapshot()
	c.id = int32(len(cores))
	for _, ctx := range c.slots {
		atomic.StoreInt32(&ctx.coreId, c.id)
	}
	if !registerCore(c) {
		// The intended-count bump from incrementCoreCount must not outlive a
		// core that never joined, or growth stays blocked forever.
		atomic.AddInt32(&numCoresPrecursor, -1)
		coreChangeMutex.Unlock()
		runtime.UnlockOSThread()
		return
	}
	perfstats.Register(&c.stats)
	publishCores(append(cores, c))
	coreChangeMutex.Unlock()

	setAffinity(int(c.id))

	// Enter the scheduler on slot 0: park the goroutine's real stack
	// descriptor, point it at the user stack, and hand the thread over. The
	// swap returns only when a dispatcher running on this core decides to
	// exit, and exitScheduler restores the descriptor on the way out.
	c.loadedContext = c.slots[0]
	c.gState = swap.SaveG(c.g)
	swap.SetGStack(c.g, c.slots[0].stack)
	swap.Swap(&c.kernelSP, &c.slots[0].sp)

	coreChangeMutex.Lock()
	cores = coreSnapshot()
	for i, other := range cores {
		if other == c {
			publishCores(append(cores[:i:i], cores[i+1:]...))
			break
		}
	}
	atomic.AddInt32(&numCoresPrecursor, -1)
	perfstats.Unregister(&c.stats)
	unregisterCore(c)
	coreChangeMutex.Unlock()

	runtime.UnlockOSThread()
}
