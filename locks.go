// locks.go
//
// Blocking primitives built on the wakeup mechanism: a spinlock for short
// critical sections, a sleep lock whose waiters dispatch instead of spinning,
// and a condition variable over ThreadId queues. The condition variable's
// queue is guarded by the caller-held associated lock, which is what makes
// notify-before-wait a non-race (the missed-wakeup window is closed by the
// lock, spurious returns are absorbed by predicate loops).

package arachne

import (
	"sync"
	"sync/atomic"
)

// SpinLock is a test-and-set lock with polite backoff. Safe from any thread;
// hold times must stay short because waiters burn the core.
type SpinLock struct {
	state uint32
}

// Lock spins until the lock is acquired.
//
//go:nosplit
func (l *SpinLock) Lock() {
	for !atomic.CompareAndSwapUint32(&l.state, 0, 1) {
		cpuRelax()
	}
}

// TryLock acquires without spinning.
//
//go:nosplit
func (l *SpinLock) TryLock() bool {
	return atomic.CompareAndSwapUint32(&l.state, 0, 1)
}

// Unlock releases the lock.
//
//go:nosplit
func (l *SpinLock) Unlock() {
	atomic.StoreUint32(&l.state, 0)
}

// SleepLock is a mutex whose waiters cede the core. Ownership transfers
// directly to the head waiter on unlock, so the lock is FIFO-fair among
// blocked threads.
type SleepLock struct {
	guard   SpinLock
	held    bool
	owner   ThreadId
	waiters []ThreadId
}

// Lock blocks the calling user thread until it owns the lock.
func (l *SleepLock) Lock() {
	me := GetThreadId()
	l.guard.Lock()
	if !l.held {
		l.held = true
		l.owner = me
		l.guard.Unlock()
		return
	}
	l.waiters = append(l.waiters, me)
	l.guard.Unlock()

	for {
		dispatch()
		l.guard.Lock()
		if l.owner == me {
			l.guard.Unlock()
			return
		}
		l.guard.Unlock()
	}
}

// TryLock is the single-shot, non-blocking variant.
func (l *SleepLock) TryLock() bool {
	me := GetThreadId()
	l.guard.Lock()
	if l.held {
		l.guard.Unlock()
		return false
	}
	l.held = true
	l.owner = me
	l.guard.Unlock()
	return true
}

// Unlock releases the lock, handing it to the head waiter if any.
func (l *SleepLock) Unlock() {
	l.guard.Lock()
	if len(l.waiters) == 0 {
		l.held = false
		l.owner = NullThread
		l.guard.Unlock()
		return
	}
	next := l.waiters[0]
	l.waiters = l.waiters[1:]
	l.owner = next
	l.guard.Unlock()
	Signal(next)
}

// ConditionVariable queues blocked ThreadIds. All queue access happens with
// the associated lock held by the caller.
type ConditionVariable struct {
	waiters []ThreadId
}

// Wait releases l, blocks until notified (or spuriously woken), and
// reacquires l before returning. Callers loop on their predicate.
func (cv *ConditionVariable) Wait(l sync.Locker) {
	cv.waiters = append(cv.waiters, GetThreadId())
	l.Unlock()
	dispatch()
	l.Lock()
}

// NotifyOne wakes the longest-waiting thread. Caller holds the associated
// lock.
func (cv *ConditionVariable) NotifyOne() {
	if len(cv.waiters) == 0 {
		return
	}
	id := cv.waiters[0]
	cv.waiters = cv.waiters[1:]
	Signal(id)
}

// NotifyAll wakes every queued waiter. Caller holds the associated lock.
func (cv *ConditionVariable) NotifyAll() {
	for _, id := range cv.waiters {
		Signal(id)
	}
	cv.waiters = cv.waiters[:0]
}
