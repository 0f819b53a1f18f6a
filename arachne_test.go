package arachne

import (
	"sync/atomic"
	"testing"
	"time"
)

// withRuntime brings the scheduler up for one test and tears it down after,
// leaving the library reinitializable for the next one. The calling
// goroutine also gets TestInit state so it may Join user threads directly.
func withRuntime(t *testing.T, args []string, fn func()) {
	t.Helper()
	Init(args)
	TestInit()
	defer func() {
		TestDestroy()
		ShutDown()
		WaitForTermination()
	}()
	fn()
}

// waitUntil polls cond to true or fails the test after the deadline.
func waitUntil(t *testing.T, d time.Duration, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(d)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(time.Millisecond)
	}
}

// TestCreateRunsAndJoins covers the basic lifecycle: the thread runs, its
// effects are visible, and a join after it already exited returns without
// blocking.
func TestCreateRunsAndJoins(t *testing.T) {
	withRuntime(t, []string{"--numCores", "1", "--maxNumCores", "1"}, func() {
		var n uint64
		id := CreateThreadOnCore(0, func() { atomic.AddUint64(&n, 1) })
		if !id.Valid() {
			t.Fatal("creation failed on an empty core")
		}

		time.Sleep(5 * time.Millisecond)

		start := time.Now()
		Join(id)
		if since := time.Since(start); since > 50*time.Millisecond {
			t.Fatalf("join of an exited thread blocked for %v", since)
		}
		if atomic.LoadUint64(&n) != 1 {
			t.Fatalf("thread body ran %d times, want 1", n)
		}
	})
}

// TestCreateRejectsBadTargets: invalid core ids and nil callables yield the
// null id without side effects.
func TestCreateRejectsBadTargets(t *testing.T) {
	withRuntime(t, []string{"--numCores", "1", "--maxNumCores", "1"}, func() {
		if CreateThreadOnCore(7, func() {}).Valid() {
			t.Fatal("creation on a nonexistent core succeeded")
		}
		if CreateThreadOnCore(-1, func() {}).Valid() {
			t.Fatal("creation on a negative core succeeded")
		}
		if CreateThreadOnCore(0, nil).Valid() {
			t.Fatal("creation with a nil callable succeeded")
		}
	})
}

// TestPingPong alternates signal/block between two threads on one core for
// 10000 rounds, then proves the slot table fully drained by filling it.
func TestPingPong(t *testing.T) {
	const rounds = 10000
	withRuntime(t, []string{"--numCores", "1", "--maxNumCores", "1"}, func() {
		var ids [2]ThreadId
		var ready, finished uint32

		ids[0] = CreateThreadOnCore(0, func() {
			for atomic.LoadUint32(&ready) == 0 {
				Yield()
			}
			for i := 0; i < rounds; i++ {
				Signal(ids[1])
				Block()
			}
			atomic.AddUint32(&finished, 1)
		})
		ids[1] = CreateThreadOnCore(0, func() {
			for atomic.LoadUint32(&ready) == 0 {
				Yield()
			}
			for i := 0; i < rounds; i++ {
				Block()
				Signal(ids[0])
			}
			atomic.AddUint32(&finished, 1)
		})
		if !ids[0].Valid() || !ids[1].Valid() {
			t.Fatal("creation failed")
		}
		atomic.StoreUint32(&ready, 1)

		waitUntil(t, 10*time.Second,
			func() bool { return atomic.LoadUint32(&finished) == 2 },
			"ping-pong completion")
		Join(ids[0])
		Join(ids[1])

		// Both slots must be reclaimable: a full table of creations succeeds.
		var drained [slotsPerCore]ThreadId
		for i := range drained {
			drained[i] = CreateThreadOnCore(0, func() {})
			if !drained[i].Valid() {
				t.Fatalf("slot table not empty after ping-pong: creation %d failed", i)
			}
		}
		for _, id := range drained {
			Join(id)
		}
	})
}

// TestSleepOrdering creates three sleepers with shuffled durations on one
// core and expects wakeups in deadline order.
func TestSleepOrdering(t *testing.T) {
	withRuntime(t, []string{"--numCores", "1", "--maxNumCores", "1"}, func() {
		var order [3]int32
		var idx int32

		sleeper := func(d time.Duration, tag int32) func() {
			return func() {
				Sleep(d)
				order[atomic.AddInt32(&idx, 1)-1] = tag
			}
		}
		CreateThreadOnCore(0, sleeper(30*time.Millisecond, 30))
		CreateThreadOnCore(0, sleeper(10*time.Millisecond, 10))
		CreateThreadOnCore(0, sleeper(20*time.Millisecond, 20))

		waitUntil(t, 2*time.Second,
			func() bool { return atomic.LoadInt32(&idx) == 3 },
			"all sleepers to wake")
		if order != [3]int32{10, 20, 30} {
			t.Fatalf("wake order = %v, want [10 20 30]", order)
		}
	})
}

// TestSleepLowerBound: Sleep may return late, never early, measured on the
// wall clock inside the thread itself.
func TestSleepLowerBound(t *testing.T) {
	withRuntime(t, []string{"--numCores", "1", "--maxNumCores", "1"}, func() {
		const want = 5 * time.Millisecond
		var early, done uint32

		CreateThreadOnCore(0, func() {
			start := time.Now()
			Sleep(want)
			if time.Since(start) < want {
				atomic.StoreUint32(&early, 1)
			}
			atomic.StoreUint32(&done, 1)
		})

		waitUntil(t, 2*time.Second,
			func() bool { return atomic.LoadUint32(&done) == 1 }, "sleeper")
		if early == 1 {
			t.Fatal("Sleep returned before its lower bound")
		}
	})
}

// TestCrossCoreSignal blocks a thread on core 0 and wakes it from core 1;
// resume latency is bounded loosely for CI noise.
func TestCrossCoreSignal(t *testing.T) {
	withRuntime(t, []string{"--numCores", "2", "--maxNumCores", "2"}, func() {
		var blocked, resumed uint32

		a := CreateThreadOnCore(0, func() {
			atomic.StoreUint32(&blocked, 1)
			Block()
			atomic.StoreUint32(&resumed, 1)
		})
		if !a.Valid() {
			t.Fatal("creation on core 0 failed")
		}
		waitUntil(t, time.Second,
			func() bool { return atomic.LoadUint32(&blocked) == 1 }, "A to block")
		// A sets the flag before Block; give the dispatch a moment to park.
		time.Sleep(2 * time.Millisecond)

		b := CreateThreadOnCore(1, func() { Signal(a) })
		if !b.Valid() {
			t.Fatal("creation on core 1 failed")
		}

		waitUntil(t, 100*time.Millisecond,
			func() bool { return atomic.LoadUint32(&resumed) == 1 }, "A to resume")
		Join(a)
		Join(b)
	})
}

// TestSlotExhaustion submits 57 creations against a 56-slot core: exactly
// one fails, and a retry succeeds once a slot frees up.
func TestSlotExhaustion(t *testing.T) {
	withRuntime(t, []string{"--numCores", "1", "--maxNumCores", "1"}, func() {
		var hold uint32
		var finished uint32
		body := func() {
			for atomic.LoadUint32(&hold) == 0 {
				Yield()
			}
			atomic.AddUint32(&finished, 1)
		}

		var ids [slotsPerCore]ThreadId
		for i := range ids {
			ids[i] = CreateThreadOnCore(0, body)
			if !ids[i].Valid() {
				t.Fatalf("creation %d failed below the slot limit", i)
			}
		}
		if CreateThreadOnCore(0, body).Valid() {
			t.Fatal("creation 57 should have returned the null id")
		}

		atomic.StoreUint32(&hold, 1)
		waitUntil(t, 5*time.Second, func() bool {
			return CreateThreadOnCore(0, func() { atomic.AddUint32(&finished, 1) }).Valid()
		}, "a retried creation after drain")

		waitUntil(t, 5*time.Second, func() bool {
			return atomic.LoadUint32(&finished) >= slotsPerCore+1
		}, "all threads to finish")
	})
}

// TestYieldRoundTrip spreads more threads than one core holds across two
// cores; each yields repeatedly and exits. Everything must complete and the
// slots must all come back.
func TestYieldRoundTrip(t *testing.T) {
	const threads = 80
	const yields = 10
	withRuntime(t, []string{"--numCores", "2", "--maxNumCores", "2"}, func() {
		var finished uint32
		for i := 0; i < threads; i++ {
			id := CreateThread(func() {
				for k := 0; k < yields; k++ {
					Yield()
				}
				atomic.AddUint32(&finished, 1)
			})
			if !id.Valid() {
				t.Fatalf("auto-targeted creation %d failed with capacity available", i)
			}
		}
		waitUntil(t, 10*time.Second,
			func() bool { return atomic.LoadUint32(&finished) == threads },
			"round trip completion")
		waitUntil(t, 5*time.Second, func() bool {
			for _, c := range coreSnapshot() {
				if c.occupied.Count() != 0 {
					return false
				}
			}
			return true
		}, "all slots to come back")
	})
}

// TestSignalAfterJoinIsInert: a ThreadId whose thread exited must be a dead
// handle — signaling it may not disturb the slot's next occupant.
func TestSignalAfterJoinIsInert(t *testing.T) {
	withRuntime(t, []string{"--numCores", "1", "--maxNumCores", "1"}, func() {
		old := CreateThreadOnCore(0, func() {})
		Join(old)

		var wokeEarly, done uint32
		fresh := CreateThreadOnCore(0, func() {
			start := time.Now()
			Sleep(20 * time.Millisecond)
			if time.Since(start) < 20*time.Millisecond {
				atomic.StoreUint32(&wokeEarly, 1)
			}
			atomic.StoreUint32(&done, 1)
		})
		if !fresh.Valid() {
			t.Fatal("creation failed")
		}

		// Hammer the dead handle while the new occupant sleeps.
		for i := 0; i < 100; i++ {
			Signal(old)
			time.Sleep(100 * time.Microsecond)
		}

		waitUntil(t, 2*time.Second,
			func() bool { return atomic.LoadUint32(&done) == 1 }, "sleeper")
		if wokeEarly == 1 {
			t.Fatal("signal on a dead ThreadId woke the slot's new occupant")
		}
	})
}

// TestShutdownFromUserThread ends the runtime from inside a workload and
// proves the library reinitializes cleanly afterwards.
func TestShutdownFromUserThread(t *testing.T) {
	Init([]string{"--numCores", "2", "--maxNumCores", "2"})

	var done uint32
	CreateThreadOnCore(0, func() {
		atomic.AddUint32(&done, 1)
		ShutDown()
	})
	WaitForTermination()
	if atomic.LoadUint32(&done) != 1 {
		t.Fatal("workload did not finish before termination")
	}

	// Second lifecycle over the same process state.
	Init([]string{"--numCores", "1", "--maxNumCores", "1"})
	var again uint32
	id := CreateThreadOnCore(0, func() { atomic.AddUint32(&again, 1) })
	if !id.Valid() {
		t.Fatal("creation failed after reinitialization")
	}
	waitUntil(t, 2*time.Second,
		func() bool { return atomic.LoadUint32(&again) == 1 }, "second-life thread")
	ShutDown()
	WaitForTermination()
}

// TestElasticityGrowsUnderPressure starts on one core, saturates it, and
// expects the runtime to reach maxNumCores; draining the workload must
// eventually retract back to one core.
func TestElasticityGrowsUnderPressure(t *testing.T) {
	if testing.Short() {
		t.Skip("elasticity convergence takes seconds")
	}
	withRuntime(t, []string{"--numCores", "1", "--maxNumCores", "2"}, func() {
		var hold uint32
		for i := 0; i < 20; i++ {
			CreateThreadOnCore(0, func() {
				for atomic.LoadUint32(&hold) == 0 {
					Yield()
				}
			})
		}

		waitUntil(t, 5*time.Second,
			func() bool { return len(coreSnapshot()) == 2 },
			"growth to maxNumCores")

		atomic.StoreUint32(&hold, 1)
		waitUntil(t, 15*time.Second,
			func() bool { return len(coreSnapshot()) == 1 },
			"retraction after drain")
	})
}
