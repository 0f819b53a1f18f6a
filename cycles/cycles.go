// Package cycles wraps the CPU cycle counter used for all scheduler timing.
//
// The dispatcher compares wakeup deadlines against raw counter reads, so the
// read path has to stay a handful of nanoseconds; conversion to and from wall
// time happens only on the cold paths (sleep setup, stats collection). The
// cycles-per-second rate is calibrated once against the monotonic clock.
package cycles

import (
	"sync"
	"time"
)

var (
	calibrateOnce sync.Once
	perSecond     float64 // calibrated cycle rate
)

// calibrationWindow is long enough to push the measurement error under 0.1%
// without making first use noticeably slow.
const calibrationWindow = 10 * time.Millisecond

// calibrate measures the counter rate against the monotonic clock.
func calibrate() {
	startWall := time.Now()
	startTSC := Rdtsc()
	for time.Since(startWall) < calibrationWindow {
	}
	elapsed := time.Since(startWall)
	endTSC := Rdtsc()
	perSecond = float64(endTSC-startTSC) / elapsed.Seconds()
}

// PerSecond returns the calibrated cycle rate.
func PerSecond() float64 {
	calibrateOnce.Do(calibrate)
	return perSecond
}

// FromNanoseconds converts a nanosecond duration to cycles, rounding up so a
// sleep never undershoots its deadline.
func FromNanoseconds(ns uint64) uint64 {
	rate := PerSecond()
	return uint64(float64(ns)*rate/1e9) + 1
}

// ToNanoseconds converts a cycle delta to nanoseconds.
func ToNanoseconds(c uint64) uint64 {
	rate := PerSecond()
	return uint64(float64(c) * 1e9 / rate)
}

// ToSeconds converts a cycle delta to seconds.
func ToSeconds(c uint64) float64 {
	return float64(c) / PerSecond()
}
