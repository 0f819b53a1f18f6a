//go:build !amd64 || noasm

// rdtsc_stub.go
//
// Portable fallback that counts nanoseconds instead of cycles. Calibration
// then converges on ~1e9 "cycles" per second, so every conversion stays
// correct — only the read is slower than a native counter.

package cycles

import "time"

var base = time.Now()

// Rdtsc returns elapsed monotonic nanoseconds on targets without a native
// timestamp counter.
func Rdtsc() uint64 {
	return uint64(time.Since(base))
}
