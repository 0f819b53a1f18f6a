//go:build !linux || tinygo

// setaffinity_stub.go
//
// No-op CPU pinning for platforms without sched_setaffinity(2). Scheduling
// still works, the kernel just keeps the freedom to move our threads —
// best-effort pinning per the external-interface contract.

package arachne

// setAffinity is a no-op on unsupported platforms.
func setAffinity(cpu int) {}
