//go:build amd64 && !noasm

// relax_amd64.go
//
// Go declaration for cpuRelax on amd64. The implementation in relax_amd64.s
// emits a single PAUSE instruction so the dispatcher's idle wraps and the
// spinlock back-off stay polite to the sibling hyperthread.

package arachne

// cpuRelax executes the x86_64 PAUSE instruction.
//
//go:noescape
func cpuRelax()
