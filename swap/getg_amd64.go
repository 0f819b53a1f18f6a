//go:build amd64 && !noasm

// getg_amd64.go
//
// Current-goroutine probe. Under the register ABI the g pointer is live in
// R14 at function entry, so the read is one MOV. The value doubles as the
// Seed g argument and as the scheduler's per-core registry key.

package swap

// Getg returns the current goroutine pointer.
//
//go:noescape
func Getg() uintptr
