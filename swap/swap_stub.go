//go:build !amd64 || noasm

// swap_stub.go
//
// Portable stand-in for architectures without a register hand-off
// implementation. Keeps the module compiling everywhere; the runtime refuses
// to start on top of it (see arachne.Init), because a scheduler that cannot
// switch stacks cannot schedule.

package swap

// Swap is unimplemented on this architecture.
func Swap(save, target *uintptr) {
	panic("swap: no stack-switch support on this architecture")
}

// Supported reports whether this build carries a real Swap.
const Supported = false
