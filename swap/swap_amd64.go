//go:build amd64 && !noasm

// swap_amd64.go
//
// Go declaration for the amd64 stack switch. The implementation lives in
// swap_amd64.s: it saves the six callee-saved registers on the current stack,
// parks SP through save, loads SP through target and pops the register set
// from the new stack.

package swap

// Swap saves the current execution point at *save and resumes the one stored
// at *target. It returns on the target stack; the call on the saved stack
// returns only when some later Swap targets it again.
//
//go:noescape
func Swap(save, target *uintptr)
