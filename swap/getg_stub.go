//go:build !amd64 || noasm

// getg_stub.go
//
// Registry-key fallback for targets without the asm probe. One binding per
// process is enough there: such builds cannot start the scheduler (no stack
// switch), only the test-only binding path uses the key, and nothing ever
// dereferences it.

package swap

func Getg() uintptr { return 1 }
