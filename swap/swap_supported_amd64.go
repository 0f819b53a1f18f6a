//go:build amd64 && !noasm

package swap

// Supported reports whether this build carries a real Swap.
const Supported = true
