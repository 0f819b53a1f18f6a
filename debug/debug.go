// ─────────────────────────────────────────────────────────────────────────────
// [Filename]: debug.go — cold-path diagnostics for the scheduler (zero-alloc)
//
// Purpose:
//   - Reports failure paths (option parse errors, canary mismatches, misuse
//     of scheduler primitives) without introducing heap pressure near the
//     dispatch loop.
//   - Carries the redirectable error stream behind SetStream.
//
// Notes:
//   - Avoids fmt: messages are assembled by plain string concatenation so the
//     cold path never allocates interface headers.
//   - Fatal paths flush the diagnostic before aborting; the scheduler cannot
//     run partially initialized or with a corrupted stack.
//
// ⚠️ Never invoke in hot loops — failure diagnostics only.
// ─────────────────────────────────────────────────────────────────────────────

package debug

import (
	"os"
	"sync/atomic"
	"unsafe"
)

// stream holds the current *os.File error sink. Swapped atomically so user
// threads may log while the application redirects.
var stream unsafe.Pointer = unsafe.Pointer(os.Stderr)

// SetStream redirects all diagnostics to w. A nil w restores stderr.
func SetStream(w *os.File) {
	if w == nil {
		w = os.Stderr
	}
	atomic.StorePointer(&stream, unsafe.Pointer(w))
}

// Stream returns the current error sink.
func Stream() *os.File {
	return (*os.File)(atomic.LoadPointer(&stream))
}

// DropMessage logs a tagged diagnostic line, e.g. "ARACHNE_INIT: 4 cores".
//
//go:nosplit
func DropMessage(prefix, message string) {
	msg := prefix + ": " + message + "\n"
	Stream().WriteString(msg)
}

// DropError logs a tagged error, tolerating a nil err for bare tags.
//
//go:nosplit
func DropError(prefix string, err error) {
	if err != nil {
		DropMessage(prefix, err.Error())
		return
	}
	Stream().WriteString(prefix + "\n")
}

// Fatal logs a diagnostic and aborts the process. Used for unrecoverable
// conditions: a stack-canary mismatch observed by the dispatcher, Init on an
// architecture without a stack switch, a scheduler primitive called outside
// any core, and a full core registry. Allocation failure never reaches it:
// Go's allocator aborts the process on its own.
func Fatal(prefix, message string) {
	DropMessage(prefix, message)
	Stream().Sync()
	os.Exit(1)
}
