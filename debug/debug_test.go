package debug

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// redirect points the package at a temp file and returns a reader for what
// was written.
func redirect(t *testing.T) (restore func(), read func() string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "diag.log")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	SetStream(f)
	return func() {
			SetStream(nil)
			f.Close()
		}, func() string {
			b, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read: %v", err)
			}
			return string(b)
		}
}

// TestDropMessageTagsLine checks the prefix: message framing diagnostics
// grep for.
func TestDropMessageTagsLine(t *testing.T) {
	restore, read := redirect(t)
	defer restore()

	DropMessage("ARACHNE_INIT", "2 cores")
	if got := read(); got != "ARACHNE_INIT: 2 cores\n" {
		t.Fatalf("line = %q", got)
	}
}

// TestDropErrorHandlesNil: a nil error logs the bare tag instead of
// panicking.
func TestDropErrorHandlesNil(t *testing.T) {
	restore, read := redirect(t)
	defer restore()

	DropError("SYNC_TAG", nil)
	DropError("HARVEST", errors.New("disk full"))

	got := read()
	if !strings.Contains(got, "SYNC_TAG\n") || !strings.Contains(got, "HARVEST: disk full\n") {
		t.Fatalf("log = %q", got)
	}
}

// TestSetStreamNilRestoresStderr guards the redirection contract.
func TestSetStreamNilRestoresStderr(t *testing.T) {
	SetStream(nil)
	if Stream() != os.Stderr {
		t.Fatal("nil stream did not restore stderr")
	}
}
