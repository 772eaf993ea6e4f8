// Package iox provides I/O helpers for releasing session resources.
package iox

import (
	"io"
	"os"
)

// DiscardClose closes c and discards the error.
// Use in defer statements where close errors are unactionable:
//
//	defer iox.DiscardClose(f)
func DiscardClose(c io.Closer) { _ = c.Close() }

// CloseFunc returns a cleanup function that closes c.
// Designed for t.Cleanup registration:
//
//	t.Cleanup(iox.CloseFunc(client))
func CloseFunc(c io.Closer) func() {
	return func() { _ = c.Close() }
}

// DiscardErr calls fn and discards the returned error.
// Use for non-Close cleanup calls (e.g. Kill) where errors are unactionable:
//
//	defer iox.DiscardErr(proc.Kill)
func DiscardErr(fn func() error) { _ = fn() }

// ReleaseTemp closes f and removes it from disk, discarding both errors.
// Pairs with os.CreateTemp for scratch files:
//
//	f, err := os.CreateTemp("", "stderr-*")
//	...
//	defer iox.ReleaseTemp(f)
func ReleaseTemp(f *os.File) {
	_ = f.Close()
	_ = os.Remove(f.Name())
}
