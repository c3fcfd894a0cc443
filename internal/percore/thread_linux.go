//go:build linux

package percore

import "golang.org/x/sys/unix"

// threadID returns the OS thread id of the calling goroutine's underlying
// thread. Callers are required to have called runtime.LockOSThread before
// BindBSP/BindAP/Current so that the goroutine never migrates to a
// different OS thread mid-core, which would silently change "which core we
// are" — the Go analogue of the base register being reprogrammed out from
// under a running task.
func threadID() int64 {
	return int64(unix.Gettid())
}
