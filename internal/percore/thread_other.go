//go:build !linux

package percore

import (
	"bytes"
	"runtime"
	"strconv"
)

// threadID falls back to the calling goroutine's id on non-Linux hosts,
// where there is no portable syscall for the OS thread id. Combined with
// runtime.LockOSThread (required of every core-runner goroutine) this is
// equivalent for our purposes: one goroutine per simulated core, pinned for
// its lifetime.
func threadID() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	b := buf[:n]
	b = bytes.TrimPrefix(b, []byte("goroutine "))
	if i := bytes.IndexByte(b, ' '); i >= 0 {
		b = b[:i]
	}
	id, _ := strconv.ParseInt(string(b), 10, 64)
	return id
}
