// Package gid resolves the numeric id of the calling goroutine, parsed from
// the header line of a single-goroutine stack dump ("goroutine NN [...]").
//
// The id is stable for the goroutine's lifetime, which makes it usable as a
// registry key for per-goroutine state. The parse costs a runtime.Stack call,
// so callers should avoid it on hot paths.
package gid

import (
	"runtime"
)

const header = "goroutine "

// Get returns the id of the calling goroutine.
func Get() int64 {
	var buf [64]byte
	n := runtime.Stack(buf[:], false)
	s := buf[:n]
	if len(s) < len(header) {
		return 0
	}
	s = s[len(header):]
	var id int64
	for _, c := range s {
		if c < '0' || c > '9' {
			break
		}
		id = id*10 + int64(c-'0')
	}
	return id
}
