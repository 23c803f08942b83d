//go:build !windows

package store

import "syscall"

// processAlive reports whether pid refers to a running process on this
// host, using the POSIX convention that signal 0 performs only existence
// and permission checks (spec.md §4.4 stale-lock detection).
func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	err := syscall.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == syscall.EPERM
}
