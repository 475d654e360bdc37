package lockmanager

import (
	"os"
	"syscall"
)

// IsProcessAlive reports whether pid names a running process. On POSIX
// systems os.FindProcess always succeeds; sending signal 0 is the
// standard way to probe liveness without affecting the target.
func IsProcessAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	proc, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	err = proc.Signal(syscall.Signal(0))
	if err == nil {
		return true
	}
	if err == syscall.ESRCH {
		return false
	}
	// EPERM means the process exists but we lack permission to signal
	// it — still alive from the lock owner's perspective.
	return err == syscall.EPERM
}
