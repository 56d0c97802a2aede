// Package procutil probes whether a process id refers to a live process.
// The registry uses it to distinguish crashed peers (entries whose pid is
// gone) from healthy ones without any cooperation from the peer itself.
package procutil

// Alive reports whether a process with the given pid currently exists.
// A pid that exists but belongs to another user still counts as alive.
func Alive(pid int) bool {
	if pid <= 0 {
		return false
	}
	return alive(pid)
}
