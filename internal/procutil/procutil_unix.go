//go:build unix

package procutil

import "golang.org/x/sys/unix"

// alive sends signal 0, which performs the permission and existence
// checks without delivering anything. EPERM means the process exists but
// is owned by another user.
func alive(pid int) bool {
	err := unix.Kill(pid, 0)
	if err == nil {
		return true
	}
	return err == unix.EPERM
}
