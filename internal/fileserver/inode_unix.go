//go:build !windows

package fileserver

import (
	"os"
	"syscall"
)

// inodeOf extracts the POSIX inode number from fi, when the underlying
// filesystem exposes a *syscall.Stat_t (real files; afero's in-memory FS
// used in tests does not, so ok is false there).
func inodeOf(fi os.FileInfo) (uint64, bool) {
	st, ok := fi.Sys().(*syscall.Stat_t)
	if !ok {
		return 0, false
	}
	return uint64(st.Ino), true
}
