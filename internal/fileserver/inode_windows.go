//go:build windows

package fileserver

import "os"

// inodeOf has no POSIX inode equivalent on Windows.
func inodeOf(fi os.FileInfo) (uint64, bool) { return 0, false }
