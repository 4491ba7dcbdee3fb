package fileserver

import (
	"fmt"
	"os"
)

// computeETag produces "<mtime_ms>:<size>[:<inode>]" — cheap, unique
// enough per URI, and an inode change distinguishes an in-place file
// replacement from a coincidental mtime collision. The inode component is
// only present on POSIX filesystems that expose one.
func computeETag(fi os.FileInfo) string {
	base := fmt.Sprintf("%d:%d", fi.ModTime().UnixMilli(), fi.Size())
	if ino, ok := inodeOf(fi); ok {
		return fmt.Sprintf(`"%s:%d"`, base, ino)
	}
	return fmt.Sprintf(`"%s"`, base)
}
