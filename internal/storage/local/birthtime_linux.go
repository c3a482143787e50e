//go:build linux

package local

import (
	"time"

	"golang.org/x/sys/unix"
)

// birthTime returns the file creation time when the filesystem records it.
func birthTime(p string) *time.Time {
	var stx unix.Statx_t
	if err := unix.Statx(unix.AT_FDCWD, p, unix.AT_SYMLINK_NOFOLLOW, unix.STATX_BTIME, &stx); err != nil {
		return nil
	}
	if stx.Mask&unix.STATX_BTIME == 0 || stx.Btime.Sec == 0 {
		return nil
	}
	t := time.Unix(stx.Btime.Sec, int64(stx.Btime.Nsec)).UTC()
	return &t
}
