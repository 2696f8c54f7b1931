//go:build windows

package filename

import (
	"os"
	"time"
)

// statTimes returns the last-access and last-write times of the file at
// path. Windows' os.FileInfo does not expose atime through a portable
// field without extra syscalls, so last-access is approximated with
// ModTime; this only affects LRU precision on Windows, never correctness
// of expiration, which relies solely on mtime.
func statTimes(path string) (atime, mtime time.Time, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	return info.ModTime(), info.ModTime(), nil
}
