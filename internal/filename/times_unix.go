//go:build linux

package filename

import (
	"os"
	"syscall"
	"time"
)

// statTimes returns the last-access and last-write times of the file at
// path, reading the platform's raw stat structure since os.FileInfo only
// exposes ModTime.
func statTimes(path string) (atime, mtime time.Time, err error) {
	info, err := os.Stat(path)
	if err != nil {
		return time.Time{}, time.Time{}, err
	}
	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return info.ModTime(), info.ModTime(), nil
	}
	return time.Unix(stat.Atim.Sec, stat.Atim.Nsec), info.ModTime(), nil
}
