package filename

import (
	"os"
	"time"
)

// GetExpiration returns the file's last-write time as a UTC instant: the
// absolute expiration deadline encoded by SetExpiration.
func GetExpiration(path string) (time.Time, error) {
	_, mtime, err := statTimes(path)
	if err != nil {
		return time.Time{}, err
	}
	return mtime.UTC(), nil
}

// GetAccessTime returns the file's last-access time as a UTC instant: the
// LRU position encoded by Refresh.
func GetAccessTime(path string) (time.Time, error) {
	atime, _, err := statTimes(path)
	if err != nil {
		return time.Time{}, err
	}
	return atime.UTC(), nil
}

// SetExpiration sets the file's last-write time to t, preserving its
// current last-access time.
func SetExpiration(path string, t time.Time) error {
	atime, _, err := statTimes(path)
	if err != nil {
		return err
	}
	return os.Chtimes(path, atime, t.UTC())
}

// Refresh sets the file's last-access time to now, preserving its current
// last-write time (expiration).
func Refresh(path string, now time.Time) error {
	_, mtime, err := statTimes(path)
	if err != nil {
		return err
	}
	return os.Chtimes(path, now.UTC(), mtime)
}
