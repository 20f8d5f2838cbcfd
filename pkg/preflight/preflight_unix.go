//go:build !windows

package preflight

import "golang.org/x/sys/unix"

// freeSpace reports the number of bytes available to an unprivileged caller
// on the filesystem containing path.
func freeSpace(path string) (available uint64, ok bool, err error) {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return 0, false, err
	}
	return stat.Bavail * uint64(stat.Bsize), true, nil
}
