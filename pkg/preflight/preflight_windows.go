//go:build windows

package preflight

// freeSpace is not implemented on Windows; the check is skipped.
func freeSpace(path string) (available uint64, ok bool, err error) {
	return 0, false, nil
}
