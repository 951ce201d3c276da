//go:build windows

package prereq

// Windows has no POSIX world-writable bit; ACL inspection is out of scope,
// so this always reports false rather than guessing.
func defaultStatMode(dir string) (uint32, error) {
	return 0, nil
}

func isWorldWritableDirectory(dir string) bool {
	return false
}
