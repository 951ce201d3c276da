//go:build !windows

package prereq

import "syscall"

const worldWritableBit = 0o002

func defaultStatMode(dir string) (uint32, error) {
	var st syscall.Stat_t
	if err := syscall.Stat(dir, &st); err != nil {
		return 0, err
	}
	return uint32(st.Mode), nil
}

func isWorldWritableDirectory(dir string) bool {
	mode, err := statMode(dir)
	if err != nil {
		return false
	}
	return mode&worldWritableBit != 0
}
