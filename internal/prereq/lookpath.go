package prereq

import "os/exec"

func execLookPath(binary string) (string, error) {
	return exec.LookPath(binary)
}
