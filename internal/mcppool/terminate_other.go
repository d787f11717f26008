//go:build !unix

package mcppool

import (
	"errors"
	"os"
	"os/exec"
)

func configureCommand(*exec.Cmd) {}

// terminate has no graceful signal to send here, so it kills the process.
func terminate(proc *os.Process) error {
	return proc.Kill()
}

func terminatedBySignal(err error) bool {
	var exitErr *exec.ExitError
	return errors.As(err, &exitErr)
}
