//go:build !windows

package shell

import (
	"os/exec"
	"syscall"
)

func signalNumber(exitErr *exec.ExitError) int {
	if ws, ok := exitErr.Sys().(syscall.WaitStatus); ok && ws.Signaled() {
		return int(ws.Signal())
	}
	return 1
}
