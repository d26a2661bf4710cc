package shell

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"

	"github.com/sonemaro/tella/internal/types"
)

// Executor hands a confirmed command to the platform shell
type Executor struct {
	GOOS   string
	Shell  string // value of $SHELL
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
	Stderr io.Writer
}

// NewExecutor returns an executor wired to the process's terminal
func NewExecutor() *Executor {
	dir, _ := os.Getwd()
	return &Executor{
		GOOS:   runtime.GOOS,
		Shell:  os.Getenv("SHELL"),
		Dir:    dir,
		Stdin:  os.Stdin,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
	}
}

// Command builds the child process for command without starting it.
// The command string is passed through verbatim.
func (e *Executor) Command(command string) *exec.Cmd {
	name, args := shellInvocation(e.GOOS, e.Shell)
	cmd := exec.Command(name, append(args, command)...)
	cmd.Dir = e.Dir
	cmd.Stdin = e.Stdin
	cmd.Stdout = e.Stdout
	cmd.Stderr = e.Stderr
	return cmd
}

// Run executes command and waits for it. The exit code mirrors the child;
// a non-zero code is also reported as *types.ExecutionFailedError.
//
// The child shares the terminal, so an interrupt reaches it directly and
// Run does not kill it on its own.
func (e *Executor) Run(command string) (int, error) {
	err := e.Command(command).Run()
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			// terminated by a signal
			code = 128 + signalNumber(exitErr)
		}
		return code, &types.ExecutionFailedError{ExitCode: code}
	}

	// the shell itself could not be started
	return 127, fmt.Errorf("failed to start shell: %w: %w", err, &types.ExecutionFailedError{ExitCode: 127})
}

// shellInvocation picks the interpreter: PowerShell on Windows, the
// user's shell when it is bash or zsh, POSIX sh otherwise.
func shellInvocation(goos, shellEnv string) (string, []string) {
	if goos == "windows" {
		return "powershell", []string{"-NoProfile", "-Command"}
	}
	switch filepath.Base(shellEnv) {
	case "bash", "zsh":
		return shellEnv, []string{"-c"}
	}
	return "sh", []string{"-c"}
}
