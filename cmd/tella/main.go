// tella - natural language to shell commands, checked before they run
package main

import (
	"context"
	"errors"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"

	"github.com/sonemaro/tella/internal/types"
)

func main() {
	// A missing .env is the normal case.
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := execute(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

// execute runs the CLI and returns the process exit code
func execute(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	app := newApp(stdin, stdout, stderr)
	defer app.close()

	rootCmd := newRootCmd(app)
	rootCmd.SetArgs(args)
	rootCmd.SetIn(stdin)
	rootCmd.SetOut(stdout)
	rootCmd.SetErr(stderr)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		app.reportError(err)
		return exitCode(err)
	}
	return app.exitCode
}

// exitCode maps an error that ended the run onto the process exit code
func exitCode(err error) int {
	if errors.Is(err, errUsage) {
		return 2
	}
	return types.ExitCode(err)
}
