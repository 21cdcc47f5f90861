package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/JonMunkholm/pricetracker/internal/core"
)

const (
	exitOK      = 0
	exitFailure = 1
	exitUsage   = 2
)

// codedError carries the process exit code for err.
type codedError struct {
	code int
	err  error
}

func (e *codedError) Error() string { return e.err.Error() }
func (e *codedError) Unwrap() error { return e.err }

func withCode(code int, err error) error {
	if err == nil {
		return nil
	}
	return &codedError{code: code, err: err}
}

func exitCode(err error) int {
	if err == nil {
		return exitOK
	}
	var ce *codedError
	if errors.As(err, &ce) {
		return ce.code
	}
	if strings.HasPrefix(err.Error(), "unknown command") {
		return exitUsage
	}
	return exitFailure
}

func main() {
	os.Exit(run(os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a := &app{in: stdin, out: stdout}
	defer a.close()

	root := newRootCmd(a)
	root.SetArgs(args)
	root.SetIn(stdin)
	root.SetOut(stdout)
	root.SetErr(stderr)

	err := root.ExecuteContext(ctx)
	code := exitCode(err)
	if err != nil {
		printError(stderr, err, code)
	}
	return code
}

// printError writes err and, for pipeline failures, the user-facing hint.
func printError(w io.Writer, err error, code int) {
	fmt.Fprintf(w, "Error: %v\n", err)
	if code == exitUsage {
		fmt.Fprintln(w, "Run 'pricetracker --help' for usage.")
		return
	}
	msg := core.MapError(err)
	if msg.Code == "ERR000" {
		return
	}
	fmt.Fprintf(w, "%s: %s", msg.Code, msg.Message)
	if msg.Action != "" {
		fmt.Fprintf(w, ". %s", msg.Action)
	}
	fmt.Fprintln(w)
}
