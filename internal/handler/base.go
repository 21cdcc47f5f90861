// Package handler implements the pricetracker commands on top of the
// pipeline. Each command takes its positional arguments as strings, prompts
// for what is missing where the command allows it, and returns an error that
// the CLI maps to an exit code.
package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/JonMunkholm/pricetracker/internal/account"
	"github.com/JonMunkholm/pricetracker/internal/config"
	"github.com/JonMunkholm/pricetracker/internal/core"
)

// Store is the gateway the commands write through.
type Store interface {
	core.Gateway
	account.Store
}

// Handler carries the dependencies shared by every command.
type Handler struct {
	Store    Store
	Recorder core.Recorder
	Config   *config.Config
	Prompt   *Prompter
	Out      io.Writer
}

// New returns a Handler reading prompt answers from in and printing to out.
// recorder may be nil.
func New(store Store, recorder core.Recorder, cfg *config.Config, in io.Reader, out io.Writer) *Handler {
	return &Handler{
		Store:    store,
		Recorder: recorder,
		Config:   cfg,
		Prompt:   NewPrompter(in, out),
		Out:      out,
	}
}

// RunError reports a failed ingestion run with the fields the CLI prints.
type RunError struct {
	Kind core.Kind
	Line int
	Code string
	Err  error
}

func (e *RunError) Error() string {
	if e.Line > 0 {
		return fmt.Sprintf("%s upload failed at line %d [%s]: %v", e.Kind, e.Line, e.Code, e.Err)
	}
	return fmt.Sprintf("%s upload failed [%s]: %v", e.Kind, e.Code, e.Err)
}

func (e *RunError) Unwrap() error { return e.Err }

func runError(kind core.Kind, err error) error {
	re := &RunError{Kind: kind, Code: core.MapError(err).Code, Err: err}
	var rowErr *core.RowError
	if errors.As(err, &rowErr) {
		re.Line = rowErr.Line
		re.Err = rowErr.Err
	}
	return re
}

// withTimeout bounds ctx by d when d is positive.
func withTimeout(ctx context.Context, d time.Duration) (context.Context, context.CancelFunc) {
	if d <= 0 {
		return context.WithCancel(ctx)
	}
	return context.WithTimeout(ctx, d)
}

func (h *Handler) printf(format string, args ...any) {
	fmt.Fprintf(h.Out, format, args...)
}
