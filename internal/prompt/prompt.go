// Package prompt asks the user which snapshots to update and what to do
// when an update fails. A terminal gets an interactive list; anything else
// gets numbered line prompts.
package prompt

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"golang.org/x/term"

	"github.com/dkoosis/snap/pkg/render"
)

var (
	// ErrCancelled means the user dismissed the prompt.
	ErrCancelled = errors.New("cancelled")
	// ErrInputClosed means input ended before an answer was given.
	ErrInputClosed = errors.New("input closed")
)

// UIError is returned when a prompt cannot produce an answer.
type UIError struct {
	Op  string
	Err error
}

func (e *UIError) Error() string {
	return fmt.Sprintf("prompt %s: %v", e.Op, e.Err)
}

func (e *UIError) Unwrap() error { return e.Err }

// Selector collects user choices.
type Selector interface {
	// MultiSelect returns the ascending indices of the chosen items. An
	// empty result is a valid answer.
	MultiSelect(ctx context.Context, title string, items []string) ([]int, error)
	// Choose returns the index of exactly one option.
	Choose(ctx context.Context, title string, options []string) (int, error)
}

// New returns the interactive selector when both in and out are terminals,
// and the line selector otherwise.
func New(in io.Reader, out io.Writer, theme render.Theme) Selector {
	if isTerminal(in) && isTerminal(out) {
		return NewTUI(in, out, theme)
	}
	return NewLine(in, out, theme)
}

func isTerminal(v any) bool {
	f, ok := v.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}

func termWidth(w io.Writer) int {
	if f, ok := w.(*os.File); ok {
		if tw, _, err := term.GetSize(int(f.Fd())); err == nil && tw > 0 {
			return tw
		}
	}
	return 80
}
