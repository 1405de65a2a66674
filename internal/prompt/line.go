package prompt

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"

	"github.com/dkoosis/snap/pkg/render"
)

// Line prompts with numbered lists over plain reader and writer streams.
type Line struct {
	in    *bufio.Reader
	out   io.Writer
	theme render.Theme
}

// NewLine returns a line-oriented selector.
func NewLine(in io.Reader, out io.Writer, theme render.Theme) *Line {
	return &Line{in: bufio.NewReader(in), out: out, theme: theme}
}

// MultiSelect prints items numbered from 1 and reads a selection such as
// "1,3-4", "all", or an empty line for none. Invalid input re-prompts.
func (l *Line) MultiSelect(ctx context.Context, title string, items []string) ([]int, error) {
	fmt.Fprintln(l.out, l.theme.Bold.Render(title))
	for i, item := range items {
		fmt.Fprintf(l.out, "  %s %s\n", l.theme.Muted.Render(fmt.Sprintf("%2d)", i+1)), item)
	}
	for {
		fmt.Fprint(l.out, "select (e.g. 1,3-4, all; empty for none): ")
		text, err := l.readLine(ctx, "select")
		if err != nil {
			return nil, err
		}
		sel, err := ParseSelection(text, len(items))
		if err == nil {
			return sel, nil
		}
		fmt.Fprintln(l.out, l.theme.Error.Render(err.Error()))
	}
}

// Choose prints options numbered from 1 and reads a number or option name.
func (l *Line) Choose(ctx context.Context, title string, options []string) (int, error) {
	fmt.Fprintln(l.out, l.theme.Bold.Render(title))
	for i, opt := range options {
		fmt.Fprintf(l.out, "  %s %s\n", l.theme.Muted.Render(fmt.Sprintf("%d)", i+1)), opt)
	}
	for {
		fmt.Fprintf(l.out, "choose [1-%d]: ", len(options))
		text, err := l.readLine(ctx, "choose")
		if err != nil {
			return 0, err
		}
		if i, ok := matchOption(strings.TrimSpace(text), options); ok {
			return i, nil
		}
		fmt.Fprintln(l.out, l.theme.Error.Render(fmt.Sprintf("enter a number from 1 to %d or an option name", len(options))))
	}
}

// matchOption accepts a 1-based index or an unambiguous, case-insensitive
// prefix of an option name.
func matchOption(text string, options []string) (int, bool) {
	if text == "" {
		return 0, false
	}
	if n, err := strconv.Atoi(text); err == nil {
		return n - 1, n >= 1 && n <= len(options)
	}
	found := -1
	for i, opt := range options {
		if len(text) <= len(opt) && strings.EqualFold(opt[:len(text)], text) {
			if found >= 0 {
				return 0, false
			}
			found = i
		}
	}
	return found, found >= 0
}

func (l *Line) readLine(ctx context.Context, op string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", &UIError{Op: op, Err: err}
	}
	text, err := l.in.ReadString('\n')
	if err != nil {
		if errors.Is(err, io.EOF) && text != "" {
			return text, nil
		}
		if errors.Is(err, io.EOF) {
			fmt.Fprintln(l.out)
			return "", &UIError{Op: op, Err: ErrInputClosed}
		}
		return "", &UIError{Op: op, Err: err}
	}
	return text, nil
}

// ParseSelection parses a 1-based selection over n items into sorted,
// de-duplicated 0-based indices.
func ParseSelection(text string, n int) ([]int, error) {
	text = strings.TrimSpace(text)
	if text == "" || strings.EqualFold(text, "none") {
		return []int{}, nil
	}
	if strings.EqualFold(text, "all") {
		out := make([]int, n)
		for i := range out {
			out[i] = i
		}
		return out, nil
	}

	seen := make(map[int]bool)
	for _, field := range strings.FieldsFunc(text, func(r rune) bool { return r == ',' || r == ' ' }) {
		lo, hi, isRange := strings.Cut(field, "-")
		a, err := strconv.Atoi(lo)
		if err != nil {
			return nil, fmt.Errorf("invalid selection %q", field)
		}
		b := a
		if isRange {
			if b, err = strconv.Atoi(hi); err != nil {
				return nil, fmt.Errorf("invalid selection %q", field)
			}
		}
		if a < 1 || b > n || a > b {
			return nil, fmt.Errorf("selection %q is outside 1-%d", field, n)
		}
		for i := a; i <= b; i++ {
			seen[i-1] = true
		}
	}
	out := make([]int, 0, len(seen))
	for i := range seen {
		out = append(out, i)
	}
	sort.Ints(out)
	return out, nil
}
