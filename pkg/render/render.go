// Package render formats parsed transcripts and snapshot listings for the
// terminal (go-pretty tables styled by a Theme) or as JSON.
package render

import (
	"io"

	"github.com/dkoosis/snap/pkg/store"
	"github.com/dkoosis/snap/pkg/transcript"
)

// Renderer writes suites and snapshot listings.
type Renderer interface {
	Suites(w io.Writer, suites []transcript.Suite) error
	Candidates(w io.Writer, root string, cands []store.Candidate) error
}

// Format names an output format.
type Format string

const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
)

// ForFormat returns the renderer for f; unknown formats fall back to table.
func ForFormat(f Format, theme Theme) Renderer {
	if f == FormatJSON {
		return NewJSON()
	}
	return NewTerminal(theme)
}
