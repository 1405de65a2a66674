package render

import (
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/dkoosis/snap/pkg/store"
	"github.com/dkoosis/snap/pkg/transcript"
)

var titler = cases.Title(language.English)

const messageWidth = 60

// Terminal renders themed tables.
type Terminal struct {
	theme Theme
}

// NewTerminal creates a terminal renderer with the given theme.
func NewTerminal(theme Theme) *Terminal {
	return &Terminal{theme: theme}
}

// Caption returns the display label for a state, e.g. "Pass".
func Caption(s transcript.State) string {
	return titler.String(string(s))
}

func (t *Terminal) stateStyle(s transcript.State) (string, lipgloss.Style) {
	if s == transcript.StatePass {
		return t.theme.Icons.Pass, t.theme.Success
	}
	return t.theme.Icons.Fail, t.theme.Error
}

// Suites writes one row per suite followed by its tests, then a totals line.
func (t *Terminal) Suites(w io.Writer, suites []transcript.Suite) error {
	tw := table.NewWriter()
	tw.SetStyle(t.theme.Table)
	tw.AppendHeader(table.Row{"Suite", "Test", "Status", "Passed", "Failed", "Ignored", "Message"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "Suite", AutoMerge: true},
		{Name: "Passed", Align: text.AlignRight},
		{Name: "Failed", Align: text.AlignRight},
		{Name: "Ignored", Align: text.AlignRight},
		{Name: "Message", WidthMax: messageWidth, WidthMaxEnforcer: text.WrapSoft},
	})

	var passed, failed, ignored int
	for _, s := range suites {
		passed += s.Passed
		failed += s.Failed
		ignored += s.Ignored
		tw.AppendRow(table.Row{s.Name, "", t.status(s.State), s.Passed, s.Failed, s.Ignored, ""})
		for i, test := range s.Tests {
			prefix := "├─"
			if i == len(s.Tests)-1 {
				prefix = "└─"
			}
			tw.AppendRow(table.Row{s.Name, prefix + " " + test.Name, t.status(test.Status), "", "", "", test.Message()})
		}
		tw.AppendSeparator()
	}

	if _, err := fmt.Fprintln(w, tw.Render()); err != nil {
		return err
	}
	summary := fmt.Sprintf("%d suites: %d passed, %d failed, %d ignored", len(suites), passed, failed, ignored)
	style := t.theme.Success
	if failed > 0 || !transcript.AllPassed(suites) {
		style = t.theme.Error
	}
	_, err := fmt.Fprintln(w, style.Render(summary))
	return err
}

func (t *Terminal) status(s transcript.State) string {
	icon, style := t.stateStyle(s)
	return style.Render(icon + " " + Caption(s))
}

// Candidates lists discovered snapshots with paths relative to root.
func (t *Terminal) Candidates(w io.Writer, root string, cands []store.Candidate) error {
	if len(cands) == 0 {
		_, err := fmt.Fprintln(w, t.theme.Muted.Render("no snapshots found under "+root))
		return err
	}
	tw := table.NewWriter()
	tw.SetStyle(t.theme.Table)
	tw.AppendHeader(table.Row{"#", "Package", "Test", "Snapshot"})
	tw.SetColumnConfigs([]table.ColumnConfig{
		{Name: "#", Align: text.AlignRight},
		{Name: "Package", AutoMerge: true},
	})
	for i, c := range cands {
		tw.AppendRow(table.Row{i + 1, c.ModulePath, c.TestFunction, relPath(root, c.SnapshotPath)})
	}
	if _, err := fmt.Fprintln(w, tw.Render()); err != nil {
		return err
	}
	_, err := fmt.Fprintln(w, t.theme.Muted.Render(fmt.Sprintf("%d snapshots", len(cands))))
	return err
}

func relPath(root, path string) string {
	rel, err := filepath.Rel(root, path)
	if err != nil || strings.HasPrefix(rel, "..") {
		return filepath.ToSlash(path)
	}
	return filepath.ToSlash(rel)
}
