package prompt

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/mattn/go-runewidth"

	"github.com/dkoosis/snap/pkg/render"
)

// TUI runs a bubbletea program per prompt.
type TUI struct {
	in    io.Reader
	out   io.Writer
	theme render.Theme
}

// NewTUI returns an interactive selector reading keys from in.
func NewTUI(in io.Reader, out io.Writer, theme render.Theme) *TUI {
	return &TUI{in: in, out: out, theme: theme}
}

// MultiSelect shows a checkbox list. Enter confirms, esc cancels.
func (t *TUI) MultiSelect(ctx context.Context, title string, items []string) ([]int, error) {
	m := newListModel(title, items, true, t.theme, termWidth(t.out))
	final, err := t.run(ctx, "select", m)
	if err != nil {
		return nil, err
	}
	return final.selection(), nil
}

// Choose shows a single-choice list. Enter picks the highlighted option.
func (t *TUI) Choose(ctx context.Context, title string, options []string) (int, error) {
	m := newListModel(title, options, false, t.theme, termWidth(t.out))
	final, err := t.run(ctx, "choose", m)
	if err != nil {
		return 0, err
	}
	return final.cursor, nil
}

func (t *TUI) run(ctx context.Context, op string, m listModel) (listModel, error) {
	program := tea.NewProgram(m,
		tea.WithContext(ctx),
		tea.WithInput(t.in),
		tea.WithOutput(t.out),
	)
	res, err := program.Run()
	if err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return listModel{}, &UIError{Op: op, Err: ctxErr}
		}
		return listModel{}, &UIError{Op: op, Err: err}
	}
	final, ok := res.(listModel)
	if !ok {
		return listModel{}, &UIError{Op: op, Err: fmt.Errorf("unexpected model %T", res)}
	}
	if final.cancelled {
		return listModel{}, &UIError{Op: op, Err: ErrCancelled}
	}
	return final, nil
}

type keyMap struct {
	Up     key.Binding
	Down   key.Binding
	Toggle key.Binding
	All    key.Binding
	Enter  key.Binding
	Cancel key.Binding
	multi  bool
}

func newKeyMap(multi bool) keyMap {
	return keyMap{
		Up:     key.NewBinding(key.WithKeys("up", "k"), key.WithHelp("↑/k", "up")),
		Down:   key.NewBinding(key.WithKeys("down", "j"), key.WithHelp("↓/j", "down")),
		Toggle: key.NewBinding(key.WithKeys(" ", "space", "x"), key.WithHelp("space", "toggle")),
		All:    key.NewBinding(key.WithKeys("a"), key.WithHelp("a", "all/none")),
		Enter:  key.NewBinding(key.WithKeys("enter"), key.WithHelp("enter", "confirm")),
		Cancel: key.NewBinding(key.WithKeys("esc", "ctrl+c", "q"), key.WithHelp("esc", "cancel")),
		multi:  multi,
	}
}

func (k keyMap) ShortHelp() []key.Binding {
	if k.multi {
		return []key.Binding{k.Up, k.Down, k.Toggle, k.All, k.Enter, k.Cancel}
	}
	return []key.Binding{k.Up, k.Down, k.Enter, k.Cancel}
}

func (k keyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{k.ShortHelp()}
}

type listModel struct {
	title     string
	items     []string
	multi     bool
	checked   []bool
	cursor    int
	width     int
	keys      keyMap
	help      help.Model
	theme     render.Theme
	done      bool
	cancelled bool
}

func newListModel(title string, items []string, multi bool, theme render.Theme, width int) listModel {
	keys := newKeyMap(multi)
	keys.Toggle.SetEnabled(multi)
	keys.All.SetEnabled(multi)
	return listModel{
		title:   title,
		items:   items,
		multi:   multi,
		checked: make([]bool, len(items)),
		width:   width,
		keys:    keys,
		help:    help.New(),
		theme:   theme,
	}
}

func (m listModel) Init() tea.Cmd { return nil }

func (m listModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.help.Width = msg.Width
	case tea.KeyMsg:
		switch {
		case key.Matches(msg, m.keys.Cancel):
			m.cancelled = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Enter):
			if !m.multi && len(m.items) == 0 {
				return m, nil
			}
			m.done = true
			return m, tea.Quit
		case key.Matches(msg, m.keys.Up):
			if m.cursor > 0 {
				m.cursor--
			}
		case key.Matches(msg, m.keys.Down):
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case key.Matches(msg, m.keys.Toggle):
			if len(m.items) > 0 {
				m.checked[m.cursor] = !m.checked[m.cursor]
			}
		case key.Matches(msg, m.keys.All):
			all := true
			for _, c := range m.checked {
				all = all && c
			}
			for i := range m.checked {
				m.checked[i] = !all
			}
		}
	}
	return m, nil
}

func (m listModel) selection() []int {
	out := []int{}
	for i, c := range m.checked {
		if c {
			out = append(out, i)
		}
	}
	return out
}

func (m listModel) View() string {
	if m.done || m.cancelled {
		return ""
	}
	var sb strings.Builder
	sb.WriteString(m.theme.Bold.Render(m.title))
	sb.WriteString("\n\n")

	icons := m.theme.Icons
	for i, item := range m.items {
		pointer := "  "
		if i == m.cursor {
			pointer = m.theme.Primary.Render("> ")
		}
		box := ""
		if m.multi {
			box = "[ ] "
			if m.checked[i] {
				box = m.theme.Success.Render("[" + icons.Pass + "] ")
			}
		}
		avail := m.width - 2 - runewidth.StringWidth("[x] ")
		if avail < 10 {
			avail = 10
		}
		label := runewidth.Truncate(item, avail, "…")
		if i == m.cursor {
			label = m.theme.Primary.Render(label)
		}
		sb.WriteString(pointer + box + label + "\n")
	}
	if len(m.items) == 0 {
		sb.WriteString(m.theme.Muted.Render("  (nothing to choose)") + "\n")
	}
	sb.WriteString("\n")
	sb.WriteString(m.help.View(m.keys))
	sb.WriteString("\n")
	return sb.String()
}
