// Package orchestrator drives an interactive snapshot update run as a finite
// state machine:
//
//	Discover → Baseline → AllCurrent
//	                    → SelectUpdates → Updating → Done | Aborted
//
// Each Step performs one transition, so the machine can be driven and
// inspected without real processes or a terminal.
package orchestrator

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/google/uuid"

	"github.com/dkoosis/snap/internal/logging"
	"github.com/dkoosis/snap/internal/prompt"
	"github.com/dkoosis/snap/internal/runner"
	"github.com/dkoosis/snap/pkg/render"
	"github.com/dkoosis/snap/pkg/store"
)

// State is a node of the update state machine.
type State int

const (
	StateDiscover State = iota
	StateBaseline
	StateAllCurrent
	StateSelectUpdates
	StateUpdating
	StateDone
	StateAborted
)

var stateNames = [...]string{
	StateDiscover:      "discover",
	StateBaseline:      "baseline",
	StateAllCurrent:    "all_current",
	StateSelectUpdates: "select_updates",
	StateUpdating:      "updating",
	StateDone:          "done",
	StateAborted:       "aborted",
}

func (s State) String() string {
	if int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Terminal reports whether no further transitions exist.
func (s State) Terminal() bool {
	return s == StateAllCurrent || s == StateDone || s == StateAborted
}

// Choices offered when an update attempt fails, in prompt order.
const (
	ChoiceRetry = iota
	ChoiceSkip
	ChoiceAbort
)

var failureOptions = []string{"Retry", "Skip", "Abort"}

// Runner runs the test command for one scope.
type Runner interface {
	Run(ctx context.Context, scope *runner.Scope, env runner.Env) (runner.Result, error)
}

// Discoverer enumerates recorded snapshots under a root.
type Discoverer interface {
	Discover(root string, ignore ...string) ([]store.Candidate, error)
}

// Config is fixed for one run.
type Config struct {
	Root string
	// All skips baseline and selection and updates every snapshot.
	All bool
	// Ignore lists extra directory names Discover skips.
	Ignore []string
}

// Deps are the collaborators of a run.
type Deps struct {
	Store    Discoverer
	Runner   Runner
	Selector prompt.Selector
	Out      io.Writer
	Theme    render.Theme
	Log      *slog.Logger
}

// Outcome summarizes a finished run.
type Outcome struct {
	State   State
	Checked int
	Stale   []store.Candidate
	Updated []store.Candidate
	Skipped []store.Candidate
}

// ExitCode is 1 for an aborted run and 0 otherwise.
func (o Outcome) ExitCode() int {
	if o.State == StateAborted {
		return 1
	}
	return 0
}

// Machine is one update run. It is not safe for concurrent use.
type Machine struct {
	cfg  Config
	deps Deps
	log  *slog.Logger

	state      State
	candidates []store.Candidate
	worklist   []store.Candidate
	next       int
	attempt    int
	outcome    Outcome
}

// New returns a machine in StateDiscover.
func New(cfg Config, deps Deps) *Machine {
	if deps.Out == nil {
		deps.Out = io.Discard
	}
	if deps.Theme.Name == "" {
		deps.Theme = render.MonoTheme()
	}
	log := deps.Log
	if log == nil {
		log = logging.Discard()
	}
	return &Machine{
		cfg:  cfg,
		deps: deps,
		log:  log.With("run_id", uuid.New().String()),
	}
}

// State returns the current state.
func (m *Machine) State() State { return m.state }

// Outcome returns the results gathered so far.
func (m *Machine) Outcome() Outcome {
	o := m.outcome
	o.State = m.state
	return o
}

// Run steps the machine until it reaches a terminal state. Any error is
// fatal for the run and leaves the machine in the state where it occurred.
func (m *Machine) Run(ctx context.Context) (Outcome, error) {
	for !m.state.Terminal() {
		if err := m.Step(ctx); err != nil {
			return m.Outcome(), err
		}
	}
	return m.Outcome(), nil
}

// Step performs one transition. In StateUpdating one transition is one
// update attempt for the current worklist item.
func (m *Machine) Step(ctx context.Context) error {
	if m.state.Terminal() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	m.log.Debug("step", "state", m.state)

	switch m.state {
	case StateDiscover:
		return m.discover()
	case StateBaseline:
		return m.baseline(ctx)
	case StateSelectUpdates:
		return m.selectUpdates(ctx)
	case StateUpdating:
		return m.update(ctx)
	}
	return fmt.Errorf("orchestrator: no transition from %s", m.state)
}

func (m *Machine) discover() error {
	cands, err := m.deps.Store.Discover(m.cfg.Root, m.cfg.Ignore...)
	if err != nil {
		return fmt.Errorf("discovering snapshots: %w", err)
	}
	m.candidates = cands
	m.log.Debug("discovered snapshots", "count", len(cands), "root", m.cfg.Root)

	if m.cfg.All {
		m.printf("%s updating all %d snapshots\n", m.deps.Theme.Primary.Render(m.deps.Theme.Icons.Update), len(cands))
		m.startUpdating(cands)
		return nil
	}
	m.transition(StateBaseline)
	return nil
}

func (m *Machine) baseline(ctx context.Context) error {
	th := m.deps.Theme
	var stale []store.Candidate
	for _, c := range m.candidates {
		res, err := m.deps.Runner.Run(ctx, scopeOf(c), runner.Env{})
		if err != nil {
			return fmt.Errorf("checking %s: %w", c.Key, err)
		}
		m.outcome.Checked++
		if res.Success() {
			m.printf("%s %s\n", th.Success.Render(th.Icons.Pass), c.Key)
			continue
		}
		m.log.Debug("stale snapshot", "key", c.Key, "exit_code", res.ExitCode)
		m.printf("%s %s\n", th.Error.Render(th.Icons.Fail), c.Key)
		stale = append(stale, c)
	}
	m.outcome.Stale = stale

	if len(stale) == 0 {
		m.printf("%s\n", th.Success.Render(fmt.Sprintf("all %d snapshots are current", len(m.candidates))))
		m.transition(StateAllCurrent)
		return nil
	}
	m.transition(StateSelectUpdates)
	return nil
}

func (m *Machine) selectUpdates(ctx context.Context) error {
	stale := m.outcome.Stale
	items := make([]string, len(stale))
	for i, c := range stale {
		items[i] = c.Key
	}
	title := fmt.Sprintf("%d of %d snapshots are stale. Select the ones to update:", len(stale), len(m.candidates))
	idx, err := m.deps.Selector.MultiSelect(ctx, title, items)
	if err != nil {
		return fmt.Errorf("selecting updates: %w", err)
	}

	chosen := make([]store.Candidate, 0, len(idx))
	for _, i := range idx {
		if i < 0 || i >= len(stale) {
			return &prompt.UIError{Op: "select", Err: fmt.Errorf("index %d out of range", i)}
		}
		chosen = append(chosen, stale[i])
	}
	if len(chosen) == 0 {
		m.printf("%s\n", m.deps.Theme.Muted.Render("nothing selected"))
	}
	m.startUpdating(chosen)
	return nil
}

func (m *Machine) startUpdating(worklist []store.Candidate) {
	m.worklist = worklist
	m.next, m.attempt = 0, 0
	if len(worklist) == 0 {
		m.finish()
		return
	}
	m.transition(StateUpdating)
}

func (m *Machine) update(ctx context.Context) error {
	th := m.deps.Theme
	c := m.worklist[m.next]
	m.attempt++
	m.log.Debug("updating snapshot", "key", c.Key, "attempt", m.attempt)

	res, err := m.deps.Runner.Run(ctx, scopeOf(c), runner.Env{Update: true})
	if err != nil {
		return fmt.Errorf("updating %s: %w", c.Key, err)
	}
	if res.Success() {
		m.printf("%s %s\n", th.Success.Render(th.Icons.Update), c.Key)
		m.outcome.Updated = append(m.outcome.Updated, c)
		m.advance()
		return nil
	}

	m.printf("%s %s\n", th.Error.Render(th.Icons.Fail), c.Key)
	choice, err := m.deps.Selector.Choose(ctx, failureTitle(c, res), failureOptions)
	if err != nil {
		return fmt.Errorf("choosing action for %s: %w", c.Key, err)
	}
	switch choice {
	case ChoiceRetry:
		m.log.Info("retrying update", "key", c.Key, "attempt", m.attempt)
	case ChoiceSkip:
		m.printf("%s %s\n", th.Warning.Render(th.Icons.Skip), c.Key)
		m.outcome.Skipped = append(m.outcome.Skipped, c)
		m.advance()
	case ChoiceAbort:
		m.log.Warn("update aborted", "key", c.Key, "remaining", len(m.worklist)-m.next)
		m.printf("%s\n", th.Error.Render("aborted"))
		m.transition(StateAborted)
	default:
		return &prompt.UIError{Op: "choose", Err: fmt.Errorf("option %d out of range", choice)}
	}
	return nil
}

func (m *Machine) advance() {
	m.next++
	m.attempt = 0
	if m.next >= len(m.worklist) {
		m.finish()
	}
}

func (m *Machine) finish() {
	th := m.deps.Theme
	m.printf("%s\n", th.Bold.Render(fmt.Sprintf("done: %d updated, %d skipped",
		len(m.outcome.Updated), len(m.outcome.Skipped))))
	m.transition(StateDone)
}

func (m *Machine) transition(to State) {
	m.log.Debug("transition", "from", m.state, "state", to)
	m.state = to
}

func (m *Machine) printf(format string, args ...any) {
	fmt.Fprintf(m.deps.Out, format, args...)
}

func scopeOf(c store.Candidate) *runner.Scope {
	return &runner.Scope{Dir: c.Dir, ModulePath: c.ModulePath, TestFunction: c.TestFunction}
}

func failureTitle(c store.Candidate, res runner.Result) string {
	title := fmt.Sprintf("Updating %s failed (exit %d).", c.Key, res.ExitCode)
	if why := runner.Explain(res); why != "" {
		title += "\n" + why
	}
	return title
}

