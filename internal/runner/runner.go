// Package runner spawns the project's test command, scoped to one snapshot
// test or to the whole module, and captures its output.
package runner

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"regexp"
	"runtime"
	"strings"
	"time"

	"github.com/dkoosis/snap/internal/logging"
)

// EnvUpdate is set to 1 in the child when a run should record snapshots.
const EnvUpdate = "UPDATE_SNAPSHOTS"

const (
	placeholderRun = "{run}"
	placeholderPkg = "{pkg}"

	waitDelay = 2 * time.Second
)

// DefaultCommand runs one package's tests with JSON output.
var DefaultCommand = []string{"go", "test", "-count=1", "-json", "-run", placeholderRun, placeholderPkg}

// Scope narrows a run to one test. A nil *Scope runs everything.
type Scope struct {
	Dir          string // package directory, absolute
	ModulePath   string
	TestFunction string // may include subtest segments
}

// Env is the environment signal passed to the test process.
type Env struct {
	Update bool
}

// Result is a completed run. A non-zero ExitCode means tests failed; it is
// not an error.
type Result struct {
	ExitCode int
	Output   []byte
}

// Success reports a zero exit.
func (r Result) Success() bool { return r.ExitCode == 0 }

// SpawnError reports a test command that could not be started.
type SpawnError struct {
	Command string
	Err     error
}

func (e *SpawnError) Error() string {
	return fmt.Sprintf("starting %s: %v", e.Command, e.Err)
}

func (e *SpawnError) Unwrap() error { return e.Err }

// IsCommandNotFound reports whether err means the test binary is missing.
func IsCommandNotFound(err error) bool {
	if errors.Is(err, exec.ErrNotFound) {
		return true
	}
	msg := err.Error()
	if strings.Contains(msg, "executable file not found") {
		return true
	}
	return runtime.GOOS != "windows" && strings.Contains(msg, "no such file or directory")
}

// Exec runs an argv template in the project root.
type Exec struct {
	root    string
	command []string
	verbose io.Writer
	log     *slog.Logger
}

// Option configures Exec.
type Option func(*Exec)

// WithCommand replaces DefaultCommand.
func WithCommand(argv []string) Option {
	return func(e *Exec) {
		if len(argv) > 0 {
			e.command = argv
		}
	}
}

// WithVerbose copies the child's output to w as it runs.
func WithVerbose(w io.Writer) Option {
	return func(e *Exec) { e.verbose = w }
}

// WithLogger sets the logger for spawn events.
func WithLogger(l *slog.Logger) Option {
	return func(e *Exec) {
		if l != nil {
			e.log = l
		}
	}
}

// New returns an Exec rooted at root.
func New(root string, opts ...Option) *Exec {
	e := &Exec{
		root:    root,
		command: DefaultCommand,
		log:     logging.Discard(),
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Run executes the command for scope. Output is captured, and only echoed
// when verbose.
func (e *Exec) Run(ctx context.Context, scope *Scope, env Env) (Result, error) {
	argv := Expand(e.command, e.root, scope)
	line := strings.Join(argv, " ")

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Dir = e.root
	cmd.Env = append(os.Environ(), EnvUpdate+"="+boolEnv(env.Update))
	setProcessGroup(cmd)
	cmd.Cancel = func() error { return killProcessGroup(cmd) }
	cmd.WaitDelay = waitDelay

	var buf bytes.Buffer
	var out io.Writer = &buf
	if e.verbose != nil {
		out = io.MultiWriter(&buf, e.verbose)
	}
	cmd.Stdout = out
	cmd.Stderr = out

	e.log.Debug("running tests", "command", line, "update", env.Update)
	start := time.Now()
	err := cmd.Run()
	res := Result{Output: buf.Bytes()}

	if err == nil {
		e.log.Debug("tests finished", "exit_code", 0, "elapsed", time.Since(start))
		return res, nil
	}
	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitCode(exitErr)
		if ctxErr := ctx.Err(); ctxErr != nil {
			return res, fmt.Errorf("running %s: %w", line, ctxErr)
		}
		e.log.Debug("tests finished", "exit_code", res.ExitCode, "elapsed", time.Since(start))
		return res, nil
	}
	res.ExitCode = 1
	if IsCommandNotFound(err) {
		res.ExitCode = 127
	}
	return res, &SpawnError{Command: line, Err: err}
}

func boolEnv(b bool) string {
	if b {
		return "1"
	}
	return "0"
}

// Expand substitutes {run} and {pkg} in argv for scope.
func Expand(argv []string, root string, scope *Scope) []string {
	run, pkg := ".", "./..."
	if scope != nil {
		run = RunPattern(scope.TestFunction)
		pkg = PackageArg(root, scope.Dir)
	}
	out := make([]string, len(argv))
	for i, arg := range argv {
		arg = strings.ReplaceAll(arg, placeholderRun, run)
		out[i] = strings.ReplaceAll(arg, placeholderPkg, pkg)
	}
	return out
}

// RunPattern builds a -run pattern matching exactly one test, with each
// subtest segment anchored and quoted.
func RunPattern(testFunction string) string {
	segs := strings.Split(testFunction, "/")
	for i, s := range segs {
		segs[i] = "^" + regexp.QuoteMeta(s) + "$"
	}
	return strings.Join(segs, "/")
}

// PackageArg returns dir as a ./-relative package path under root.
func PackageArg(root, dir string) string {
	rel, err := filepath.Rel(root, dir)
	if err != nil || rel == "." {
		return "."
	}
	return "./" + filepath.ToSlash(rel)
}
