// Command snap lists, checks and interactively updates recorded snapshots,
// and parses test-runner transcripts.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/acarl005/stripansi"
	"github.com/urfave/cli/v2"

	"github.com/dkoosis/snap/internal/config"
	"github.com/dkoosis/snap/internal/detect"
	"github.com/dkoosis/snap/internal/logging"
	"github.com/dkoosis/snap/internal/orchestrator"
	"github.com/dkoosis/snap/internal/prompt"
	"github.com/dkoosis/snap/internal/runner"
	"github.com/dkoosis/snap/internal/version"
	"github.com/dkoosis/snap/pkg/render"
	"github.com/dkoosis/snap/pkg/store"
	"github.com/dkoosis/snap/pkg/transcript"
)

// Exit codes. Parse errors use exitParse so callers can tell a malformed
// transcript from failing tests.
const (
	exitOK    = 0
	exitFail  = 1
	exitParse = 2
)

func main() {
	os.Exit(run(os.Args, os.Stdin, os.Stdout, os.Stderr))
}

// run executes the application logic and returns the exit code.
// This allows integration tests to invoke the logic without os.Exit() terminating the test runner.
func run(args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := newApp(stdin, stdout, stderr).RunContext(ctx, args)
	if err == nil {
		return exitOK
	}
	var ec cli.ExitCoder
	if errors.As(err, &ec) {
		if msg := err.Error(); msg != "" {
			fmt.Fprintln(stderr, msg)
		}
		return ec.ExitCode()
	}
	fmt.Fprintf(stderr, "snap: %v\n", err)
	return exitFail
}

func newApp(stdin io.Reader, stdout, stderr io.Writer) *cli.App {
	formatFlag := &cli.StringFlag{
		Name:  "format",
		Usage: "output format: table or json",
		Value: string(render.FormatTable),
	}
	return &cli.App{
		Name:            "snap",
		Usage:           "snapshot regression testing",
		Version:         version.String(),
		Reader:          stdin,
		Writer:          stdout,
		ErrWriter:       stderr,
		HideHelpCommand: true,
		// Exit codes are mapped in run.
		ExitErrHandler: func(*cli.Context, error) {},
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "root", Usage: "project root (default: nearest directory with go.mod)"},
			&cli.StringFlag{Name: "theme", Usage: "color theme: default, orca or mono"},
			&cli.BoolFlag{Name: "no-color", Usage: "disable colors"},
			&cli.BoolFlag{Name: "ci", Usage: "CI mode: no colors, no interactive prompts"},
			&cli.BoolFlag{Name: "verbose", Usage: "echo test command output to stderr"},
			&cli.StringFlag{Name: "log-level", Usage: "debug, info, warn or error"},
			&cli.StringFlag{Name: "log-format", Usage: "text or json"},
			&cli.BoolFlag{Name: "debug", Usage: "shorthand for --log-level=debug"},
		},
		Commands: []*cli.Command{
			{
				Name:  "update",
				Usage: "re-run stale snapshot tests and record selected updates",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "all", Aliases: []string{"a"}, Usage: "update every snapshot without checking or prompting"},
				},
				Action: updateCmd,
			},
			{
				Name:   "check",
				Usage:  "run every snapshot test and report stale ones",
				Action: checkCmd,
			},
			{
				Name:   "list",
				Usage:  "list recorded snapshots",
				Flags:  []cli.Flag{formatFlag},
				Action: listCmd,
			},
			{
				Name:      "parse",
				Usage:     "parse a test transcript",
				ArgsUsage: "[FILE|-]",
				Flags: []cli.Flag{
					formatFlag,
					&cli.BoolFlag{Name: "allow-trailer", Usage: "accept trailing lines after the last suite"},
				},
				Action: parseCmd,
			},
		},
	}
}

// session is the resolved state shared by the commands.
type session struct {
	root  string
	cfg   *config.Resolved
	log   *slog.Logger
	theme render.Theme
	store *store.Store
}

func newSession(c *cli.Context, needRoot bool) (*session, error) {
	root, err := resolveRoot(c.String("root"))
	if err != nil {
		if needRoot {
			return nil, err
		}
		root = ""
	}
	cfg, err := config.Resolve(root, flagsFrom(c))
	if err != nil {
		return nil, err
	}
	log, err := logging.New(c.App.ErrWriter, cfg.LogLevel, cfg.LogFormat)
	if err != nil {
		return nil, err
	}
	if cfg.Path != "" {
		log.Debug("loaded config", "path", cfg.Path, "theme", cfg.Theme, "theme_source", cfg.ThemeSource,
			"log_level_source", cfg.LogLevelSource, "ci", cfg.CI, "ci_source", cfg.CISource)
	}
	return &session{
		root:  root,
		cfg:   cfg,
		log:   log,
		theme: render.ThemeByName(cfg.Theme),
		store: store.New(
			store.WithDir(cfg.SnapshotDir),
			store.WithExt(cfg.SnapshotExt),
			store.WithLogger(log),
		),
	}, nil
}

func (s *session) runner(c *cli.Context) *runner.Exec {
	opts := []runner.Option{runner.WithCommand(s.cfg.Command), runner.WithLogger(s.log)}
	if s.cfg.Verbose {
		opts = append(opts, runner.WithVerbose(c.App.ErrWriter))
	}
	return runner.New(s.root, opts...)
}

func (s *session) machine(c *cli.Context, all bool) *orchestrator.Machine {
	return orchestrator.New(
		orchestrator.Config{Root: s.root, All: all, Ignore: s.cfg.Ignore},
		orchestrator.Deps{
			Store:    s.store,
			Runner:   s.runner(c),
			Selector: prompt.New(c.App.Reader, c.App.Writer, s.theme),
			Out:      c.App.Writer,
			Theme:    s.theme,
			Log:      s.log,
		},
	)
}

func flagsFrom(c *cli.Context) config.Flags {
	return config.Flags{
		Theme:      c.String("theme"),
		LogLevel:   c.String("log-level"),
		LogFormat:  c.String("log-format"),
		Debug:      c.Bool("debug"),
		NoColor:    c.Bool("no-color"),
		NoColorSet: c.IsSet("no-color"),
		CI:         c.Bool("ci"),
		CISet:      c.IsSet("ci"),
		Verbose:    c.Bool("verbose"),
		VerboseSet: c.IsSet("verbose"),
	}
}

func resolveRoot(flag string) (string, error) {
	if flag != "" {
		abs, err := filepath.Abs(flag)
		if err != nil {
			return "", fmt.Errorf("resolving --root: %w", err)
		}
		return abs, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return store.FindRoot(wd)
}

func fatal(err error) error {
	return cli.Exit(fmt.Sprintf("snap: %v", err), exitFail)
}

func updateCmd(c *cli.Context) error {
	s, err := newSession(c, true)
	if err != nil {
		return fatal(err)
	}
	all := c.Bool("all")
	if s.cfg.CI && !all {
		return fatal(errors.New("interactive update is disabled in CI mode; use --all"))
	}
	outcome, err := s.machine(c, all).Run(c.Context)
	if err != nil {
		return fatal(err)
	}
	s.log.Debug("update finished", "state", outcome.State,
		"updated", len(outcome.Updated), "skipped", len(outcome.Skipped))
	if code := outcome.ExitCode(); code != exitOK {
		return cli.Exit("", code)
	}
	return nil
}

// checkCmd drives the update machine through discovery and baseline only.
func checkCmd(c *cli.Context) error {
	s, err := newSession(c, true)
	if err != nil {
		return fatal(err)
	}
	m := s.machine(c, false)
	for m.State() == orchestrator.StateDiscover || m.State() == orchestrator.StateBaseline {
		if err := m.Step(c.Context); err != nil {
			return fatal(err)
		}
	}
	if stale := m.Outcome().Stale; len(stale) > 0 {
		return cli.Exit(s.theme.Error.Render(fmt.Sprintf("%d stale snapshots; run snap update", len(stale))), exitFail)
	}
	return nil
}

func listCmd(c *cli.Context) error {
	format, err := parseFormat(c.String("format"))
	if err != nil {
		return err
	}
	s, err := newSession(c, true)
	if err != nil {
		return fatal(err)
	}
	cands, err := s.store.Discover(s.root, s.cfg.Ignore...)
	if err != nil {
		return fatal(err)
	}
	if err := render.ForFormat(format, s.theme).Candidates(c.App.Writer, s.root, cands); err != nil {
		return fatal(err)
	}
	return nil
}

func parseCmd(c *cli.Context) error {
	format, err := parseFormat(c.String("format"))
	if err != nil {
		return err
	}
	s, err := newSession(c, false)
	if err != nil {
		return fatal(err)
	}

	name := c.Args().First()
	data, err := readInput(name, c.App.Reader)
	if err != nil {
		return fatal(err)
	}
	if name == "" {
		name = "-"
	}
	text := stripansi.Strip(string(data))
	if f := detect.Sniff([]byte(text)); f == detect.GoTestJSON {
		return cli.Exit(fmt.Sprintf("snap: %s: input is %s output, not a test transcript", name, f), exitParse)
	}
	var opts []transcript.Option
	if c.Bool("allow-trailer") {
		opts = append(opts, transcript.AllowTrailer())
	}
	suites, err := transcript.ParseString(text, opts...)
	if err != nil {
		return cli.Exit(fmt.Sprintf("snap: %s: %v", name, err), exitParse)
	}
	if err := render.ForFormat(format, s.theme).Suites(c.App.Writer, suites); err != nil {
		return fatal(err)
	}
	if !transcript.AllPassed(suites) {
		return cli.Exit("", exitFail)
	}
	return nil
}

func parseFormat(s string) (render.Format, error) {
	switch f := render.Format(s); f {
	case render.FormatTable, render.FormatJSON:
		return f, nil
	}
	return "", cli.Exit(fmt.Sprintf("snap: unknown format %q (must be table or json)", s), exitParse)
}

func readInput(name string, stdin io.Reader) ([]byte, error) {
	if name == "" || name == "-" {
		return io.ReadAll(stdin)
	}
	return os.ReadFile(name)
}
