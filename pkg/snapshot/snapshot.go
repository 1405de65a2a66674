// Package snapshot is the test-side entry point: Match records or checks a
// value against the snapshot stored beside the calling test file.
//
//	func TestRender(t *testing.T) {
//		snapshot.Match(t, render(input))
//	}
//
// Tests run in check mode unless UPDATE_SNAPSHOTS is 1, true or yes.
package snapshot

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/dkoosis/snap/pkg/store"
)

// EnvUpdate switches Match into update mode.
const EnvUpdate = "UPDATE_SNAPSHOTS"

// Mode selects whether Match checks or records.
type Mode int

const (
	ModeCheck Mode = iota
	ModeUpdate
)

func (m Mode) String() string {
	if m == ModeUpdate {
		return "update"
	}
	return "check"
}

// ModeFromEnv reads EnvUpdate.
func ModeFromEnv() Mode {
	return ParseMode(os.Getenv(EnvUpdate))
}

// ParseMode maps an EnvUpdate value to a Mode.
func ParseMode(v string) Mode {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "1", "true", "yes":
		return ModeUpdate
	}
	return ModeCheck
}

type options struct {
	store   *store.Store
	mode    Mode
	modeSet bool
	root    string
}

// Option configures Match and Registry.
type Option func(*options)

// WithStore uses s instead of a default store.
func WithStore(s *store.Store) Option {
	return func(o *options) { o.store = s }
}

// WithMode overrides the mode read from the environment.
func WithMode(m Mode) Option {
	return func(o *options) { o.mode, o.modeSet = m, true }
}

// WithRoot sets the manifest root instead of searching for go.mod.
func WithRoot(root string) Option {
	return func(o *options) { o.root = root }
}

func buildOptions(opts []Option) options {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.store == nil {
		o.store = store.New()
	}
	if !o.modeSet {
		o.mode = ModeFromEnv()
	}
	return o
}

// Match checks value against the snapshot for the calling test, or records
// it in update mode. Any failure is fatal to t.
func Match(t testing.TB, value any, opts ...Option) {
	t.Helper()
	pc, file, _, ok := runtime.Caller(1)
	if !ok {
		t.Fatalf("snapshot: cannot determine caller")
		return
	}
	c := caller{pkg: packagePath(runtime.FuncForPC(pc).Name()), file: file}
	match(t, c, value, buildOptions(opts))
}

type caller struct {
	pkg  string
	file string
}

func match(t testing.TB, c caller, value any, o options) {
	t.Helper()
	file, err := sourceFile(c.file)
	if err != nil {
		t.Fatalf("snapshot: %v", err)
		return
	}
	root := o.root
	if root == "" {
		root, err = store.FindRoot(filepath.Dir(file))
		if err != nil {
			t.Fatalf("snapshot: %v", err)
			return
		}
	}
	md := store.Metadata{
		ModulePath:   c.pkg,
		TestFunction: t.Name(),
		SourceFile:   file,
	}

	if o.mode == ModeUpdate {
		if err := o.store.Update(context.Background(), md, value, root); err != nil {
			t.Fatalf("snapshot: updating %s: %v", md.Key(), err)
		}
		return
	}
	if err := o.store.Check(md, value, root); err != nil {
		t.Fatalf("snapshot: %s", describe(err))
	}
}

// sourceFile makes a caller path absolute. Test binaries built with
// -trimpath report module-relative paths; go test runs them in the package
// directory, which holds the test file.
func sourceFile(file string) (string, error) {
	if filepath.IsAbs(file) {
		return file, nil
	}
	wd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	abs := filepath.Join(wd, path.Base(filepath.ToSlash(file)))
	if _, err := os.Stat(abs); err != nil {
		return "", fmt.Errorf("cannot locate %s in %s (built with -trimpath?): %w", file, wd, err)
	}
	return abs, nil
}

func describe(err error) string {
	var mm *store.MismatchError
	if errors.As(err, &mm) && !mm.Corrupt() {
		return fmt.Sprintf("%v\n--- recorded\n%s--- actual\n%s", err, toYAML(mm.Expected), toYAML(mm.Actual))
	}
	var le *store.LookupError
	if errors.As(err, &le) || errors.Is(err, fs.ErrNotExist) {
		return fmt.Sprintf("%v\nrecord it with %s=1 or `snap update`", err, EnvUpdate)
	}
	return err.Error()
}

func toYAML(v any) string {
	out, err := yaml.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%#v\n", v)
	}
	return string(out)
}

// packagePath extracts the import path from a function symbol such as
// "example.com/m/pkg/calc.TestAdd.func1".
func packagePath(symbol string) string {
	slash := strings.LastIndex(symbol, "/")
	dot := strings.Index(symbol[slash+1:], ".")
	if dot < 0 {
		return symbol
	}
	return strings.TrimSuffix(symbol[:slash+1+dot], "_test")
}
