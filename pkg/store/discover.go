package store

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"
)

// ManifestFile marks the root of a project.
const ManifestFile = "go.mod"

// ErrNoManifest is returned by FindRoot when no ancestor holds a manifest.
var ErrNoManifest = errors.New("no " + ManifestFile + " found")

// FindRoot returns the nearest ancestor of dir (inclusive) containing go.mod.
func FindRoot(dir string) (string, error) {
	abs, err := filepath.Abs(dir)
	if err != nil {
		return "", &IOError{Op: "resolve", Path: dir, Err: err}
	}
	for d := abs; ; {
		if _, err := os.Stat(filepath.Join(d, ManifestFile)); err == nil {
			return d, nil
		}
		parent := filepath.Dir(d)
		if parent == d {
			return "", fmt.Errorf("%s: %w", abs, ErrNoManifest)
		}
		d = parent
	}
}

// Candidate is one recorded snapshot found by Discover.
type Candidate struct {
	Key          string
	ModulePath   string
	TestFunction string
	// Dir is the directory holding the test source, the parent of the
	// snapshot directory.
	Dir          string
	SnapshotPath string
}

var skipDirs = map[string]bool{
	".git":         true,
	"vendor":       true,
	"node_modules": true,
}

// Discover lists every snapshot under root in lexical path order, then
// document order within a file. ignore holds extra directory names to skip.
// A malformed file or key is a *ParseError.
func (s *Store) Discover(root string, ignore ...string) ([]Candidate, error) {
	skip := make(map[string]bool, len(skipDirs)+len(ignore))
	for k := range skipDirs {
		skip[k] = true
	}
	for _, name := range ignore {
		skip[name] = true
	}

	var out []Candidate
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return &IOError{Op: "walk", Path: path, Err: err}
		}
		if d.IsDir() {
			if path != root && skip[d.Name()] {
				return filepath.SkipDir
			}
			return nil
		}
		dir := filepath.Dir(path)
		if filepath.Base(dir) != s.dir || !strings.HasSuffix(d.Name(), s.ext) {
			return nil
		}

		f, err := Load(path)
		if err != nil {
			return err
		}
		for _, e := range f.Entries() {
			modulePath, testFunction, err := SplitKey(e.Key)
			if err != nil {
				var pe *ParseError
				if errors.As(err, &pe) {
					pe.Path, pe.Line = path, e.Line
				}
				return err
			}
			out = append(out, Candidate{
				Key:          e.Key,
				ModulePath:   modulePath,
				TestFunction: testFunction,
				Dir:          filepath.Dir(dir),
				SnapshotPath: path,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}
