package store

import (
	"fmt"
	"path/filepath"
	"strings"
)

// KeySeparator joins a module path and a test function into a snapshot key.
const KeySeparator = "::"

// Metadata identifies the test that produced a recorded value.
type Metadata struct {
	ModulePath   string
	TestFunction string
	// SourceFile is the file declaring the test, absolute or relative to
	// the manifest root.
	SourceFile string
}

// Key returns "<module_path>::<test_function>".
func (m Metadata) Key() string {
	return m.ModulePath + KeySeparator + m.TestFunction
}

// SplitKey splits a key on its first separator.
func SplitKey(key string) (modulePath, testFunction string, err error) {
	modulePath, testFunction, ok := strings.Cut(key, KeySeparator)
	if !ok {
		return "", "", &ParseError{Msg: fmt.Sprintf("key %q has no %q separator", key, KeySeparator)}
	}
	if modulePath == "" || testFunction == "" {
		return "", "", &ParseError{Msg: fmt.Sprintf("key %q has an empty module path or test function", key)}
	}
	return modulePath, testFunction, nil
}

// Location is where a test's snapshot lives.
type Location struct {
	Dir  string   // snapshot directory
	Path string   // snapshot file
	File []string // source location recorded in the entry
}

// Locate derives the snapshot location for md under the manifest root:
// <source dir>/<snapshot dir>/<source basename><ext>.
func (s *Store) Locate(md Metadata, root string) (Location, error) {
	if md.SourceFile == "" {
		return Location{}, &IOError{Op: "resolve", Path: md.Key(), Err: fmt.Errorf("no source file")}
	}
	src := md.SourceFile
	if !filepath.IsAbs(src) {
		src = filepath.Join(root, src)
	}
	src = filepath.Clean(src)

	rel, err := filepath.Rel(root, src)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return Location{}, &IOError{Op: "resolve", Path: src, Err: fmt.Errorf("source file is outside manifest root %s", root)}
	}

	name := filepath.Base(src) + s.ext
	dir := filepath.Join(filepath.Dir(src), s.dir)
	parts := strings.Split(filepath.ToSlash(rel), "/")
	parts[len(parts)-1] += s.ext

	return Location{
		Dir:  dir,
		Path: filepath.Join(dir, name),
		File: parts,
	}, nil
}
