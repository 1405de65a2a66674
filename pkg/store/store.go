// Package store persists recorded snapshot values in per-source YAML files
// and checks fresh values against them.
package store

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"slices"
	"time"

	"github.com/gofrs/flock"
	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
)

const (
	DefaultDir = "__snapshots__"
	DefaultExt = ".snap"

	defaultLockRetry = 50 * time.Millisecond
)

// Store reads and writes snapshot files. The zero value is not usable; call New.
type Store struct {
	dir       string
	ext       string
	lockRetry time.Duration
	log       *slog.Logger
}

// Option configures a Store.
type Option func(*Store)

// WithDir sets the snapshot subdirectory name.
func WithDir(name string) Option {
	return func(s *Store) {
		if name != "" {
			s.dir = name
		}
	}
}

// WithExt sets the snapshot file extension, including the dot.
func WithExt(ext string) Option {
	return func(s *Store) {
		if ext != "" {
			s.ext = ext
		}
	}
}

// WithLockRetry sets how often a contended lock is retried.
func WithLockRetry(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.lockRetry = d
		}
	}
}

// WithLogger sets the logger used for lock and write events.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.log = l
		}
	}
}

// New returns a Store using __snapshots__/*.snap unless overridden.
func New(opts ...Option) *Store {
	s := &Store{
		dir:       DefaultDir,
		ext:       DefaultExt,
		lockRetry: defaultLockRetry,
		log:       slog.New(slog.DiscardHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Dir returns the snapshot subdirectory name.
func (s *Store) Dir() string { return s.dir }

// Ext returns the snapshot file extension.
func (s *Store) Ext() string { return s.ext }

// Load reads and decodes the snapshot file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &IOError{Op: "read", Path: path, Err: err}
	}
	return Decode(data, path)
}

// Check compares value against the snapshot recorded for md. It never
// writes. A missing file is an *IOError wrapping fs.ErrNotExist, a missing
// key a *LookupError, a malformed file a *ParseError, and any difference in
// metadata or value a *MismatchError.
func (s *Store) Check(md Metadata, value any, root string) error {
	loc, err := s.Locate(md, root)
	if err != nil {
		return err
	}
	f, err := Load(loc.Path)
	if err != nil {
		return err
	}
	key := md.Key()
	e, ok := f.Get(key)
	if !ok {
		return &LookupError{Key: key, Path: loc.Path}
	}

	switch {
	case e.ModulePath != md.ModulePath:
		return &MismatchError{Key: key, Path: loc.Path, Field: FieldModulePath, Expected: e.ModulePath, Actual: md.ModulePath}
	case e.TestFunction != md.TestFunction:
		return &MismatchError{Key: key, Path: loc.Path, Field: FieldTestFunction, Expected: e.TestFunction, Actual: md.TestFunction}
	case !slices.Equal(e.File, loc.File):
		return &MismatchError{Key: key, Path: loc.Path, Field: FieldFile, Expected: e.File, Actual: loc.File}
	}

	stored, err := decodeValue(e.Value)
	if err != nil {
		return &ParseError{Path: loc.Path, Line: e.Line, Msg: fmt.Sprintf("snapshot %q value", key), Err: err}
	}
	fresh, err := canonical(value)
	if err != nil {
		return fmt.Errorf("encoding value for %s: %w", key, err)
	}
	if !cmp.Equal(stored, fresh, cmpopts.EquateNaNs()) {
		return &MismatchError{Key: key, Path: loc.Path, Field: FieldValue, Expected: stored, Actual: fresh}
	}
	return nil
}

// Update records value for md, creating the snapshot directory and file as
// needed. The read-modify-write runs under an exclusive lock on the file and
// rewrites it in full; other entries keep their order and content.
func (s *Store) Update(ctx context.Context, md Metadata, value any, root string) (err error) {
	loc, err := s.Locate(md, root)
	if err != nil {
		return err
	}
	node, err := EncodeValue(value)
	if err != nil {
		return &IOError{Op: "encode", Path: loc.Path, Err: err}
	}

	if err := os.MkdirAll(loc.Dir, 0o755); err != nil {
		return &IOError{Op: "mkdir", Path: loc.Dir, Err: err}
	}
	fh, created, err := openSnapshot(loc.Path)
	if err != nil {
		return &IOError{Op: "open", Path: loc.Path, Err: err}
	}
	written := false
	defer func() {
		// A file this call created must not outlive a failed update.
		if err != nil && created && !written {
			s.discardEmpty(loc.Path)
		}
	}()
	defer func() {
		if cerr := fh.Close(); cerr != nil && err == nil {
			err = &IOError{Op: "close", Path: loc.Path, Err: cerr}
		}
	}()

	lock := flock.New(loc.Path)
	locked, err := lock.TryLockContext(ctx, s.lockRetry)
	if err != nil {
		return &IOError{Op: "lock", Path: loc.Path, Err: err}
	}
	if !locked {
		return &IOError{Op: "lock", Path: loc.Path, Err: errors.New("lock not acquired")}
	}
	defer func() {
		if uerr := lock.Unlock(); uerr != nil {
			s.log.Warn("releasing snapshot lock", "path", loc.Path, "error", uerr)
		}
	}()
	s.log.Debug("snapshot lock acquired", "path", loc.Path)

	data, err := io.ReadAll(fh)
	if err != nil {
		return &IOError{Op: "read", Path: loc.Path, Err: err}
	}
	f, err := Decode(data, loc.Path)
	if err != nil {
		return err
	}
	f.Put(&Entry{
		Key:          md.Key(),
		File:         loc.File,
		ModulePath:   md.ModulePath,
		TestFunction: md.TestFunction,
		Value:        node,
	})
	out, err := f.Encode()
	if err != nil {
		return &IOError{Op: "encode", Path: loc.Path, Err: err}
	}

	if _, err := fh.Seek(0, io.SeekStart); err != nil {
		return &IOError{Op: "seek", Path: loc.Path, Err: err}
	}
	written = true
	if _, err := fh.Write(out); err != nil {
		return &IOError{Op: "write", Path: loc.Path, Err: err}
	}
	if err := fh.Truncate(int64(len(out))); err != nil {
		return &IOError{Op: "truncate", Path: loc.Path, Err: err}
	}
	if err := fh.Sync(); err != nil {
		return &IOError{Op: "sync", Path: loc.Path, Err: err}
	}
	s.log.Debug("snapshot written", "key", md.Key(), "path", loc.Path, "entries", f.Len())
	return nil
}

// openSnapshot opens path for read-write, creating it if needed. created
// reports whether this call made the file.
func openSnapshot(path string) (fh *os.File, created bool, err error) {
	fh, err = os.OpenFile(path, os.O_RDWR|os.O_CREATE|os.O_EXCL, 0o644)
	if err == nil {
		return fh, true, nil
	}
	if !errors.Is(err, fs.ErrExist) {
		return nil, false, err
	}
	fh, err = os.OpenFile(path, os.O_RDWR, 0o644)
	return fh, false, err
}

// discardEmpty removes path if it is still empty. A concurrent updater may
// have written to it since it was created.
func (s *Store) discardEmpty(path string) {
	info, err := os.Stat(path)
	if err != nil || info.Size() != 0 {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, fs.ErrNotExist) {
		s.log.Warn("removing empty snapshot file", "path", path, "error", err)
	}
}
