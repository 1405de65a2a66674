package store

import (
	"errors"
	"fmt"
)

// ParseError reports a malformed snapshot file or snapshot key.
type ParseError struct {
	Path string
	Line int // 0 when unknown
	Msg  string
	Err  error
}

func (e *ParseError) Error() string {
	loc := e.Path
	if e.Line > 0 {
		loc = fmt.Sprintf("%s:%d", e.Path, e.Line)
	}
	if loc == "" {
		loc = "snapshot"
	}
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", loc, e.Msg, e.Err)
	}
	return fmt.Sprintf("%s: %s", loc, e.Msg)
}

func (e *ParseError) Unwrap() error { return e.Err }

// LookupError reports a key absent from an otherwise valid snapshot file.
type LookupError struct {
	Key  string
	Path string
}

func (e *LookupError) Error() string {
	return fmt.Sprintf("no snapshot recorded for %s in %s", e.Key, e.Path)
}

// Fields compared by Check. FieldValue is a legitimate regression; the
// others mean the file disagrees with the key it is stored under.
const (
	FieldValue        = "recorded_value"
	FieldModulePath   = "module_path"
	FieldTestFunction = "test_function"
	FieldFile         = "file"
)

// MismatchError reports a stored snapshot that differs from the fresh value
// or whose metadata disagrees with its key.
type MismatchError struct {
	Key      string
	Path     string
	Field    string
	Expected any // stored
	Actual   any // fresh
}

func (e *MismatchError) Error() string {
	if e.Corrupt() {
		return fmt.Sprintf("snapshot %s in %s is inconsistent: %s is %v, expected %v", e.Key, e.Path, e.Field, e.Expected, e.Actual)
	}
	return fmt.Sprintf("snapshot %s in %s does not match", e.Key, e.Path)
}

// Corrupt reports whether the mismatch is in metadata rather than the value.
func (e *MismatchError) Corrupt() bool {
	return e.Field != FieldValue
}

// IOError wraps filesystem and lock failures.
type IOError struct {
	Op   string
	Path string
	Err  error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Op, e.Path, e.Err)
}

func (e *IOError) Unwrap() error { return e.Err }

// IsMismatch reports whether err is or wraps a value MismatchError.
func IsMismatch(err error) bool {
	var m *MismatchError
	return errors.As(err, &m) && !m.Corrupt()
}
