package store

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"
)

// Entry is one recorded snapshot.
type Entry struct {
	Key          string
	File         []string
	ModulePath   string
	TestFunction string
	Value        *yaml.Node
	Line         int // line of the key in the source document, 0 if new
}

// File is the in-memory form of a snapshot file. Entries keep document
// order: replacing a key keeps its position, new keys are appended.
type File struct {
	path    string
	entries []*Entry
	index   map[string]int
}

// NewFile returns an empty snapshot file bound to path.
func NewFile(path string) *File {
	return &File{path: path, index: make(map[string]int)}
}

type entryDoc struct {
	File          []string  `yaml:"file"`
	ModulePath    string    `yaml:"module_path"`
	TestFunction  string    `yaml:"test_function"`
	RecordedValue yaml.Node `yaml:"recorded_value"`
}

// Decode parses snapshot file contents. Empty or whitespace-only input is an
// empty file; anything else that is not a mapping of entries is a
// *ParseError.
func Decode(data []byte, path string) (*File, error) {
	f := NewFile(path)
	if len(bytes.TrimSpace(data)) == 0 {
		return f, nil
	}

	var doc yaml.Node
	dec := yaml.NewDecoder(bytes.NewReader(data))
	if err := dec.Decode(&doc); err != nil {
		return nil, &ParseError{Path: path, Msg: "invalid YAML", Err: err}
	}
	var extra yaml.Node
	if err := dec.Decode(&extra); !errors.Is(err, io.EOF) {
		return nil, &ParseError{Path: path, Line: extra.Line, Msg: "more than one YAML document"}
	}

	if doc.Kind != yaml.DocumentNode || len(doc.Content) != 1 {
		return nil, &ParseError{Path: path, Msg: "not a YAML document"}
	}
	root := doc.Content[0]
	if root.Kind != yaml.MappingNode {
		return nil, &ParseError{Path: path, Line: root.Line, Msg: "root is not a mapping of snapshot keys"}
	}

	for i := 0; i+1 < len(root.Content); i += 2 {
		k, v := root.Content[i], root.Content[i+1]
		if k.Kind != yaml.ScalarNode {
			return nil, &ParseError{Path: path, Line: k.Line, Msg: "snapshot key is not a string"}
		}
		if _, dup := f.index[k.Value]; dup {
			return nil, &ParseError{Path: path, Line: k.Line, Msg: fmt.Sprintf("duplicate snapshot key %q", k.Value)}
		}
		if v.Kind != yaml.MappingNode {
			return nil, &ParseError{Path: path, Line: v.Line, Msg: fmt.Sprintf("snapshot %q is not a mapping", k.Value)}
		}
		var ed entryDoc
		if err := v.Decode(&ed); err != nil {
			return nil, &ParseError{Path: path, Line: v.Line, Msg: fmt.Sprintf("snapshot %q", k.Value), Err: err}
		}
		if ed.RecordedValue.Kind == 0 {
			return nil, &ParseError{Path: path, Line: v.Line, Msg: fmt.Sprintf("snapshot %q has no %s", k.Value, FieldValue)}
		}
		value := ed.RecordedValue
		f.add(&Entry{
			Key:          k.Value,
			File:         ed.File,
			ModulePath:   ed.ModulePath,
			TestFunction: ed.TestFunction,
			Value:        &value,
			Line:         k.Line,
		})
	}
	return f, nil
}

func (f *File) add(e *Entry) {
	f.index[e.Key] = len(f.entries)
	f.entries = append(f.entries, e)
}

// Len returns the number of entries.
func (f *File) Len() int { return len(f.entries) }

// Get returns the entry stored under key.
func (f *File) Get(key string) (*Entry, bool) {
	i, ok := f.index[key]
	if !ok {
		return nil, false
	}
	return f.entries[i], true
}

// Put inserts e, replacing any entry with the same key in place.
func (f *File) Put(e *Entry) {
	if i, ok := f.index[e.Key]; ok {
		f.entries[i] = e
		return
	}
	f.add(e)
}

// Entries returns the entries in document order.
func (f *File) Entries() []*Entry {
	out := make([]*Entry, len(f.entries))
	copy(out, f.entries)
	return out
}

// Encode renders the file with two-space indentation.
func (f *File) Encode() ([]byte, error) {
	root := &yaml.Node{Kind: yaml.MappingNode}
	for _, e := range f.entries {
		files := &yaml.Node{Kind: yaml.SequenceNode}
		for _, part := range e.File {
			files.Content = append(files.Content, strNode(part))
		}
		body := &yaml.Node{Kind: yaml.MappingNode, Content: []*yaml.Node{
			strNode(FieldFile), files,
			strNode(FieldModulePath), strNode(e.ModulePath),
			strNode(FieldTestFunction), strNode(e.TestFunction),
			strNode(FieldValue), e.Value,
		}}
		root.Content = append(root.Content, strNode(e.Key), body)
	}

	var buf bytes.Buffer
	enc := yaml.NewEncoder(&buf)
	enc.SetIndent(2)
	if err := enc.Encode(&yaml.Node{Kind: yaml.DocumentNode, Content: []*yaml.Node{root}}); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", f.path, err)
	}
	if err := enc.Close(); err != nil {
		return nil, fmt.Errorf("encoding %s: %w", f.path, err)
	}
	return buf.Bytes(), nil
}

func strNode(s string) *yaml.Node {
	return &yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: s}
}

// EncodeValue converts v to its recorded form.
func EncodeValue(v any) (*yaml.Node, error) {
	var n yaml.Node
	if err := n.Encode(v); err != nil {
		return nil, err
	}
	return &n, nil
}

// canonical round-trips v through the codec so fresh values compare against
// decoded ones on equal terms.
func canonical(v any) (any, error) {
	n, err := EncodeValue(v)
	if err != nil {
		return nil, err
	}
	return decodeValue(n)
}

func decodeValue(n *yaml.Node) (any, error) {
	var out any
	if err := n.Decode(&out); err != nil {
		return nil, err
	}
	return out, nil
}
