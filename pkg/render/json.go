package render

import (
	"encoding/json"
	"io"

	"github.com/dkoosis/snap/pkg/store"
	"github.com/dkoosis/snap/pkg/transcript"
)

// JSON renders structured output for automation.
type JSON struct{}

// NewJSON creates a JSON renderer.
func NewJSON() *JSON {
	return &JSON{}
}

type suitesOutput struct {
	Version string             `json:"version"`
	Passed  bool               `json:"passed"`
	Suites  []transcript.Suite `json:"suites"`
}

type candidateJSON struct {
	Key          string `json:"key"`
	ModulePath   string `json:"module_path"`
	TestFunction string `json:"test_function"`
	Snapshot     string `json:"snapshot"`
}

type candidatesOutput struct {
	Version   string          `json:"version"`
	Root      string          `json:"root"`
	Snapshots []candidateJSON `json:"snapshots"`
}

const jsonVersion = "1"

// Suites writes the parsed suites.
func (j *JSON) Suites(w io.Writer, suites []transcript.Suite) error {
	if suites == nil {
		suites = []transcript.Suite{}
	}
	return encode(w, suitesOutput{Version: jsonVersion, Passed: transcript.AllPassed(suites), Suites: suites})
}

// Candidates writes the discovered snapshots.
func (j *JSON) Candidates(w io.Writer, root string, cands []store.Candidate) error {
	out := candidatesOutput{Version: jsonVersion, Root: root, Snapshots: make([]candidateJSON, 0, len(cands))}
	for _, c := range cands {
		out.Snapshots = append(out.Snapshots, candidateJSON{
			Key:          c.Key,
			ModulePath:   c.ModulePath,
			TestFunction: c.TestFunction,
			Snapshot:     relPath(root, c.SnapshotPath),
		})
	}
	return encode(w, out)
}

func encode(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
