// Package detect sniffs test-runner output to determine its format.
package detect

import (
	"bytes"
	"encoding/json"
)

// Format represents a recognized output format.
type Format int

const (
	Unknown    Format = iota
	Transcript        // text transcript starting with a Compiling or Finished line
	GoTestJSON        // go test -json NDJSON stream
)

func (f Format) String() string {
	switch f {
	case Transcript:
		return "transcript"
	case GoTestJSON:
		return "go-test-json"
	default:
		return "unknown"
	}
}

// Sniff examines the first line of output to determine its format.
func Sniff(data []byte) Format {
	data = bytes.TrimLeft(data, " \t\r\n")
	if len(data) == 0 {
		return Unknown
	}
	first := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		first = data[:i]
	}
	first = bytes.TrimRight(first, "\r")

	if first[0] == '{' {
		if isGoTestJSON(first) {
			return GoTestJSON
		}
		return Unknown
	}
	if isTranscriptStart(first) {
		return Transcript
	}
	return Unknown
}

var validActions = map[string]bool{
	"start": true, "run": true, "pause": true, "cont": true, "pass": true,
	"bench": true, "fail": true, "output": true, "skip": true,
	"build-output": true, "build-fail": true,
}

func isGoTestJSON(line []byte) bool {
	var event struct {
		Action string `json:"Action"`
	}
	if err := json.Unmarshal(line, &event); err != nil {
		return false
	}
	return validActions[event.Action]
}

// isTranscriptStart matches the first line a transcript may begin with.
// Color codes must be stripped beforehand.
func isTranscriptStart(line []byte) bool {
	word, _, _ := bytes.Cut(bytes.TrimLeft(line, " \t"), []byte(" "))
	return string(word) == "Compiling" || string(word) == "Finished"
}
