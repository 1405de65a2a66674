package runner

import (
	"strings"

	"github.com/acarl005/stripansi"

	"github.com/dkoosis/snap/internal/detect"
	"github.com/dkoosis/snap/pkg/transcript"
)

const tailLines = 20

// Explain extracts a short failure description from a failed run. JSON
// output goes through ParseJSON, text transcripts through the transcript
// parser, and anything else falls back to the last lines of output.
// Successful runs explain to "".
func Explain(res Result) string {
	if res.Success() || len(res.Output) == 0 {
		return ""
	}
	clean := stripansi.Strip(string(res.Output))

	switch detect.Sniff([]byte(clean)) {
	case detect.GoTestJSON:
		if msg := explainJSON(clean); msg != "" {
			return msg
		}
	case detect.Transcript:
		if suites, err := transcript.ParseString(clean, transcript.AllowTrailer()); err == nil {
			if msg := explainSuites(suites); msg != "" {
				return msg
			}
		}
	}
	return tail(clean, tailLines)
}

func explainJSON(s string) string {
	report, err := ParseJSON([]byte(s))
	if err != nil {
		return ""
	}
	var parts, names []string
	for _, f := range report.Failures() {
		names = append(names, f.Name)
		if text := f.failureText(); text != "" {
			parts = append(parts, f.Name+": "+text)
		}
	}
	switch {
	case len(parts) > 0:
		return strings.Join(parts, "\n")
	case len(names) > 0:
		return "failed: " + strings.Join(names, ", ")
	case len(report.BuildErrors) > 0:
		return strings.TrimSpace(strings.Join(report.BuildErrors, "\n"))
	}
	return ""
}

func explainSuites(suites []transcript.Suite) string {
	var parts []string
	for i := range suites {
		for _, t := range suites[i].FailedTests() {
			if msg := t.Message(); msg != "" {
				parts = append(parts, t.Name+": "+msg)
			} else {
				parts = append(parts, t.Name+": failed")
			}
		}
	}
	return strings.Join(parts, "\n")
}

func tail(s string, n int) string {
	lines := strings.Split(strings.TrimRight(s, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
