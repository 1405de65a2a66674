package runner

import (
	"bufio"
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
)

// testEvent is one line of go test -json output.
type testEvent struct {
	Action  string `json:"Action"` // start, run, pass, fail, skip, output, ...
	Package string `json:"Package"`
	Test    string `json:"Test"`
	Output  string `json:"Output"`
}

// TestOutcome is the final state of one test in a JSON run.
type TestOutcome struct {
	Package string
	Name    string
	Failed  bool
	Output  []string
}

// JSONReport aggregates a go test -json stream.
type JSONReport struct {
	Tests       []TestOutcome
	BuildErrors []string // package-level output of packages that failed without running tests
	Malformed   int
}

// Failures returns failed tests in the order they started.
func (r *JSONReport) Failures() []TestOutcome {
	var out []TestOutcome
	for _, t := range r.Tests {
		if t.Failed {
			out = append(out, t)
		}
	}
	return out
}

type pkgAgg struct {
	ran    int
	output []string
}

// ParseJSON aggregates go test -json output. Lines that are not JSON events
// are counted as malformed and skipped.
func ParseJSON(data []byte) (*JSONReport, error) {
	report := &JSONReport{}
	tests := make(map[string]int)
	pkgs := make(map[string]*pkgAgg)
	var pkgOrder []string

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for scanner.Scan() {
		line := scanner.Bytes()
		if len(bytes.TrimSpace(line)) == 0 {
			continue
		}
		var e testEvent
		if err := json.Unmarshal(line, &e); err != nil {
			report.Malformed++
			continue
		}

		pkg, ok := pkgs[e.Package]
		if !ok {
			pkg = &pkgAgg{}
			pkgs[e.Package] = pkg
			pkgOrder = append(pkgOrder, e.Package)
		}
		if e.Test == "" {
			switch e.Action {
			case "output":
				if out := strings.TrimRight(e.Output, "\n"); out != "" {
					pkg.output = append(pkg.output, out)
				}
			case "fail":
				if pkg.ran == 0 {
					report.BuildErrors = append(report.BuildErrors, strings.Join(pkg.output, "\n"))
				}
			}
			continue
		}

		id := e.Package + "\x00" + e.Test
		i, seen := tests[id]
		if !seen {
			i = len(report.Tests)
			tests[id] = i
			report.Tests = append(report.Tests, TestOutcome{Package: e.Package, Name: e.Test})
			pkg.ran++
		}
		t := &report.Tests[i]
		switch e.Action {
		case "output":
			if out := strings.TrimRight(e.Output, "\n"); out != "" {
				t.Output = append(t.Output, out)
			}
		case "fail":
			t.Failed = true
		case "pass", "skip":
			t.Failed = false
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("scanning test output: %w", err)
	}
	return report, nil
}

// failureText is the test's own output minus go test framing lines.
func (t TestOutcome) failureText() string {
	var lines []string
	for _, l := range t.Output {
		trimmed := strings.TrimSpace(l)
		if strings.HasPrefix(trimmed, "=== ") || strings.HasPrefix(trimmed, "--- FAIL") {
			continue
		}
		lines = append(lines, strings.TrimRight(l, " \t"))
	}
	return strings.TrimSpace(strings.Join(lines, "\n"))
}
