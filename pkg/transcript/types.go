// Package transcript parses the line-oriented text transcript printed by a
// test runner (compile notices, per-suite result lines, failure blocks and
// summary lines) into structured Suite records.
package transcript

// State is the pass/fail outcome of a suite or test.
type State string

const (
	StatePass State = "pass"
	StateFail State = "fail"
)

// Suite is one test-runner invocation group.
type Suite struct {
	Name        string `json:"name"`
	State       State  `json:"state"`
	Passed      int    `json:"passed"`
	Failed      int    `json:"failed"`
	Ignored     int    `json:"ignored"`
	Measured    int    `json:"measured"`
	FilteredOut int    `json:"filtered_out,omitempty"`
	// Total is always Passed+Failed+Ignored; the transcript's own
	// "running N tests" line is never trusted.
	Total int    `json:"total"`
	Tests []Test `json:"tests"`
}

// Test is one "test <name> ... <status>" line.
type Test struct {
	Name   string `json:"name"`
	Status State  `json:"status"`
	// Error is set only for failing tests with a matching failure block.
	Error *string `json:"error,omitempty"`
}

// Failure is one "---- <name> stdout ----" block from the failures section.
type Failure struct {
	Name  string
	Error string
}

// FailedTests returns the suite's failing tests in transcript order.
func (s *Suite) FailedTests() []Test {
	var out []Test
	for _, t := range s.Tests {
		if t.Status == StateFail {
			out = append(out, t)
		}
	}
	return out
}

// Message returns the failure message, or "" when none was recorded.
func (t Test) Message() string {
	if t.Error == nil {
		return ""
	}
	return *t.Error
}

// AllPassed reports whether every suite passed.
func AllPassed(suites []Suite) bool {
	for _, s := range suites {
		if s.State != StatePass {
			return false
		}
	}
	return true
}

// attachFailures cross-references failing tests with parsed failure blocks
// by exact name. Unmatched failures are dropped.
func attachFailures(tests []Test, failures []Failure) {
	if len(failures) == 0 {
		return
	}
	for i := range tests {
		if tests[i].Status != StateFail {
			continue
		}
		for _, f := range failures {
			if f.Name == tests[i].Name {
				msg := f.Error
				tests[i].Error = &msg
				break
			}
		}
	}
}
