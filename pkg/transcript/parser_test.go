package transcript

import (
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func strPtr(s string) *string { return &s }

func TestParse_SingleSuiteAllPass(t *testing.T) {
	input := strings.Join([]string{
		"   Compiling demo v0.1.0 (file:///demo)",
		"    Finished debug [unoptimized + debuginfo] target(s) in 0.0 secs",
		"     Running suite_a",
		"running 2 tests",
		"test t1 ... ok",
		"test t2 ... ok",
		"test result: ok. 2 passed; 0 failed; 0 ignored; 0 measured",
	}, "\n") + "\n"

	suites, err := ParseString(input)
	require.NoError(t, err)
	require.Len(t, suites, 1)
	assert.Equal(t, Suite{
		Name:   "suite_a",
		State:  StatePass,
		Passed: 2,
		Total:  2,
		Tests: []Test{
			{Name: "t1", Status: StatePass},
			{Name: "t2", Status: StatePass},
		},
	}, suites[0])
}

func TestParse_FailureDetailAttachedToTest(t *testing.T) {
	input := strings.Join([]string{
		"Finished dev [unoptimized] target(s) in 0.1 secs",
		"Running suite_b",
		"running 1 test",
		"test fail ... FAILED",
		"failures:",
		"---- fail stdout ----",
		"thread 'fail' panicked at 'assertion failed: `(left == right)`', tests/integration_test.rs:16",
		"",
		"test result: FAILED. 0 passed; 1 failed; 0 ignored; 0 measured",
	}, "\n")

	suites, err := ParseString(input)
	require.NoError(t, err)
	require.Len(t, suites, 1)
	s := suites[0]
	assert.Equal(t, StateFail, s.State)
	assert.Equal(t, 1, s.Total)
	require.Len(t, s.Tests, 1)
	assert.Equal(t, Test{
		Name:   "fail",
		Status: StateFail,
		Error:  strPtr("thread 'fail' panicked at 'assertion failed: `(left == right)`', tests/integration_test.rs:16"),
	}, s.Tests[0])
}

func TestParse_MultipleSuitesWithSecondaryFailureListing(t *testing.T) {
	input := `  Compiling blah v0.1.0 (file:blah)
        Finished debug [unoptimized + debuginfo] target(s) in 0.32 secs
        Running target/debug/deps/docker_command-be014e20fbd07382
running 0 tests
test result: ok. 0 passed; 0 failed; 0 ignored; 0 measured
        Running target/debug/integration_test-d4fc68dd5824cbb9
running 3 tests
test fail ... FAILED
test fail2 ... FAILED
test it_runs_a_command ... ok
failures:
---- fail stdout ----
thread 'fail' panicked at 'left: 1, right: 2', tests/integration_test.rs:16
note: Run with ` + "`RUST_BACKTRACE=1`" + ` for a backtrace.
---- fail2 stdout ----
thread 'fail2' panicked at 'left: 3, right: 2', tests/integration_test.rs:22
failures:
        fail
        fail2
test result: FAILED. 1 passed; 2 failed; 0 ignored; 0 measured
`

	suites, err := ParseString(input)
	require.NoError(t, err)
	require.Len(t, suites, 2)

	assert.Equal(t, "target/debug/deps/docker_command-be014e20fbd07382", suites[0].Name)
	assert.Empty(t, suites[0].Tests)
	assert.Equal(t, 0, suites[0].Total)

	s := suites[1]
	assert.Equal(t, StateFail, s.State)
	assert.Equal(t, 3, s.Total)
	require.Len(t, s.Tests, 3)
	assert.Equal(t, "thread 'fail' panicked at 'left: 1, right: 2', tests/integration_test.rs:16", s.Tests[0].Message())
	assert.Equal(t, "thread 'fail2' panicked at 'left: 3, right: 2', tests/integration_test.rs:22", s.Tests[1].Message())
	assert.Nil(t, s.Tests[2].Error)
	assert.Len(t, s.FailedTests(), 2)
}

func TestParse_DocTestsHeaderAndNoTrailingNewline(t *testing.T) {
	input := strings.Join([]string{
		"   Compiling toml v0.2.1",
		"   Compiling foo v0.1.0 (file:///foo)",
		"    Finished debug [unoptimized + debuginfo] target(s) in 12.11 secs",
		"     Running target/debug/integration_test-283604d1063344ba",
		"running 1 test",
		"test it_runs_a_command ... ok",
		"test result: ok. 1 passed; 0 failed; 0 ignored; 0 measured",
		"   Doc-tests foo",
		"running 0 tests",
		"test result: ok. 0 passed; 0 failed; 0 ignored; 0 measured",
	}, "\n")

	suites, err := ParseString(input)
	require.NoError(t, err)
	require.Len(t, suites, 2)
	assert.Equal(t, "foo", suites[1].Name)
	assert.True(t, AllPassed(suites))

	require.Len(t, suites[0].Tests, 1)
	assert.Equal(t, Test{Name: "it_runs_a_command", Status: StatePass}, suites[0].Tests[0])
}

func TestParse_FailingTestWithoutBlockKeepsNilError(t *testing.T) {
	input := strings.Join([]string{
		"Finished",
		"Running s",
		"running 2 tests",
		"test a ... FAILED",
		"test b ... FAILED",
		"failures:",
		"---- b stdout ----",
		"boom",
		"",
		"---- orphan stdout ----",
		"nobody owns this",
		"",
		"test result: FAILED. 0 passed; 2 failed; 0 ignored; 0 measured",
	}, "\n")

	suites, err := ParseString(input)
	require.NoError(t, err)
	tests := suites[0].Tests
	assert.Nil(t, tests[0].Error)
	assert.Equal(t, "boom", tests[1].Message())
}

func TestParse_IgnoredLinesAndFilteredSummary(t *testing.T) {
	input := strings.Join([]string{
		"    Finished `test` profile [unoptimized + debuginfo] target(s) in 0.05s",
		"     Running unittests src/lib.rs (target/debug/deps/demo-1234)",
		"running 3 tests",
		"test slow ... ignored, needs network",
		"test a ... ok",
		"test b ... ok",
		"test result: ok. 2 passed; 0 failed; 1 ignored; 0 measured; 4 filtered out; finished in 0.00s",
	}, "\n")

	suites, err := ParseString(input)
	require.NoError(t, err)
	s := suites[0]
	assert.Equal(t, "unittests src/lib.rs (target/debug/deps/demo-1234)", s.Name)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Ignored)
	assert.Equal(t, 4, s.FilteredOut)
	assert.Len(t, s.Tests, 2)
}

func TestParse_MultiLineFailureMessage(t *testing.T) {
	input := strings.Join([]string{
		"Finished",
		"Running s",
		"running 1 test",
		"test calc::adds ... FAILED",
		"",
		"failures:",
		"",
		"---- calc::adds stdout ----",
		"thread 'calc::adds' panicked at src/lib.rs:5:9:",
		"assertion `left == right` failed",
		"note: run with `RUST_BACKTRACE=1` environment variable to display a backtrace",
		"",
		"",
		"failures:",
		"    calc::adds",
		"",
		"test result: FAILED. 0 passed; 1 failed; 0 ignored; 0 measured; 0 filtered out",
		"",
	}, "\n")

	suites, err := ParseString(input)
	require.NoError(t, err)
	assert.Equal(t, "thread 'calc::adds' panicked at src/lib.rs:5:9:\nassertion `left == right` failed", suites[0].Tests[0].Message())
}

func TestParse_TrailerRejectedByDefault(t *testing.T) {
	input := strings.Join([]string{
		"Finished",
		"Running s",
		"running 0 tests",
		"test result: ok. 0 passed; 0 failed; 0 ignored; 0 measured",
		"error: test failed",
	}, "\n")

	_, err := ParseString(input)
	var perr *ParseError
	require.ErrorAs(t, err, &perr)
	assert.Equal(t, 5, perr.Line)
	assert.Equal(t, "suite header or end of input", perr.Expected)

	suites, err := ParseString(input, AllowTrailer())
	require.NoError(t, err)
	assert.Len(t, suites, 1)
}

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
		offset   int
	}{
		{
			name:     "empty input",
			input:    "",
			expected: `"Finished" line`,
			offset:   0,
		},
		{
			name:     "missing finished line",
			input:    "Compiling x\nRunning s\n",
			expected: `"Finished" line`,
			offset:   12,
		},
		{
			name:     "no suites",
			input:    "Finished\n",
			expected: "suite header",
			offset:   9,
		},
		{
			name:     "missing count line",
			input:    "Finished\nRunning s\ntest a ... ok\n",
			expected: `"running N tests" line`,
			offset:   19,
		},
		{
			name:     "bad status token",
			input:    "Finished\nRunning s\nrunning 1 test\ntest a ... maybe\n",
			expected: `"ok" or "FAILED"`,
			offset:   45,
		},
		{
			name:     "missing delimiter",
			input:    "Finished\nRunning s\nrunning 1 test\ntest a ok\n",
			expected: `" ..." after test name`,
			offset:   39,
		},
		{
			name:     "malformed digits",
			input:    "Finished\nRunning s\nrunning 0 tests\ntest result: ok. x passed; 0 failed; 0 ignored; 0 measured\n",
			expected: "digit run",
			offset:   52,
		},
		{
			name:     "truncated summary",
			input:    "Finished\nRunning s\nrunning 0 tests\ntest result: ok. 0 passed; 0 failed;",
			expected: "digit run",
			offset:   71,
		},
		{
			name:     "header without line ending",
			input:    "Finished\nRunning s",
			expected: "line ending after suite header",
			offset:   18,
		},
		{
			name:     "failures header without blocks",
			input:    "Finished\nRunning s\nrunning 1 test\ntest a ... FAILED\nfailures:\n    a\ntest result: FAILED. 0 passed; 1 failed; 0 ignored; 0 measured\n",
			expected: `failure block "---- <name> stdout ----"`,
			offset:   62,
		},
		{
			name:     "summary disagrees with result lines",
			input:    "Finished\nRunning s\nrunning 1 test\ntest a ... ok\ntest result: ok. 2 passed; 0 failed; 0 ignored; 0 measured\n",
			expected: "summary counting 1 passed+failed tests",
			offset:   48,
		},
		{
			name:     "end of input inside suite",
			input:    "Finished\nRunning s\nrunning 1 test\ntest a ... ok\n",
			expected: "test result line or summary",
			offset:   48,
		},
		{
			name:     "unknown clause after measured",
			input:    "Finished\nRunning s\nrunning 0 tests\ntest result: ok. 0 passed; 0 failed; 0 ignored; 0 measured; total nonsense here\n",
			expected: `"N filtered out" or "finished in"`,
			offset:   95,
		},
		{
			name:     "junk after filtered out",
			input:    "Finished\nRunning s\nrunning 0 tests\ntest result: ok. 0 passed; 0 failed; 0 ignored; 0 measured; 3 filtered out; garbage!!\n",
			expected: `"finished in"`,
			offset:   111,
		},
		{
			name:     "elapsed without unit",
			input:    "Finished\nRunning s\nrunning 0 tests\ntest result: ok. 0 passed; 0 failed; 0 ignored; 0 measured; finished in 0.01\n",
			expected: `"s"`,
			offset:   111,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			suites, err := ParseString(tt.input)
			assert.Nil(t, suites)
			var perr *ParseError
			require.True(t, errors.As(err, &perr), "expected *ParseError, got %v", err)
			assert.Equal(t, tt.expected, perr.Expected)
			assert.Equal(t, tt.offset, perr.Offset)
		})
	}
}

func TestParseError_Message(t *testing.T) {
	err := &ParseError{Offset: 12, Line: 2, Expected: `"Finished" line`, Found: "Running s"}
	assert.Equal(t, `transcript: line 2 (offset 12): expected "Finished" line, found "Running s"`, err.Error())

	eof := &ParseError{Offset: 9, Line: 2, Expected: "suite header"}
	assert.Contains(t, eof.Error(), "found end of input")
}

func TestParseStream_ReadsAll(t *testing.T) {
	input := "Finished\nRunning s\nrunning 0 tests\ntest result: ok. 0 passed; 0 failed; 0 ignored; 0 measured\n"
	suites, err := ParseStream(strings.NewReader(input))
	require.NoError(t, err)
	assert.Len(t, suites, 1)
}

// renderSuite writes a suite back out in transcript form.
func renderSuite(b *strings.Builder, name string, results []bool, ignored int) {
	fmt.Fprintf(b, "     Running %s\n", name)
	fmt.Fprintf(b, "running %d tests\n", len(results)+ignored)
	passed, failed := 0, 0
	for i, ok := range results {
		status := "ok"
		if ok {
			passed++
		} else {
			status = "FAILED"
			failed++
		}
		fmt.Fprintf(b, "test case_%d ... %s\n", i, status)
	}
	for i := 0; i < ignored; i++ {
		fmt.Fprintf(b, "test skipped_%d ... ignored\n", i)
	}
	if failed > 0 {
		b.WriteString("\nfailures:\n\n")
		for i, ok := range results {
			if !ok {
				fmt.Fprintf(b, "---- case_%d stdout ----\ncase %d broke\n\n", i, i)
			}
		}
	}
	state := "ok"
	if failed > 0 {
		state = "FAILED"
	}
	fmt.Fprintf(b, "test result: %s. %d passed; %d failed; %d ignored; 0 measured\n\n", state, passed, failed, ignored)
}

func TestParse_CountAndFailureAssociation_Property(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100

	properties := gopter.NewProperties(parameters)

	properties.Property("total and test counts agree with summary", prop.ForAll(
		func(results []bool, ignored uint8) bool {
			var b strings.Builder
			b.WriteString("   Compiling gen v0.0.1\n    Finished debug target(s)\n")
			renderSuite(&b, "generated", results, int(ignored%4))

			suites, err := ParseString(b.String())
			if err != nil || len(suites) != 1 {
				return false
			}
			s := suites[0]
			if s.Total != s.Passed+s.Failed+s.Ignored {
				return false
			}
			if len(s.Tests) != s.Passed+s.Failed {
				return false
			}
			for i, test := range s.Tests {
				wantFail := !results[i]
				if wantFail != (test.Status == StateFail) {
					return false
				}
				if wantFail != (test.Error != nil) {
					return false
				}
			}
			return true
		},
		gen.SliceOf(gen.Bool()),
		gen.UInt8(),
	))

	properties.TestingRun(t)
}
