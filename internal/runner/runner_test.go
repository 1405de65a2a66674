package runner

import (
	"bytes"
	"context"
	"errors"
	"os/exec"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func requireShell(t *testing.T) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("needs sh")
	}
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not on PATH")
	}
}

func TestRunPattern(t *testing.T) {
	assert.Equal(t, "^TestAdd$", RunPattern("TestAdd"))
	assert.Equal(t, "^TestRender$/^empty$", RunPattern("TestRender/empty"))
	assert.Equal(t, `^TestX$/^a\.b\(1\)$`, RunPattern("TestX/a.b(1)"))
}

func TestPackageArg(t *testing.T) {
	root := filepath.FromSlash("/work/demo")
	assert.Equal(t, "./pkg/calc", PackageArg(root, filepath.Join(root, "pkg", "calc")))
	assert.Equal(t, ".", PackageArg(root, root))
}

func TestExpand(t *testing.T) {
	root := filepath.FromSlash("/work/demo")
	scope := &Scope{Dir: filepath.Join(root, "calc"), ModulePath: "example.com/demo/calc", TestFunction: "TestAdd"}

	assert.Equal(t,
		[]string{"go", "test", "-count=1", "-json", "-run", "^TestAdd$", "./calc"},
		Expand(DefaultCommand, root, scope))
	assert.Equal(t,
		[]string{"go", "test", "-count=1", "-json", "-run", ".", "./..."},
		Expand(DefaultCommand, root, nil))
	assert.Equal(t,
		[]string{"make", "test", "PKG=./calc", "RUN=^TestAdd$"},
		Expand([]string{"make", "test", "PKG={pkg}", "RUN={run}"}, root, scope))
}

func TestExec_NonZeroExitIsNotAnError(t *testing.T) {
	requireShell(t)
	e := New(t.TempDir(), WithCommand([]string{"sh", "-c", "echo broken; exit 3"}))

	res, err := e.Run(context.Background(), nil, Env{})
	require.NoError(t, err)
	assert.Equal(t, 3, res.ExitCode)
	assert.False(t, res.Success())
	assert.Equal(t, "broken\n", string(res.Output))
}

func TestExec_PassesUpdateSignal(t *testing.T) {
	requireShell(t)
	e := New(t.TempDir(), WithCommand([]string{"sh", "-c", "printf %s \"$" + EnvUpdate + "\""}))

	res, err := e.Run(context.Background(), nil, Env{Update: true})
	require.NoError(t, err)
	assert.Equal(t, "1", string(res.Output))

	res, err = e.Run(context.Background(), nil, Env{})
	require.NoError(t, err)
	assert.Equal(t, "0", string(res.Output))
}

func TestExec_RunsInRootWithScopeArgs(t *testing.T) {
	requireShell(t)
	root := t.TempDir()
	scope := &Scope{Dir: filepath.Join(root, "calc"), TestFunction: "TestAdd/zero"}
	e := New(root, WithCommand([]string{"sh", "-c", `printf '%s %s' "$1" "$2"`, "sh", "{run}", "{pkg}"}))

	res, err := e.Run(context.Background(), scope, Env{})
	require.NoError(t, err)
	assert.Equal(t, "^TestAdd$/^zero$ ./calc", string(res.Output))
}

func TestExec_VerboseEchoesOutput(t *testing.T) {
	requireShell(t)
	var echo bytes.Buffer
	e := New(t.TempDir(), WithCommand([]string{"sh", "-c", "echo hi"}), WithVerbose(&echo))

	res, err := e.Run(context.Background(), nil, Env{})
	require.NoError(t, err)
	assert.Equal(t, "hi\n", echo.String())
	assert.Equal(t, "hi\n", string(res.Output))
}

func TestExec_MissingBinaryIsSpawnError(t *testing.T) {
	e := New(t.TempDir(), WithCommand([]string{"snap-test-no-such-binary"}))

	res, err := e.Run(context.Background(), nil, Env{})
	var spawnErr *SpawnError
	require.ErrorAs(t, err, &spawnErr)
	assert.True(t, errors.Is(err, exec.ErrNotFound))
	assert.True(t, IsCommandNotFound(err))
	assert.Equal(t, 127, res.ExitCode)
	assert.Equal(t, "snap-test-no-such-binary", spawnErr.Command)
}

func TestExec_CancelKillsProcessGroup(t *testing.T) {
	requireShell(t)
	e := New(t.TempDir(), WithCommand([]string{"sh", "-c", "sleep 30 & wait"}))

	ctx, cancel := context.WithTimeout(context.Background(), 200*time.Millisecond)
	defer cancel()
	start := time.Now()
	_, err := e.Run(ctx, nil, Env{})

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 10*time.Second)
}

func TestParseJSON(t *testing.T) {
	input := strings.Join([]string{
		`{"Action":"start","Package":"example.com/demo/calc"}`,
		`{"Action":"run","Package":"example.com/demo/calc","Test":"TestAdd"}`,
		`{"Action":"output","Package":"example.com/demo/calc","Test":"TestAdd","Output":"=== RUN   TestAdd\n"}`,
		`{"Action":"output","Package":"example.com/demo/calc","Test":"TestAdd","Output":"    calc_test.go:12: snapshot does not match\n"}`,
		`{"Action":"output","Package":"example.com/demo/calc","Test":"TestAdd","Output":"--- FAIL: TestAdd (0.00s)\n"}`,
		`{"Action":"fail","Package":"example.com/demo/calc","Test":"TestAdd","Elapsed":0}`,
		`not json`,
		`{"Action":"run","Package":"example.com/demo/calc","Test":"TestSub"}`,
		`{"Action":"pass","Package":"example.com/demo/calc","Test":"TestSub","Elapsed":0}`,
		`{"Action":"fail","Package":"example.com/demo/calc","Elapsed":0.1}`,
	}, "\n") + "\n"

	report, err := ParseJSON([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, 1, report.Malformed)
	require.Len(t, report.Tests, 2)
	assert.Empty(t, report.BuildErrors)

	fails := report.Failures()
	require.Len(t, fails, 1)
	assert.Equal(t, "TestAdd", fails[0].Name)
	assert.Equal(t, "calc_test.go:12: snapshot does not match", fails[0].failureText())
}

func TestParseJSON_BuildError(t *testing.T) {
	input := strings.Join([]string{
		`{"Action":"output","Package":"example.com/demo/calc","Output":"# example.com/demo/calc\n"}`,
		`{"Action":"output","Package":"example.com/demo/calc","Output":"calc.go:3:1: syntax error\n"}`,
		`{"Action":"fail","Package":"example.com/demo/calc","Elapsed":0}`,
	}, "\n")

	report, err := ParseJSON([]byte(input))
	require.NoError(t, err)
	assert.Equal(t, []string{"# example.com/demo/calc\ncalc.go:3:1: syntax error"}, report.BuildErrors)
	assert.Equal(t, "# example.com/demo/calc\ncalc.go:3:1: syntax error", Explain(Result{ExitCode: 1, Output: []byte(input)}))
}

func TestExplain(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		assert.Empty(t, Explain(Result{Output: []byte("ok")}))
	})

	t.Run("json", func(t *testing.T) {
		out := `{"Action":"run","Package":"p","Test":"TestA"}` + "\n" +
			`{"Action":"output","Package":"p","Test":"TestA","Output":"    a_test.go:5: boom\n"}` + "\n" +
			`{"Action":"fail","Package":"p","Test":"TestA"}` + "\n"
		assert.Equal(t, "TestA: a_test.go:5: boom", Explain(Result{ExitCode: 1, Output: []byte(out)}))
	})

	t.Run("transcript with color", func(t *testing.T) {
		out := strings.Join([]string{
			"   Compiling demo v0.1.0",
			"    Finished debug target(s) in 0.1 secs",
			"     Running suite_a",
			"running 1 test",
			"test calc ... \x1b[31mFAILED\x1b[0m",
			"",
			"failures:",
			"",
			"---- calc stdout ----",
			"expected 3, got 4",
			"",
			"test result: FAILED. 0 passed; 1 failed; 0 ignored; 0 measured",
			"",
			"error: test failed",
		}, "\n")
		assert.Equal(t, "calc: expected 3, got 4", Explain(Result{ExitCode: 101, Output: []byte(out)}))
	})

	t.Run("unrecognised falls back to tail", func(t *testing.T) {
		var b strings.Builder
		for i := 0; i < 30; i++ {
			b.WriteString("line\n")
		}
		b.WriteString("last words\n")
		got := Explain(Result{ExitCode: 2, Output: []byte(b.String())})
		assert.True(t, strings.HasSuffix(got, "last words"))
		assert.Len(t, strings.Split(got, "\n"), tailLines)
	})
}
