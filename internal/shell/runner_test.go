package shell_test

import (
	"bytes"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/shcov/internal/shell"
	"github.com/Sumatoshi-tech/shcov/pkg/coverage"
	"github.com/Sumatoshi-tech/shcov/pkg/trace"
)

func requireBash(t *testing.T) string {
	t.Helper()

	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}

	return bash
}

func writeScript(t *testing.T, body string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "script.sh")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o600))

	return path
}

func TestSplitShell(t *testing.T) {
	t.Parallel()

	words, err := shell.SplitShell("/bin/bash  -x")
	require.NoError(t, err)
	assert.Equal(t, []string{"/bin/bash", "-x"}, words)

	_, err = shell.SplitShell("   ")
	assert.ErrorIs(t, err, shell.ErrEmptyShell)
}

func TestBuildArgv(t *testing.T) {
	t.Parallel()

	argv := shell.BuildArgv([]string{"/bin/bash", "-x"}, "run.sh", []string{"--flag", "value"})
	assert.Equal(t, []string{"/bin/bash", "-x", "run.sh", "--flag", "value"}, argv)
}

func TestTraceEnv_ReplacesInheritedPS4(t *testing.T) {
	t.Parallel()

	base := []string{"HOME=/root", "PS4=+ ", "BASH_ENV=/etc/rc", "PATH=/bin"}

	env := shell.TraceEnv(base, "/tmp/shcov-rc.sh")

	assert.Equal(t, []string{
		"HOME=/root", "PATH=/bin", "PS4=" + trace.PS4, "BASH_ENV=/tmp/shcov-rc.sh",
	}, env)
	assert.Equal(t, "PS4=+ ", base[1])
}

func TestStartupScript(t *testing.T) {
	t.Parallel()

	plain := shell.StartupScript("")
	assert.True(t, strings.HasPrefix(plain, "{ PS4='"+trace.PS4+"'; "), plain)
	assert.Contains(t, plain, "set +x; } 2>/dev/null\n")
	assert.NotContains(t, plain, "\n. ")

	chained := shell.StartupScript("/home/o'neil/.bashrc")
	assert.Contains(t, chained, "\n. '/home/o'\\''neil/.bashrc'\n")
}

func TestRun_ChainsInheritedBashEnv(t *testing.T) {
	t.Parallel()

	bash := requireBash(t)
	rc := writeScript(t, "export SHCOV_TEST_GREETING=hi\n")
	script := writeScript(t, "echo \"$SHCOV_TEST_GREETING\"\n")

	var stdout bytes.Buffer

	runner := &shell.Runner{
		Shell:   []string{bash},
		Stdout:  &stdout,
		Environ: []string{"PATH=" + os.Getenv("PATH"), "BASH_ENV=" + rc},
	}

	code, err := runner.Run(context.Background(), script, nil, func(r io.Reader) error {
		_, copyErr := io.Copy(io.Discard, r)

		return copyErr
	})
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Equal(t, "hi\n", stdout.String())
}

func TestRun_StreamsStderrAndReturnsExitCode(t *testing.T) {
	t.Parallel()

	bash := requireBash(t)
	script := writeScript(t, "#!/bin/bash\necho out\necho err >&2\nexit 3\n")

	var stdout bytes.Buffer

	runner := &shell.Runner{Shell: []string{bash, "-x"}, Stdout: &stdout}

	var stderr string

	code, err := runner.Run(context.Background(), script, nil, func(r io.Reader) error {
		data, readErr := io.ReadAll(r)
		stderr = string(data)

		return readErr
	})
	require.NoError(t, err)

	assert.Equal(t, 3, code)
	assert.Equal(t, "out\n", stdout.String())
	assert.Contains(t, stderr, trace.Magic+script+trace.Separator+"2"+trace.Separator)
	assert.Contains(t, stderr, "err\n")
}

func TestRun_PassesScriptArguments(t *testing.T) {
	t.Parallel()

	bash := requireBash(t)
	script := writeScript(t, "echo \"$1-$2\"\n")

	var stdout bytes.Buffer

	runner := &shell.Runner{Shell: []string{bash}, Stdout: &stdout}

	code, err := runner.Run(context.Background(), script, []string{"a", "b"}, func(r io.Reader) error {
		_, copyErr := io.Copy(io.Discard, r)

		return copyErr
	})
	require.NoError(t, err)
	assert.Zero(t, code)
	assert.Equal(t, "a-b\n", stdout.String())
}

func TestRun_ConsumeError_KillsChild(t *testing.T) {
	t.Parallel()

	bash := requireBash(t)
	script := writeScript(t, "echo start >&2\nsleep 30\n")

	boom := errors.New("boom")
	runner := &shell.Runner{Shell: []string{bash}, Stdout: io.Discard}

	code, err := runner.Run(context.Background(), script, nil, func(io.Reader) error {
		return boom
	})
	require.ErrorIs(t, err, shell.ErrConsume)
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 1, code, "aborted, not command-not-found")
}

func TestRun_NestedCommandString_UnresolvablePath(t *testing.T) {
	t.Parallel()

	bash := requireBash(t)
	script := writeScript(t, "bash -x -c 'true'\n")

	reg := coverage.NewRegistry()
	demux := trace.NewDemuxer(io.Discard, reg)
	runner := &shell.Runner{Shell: []string{bash, "-x"}, Stdout: io.Discard}

	code, err := runner.Run(context.Background(), script, nil, demux.Consume)
	require.ErrorIs(t, err, trace.ErrUnresolvablePath)
	assert.ErrorIs(t, err, trace.ErrEmptyPath)
	assert.Equal(t, 1, code)
}

func TestRun_MissingShell_ReturnsError(t *testing.T) {
	t.Parallel()

	runner := &shell.Runner{Shell: []string{filepath.Join(t.TempDir(), "no-such-shell")}}

	code, err := runner.Run(context.Background(), "script.sh", nil, func(io.Reader) error { return nil })
	require.Error(t, err)
	assert.Equal(t, 127, code)
}

func TestRun_EndToEndCoverage(t *testing.T) {
	t.Parallel()

	bash := requireBash(t)
	script := writeScript(t, strings.Join([]string{
		"#!/bin/bash",
		"greet() {",
		"  echo \"hello $1\" >&2",
		"}",
		"greet one",
		"greet two",
		"if false; then",
		"  echo never",
		"fi",
		"",
	}, "\n"))

	canonical, err := trace.CanonicalPath(script)
	require.NoError(t, err)

	var forwarded bytes.Buffer

	reg := coverage.NewRegistry()
	demux := trace.NewDemuxer(&forwarded, reg)
	runner := &shell.Runner{Shell: []string{bash, "-x"}, Stdout: io.Discard}

	code, err := runner.Run(context.Background(), script, nil, demux.Consume)
	require.NoError(t, err)
	assert.Zero(t, code)

	assert.Equal(t, "hello one\nhello two\n", forwarded.String())

	assert.Equal(t, 1, reg.Len(), "startup file stays out of the trace")

	rec, ok := reg.Lookup(canonical)
	require.True(t, ok)
	assert.Equal(t, 9, rec.LineCount())

	hits := rec.Hits()
	assert.Equal(t, uint64(2), hits[2], "function body runs twice")
	assert.Equal(t, uint64(1), hits[4])
	assert.Equal(t, uint64(1), hits[5])
	assert.Zero(t, hits[7], "dead branch")
}
