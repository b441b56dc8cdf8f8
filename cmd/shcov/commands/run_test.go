package commands_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/shcov/cmd/shcov/commands"
	"github.com/Sumatoshi-tech/shcov/pkg/trace"
)

const twoLineScript = "echo one\necho two >&2\n"

func TestRun_RecordsAndAccumulatesCoverage(t *testing.T) {
	t.Parallel()

	sh := requireBash(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	script := writeFile(t, dir, "s.sh", twoLineScript)

	first := execute(t, "run", "-o", out, "-s", sh, script)
	require.NoError(t, first.err)
	assert.Equal(t, "one\n", first.stdout)
	assert.Equal(t, "two\n", first.stderr)
	assert.NotContains(t, first.stderr, trace.Magic)

	require.NoError(t, execute(t, "run", "-o", out, "-s", sh, script).err)

	doc := loadJSONDocument(t, filepath.Join(out, "coverage.json"))
	entry := entryFor(t, doc, script)
	assert.Equal(t, 2, entry.Lines)
	assert.Equal(t, []uint64{2, 2}, entry.Hits)
}

func TestRun_NoMerge_ReplacesData(t *testing.T) {
	t.Parallel()

	sh := requireBash(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	script := writeFile(t, dir, "s.sh", twoLineScript)

	require.NoError(t, execute(t, "run", "-o", out, "-s", sh, script).err)
	require.NoError(t, execute(t, "run", "-o", out, "-s", sh, "--no-merge", script).err)

	doc := loadJSONDocument(t, filepath.Join(out, "coverage.json"))
	assert.Equal(t, []uint64{1, 1}, entryFor(t, doc, script).Hits)
}

func TestRun_ChangedSource_DropsStaleCoverage(t *testing.T) {
	t.Parallel()

	sh := requireBash(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	script := writeFile(t, dir, "s.sh", twoLineScript)

	require.NoError(t, execute(t, "run", "-o", out, "-s", sh, script).err)

	writeFile(t, dir, "s.sh", "echo changed\n")

	second := execute(t, "run", "-o", out, "-s", sh, script)
	require.NoError(t, second.err)
	assert.Contains(t, second.stderr, "dropping stale coverage")

	doc := loadJSONDocument(t, filepath.Join(out, "coverage.json"))
	assert.Equal(t, []uint64{1}, entryFor(t, doc, script).Hits)
}

func TestRun_ScriptArguments_FollowScriptPath(t *testing.T) {
	t.Parallel()

	sh := requireBash(t)
	dir := t.TempDir()
	script := writeFile(t, dir, "args.sh", "echo \"$1 $2\"\n")

	res := execute(t, "run", "-o", filepath.Join(dir, "out"), "-s", sh, script, "-o", "--flag")
	require.NoError(t, res.err)
	assert.Equal(t, "-o --flag\n", res.stdout)
}

func TestRun_NonZeroExit_PropagatesAndSaves(t *testing.T) {
	t.Parallel()

	sh := requireBash(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	script := writeFile(t, dir, "fail.sh", "true\nexit 3\n")

	res := execute(t, "run", "-o", out, "-s", sh, script)

	var exitErr *commands.ExitError
	require.ErrorAs(t, res.err, &exitErr)
	assert.Equal(t, 3, exitErr.Code)

	doc := loadJSONDocument(t, filepath.Join(out, "coverage.json"))
	assert.Equal(t, []uint64{1, 1}, entryFor(t, doc, script).Hits)
}

func TestRun_YAMLFormat(t *testing.T) {
	t.Parallel()

	sh := requireBash(t)
	dir := t.TempDir()
	out := filepath.Join(dir, "out")
	script := writeFile(t, dir, "s.sh", twoLineScript)

	require.NoError(t, execute(t, "run", "-o", out, "-s", sh, "--format", "yaml", script).err)

	data, err := os.ReadFile(filepath.Join(out, "coverage.yaml"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "hits: [1, 1]")
}

func TestRun_MetricsTextfile(t *testing.T) {
	t.Parallel()

	sh := requireBash(t)
	dir := t.TempDir()
	script := writeFile(t, dir, "s.sh", twoLineScript)
	prom := filepath.Join(dir, "shcov.prom")

	res := execute(t, "run", "-o", filepath.Join(dir, "out"), "-s", sh, "--metrics-textfile", prom, script)
	require.NoError(t, res.err)

	data, err := os.ReadFile(prom)
	require.NoError(t, err)
	assert.Contains(t, string(data), "shcov_runs")
	assert.Contains(t, string(data), "shcov_trace_marker_lines")
}

func TestRun_InvalidFormat_ReturnsError(t *testing.T) {
	t.Parallel()

	res := execute(t, "run", "--format", "xml", "script.sh")
	require.Error(t, res.err)
	assert.Contains(t, res.err.Error(), "output.format")
}

func TestRun_MissingScriptArgument(t *testing.T) {
	t.Parallel()

	assert.Error(t, execute(t, "run").err)
}
