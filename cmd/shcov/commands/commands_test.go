package commands_test

import (
	"bytes"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/Sumatoshi-tech/shcov/cmd/shcov/commands"
	"github.com/Sumatoshi-tech/shcov/pkg/persist"
	"github.com/Sumatoshi-tech/shcov/pkg/trace"
)

type result struct {
	stdout string
	stderr string
	err    error
}

// execute runs the root command with an empty config file so that no
// user-level .shcov.yaml leaks into the test.
func execute(t *testing.T, args ...string) result {
	t.Helper()

	cfgPath := filepath.Join(t.TempDir(), "shcov.yaml")
	require.NoError(t, os.WriteFile(cfgPath, []byte("logging:\n  level: warn\n"), 0o600))

	var stdout, stderr bytes.Buffer

	root := commands.NewRootCommand()
	root.SetArgs(append([]string{args[0], "--config=" + cfgPath}, args[1:]...))
	root.SetIn(strings.NewReader(""))
	root.SetOut(&stdout)
	root.SetErr(&stderr)

	err := root.Execute()

	return result{stdout: stdout.String(), stderr: stderr.String(), err: err}
}

func requireBash(t *testing.T) string {
	t.Helper()

	bash, err := exec.LookPath("bash")
	if err != nil {
		t.Skip("bash not available")
	}

	return bash + " -x"
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()

	path := filepath.Join(dir, name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	canonical, err := trace.CanonicalPath(path)
	require.NoError(t, err)

	return canonical
}

func loadJSONDocument(t *testing.T, path string) persist.Document {
	t.Helper()

	var doc persist.Document

	require.NoError(t, persist.LoadFile(path, persist.NewDocumentJSONCodec(), &doc))

	return doc
}

func entryFor(t *testing.T, doc persist.Document, path string) persist.FileEntry {
	t.Helper()

	for _, entry := range doc.Files {
		if entry.Path == path {
			return entry
		}
	}

	require.Failf(t, "missing entry", "no coverage entry for %s in %v", path, doc.Files)

	return persist.FileEntry{}
}
