// Package shell launches a script under a tracing shell and streams its
// stderr to a consumer.
package shell

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"strings"

	"github.com/Sumatoshi-tech/shcov/pkg/trace"
)

// ps4Var is the variable bash expands before every traced command.
const ps4Var = "PS4"

// bashEnvVar names the file bash sources before running a non-interactive script.
const bashEnvVar = "BASH_ENV"

// xtraceVar briefly holds the shell's option flags inside the startup file.
const xtraceVar = "shcov_xtrace"

// exitCommandNotRunnable matches the shell's status for a command it cannot execute.
const exitCommandNotRunnable = 127

// exitSignaled is reported when the child was terminated by a signal.
const exitSignaled = 1

// exitAborted is reported when the trace stream failed and the child was killed.
const exitAborted = 1

// Sentinel errors.
var (
	ErrEmptyShell = errors.New("empty shell command")
	ErrConsume    = errors.New("trace stream")
)

// SplitShell splits a shell command line such as "/bin/bash -x" on spaces.
func SplitShell(shell string) ([]string, error) {
	words := strings.Fields(shell)
	if len(words) == 0 {
		return nil, ErrEmptyShell
	}

	return words, nil
}

// BuildArgv returns the shell words followed by the script and its arguments.
func BuildArgv(shell []string, script string, args []string) []string {
	argv := make([]string, 0, len(shell)+1+len(args))
	argv = append(argv, shell...)
	argv = append(argv, script)

	return append(argv, args...)
}

// TraceEnv returns a copy of environ with PS4 set to the marker template and
// BASH_ENV pointing at the startup file rcPath.
func TraceEnv(environ []string, rcPath string) []string {
	env := make([]string, 0, len(environ)+2)

	for _, kv := range environ {
		if strings.HasPrefix(kv, ps4Var+"=") || strings.HasPrefix(kv, bashEnvVar+"=") {
			continue
		}

		env = append(env, kv)
	}

	return append(env, ps4Var+"="+trace.PS4, bashEnvVar+"="+rcPath)
}

// StartupScript returns the BASH_ENV content that sets PS4 from inside the
// shell, then sources prev when the caller already had a BASH_ENV.
// bash ignores an inherited PS4 when running as root. The startup commands
// run with xtrace off so they never reach the trace stream; prev is sourced
// untraced and xtrace is restored afterwards.
func StartupScript(prev string) string {
	var b strings.Builder

	b.WriteString("{ " + ps4Var + "=" + shellQuote(trace.PS4) + "; " + xtraceVar + "=$-; set +x; } 2>/dev/null\n")

	if prev != "" {
		b.WriteString(". " + shellQuote(prev) + "\n")
	}

	b.WriteString("case $" + xtraceVar + " in *x*) unset " + xtraceVar + "; set -x ;; *) unset " + xtraceVar + " ;; esac\n")

	return b.String()
}

func shellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}

func lookupEnv(environ []string, name string) string {
	for _, kv := range environ {
		if value, ok := strings.CutPrefix(kv, name+"="); ok {
			return value
		}
	}

	return ""
}

func writeStartupFile(prev string) (string, error) {
	rc, err := os.CreateTemp("", "shcov-rc-*.sh")
	if err != nil {
		return "", fmt.Errorf("create startup file: %w", err)
	}

	_, err = rc.WriteString(StartupScript(prev))
	closeErr := rc.Close()

	err = errors.Join(err, closeErr)
	if err != nil {
		os.Remove(rc.Name())

		return "", fmt.Errorf("write startup file: %w", err)
	}

	return rc.Name(), nil
}

// ConsumeFunc reads the child's stderr until EOF.
type ConsumeFunc func(stderr io.Reader) error

// Runner executes scripts under a tracing shell.
type Runner struct {
	// Shell is the tracing shell command, e.g. {"/bin/bash", "-x"}.
	Shell []string
	// Stdin and Stdout are handed to the child unchanged.
	Stdin  io.Reader
	Stdout io.Writer
	// Environ is the base environment; nil means os.Environ().
	Environ []string
}

// Run starts script, passes its stderr to consume and waits for it to exit.
// It returns the script's exit status. A consume error kills the child and
// is returned wrapped in ErrConsume with status 1.
func (r *Runner) Run(ctx context.Context, script string, args []string, consume ConsumeFunc) (int, error) {
	if len(r.Shell) == 0 {
		return exitCommandNotRunnable, ErrEmptyShell
	}

	argv := BuildArgv(r.Shell, script, args)

	environ := r.Environ
	if environ == nil {
		environ = os.Environ()
	}

	rcPath, err := writeStartupFile(lookupEnv(environ, bashEnvVar))
	if err != nil {
		return exitCommandNotRunnable, err
	}
	defer os.Remove(rcPath)

	cmd := exec.CommandContext(ctx, argv[0], argv[1:]...)
	cmd.Env = TraceEnv(environ, rcPath)
	cmd.Stdin = r.Stdin
	cmd.Stdout = r.Stdout

	stderr, err := cmd.StderrPipe()
	if err != nil {
		return exitCommandNotRunnable, fmt.Errorf("stderr pipe: %w", err)
	}

	err = cmd.Start()
	if err != nil {
		return exitCommandNotRunnable, fmt.Errorf("start %s: %w", argv[0], err)
	}

	consumeErr := consume(stderr)
	if consumeErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()

		return exitAborted, fmt.Errorf("%w: %w", ErrConsume, consumeErr)
	}

	return exitStatus(cmd.Wait())
}

func exitStatus(err error) (int, error) {
	if err == nil {
		return 0, nil
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) {
		code := exitErr.ExitCode()
		if code < 0 {
			code = exitSignaled
		}

		return code, nil
	}

	return exitCommandNotRunnable, fmt.Errorf("wait: %w", err)
}
