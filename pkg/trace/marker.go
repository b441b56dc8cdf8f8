package trace

import (
	"fmt"
	"path/filepath"
	"strings"
)

// Protocol tokens shared with the instrumented shell.
const (
	// Magic marks a trace line.
	Magic = "SHCOV:::"
	// Separator delimits the marker fields.
	Separator = ":::"
	// PS4 is the bash trace prefix producing marker lines.
	PS4 = Magic + "${BASH_SOURCE}" + Separator + "${LINENO}" + Separator + " SHCOV:"
)

// Marker holds the raw fields of a marker line.
type Marker struct {
	// Source is the path as reported by the shell, not yet resolved.
	Source string
	// Line is the unparsed line number text.
	Line string
}

// IsMarker reports whether line carries the magic token.
func IsMarker(line string) bool {
	return strings.Contains(line, Magic)
}

// StripMagic returns what follows the first magic token in line.
func StripMagic(line string) string {
	_, rest, _ := strings.Cut(line, Magic)

	return rest
}

// CountQuotes counts single-quote characters in s.
func CountQuotes(s string) int {
	return strings.Count(s, "'")
}

// ParseMarker extracts the source path and line number fields of a marker
// line. The trailer after the second separator is discarded.
func ParseMarker(line string) (Marker, error) {
	rest := StripMagic(line)

	source, rest, ok := strings.Cut(rest, Separator)
	if !ok {
		return Marker{}, fmt.Errorf("%w: no source field in %q", ErrGarbledLine, strings.TrimRight(line, "\r\n"))
	}

	lineNo, _, ok := strings.Cut(rest, Separator)
	if !ok {
		return Marker{}, fmt.Errorf("%w: no line number field in %q", ErrGarbledLine, strings.TrimRight(line, "\r\n"))
	}

	return Marker{Source: source, Line: lineNo}, nil
}

// CanonicalPath resolves p to an absolute path with all symlinks followed.
// The target must exist. An empty p, as reported for "bash -c" commands, is
// ErrEmptyPath.
func CanonicalPath(p string) (string, error) {
	if p == "" {
		return "", ErrEmptyPath
	}

	resolved, err := filepath.EvalSymlinks(p)
	if err != nil {
		return "", fmt.Errorf("eval symlinks: %w", err)
	}

	abs, err := filepath.Abs(resolved)
	if err != nil {
		return "", fmt.Errorf("absolute path: %w", err)
	}

	return abs, nil
}
