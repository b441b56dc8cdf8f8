// Package syntax parses bash sources with tree-sitter to find the lines the
// shell can report in an xtrace stream.
package syntax

import (
	"context"
	"errors"
	"fmt"

	"github.com/alexaandru/go-sitter-forest/bash"
	sitter "github.com/alexaandru/go-tree-sitter-bare"

	"github.com/Sumatoshi-tech/shcov/pkg/textutil"
)

// ErrNoRootNode is returned when the parser produces an empty tree.
var ErrNoRootNode = errors.New("bash parser: no root node")

// traceable lists node kinds the shell announces with a PS4 line. Compound
// statements are covered through their condition and body commands; their
// closing keywords (fi, done, esac, braces) never appear in a trace.
var traceable = map[string]bool{
	"command":               true,
	"declaration_command":   true,
	"unset_command":         true,
	"test_command":          true,
	"variable_assignment":   true,
	"for_statement":         true,
	"c_style_for_statement": true,
	"case_statement":        true,
}

// ExecutableLines reports, for each line of source, whether a traceable
// command starts on it. The result has textutil.CountLines(source) entries.
func ExecutableLines(ctx context.Context, source []byte) ([]bool, error) {
	lines := make([]bool, textutil.CountLines(source))
	if len(lines) == 0 {
		return lines, nil
	}

	parser := sitter.NewParser()
	parser.SetLanguage(sitter.NewLanguage(bash.GetLanguage()))

	tree, err := parser.ParseString(ctx, nil, source)
	if err != nil {
		return nil, fmt.Errorf("parse bash: %w", err)
	}
	defer tree.Close()

	root := tree.RootNode()
	if root.IsNull() {
		return nil, ErrNoRootNode
	}

	mark(root, lines)

	return lines, nil
}

func mark(n sitter.Node, lines []bool) {
	if traceable[n.Type()] {
		row := int(n.StartPoint().Row) //nolint:gosec // tree-sitter coordinates fit in int
		if row < len(lines) {
			lines[row] = true
		}
	}

	for idx := range n.NamedChildCount() {
		mark(n.NamedChild(idx), lines)
	}
}
