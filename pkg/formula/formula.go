// Package formula compiles and evaluates custom metric formulas. Formulas
// are expressions over field IDs ("revenue - cost", "clv * 0.2") compiled
// into expr programs. The evaluation environment is built solely from the
// row's values, so a formula can reach arithmetic and the expr builtins
// but never the host: no I/O, no process state, no engine internals.
package formula

import (
	"fmt"
	"sort"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/parser"
	"github.com/expr-lang/expr/vm"

	"github.com/merchlens-io/merchlens-engine/pkg/fields"
	"github.com/merchlens-io/merchlens-engine/pkg/models"
)

// Evaluator is a compiled formula, safe for concurrent use.
type Evaluator struct {
	src     string
	program *vm.Program
}

// Compile parses and compiles a formula. Syntax errors surface here, at
// metric save time, not at evaluation time.
func Compile(src string) (*Evaluator, error) {
	if src == "" {
		return nil, fmt.Errorf("formula is empty")
	}
	program, err := expr.Compile(src)
	if err != nil {
		return nil, fmt.Errorf("invalid formula: %w", err)
	}
	return &Evaluator{src: src, program: program}, nil
}

// Source returns the formula text the evaluator was compiled from.
func (e *Evaluator) Source() string {
	return e.src
}

// Evaluate runs the formula against one row and returns the numeric
// result. Referencing a field the row lacks, or producing a non-numeric
// or non-finite result, is an error; callers surface those as null
// metric values rather than failures.
func (e *Evaluator) Evaluate(row models.Row) (float64, error) {
	out, err := expr.Run(e.program, Env(row))
	if err != nil {
		return 0, fmt.Errorf("formula %q: %w", e.src, err)
	}
	n, ok := fields.ToNumber(out)
	if !ok {
		return 0, fmt.Errorf("formula %q produced non-numeric result %v", e.src, out)
	}
	return n, nil
}

// Env builds the evaluation environment for a row. Values that coerce to
// numbers are exposed as float64 so that formulas work identically over
// CSV imports (string cells) and JSON imports (native numbers); all
// other values pass through unchanged.
func Env(row models.Row) map[string]any {
	env := make(map[string]any, len(row))
	for key, value := range row {
		if n, ok := fields.ToNumber(value); ok {
			env[key] = n
		} else {
			env[key] = value
		}
	}
	return env
}

// Dependencies returns the field IDs a formula references, sorted.
// Extraction walks the parsed AST, so it sees identifiers wherever they
// appear, including inside function calls and conditionals.
func Dependencies(src string) ([]string, error) {
	tree, err := parser.Parse(src)
	if err != nil {
		return nil, fmt.Errorf("invalid formula: %w", err)
	}

	collector := &identifierCollector{seen: make(map[string]bool)}
	ast.Walk(&tree.Node, collector)

	deps := make([]string, 0, len(collector.seen))
	for ident := range collector.seen {
		deps = append(deps, ident)
	}
	sort.Strings(deps)
	return deps, nil
}

type identifierCollector struct {
	seen map[string]bool
}

func (c *identifierCollector) Visit(node *ast.Node) {
	if ident, ok := (*node).(*ast.IdentifierNode); ok {
		c.seen[ident.Value] = true
	}
}
