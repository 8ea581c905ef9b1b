package condition

import (
	stderrors "errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/ast"
	"github.com/expr-lang/expr/vm"
	"github.com/tombee/rulegen/pkg/errors"
)

// ErrUnresolved indicates the condition references identifiers that are not
// present in the variables.
var ErrUnresolved = stderrors.New("condition references unknown identifiers")

// UnresolvedError lists the identifiers that could not be resolved.
type UnresolvedError struct {
	Identifiers []string
}

func (e *UnresolvedError) Error() string {
	return fmt.Sprintf("%s: %s", ErrUnresolved, strings.Join(e.Identifiers, ", "))
}

// Is reports whether target is ErrUnresolved.
func (e *UnresolvedError) Is(target error) bool { return target == ErrUnresolved }

type compiled struct {
	program *vm.Program
	idents  []string
}

// Evaluator evaluates rule conditions against runtime variables. Compiled
// programs are cached by source text. It is safe for concurrent use.
type Evaluator struct {
	cache map[string]*compiled
	mu    sync.RWMutex
}

// New creates a new condition evaluator.
func New() *Evaluator {
	return &Evaluator{cache: make(map[string]*compiled)}
}

// Evaluate evaluates condition against vars. Variable names may be given
// with or without their leading "$". An empty condition is true.
func (e *Evaluator) Evaluate(condition string, vars map[string]any) (bool, error) {
	if strings.TrimSpace(condition) == "" {
		return true, nil
	}

	c, err := e.compile(condition)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("failed to compile condition: %s", err.Error()),
			Suggestion: "check condition syntax; combine clauses with AND, OR and NOT",
		}
	}

	env := make(map[string]any, len(vars)+len(functions))
	for k, v := range vars {
		env[strings.TrimPrefix(k, "$")] = v
	}

	var missing []string
	for _, id := range c.idents {
		if _, ok := env[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return false, &UnresolvedError{Identifiers: missing}
	}

	for name, fn := range functions {
		env[name] = fn
	}

	result, err := expr.Run(c.program, env)
	if err != nil {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("condition evaluation failed: %s", err.Error()),
			Suggestion: "verify the referenced variables have the expected types",
		}
	}

	b, ok := result.(bool)
	if !ok {
		return false, &errors.ValidationError{
			Field:      "condition",
			Message:    fmt.Sprintf("condition must return boolean, got %T (%v)", result, result),
			Suggestion: "use comparison operators (==, !=, <, >, etc.) or boolean functions",
		}
	}
	return b, nil
}

func (e *Evaluator) compile(condition string) (*compiled, error) {
	e.mu.RLock()
	if c, ok := e.cache[condition]; ok {
		e.mu.RUnlock()
		return c, nil
	}
	e.mu.RUnlock()

	env := make(map[string]any, len(functions))
	for name, fn := range functions {
		env[name] = fn
	}

	collector := &identCollector{idents: map[string]struct{}{}, callees: map[string]struct{}{}}
	prog, err := expr.Compile(Rewrite(condition),
		expr.Env(env),
		expr.AllowUndefinedVariables(),
		expr.AsBool(),
		expr.Patch(collector),
	)
	if err != nil {
		return nil, err
	}

	c := &compiled{program: prog, idents: collector.roots()}

	e.mu.Lock()
	e.cache[condition] = c
	e.mu.Unlock()
	return c, nil
}

// CacheSize returns the number of cached conditions.
func (e *Evaluator) CacheSize() int {
	e.mu.RLock()
	defer e.mu.RUnlock()
	return len(e.cache)
}

// identCollector records identifiers that must come from the variables.
type identCollector struct {
	idents  map[string]struct{}
	callees map[string]struct{}
}

func (c *identCollector) Visit(node *ast.Node) {
	switch n := (*node).(type) {
	case *ast.IdentifierNode:
		c.idents[n.Value] = struct{}{}
	case *ast.CallNode:
		if id, ok := n.Callee.(*ast.IdentifierNode); ok {
			c.callees[id.Value] = struct{}{}
		}
	}
}

func (c *identCollector) roots() []string {
	out := make([]string, 0, len(c.idents))
	for id := range c.idents {
		if _, isCall := c.callees[id]; isCall {
			continue
		}
		if _, isFunc := functions[id]; isFunc {
			continue
		}
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
