package engine

import (
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/expr-lang/expr"
	"github.com/expr-lang/expr/vm"

	"resource-cache/internal/metadata"
)

// ExprLangEvaluator compiles computed-field expressions with expr-lang/expr.
// Compiled programs are cached by expression string.
type ExprLangEvaluator struct {
	mu    sync.Mutex
	cache map[string]*vm.Program
}

func NewExprLangEvaluator() *ExprLangEvaluator {
	return &ExprLangEvaluator{
		cache: make(map[string]*vm.Program),
	}
}

func (e *ExprLangEvaluator) compile(expression string) (*vm.Program, error) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if prog, ok := e.cache[expression]; ok {
		return prog, nil
	}
	prog, err := expr.Compile(expression)
	if err != nil {
		return nil, errors.Wrapf(err, "compile expression %q", expression)
	}
	e.cache[expression] = prog
	return prog, nil
}

// Evaluate runs an expression against env.
func (e *ExprLangEvaluator) Evaluate(expression string, env map[string]any) (any, error) {
	prog, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	result, err := expr.Run(prog, env)
	if err != nil {
		return nil, errors.Wrapf(err, "evaluate expression %q", expression)
	}
	return result, nil
}

// ComputeFunc compiles expression up front and returns a compute function
// that evaluates it against the entity's stored fields, exposed as
// "record".
func (e *ExprLangEvaluator) ComputeFunc(expression string) (metadata.ComputeFunc, error) {
	prog, err := e.compile(expression)
	if err != nil {
		return nil, err
	}
	return func(entity metadata.Accessor) (any, error) {
		env := map[string]any{"record": entity.Values()}
		result, err := expr.Run(prog, env)
		if err != nil {
			return nil, errors.Wrapf(err, "evaluate expression %q", expression)
		}
		return result, nil
	}, nil
}
