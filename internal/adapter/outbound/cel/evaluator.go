// Package cel adapts google/cel-go into the policy overlay: a small,
// read-only CEL environment over a message's opcode and direction, so an
// operator can override the engine's default action from configuration
// instead of a code change.
package cel

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/cel-go/cel"

	"github.com/grahame/gubinge/internal/domain/policy"
)

// maxExpressionLength is the maximum allowed length for an overlay rule's
// CEL expression.
const maxExpressionLength = 1024

// maxCostBudget is the CEL runtime cost limit, preventing a pathological
// rule expression from spinning on every classified message.
const maxCostBudget = 10_000

// evalTimeout bounds a single rule evaluation; classification happens on
// the hot path of every message so a hung expression must not be able to
// stall the connection pipeline indefinitely.
const evalTimeout = 50 * time.Millisecond

// Evaluator compiles and evaluates the overlay rule expressions against
// NewOverlayEnvironment's single boolean-over-opcode/direction shape.
type Evaluator struct {
	env *cel.Env
}

// NewEvaluator creates an Evaluator bound to the overlay environment.
func NewEvaluator() (*Evaluator, error) {
	env, err := NewOverlayEnvironment()
	if err != nil {
		return nil, fmt.Errorf("failed to create overlay environment: %w", err)
	}
	return &Evaluator{env: env}, nil
}

// Compile parses, type-checks, and optimises a rule expression.
func (e *Evaluator) Compile(expression string) (cel.Program, error) {
	if len(expression) > maxExpressionLength {
		return nil, fmt.Errorf("expression too long: %d characters (max %d)", len(expression), maxExpressionLength)
	}
	if expression == "" {
		return nil, errors.New("expression is empty")
	}

	ast, issues := e.env.Compile(expression)
	if issues != nil && issues.Err() != nil {
		return nil, fmt.Errorf("compilation failed: %w", issues.Err())
	}

	prg, err := e.env.Program(ast,
		cel.EvalOptions(cel.OptOptimize),
		cel.CostLimit(maxCostBudget),
	)
	if err != nil {
		return nil, fmt.Errorf("program creation failed: %w", err)
	}
	return prg, nil
}

// Evaluate runs a compiled rule program against evalCtx and returns
// whether it matched.
func (e *Evaluator) Evaluate(prg cel.Program, evalCtx policy.EvaluationContext) (bool, error) {
	activation := BuildActivation(evalCtx)

	ctx, cancel := context.WithTimeout(context.Background(), evalTimeout)
	defer cancel()

	result, _, err := prg.ContextEval(ctx, activation)
	if err != nil {
		return false, fmt.Errorf("evaluation failed: %w", err)
	}

	matched, ok := result.Value().(bool)
	if !ok {
		return false, fmt.Errorf("rule expression did not return a boolean, got %T", result.Value())
	}
	return matched, nil
}
