package cel

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"github.com/cespare/xxhash/v2"
	celruntime "github.com/google/cel-go/cel"

	"github.com/grahame/gubinge/internal/domain/policy"
)

// Rule is one operator-configured overlay rule: a CEL boolean expression
// and the action it replaces the engine's default with when it matches.
type Rule struct {
	Expression string
	Action     policy.ActionKind
}

type compiledRule struct {
	program celruntime.Program
	action  policy.ActionKind
	source  string
}

// Overlay evaluates an ordered list of compiled Rules against each
// message and implements policy.Overlay. Rules are tried in order; the
// first match wins.
type Overlay struct {
	evaluator *Evaluator
	rules     []compiledRule
}

// NewOverlay compiles rules against the overlay environment. It fails
// closed: if any rule does not compile, no Overlay is returned, so a
// configuration error cannot silently disable part of the policy.
func NewOverlay(rules []Rule) (*Overlay, error) {
	evaluator, err := NewEvaluator()
	if err != nil {
		return nil, err
	}

	compiled := make([]compiledRule, 0, len(rules))
	for _, r := range rules {
		prg, err := evaluator.Compile(r.Expression)
		if err != nil {
			return nil, fmt.Errorf("overlay rule %q: %w", r.Expression, err)
		}
		compiled = append(compiled, compiledRule{program: prg, action: r.Action, source: r.Expression})
	}
	return &Overlay{evaluator: evaluator, rules: compiled}, nil
}

// Override implements policy.Overlay.
func (o *Overlay) Override(evalCtx policy.EvaluationContext) (policy.Action, bool) {
	for _, rule := range o.rules {
		matched, err := o.evaluator.Evaluate(rule.program, evalCtx)
		if err != nil || !matched {
			continue
		}
		return policy.Action{Kind: rule.action}, true
	}
	return policy.Action{}, false
}

// Fingerprint returns a short, stable hex digest of the compiled rule
// set's source text and target actions. The startup log line reports
// this instead of the rule text itself, so an
// operator can tell whether two running instances share a rule set
// without echoing (possibly sensitive) overlay expressions into logs.
func (o *Overlay) Fingerprint() string {
	lines := make([]string, len(o.rules))
	for i, r := range o.rules {
		lines[i] = r.source + "=>" + r.action.String()
	}
	sort.Strings(lines)
	h := xxhash.New()
	_, _ = h.WriteString(strings.Join(lines, "\n"))
	return strconv.FormatUint(h.Sum64(), 16)
}
