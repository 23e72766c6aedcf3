package cel

import (
	"github.com/google/cel-go/cel"
	"github.com/google/cel-go/ext"

	"github.com/grahame/gubinge/internal/domain/policy"
)

// NewOverlayEnvironment creates the CEL environment overlay rules compile
// against. It is intentionally narrow: the pure core classifier only
// ever sees a message's opcode and direction, so that is all an overlay
// rule may reference. "opcode" is exposed both as its numeric value and,
// via the opcode_name function, its protocol constant name so rules read
// like `opcode == 17 || opcode_name(opcode) == "SSH2_AGENTC_ADD_IDENTITY"`.
func NewOverlayEnvironment() (*cel.Env, error) {
	return cel.NewEnv(
		ext.Strings(),

		cel.Variable("opcode", cel.IntType),
		cel.Variable("direction", cel.StringType),

		cel.Function("opcode_name",
			cel.Overload("opcode_name_int",
				[]*cel.Type{cel.IntType},
				cel.StringType,
				cel.UnaryBinding(opcodeNameBinding),
			),
		),
	)
}

// BuildActivation converts an EvaluationContext into the CEL activation
// map an overlay program is evaluated against.
func BuildActivation(evalCtx policy.EvaluationContext) map[string]any {
	return map[string]any{
		"opcode":    int64(evalCtx.Opcode),
		"direction": evalCtx.Direction.String(),
	}
}
