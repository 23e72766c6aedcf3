package cel

import (
	"github.com/google/cel-go/common/types"
	"github.com/google/cel-go/common/types/ref"

	"github.com/grahame/gubinge/pkg/sshagent"
)

// opcodeNameBinding implements the opcode_name(int) -> string CEL
// function, letting overlay rules reference protocol constant names
// (e.g. "SSH2_AGENTC_ADD_IDENTITY") instead of bare numbers.
func opcodeNameBinding(val ref.Val) ref.Val {
	n, ok := val.Value().(int64)
	if !ok {
		return types.String("")
	}
	return types.String(sshagent.Opcode(n).String())
}
