package policy

import "github.com/grahame/gubinge/pkg/sshagent"

// EvaluationContext is the read-only activation an Overlay rule is
// evaluated against. It deliberately carries only what the core
// classifier itself is allowed to depend on -- the opcode and its
// direction -- so an overlay rule can never reach into message bodies or
// connection state the pure engine doesn't see.
type EvaluationContext struct {
	Opcode    sshagent.Opcode
	Direction sshagent.Direction
}
