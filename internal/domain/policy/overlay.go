package policy

import "github.com/grahame/gubinge/pkg/sshagent"

// Overlay is an extension point that lets an operator override the
// engine's default action for a message without touching Classify. It is
// consulted after Classify, never instead of it, and an implementation
// must be side-effect free: the connection pipeline (see the service
// package) calls it on its client-read goroutine for every client
// message, so it must not block or perform I/O.
//
// A nil Overlay (or one that never matches) reproduces the default table
// exactly, which is what every connection gets by default.
type Overlay interface {
	// Override returns the replacement action for evalCtx and true if a
	// rule matched, or the zero Action and false if the default from
	// Classify should stand.
	Override(evalCtx EvaluationContext) (Action, bool)
}

// ClassifyWithOverlay applies Classify and then, if overlay is non-nil,
// lets it replace the result for this specific message's opcode.
func ClassifyWithOverlay(m sshagent.Message, overlay Overlay) Action {
	action := Classify(m)
	if overlay == nil {
		return action
	}
	if override, matched := overlay.Override(EvaluationContext{Opcode: m.Opcode, Direction: m.Direction}); matched {
		return override
	}
	return action
}
