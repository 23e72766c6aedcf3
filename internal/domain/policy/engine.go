package policy

import "github.com/grahame/gubinge/pkg/sshagent"

// defaultTable is the closed mapping from opcode to Action. It is
// consulted first by Classify for every message; Overlay (see overlay.go)
// may replace its result for a given opcode.
var defaultTable = map[sshagent.Opcode]ActionKind{
	sshagent.SSHAgentcRequestRSAIdentities:   SynthEmptyRsaIdentities,
	sshagent.SSH2AgentcRequestIdentities:     FilterIdentitiesAction,
	sshagent.SSH2AgentcSignRequest:           CheckSign,
	sshagent.SSHAgentFailure:                 Drop,
	sshagent.SSHAgentSuccess:                 Drop,
	sshagent.SSH2AgentcAddIdentity:           ProxyVerbatim,
	sshagent.SSH2AgentcRemoveIdentity:        ProxyVerbatim,
	sshagent.SSH2AgentcRemoveAllIdentities:   ProxyVerbatim,
	sshagent.SSH2AgentcAddIDConstrained:      ProxyVerbatim,
}

// Classify is the policy engine: a pure function from a message's opcode
// to an Action. It has no state -- every decision depends only on the
// message's opcode. Any recognised opcode with no explicit table entry
// defaults to SynthFailure.
func Classify(m sshagent.Message) Action {
	if kind, ok := defaultTable[m.Opcode]; ok {
		return Action{Kind: kind}
	}
	return Action{Kind: SynthFailure}
}
