// Package policy implements the proxy's per-message policy engine: a
// pure function from a classified agent message to an Action, plus two
// extension points -- the identities filter hook and an optional
// operator-supplied overlay.
package policy

import "github.com/grahame/gubinge/pkg/sshagent"

// ActionKind enumerates the six policy decisions a client message can
// produce. The set is closed; there is no behaviour here that needs
// run-time polymorphism, so a tagged value is simpler than an interface
// hierarchy and keeps Classify a pure function over a small value type.
type ActionKind int

const (
	SynthEmptyRsaIdentities ActionKind = iota
	FilterIdentitiesAction
	CheckSign
	Drop
	ProxyVerbatim
	SynthFailure
)

func (k ActionKind) String() string {
	switch k {
	case SynthEmptyRsaIdentities:
		return "synth_empty_rsa_identities"
	case FilterIdentitiesAction:
		return "filter_identities"
	case CheckSign:
		return "check_sign"
	case Drop:
		return "drop"
	case ProxyVerbatim:
		return "proxy_verbatim"
	case SynthFailure:
		return "synth_failure"
	default:
		return "unknown"
	}
}

// Action is the policy engine's decision for one client message.
type Action struct {
	Kind ActionKind
}

// ParseActionKind looks up the ActionKind whose String() matches name,
// for building overlay rules from configuration text.
func ParseActionKind(name string) (ActionKind, bool) {
	switch name {
	case SynthEmptyRsaIdentities.String():
		return SynthEmptyRsaIdentities, true
	case FilterIdentitiesAction.String():
		return FilterIdentitiesAction, true
	case CheckSign.String():
		return CheckSign, true
	case Drop.String():
		return Drop, true
	case ProxyVerbatim.String():
		return ProxyVerbatim, true
	case SynthFailure.String():
		return SynthFailure, true
	default:
		return 0, false
	}
}

// ResponderKind distinguishes the two ways a queued responder can produce
// its one reply to the client.
type ResponderKind int

const (
	// ResponderFixed carries a complete payload; executing it requires no
	// upstream input.
	ResponderFixed ResponderKind = iota
	// ResponderUpstream consumes the next upstream reply when executed.
	ResponderUpstream
)

// Transform is applied to an upstream reply's payload before it is
// written to the client, for Upstream responders that need to inspect or
// rewrite the body (the identities filter hook). A nil Transform is the
// identity function.
type Transform func(payload []byte) ([]byte, error)

// Responder describes how one pending reply to the client will be
// produced. It is single-shot: executing it consumes it, which in this
// implementation just means the pipeline removes it from the pending
// queue before running it.
type Responder struct {
	Kind      ResponderKind
	Fixed     []byte
	Transform Transform
}

// Act executes the given Action against message m, returning the bytes to
// forward upstream (nil if none) and the responder to enqueue (nil if
// none). It performs no I/O itself -- the caller (the connection
// pipeline) is responsible for the actual upstream write and for
// enqueuing the responder under its queue mutex.
func Act(action Action, m sshagent.Message, filterIdentities Transform) (upstreamWrite []byte, responder *Responder) {
	switch action.Kind {
	case SynthEmptyRsaIdentities:
		return nil, &Responder{Kind: ResponderFixed, Fixed: sshagent.EncodeEmptyRSAIdentities()}
	case FilterIdentitiesAction:
		return m.Payload, &Responder{Kind: ResponderUpstream, Transform: filterIdentities}
	case CheckSign:
		return m.Payload, &Responder{Kind: ResponderUpstream}
	case Drop:
		return nil, nil
	case ProxyVerbatim:
		return m.Payload, &Responder{Kind: ResponderUpstream}
	case SynthFailure:
		return nil, &Responder{Kind: ResponderFixed, Fixed: sshagent.EncodeFailure()}
	default:
		return nil, &Responder{Kind: ResponderFixed, Fixed: sshagent.EncodeFailure()}
	}
}
