package policy

import (
	"strings"

	"github.com/grahame/gubinge/pkg/sshagent"
)

// IdentityFilter rewrites an SSH2_AGENT_IDENTITIES_ANSWER body before it
// reaches the client -- the extension point where a policy may remove
// keys from the identity list the upstream agent reports.
// DefaultIdentityFilter keeps everything, and DenylistIdentityFilter
// provides a real filtering implementation on top of it.
type IdentityFilter func(ids []sshagent.Identity) []sshagent.Identity

// DefaultIdentityFilter keeps every identity, which is the behaviour
// expected when no identity denylist is configured.
func DefaultIdentityFilter(ids []sshagent.Identity) []sshagent.Identity {
	return ids
}

// DenylistIdentityFilter drops any identity whose comment contains one of
// the given substrings (case-insensitive). An empty denylist behaves
// exactly like DefaultIdentityFilter.
func DenylistIdentityFilter(denylist []string) IdentityFilter {
	lowered := make([]string, len(denylist))
	for i, s := range denylist {
		lowered[i] = strings.ToLower(s)
	}
	return func(ids []sshagent.Identity) []sshagent.Identity {
		if len(lowered) == 0 {
			return ids
		}
		kept := make([]sshagent.Identity, 0, len(ids))
		for _, id := range ids {
			comment := strings.ToLower(id.Comment)
			denied := false
			for _, d := range lowered {
				if strings.Contains(comment, d) {
					denied = true
					break
				}
			}
			if !denied {
				kept = append(kept, id)
			}
		}
		return kept
	}
}

// AsTransform adapts an IdentityFilter into the Transform a ResponderUpstream
// applies to the raw IDENTITIES_ANSWER payload: parse, filter, re-encode,
// recomputing num_keys to match the filtered set. A reply that is not an
// IDENTITIES_ANSWER (a locked agent answers SSH_AGENT_FAILURE, for
// instance) passes through untouched.
func (f IdentityFilter) AsTransform() Transform {
	return func(payload []byte) ([]byte, error) {
		if len(payload) < 1 || sshagent.Opcode(payload[0]) != sshagent.SSH2AgentIdentitiesAnswer {
			return payload, nil
		}
		ids, err := sshagent.ParseIdentitiesAnswer(payload[1:])
		if err != nil {
			return nil, err
		}
		filtered := f(ids)
		return sshagent.EncodeIdentitiesAnswer(filtered), nil
	}
}
