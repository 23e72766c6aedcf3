package sshagent

import (
	"encoding/binary"
	"fmt"
)

// Identity is one entry of a parsed SSH2_AGENT_IDENTITIES_ANSWER body: a
// key blob and its comment.
type Identity struct {
	Blob    []byte
	Comment string
}

// ParseIdentitiesAnswer decodes the body of an SSH2_AGENT_IDENTITIES_ANSWER
// message (opcode byte already stripped by the caller) into its key list:
//
//	U32BE num_keys, then num_keys * (U32BE blob_len ∥ blob) ∥ (U32BE comment_len ∥ comment)
func ParseIdentitiesAnswer(body []byte) ([]Identity, error) {
	if len(body) < 4 {
		return nil, fmt.Errorf("%w: identities answer body too short", ErrMessageInvalid)
	}
	numKeys := binary.BigEndian.Uint32(body[:4])
	rest := body[4:]

	ids := make([]Identity, 0, numKeys)
	for i := uint32(0); i < numKeys; i++ {
		blob, tail, err := readLengthPrefixed(rest)
		if err != nil {
			return nil, err
		}
		comment, tail, err := readLengthPrefixed(tail)
		if err != nil {
			return nil, err
		}
		ids = append(ids, Identity{Blob: blob, Comment: string(comment)})
		rest = tail
	}
	return ids, nil
}

// EncodeIdentitiesAnswer rebuilds an SSH2_AGENT_IDENTITIES_ANSWER payload
// (including its opcode byte) from a key list, recomputing num_keys to
// match the entries actually present.
func EncodeIdentitiesAnswer(ids []Identity) []byte {
	size := 1 + 4
	for _, id := range ids {
		size += 4 + len(id.Blob) + 4 + len(id.Comment)
	}
	out := make([]byte, size)
	out[0] = byte(SSH2AgentIdentitiesAnswer)
	binary.BigEndian.PutUint32(out[1:5], uint32(len(ids)))
	off := 5
	for _, id := range ids {
		binary.BigEndian.PutUint32(out[off:], uint32(len(id.Blob)))
		off += 4
		off += copy(out[off:], id.Blob)
		binary.BigEndian.PutUint32(out[off:], uint32(len(id.Comment)))
		off += 4
		off += copy(out[off:], id.Comment)
	}
	return out
}

func readLengthPrefixed(buf []byte) (value []byte, rest []byte, err error) {
	if len(buf) < 4 {
		return nil, nil, fmt.Errorf("%w: truncated length-prefixed field", ErrMessageInvalid)
	}
	n := binary.BigEndian.Uint32(buf[:4])
	if uint32(len(buf)-4) < n {
		return nil, nil, fmt.Errorf("%w: truncated length-prefixed field", ErrMessageInvalid)
	}
	return buf[4 : 4+n], buf[4+n:], nil
}
