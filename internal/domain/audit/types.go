// Package audit contains domain types for the connection audit trail.
package audit

import "time"

// Record is one auditable event on a connection: a message was classified
// and an action taken. Recorded observations only; audit never feeds back
// into the policy decision for the message it describes.
type Record struct {
	// Timestamp is when the message was classified.
	Timestamp time.Time `json:"timestamp"`
	// BootID identifies the running gubinge process, stable across all of
	// its connections and reset on restart.
	BootID string `json:"boot_id"`
	// ConnID is the per-connection sequence number issued by the listener.
	ConnID uint64 `json:"conn_id"`
	// Seq is the message's position within its connection, starting at 1.
	Seq uint64 `json:"seq"`
	// Direction is "client->agent" or "agent->client".
	Direction string `json:"direction"`
	// Opcode is the message's opcode name, e.g. "SSH2_AGENTC_SIGN_REQUEST".
	Opcode string `json:"opcode"`
	// Action is the policy action taken for the message, e.g. "check_sign".
	Action string `json:"action"`
}
