// Package outbound defines the outbound port interfaces the connection
// pipeline depends on: dialing the upstream agent and recording audit
// events. Adapters implement these against concrete transports/backends.
package outbound

import (
	"context"
	"io"

	"github.com/grahame/gubinge/internal/domain/audit"
)

// UpstreamDialer opens a fresh transport-level connection to the real
// ssh-agent for one client connection. Gubinge dials once per accepted
// client, rather than pooling or sharing upstream connections, so that a
// misbehaving client can never observe another client's queued state.
type UpstreamDialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
}

// AuditSink records audit events for a connection. Implementations must be
// safe for concurrent use: one sink is shared by every connection's
// pipeline, and each pipeline calls Record from its own client-read
// goroutine.
type AuditSink interface {
	Record(ctx context.Context, rec audit.Record) error
	Close() error
}
