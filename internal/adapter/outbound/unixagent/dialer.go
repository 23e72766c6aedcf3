// Package unixagent implements the outbound.UpstreamDialer port by
// dialing a Unix domain socket -- the transport the real ssh-agent
// listens on.
package unixagent

import (
	"context"
	"fmt"
	"io"
	"net"
)

// Dialer dials path fresh for every connection. Gubinge opens one
// upstream connection per accepted client rather than pooling, so Dialer
// carries no connection-reuse state at all.
type Dialer struct {
	Path string
}

// NewDialer constructs a Dialer for the upstream agent socket at path.
func NewDialer(path string) *Dialer {
	return &Dialer{Path: path}
}

// Dial implements outbound.UpstreamDialer.
func (d *Dialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	var dialer net.Dialer
	conn, err := dialer.DialContext(ctx, "unix", d.Path)
	if err != nil {
		return nil, fmt.Errorf("dial upstream agent at %s: %w", d.Path, err)
	}
	return conn, nil
}
