// Package inbound defines the inbound port interfaces for the connection
// pipeline. Inbound adapters (the Unix socket listener) call these
// interfaces; they do not depend on the pipeline's concrete type.
package inbound

import "context"

// Pipeline is the inbound port for a single accepted client connection.
// Adapters construct one per connection and run it to completion.
type Pipeline interface {
	// Run drives the connection until the client disconnects, the upstream
	// disconnects, or a protocol violation forces the connection closed.
	// Returns nil for an orderly close (EOF on either side after normal
	// pairing), or a non-nil error otherwise.
	Run(ctx context.Context) error

	// Close releases the pipeline's client and upstream connections. Safe
	// to call after Run has already returned.
	Close() error
}
