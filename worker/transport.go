package worker

import "context"

// Transport moves envelopes to a store worker and responses back. The
// protocol is identical across transports; only the execution boundary
// differs. A transport is used by exactly one Client.
type Transport interface {
	// Start launches the execution unit and completes the init handshake.
	// It must not be called twice.
	Start(ctx context.Context) error

	// Send submits an envelope to the worker. It fails once the worker
	// has exited.
	Send(env Envelope) error

	// Responses streams replies in completion order. The channel is
	// closed when the worker exits.
	Responses() <-chan Response

	// Done is closed once the worker has fully exited. It closes after
	// Responses does, so Err is safe to read once Done fires.
	Done() <-chan struct{}

	// Err reports why the worker exited. It is nil for a clean shutdown
	// and must only be read after Done is closed.
	Err() error

	// Kill force-terminates the worker without waiting for in-flight
	// statements.
	Kill() error
}
