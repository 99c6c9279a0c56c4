// Package logship defines the log-shipping collaborator used to replicate
// write-ahead-log records to an external append-only backend, and provides
// Kafka and in-memory implementations.
package logship

import "context"

// Shipper is the narrow contract the storage environment needs from a
// log-shipping backend. Implementations must be safe for concurrent use.
type Shipper interface {
	// Ship appends one record to the backend. Key identifies the source
	// stream (engine instance), value is the encoded record.
	Ship(ctx context.Context, key, value []byte) error

	// Flush blocks until previously shipped records are durable on the
	// backend, as far as the backend can guarantee.
	Flush(ctx context.Context) error

	// Close releases the backend connection. Ship must not be called after
	// Close.
	Close() error
}
