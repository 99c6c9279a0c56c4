package logship

import (
	"context"
	"sync"
)

// Record is one shipped WAL record captured by the memory shipper.
type Record struct {
	Key   []byte
	Value []byte
}

// MemoryShipper records shipped messages for tests. Supports error
// injection on Ship and Flush.
type MemoryShipper struct {
	mu       sync.Mutex
	records  []Record
	shipErr  error
	flushErr error
	closed   bool
}

// NewMemoryShipper creates an empty memory shipper.
func NewMemoryShipper() *MemoryShipper {
	return &MemoryShipper{}
}

// WithShipErr configures Ship to fail with err.
func (m *MemoryShipper) WithShipErr(err error) *MemoryShipper {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.shipErr = err
	return m
}

// WithFlushErr configures Flush to fail with err.
func (m *MemoryShipper) WithFlushErr(err error) *MemoryShipper {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.flushErr = err
	return m
}

// Records returns a copy of everything shipped so far.
func (m *MemoryShipper) Records() []Record {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]Record, len(m.records))
	copy(out, m.records)
	return out
}

// Closed reports whether Close has been called.
func (m *MemoryShipper) Closed() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.closed
}

// Ship records the message.
func (m *MemoryShipper) Ship(ctx context.Context, key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.shipErr != nil {
		return m.shipErr
	}
	m.records = append(m.records, Record{
		Key:   append([]byte(nil), key...),
		Value: append([]byte(nil), value...),
	})
	return nil
}

// Flush returns the injected flush error, if any.
func (m *MemoryShipper) Flush(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.flushErr
}

// Close marks the shipper closed.
func (m *MemoryShipper) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.closed = true
	return nil
}
