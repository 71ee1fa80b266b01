// internal/protocol/protocol.go
package protocol

import (
	"time"
)

// Stream is an open byte stream to a physical port
type Stream interface {
	Write(p []byte) (int, error)
	Read(p []byte) (int, error)
	// Drain blocks until all written bytes have been transmitted
	Drain() error
	Close() error
}

// Opener opens a stream with the given settings. The registry and the
// handshake both go through an Opener so tests can substitute fake ports.
type Opener func(settings PortSettings) (Stream, error)

// ProtocolStats provides stream-level statistics
type ProtocolStats struct {
	BytesWritten   int64         `json:"bytes_written"`
	BytesRead      int64         `json:"bytes_read"`
	OperationCount int64         `json:"operation_count"`
	ErrorCount     int64         `json:"error_count"`
	LastActivity   time.Time     `json:"last_activity"`
	AverageLatency time.Duration `json:"average_latency"`
	IsConnected    bool          `json:"is_connected"`
}

// StatsProvider is implemented by streams that track their own statistics
type StatsProvider interface {
	Stats() ProtocolStats
}
