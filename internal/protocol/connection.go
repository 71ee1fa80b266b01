// internal/protocol/connection.go
package protocol

import "time"

// PortSettings represents serial connection configuration.
// Framing is fixed at 8 data bits, no parity, one stop bit, no flow control.
type PortSettings struct {
	Port        string        `json:"port"`
	BaudRate    int           `json:"baud_rate"`
	ReadTimeout time.Duration `json:"read_timeout"`
}
