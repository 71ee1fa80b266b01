// internal/model/errors.go
package model

import (
	"errors"
	"fmt"
)

// Error taxonomy shared by the registry, discovery and session layers.
// Callers match with errors.Is; messages carry the port / parameter context.
var (
	ErrPortNotFound     = errors.New("port not found")
	ErrPortAlreadyOpen  = errors.New("port already open")
	ErrPortNotOpen      = errors.New("port not open")
	ErrInvalidParameter = errors.New("invalid parameter")
	ErrIoFailure        = errors.New("i/o failure")
	ErrNoDeviceFound    = errors.New("no device found")
)

// IoError wraps an OS-level error so it matches both ErrIoFailure and the cause.
func IoError(op, port string, err error) error {
	return fmt.Errorf("%w: %s %s: %w", ErrIoFailure, op, port, err)
}

// InvalidParameter builds an ErrInvalidParameter with a formatted reason.
func InvalidParameter(format string, args ...interface{}) error {
	return fmt.Errorf("%w: %s", ErrInvalidParameter, fmt.Sprintf(format, args...))
}

// ErrorCode returns a stable machine-readable code for err, used by the HTTP layer
// and in fail notifications.
func ErrorCode(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrPortNotFound):
		return "PORT_NOT_FOUND"
	case errors.Is(err, ErrPortAlreadyOpen):
		return "PORT_ALREADY_OPEN"
	case errors.Is(err, ErrPortNotOpen):
		return "PORT_NOT_OPEN"
	case errors.Is(err, ErrInvalidParameter):
		return "INVALID_PARAMETER"
	case errors.Is(err, ErrIoFailure):
		return "IO_FAILURE"
	case errors.Is(err, ErrNoDeviceFound):
		return "NO_DEVICE_FOUND"
	default:
		return "UNKNOWN_ERROR"
	}
}
