// internal/protocol/serial_connection.go
package protocol

import (
	"fmt"
	"sync"
	"time"

	"go.bug.st/serial"
	"go.uber.org/zap"
)

// SerialConnection implements Stream on top of go.bug.st/serial
type SerialConnection struct {
	settings PortSettings
	port     serial.Port
	logger   *zap.Logger
	mutex    sync.Mutex
	stats    ProtocolStats
}

// SerialOpener returns an Opener backed by real OS serial ports
func SerialOpener(logger *zap.Logger) Opener {
	return func(settings PortSettings) (Stream, error) {
		return OpenSerial(settings, logger)
	}
}

// OpenSerial opens the serial port with 8N1 framing and a bounded read timeout
func OpenSerial(settings PortSettings, logger *zap.Logger) (*SerialConnection, error) {
	sc := &SerialConnection{
		settings: settings,
		logger: logger.With(
			zap.String("protocol", "serial"),
			zap.String("port", settings.Port),
		),
	}

	sc.logger.Debug("Opening serial port", zap.Int("baud_rate", settings.BaudRate))

	mode := &serial.Mode{
		BaudRate: settings.BaudRate,
		DataBits: 8,
		Parity:   serial.NoParity,
		StopBits: serial.OneStopBit,
	}

	port, err := serial.Open(settings.Port, mode)
	if err != nil {
		return nil, fmt.Errorf("failed to open serial port: %w", err)
	}

	if err := port.SetReadTimeout(settings.ReadTimeout); err != nil {
		port.Close()
		return nil, fmt.Errorf("failed to set read timeout: %w", err)
	}

	sc.port = port
	sc.stats.IsConnected = true
	sc.stats.LastActivity = time.Now()

	sc.logger.Info("Serial port opened",
		zap.Int("baud_rate", settings.BaudRate),
		zap.Duration("read_timeout", settings.ReadTimeout),
	)
	return sc, nil
}

// Write writes all of data, looping over short writes
func (sc *SerialConnection) Write(data []byte) (int, error) {
	startTime := time.Now()

	written := 0
	for written < len(data) {
		n, err := sc.port.Write(data[written:])
		written += n
		if err != nil {
			sc.recordError()
			return written, fmt.Errorf("failed to write to serial port: %w", err)
		}
		if n == 0 {
			sc.recordError()
			return written, fmt.Errorf("incomplete write: wrote %d of %d bytes", written, len(data))
		}
	}

	sc.mutex.Lock()
	sc.stats.BytesWritten += int64(written)
	sc.stats.OperationCount++
	sc.stats.LastActivity = time.Now()
	sc.updateAverageLatency(time.Since(startTime))
	sc.mutex.Unlock()

	sc.logger.Debug("Serial write completed", zap.Int("bytes", written))
	return written, nil
}

// Read reads whatever is available within the read timeout
func (sc *SerialConnection) Read(buffer []byte) (int, error) {
	n, err := sc.port.Read(buffer)
	if err != nil {
		sc.recordError()
		return n, fmt.Errorf("failed to read from serial port: %w", err)
	}

	sc.mutex.Lock()
	sc.stats.BytesRead += int64(n)
	sc.stats.OperationCount++
	sc.stats.LastActivity = time.Now()
	sc.mutex.Unlock()

	return n, nil
}

// Drain waits until the OS has transmitted all pending output
func (sc *SerialConnection) Drain() error {
	if err := sc.port.Drain(); err != nil {
		sc.recordError()
		return fmt.Errorf("failed to flush serial port: %w", err)
	}
	return nil
}

// Close closes the serial port
func (sc *SerialConnection) Close() error {
	sc.mutex.Lock()
	sc.stats.IsConnected = false
	sc.mutex.Unlock()

	if err := sc.port.Close(); err != nil {
		sc.logger.Error("Failed to close serial port", zap.Error(err))
		return fmt.Errorf("failed to close serial port: %w", err)
	}

	sc.logger.Info("Serial port closed")
	return nil
}

// Stats returns a snapshot of the connection statistics
func (sc *SerialConnection) Stats() ProtocolStats {
	sc.mutex.Lock()
	defer sc.mutex.Unlock()
	return sc.stats
}

func (sc *SerialConnection) recordError() {
	sc.mutex.Lock()
	sc.stats.ErrorCount++
	sc.mutex.Unlock()
}

// updateAverageLatency updates the running average latency
func (sc *SerialConnection) updateAverageLatency(newLatency time.Duration) {
	if sc.stats.AverageLatency == 0 {
		sc.stats.AverageLatency = newLatency
	} else {
		sc.stats.AverageLatency = (sc.stats.AverageLatency + newLatency) / 2
	}
}
