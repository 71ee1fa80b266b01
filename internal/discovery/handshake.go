// internal/discovery/handshake.go
package discovery

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"siggen-service/internal/model"
	"siggen-service/internal/protocol"
	"siggen-service/internal/utils"
)

// State is a step of the probe-and-classify state machine
type State string

const (
	StateScanning  State = "scanning"
	StateProbing   State = "probing"
	StateAccepted  State = "accepted"
	StateRejected  State = "rejected"
	StateConnected State = "connected"
	StateFallback  State = "fallback"
)

// Config holds handshake parameters
type Config struct {
	DiscoveryBaudRate    int
	DiscoveryReadTimeout time.Duration
	OperatingReadTimeout time.Duration
	Turnaround           time.Duration
	IdentityQuery        string
	FamilyPrefixes       []string
	ResponseSize         int
}

// DefaultConfig returns the FY-series handshake: UMO query at 115200 baud,
// accepting the identity prefixes of the default profile.
func DefaultConfig() Config {
	return Config{
		DiscoveryBaudRate:    115200,
		DiscoveryReadTimeout: 30 * time.Millisecond,
		OperatingReadTimeout: 50 * time.Millisecond,
		Turnaround:           30 * time.Millisecond,
		IdentityQuery:        "UMO\r\n",
		FamilyPrefixes:       protocol.DefaultProfile().IdentityPrefixes(),
		ResponseSize:         100,
	}
}

// Lister supplies candidate ports
type Lister interface {
	List(ctx context.Context) []string
}

// ProbeAttempt records the outcome for one candidate
type ProbeAttempt struct {
	Port     string `json:"port"`
	State    State  `json:"state"`
	Response string `json:"response,omitempty"`
	Error    string `json:"error,omitempty"`
}

// Result is the terminal state of a discovery run
type Result struct {
	Port     string          `json:"port"`
	State    State           `json:"state"`
	Handle   protocol.Handle `json:"-"`
	Attempts []ProbeAttempt  `json:"attempts"`
}

// Discoverer runs the handshake over every candidate port
type Discoverer struct {
	lister Lister
	opener protocol.Opener
	config Config
	logger *zap.Logger
}

// NewDiscoverer creates a discoverer
func NewDiscoverer(lister Lister, opener protocol.Opener, config Config, logger *zap.Logger) *Discoverer {
	if config.ResponseSize <= 0 {
		config.ResponseSize = 100
	}
	return &Discoverer{
		lister: lister,
		opener: opener,
		config: config,
		logger: logger.With(zap.String("component", "discovery")),
	}
}

// Discover scans the candidates and returns the first port that answers the
// identity query, reopened at operatingBaud. When no candidate is accepted the
// result is the simulated fallback and the error wraps ErrNoDeviceFound.
// A single candidate's failure never stops the scan.
func (d *Discoverer) Discover(ctx context.Context, operatingBaud int) (*Result, error) {
	candidates := d.lister.List(ctx)
	d.logger.Info("Discovery started",
		zap.String("state", string(StateScanning)),
		zap.Strings("candidates", candidates),
		zap.Int("discovery_baud_rate", d.config.DiscoveryBaudRate),
		zap.Int("operating_baud_rate", operatingBaud),
	)

	result := &Result{Attempts: make([]ProbeAttempt, 0, len(candidates))}

	for _, port := range candidates {
		if port == model.SimulatedPort {
			continue
		}
		if err := ctx.Err(); err != nil {
			d.fallback(result)
			return result, err
		}

		attempt := d.probe(ctx, port)
		if attempt.State != StateAccepted {
			result.Attempts = append(result.Attempts, attempt)
			continue
		}

		stream, err := d.opener(protocol.PortSettings{
			Port:        port,
			BaudRate:    operatingBaud,
			ReadTimeout: d.config.OperatingReadTimeout,
		})
		if err != nil {
			attempt.State = StateRejected
			attempt.Error = fmt.Sprintf("reopen at %d baud: %v", operatingBaud, err)
			result.Attempts = append(result.Attempts, attempt)
			d.logger.Warn("Accepted port could not be reopened",
				zap.String("port", port),
				zap.Int("baud_rate", operatingBaud),
				zap.Error(err),
			)
			continue
		}

		result.Attempts = append(result.Attempts, attempt)
		result.Port = port
		result.State = StateConnected
		result.Handle = &protocol.RealHandle{Stream: stream}

		d.logger.Info("Device connected",
			zap.String("state", string(StateConnected)),
			zap.String("port", port),
			zap.String("response", attempt.Response),
		)
		return result, nil
	}

	d.fallback(result)
	return result, fmt.Errorf("%w: %d candidates probed", model.ErrNoDeviceFound, len(result.Attempts))
}

func (d *Discoverer) fallback(result *Result) {
	result.Port = model.SimulatedPort
	result.State = StateFallback
	result.Handle = protocol.SimulatedHandle{}

	d.logger.Warn("No device found, falling back to simulated port",
		zap.String("state", string(StateFallback)),
		zap.Int("attempts", len(result.Attempts)),
	)
}

// probe opens port at the discovery baud rate, sends the identity query and
// classifies the response. The probe stream is always closed.
func (d *Discoverer) probe(ctx context.Context, port string) ProbeAttempt {
	attempt := ProbeAttempt{Port: port, State: StateProbing}
	logger := d.logger.With(zap.String("port", port))
	logger.Debug("Probing port", zap.String("state", string(StateProbing)))

	reject := func(stage string, err error) ProbeAttempt {
		attempt.State = StateRejected
		attempt.Error = fmt.Sprintf("%s: %v", stage, err)
		logger.Debug("Port rejected",
			zap.String("state", string(StateRejected)),
			zap.String("stage", stage),
			zap.Error(err),
		)
		return attempt
	}

	stream, err := d.opener(protocol.PortSettings{
		Port:        port,
		BaudRate:    d.config.DiscoveryBaudRate,
		ReadTimeout: d.config.DiscoveryReadTimeout,
	})
	if err != nil {
		return reject("open", err)
	}
	defer func() {
		if err := stream.Close(); err != nil {
			logger.Debug("Failed to close probe stream", zap.Error(err))
		}
	}()

	if _, err := stream.Write([]byte(d.config.IdentityQuery)); err != nil {
		return reject("write", err)
	}

	if err := utils.Sleep(ctx, d.config.Turnaround); err != nil {
		return reject("turnaround", err)
	}

	response, err := readResponse(stream, d.config.ResponseSize)
	attempt.Response = response
	if err != nil && response == "" {
		return reject("read", err)
	}

	if !d.Recognises(response) {
		return reject("classify", fmt.Errorf("unrecognised response %q", response))
	}

	attempt.State = StateAccepted
	logger.Info("Device identified",
		zap.String("state", string(StateAccepted)),
		zap.String("response", response),
	)
	return attempt
}

// Recognises reports whether an identity response starts with an accepted
// family prefix
func (d *Discoverer) Recognises(response string) bool {
	for _, prefix := range d.config.FamilyPrefixes {
		if prefix != "" && strings.HasPrefix(response, prefix) {
			return true
		}
	}
	return false
}

// readResponse reads until size bytes arrive or a read times out empty
func readResponse(stream protocol.Stream, size int) (string, error) {
	buf := make([]byte, size)
	total := 0
	for total < size {
		n, err := stream.Read(buf[total:])
		total += n
		if err != nil {
			return string(buf[:total]), err
		}
		if n == 0 {
			break
		}
	}
	return string(buf[:total]), nil
}
