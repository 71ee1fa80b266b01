// internal/service/session.go
package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"siggen-service/internal/discovery"
	"siggen-service/internal/model"
	"siggen-service/internal/protocol"
	"siggen-service/internal/registry"
	"siggen-service/internal/utils"
)

// Notifier receives best-effort notifications about write outcomes
type Notifier interface {
	Notify(n model.Notification)
}

// Discoverer finds the device among the candidate ports
type Discoverer interface {
	Discover(ctx context.Context, operatingBaud int) (*discovery.Result, error)
}

// PortLister enumerates candidate ports
type PortLister interface {
	List(ctx context.Context) []string
	Describe(ctx context.Context) []model.PortInfo
}

// Options configures a Session
type Options struct {
	MaxConcurrent   int64
	DefaultBaudRate int
	// StepSettle is the delay between the writes of apply and stop
	StepSettle time.Duration
	Sequences  map[string]Sequence
}

// Session exposes typed device operations over the registry's active port
type Session struct {
	registry   *registry.Registry
	encoder    *protocol.Encoder
	discoverer Discoverer
	ports      PortLister
	notifier   Notifier

	sem         *semaphore.Weighted
	reconnectMu sync.Mutex

	defaultBaudRate int
	stepSettle      time.Duration
	sequences       map[string]Sequence

	logger *utils.ServiceLogger
}

// NewSession creates a new device session
func NewSession(
	reg *registry.Registry,
	encoder *protocol.Encoder,
	discoverer Discoverer,
	ports PortLister,
	notifier Notifier,
	opts Options,
	logger *zap.Logger,
) *Session {
	if opts.MaxConcurrent <= 0 {
		opts.MaxConcurrent = 8
	}
	if opts.DefaultBaudRate <= 0 {
		opts.DefaultBaudRate = 115200
	}
	if opts.Sequences == nil {
		opts.Sequences = DefaultSequences()
	}

	return &Session{
		registry:        reg,
		encoder:         encoder,
		discoverer:      discoverer,
		ports:           ports,
		notifier:        notifier,
		sem:             semaphore.NewWeighted(opts.MaxConcurrent),
		defaultBaudRate: opts.DefaultBaudRate,
		stepSettle:      opts.StepSettle,
		sequences:       opts.Sequences,
		logger:          utils.NewServiceLogger(logger, "device-session"),
	}
}

// acquire takes one worker slot
func (s *Session) acquire(ctx context.Context) (func(), error) {
	if err := s.sem.Acquire(ctx, 1); err != nil {
		return nil, fmt.Errorf("waiting for worker slot: %w", err)
	}
	return func() { s.sem.Release(1) }, nil
}

// Profile returns the active protocol profile
func (s *Session) Profile() *protocol.Profile {
	return s.encoder.Profile()
}

// ListCandidates returns the candidate ports, simulated port last
func (s *Session) ListCandidates(ctx context.Context) []string {
	return s.ports.List(ctx)
}

// DescribePorts returns candidate ports with USB details
func (s *Session) DescribePorts(ctx context.Context) []model.PortInfo {
	return s.ports.Describe(ctx)
}

// Status returns a registry snapshot annotated with the profile name
func (s *Session) Status() model.RegistryStatus {
	status := s.registry.Status()
	status.Profile = s.encoder.Profile().Name
	return status
}

// PortStats returns stream statistics of the open real ports
func (s *Session) PortStats() map[string]protocol.ProtocolStats {
	return s.registry.Stats()
}

// Open opens the selected port at baudRate and makes it active
func (s *Session) Open(ctx context.Context, baudRate int) (string, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return "", err
	}
	defer release()

	if baudRate <= 0 {
		baudRate = s.defaultBaudRate
	}

	port, err := s.registry.OpenSelected(ctx, baudRate)
	deviceLogger := utils.NewDeviceLogger(s.logger.Logger, port, s.encoder.Profile().Name)
	deviceLogger.LogConnection("open", err)
	return port, err
}

// Close closes the active port; the selection is kept
func (s *Session) Close() (string, error) {
	port, err := s.registry.CloseActive()
	deviceLogger := utils.NewDeviceLogger(s.logger.Logger, port, s.encoder.Profile().Name)
	deviceLogger.LogConnection("close", err)
	return port, err
}

// Reconnect evicts every open port, runs discovery and installs the accepted
// port, or the simulated port when nothing answers. Afterwards the registry
// holds exactly one entry and it is active.
func (s *Session) Reconnect(ctx context.Context, baudRate int) (*discovery.Result, error) {
	release, err := s.acquire(ctx)
	if err != nil {
		return nil, err
	}
	defer release()

	s.reconnectMu.Lock()
	defer s.reconnectMu.Unlock()

	if baudRate <= 0 {
		baudRate = s.defaultBaudRate
	}

	evicted := s.registry.EvictAll()
	s.logger.Info("Reconnecting",
		zap.Strings("evicted", evicted),
		zap.Int("baud_rate", baudRate),
	)

	result, err := s.discoverer.Discover(ctx, baudRate)
	if result == nil {
		result = &discovery.Result{
			Port:   model.SimulatedPort,
			State:  discovery.StateFallback,
			Handle: protocol.SimulatedHandle{},
		}
	}

	s.registry.Install(result.Port, result.Handle)

	// falling back to the simulated port is a normal reconnect outcome
	if errors.Is(err, model.ErrNoDeviceFound) {
		err = nil
	}

	deviceLogger := utils.NewDeviceLogger(s.logger.Logger, result.Port, s.encoder.Profile().Name)
	deviceLogger.LogConnection("reconnect", err)
	s.notify(model.NewNotification(model.EventPortConnected, result.Port, "",
		fmt.Sprintf("Connected to %s (%s)", result.Port, result.State)))

	return result, err
}

// Write sends data to the active port as-is, without framing
func (s *Session) Write(ctx context.Context, data string) error {
	if data == "" {
		return model.InvalidParameter("empty write")
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return s.write(ctx, protocol.Command(data))
}

// SetFrequency sets a channel's frequency in hertz
func (s *Session) SetFrequency(ctx context.Context, ch protocol.Channel, hz float64) error {
	return s.send(ctx, protocol.Request{Parameter: protocol.ParamFrequency, Channel: ch, Value: hz})
}

// SetAmplitude sets a channel's amplitude in volts
func (s *Session) SetAmplitude(ctx context.Context, ch protocol.Channel, volts float64) error {
	return s.send(ctx, protocol.Request{Parameter: protocol.ParamAmplitude, Channel: ch, Value: volts})
}

// SetOffset sets a channel's DC offset in volts
func (s *Session) SetOffset(ctx context.Context, ch protocol.Channel, volts float64) error {
	return s.send(ctx, protocol.Request{Parameter: protocol.ParamOffset, Channel: ch, Value: volts})
}

// SetDutyCycle sets a channel's duty cycle in percent
func (s *Session) SetDutyCycle(ctx context.Context, ch protocol.Channel, percent float64) error {
	return s.send(ctx, protocol.Request{Parameter: protocol.ParamDutyCycle, Channel: ch, Value: percent})
}

// SetPhase sets a channel's phase in degrees
func (s *Session) SetPhase(ctx context.Context, ch protocol.Channel, degrees float64) error {
	return s.send(ctx, protocol.Request{Parameter: protocol.ParamPhase, Channel: ch, Value: degrees})
}

// SetAttenuation sets a channel's attenuation step
func (s *Session) SetAttenuation(ctx context.Context, ch protocol.Channel, step int) error {
	return s.send(ctx, protocol.Request{Parameter: protocol.ParamAttenuation, Channel: ch, Value: float64(step)})
}

// EnableOutput switches a channel's output on or off
func (s *Session) EnableOutput(ctx context.Context, ch protocol.Channel, enable bool) error {
	return s.send(ctx, protocol.Request{Parameter: protocol.ParamOutput, Channel: ch, Enable: enable})
}

// SetWaveform selects a channel's waveform
func (s *Session) SetWaveform(ctx context.Context, ch protocol.Channel, w protocol.Waveform) error {
	return s.send(ctx, protocol.Request{Parameter: protocol.ParamWaveform, Channel: ch, Waveform: w})
}

// Apply sets waveform, frequency and amplitude of one channel in that order
func (s *Session) Apply(ctx context.Context, ch protocol.Channel, w protocol.Waveform, hz, volts float64) error {
	requests := []protocol.Request{
		{Parameter: protocol.ParamWaveform, Channel: ch, Waveform: w},
		{Parameter: protocol.ParamFrequency, Channel: ch, Value: hz},
		{Parameter: protocol.ParamAmplitude, Channel: ch, Value: volts},
	}
	return s.runRequests(ctx, SequenceApply, requests)
}

// Stop disables the output of every channel
func (s *Session) Stop(ctx context.Context) error {
	channels := s.encoder.Profile().Channels()
	requests := make([]protocol.Request, 0, len(channels))
	for _, ch := range channels {
		requests = append(requests, protocol.Request{Parameter: protocol.ParamOutput, Channel: ch, Enable: false})
	}
	return s.runRequests(ctx, SequenceStop, requests)
}

// SendInitialCommands runs the initial configuration script
func (s *Session) SendInitialCommands(ctx context.Context) error {
	return s.RunSequence(ctx, SequenceInitial)
}

// StopAndReset runs the stop-and-reset script
func (s *Session) StopAndReset(ctx context.Context) error {
	return s.RunSequence(ctx, SequenceStopReset)
}

// Sequence returns a configured script by name
func (s *Session) Sequence(name string) (Sequence, bool) {
	seq, ok := s.sequences[name]
	return seq, ok
}

// Sequences returns the names of all configured scripts
func (s *Session) Sequences() []string {
	return SequenceNames(s.sequences)
}

// RunSequence runs a named script, stopping at the first failed step
func (s *Session) RunSequence(ctx context.Context, name string) error {
	seq, ok := s.sequences[name]
	if !ok {
		return model.InvalidParameter("unknown sequence %q", name)
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return s.runSteps(ctx, seq)
}

// runRequests encodes every request up front and runs them as one script
func (s *Session) runRequests(ctx context.Context, name string, requests []protocol.Request) error {
	steps := make([]Step, 0, len(requests))
	for i, req := range requests {
		cmd, err := s.encoder.Encode(req)
		if err != nil {
			return &SequenceError{
				Sequence: name,
				Version:  1,
				Step:     i + 1,
				Total:    len(requests),
				Command:  string(req.Parameter),
				Err:      err,
			}
		}
		steps = append(steps, Step{Command: string(cmd), Settle: s.stepSettle})
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return s.runSteps(ctx, Sequence{Name: name, Version: 1, Steps: steps}, withoutFraming())
}

type runOption func(*runConfig)

type runConfig struct {
	frame bool
}

func withoutFraming() runOption {
	return func(c *runConfig) { c.frame = false }
}

func (s *Session) runSteps(ctx context.Context, seq Sequence, opts ...runOption) error {
	cfg := runConfig{frame: true}
	for _, opt := range opts {
		opt(&cfg)
	}

	seqLogger := utils.NewSequenceLogger(s.logger.Logger, seq.Name, seq.Version, len(seq.Steps))
	seqLogger.Started()

	total := len(seq.Steps)
	for i, step := range seq.Steps {
		if i > 0 {
			if err := utils.Sleep(ctx, seq.Steps[i-1].Settle); err != nil {
				seqErr := &SequenceError{Sequence: seq.Name, Version: seq.Version, Step: i + 1, Total: total, Command: strings.TrimRight(step.Command, "\r\n"), Err: err}
				seqLogger.Halted(i+1, seqErr)
				return seqErr
			}
		}

		cmd := protocol.Command(step.Command)
		if cfg.frame {
			cmd = s.encoder.Frame(step.Command)
		}

		if err := s.write(ctx, cmd); err != nil {
			seqErr := &SequenceError{Sequence: seq.Name, Version: seq.Version, Step: i + 1, Total: total, Command: strings.TrimRight(step.Command, "\r\n"), Err: err}
			seqLogger.Halted(i+1, seqErr)
			return seqErr
		}

		seqLogger.StepWritten(i+1, strings.TrimRight(step.Command, "\r\n"))
	}

	seqLogger.Completed()
	return nil
}

// send encodes one request and writes it to the active port
func (s *Session) send(ctx context.Context, req protocol.Request) error {
	cmd, err := s.encoder.Encode(req)
	if err != nil {
		n := model.NewNotification(model.EventMessageFail, s.registry.Active(), string(req.Parameter),
			fmt.Sprintf("Invalid %s request for channel %d: %v", req.Parameter, req.Channel, err))
		n.ErrorCode = model.ErrorCode(err)
		s.notify(n)
		return err
	}

	release, err := s.acquire(ctx)
	if err != nil {
		return err
	}
	defer release()

	return s.write(ctx, cmd)
}

// write performs one registry write and emits the outcome notification
func (s *Session) write(ctx context.Context, cmd protocol.Command) error {
	start := time.Now()
	port, err := s.registry.WriteActive(ctx, cmd.Bytes())

	display := strings.TrimRight(cmd.String(), "\r\n")
	deviceLogger := utils.NewDeviceLogger(s.logger.Logger, port, s.encoder.Profile().Name)
	deviceLogger.LogCommand(display, time.Since(start), err)

	if err != nil {
		n := model.NewNotification(model.EventMessageFail, port, display,
			fmt.Sprintf("Failed to send %s to %s: %v", display, port, err))
		n.ErrorCode = model.ErrorCode(err)
		s.notify(n)
		return err
	}

	s.notify(model.NewNotification(model.EventMessageSuccess, port, display,
		fmt.Sprintf("Sent %s to %s", display, port)))
	return nil
}

func (s *Session) notify(n model.Notification) {
	if s.notifier == nil {
		return
	}
	s.notifier.Notify(n)
}
