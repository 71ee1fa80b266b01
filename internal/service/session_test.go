package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"siggen-service/internal/config"
	"siggen-service/internal/discovery"
	"siggen-service/internal/model"
	"siggen-service/internal/protocol"
	"siggen-service/internal/registry"
)

type recorder struct {
	mu            sync.Mutex
	notifications []model.Notification
	writes        []string
}

func (r *recorder) Notify(n model.Notification) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifications = append(r.notifications, n)
}

func (r *recorder) ObserveWrite(port string, data []byte) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.writes = append(r.writes, string(data))
}

func (r *recorder) observed() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.writes...)
}

func (r *recorder) events(eventType model.EventType) []model.Notification {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []model.Notification
	for _, n := range r.notifications {
		if n.Type == eventType {
			out = append(out, n)
		}
	}
	return out
}

// deviceStream answers the identity query and records writes; failAt makes
// the n-th write after the handshake fail.
type deviceStream struct {
	mu       sync.Mutex
	identity string
	pending  []byte
	writes   []string
	failAt   int
	closed   bool
}

func (d *deviceStream) Write(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if string(p) == "UMO\r\n" {
		d.pending = []byte(d.identity)
		return len(p), nil
	}
	d.writes = append(d.writes, string(p))
	if d.failAt > 0 && len(d.writes) == d.failAt {
		return 0, errors.New("write timeout")
	}
	return len(p), nil
}

func (d *deviceStream) Read(p []byte) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := copy(p, d.pending)
	d.pending = d.pending[n:]
	return n, nil
}

func (d *deviceStream) Drain() error { return nil }

func (d *deviceStream) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed = true
	return nil
}

func (d *deviceStream) written() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.writes...)
}

type portLister []string

func (l portLister) List(ctx context.Context) []string {
	return append(append([]string(nil), l...), model.SimulatedPort)
}

func (l portLister) Describe(ctx context.Context) []model.PortInfo {
	infos := make([]model.PortInfo, 0, len(l)+1)
	for _, name := range l {
		infos = append(infos, model.PortInfo{Name: name})
	}
	return append(infos, model.PortInfo{Name: model.SimulatedPort, Simulated: true})
}

type fixture struct {
	session  *Session
	registry *registry.Registry
	recorder *recorder
	opened   map[string]int
	mu       sync.Mutex
}

// newFixture wires a session whose only hardware is the given ports map
// (port name to identity response)
func newFixture(t *testing.T, devices map[string]string, opts Options) *fixture {
	t.Helper()
	logger := zaptest.NewLogger(t)
	f := &fixture{recorder: &recorder{}, opened: make(map[string]int)}

	opener := func(settings protocol.PortSettings) (protocol.Stream, error) {
		f.mu.Lock()
		defer f.mu.Unlock()
		identity, ok := devices[settings.Port]
		if !ok {
			return nil, errors.New("no such port")
		}
		f.opened[settings.Port]++
		return &deviceStream{identity: identity}, nil
	}

	names := make([]string, 0, len(devices))
	for name := range devices {
		names = append(names, name)
	}

	cfg := discovery.DefaultConfig()
	cfg.Turnaround = time.Millisecond

	f.registry = registry.New(opener, logger, registry.WithObserver(f.recorder))
	profile, err := protocol.LookupProfile("fy6900")
	require.NoError(t, err)

	lister := portLister(names)
	discoverer := discovery.NewDiscoverer(lister, opener, cfg, logger)
	f.session = NewSession(f.registry, protocol.NewEncoder(profile), discoverer, lister, f.recorder, opts, logger)
	return f
}

func (f *fixture) openCount(port string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.opened[port]
}

func TestSession_NoHardwareFallsBackToSimulated(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()

	result, err := f.session.Reconnect(ctx, 9600)
	require.NoError(t, err)
	assert.Equal(t, model.SimulatedPort, result.Port)
	assert.Equal(t, discovery.StateFallback, result.State)

	require.NoError(t, f.session.Write(ctx, "WMN1"))
	assert.Equal(t, []string{"WMN1"}, f.recorder.observed())

	success := f.recorder.events(model.EventMessageSuccess)
	require.Len(t, success, 1)
	assert.Equal(t, model.SimulatedPort, success[0].Port)
	assert.Equal(t, "WMN1", success[0].Command)
}

func TestSession_ReconnectLeavesSingleActiveEntry(t *testing.T) {
	tests := []struct {
		name    string
		devices map[string]string
		want    string
	}{
		{"device found", map[string]string{"/dev/ttyS0": "", "/dev/ttyUSB0": "FY6900"}, "/dev/ttyUSB0"},
		{"fallback", map[string]string{"/dev/ttyS0": "", "/dev/ttyS1": "hello"}, model.SimulatedPort},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, tt.devices, Options{})
			ctx := context.Background()

			// stale entries from an earlier session
			require.NoError(t, f.registry.Open(ctx, "/dev/ttyS0", 9600))
			require.NoError(t, f.registry.Open(ctx, model.SimulatedPort, 0))

			result, err := f.session.Reconnect(ctx, 115200)
			require.NoError(t, err)
			assert.Equal(t, tt.want, result.Port)

			status := f.session.Status()
			assert.Equal(t, []string{tt.want}, status.OpenPorts)
			assert.Equal(t, tt.want, status.Active)
			assert.Equal(t, tt.want, status.Selected)
			assert.Equal(t, "fy6900", status.Profile)

			assert.Len(t, f.recorder.events(model.EventPortConnected), 1)
		})
	}
}

func TestSession_ReconnectUsesDefaultBaud(t *testing.T) {
	f := newFixture(t, map[string]string{"/dev/ttyUSB0": "FY6300"}, Options{DefaultBaudRate: 57600})

	result, err := f.session.Reconnect(context.Background(), 0)
	require.NoError(t, err)

	handle, ok := result.Handle.(*protocol.RealHandle)
	require.True(t, ok)
	assert.NotNil(t, handle.Stream)
	// probe plus reopen
	assert.Equal(t, 2, f.openCount("/dev/ttyUSB0"))
}

func TestSession_SetAmplitudeEncodesChannelPrefix(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	_, err := f.session.Reconnect(ctx, 9600)
	require.NoError(t, err)

	require.NoError(t, f.session.SetAmplitude(ctx, protocol.ChannelMain, 1.0))
	assert.Equal(t, []string{"WMA01.00\n"}, f.recorder.observed())
}

func TestSession_TypedOperations(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	_, err := f.session.Reconnect(ctx, 9600)
	require.NoError(t, err)

	require.NoError(t, f.session.SetFrequency(ctx, protocol.ChannelAuxiliary, 1000))
	require.NoError(t, f.session.SetOffset(ctx, protocol.ChannelMain, -0.5))
	require.NoError(t, f.session.SetDutyCycle(ctx, protocol.ChannelMain, 25))
	require.NoError(t, f.session.SetPhase(ctx, protocol.ChannelMain, 180))
	require.NoError(t, f.session.SetAttenuation(ctx, protocol.ChannelMain, 0))
	require.NoError(t, f.session.EnableOutput(ctx, protocol.ChannelAuxiliary, true))
	require.NoError(t, f.session.SetWaveform(ctx, protocol.ChannelMain, protocol.WaveformTriangle))

	assert.Equal(t, []string{
		"WFF00001000000000\n",
		"WMO-00.50\n",
		"WMD25.0\n",
		"WMP180\n",
		"WMT0\n",
		"WFN1\n",
		"WMW07\n",
	}, f.recorder.observed())
	assert.Len(t, f.recorder.events(model.EventMessageSuccess), 7)
}

func TestSession_InvalidRequestIsNotWritten(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	_, err := f.session.Reconnect(ctx, 9600)
	require.NoError(t, err)

	err = f.session.SetAmplitude(ctx, protocol.Channel(3), 1)
	assert.ErrorIs(t, err, model.ErrInvalidParameter)

	err = f.session.SetWaveform(ctx, protocol.ChannelMain, protocol.Waveform("noise"))
	assert.ErrorIs(t, err, model.ErrInvalidParameter)

	assert.Empty(t, f.recorder.observed())
	failed := f.recorder.events(model.EventMessageFail)
	require.Len(t, failed, 2)
	assert.Equal(t, "INVALID_PARAMETER", failed[0].ErrorCode)
}

func TestSession_WriteWithoutActivePort(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()

	err := f.session.EnableOutput(ctx, protocol.ChannelMain, true)
	assert.ErrorIs(t, err, model.ErrPortNotOpen)

	failed := f.recorder.events(model.EventMessageFail)
	require.Len(t, failed, 1)
	assert.Equal(t, "PORT_NOT_OPEN", failed[0].ErrorCode)
	assert.Equal(t, "WMN1", failed[0].Command)

	assert.ErrorIs(t, f.session.Write(ctx, ""), model.ErrInvalidParameter)
}

func TestSession_CloseAndOpen(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	_, err := f.session.Reconnect(ctx, 9600)
	require.NoError(t, err)

	port, err := f.session.Close()
	require.NoError(t, err)
	assert.Equal(t, model.SimulatedPort, port)
	assert.ErrorIs(t, f.session.Write(ctx, "WMN1"), model.ErrPortNotOpen)

	_, err = f.session.Close()
	assert.ErrorIs(t, err, model.ErrPortNotFound)

	port, err = f.session.Open(ctx, 0)
	require.NoError(t, err)
	assert.Equal(t, model.SimulatedPort, port)
	assert.NoError(t, f.session.Write(ctx, "WMN1"))

	_, err = f.session.Open(ctx, 0)
	assert.ErrorIs(t, err, model.ErrPortAlreadyOpen)
}

func TestSession_SequenceStopsAtFailedStep(t *testing.T) {
	commands := []string{"UBZ1", "UMS0", "UUL0", "WMW00", "WMF11000000000"}
	f := newFixture(t, nil, Options{
		Sequences: map[string]Sequence{
			SequenceInitial: NewSequence(SequenceInitial, 1, 0, commands),
		},
	})
	ctx := context.Background()

	stream := &deviceStream{failAt: 3}
	f.registry.Install("/dev/ttyUSB0", &protocol.RealHandle{Stream: stream})

	err := f.session.SendInitialCommands(ctx)
	require.Error(t, err)

	var seqErr *SequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, SequenceInitial, seqErr.Sequence)
	assert.Equal(t, 3, seqErr.Step)
	assert.Equal(t, "UUL0", seqErr.Command)
	assert.ErrorIs(t, err, model.ErrIoFailure)

	// the fourth command is never attempted
	assert.Equal(t, []string{"UBZ1\n", "UMS0\n", "UUL0\n"}, stream.written())
	assert.Len(t, f.recorder.events(model.EventMessageSuccess), 2)
	assert.Len(t, f.recorder.events(model.EventMessageFail), 1)
}

func TestSession_DefaultSequences(t *testing.T) {
	seqs := DefaultSequences()

	initial := seqs[SequenceInitial]
	assert.Equal(t, 1, initial.Version)
	require.Len(t, initial.Steps, 27)
	assert.Equal(t, "UBZ1", initial.Steps[0].Command)
	assert.Equal(t, "RMN", initial.Steps[26].Command)
	assert.Equal(t, time.Second, initial.Steps[0].Settle)

	stop := seqs[SequenceStopReset]
	require.Len(t, stop.Steps, 5)
	assert.Equal(t, "WMX1", stop.Steps[0].Command)
}

func TestSession_StopAndResetSimulated(t *testing.T) {
	f := newFixture(t, nil, Options{
		Sequences: map[string]Sequence{
			SequenceStopReset: NewSequence(SequenceStopReset, 1, 0, []string{"WMX1", "WMX2", "UBZ0"}),
		},
	})
	ctx := context.Background()
	_, err := f.session.Reconnect(ctx, 9600)
	require.NoError(t, err)

	require.NoError(t, f.session.StopAndReset(ctx))
	assert.Equal(t, []string{"WMX1\n", "WMX2\n", "UBZ0\n"}, f.recorder.observed())

	err = f.session.SendInitialCommands(ctx)
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
}

func TestSession_SettleBetweenSteps(t *testing.T) {
	f := newFixture(t, nil, Options{
		Sequences: map[string]Sequence{
			"slow": NewSequence("slow", 1, 20*time.Millisecond, []string{"A", "B", "C"}),
		},
	})
	ctx := context.Background()
	_, err := f.session.Reconnect(ctx, 9600)
	require.NoError(t, err)

	start := time.Now()
	require.NoError(t, f.session.RunSequence(ctx, "slow"))
	assert.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	cancelCtx, cancel := context.WithTimeout(ctx, 10*time.Millisecond)
	defer cancel()
	err = f.session.RunSequence(cancelCtx, "slow")

	var seqErr *SequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, 2, seqErr.Step)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, []string{"A\n", "B\n", "C\n", "A\n"}, f.recorder.observed())
}

func TestSession_ApplyAndStop(t *testing.T) {
	f := newFixture(t, nil, Options{})
	ctx := context.Background()
	_, err := f.session.Reconnect(ctx, 9600)
	require.NoError(t, err)

	require.NoError(t, f.session.Apply(ctx, protocol.ChannelMain, protocol.WaveformSquare, 1000, 2.5))
	require.NoError(t, f.session.Stop(ctx))

	assert.Equal(t, []string{
		"WMW01\n",
		"WMF00001000000000\n",
		"WMA02.50\n",
		"WMN0\n",
		"WFN0\n",
	}, f.recorder.observed())

	err = f.session.Apply(ctx, protocol.ChannelMain, protocol.WaveformSine, 1000, 100)
	var seqErr *SequenceError
	require.ErrorAs(t, err, &seqErr)
	assert.Equal(t, 3, seqErr.Step)
	assert.ErrorIs(t, err, model.ErrInvalidParameter)
	// nothing from the rejected apply reaches the port
	assert.Len(t, f.recorder.observed(), 5)
}

func TestSession_BoundedConcurrency(t *testing.T) {
	f := newFixture(t, nil, Options{
		MaxConcurrent: 1,
		Sequences: map[string]Sequence{
			"hold": NewSequence("hold", 1, 200*time.Millisecond, []string{"A", "B"}),
		},
	})
	ctx := context.Background()
	_, err := f.session.Reconnect(ctx, 9600)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() { done <- f.session.RunSequence(ctx, "hold") }()

	// wait for the sequence to own the only slot
	require.Eventually(t, func() bool { return len(f.recorder.observed()) == 1 }, time.Second, time.Millisecond)

	shortCtx, cancel := context.WithTimeout(ctx, 20*time.Millisecond)
	defer cancel()
	err = f.session.Write(shortCtx, "WMN1")
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	require.NoError(t, <-done)
	assert.NoError(t, f.session.Write(ctx, "WMN1"))
}

func TestSession_ConcurrentWritersSerialize(t *testing.T) {
	f := newFixture(t, nil, Options{MaxConcurrent: 4})
	ctx := context.Background()
	_, err := f.session.Reconnect(ctx, 9600)
	require.NoError(t, err)

	payloads := []string{"AAAAAAAA", "BBBBBBBB", "CCCCCCCC", "DDDDDDDD"}
	var wg sync.WaitGroup
	for _, p := range payloads {
		wg.Add(1)
		go func(p string) {
			defer wg.Done()
			for i := 0; i < 10; i++ {
				assert.NoError(t, f.session.Write(ctx, p))
			}
		}(p)
	}
	wg.Wait()

	observed := f.recorder.observed()
	require.Len(t, observed, 40)
	counts := make(map[string]int)
	for _, w := range observed {
		counts[w]++
	}
	for _, p := range payloads {
		assert.Equal(t, 10, counts[p])
	}
}

func TestBuildSequences(t *testing.T) {
	seqs := BuildSequences(DefaultSequences(), nil)
	assert.Equal(t, []string{SequenceInitial, SequenceStopReset}, SequenceNames(seqs))

	seqs = BuildSequences(DefaultSequences(), map[string]config.SequenceConfig{
		SequenceStopReset: {Commands: []string{"WMN0"}},
		"custom":          {Version: 3, Settle: time.Millisecond, Commands: []string{"X"}},
	})
	assert.Equal(t, 2, seqs[SequenceStopReset].Version)
	assert.Equal(t, time.Second, seqs[SequenceStopReset].Steps[0].Settle)
	assert.Equal(t, 3, seqs["custom"].Version)
	assert.Len(t, seqs[SequenceInitial].Steps, 27)
}

type interruptedDiscoverer struct{ err error }

func (d interruptedDiscoverer) Discover(ctx context.Context, operatingBaud int) (*discovery.Result, error) {
	return &discovery.Result{
		Port:   model.SimulatedPort,
		State:  discovery.StateFallback,
		Handle: protocol.SimulatedHandle{},
	}, d.err
}

func TestSession_ReconnectLogsDiscoveryOutcome(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantErr   error
		wantLevel zapcore.Level
		wantMsg   string
	}{
		{"interrupted", context.DeadlineExceeded, context.DeadlineExceeded, zapcore.WarnLevel, "Port reconnect failed"},
		{"no device", model.ErrNoDeviceFound, nil, zapcore.InfoLevel, "Port reconnect"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			core, logs := observer.New(zapcore.DebugLevel)
			logger := zap.New(core)

			profile, err := protocol.LookupProfile("fy6900")
			require.NoError(t, err)
			reg := registry.New(nil, logger)
			session := NewSession(reg, protocol.NewEncoder(profile), interruptedDiscoverer{err: tt.err},
				portLister(nil), nil, Options{}, logger)

			result, err := session.Reconnect(context.Background(), 9600)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
			} else {
				assert.NoError(t, err)
			}
			assert.Equal(t, model.SimulatedPort, result.Port)
			assert.Equal(t, model.SimulatedPort, reg.Active())

			entries := logs.FilterMessage(tt.wantMsg).All()
			require.Len(t, entries, 1)
			assert.Equal(t, tt.wantLevel, entries[0].Level)
		})
	}
}
