package discovery

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap/zaptest"

	"siggen-service/internal/model"
	"siggen-service/internal/protocol"
)

type staticLister []string

func (l staticLister) List(ctx context.Context) []string { return append([]string(nil), l...) }

// probeStream answers the identity query with a canned response
type probeStream struct {
	mu       sync.Mutex
	settings protocol.PortSettings
	response []byte
	written  []byte
	closed   bool
	readErr  error
}

func (s *probeStream) Write(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.written = append(s.written, p...)
	return len(p), nil
}

func (s *probeStream) Read(p []byte) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.readErr != nil {
		return 0, s.readErr
	}
	n := copy(p, s.response)
	s.response = s.response[n:]
	return n, nil
}

func (s *probeStream) Drain() error { return nil }

func (s *probeStream) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

type scriptedOpener struct {
	mu        sync.Mutex
	responses map[string]string
	openErr   map[string]error
	// reopenErr fails opens at a baud rate other than the discovery rate
	reopenErr map[string]error
	opened    []*probeStream
}

func newScriptedOpener() *scriptedOpener {
	return &scriptedOpener{
		responses: make(map[string]string),
		openErr:   make(map[string]error),
		reopenErr: make(map[string]error),
	}
}

func (o *scriptedOpener) open(settings protocol.PortSettings) (protocol.Stream, error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if err := o.openErr[settings.Port]; err != nil {
		return nil, err
	}
	if err := o.reopenErr[settings.Port]; err != nil && settings.BaudRate != DefaultConfig().DiscoveryBaudRate {
		return nil, err
	}
	s := &probeStream{settings: settings, response: []byte(o.responses[settings.Port])}
	o.opened = append(o.opened, s)
	return s, nil
}

func (o *scriptedOpener) streams() []*probeStream {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*probeStream(nil), o.opened...)
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Turnaround = time.Millisecond
	return cfg
}

func TestDiscover_AcceptsFamilyPrefix(t *testing.T) {
	opener := newScriptedOpener()
	opener.responses["/dev/ttyS0"] = "garbage"
	opener.responses["/dev/ttyUSB0"] = "FY6900-60M\n"
	lister := staticLister{"/dev/ttyS0", "/dev/ttyUSB0", model.SimulatedPort}

	d := NewDiscoverer(lister, opener.open, testConfig(), zaptest.NewLogger(t))
	result, err := d.Discover(context.Background(), 9600)
	require.NoError(t, err)

	assert.Equal(t, StateConnected, result.State)
	assert.Equal(t, "/dev/ttyUSB0", result.Port)
	require.Len(t, result.Attempts, 2)
	assert.Equal(t, StateRejected, result.Attempts[0].State)
	assert.Equal(t, StateAccepted, result.Attempts[1].State)
	assert.Equal(t, "FY6900-60M\n", result.Attempts[1].Response)

	handle, ok := result.Handle.(*protocol.RealHandle)
	require.True(t, ok)
	reopened := handle.Stream.(*probeStream)
	assert.Equal(t, 9600, reopened.settings.BaudRate)
	assert.False(t, reopened.closed)

	streams := opener.streams()
	require.Len(t, streams, 3)
	for _, s := range streams[:2] {
		assert.Equal(t, 115200, s.settings.BaudRate)
		assert.Equal(t, "UMO\r\n", string(s.written))
		assert.True(t, s.closed, "probe stream left open")
	}
}

func TestDefaultConfig_AcceptsDefaultProfileIdentity(t *testing.T) {
	cfg := DefaultConfig()
	assert.ElementsMatch(t, []string{"FY23", "FY63", "FY69"}, cfg.FamilyPrefixes)

	opener := newScriptedOpener()
	opener.responses["/dev/ttyUSB0"] = "FY6900-60M\n"
	cfg.Turnaround = time.Millisecond

	d := NewDiscoverer(staticLister{"/dev/ttyUSB0"}, opener.open, cfg, zaptest.NewLogger(t))
	result, err := d.Discover(context.Background(), 115200)
	require.NoError(t, err)
	assert.Equal(t, StateConnected, result.State)
	assert.Equal(t, "/dev/ttyUSB0", result.Port)
}

func TestDiscover_FY23Prefix(t *testing.T) {
	opener := newScriptedOpener()
	opener.responses["COM3"] = "FY2300"

	d := NewDiscoverer(staticLister{"COM3"}, opener.open, testConfig(), zaptest.NewLogger(t))
	result, err := d.Discover(context.Background(), 115200)
	require.NoError(t, err)
	assert.Equal(t, "COM3", result.Port)
}

func TestDiscover_FallbackWhenNothingAnswers(t *testing.T) {
	opener := newScriptedOpener()
	opener.openErr["/dev/ttyS0"] = errors.New("busy")
	opener.responses["/dev/ttyS1"] = ""
	opener.responses["/dev/ttyS2"] = "XY6900"

	lister := staticLister{"/dev/ttyS0", "/dev/ttyS1", "/dev/ttyS2", model.SimulatedPort}
	d := NewDiscoverer(lister, opener.open, testConfig(), zaptest.NewLogger(t))

	result, err := d.Discover(context.Background(), 9600)
	assert.ErrorIs(t, err, model.ErrNoDeviceFound)
	require.NotNil(t, result)

	assert.Equal(t, StateFallback, result.State)
	assert.Equal(t, model.SimulatedPort, result.Port)
	assert.IsType(t, protocol.SimulatedHandle{}, result.Handle)

	require.Len(t, result.Attempts, 3)
	for _, a := range result.Attempts {
		assert.Equal(t, StateRejected, a.State, a.Port)
		assert.NotEmpty(t, a.Error)
	}
	assert.Contains(t, result.Attempts[0].Error, "busy")
}

func TestDiscover_NoHardware(t *testing.T) {
	opener := newScriptedOpener()
	d := NewDiscoverer(staticLister{model.SimulatedPort}, opener.open, testConfig(), zaptest.NewLogger(t))

	result, err := d.Discover(context.Background(), 9600)
	assert.ErrorIs(t, err, model.ErrNoDeviceFound)
	assert.Equal(t, model.SimulatedPort, result.Port)
	assert.Empty(t, result.Attempts)
	assert.Empty(t, opener.streams())
}

func TestDiscover_ReopenFailureMovesOn(t *testing.T) {
	opener := newScriptedOpener()
	opener.responses["/dev/ttyUSB0"] = "FY6300"
	opener.reopenErr["/dev/ttyUSB0"] = errors.New("baud not supported")
	opener.responses["/dev/ttyUSB1"] = "FY6900"

	lister := staticLister{"/dev/ttyUSB0", "/dev/ttyUSB1"}
	d := NewDiscoverer(lister, opener.open, testConfig(), zaptest.NewLogger(t))

	result, err := d.Discover(context.Background(), 9600)
	require.NoError(t, err)
	assert.Equal(t, "/dev/ttyUSB1", result.Port)

	require.Len(t, result.Attempts, 2)
	assert.Equal(t, StateRejected, result.Attempts[0].State)
	assert.Contains(t, result.Attempts[0].Error, "reopen")
}

func TestDiscover_ReadErrorRejects(t *testing.T) {
	opener := newScriptedOpener()
	lister := staticLister{"/dev/ttyUSB0"}

	d := NewDiscoverer(lister, func(s protocol.PortSettings) (protocol.Stream, error) {
		return &probeStream{settings: s, readErr: errors.New("i/o timeout")}, nil
	}, testConfig(), zaptest.NewLogger(t))

	result, err := d.Discover(context.Background(), 9600)
	assert.ErrorIs(t, err, model.ErrNoDeviceFound)
	require.Len(t, result.Attempts, 1)
	assert.Contains(t, result.Attempts[0].Error, "read")
	assert.Empty(t, opener.streams())
}

func TestDiscover_CancelledFallsBack(t *testing.T) {
	opener := newScriptedOpener()
	opener.responses["/dev/ttyUSB0"] = "FY6900"

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	d := NewDiscoverer(staticLister{"/dev/ttyUSB0"}, opener.open, testConfig(), zaptest.NewLogger(t))
	result, err := d.Discover(ctx, 9600)
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, StateFallback, result.State)
	assert.Empty(t, opener.streams())
}

func TestReadResponse_StopsAtSize(t *testing.T) {
	s := &probeStream{response: []byte("FY6900 0123456789")}

	got, err := readResponse(s, 6)
	require.NoError(t, err)
	assert.Equal(t, "FY6900", got)
}

func TestEnumerator_SimulatedLast(t *testing.T) {
	e := NewEnumerator(zaptest.NewLogger(t))
	e.listPorts = func() ([]string, error) {
		return []string{"/dev/ttyUSB0", model.SimulatedPort, "/dev/ttyS0"}, nil
	}

	assert.Equal(t, []string{"/dev/ttyUSB0", "/dev/ttyS0", model.SimulatedPort}, e.List(context.Background()))
}

func TestEnumerator_OSFailureDegrades(t *testing.T) {
	e := NewEnumerator(zaptest.NewLogger(t))
	e.listPorts = func() ([]string, error) { return nil, errors.New("no /dev") }
	e.listDetailedPorts = func() ([]*enumerator.PortDetails, error) { return nil, errors.New("no /sys") }

	assert.Equal(t, []string{model.SimulatedPort}, e.List(context.Background()))

	infos := e.Describe(context.Background())
	require.Len(t, infos, 1)
	assert.True(t, infos[0].Simulated)
}

func TestEnumerator_Describe(t *testing.T) {
	e := NewEnumerator(zaptest.NewLogger(t))
	e.listDetailedPorts = func() ([]*enumerator.PortDetails, error) {
		return []*enumerator.PortDetails{
			{Name: "/dev/ttyUSB0", IsUSB: true, VID: "1a86", PID: "7523", Product: "USB Serial"},
			{Name: "/dev/ttyS0"},
		}, nil
	}

	infos := e.Describe(context.Background())
	require.Len(t, infos, 3)
	assert.Equal(t, "1a86", infos[0].VID)
	assert.True(t, infos[0].IsUSB)
	assert.Equal(t, "CH340", infos[0].Bridge)
	assert.True(t, infos[0].LikelyGenerator)
	assert.False(t, infos[1].IsUSB)
	assert.Empty(t, infos[1].Bridge)
	assert.Equal(t, model.SimulatedPort, infos[2].Name)
}

func TestBridgeDatabase_Lookup(t *testing.T) {
	db := NewBridgeDatabase()

	info, ok := db.Lookup("0x1A86", "7523")
	require.True(t, ok)
	assert.Equal(t, "CH340", info.Chip)

	info, ok = db.Lookup("10C4", "EA60")
	require.True(t, ok)
	assert.False(t, info.Generator)

	_, ok = db.Lookup("1a86", "ffff")
	assert.False(t, ok)

	db.Add("403", "6010", &BridgeInfo{Vendor: "FTDI", Chip: "FT2232"})
	info, ok = db.Lookup("0403", "6010")
	require.True(t, ok)
	assert.Equal(t, "FT2232", info.Chip)
}
