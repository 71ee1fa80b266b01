// internal/registry/registry.go
package registry

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"

	"siggen-service/internal/model"
	"siggen-service/internal/protocol"
)

// Registry owns every open port handle and the active/selected port names.
//
// The coarse mutex guards the map and both names; each entry carries its own
// mutex for the I/O object so a slow write never blocks bookkeeping for other
// ports, while two writers to the same port always serialize.
type Registry struct {
	opener      protocol.Opener
	observer    protocol.WriteObserver
	readTimeout time.Duration
	logger      *zap.Logger

	mu       sync.Mutex
	entries  map[string]*entry
	active   string
	selected string
}

type entry struct {
	mu     sync.Mutex
	port   string
	handle protocol.Handle
	closed bool
}

// Option configures a Registry
type Option func(*Registry)

// WithObserver sets the observer that receives simulated writes
func WithObserver(observer protocol.WriteObserver) Option {
	return func(r *Registry) {
		r.observer = observer
	}
}

// WithReadTimeout sets the read timeout used for real ports
func WithReadTimeout(timeout time.Duration) Option {
	return func(r *Registry) {
		r.readTimeout = timeout
	}
}

// New creates an empty registry. The simulated port is selected until a reconnect
// picks something else.
func New(opener protocol.Opener, logger *zap.Logger, opts ...Option) *Registry {
	r := &Registry{
		opener:      opener,
		readTimeout: 50 * time.Millisecond,
		logger:      logger.With(zap.String("component", "registry")),
		entries:     make(map[string]*entry),
		selected:    model.SimulatedPort,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Open opens port at baudRate and stores its handle. The key is reserved before
// the OS open so a concurrent Open of the same port fails with ErrPortAlreadyOpen.
func (r *Registry) Open(ctx context.Context, port string, baudRate int) error {
	_, _, err := r.open(ctx, baudRate, func() string { return port })
	return err
}

// open reserves the port named by target and opens it. target is evaluated
// under the coarse lock, in the same critical section as the reservation.
func (r *Registry) open(ctx context.Context, baudRate int, target func() string) (string, *entry, error) {
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}

	r.mu.Lock()
	port := target()
	if port == "" {
		r.mu.Unlock()
		return "", nil, model.InvalidParameter("empty port name")
	}
	if _, exists := r.entries[port]; exists {
		r.mu.Unlock()
		return port, nil, fmt.Errorf("%w: %s", model.ErrPortAlreadyOpen, port)
	}
	e := &entry{port: port}
	e.mu.Lock()
	r.entries[port] = e
	r.mu.Unlock()

	if port == model.SimulatedPort {
		e.handle = protocol.SimulatedHandle{}
		e.mu.Unlock()
		r.logger.Info("Simulated port opened", zap.String("port", port))
		return port, e, nil
	}

	if baudRate <= 0 {
		r.abandon(e)
		return port, nil, model.InvalidParameter("baud rate must be positive, got %d", baudRate)
	}

	stream, err := r.opener(protocol.PortSettings{
		Port:        port,
		BaudRate:    baudRate,
		ReadTimeout: r.readTimeout,
	})
	if err != nil {
		r.abandon(e)
		r.logger.Warn("Failed to open port",
			zap.String("port", port),
			zap.Int("baud_rate", baudRate),
			zap.Error(err),
		)
		return port, nil, model.IoError("open", port, err)
	}

	e.handle = &protocol.RealHandle{Stream: stream}
	e.mu.Unlock()

	r.logger.Info("Port opened",
		zap.String("port", port),
		zap.Int("baud_rate", baudRate),
	)
	return port, e, nil
}

// abandon drops a reserved entry whose open failed. Called with e.mu held.
func (r *Registry) abandon(e *entry) {
	e.closed = true
	e.mu.Unlock()

	r.mu.Lock()
	if r.entries[e.port] == e {
		delete(r.entries, e.port)
	}
	r.mu.Unlock()
}

// Close removes port from the registry and releases its handle
func (r *Registry) Close(port string) error {
	r.mu.Lock()
	e, exists := r.entries[port]
	if !exists {
		r.mu.Unlock()
		return fmt.Errorf("%w: %s", model.ErrPortNotFound, port)
	}
	delete(r.entries, port)
	if r.active == port {
		r.active = ""
	}
	r.mu.Unlock()

	return r.release(e)
}

// release closes the entry's handle once in-flight I/O on it has finished
func (r *Registry) release(e *entry) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	handle := e.handle
	e.handle = nil
	e.closed = true

	switch h := handle.(type) {
	case *protocol.RealHandle:
		if err := h.Stream.Close(); err != nil {
			r.logger.Warn("Error closing port", zap.String("port", e.port), zap.Error(err))
			return model.IoError("close", e.port, err)
		}
	case protocol.SimulatedHandle, nil:
	}

	r.logger.Info("Port closed", zap.String("port", e.port))
	return nil
}

// Write sends data to port: the entry lock is held for the full write and flush.
// Simulated ports never touch OS I/O; the data goes to the observer instead.
func (r *Registry) Write(ctx context.Context, port string, data []byte) error {
	r.mu.Lock()
	e, exists := r.entries[port]
	r.mu.Unlock()

	if !exists {
		return fmt.Errorf("%w: %s", model.ErrPortNotFound, port)
	}
	return r.writeEntry(ctx, e, data)
}

func (r *Registry) writeEntry(ctx context.Context, e *entry, data []byte) error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.closed || e.handle == nil {
		return fmt.Errorf("%w: %s", model.ErrPortNotOpen, e.port)
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	switch h := e.handle.(type) {
	case *protocol.RealHandle:
		if _, err := h.Stream.Write(data); err != nil {
			return model.IoError("write", e.port, err)
		}
		if err := h.Stream.Drain(); err != nil {
			return model.IoError("flush", e.port, err)
		}
	case protocol.SimulatedHandle:
		if r.observer != nil {
			r.observer.ObserveWrite(e.port, append([]byte(nil), data...))
		}
	}
	return nil
}

// EvictAll closes and removes every entry, returning the removed port names.
// It succeeds on an empty registry.
func (r *Registry) EvictAll() []string {
	r.mu.Lock()
	evicted := r.detachAll()
	r.active = ""
	r.mu.Unlock()

	return r.releaseAll(evicted)
}

// detachAll empties the map. Called with r.mu held.
func (r *Registry) detachAll() []*entry {
	evicted := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		evicted = append(evicted, e)
	}
	r.entries = make(map[string]*entry)
	return evicted
}

func (r *Registry) releaseAll(evicted []*entry) []string {
	names := make([]string, 0, len(evicted))
	for _, e := range evicted {
		_ = r.release(e)
		names = append(names, e.port)
	}
	sort.Strings(names)

	if len(names) > 0 {
		r.logger.Info("Evicted ports", zap.Strings("ports", names))
	}
	return names
}

// Install makes handle the only entry and names it active and selected, all in
// one critical section. Previous handles are closed after the swap.
func (r *Registry) Install(port string, handle protocol.Handle) []string {
	r.mu.Lock()
	evicted := r.detachAll()
	r.entries[port] = &entry{port: port, handle: handle}
	r.active = port
	r.selected = port
	r.mu.Unlock()

	r.logger.Info("Port installed",
		zap.String("port", port),
		zap.String("handle", handle.Kind()),
	)
	return r.releaseAll(evicted)
}

// OpenSelected opens the selected port and makes it active. The selection is
// read while reserving, so a concurrent Install either wins before the read
// (and this reports ErrPortAlreadyOpen) or evicts the reservation.
func (r *Registry) OpenSelected(ctx context.Context, baudRate int) (string, error) {
	port, e, err := r.open(ctx, baudRate, func() string { return r.selected })
	if err != nil {
		return port, err
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if r.entries[port] != e {
		return port, fmt.Errorf("%w: %s was evicted while opening", model.ErrPortNotOpen, port)
	}
	r.active = port
	return port, nil
}

// CloseActive closes the active port. The selection is kept so a later
// OpenSelected reopens the same port.
func (r *Registry) CloseActive() (string, error) {
	r.mu.Lock()
	port := r.active
	if port == "" {
		selected := r.selected
		r.mu.Unlock()
		return selected, fmt.Errorf("%w: %s", model.ErrPortNotFound, selected)
	}
	r.mu.Unlock()

	return port, r.Close(port)
}

// WriteActive writes data to the active port
func (r *Registry) WriteActive(ctx context.Context, data []byte) (string, error) {
	r.mu.Lock()
	port := r.active
	selected := r.selected
	e := r.entries[port]
	r.mu.Unlock()

	if port == "" || e == nil {
		return selected, fmt.Errorf("%w: no active port (selected %s)", model.ErrPortNotOpen, selected)
	}
	return port, r.writeEntry(ctx, e, data)
}

// Active returns the active port name, or "" when nothing is active
func (r *Registry) Active() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.active
}

// Selected returns the port OpenSelected targets
func (r *Registry) Selected() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.selected
}

// Ports returns the open port names in sorted order
func (r *Registry) Ports() []string {
	r.mu.Lock()
	defer r.mu.Unlock()

	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Handle returns the handle stored for port, if any
func (r *Registry) Handle(port string) (protocol.Handle, bool) {
	r.mu.Lock()
	e, exists := r.entries[port]
	r.mu.Unlock()
	if !exists {
		return nil, false
	}

	e.mu.Lock()
	defer e.mu.Unlock()
	if e.closed || e.handle == nil {
		return nil, false
	}
	return e.handle, true
}

// Stats returns stream statistics for every open real port that tracks them
func (r *Registry) Stats() map[string]protocol.ProtocolStats {
	r.mu.Lock()
	entries := make([]*entry, 0, len(r.entries))
	for _, e := range r.entries {
		entries = append(entries, e)
	}
	r.mu.Unlock()

	stats := make(map[string]protocol.ProtocolStats)
	for _, e := range entries {
		e.mu.Lock()
		if h, ok := e.handle.(*protocol.RealHandle); ok && !e.closed {
			if provider, ok := h.Stream.(protocol.StatsProvider); ok {
				stats[e.port] = provider.Stats()
			}
		}
		e.mu.Unlock()
	}
	return stats
}

// Status returns a consistent snapshot of the registry
func (r *Registry) Status() model.RegistryStatus {
	r.mu.Lock()
	defer r.mu.Unlock()

	ports := make([]string, 0, len(r.entries))
	for name := range r.entries {
		ports = append(ports, name)
	}
	sort.Strings(ports)

	return model.RegistryStatus{
		Active:    r.active,
		Selected:  r.selected,
		OpenPorts: ports,
		Simulated: r.active == model.SimulatedPort,
	}
}
