// internal/protocol/handle.go
package protocol

// Handle is the registry's view of an open port: either a real stream or
// the simulated sentinel. The set of variants is closed.
type Handle interface {
	handle()
	Kind() string
}

// RealHandle owns an open serial stream
type RealHandle struct {
	Stream Stream
}

func (*RealHandle) handle() {}

// Kind returns "serial"
func (*RealHandle) Kind() string { return "serial" }

// SimulatedHandle performs no I/O
type SimulatedHandle struct{}

func (SimulatedHandle) handle() {}

// Kind returns "simulated"
func (SimulatedHandle) Kind() string { return "simulated" }

// WriteObserver receives the bytes written to a simulated handle
type WriteObserver interface {
	ObserveWrite(port string, data []byte)
}

// WriteObserverFunc adapts a function to WriteObserver
type WriteObserverFunc func(port string, data []byte)

// ObserveWrite calls f(port, data)
func (f WriteObserverFunc) ObserveWrite(port string, data []byte) { f(port, data) }
