// internal/discovery/enumerator.go
package discovery

import (
	"context"

	"go.bug.st/serial"
	"go.bug.st/serial/enumerator"
	"go.uber.org/zap"

	"siggen-service/internal/model"
)

// Enumerator lists OS-visible serial ports plus the simulated port.
// Every call queries the OS afresh.
type Enumerator struct {
	listPorts         func() ([]string, error)
	listDetailedPorts func() ([]*enumerator.PortDetails, error)
	bridges           *BridgeDatabase
	logger            *zap.Logger
}

// NewEnumerator creates an enumerator backed by go.bug.st/serial
func NewEnumerator(logger *zap.Logger) *Enumerator {
	return &Enumerator{
		listPorts:         serial.GetPortsList,
		listDetailedPorts: enumerator.GetDetailedPortsList,
		bridges:           NewBridgeDatabase(),
		logger:            logger.With(zap.String("component", "enumerator")),
	}
}

// List returns the candidate port names with the simulated port last.
// An OS query failure degrades to an empty real-port list.
func (e *Enumerator) List(ctx context.Context) []string {
	ports, err := e.listPorts()
	if err != nil {
		e.logger.Warn("Failed to list serial ports", zap.Error(err))
		ports = nil
	}

	candidates := make([]string, 0, len(ports)+1)
	for _, port := range ports {
		if port == model.SimulatedPort {
			continue
		}
		candidates = append(candidates, port)
	}

	e.logger.Debug("Serial ports listed", zap.Strings("ports", candidates))
	return append(candidates, model.SimulatedPort)
}

// Describe is List with USB identity where the OS exposes it. Known
// USB-serial bridge chips are named.
func (e *Enumerator) Describe(ctx context.Context) []model.PortInfo {
	details, err := e.listDetailedPorts()
	if err != nil {
		e.logger.Warn("Failed to list detailed serial ports", zap.Error(err))
		details = nil
	}

	infos := make([]model.PortInfo, 0, len(details)+1)
	for _, d := range details {
		if d == nil || d.Name == model.SimulatedPort {
			continue
		}
		info := model.PortInfo{
			Name:         d.Name,
			IsUSB:        d.IsUSB,
			VID:          d.VID,
			PID:          d.PID,
			SerialNumber: d.SerialNumber,
			Product:      d.Product,
		}
		if d.IsUSB {
			if bridge, ok := e.bridges.Lookup(d.VID, d.PID); ok {
				info.Bridge = bridge.Chip
				info.LikelyGenerator = bridge.Generator
			}
		}
		infos = append(infos, info)
	}

	return append(infos, model.PortInfo{
		Name:      model.SimulatedPort,
		Simulated: true,
	})
}
