// internal/model/port.go
package model

// SimulatedPort is the reserved port identifier for running without hardware.
// Writes to it never touch OS I/O.
const SimulatedPort = "TEST"

// PortInfo describes a candidate port as reported by the OS enumerator
type PortInfo struct {
	Name         string `json:"name"`
	IsUSB        bool   `json:"is_usb"`
	VID          string `json:"vid,omitempty"`
	PID          string `json:"pid,omitempty"`
	SerialNumber string `json:"serial_number,omitempty"`
	Product      string `json:"product,omitempty"`
	Bridge       string `json:"bridge,omitempty"`
	Simulated    bool   `json:"simulated"`

	// LikelyGenerator marks bridge chips FY-series generators ship with
	LikelyGenerator bool `json:"likely_generator,omitempty"`
}

// RegistryStatus is a snapshot of the connection registry
type RegistryStatus struct {
	Active    string   `json:"active"`
	Selected  string   `json:"selected"`
	OpenPorts []string `json:"open_ports"`
	Simulated bool     `json:"simulated"`
	Profile   string   `json:"profile,omitempty"`
}
