// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of notification emitted by the session
type EventType string

const (
	EventMessageSuccess EventType = "message_success"
	EventMessageFail    EventType = "message_fail"
	EventSimulatedWrite EventType = "simulated_write"
	EventPortConnected  EventType = "port_connected"
)

// Valid reports whether t is one of the emitted event types
func (t EventType) Valid() bool {
	switch t {
	case EventMessageSuccess, EventMessageFail, EventSimulatedWrite, EventPortConnected:
		return true
	}
	return false
}

// Notification is a best-effort event describing the outcome of a device write
type Notification struct {
	ID          uuid.UUID `json:"id"`
	Type        EventType `json:"type"`
	Description string    `json:"description"`
	Port        string    `json:"port,omitempty"`
	Command     string    `json:"command,omitempty"`
	ErrorCode   string    `json:"error_code,omitempty"`
	Timestamp   time.Time `json:"timestamp"`
}

// NewNotification stamps a notification with a fresh id and the current time
func NewNotification(eventType EventType, port, command, description string) Notification {
	return Notification{
		ID:          uuid.New(),
		Type:        eventType,
		Description: description,
		Port:        port,
		Command:     command,
		Timestamp:   time.Now(),
	}
}
