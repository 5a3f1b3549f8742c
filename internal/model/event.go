// internal/model/event.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of event
type EventType string

const (
	EventPrinterConnected    EventType = "PRINTER_CONNECTED"
	EventPrinterDisconnected EventType = "PRINTER_DISCONNECTED"
	EventPrinterError        EventType = "PRINTER_ERROR"
	EventOperationStarted    EventType = "OPERATION_STARTED"
	EventOperationCompleted  EventType = "OPERATION_COMPLETED"
	EventOperationFailed     EventType = "OPERATION_FAILED"
	EventStatusChange        EventType = "STATUS_CHANGE"
	EventDiscoveryCompleted  EventType = "DISCOVERY_COMPLETED"
)

// Event severities
const (
	SeverityInfo    = "INFO"
	SeverityWarning = "WARNING"
	SeverityError   = "ERROR"
)

// PrinterEvent represents an event published to subscribers
type PrinterEvent struct {
	ID        uuid.UUID              `json:"id"`
	EventType EventType              `json:"event_type"`
	Target    string                 `json:"target,omitempty"`
	Data      map[string]interface{} `json:"data,omitempty"`
	Timestamp time.Time              `json:"timestamp"`
	Source    string                 `json:"source"`
	Severity  string                 `json:"severity"`
}

// NewEvent creates an event stamped with a fresh id and the current time
func NewEvent(eventType EventType, target string, data map[string]interface{}) PrinterEvent {
	severity := SeverityInfo
	switch eventType {
	case EventPrinterError, EventOperationFailed:
		severity = SeverityError
	}
	return PrinterEvent{
		ID:        uuid.New(),
		EventType: eventType,
		Target:    target,
		Data:      data,
		Timestamp: time.Now(),
		Source:    "printer-bridge",
		Severity:  severity,
	}
}

// OperationEventData describes a dispatched operation in event payloads
type OperationEventData struct {
	OperationID   uuid.UUID       `json:"operation_id"`
	OperationType OperationType   `json:"operation_type"`
	Status        OperationStatus `json:"status"`
	Duration      *int64          `json:"duration_ms,omitempty"`
	ErrorCode     *ErrorCode      `json:"error_code,omitempty"`
	ErrorMessage  *string         `json:"error_message,omitempty"`
}

// ToMap flattens the payload for PrinterEvent.Data
func (d OperationEventData) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"operation_id":   d.OperationID.String(),
		"operation_type": string(d.OperationType),
		"status":         string(d.Status),
	}
	if d.Duration != nil {
		m["duration_ms"] = *d.Duration
	}
	if d.ErrorCode != nil {
		m["error_code"] = string(*d.ErrorCode)
	}
	if d.ErrorMessage != nil {
		m["error_message"] = *d.ErrorMessage
	}
	return m
}

// EventPublisher receives printer events. Publish must not block.
type EventPublisher interface {
	Publish(event PrinterEvent)
}

// NopPublisher discards events
type NopPublisher struct{}

func (NopPublisher) Publish(PrinterEvent) {}
