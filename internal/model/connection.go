// internal/model/connection.go
package model

import "time"

// ConnectionState of the connection manager
type ConnectionState string

const (
	StateDisconnected ConnectionState = "DISCONNECTED"
	StateConnecting   ConnectionState = "CONNECTING"
	StateConnected    ConnectionState = "CONNECTED"
)

// DefaultTimeout applies when a connect call passes no timeout
const DefaultTimeout = 15000 * time.Millisecond

// ConnectionHandle describes the single open printer session
type ConnectionHandle struct {
	Target      string          `json:"target"`
	Transport   TransportKind   `json:"transport"`
	Series      DeviceSeries    `json:"series"`
	Language    CommandLanguage `json:"language"`
	Timeout     time.Duration   `json:"timeout"`
	ConnectedAt time.Time       `json:"connected_at"`
}

// ConnectionInfo is the public view of the manager's state
type ConnectionInfo struct {
	State  ConnectionState   `json:"state"`
	Handle *ConnectionHandle `json:"handle,omitempty"`
}
