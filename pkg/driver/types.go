// pkg/driver/types.go
package driver

import (
	"time"

	"printer-bridge/internal/model"
)

// SessionOptions configures a printer session
type SessionOptions struct {
	Series        model.DeviceSeries    `json:"series"`
	Language      model.CommandLanguage `json:"language"`
	StatusTimeout time.Duration         `json:"status_timeout"`
}

// PrintResult reports what was sent for one print job
type PrintResult struct {
	JobID     string           `json:"job_id"`
	Segments  int              `json:"segments"`
	BytesSent int              `json:"bytes_sent"`
	Skipped   []SkippedCommand `json:"skipped,omitempty"`
	Duration  time.Duration    `json:"duration"`
}

// SkippedCommand records a command dropped by the best-effort policy
type SkippedCommand struct {
	Index  int    `json:"index"`
	Type   string `json:"type"`
	Reason string `json:"reason"`
}
