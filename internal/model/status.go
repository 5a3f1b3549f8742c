// internal/model/status.go
package model

// PaperState represents the paper supply level
type PaperState string

const (
	PaperOK      PaperState = "OK"
	PaperNearEnd PaperState = "NEAR_END"
	PaperEmpty   PaperState = "EMPTY"
)

// Status error codes reported in PrinterStatus.ErrorCode
const (
	StatusErrNotConnected  = "NOT_CONNECTED"
	StatusErrCommunication = "COMMUNICATION_ERR"
	StatusErrMechanical    = "MECHANICAL_ERR"
	StatusErrAutocutter    = "AUTOCUTTER_ERR"
	StatusErrUnrecoverable = "UNRECOVER_ERR"
	StatusErrAutoRecover   = "AUTORECOVER_ERR"
	StatusErrCoverOpen     = "COVER_OPEN"
	StatusErrPaperEmpty    = "RECEIPT_END"
)

// RawStatus holds the reply byte of each DLE EOT n request. A nil entry
// means the printer did not answer that request.
type RawStatus struct {
	Printer   *byte `json:"printer,omitempty"`
	Offline   *byte `json:"offline,omitempty"`
	Error     *byte `json:"error,omitempty"`
	RollPaper *byte `json:"roll_paper,omitempty"`
}

// PrinterStatus is a snapshot of the printer's real-time status
type PrinterStatus struct {
	Online               bool       `json:"online"`
	CoverOpen            bool       `json:"cover_open"`
	Paper                PaperState `json:"paper"`
	DrawerOpen           bool       `json:"drawer_open"`
	ErrorCode            string     `json:"error_code,omitempty"`
	WaitingForRecovery   bool       `json:"waiting_for_recovery"`
	FeedButtonPressed    bool       `json:"feed_button_pressed"`
	PaperFeedByButton    bool       `json:"paper_feed_by_button"`
	PaperEndStop         bool       `json:"paper_end_stop"`
	ErrorOccurred        bool       `json:"error_occurred"`
	MechanicalError      bool       `json:"mechanical_error"`
	AutocutterError      bool       `json:"autocutter_error"`
	UnrecoverableError   bool       `json:"unrecoverable_error"`
	AutoRecoverableError bool       `json:"auto_recoverable_error"`
	Raw                  RawStatus  `json:"raw"`
}

// DisconnectedStatus is reported when no connection is open
func DisconnectedStatus() PrinterStatus {
	return PrinterStatus{Online: false, Paper: PaperOK, ErrorCode: StatusErrNotConnected}
}

// ToMap renders the status in the dictionary form the plugins returned
func (s PrinterStatus) ToMap() map[string]interface{} {
	m := map[string]interface{}{
		"isOnline":    s.Online,
		"coverOpen":   s.CoverOpen,
		"paper":       string(s.Paper),
		"drawerOpen":  s.DrawerOpen,
		"status":      "ok",
		"errorStatus": nil,
	}
	if s.ErrorCode != "" {
		m["status"] = "error"
		m["errorStatus"] = s.ErrorCode
	}
	return m
}
