// internal/driver/epson/status.go
package epson

import (
	"fmt"

	"printer-bridge/internal/model"
)

// Fixed bits present in every DLE EOT reply: bit 1 and bit 4 set, bit 0 and
// bit 7 clear
const (
	statusFixedMask  byte = 0x93
	statusFixedValue byte = 0x12
)

// DLE EOT 1 (printer status)
const (
	printerDrawerPin3 byte = 1 << 2
	printerOffline    byte = 1 << 3
	printerWaiting    byte = 1 << 5
	printerFeedButton byte = 1 << 6
)

// DLE EOT 2 (offline cause)
const (
	offlineCoverOpen  byte = 1 << 2
	offlineFeedButton byte = 1 << 3
	offlinePaperEnd   byte = 1 << 5
	offlineError      byte = 1 << 6
)

// DLE EOT 3 (error cause)
const (
	errorMechanical    byte = 1 << 2
	errorAutocutter    byte = 1 << 3
	errorUnrecoverable byte = 1 << 5
	errorAutoRecover   byte = 1 << 6
)

// DLE EOT 4 (roll paper sensor); each pair of bits reports one sensor
const (
	paperNearEnd byte = 0x0C
	paperEnd     byte = 0x60
)

// ValidStatusByte reports whether b carries the fixed DLE EOT bit pattern
func ValidStatusByte(b byte) bool {
	return b&statusFixedMask == statusFixedValue
}

// DecodeStatus maps raw DLE EOT replies to a PrinterStatus. Every variable
// bit is mapped to a field; the fixed bits are validated and discarded. A
// missing or malformed reply leaves its fields at their zero value and
// reports COMMUNICATION_ERR unless a more specific error applies.
func DecodeStatus(raw model.RawStatus) model.PrinterStatus {
	status := model.PrinterStatus{Paper: model.PaperOK, Raw: raw}
	malformed := false

	if b, ok := validByte(raw.Printer, &malformed); ok {
		status.DrawerOpen = b&printerDrawerPin3 != 0
		status.Online = b&printerOffline == 0
		status.WaitingForRecovery = b&printerWaiting != 0
		status.FeedButtonPressed = b&printerFeedButton != 0
	}

	if b, ok := validByte(raw.Offline, &malformed); ok {
		status.CoverOpen = b&offlineCoverOpen != 0
		status.PaperFeedByButton = b&offlineFeedButton != 0
		status.PaperEndStop = b&offlinePaperEnd != 0
		status.ErrorOccurred = b&offlineError != 0
	}

	if b, ok := validByte(raw.Error, &malformed); ok {
		status.MechanicalError = b&errorMechanical != 0
		status.AutocutterError = b&errorAutocutter != 0
		status.UnrecoverableError = b&errorUnrecoverable != 0
		status.AutoRecoverableError = b&errorAutoRecover != 0
	}

	if b, ok := validByte(raw.RollPaper, &malformed); ok {
		switch {
		case b&paperEnd != 0:
			status.Paper = model.PaperEmpty
		case b&paperNearEnd != 0:
			status.Paper = model.PaperNearEnd
		}
	}

	status.ErrorCode = errorCode(status)
	if status.ErrorCode == "" && (malformed || raw.Printer == nil) {
		status.ErrorCode = model.StatusErrCommunication
	}
	if raw.Printer == nil {
		status.Online = false
	}
	return status
}

func validByte(b *byte, malformed *bool) (byte, bool) {
	if b == nil {
		return 0, false
	}
	if !ValidStatusByte(*b) {
		*malformed = true
		return 0, false
	}
	return *b, true
}

// errorCode picks the most severe condition
func errorCode(s model.PrinterStatus) string {
	switch {
	case s.UnrecoverableError:
		return model.StatusErrUnrecoverable
	case s.AutocutterError:
		return model.StatusErrAutocutter
	case s.MechanicalError:
		return model.StatusErrMechanical
	case s.AutoRecoverableError:
		return model.StatusErrAutoRecover
	case s.CoverOpen:
		return model.StatusErrCoverOpen
	case s.Paper == model.PaperEmpty:
		return model.StatusErrPaperEmpty
	}
	return ""
}

// FormatStatusByte renders a reply byte for logs
func FormatStatusByte(b *byte) string {
	if b == nil {
		return "none"
	}
	return fmt.Sprintf("0x%02X", *b)
}
