// internal/service/requests.go
package service

import "printer-bridge/internal/model"

// PairRequest names the Bluetooth device to pair, as a MAC address with or
// without the BT: prefix. A missing address is reported through the result
// code.
type PairRequest struct {
	Address string `json:"address"`
}

// ConnectRequest represents a request to open the printer connection.
// Nil fields take the configured defaults.
type ConnectRequest struct {
	TargetString    string `json:"targetString" binding:"required"`
	PrinterSeries   *int   `json:"printerSeries,omitempty" binding:"omitempty,min=0,max=29"`
	PrinterLanguage *int   `json:"printerLanguage,omitempty" binding:"omitempty,min=0,max=6"`
	Timeout         *int   `json:"timeout,omitempty" binding:"omitempty,min=1"`
}

// PrintRequest represents a print job. When Target is set it must name the
// connected printer.
type PrintRequest struct {
	Target   string              `json:"target,omitempty"`
	Commands []model.CommandSpec `json:"commands" binding:"required,min=1"`
}

// OpenCashDrawerRequest represents a drawer kick
type OpenCashDrawerRequest struct {
	Pin         *int `json:"pin,omitempty" binding:"omitempty,oneof=2 5"`
	PulseMillis *int `json:"pulseMillis,omitempty" binding:"omitempty,min=1,max=510"`
}
