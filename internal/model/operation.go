// internal/model/operation.go
package model

import (
	"time"

	"github.com/google/uuid"
)

// OperationType names a facade operation
type OperationType string

const (
	OperationDiscoverPrinters    OperationType = "discoverPrinters"
	OperationDiscoverBluetooth   OperationType = "discoverBluetoothPrinters"
	OperationFindPairedBluetooth OperationType = "findPairedBluetoothPrinters"
	OperationDiscoverUsb         OperationType = "discoverUsbPrinters"
	OperationPair                OperationType = "pairBluetoothDevice"
	OperationConnect             OperationType = "connect"
	OperationDisconnect          OperationType = "disconnect"
	OperationPrint               OperationType = "printReceipt"
	OperationGetStatus           OperationType = "getStatus"
	OperationOpenCashDrawer      OperationType = "openCashDrawer"
	OperationIsConnected         OperationType = "isConnected"
	OperationUsbDiagnostics      OperationType = "usbDiagnostics"
)

// Serialized reports whether the operation must run on the device worker
func (t OperationType) Serialized() bool {
	switch t {
	case OperationConnect, OperationDisconnect, OperationPrint, OperationOpenCashDrawer, OperationGetStatus:
		return true
	}
	return false
}

// OperationStatus represents the status of an operation
type OperationStatus string

const (
	OperationStatusPending    OperationStatus = "PENDING"
	OperationStatusProcessing OperationStatus = "PROCESSING"
	OperationStatusSuccess    OperationStatus = "SUCCESS"
	OperationStatusFailed     OperationStatus = "FAILED"
)

// Operation tracks one dispatched call from submission to completion
type Operation struct {
	ID          uuid.UUID       `json:"id"`
	Type        OperationType   `json:"operation_type"`
	Target      string          `json:"target,omitempty"`
	Status      OperationStatus `json:"status"`
	SubmittedAt time.Time       `json:"submitted_at"`
	StartedAt   *time.Time      `json:"started_at,omitempty"`
	CompletedAt *time.Time      `json:"completed_at,omitempty"`
	ErrorCode   *ErrorCode      `json:"error_code,omitempty"`
	Error       *string         `json:"error_message,omitempty"`
}

// NewOperation creates a pending operation
func NewOperation(opType OperationType, target string) *Operation {
	return &Operation{
		ID:          uuid.New(),
		Type:        opType,
		Target:      target,
		Status:      OperationStatusPending,
		SubmittedAt: time.Now(),
	}
}

// IsCompleted checks if operation is completed (success or failed)
func (op *Operation) IsCompleted() bool {
	return op.Status == OperationStatusSuccess || op.Status == OperationStatusFailed
}

// Duration returns the elapsed time between start and completion
func (op *Operation) Duration() time.Duration {
	if op.StartedAt == nil || op.CompletedAt == nil {
		return 0
	}
	return op.CompletedAt.Sub(*op.StartedAt)
}

// EventData builds the event payload for the operation
func (op *Operation) EventData() OperationEventData {
	data := OperationEventData{
		OperationID:   op.ID,
		OperationType: op.Type,
		Status:        op.Status,
		ErrorCode:     op.ErrorCode,
		ErrorMessage:  op.Error,
	}
	if op.IsCompleted() {
		ms := op.Duration().Milliseconds()
		data.Duration = &ms
	}
	return data
}
