// internal/repository/interfaces.go
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"printer-bridge/internal/model"
)

// ErrOperationNotFound is returned for unknown operation ids
var ErrOperationNotFound = errors.New("operation not found")

// OperationRepository defines operation history access
type OperationRepository interface {
	Create(ctx context.Context, operation *model.Operation) error
	GetByID(ctx context.Context, id uuid.UUID) (*model.Operation, error)
	Update(ctx context.Context, operation *model.Operation) error

	// Listing and filtering
	List(ctx context.Context, filter *OperationFilter) ([]*model.Operation, int, error)

	// Analytics and reporting
	GetOperationStats(ctx context.Context) (*OperationStats, error)
}

// OperationFilter represents operation listing filters
type OperationFilter struct {
	OperationType *model.OperationType   `json:"operation_type,omitempty"`
	Status        *model.OperationStatus `json:"status,omitempty"`
	Target        *string                `json:"target,omitempty"`
	Page          int                    `json:"page"`
	PerPage       int                    `json:"per_page"`
}

// OperationStats represents operation statistics
type OperationStats struct {
	TotalOperations int                           `json:"total_operations"`
	SuccessfulOps   int                           `json:"successful_operations"`
	FailedOps       int                           `json:"failed_operations"`
	PendingOps      int                           `json:"pending_operations"`
	AvgDuration     time.Duration                 `json:"average_duration"`
	ByType          map[model.OperationType]int   `json:"by_type"`
	ByStatus        map[model.OperationStatus]int `json:"by_status"`
}
