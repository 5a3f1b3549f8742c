// internal/repository/operation_repository.go
package repository

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"printer-bridge/internal/model"
)

// DefaultHistorySize is the number of operations kept when no size is given
const DefaultHistorySize = 500

// operationRepository keeps the most recent operations in memory. The
// oldest entry is evicted once the history is full.
type operationRepository struct {
	mu      sync.RWMutex
	order   []uuid.UUID
	entries map[uuid.UUID]*model.Operation
	limit   int
	logger  *zap.Logger
}

// NewOperationRepository creates a new operation repository
func NewOperationRepository(limit int, logger *zap.Logger) OperationRepository {
	if limit <= 0 {
		limit = DefaultHistorySize
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &operationRepository{
		entries: make(map[uuid.UUID]*model.Operation),
		limit:   limit,
		logger:  logger,
	}
}

// Create stores a copy of the operation
func (r *operationRepository) Create(ctx context.Context, operation *model.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[operation.ID]; exists {
		return fmt.Errorf("operation already exists with id: %s", operation.ID)
	}

	for len(r.order) >= r.limit {
		evicted := r.order[0]
		r.order = r.order[1:]
		delete(r.entries, evicted)
		r.logger.Debug("Evicted operation from history", zap.String("operation_id", evicted.String()))
	}

	r.entries[operation.ID] = cloneOperation(operation)
	r.order = append(r.order, operation.ID)
	return nil
}

// GetByID retrieves an operation by ID
func (r *operationRepository) GetByID(ctx context.Context, id uuid.UUID) (*model.Operation, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	op, ok := r.entries[id]
	if !ok {
		return nil, fmt.Errorf("%w with id: %s", ErrOperationNotFound, id)
	}
	return cloneOperation(op), nil
}

// Update replaces a stored operation
func (r *operationRepository) Update(ctx context.Context, operation *model.Operation) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, ok := r.entries[operation.ID]; !ok {
		return fmt.Errorf("%w with id: %s", ErrOperationNotFound, operation.ID)
	}
	r.entries[operation.ID] = cloneOperation(operation)
	return nil
}

// List returns matching operations, newest first
func (r *operationRepository) List(ctx context.Context, filter *OperationFilter) ([]*model.Operation, int, error) {
	if filter == nil {
		filter = &OperationFilter{}
	}
	page, perPage := filter.Page, filter.PerPage
	if page < 1 {
		page = 1
	}
	if perPage < 1 {
		perPage = 50
	}

	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*model.Operation
	for i := len(r.order) - 1; i >= 0; i-- {
		op := r.entries[r.order[i]]
		if filter.OperationType != nil && op.Type != *filter.OperationType {
			continue
		}
		if filter.Status != nil && op.Status != *filter.Status {
			continue
		}
		if filter.Target != nil && op.Target != *filter.Target {
			continue
		}
		matched = append(matched, op)
	}

	total := len(matched)
	start := (page - 1) * perPage
	if start >= total {
		return []*model.Operation{}, total, nil
	}
	end := start + perPage
	if end > total {
		end = total
	}

	result := make([]*model.Operation, 0, end-start)
	for _, op := range matched[start:end] {
		result = append(result, cloneOperation(op))
	}
	return result, total, nil
}

// GetOperationStats summarises the stored history
func (r *operationRepository) GetOperationStats(ctx context.Context) (*OperationStats, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := &OperationStats{
		ByType:   make(map[model.OperationType]int),
		ByStatus: make(map[model.OperationStatus]int),
	}

	var total time.Duration
	var completed int
	for _, op := range r.entries {
		stats.TotalOperations++
		stats.ByType[op.Type]++
		stats.ByStatus[op.Status]++
		switch op.Status {
		case model.OperationStatusSuccess:
			stats.SuccessfulOps++
		case model.OperationStatusFailed:
			stats.FailedOps++
		default:
			stats.PendingOps++
		}
		if op.IsCompleted() {
			total += op.Duration()
			completed++
		}
	}
	if completed > 0 {
		stats.AvgDuration = total / time.Duration(completed)
	}
	return stats, nil
}

func cloneOperation(op *model.Operation) *model.Operation {
	c := *op
	if op.StartedAt != nil {
		t := *op.StartedAt
		c.StartedAt = &t
	}
	if op.CompletedAt != nil {
		t := *op.CompletedAt
		c.CompletedAt = &t
	}
	if op.ErrorCode != nil {
		code := *op.ErrorCode
		c.ErrorCode = &code
	}
	if op.Error != nil {
		msg := *op.Error
		c.Error = &msg
	}
	return &c
}
