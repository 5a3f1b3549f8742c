// internal/handler/operation_handler.go
package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"printer-bridge/internal/model"
	"printer-bridge/internal/repository"
	"printer-bridge/internal/utils"
)

// OperationHandler serves the dispatched operation history
type OperationHandler struct {
	operations repository.OperationRepository
	logger     *utils.ServiceLogger
}

// NewOperationHandler creates a new operation handler
func NewOperationHandler(operations repository.OperationRepository, logger *zap.Logger) *OperationHandler {
	return &OperationHandler{
		operations: operations,
		logger:     utils.NewServiceLogger(logger, "operation-handler"),
	}
}

// GetOperation retrieves operation by ID
func (h *OperationHandler) GetOperation(c *gin.Context) {
	id, err := uuid.Parse(c.Param("operation_id"))
	if err != nil {
		utils.ErrorResponse(c, http.StatusBadRequest, "Invalid operation ID", err)
		return
	}

	operation, err := h.operations.GetByID(c.Request.Context(), id)
	if err != nil {
		if errors.Is(err, repository.ErrOperationNotFound) {
			utils.ErrorResponse(c, http.StatusNotFound, "Operation not found", err)
			return
		}
		h.logger.Error("Failed to get operation", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get operation", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Operation retrieved successfully", operation)
}

// ListOperations lists operations newest first with filtering
func (h *OperationHandler) ListOperations(c *gin.Context) {
	filter := &repository.OperationFilter{
		Page:    1,
		PerPage: 20,
	}

	// Parse pagination
	if page := c.Query("page"); page != "" {
		if p, err := strconv.Atoi(page); err == nil && p > 0 {
			filter.Page = p
		}
	}
	if perPage := c.Query("per_page"); perPage != "" {
		if pp, err := strconv.Atoi(perPage); err == nil && pp > 0 && pp <= 100 {
			filter.PerPage = pp
		}
	}

	// Parse filters
	if opType := c.Query("operation_type"); opType != "" {
		t := model.OperationType(opType)
		filter.OperationType = &t
	}
	if status := c.Query("status"); status != "" {
		s := model.OperationStatus(status)
		filter.Status = &s
	}
	if target := c.Query("target"); target != "" {
		filter.Target = &target
	}

	operations, total, err := h.operations.List(c.Request.Context(), filter)
	if err != nil {
		h.logger.Error("Failed to list operations", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to list operations", err)
		return
	}

	utils.SuccessResponse(c, http.StatusOK, "Operations retrieved successfully", gin.H{
		"operations": operations,
		"pagination": gin.H{
			"page":     filter.Page,
			"per_page": filter.PerPage,
			"total":    total,
		},
	})
}

// GetOperationStats summarizes the history
func (h *OperationHandler) GetOperationStats(c *gin.Context) {
	stats, err := h.operations.GetOperationStats(c.Request.Context())
	if err != nil {
		h.logger.Error("Failed to get operation stats", zap.Error(err))
		utils.ErrorResponse(c, http.StatusInternalServerError, "Failed to get operation stats", err)
		return
	}
	utils.SuccessResponse(c, http.StatusOK, "Operation stats retrieved successfully", stats)
}
