package repository

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"printer-bridge/internal/model"
)

func completed(op *model.Operation, status model.OperationStatus, d time.Duration) *model.Operation {
	start := time.Now()
	end := start.Add(d)
	op.StartedAt, op.CompletedAt, op.Status = &start, &end, status
	return op
}

func TestCreateGetUpdate(t *testing.T) {
	ctx := context.Background()
	repo := NewOperationRepository(10, zap.NewNop())

	op := model.NewOperation(model.OperationPrint, "TCP:192.0.2.5")
	require.NoError(t, repo.Create(ctx, op))
	assert.Error(t, repo.Create(ctx, op))

	got, err := repo.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusPending, got.Status)

	// Stored copies are isolated from the caller
	got.Status = model.OperationStatusFailed
	again, _ := repo.GetByID(ctx, op.ID)
	assert.Equal(t, model.OperationStatusPending, again.Status)

	completed(op, model.OperationStatusSuccess, 20*time.Millisecond)
	require.NoError(t, repo.Update(ctx, op))
	got, err = repo.GetByID(ctx, op.ID)
	require.NoError(t, err)
	assert.Equal(t, model.OperationStatusSuccess, got.Status)
	assert.Equal(t, 20*time.Millisecond, got.Duration())

	_, err = repo.GetByID(ctx, model.NewOperation(model.OperationPrint, "").ID)
	assert.True(t, errors.Is(err, ErrOperationNotFound))
	assert.True(t, errors.Is(repo.Update(ctx, model.NewOperation(model.OperationPrint, "")), ErrOperationNotFound))
}

func TestHistoryEvictsOldest(t *testing.T) {
	ctx := context.Background()
	repo := NewOperationRepository(3, nil)

	var ops []*model.Operation
	for i := 0; i < 5; i++ {
		op := model.NewOperation(model.OperationGetStatus, "")
		ops = append(ops, op)
		require.NoError(t, repo.Create(ctx, op))
	}

	_, err := repo.GetByID(ctx, ops[0].ID)
	assert.Error(t, err)
	_, err = repo.GetByID(ctx, ops[1].ID)
	assert.Error(t, err)

	list, total, err := repo.List(ctx, nil)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	assert.Equal(t, ops[4].ID, list[0].ID)
	assert.Equal(t, ops[2].ID, list[2].ID)
}

func TestListFiltersAndPages(t *testing.T) {
	ctx := context.Background()
	repo := NewOperationRepository(0, nil)

	for i := 0; i < 4; i++ {
		require.NoError(t, repo.Create(ctx, completed(model.NewOperation(model.OperationPrint, "TCP:192.0.2.5"), model.OperationStatusSuccess, time.Millisecond)))
	}
	require.NoError(t, repo.Create(ctx, completed(model.NewOperation(model.OperationOpenCashDrawer, "TCP:192.0.2.5"), model.OperationStatusFailed, time.Millisecond)))
	require.NoError(t, repo.Create(ctx, model.NewOperation(model.OperationConnect, "TCP:192.0.2.6")))

	printType := model.OperationPrint
	list, total, err := repo.List(ctx, &OperationFilter{OperationType: &printType, Page: 2, PerPage: 3})
	require.NoError(t, err)
	assert.Equal(t, 4, total)
	assert.Len(t, list, 1)

	failed := model.OperationStatusFailed
	list, total, err = repo.List(ctx, &OperationFilter{Status: &failed})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	assert.Equal(t, model.OperationOpenCashDrawer, list[0].Type)

	target := "TCP:192.0.2.6"
	_, total, err = repo.List(ctx, &OperationFilter{Target: &target})
	require.NoError(t, err)
	assert.Equal(t, 1, total)

	list, total, err = repo.List(ctx, &OperationFilter{Page: 9})
	require.NoError(t, err)
	assert.Equal(t, 6, total)
	assert.Empty(t, list)
}

func TestOperationStats(t *testing.T) {
	ctx := context.Background()
	repo := NewOperationRepository(0, nil)

	require.NoError(t, repo.Create(ctx, completed(model.NewOperation(model.OperationPrint, ""), model.OperationStatusSuccess, 10*time.Millisecond)))
	require.NoError(t, repo.Create(ctx, completed(model.NewOperation(model.OperationPrint, ""), model.OperationStatusFailed, 30*time.Millisecond)))
	require.NoError(t, repo.Create(ctx, model.NewOperation(model.OperationConnect, "")))

	stats, err := repo.GetOperationStats(ctx)
	require.NoError(t, err)
	assert.Equal(t, 3, stats.TotalOperations)
	assert.Equal(t, 1, stats.SuccessfulOps)
	assert.Equal(t, 1, stats.FailedOps)
	assert.Equal(t, 1, stats.PendingOps)
	assert.Equal(t, 2, stats.ByType[model.OperationPrint])
	assert.Equal(t, 20*time.Millisecond, stats.AvgDuration)
}
