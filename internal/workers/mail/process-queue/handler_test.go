// internal/workers/mail/process-queue/handler_test.go
package processqueue

import (
	"context"
	"errors"
	"testing"

	"followup-workers/internal/common/logger"
	"followup-workers/internal/mailqueue"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// ==========================
// Mock Processor
// ==========================

type mockProcessor struct {
	ProcessQueueFunc  func(ctx context.Context, limit int) (*mailqueue.BatchResult, error)
	GetEmailStatsFunc func(ctx context.Context) (*mailqueue.Stats, error)
	limits            []int
}

func (m *mockProcessor) ProcessQueue(ctx context.Context, limit int) (*mailqueue.BatchResult, error) {
	m.limits = append(m.limits, limit)
	if m.ProcessQueueFunc != nil {
		return m.ProcessQueueFunc(ctx, limit)
	}
	return &mailqueue.BatchResult{}, nil
}

func (m *mockProcessor) GetEmailStats(ctx context.Context) (*mailqueue.Stats, error) {
	if m.GetEmailStatsFunc != nil {
		return m.GetEmailStatsFunc(ctx)
	}
	return &mailqueue.Stats{}, nil
}

// ==========================
// Test Helpers
// ==========================

func createTestHandler(t *testing.T, service *mockProcessor) *Handler {
	t.Helper()
	return NewHandler(DefaultConfig(), service, logger.NewTestLogger(t))
}

// ==========================
// Execute Tests
// ==========================

func TestExecute_UsesConfiguredBatchLimit(t *testing.T) {
	service := &mockProcessor{}
	handler := createTestHandler(t, service)

	_, err := handler.Execute(context.Background(), &Input{})

	require.NoError(t, err)
	require.Len(t, service.limits, 1)
	assert.Equal(t, DefaultConfig().BatchLimit, service.limits[0])
}

func TestExecute_InputLimitOverridesConfig(t *testing.T) {
	service := &mockProcessor{}
	handler := createTestHandler(t, service)

	_, err := handler.Execute(context.Background(), &Input{Limit: 3})

	require.NoError(t, err)
	require.Len(t, service.limits, 1)
	assert.Equal(t, 3, service.limits[0])
}

func TestExecute_ReportsBatchCounts(t *testing.T) {
	service := &mockProcessor{
		ProcessQueueFunc: func(ctx context.Context, limit int) (*mailqueue.BatchResult, error) {
			return &mailqueue.BatchResult{Attempted: 4, Sent: 3, Failed: 1}, nil
		},
		GetEmailStatsFunc: func(ctx context.Context) (*mailqueue.Stats, error) {
			return &mailqueue.Stats{Pending: 2, Sent: 10, Failed: 1}, nil
		},
	}
	handler := createTestHandler(t, service)

	output, err := handler.Execute(context.Background(), &Input{})

	require.NoError(t, err)
	assert.True(t, output.Success)
	assert.Equal(t, 4, output.Attempted)
	assert.Equal(t, 3, output.Sent)
	assert.Equal(t, 1, output.Failed)
	require.NotNil(t, output.Stats)
	assert.Equal(t, 2, output.Stats.Pending)
}

func TestExecute_StatsFailureIsNonFatal(t *testing.T) {
	service := &mockProcessor{
		ProcessQueueFunc: func(ctx context.Context, limit int) (*mailqueue.BatchResult, error) {
			return &mailqueue.BatchResult{Attempted: 1, Sent: 1}, nil
		},
		GetEmailStatsFunc: func(ctx context.Context) (*mailqueue.Stats, error) {
			return nil, errors.New("stats query timeout")
		},
	}
	handler := createTestHandler(t, service)

	output, err := handler.Execute(context.Background(), &Input{})

	require.NoError(t, err)
	assert.True(t, output.Success)
	assert.Nil(t, output.Stats)
}

func TestExecute_ProcessingErrorPropagates(t *testing.T) {
	service := &mockProcessor{
		ProcessQueueFunc: func(ctx context.Context, limit int) (*mailqueue.BatchResult, error) {
			return nil, errors.New("select pending emails: connection refused")
		},
	}
	handler := createTestHandler(t, service)

	_, err := handler.Execute(context.Background(), &Input{})

	assert.Error(t, err)
}

// ==========================
// Config Tests
// ==========================

func TestConfigValidate(t *testing.T) {
	config := DefaultConfig()
	assert.NoError(t, config.Validate())

	config.BatchLimit = 0
	assert.Error(t, config.Validate())
}
