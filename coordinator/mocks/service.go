package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/edgechain/edgechain/coordinator"
	"github.com/edgechain/edgechain/pkg/fl"
)

// MockService is a mock implementation of the coordinator.Service interface
type MockService struct {
	mock.Mock
}

// Submit records one participant submission
func (m *MockService) Submit(ctx context.Context, sub fl.ModelSubmission) (coordinator.SubmitOutcome, error) {
	args := m.Called(ctx, sub)
	return args.Get(0).(coordinator.SubmitOutcome), args.Error(1)
}

// Status reports the current round state
func (m *MockService) Status(ctx context.Context) (coordinator.Status, error) {
	args := m.Called(ctx)
	return args.Get(0).(coordinator.Status), args.Error(1)
}

// Aggregate runs one aggregation pass
func (m *MockService) Aggregate(ctx context.Context) (fl.AggregationResult, error) {
	args := m.Called(ctx)
	return args.Get(0).(fl.AggregationResult), args.Error(1)
}

// GlobalModel returns the latest global model
func (m *MockService) GlobalModel(ctx context.Context) (fl.GlobalModel, error) {
	args := m.Called(ctx)
	return args.Get(0).(fl.GlobalModel), args.Error(1)
}

// History pages through past aggregation results
func (m *MockService) History(ctx context.Context, offset, limit uint64) (coordinator.HistoryPage, error) {
	args := m.Called(ctx, offset, limit)
	return args.Get(0).(coordinator.HistoryPage), args.Error(1)
}

// Subscribe attaches the coordinator to the broker submission topic
func (m *MockService) Subscribe(ctx context.Context) error {
	args := m.Called(ctx)
	return args.Error(0)
}
