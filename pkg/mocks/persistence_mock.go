// Package mocks provides testify mocks for the persistence and event bus
// interfaces.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/dukex/modelflow/pkg/models"
)

// MockPersistence is a mock implementation of the persistence.Persistence interface.
type MockPersistence struct {
	mock.Mock
}

func (m *MockPersistence) SaveSession(ctx context.Context, session *models.Session) error {
	args := m.Called(ctx, session)

	return args.Error(0)
}

func (m *MockPersistence) SessionByID(ctx context.Context, id string) (*models.Session, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).(*models.Session), args.Error(1)
}

func (m *MockPersistence) Sessions(ctx context.Context) ([]models.SessionSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.SessionSummary), args.Error(1)
}

func (m *MockPersistence) ResumableSessions(ctx context.Context) ([]models.SessionSummary, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.SessionSummary), args.Error(1)
}

func (m *MockPersistence) DeleteSession(ctx context.Context, id string) error {
	args := m.Called(ctx, id)

	return args.Error(0)
}

func (m *MockPersistence) SaveCheckpoint(ctx context.Context, sessionID string, checkpoint models.Checkpoint) error {
	args := m.Called(ctx, sessionID, checkpoint)

	return args.Error(0)
}

func (m *MockPersistence) Checkpoints(ctx context.Context, sessionID string) ([]models.Checkpoint, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.Checkpoint), args.Error(1)
}

func (m *MockPersistence) AppendDecision(ctx context.Context, sessionID string, decision models.HitlDecision) error {
	args := m.Called(ctx, sessionID, decision)

	return args.Error(0)
}

func (m *MockPersistence) Decisions(ctx context.Context, sessionID string) ([]models.HitlDecision, error) {
	args := m.Called(ctx, sessionID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}

	return args.Get(0).([]models.HitlDecision), args.Error(1)
}

func (m *MockPersistence) HealthCheck(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}

func (m *MockPersistence) Close(ctx context.Context) error {
	args := m.Called(ctx)

	return args.Error(0)
}
