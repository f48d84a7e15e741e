package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"social-story-server/internal/models"
	"social-story-server/internal/service"
)

// Mock BatchService
type BatchService struct {
	mock.Mock
}

func (m *BatchService) CreateBatch(ctx context.Context, req service.CreateBatchRequest) (*service.CreateBatchResult, error) {
	args := m.Called(ctx, req)
	result, _ := args.Get(0).(*service.CreateBatchResult)
	return result, args.Error(1)
}
func (m *BatchService) GetBatchStatus(ctx context.Context, batchID string) (*models.BatchRecord, error) {
	args := m.Called(ctx, batchID)
	record, _ := args.Get(0).(*models.BatchRecord)
	return record, args.Error(1)
}

// Mock StudentService
type StudentService struct {
	mock.Mock
}

func (m *StudentService) CreateStudent(ctx context.Context, displayName, referenceImageURL string) (*models.Student, error) {
	args := m.Called(ctx, displayName, referenceImageURL)
	student, _ := args.Get(0).(*models.Student)
	return student, args.Error(1)
}
func (m *StudentService) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	args := m.Called(ctx, id)
	student, _ := args.Get(0).(*models.Student)
	return student, args.Error(1)
}
