package mocks

import (
	"context"

	"github.com/google/uuid"
	"github.com/stretchr/testify/mock"

	"social-story-server/internal/models"
)

// Mock BatchProgressRepository
type BatchProgressRepository struct {
	mock.Mock
}

func (m *BatchProgressRepository) Get(ctx context.Context, batchID string) (*models.BatchRecord, error) {
	args := m.Called(ctx, batchID)
	record, _ := args.Get(0).(*models.BatchRecord)
	return record, args.Error(1)
}
func (m *BatchProgressRepository) Set(ctx context.Context, record *models.BatchRecord) error {
	args := m.Called(ctx, record)
	return args.Error(0)
}
func (m *BatchProgressRepository) UpdateScene(ctx context.Context, batchID string, sceneIndex int, patch models.ScenePatch) (*models.BatchRecord, error) {
	args := m.Called(ctx, batchID, sceneIndex, patch)
	record, _ := args.Get(0).(*models.BatchRecord)
	return record, args.Error(1)
}

// Mock StudentRepository
type StudentRepository struct {
	mock.Mock
}

func (m *StudentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	args := m.Called(ctx, id)
	student, _ := args.Get(0).(*models.Student)
	return student, args.Error(1)
}
func (m *StudentRepository) Create(ctx context.Context, student *models.Student) error {
	args := m.Called(ctx, student)
	return args.Error(0)
}
func (m *StudentRepository) MergeCharacterImages(ctx context.Context, id uuid.UUID, images map[string]string) error {
	args := m.Called(ctx, id, images)
	return args.Error(0)
}
