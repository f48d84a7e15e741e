package service

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"social-story-server/internal/models"
	"social-story-server/internal/repository"
)

// StudentService - операции над профилями учеников.
type StudentService interface {
	CreateStudent(ctx context.Context, displayName, referenceImageURL string) (*models.Student, error)
	GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error)
}

type studentService struct {
	repo   repository.StudentRepository
	logger *zap.Logger
}

var _ StudentService = (*studentService)(nil)

// NewStudentService создает сервис профилей учеников.
func NewStudentService(repo repository.StudentRepository, logger *zap.Logger) StudentService {
	return &studentService{
		repo:   repo,
		logger: logger.Named("StudentService"),
	}
}

func (s *studentService) CreateStudent(ctx context.Context, displayName, referenceImageURL string) (*models.Student, error) {
	if displayName == "" {
		return nil, fmt.Errorf("%w: display name is required", models.ErrValidation)
	}

	student := &models.Student{
		DisplayName:       displayName,
		ReferenceImageURL: referenceImageURL,
		CharacterImages:   make(map[string]string),
	}
	if err := s.repo.Create(ctx, student); err != nil {
		return nil, err
	}
	return student, nil
}

func (s *studentService) GetStudent(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	return s.repo.GetByID(ctx, id)
}
