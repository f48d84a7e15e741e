// Package repository содержит доступ к хранилищам: Redis для прогресса батчей
// и PostgreSQL для профилей учеников.
package repository

import (
	"context"

	"github.com/google/uuid"

	"social-story-server/internal/models"
)

// BatchProgressRepository - хранилище прогресса батчей генерации сцен.
// Запись живет ограниченное время и исчезает по TTL; это рабочее состояние
// конвейера, а не долговременные данные.
type BatchProgressRepository interface {
	// Get возвращает запись батча. models.ErrNotFound, если записи нет
	// или она истекла.
	Get(ctx context.Context, batchID string) (*models.BatchRecord, error)
	// Set полностью перезаписывает запись батча и продлевает TTL.
	Set(ctx context.Context, record *models.BatchRecord) error
	// UpdateScene атомарно (read-modify-write под ключом батча) применяет
	// частичное обновление сцены и пересчитывает агрегаты.
	UpdateScene(ctx context.Context, batchID string, sceneIndex int, patch models.ScenePatch) (*models.BatchRecord, error)
}

// StudentRepository - хранилище профилей учеников.
type StudentRepository interface {
	// GetByID возвращает профиль ученика. models.ErrNotFound, если профиля нет.
	GetByID(ctx context.Context, id uuid.UUID) (*models.Student, error)
	// Create создает профиль ученика.
	Create(ctx context.Context, student *models.Student) error
	// MergeCharacterImages дописывает записи в кэш изображений персонажей,
	// не затирая уже существующие ключи.
	MergeCharacterImages(ctx context.Context, id uuid.UUID, images map[string]string) error
}
