package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/georgysavva/scany/v2/pgxscan"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"

	"social-story-server/internal/models"
)

// Compile-time check to ensure pgStudentRepository implements StudentRepository
var _ StudentRepository = (*pgStudentRepository)(nil)

type pgStudentRepository struct {
	pool   *pgxpool.Pool
	logger *zap.Logger
}

// NewPgStudentRepository создает PostgreSQL-хранилище профилей учеников.
func NewPgStudentRepository(pool *pgxpool.Pool, logger *zap.Logger) StudentRepository {
	return &pgStudentRepository{
		pool:   pool,
		logger: logger.Named("PgStudentRepo"),
	}
}

// studentRow - строка таблицы students. character_images хранится как JSONB
// и сканируется в сырые байты, разбор отдельным шагом.
type studentRow struct {
	ID                uuid.UUID `db:"id"`
	DisplayName       string    `db:"display_name"`
	ReferenceImageURL string    `db:"reference_image_url"`
	CharacterImages   []byte    `db:"character_images"`
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

func (row *studentRow) toModel() (*models.Student, error) {
	images := make(map[string]string)
	if len(row.CharacterImages) > 0 {
		if err := json.Unmarshal(row.CharacterImages, &images); err != nil {
			return nil, fmt.Errorf("corrupted character_images for student %s: %w", row.ID, err)
		}
	}
	return &models.Student{
		ID:                row.ID,
		DisplayName:       row.DisplayName,
		ReferenceImageURL: row.ReferenceImageURL,
		CharacterImages:   images,
		CreatedAt:         row.CreatedAt,
		UpdatedAt:         row.UpdatedAt,
	}, nil
}

// GetByID возвращает профиль ученика по его идентификатору.
func (r *pgStudentRepository) GetByID(ctx context.Context, id uuid.UUID) (*models.Student, error) {
	query := `
		SELECT id, display_name, reference_image_url, character_images, created_at, updated_at
		FROM students
		WHERE id = $1`

	var row studentRow
	err := pgxscan.Get(ctx, r.pool, &row, query, id)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			r.logger.Debug("Student not found", zap.String("studentID", id.String()))
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get student", zap.Error(err), zap.String("studentID", id.String()))
		return nil, fmt.Errorf("failed to get student: %w", err)
	}

	return row.toModel()
}

// Create создает профиль ученика. ID, если не задан, генерируется базой.
func (r *pgStudentRepository) Create(ctx context.Context, student *models.Student) error {
	if student.ID == uuid.Nil {
		student.ID = uuid.New()
	}
	if student.CharacterImages == nil {
		student.CharacterImages = make(map[string]string)
	}

	imagesJSON, err := json.Marshal(student.CharacterImages)
	if err != nil {
		return fmt.Errorf("failed to marshal character images: %w", err)
	}

	query := `
		INSERT INTO students (id, display_name, reference_image_url, character_images)
		VALUES ($1, $2, $3, $4)
		RETURNING created_at, updated_at`

	err = r.pool.QueryRow(ctx, query,
		student.ID, student.DisplayName, student.ReferenceImageURL, imagesJSON,
	).Scan(&student.CreatedAt, &student.UpdatedAt)
	if err != nil {
		r.logger.Error("Failed to create student", zap.Error(err), zap.String("studentID", student.ID.String()))
		return fmt.Errorf("failed to create student: %w", err)
	}

	r.logger.Info("Student created", zap.String("studentID", student.ID.String()))
	return nil
}

// MergeCharacterImages дописывает новые записи в JSONB-кэш изображений
// персонажей. Оператор || в PostgreSQL кладет новые ключи поверх старых,
// не трогая ключи, которых нет в аргументе.
func (r *pgStudentRepository) MergeCharacterImages(ctx context.Context, id uuid.UUID, images map[string]string) error {
	if len(images) == 0 {
		return nil
	}

	imagesJSON, err := json.Marshal(images)
	if err != nil {
		return fmt.Errorf("failed to marshal character images: %w", err)
	}

	query := `
		UPDATE students
		SET character_images = character_images || $2::jsonb,
		    updated_at = now()
		WHERE id = $1`

	tag, err := r.pool.Exec(ctx, query, id, imagesJSON)
	if err != nil {
		r.logger.Error("Failed to merge character images", zap.Error(err), zap.String("studentID", id.String()))
		return fmt.Errorf("failed to merge character images: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}

	r.logger.Debug("Character images merged",
		zap.String("studentID", id.String()),
		zap.Int("newEntries", len(images)),
	)
	return nil
}
