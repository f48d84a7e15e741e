// Package storage отвечает за долговременное хранение сгенерированных изображений.
package storage

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"social-story-server/internal/config"
	"social-story-server/internal/models"
)

// ImageStore сохраняет изображение и возвращает его публичный URL.
type ImageStore interface {
	SaveImage(ctx context.Context, fileName string, data []byte) (string, error)
}

type localImageStore struct {
	logger        *zap.Logger
	dir           string
	publicBaseURL string
}

var _ ImageStore = (*localImageStore)(nil)

// NewLocalImageStore создает файловое хранилище изображений. Каталог
// создается при старте, чтобы первая запись не падала на отсутствии пути.
func NewLocalImageStore(cfg config.StorageConfig, logger *zap.Logger) (ImageStore, error) {
	if cfg.Dir == "" {
		return nil, fmt.Errorf("storage dir is not configured")
	}
	if cfg.PublicBaseURL == "" {
		return nil, fmt.Errorf("storage public base URL is not configured")
	}
	if err := os.MkdirAll(cfg.Dir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create storage dir %s: %w", cfg.Dir, err)
	}
	return &localImageStore{
		logger:        logger.Named("ImageStore"),
		dir:           cfg.Dir,
		publicBaseURL: strings.TrimSuffix(cfg.PublicBaseURL, "/"),
	}, nil
}

// SaveImage пишет файл на диск и собирает публичный URL.
func (s *localImageStore) SaveImage(ctx context.Context, fileName string, data []byte) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if fileName == "" {
		return "", fmt.Errorf("%w: file name is empty", models.ErrImageSaveFailed)
	}
	if len(data) == 0 {
		return "", fmt.Errorf("%w: image data is empty", models.ErrImageSaveFailed)
	}

	// Защита от выхода за пределы каталога через имя файла
	fileName = filepath.Base(fileName)

	filePath := filepath.Join(s.dir, fileName)
	if err := os.WriteFile(filePath, data, 0o644); err != nil {
		s.logger.Error("Failed to save image to file", zap.String("path", filePath), zap.Error(err))
		return "", fmt.Errorf("%w: %v", models.ErrImageSaveFailed, err)
	}

	imageURL := s.publicBaseURL + "/" + fileName
	s.logger.Debug("Image saved", zap.String("path", filePath), zap.String("url", imageURL))
	return imageURL, nil
}
