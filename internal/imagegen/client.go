// Package imagegen содержит HTTP-клиента сервера генерации изображений.
package imagegen

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"

	"social-story-server/internal/config"
	"social-story-server/internal/models"
)

// Client определяет интерфейс генератора изображений. Порядок referenceImages
// значим: первым всегда идет базовое изображение главного персонажа, затем
// фон окружения, затем портреты остальных участников сцены.
type Client interface {
	GenerateImage(ctx context.Context, prompt string, referenceImages []string) ([]byte, error)
}

type httpClient struct {
	logger  *zap.Logger
	baseURL string
	client  *http.Client
}

var _ Client = (*httpClient)(nil)

// NewClient создает HTTP-клиента генератора изображений.
func NewClient(cfg config.ImageGenConfig, logger *zap.Logger) Client {
	return &httpClient{
		logger:  logger.Named("ImageGenClient"),
		baseURL: cfg.BaseURL,
		client:  &http.Client{Timeout: cfg.Timeout},
	}
}

// apiRequest - структура запроса к API генерации. Ratio всегда 1:1,
// сцены и ассеты истории квадратные.
type apiRequest struct {
	Prompt          string   `json:"prompt"`
	Ratio           string   `json:"ratio"`
	ReferenceImages []string `json:"reference_images,omitempty"`
}

// GenerateImage вызывает API генерации и возвращает байты изображения.
func (c *httpClient) GenerateImage(ctx context.Context, prompt string, referenceImages []string) ([]byte, error) {
	log := c.logger.With(
		zap.Int("prompt_chars", len(prompt)),
		zap.Int("reference_count", len(referenceImages)),
	)

	reqBodyBytes, err := json.Marshal(apiRequest{
		Prompt:          prompt,
		Ratio:           "1:1",
		ReferenceImages: referenceImages,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal request payload: %w", err)
	}

	endpointURL := c.baseURL + "/generate"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpointURL, bytes.NewReader(reqBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "image/*")

	log.Debug("Sending request to image generation API", zap.String("url", endpointURL))
	resp, err := c.client.Do(req)
	if err != nil {
		log.Error("Image generation request failed", zap.Error(err))
		return nil, fmt.Errorf("%w: %v", models.ErrImageGenerationFailed, err)
	}
	defer resp.Body.Close()

	bodyBytes, readErr := io.ReadAll(resp.Body)

	if resp.StatusCode != http.StatusOK {
		log.Error("Image generation API returned non-OK status",
			zap.Int("status_code", resp.StatusCode),
			zap.ByteString("response_body", bodyBytes),
		)
		return nil, fmt.Errorf("%w: API returned status %d", models.ErrImageGenerationFailed, resp.StatusCode)
	}
	if readErr != nil {
		return nil, fmt.Errorf("failed to read response body: %w", readErr)
	}
	if len(bodyBytes) == 0 {
		return nil, fmt.Errorf("%w: API returned empty data", models.ErrImageGenerationFailed)
	}

	log.Debug("Image data received", zap.Int("size_bytes", len(bodyBytes)))
	return bodyBytes, nil
}
