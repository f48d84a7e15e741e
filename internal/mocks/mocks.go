// Package mocks содержит testify-моки внешних клиентов для юнит-тестов.
package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"

	"social-story-server/pkg/ai"
)

// Mock ai.Client
type AIClient struct {
	mock.Mock
}

func (m *AIClient) GenerateText(ctx context.Context, systemPrompt, userInput string) (string, ai.UsageInfo, error) {
	args := m.Called(ctx, systemPrompt, userInput)
	usage, _ := args.Get(1).(ai.UsageInfo)
	return args.String(0), usage, args.Error(2)
}

// Mock imagegen.Client
type ImageGenClient struct {
	mock.Mock
}

func (m *ImageGenClient) GenerateImage(ctx context.Context, prompt string, referenceImages []string) ([]byte, error) {
	args := m.Called(ctx, prompt, referenceImages)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// Mock storage.ImageStore
type ImageStore struct {
	mock.Mock
}

func (m *ImageStore) SaveImage(ctx context.Context, fileName string, data []byte) (string, error) {
	args := m.Called(ctx, fileName, data)
	return args.String(0), args.Error(1)
}
