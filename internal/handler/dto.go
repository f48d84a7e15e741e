package handler

import "social-story-server/internal/models"

// Коды ошибок в теле ответа. STUDENT_IMAGE_MISSING выделен отдельно:
// клиент по нему понимает, что профиль есть, но базовое изображение
// еще не загружено и запрос надо повторить позже.
const (
	errCodeBadRequest          = "BAD_REQUEST"
	errCodeNotFound            = "NOT_FOUND"
	errCodeStudentImageMissing = "STUDENT_IMAGE_MISSING"
	errCodeInternal            = "INTERNAL"
)

// ErrorResponse - стандартное тело ошибки API.
type ErrorResponse struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

type createBatchRequest struct {
	PersonalizedStoryText string `json:"personalizedStoryText"`
	StudentID             string `json:"studentId"`
	MainCharacterName     string `json:"mainCharacterName"`
	LearningPreferences   string `json:"learningPreferences,omitempty"`
	Challenges            string `json:"challenges,omitempty"`
	AdditionalNotes       string `json:"additionalNotes,omitempty"`
}

type createBatchResponse struct {
	BatchID     string `json:"batchId"`
	TotalScenes int    `json:"totalScenes"`
	Message     string `json:"message"`
}

type batchStatusResponse struct {
	BatchID        string              `json:"batchId"`
	Scenes         []models.SceneEntry `json:"scenes"`
	CompletedCount int                 `json:"completedCount"`
	TotalCount     int                 `json:"totalCount"`
	Completed      bool                `json:"completed"`
	Progress       int                 `json:"progress"`
}

type createStudentRequest struct {
	DisplayName       string `json:"displayName"`
	ReferenceImageURL string `json:"referenceImageUrl,omitempty"`
}
