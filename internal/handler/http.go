// Package handler содержит HTTP-обработчики API.
package handler

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"social-story-server/internal/models"
	"social-story-server/internal/service"
)

// Handler обслуживает HTTP API батчей и профилей учеников.
type Handler struct {
	batchService   service.BatchService
	studentService service.StudentService
	logger         *zap.Logger
}

// NewHandler создает HTTP-обработчик.
func NewHandler(batchService service.BatchService, studentService service.StudentService, logger *zap.Logger) *Handler {
	return &Handler{
		batchService:   batchService,
		studentService: studentService,
		logger:         logger.Named("Handler"),
	}
}

// RegisterRoutes регистрирует маршруты API.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	router.GET("/healthz", h.healthz)

	api := router.Group("/api")
	{
		api.POST("/scene-batches", h.createBatch)
		api.GET("/scene-batches/status", h.batchStatus)

		api.POST("/students", h.createStudent)
		api.GET("/students/:id", h.getStudent)
	}
}

func (h *Handler) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// createBatch принимает историю и запускает конвейер генерации сцен.
// Отвечает сразу идентификатором батча, генерации не дожидается.
func (h *Handler) createBatch(c *gin.Context) {
	var req createBatchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}

	if strings.TrimSpace(req.PersonalizedStoryText) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "personalizedStoryText is required"})
		return
	}
	if strings.TrimSpace(req.MainCharacterName) == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "mainCharacterName is required"})
		return
	}
	studentID, err := uuid.Parse(req.StudentID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "studentId must be a valid UUID"})
		return
	}

	result, err := h.batchService.CreateBatch(c.Request.Context(), service.CreateBatchRequest{
		StoryText:         req.PersonalizedStoryText,
		StudentID:         studentID,
		MainCharacterName: req.MainCharacterName,
		Notes: service.ContextNotes{
			LearningPreferences: req.LearningPreferences,
			Challenges:          req.Challenges,
			AdditionalNotes:     req.AdditionalNotes,
		},
	})
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, createBatchResponse{
		BatchID:     result.BatchID,
		TotalScenes: result.TotalScenes,
		Message:     "Scene generation started, poll the status endpoint for progress",
	})
}

// batchStatus - эндпоинт опроса прогресса батча.
func (h *Handler) batchStatus(c *gin.Context) {
	batchID := c.Query("batchId")
	if batchID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "batchId query parameter is required"})
		return
	}

	record, err := h.batchService.GetBatchStatus(c.Request.Context(), batchID)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, batchStatusResponse{
		BatchID:        record.BatchID,
		Scenes:         record.Scenes,
		CompletedCount: record.CompletedCount,
		TotalCount:     record.TotalCount,
		Completed:      record.Completed,
		Progress:       record.Progress(),
	})
}

func (h *Handler) createStudent(c *gin.Context) {
	var req createStudentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "Invalid request body: " + err.Error()})
		return
	}

	student, err := h.studentService.CreateStudent(c.Request.Context(), req.DisplayName, req.ReferenceImageURL)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusCreated, student)
}

func (h *Handler) getStudent(c *gin.Context) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, ErrorResponse{Code: errCodeBadRequest, Message: "student id must be a valid UUID"})
		return
	}

	student, err := h.studentService.GetStudent(c.Request.Context(), id)
	if err != nil {
		h.handleServiceError(c, err)
		return
	}

	c.JSON(http.StatusOK, student)
}

// handleServiceError переводит доменные ошибки в HTTP-статусы.
func (h *Handler) handleServiceError(c *gin.Context, err error) {
	var statusCode int
	var errResp ErrorResponse

	switch {
	case errors.Is(err, models.ErrValidation):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: errCodeBadRequest, Message: err.Error()}
	case errors.Is(err, models.ErrStudentImageMissing):
		statusCode = http.StatusBadRequest
		errResp = ErrorResponse{Code: errCodeStudentImageMissing, Message: "Student has no base reference image yet, upload one and retry"}
	case errors.Is(err, models.ErrNotFound):
		statusCode = http.StatusNotFound
		errResp = ErrorResponse{Code: errCodeNotFound, Message: "Requested resource not found"}
	default:
		h.logger.Error("Unhandled internal error", zap.Error(err))
		statusCode = http.StatusInternalServerError
		errResp = ErrorResponse{Code: errCodeInternal, Message: "An unexpected internal error occurred"}
	}

	c.AbortWithStatusJSON(statusCode, errResp)
}
