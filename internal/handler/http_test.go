package handler

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"social-story-server/internal/models"
	"social-story-server/internal/service"
	svcmocks "social-story-server/internal/service/mocks"
)

func setupRouter(batchSvc *svcmocks.BatchService, studentSvc *svcmocks.StudentService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	h := NewHandler(batchSvc, studentSvc, zap.NewNop())
	h.RegisterRoutes(router)
	return router
}

func performJSON(t *testing.T, router *gin.Engine, method, url string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, url, reader)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestCreateBatchEndpoint(t *testing.T) {
	studentID := uuid.New()

	t.Run("success returns batch id immediately", func(t *testing.T) {
		batchSvc := new(svcmocks.BatchService)
		studentSvc := new(svcmocks.StudentService)
		batchSvc.On("CreateBatch", mock.Anything, mock.MatchedBy(func(req service.CreateBatchRequest) bool {
			return req.StudentID == studentID && req.MainCharacterName == "Alex"
		})).Return(&service.CreateBatchResult{BatchID: "batch-1", TotalScenes: 5}, nil)

		router := setupRouter(batchSvc, studentSvc)
		w := performJSON(t, router, http.MethodPost, "/api/scene-batches", gin.H{
			"personalizedStoryText": "Scene one.\n\nScene two.",
			"studentId":             studentID.String(),
			"mainCharacterName":     "Alex",
		})

		require.Equal(t, http.StatusOK, w.Code)
		var resp createBatchResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "batch-1", resp.BatchID)
		assert.Equal(t, 5, resp.TotalScenes)
		assert.NotEmpty(t, resp.Message)
		batchSvc.AssertExpectations(t)
	})

	t.Run("missing story text is 400", func(t *testing.T) {
		batchSvc := new(svcmocks.BatchService)
		router := setupRouter(batchSvc, new(svcmocks.StudentService))

		w := performJSON(t, router, http.MethodPost, "/api/scene-batches", gin.H{
			"studentId":         studentID.String(),
			"mainCharacterName": "Alex",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
		batchSvc.AssertNotCalled(t, "CreateBatch")
	})

	t.Run("missing main character name is 400", func(t *testing.T) {
		batchSvc := new(svcmocks.BatchService)
		router := setupRouter(batchSvc, new(svcmocks.StudentService))

		w := performJSON(t, router, http.MethodPost, "/api/scene-batches", gin.H{
			"personalizedStoryText": "A story.",
			"studentId":             studentID.String(),
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("invalid student id is 400", func(t *testing.T) {
		batchSvc := new(svcmocks.BatchService)
		router := setupRouter(batchSvc, new(svcmocks.StudentService))

		w := performJSON(t, router, http.MethodPost, "/api/scene-batches", gin.H{
			"personalizedStoryText": "A story.",
			"studentId":             "not-a-uuid",
			"mainCharacterName":     "Alex",
		})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("unknown student is 404", func(t *testing.T) {
		batchSvc := new(svcmocks.BatchService)
		batchSvc.On("CreateBatch", mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)
		router := setupRouter(batchSvc, new(svcmocks.StudentService))

		w := performJSON(t, router, http.MethodPost, "/api/scene-batches", gin.H{
			"personalizedStoryText": "A story.",
			"studentId":             studentID.String(),
			"mainCharacterName":     "Alex",
		})
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("student without reference image gets dedicated code", func(t *testing.T) {
		batchSvc := new(svcmocks.BatchService)
		batchSvc.On("CreateBatch", mock.Anything, mock.Anything).Return(nil, models.ErrStudentImageMissing)
		router := setupRouter(batchSvc, new(svcmocks.StudentService))

		w := performJSON(t, router, http.MethodPost, "/api/scene-batches", gin.H{
			"personalizedStoryText": "A story.",
			"studentId":             studentID.String(),
			"mainCharacterName":     "Alex",
		})
		require.Equal(t, http.StatusBadRequest, w.Code)

		var resp ErrorResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, errCodeStudentImageMissing, resp.Code)
	})
}

func TestBatchStatusEndpoint(t *testing.T) {
	t.Run("returns record with derived progress", func(t *testing.T) {
		record := models.NewBatchRecord("batch-1", []string{"a", "b", "c", "d"})
		completed := true
		img := "http://img/scene-0.jpg"
		record.ApplyScenePatch(0, models.ScenePatch{Image: &img, Completed: &completed})

		batchSvc := new(svcmocks.BatchService)
		batchSvc.On("GetBatchStatus", mock.Anything, "batch-1").Return(record, nil)
		router := setupRouter(batchSvc, new(svcmocks.StudentService))

		w := performJSON(t, router, http.MethodGet, "/api/scene-batches/status?batchId=batch-1", nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp batchStatusResponse
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, "batch-1", resp.BatchID)
		assert.Equal(t, 1, resp.CompletedCount)
		assert.Equal(t, 4, resp.TotalCount)
		assert.False(t, resp.Completed)
		assert.Equal(t, 25, resp.Progress)
		require.Len(t, resp.Scenes, 4)
		assert.Equal(t, img, resp.Scenes[0].Image)
	})

	t.Run("missing batchId is 400", func(t *testing.T) {
		batchSvc := new(svcmocks.BatchService)
		router := setupRouter(batchSvc, new(svcmocks.StudentService))

		w := performJSON(t, router, http.MethodGet, "/api/scene-batches/status", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		batchSvc.AssertNotCalled(t, "GetBatchStatus")
	})

	t.Run("expired batch is 404", func(t *testing.T) {
		batchSvc := new(svcmocks.BatchService)
		batchSvc.On("GetBatchStatus", mock.Anything, "gone").Return(nil, models.ErrNotFound)
		router := setupRouter(batchSvc, new(svcmocks.StudentService))

		w := performJSON(t, router, http.MethodGet, "/api/scene-batches/status?batchId=gone", nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})
}

func TestStudentEndpoints(t *testing.T) {
	t.Run("create student", func(t *testing.T) {
		studentSvc := new(svcmocks.StudentService)
		student := &models.Student{ID: uuid.New(), DisplayName: "Alex"}
		studentSvc.On("CreateStudent", mock.Anything, "Alex", "http://img/alex.jpg").Return(student, nil)
		router := setupRouter(new(svcmocks.BatchService), studentSvc)

		w := performJSON(t, router, http.MethodPost, "/api/students", gin.H{
			"displayName":       "Alex",
			"referenceImageUrl": "http://img/alex.jpg",
		})
		assert.Equal(t, http.StatusCreated, w.Code)
	})

	t.Run("create student without name is 400", func(t *testing.T) {
		studentSvc := new(svcmocks.StudentService)
		studentSvc.On("CreateStudent", mock.Anything, "", "").
			Return(nil, models.ErrValidation)
		router := setupRouter(new(svcmocks.BatchService), studentSvc)

		w := performJSON(t, router, http.MethodPost, "/api/students", gin.H{})
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})

	t.Run("get student", func(t *testing.T) {
		studentSvc := new(svcmocks.StudentService)
		student := &models.Student{ID: uuid.New(), DisplayName: "Alex"}
		studentSvc.On("GetStudent", mock.Anything, student.ID).Return(student, nil)
		router := setupRouter(new(svcmocks.BatchService), studentSvc)

		w := performJSON(t, router, http.MethodGet, "/api/students/"+student.ID.String(), nil)
		require.Equal(t, http.StatusOK, w.Code)

		var resp models.Student
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
		assert.Equal(t, student.ID, resp.ID)
	})

	t.Run("get unknown student is 404", func(t *testing.T) {
		studentSvc := new(svcmocks.StudentService)
		studentSvc.On("GetStudent", mock.Anything, mock.Anything).Return(nil, models.ErrNotFound)
		router := setupRouter(new(svcmocks.BatchService), studentSvc)

		w := performJSON(t, router, http.MethodGet, "/api/students/"+uuid.NewString(), nil)
		assert.Equal(t, http.StatusNotFound, w.Code)
	})

	t.Run("get student with bad id is 400", func(t *testing.T) {
		router := setupRouter(new(svcmocks.BatchService), new(svcmocks.StudentService))
		w := performJSON(t, router, http.MethodGet, "/api/students/nope", nil)
		assert.Equal(t, http.StatusBadRequest, w.Code)
	})
}

func TestHealthz(t *testing.T) {
	router := setupRouter(new(svcmocks.BatchService), new(svcmocks.StudentService))
	w := performJSON(t, router, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}
