package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"social-story-server/internal/models"
	"social-story-server/internal/repository"
	repomocks "social-story-server/internal/repository/mocks"
	"social-story-server/pkg/taskmanager"
)

// memoryProgressRepo - потокобезопасное хранилище прогресса в памяти,
// повторяющее контракт Redis-реализации.
type memoryProgressRepo struct {
	mu          sync.Mutex
	records     map[string]*models.BatchRecord
	failUpdates bool
}

var _ repository.BatchProgressRepository = (*memoryProgressRepo)(nil)

func newMemoryProgressRepo() *memoryProgressRepo {
	return &memoryProgressRepo{records: make(map[string]*models.BatchRecord)}
}

func (r *memoryProgressRepo) clone(record *models.BatchRecord) *models.BatchRecord {
	cp := *record
	cp.Scenes = append([]models.SceneEntry(nil), record.Scenes...)
	return &cp
}

func (r *memoryProgressRepo) Get(ctx context.Context, batchID string) (*models.BatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	record, ok := r.records[batchID]
	if !ok {
		return nil, models.ErrNotFound
	}
	return r.clone(record), nil
}

func (r *memoryProgressRepo) Set(ctx context.Context, record *models.BatchRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.records[record.BatchID] = r.clone(record)
	return nil
}

func (r *memoryProgressRepo) UpdateScene(ctx context.Context, batchID string, sceneIndex int, patch models.ScenePatch) (*models.BatchRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.failUpdates {
		return nil, errors.New("progress store unavailable")
	}
	record, ok := r.records[batchID]
	if !ok {
		return nil, models.ErrNotFound
	}
	if !record.ApplyScenePatch(sceneIndex, patch) {
		return nil, fmt.Errorf("scene index %d out of range", sceneIndex)
	}
	return r.clone(record), nil
}

// syncTaskManager выполняет задачи синхронно, чтобы тесты не ждали горутин.
type syncTaskManager struct{}

var _ taskmanager.Manager = (*syncTaskManager)(nil)

func (m *syncTaskManager) SubmitTask(ctx context.Context, taskFunc taskmanager.TaskFunc, params interface{}) (uuid.UUID, error) {
	_, _ = taskFunc(context.Background(), params)
	return uuid.New(), nil
}
func (m *syncTaskManager) GetTask(taskID uuid.UUID) (*taskmanager.Task, error) { return nil, nil }
func (m *syncTaskManager) CancelTask(taskID uuid.UUID) error                   { return nil }
func (m *syncTaskManager) CleanupTasks(age time.Duration)                      {}
func (m *syncTaskManager) Shutdown(ctx context.Context) error                  { return nil }

// stubPlanner возвращает заранее заданный план.
type stubPlanner struct{ plan *models.VisualPlan }

func (p *stubPlanner) GeneratePlan(ctx context.Context, storyText, mainCharacterName string) *models.VisualPlan {
	if p.plan != nil {
		return p.plan
	}
	return &models.VisualPlan{
		Environments:    []string{},
		Characters:      []string{},
		SceneCharacters: map[int][]string{},
	}
}

// stubAssetGenerator возвращает пустые ассеты.
type stubAssetGenerator struct{}

func (g *stubAssetGenerator) GenerateAssets(ctx context.Context, plan *models.VisualPlan, student *models.Student) *models.GeneratedAssets {
	return &models.GeneratedAssets{
		Backgrounds: map[string]string{},
		Characters:  map[string]string{},
	}
}

// stubSceneGenerator вызывает настраиваемую функцию и следит за числом
// одновременно выполняющихся генераций.
type stubSceneGenerator struct {
	generate    func(req SceneRequest) (string, error)
	delay       time.Duration
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (g *stubSceneGenerator) GenerateScene(ctx context.Context, req SceneRequest) (string, error) {
	current := g.inFlight.Add(1)
	defer g.inFlight.Add(-1)
	for {
		max := g.maxInFlight.Load()
		if current <= max || g.maxInFlight.CompareAndSwap(max, current) {
			break
		}
	}
	if g.delay > 0 {
		time.Sleep(g.delay)
	}
	if g.generate != nil {
		return g.generate(req)
	}
	return fmt.Sprintf("http://img/scene-%d.jpg", req.SceneIndex), nil
}

func newTestBatchService(repo repository.BatchProgressRepository, studentRepo repository.StudentRepository, sceneGen SceneGenerator, concurrency int) BatchService {
	return NewBatchService(
		&stubPlanner{},
		&stubAssetGenerator{},
		sceneGen,
		repo,
		studentRepo,
		&syncTaskManager{},
		concurrency,
		zap.NewNop(),
	)
}

const fiveSceneStory = "Scene one.\n\nScene two.\n\nScene three.\n\nScene four.\n\nScene five."

func TestCreateBatchValidation(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryProgressRepo()

	t.Run("story text required", func(t *testing.T) {
		studentRepo := new(repomocks.StudentRepository)
		svc := newTestBatchService(repo, studentRepo, &stubSceneGenerator{}, 2)

		_, err := svc.CreateBatch(ctx, CreateBatchRequest{MainCharacterName: "Alex", StudentID: uuid.New()})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("main character name required", func(t *testing.T) {
		studentRepo := new(repomocks.StudentRepository)
		svc := newTestBatchService(repo, studentRepo, &stubSceneGenerator{}, 2)

		_, err := svc.CreateBatch(ctx, CreateBatchRequest{StoryText: "A story.", StudentID: uuid.New()})
		assert.ErrorIs(t, err, models.ErrValidation)
	})

	t.Run("unknown student", func(t *testing.T) {
		studentRepo := new(repomocks.StudentRepository)
		studentID := uuid.New()
		studentRepo.On("GetByID", mock.Anything, studentID).Return(nil, models.ErrNotFound)
		svc := newTestBatchService(repo, studentRepo, &stubSceneGenerator{}, 2)

		_, err := svc.CreateBatch(ctx, CreateBatchRequest{
			StoryText: "A story.", MainCharacterName: "Alex", StudentID: studentID,
		})
		assert.ErrorIs(t, err, models.ErrNotFound)
	})

	t.Run("student without reference image", func(t *testing.T) {
		studentRepo := new(repomocks.StudentRepository)
		student := testStudent()
		student.ReferenceImageURL = ""
		studentRepo.On("GetByID", mock.Anything, student.ID).Return(student, nil)
		svc := newTestBatchService(repo, studentRepo, &stubSceneGenerator{}, 2)

		_, err := svc.CreateBatch(ctx, CreateBatchRequest{
			StoryText: "A story.", MainCharacterName: "Alex", StudentID: student.ID,
		})
		assert.ErrorIs(t, err, models.ErrStudentImageMissing)
	})
}

func TestBatchPipelineCompletesAllScenes(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryProgressRepo()
	studentRepo := new(repomocks.StudentRepository)
	student := testStudent()
	studentRepo.On("GetByID", mock.Anything, student.ID).Return(student, nil)

	sceneGen := &stubSceneGenerator{}
	svc := newTestBatchService(repo, studentRepo, sceneGen, 2)

	result, err := svc.CreateBatch(ctx, CreateBatchRequest{
		StoryText:         fiveSceneStory,
		MainCharacterName: "Alex",
		StudentID:         student.ID,
	})
	require.NoError(t, err)
	assert.Equal(t, 5, result.TotalScenes)

	record, err := svc.GetBatchStatus(ctx, result.BatchID)
	require.NoError(t, err)

	assert.True(t, record.Completed)
	assert.Equal(t, 5, record.CompletedCount)
	assert.Equal(t, 5, record.TotalCount)
	assert.Equal(t, 100, record.Progress())
	require.Len(t, record.Scenes, 5)
	for i, scene := range record.Scenes {
		assert.True(t, scene.Completed, "scene %d", i)
		assert.False(t, scene.Error, "scene %d", i)
		assert.Equal(t, fmt.Sprintf("http://img/scene-%d.jpg", i), scene.Image)
	}
}

func TestBatchPipelineFailedSceneGetsPlaceholder(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryProgressRepo()
	studentRepo := new(repomocks.StudentRepository)
	student := testStudent()
	studentRepo.On("GetByID", mock.Anything, student.ID).Return(student, nil)

	sceneGen := &stubSceneGenerator{
		generate: func(req SceneRequest) (string, error) {
			if req.SceneIndex == 2 {
				return "", errors.New("generation always fails for this scene")
			}
			return fmt.Sprintf("http://img/scene-%d.jpg", req.SceneIndex), nil
		},
	}
	svc := newTestBatchService(repo, studentRepo, sceneGen, 2)

	result, err := svc.CreateBatch(ctx, CreateBatchRequest{
		StoryText:         fiveSceneStory,
		MainCharacterName: "Alex",
		StudentID:         student.ID,
	})
	require.NoError(t, err)

	record, err := svc.GetBatchStatus(ctx, result.BatchID)
	require.NoError(t, err)

	// Упавшая сцена settled: placeholder, error=true, батч завершен целиком
	assert.True(t, record.Completed)
	assert.Equal(t, 5, record.CompletedCount)
	assert.True(t, record.Scenes[2].Error)
	assert.Equal(t, PlaceholderImageURL, record.Scenes[2].Image)
	assert.True(t, record.Scenes[2].Completed)
	for _, i := range []int{0, 1, 3, 4} {
		assert.False(t, record.Scenes[i].Error, "scene %d", i)
	}
}

func TestBatchPipelineRespectsConcurrencyCap(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryProgressRepo()
	studentRepo := new(repomocks.StudentRepository)
	student := testStudent()
	studentRepo.On("GetByID", mock.Anything, student.ID).Return(student, nil)

	const sceneCap = 2
	sceneGen := &stubSceneGenerator{delay: 20 * time.Millisecond}
	svc := newTestBatchService(repo, studentRepo, sceneGen, sceneCap)

	_, err := svc.CreateBatch(ctx, CreateBatchRequest{
		StoryText:         fiveSceneStory,
		MainCharacterName: "Alex",
		StudentID:         student.ID,
	})
	require.NoError(t, err)

	maxSeen := int(sceneGen.maxInFlight.Load())
	assert.LessOrEqual(t, maxSeen, sceneCap, "concurrency cap exceeded")
	assert.Equal(t, sceneCap, maxSeen, "pool should actually use all slots")
}

func TestBatchPipelineFinalizesDespiteLostUpdates(t *testing.T) {
	ctx := context.Background()
	repo := newMemoryProgressRepo()
	repo.failUpdates = true

	studentRepo := new(repomocks.StudentRepository)
	student := testStudent()
	studentRepo.On("GetByID", mock.Anything, student.ID).Return(student, nil)

	svc := newTestBatchService(repo, studentRepo, &stubSceneGenerator{}, 2)

	result, err := svc.CreateBatch(ctx, CreateBatchRequest{
		StoryText:         fiveSceneStory,
		MainCharacterName: "Alex",
		StudentID:         student.ID,
	})
	require.NoError(t, err)

	// Ни одно пер-сценное обновление не прошло, но финальная проверка
	// обязана закрыть батч явно
	record, err := svc.GetBatchStatus(ctx, result.BatchID)
	require.NoError(t, err)
	assert.True(t, record.Completed)
}
