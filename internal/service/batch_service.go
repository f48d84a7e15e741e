package service

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"social-story-server/internal/models"
	"social-story-server/internal/repository"
	"social-story-server/internal/story"
	"social-story-server/pkg/taskmanager"
)

// PlaceholderImageURL подставляется сценам, чья генерация не удалась.
// Сцена при этом считается завершенной: completed означает "работы больше
// нет", а не "все получилось".
const PlaceholderImageURL = "/static/placeholder-scene.png"

var (
	batchesStartedTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "social_story_batches_started_total",
		Help: "Total number of scene generation batches started.",
	})
	scenesGeneratedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "social_story_scenes_generated_total",
		Help: "Total number of scene generations by result.",
	}, []string{"status"})
	batchDurationSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "social_story_batch_duration_seconds",
		Help:    "Histogram of full batch pipeline durations.",
		Buckets: prometheus.ExponentialBuckets(5, 2, 10),
	})
)

// CreateBatchRequest - запрос на запуск батча генерации сцен.
type CreateBatchRequest struct {
	StoryText         string
	StudentID         uuid.UUID
	MainCharacterName string
	Notes             ContextNotes
}

// CreateBatchResult возвращается отправителю сразу, до начала генерации.
type CreateBatchResult struct {
	BatchID     string
	TotalScenes int
}

// BatchService - оркестратор конвейера генерации сцен.
type BatchService interface {
	// CreateBatch валидирует запрос, создает запись батча и запускает
	// конвейер в фоне. Возвращается сразу, генерации не дожидается.
	CreateBatch(ctx context.Context, req CreateBatchRequest) (*CreateBatchResult, error)
	// GetBatchStatus возвращает текущее состояние батча для опроса.
	GetBatchStatus(ctx context.Context, batchID string) (*models.BatchRecord, error)
}

type batchService struct {
	planner        VisualPlanner
	assetGenerator AssetGenerator
	sceneGenerator SceneGenerator
	progressRepo   repository.BatchProgressRepository
	studentRepo    repository.StudentRepository
	tasks          taskmanager.Manager
	concurrency    int
	logger         *zap.Logger
}

var _ BatchService = (*batchService)(nil)

// NewBatchService создает оркестратор батчей.
func NewBatchService(
	planner VisualPlanner,
	assetGenerator AssetGenerator,
	sceneGenerator SceneGenerator,
	progressRepo repository.BatchProgressRepository,
	studentRepo repository.StudentRepository,
	tasks taskmanager.Manager,
	sceneConcurrency int,
	logger *zap.Logger,
) BatchService {
	if sceneConcurrency <= 0 {
		sceneConcurrency = 2
	}
	return &batchService{
		planner:        planner,
		assetGenerator: assetGenerator,
		sceneGenerator: sceneGenerator,
		progressRepo:   progressRepo,
		studentRepo:    studentRepo,
		tasks:          tasks,
		concurrency:    sceneConcurrency,
		logger:         logger.Named("BatchService"),
	}
}

// pipelineParams - все, что нужно конвейеру после ответа клиенту.
type pipelineParams struct {
	record            *models.BatchRecord
	student           *models.Student
	mainCharacterName string
	notes             ContextNotes
}

// CreateBatch проверяет вход, пишет запись с заглушками сцен и отдает
// конвейер менеджеру задач. Контекст задачи отвязан от HTTP-запроса.
func (s *batchService) CreateBatch(ctx context.Context, req CreateBatchRequest) (*CreateBatchResult, error) {
	if req.StoryText == "" {
		return nil, fmt.Errorf("%w: personalized story text is required", models.ErrValidation)
	}
	if req.MainCharacterName == "" {
		return nil, fmt.Errorf("%w: main character name is required", models.ErrValidation)
	}

	student, err := s.studentRepo.GetByID(ctx, req.StudentID)
	if err != nil {
		return nil, err
	}
	if !student.HasReferenceImage() {
		return nil, models.ErrStudentImageMissing
	}

	sceneTexts := story.SplitScenes(req.StoryText)
	if len(sceneTexts) == 0 {
		return nil, fmt.Errorf("%w: story text contains no scenes", models.ErrValidation)
	}

	batchID := uuid.NewString()
	record := models.NewBatchRecord(batchID, sceneTexts)
	if err := s.progressRepo.Set(ctx, record); err != nil {
		return nil, fmt.Errorf("failed to create batch record: %w", err)
	}

	params := &pipelineParams{
		record:            record,
		student:           student,
		mainCharacterName: req.MainCharacterName,
		notes:             req.Notes,
	}
	taskID, err := s.tasks.SubmitTask(ctx, s.runPipeline, params)
	if err != nil {
		return nil, fmt.Errorf("failed to dispatch batch pipeline: %w", err)
	}

	batchesStartedTotal.Inc()
	s.logger.Info("Batch created",
		zap.String("batchID", batchID),
		zap.String("taskID", taskID.String()),
		zap.Int("totalScenes", len(sceneTexts)),
	)
	return &CreateBatchResult{BatchID: batchID, TotalScenes: len(sceneTexts)}, nil
}

// GetBatchStatus читает запись батча. models.ErrNotFound, если запись
// истекла или никогда не создавалась.
func (s *batchService) GetBatchStatus(ctx context.Context, batchID string) (*models.BatchRecord, error) {
	return s.progressRepo.Get(ctx, batchID)
}

// runPipeline выполняет фазы конвейера: планирование, генерация ассетов,
// генерация сцен, финальная отметка завершения.
func (s *batchService) runPipeline(ctx context.Context, rawParams interface{}) (interface{}, error) {
	params, ok := rawParams.(*pipelineParams)
	if !ok {
		return nil, fmt.Errorf("unexpected pipeline params type %T", rawParams)
	}

	record := params.record
	log := s.logger.With(zap.String("batchID", record.BatchID))
	startTime := time.Now()
	log.Info("Batch pipeline started", zap.Int("totalScenes", record.TotalCount))

	// Фаза 1: визуальный план. Сбой планировщика дает пустой план,
	// батч продолжается без общих ассетов.
	plan := s.planner.GeneratePlan(ctx, storyTextOf(record), params.mainCharacterName)
	record.VisualPlan = plan
	s.saveProgress(ctx, record, "plan")

	// Фаза 2: ассеты
	assets := s.assetGenerator.GenerateAssets(ctx, plan, params.student)
	record.GeneratedAssets = assets
	s.saveProgress(ctx, record, "assets")

	// Фаза 3: сцены под ограничением конкурентности. Сцены подаются в
	// исходном порядке; освободившийся слот сразу занимает следующая
	// сцена из очереди, не дожидаясь остальных.
	g, sceneCtx := errgroup.WithContext(ctx)
	g.SetLimit(s.concurrency)
	for i := range record.Scenes {
		sceneIndex := i
		sceneText := record.Scenes[i].Text
		g.Go(func() error {
			s.processScene(sceneCtx, record.BatchID, sceneIndex, SceneRequest{
				SceneIndex: sceneIndex,
				SceneText:  sceneText,
				Student:    params.student,
				Plan:       plan,
				Assets:     assets,
				Notes:      params.notes,
			})
			// Сбой сцены никогда не отменяет соседние сцены
			return nil
		})
	}
	_ = g.Wait()

	// Финальная проверка: перечитать запись и явно закрыть батч, если
	// конкурентные обновления оставили флаг незавершенным.
	s.finalizeBatch(ctx, record.BatchID)

	duration := time.Since(startTime)
	batchDurationSeconds.Observe(duration.Seconds())
	log.Info("Batch pipeline finished", zap.Duration("duration", duration))
	return record.BatchID, nil
}

// processScene генерирует одну сцену и доводит ее до терминального состояния
// в хранилище прогресса вне зависимости от исхода.
func (s *batchService) processScene(ctx context.Context, batchID string, sceneIndex int, req SceneRequest) {
	log := s.logger.With(zap.String("batchID", batchID), zap.Int("sceneIndex", sceneIndex))

	imageURL, err := s.sceneGenerator.GenerateScene(ctx, req)
	hasError := err != nil
	if hasError {
		log.Warn("Scene generation failed, using placeholder", zap.Error(err))
		imageURL = PlaceholderImageURL
		scenesGeneratedTotal.WithLabelValues("error").Inc()
	} else {
		scenesGeneratedTotal.WithLabelValues("success").Inc()
	}

	completed := true
	patch := models.ScenePatch{
		Image:     &imageURL,
		Error:     &hasError,
		Completed: &completed,
	}
	if _, err := s.progressRepo.UpdateScene(ctx, batchID, sceneIndex, patch); err != nil {
		// Потерянное обновление прогресса не фатально: финальная проверка
		// завершения все равно закроет батч
		log.Warn("Failed to update scene progress", zap.Error(err))
	}
}

// finalizeBatch перечитывает запись и при необходимости явно ставит флаг
// завершения. Защищает от гонок конкурентных обновлений сцен.
func (s *batchService) finalizeBatch(ctx context.Context, batchID string) {
	record, err := s.progressRepo.Get(ctx, batchID)
	if err != nil {
		s.logger.Warn("Failed to re-read batch record for finalization",
			zap.String("batchID", batchID), zap.Error(err))
		return
	}
	if record.Completed {
		return
	}

	record.RecomputeCompletion()
	if !record.Completed {
		// Все сцены к этому моменту уже settled; незавершенность - след
		// потерянных обновлений прогресса. Закрываем батч явно.
		s.logger.Warn("Batch record inconsistent at finalization, forcing completion",
			zap.String("batchID", batchID),
			zap.Int("completedCount", record.CompletedCount),
			zap.Int("totalCount", record.TotalCount),
		)
		record.Completed = true
	}
	if err := s.progressRepo.Set(ctx, record); err != nil {
		s.logger.Warn("Failed to write final batch record",
			zap.String("batchID", batchID), zap.Error(err))
	}
}

// saveProgress пишет промежуточное состояние записи. Ошибка записи
// логируется и не прерывает конвейер.
func (s *batchService) saveProgress(ctx context.Context, record *models.BatchRecord, phase string) {
	if err := s.progressRepo.Set(ctx, record); err != nil {
		s.logger.Warn("Failed to save batch progress",
			zap.String("batchID", record.BatchID),
			zap.String("phase", phase),
			zap.Error(err),
		)
	}
}

// storyTextOf восстанавливает полный текст истории из сцен записи тем же
// разделителем, которым он был разбит.
func storyTextOf(record *models.BatchRecord) string {
	texts := make([]string, len(record.Scenes))
	for i := range record.Scenes {
		texts[i] = record.Scenes[i].Text
	}
	return story.JoinScenes(texts)
}
