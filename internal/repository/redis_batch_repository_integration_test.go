package repository_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"
	"github.com/testcontainers/testcontainers-go"
	tcredis "github.com/testcontainers/testcontainers-go/modules/redis"
	"github.com/testcontainers/testcontainers-go/wait"
	"go.uber.org/zap"

	"social-story-server/internal/models"
	"social-story-server/internal/repository"
)

// RedisBatchRepoSuite поднимает настоящий Redis в контейнере и гоняет
// хранилище прогресса против него.
type RedisBatchRepoSuite struct {
	suite.Suite
	ctx         context.Context
	rdContainer *tcredis.RedisContainer
	redisClient *redis.Client
	repo        repository.BatchProgressRepository
}

func TestRedisBatchRepoSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(RedisBatchRepoSuite))
}

func (s *RedisBatchRepoSuite) SetupSuite() {
	s.ctx = context.Background()

	var err error
	s.rdContainer, err = tcredis.Run(s.ctx,
		"docker.io/redis:7-alpine",
		testcontainers.WithWaitStrategy(
			wait.ForLog("* Ready to accept connections").
				WithOccurrence(1).
				WithStartupTimeout(1*time.Minute),
		),
	)
	require.NoError(s.T(), err, "Failed to start redis container")

	redisHost, err := s.rdContainer.Host(s.ctx)
	require.NoError(s.T(), err)
	redisPort, err := s.rdContainer.MappedPort(s.ctx, "6379/tcp")
	require.NoError(s.T(), err)

	s.redisClient = redis.NewClient(&redis.Options{
		Addr: fmt.Sprintf("%s:%s", redisHost, redisPort.Port()),
	})
	_, err = s.redisClient.Ping(s.ctx).Result()
	require.NoError(s.T(), err, "Failed to connect to test redis")

	s.repo = repository.NewRedisBatchRepository(s.redisClient, time.Hour, zap.NewNop())
}

func (s *RedisBatchRepoSuite) TearDownSuite() {
	if s.redisClient != nil {
		_ = s.redisClient.Close()
	}
	if s.rdContainer != nil {
		_ = s.rdContainer.Terminate(s.ctx)
	}
}

func (s *RedisBatchRepoSuite) TestSetAndGetRoundTrip() {
	record := models.NewBatchRecord("rt-batch", []string{"one", "two"})
	record.VisualPlan = &models.VisualPlan{
		Environments:    []string{"classroom"},
		Characters:      []string{"Sam"},
		SceneCharacters: map[int][]string{1: {"Sam"}},
	}

	require.NoError(s.T(), s.repo.Set(s.ctx, record))

	got, err := s.repo.Get(s.ctx, "rt-batch")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), record.BatchID, got.BatchID)
	assert.Equal(s.T(), record.Scenes, got.Scenes)
	require.NotNil(s.T(), got.VisualPlan)
	assert.Equal(s.T(), []string{"Sam"}, got.VisualPlan.SceneCharacters[1])
}

func (s *RedisBatchRepoSuite) TestGetMissingReturnsNotFound() {
	_, err := s.repo.Get(s.ctx, "never-existed")
	assert.ErrorIs(s.T(), err, models.ErrNotFound)
}

func (s *RedisBatchRepoSuite) TestUpdateSceneRecomputesAggregates() {
	record := models.NewBatchRecord("upd-batch", []string{"one", "two", "three"})
	require.NoError(s.T(), s.repo.Set(s.ctx, record))

	completed := true
	img := "http://img/0.jpg"
	updated, err := s.repo.UpdateScene(s.ctx, "upd-batch", 0, models.ScenePatch{
		Image: &img, Completed: &completed,
	})
	require.NoError(s.T(), err)
	assert.Equal(s.T(), 1, updated.CompletedCount)
	assert.False(s.T(), updated.Completed)

	for i := 1; i < 3; i++ {
		_, err = s.repo.UpdateScene(s.ctx, "upd-batch", i, models.ScenePatch{Completed: &completed})
		require.NoError(s.T(), err)
	}

	final, err := s.repo.Get(s.ctx, "upd-batch")
	require.NoError(s.T(), err)
	assert.True(s.T(), final.Completed)
	assert.Equal(s.T(), 3, final.CompletedCount)
}

func (s *RedisBatchRepoSuite) TestUpdateSceneMissingBatch() {
	completed := true
	_, err := s.repo.UpdateScene(s.ctx, "expired-batch", 0, models.ScenePatch{Completed: &completed})
	assert.ErrorIs(s.T(), err, models.ErrNotFound)
}

// Конкурентные обновления разных сцен одного батча не должны терять
// друг друга: счетчик в итоге равен числу сцен.
func (s *RedisBatchRepoSuite) TestConcurrentSceneUpdates() {
	const scenes = 10
	texts := make([]string, scenes)
	for i := range texts {
		texts[i] = "scene"
	}
	record := models.NewBatchRecord("conc-batch", texts)
	require.NoError(s.T(), s.repo.Set(s.ctx, record))

	completed := true
	var wg sync.WaitGroup
	for i := 0; i < scenes; i++ {
		wg.Add(1)
		go func(idx int) {
			defer wg.Done()
			img := fmt.Sprintf("http://img/%d.jpg", idx)
			_, err := s.repo.UpdateScene(s.ctx, "conc-batch", idx, models.ScenePatch{
				Image: &img, Completed: &completed,
			})
			assert.NoError(s.T(), err)
		}(i)
	}
	wg.Wait()

	final, err := s.repo.Get(s.ctx, "conc-batch")
	require.NoError(s.T(), err)
	assert.Equal(s.T(), scenes, final.CompletedCount)
	assert.True(s.T(), final.Completed)
	for i := 0; i < scenes; i++ {
		assert.True(s.T(), final.Scenes[i].Completed, "scene %d", i)
		assert.Equal(s.T(), fmt.Sprintf("http://img/%d.jpg", i), final.Scenes[i].Image)
	}
}

func (s *RedisBatchRepoSuite) TestRecordExpiresWithTTL() {
	shortRepo := repository.NewRedisBatchRepository(s.redisClient, time.Second, zap.NewNop())
	record := models.NewBatchRecord("ttl-batch", []string{"one"})
	require.NoError(s.T(), shortRepo.Set(s.ctx, record))

	_, err := shortRepo.Get(s.ctx, "ttl-batch")
	require.NoError(s.T(), err)

	time.Sleep(1500 * time.Millisecond)

	_, err = shortRepo.Get(s.ctx, "ttl-batch")
	assert.ErrorIs(s.T(), err, models.ErrNotFound)
}
