package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"

	"social-story-server/internal/models"
)

// Compile-time check to ensure redisBatchRepository implements BatchProgressRepository
var _ BatchProgressRepository = (*redisBatchRepository)(nil)

type redisBatchRepository struct {
	client *redis.Client
	logger *zap.Logger
	ttl    time.Duration

	// Per-batch мьютексы. Сцены одного батча обновляются конкурентно из
	// нескольких горутин одного процесса; блокировка сериализует цикл
	// read-modify-write, чтобы обновления сцен не терялись.
	locks sync.Map // batchID -> *sync.Mutex
}

// NewRedisBatchRepository создает Redis-хранилище прогресса батчей.
func NewRedisBatchRepository(client *redis.Client, ttl time.Duration, logger *zap.Logger) BatchProgressRepository {
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &redisBatchRepository{
		client: client,
		logger: logger.Named("RedisBatchRepo"),
		ttl:    ttl,
	}
}

func batchKey(batchID string) string {
	return fmt.Sprintf("scene_batch:%s", batchID)
}

// Get возвращает запись батча из Redis.
func (r *redisBatchRepository) Get(ctx context.Context, batchID string) (*models.BatchRecord, error) {
	key := batchKey(batchID)
	data, err := r.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			r.logger.Debug("Batch record not found", zap.String("batchID", batchID))
			return nil, models.ErrNotFound
		}
		r.logger.Error("Failed to get batch record from redis", zap.Error(err), zap.String("key", key))
		return nil, fmt.Errorf("failed to get batch record from redis: %w", err)
	}

	var record models.BatchRecord
	if err := json.Unmarshal(data, &record); err != nil {
		// Поврежденные данные в Redis, запись бесполезна
		r.logger.Error("Failed to unmarshal batch record",
			zap.Error(err), zap.String("batchID", batchID))
		return nil, fmt.Errorf("corrupted batch record in redis for %s: %w", batchID, err)
	}
	return &record, nil
}

// Set перезаписывает запись батча целиком и продлевает TTL.
func (r *redisBatchRepository) Set(ctx context.Context, record *models.BatchRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal batch record: %w", err)
	}

	key := batchKey(record.BatchID)
	if err := r.client.Set(ctx, key, data, r.ttl).Err(); err != nil {
		r.logger.Error("Failed to set batch record in redis", zap.Error(err), zap.String("key", key))
		return fmt.Errorf("failed to set batch record in redis: %w", err)
	}

	r.logger.Debug("Batch record saved",
		zap.String("batchID", record.BatchID),
		zap.Int("completedCount", record.CompletedCount),
		zap.Int("totalCount", record.TotalCount),
		zap.Duration("ttl", r.ttl),
	)
	return nil
}

// UpdateScene выполняет read-modify-write обновление одной сцены. Счетчик
// завершенных сцен пересчитывается из самой записи, а не инкрементируется.
func (r *redisBatchRepository) UpdateScene(ctx context.Context, batchID string, sceneIndex int, patch models.ScenePatch) (*models.BatchRecord, error) {
	muIface, _ := r.locks.LoadOrStore(batchID, &sync.Mutex{})
	mu := muIface.(*sync.Mutex)
	mu.Lock()
	defer mu.Unlock()

	record, err := r.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}

	if !record.ApplyScenePatch(sceneIndex, patch) {
		return nil, fmt.Errorf("scene index %d out of range for batch %s", sceneIndex, batchID)
	}

	if err := r.Set(ctx, record); err != nil {
		return nil, err
	}
	return record, nil
}
