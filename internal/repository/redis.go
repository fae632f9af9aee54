package repository

import (
	"context"
	"encoding/json"
	"fmt"

	"mobilemech/internal/config"
	"mobilemech/internal/models"

	"github.com/redis/go-redis/v9"
)

// RedisRunRepository keeps the most recent runs in a capped Redis list,
// newest first.
type RedisRunRepository struct {
	client *redis.Client
	key    string
	limit  int
}

// NewRedisClient создает новый клиент Redis на основе конфигурации
func NewRedisClient(cfg config.RedisConfig) *redis.Client {
	options := &redis.Options{
		Addr:     cfg.Address,
		Password: cfg.Password,
		DB:       cfg.DB,
		PoolSize: cfg.PoolSize,
	}

	return redis.NewClient(options)
}

func NewRedisRunRepository(client *redis.Client, limit int) *RedisRunRepository {
	if limit <= 0 {
		limit = models.DefaultRunHistorySize
	}
	return &RedisRunRepository{
		client: client,
		key:    models.RunHistoryKey,
		limit:  limit,
	}
}

func (r *RedisRunRepository) SaveRun(ctx context.Context, run *models.RunRecord) error {
	if r.client == nil {
		return fmt.Errorf("redis client is nil")
	}
	data, err := json.Marshal(run)
	if err != nil {
		return fmt.Errorf("failed to marshal run: %w", err)
	}

	pipe := r.client.TxPipeline()
	pipe.LPush(ctx, r.key, data)
	pipe.LTrim(ctx, r.key, 0, int64(r.limit-1))
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to save run in redis: %w", err)
	}
	return nil
}

func (r *RedisRunRepository) RecentRuns(ctx context.Context, limit int) ([]*models.RunRecord, error) {
	if r.client == nil {
		return nil, fmt.Errorf("redis client is nil")
	}
	if limit <= 0 || limit > r.limit {
		limit = r.limit
	}

	vals, err := r.client.LRange(ctx, r.key, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to read runs from redis: %w", err)
	}

	runs := make([]*models.RunRecord, 0, len(vals))
	for _, v := range vals {
		var run models.RunRecord
		if err := json.Unmarshal([]byte(v), &run); err != nil {
			return nil, fmt.Errorf("failed to unmarshal run: %w", err)
		}
		runs = append(runs, &run)
	}
	return runs, nil
}

// Ping проверяет соединение с Redis
func Ping(ctx context.Context, client *redis.Client) error {
	_, err := client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("failed to ping Redis: %w", err)
	}
	return nil
}

// Close закрывает соединение с Redis
func Close(client *redis.Client) error {
	if client != nil {
		return client.Close()
	}
	return nil
}
