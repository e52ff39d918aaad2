package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"auth-notify-service/internal/client"
	"auth-notify-service/internal/models"
	"auth-notify-service/internal/util"
)

const taskResultPrefix = "task_result:"

var ErrTaskNotFound = errors.New("task not found")

type TaskResultCache struct {
	client *client.RedisClient
	ttl    time.Duration
}

func NewTaskResultCache(client *client.RedisClient, ttl time.Duration) *TaskResultCache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &TaskResultCache{client: client, ttl: ttl}
}

// Save overwrites the stored state of result.TaskID and resets its TTL.
func (c *TaskResultCache) Save(ctx context.Context, result *models.TaskResult) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return fmt.Errorf("failed to encode task result: %w", err)
	}

	if err := c.client.Set(ctx, taskResultPrefix+result.TaskID, payload, c.ttl); err != nil {
		util.Error("Failed to save task result",
			zap.String("task_id", result.TaskID),
			zap.String("state", result.State),
			zap.Error(err))
		return fmt.Errorf("failed to save task result: %w", err)
	}
	return nil
}

func (c *TaskResultCache) Get(ctx context.Context, taskID string) (*models.TaskResult, error) {
	raw, err := c.client.Get(ctx, taskResultPrefix+taskID)
	if err != nil {
		if errors.Is(err, client.ErrKeyNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrTaskNotFound, taskID)
		}
		return nil, fmt.Errorf("failed to load task result: %w", err)
	}

	var result models.TaskResult
	if err := json.Unmarshal([]byte(raw), &result); err != nil {
		return nil, fmt.Errorf("failed to decode task result: %w", err)
	}
	return &result, nil
}
