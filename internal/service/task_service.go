package service

import (
	"context"
	"errors"
	"fmt"

	"auth-notify-service/internal/models"
	"auth-notify-service/internal/queue"
	redisrepo "auth-notify-service/internal/repository/redis"
)

var (
	ErrTaskNotFound           = errors.New("task not found")
	ErrResultStoreUnavailable = errors.New("task result store unavailable")
)

// TaskService reads background task state for polling clients.
type TaskService struct {
	results queue.ResultStore
}

func NewTaskService(results queue.ResultStore) *TaskService {
	return &TaskService{results: results}
}

func (s *TaskService) Get(ctx context.Context, taskID string) (*models.TaskResult, error) {
	if s.results == nil {
		return nil, ErrResultStoreUnavailable
	}
	result, err := s.results.Get(ctx, taskID)
	if err != nil {
		if errors.Is(err, redisrepo.ErrTaskNotFound) {
			return nil, ErrTaskNotFound
		}
		return nil, fmt.Errorf("%w: %v", ErrResultStoreUnavailable, err)
	}
	return result, nil
}
