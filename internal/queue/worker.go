package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"auth-notify-service/internal/bucketing"
	"auth-notify-service/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// MessageSource is satisfied by *client.KafkaConsumer.
type MessageSource interface {
	ConsumeMessage(ctx context.Context) (*kafka.Message, error)
}

// HandlerFunc executes one task and returns a JSON-encodable result.
type HandlerFunc func(ctx context.Context, task *Task) (any, error)

// Worker consumes tasks and runs them on a fixed set of lanes. Messages
// with the same key always run on the same lane, one at a time.
type Worker struct {
	source     MessageSource
	lanes      *bucketing.BucketingManager
	results    ResultStore
	handlers   map[string]HandlerFunc
	laneBuffer int
	logger     *zap.Logger
}

func NewWorker(source MessageSource, lanes *bucketing.BucketingManager, results ResultStore, logger *zap.Logger) *Worker {
	return &Worker{
		source:     source,
		lanes:      lanes,
		results:    results,
		handlers:   make(map[string]HandlerFunc),
		laneBuffer: 16,
		logger:     logger.Named("worker"),
	}
}

// Register binds a handler to a task name. It must be called before Run.
func (w *Worker) Register(name string, h HandlerFunc) {
	w.handlers[name] = h
}

// Run consumes until ctx is cancelled, then drains the lanes.
func (w *Worker) Run(ctx context.Context) error {
	lanes := make([]chan *Task, w.lanes.Lanes())
	for i := range lanes {
		lanes[i] = make(chan *Task, w.laneBuffer)
	}

	var g errgroup.Group
	for i, lane := range lanes {
		g.Go(func() error {
			for task := range lane {
				// A task that started is allowed to finish during shutdown.
				w.Process(context.WithoutCancel(ctx), task)
			}
			w.logger.Debug("lane stopped", zap.Int("lane", i))
			return nil
		})
	}

	w.logger.Info("worker started", zap.Int("lanes", len(lanes)))
	err := w.consume(ctx, lanes)

	for _, lane := range lanes {
		close(lane)
	}
	_ = g.Wait()
	w.logger.Info("worker stopped")
	return err
}

func (w *Worker) consume(ctx context.Context, lanes []chan *Task) error {
	for {
		msg, err := w.source.ConsumeMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			w.logger.Error("failed to consume task", zap.Error(err))
			select {
			case <-ctx.Done():
				return nil
			case <-time.After(time.Second):
			}
			continue
		}

		task, err := decodeMessage(msg)
		if err != nil {
			w.logger.Error("dropping undecodable task", zap.ByteString("key", msg.Key), zap.Error(err))
			continue
		}

		lane := lanes[w.lanes.Lane(task.Key)]
		select {
		case lane <- task:
		case <-ctx.Done():
			return nil
		}
	}
}

func decodeMessage(msg *kafka.Message) (*Task, error) {
	var task Task
	if err := json.Unmarshal(msg.Value, &task); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}
	for _, h := range msg.Headers {
		switch h.Key {
		case headerTaskName:
			if task.Name == "" {
				task.Name = string(h.Value)
			}
		case headerTaskID:
			if task.ID == "" {
				task.ID = string(h.Value)
			}
		}
	}
	if task.ID == "" || task.Name == "" {
		return nil, fmt.Errorf("%w: missing id or name", ErrInvalidTask)
	}
	return &task, nil
}

// Process runs one task through its handler and records STARTED, then
// SUCCESS or FAILURE.
func (w *Worker) Process(ctx context.Context, task *Task) {
	logger := w.logger.With(zap.String("task_id", task.ID), zap.String("task_name", task.Name))
	w.record(ctx, task, models.TaskStarted, nil, "")

	handler, ok := w.handlers[task.Name]
	if !ok {
		logger.Error("no handler registered")
		w.record(ctx, task, models.TaskFailure, nil, fmt.Errorf("%w: %s", ErrUnknownTask, task.Name).Error())
		return
	}

	start := time.Now()
	out, err := handler(ctx, task)
	if err != nil {
		logger.Error("task failed", zap.Duration("took", time.Since(start)), zap.Error(err))
		w.record(ctx, task, models.TaskFailure, out, err.Error())
		return
	}
	logger.Info("task succeeded", zap.Duration("took", time.Since(start)))
	w.record(ctx, task, models.TaskSuccess, out, "")
}

func (w *Worker) record(ctx context.Context, task *Task, state string, out any, errText string) {
	if w.results == nil {
		return
	}

	result := &models.TaskResult{
		TaskID:    task.ID,
		Name:      task.Name,
		State:     state,
		Error:     errText,
		UpdatedAt: time.Now().UTC(),
	}
	if out != nil {
		raw, err := json.Marshal(out)
		if err != nil {
			w.logger.Warn("task result is not JSON encodable", zap.String("task_id", task.ID), zap.Error(err))
		} else {
			result.Result = raw
		}
	}
	if err := w.results.Save(ctx, result); err != nil && !errors.Is(err, context.Canceled) {
		w.logger.Warn("failed to record task state",
			zap.String("task_id", task.ID),
			zap.String("state", state),
			zap.Error(err))
	}
}
