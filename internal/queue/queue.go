package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"auth-notify-service/internal/bucketing"
	"auth-notify-service/internal/models"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	TaskSendMobileNotification = "send_mobile_notification"
	TaskSendWhatsAppMessage    = "send_whatsapp_message"

	headerTaskName = "task_name"
	headerTaskID   = "task_id"
)

var (
	ErrQueueUnavailable = errors.New("task queue unavailable")
	ErrUnknownTask      = errors.New("unknown task")
	ErrInvalidTask      = errors.New("invalid task message")
)

// Task is the envelope published to the broker.
type Task struct {
	ID         string          `json:"id"`
	Name       string          `json:"name"`
	Key        string          `json:"key"`
	Args       json.RawMessage `json:"args"`
	EnqueuedAt time.Time       `json:"enqueued_at"`
}

// Decode unmarshals the task arguments into v.
func (t *Task) Decode(v any) error {
	if err := json.Unmarshal(t.Args, v); err != nil {
		return fmt.Errorf("%w: %s args: %v", ErrInvalidTask, t.Name, err)
	}
	return nil
}

type Handle struct {
	TaskID string `json:"task_id"`
}

// Enqueuer submits a task for background execution. key groups tasks that
// must run in order (a user id or a phone number).
type Enqueuer interface {
	Enqueue(ctx context.Context, name, key string, args any) (*Handle, error)
}

// ResultStore keeps task state for polling.
type ResultStore interface {
	Save(ctx context.Context, result *models.TaskResult) error
	Get(ctx context.Context, taskID string) (*models.TaskResult, error)
}

// MessageSink is satisfied by *client.KafkaProducer.
type MessageSink interface {
	ProduceMessage(ctx context.Context, topic string, key, value []byte, headers map[string]string) error
}

type KafkaQueue struct {
	sink    MessageSink
	topic   string
	lanes   *bucketing.BucketingManager
	results ResultStore
	logger  *zap.Logger
}

func NewKafkaQueue(sink MessageSink, topic string, lanes *bucketing.BucketingManager, results ResultStore, logger *zap.Logger) *KafkaQueue {
	return &KafkaQueue{
		sink:    sink,
		topic:   topic,
		lanes:   lanes,
		results: results,
		logger:  logger.Named("queue"),
	}
}

// Enqueue publishes the task and returns without waiting for execution.
func (q *KafkaQueue) Enqueue(ctx context.Context, name, key string, args any) (*Handle, error) {
	rawArgs, err := json.Marshal(args)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}

	task := Task{
		ID:         uuid.NewString(),
		Name:       name,
		Key:        key,
		Args:       rawArgs,
		EnqueuedAt: time.Now().UTC(),
	}
	value, err := json.Marshal(task)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidTask, err)
	}

	partitionKey := []byte(strconv.Itoa(q.lanes.Lane(key)))
	headers := map[string]string{headerTaskName: name, headerTaskID: task.ID}

	// Record PENDING first so a fast worker's STARTED is never overwritten.
	if q.results != nil {
		pending := &models.TaskResult{TaskID: task.ID, Name: name, State: models.TaskPending, UpdatedAt: task.EnqueuedAt}
		if err := q.results.Save(ctx, pending); err != nil {
			q.logger.Warn("failed to record pending task", zap.String("task_id", task.ID), zap.Error(err))
		}
	}

	if err := q.sink.ProduceMessage(ctx, q.topic, partitionKey, value, headers); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrQueueUnavailable, err)
	}

	q.logger.Debug("task enqueued",
		zap.String("task_id", task.ID),
		zap.String("task_name", name),
		zap.String("partition_key", string(partitionKey)))
	return &Handle{TaskID: task.ID}, nil
}

// Unavailable is the Enqueuer used when no broker is configured.
type Unavailable struct{}

func (Unavailable) Enqueue(context.Context, string, string, any) (*Handle, error) {
	return nil, ErrQueueUnavailable
}
