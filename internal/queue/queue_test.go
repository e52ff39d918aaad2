package queue

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"auth-notify-service/internal/bucketing"
	"auth-notify-service/internal/config"
	"auth-notify-service/internal/models"

	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

type memResults struct {
	mu      sync.Mutex
	history map[string][]string
	latest  map[string]*models.TaskResult
}

func newMemResults() *memResults {
	return &memResults{history: map[string][]string{}, latest: map[string]*models.TaskResult{}}
}

func (m *memResults) Save(_ context.Context, r *models.TaskResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[r.TaskID] = append(m.history[r.TaskID], r.State)
	copied := *r
	m.latest[r.TaskID] = &copied
	return nil
}

func (m *memResults) Get(_ context.Context, id string) (*models.TaskResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.latest[id]
	if !ok {
		return nil, errors.New("not found")
	}
	return r, nil
}

func (m *memResults) states(id string) []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.history[id]...)
}

type captureSink struct {
	mu   sync.Mutex
	msgs []kafka.Message
	err  error
}

func (s *captureSink) ProduceMessage(_ context.Context, topic string, key, value []byte, headers map[string]string) error {
	if s.err != nil {
		return s.err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	msg := kafka.Message{Topic: topic, Key: key, Value: value}
	for k, v := range headers {
		msg.Headers = append(msg.Headers, kafka.Header{Key: k, Value: []byte(v)})
	}
	s.msgs = append(s.msgs, msg)
	return nil
}

// chanSource feeds captured messages to a worker.
type chanSource chan kafka.Message

func (c chanSource) ConsumeMessage(ctx context.Context) (*kafka.Message, error) {
	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case msg := <-c:
		return &msg, nil
	}
}

func lanes(n int) *bucketing.BucketingManager {
	return bucketing.NewBucketingManager(&config.Config{Bucketing: config.BucketingConfig{TaskLanes: n}})
}

func TestKafkaQueueEnqueue(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	results := newMemResults()
	q := NewKafkaQueue(sink, "tasks", lanes(4), results, zap.NewNop())

	handle, err := q.Enqueue(context.Background(), TaskSendWhatsAppMessage, "+15550001111", map[string]string{"to": "+15550001111"})
	if err != nil {
		t.Fatalf("Enqueue() error: %v", err)
	}
	if handle.TaskID == "" {
		t.Fatal("Enqueue() returned an empty task id")
	}
	if len(sink.msgs) != 1 {
		t.Fatalf("produced %d messages, want 1", len(sink.msgs))
	}

	msg := sink.msgs[0]
	if msg.Topic != "tasks" {
		t.Errorf("topic = %q, want %q", msg.Topic, "tasks")
	}
	task, err := decodeMessage(&msg)
	if err != nil {
		t.Fatalf("decodeMessage() error: %v", err)
	}
	if task.ID != handle.TaskID || task.Name != TaskSendWhatsAppMessage {
		t.Errorf("task = %+v, want id %s", task, handle.TaskID)
	}
	if got := results.states(handle.TaskID); len(got) != 1 || got[0] != models.TaskPending {
		t.Errorf("states = %v, want [PENDING]", got)
	}
}

func TestKafkaQueueEnqueueFailure(t *testing.T) {
	t.Parallel()

	q := NewKafkaQueue(&captureSink{err: errors.New("broker down")}, "tasks", lanes(1), nil, zap.NewNop())
	if _, err := q.Enqueue(context.Background(), "x", "k", nil); !errors.Is(err, ErrQueueUnavailable) {
		t.Errorf("Enqueue() error = %v, want ErrQueueUnavailable", err)
	}
	if _, err := (Unavailable{}).Enqueue(context.Background(), "x", "k", nil); !errors.Is(err, ErrQueueUnavailable) {
		t.Errorf("Unavailable.Enqueue() error = %v, want ErrQueueUnavailable", err)
	}
}

func TestWorkerRunsTasksInKeyOrder(t *testing.T) {
	t.Parallel()

	sink := &captureSink{}
	results := newMemResults()
	laneMgr := lanes(4)
	q := NewKafkaQueue(sink, "tasks", laneMgr, results, zap.NewNop())

	var mu sync.Mutex
	seen := map[string][]int{}
	done := make(chan struct{}, 64)

	w := NewWorker(nil, laneMgr, results, zap.NewNop())
	w.Register("echo", func(_ context.Context, task *Task) (any, error) {
		var args struct {
			Key string `json:"key"`
			Seq int    `json:"seq"`
		}
		if err := task.Decode(&args); err != nil {
			return nil, err
		}
		mu.Lock()
		seen[args.Key] = append(seen[args.Key], args.Seq)
		mu.Unlock()
		done <- struct{}{}
		return map[string]int{"seq": args.Seq}, nil
	})

	const perKey = 5
	keys := []string{"a", "b", "c"}
	for seq := 0; seq < perKey; seq++ {
		for _, k := range keys {
			if _, err := q.Enqueue(context.Background(), "echo", k, map[string]any{"key": k, "seq": seq}); err != nil {
				t.Fatalf("Enqueue() error: %v", err)
			}
		}
	}

	source := make(chanSource, len(sink.msgs))
	for _, msg := range sink.msgs {
		source <- msg
	}
	w.source = source

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- w.Run(ctx) }()

	for i := 0; i < perKey*len(keys); i++ {
		select {
		case <-done:
		case <-time.After(5 * time.Second):
			t.Fatalf("timed out after %d tasks", i)
		}
	}
	cancel()
	if err := <-errCh; err != nil {
		t.Fatalf("Run() error: %v", err)
	}

	for _, k := range keys {
		if fmt.Sprint(seen[k]) != "[0 1 2 3 4]" {
			t.Errorf("key %s ran in order %v, want [0 1 2 3 4]", k, seen[k])
		}
	}
}

func TestWorkerProcessStates(t *testing.T) {
	t.Parallel()
	ctx := context.Background()

	results := newMemResults()
	w := NewWorker(nil, lanes(1), results, zap.NewNop())
	w.Register("ok", func(context.Context, *Task) (any, error) { return map[string]bool{"success": true}, nil })
	w.Register("bad", func(context.Context, *Task) (any, error) { return nil, errors.New("boom") })

	w.Process(ctx, &Task{ID: "1", Name: "ok"})
	w.Process(ctx, &Task{ID: "2", Name: "bad"})
	w.Process(ctx, &Task{ID: "3", Name: "missing"})

	tests := []struct {
		id        string
		wantState string
		wantErr   string
	}{
		{id: "1", wantState: models.TaskSuccess},
		{id: "2", wantState: models.TaskFailure, wantErr: "boom"},
		{id: "3", wantState: models.TaskFailure, wantErr: "unknown task: missing"},
	}
	for _, tt := range tests {
		states := results.states(tt.id)
		if len(states) != 2 || states[0] != models.TaskStarted || states[1] != tt.wantState {
			t.Errorf("task %s states = %v, want [STARTED %s]", tt.id, states, tt.wantState)
		}
		got, _ := results.Get(ctx, tt.id)
		if got.Error != tt.wantErr {
			t.Errorf("task %s error = %q, want %q", tt.id, got.Error, tt.wantErr)
		}
	}

	ok, _ := results.Get(ctx, "1")
	var out map[string]bool
	if err := json.Unmarshal(ok.Result, &out); err != nil || !out["success"] {
		t.Errorf("task 1 result = %s, want {\"success\":true}", ok.Result)
	}
}

func TestDecodeMessageRejectsGarbage(t *testing.T) {
	t.Parallel()

	if _, err := decodeMessage(&kafka.Message{Value: []byte("not json")}); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("decodeMessage() error = %v, want ErrInvalidTask", err)
	}
	if _, err := decodeMessage(&kafka.Message{Value: []byte(`{"args":{}}`)}); !errors.Is(err, ErrInvalidTask) {
		t.Errorf("decodeMessage() error = %v, want ErrInvalidTask", err)
	}
}
