package models

import (
	"encoding/json"
	"time"
)

const (
	TaskPending = "PENDING"
	TaskStarted = "STARTED"
	TaskSuccess = "SUCCESS"
	TaskFailure = "FAILURE"
)

// TaskResult is the state of a queued task as kept by the result store.
// It is not a database table.
type TaskResult struct {
	TaskID    string          `json:"task_id"`
	Name      string          `json:"name"`
	State     string          `json:"state"`
	Result    json.RawMessage `json:"result,omitempty"`
	Error     string          `json:"error,omitempty"`
	UpdatedAt time.Time       `json:"updated_at"`
}
