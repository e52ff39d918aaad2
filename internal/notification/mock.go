package notification

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

// MockProvider accepts every message. Used in development and tests.
type MockProvider struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewMockProvider(logger *zap.Logger) *MockProvider {
	return &MockProvider{logger: logger, now: time.Now}
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Send(_ context.Context, token, title, body string, _ map[string]any) (string, error) {
	m.logger.Info("mock push sent",
		zap.String("token", token),
		zap.String("title", title),
		zap.String("body", body))
	return fmt.Sprintf("mock-%d", m.now().UnixMilli()), nil
}
