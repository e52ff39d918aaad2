package messaging

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"
)

type MockProvider struct {
	logger *zap.Logger
	now    func() time.Time
}

func NewMockProvider(logger *zap.Logger) *MockProvider {
	return &MockProvider{logger: logger, now: time.Now}
}

func (m *MockProvider) Name() string { return "mock" }

func (m *MockProvider) Send(_ context.Context, msg Message) (*Receipt, error) {
	m.logger.Info("mock whatsapp sent",
		zap.String("to", msg.To),
		zap.String("message", msg.Text))

	sid := fmt.Sprintf("mock-%d", m.now().UnixMilli())
	return &Receipt{
		MessageID: sid,
		Status:    "sent",
		Raw:       map[string]any{"sid": sid, "status": "sent"},
	}, nil
}
