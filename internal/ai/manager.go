package ai

import (
	"context"
	"fmt"
	"strings"
	"time"
)

type ManagerConfig struct {
	Timeout int
}

// Manager applies the request timeout around a chat model and tags
// provider failures as upstream errors.
type Manager struct {
	model IChatModel
	cfg   ManagerConfig
}

func NewManager(model IChatModel, cfg ManagerConfig) *Manager {
	return &Manager{model: model, cfg: cfg}
}

func (m *Manager) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if m.cfg.Timeout > 0 {
		return context.WithTimeout(ctx, time.Duration(m.cfg.Timeout)*time.Second)
	}
	return context.WithCancel(ctx)
}

func (m *Manager) Complete(ctx context.Context, messages []Message) (string, error) {
	if m == nil || m.model == nil {
		return "", ErrUnavailable
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	resp, err := m.model.Complete(ctx, messages)
	if err != nil {
		return "", upstream(err)
	}
	text := strings.TrimSpace(resp)
	if text == "" {
		return "", upstream(fmt.Errorf("empty ai response"))
	}
	return text, nil
}

func (m *Manager) Stream(ctx context.Context, messages []Message, emit EmitFunc) error {
	if m == nil || m.model == nil {
		return ErrUnavailable
	}
	ctx, cancel := m.withTimeout(ctx)
	defer cancel()
	return upstream(m.model.Stream(ctx, messages, emit))
}
