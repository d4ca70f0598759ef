package ai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	appErr "github.com/xxxsen/mchat/internal/pkg/errors"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

var ErrUnavailable = appErr.ErrUnavailable

type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// EmitFunc receives one streamed fragment. A non-nil error asks the
// provider to stop reading the stream.
type EmitFunc func(fragment string) error

type IChatProvider interface {
	Name() string
	Complete(ctx context.Context, model string, messages []Message) (string, error)
	Stream(ctx context.Context, model string, messages []Message, emit EmitFunc) error
}

// IChatModel is a provider bound to one model name.
type IChatModel interface {
	Complete(ctx context.Context, messages []Message) (string, error)
	Stream(ctx context.Context, messages []Message, emit EmitFunc) error
}

type chatModel struct {
	provider IChatProvider
	model    string
}

func NewChatModel(p IChatProvider, model string) IChatModel {
	return &chatModel{provider: p, model: model}
}

func (m *chatModel) Complete(ctx context.Context, messages []Message) (string, error) {
	return m.provider.Complete(ctx, m.model, messages)
}

func (m *chatModel) Stream(ctx context.Context, messages []Message, emit EmitFunc) error {
	return m.provider.Stream(ctx, m.model, messages, emit)
}

type ProviderFactory func(args interface{}) (IChatProvider, error)

var registry = map[string]ProviderFactory{}

func Register(name string, factory ProviderFactory) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" || factory == nil {
		return
	}
	registry[key] = factory
}

func NewProvider(name string, args interface{}) (IChatProvider, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return nil, fmt.Errorf("ai.provider is required")
	}
	factory := registry[key]
	if factory == nil {
		return nil, fmt.Errorf("unsupported ai provider: %s", name)
	}
	return factory(args)
}

func decodeConfig(args interface{}, dst interface{}) error {
	if args == nil {
		return fmt.Errorf("ai provider config is required")
	}
	data, err := json.Marshal(args)
	if err != nil {
		return fmt.Errorf("encode ai provider config: %w", err)
	}
	if err := json.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode ai provider config: %w", err)
	}
	return nil
}
