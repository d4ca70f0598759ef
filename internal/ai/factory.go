package ai

import (
	"fmt"

	"github.com/xxxsen/mchat/internal/config"
)

// BuildManager creates the primary model from cfg followed by its fallbacks.
func BuildManager(cfg config.AIConfig) (*Manager, error) {
	all := append([]config.AIConfig{cfg}, cfg.Fallback...)
	entries := make([]ModelEntry, 0, len(all))
	for i, item := range all {
		if item.Provider == "" {
			continue
		}
		provider, err := NewProvider(item.Provider, item.Data)
		if err != nil {
			return nil, fmt.Errorf("init ai provider #%d: %w", i, err)
		}
		entries = append(entries, ModelEntry{
			Name:  provider.Name() + ":" + item.Model,
			Model: NewChatModel(provider, item.Model),
		})
	}
	return NewManager(NewGroupModel(entries), ManagerConfig{Timeout: cfg.Timeout}), nil
}
