package ai

import (
	"context"
	"errors"
	"fmt"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type ModelEntry struct {
	Name  string
	Model IChatModel
}

type groupModel struct {
	items []ModelEntry
}

// NewGroupModel tries each entry in order until one succeeds.
func NewGroupModel(items []ModelEntry) IChatModel {
	if len(items) == 0 {
		return nil
	}
	if len(items) == 1 {
		return items[0].Model
	}
	return &groupModel{items: items}
}

func (g *groupModel) Complete(ctx context.Context, messages []Message) (string, error) {
	var lastErr error
	for i, item := range g.items {
		if item.Model == nil {
			continue
		}
		res, err := item.Model.Complete(ctx, messages)
		if err == nil {
			return res, nil
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("chat model failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return "", fmt.Errorf("chat model not configured")
	}
	return "", lastErr
}

// Stream falls back to the next entry only while nothing has been emitted;
// once a fragment reached the caller the error is returned as is.
func (g *groupModel) Stream(ctx context.Context, messages []Message, emit EmitFunc) error {
	var lastErr error
	for i, item := range g.items {
		if item.Model == nil {
			continue
		}
		emitted := false
		err := item.Model.Stream(ctx, messages, func(fragment string) error {
			emitted = true
			return emit(fragment)
		})
		if err == nil {
			return nil
		}
		if emitted || errors.Is(err, context.Canceled) {
			return err
		}
		lastErr = err
		logutil.GetLogger(ctx).Warn("chat model stream failed", zap.Int("index", i), zap.String("name", item.Name), zap.Error(err))
	}
	if lastErr == nil {
		return fmt.Errorf("chat model not configured")
	}
	return lastErr
}
