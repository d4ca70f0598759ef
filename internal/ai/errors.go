package ai

import (
	"context"
	"errors"

	appErr "github.com/xxxsen/mchat/internal/pkg/errors"
)

func upstream(err error) error {
	if err == nil || errors.Is(err, ErrUnavailable) || errors.Is(err, context.Canceled) {
		return err
	}
	return appErr.Upstream(err)
}
