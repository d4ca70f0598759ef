package errors

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound    = errors.New("not found")
	ErrInvalid     = errors.New("invalid")
	ErrConflict    = errors.New("conflict")
	ErrTooMany     = errors.New("too many requests")
	ErrInternal    = errors.New("internal")
	ErrUpstream    = errors.New("upstream failure")
	ErrUnavailable = errors.New("ai provider not configured")
)

// Upstream tags a completion provider failure so callers can tell it apart
// from local errors while keeping the cause reachable through errors.Is/As.
func Upstream(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUpstream) {
		return err
	}
	return fmt.Errorf("%w: %w", ErrUpstream, err)
}

func Invalid(msg string) error {
	return fmt.Errorf("%w: %s", ErrInvalid, msg)
}

func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

func IsConflict(err error) bool {
	return errors.Is(err, ErrConflict)
}

func IsUpstream(err error) bool {
	return errors.Is(err, ErrUpstream)
}
