package convo

import (
	"context"
	"fmt"
)

type ItemKind int

const (
	ItemChunk ItemKind = iota + 1
	ItemDone
	ItemError
)

func (k ItemKind) String() string {
	switch k {
	case ItemChunk:
		return "chunk"
	case ItemDone:
		return "done"
	case ItemError:
		return "error"
	}
	return "unknown"
}

type StreamItem struct {
	Kind ItemKind
	Text string
	Err  error
}

func (s StreamItem) Terminal() bool {
	return s.Kind == ItemDone || s.Kind == ItemError
}

// Producer is a blocking fragment source. It must stop once emit returns
// an error.
type Producer func(ctx context.Context, emit func(string) error) error

// Bridge runs produce on its own goroutine and forwards its fragments, in
// order, over a channel holding at most buffer items; the producer blocks
// while the channel is full. After the last fragment exactly one terminal
// item (done or error) is sent and the channel is closed.
//
// Once ctx is done no further fragments are forwarded and emit reports
// ctx.Err() to the producer. The consumer must keep reading until the
// channel is closed.
func Bridge(ctx context.Context, buffer int, produce Producer) <-chan StreamItem {
	if buffer < 0 {
		buffer = 0
	}
	out := make(chan StreamItem, buffer)
	emit := func(text string) error {
		if err := ctx.Err(); err != nil {
			return err
		}
		select {
		case out <- StreamItem{Kind: ItemChunk, Text: text}:
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	go func() {
		defer close(out)
		err := runProducer(ctx, produce, emit)
		if err == nil {
			err = ctx.Err()
		}
		if err != nil {
			out <- StreamItem{Kind: ItemError, Text: err.Error(), Err: err}
			return
		}
		out <- StreamItem{Kind: ItemDone}
	}()
	return out
}

func runProducer(ctx context.Context, produce Producer, emit func(string) error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("stream producer panic: %v", r)
		}
	}()
	return produce(ctx, emit)
}
