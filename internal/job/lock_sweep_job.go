package job

import (
	"context"
	"time"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type LockSweeper interface {
	SweepLocks(idle time.Duration) int
}

// LockSweepJob drops conversation locks nobody has touched for a while.
type LockSweepJob struct {
	chat LockSweeper
	idle time.Duration
}

func NewLockSweepJob(chat LockSweeper, idle time.Duration) *LockSweepJob {
	if idle <= 0 {
		idle = 30 * time.Minute
	}
	return &LockSweepJob{chat: chat, idle: idle}
}

func (j *LockSweepJob) Name() string {
	return "conversation_lock_sweep"
}

func (j *LockSweepJob) Run(ctx context.Context) error {
	if j.chat == nil {
		return nil
	}
	if n := j.chat.SweepLocks(j.idle); n > 0 {
		logutil.GetLogger(ctx).Debug("idle conversation locks dropped", zap.Int("count", n))
	}
	return nil
}
