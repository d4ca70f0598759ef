package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"
)

type PendingParser interface {
	ProcessPending(ctx context.Context, batch uint) (int, error)
}

// ParsePendingJob parses documents that were uploaded but not parsed yet.
type ParsePendingJob struct {
	documents PendingParser
	batch     uint
}

func NewParsePendingJob(documents PendingParser, batch int) *ParsePendingJob {
	if batch <= 0 {
		batch = 10
	}
	return &ParsePendingJob{documents: documents, batch: uint(batch)}
}

func (j *ParsePendingJob) Name() string {
	return "parse_pending_documents"
}

func (j *ParsePendingJob) Run(ctx context.Context) error {
	if j.documents == nil {
		return nil
	}
	done, err := j.documents.ProcessPending(ctx, j.batch)
	if err != nil {
		return err
	}
	if done > 0 {
		logutil.GetLogger(ctx).Info("pending documents parsed", zap.Int("count", done))
	}
	return nil
}
