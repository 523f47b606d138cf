package job

import (
	"context"
)

type EmbeddingSyncer interface {
	SyncPending(ctx context.Context, delaySeconds int64) (int, error)
}

type EmbeddingSyncJob struct {
	syncer       EmbeddingSyncer
	delaySeconds int64
}

func NewEmbeddingSyncJob(syncer EmbeddingSyncer, delaySeconds int64) *EmbeddingSyncJob {
	return &EmbeddingSyncJob{syncer: syncer, delaySeconds: delaySeconds}
}

func (j *EmbeddingSyncJob) Name() string {
	return "embedding_sync"
}

func (j *EmbeddingSyncJob) Run(ctx context.Context) error {
	if j.syncer == nil {
		return nil
	}
	_, err := j.syncer.SyncPending(ctx, j.delaySeconds)
	return err
}
