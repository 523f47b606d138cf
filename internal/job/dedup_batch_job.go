package job

import (
	"context"

	"github.com/xxxsen/common/logutil"
	"go.uber.org/zap"

	"github.com/xxxsen/mdedup/internal/service"
)

type UserLister interface {
	ListUserIDs(ctx context.Context) ([]string, error)
}

type BatchRunner interface {
	BatchDeduplicate(ctx context.Context, userID string, docIDs []string, threshold float64) (*service.BatchRun, error)
}

// DedupBatchJob runs a full detection pass for every user with documents.
// Runs are only recorded; nothing is deleted.
type DedupBatchJob struct {
	users  UserLister
	runner BatchRunner
}

func NewDedupBatchJob(users UserLister, runner BatchRunner) *DedupBatchJob {
	return &DedupBatchJob{users: users, runner: runner}
}

func (j *DedupBatchJob) Name() string {
	return "dedup_batch"
}

func (j *DedupBatchJob) Run(ctx context.Context) error {
	if j.users == nil || j.runner == nil {
		return nil
	}
	logger := logutil.GetLogger(ctx)
	userIDs, err := j.users.ListUserIDs(ctx)
	if err != nil {
		return err
	}
	var lastErr error
	for _, userID := range userIDs {
		if err := ctx.Err(); err != nil {
			return err
		}
		run, err := j.runner.BatchDeduplicate(ctx, userID, nil, 0)
		if err != nil {
			lastErr = err
			logger.Error("dedup batch failed", zap.String("user_id", userID), zap.Error(err))
			continue
		}
		logger.Debug("dedup batch done",
			zap.String("user_id", userID),
			zap.String("run_id", run.RunID),
			zap.Int("duplicates", run.Result.Duplicates))
	}
	return lastErr
}
