package service

import (
	"context"
	"time"

	"github.com/hibiken/asynq"

	"payout-core/internal/model"
	"payout-core/internal/worker"
	"payout-core/internal/worker/tasks"
)

// RequestStore 提现单存储端口
// 状态迁移全部是条件更新: 前置状态不匹配返回 store.ErrConflict
type RequestStore interface {
	Get(ctx context.Context, id string) (*model.WithdrawalRequest, error)
	CreateWithReservation(ctx context.Context, req *model.WithdrawalRequest) error

	// CommitSuccess expected→approved，落外部单号、销冻结额、写流水，单事务
	CommitSuccess(ctx context.Context, id, expected, externalRef string) (*model.WithdrawalRequest, error)
	// ResolveRejected pending→rejected，退款恰好一次
	ResolveRejected(ctx context.Context, id, reason string) (*model.WithdrawalRequest, error)
	// ResolveExhausted pending→failed，退款 + 升级时间戳
	ResolveExhausted(ctx context.Context, id string, attempts int, lastErr string) (*model.WithdrawalRequest, error)
	// Reopen failed→pending，重新冻结
	Reopen(ctx context.Context, id string) (*model.WithdrawalRequest, error)

	RecordAttempt(ctx context.Context, id string, attempt int, lastErr string) error
	AckEscalation(ctx context.Context, id string) error
	MarkEscalationResent(ctx context.Context, id string) error
	ListUnackedEscalations(ctx context.Context, olderThan time.Time, limit int) ([]model.WithdrawalRequest, error)
	CountByStatus(ctx context.Context) (map[string]int64, error)
}

// Dispatcher 队列调度端口
type Dispatcher interface {
	Enqueue(ctx context.Context, p tasks.WithdrawalPayload) (*worker.JobHandle, error)
	Stats(ctx context.Context) (*worker.QueueStats, error)
	ListArchived(queue string) ([]*asynq.TaskInfo, error)
	Redrive(queue, jobID string) error
	Compact(olderThan time.Duration) (int, error)
}
