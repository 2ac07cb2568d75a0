package tasks

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payout-core/pkg/logger"
)

// 任务类型常量
const (
	TypeWithdrawal = "withdrawal:execute"
)

// jobNamespace 固定命名空间，保证同一 request id 永远派生同一个 job id
var jobNamespace = uuid.MustParse("7b0c4d9e-2c1a-4f6e-9d3b-8f5a1e0c6d42")

// JobID 由 request id 确定性派生队列任务 ID
// 队列层按 TaskID 去重，重复投递同一提现单是 no-op
func JobID(requestID string) string {
	return uuid.NewSHA1(jobNamespace, []byte(requestID)).String()
}

// WithdrawalPayload 提现任务参数
// 队列侧数据不是资金事实的来源，Worker 执行时必须回读提现单
type WithdrawalPayload struct {
	RequestID   string          `json:"request_id"`
	UserID      uint64          `json:"user_id"`
	Amount      decimal.Decimal `json:"amount"`
	Address     string          `json:"address"`
	DisplayName string          `json:"display_name"`
}

// NewWithdrawalTask 创建提现执行任务
// 重试次数、超时、队列等选项由 Dispatcher 统一附加
func NewWithdrawalTask(p WithdrawalPayload) (*asynq.Task, error) {
	payload, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TypeWithdrawal, payload), nil
}

// Processor 单次任务执行的业务入口
// attempt 从 0 开始计，budget 为剩余可重试次数上限 (asynq MaxRetry)
// 返回非 nil error 表示交回队列按退避重试
type Processor interface {
	Process(ctx context.Context, p WithdrawalPayload, attempt, maxRetry int) error
}

// NewWithdrawalHandler 把 Processor 绑定到 asynq 处理函数
func NewWithdrawalHandler(proc Processor) asynq.HandlerFunc {
	return func(ctx context.Context, t *asynq.Task) error {
		var p WithdrawalPayload
		if err := json.Unmarshal(t.Payload(), &p); err != nil {
			// JSON 解析失败，重试也没用，直接跳过 (SkipRetry)
			// 任务会进入 Archived 队列，方便排查
			return fmt.Errorf("json.Unmarshal failed: %v: %w", err, asynq.SkipRetry)
		}

		attempt, _ := asynq.GetRetryCount(ctx)
		maxRetry, _ := asynq.GetMaxRetry(ctx)

		logger.Debug("开始处理提现任务",
			zap.String("request_id", p.RequestID),
			zap.Int("attempt", attempt),
		)

		return proc.Process(ctx, p, attempt, maxRetry)
	}
}
