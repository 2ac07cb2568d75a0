package worker

import (
	"context"
	"errors"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payout-core/internal/worker/tasks"
	"payout-core/pkg/config"
	"payout-core/pkg/logger"
	"payout-core/pkg/monitor"
)

// 队列优先级: 大额提现走 critical，缩短高价值单的敞口时间
const (
	QueueCritical = "critical"
	QueueDefault  = "default"
)

var allQueues = []string{QueueCritical, QueueDefault}

// JobHandle 入队结果
type JobHandle struct {
	ID    string `json:"id"`
	Queue string `json:"queue"`
	State string `json:"state"`
}

// QueueStats 运营看板的队列概览
type QueueStats struct {
	Waiting   int `json:"waiting"`
	Active    int `json:"active"`
	Completed int `json:"completed"`
	Failed    int `json:"failed"`
	Delayed   int `json:"delayed"`
}

// Dispatcher 提现任务调度器
// 只做队列插入与去重，绝不触碰余额
type Dispatcher struct {
	client    *asynq.Client
	inspector *asynq.Inspector
	cfg       config.QueueConfig

	criticalThreshold decimal.Decimal
}

func NewDispatcher(redisOpt asynq.RedisClientOpt, cfg config.QueueConfig) *Dispatcher {
	threshold, err := decimal.NewFromString(cfg.CriticalThreshold)
	if err != nil {
		logger.Warn("critical_threshold 配置非法，降级为不分级", zap.String("value", cfg.CriticalThreshold))
		threshold = decimal.Zero
	}
	return &Dispatcher{
		client:            asynq.NewClient(redisOpt),
		inspector:         asynq.NewInspector(redisOpt),
		cfg:               cfg,
		criticalThreshold: threshold,
	}
}

// Enqueue 提现任务入队，按 request id 幂等
// 同一 id 重复提交: 活跃任务 => no-op 返回既有句柄;
// 已归档 (重试耗尽) => 删除归档任务并重投同一个任务
func (d *Dispatcher) Enqueue(ctx context.Context, p tasks.WithdrawalPayload) (*JobHandle, error) {
	task, err := tasks.NewWithdrawalTask(p)
	if err != nil {
		return nil, err
	}

	jobID := tasks.JobID(p.RequestID)
	queue := d.queueFor(p.Amount)
	opts := []asynq.Option{
		asynq.TaskID(jobID),
		asynq.Queue(queue),
		asynq.MaxRetry(d.cfg.MaxAttempts - 1),
		asynq.Timeout(d.cfg.AttemptTimeout),
		asynq.Retention(d.cfg.Retention),
	}

	info, err := d.client.EnqueueContext(ctx, task, opts...)
	if err == nil {
		logger.Info("提现任务已入队",
			zap.String("request_id", p.RequestID),
			zap.String("job_id", jobID),
			zap.String("queue", queue),
		)
		return &JobHandle{ID: info.ID, Queue: info.Queue, State: info.State.String()}, nil
	}

	if !errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil, err
	}

	// 去重分支: 找到既有任务
	existing := d.findTask(jobID)
	if existing == nil {
		// 冲突但查不到 (刚被消费完并清理)，视作重复提交 no-op
		return &JobHandle{ID: jobID, Queue: queue, State: "completed"}, nil
	}

	if !finishedTaskState(existing.State) {
		logger.Debug("重复提交，任务仍在处理", zap.String("job_id", jobID), zap.String("state", existing.State.String()))
		return &JobHandle{ID: existing.ID, Queue: existing.Queue, State: existing.State.String()}, nil
	}

	// 已跑完的任务: 删除保留记录后重投同一个 job，而不是新建第二个
	if err := d.inspector.DeleteTask(existing.Queue, jobID); err != nil {
		return nil, err
	}
	info, err = d.client.EnqueueContext(ctx, task, opts...)
	if err != nil {
		return nil, err
	}
	logger.Info("已结束任务重投", zap.String("request_id", p.RequestID), zap.String("job_id", jobID), zap.String("prev_state", existing.State.String()))
	return &JobHandle{ID: info.ID, Queue: info.Queue, State: info.State.String()}, nil
}

// finishedTaskState 判定冲突的既有任务是否已经跑完、不会再被执行
// archived (重试耗尽) 和 completed (Retention 窗口内保留的完成记录) 都占着
// task id 但永远不会再跑，重投前必须删除，否则入队是静默 no-op。
// 升级单就是典型场景: Processor 升级后返回 nil，任务以 completed 保留，
// 运营 retry 重开单子后必须能顶掉这条保留记录重新入队
func finishedTaskState(state asynq.TaskState) bool {
	return state == asynq.TaskStateArchived || state == asynq.TaskStateCompleted
}

// queueFor 金额达到阈值走 critical 队列
func (d *Dispatcher) queueFor(amount decimal.Decimal) string {
	if d.criticalThreshold.IsPositive() && amount.GreaterThanOrEqual(d.criticalThreshold) {
		return QueueCritical
	}
	return QueueDefault
}

func (d *Dispatcher) findTask(jobID string) *asynq.TaskInfo {
	for _, q := range allQueues {
		if ti, err := d.inspector.GetTaskInfo(q, jobID); err == nil {
			return ti
		}
	}
	return nil
}

// Stats 聚合两个队列的状态计数，并刷新监控 Gauge
func (d *Dispatcher) Stats(ctx context.Context) (*QueueStats, error) {
	var stats QueueStats
	for _, q := range allQueues {
		qi, err := d.inspector.GetQueueInfo(q)
		if err != nil {
			return nil, err
		}
		stats.Waiting += qi.Pending
		stats.Active += qi.Active
		stats.Completed += qi.Completed
		stats.Failed += qi.Archived
		stats.Delayed += qi.Scheduled + qi.Retry
	}

	if monitor.Business != nil {
		monitor.Business.QueueDepth.WithLabelValues("waiting").Set(float64(stats.Waiting))
		monitor.Business.QueueDepth.WithLabelValues("active").Set(float64(stats.Active))
		monitor.Business.QueueDepth.WithLabelValues("failed").Set(float64(stats.Failed))
		monitor.Business.QueueDepth.WithLabelValues("delayed").Set(float64(stats.Delayed))
	}
	return &stats, nil
}

// ListArchived 列出归档 (重试耗尽) 任务，供审计清扫使用
func (d *Dispatcher) ListArchived(queue string) ([]*asynq.TaskInfo, error) {
	return d.inspector.ListArchivedTasks(queue, asynq.PageSize(200))
}

// Redrive 把归档任务重新拉回待执行状态
func (d *Dispatcher) Redrive(queue, jobID string) error {
	return d.inspector.RunTask(queue, jobID)
}

// Compact 清理已完成任务与过期的归档任务
func (d *Dispatcher) Compact(olderThan time.Duration) (int, error) {
	removed := 0
	cutoff := time.Now().Add(-olderThan)
	for _, q := range allQueues {
		n, err := d.inspector.DeleteAllCompletedTasks(q)
		if err != nil {
			return removed, err
		}
		removed += n

		archived, err := d.inspector.ListArchivedTasks(q, asynq.PageSize(500))
		if err != nil {
			return removed, err
		}
		for _, ti := range archived {
			if ti.LastFailedAt.Before(cutoff) {
				if err := d.inspector.DeleteTask(q, ti.ID); err == nil {
					removed++
				}
			}
		}
	}
	return removed, nil
}

// Close 关闭客户端连接
func (d *Dispatcher) Close() error {
	return d.client.Close()
}

// Queues 暴露队列名列表，供清扫任务遍历
func Queues() []string {
	return allQueues
}
