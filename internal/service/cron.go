package service

import (
	"context"
	"encoding/json"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"go.uber.org/zap"

	"payout-core/internal/model"
	"payout-core/internal/notify"
	"payout-core/internal/worker"
	"payout-core/internal/worker/tasks"
	"payout-core/pkg/config"
	"payout-core/pkg/logger"
	"payout-core/pkg/utils/lock"
)

// CronService 周期清扫任务
// 四个清扫相互独立、各自幂等，可以和自身并发触发:
// 分布式锁挡掉多实例同跑，水位线挡掉调度抖动造成的连续触发
type CronService struct {
	cron       *cron.Cron
	redis      *redis.Client
	store      RequestStore
	dispatcher Dispatcher
	notifier   notify.Notifier
	cfg        config.SweepConfig
}

func NewCronService(rdb *redis.Client, st RequestStore, d Dispatcher, n notify.Notifier, cfg config.SweepConfig) *CronService {
	return &CronService{
		cron:       cron.New(),
		redis:      rdb,
		store:      st,
		dispatcher: d,
		notifier:   n,
		cfg:        cfg,
	}
}

func (s *CronService) Start() {
	// 注册任务
	_, _ = s.cron.AddFunc("@every 2m", s.EscalationAudit)  // 未确认升级单重发
	_, _ = s.cron.AddFunc("@every 5m", s.RedriveArchived)  // 归档任务重驱动
	_, _ = s.cron.AddFunc("@every 6h", s.CompactQueues)    // 队列压缩
	_, _ = s.cron.AddFunc("@daily", s.DailySummary)        // 运营日报

	s.cron.Start()
	logger.Info("Cron Service started")
}

func (s *CronService) Stop() {
	s.cron.Stop()
	logger.Info("Cron Service stopped")
}

// guard 分布式锁 + 最近运行水位线
// 返回 release 函数; ok=false 表示有别的实例在跑或刚跑过，直接跳过
func (s *CronService) guard(ctx context.Context, name string, watermark time.Duration) (func(), bool) {
	locker := lock.NewRedisLock(s.redis)
	locked, err := locker.Acquire(ctx, "cron:"+name, 1*time.Minute)
	if err != nil || !locked {
		logger.Debug("清扫任务跳过: 锁被占用", zap.String("job", name))
		return nil, false
	}

	ok, err := locker.Watermark(ctx, "cron:"+name, watermark)
	if err != nil || !ok {
		_ = locker.Release(ctx, "cron:"+name)
		logger.Debug("清扫任务跳过: 水位线未过期", zap.String("job", name))
		return nil, false
	}

	return func() { _ = locker.Release(ctx, "cron:"+name) }, true
}

// EscalationAudit 清扫一: 升级后长时间无人认领的失败单重发通知
// 重发会刷新 escalated_at，同一单子在重发窗口内不会被重复提醒
func (s *CronService) EscalationAudit() {
	ctx := context.Background()
	release, ok := s.guard(ctx, "escalation_audit", time.Minute)
	if !ok {
		return
	}
	defer release()

	olderThan := time.Now().Add(-s.cfg.EscalationResend)
	reqs, err := s.store.ListUnackedEscalations(ctx, olderThan, 100)
	if err != nil {
		logger.Error("升级审计查询失败", zap.Error(err))
		return
	}

	for i := range reqs {
		req := &reqs[i]
		text := notify.OperatorEscalationText(req, req.AttemptCount, req.LastError)
		if err := s.notifier.NotifyOperator(ctx, req.ID, notify.KindEscalation, text, notify.EscalationActions(req.ID)); err != nil {
			logger.Error("升级重发失败", zap.String("request_id", req.ID), zap.Error(err))
			continue
		}
		if err := s.store.MarkEscalationResent(ctx, req.ID); err != nil {
			logger.Error("升级重发时间戳更新失败", zap.String("request_id", req.ID), zap.Error(err))
		}
	}

	if len(reqs) > 0 {
		logger.Info("升级审计完成", zap.Int("resent", len(reqs)))
	}
}

// RedriveArchived 清扫二: 提现单还在 pending 但任务已被归档的，重新驱动
// 典型成因: 最后一次尝试超时被队列归档，Processor 没机会走升级分支
func (s *CronService) RedriveArchived() {
	ctx := context.Background()
	release, ok := s.guard(ctx, "redrive_archived", 2*time.Minute)
	if !ok {
		return
	}
	defer release()

	redriven := 0
	for _, queue := range worker.Queues() {
		archived, err := s.dispatcher.ListArchived(queue)
		if err != nil {
			logger.Error("归档任务查询失败", zap.String("queue", queue), zap.Error(err))
			continue
		}

		for _, ti := range archived {
			var p tasks.WithdrawalPayload
			if err := json.Unmarshal(ti.Payload, &p); err != nil {
				continue
			}
			req, err := s.store.Get(ctx, p.RequestID)
			if err != nil || req.Status != model.StatusPending {
				continue // 已终结的单子留给压缩清扫
			}
			if err := s.dispatcher.Redrive(queue, ti.ID); err != nil {
				logger.Error("归档任务重驱动失败", zap.String("job_id", ti.ID), zap.Error(err))
				continue
			}
			redriven++
		}
	}

	if redriven > 0 {
		logger.Info("归档任务重驱动完成", zap.Int("redriven", redriven))
	}
}

// CompactQueues 清扫三: 清理已完成任务与过期归档任务，压住历史记录的无界增长
func (s *CronService) CompactQueues() {
	ctx := context.Background()
	release, ok := s.guard(ctx, "compact_queues", 30*time.Minute)
	if !ok {
		return
	}
	defer release()

	removed, err := s.dispatcher.Compact(s.cfg.TaskRetention)
	if err != nil {
		logger.Error("队列压缩失败", zap.Error(err))
		return
	}
	logger.Info("队列压缩完成", zap.Int("removed", removed))
}

// DailySummary 清扫四: 队列概览日报发给运营
func (s *CronService) DailySummary() {
	ctx := context.Background()
	release, ok := s.guard(ctx, "daily_summary", time.Hour)
	if !ok {
		return
	}
	defer release()

	stats, err := s.dispatcher.Stats(ctx)
	if err != nil {
		logger.Error("队列统计失败", zap.Error(err))
		return
	}
	counts, err := s.store.CountByStatus(ctx)
	if err != nil {
		logger.Error("提现单状态统计失败", zap.Error(err))
		return
	}

	text := notify.OperatorSummaryText(map[string]int64{
		"waiting":   int64(stats.Waiting),
		"active":    int64(stats.Active),
		"completed": int64(stats.Completed),
		"failed":    int64(stats.Failed),
		"delayed":   int64(stats.Delayed),
	}, counts)
	if err := s.notifier.NotifyOperator(ctx, "", notify.KindSummary, text, nil); err != nil {
		logger.Error("日报发送失败", zap.Error(err))
	}
}
