package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"payout-core/internal/exchange"
	"payout-core/internal/model"
	"payout-core/internal/notify"
	"payout-core/internal/store"
	"payout-core/internal/worker/tasks"
	"payout-core/pkg/logger"
	"payout-core/pkg/monitor"
)

// Processor 提现任务状态机: claimed → validated → external-call → commit
// 队列是 at-least-once 的，资金恰好一次由提现单上的条件状态迁移保证，
// Processor 本身可以被任意重复调用
type Processor struct {
	store    RequestStore
	exchange exchange.Client
	notifier notify.Notifier
}

func NewProcessor(st RequestStore, ex exchange.Client, n notify.Notifier) *Processor {
	return &Processor{
		store:    st,
		exchange: ex,
		notifier: n,
	}
}

// ClientRef 交易所侧幂等键，由 request id 确定性派生
func ClientRef(requestID string) string {
	return "wd-" + requestID
}

// Process 执行一次提现尝试
// attempt 从 0 计，maxRetry 为队列允许的重试上限
// 返回 error 表示交回队列退避重试，返回 nil 表示任务已消费 (含各种终态)
func (p *Processor) Process(ctx context.Context, payload tasks.WithdrawalPayload, attempt, maxRetry int) error {
	start := time.Now()

	// 1. 幂等闸门: 以提现单为准回读状态
	// 任务负载不是资金事实来源，重复投递 / 运营抢先处理都在这里被拦下
	req, err := p.store.Get(ctx, payload.RequestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			logger.Error("提现任务找不到对应提现单，任务作废", zap.String("request_id", payload.RequestID))
			return nil
		}
		return err
	}
	if req.Status != model.StatusPending {
		if monitor.Business != nil {
			monitor.Business.NoOpValidationsTotal.Inc()
		}
		logger.Info("提现单已被其他执行者解决，跳过",
			zap.String("request_id", req.ID),
			zap.String("status", req.Status),
		)
		return nil
	}

	clientRef := ClientRef(req.ID)

	// 2. 对账闸门: 非首次尝试时，上一次调用可能已在交易所侧执行成功
	// (超时 ≠ 失败)，盲目重发会造成重复出金，必须先按 client_ref 查证
	if attempt > 0 {
		w, ferr := p.exchange.FindByClientRef(ctx, clientRef)
		switch {
		case ferr == nil && w.State == exchange.StateCompleted:
			if monitor.Business != nil {
				monitor.Business.ReconciliationCommits.Inc()
			}
			logger.Warn("对账发现上次调用已成功，直接提交",
				zap.String("request_id", req.ID),
				zap.String("external_id", w.ExternalID),
			)
			p.commitSuccess(ctx, req, w.ExternalID)
			p.observe(start, "reconciled")
			return nil
		case ferr == nil && w.State == exchange.StateProcessing:
			// 交易所还在处理，既不能重发也不能判失败，交回队列晚点再看
			return &exchange.Error{Class: exchange.ClassAmbiguous, Code: "in_flight", Message: "withdrawal still processing on exchange"}
		case ferr != nil && !errors.Is(ferr, exchange.ErrNotFound):
			// 对账本身失败时绝不重发，等下一轮
			return ferr
		}
		// 未找到或交易所侧已失败: 可以安全重发同一个 client_ref
	}

	// 3. 外部调用
	w, err := p.exchange.Withdraw(ctx, exchange.WithdrawRequest{
		ClientRef:  clientRef,
		Address:    req.ToAddress,
		Amount:     req.Amount,
		NetworkTag: req.NetworkTag,
	})
	if err == nil {
		p.commitSuccess(ctx, req, w.ExternalID)
		p.observe(start, "success")
		return nil
	}

	// 4. 失败分类与提交
	switch exchange.ClassOf(err) {
	case exchange.ClassInvalid, exchange.ClassRejected:
		// 终态: 不重试，立即拒绝并退款
		p.resolveRejected(ctx, req, err)
		p.observe(start, "rejected")
		return nil

	default:
		// transient / ambiguous / liquidity: 可重试
		attemptNo := attempt + 1
		if rerr := p.store.RecordAttempt(ctx, req.ID, attemptNo, err.Error()); rerr != nil {
			logger.Warn("记录尝试次数失败", zap.String("request_id", req.ID), zap.Error(rerr))
		}

		if attempt >= maxRetry {
			// 重试预算耗尽，升级给运营
			p.escalate(ctx, req, attemptNo, err)
			p.observe(start, "escalated")
			return nil
		}

		// 首次进入重试时告知用户处理中，之后的重试不再打扰
		// req.AttemptCount 是入口回读的落库值: 同一 attempt 的重复投递
		// 在第一次 RecordAttempt 之后回读到非零，不会重复发送
		if attempt == 0 && req.AttemptCount == 0 {
			p.notifyBestEffort(ctx, func() error {
				return p.notifier.NotifyUser(ctx, req.UserID, req.ID, notify.KindDelay, notify.UserDelayText(req))
			})
		}

		logger.Info("提现尝试失败，交回队列重试",
			zap.String("request_id", req.ID),
			zap.Int("attempt", attemptNo),
			zap.String("class", string(exchange.ClassOf(err))),
		)
		p.observe(start, "retry")
		return err
	}
}

// commitSuccess 条件迁移 pending→approved
// 输掉竞争 (运营已抢先 reject) 时只记冲突，绝不补写任何资金变动
func (p *Processor) commitSuccess(ctx context.Context, req *model.WithdrawalRequest, externalRef string) {
	resolved, err := p.store.CommitSuccess(ctx, req.ID, model.StatusPending, externalRef)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			if monitor.Business != nil {
				monitor.Business.TransitionConflicts.Inc()
			}
			logger.Warn("成功提交时撞上并发终结，按 no-op 退出",
				zap.String("request_id", req.ID),
				zap.String("external_id", externalRef),
			)
			return
		}
		// 交易所已执行但本地提交失败: 留在 pending，由下一次对账闸门补提交
		logger.Error("成功提交落库失败", zap.String("request_id", req.ID), zap.Error(err))
		return
	}

	if monitor.Business != nil {
		monitor.Business.PayoutSuccessTotal.Inc()
		amt, _ := resolved.Amount.Float64()
		monitor.Business.PayoutAmountTotal.Add(amt)
	}

	p.notifyBestEffort(ctx, func() error {
		return p.notifier.NotifyUser(ctx, resolved.UserID, resolved.ID, notify.KindSuccess, notify.UserSuccessText(resolved))
	})
	p.notifyBestEffort(ctx, func() error {
		return p.notifier.NotifyOperator(ctx, resolved.ID, notify.KindSuccess, notify.OperatorSuccessText(resolved), nil)
	})
}

// resolveRejected 终态拒绝 + 退款
func (p *Processor) resolveRejected(ctx context.Context, req *model.WithdrawalRequest, cause error) {
	resolved, err := p.store.ResolveRejected(ctx, req.ID, cause.Error())
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			if monitor.Business != nil {
				monitor.Business.TransitionConflicts.Inc()
			}
			return
		}
		logger.Error("拒绝提交落库失败", zap.String("request_id", req.ID), zap.Error(err))
		return
	}

	if monitor.Business != nil {
		monitor.Business.PayoutRejectedTotal.WithLabelValues(string(exchange.ClassOf(cause))).Inc()
		refund, _ := resolved.Reserved().Float64()
		monitor.Business.PayoutRefundTotal.Add(refund)
	}

	p.notifyBestEffort(ctx, func() error {
		return p.notifier.NotifyUser(ctx, resolved.UserID, resolved.ID, notify.KindRejected, notify.UserRejectedText(resolved))
	})
}

// escalate 重试预算耗尽: pending→failed + 退款 + 恰好一次升级通知
// 条件更新保证并发触发时只有迁移成功的一方发通知
func (p *Processor) escalate(ctx context.Context, req *model.WithdrawalRequest, attempts int, cause error) {
	resolved, err := p.store.ResolveExhausted(ctx, req.ID, attempts, cause.Error())
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			if monitor.Business != nil {
				monitor.Business.TransitionConflicts.Inc()
			}
			return
		}
		logger.Error("升级落库失败", zap.String("request_id", req.ID), zap.Error(err))
		return
	}

	if monitor.Business != nil {
		monitor.Business.PayoutEscalatedTotal.Inc()
		refund, _ := resolved.Reserved().Float64()
		monitor.Business.PayoutRefundTotal.Add(refund)
	}

	logger.Warn("提现重试预算耗尽，已升级",
		zap.String("request_id", resolved.ID),
		zap.Int("attempts", attempts),
		zap.String("last_error", cause.Error()),
	)

	p.notifyBestEffort(ctx, func() error {
		return p.notifier.NotifyOperator(ctx, resolved.ID, notify.KindEscalation,
			notify.OperatorEscalationText(resolved, attempts, cause.Error()),
			notify.EscalationActions(resolved.ID))
	})
	// 用户只看到"延迟"，与最终失败文案区分，不暴露内部重试细节
	p.notifyBestEffort(ctx, func() error {
		return p.notifier.NotifyUser(ctx, resolved.UserID, resolved.ID, notify.KindDelay, notify.UserDelayText(resolved))
	})
}

// notifyBestEffort 通知失败只记日志，绝不影响已提交的资金状态
func (p *Processor) notifyBestEffort(_ context.Context, fn func() error) {
	if err := fn(); err != nil {
		logger.Error("通知投递失败 (忽略)", zap.Error(err))
	}
}

func (p *Processor) observe(start time.Time, outcome string) {
	if monitor.Business != nil {
		monitor.Business.AttemptDuration.WithLabelValues(outcome).Observe(time.Since(start).Seconds())
	}
}
