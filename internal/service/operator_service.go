package service

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"payout-core/internal/model"
	"payout-core/internal/notify"
	"payout-core/internal/store"
	"payout-core/internal/worker/tasks"
	"payout-core/pkg/cache"
	"payout-core/pkg/errno"
	"payout-core/pkg/logger"
)

// 运营操作
const (
	ActionApprove = "approve"
	ActionRetry   = "retry"
	ActionReject  = "reject"
	ActionAck     = "ack"
)

// OperatorService 运营操作面
// 所有操作最终都走提现单的条件迁移，和 Worker 是同一套前置条件:
// 运营 reject 与 Worker 提交是对同一个 CAS 的竞争写者，先到先得
type OperatorService struct {
	store      RequestStore
	dispatcher Dispatcher
	notifier   notify.Notifier
	cache      cache.Cache
}

func NewOperatorService(st RequestStore, d Dispatcher, n notify.Notifier, c cache.Cache) *OperatorService {
	return &OperatorService{
		store:      st,
		dispatcher: d,
		notifier:   n,
		cache:      c,
	}
}

// Apply 执行一个运营操作
// 操作改写状态后清一次查询缓存，让用户端尽快看到结果
func (s *OperatorService) Apply(ctx context.Context, requestID, action string, operatorID uint64) error {
	defer func() {
		_ = s.cache.Delete(context.Background(), requestCacheKey(requestID))
	}()

	switch action {
	case ActionApprove:
		return s.ManualApprove(ctx, requestID, operatorID)
	case ActionRetry:
		return s.Retry(ctx, requestID, operatorID)
	case ActionReject:
		return s.Reject(ctx, requestID, operatorID)
	case ActionAck:
		return s.store.AckEscalation(ctx, requestID)
	default:
		return errno.ErrInvalidAction
	}
}

// ManualApprove 运营人工确认提现已在交易所侧完成
// pending: 正常提交路径 (扣冻结额)
// failed:  升级单事后核销，退款已回可用余额，重新扣减
func (s *OperatorService) ManualApprove(ctx context.Context, requestID string, operatorID uint64) error {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return err
	}

	var expected string
	switch req.Status {
	case model.StatusPending:
		expected = model.StatusPending
	case model.StatusFailed:
		expected = model.StatusFailed
	default:
		return errno.ErrAlreadyResolved
	}

	externalRef := fmt.Sprintf("manual:%d", operatorID)
	resolved, err := s.store.CommitSuccess(ctx, requestID, expected, externalRef)
	if err != nil {
		if errors.Is(err, store.ErrConflict) {
			return errno.ErrAlreadyResolved
		}
		// 升级单核销要从可用余额重新扣款，退款已被花掉时拒绝核销
		if errors.Is(err, store.ErrInsufficientBalance) {
			return errno.ErrInsufficientBalance
		}
		return err
	}
	_ = s.store.AckEscalation(ctx, requestID)

	logger.Info("运营人工确认提现完成",
		zap.String("request_id", requestID),
		zap.Uint64("operator_id", operatorID),
	)

	if nerr := s.notifier.NotifyUser(ctx, resolved.UserID, resolved.ID, notify.KindSuccess, notify.UserSuccessText(resolved)); nerr != nil {
		logger.Error("通知投递失败 (忽略)", zap.Error(nerr))
	}
	return nil
}

// Retry 重新驱动一个提现单
// pending: 直接重投队列 (归档任务会被重投同一个 job)
// failed:  先 failed→pending 重新冻结，再入队
func (s *OperatorService) Retry(ctx context.Context, requestID string, operatorID uint64) error {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return err
	}

	switch req.Status {
	case model.StatusPending:
		// 状态不变，仅驱动队列
	case model.StatusFailed:
		req, err = s.store.Reopen(ctx, requestID)
		if err != nil {
			if errors.Is(err, store.ErrInsufficientBalance) {
				return errno.ErrInsufficientBalance
			}
			if errors.Is(err, store.ErrConflict) {
				return errno.ErrAlreadyResolved
			}
			return err
		}
	default:
		return errno.ErrAlreadyResolved
	}

	_ = s.store.AckEscalation(ctx, requestID)

	_, err = s.dispatcher.Enqueue(ctx, tasks.WithdrawalPayload{
		RequestID:   req.ID,
		UserID:      req.UserID,
		Amount:      req.Amount,
		Address:     req.ToAddress,
		DisplayName: req.DisplayName,
	})
	if err != nil {
		return err
	}

	logger.Info("运营重新入队提现单",
		zap.String("request_id", requestID),
		zap.Uint64("operator_id", operatorID),
	)
	return nil
}

// Reject 运营拒绝
// pending: 条件迁移 pending→rejected + 退款 (这是唯一的"取消"机制，
//          正在退避等待的 Worker 下次校验时发现非 pending 自行退出)
// failed:  已退款，幂等确认即可
func (s *OperatorService) Reject(ctx context.Context, requestID string, operatorID uint64) error {
	req, err := s.getRequest(ctx, requestID)
	if err != nil {
		return err
	}

	switch req.Status {
	case model.StatusPending:
		resolved, err := s.store.ResolveRejected(ctx, requestID, fmt.Sprintf("rejected by operator %d", operatorID))
		if err != nil {
			if errors.Is(err, store.ErrConflict) {
				return errno.ErrAlreadyResolved
			}
			return err
		}
		if nerr := s.notifier.NotifyUser(ctx, resolved.UserID, resolved.ID, notify.KindRejected, notify.UserRejectedText(resolved)); nerr != nil {
			logger.Error("通知投递失败 (忽略)", zap.Error(nerr))
		}
	case model.StatusFailed:
		// 升级路径已退款，reject 只剩确认语义
	default:
		return errno.ErrAlreadyResolved
	}

	_ = s.store.AckEscalation(ctx, requestID)

	logger.Info("运营拒绝提现单",
		zap.String("request_id", requestID),
		zap.Uint64("operator_id", operatorID),
	)
	return nil
}

func (s *OperatorService) getRequest(ctx context.Context, requestID string) (*model.WithdrawalRequest, error) {
	req, err := s.store.Get(ctx, requestID)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, errno.ErrRequestNotFound
		}
		return nil, err
	}
	return req, nil
}
