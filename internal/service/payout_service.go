package service

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"payout-core/internal/model"
	"payout-core/internal/store"
	"payout-core/internal/worker"
	"payout-core/internal/worker/tasks"
	"payout-core/pkg/cache"
	"payout-core/pkg/errno"
	"payout-core/pkg/logger"
)

// 查询走短 TTL 缓存: 提现单状态由 Worker 跨进程推进，
// 本地缓存只能靠 TTL 收敛，所以必须足够短
const requestCacheTTL = 3 * time.Second

// PayoutService 提现单创建与入队
// 创建即冻结 amount + fee，随后提现单才对流水线可见
type PayoutService struct {
	store      RequestStore
	dispatcher Dispatcher
	cache      cache.Cache
	networkTag string
}

func NewPayoutService(st RequestStore, d Dispatcher, c cache.Cache, networkTag string) *PayoutService {
	return &PayoutService{
		store:      st,
		dispatcher: d,
		cache:      c,
		networkTag: networkTag,
	}
}

func requestCacheKey(id string) string {
	return "payout:req:" + id
}

// CreateParams 上游协作方传入的提现申请
type CreateParams struct {
	RequestID   string
	UserID      uint64
	Amount      decimal.Decimal
	Fee         decimal.Decimal
	ToAddress   string
	NetworkTag  string
	DisplayName string
}

// Create 创建并入队，按 RequestID 幂等
// 重复提交返回既有提现单并重触发入队 (队列层自身按 job id 去重)
func (s *PayoutService) Create(ctx context.Context, params CreateParams) (*model.WithdrawalRequest, *worker.JobHandle, error) {
	if !params.Amount.IsPositive() || params.Fee.IsNegative() {
		return nil, nil, errno.ErrInvalidAmount
	}
	if params.RequestID == "" {
		params.RequestID = uuid.NewString()
	}
	if params.NetworkTag == "" {
		params.NetworkTag = s.networkTag
	}

	req := &model.WithdrawalRequest{
		ID:          params.RequestID,
		UserID:      params.UserID,
		Amount:      params.Amount,
		Fee:         params.Fee,
		ToAddress:   params.ToAddress,
		NetworkTag:  params.NetworkTag,
		DisplayName: params.DisplayName,
	}

	err := s.store.CreateWithReservation(ctx, req)
	switch {
	case errors.Is(err, store.ErrDuplicateRequest):
		// 幂等: 不二次冻结，取回既有单子重新入队即可
		existing, gerr := s.store.Get(ctx, params.RequestID)
		if gerr != nil {
			return nil, nil, gerr
		}
		req = existing
	case errors.Is(err, store.ErrInsufficientBalance):
		return nil, nil, errno.ErrInsufficientBalance
	case err != nil:
		return nil, nil, err
	}

	handle, err := s.Dispatch(ctx, req)
	if err != nil {
		// 冻结已生效但入队失败: 单子保持 pending，由重投或运营重试补救
		logger.Error("提现单入队失败", zap.String("request_id", req.ID), zap.Error(err))
		return req, nil, err
	}
	return req, handle, nil
}

// Dispatch 把既有提现单投入队列 (幂等)
func (s *PayoutService) Dispatch(ctx context.Context, req *model.WithdrawalRequest) (*worker.JobHandle, error) {
	return s.dispatcher.Enqueue(ctx, tasks.WithdrawalPayload{
		RequestID:   req.ID,
		UserID:      req.UserID,
		Amount:      req.Amount,
		Address:     req.ToAddress,
		DisplayName: req.DisplayName,
	})
}

// Get 查询提现单 (读穿缓存)
func (s *PayoutService) Get(ctx context.Context, id string) (*model.WithdrawalRequest, error) {
	var cached model.WithdrawalRequest
	if err := s.cache.Get(ctx, requestCacheKey(id), &cached); err == nil {
		return &cached, nil
	}

	req, err := s.store.Get(ctx, id)
	if errors.Is(err, store.ErrNotFound) {
		return nil, errno.ErrRequestNotFound
	}
	if err != nil {
		return nil, err
	}

	if cerr := s.cache.Set(ctx, requestCacheKey(id), req, requestCacheTTL); cerr != nil {
		logger.Warn("提现单缓存写入失败", zap.String("request_id", id), zap.Error(cerr))
	}
	return req, nil
}
