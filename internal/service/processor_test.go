package service

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payout-core/internal/exchange"
	"payout-core/internal/model"
	"payout-core/internal/notify"
	"payout-core/internal/worker/tasks"
)

func newPendingRequest(t *testing.T, st *fakeStore, id string) *model.WithdrawalRequest {
	t.Helper()
	st.fund(1, decimal.NewFromInt(1000))
	req := &model.WithdrawalRequest{
		ID:         id,
		UserID:     1,
		Amount:     decimal.NewFromInt(50),
		Fee:        decimal.NewFromInt(1),
		ToAddress:  "TAbcdefghijklmnopqrstuvwxyz123456",
		NetworkTag: "TRC20",
	}
	require.NoError(t, st.CreateWithReservation(context.Background(), req))
	return req
}

func payloadFor(st *fakeStore, id string) tasks.WithdrawalPayload {
	req := st.snapshot(id)
	return tasks.WithdrawalPayload{
		RequestID: req.ID,
		UserID:    req.UserID,
		Amount:    req.Amount,
		Address:   req.ToAddress,
	}
}

func payloadRaw(id string) tasks.WithdrawalPayload {
	return tasks.WithdrawalPayload{RequestID: id, UserID: 1, Amount: decimal.NewFromInt(10)}
}

func TestProcess_Success(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExchange{}
	n := &recordNotifier{}
	p := NewProcessor(st, ex, n)

	newPendingRequest(t, st, "req-1")

	err := p.Process(context.Background(), payloadFor(st, "req-1"), 0, 9)
	require.NoError(t, err)

	got := st.snapshot("req-1")
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.Equal(t, "ex-1", got.ExternalID)
	assert.NotNil(t, got.ResolvedAt)

	// 冻结额销账: 1000 - 51 可用，冻结归零
	available, locked := st.balances(1)
	assert.True(t, available.Equal(decimal.NewFromInt(949)), "available = %s", available)
	assert.True(t, locked.IsZero(), "locked = %s", locked)

	assert.Equal(t, []string{notify.KindSuccess}, n.userKinds())
	assert.Equal(t, []string{notify.KindSuccess}, n.operatorKinds())
}

func TestProcess_AlreadyResolved(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExchange{}
	p := NewProcessor(st, ex, &recordNotifier{})

	newPendingRequest(t, st, "req-1")
	_, err := st.CommitSuccess(context.Background(), "req-1", model.StatusPending, "manual:9")
	require.NoError(t, err)

	// 重复投递的任务必须消费掉，且不得触发任何外部调用
	require.NoError(t, p.Process(context.Background(), payloadFor(st, "req-1"), 0, 9))
	withdraws, finds := ex.calls()
	assert.Zero(t, withdraws)
	assert.Zero(t, finds)
}

func TestProcess_MissingRequest(t *testing.T) {
	st := newFakeStore()
	p := NewProcessor(st, &fakeExchange{}, &recordNotifier{})

	// 提现单不存在: 任务作废而不是无限重试
	err := p.Process(context.Background(), payloadRaw("ghost"), 0, 9)
	assert.NoError(t, err)
}

func TestProcess_InvalidAddressRejects(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExchange{
		withdrawFn: func(req exchange.WithdrawRequest) (*exchange.Withdrawal, error) {
			return nil, &exchange.Error{Class: exchange.ClassInvalid, Code: "invalid_address", Message: "bad checksum"}
		},
	}
	n := &recordNotifier{}
	p := NewProcessor(st, ex, n)

	newPendingRequest(t, st, "req-1")
	require.NoError(t, p.Process(context.Background(), payloadFor(st, "req-1"), 0, 9))

	got := st.snapshot("req-1")
	assert.Equal(t, model.StatusRejected, got.Status)

	// 全额退款: 回到 1000
	available, locked := st.balances(1)
	assert.True(t, available.Equal(decimal.NewFromInt(1000)))
	assert.True(t, locked.IsZero())
	assert.Equal(t, 1, st.refunds)

	assert.Equal(t, []string{notify.KindRejected}, n.userKinds())
}

func TestProcess_TransientReturnsForRetry(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExchange{
		withdrawFn: func(req exchange.WithdrawRequest) (*exchange.Withdrawal, error) {
			return nil, &exchange.Error{Class: exchange.ClassTransient, Code: "network", Message: "connection refused"}
		},
	}
	n := &recordNotifier{}
	p := NewProcessor(st, ex, n)

	newPendingRequest(t, st, "req-1")
	err := p.Process(context.Background(), payloadFor(st, "req-1"), 0, 9)
	require.Error(t, err)

	// 单子留在 pending，失败次数与原因已留痕，资金纹丝不动
	got := st.snapshot("req-1")
	assert.Equal(t, model.StatusPending, got.Status)
	assert.Equal(t, 1, got.AttemptCount)
	assert.Contains(t, got.LastError, "connection refused")
	assert.Zero(t, st.refunds)

	// 首次进入重试告知用户一次"处理中"
	assert.Equal(t, []string{notify.KindDelay}, n.userKinds())
}

func TestProcess_DelayNoticeSentOnlyOnce(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExchange{
		withdrawFn: func(req exchange.WithdrawRequest) (*exchange.Withdrawal, error) {
			return nil, &exchange.Error{Class: exchange.ClassTransient, Code: "network", Message: "connection refused"}
		},
	}
	n := &recordNotifier{}
	p := NewProcessor(st, ex, n)

	newPendingRequest(t, st, "req-1")

	// 首次尝试失败: 发一次延迟通知
	require.Error(t, p.Process(context.Background(), payloadFor(st, "req-1"), 0, 9))
	// attempt 0 的重复投递: 落库的尝试次数已非零，不重发
	require.Error(t, p.Process(context.Background(), payloadFor(st, "req-1"), 0, 9))
	// 后续重试: 同样不再打扰
	require.Error(t, p.Process(context.Background(), payloadFor(st, "req-1"), 3, 9))

	assert.Equal(t, []string{notify.KindDelay}, n.userKinds())
}

func TestProcess_ExhaustedEscalatesExactlyOnce(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExchange{
		withdrawFn: func(req exchange.WithdrawRequest) (*exchange.Withdrawal, error) {
			return nil, &exchange.Error{Class: exchange.ClassLiquidity, Code: "insufficient_liquidity", Message: "dry"}
		},
	}
	n := &recordNotifier{}
	p := NewProcessor(st, ex, n)

	newPendingRequest(t, st, "req-1")

	// 最后一次尝试 (attempt == maxRetry): 任务被消费而不是再退避
	require.NoError(t, p.Process(context.Background(), payloadFor(st, "req-1"), 9, 9))

	got := st.snapshot("req-1")
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Equal(t, 10, got.AttemptCount)
	assert.NotNil(t, got.EscalatedAt)

	available, _ := st.balances(1)
	assert.True(t, available.Equal(decimal.NewFromInt(1000)), "退款后可用余额应复原")

	// 重复投递同一耗尽任务: no-op，不产生第二次升级或退款
	require.NoError(t, p.Process(context.Background(), payloadFor(st, "req-1"), 9, 9))
	assert.Equal(t, 1, st.refunds)
	assert.Equal(t, []string{notify.KindEscalation}, n.operatorKinds())
	assert.Equal(t, []string{notify.KindDelay}, n.userKinds())
}

func TestProcess_ReconciliationCommitsWithoutResubmit(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExchange{
		findFn: func(clientRef string) (*exchange.Withdrawal, error) {
			return &exchange.Withdrawal{ExternalID: "ex-77", ClientRef: clientRef, State: exchange.StateCompleted}, nil
		},
	}
	p := NewProcessor(st, ex, &recordNotifier{})

	newPendingRequest(t, st, "req-1")

	// 上一次调用超时，但交易所侧其实已执行成功: 直接提交，绝不重发
	require.NoError(t, p.Process(context.Background(), payloadFor(st, "req-1"), 1, 9))

	got := st.snapshot("req-1")
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.Equal(t, "ex-77", got.ExternalID)

	withdraws, finds := ex.calls()
	assert.Zero(t, withdraws, "对账命中后不得再次出金")
	assert.Equal(t, 1, finds)
}

func TestProcess_ReconciliationInFlightDefers(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExchange{
		findFn: func(clientRef string) (*exchange.Withdrawal, error) {
			return &exchange.Withdrawal{ClientRef: clientRef, State: exchange.StateProcessing}, nil
		},
	}
	p := NewProcessor(st, ex, &recordNotifier{})

	newPendingRequest(t, st, "req-1")
	err := p.Process(context.Background(), payloadFor(st, "req-1"), 1, 9)
	require.Error(t, err)
	assert.Equal(t, exchange.ClassAmbiguous, exchange.ClassOf(err))

	withdraws, _ := ex.calls()
	assert.Zero(t, withdraws)
	assert.Equal(t, model.StatusPending, st.snapshot("req-1").Status)
}

func TestProcess_ReconciliationLookupFailureBlocksResubmit(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExchange{
		findFn: func(clientRef string) (*exchange.Withdrawal, error) {
			return nil, &exchange.Error{Class: exchange.ClassTransient, Code: "network", Message: "down"}
		},
	}
	p := NewProcessor(st, ex, &recordNotifier{})

	newPendingRequest(t, st, "req-1")
	err := p.Process(context.Background(), payloadFor(st, "req-1"), 1, 9)
	require.Error(t, err)

	// 对账失败时盲目重发有重复出金风险，必须原样交回队列
	withdraws, _ := ex.calls()
	assert.Zero(t, withdraws)
}

func TestProcess_ReconciliationNotFoundResubmits(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExchange{}
	p := NewProcessor(st, ex, &recordNotifier{})

	newPendingRequest(t, st, "req-1")

	// 交易所侧没有这笔: 可以安全重发同一个 client_ref
	require.NoError(t, p.Process(context.Background(), payloadFor(st, "req-1"), 1, 9))

	withdraws, finds := ex.calls()
	assert.Equal(t, 1, withdraws)
	assert.Equal(t, 1, finds)
	assert.Equal(t, model.StatusApproved, st.snapshot("req-1").Status)
}

func TestProcess_ConcurrentDuplicateDeliveries(t *testing.T) {
	st := newFakeStore()
	ex := &fakeExchange{}
	n := &recordNotifier{}
	p := NewProcessor(st, ex, n)

	newPendingRequest(t, st, "req-1")
	payload := payloadFor(st, "req-1")

	// 同一任务被同时投给 8 个执行者: 恰好一个提交成功，其余 no-op
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			assert.NoError(t, p.Process(context.Background(), payload, 0, 9))
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, st.burns, "冻结额只能销账一次")
	available, locked := st.balances(1)
	assert.True(t, available.Equal(decimal.NewFromInt(949)))
	assert.True(t, locked.IsZero())
	assert.Equal(t, []string{notify.KindSuccess}, n.userKinds(), "成功通知只发一次")
}

func TestProcess_OperatorRejectWinsRace(t *testing.T) {
	st := newFakeStore()
	n := &recordNotifier{}
	ex := &fakeExchange{}
	ex.withdrawFn = func(req exchange.WithdrawRequest) (*exchange.Withdrawal, error) {
		// 外部调用还在路上时运营抢先 reject 了
		_, err := st.ResolveRejected(context.Background(), "req-1", "rejected by operator 7")
		if err != nil {
			return nil, err
		}
		return &exchange.Withdrawal{ExternalID: "ex-1", ClientRef: req.ClientRef, State: exchange.StateCompleted}, nil
	}
	p := NewProcessor(st, ex, n)

	newPendingRequest(t, st, "req-1")
	require.NoError(t, p.Process(context.Background(), payloadFor(st, "req-1"), 0, 9))

	// 输掉 CAS 的提交方绝不能再动余额: reject 已退款，余额保持 1000
	got := st.snapshot("req-1")
	assert.Equal(t, model.StatusRejected, got.Status)
	available, locked := st.balances(1)
	assert.True(t, available.Equal(decimal.NewFromInt(1000)), "available = %s", available)
	assert.True(t, locked.IsZero())
	assert.Zero(t, st.burns)
}

func TestClientRef_Deterministic(t *testing.T) {
	assert.Equal(t, "wd-abc", ClientRef("abc"))
	assert.Equal(t, ClientRef("abc"), ClientRef("abc"))
	assert.NotEqual(t, ClientRef("abc"), ClientRef("abd"))
}
