package service

import (
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"payout-core/internal/model"
	"payout-core/internal/notify"
	"payout-core/pkg/cache"
	"payout-core/pkg/errno"
)

func newOperatorService(st *fakeStore, d *fakeDispatcher, n *recordNotifier) *OperatorService {
	return NewOperatorService(st, d, n, cache.NewMemoryCache(time.Minute, time.Minute))
}

// 制造一个已升级的失败单: 退款已回可用余额
func newEscalatedRequest(t *testing.T, st *fakeStore, id string) {
	t.Helper()
	newPendingRequest(t, st, id)
	_, err := st.ResolveExhausted(context.Background(), id, 10, "insufficient_liquidity")
	require.NoError(t, err)
}

func TestManualApprove_EscalatedRequest(t *testing.T) {
	st := newFakeStore()
	n := &recordNotifier{}
	svc := newOperatorService(st, &fakeDispatcher{}, n)

	newEscalatedRequest(t, st, "req-1")

	require.NoError(t, svc.Apply(context.Background(), "req-1", ActionApprove, 7))

	got := st.snapshot("req-1")
	assert.Equal(t, model.StatusApproved, got.Status)
	assert.Equal(t, "manual:7", got.ExternalID)
	assert.NotNil(t, got.EscalationAckedAt)

	// 升级时已退款，人工核销要从可用余额重新扣减: 1000 - 51
	available, locked := st.balances(1)
	assert.True(t, available.Equal(decimal.NewFromInt(949)), "available = %s", available)
	assert.True(t, locked.IsZero())
	assert.Equal(t, 1, st.debits)
	assert.Equal(t, []string{notify.KindSuccess}, n.userKinds())
}

func TestManualApprove_EscalatedInsufficientBalance(t *testing.T) {
	st := newFakeStore()
	n := &recordNotifier{}
	svc := newOperatorService(st, &fakeDispatcher{}, n)

	newEscalatedRequest(t, st, "req-1")

	// 退款后用户把钱花掉了: 核销无法重新扣款，失败单保持原状
	st.mu.Lock()
	st.available[1] = decimal.NewFromInt(10)
	st.mu.Unlock()

	err := svc.Apply(context.Background(), "req-1", ActionApprove, 7)
	assert.ErrorIs(t, err, errno.ErrInsufficientBalance)

	got := st.snapshot("req-1")
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.Empty(t, got.ExternalID)
	assert.Zero(t, st.debits)
	assert.Empty(t, n.userKinds())

	available, _ := st.balances(1)
	assert.True(t, available.Equal(decimal.NewFromInt(10)), "available = %s", available)
}

func TestManualApprove_PendingRequest(t *testing.T) {
	st := newFakeStore()
	svc := newOperatorService(st, &fakeDispatcher{}, &recordNotifier{})

	newPendingRequest(t, st, "req-1")
	require.NoError(t, svc.Apply(context.Background(), "req-1", ActionApprove, 7))

	// pending 路径走正常销账，不是重新扣减
	assert.Equal(t, 1, st.burns)
	assert.Zero(t, st.debits)
	assert.Equal(t, model.StatusApproved, st.snapshot("req-1").Status)
}

func TestManualApprove_AlreadyResolved(t *testing.T) {
	st := newFakeStore()
	svc := newOperatorService(st, &fakeDispatcher{}, &recordNotifier{})

	newPendingRequest(t, st, "req-1")
	_, err := st.ResolveRejected(context.Background(), "req-1", "operator said no")
	require.NoError(t, err)

	err = svc.Apply(context.Background(), "req-1", ActionApprove, 7)
	assert.ErrorIs(t, err, errno.ErrAlreadyResolved)
}

func TestRetry_EscalatedReopensAndEnqueues(t *testing.T) {
	st := newFakeStore()
	d := &fakeDispatcher{}
	svc := newOperatorService(st, d, &recordNotifier{})

	newEscalatedRequest(t, st, "req-1")

	require.NoError(t, svc.Apply(context.Background(), "req-1", ActionRetry, 7))

	// failed→pending 重新冻结，再次入队
	got := st.snapshot("req-1")
	assert.Equal(t, model.StatusPending, got.Status)
	_, locked := st.balances(1)
	assert.True(t, locked.Equal(decimal.NewFromInt(51)), "locked = %s", locked)
	assert.Equal(t, []string{"req-1"}, d.enqueuedIDs())
}

func TestRetry_InsufficientBalanceKeepsFailed(t *testing.T) {
	st := newFakeStore()
	d := &fakeDispatcher{}
	svc := newOperatorService(st, d, &recordNotifier{})

	newEscalatedRequest(t, st, "req-1")

	// 退款后用户把钱花掉了: 无法重新冻结，失败单保持原状
	st.mu.Lock()
	st.available[1] = decimal.NewFromInt(10)
	st.mu.Unlock()

	err := svc.Apply(context.Background(), "req-1", ActionRetry, 7)
	assert.ErrorIs(t, err, errno.ErrInsufficientBalance)
	assert.Equal(t, model.StatusFailed, st.snapshot("req-1").Status)
	assert.Empty(t, d.enqueuedIDs())
}

func TestReject_PendingRefunds(t *testing.T) {
	st := newFakeStore()
	n := &recordNotifier{}
	svc := newOperatorService(st, &fakeDispatcher{}, n)

	newPendingRequest(t, st, "req-1")
	require.NoError(t, svc.Apply(context.Background(), "req-1", ActionReject, 7))

	assert.Equal(t, model.StatusRejected, st.snapshot("req-1").Status)
	available, _ := st.balances(1)
	assert.True(t, available.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, []string{notify.KindRejected}, n.userKinds())
}

func TestReject_EscalatedIsAckOnly(t *testing.T) {
	st := newFakeStore()
	n := &recordNotifier{}
	svc := newOperatorService(st, &fakeDispatcher{}, n)

	newEscalatedRequest(t, st, "req-1")
	require.NoError(t, svc.Apply(context.Background(), "req-1", ActionReject, 7))

	// 升级时已退款，reject 不得再退第二次
	got := st.snapshot("req-1")
	assert.Equal(t, model.StatusFailed, got.Status)
	assert.NotNil(t, got.EscalationAckedAt)
	assert.Equal(t, 1, st.refunds)
	assert.Empty(t, n.userKinds())
}

func TestAck_MarksEscalationHandled(t *testing.T) {
	st := newFakeStore()
	svc := newOperatorService(st, &fakeDispatcher{}, &recordNotifier{})

	newEscalatedRequest(t, st, "req-1")
	require.NoError(t, svc.Apply(context.Background(), "req-1", ActionAck, 7))

	got := st.snapshot("req-1")
	assert.Equal(t, model.StatusFailed, got.Status, "ack 只消音，不改变结局")
	assert.NotNil(t, got.EscalationAckedAt)
}

func TestApply_UnknownAction(t *testing.T) {
	st := newFakeStore()
	svc := newOperatorService(st, &fakeDispatcher{}, &recordNotifier{})

	newPendingRequest(t, st, "req-1")
	err := svc.Apply(context.Background(), "req-1", "explode", 7)
	assert.ErrorIs(t, err, errno.ErrInvalidAction)
}

func TestApply_UnknownRequest(t *testing.T) {
	st := newFakeStore()
	svc := newOperatorService(st, &fakeDispatcher{}, &recordNotifier{})

	err := svc.Apply(context.Background(), "ghost", ActionApprove, 7)
	assert.ErrorIs(t, err, errno.ErrRequestNotFound)
}
