package service

import (
	"context"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"payout-core/internal/event"
	"payout-core/internal/exchange"
	"payout-core/internal/model"
	"payout-core/internal/store"
	"payout-core/internal/worker"
	"payout-core/internal/worker/tasks"

	"github.com/hibiken/asynq"
)

// fakeStore 内存版提现单存储
// 状态迁移和真实实现一样走 compare-and-set，用于验证并发路径下的恰好一次语义
type fakeStore struct {
	mu        sync.Mutex
	reqs      map[string]*model.WithdrawalRequest
	available map[uint64]decimal.Decimal
	locked    map[uint64]decimal.Decimal

	getCalls int
	refunds  int
	burns    int
	debits   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		reqs:      make(map[string]*model.WithdrawalRequest),
		available: make(map[uint64]decimal.Decimal),
		locked:    make(map[uint64]decimal.Decimal),
	}
}

func (f *fakeStore) fund(userID uint64, amount decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.available[userID] = amount
	f.locked[userID] = decimal.Zero
}

func (f *fakeStore) snapshot(id string) model.WithdrawalRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return *f.reqs[id]
}

func (f *fakeStore) balances(userID uint64) (decimal.Decimal, decimal.Decimal) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.available[userID], f.locked[userID]
}

func (f *fakeStore) Get(ctx context.Context, id string) (*model.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.getCalls++
	req, ok := f.reqs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	cp := *req
	return &cp, nil
}

func (f *fakeStore) CreateWithReservation(ctx context.Context, req *model.WithdrawalRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.reqs[req.ID]; ok {
		return store.ErrDuplicateRequest
	}
	if f.available[req.UserID].LessThan(req.Reserved()) {
		return store.ErrInsufficientBalance
	}
	f.available[req.UserID] = f.available[req.UserID].Sub(req.Reserved())
	f.locked[req.UserID] = f.locked[req.UserID].Add(req.Reserved())

	cp := *req
	cp.Status = model.StatusPending
	cp.CreatedAt = time.Now()
	f.reqs[req.ID] = &cp
	req.Status = model.StatusPending
	return nil
}

func (f *fakeStore) CommitSuccess(ctx context.Context, id, expected, externalRef string) (*model.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Status != expected {
		return nil, store.ErrConflict
	}
	if expected == model.StatusFailed {
		if f.available[req.UserID].LessThan(req.Reserved()) {
			return nil, store.ErrInsufficientBalance
		}
		f.available[req.UserID] = f.available[req.UserID].Sub(req.Reserved())
		f.debits++
	} else {
		f.locked[req.UserID] = f.locked[req.UserID].Sub(req.Reserved())
		f.burns++
	}
	now := time.Now()
	req.Status = model.StatusApproved
	req.ExternalID = externalRef
	req.ResolvedAt = &now
	cp := *req
	return &cp, nil
}

func (f *fakeStore) ResolveRejected(ctx context.Context, id, reason string) (*model.WithdrawalRequest, error) {
	return f.resolveWithRefund(id, model.StatusRejected, reason, 0, false)
}

func (f *fakeStore) ResolveExhausted(ctx context.Context, id string, attempts int, lastErr string) (*model.WithdrawalRequest, error) {
	return f.resolveWithRefund(id, model.StatusFailed, lastErr, attempts, true)
}

func (f *fakeStore) resolveWithRefund(id, newStatus, reason string, attempts int, escalate bool) (*model.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Status != model.StatusPending {
		return nil, store.ErrConflict
	}
	f.locked[req.UserID] = f.locked[req.UserID].Sub(req.Reserved())
	f.available[req.UserID] = f.available[req.UserID].Add(req.Reserved())
	f.refunds++

	now := time.Now()
	req.Status = newStatus
	req.LastError = reason
	req.ResolvedAt = &now
	if attempts > 0 {
		req.AttemptCount = attempts
	}
	if escalate {
		req.EscalatedAt = &now
	}
	cp := *req
	return &cp, nil
}

func (f *fakeStore) Reopen(ctx context.Context, id string) (*model.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok {
		return nil, store.ErrNotFound
	}
	if req.Status != model.StatusFailed {
		return nil, store.ErrConflict
	}
	if f.available[req.UserID].LessThan(req.Reserved()) {
		return nil, store.ErrInsufficientBalance
	}
	f.available[req.UserID] = f.available[req.UserID].Sub(req.Reserved())
	f.locked[req.UserID] = f.locked[req.UserID].Add(req.Reserved())

	now := time.Now()
	req.Status = model.StatusPending
	req.ResolvedAt = nil
	req.EscalationAckedAt = &now
	cp := *req
	return &cp, nil
}

func (f *fakeStore) RecordAttempt(ctx context.Context, id string, attempt int, lastErr string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok || req.Status != model.StatusPending {
		return nil
	}
	req.AttemptCount = attempt
	req.LastError = lastErr
	return nil
}

func (f *fakeStore) AckEscalation(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.reqs[id]
	if !ok {
		return nil
	}
	if req.EscalatedAt != nil && req.EscalationAckedAt == nil {
		now := time.Now()
		req.EscalationAckedAt = &now
	}
	return nil
}

func (f *fakeStore) MarkEscalationResent(ctx context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if req, ok := f.reqs[id]; ok {
		now := time.Now()
		req.EscalatedAt = &now
	}
	return nil
}

func (f *fakeStore) ListUnackedEscalations(ctx context.Context, olderThan time.Time, limit int) ([]model.WithdrawalRequest, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.WithdrawalRequest
	for _, req := range f.reqs {
		if req.Status == model.StatusFailed && req.EscalatedAt != nil &&
			req.EscalationAckedAt == nil && req.EscalatedAt.Before(olderThan) {
			out = append(out, *req)
			if len(out) >= limit {
				break
			}
		}
	}
	return out, nil
}

func (f *fakeStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	counts := make(map[string]int64)
	for _, req := range f.reqs {
		counts[req.Status]++
	}
	return counts, nil
}

// fakeExchange 脚本化的交易所客户端
type fakeExchange struct {
	mu            sync.Mutex
	withdrawCalls int
	findCalls     int
	withdrawFn    func(req exchange.WithdrawRequest) (*exchange.Withdrawal, error)
	findFn        func(clientRef string) (*exchange.Withdrawal, error)
}

func (f *fakeExchange) Withdraw(ctx context.Context, req exchange.WithdrawRequest) (*exchange.Withdrawal, error) {
	f.mu.Lock()
	f.withdrawCalls++
	fn := f.withdrawFn
	f.mu.Unlock()
	if fn == nil {
		return &exchange.Withdrawal{ExternalID: "ex-1", ClientRef: req.ClientRef, State: exchange.StateCompleted}, nil
	}
	return fn(req)
}

func (f *fakeExchange) FindByClientRef(ctx context.Context, clientRef string) (*exchange.Withdrawal, error) {
	f.mu.Lock()
	f.findCalls++
	fn := f.findFn
	f.mu.Unlock()
	if fn == nil {
		return nil, exchange.ErrNotFound
	}
	return fn(clientRef)
}

func (f *fakeExchange) calls() (int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.withdrawCalls, f.findCalls
}

// recordNotifier 记录通知调用
type recordNotifier struct {
	mu       sync.Mutex
	user     []string // kind 序列
	operator []string
}

func (r *recordNotifier) NotifyUser(ctx context.Context, userID uint64, requestID, kind, text string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.user = append(r.user, kind)
	return nil
}

func (r *recordNotifier) NotifyOperator(ctx context.Context, requestID, kind, text string, actions []event.OperatorAction) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.operator = append(r.operator, kind)
	return nil
}

func (r *recordNotifier) userKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.user...)
}

func (r *recordNotifier) operatorKinds() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.operator...)
}

// fakeDispatcher 记录入队调用
type fakeDispatcher struct {
	mu       sync.Mutex
	enqueued []tasks.WithdrawalPayload
	err      error
}

func (f *fakeDispatcher) Enqueue(ctx context.Context, p tasks.WithdrawalPayload) (*worker.JobHandle, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	f.enqueued = append(f.enqueued, p)
	return &worker.JobHandle{ID: tasks.JobID(p.RequestID), Queue: worker.QueueDefault, State: "pending"}, nil
}

func (f *fakeDispatcher) Stats(ctx context.Context) (*worker.QueueStats, error) {
	return &worker.QueueStats{}, nil
}

func (f *fakeDispatcher) ListArchived(queue string) ([]*asynq.TaskInfo, error) {
	return nil, nil
}

func (f *fakeDispatcher) Redrive(queue, jobID string) error { return nil }

func (f *fakeDispatcher) Compact(olderThan time.Duration) (int, error) { return 0, nil }

func (f *fakeDispatcher) enqueuedIDs() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	ids := make([]string, 0, len(f.enqueued))
	for _, p := range f.enqueued {
		ids = append(ids, p.RequestID)
	}
	return ids
}
