package store

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"payout-core/internal/model"
	"payout-core/pkg/crypto_util"
)

// RequestStore 提现单状态机的唯一可信存储
// 状态字段是整条流水线仅有的需要原子读改写的共享资源，
// 所有终态迁移都走 transitionTx 的条件更新 (compare-and-set)
//
// 收款地址经 sealer 加密落库，出入库时在本层统一加解密，
// 上层看到的始终是明文
type RequestStore struct {
	db     *gorm.DB
	sealer *crypto_util.FieldSealer
}

func NewRequestStore(db *gorm.DB, sealer *crypto_util.FieldSealer) *RequestStore {
	return &RequestStore{db: db, sealer: sealer}
}

func (s *RequestStore) Get(ctx context.Context, id string) (*model.WithdrawalRequest, error) {
	var req model.WithdrawalRequest
	if err := s.db.WithContext(ctx).First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.openAddress(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// CreateWithReservation 创建提现单并在同一事务里冻结 amount + fee
// 同一 id 重复创建返回 ErrDuplicateRequest，不会二次冻结
func (s *RequestStore) CreateWithReservation(ctx context.Context, req *model.WithdrawalRequest) error {
	sealed, err := s.sealer.Seal(req.ToAddress)
	if err != nil {
		return err
	}

	plaintext := req.ToAddress
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(&model.WithdrawalRequest{}).Where("id = ?", req.ID).Count(&count).Error; err != nil {
			return err
		}
		if count > 0 {
			return ErrDuplicateRequest
		}

		if err := reserveBalance(tx, req.UserID, req.Reserved()); err != nil {
			return err
		}

		req.Status = model.StatusPending
		req.ToAddress = sealed
		return tx.Create(req).Error
	})
	// 调用方继续持有明文视图
	req.ToAddress = plaintext
	return err
}

// Transition 条件状态迁移: 仅当当前状态等于 expected 时才更新
// extra 携带附加列 (外部单号、解决时间等)，失败返回 ErrConflict
func (s *RequestStore) Transition(ctx context.Context, id, expected, newStatus string, extra map[string]interface{}) error {
	return transitionTx(s.db.WithContext(ctx), id, expected, newStatus, extra)
}

func transitionTx(tx *gorm.DB, id, expected, newStatus string, extra map[string]interface{}) error {
	updates := map[string]interface{}{"status": newStatus}
	for k, v := range extra {
		updates[k] = v
	}

	res := tx.Model(&model.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, expected).
		Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// CommitSuccess 确认出金成功: expected→approved
// expected == pending: 正常提交，扣除冻结额
// expected == failed:  运营事后确认，退款已回可用余额，需重新扣减
func (s *RequestStore) CommitSuccess(ctx context.Context, id, expected, externalRef string) (*model.WithdrawalRequest, error) {
	var req *model.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.getForUpdate(tx, id)
		if err != nil {
			return err
		}

		now := time.Now()
		if err := transitionTx(tx, id, expected, model.StatusApproved, map[string]interface{}{
			"external_id": externalRef,
			"resolved_at": &now,
		}); err != nil {
			return err
		}

		if expected == model.StatusFailed {
			if err := debitAvailable(tx, req.UserID, req.Reserved()); err != nil {
				return err
			}
		} else {
			if err := burnLocked(tx, req.UserID, req.Reserved()); err != nil {
				return err
			}
		}

		req.Status = model.StatusApproved
		req.ExternalID = externalRef
		req.ResolvedAt = &now

		return appendLedger(tx, &model.TransactionRecord{
			UserID:      req.UserID,
			RequestID:   req.ID,
			Type:        model.LedgerTypeWithdrawal,
			Amount:      req.Amount,
			ExternalRef: externalRef,
			ToAddress:   maskAddress(req.ToAddress),
			Status:      model.StatusApproved,
		})
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// ResolveRejected 终态拒绝: pending→rejected，冻结额原路退回，恰好一次
func (s *RequestStore) ResolveRejected(ctx context.Context, id, reason string) (*model.WithdrawalRequest, error) {
	return s.resolveWithRefund(ctx, id, model.StatusRejected, reason, nil)
}

// ResolveExhausted 重试预算耗尽: pending→failed，退款并盖升级时间戳
// 升级通知只在该迁移成功的调用方发出一次，输掉竞争的一方拿到 ErrConflict
func (s *RequestStore) ResolveExhausted(ctx context.Context, id string, attempts int, lastErr string) (*model.WithdrawalRequest, error) {
	now := time.Now()
	return s.resolveWithRefund(ctx, id, model.StatusFailed, lastErr, map[string]interface{}{
		"attempt_count": attempts,
		"escalated_at":  &now,
	})
}

func (s *RequestStore) resolveWithRefund(ctx context.Context, id, newStatus, reason string, extra map[string]interface{}) (*model.WithdrawalRequest, error) {
	var req *model.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.getForUpdate(tx, id)
		if err != nil {
			return err
		}

		now := time.Now()
		updates := map[string]interface{}{
			"last_error":  reason,
			"resolved_at": &now,
		}
		for k, v := range extra {
			updates[k] = v
		}
		if err := transitionTx(tx, id, model.StatusPending, newStatus, updates); err != nil {
			return err
		}

		if err := refundLocked(tx, req.UserID, req.Reserved()); err != nil {
			return err
		}

		req.Status = newStatus
		req.LastError = reason
		req.ResolvedAt = &now

		return appendLedger(tx, &model.TransactionRecord{
			UserID:    req.UserID,
			RequestID: req.ID,
			Type:      model.LedgerTypeRefund,
			Amount:    req.Reserved(),
			ToAddress: maskAddress(req.ToAddress),
			Status:    newStatus,
		})
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// Reopen 运营重试已升级的失败单: failed→pending，重新冻结
// 可用余额不足时整个事务回滚，失败单保持原状
func (s *RequestStore) Reopen(ctx context.Context, id string) (*model.WithdrawalRequest, error) {
	var req *model.WithdrawalRequest
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		req, err = s.getForUpdate(tx, id)
		if err != nil {
			return err
		}

		if err := transitionTx(tx, id, model.StatusFailed, model.StatusPending, map[string]interface{}{
			"resolved_at":         nil,
			"escalation_acked_at": time.Now(),
		}); err != nil {
			return err
		}

		req.Status = model.StatusPending
		req.ResolvedAt = nil

		return reserveBalance(tx, req.UserID, req.Reserved())
	})
	if err != nil {
		return nil, err
	}
	return req, nil
}

// RecordAttempt 记录一次失败的尝试 (不改状态，终态后静默跳过)
func (s *RequestStore) RecordAttempt(ctx context.Context, id string, attempt int, lastErr string) error {
	return s.db.WithContext(ctx).Model(&model.WithdrawalRequest{}).
		Where("id = ? AND status = ?", id, model.StatusPending).
		Updates(map[string]interface{}{
			"attempt_count": attempt,
			"last_error":    lastErr,
		}).Error
}

// AckEscalation 确认升级通知已被运营处理
func (s *RequestStore) AckEscalation(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&model.WithdrawalRequest{}).
		Where("id = ? AND escalated_at IS NOT NULL AND escalation_acked_at IS NULL", id).
		Update("escalation_acked_at", time.Now()).Error
}

// MarkEscalationResent 升级重发后刷新时间戳，控制重发频率
func (s *RequestStore) MarkEscalationResent(ctx context.Context, id string) error {
	return s.db.WithContext(ctx).Model(&model.WithdrawalRequest{}).
		Where("id = ?", id).
		Update("escalated_at", time.Now()).Error
}

// ListUnackedEscalations 查询升级后长时间未确认的失败单
func (s *RequestStore) ListUnackedEscalations(ctx context.Context, olderThan time.Time, limit int) ([]model.WithdrawalRequest, error) {
	var reqs []model.WithdrawalRequest
	err := s.db.WithContext(ctx).
		Where("status = ? AND escalated_at IS NOT NULL AND escalation_acked_at IS NULL AND escalated_at < ?",
			model.StatusFailed, olderThan).
		Limit(limit).
		Find(&reqs).Error
	if err != nil {
		return nil, err
	}
	for i := range reqs {
		if err := s.openAddress(&reqs[i]); err != nil {
			return nil, err
		}
	}
	return reqs, nil
}

// CountByStatus 按状态统计，供每日运营摘要使用
func (s *RequestStore) CountByStatus(ctx context.Context) (map[string]int64, error) {
	type row struct {
		Status string
		Count  int64
	}
	var rows []row
	err := s.db.WithContext(ctx).Model(&model.WithdrawalRequest{}).
		Select("status, count(*) as count").
		Group("status").
		Scan(&rows).Error
	if err != nil {
		return nil, err
	}
	counts := make(map[string]int64, len(rows))
	for _, r := range rows {
		counts[r.Status] = r.Count
	}
	return counts, nil
}

func (s *RequestStore) getForUpdate(tx *gorm.DB, id string) (*model.WithdrawalRequest, error) {
	var req model.WithdrawalRequest
	if err := tx.First(&req, "id = ?", id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	if err := s.openAddress(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

func (s *RequestStore) openAddress(req *model.WithdrawalRequest) error {
	addr, err := s.sealer.Open(req.ToAddress)
	if err != nil {
		return err
	}
	req.ToAddress = addr
	return nil
}

// maskAddress 账本流水只留脱敏地址，完整地址以密文存在提现单上
func maskAddress(addr string) string {
	if len(addr) <= 12 {
		return addr
	}
	return addr[:6] + "..." + addr[len(addr)-4:]
}
