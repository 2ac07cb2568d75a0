package store

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"payout-core/internal/model"
)

// LedgerStore 账本流水 (append-only)
type LedgerStore struct {
	db *gorm.DB
}

func NewLedgerStore(db *gorm.DB) *LedgerStore {
	return &LedgerStore{db: db}
}

// Append 追加一条流水记录
func (s *LedgerStore) Append(ctx context.Context, userID uint64, recordType string, amount decimal.Decimal, externalRef, toAddress, status string) error {
	return appendLedger(s.db.WithContext(ctx), &model.TransactionRecord{
		UserID:      userID,
		Type:        recordType,
		Amount:      amount,
		ExternalRef: externalRef,
		ToAddress:   toAddress,
		Status:      status,
	})
}

// ListByUser 查询用户流水 (倒序)
func (s *LedgerStore) ListByUser(ctx context.Context, userID uint64, limit int) ([]model.TransactionRecord, error) {
	var records []model.TransactionRecord
	err := s.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("id DESC").Limit(limit).
		Find(&records).Error
	return records, err
}

// appendLedger 事务内写流水，RequestStore 的终结事务复用
func appendLedger(tx *gorm.DB, rec *model.TransactionRecord) error {
	return tx.Create(rec).Error
}
