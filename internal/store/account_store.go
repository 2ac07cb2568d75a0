package store

import (
	"context"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"payout-core/internal/model"
)

// AccountStore 资产账户读写
type AccountStore struct {
	db *gorm.DB
}

func NewAccountStore(db *gorm.DB) *AccountStore {
	return &AccountStore{db: db}
}

func (s *AccountStore) Get(ctx context.Context, userID uint64) (*model.Account, error) {
	var acc model.Account
	if err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&acc).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &acc, nil
}

// ---------------------------------------------------------------------
// 事务内余额操作
// 全部走单条带条件的 UPDATE，RowsAffected 判定成败，不依赖行锁
// ---------------------------------------------------------------------

// reserveBalance 冻结: 可用 → 冻结，可用余额不足则失败
func reserveBalance(tx *gorm.DB, userID uint64, amount decimal.Decimal) error {
	res := tx.Model(&model.Account{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance":        gorm.Expr("balance - ?", amount),
			"locked_balance": gorm.Expr("locked_balance + ?", amount),
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}

// burnLocked 成功出金: 冻结额扣除，资金离开系统
func burnLocked(tx *gorm.DB, userID uint64, amount decimal.Decimal) error {
	res := tx.Model(&model.Account{}).
		Where("user_id = ? AND locked_balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"locked_balance": gorm.Expr("locked_balance - ?", amount),
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// refundLocked 退款: 冻结 → 可用，恰好一次 (由状态条件更新保证只进来一次)
func refundLocked(tx *gorm.DB, userID uint64, amount decimal.Decimal) error {
	res := tx.Model(&model.Account{}).
		Where("user_id = ? AND locked_balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance":        gorm.Expr("balance + ?", amount),
			"locked_balance": gorm.Expr("locked_balance - ?", amount),
			"version":        gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrConflict
	}
	return nil
}

// debitAvailable 直接扣减可用余额，可用余额不足则失败
// 用于运营确认"交易所实际已出金"的事后核销，此时退款已回到可用余额;
// 若用户已把退款花掉，核销失败回滚，交由运营处理，不允许余额为负
func debitAvailable(tx *gorm.DB, userID uint64, amount decimal.Decimal) error {
	res := tx.Model(&model.Account{}).
		Where("user_id = ? AND balance >= ?", userID, amount).
		Updates(map[string]interface{}{
			"balance": gorm.Expr("balance - ?", amount),
			"version": gorm.Expr("version + 1"),
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrInsufficientBalance
	}
	return nil
}
