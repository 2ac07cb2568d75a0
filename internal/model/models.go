package model

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// 提现单状态
// 终态 (approved/rejected/failed) 一经写入不可再变更，只能通过条件更新进入
const (
	StatusPending  = "pending"
	StatusApproved = "approved"
	StatusRejected = "rejected"
	StatusFailed   = "failed"
)

// IsTerminal 判断状态是否为终态
func IsTerminal(status string) bool {
	return status == StatusApproved || status == StatusRejected || status == StatusFailed
}

// WithdrawalRequest 提现申请表
// 创建时上游已冻结 amount + fee，本服务只负责终结 (approved) 或补偿 (rejected/failed 退款)
type WithdrawalRequest struct {
	ID                string          `gorm:"type:varchar(64);primaryKey" json:"id"`
	UserID            uint64          `gorm:"not null;index" json:"user_id"`
	Amount            decimal.Decimal `gorm:"type:decimal(32,18);not null" json:"amount"`
	Fee               decimal.Decimal `gorm:"type:decimal(32,18);not null" json:"fee"`
	ToAddress         string          `gorm:"type:varchar(255);not null" json:"to_address"`
	NetworkTag        string          `gorm:"type:varchar(32);not null" json:"network_tag"`
	DisplayName       string          `gorm:"type:varchar(255)" json:"display_name"`
	Status            string          `gorm:"type:varchar(20);not null;default:'pending';index" json:"status"`
	ExternalID        string          `gorm:"type:varchar(255)" json:"external_id,omitempty"` // 交易所侧提现单号，仅成功时写入
	AttemptCount      int             `gorm:"not null;default:0" json:"attempt_count"`
	LastError         string          `gorm:"type:text" json:"last_error,omitempty"`
	EscalatedAt       *time.Time      `gorm:"index" json:"escalated_at,omitempty"`
	EscalationAckedAt *time.Time      `json:"escalation_acked_at,omitempty"`
	CreatedAt         time.Time       `json:"created_at"`
	ResolvedAt        *time.Time      `json:"resolved_at,omitempty"`
}

// Reserved 冻结金额 = 提现金额 + 手续费
func (w *WithdrawalRequest) Reserved() decimal.Decimal {
	return w.Amount.Add(w.Fee)
}

// Account 资产账户表
// 核心设计: 引入 Version 字段实现乐观锁
type Account struct {
	ID            uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID        uint64          `gorm:"not null;uniqueIndex" json:"user_id"`
	Balance       decimal.Decimal `gorm:"type:decimal(32,18);not null;default:0" json:"balance"`        // 可用余额
	LockedBalance decimal.Decimal `gorm:"type:decimal(32,18);not null;default:0" json:"locked_balance"` // 冻结余额 (未完结提现)
	Version       uint64          `gorm:"not null;default:0" json:"version"`                            // 乐观锁版本号
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}

// 账本流水类型
const (
	LedgerTypeWithdrawal = "withdrawal"
	LedgerTypeRefund     = "refund"
)

// TransactionRecord 账本流水表 (append-only)
// 只在确认结果之后写入，绝不预写
type TransactionRecord struct {
	ID          uint64          `gorm:"primaryKey;autoIncrement" json:"id"`
	UserID      uint64          `gorm:"not null;index" json:"user_id"`
	RequestID   string          `gorm:"type:varchar(64);not null;index" json:"request_id"`
	Type        string          `gorm:"type:varchar(20);not null" json:"type"` // withdrawal, refund
	Amount      decimal.Decimal `gorm:"type:decimal(32,18);not null" json:"amount"`
	ExternalRef string          `gorm:"type:varchar(255)" json:"external_ref"`
	ToAddress   string          `gorm:"type:varchar(255)" json:"to_address"`
	Status      string          `gorm:"type:varchar(20);not null" json:"status"`
	CreatedAt   time.Time       `json:"created_at"`
}

// OutboxMessage 本地消息表 (Transactional Outbox)
type OutboxMessage struct {
	ID        uint64         `gorm:"primaryKey;autoIncrement" json:"id"`
	Topic     string         `gorm:"type:varchar(255);not null" json:"topic"`
	Key       string         `gorm:"type:varchar(255)" json:"key"`
	Payload   []byte         `gorm:"type:text;not null" json:"payload"`
	Status    string         `gorm:"type:varchar(50);not null;default:'PENDING';index" json:"status"` // PENDING, SENT, FAILED
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `gorm:"index" json:"-"`
}

// TableName 指定表名
func (WithdrawalRequest) TableName() string {
	return "withdrawal_requests"
}

func (Account) TableName() string {
	return "accounts"
}

func (TransactionRecord) TableName() string {
	return "transaction_records"
}

func (OutboxMessage) TableName() string {
	return "outbox_messages"
}
