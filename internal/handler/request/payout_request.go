package request

import "github.com/shopspring/decimal"

// CreatePayoutRequest 上游协作方创建提现单
// RequestID 由上游生成并保证稳定，重复提交按幂等处理
type CreatePayoutRequest struct {
	RequestID   string          `json:"request_id"`
	UserID      uint64          `json:"user_id" binding:"required"`
	Amount      decimal.Decimal `json:"amount" binding:"required"`
	Fee         decimal.Decimal `json:"fee"`
	ToAddress   string          `json:"to_address" binding:"required"`
	NetworkTag  string          `json:"network_tag"`
	DisplayName string          `json:"display_name"`
}

// OperatorActionRequest 运营操作
type OperatorActionRequest struct {
	OperatorID uint64 `json:"operator_id" binding:"required"`
}
