package store

import "errors"

var (
	// ErrNotFound 提现单不存在
	ErrNotFound = errors.New("withdrawal request not found")

	// ErrConflict 条件更新失败: 当前状态已不是期望的前置状态
	// 并发场景下输掉竞争的一方收到该错误，按 no-op 处理
	ErrConflict = errors.New("status transition conflict")

	// ErrInsufficientBalance 可用余额不足以冻结
	ErrInsufficientBalance = errors.New("insufficient available balance")

	// ErrDuplicateRequest 同一 request id 已存在
	ErrDuplicateRequest = errors.New("duplicate withdrawal request")
)
