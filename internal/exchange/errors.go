package exchange

import (
	"errors"
	"fmt"
)

// ErrorClass 出金失败分类
// 在交易所边界一次性归类，下游只看类别，绝不再解析错误文案
type ErrorClass string

const (
	// ClassTransient 瞬时故障 (连接失败 / 限流 / 5xx)，请求确定没有被执行，可安全重试
	ClassTransient ErrorClass = "transient"

	// ClassAmbiguous 结果不明 (超时)，请求可能已被交易所执行
	// 重试前必须先按 client_ref 对账，否则有重复出金风险
	ClassAmbiguous ErrorClass = "ambiguous"

	// ClassInvalid 请求本身非法 (地址 / 金额)，终态，立即退款
	ClassInvalid ErrorClass = "invalid"

	// ClassLiquidity 交易所流动性不足，较长周期内可重试，持续则升级
	ClassLiquidity ErrorClass = "liquidity"

	// ClassRejected 交易所侧拒绝，终态
	ClassRejected ErrorClass = "rejected"
)

// Error 交易所边界错误
type Error struct {
	Class   ErrorClass
	Code    string
	Message string
}

func (e *Error) Error() string {
	return fmt.Sprintf("exchange: %s (%s): %s", e.Class, e.Code, e.Message)
}

// ErrNotFound 按 client_ref 对账时交易所侧无此提现
var ErrNotFound = errors.New("exchange: withdrawal not found")

// ClassOf 提取错误分类，非边界错误按瞬时处理
func ClassOf(err error) ErrorClass {
	var ee *Error
	if errors.As(err, &ee) {
		return ee.Class
	}
	return ClassTransient
}

// Retryable 是否还能交回队列重试
func Retryable(err error) bool {
	switch ClassOf(err) {
	case ClassTransient, ClassAmbiguous, ClassLiquidity:
		return true
	default:
		return false
	}
}
