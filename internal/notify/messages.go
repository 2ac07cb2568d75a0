package notify

import (
	"fmt"

	"payout-core/internal/event"
	"payout-core/internal/model"
)

// 通知类别
const (
	KindSuccess    = "success"
	KindDelay      = "delay"
	KindRejected   = "rejected"
	KindEscalation = "escalation"
	KindSummary    = "summary"
)

// 用户侧文案只有三种结局: 成功 / 延迟 / 拒绝退款
// 重试次数和内部错误分类只出现在运营侧

// UserSuccessText 用户成功通知
func UserSuccessText(req *model.WithdrawalRequest) string {
	return fmt.Sprintf("您的提现已完成。金额: %s，地址: %s，参考号: %s",
		req.Amount.String(), req.ToAddress, req.ExternalID)
}

// UserDelayText 处理中延迟通知，与最终失败文案区分
func UserDelayText(req *model.WithdrawalRequest) string {
	return fmt.Sprintf("您的提现 (金额 %s) 正在处理中，到账时间可能比平时稍长，无需重复操作。",
		req.Amount.String())
}

// UserRejectedText 拒绝并退款
func UserRejectedText(req *model.WithdrawalRequest) string {
	return fmt.Sprintf("您的提现申请未能通过，冻结的 %s (含手续费) 已全额退回您的余额。",
		req.Reserved().String())
}

// OperatorSuccessText 运营侧成功留档
func OperatorSuccessText(req *model.WithdrawalRequest) string {
	return fmt.Sprintf("提现完成 #%s 用户:%d 金额:%s 地址:%s 参考号:%s",
		req.ID, req.UserID, req.Amount.String(), req.ToAddress, req.ExternalID)
}

// OperatorEscalationText 升级通知，携带完整上下文
func OperatorEscalationText(req *model.WithdrawalRequest, attempts int, lastErr string) string {
	return fmt.Sprintf("提现升级 #%s 用户:%d 金额:%s 地址:%s 已尝试:%d 次 最后错误: %s (冻结额已退回，待人工处理)",
		req.ID, req.UserID, req.Amount.String(), req.ToAddress, attempts, lastErr)
}

// OperatorSummaryText 每日摘要: 队列深度 + 提现单状态分布
func OperatorSummaryText(queue, requests map[string]int64) string {
	return fmt.Sprintf("提现日报 队列[等待:%d 处理中:%d 已完成:%d 失败:%d 延迟:%d] 提现单[待处理:%d 已放款:%d 已拒绝:%d 已升级:%d]",
		queue["waiting"], queue["active"], queue["completed"], queue["failed"], queue["delayed"],
		requests["pending"], requests["approved"], requests["rejected"], requests["failed"])
}

// EscalationActions 升级通知固定的三个运营操作
func EscalationActions(requestID string) []event.OperatorAction {
	return []event.OperatorAction{
		{Label: "人工确认完成", Action: "approve", RequestID: requestID},
		{Label: "重新入队", Action: "retry", RequestID: requestID},
		{Label: "拒绝并退款", Action: "reject", RequestID: requestID},
	}
}
