package event

// UserNoticeEvent 用户侧通知事件
// Topic: payout:notify:user
type UserNoticeEvent struct {
	UserID    uint64 `json:"user_id"`
	RequestID string `json:"request_id"`
	Kind      string `json:"kind"` // success, delay, rejected
	Text      string `json:"text"`
}

// OperatorAction 运营端可执行操作
type OperatorAction struct {
	Label     string `json:"label"`
	Action    string `json:"action"` // approve, retry, reject
	RequestID string `json:"request_id"`
}

// OperatorNoticeEvent 运营侧通知事件，携带可执行操作按钮
// Topic: payout:notify:operator
type OperatorNoticeEvent struct {
	RequestID string           `json:"request_id"`
	Kind      string           `json:"kind"` // success, escalation, summary
	Text      string           `json:"text"`
	Actions   []OperatorAction `json:"actions,omitempty"`
}

// OperatorActionEvent 运营端操作回流事件 (聊天服务发布，本服务消费)
// Topic: payout:operator:actions
type OperatorActionEvent struct {
	RequestID  string `json:"request_id"`
	Action     string `json:"action"` // approve, retry, reject, ack
	OperatorID uint64 `json:"operator_id"`
}
