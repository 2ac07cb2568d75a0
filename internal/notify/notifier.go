package notify

import (
	"context"

	"gorm.io/gorm"

	"payout-core/internal/event"
	"payout-core/internal/model"
)

// Notifier 通知端口
// 通知是副作用、尽力而为: 发送失败绝不回滚或重试触发它的资金状态迁移，
// 调用方只记日志
type Notifier interface {
	NotifyUser(ctx context.Context, userID uint64, requestID, kind, text string) error
	NotifyOperator(ctx context.Context, requestID, kind, text string, actions []event.OperatorAction) error
}

// OutboxNotifier 通过本地消息表投递，由 Relay 搬运到 MQ
// 聊天服务 (外部协作方) 消费对应主题完成真正的触达
type OutboxNotifier struct {
	db            *gorm.DB
	userTopic     string
	operatorTopic string
}

func NewOutboxNotifier(db *gorm.DB, userTopic, operatorTopic string) *OutboxNotifier {
	return &OutboxNotifier{
		db:            db,
		userTopic:     userTopic,
		operatorTopic: operatorTopic,
	}
}

func (n *OutboxNotifier) NotifyUser(ctx context.Context, userID uint64, requestID, kind, text string) error {
	return model.CreateOutboxMessage(n.db.WithContext(ctx), n.userTopic, requestID, &event.UserNoticeEvent{
		UserID:    userID,
		RequestID: requestID,
		Kind:      kind,
		Text:      text,
	})
}

func (n *OutboxNotifier) NotifyOperator(ctx context.Context, requestID, kind, text string, actions []event.OperatorAction) error {
	return model.CreateOutboxMessage(n.db.WithContext(ctx), n.operatorTopic, requestID, &event.OperatorNoticeEvent{
		RequestID: requestID,
		Kind:      kind,
		Text:      text,
		Actions:   actions,
	})
}
