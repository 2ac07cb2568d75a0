package service

import (
	"context"
	"encoding/json"
	"errors"

	"go.uber.org/zap"

	"payout-core/internal/event"
	"payout-core/internal/service/mq"
	"payout-core/pkg/errno"
	"payout-core/pkg/logger"
)

// ActionsConsumer 消费聊天服务回流的运营操作事件
// 运营在会话里点击升级通知上的按钮，聊天服务把动作发布到 actions 主题
type ActionsConsumer struct {
	consumer mq.Consumer
	operator *OperatorService
	topic    string
}

func NewActionsConsumer(consumer mq.Consumer, operator *OperatorService, topic string) *ActionsConsumer {
	return &ActionsConsumer{
		consumer: consumer,
		operator: operator,
		topic:    topic,
	}
}

// Start 订阅并处理 (部分实现内部阻塞，调用方决定是否放入 goroutine)
func (c *ActionsConsumer) Start(ctx context.Context) error {
	return c.consumer.Subscribe(ctx, c.topic, c.handle)
}

func (c *ActionsConsumer) handle(msg *mq.Message) error {
	var ev event.OperatorActionEvent
	if err := json.Unmarshal(msg.Payload, &ev); err != nil {
		logger.Error("运营操作事件解析失败，丢弃", zap.String("id", msg.ID), zap.Error(err))
		return nil // 格式错误，重试无意义
	}

	err := c.operator.Apply(context.Background(), ev.RequestID, ev.Action, ev.OperatorID)
	switch {
	case err == nil:
		return nil
	case errors.Is(err, errno.ErrAlreadyResolved), errors.Is(err, errno.ErrRequestNotFound), errors.Is(err, errno.ErrInvalidAction):
		// 幂等结局或无效动作: 消费掉，不重试
		logger.Info("运营操作按 no-op 处理",
			zap.String("request_id", ev.RequestID),
			zap.String("action", ev.Action),
			zap.Error(err),
		)
		return nil
	default:
		// 存储暂时不可用等瞬时错误，留给 MQ 重新投递
		return err
	}
}

func (c *ActionsConsumer) Close() error {
	return c.consumer.Close()
}
