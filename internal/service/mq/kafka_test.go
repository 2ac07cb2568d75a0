package mq

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliverWithRetry_RetriesUntilSuccess(t *testing.T) {
	msg := &Message{Key: "req-1", Payload: []byte(`{}`)}

	calls := 0
	handler := func(m *Message) error {
		calls++
		if calls < 3 {
			return errors.New("store unavailable")
		}
		return nil
	}

	err := deliverWithRetry(context.Background(), msg, handler, time.Millisecond)
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
}

func TestDeliverWithRetry_StopsOnContextCancel(t *testing.T) {
	msg := &Message{Key: "req-1", Payload: []byte(`{}`)}

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	// 永远失败: 消息不会被跳过，只会随 ctx 结束
	calls := 0
	err := deliverWithRetry(ctx, msg, func(m *Message) error {
		calls++
		return errors.New("store unavailable")
	}, time.Millisecond)

	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.GreaterOrEqual(t, calls, 1)
}
