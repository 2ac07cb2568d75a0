package worker

import (
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"

	"payout-core/pkg/config"
)

func testQueueConfig(threshold string) config.QueueConfig {
	return config.QueueConfig{
		Concurrency:       4,
		MaxAttempts:       10,
		BaseBackoff:       2 * time.Second,
		MaxBackoff:        60 * time.Second,
		AttemptTimeout:    30 * time.Second,
		CriticalThreshold: threshold,
		Retention:         time.Hour,
	}
}

func TestQueueFor(t *testing.T) {
	d := NewDispatcher(asynq.RedisClientOpt{Addr: "localhost:6379"}, testQueueConfig("1000"))
	defer d.Close()

	tests := []struct {
		amount string
		want   string
	}{
		{"1", QueueDefault},
		{"999.99", QueueDefault},
		{"1000", QueueCritical},
		{"250000", QueueCritical},
	}
	for _, tt := range tests {
		amount, err := decimal.NewFromString(tt.amount)
		assert.NoError(t, err)
		assert.Equal(t, tt.want, d.queueFor(amount), "amount %s", tt.amount)
	}
}

func TestQueueFor_InvalidThresholdDisablesTiering(t *testing.T) {
	// 配置错误降级为单队列，而不是拒绝启动
	d := NewDispatcher(asynq.RedisClientOpt{Addr: "localhost:6379"}, testQueueConfig("not-a-number"))
	defer d.Close()

	assert.Equal(t, QueueDefault, d.queueFor(decimal.NewFromInt(1_000_000)))
}

func TestFinishedTaskState(t *testing.T) {
	// archived 和 completed 都占着 task id 但不会再被执行，重投前必须删除;
	// 升级单以 completed 保留在 Retention 窗口内，运营 retry 重开后
	// 同一个 job id 必须还能重新入队
	tests := []struct {
		state asynq.TaskState
		want  bool
	}{
		{asynq.TaskStatePending, false},
		{asynq.TaskStateActive, false},
		{asynq.TaskStateScheduled, false},
		{asynq.TaskStateRetry, false},
		{asynq.TaskStateAggregating, false},
		{asynq.TaskStateArchived, true},
		{asynq.TaskStateCompleted, true},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, finishedTaskState(tt.state), "state %s", tt.state)
	}
}

func TestRetryBackoff(t *testing.T) {
	cfg := testQueueConfig("1000")

	// 指数退避: base<<n，封顶 max_backoff
	assert.Equal(t, 2*time.Second, retryBackoff(cfg, 0))
	assert.Equal(t, 4*time.Second, retryBackoff(cfg, 1))
	assert.Equal(t, 16*time.Second, retryBackoff(cfg, 3))
	assert.Equal(t, 60*time.Second, retryBackoff(cfg, 5))
	assert.Equal(t, 60*time.Second, retryBackoff(cfg, 30))
}
