package worker

import (
	"context"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"payout-core/internal/worker/tasks"
	"payout-core/pkg/config"
	"payout-core/pkg/logger"
)

// Server 封装 Asynq Server (Worker Pool)
type Server struct {
	server *asynq.Server
	mux    *asynq.ServeMux
}

// NewServer 初始化 Worker Server
// 固定大小的并发池消费共享队列，退避策略: base * 2^n，封顶 max
func NewServer(redisOpt asynq.RedisClientOpt, cfg config.QueueConfig, proc tasks.Processor) *Server {
	srv := asynq.NewServer(
		redisOpt,
		asynq.Config{
			// 并发数：同时处理多少个任务
			Concurrency: cfg.Concurrency,
			// 队列优先级
			Queues: map[string]int{
				QueueCritical: 6, // 大额优先
				QueueDefault:  3,
			},
			// 指数退避，从秒级增长到几十秒封顶
			RetryDelayFunc: func(n int, e error, t *asynq.Task) time.Duration {
				return retryBackoff(cfg, n)
			},
			ErrorHandler: asynq.ErrorHandlerFunc(func(ctx context.Context, task *asynq.Task, err error) {
				logger.Warn("任务执行失败，等待重试",
					zap.String("type", task.Type()),
					zap.Error(err),
				)
			}),
			Logger: logger.NewAsynqLogger(),
		},
	)

	mux := asynq.NewServeMux()

	// 注册任务处理器
	mux.HandleFunc(tasks.TypeWithdrawal, tasks.NewWithdrawalHandler(proc))

	return &Server{
		server: srv,
		mux:    mux,
	}
}

// retryBackoff 第 n 次重试的延迟: base * 2^n，封顶 max
func retryBackoff(cfg config.QueueConfig, n int) time.Duration {
	if n > 20 {
		return cfg.MaxBackoff
	}
	delay := cfg.BaseBackoff << n
	if delay > cfg.MaxBackoff {
		delay = cfg.MaxBackoff
	}
	return delay
}

// Run 启动 Worker (阻塞)
func (s *Server) Run() error {
	logger.Info("Worker Server starting...")
	return s.server.Run(s.mux)
}

// Start 非阻塞启动 (用于集成到 main.go)
func (s *Server) Start() {
	go func() {
		if err := s.server.Run(s.mux); err != nil {
			logger.Fatal("Worker Server failed", zap.Error(err))
		}
	}()
}

// Stop 停止 Worker
func (s *Server) Stop() {
	s.server.Stop()
	s.server.Shutdown()
}
