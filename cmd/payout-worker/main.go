package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"payout-core/internal/exchange"
	"payout-core/internal/notify"
	"payout-core/internal/service"
	"payout-core/internal/service/mq"
	"payout-core/internal/store"
	"payout-core/internal/worker"
	"payout-core/pkg/cache"
	"payout-core/pkg/config"
	"payout-core/pkg/crypto_util"
	"payout-core/pkg/database"
	"payout-core/pkg/logger"
	"payout-core/pkg/monitor"
)

func main() {
	// 1. 初始化配置与日志
	config.Init()
	logger.Init(config.Global.App.Env)
	defer logger.Sync()
	monitor.Init()

	logger.Info("启动提现执行服务 (Payout Worker)...", zap.String("env", config.Global.App.Env))

	// 2. 初始化数据库
	dsn := fmt.Sprintf("host=%s user=%s password=%s dbname=%s port=%s sslmode=disable",
		config.Global.DB.Host,
		config.Global.DB.User,
		config.Global.DB.Password,
		config.Global.DB.Name,
		config.Global.DB.Port,
	)
	db, err := database.ConnectPostgres(dsn)
	if err != nil {
		logger.Fatal("数据库连接失败", zap.Error(err))
	}

	// 3. 初始化 Redis
	rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}

	// 4. 依赖装配: 存储 + 交易所客户端 + 通知
	sealer, err := crypto_util.NewFieldSealer(config.Global.Security.AddressKey)
	if err != nil {
		logger.Fatal("加载地址加密密钥失败", zap.Error(err))
	}
	requestStore := store.NewRequestStore(db, sealer)
	exClient := exchange.NewHTTPClient(
		config.Global.Exchange.BaseURL,
		config.Global.Exchange.APIKey,
		config.Global.Exchange.Timeout,
	)
	notifier := notify.NewOutboxNotifier(db, config.Global.Notify.UserTopic, config.Global.Notify.OperatorTopic)

	processor := service.NewProcessor(requestStore, exClient, notifier)

	// 5. 队列执行端
	redisOpt := asynq.RedisClientOpt{
		Addr:     config.Global.Redis.Addr,
		Password: config.Global.Redis.Password,
		DB:       config.Global.Redis.DB,
	}
	srv := worker.NewServer(redisOpt, config.Global.Queue, processor)
	srv.Start()

	dispatcher := worker.NewDispatcher(redisOpt, config.Global.Queue)
	defer dispatcher.Close()

	// 6. 定时巡检 (升级单审计 / 归档补投 / 队列清理 / 日报)
	cron := service.NewCronService(rdb, requestStore, dispatcher, notifier, config.Global.Sweep)
	cron.Start()

	// 7. 通知中继与运营操作回流
	var producer mq.Producer
	var consumer mq.Consumer
	if config.Global.Notify.MQType == "kafka" {
		logger.Info("MQ Mode: Kafka", zap.Strings("brokers", config.Global.Kafka.Brokers))
		producer = mq.NewKafkaProducer(config.Global.Kafka.Brokers)
		consumer = mq.NewKafkaConsumer(config.Global.Kafka.Brokers, "payout-operator-group")
	} else {
		logger.Info("MQ Mode: Redis")
		producer = mq.NewRedisProducer(rdb)
		consumer = mq.NewRedisConsumer(rdb, "payout-operator-group", "worker-1")
	}
	relay := service.NewRelayService(db, producer)

	// Worker 进程只需要 L2: 清缓存是为了让 API 进程尽快读到新状态
	reqCache := cache.NewRedisCache(rdb)
	operator := service.NewOperatorService(requestStore, dispatcher, notifier, reqCache)
	actions := service.NewActionsConsumer(consumer, operator, config.Global.Notify.ActionsTopic)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go relay.Start(ctx)
	go func() {
		logger.Info("开始监听运营操作事件", zap.String("topic", config.Global.Notify.ActionsTopic))
		if err := actions.Start(ctx); err != nil {
			logger.Fatal("订阅失败", zap.Error(err))
		}
	}()

	// 8. 优雅退出
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("正在停止提现执行服务...")
	cancel()
	cron.Stop()
	srv.Stop()
	_ = actions.Close()
	time.Sleep(2 * time.Second)
	logger.Info("提现执行服务已停止")
}
