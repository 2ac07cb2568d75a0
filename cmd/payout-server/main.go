package main

import (
	"fmt"
	"time"

	"github.com/hibiken/asynq"
	"go.uber.org/zap"

	"payout-core/internal/handler"
	"payout-core/internal/notify"
	"payout-core/internal/server"
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
	// 0. 初始化 Config / Logger / Metrics
	config.Init()
	logger.Init(config.Global.App.Env)
	defer logger.Sync()
	monitor.Init()

	logger.Info("启动提现服务 (Payout Server)...", zap.String("env", config.Global.App.Env))

	// 1. 初始化数据库
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

	// 2. 初始化 Redis
	rdb, err := database.ConnectRedis(config.Global.Redis.Addr, config.Global.Redis.Password, config.Global.Redis.DB)
	if err != nil {
		logger.Fatal("Redis 连接失败", zap.Error(err))
	}

	// 3. 队列调度器
	redisOpt := asynq.RedisClientOpt{
		Addr:     config.Global.Redis.Addr,
		Password: config.Global.Redis.Password,
		DB:       config.Global.Redis.DB,
	}
	dispatcher := worker.NewDispatcher(redisOpt, config.Global.Queue)
	defer dispatcher.Close()

	// 4. 存储与服务
	sealer, err := crypto_util.NewFieldSealer(config.Global.Security.AddressKey)
	if err != nil {
		logger.Fatal("加载地址加密密钥失败", zap.Error(err))
	}
	requestStore := store.NewRequestStore(db, sealer)
	notifier := notify.NewOutboxNotifier(db, config.Global.Notify.UserTopic, config.Global.Notify.OperatorTopic)

	// 查询缓存: L1 本地 + L2 Redis
	reqCache := cache.NewMultiLevelCache(
		cache.NewMemoryCache(time.Minute, 5*time.Minute),
		cache.NewRedisCache(rdb),
	)

	payouts := service.NewPayoutService(requestStore, dispatcher, reqCache, config.Global.Exchange.NetworkTag)
	operator := service.NewOperatorService(requestStore, dispatcher, notifier, reqCache)

	// 5. 通知中继: Outbox -> MQ
	var producer mq.Producer
	if config.Global.Notify.MQType == "kafka" {
		logger.Info("MQ Mode: Kafka Producer", zap.Strings("brokers", config.Global.Kafka.Brokers))
		producer = mq.NewKafkaProducer(config.Global.Kafka.Brokers)
	} else {
		logger.Info("MQ Mode: Redis Producer")
		producer = mq.NewRedisProducer(rdb)
	}
	relay := service.NewRelayService(db, producer)

	// 6. HTTP 路由与生命周期
	router := server.NewRouter(
		config.Global.App.Env,
		handler.NewPayoutHandler(payouts),
		handler.NewOperatorHandler(operator, dispatcher),
		handler.NewAccountHandler(store.NewAccountStore(db), store.NewLedgerStore(db)),
	)

	app := server.New(server.Config{HttpPort: config.Global.App.HttpPort}, router)
	app.AddBackground(relay.Start)
	app.Run()
}
