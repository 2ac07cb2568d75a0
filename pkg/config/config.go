package config

import (
	"log"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	App      AppConfig      `mapstructure:"app"`
	DB       DBConfig       `mapstructure:"db"`
	Redis    RedisConfig    `mapstructure:"redis"`
	Kafka    KafkaConfig    `mapstructure:"kafka"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Exchange ExchangeConfig `mapstructure:"exchange"`
	Notify   NotifyConfig   `mapstructure:"notify"`
	Sweep    SweepConfig    `mapstructure:"sweep"`
	Security SecurityConfig `mapstructure:"security"`
}

type AppConfig struct {
	Env      string `mapstructure:"env"`
	HttpPort string `mapstructure:"http_port"`
}

type DBConfig struct {
	Host     string `mapstructure:"host"`
	Port     string `mapstructure:"port"`
	User     string `mapstructure:"user"`
	Password string `mapstructure:"password"`
	Name     string `mapstructure:"name"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
}

// QueueConfig 提现任务队列参数
type QueueConfig struct {
	Concurrency       int           `mapstructure:"concurrency"`
	MaxAttempts       int           `mapstructure:"max_attempts"`       // 总尝试次数 (含首次)
	BaseBackoff       time.Duration `mapstructure:"base_backoff"`       // 首次重试延迟
	MaxBackoff        time.Duration `mapstructure:"max_backoff"`        // 重试延迟上限
	AttemptTimeout    time.Duration `mapstructure:"attempt_timeout"`    // 单次执行超时
	CriticalThreshold string        `mapstructure:"critical_threshold"` // 大额走 critical 队列 (decimal string)
	Retention         time.Duration `mapstructure:"retention"`          // 已完成任务保留时长
}

type ExchangeConfig struct {
	BaseURL    string        `mapstructure:"base_url"`
	APIKey     string        `mapstructure:"api_key"`
	NetworkTag string        `mapstructure:"network_tag"`
	Timeout    time.Duration `mapstructure:"timeout"`
}

type NotifyConfig struct {
	MQType        string `mapstructure:"mq_type"` // "redis" or "kafka"
	UserTopic     string `mapstructure:"user_topic"`
	OperatorTopic string `mapstructure:"operator_topic"`
	ActionsTopic  string `mapstructure:"actions_topic"` // 运营端操作回流主题
}

type SweepConfig struct {
	EscalationResend time.Duration `mapstructure:"escalation_resend"` // 未确认升级单的重发窗口
	TaskRetention    time.Duration `mapstructure:"task_retention"`    // 归档任务保留时长
}

type SecurityConfig struct {
	// AddressKey 收款地址静态加密密钥 (hex)，空值表示明文落库 (仅限开发)
	AddressKey string `mapstructure:"address_key"`
}

var Global Config

func Init() {
	viper.SetConfigName("config") // name of config file (without extension)
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// 环境变量设置
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// 设置默认值
	setDefaults()

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); ok {
			log.Printf("Warning: Config file not found, using defaults and environment variables")
		} else {
			log.Fatalf("Fatal error config file: %s \n", err)
		}
	}

	if err := viper.Unmarshal(&Global); err != nil {
		log.Fatalf("Unable to decode into struct, %v", err)
	}

	log.Printf("Configuration loaded successfully. Env: %s", Global.App.Env)
}

func setDefaults() {
	viper.SetDefault("app.env", "development")
	viper.SetDefault("app.http_port", "8080")

	viper.SetDefault("db.host", "localhost")
	viper.SetDefault("db.port", "5432")
	viper.SetDefault("db.user", "payout_user")
	viper.SetDefault("db.password", "payout_password")
	viper.SetDefault("db.name", "payout_db")

	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.db", 0)

	viper.SetDefault("kafka.brokers", []string{"localhost:9092"})

	viper.SetDefault("queue.concurrency", 10)
	viper.SetDefault("queue.max_attempts", 10)
	viper.SetDefault("queue.base_backoff", 2*time.Second)
	viper.SetDefault("queue.max_backoff", 60*time.Second)
	viper.SetDefault("queue.attempt_timeout", 30*time.Second)
	viper.SetDefault("queue.critical_threshold", "1000")
	viper.SetDefault("queue.retention", 24*time.Hour)

	viper.SetDefault("exchange.base_url", "http://localhost:9100")
	viper.SetDefault("exchange.network_tag", "TRC20")
	viper.SetDefault("exchange.timeout", 15*time.Second)

	viper.SetDefault("notify.mq_type", "redis")
	viper.SetDefault("notify.user_topic", "payout:notify:user")
	viper.SetDefault("notify.operator_topic", "payout:notify:operator")
	viper.SetDefault("notify.actions_topic", "payout:operator:actions")

	viper.SetDefault("sweep.escalation_resend", 10*time.Minute)
	viper.SetDefault("sweep.task_retention", 72*time.Hour)

	viper.SetDefault("security.address_key", "")
}
