package lock

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// SweepLock 清扫任务的互斥保护: 分布式锁 + 最近运行水位线
// 锁挡掉多实例并发，水位线挡掉调度抖动造成的窗口内连续触发
type SweepLock interface {
	// Acquire 尝试获取锁，ttl 为锁的过期时间
	Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error)

	// Watermark 刷新水位线: 窗口内已被刷新过返回 false
	Watermark(ctx context.Context, key string, window time.Duration) (bool, error)

	// Release 释放锁
	Release(ctx context.Context, key string) error
}

// RedisLock 基于 Redis SETNX 的实现
type RedisLock struct {
	client *redis.Client
}

func NewRedisLock(client *redis.Client) *RedisLock {
	return &RedisLock{client: client}
}

func (l *RedisLock) Acquire(ctx context.Context, key string, ttl time.Duration) (bool, error) {
	// SET key value NX EX ttl
	// value 可以是随机字符串或机器ID，用于释放时校验归属 (这里简化暂不校验)
	return l.client.SetNX(ctx, "lock:"+key, "1", ttl).Result()
}

func (l *RedisLock) Watermark(ctx context.Context, key string, window time.Duration) (bool, error) {
	// 水位线本身就是一把窗口期的 SETNX 锁，只是从不主动释放，到期自然失效
	return l.client.SetNX(ctx, "wm:"+key, time.Now().Unix(), window).Result()
}

func (l *RedisLock) Release(ctx context.Context, key string) error {
	// 直接删除 Key
	// 生产环境严谨做法: 需要 Lua 脚本检查 Value 是否属于自己再删除
	return l.client.Del(ctx, "lock:"+key).Err()
}
