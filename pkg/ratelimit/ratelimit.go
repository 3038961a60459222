// Package ratelimit 基于 redis_rate 的按客户端限流
// 查询与写入分别计量，互不挤占配额
package ratelimit

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-redis/redis_rate/v10"
	"github.com/redis/go-redis/v9"
	"github.com/wyfcoding/cryptoquote/pkg/config"
)

// Class 配额类别
type Class string

const (
	ClassRead  Class = "read"
	ClassWrite Class = "write"
)

// ClassOf 按 HTTP 方法划分配额类别，安全方法计入查询配额
func ClassOf(method string) Class {
	switch method {
	case http.MethodGet, http.MethodHead, http.MethodOptions:
		return ClassRead
	default:
		return ClassWrite
	}
}

// Quotas 各类别的配额，未配置的类别不限流
type Quotas map[Class]redis_rate.Limit

// QuotasFromConfig 由配置生成配额，写入配额未配置时沿用查询配额
func QuotasFromConfig(cfg config.RateLimitConfig) Quotas {
	read := redis_rate.Limit{Rate: cfg.QPS, Period: time.Second, Burst: cfg.Burst}
	write := read
	if cfg.WriteQPS > 0 {
		write = redis_rate.Limit{Rate: cfg.WriteQPS, Period: time.Second, Burst: cfg.WriteBurst}
		if write.Burst <= 0 {
			write.Burst = write.Rate
		}
	}
	return Quotas{ClassRead: read, ClassWrite: write}
}

// Decision 单次限流判定
type Decision struct {
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAfter time.Duration
	RetryAfter time.Duration
}

// Limiter 限流器
type Limiter interface {
	// Allow 判定 subject（通常是客户端 IP）在 class 配额下能否再发起一次请求
	Allow(ctx context.Context, class Class, subject string) (*Decision, error)
}

// RedisLimiter 基于 Redis GCRA 的限流器，多实例共享配额
type RedisLimiter struct {
	limiter *redis_rate.Limiter
	prefix  string
	quotas  Quotas
}

// NewRedisLimiter 创建限流器，prefix 用于隔离不同服务的计数键
func NewRedisLimiter(rdb *redis.Client, prefix string, quotas Quotas) *RedisLimiter {
	if prefix == "" {
		prefix = "ratelimit"
	}
	return &RedisLimiter{
		limiter: redis_rate.NewLimiter(rdb),
		prefix:  prefix,
		quotas:  quotas,
	}
}

// Key 计数键
func (l *RedisLimiter) Key(class Class, subject string) string {
	return fmt.Sprintf("%s:%s:%s", l.prefix, class, subject)
}

// Allow 判定请求是否放行
func (l *RedisLimiter) Allow(ctx context.Context, class Class, subject string) (*Decision, error) {
	quota, ok := l.quotas[class]
	if !ok || quota.Rate <= 0 {
		return &Decision{Allowed: true, Remaining: -1}, nil
	}

	res, err := l.limiter.Allow(ctx, l.Key(class, subject), quota)
	if err != nil {
		return nil, fmt.Errorf("rate limit check for %s failed: %w", class, err)
	}
	return &Decision{
		Allowed:    res.Allowed > 0,
		Limit:      quota.Burst,
		Remaining:  res.Remaining,
		ResetAfter: res.ResetAfter,
		RetryAfter: res.RetryAfter,
	}, nil
}
