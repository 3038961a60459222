// Package retry 基于 cenkalti/backoff 的重试封装，带指数退避与不可重试错误
package retry

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v5"
)

// Policy 重试策略
type Policy struct {
	// 最大尝试次数（含首次），0 表示直到成功或 ctx 结束
	MaxAttempts int
	// 首次重试前的等待
	InitialDelay time.Duration
	// 单次等待上限，0 使用 backoff 默认值
	MaxDelay time.Duration
}

// Permanent 标记错误不可重试
func Permanent(err error) error {
	if err == nil {
		return nil
	}
	return backoff.Permanent(err)
}

// IsPermanent 错误是否被标记为不可重试
func IsPermanent(err error) bool {
	var p *backoff.PermanentError
	return errors.As(err, &p)
}

func (p Policy) backOff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.Multiplier = 1.5
	b.RandomizationFactor = 0.2
	if p.InitialDelay > 0 {
		b.InitialInterval = p.InitialDelay
	}
	if p.MaxDelay > 0 {
		b.MaxInterval = p.MaxDelay
	}
	if b.MaxInterval < b.InitialInterval {
		b.MaxInterval = b.InitialInterval
	}
	return b
}

// Do 执行 fn 直到成功、遇到不可重试错误、次数耗尽或 ctx 结束
// 返回最后一次 fn 的错误，不可重试错误会被解包；ctx 结束时返回 ctx 的错误
func Do(ctx context.Context, policy Policy, fn func(ctx context.Context, attempt int) error) error {
	attempt := 0
	op := func() (struct{}, error) {
		err := fn(ctx, attempt)
		attempt++
		return struct{}{}, err
	}

	opts := []backoff.RetryOption{
		backoff.WithBackOff(policy.backOff()),
		backoff.WithMaxElapsedTime(0),
	}
	if policy.MaxAttempts > 0 {
		opts = append(opts, backoff.WithMaxTries(uint(policy.MaxAttempts)))
	}

	_, err := backoff.Retry(ctx, op, opts...)
	// 最后一次尝试返回的不可重试错误不会被 backoff 解包
	var p *backoff.PermanentError
	if errors.As(err, &p) {
		return p.Unwrap()
	}
	return err
}
