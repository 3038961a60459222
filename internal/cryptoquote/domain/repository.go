package domain

import (
	"context"
	"errors"
)

var (
	// ErrPairRequired 缺少交易对
	ErrPairRequired = errors.New("pair is required")
	// ErrQuoteNotFound 交易对没有可用行情
	ErrQuoteNotFound = errors.New("quote not found")
	// ErrNegativeVolume 成交量为负
	ErrNegativeVolume = errors.New("volume must not be negative")
	// ErrInvalidTimeRange 时间范围非法
	ErrInvalidTimeRange = errors.New("start time must be before end time")
)

// CryptoQuoteRepository 行情仓储接口
type CryptoQuoteRepository interface {
	// Save 保存行情
	Save(ctx context.Context, quote *CryptoQuote) error
	// GetLatest 获取最新行情，不存在时返回 nil, nil
	GetLatest(ctx context.Context, pair string) (*CryptoQuote, error)
	// GetHistory 获取 [startTime, endTime] 区间内的行情（毫秒），按接收时间倒序
	GetHistory(ctx context.Context, pair string, startTime, endTime int64) ([]*CryptoQuote, error)
	// DeleteExpired 删除接收时间早于 beforeTime 的行情，返回删除条数
	DeleteExpired(ctx context.Context, beforeTime int64) (int64, error)
}

// CryptoQuoteCache 最新行情缓存
type CryptoQuoteCache interface {
	// Get 未命中时返回 nil, nil
	Get(ctx context.Context, pair string) (*CryptoQuote, error)
	Set(ctx context.Context, quote *CryptoQuote) error
}

// CryptoQuotePublisher 行情分发
type CryptoQuotePublisher interface {
	Publish(ctx context.Context, quote *CryptoQuote) error
}
