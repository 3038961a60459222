// Package redis 最新行情的 Redis 读模型
package redis

import (
	"context"
	"time"

	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/domain"
	"github.com/wyfcoding/cryptoquote/pkg/cache"
)

const keyPrefix = "cryptoquote:latest:"

// CryptoQuoteCache 基于 Redis 的最新行情缓存
type CryptoQuoteCache struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewCryptoQuoteCache 创建最新行情缓存，ttl 为 0 时永不过期
func NewCryptoQuoteCache(c *cache.RedisCache, ttl time.Duration) *CryptoQuoteCache {
	return &CryptoQuoteCache{cache: c, ttl: ttl}
}

// Key 返回交易对对应的缓存键
func Key(pair string) string {
	return keyPrefix + pair
}

// Get 读取最新行情，未命中时返回 nil, nil
func (c *CryptoQuoteCache) Get(ctx context.Context, pair string) (*domain.CryptoQuote, error) {
	var quote domain.CryptoQuote
	found, err := c.cache.GetJSON(ctx, Key(pair), &quote)
	if err != nil || !found {
		return nil, err
	}
	return &quote, nil
}

// Set 写入最新行情
func (c *CryptoQuoteCache) Set(ctx context.Context, quote *domain.CryptoQuote) error {
	if quote == nil {
		return nil
	}
	return c.cache.SetJSON(ctx, Key(quote.Pair), quote, c.ttl)
}

// Invalidate 删除交易对的缓存
func (c *CryptoQuoteCache) Invalidate(ctx context.Context, pair string) error {
	return c.cache.Delete(ctx, Key(pair))
}
