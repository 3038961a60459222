// Package application 加密货币行情应用服务，编排仓储、缓存与分发
package application

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/domain"
	"github.com/wyfcoding/cryptoquote/pkg/logger"
	"github.com/wyfcoding/cryptoquote/pkg/metrics"
)

// GetCryptoQuoteRequest 获取最新行情请求
type GetCryptoQuoteRequest struct {
	Pair string // 交易对，例如 "BTC/USD"
}

// SaveCryptoQuoteCommand 保存行情命令
type SaveCryptoQuoteCommand struct {
	Pair       string
	ReceivedAt int64 // 毫秒，为 0 时取当前时间
	Quote      domain.CryptoQuoteResult
}

// CryptoQuoteApplicationService 行情应用服务
type CryptoQuoteApplicationService struct {
	repo       domain.CryptoQuoteRepository
	cache      domain.CryptoQuoteCache
	publishers []domain.CryptoQuotePublisher
	metrics    *metrics.Metrics
	now        func() time.Time
}

// Option 应用服务选项
type Option func(*CryptoQuoteApplicationService)

// WithCache 启用最新行情缓存
func WithCache(cache domain.CryptoQuoteCache) Option {
	return func(s *CryptoQuoteApplicationService) { s.cache = cache }
}

// WithPublishers 追加行情分发器
func WithPublishers(publishers ...domain.CryptoQuotePublisher) Option {
	return func(s *CryptoQuoteApplicationService) { s.publishers = append(s.publishers, publishers...) }
}

// WithMetrics 启用业务指标
func WithMetrics(m *metrics.Metrics) Option {
	return func(s *CryptoQuoteApplicationService) { s.metrics = m }
}

// WithClock 替换时钟
func WithClock(now func() time.Time) Option {
	return func(s *CryptoQuoteApplicationService) { s.now = now }
}

// NewCryptoQuoteApplicationService 创建行情应用服务
func NewCryptoQuoteApplicationService(repo domain.CryptoQuoteRepository, opts ...Option) *CryptoQuoteApplicationService {
	s := &CryptoQuoteApplicationService{
		repo: repo,
		now:  time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// GetCryptoQuote 获取最新行情
// 用例流程：
// 1. 验证交易对
// 2. 优先读缓存，未命中时读仓储并回填缓存
// 3. 返回状态为 SUCCESS 的行情结果
func (s *CryptoQuoteApplicationService) GetCryptoQuote(ctx context.Context, req *GetCryptoQuoteRequest) (*domain.CryptoQuoteResult, error) {
	if req == nil || req.Pair == "" {
		return nil, domain.ErrPairRequired
	}

	quote := s.fromCache(ctx, req.Pair)
	if quote == nil {
		var err error
		quote, err = s.repo.GetLatest(ctx, req.Pair)
		if err != nil {
			logger.Error(ctx, "Failed to get latest crypto quote",
				"pair", req.Pair,
				"error", err,
			)
			return nil, fmt.Errorf("failed to get latest crypto quote: %w", err)
		}
		if quote == nil {
			logger.Warn(ctx, "Crypto quote not found", "pair", req.Pair)
			return nil, fmt.Errorf("%w for pair: %s", domain.ErrQuoteNotFound, req.Pair)
		}
		s.toCache(ctx, quote)
	}

	result := quote.Quote.With(domain.WithResult(domain.Result{Status: domain.StatusSuccess}))
	return &result, nil
}

// SaveCryptoQuote 保存行情
// 用例流程：
// 1. 验证交易对与成交量
// 2. 保存到仓储并刷新缓存
// 3. 分发给所有订阅方
func (s *CryptoQuoteApplicationService) SaveCryptoQuote(ctx context.Context, cmd *SaveCryptoQuoteCommand) (*domain.CryptoQuote, error) {
	if cmd == nil || cmd.Pair == "" {
		return nil, domain.ErrPairRequired
	}
	if v := cmd.Quote.Volume(); v.Valid && v.Decimal.IsNegative() {
		return nil, domain.ErrNegativeVolume
	}

	receivedAt := cmd.ReceivedAt
	if receivedAt == 0 {
		receivedAt = s.now().UnixMilli()
	}
	quote := &domain.CryptoQuote{
		Pair:       cmd.Pair,
		ReceivedAt: receivedAt,
		Quote:      cmd.Quote.Clone(),
	}

	if err := s.repo.Save(ctx, quote); err != nil {
		logger.Error(ctx, "Failed to save crypto quote",
			"pair", cmd.Pair,
			"error", err,
		)
		return nil, fmt.Errorf("failed to save crypto quote: %w", err)
	}
	if s.metrics != nil {
		s.metrics.QuotesSavedTotal.Inc()
	}

	s.refreshCache(ctx, quote)

	for _, p := range s.publishers {
		if err := p.Publish(ctx, quote); err != nil {
			logger.Warn(ctx, "Failed to publish crypto quote",
				"pair", quote.Pair,
				"error", err,
			)
		}
	}

	logger.Debug(ctx, "Crypto quote saved",
		"pair", quote.Pair,
		"received_at", quote.ReceivedAt,
	)
	return quote, nil
}

// GetCryptoQuoteHistory 获取历史行情
func (s *CryptoQuoteApplicationService) GetCryptoQuoteHistory(ctx context.Context, pair string, startTime, endTime int64) ([]*domain.CryptoQuote, error) {
	if pair == "" {
		return nil, domain.ErrPairRequired
	}
	if startTime >= endTime {
		return nil, domain.ErrInvalidTimeRange
	}

	quotes, err := s.repo.GetHistory(ctx, pair, startTime, endTime)
	if err != nil {
		logger.Error(ctx, "Failed to get crypto quote history",
			"pair", pair,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get crypto quote history: %w", err)
	}
	return quotes, nil
}

// PurgeExpired 删除超过保留时长的行情
func (s *CryptoQuoteApplicationService) PurgeExpired(ctx context.Context, retention time.Duration) (int64, error) {
	if retention <= 0 {
		return 0, errors.New("retention must be positive")
	}
	before := s.now().Add(-retention).UnixMilli()

	deleted, err := s.repo.DeleteExpired(ctx, before)
	if err != nil {
		return 0, fmt.Errorf("failed to purge expired crypto quotes: %w", err)
	}
	logger.Info(ctx, "Expired crypto quotes purged",
		"before", before,
		"deleted", deleted,
	)
	return deleted, nil
}

func (s *CryptoQuoteApplicationService) fromCache(ctx context.Context, pair string) *domain.CryptoQuote {
	if s.cache == nil {
		return nil
	}
	quote, err := s.cache.Get(ctx, pair)
	if err != nil {
		logger.Warn(ctx, "Crypto quote cache read failed", "pair", pair, "error", err)
		return nil
	}
	if s.metrics != nil {
		if quote != nil {
			s.metrics.QuoteCacheHitsTotal.Inc()
		} else {
			s.metrics.QuoteCacheMissesTotal.Inc()
		}
	}
	return quote
}

// refreshCache 保存后刷新缓存，缓存中始终是 ReceivedAt 最大的行情
// 乱序到达的旧行情不会覆盖缓存；缓存未命中时以仓储中的最新行情为准
func (s *CryptoQuoteApplicationService) refreshCache(ctx context.Context, quote *domain.CryptoQuote) {
	if s.cache == nil {
		return
	}
	cached, err := s.cache.Get(ctx, quote.Pair)
	if err != nil {
		logger.Warn(ctx, "Crypto quote cache read failed", "pair", quote.Pair, "error", err)
		return
	}
	if cached != nil {
		if quote.ReceivedAt >= cached.ReceivedAt {
			s.toCache(ctx, quote)
		}
		return
	}

	latest, err := s.repo.GetLatest(ctx, quote.Pair)
	if err != nil {
		logger.Warn(ctx, "Failed to load latest crypto quote for cache", "pair", quote.Pair, "error", err)
		return
	}
	if latest == nil || latest.ReceivedAt <= quote.ReceivedAt {
		latest = quote
	}
	s.toCache(ctx, latest)
}

func (s *CryptoQuoteApplicationService) toCache(ctx context.Context, quote *domain.CryptoQuote) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, quote); err != nil {
		logger.Warn(ctx, "Crypto quote cache write failed", "pair", quote.Pair, "error", err)
	}
}
