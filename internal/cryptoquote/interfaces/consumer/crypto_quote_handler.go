// Package consumer 消费上游行情主题并写入应用服务
package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/application"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/domain"
	"github.com/wyfcoding/cryptoquote/pkg/logger"
	"github.com/wyfcoding/cryptoquote/pkg/metrics"
	"github.com/wyfcoding/cryptoquote/pkg/mq"
	"github.com/wyfcoding/cryptoquote/pkg/retry"
)

// 死信原因
const (
	ReasonDecode     = "decode_failed"
	ReasonValidation = "validation_failed"
	ReasonSave       = "save_failed"
)

// 整条消息重新处理的退避区间
const (
	minRedeliveryDelay = 100 * time.Millisecond
	maxRedeliveryDelay = 30 * time.Second
)

// MessageSource 可拉取并显式提交的消息源，由 mq.KafkaConsumer 实现
type MessageSource interface {
	FetchMessage(ctx context.Context) (*mq.Message, error)
	CommitMessages(ctx context.Context, messages ...*mq.Message) error
}

// DeadLetterSender 死信发送，由 mq.DeadLetterQueue 实现
type DeadLetterSender interface {
	Send(ctx context.Context, original *mq.Message, reason string, err error) error
}

// CryptoQuoteHandler 上游行情消息处理器
type CryptoQuoteHandler struct {
	quoteService *application.CryptoQuoteApplicationService
	deadLetters  DeadLetterSender
	metrics      *metrics.Metrics
	maxRetries   int
	backoff      time.Duration
}

// NewCryptoQuoteHandler 创建处理器
// 保存失败时最多重试 maxRetries 次，仍失败则转入死信
func NewCryptoQuoteHandler(quoteService *application.CryptoQuoteApplicationService, deadLetters DeadLetterSender, m *metrics.Metrics, maxRetries int, backoff time.Duration) *CryptoQuoteHandler {
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &CryptoQuoteHandler{
		quoteService: quoteService,
		deadLetters:  deadLetters,
		metrics:      m,
		maxRetries:   maxRetries,
		backoff:      backoff,
	}
}

// Handle 处理单条消息
// 返回 nil 表示消息已处理完毕（保存成功或已转入死信），可以提交偏移量
func (h *CryptoQuoteHandler) Handle(ctx context.Context, msg *mq.Message) error {
	var quote domain.CryptoQuote
	if err := msg.UnmarshalPayload(&quote); err != nil {
		return h.deadLetter(ctx, msg, ReasonDecode, err)
	}
	if quote.Pair == "" && msg.Key != "" {
		quote.Pair = msg.Key
	}

	cmd := &application.SaveCryptoQuoteCommand{
		Pair:       quote.Pair,
		ReceivedAt: quote.ReceivedAt,
		Quote:      quote.Quote,
	}

	policy := retry.Policy{MaxAttempts: h.maxRetries + 1, InitialDelay: h.backoff, MaxDelay: 10 * h.backoff}
	err := retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		_, err := h.quoteService.SaveCryptoQuote(ctx, cmd)
		if err == nil {
			return nil
		}
		if isValidationError(err) {
			return retry.Permanent(err)
		}
		logger.Warn(ctx, "Saving inbound crypto quote failed",
			"pair", quote.Pair,
			"attempt", attempt+1,
			"error", err,
		)
		return err
	})
	switch {
	case err == nil:
		return nil
	case ctx.Err() != nil:
		return ctx.Err()
	case isValidationError(err):
		return h.deadLetter(ctx, msg, ReasonValidation, err)
	default:
		return h.deadLetter(ctx, msg, ReasonSave, err)
	}
}

// Run 循环拉取消息直到 ctx 结束
// Kafka 偏移量提交是累积的，处理失败的消息会带退避重新处理，成功前不会拉取下一条
func (h *CryptoQuoteHandler) Run(ctx context.Context, source MessageSource) error {
	logger.Info(ctx, "Crypto quote consumer started")
	for {
		msg, err := source.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				logger.Info(ctx, "Crypto quote consumer stopped")
				return nil
			}
			return err
		}

		if err := h.handleUntilDone(ctx, msg); err != nil {
			// 只有 ctx 结束才会走到这里，消息保持未提交，重启后重新投递
			logger.Info(ctx, "Crypto quote consumer stopped", "pending_offset", msg.Offset)
			return nil
		}
		if err := source.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			logger.Error(ctx, "Failed to commit crypto quote message", "offset", msg.Offset, "error", err)
		}
	}
}

func (h *CryptoQuoteHandler) handleUntilDone(ctx context.Context, msg *mq.Message) error {
	delay := h.backoff
	if delay <= 0 {
		delay = minRedeliveryDelay
	}
	policy := retry.Policy{InitialDelay: delay, MaxDelay: maxRedeliveryDelay}
	return retry.Do(ctx, policy, func(ctx context.Context, attempt int) error {
		err := h.Handle(ctx, msg)
		if err != nil && ctx.Err() == nil {
			logger.Error(ctx, "Failed to handle crypto quote message",
				"topic", msg.Topic,
				"partition", msg.Partition,
				"offset", msg.Offset,
				"attempt", attempt+1,
				"error", err,
			)
		}
		return err
	})
}

func (h *CryptoQuoteHandler) deadLetter(ctx context.Context, msg *mq.Message, reason string, cause error) error {
	logger.Warn(ctx, "Sending crypto quote message to dead letter queue",
		"reason", reason,
		"key", msg.Key,
		"offset", msg.Offset,
		"error", cause,
	)
	if h.deadLetters == nil {
		return nil
	}
	if err := h.deadLetters.Send(ctx, msg, reason, cause); err != nil {
		return err
	}
	if h.metrics != nil {
		h.metrics.QuotesDeadLetterTotal.Inc()
	}
	return nil
}

func isValidationError(err error) bool {
	return errors.Is(err, domain.ErrPairRequired) || errors.Is(err, domain.ErrNegativeVolume)
}
