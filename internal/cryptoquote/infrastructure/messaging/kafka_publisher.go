// Package messaging 行情事件的 Kafka 分发
package messaging

import (
	"context"
	"fmt"

	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/domain"
)

// MessageSender 消息发送能力，由 mq.KafkaProducer 实现
type MessageSender interface {
	SendMessage(ctx context.Context, topic string, key string, value interface{}) error
}

// KafkaQuotePublisher 将已保存的行情发布到下游主题，以交易对为分区键
type KafkaQuotePublisher struct {
	sender MessageSender
	topic  string
}

// NewKafkaQuotePublisher 创建行情发布器
func NewKafkaQuotePublisher(sender MessageSender, topic string) *KafkaQuotePublisher {
	return &KafkaQuotePublisher{sender: sender, topic: topic}
}

// Publish 发布行情
func (p *KafkaQuotePublisher) Publish(ctx context.Context, quote *domain.CryptoQuote) error {
	if err := p.sender.SendMessage(ctx, p.topic, quote.Pair, quote); err != nil {
		return fmt.Errorf("failed to publish crypto quote to %s: %w", p.topic, err)
	}
	return nil
}
