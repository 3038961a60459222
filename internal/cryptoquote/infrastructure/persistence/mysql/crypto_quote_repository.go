// Package mysql 基于 GORM 的行情持久化，同时支持 MySQL 与 PostgreSQL 方言
package mysql

import (
	"context"
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
	"github.com/wyfcoding/cryptoquote/internal/cryptoquote/domain"
	"github.com/wyfcoding/cryptoquote/pkg/db"
	"github.com/wyfcoding/cryptoquote/pkg/logger"
	"gorm.io/gorm"
)

// CryptoQuoteModel 行情数据数据库模型
// 数值列可为 NULL，NULL 表示上游未提供该字段
type CryptoQuoteModel struct {
	gorm.Model
	// 交易对
	Pair string `gorm:"column:pair;type:varchar(32);index:idx_pair_received,priority:1;not null"`
	// 接收时间（毫秒）
	ReceivedAt int64 `gorm:"column:received_at;type:bigint;index:idx_pair_received,priority:2;index;not null"`

	Ask     decimal.NullDecimal `gorm:"column:ask;type:decimal(32,18)"`
	Bid     decimal.NullDecimal `gorm:"column:bid;type:decimal(32,18)"`
	Open    decimal.NullDecimal `gorm:"column:open_price;type:decimal(32,18)"`
	Last    decimal.NullDecimal `gorm:"column:last_price;type:decimal(32,18)"`
	Volume  decimal.NullDecimal `gorm:"column:volume;type:decimal(32,18)"`
	DayLow  decimal.NullDecimal `gorm:"column:day_low;type:decimal(32,18)"`
	DayHigh decimal.NullDecimal `gorm:"column:day_high;type:decimal(32,18)"`
	// 上游时间文本，原样保存
	DateTime *string `gorm:"column:date_time;type:varchar(64)"`

	Status       string   `gorm:"column:status;type:varchar(32)"`
	Token        string   `gorm:"column:token;type:varchar(128)"`
	ShortMessage string   `gorm:"column:short_message;type:varchar(255)"`
	LongMessages []string `gorm:"column:long_messages;type:text;serializer:json"`
}

// TableName 指定表名
func (CryptoQuoteModel) TableName() string {
	return "crypto_quotes"
}

// CryptoQuoteRepositoryImpl 行情仓储实现
type CryptoQuoteRepositoryImpl struct {
	db *gorm.DB
}

// NewCryptoQuoteRepository 创建行情仓储
func NewCryptoQuoteRepository(database *db.DB) *CryptoQuoteRepositoryImpl {
	return &CryptoQuoteRepositoryImpl{db: database.DB}
}

// AutoMigrate 同步表结构
func (r *CryptoQuoteRepositoryImpl) AutoMigrate(ctx context.Context) error {
	return r.db.WithContext(ctx).AutoMigrate(&CryptoQuoteModel{})
}

// Save 保存行情
func (r *CryptoQuoteRepositoryImpl) Save(ctx context.Context, quote *domain.CryptoQuote) error {
	model := toModel(quote)
	if err := r.db.WithContext(ctx).Create(model).Error; err != nil {
		logger.Error(ctx, "Failed to save crypto quote",
			"pair", quote.Pair,
			"error", err,
		)
		return fmt.Errorf("failed to save crypto quote: %w", err)
	}
	return nil
}

// GetLatest 获取最新行情
func (r *CryptoQuoteRepositoryImpl) GetLatest(ctx context.Context, pair string) (*domain.CryptoQuote, error) {
	var model CryptoQuoteModel

	err := r.db.WithContext(ctx).
		Where("pair = ?", pair).
		Order("received_at DESC").
		Order("id DESC").
		First(&model).Error
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get latest crypto quote: %w", err)
	}

	return toDomain(&model), nil
}

// GetHistory 获取历史行情
func (r *CryptoQuoteRepositoryImpl) GetHistory(ctx context.Context, pair string, startTime, endTime int64) ([]*domain.CryptoQuote, error) {
	var models []CryptoQuoteModel

	if err := r.db.WithContext(ctx).
		Where("pair = ? AND received_at >= ? AND received_at <= ?", pair, startTime, endTime).
		Order("received_at DESC").
		Find(&models).Error; err != nil {
		return nil, fmt.Errorf("failed to get crypto quote history: %w", err)
	}

	quotes := make([]*domain.CryptoQuote, 0, len(models))
	for i := range models {
		quotes = append(quotes, toDomain(&models[i]))
	}
	return quotes, nil
}

// DeleteExpired 物理删除过期行情
func (r *CryptoQuoteRepositoryImpl) DeleteExpired(ctx context.Context, beforeTime int64) (int64, error) {
	res := r.db.WithContext(ctx).Unscoped().Where("received_at < ?", beforeTime).Delete(&CryptoQuoteModel{})
	if res.Error != nil {
		logger.Error(ctx, "Failed to delete expired crypto quotes",
			"before_time", beforeTime,
			"error", res.Error,
		)
		return 0, fmt.Errorf("failed to delete expired crypto quotes: %w", res.Error)
	}
	return res.RowsAffected, nil
}

func toModel(quote *domain.CryptoQuote) *CryptoQuoteModel {
	q := quote.Quote
	dt, ok := q.DateTime()
	var dateTime *string
	if ok {
		dateTime = &dt
	}
	return &CryptoQuoteModel{
		Pair:         quote.Pair,
		ReceivedAt:   quote.ReceivedAt,
		Ask:          q.Ask(),
		Bid:          q.Bid(),
		Open:         q.Open(),
		Last:         q.Last(),
		Volume:       q.Volume(),
		DayLow:       q.DayLow(),
		DayHigh:      q.DayHigh(),
		DateTime:     dateTime,
		Status:       string(q.Status),
		Token:        q.Token,
		ShortMessage: q.ShortMessage,
		LongMessages: append([]string(nil), q.LongMessages...),
	}
}

func toDomain(model *CryptoQuoteModel) *domain.CryptoQuote {
	return &domain.CryptoQuote{
		Pair:       model.Pair,
		ReceivedAt: model.ReceivedAt,
		Quote: domain.NewCryptoQuoteResult(
			domain.WithResult(domain.Result{
				Status:       domain.ResultStatus(model.Status),
				Token:        model.Token,
				ShortMessage: model.ShortMessage,
				LongMessages: model.LongMessages,
			}),
			domain.WithValue(domain.FieldAsk, model.Ask),
			domain.WithValue(domain.FieldBid, model.Bid),
			domain.WithValue(domain.FieldOpen, model.Open),
			domain.WithValue(domain.FieldLast, model.Last),
			domain.WithValue(domain.FieldVolume, model.Volume),
			domain.WithValue(domain.FieldDayLow, model.DayLow),
			domain.WithValue(domain.FieldDayHigh, model.DayHigh),
			domain.WithNullDateTime(model.DateTime),
		),
	}
}
