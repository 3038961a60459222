package domain

import (
	"encoding/json"

	"github.com/shopspring/decimal"
)

// Field 行情数值字段
type Field int

const (
	FieldAsk Field = iota
	FieldBid
	FieldOpen
	FieldLast
	FieldVolume
	FieldDayLow
	FieldDayHigh

	numFields
)

var fieldNames = [numFields]string{"ask", "bid", "open", "last", "volume", "dayLow", "dayHigh"}

// String 返回字段的线上名称
func (f Field) String() string {
	if f < 0 || f >= numFields {
		return "unknown"
	}
	return fieldNames[f]
}

// Fields 返回全部数值字段，顺序固定
func Fields() []Field {
	fields := make([]Field, 0, numFields)
	for f := Field(0); f < numFields; f++ {
		fields = append(fields, f)
	}
	return fields
}

// CryptoQuoteResult 加密货币行情结果
// 某一交易对在某一时刻的行情快照。每个字段都可能缺失，缺失表示上游未提供，
// 与数值 0 或空字符串不同。构造后不可修改，赋值即复制。
type CryptoQuoteResult struct {
	Result

	values   [numFields]decimal.NullDecimal
	dateTime *string
}

// QuoteOption 行情字段构造选项
type QuoteOption func(*CryptoQuoteResult)

// NewCryptoQuoteResult 创建行情结果，未指定的字段均为缺失
func NewCryptoQuoteResult(opts ...QuoteOption) CryptoQuoteResult {
	var q CryptoQuoteResult
	for _, opt := range opts {
		opt(&q)
	}
	return q
}

// WithResult 设置基础结果
func WithResult(r Result) QuoteOption {
	return func(q *CryptoQuoteResult) { q.Result = r.clone() }
}

// WithValue 设置任意数值字段，Valid 为 false 时表示缺失
func WithValue(f Field, v decimal.NullDecimal) QuoteOption {
	return func(q *CryptoQuoteResult) {
		if f >= 0 && f < numFields {
			q.values[f] = v
		}
	}
}

func withDecimal(f Field, d decimal.Decimal) QuoteOption {
	return WithValue(f, decimal.NewNullDecimal(d))
}

// WithAsk 设置卖一价
func WithAsk(d decimal.Decimal) QuoteOption { return withDecimal(FieldAsk, d) }

// WithBid 设置买一价
func WithBid(d decimal.Decimal) QuoteOption { return withDecimal(FieldBid, d) }

// WithOpen 设置开盘价
func WithOpen(d decimal.Decimal) QuoteOption { return withDecimal(FieldOpen, d) }

// WithLast 设置最新成交价
func WithLast(d decimal.Decimal) QuoteOption { return withDecimal(FieldLast, d) }

// WithVolume 设置成交量
func WithVolume(d decimal.Decimal) QuoteOption { return withDecimal(FieldVolume, d) }

// WithDayLow 设置当日最低价
func WithDayLow(d decimal.Decimal) QuoteOption { return withDecimal(FieldDayLow, d) }

// WithDayHigh 设置当日最高价
func WithDayHigh(d decimal.Decimal) QuoteOption { return withDecimal(FieldDayHigh, d) }

// WithDateTime 设置行情时间文本，空字符串视为已提供
func WithDateTime(s string) QuoteOption {
	return func(q *CryptoQuoteResult) { q.dateTime = &s }
}

// WithNullDateTime 设置可能缺失的行情时间文本，nil 表示缺失
func WithNullDateTime(s *string) QuoteOption {
	return func(q *CryptoQuoteResult) {
		if s == nil {
			q.dateTime = nil
			return
		}
		v := *s
		q.dateTime = &v
	}
}

// With 基于当前行情构造一个应用了选项的新实例，原实例不变
func (q CryptoQuoteResult) With(opts ...QuoteOption) CryptoQuoteResult {
	out := q.Clone()
	for _, opt := range opts {
		opt(&out)
	}
	return out
}

// Clone 复制行情结果
func (q CryptoQuoteResult) Clone() CryptoQuoteResult {
	out := q
	out.Result = q.Result.clone()
	if q.dateTime != nil {
		v := *q.dateTime
		out.dateTime = &v
	}
	return out
}

// Value 返回指定数值字段
func (q CryptoQuoteResult) Value(f Field) decimal.NullDecimal {
	if f < 0 || f >= numFields {
		return decimal.NullDecimal{}
	}
	return q.values[f]
}

// Ask 卖一价
func (q CryptoQuoteResult) Ask() decimal.NullDecimal { return q.values[FieldAsk] }

// Bid 买一价
func (q CryptoQuoteResult) Bid() decimal.NullDecimal { return q.values[FieldBid] }

// Open 开盘价
func (q CryptoQuoteResult) Open() decimal.NullDecimal { return q.values[FieldOpen] }

// Last 最新成交价
func (q CryptoQuoteResult) Last() decimal.NullDecimal { return q.values[FieldLast] }

// Volume 成交量
func (q CryptoQuoteResult) Volume() decimal.NullDecimal { return q.values[FieldVolume] }

// DayLow 当日最低价
func (q CryptoQuoteResult) DayLow() decimal.NullDecimal { return q.values[FieldDayLow] }

// DayHigh 当日最高价
func (q CryptoQuoteResult) DayHigh() decimal.NullDecimal { return q.values[FieldDayHigh] }

// DateTime 行情时间文本，第二个返回值表示是否提供
func (q CryptoQuoteResult) DateTime() (string, bool) {
	if q.dateTime == nil {
		return "", false
	}
	return *q.dateTime, true
}

// Equal 逐字段比较，数值按十进制值比较而非内部表示
func (q CryptoQuoteResult) Equal(o CryptoQuoteResult) bool {
	if !q.Result.equal(o.Result) {
		return false
	}
	for f := Field(0); f < numFields; f++ {
		a, b := q.values[f], o.values[f]
		if a.Valid != b.Valid {
			return false
		}
		if a.Valid && !a.Decimal.Equal(b.Decimal) {
			return false
		}
	}
	if (q.dateTime == nil) != (o.dateTime == nil) {
		return false
	}
	return q.dateTime == nil || *q.dateTime == *o.dateTime
}

// wireDecimal 以 JSON 数字输出的十进制数，输入同时接受数字与带引号的字符串
type wireDecimal decimal.Decimal

func (d wireDecimal) MarshalJSON() ([]byte, error) {
	return []byte(decimal.Decimal(d).String()), nil
}

func (d *wireDecimal) UnmarshalJSON(b []byte) error {
	var v decimal.Decimal
	if err := v.UnmarshalJSON(b); err != nil {
		return err
	}
	*d = wireDecimal(v)
	return nil
}

type cryptoQuoteWire struct {
	Result

	Ask      *wireDecimal `json:"ask,omitempty"`
	Bid      *wireDecimal `json:"bid,omitempty"`
	Open     *wireDecimal `json:"open,omitempty"`
	Last     *wireDecimal `json:"last,omitempty"`
	Volume   *wireDecimal `json:"volume,omitempty"`
	DayLow   *wireDecimal `json:"dayLow,omitempty"`
	DayHigh  *wireDecimal `json:"dayHigh,omitempty"`
	DateTime *string      `json:"dateTime,omitempty"`
}

func (w *cryptoQuoteWire) slots() [numFields]**wireDecimal {
	return [numFields]**wireDecimal{&w.Ask, &w.Bid, &w.Open, &w.Last, &w.Volume, &w.DayLow, &w.DayHigh}
}

// MarshalJSON 缺失字段不输出
func (q CryptoQuoteResult) MarshalJSON() ([]byte, error) {
	w := cryptoQuoteWire{Result: q.Result, DateTime: q.dateTime}
	slots := w.slots()
	for f, v := range q.values {
		if v.Valid {
			d := wireDecimal(v.Decimal)
			*slots[f] = &d
		}
	}
	return json.Marshal(w)
}

// UnmarshalJSON 缺失、null 与未知字段均不报错，对应字段视为缺失
func (q *CryptoQuoteResult) UnmarshalJSON(data []byte) error {
	var w cryptoQuoteWire
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	out := CryptoQuoteResult{Result: w.Result, dateTime: w.DateTime}
	for f, slot := range w.slots() {
		if *slot != nil {
			out.values[f] = decimal.NewNullDecimal(decimal.Decimal(**slot))
		}
	}
	*q = out
	return nil
}

// CryptoQuote 带交易对标识与接收时间的行情，用于持久化、缓存与分发
type CryptoQuote struct {
	// 交易对（如 BTC/USD）
	Pair string `json:"pair"`
	// 接收时间（毫秒）
	ReceivedAt int64 `json:"receivedAt"`
	// 行情结果
	Quote CryptoQuoteResult `json:"quote"`
}
