package domain

import (
	"encoding/json"
	"testing"

	"github.com/shopspring/decimal"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func fullQuote() CryptoQuoteResult {
	return NewCryptoQuoteResult(
		WithAsk(dec("100.5")),
		WithBid(dec("100.0")),
		WithLast(dec("100.25")),
		WithVolume(dec("12345")),
		WithDayLow(dec("95.0")),
		WithDayHigh(dec("105.0")),
		WithOpen(dec("98.0")),
		WithDateTime("2024-01-01T00:00:00Z"),
	)
}

func TestCryptoQuoteResultReadBack(t *testing.T) {
	q := fullQuote()

	want := map[Field]string{
		FieldAsk:     "100.5",
		FieldBid:     "100",
		FieldLast:    "100.25",
		FieldVolume:  "12345",
		FieldDayLow:  "95",
		FieldDayHigh: "105",
		FieldOpen:    "98",
	}
	for f, s := range want {
		v := q.Value(f)
		if !v.Valid {
			t.Errorf("%s: absent, want %s", f, s)
			continue
		}
		if !v.Decimal.Equal(dec(s)) {
			t.Errorf("%s = %s, want %s", f, v.Decimal, s)
		}
	}

	accessors := map[string]decimal.NullDecimal{
		"ask": q.Ask(), "bid": q.Bid(), "open": q.Open(), "last": q.Last(),
		"volume": q.Volume(), "dayLow": q.DayLow(), "dayHigh": q.DayHigh(),
	}
	for name, v := range accessors {
		if !v.Valid {
			t.Errorf("%s() reports absent", name)
		}
	}

	dt, ok := q.DateTime()
	if !ok || dt != "2024-01-01T00:00:00Z" {
		t.Errorf("DateTime() = %q, %v", dt, ok)
	}
}

func TestCryptoQuoteResultAbsentDistinctFromZero(t *testing.T) {
	empty := NewCryptoQuoteResult()
	for _, f := range Fields() {
		if empty.Value(f).Valid {
			t.Errorf("%s: want absent on empty quote", f)
		}

		zero := NewCryptoQuoteResult(WithValue(f, decimal.NewNullDecimal(decimal.Zero)))
		v := zero.Value(f)
		if !v.Valid || !v.Decimal.IsZero() {
			t.Errorf("%s: want present zero, got %+v", f, v)
		}
		if zero.Equal(empty) {
			t.Errorf("%s: present zero must not equal absent", f)
		}
	}

	if _, ok := empty.DateTime(); ok {
		t.Error("DateTime(): want absent on empty quote")
	}
	withEmptyText := NewCryptoQuoteResult(WithDateTime(""))
	if dt, ok := withEmptyText.DateTime(); !ok || dt != "" {
		t.Errorf("DateTime() = %q, %v; want present empty text", dt, ok)
	}
	if withEmptyText.Equal(empty) {
		t.Error("present empty dateTime must not equal absent")
	}
	if _, ok := NewCryptoQuoteResult(WithNullDateTime(nil)).DateTime(); ok {
		t.Error("WithNullDateTime(nil) must leave dateTime absent")
	}
}

func TestCryptoQuoteResultMarshalEmpty(t *testing.T) {
	data, err := json.Marshal(NewCryptoQuoteResult())
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != "{}" {
		t.Errorf("Marshal(empty) = %s, want {}", data)
	}
}

func TestCryptoQuoteResultMarshalNumbers(t *testing.T) {
	q := NewCryptoQuoteResult(WithAsk(dec("100.5")), WithDateTime(""))
	data, err := json.Marshal(q)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}
	if string(data) != `{"ask":100.5,"dateTime":""}` {
		t.Errorf("Marshal() = %s", data)
	}
}

func TestCryptoQuoteResultRoundTrip(t *testing.T) {
	full := fullQuote()

	tests := []struct {
		name  string
		quote CryptoQuoteResult
	}{
		{"empty", NewCryptoQuoteResult()},
		{"full", full},
		{"prices only", NewCryptoQuoteResult(WithAsk(dec("0.00000001")), WithBid(dec("-0")))},
		{"volume and date", NewCryptoQuoteResult(WithVolume(dec("0")), WithDateTime(""))},
		{"with base result", full.With(WithResult(Result{
			Status:       StatusSuccess,
			Token:        "tok",
			ShortMessage: "ok",
			LongMessages: []string{"a", "b"},
		}))},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			data, err := json.Marshal(tt.quote)
			if err != nil {
				t.Fatalf("Marshal() error = %v", err)
			}
			var got CryptoQuoteResult
			if err := json.Unmarshal(data, &got); err != nil {
				t.Fatalf("Unmarshal(%s) error = %v", data, err)
			}
			if !got.Equal(tt.quote) {
				t.Errorf("round trip mismatch: %s", data)
			}
		})
	}
}

func TestCryptoQuoteResultUnmarshalLenient(t *testing.T) {
	input := `{
		"ask": null,
		"bid": "99.5",
		"last": 101,
		"dateTime": null,
		"pair": "BTC/USD",
		"somethingElse": {"nested": true}
	}`

	var q CryptoQuoteResult
	if err := json.Unmarshal([]byte(input), &q); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if q.Ask().Valid {
		t.Error("ask: null must be absent")
	}
	if !q.Bid().Valid || !q.Bid().Decimal.Equal(dec("99.5")) {
		t.Errorf("bid = %+v, want 99.5 from quoted string", q.Bid())
	}
	if !q.Last().Valid || !q.Last().Decimal.Equal(dec("101")) {
		t.Errorf("last = %+v", q.Last())
	}
	for _, f := range []Field{FieldOpen, FieldVolume, FieldDayLow, FieldDayHigh} {
		if q.Value(f).Valid {
			t.Errorf("%s: missing key must be absent", f)
		}
	}
	if _, ok := q.DateTime(); ok {
		t.Error("dateTime: null must be absent")
	}
}

func TestCryptoQuoteResultUnmarshalInvalidNumber(t *testing.T) {
	var q CryptoQuoteResult
	if err := json.Unmarshal([]byte(`{"ask":"abc"}`), &q); err == nil {
		t.Error("Unmarshal() expected error for non-numeric ask")
	}
}

func TestCryptoQuoteResultCopy(t *testing.T) {
	original := fullQuote().With(WithResult(Result{LongMessages: []string{"x"}}))

	clone := original.Clone()
	if !clone.Equal(original) {
		t.Fatal("Clone() not equal to original")
	}

	rebuilt := NewCryptoQuoteResult(
		WithResult(original.Result),
		WithValue(FieldAsk, original.Ask()),
		WithValue(FieldBid, original.Bid()),
		WithValue(FieldOpen, original.Open()),
		WithValue(FieldLast, original.Last()),
		WithValue(FieldVolume, original.Volume()),
		WithValue(FieldDayLow, original.DayLow()),
		WithValue(FieldDayHigh, original.DayHigh()),
	)
	dt, _ := original.DateTime()
	rebuilt = rebuilt.With(WithDateTime(dt))
	if !rebuilt.Equal(original) {
		t.Error("construction from accessors not equal to original")
	}

	clone.LongMessages[0] = "changed"
	if original.LongMessages[0] != "x" {
		t.Error("Clone() shares LongMessages with original")
	}

	changed := original.With(WithAsk(dec("1")))
	if original.Ask().Decimal.Equal(dec("1")) {
		t.Error("With() modified the receiver")
	}
	if !changed.Ask().Decimal.Equal(dec("1")) {
		t.Error("With() did not apply option")
	}
}

func TestFieldString(t *testing.T) {
	names := []string{}
	for _, f := range Fields() {
		names = append(names, f.String())
	}
	want := []string{"ask", "bid", "open", "last", "volume", "dayLow", "dayHigh"}
	if len(names) != len(want) {
		t.Fatalf("Fields() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Fields()[%d] = %s, want %s", i, names[i], want[i])
		}
	}
	if Field(99).String() != "unknown" {
		t.Error("out of range field must stringify as unknown")
	}
	if NewCryptoQuoteResult().Value(Field(99)).Valid {
		t.Error("out of range field must be absent")
	}
}

func TestCryptoQuoteJSON(t *testing.T) {
	cq := CryptoQuote{Pair: "ETH/USD", ReceivedAt: 1700000000000, Quote: fullQuote()}
	data, err := json.Marshal(cq)
	if err != nil {
		t.Fatalf("Marshal() error = %v", err)
	}

	var got CryptoQuote
	if err := json.Unmarshal(data, &got); err != nil {
		t.Fatalf("Unmarshal() error = %v", err)
	}
	if got.Pair != cq.Pair || got.ReceivedAt != cq.ReceivedAt || !got.Quote.Equal(cq.Quote) {
		t.Errorf("CryptoQuote round trip mismatch: %s", data)
	}
}
