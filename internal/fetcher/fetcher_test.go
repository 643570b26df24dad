package fetcher

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

func noopLogger() zerolog.Logger {
	return zerolog.Nop()
}

// fakeSource 返回预设结果, 用于验证回退链行为。
type fakeSource struct {
	name   string
	record PriceRecord
	err    error
	calls  int
}

func (s *fakeSource) Name() string { return s.name }

func (s *fakeSource) Fetch(ctx context.Context, symbol string) (PriceRecord, error) {
	s.calls++
	if s.err != nil {
		return PriceRecord{}, s.err
	}
	record := s.record
	record.Symbol = symbol
	return record, nil
}

func usdRecord(price string) PriceRecord {
	return PriceRecord{
		Price:     decimal.RequireFromString(price),
		Currency:  "USD",
		FetchedAt: time.Now().UTC(),
	}
}

func TestMarketOf(t *testing.T) {
	f := New(noopLogger())
	f.RegisterCryptoSymbol("DOGE")

	cases := []struct {
		symbol string
		want   Market
	}{
		{"AAPL", MarketUS},
		{"msft", MarketUS},
		{"0700.HK", MarketHK},
		{"0700.hk", MarketHK},
		{"BTC-USD", MarketCrypto},
		{"BTC", MarketCrypto},
		{"ETH-USD", MarketCrypto},
		{"doge", MarketCrypto},
	}
	for _, tc := range cases {
		if got := f.MarketOf(tc.symbol); got != tc.want {
			t.Fatalf("%s 应归属 %s, 实际 %s", tc.symbol, tc.want, got)
		}
	}
}

func TestExpectedCurrency(t *testing.T) {
	f := New(noopLogger())
	if got := f.ExpectedCurrency("0700.HK"); got != "HKD" {
		t.Fatalf("港股应以 HKD 计价, 实际 %s", got)
	}
	if got := f.ExpectedCurrency("AAPL"); got != "USD" {
		t.Fatalf("美股应以 USD 计价, 实际 %s", got)
	}
	if got := f.ExpectedCurrency("BTC-USD"); got != "USD" {
		t.Fatalf("加密资产应以 USD 计价, 实际 %s", got)
	}
}

func TestFetchOneNoSources(t *testing.T) {
	f := New(noopLogger())
	if _, err := f.FetchOne(context.Background(), "AAPL"); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("未注册数据源时应返回 ErrSourceUnavailable, 实际 %v", err)
	}
}

func TestFetchOnePrimaryWins(t *testing.T) {
	primary := &fakeSource{name: "primary", record: usdRecord("175.84")}
	secondary := &fakeSource{name: "secondary", record: usdRecord("1")}

	f := New(noopLogger())
	f.Register(MarketUS, primary)
	f.Register(MarketUS, secondary)

	record, err := f.FetchOne(context.Background(), "AAPL")
	if err != nil {
		t.Fatalf("主数据源可用时不应报错: %v", err)
	}
	if !record.Price.Equal(decimal.RequireFromString("175.84")) {
		t.Fatalf("期望价格 175.84, 实际 %s", record.Price)
	}
	if secondary.calls != 0 {
		t.Fatal("主数据源成功时不应访问备用数据源")
	}
}

func TestFetchOneFallsBack(t *testing.T) {
	primary := &fakeSource{name: "primary", err: ErrSourceUnavailable}
	secondary := &fakeSource{name: "secondary", record: usdRecord("59000")}
	secondary.record.Source = "secondary"

	f := New(noopLogger())
	f.Register(MarketCrypto, primary)
	f.Register(MarketCrypto, secondary)

	record, err := f.FetchOne(context.Background(), "BTC-USD")
	if err != nil {
		t.Fatalf("备用数据源可用时不应报错: %v", err)
	}
	if record.Source != "secondary" {
		t.Fatalf("记录应标注备用数据源, 实际 %s", record.Source)
	}
	if primary.calls != 1 {
		t.Fatalf("主数据源应被尝试一次, 实际 %d", primary.calls)
	}
}

func TestFetchOneAllFail(t *testing.T) {
	f := New(noopLogger())
	f.Register(MarketUS, &fakeSource{name: "primary", err: ErrSourceUnavailable})
	f.Register(MarketUS, &fakeSource{name: "secondary", err: ErrSymbolNotFound})

	_, err := f.FetchOne(context.Background(), "AAPL")
	if err == nil {
		t.Fatal("全部数据源失败时应报错")
	}
	if !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("错误应保留最后一次失败原因, 实际 %v", err)
	}
}

func TestFetchOneRejectsCurrencyMismatch(t *testing.T) {
	wrong := usdRecord("380.20")
	wrong.Currency = "USD"

	f := New(noopLogger())
	f.Register(MarketHK, &fakeSource{name: "primary", record: wrong})

	_, err := f.FetchOne(context.Background(), "0700.HK")
	if !errors.Is(err, ErrCurrencyMismatch) {
		t.Fatalf("币种不符应返回 ErrCurrencyMismatch, 实际 %v", err)
	}
}

func TestFetchOneRejectsMalformedQuote(t *testing.T) {
	zero := PriceRecord{Price: decimal.Zero, Currency: "USD", FetchedAt: time.Now()}
	stale := usdRecord("100")
	stale.FetchedAt = time.Time{}

	f := New(noopLogger())
	f.Register(MarketUS, &fakeSource{name: "zero", record: zero})
	f.Register(MarketUS, &fakeSource{name: "no-ts", record: stale})

	if _, err := f.FetchOne(context.Background(), "AAPL"); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("畸形报价应被拒绝, 实际 %v", err)
	}
}

func TestFetchAllPartialFailure(t *testing.T) {
	f := New(noopLogger())
	f.Register(MarketUS, &fakeSource{name: "us", record: usdRecord("175.84")})
	// crypto 市场无数据源, BTC-USD 应失败而不影响其它符号。

	results := f.FetchAll(context.Background(), []string{"AAPL", "BTC-USD", "AAPL"})
	if len(results) != 2 {
		t.Fatalf("重复符号应去重, 实际 %d 条结果", len(results))
	}
	if !results["AAPL"].Ok() {
		t.Fatalf("AAPL 应成功: %v", results["AAPL"].Err)
	}
	if results["BTC-USD"].Ok() {
		t.Fatal("BTC-USD 应失败")
	}
}
