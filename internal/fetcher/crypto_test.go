package fetcher

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func TestCryptoFetchSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.URL.Query().Get("ids"); got != "bitcoin" {
			t.Fatalf("ids 参数不正确: %s", got)
		}
		if got := r.URL.Query().Get("vs_currencies"); got != "usd" {
			t.Fatalf("vs_currencies 参数不正确: %s", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"bitcoin": {"usd": 59000}}`))
	}))
	defer srv.Close()

	src := NewCrypto(CryptoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())

	record, err := src.Fetch(context.Background(), "BTC-USD")
	if err != nil {
		t.Fatalf("成功响应不应报错: %v", err)
	}
	if !record.Price.Equal(decimal.NewFromInt(59000)) {
		t.Fatalf("期望价格 59000, 实际 %s", record.Price)
	}
	if record.Currency != "USD" {
		t.Fatalf("加密报价应为 USD, 实际 %s", record.Currency)
	}
	if record.Source != "coingecko" {
		t.Fatalf("source 字段不正确: %s", record.Source)
	}
}

func TestCryptoFetchUnmappedSymbol(t *testing.T) {
	src := NewCrypto(CryptoOptions{BaseURL: "http://localhost"}, noopLogger())
	if _, err := src.Fetch(context.Background(), "XYZ-USD"); !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("未映射符号应返回 ErrSymbolNotFound, 实际 %v", err)
	}
}

func TestCryptoFetchCoinMissingFromResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	src := NewCrypto(CryptoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := src.Fetch(context.Background(), "BTC-USD"); !errors.Is(err, ErrSymbolNotFound) {
		t.Fatalf("响应缺少 coin 应返回 ErrSymbolNotFound, 实际 %v", err)
	}
}

func TestCryptoFetchServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	src := NewCrypto(CryptoOptions{BaseURL: srv.URL, Timeout: time.Second}, noopLogger())
	if _, err := src.Fetch(context.Background(), "BTC-USD"); !errors.Is(err, ErrSourceUnavailable) {
		t.Fatalf("HTTP 429 应返回 ErrSourceUnavailable, 实际 %v", err)
	}
}

func TestCryptoSymbols(t *testing.T) {
	src := NewCrypto(CryptoOptions{CoinIDs: map[string]string{"sol-usd": "solana"}}, noopLogger())
	symbols := src.Symbols()
	if len(symbols) != 1 || symbols[0] != "SOL-USD" {
		t.Fatalf("Symbols 应返回大写符号列表, 实际 %v", symbols)
	}
}
