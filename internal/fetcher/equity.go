package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

const equityQueryPath = "/query"

// EquityOptions parameterise the US equity quote fetcher.
type EquityOptions struct {
	BaseURL   string
	APIKey    string
	Timeout   time.Duration
	UserAgent string
}

// Equity fetches US-listed quotes from an Alpha Vantage compatible API.
type Equity struct {
	opts    EquityOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewEquity constructs a US equity source.
func NewEquity(opts EquityOptions, logger zerolog.Logger) *Equity {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://www.alphavantage.co"
	}

	return &Equity{
		opts:    opts,
		logger:  logger.With().Str("component", "equity_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
	}
}

// Name identifies this source in price records and logs.
func (e *Equity) Name() string { return "equity" }

type globalQuoteResponse struct {
	Quote struct {
		Symbol string `json:"01. symbol"`
		Price  string `json:"05. price"`
	} `json:"Global Quote"`
	Note         string `json:"Note"`
	ErrorMessage string `json:"Error Message"`
}

// Fetch retrieves the latest quote for one US-listed symbol.
func (e *Equity) Fetch(ctx context.Context, symbol string) (PriceRecord, error) {
	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	if e.opts.APIKey != "" {
		params.Set("apikey", e.opts.APIKey)
	}

	endpoint := e.baseURL + equityQueryPath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PriceRecord{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(e.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := e.client.Do(req)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("%v: %w", err, ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("read body: %w", ErrSourceUnavailable)
	}

	if resp.StatusCode != http.StatusOK {
		return PriceRecord{}, fmt.Errorf("equity api status %d: %w", resp.StatusCode, ErrSourceUnavailable)
	}

	var quote globalQuoteResponse
	if err := json.Unmarshal(payload, &quote); err != nil {
		return PriceRecord{}, fmt.Errorf("decode quote: %w", ErrSourceUnavailable)
	}
	if quote.ErrorMessage != "" {
		return PriceRecord{}, fmt.Errorf("%s: %w", quote.ErrorMessage, ErrSymbolNotFound)
	}
	if quote.Note != "" {
		// 免费额度被限流时 API 返回 Note 字段。
		return PriceRecord{}, fmt.Errorf("rate limited: %w", ErrSourceUnavailable)
	}
	if quote.Quote.Price == "" {
		return PriceRecord{}, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	}

	price, err := decimal.NewFromString(quote.Quote.Price)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("parse price %q: %w", quote.Quote.Price, ErrSourceUnavailable)
	}

	name := quote.Quote.Symbol
	if name == "" {
		name = symbol
	}

	return PriceRecord{
		Symbol:    symbol,
		Name:      name,
		Price:     price,
		Currency:  "USD",
		Source:    e.Name(),
		FetchedAt: time.Now().UTC(),
	}, nil
}

var _ Source = (*Equity)(nil)
