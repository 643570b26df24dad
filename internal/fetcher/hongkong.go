package fetcher

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var centsPerUnit = decimal.NewFromInt(100)

// HKEquityOptions parameterise the HK-listed quote fetcher.
type HKEquityOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
}

// HKEquity fetches HK-listed quotes. The upstream reports last price in
// HKD cents; Fetch normalizes to whole HKD so downstream comparisons work
// in the currency the strategy declared.
type HKEquity struct {
	opts    HKEquityOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
}

// NewHKEquity constructs an HK equity source.
func NewHKEquity(opts HKEquityOptions, logger zerolog.Logger) *HKEquity {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	return &HKEquity{
		opts:    opts,
		logger:  logger.With().Str("component", "hk_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: strings.TrimRight(opts.BaseURL, "/"),
	}
}

// Name identifies this source in price records and logs.
func (h *HKEquity) Name() string { return "hkex" }

type hkQuoteResponse struct {
	Symbol    string `json:"symbol"`
	Name      string `json:"name"`
	LastCents int64  `json:"last_cents"`
	Currency  string `json:"currency"`
}

// Fetch retrieves the latest quote for one HK-listed symbol.
func (h *HKEquity) Fetch(ctx context.Context, symbol string) (PriceRecord, error) {
	if h.baseURL == "" {
		return PriceRecord{}, fmt.Errorf("hk base url not configured: %w", ErrSourceUnavailable)
	}

	endpoint := h.baseURL + "/v1/quote/" + strings.ToUpper(symbol)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PriceRecord{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(h.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := h.client.Do(req)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("%v: %w", err, ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("read body: %w", ErrSourceUnavailable)
	}

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return PriceRecord{}, fmt.Errorf("%s: %w", symbol, ErrSymbolNotFound)
	case resp.StatusCode != http.StatusOK:
		return PriceRecord{}, fmt.Errorf("hk api status %d: %w", resp.StatusCode, ErrSourceUnavailable)
	}

	var quote hkQuoteResponse
	if err := json.Unmarshal(payload, &quote); err != nil {
		return PriceRecord{}, fmt.Errorf("decode quote: %w", ErrSourceUnavailable)
	}
	if quote.LastCents <= 0 {
		return PriceRecord{}, fmt.Errorf("missing last price: %w", ErrSourceUnavailable)
	}

	currency := quote.Currency
	if currency == "" {
		currency = "HKD"
	}

	name := quote.Name
	if name == "" {
		name = symbol
	}

	return PriceRecord{
		Symbol:    symbol,
		Name:      name,
		Price:     decimal.NewFromInt(quote.LastCents).Div(centsPerUnit),
		Currency:  currency,
		Source:    h.Name(),
		FetchedAt: time.Now().UTC(),
	}, nil
}

var _ Source = (*HKEquity)(nil)
