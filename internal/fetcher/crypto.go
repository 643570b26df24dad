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

const cryptoSimplePricePath = "/api/v3/simple/price"

// CryptoOptions parameterise the CoinGecko style crypto fetcher.
type CryptoOptions struct {
	BaseURL   string
	Timeout   time.Duration
	UserAgent string
	// CoinIDs maps watchlist symbols to upstream coin identifiers,
	// e.g. BTC-USD -> bitcoin.
	CoinIDs map[string]string
}

// Crypto fetches spot prices from a CoinGecko compatible simple-price API.
type Crypto struct {
	opts    CryptoOptions
	logger  zerolog.Logger
	client  *http.Client
	baseURL string
	coinIDs map[string]string
}

// NewCrypto constructs a crypto source.
func NewCrypto(opts CryptoOptions, logger zerolog.Logger) *Crypto {
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://api.coingecko.com"
	}

	coinIDs := make(map[string]string, len(opts.CoinIDs))
	for symbol, id := range opts.CoinIDs {
		coinIDs[strings.ToUpper(symbol)] = id
	}
	if len(coinIDs) == 0 {
		coinIDs["BTC-USD"] = "bitcoin"
		coinIDs["BTC"] = "bitcoin"
		coinIDs["ETH-USD"] = "ethereum"
	}

	return &Crypto{
		opts:    opts,
		logger:  logger.With().Str("component", "crypto_source").Logger(),
		client:  &http.Client{Timeout: timeout},
		baseURL: baseURL,
		coinIDs: coinIDs,
	}
}

// Name identifies this source in price records and logs.
func (c *Crypto) Name() string { return "coingecko" }

// Symbols lists the watchlist symbols this source can serve.
func (c *Crypto) Symbols() []string {
	symbols := make([]string, 0, len(c.coinIDs))
	for symbol := range c.coinIDs {
		symbols = append(symbols, symbol)
	}
	return symbols
}

// Fetch retrieves the USD spot price for one crypto symbol.
func (c *Crypto) Fetch(ctx context.Context, symbol string) (PriceRecord, error) {
	coinID, ok := c.coinIDs[strings.ToUpper(symbol)]
	if !ok {
		return PriceRecord{}, fmt.Errorf("no coin id mapped for %s: %w", symbol, ErrSymbolNotFound)
	}

	params := url.Values{}
	params.Set("ids", coinID)
	params.Set("vs_currencies", "usd")

	endpoint := c.baseURL + cryptoSimplePricePath + "?" + params.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return PriceRecord{}, err
	}
	req.Header.Set("Accept", "application/json")
	if ua := strings.TrimSpace(c.opts.UserAgent); ua != "" {
		req.Header.Set("User-Agent", ua)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("%v: %w", err, ErrSourceUnavailable)
	}
	defer resp.Body.Close()

	payload, err := io.ReadAll(resp.Body)
	if err != nil {
		return PriceRecord{}, fmt.Errorf("read body: %w", ErrSourceUnavailable)
	}
	if resp.StatusCode != http.StatusOK {
		return PriceRecord{}, fmt.Errorf("crypto api status %d: %w", resp.StatusCode, ErrSourceUnavailable)
	}

	var prices map[string]map[string]json.Number
	if err := json.Unmarshal(payload, &prices); err != nil {
		return PriceRecord{}, fmt.Errorf("decode simple price: %w", ErrSourceUnavailable)
	}

	quote, ok := prices[coinID]
	if !ok {
		return PriceRecord{}, fmt.Errorf("coin %s missing from response: %w", coinID, ErrSymbolNotFound)
	}
	raw, ok := quote["usd"]
	if !ok {
		return PriceRecord{}, fmt.Errorf("usd quote missing for %s: %w", coinID, ErrSourceUnavailable)
	}

	price, err := decimal.NewFromString(raw.String())
	if err != nil {
		return PriceRecord{}, fmt.Errorf("parse price %q: %w", raw.String(), ErrSourceUnavailable)
	}

	return PriceRecord{
		Symbol:    symbol,
		Name:      coinID,
		Price:     price,
		Currency:  "USD",
		Source:    c.Name(),
		FetchedAt: time.Now().UTC(),
	}, nil
}

var _ Source = (*Crypto)(nil)
