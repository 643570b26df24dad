package fetcher

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
)

var (
	// ErrSymbolNotFound means the upstream answered but does not know the
	// symbol. Distinct from ErrSourceUnavailable so callers can tell a bad
	// watchlist entry from a flaky upstream.
	ErrSymbolNotFound = errors.New("fetcher: symbol not found")
	// ErrSourceUnavailable means the upstream could not be reached or
	// answered with garbage.
	ErrSourceUnavailable = errors.New("fetcher: source unavailable")
	// ErrCurrencyMismatch means the live quote is denominated in a currency
	// other than the one the symbol's market implies. Treated as a fetch
	// failure, never silently converted.
	ErrCurrencyMismatch = errors.New("fetcher: currency mismatch")
	// ErrStalePrice means the source answered with a price too old to act on.
	ErrStalePrice = errors.New("fetcher: stale price")
)

// Market segments the watchlist by which upstream chain serves a symbol.
type Market string

const (
	MarketUS     Market = "us"
	MarketHK     Market = "hk"
	MarketCrypto Market = "crypto"
)

// PriceRecord is one normalized observation from an upstream source.
type PriceRecord struct {
	Symbol    string
	Name      string
	Price     decimal.Decimal
	Currency  string
	Source    string
	FetchedAt time.Time
}

// Result carries either a record or the error that kept the whole fallback
// chain from producing one. Per-symbol failures never abort a pass.
type Result struct {
	Record PriceRecord
	Err    error
}

// Ok reports whether the result holds a usable record.
func (r Result) Ok() bool { return r.Err == nil }

// Source is one upstream price API for one market segment.
type Source interface {
	Name() string
	Fetch(ctx context.Context, symbol string) (PriceRecord, error)
}

// Fetcher routes each symbol to the ordered source chain for its market and
// returns the first well-formed, freshly-timestamped price per symbol.
type Fetcher struct {
	chains        map[Market][]Source
	cryptoSymbols map[string]bool
	logger        zerolog.Logger
}

// New constructs an empty fetcher; register chains before use.
func New(logger zerolog.Logger) *Fetcher {
	return &Fetcher{
		chains:        make(map[Market][]Source),
		cryptoSymbols: make(map[string]bool),
		logger:        logger.With().Str("component", "fetcher").Logger(),
	}
}

// Register appends a source to a market's fallback chain. Order of
// registration is priority order.
func (f *Fetcher) Register(market Market, src Source) {
	f.chains[market] = append(f.chains[market], src)
}

// RegisterCryptoSymbol marks a symbol as crypto for market routing.
func (f *Fetcher) RegisterCryptoSymbol(symbol string) {
	f.cryptoSymbols[strings.ToUpper(symbol)] = true
}

// MarketOf classifies a symbol by its market tag.
func (f *Fetcher) MarketOf(symbol string) Market {
	upper := strings.ToUpper(symbol)
	switch {
	case strings.HasSuffix(upper, ".HK"):
		return MarketHK
	case f.cryptoSymbols[upper], strings.HasPrefix(upper, "BTC"), strings.HasSuffix(upper, "-USD"):
		return MarketCrypto
	default:
		return MarketUS
	}
}

// ExpectedCurrency returns the currency a symbol's market quotes in.
func (f *Fetcher) ExpectedCurrency(symbol string) string {
	if f.MarketOf(symbol) == MarketHK {
		return "HKD"
	}
	return "USD"
}

// FetchOne walks the symbol's fallback chain sequentially and returns the
// first valid record. All sources failing yields one error describing the
// last failure.
func (f *Fetcher) FetchOne(ctx context.Context, symbol string) (PriceRecord, error) {
	market := f.MarketOf(symbol)
	chain := f.chains[market]
	if len(chain) == 0 {
		return PriceRecord{}, fmt.Errorf("no sources registered for market %s: %w", market, ErrSourceUnavailable)
	}

	var lastErr error
	for _, src := range chain {
		if err := ctx.Err(); err != nil {
			if lastErr != nil {
				return PriceRecord{}, fmt.Errorf("%s: %w", symbol, lastErr)
			}
			return PriceRecord{}, err
		}

		record, err := src.Fetch(ctx, symbol)
		if err != nil {
			lastErr = fmt.Errorf("%s: %w", src.Name(), err)
			f.logger.Debug().Err(err).Str("symbol", symbol).Str("source", src.Name()).Msg("source failed, trying next")
			continue
		}

		if err := f.validate(symbol, record); err != nil {
			lastErr = fmt.Errorf("%s: %w", src.Name(), err)
			f.logger.Warn().Err(err).Str("symbol", symbol).Str("source", src.Name()).Msg("discarding malformed quote")
			continue
		}

		return record, nil
	}

	return PriceRecord{}, fmt.Errorf("%s: all sources failed: %w", symbol, lastErr)
}

// FetchAll fans out over distinct symbols concurrently; each symbol's chain
// stays sequential. The caller bounds the whole operation through ctx.
func (f *Fetcher) FetchAll(ctx context.Context, symbols []string) map[string]Result {
	distinct := dedupe(symbols)
	results := make(map[string]Result, len(distinct))

	var (
		mu sync.Mutex
		wg sync.WaitGroup
	)
	for _, symbol := range distinct {
		wg.Add(1)
		go func(symbol string) {
			defer wg.Done()
			record, err := f.FetchOne(ctx, symbol)
			mu.Lock()
			results[symbol] = Result{Record: record, Err: err}
			mu.Unlock()
		}(symbol)
	}
	wg.Wait()

	return results
}

func (f *Fetcher) validate(symbol string, record PriceRecord) error {
	if record.Price.Sign() <= 0 {
		return fmt.Errorf("non-positive price %s: %w", record.Price, ErrSourceUnavailable)
	}
	if record.FetchedAt.IsZero() {
		return fmt.Errorf("missing timestamp: %w", ErrSourceUnavailable)
	}
	if expected := f.ExpectedCurrency(symbol); !strings.EqualFold(record.Currency, expected) {
		return fmt.Errorf("got %s, expected %s: %w", record.Currency, expected, ErrCurrencyMismatch)
	}
	return nil
}

func dedupe(symbols []string) []string {
	seen := make(map[string]bool, len(symbols))
	distinct := make([]string, 0, len(symbols))
	for _, s := range symbols {
		if seen[s] {
			continue
		}
		seen[s] = true
		distinct = append(distinct, s)
	}
	return distinct
}
