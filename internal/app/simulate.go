package app

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zhongyi-byte/stock-monitor/internal/fetcher"
	"github.com/zhongyi-byte/stock-monitor/internal/monitor"
	"github.com/zhongyi-byte/stock-monitor/internal/strategy"
)

// Simulate 用给定的价格走一遍完整的评估流程，验证触发与通知链路。
func (a *App) Simulate(ctx context.Context, opts SimulateOptions) error {
	price, err := decimal.NewFromString(opts.Price)
	if err != nil {
		return fmt.Errorf("invalid --price value %q: %w", opts.Price, err)
	}
	// 策略符号统一大写存储, 注入价格也按同样规则匹配。
	opts.Symbol = strings.ToUpper(strings.TrimSpace(opts.Symbol))

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	static := &staticSource{symbol: opts.Symbol, price: price}
	f := fetcher.New(a.Logger)
	f.Register(fetcher.MarketUS, static)
	f.Register(fetcher.MarketHK, static)
	f.Register(fetcher.MarketCrypto, static)
	f.RegisterCryptoSymbol(opts.Symbol)

	engine := monitor.NewEngine(
		store,
		nil, // simulated prices never enter real history
		store,
		f,
		strategy.NewManager(store, a.Logger),
		a.newDispatcher(),
		monitor.Options{PassTimeout: a.Config.Monitor.PassTimeout},
		a.Logger,
	)

	summary, err := engine.RunPass(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "simulated %s @ %s: checked %d, triggered %d, notified %d, failed %d\n",
		opts.Symbol, price.String(), summary.Checked, summary.Triggered, summary.Notified, summary.Failed)
	return nil
}

// staticSource serves one fixed price for one symbol and not-found for the
// rest, so unrelated strategies stay untouched during a simulation.
type staticSource struct {
	symbol string
	price  decimal.Decimal
}

func (s *staticSource) Name() string { return "simulated" }

func (s *staticSource) Fetch(ctx context.Context, symbol string) (fetcher.PriceRecord, error) {
	if symbol != s.symbol {
		return fetcher.PriceRecord{}, fmt.Errorf("%s: %w", symbol, fetcher.ErrSymbolNotFound)
	}

	currency := "USD"
	if len(symbol) > 3 && symbol[len(symbol)-3:] == ".HK" {
		currency = "HKD"
	}

	return fetcher.PriceRecord{
		Symbol:    symbol,
		Name:      symbol,
		Price:     s.price,
		Currency:  currency,
		Source:    s.Name(),
		FetchedAt: time.Now().UTC(),
	}, nil
}

var _ fetcher.Source = (*staticSource)(nil)
