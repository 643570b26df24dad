package app

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhongyi-byte/stock-monitor/internal/alerting"
	"github.com/zhongyi-byte/stock-monitor/internal/config"
	"github.com/zhongyi-byte/stock-monitor/internal/fetcher"
	"github.com/zhongyi-byte/stock-monitor/internal/monitor"
	"github.com/zhongyi-byte/stock-monitor/internal/scheduler"
	"github.com/zhongyi-byte/stock-monitor/internal/storage"
	"github.com/zhongyi-byte/stock-monitor/internal/storage/postgres"
	"github.com/zhongyi-byte/stock-monitor/internal/storage/sqlite"
	"github.com/zhongyi-byte/stock-monitor/internal/strategy"
)

// App aggregates configuration and shared dependencies for the CLI commands.
type App struct {
	Config *config.Config
	Logger zerolog.Logger
}

// NewApp constructs a new application handle.
func NewApp(cfg *config.Config, logger zerolog.Logger) *App {
	return &App{Config: cfg, Logger: logger.With().Str("component", "app").Logger()}
}

// openStore opens the configured storage backend. Callers close it.
func (a *App) openStore(ctx context.Context) (storage.Store, error) {
	switch a.Config.Database.Backend {
	case "postgres":
		return postgres.Open(ctx, postgres.Config{
			DSN:             a.Config.Database.DSN,
			MaxOpenConns:    a.Config.Database.MaxOpenConns,
			MaxIdleConns:    a.Config.Database.MaxIdleConns,
			ConnMaxLifetime: a.Config.Database.ConnMaxLifetime,
		})
	case "sqlite":
		return sqlite.Open(a.Config.Database.Path)
	default:
		return nil, fmt.Errorf("unsupported database backend %q", a.Config.Database.Backend)
	}
}

// newFetcher assembles the per-market fallback chains.
func (a *App) newFetcher() *fetcher.Fetcher {
	sources := a.Config.Sources
	f := fetcher.New(a.Logger)

	f.Register(fetcher.MarketUS, fetcher.NewEquity(fetcher.EquityOptions{
		BaseURL:   sources.Equity.BaseURL,
		APIKey:    sources.Equity.APIKey,
		Timeout:   sources.RequestTimeout,
		UserAgent: sources.UserAgent,
	}, a.Logger))

	if sources.HongKong.BaseURL != "" {
		f.Register(fetcher.MarketHK, fetcher.NewHKEquity(fetcher.HKEquityOptions{
			BaseURL:   sources.HongKong.BaseURL,
			Timeout:   sources.RequestTimeout,
			UserAgent: sources.UserAgent,
		}, a.Logger))
	}

	crypto := fetcher.NewCrypto(fetcher.CryptoOptions{
		BaseURL:   sources.Crypto.BaseURL,
		Timeout:   sources.RequestTimeout,
		UserAgent: sources.UserAgent,
		CoinIDs:   sources.Crypto.CoinIDs,
	}, a.Logger)
	f.Register(fetcher.MarketCrypto, crypto)
	for _, symbol := range crypto.Symbols() {
		f.RegisterCryptoSymbol(symbol)
	}

	// 链上喂价作为加密行情的兜底数据源。
	if sources.Oracle.Enabled {
		f.Register(fetcher.MarketCrypto, fetcher.NewChainOracle(fetcher.ChainOracleOptions{
			RPCURL:   sources.Oracle.RPCURL,
			Feeds:    sources.Oracle.Feeds,
			Decimals: sources.Oracle.Decimals,
			MaxAge:   sources.Oracle.MaxAge,
			Timeout:  sources.RequestTimeout,
		}, a.Logger))
		for symbol := range sources.Oracle.Feeds {
			f.RegisterCryptoSymbol(symbol)
		}
	}

	return f
}

func (a *App) newDispatcher() *alerting.Dispatcher {
	var notifier alerting.Notifier
	if a.Config.Alerting.Enabled {
		smtp := a.Config.Alerting.SMTP
		notifier = alerting.NewEmailNotifier(alerting.EmailOptions{
			Host:     smtp.Host,
			Port:     smtp.Port,
			Username: smtp.Username,
			Password: smtp.Password,
			From:     smtp.From,
			Timeout:  smtp.Timeout,
		}, a.Logger)
	}
	return alerting.NewDispatcher(notifier, a.Config.Alerting.Recipient, a.Logger)
}

func (a *App) newEngine(store storage.Store) *monitor.Engine {
	var priceStore storage.PriceStore
	if a.Config.Monitor.HistoryEnabled {
		priceStore = store
	}

	manager := strategy.NewManager(store, a.Logger)

	return monitor.NewEngine(
		store,
		priceStore,
		store,
		a.newFetcher(),
		manager,
		a.newDispatcher(),
		monitor.Options{PassTimeout: a.Config.Monitor.PassTimeout},
		a.Logger,
	)
}

// Run executes the long-running scheduled monitoring loop.
func (a *App) Run(ctx context.Context) error {
	ctx, cancel := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	sched, err := scheduler.New(scheduler.Options{
		At:           a.Config.Scheduler.At,
		Interval:     a.Config.Scheduler.Interval,
		StartupDelay: a.Config.Scheduler.StartupDelay,
	}, a.Logger)
	if err != nil {
		return err
	}

	engine := a.newEngine(store)

	a.Logger.Info().Str("at", a.Config.Scheduler.At).
		Dur("interval", a.Config.Scheduler.Interval).
		Msg("starting monitoring service")

	err = sched.Run(ctx, func(ctx context.Context) error {
		_, err := engine.RunPass(ctx)
		return err
	})
	if err != nil && !errors.Is(err, context.Canceled) {
		a.Logger.Error().Err(err).Msg("service terminated with error")
		return err
	}

	a.Logger.Info().Msg("monitoring service stopped")
	return nil
}

// CheckOnce runs a single evaluation pass and prints the summary.
func (a *App) CheckOnce(ctx context.Context) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	summary, err := a.newEngine(store).RunPass(ctx)
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "checked: %d, triggered: %d, notified: %d, failed: %d\n",
		summary.Checked, summary.Triggered, summary.Notified, summary.Failed)
	return nil
}

// AddOptions carry the add command's flags.
type AddOptions struct {
	Name      string
	Symbol    string
	Condition string
	Target    string
	Action    string
}

// ListOptions configure the list command.
type ListOptions struct {
	Status     string
	Symbol     string
	WithPrices bool
}

// NotificationsOptions configure the notifications command.
type NotificationsOptions struct {
	Limit int
}

// ExportOptions hold parameters for exporting price history.
type ExportOptions struct {
	Symbol    string
	From      *time.Time
	To        *time.Time
	PNGPath   string
	CSVPath   string
	MaxPoints int
}

// SimulateOptions inject a synthetic price into a full pass.
type SimulateOptions struct {
	Symbol string
	Price  string
}
