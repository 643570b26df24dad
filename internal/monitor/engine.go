package monitor

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhongyi-byte/stock-monitor/internal/alerting"
	"github.com/zhongyi-byte/stock-monitor/internal/fetcher"
	"github.com/zhongyi-byte/stock-monitor/internal/storage"
	"github.com/zhongyi-byte/stock-monitor/internal/strategy"
)

// PassSummary reports what one evaluation pass did, even on partial
// failure, so operators can see degraded fetches without the run failing
// silently.
type PassSummary struct {
	Checked   int
	Triggered int
	Notified  int
	Failed    int
}

// PriceFetcher resolves current prices for a set of symbols.
type PriceFetcher interface {
	FetchAll(ctx context.Context, symbols []string) map[string]fetcher.Result
}

// Evaluator decides which strategies fire for this pass's prices.
type Evaluator interface {
	Evaluate(ctx context.Context, strategies []storage.Strategy, prices map[string]fetcher.Result) ([]strategy.TriggerEvent, error)
}

// Dispatcher delivers notifications for newly triggered strategies.
type Dispatcher interface {
	Dispatch(ctx context.Context, events []strategy.TriggerEvent) []alerting.DeliveryResult
}

// Options tune engine behaviour.
type Options struct {
	// PassTimeout bounds one whole pass. Unresolved fetches past the
	// deadline become fetch errors and evaluation proceeds on partial data.
	PassTimeout time.Duration
}

// Engine runs one evaluation pass: list active strategies, fetch prices,
// evaluate, notify, record outcomes. It holds no state between passes;
// everything durable lives in the store.
type Engine struct {
	strategies    storage.StrategyStore
	prices        storage.PriceStore
	notifications storage.NotificationStore
	fetcher       PriceFetcher
	evaluator     Evaluator
	dispatcher    Dispatcher
	opts          Options
	logger        zerolog.Logger
}

// NewEngine wires the pass pipeline. prices may be nil to disable history.
func NewEngine(
	strategies storage.StrategyStore,
	prices storage.PriceStore,
	notifications storage.NotificationStore,
	priceFetcher PriceFetcher,
	evaluator Evaluator,
	dispatcher Dispatcher,
	opts Options,
	logger zerolog.Logger,
) *Engine {
	if opts.PassTimeout <= 0 {
		opts.PassTimeout = 30 * time.Second
	}
	return &Engine{
		strategies:    strategies,
		prices:        prices,
		notifications: notifications,
		fetcher:       priceFetcher,
		evaluator:     evaluator,
		dispatcher:    dispatcher,
		opts:          opts,
		logger:        logger.With().Str("component", "engine").Logger(),
	}
}

// RunPass executes one complete fetch -> evaluate -> notify cycle.
// Symbol-level and delivery-level failures degrade the summary; storage
// failures abort the pass.
func (e *Engine) RunPass(ctx context.Context) (PassSummary, error) {
	ctx, cancel := context.WithTimeout(ctx, e.opts.PassTimeout)
	defer cancel()

	started := time.Now()
	summary := PassSummary{}

	active, err := e.strategies.ListActiveStrategies(ctx)
	if err != nil {
		return summary, fmt.Errorf("list active strategies: %w", err)
	}
	summary.Checked = len(active)

	if len(active) == 0 {
		e.logger.Info().Msg("no active strategies, skipping pass")
		return summary, nil
	}

	symbols := make([]string, 0, len(active))
	for _, st := range active {
		symbols = append(symbols, st.Symbol)
	}

	results := e.fetcher.FetchAll(ctx, symbols)
	for symbol, result := range results {
		if !result.Ok() {
			summary.Failed++
			e.logger.Warn().Err(result.Err).Str("symbol", symbol).Msg("fetch failed this pass")
			continue
		}
		e.savePricePoint(ctx, result.Record)
	}

	events, err := e.evaluator.Evaluate(ctx, active, results)
	if err != nil {
		// Strategies that already won their transition stay triggered; the
		// notification gap is observable in the audit log.
		return summary, fmt.Errorf("evaluate strategies: %w", err)
	}
	summary.Triggered = len(events)

	if len(events) == 0 {
		e.logger.Info().Int("checked", summary.Checked).Int("failed", summary.Failed).
			Dur("elapsed", time.Since(started)).Msg("pass complete, nothing triggered")
		return summary, nil
	}

	deliveries := e.dispatcher.Dispatch(ctx, events)

	var recordErr error
	for _, delivery := range deliveries {
		if delivery.Success {
			summary.Notified++
		} else {
			summary.Failed++
		}

		if _, err := e.notifications.AppendNotification(ctx, storage.NotificationRecord{
			StrategyID: delivery.StrategyID,
			Message:    delivery.Message,
			SentAt:     delivery.SentAt,
			Success:    delivery.Success,
			Reason:     delivery.Reason,
		}); err != nil {
			e.logger.Error().Err(err).Int64("strategy_id", delivery.StrategyID).Msg("failed to record notification")
			if recordErr == nil {
				recordErr = fmt.Errorf("record notification: %w", err)
			}
		}
	}

	e.logger.Info().Int("checked", summary.Checked).
		Int("triggered", summary.Triggered).
		Int("notified", summary.Notified).
		Int("failed", summary.Failed).
		Dur("elapsed", time.Since(started)).
		Msg("pass complete")

	return summary, recordErr
}

func (e *Engine) savePricePoint(ctx context.Context, record fetcher.PriceRecord) {
	if e.prices == nil {
		return
	}
	point := storage.PricePoint{
		Symbol:    record.Symbol,
		Price:     record.Price,
		Currency:  record.Currency,
		Source:    record.Source,
		FetchedAt: record.FetchedAt,
	}
	if err := e.prices.SavePricePoint(ctx, point); err != nil {
		e.logger.Error().Err(err).Str("symbol", record.Symbol).Msg("failed to save price history")
	}
}
