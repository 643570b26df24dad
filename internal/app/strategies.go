package app

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zhongyi-byte/stock-monitor/internal/storage"
	"github.com/zhongyi-byte/stock-monitor/internal/strategy"
)

// AddStrategy validates and persists a new watch rule.
func (a *App) AddStrategy(ctx context.Context, opts AddOptions) error {
	target, err := decimal.NewFromString(opts.Target)
	if err != nil {
		return fmt.Errorf("invalid --target value %q: %w", opts.Target, err)
	}

	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	manager := strategy.NewManager(store, a.Logger)
	created, err := manager.Create(ctx, strategy.CreateInput{
		Name:        opts.Name,
		Symbol:      opts.Symbol,
		Condition:   storage.Condition(opts.Condition),
		TargetPrice: target,
		Action:      storage.Action(opts.Action),
	})
	if err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "strategy %d created: %s %s %s when price %s %s\n",
		created.ID, created.Name, created.Symbol, created.Action,
		created.Condition, created.TargetPrice.String())
	return nil
}

// DisableStrategy turns an active strategy off without triggering it.
func (a *App) DisableStrategy(ctx context.Context, id int64) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := store.DisableStrategy(ctx, id); err != nil {
		return err
	}

	fmt.Fprintf(os.Stdout, "strategy %d disabled\n", id)
	return nil
}

// ListStrategies prints strategies, optionally with live prices.
func (a *App) ListStrategies(ctx context.Context, opts ListOptions) error {
	store, err := a.openStore(ctx)
	if err != nil {
		return err
	}
	defer store.Close()

	filter := storage.StrategyFilter{
		Status: storage.Status(opts.Status),
		Symbol: opts.Symbol,
	}
	strategies, err := store.ListStrategies(ctx, filter)
	if err != nil {
		return err
	}
	if len(strategies) == 0 {
		fmt.Fprintln(os.Stdout, "no strategies found")
		return nil
	}

	currentPrices := map[string]string{}
	if opts.WithPrices {
		symbols := make([]string, 0, len(strategies))
		for _, st := range strategies {
			symbols = append(symbols, st.Symbol)
		}

		fetchCtx, cancel := context.WithTimeout(ctx, a.Config.Monitor.PassTimeout)
		results := a.newFetcher().FetchAll(fetchCtx, symbols)
		cancel()

		for symbol, result := range results {
			if result.Ok() {
				currentPrices[symbol] = result.Record.Currency + " " + result.Record.Price.StringFixed(2)
			} else {
				currentPrices[symbol] = "-"
			}
		}
	}

	writer := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	header := "ID\tName\tSymbol\tCondition\tTarget\tAction\tStatus\tTriggered At"
	if opts.WithPrices {
		header += "\tCurrent"
	}
	fmt.Fprintln(writer, header)

	for _, st := range strategies {
		triggeredAt := "-"
		if st.TriggeredAt != nil {
			triggeredAt = st.TriggeredAt.UTC().Format(time.RFC3339)
		}
		line := fmt.Sprintf("%d\t%s\t%s\t%s\t%s\t%s\t%s\t%s",
			st.ID, st.Name, st.Symbol, st.Condition,
			st.TargetPrice.StringFixed(2), st.Action, st.Status, triggeredAt)
		if opts.WithPrices {
			line += "\t" + currentPrices[st.Symbol]
		}
		fmt.Fprintln(writer, line)
	}

	return writer.Flush()
}
