package strategy

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zhongyi-byte/stock-monitor/internal/fetcher"
	"github.com/zhongyi-byte/stock-monitor/internal/storage"
)

// TriggerEvent records one strategy newly transitioned to triggered during
// this pass, together with the price observation that fired it.
type TriggerEvent struct {
	Strategy    storage.Strategy
	Price       fetcher.PriceRecord
	TriggeredAt time.Time
}

// CreateInput carries user-supplied fields for a new strategy.
type CreateInput struct {
	Name        string
	Symbol      string
	Condition   storage.Condition
	TargetPrice decimal.Decimal
	Action      storage.Action
}

// Manager validates, creates, and evaluates strategies. All lifecycle
// mutation goes through the store's conditional transition, so evaluation
// stays correct even when two passes overlap.
type Manager struct {
	store  storage.StrategyStore
	logger zerolog.Logger
}

// NewManager constructs a strategy manager.
func NewManager(store storage.StrategyStore, logger zerolog.Logger) *Manager {
	return &Manager{
		store:  store,
		logger: logger.With().Str("component", "strategy_manager").Logger(),
	}
}

// Create validates the input and persists a new active strategy.
func (m *Manager) Create(ctx context.Context, input CreateInput) (storage.Strategy, error) {
	if strings.TrimSpace(input.Name) == "" {
		return storage.Strategy{}, fmt.Errorf("strategy name is required")
	}
	if strings.TrimSpace(input.Symbol) == "" {
		return storage.Strategy{}, fmt.Errorf("symbol is required")
	}
	switch input.Condition {
	case storage.ConditionBelow, storage.ConditionAbove:
	default:
		return storage.Strategy{}, fmt.Errorf("condition 必须是 below 或 above")
	}
	switch input.Action {
	case storage.ActionNotify, storage.ActionBuy, storage.ActionSell:
	default:
		return storage.Strategy{}, fmt.Errorf("action 必须是 notify, buy 或 sell")
	}
	if input.TargetPrice.Sign() <= 0 {
		return storage.Strategy{}, fmt.Errorf("target price must be greater than zero")
	}

	created, err := m.store.CreateStrategy(ctx, storage.Strategy{
		Name:        strings.TrimSpace(input.Name),
		Symbol:      strings.ToUpper(strings.TrimSpace(input.Symbol)),
		Condition:   input.Condition,
		TargetPrice: input.TargetPrice,
		Action:      input.Action,
		Status:      storage.StatusActive,
	})
	if err != nil {
		return storage.Strategy{}, err
	}

	m.logger.Info().Int64("id", created.ID).Str("symbol", created.Symbol).
		Str("condition", string(created.Condition)).
		Str("target", created.TargetPrice.String()).
		Msg("strategy created")
	return created, nil
}

// Evaluate checks each active strategy against this pass's prices and
// returns the events that won the trigger transition, in ascending id
// order. Symbols whose fetch failed are left untouched for the next pass.
// A storage failure aborts evaluation; everything already triggered stays
// triggered.
func (m *Manager) Evaluate(ctx context.Context, strategies []storage.Strategy, prices map[string]fetcher.Result) ([]TriggerEvent, error) {
	ordered := make([]storage.Strategy, len(strategies))
	copy(ordered, strategies)
	sort.Slice(ordered, func(i, j int) bool { return ordered[i].ID < ordered[j].ID })

	events := make([]TriggerEvent, 0)
	for _, st := range ordered {
		if st.Status != storage.StatusActive {
			continue
		}

		result, ok := prices[st.Symbol]
		if !ok || !result.Ok() {
			m.logger.Warn().Int64("id", st.ID).Str("symbol", st.Symbol).
				Err(result.Err).Msg("no usable price this pass, strategy stays active")
			continue
		}

		if !conditionMet(st.Condition, result.Record.Price, st.TargetPrice) {
			continue
		}

		at := time.Now().UTC()
		won, err := m.store.TryTrigger(ctx, st.ID, at)
		if err != nil {
			return nil, fmt.Errorf("trigger strategy %d: %w", st.ID, err)
		}
		if !won {
			// Another pass got there first; nothing fires from this one.
			m.logger.Debug().Int64("id", st.ID).Msg("trigger race lost, skipping")
			continue
		}

		st.Status = storage.StatusTriggered
		triggeredAt := at
		st.TriggeredAt = &triggeredAt

		m.logger.Info().Int64("id", st.ID).Str("name", st.Name).
			Str("symbol", st.Symbol).
			Str("price", result.Record.Price.String()).
			Str("target", st.TargetPrice.String()).
			Str("condition", string(st.Condition)).
			Msg("strategy triggered")

		events = append(events, TriggerEvent{
			Strategy:    st,
			Price:       result.Record,
			TriggeredAt: at,
		})
	}

	return events, nil
}

// conditionMet uses strict inequality: a price exactly at the target never
// fires.
func conditionMet(cond storage.Condition, price, target decimal.Decimal) bool {
	switch cond {
	case storage.ConditionBelow:
		return price.LessThan(target)
	case storage.ConditionAbove:
		return price.GreaterThan(target)
	default:
		return false
	}
}
