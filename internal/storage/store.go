package storage

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrNotConfigured indicates the backing database was not initialised.
	ErrNotConfigured = errors.New("storage: backend not configured")
	// ErrStrategyNotFound indicates the referenced strategy does not exist.
	ErrStrategyNotFound = errors.New("storage: strategy not found")
)

// StrategyFilter narrows List results. Zero value lists everything.
type StrategyFilter struct {
	Status Status
	Symbol string
}

// StrategyStore owns the only copy of strategy lifecycle state.
type StrategyStore interface {
	CreateStrategy(ctx context.Context, s Strategy) (Strategy, error)
	GetStrategy(ctx context.Context, id int64) (Strategy, error)
	ListStrategies(ctx context.Context, filter StrategyFilter) ([]Strategy, error)
	ListActiveStrategies(ctx context.Context) ([]Strategy, error)
	DisableStrategy(ctx context.Context, id int64) error

	// TryTrigger atomically moves a strategy from active to triggered and
	// stamps triggered_at. It returns false when the strategy was already
	// triggered or disabled, which lets two overlapping passes race safely:
	// the loser simply fires nothing.
	TryTrigger(ctx context.Context, id int64, at time.Time) (bool, error)
}

// PriceStore appends fetched prices to history and reads them back for
// display and export.
type PriceStore interface {
	SavePricePoint(ctx context.Context, p PricePoint) error
	ListPricesBetween(ctx context.Context, symbol string, from, to time.Time) ([]PricePoint, error)
	ListRecentPrices(ctx context.Context, symbol string, limit int) ([]PricePoint, error)
}

// NotificationStore keeps the append-only delivery audit log.
type NotificationStore interface {
	AppendNotification(ctx context.Context, n NotificationRecord) (NotificationRecord, error)
	ListRecentNotifications(ctx context.Context, limit int) ([]NotificationRecord, error)
}

// Store is the full capability set a backend must provide. The engine only
// ever talks to the narrow interfaces above and never branches on which
// backend is behind them.
type Store interface {
	StrategyStore
	PriceStore
	NotificationStore
	Close() error
}
