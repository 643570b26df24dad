package storage

import (
	"time"

	"github.com/shopspring/decimal"
)

// Condition compares an observed price against a target.
type Condition string

const (
	ConditionBelow Condition = "below"
	ConditionAbove Condition = "above"
)

// Action labels what the user wants to do when a strategy fires.
type Action string

const (
	ActionNotify Action = "notify"
	ActionBuy    Action = "buy"
	ActionSell   Action = "sell"
)

// Status tracks the strategy lifecycle.
type Status string

const (
	StatusActive    Status = "active"
	StatusTriggered Status = "triggered"
	StatusDisabled  Status = "disabled"
)

// Strategy is a persisted watch rule: fire once when the condition against
// the target price first becomes true. TriggeredAt is non-nil iff Status is
// triggered; the transition is one-way and happens only through TryTrigger.
type Strategy struct {
	ID          int64
	Name        string
	Symbol      string
	Condition   Condition
	TargetPrice decimal.Decimal
	Action      Action
	Status      Status
	CreatedAt   time.Time
	TriggeredAt *time.Time
}

// PricePoint is one observed price appended to history after a successful
// fetch. Rows are never updated.
type PricePoint struct {
	ID        int64
	Symbol    string
	Price     decimal.Decimal
	Currency  string
	Source    string
	FetchedAt time.Time
}

// NotificationRecord is one delivery attempt, success or not. The log is
// append-only so a failed send stays distinguishable from "never attempted".
type NotificationRecord struct {
	ID         int64
	StrategyID int64
	Message    string
	SentAt     time.Time
	Success    bool
	Reason     string
}
