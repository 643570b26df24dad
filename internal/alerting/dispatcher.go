package alerting

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/zhongyi-byte/stock-monitor/internal/storage"
	"github.com/zhongyi-byte/stock-monitor/internal/strategy"
)

// DeliveryResult captures the outcome of one notification attempt. Every
// event produces exactly one result, success or not.
type DeliveryResult struct {
	StrategyID int64
	Message    string
	SentAt     time.Time
	Success    bool
	Reason     string
}

// Dispatcher renders and delivers one email per trigger event. It never
// retries within a pass: a failed delivery is recorded and left for the
// audit log, and the strategy stays triggered either way.
type Dispatcher struct {
	notifier  Notifier
	recipient string
	logger    zerolog.Logger
}

// NewDispatcher constructs a dispatcher bound to one recipient address.
func NewDispatcher(notifier Notifier, recipient string, logger zerolog.Logger) *Dispatcher {
	return &Dispatcher{
		notifier:  notifier,
		recipient: recipient,
		logger:    logger.With().Str("component", "dispatcher").Logger(),
	}
}

// Dispatch sends one message per event and returns one result per event in
// the same order.
func (d *Dispatcher) Dispatch(ctx context.Context, events []strategy.TriggerEvent) []DeliveryResult {
	results := make([]DeliveryResult, 0, len(events))
	for _, event := range events {
		subject := renderSubject(event)
		body := RenderMessage(event)

		result := DeliveryResult{
			StrategyID: event.Strategy.ID,
			Message:    body,
			SentAt:     time.Now().UTC(),
			Success:    true,
		}

		if d.notifier == nil || d.recipient == "" {
			result.Success = false
			result.Reason = "email transport not configured"
		} else if err := d.notifier.Send(ctx, d.recipient, subject, body); err != nil {
			result.Success = false
			result.Reason = err.Error()
			d.logger.Error().Err(err).Int64("strategy_id", event.Strategy.ID).Msg("通知发送失败")
		}

		results = append(results, result)
	}
	return results
}

func renderSubject(event strategy.TriggerEvent) string {
	return fmt.Sprintf("[Stock Monitor] %s - %s", actionLabel(event.Strategy.Action), event.Strategy.Name)
}

// RenderMessage formats the notification body for one trigger event.
func RenderMessage(event strategy.TriggerEvent) string {
	st := event.Strategy
	price := event.Price

	builder := strings.Builder{}
	builder.WriteString("[Stock Monitor Alert] " + actionLabel(st.Action) + "\n\n")
	builder.WriteString(fmt.Sprintf("Strategy: %s\n", st.Name))
	builder.WriteString(fmt.Sprintf("Asset: %s (%s)\n", price.Name, st.Symbol))
	builder.WriteString(fmt.Sprintf("Current price: %s %s\n", price.Currency, price.Price.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Condition: price %s %s\n", st.Condition, st.TargetPrice.StringFixed(2)))
	builder.WriteString(fmt.Sprintf("Action: %s\n", st.Action))
	builder.WriteString(fmt.Sprintf("Source: %s\n", price.Source))
	builder.WriteString(fmt.Sprintf("Triggered: %s UTC\n", event.TriggeredAt.UTC().Format(time.RFC3339)))
	builder.WriteString("\n请及时关注市场变化，注意风险控制。\n")
	return builder.String()
}

func actionLabel(action storage.Action) string {
	switch action {
	case storage.ActionBuy:
		return "买入提醒"
	case storage.ActionSell:
		return "卖出提醒"
	default:
		return "价格提醒"
	}
}
