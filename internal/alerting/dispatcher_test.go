package alerting

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"github.com/zhongyi-byte/stock-monitor/internal/fetcher"
	"github.com/zhongyi-byte/stock-monitor/internal/storage"
	"github.com/zhongyi-byte/stock-monitor/internal/strategy"
)

func testLogger() zerolog.Logger {
	return zerolog.Nop()
}

type fakeNotifier struct {
	sent []string
	err  error
}

func (n *fakeNotifier) Send(ctx context.Context, to, subject, body string) error {
	if n.err != nil {
		return n.err
	}
	n.sent = append(n.sent, body)
	return nil
}

func appleEvent() strategy.TriggerEvent {
	at := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)
	return strategy.TriggerEvent{
		Strategy: storage.Strategy{
			ID:          1,
			Name:        "apple dip",
			Symbol:      "AAPL",
			Condition:   storage.ConditionBelow,
			TargetPrice: decimal.RequireFromString("170.0"),
			Action:      storage.ActionNotify,
			Status:      storage.StatusTriggered,
			TriggeredAt: &at,
		},
		Price: fetcher.PriceRecord{
			Symbol:    "AAPL",
			Name:      "AAPL",
			Price:     decimal.RequireFromString("169.99"),
			Currency:  "USD",
			Source:    "equity",
			FetchedAt: at,
		},
		TriggeredAt: at,
	}
}

func TestRenderMessageContent(t *testing.T) {
	body := RenderMessage(appleEvent())

	for _, want := range []string{"AAPL", "169.99", "below 170.0", "equity"} {
		if !strings.Contains(body, want) {
			t.Fatalf("正文应包含 %q:\n%s", want, body)
		}
	}
}

func TestDispatchSuccess(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher(notifier, "ops@example.com", testLogger())

	results := d.Dispatch(context.Background(), []strategy.TriggerEvent{appleEvent()})
	if len(results) != 1 {
		t.Fatalf("每个事件应产生一条结果, 实际 %d", len(results))
	}
	if !results[0].Success {
		t.Fatalf("发送成功时 Success 应为 true: %s", results[0].Reason)
	}
	if results[0].StrategyID != 1 {
		t.Fatalf("strategy_id 不正确: %d", results[0].StrategyID)
	}
	if len(notifier.sent) != 1 {
		t.Fatalf("应发送一封邮件, 实际 %d", len(notifier.sent))
	}
}

func TestDispatchTransportFailure(t *testing.T) {
	notifier := &fakeNotifier{err: errors.New("smtp: connection refused")}
	d := NewDispatcher(notifier, "ops@example.com", testLogger())

	results := d.Dispatch(context.Background(), []strategy.TriggerEvent{appleEvent()})
	if len(results) != 1 {
		t.Fatalf("失败的投递也应产生结果, 实际 %d", len(results))
	}
	if results[0].Success {
		t.Fatal("发送失败时 Success 应为 false")
	}
	if !strings.Contains(results[0].Reason, "connection refused") {
		t.Fatalf("reason 应记录失败原因: %s", results[0].Reason)
	}
	if results[0].Message == "" {
		t.Fatal("失败的结果也应保留正文供审计")
	}
}

func TestDispatchUnconfiguredTransport(t *testing.T) {
	d := NewDispatcher(nil, "", testLogger())

	results := d.Dispatch(context.Background(), []strategy.TriggerEvent{appleEvent()})
	if len(results) != 1 {
		t.Fatalf("未配置邮件时也应产生结果, 实际 %d", len(results))
	}
	if results[0].Success {
		t.Fatal("未配置邮件时 Success 应为 false")
	}
	if results[0].Reason != "email transport not configured" {
		t.Fatalf("reason 不正确: %s", results[0].Reason)
	}
}

func TestDispatchOrderMatchesEvents(t *testing.T) {
	notifier := &fakeNotifier{}
	d := NewDispatcher(notifier, "ops@example.com", testLogger())

	second := appleEvent()
	second.Strategy.ID = 2
	results := d.Dispatch(context.Background(), []strategy.TriggerEvent{appleEvent(), second})
	if len(results) != 2 {
		t.Fatalf("应有两条结果, 实际 %d", len(results))
	}
	if results[0].StrategyID != 1 || results[1].StrategyID != 2 {
		t.Fatalf("结果顺序应与事件一致: %d, %d", results[0].StrategyID, results[1].StrategyID)
	}
}

func TestEmailNotifierRequiresHost(t *testing.T) {
	n := NewEmailNotifier(EmailOptions{}, testLogger())
	if err := n.Send(context.Background(), "ops@example.com", "s", "b"); err == nil {
		t.Fatal("未配置 SMTP host 应报错")
	}
}

func TestEmailNotifierHonorsContext(t *testing.T) {
	n := NewEmailNotifier(EmailOptions{Host: "localhost"}, testLogger())
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := n.Send(ctx, "ops@example.com", "s", "b"); !errors.Is(err, context.Canceled) {
		t.Fatalf("已取消的 ctx 应直接返回错误, 实际 %v", err)
	}
}
