package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/zhongyi-byte/stock-monitor/internal/storage"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := Open(filepath.Join(t.TempDir(), "monitor.db"))
	if err != nil {
		t.Fatalf("打开 sqlite 失败: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func seedStrategy(t *testing.T, store *Store) storage.Strategy {
	t.Helper()
	st, err := store.CreateStrategy(context.Background(), storage.Strategy{
		Name:        "apple dip",
		Symbol:      "AAPL",
		Condition:   storage.ConditionBelow,
		TargetPrice: decimal.RequireFromString("170.0"),
		Action:      storage.ActionNotify,
		Status:      storage.StatusActive,
	})
	if err != nil {
		t.Fatalf("创建策略失败: %v", err)
	}
	return st
}

func TestOpenRequiresPath(t *testing.T) {
	if _, err := Open(""); err == nil {
		t.Fatal("空路径应报错")
	}
}

func TestStrategyRoundTrip(t *testing.T) {
	store := openTestStore(t)
	created := seedStrategy(t, store)

	loaded, err := store.GetStrategy(context.Background(), created.ID)
	if err != nil {
		t.Fatalf("读取策略失败: %v", err)
	}
	if loaded.Symbol != "AAPL" || loaded.Condition != storage.ConditionBelow {
		t.Fatalf("读取的字段不正确: %+v", loaded)
	}
	if !loaded.TargetPrice.Equal(decimal.RequireFromString("170.0")) {
		t.Fatalf("目标价应无精度损失, 实际 %s", loaded.TargetPrice)
	}
	if loaded.Status != storage.StatusActive {
		t.Fatalf("新策略应为 active, 实际 %s", loaded.Status)
	}
	if loaded.TriggeredAt != nil {
		t.Fatal("未触发时 triggered_at 应为空")
	}
}

func TestGetStrategyNotFound(t *testing.T) {
	store := openTestStore(t)
	if _, err := store.GetStrategy(context.Background(), 42); !errors.Is(err, storage.ErrStrategyNotFound) {
		t.Fatalf("不存在的 id 应返回 ErrStrategyNotFound, 实际 %v", err)
	}
}

func TestListStrategiesFilter(t *testing.T) {
	store := openTestStore(t)
	first := seedStrategy(t, store)
	second := seedStrategy(t, store)

	if _, err := store.TryTrigger(context.Background(), second.ID, time.Now()); err != nil {
		t.Fatalf("触发失败: %v", err)
	}

	active, err := store.ListStrategies(context.Background(), storage.StrategyFilter{Status: storage.StatusActive})
	if err != nil {
		t.Fatalf("过滤失败: %v", err)
	}
	if len(active) != 1 || active[0].ID != first.ID {
		t.Fatalf("status 过滤结果不正确: %+v", active)
	}

	bySymbol, err := store.ListStrategies(context.Background(), storage.StrategyFilter{Symbol: "AAPL"})
	if err != nil {
		t.Fatalf("过滤失败: %v", err)
	}
	if len(bySymbol) != 2 {
		t.Fatalf("symbol 过滤结果不正确: %d", len(bySymbol))
	}
}

func TestTryTriggerWinsOnce(t *testing.T) {
	store := openTestStore(t)
	st := seedStrategy(t, store)
	ctx := context.Background()
	at := time.Now().UTC().Truncate(time.Second)

	won, err := store.TryTrigger(ctx, st.ID, at)
	if err != nil {
		t.Fatalf("触发失败: %v", err)
	}
	if !won {
		t.Fatal("首次转换应成功")
	}

	// 第二次转换必须失败, 这是一次性触发语义的根基。
	won, err = store.TryTrigger(ctx, st.ID, at.Add(time.Minute))
	if err != nil {
		t.Fatalf("二次触发不应报错: %v", err)
	}
	if won {
		t.Fatal("已触发的策略不应再次转换")
	}

	loaded, err := store.GetStrategy(ctx, st.ID)
	if err != nil {
		t.Fatalf("读取策略失败: %v", err)
	}
	if loaded.Status != storage.StatusTriggered {
		t.Fatalf("状态应为 triggered, 实际 %s", loaded.Status)
	}
	if loaded.TriggeredAt == nil || !loaded.TriggeredAt.Equal(at) {
		t.Fatalf("triggered_at 应保留首次触发时间: %v", loaded.TriggeredAt)
	}
}

func TestTryTriggerDisabledStrategy(t *testing.T) {
	store := openTestStore(t)
	st := seedStrategy(t, store)
	ctx := context.Background()

	if err := store.DisableStrategy(ctx, st.ID); err != nil {
		t.Fatalf("禁用失败: %v", err)
	}
	won, err := store.TryTrigger(ctx, st.ID, time.Now())
	if err != nil {
		t.Fatalf("触发不应报错: %v", err)
	}
	if won {
		t.Fatal("禁用的策略不应被触发")
	}
}

func TestPriceHistoryWindow(t *testing.T) {
	store := openTestStore(t)
	ctx := context.Background()
	base := time.Date(2026, 8, 31, 9, 0, 0, 0, time.UTC)

	for i := 0; i < 3; i++ {
		err := store.SavePricePoint(ctx, storage.PricePoint{
			Symbol:    "AAPL",
			Price:     decimal.NewFromInt(int64(170 + i)),
			Currency:  "USD",
			Source:    "equity",
			FetchedAt: base.Add(time.Duration(i) * time.Hour),
		})
		if err != nil {
			t.Fatalf("写入价格点失败: %v", err)
		}
	}

	window, err := store.ListPricesBetween(ctx, "AAPL", base, base.Add(2*time.Hour))
	if err != nil {
		t.Fatalf("读取窗口失败: %v", err)
	}
	// 窗口为左闭右开。
	if len(window) != 2 {
		t.Fatalf("窗口应含 2 个点, 实际 %d", len(window))
	}
	if !window[0].FetchedAt.Before(window[1].FetchedAt) {
		t.Fatal("窗口结果应按时间升序")
	}

	recent, err := store.ListRecentPrices(ctx, "AAPL", 2)
	if err != nil {
		t.Fatalf("读取最近价格失败: %v", err)
	}
	if len(recent) != 2 {
		t.Fatalf("应返回 2 个点, 实际 %d", len(recent))
	}
	if !recent[0].Price.Equal(decimal.NewFromInt(172)) {
		t.Fatalf("最近价格应为最新点, 实际 %s", recent[0].Price)
	}
}

func TestNotificationAuditLog(t *testing.T) {
	store := openTestStore(t)
	st := seedStrategy(t, store)
	ctx := context.Background()

	ok, err := store.AppendNotification(ctx, storage.NotificationRecord{
		StrategyID: st.ID,
		Message:    "triggered",
		SentAt:     time.Now().UTC(),
		Success:    true,
	})
	if err != nil {
		t.Fatalf("记录通知失败: %v", err)
	}
	if ok.ID == 0 {
		t.Fatal("通知应分配 id")
	}

	failed, err := store.AppendNotification(ctx, storage.NotificationRecord{
		StrategyID: st.ID,
		Message:    "triggered",
		SentAt:     time.Now().UTC().Add(time.Second),
		Success:    false,
		Reason:     "smtp: connection refused",
	})
	if err != nil {
		t.Fatalf("失败的投递也应可记录: %v", err)
	}
	if failed.Success {
		t.Fatal("失败标记不应被改写")
	}

	records, err := store.ListRecentNotifications(ctx, 10)
	if err != nil {
		t.Fatalf("读取通知失败: %v", err)
	}
	if len(records) != 2 {
		t.Fatalf("应有 2 条记录, 实际 %d", len(records))
	}
	// 最新的在前。
	if records[0].Success || records[0].Reason == "" {
		t.Fatalf("排序不正确: %+v", records[0])
	}
}
