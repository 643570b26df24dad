package sqlite

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/zhongyi-byte/stock-monitor/internal/storage"
)

// Store implements storage.Store over a local SQLite file via gorm. It
// exists so the monitor can run without a PostgreSQL instance; the engine
// sees exactly the same capability surface as the remote backend.
type Store struct {
	db *gorm.DB
}

type strategyRow struct {
	ID            int64  `gorm:"primaryKey"`
	Name          string `gorm:"not null"`
	Symbol        string `gorm:"not null;index"`
	ConditionType string `gorm:"not null"`
	TargetPrice   string `gorm:"not null"`
	Action        string `gorm:"not null"`
	Status        string `gorm:"not null;default:active;index"`
	CreatedAt     time.Time
	TriggeredAt   *time.Time
}

func (strategyRow) TableName() string { return "strategies" }

type priceRow struct {
	ID        int64  `gorm:"primaryKey"`
	Symbol    string `gorm:"not null;index:idx_price_symbol_ts"`
	Price     string `gorm:"not null"`
	Currency  string `gorm:"not null;default:USD"`
	Source    string
	Timestamp time.Time `gorm:"index:idx_price_symbol_ts"`
}

func (priceRow) TableName() string { return "price_data" }

type notificationRow struct {
	ID         int64 `gorm:"primaryKey"`
	StrategyID int64 `gorm:"index"`
	Message    string
	SentAt     time.Time `gorm:"index"`
	Success    bool
	Reason     string
}

func (notificationRow) TableName() string { return "notifications" }

// Open creates or opens the SQLite database at path and migrates the schema.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("database.path is required")
	}

	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}

	if err := db.AutoMigrate(&strategyRow{}, &priceRow{}, &notificationRow{}); err != nil {
		return nil, fmt.Errorf("migrate sqlite schema: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func (s *Store) conn(ctx context.Context) (*gorm.DB, error) {
	if s == nil || s.db == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.db.WithContext(ctx), nil
}

// CreateStrategy persists a new strategy and returns the stored row.
func (s *Store) CreateStrategy(ctx context.Context, st storage.Strategy) (storage.Strategy, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return storage.Strategy{}, err
	}

	row := toStrategyRow(st)
	if row.CreatedAt.IsZero() {
		row.CreatedAt = time.Now().UTC()
	}
	if row.Status == "" {
		row.Status = string(storage.StatusActive)
	}

	if err := db.Create(&row).Error; err != nil {
		return storage.Strategy{}, fmt.Errorf("insert strategy: %w", err)
	}
	return fromStrategyRow(row)
}

// GetStrategy loads one strategy by id.
func (s *Store) GetStrategy(ctx context.Context, id int64) (storage.Strategy, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return storage.Strategy{}, err
	}

	var row strategyRow
	if err := db.First(&row, id).Error; err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return storage.Strategy{}, storage.ErrStrategyNotFound
		}
		return storage.Strategy{}, fmt.Errorf("get strategy: %w", err)
	}
	return fromStrategyRow(row)
}

// ListStrategies lists strategies matching the filter, ordered by id.
func (s *Store) ListStrategies(ctx context.Context, filter storage.StrategyFilter) ([]storage.Strategy, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	query := db.Model(&strategyRow{}).Order("id")
	if filter.Status != "" {
		query = query.Where("status = ?", string(filter.Status))
	}
	if filter.Symbol != "" {
		query = query.Where("symbol = ?", filter.Symbol)
	}

	var rows []strategyRow
	if err := query.Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list strategies: %w", err)
	}
	return fromStrategyRows(rows)
}

// ListActiveStrategies lists strategies still awaiting their trigger.
func (s *Store) ListActiveStrategies(ctx context.Context) ([]storage.Strategy, error) {
	return s.ListStrategies(ctx, storage.StrategyFilter{Status: storage.StatusActive})
}

// DisableStrategy turns an active strategy off without triggering it.
func (s *Store) DisableStrategy(ctx context.Context, id int64) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	tx := db.Model(&strategyRow{}).
		Where("id = ? AND status = ?", id, string(storage.StatusActive)).
		Update("status", string(storage.StatusDisabled))
	if tx.Error != nil {
		return fmt.Errorf("disable strategy: %w", tx.Error)
	}
	if tx.RowsAffected == 0 {
		return storage.ErrStrategyNotFound
	}
	return nil
}

// TryTrigger performs the conditional active->triggered transition. The
// WHERE clause doubles as the compare half of the compare-and-swap.
func (s *Store) TryTrigger(ctx context.Context, id int64, at time.Time) (bool, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return false, err
	}

	at = at.UTC()
	tx := db.Model(&strategyRow{}).
		Where("id = ? AND status = ?", id, string(storage.StatusActive)).
		Updates(map[string]interface{}{
			"status":       string(storage.StatusTriggered),
			"triggered_at": at,
		})
	if tx.Error != nil {
		return false, fmt.Errorf("trigger strategy: %w", tx.Error)
	}
	return tx.RowsAffected == 1, nil
}

// SavePricePoint appends one observation to price history.
func (s *Store) SavePricePoint(ctx context.Context, p storage.PricePoint) error {
	db, err := s.conn(ctx)
	if err != nil {
		return err
	}

	row := priceRow{
		Symbol:    p.Symbol,
		Price:     p.Price.String(),
		Currency:  p.Currency,
		Source:    p.Source,
		Timestamp: p.FetchedAt,
	}
	if row.Timestamp.IsZero() {
		row.Timestamp = time.Now().UTC()
	}

	if err := db.Create(&row).Error; err != nil {
		return fmt.Errorf("save price point: %w", err)
	}
	return nil
}

// ListPricesBetween lists history rows for one symbol within a window.
func (s *Store) ListPricesBetween(ctx context.Context, symbol string, from, to time.Time) ([]storage.PricePoint, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []priceRow
	if err := db.Where("symbol = ? AND timestamp >= ? AND timestamp < ?", symbol, from, to).
		Order("timestamp").Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list prices between: %w", err)
	}
	return fromPriceRows(rows)
}

// ListRecentPrices lists the latest history rows for one symbol.
func (s *Store) ListRecentPrices(ctx context.Context, symbol string, limit int) ([]storage.PricePoint, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []priceRow
	if err := db.Where("symbol = ?", symbol).
		Order("timestamp DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list recent prices: %w", err)
	}
	return fromPriceRows(rows)
}

// AppendNotification records one delivery attempt.
func (s *Store) AppendNotification(ctx context.Context, n storage.NotificationRecord) (storage.NotificationRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return storage.NotificationRecord{}, err
	}

	row := notificationRow{
		StrategyID: n.StrategyID,
		Message:    n.Message,
		SentAt:     n.SentAt,
		Success:    n.Success,
		Reason:     n.Reason,
	}
	if row.SentAt.IsZero() {
		row.SentAt = time.Now().UTC()
	}

	if err := db.Create(&row).Error; err != nil {
		return storage.NotificationRecord{}, fmt.Errorf("append notification: %w", err)
	}

	n.ID = row.ID
	n.SentAt = row.SentAt
	return n, nil
}

// ListRecentNotifications lists the latest audit rows.
func (s *Store) ListRecentNotifications(ctx context.Context, limit int) ([]storage.NotificationRecord, error) {
	db, err := s.conn(ctx)
	if err != nil {
		return nil, err
	}

	var rows []notificationRow
	if err := db.Order("sent_at DESC, id DESC").Limit(limit).Find(&rows).Error; err != nil {
		return nil, fmt.Errorf("list recent notifications: %w", err)
	}

	records := make([]storage.NotificationRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, storage.NotificationRecord{
			ID:         row.ID,
			StrategyID: row.StrategyID,
			Message:    row.Message,
			SentAt:     row.SentAt,
			Success:    row.Success,
			Reason:     row.Reason,
		})
	}
	return records, nil
}

func toStrategyRow(st storage.Strategy) strategyRow {
	return strategyRow{
		ID:            st.ID,
		Name:          st.Name,
		Symbol:        st.Symbol,
		ConditionType: string(st.Condition),
		TargetPrice:   st.TargetPrice.String(),
		Action:        string(st.Action),
		Status:        string(st.Status),
		CreatedAt:     st.CreatedAt,
		TriggeredAt:   st.TriggeredAt,
	}
}

func fromStrategyRow(row strategyRow) (storage.Strategy, error) {
	target, err := decimal.NewFromString(row.TargetPrice)
	if err != nil {
		return storage.Strategy{}, fmt.Errorf("parse target price: %w", err)
	}
	return storage.Strategy{
		ID:          row.ID,
		Name:        row.Name,
		Symbol:      row.Symbol,
		Condition:   storage.Condition(row.ConditionType),
		TargetPrice: target,
		Action:      storage.Action(row.Action),
		Status:      storage.Status(row.Status),
		CreatedAt:   row.CreatedAt,
		TriggeredAt: row.TriggeredAt,
	}, nil
}

func fromStrategyRows(rows []strategyRow) ([]storage.Strategy, error) {
	strategies := make([]storage.Strategy, 0, len(rows))
	for _, row := range rows {
		st, err := fromStrategyRow(row)
		if err != nil {
			return nil, err
		}
		strategies = append(strategies, st)
	}
	return strategies, nil
}

func fromPriceRows(rows []priceRow) ([]storage.PricePoint, error) {
	points := make([]storage.PricePoint, 0, len(rows))
	for _, row := range rows {
		price, err := decimal.NewFromString(row.Price)
		if err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		points = append(points, storage.PricePoint{
			ID:        row.ID,
			Symbol:    row.Symbol,
			Price:     price,
			Currency:  row.Currency,
			Source:    row.Source,
			FetchedAt: row.Timestamp,
		})
	}
	return points, nil
}

var _ storage.Store = (*Store)(nil)
