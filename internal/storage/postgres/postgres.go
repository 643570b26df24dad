package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/zhongyi-byte/stock-monitor/internal/storage"
)

const (
	createTablesSQL = `CREATE TABLE IF NOT EXISTS strategies (
        id BIGSERIAL PRIMARY KEY,
        name TEXT NOT NULL,
        symbol TEXT NOT NULL,
        condition_type TEXT NOT NULL,
        target_price NUMERIC NOT NULL,
        action TEXT NOT NULL,
        status TEXT NOT NULL DEFAULT 'active',
        created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        triggered_at TIMESTAMPTZ
    );
    CREATE TABLE IF NOT EXISTS price_data (
        id BIGSERIAL PRIMARY KEY,
        symbol TEXT NOT NULL,
        price NUMERIC NOT NULL,
        currency TEXT NOT NULL DEFAULT 'USD',
        source TEXT NOT NULL DEFAULT '',
        timestamp TIMESTAMPTZ NOT NULL DEFAULT now()
    );
    CREATE TABLE IF NOT EXISTS notifications (
        id BIGSERIAL PRIMARY KEY,
        strategy_id BIGINT REFERENCES strategies (id),
        message TEXT NOT NULL,
        sent_at TIMESTAMPTZ NOT NULL DEFAULT now(),
        success BOOLEAN NOT NULL DEFAULT TRUE,
        reason TEXT NOT NULL DEFAULT ''
    );
    CREATE INDEX IF NOT EXISTS idx_price_data_symbol_ts ON price_data (symbol, timestamp);`

	insertStrategySQL = `INSERT INTO strategies (name, symbol, condition_type, target_price, action, status, created_at)
    VALUES ($1,$2,$3,$4,$5,$6,$7)
    RETURNING id, name, symbol, condition_type, target_price, action, status, created_at, triggered_at;`

	getStrategySQL = `SELECT id, name, symbol, condition_type, target_price, action, status, created_at, triggered_at
    FROM strategies WHERE id = $1;`

	listActiveStrategiesSQL = `SELECT id, name, symbol, condition_type, target_price, action, status, created_at, triggered_at
    FROM strategies WHERE status = 'active' ORDER BY id;`

	disableStrategySQL = `UPDATE strategies SET status = 'disabled' WHERE id = $1 AND status = 'active';`

	// The trigger transition is a compare-and-swap: it only lands when the
	// row is still active, so overlapping passes can never both win.
	tryTriggerSQL = `UPDATE strategies
    SET status = 'triggered', triggered_at = $2
    WHERE id = $1 AND status = 'active';`

	insertPricePointSQL = `INSERT INTO price_data (symbol, price, currency, source, timestamp)
    VALUES ($1,$2,$3,$4,$5);`

	listPricesBetweenSQL = `SELECT id, symbol, price, currency, source, timestamp
    FROM price_data WHERE symbol = $1 AND timestamp >= $2 AND timestamp < $3 ORDER BY timestamp;`

	listRecentPricesSQL = `SELECT id, symbol, price, currency, source, timestamp
    FROM price_data WHERE symbol = $1 ORDER BY timestamp DESC LIMIT $2;`

	insertNotificationSQL = `INSERT INTO notifications (strategy_id, message, sent_at, success, reason)
    VALUES ($1,$2,$3,$4,$5)
    RETURNING id, strategy_id, message, sent_at, success, reason;`

	listRecentNotificationsSQL = `SELECT id, strategy_id, message, sent_at, success, reason
    FROM notifications ORDER BY sent_at DESC, id DESC LIMIT $1;`
)

// Config carries PostgreSQL connectivity settings.
type Config struct {
	DSN             string
	MaxOpenConns    int
	MaxIdleConns    int
	ConnMaxLifetime time.Duration
}

// Store implements storage.Store over a pgx connection pool.
type Store struct {
	pool *pgxpool.Pool
}

// Open builds a pool from config and ensures the schema exists.
func Open(ctx context.Context, cfg Config) (*Store, error) {
	if cfg.DSN == "" {
		return nil, fmt.Errorf("database.dsn is required")
	}

	poolConfig, err := pgxpool.ParseConfig(cfg.DSN)
	if err != nil {
		return nil, fmt.Errorf("parse database dsn: %w", err)
	}
	if cfg.MaxOpenConns > 0 {
		poolConfig.MaxConns = int32(cfg.MaxOpenConns)
	}
	if cfg.MaxIdleConns > 0 {
		poolConfig.MinConns = int32(cfg.MaxIdleConns)
	}
	if cfg.ConnMaxLifetime > 0 {
		poolConfig.MaxConnLifetime = cfg.ConnMaxLifetime
	}

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pgx pool: %w", err)
	}

	store := &Store{pool: pool}
	if err := store.initTables(ctx); err != nil {
		pool.Close()
		return nil, err
	}
	return store, nil
}

func (s *Store) initTables(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, createTablesSQL); err != nil {
		return fmt.Errorf("init tables: %w", err)
	}
	return nil
}

// Close releases the underlying pool resources.
func (s *Store) Close() error {
	if s == nil || s.pool == nil {
		return nil
	}
	s.pool.Close()
	return nil
}

func (s *Store) getPool() (*pgxpool.Pool, error) {
	if s == nil || s.pool == nil {
		return nil, storage.ErrNotConfigured
	}
	return s.pool, nil
}

// CreateStrategy persists a new strategy and returns the stored row.
func (s *Store) CreateStrategy(ctx context.Context, st storage.Strategy) (storage.Strategy, error) {
	pool, err := s.getPool()
	if err != nil {
		return storage.Strategy{}, err
	}

	createdAt := st.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}
	status := st.Status
	if status == "" {
		status = storage.StatusActive
	}

	row := pool.QueryRow(ctx, insertStrategySQL,
		st.Name,
		st.Symbol,
		string(st.Condition),
		st.TargetPrice.String(),
		string(st.Action),
		string(status),
		createdAt,
	)

	stored, err := scanStrategy(row)
	if err != nil {
		return storage.Strategy{}, fmt.Errorf("insert strategy: %w", err)
	}
	return stored, nil
}

// GetStrategy loads one strategy by id.
func (s *Store) GetStrategy(ctx context.Context, id int64) (storage.Strategy, error) {
	pool, err := s.getPool()
	if err != nil {
		return storage.Strategy{}, err
	}

	stored, err := scanStrategy(pool.QueryRow(ctx, getStrategySQL, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return storage.Strategy{}, storage.ErrStrategyNotFound
		}
		return storage.Strategy{}, fmt.Errorf("get strategy: %w", err)
	}
	return stored, nil
}

// ListStrategies lists strategies matching the filter, ordered by id.
func (s *Store) ListStrategies(ctx context.Context, filter storage.StrategyFilter) ([]storage.Strategy, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	query := `SELECT id, name, symbol, condition_type, target_price, action, status, created_at, triggered_at FROM strategies`
	args := make([]interface{}, 0, 2)
	where := ""
	if filter.Status != "" {
		args = append(args, string(filter.Status))
		where = fmt.Sprintf(" WHERE status = $%d", len(args))
	}
	if filter.Symbol != "" {
		args = append(args, filter.Symbol)
		clause := fmt.Sprintf("symbol = $%d", len(args))
		if where == "" {
			where = " WHERE " + clause
		} else {
			where += " AND " + clause
		}
	}
	query += where + " ORDER BY id;"

	rows, queryErr := pool.Query(ctx, query, args...)
	if queryErr != nil {
		return nil, fmt.Errorf("list strategies: %w", queryErr)
	}
	defer rows.Close()

	strategies := make([]storage.Strategy, 0)
	for rows.Next() {
		st, scanErr := scanStrategy(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		strategies = append(strategies, st)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return strategies, nil
}

// ListActiveStrategies lists strategies still awaiting their trigger.
func (s *Store) ListActiveStrategies(ctx context.Context) ([]storage.Strategy, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listActiveStrategiesSQL)
	if queryErr != nil {
		return nil, fmt.Errorf("list active strategies: %w", queryErr)
	}
	defer rows.Close()

	strategies := make([]storage.Strategy, 0)
	for rows.Next() {
		st, scanErr := scanStrategy(rows)
		if scanErr != nil {
			return nil, scanErr
		}
		strategies = append(strategies, st)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return strategies, nil
}

// DisableStrategy turns an active strategy off without triggering it.
func (s *Store) DisableStrategy(ctx context.Context, id int64) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}
	cmdTag, execErr := pool.Exec(ctx, disableStrategySQL, id)
	if execErr != nil {
		return fmt.Errorf("disable strategy: %w", execErr)
	}
	if cmdTag.RowsAffected() == 0 {
		return storage.ErrStrategyNotFound
	}
	return nil
}

// TryTrigger performs the conditional active->triggered transition.
func (s *Store) TryTrigger(ctx context.Context, id int64, at time.Time) (bool, error) {
	pool, err := s.getPool()
	if err != nil {
		return false, err
	}
	cmdTag, execErr := pool.Exec(ctx, tryTriggerSQL, id, at.UTC())
	if execErr != nil {
		return false, fmt.Errorf("trigger strategy: %w", execErr)
	}
	return cmdTag.RowsAffected() == 1, nil
}

// SavePricePoint appends one observation to price history.
func (s *Store) SavePricePoint(ctx context.Context, p storage.PricePoint) error {
	pool, err := s.getPool()
	if err != nil {
		return err
	}

	fetchedAt := p.FetchedAt
	if fetchedAt.IsZero() {
		fetchedAt = time.Now().UTC()
	}

	if _, execErr := pool.Exec(ctx, insertPricePointSQL,
		p.Symbol,
		p.Price.String(),
		p.Currency,
		p.Source,
		fetchedAt,
	); execErr != nil {
		return fmt.Errorf("save price point: %w", execErr)
	}
	return nil
}

// ListPricesBetween lists history rows for one symbol within a window.
func (s *Store) ListPricesBetween(ctx context.Context, symbol string, from, to time.Time) ([]storage.PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listPricesBetweenSQL, symbol, from, to)
	if queryErr != nil {
		return nil, fmt.Errorf("list prices between: %w", queryErr)
	}
	defer rows.Close()

	return collectPricePoints(rows)
}

// ListRecentPrices lists the latest history rows for one symbol.
func (s *Store) ListRecentPrices(ctx context.Context, symbol string, limit int) ([]storage.PricePoint, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentPricesSQL, symbol, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent prices: %w", queryErr)
	}
	defer rows.Close()

	return collectPricePoints(rows)
}

// AppendNotification records one delivery attempt.
func (s *Store) AppendNotification(ctx context.Context, n storage.NotificationRecord) (storage.NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return storage.NotificationRecord{}, err
	}

	sentAt := n.SentAt
	if sentAt.IsZero() {
		sentAt = time.Now().UTC()
	}

	row := pool.QueryRow(ctx, insertNotificationSQL,
		n.StrategyID,
		n.Message,
		sentAt,
		n.Success,
		n.Reason,
	)

	var rec storage.NotificationRecord
	if scanErr := row.Scan(
		&rec.ID,
		&rec.StrategyID,
		&rec.Message,
		&rec.SentAt,
		&rec.Success,
		&rec.Reason,
	); scanErr != nil {
		return storage.NotificationRecord{}, fmt.Errorf("append notification: %w", scanErr)
	}
	return rec, nil
}

// ListRecentNotifications lists the latest audit rows.
func (s *Store) ListRecentNotifications(ctx context.Context, limit int) ([]storage.NotificationRecord, error) {
	pool, err := s.getPool()
	if err != nil {
		return nil, err
	}

	rows, queryErr := pool.Query(ctx, listRecentNotificationsSQL, limit)
	if queryErr != nil {
		return nil, fmt.Errorf("list recent notifications: %w", queryErr)
	}
	defer rows.Close()

	records := make([]storage.NotificationRecord, 0, limit)
	for rows.Next() {
		var rec storage.NotificationRecord
		if err := rows.Scan(
			&rec.ID,
			&rec.StrategyID,
			&rec.Message,
			&rec.SentAt,
			&rec.Success,
			&rec.Reason,
		); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return records, nil
}

func scanStrategy(row pgx.Row) (storage.Strategy, error) {
	var (
		st          storage.Strategy
		condition   string
		targetStr   string
		action      string
		status      string
		triggeredAt sql.NullTime
	)

	if err := row.Scan(
		&st.ID,
		&st.Name,
		&st.Symbol,
		&condition,
		&targetStr,
		&action,
		&status,
		&st.CreatedAt,
		&triggeredAt,
	); err != nil {
		return storage.Strategy{}, err
	}

	target, err := decimal.NewFromString(targetStr)
	if err != nil {
		return storage.Strategy{}, fmt.Errorf("parse target price: %w", err)
	}

	st.Condition = storage.Condition(condition)
	st.TargetPrice = target
	st.Action = storage.Action(action)
	st.Status = storage.Status(status)
	if triggeredAt.Valid {
		value := triggeredAt.Time
		st.TriggeredAt = &value
	}
	return st, nil
}

func collectPricePoints(rows pgx.Rows) ([]storage.PricePoint, error) {
	points := make([]storage.PricePoint, 0)
	for rows.Next() {
		var (
			p        storage.PricePoint
			priceStr string
		)
		if err := rows.Scan(&p.ID, &p.Symbol, &priceStr, &p.Currency, &p.Source, &p.FetchedAt); err != nil {
			return nil, err
		}
		price, err := decimal.NewFromString(priceStr)
		if err != nil {
			return nil, fmt.Errorf("parse price: %w", err)
		}
		p.Price = price
		points = append(points, p)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return points, nil
}

var _ storage.Store = (*Store)(nil)
