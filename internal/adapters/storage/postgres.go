package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

const postgresSchema = `
CREATE TABLE IF NOT EXISTS arbitrage_opportunities (
    id                BIGSERIAL PRIMARY KEY,
    timestamp         BIGINT  NOT NULL,
    token_pair        TEXT    NOT NULL,
    buy_venue         TEXT    NOT NULL,
    sell_venue        TEXT    NOT NULL,
    buy_price         NUMERIC NOT NULL,
    sell_price        NUMERIC NOT NULL,
    price_delta       NUMERIC NOT NULL,
    gross_profit      NUMERIC NOT NULL,
    profit_usd        NUMERIC NOT NULL,
    profit_percentage NUMERIC NOT NULL,
    trade_notional    NUMERIC NOT NULL,
    gas_cost          NUMERIC NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_arb_timestamp  ON arbitrage_opportunities(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_arb_token_pair ON arbitrage_opportunities(token_pair);
CREATE INDEX IF NOT EXISTS idx_arb_profit     ON arbitrage_opportunities(profit_usd DESC);
`

// NUMERIC se lee como texto para no pasar por float.
const pgSelectColumns = `id, timestamp, token_pair, buy_venue, sell_venue,
    buy_price::text, sell_price::text, price_delta::text, gross_profit::text,
    profit_usd::text, profit_percentage::text, trade_notional::text, gas_cost::text`

const pgInsert = `
INSERT INTO arbitrage_opportunities (
    timestamp, token_pair, buy_venue, sell_venue, buy_price, sell_price,
    price_delta, gross_profit, profit_usd, profit_percentage, trade_notional, gas_cost
) VALUES ($1, $2, $3, $4, $5::numeric, $6::numeric, $7::numeric, $8::numeric,
          $9::numeric, $10::numeric, $11::numeric, $12::numeric)
RETURNING id`

// PgxPool is the subset of *pgxpool.Pool used by PostgresStorage.
type PgxPool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Close()
}

// PostgresStorage implements ports.OpportunityStore on PostgreSQL.
// The pool makes concurrent Save calls safe.
type PostgresStorage struct {
	pool PgxPool
}

// NewPostgresStorage connects to dsn, pings and applies the schema.
func NewPostgresStorage(ctx context.Context, dsn string) (*PostgresStorage, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("storage.NewPostgresStorage: parse config: %w: %w", domain.ErrStorage, err)
	}
	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("storage.NewPostgresStorage: connect: %w: %w", domain.ErrStorage, err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage.NewPostgresStorage: ping: %w: %w", domain.ErrStorage, err)
	}
	return NewPostgresStorageWithPool(ctx, pool)
}

// NewPostgresStorageWithPool wraps an existing pool and applies the schema.
func NewPostgresStorageWithPool(ctx context.Context, pool PgxPool) (*PostgresStorage, error) {
	if _, err := pool.Exec(ctx, postgresSchema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("storage.NewPostgresStorage: apply schema: %w: %w", domain.ErrStorage, err)
	}
	return &PostgresStorage{pool: pool}, nil
}

// Save inserts the opportunity and returns the generated ID.
func (s *PostgresStorage) Save(ctx context.Context, opp domain.ArbitrageOpportunity) (int64, error) {
	var id int64
	err := s.pool.QueryRow(ctx, pgInsert,
		opp.Timestamp.UnixNano(), opp.Pair, opp.BuyVenue, opp.SellVenue,
		opp.BuyPrice.String(), opp.SellPrice.String(), opp.PriceDelta.String(),
		opp.GrossProfit.String(), opp.NetProfit.String(), opp.ProfitPercentage.String(),
		opp.TradeNotional.String(), opp.GasCost.String(),
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("storage.Save: insert: %w: %w", domain.ErrStorage, err)
	}
	return id, nil
}

// ListRecent returns at most limit opportunities, newest first.
func (s *PostgresStorage) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if limit <= 0 {
		return []domain.ArbitrageOpportunity{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgSelectColumns+` FROM arbitrage_opportunities
		 ORDER BY timestamp DESC, id DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListRecent: query: %w: %w", domain.ErrStorage, err)
	}
	defer rows.Close()
	return scanOpportunities(rows, "storage.ListRecent")
}

// ListByPair is ListRecent restricted to one pair label.
func (s *PostgresStorage) ListByPair(ctx context.Context, pair string, limit int) ([]domain.ArbitrageOpportunity, error) {
	if limit <= 0 {
		return []domain.ArbitrageOpportunity{}, nil
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+pgSelectColumns+` FROM arbitrage_opportunities
		 WHERE token_pair = $1
		 ORDER BY timestamp DESC, id DESC LIMIT $2`, pair, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListByPair: query: %w: %w", domain.ErrStorage, err)
	}
	defer rows.Close()
	return scanOpportunities(rows, "storage.ListByPair")
}

// Prune deletes opportunities older than before.
func (s *PostgresStorage) Prune(ctx context.Context, before time.Time) (int64, error) {
	tag, err := s.pool.Exec(ctx,
		`DELETE FROM arbitrage_opportunities WHERE timestamp < $1`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("storage.Prune: delete: %w: %w", domain.ErrStorage, err)
	}
	return tag.RowsAffected(), nil
}

// Close releases the pool.
func (s *PostgresStorage) Close() error {
	s.pool.Close()
	return nil
}
