package storage

// Historial append-only de oportunidades aceptadas.
//
// Estrategia:
//   - Una fila por oportunidad, nunca se actualiza.
//   - timestamp en nanosegundos unix; id como desempate para orden estricto.
//   - Importes como TEXT en notación decimal: se leen sin pérdida.
//   - Prune por antigüedad al arrancar (retention_days).

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	_ "modernc.org/sqlite"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS arbitrage_opportunities (
    id                INTEGER PRIMARY KEY AUTOINCREMENT,
    timestamp         INTEGER NOT NULL,
    token_pair        TEXT    NOT NULL,
    buy_venue         TEXT    NOT NULL,
    sell_venue        TEXT    NOT NULL,
    buy_price         TEXT    NOT NULL,
    sell_price        TEXT    NOT NULL,
    price_delta       TEXT    NOT NULL,
    gross_profit      TEXT    NOT NULL,
    profit_usd        TEXT    NOT NULL,
    profit_percentage TEXT    NOT NULL,
    trade_notional    TEXT    NOT NULL,
    gas_cost          TEXT    NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_arb_timestamp  ON arbitrage_opportunities(timestamp DESC);
CREATE INDEX IF NOT EXISTS idx_arb_token_pair ON arbitrage_opportunities(token_pair);
CREATE INDEX IF NOT EXISTS idx_arb_profit     ON arbitrage_opportunities(profit_usd);
`

const selectColumns = `id, timestamp, token_pair, buy_venue, sell_venue, buy_price, sell_price,
    price_delta, gross_profit, profit_usd, profit_percentage, trade_notional, gas_cost`

// SQLiteStorage implementa ports.OpportunityStore usando SQLite (pure Go, sin CGo).
type SQLiteStorage struct {
	db *sql.DB
}

// NewSQLiteStorage abre (o crea) la base de datos en la ruta dada y aplica el schema.
func NewSQLiteStorage(path string) (*SQLiteStorage, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("storage.NewSQLiteStorage: open %q: %w: %w", path, domain.ErrStorage, err)
	}
	db.SetMaxOpenConns(1) // SQLite es single-writer; serializa los Save concurrentes
	db.SetMaxIdleConns(1)

	if _, err := db.Exec(sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("storage.NewSQLiteStorage: apply schema: %w: %w", domain.ErrStorage, err)
	}
	return &SQLiteStorage{db: db}, nil
}

// Save inserta la oportunidad y devuelve el ID asignado.
func (s *SQLiteStorage) Save(ctx context.Context, opp domain.ArbitrageOpportunity) (int64, error) {
	res, err := s.db.ExecContext(ctx, `
		INSERT INTO arbitrage_opportunities (
			timestamp, token_pair, buy_venue, sell_venue, buy_price, sell_price,
			price_delta, gross_profit, profit_usd, profit_percentage, trade_notional, gas_cost
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		opp.Timestamp.UnixNano(), opp.Pair, opp.BuyVenue, opp.SellVenue,
		opp.BuyPrice.String(), opp.SellPrice.String(), opp.PriceDelta.String(),
		opp.GrossProfit.String(), opp.NetProfit.String(), opp.ProfitPercentage.String(),
		opp.TradeNotional.String(), opp.GasCost.String(),
	)
	if err != nil {
		return 0, fmt.Errorf("storage.Save: insert: %w: %w", domain.ErrStorage, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("storage.Save: last insert id: %w: %w", domain.ErrStorage, err)
	}
	return id, nil
}

// ListRecent devuelve como mucho limit oportunidades, la más reciente primero.
func (s *SQLiteStorage) ListRecent(ctx context.Context, limit int) ([]domain.ArbitrageOpportunity, error) {
	if limit <= 0 {
		return []domain.ArbitrageOpportunity{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM arbitrage_opportunities
		 ORDER BY timestamp DESC, id DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListRecent: query: %w: %w", domain.ErrStorage, err)
	}
	defer rows.Close()
	return scanOpportunities(rows, "storage.ListRecent")
}

// ListByPair es ListRecent filtrado por etiqueta de par ("WETH/USDC").
func (s *SQLiteStorage) ListByPair(ctx context.Context, pair string, limit int) ([]domain.ArbitrageOpportunity, error) {
	if limit <= 0 {
		return []domain.ArbitrageOpportunity{}, nil
	}
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+selectColumns+` FROM arbitrage_opportunities
		 WHERE token_pair = ?
		 ORDER BY timestamp DESC, id DESC LIMIT ?`, pair, limit)
	if err != nil {
		return nil, fmt.Errorf("storage.ListByPair: query: %w: %w", domain.ErrStorage, err)
	}
	defer rows.Close()
	return scanOpportunities(rows, "storage.ListByPair")
}

// Prune borra las oportunidades anteriores a before y devuelve cuántas borró.
func (s *SQLiteStorage) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM arbitrage_opportunities WHERE timestamp < ?`, before.UnixNano())
	if err != nil {
		return 0, fmt.Errorf("storage.Prune: delete: %w: %w", domain.ErrStorage, err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// Close cierra la conexión a la base de datos.
func (s *SQLiteStorage) Close() error {
	return s.db.Close()
}

// rowScanner cubre *sql.Rows y pgx.Rows.
type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
}

func scanOpportunities(rows rowScanner, op string) ([]domain.ArbitrageOpportunity, error) {
	out := []domain.ArbitrageOpportunity{}
	for rows.Next() {
		var (
			opp   domain.ArbitrageOpportunity
			nanos int64
			raw   [8]string
		)
		if err := rows.Scan(&opp.ID, &nanos, &opp.Pair, &opp.BuyVenue, &opp.SellVenue,
			&raw[0], &raw[1], &raw[2], &raw[3], &raw[4], &raw[5], &raw[6], &raw[7]); err != nil {
			return nil, fmt.Errorf("%s: scan: %w: %w", op, domain.ErrStorage, err)
		}
		opp.Timestamp = time.Unix(0, nanos).UTC()

		dst := []*decimal.Decimal{
			&opp.BuyPrice, &opp.SellPrice, &opp.PriceDelta, &opp.GrossProfit,
			&opp.NetProfit, &opp.ProfitPercentage, &opp.TradeNotional, &opp.GasCost,
		}
		for i, p := range dst {
			v, err := decimal.NewFromString(raw[i])
			if err != nil {
				return nil, fmt.Errorf("%s: row %d: decode %q: %w: %w", op, opp.ID, raw[i], domain.ErrStorage, err)
			}
			*p = v
		}
		out = append(out, opp)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%s: rows: %w: %w", op, domain.ErrStorage, err)
	}
	return out, nil
}
