package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// ArbitrageOpportunity es una discrepancia de precio entre dos venues que supera
// los umbrales configurados. Se crea una sola vez y no se modifica después;
// ID lo asigna el store al persistirla (0 mientras no se haya guardado).
type ArbitrageOpportunity struct {
	ID               int64           `json:"id"`
	Timestamp        time.Time       `json:"timestamp"`
	Pair             string          `json:"pair"`
	BuyVenue         string          `json:"buy_venue"`
	SellVenue        string          `json:"sell_venue"`
	BuyPrice         decimal.Decimal `json:"buy_price"`
	SellPrice        decimal.Decimal `json:"sell_price"`
	PriceDelta       decimal.Decimal `json:"price_delta"`
	GrossProfit      decimal.Decimal `json:"gross_profit"`
	NetProfit        decimal.Decimal `json:"net_profit"`
	ProfitPercentage decimal.Decimal `json:"profit_percentage"`
	TradeNotional    decimal.Decimal `json:"trade_notional"`
	GasCost          decimal.Decimal `json:"gas_cost"`
}

// NewOpportunity arma la oportunidad a partir de los dos quotes elegidos y el
// resultado del modelo de beneficio.
func NewOpportunity(buy, sell PriceQuote, b ProfitBreakdown, at time.Time) ArbitrageOpportunity {
	return ArbitrageOpportunity{
		Timestamp:        at.UTC(),
		Pair:             buy.Pair.Label(),
		BuyVenue:         buy.Venue,
		SellVenue:        sell.Venue,
		BuyPrice:         buy.Price,
		SellPrice:        sell.Price,
		PriceDelta:       sell.Price.Sub(buy.Price),
		GrossProfit:      b.GrossProfit,
		NetProfit:        b.NetProfit,
		ProfitPercentage: b.ProfitPercentage,
		TradeNotional:    b.TradeNotional,
		GasCost:          b.GasCost,
	}
}

// WithID devuelve una copia con el ID asignado por el store.
func (o ArbitrageOpportunity) WithID(id int64) ArbitrageOpportunity {
	o.ID = id
	return o
}
