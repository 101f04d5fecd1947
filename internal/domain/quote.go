package domain

import (
	"math/big"
	"time"

	"github.com/shopspring/decimal"
)

// PriceQuote es el precio que un venue reporta para un par en un instante.
// Se produce en cada tick y nunca se reutiliza entre ticks.
type PriceQuote struct {
	Venue      string
	Pair       TokenPair
	Price      decimal.Decimal // unidades de Quote por 1 unidad de Base
	Liquidity  decimal.Decimal // reserva de Quote en el pool; cero si no se conoce
	CapturedAt time.Time
}

// PriceFromAmounts convierte un par de cantidades enteras on-chain en un precio exacto:
//
//	price = (amountOut / 10^quoteDecimals) / (amountIn / 10^baseDecimals)
//
// Devuelve false si alguna cantidad no es positiva.
func PriceFromAmounts(amountIn, amountOut *big.Int, baseDecimals, quoteDecimals uint8) (decimal.Decimal, bool) {
	if amountIn == nil || amountOut == nil || amountIn.Sign() <= 0 || amountOut.Sign() <= 0 {
		return decimal.Zero, false
	}
	in := decimal.NewFromBigInt(amountIn, -int32(baseDecimals))
	out := decimal.NewFromBigInt(amountOut, -int32(quoteDecimals))
	return out.DivRound(in, PricePrecision), true
}

// UnitAmount devuelve 10^decimals, la cantidad entera que representa 1 token.
func UnitAmount(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}
