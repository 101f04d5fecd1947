package domain

import (
	"fmt"
	"math"
	"math/big"

	"github.com/shopspring/decimal"
)

// PricePrecision es el número de decimales con el que se redondean las divisiones.
const PricePrecision int32 = 18

var (
	hundred      = decimal.NewFromInt(100)
	gweiToNative = decimal.New(1, -9)
)

// GasModel estima el coste de ejecutar las dos patas del arbitraje.
//
//	gas_cost_usd = price_gwei × limit × 1e-9 × native_token_usd × tx_count
//
// Es una simplificación conocida: precio y límite fijos, sin congestión ni tamaño
// real de la operación. TxCount es 2 (compra + venta) salvo que se configure otro.
type GasModel struct {
	PriceGwei      float64
	Limit          uint64
	TxCount        int
	NativeTokenUSD float64
}

// CostUSD calcula el coste de gas en USD. Los valores de entrada vienen de
// configuración (o de un oráculo RPC) en coma flotante; si alguno no es finito
// o es negativo se devuelve ErrCalculation.
func (g GasModel) CostUSD() (decimal.Decimal, error) {
	if !finiteNonNegative(g.PriceGwei) {
		return decimal.Zero, fmt.Errorf("%w: gas price %v is not a finite non-negative number", ErrCalculation, g.PriceGwei)
	}
	if !finiteNonNegative(g.NativeTokenUSD) {
		return decimal.Zero, fmt.Errorf("%w: native token price %v is not a finite non-negative number", ErrCalculation, g.NativeTokenUSD)
	}
	if g.TxCount < 0 {
		return decimal.Zero, fmt.Errorf("%w: negative tx count %d", ErrCalculation, g.TxCount)
	}

	limit := decimal.NewFromBigInt(new(big.Int).SetUint64(g.Limit), 0)
	return decimal.NewFromFloat(g.PriceGwei).
		Mul(limit).
		Mul(gweiToNative).
		Mul(decimal.NewFromFloat(g.NativeTokenUSD)).
		Mul(decimal.NewFromInt(int64(g.TxCount))), nil
}

// ProfitBreakdown es el resultado del modelo de beneficio para una pareja compra/venta.
type ProfitBreakdown struct {
	TradeNotional    decimal.Decimal // USD invertidos en la pata de compra
	TradeAmount      decimal.Decimal // tokens base comprados con TradeNotional
	BuyCost          decimal.Decimal
	SellRevenue      decimal.Decimal
	GasCost          decimal.Decimal
	GrossProfit      decimal.Decimal
	NetProfit        decimal.Decimal
	ProfitPercentage decimal.Decimal
}

// ComputeProfit aplica el modelo de beneficio con aritmética decimal exacta.
// Ambas patas usan la misma cantidad de tokens, derivada del nocional y el precio
// de compra. buyPrice debe ser positivo.
func ComputeProfit(buyPrice, sellPrice, notional, gasCost decimal.Decimal) (ProfitBreakdown, error) {
	if !buyPrice.IsPositive() || !sellPrice.IsPositive() {
		return ProfitBreakdown{}, fmt.Errorf("%w: non-positive price (buy=%s sell=%s)", ErrCalculation, buyPrice, sellPrice)
	}

	amount := notional.DivRound(buyPrice, PricePrecision)
	buyCost := amount.Mul(buyPrice)
	sellRevenue := amount.Mul(sellPrice)
	gross := sellRevenue.Sub(buyCost)
	net := gross.Sub(gasCost)

	pct := decimal.Zero
	if buyCost.IsPositive() {
		pct = net.Mul(hundred).DivRound(buyCost, percentPrecision(net, buyCost))
	}

	return ProfitBreakdown{
		TradeNotional:    notional,
		TradeAmount:      amount,
		BuyCost:          buyCost,
		SellRevenue:      sellRevenue,
		GasCost:          gasCost,
		GrossProfit:      gross,
		NetProfit:        net,
		ProfitPercentage: pct,
	}, nil
}

// percentPrecision amplía PricePrecision lo necesario para que un net minúsculo
// no redondee a cero: el signo del porcentaje debe seguir al del net.
func percentPrecision(net, buyCost decimal.Decimal) int32 {
	scale := int32(buyCost.NumDigits()) + buyCost.Exponent() - net.Exponent()
	return PricePrecision + max(0, scale)
}

// Thresholds son los mínimos que una oportunidad debe superar, ambos a la vez.
type Thresholds struct {
	MinProfitUSD        decimal.Decimal
	MinProfitPercentage decimal.Decimal
}

// Accepts devuelve true solo si se cumplen AMBOS umbrales.
func (t Thresholds) Accepts(b ProfitBreakdown) bool {
	return b.NetProfit.GreaterThanOrEqual(t.MinProfitUSD) &&
		b.ProfitPercentage.GreaterThanOrEqual(t.MinProfitPercentage)
}

// DecimalFromConfig convierte un float de configuración en decimal, rechazando NaN/Inf.
func DecimalFromConfig(name string, v float64) (decimal.Decimal, error) {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return decimal.Zero, fmt.Errorf("%w: %s is not finite", ErrCalculation, name)
	}
	return decimal.NewFromFloat(v), nil
}

func finiteNonNegative(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0) && v >= 0
}
