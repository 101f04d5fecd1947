package detector

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyarb/internal/domain"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

// Outcome es el resultado de evaluar un par en un tick.
type Outcome int

const (
	OutcomeInsufficientQuotes Outcome = iota // menos de dos quotes
	OutcomeSameVenue                         // el mismo venue tiene el mínimo y el máximo
	OutcomeBelowThreshold                    // no supera ambos umbrales
	OutcomeAccepted
	OutcomeFailed // error de agregación o de cálculo
)

func (o Outcome) String() string {
	switch o {
	case OutcomeInsufficientQuotes:
		return "insufficient_quotes"
	case OutcomeSameVenue:
		return "same_venue"
	case OutcomeBelowThreshold:
		return "below_threshold"
	case OutcomeAccepted:
		return "accepted"
	default:
		return "failed"
	}
}

// EvaluatorConfig es la parte de la configuración que usa el modelo de beneficio.
type EvaluatorConfig struct {
	TradeNotional decimal.Decimal
	Thresholds    domain.Thresholds
	Gas           domain.GasModel // Gas.PriceGwei es el valor estático / fallback
	// VenueOrder es el orden de registro de los venues; en caso de empate de
	// precio gana el que aparece primero.
	VenueOrder []string
}

// Evaluation describe lo que se decidió para un par.
type Evaluation struct {
	Outcome     Outcome
	Pair        string
	Buy         domain.PriceQuote
	Sell        domain.PriceQuote
	Breakdown   domain.ProfitBreakdown
	Opportunity *domain.ArbitrageOpportunity // solo si Outcome == OutcomeAccepted
}

// Evaluator elige la mejor pareja compra/venta y aplica el modelo de beneficio.
type Evaluator struct {
	cfg   EvaluatorConfig
	rank  map[string]int
	store ports.OpportunityStore // nil en dry-run: se acepta pero no se persiste
	gas   ports.GasPricer        // nil = usar cfg.Gas.PriceGwei
	now   func() time.Time
}

// NewEvaluator crea un Evaluator con las dependencias inyectadas.
func NewEvaluator(cfg EvaluatorConfig, store ports.OpportunityStore, gas ports.GasPricer) *Evaluator {
	rank := make(map[string]int, len(cfg.VenueOrder))
	for i, v := range cfg.VenueOrder {
		if _, dup := rank[v]; !dup {
			rank[v] = i
		}
	}
	return &Evaluator{cfg: cfg, rank: rank, store: store, gas: gas, now: time.Now}
}

// Evaluate decide si los quotes de un par forman una oportunidad.
//
// Devuelve error solo para fallos de cálculo (domain.ErrCalculation) o de
// persistencia (domain.ErrStorage). En este último caso la Evaluation sigue
// siendo OutcomeAccepted con la oportunidad sin ID.
func (e *Evaluator) Evaluate(ctx context.Context, pair domain.TokenPair, quotes []domain.PriceQuote) (Evaluation, error) {
	ev := Evaluation{Pair: pair.Label()}

	if len(quotes) < 2 {
		ev.Outcome = OutcomeInsufficientQuotes
		return ev, nil
	}

	buy, sell := e.selectExtremes(quotes)
	ev.Buy, ev.Sell = buy, sell

	if buy.Venue == sell.Venue {
		ev.Outcome = OutcomeSameVenue
		slog.Debug("opportunity rejected",
			"pair", ev.Pair,
			"reason", OutcomeSameVenue.String(),
			"venue", buy.Venue,
		)
		return ev, nil
	}

	gasCost, err := e.gasCost(ctx)
	if err != nil {
		ev.Outcome = OutcomeFailed
		return ev, fmt.Errorf("detector.Evaluate %s: %w", ev.Pair, err)
	}

	breakdown, err := domain.ComputeProfit(buy.Price, sell.Price, e.cfg.TradeNotional, gasCost)
	if err != nil {
		ev.Outcome = OutcomeFailed
		return ev, fmt.Errorf("detector.Evaluate %s: %w", ev.Pair, err)
	}
	ev.Breakdown = breakdown

	if !e.cfg.Thresholds.Accepts(breakdown) {
		ev.Outcome = OutcomeBelowThreshold
		slog.Info("opportunity rejected",
			"pair", ev.Pair,
			"reason", OutcomeBelowThreshold.String(),
			"buy_venue", buy.Venue,
			"sell_venue", sell.Venue,
			"net_profit", breakdown.NetProfit.StringFixed(4),
			"profit_pct", breakdown.ProfitPercentage.StringFixed(4),
		)
		return ev, nil
	}

	opp := domain.NewOpportunity(buy, sell, breakdown, e.now())
	ev.Outcome = OutcomeAccepted
	ev.Opportunity = &opp

	attrs := []any{
		"pair", opp.Pair,
		"buy_venue", opp.BuyVenue,
		"sell_venue", opp.SellVenue,
		"buy_price", opp.BuyPrice.String(),
		"sell_price", opp.SellPrice.String(),
		"net_profit", opp.NetProfit.StringFixed(4),
		"profit_pct", opp.ProfitPercentage.StringFixed(4),
		"gas_cost", opp.GasCost.StringFixed(6),
	}

	if e.store == nil {
		slog.Info("opportunity accepted", append(attrs, "persisted", false)...)
		return ev, nil
	}

	id, err := e.store.Save(ctx, opp)
	if err != nil {
		slog.Info("opportunity accepted", append(attrs, "persisted", false)...)
		return ev, fmt.Errorf("detector.Evaluate %s: save: %w", ev.Pair, err)
	}
	persisted := opp.WithID(id)
	ev.Opportunity = &persisted
	slog.Info("opportunity accepted", append(attrs, "id", id, "persisted", true)...)
	return ev, nil
}

// selectExtremes hace un barrido lineal buscando el precio mínimo (compra) y
// máximo (venta). Los quotes se ordenan antes por el rango del venue, y solo
// una mejora estricta reemplaza al candidato: ante empate gana el venue
// registrado primero, sin depender del orden de llegada.
func (e *Evaluator) selectExtremes(quotes []domain.PriceQuote) (buy, sell domain.PriceQuote) {
	ordered := slices.Clone(quotes)
	slices.SortStableFunc(ordered, func(a, b domain.PriceQuote) int {
		if c := cmp.Compare(e.rankOf(a.Venue), e.rankOf(b.Venue)); c != 0 {
			return c
		}
		return cmp.Compare(a.Venue, b.Venue)
	})

	buy, sell = ordered[0], ordered[0]
	for _, q := range ordered[1:] {
		if q.Price.LessThan(buy.Price) {
			buy = q
		}
		if q.Price.GreaterThan(sell.Price) {
			sell = q
		}
	}
	return buy, sell
}

// rankOf devuelve la posición de registro; los venues desconocidos van al final.
func (e *Evaluator) rankOf(venue string) int {
	if r, ok := e.rank[venue]; ok {
		return r
	}
	return len(e.rank)
}

// gasCost obtiene el precio de gas (oráculo o estático) y lo pasa por el GasModel.
func (e *Evaluator) gasCost(ctx context.Context) (decimal.Decimal, error) {
	model := e.cfg.Gas
	if e.gas != nil {
		price, err := e.gas.GasPriceGwei(ctx)
		if err != nil {
			slog.Warn("gas price lookup failed, using configured value",
				"gwei", model.PriceGwei,
				"err", err,
			)
		} else {
			model.PriceGwei = price
		}
	}
	return model.CostUSD()
}

// StaticGasPricer devuelve siempre el mismo precio de gas.
type StaticGasPricer float64

// GasPriceGwei implementa ports.GasPricer.
func (s StaticGasPricer) GasPriceGwei(context.Context) (float64, error) {
	return float64(s), nil
}
