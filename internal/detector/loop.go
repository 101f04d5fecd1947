package detector

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alejandrodnm/polyarb/internal/domain"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

// Config contiene la configuración del loop de detección.
type Config struct {
	Interval time.Duration
	Pairs    []domain.TokenPair
	Once     bool // ejecutar un solo tick y salir
}

// PairResult es lo que ocurrió con un par en un tick.
type PairResult struct {
	Pair        string
	Outcome     Outcome
	Quotes      int
	Failures    int
	Opportunity *domain.ArbitrageOpportunity
	Err         error
}

// TickReport resume un tick completo.
type TickReport struct {
	TickID   string
	Started  time.Time
	Duration time.Duration
	Pairs    []PairResult
}

// Accepted devuelve las oportunidades aceptadas en el tick, en orden de par.
// Las que fallaron al persistirse se pierden y no se incluyen.
func (r TickReport) Accepted() []domain.ArbitrageOpportunity {
	var out []domain.ArbitrageOpportunity
	for _, p := range r.Pairs {
		if p.Outcome == OutcomeAccepted && p.Opportunity != nil && !errors.Is(p.Err, domain.ErrStorage) {
			out = append(out, *p.Opportunity)
		}
	}
	return out
}

// Errors cuenta los pares que terminaron con error.
func (r TickReport) Errors() int {
	n := 0
	for _, p := range r.Pairs {
		if p.Err != nil {
			n++
		}
	}
	return n
}

// Loop es el orquestador periódico: Idle → Tick → evaluar cada par → Idle.
type Loop struct {
	cfg        Config
	aggregator *Aggregator
	evaluator  *Evaluator
	notifiers  []ports.Notifier
}

// New crea un Loop con todas las dependencias inyectadas.
func New(cfg Config, aggregator *Aggregator, evaluator *Evaluator, notifiers ...ports.Notifier) *Loop {
	return &Loop{
		cfg:        cfg,
		aggregator: aggregator,
		evaluator:  evaluator,
		notifiers:  notifiers,
	}
}

// Run ejecuta ticks hasta que el contexto se cancele. El primer tick es inmediato.
// Ningún fallo de un par o de un venue detiene el loop.
func (l *Loop) Run(ctx context.Context) error {
	slog.Info("detector starting",
		"interval", l.cfg.Interval,
		"pairs", len(l.cfg.Pairs),
		"venues", l.aggregator.Venues(),
		"once", l.cfg.Once,
	)

	l.RunOnce(ctx)
	if l.cfg.Once {
		return nil
	}

	ticker := time.NewTicker(l.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			slog.Info("detector stopped")
			return nil
		case <-ticker.C:
			l.RunOnce(ctx)
		}
	}
}

// RunOnce ejecuta exactamente un tick, notifica y devuelve el reporte.
func (l *Loop) RunOnce(ctx context.Context) TickReport {
	report := l.tick(ctx)

	accepted := report.Accepted()
	for _, n := range l.notifiers {
		if err := n.Notify(ctx, accepted); err != nil {
			slog.Warn("notifier error", "tick_id", report.TickID, "err", err)
		}
	}

	slog.Info("tick complete",
		"tick_id", report.TickID,
		"pairs", len(report.Pairs),
		"opportunities", len(accepted),
		"errors", report.Errors(),
		"duration", report.Duration.Round(time.Millisecond),
	)
	return report
}

// tick evalúa todos los pares en paralelo. Cada par escribe solo su slot del
// reporte; no comparten más estado que el store append-only.
func (l *Loop) tick(ctx context.Context) TickReport {
	report := TickReport{
		TickID:  uuid.New().String(),
		Started: time.Now(),
		Pairs:   make([]PairResult, len(l.cfg.Pairs)),
	}

	var wg sync.WaitGroup
	for i, pair := range l.cfg.Pairs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			report.Pairs[i] = l.evaluatePair(ctx, report.TickID, pair)
		}()
	}
	wg.Wait()

	report.Duration = time.Since(report.Started)
	return report
}

// evaluatePair agrega y evalúa un par. Cualquier error (incluido un panic de
// un adapter) queda aislado en el PairResult.
func (l *Loop) evaluatePair(ctx context.Context, tickID string, pair domain.TokenPair) (res PairResult) {
	res = PairResult{Pair: pair.Label()}

	defer func() {
		if r := recover(); r != nil {
			res.Outcome = OutcomeFailed
			res.Err = fmt.Errorf("detector: panic evaluating %s: %v", res.Pair, r)
			slog.Error("pair evaluation failed", "tick_id", tickID, "pair", res.Pair, "err", res.Err)
		}
	}()

	agg := l.aggregator.Aggregate(ctx, pair)
	res.Quotes = len(agg.Quotes)
	res.Failures = len(agg.Failures)

	if agg.Insufficient() {
		res.Outcome = OutcomeInsufficientQuotes
		slog.Info("insufficient quotes",
			"tick_id", tickID,
			"pair", res.Pair,
			"ok", res.Quotes,
			"failed", res.Failures,
		)
		return res
	}

	ev, err := l.evaluator.Evaluate(ctx, pair, agg.Quotes)
	res.Outcome = ev.Outcome
	res.Opportunity = ev.Opportunity
	if err != nil {
		res.Err = err
		slog.Error("pair evaluation failed",
			"tick_id", tickID,
			"pair", res.Pair,
			"outcome", ev.Outcome.String(),
			"err", err,
		)
	}
	return res
}
