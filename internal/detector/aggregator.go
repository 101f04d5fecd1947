package detector

// Fan-out concurrente a todos los venues de un par.
//
// Cada fetch corre en su propia goroutine bajo un timeout propio. Un venue lento
// o caído solo se pierde a sí mismo para este tick: nunca aborta la agregación
// ni se reintenta dentro del mismo tick.

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/alejandrodnm/polyarb/internal/domain"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

const defaultFetchTimeout = 5 * time.Second

// AggregatorConfig controla el fan-out.
type AggregatorConfig struct {
	FetchTimeout  time.Duration // timeout por fetch individual
	MaxConcurrent int           // fetches simultáneos por par (0 = sin límite)
}

// FetchFailure es un venue que no aportó quote en este tick.
type FetchFailure struct {
	Venue string
	Kind  domain.FailureKind
	Err   error
}

// Aggregation es el resultado de consultar todos los venues para un par.
// Quotes sigue el orden de registro de las fuentes, no el de llegada.
type Aggregation struct {
	Pair     domain.TokenPair
	Quotes   []domain.PriceQuote
	Failures []FetchFailure
}

// Insufficient indica el resultado InsufficientQuotes: menos de dos venues
// respondieron. Es un resultado normal del tick, no un error.
func (a Aggregation) Insufficient() bool {
	return len(a.Quotes) < 2
}

// Aggregator consulta todas las fuentes habilitadas de forma concurrente.
type Aggregator struct {
	cfg     AggregatorConfig
	sources []ports.PriceSource
}

// NewAggregator crea un Aggregator. El orden de sources es el orden de registro.
func NewAggregator(cfg AggregatorConfig, sources []ports.PriceSource) *Aggregator {
	if cfg.FetchTimeout <= 0 {
		cfg.FetchTimeout = defaultFetchTimeout
	}
	return &Aggregator{cfg: cfg, sources: sources}
}

// Venues devuelve los nombres de las fuentes en orden de registro.
func (a *Aggregator) Venues() []string {
	names := make([]string, len(a.sources))
	for i, s := range a.sources {
		names[i] = s.Name()
	}
	return names
}

type fetchResult struct {
	quote domain.PriceQuote
	err   error
}

// Aggregate hace fetch en todas las fuentes y devuelve los quotes válidos.
// Nunca devuelve error: los fallos individuales quedan en Aggregation.Failures.
func (a *Aggregator) Aggregate(ctx context.Context, pair domain.TokenPair) Aggregation {
	// Un slot por fuente: cada goroutine escribe solo el suyo, así el resultado
	// queda en orden de registro sin importar quién termina primero.
	results := make([]fetchResult, len(a.sources))

	var g errgroup.Group
	if a.cfg.MaxConcurrent > 0 {
		g.SetLimit(a.cfg.MaxConcurrent)
	}
	for i, src := range a.sources {
		g.Go(func() error {
			q, err := a.fetch(ctx, src, pair)
			results[i] = fetchResult{quote: q, err: err}
			return nil
		})
	}
	_ = g.Wait()

	agg := Aggregation{Pair: pair, Quotes: make([]domain.PriceQuote, 0, len(results))}
	for i, r := range results {
		venue := a.sources[i].Name()
		if r.err == nil {
			r.err = validateQuote(venue, r.quote)
		}
		if r.err != nil {
			kind := domain.KindOf(r.err)
			agg.Failures = append(agg.Failures, FetchFailure{Venue: venue, Kind: kind, Err: r.err})
			slog.Warn("venue fetch failed",
				"venue", venue,
				"pair", pair.Label(),
				"kind", kind.String(),
				"err", r.err,
			)
			continue
		}
		agg.Quotes = append(agg.Quotes, r.quote)
	}

	slog.Debug("quotes aggregated",
		"pair", pair.Label(),
		"ok", len(agg.Quotes),
		"failed", len(agg.Failures),
	)
	return agg
}

// fetch llama a la fuente con su propio timeout. Si la fuente ignora el
// contexto, el select garantiza que el tick no quede bloqueado por ella.
func (a *Aggregator) fetch(ctx context.Context, src ports.PriceSource, pair domain.TokenPair) (domain.PriceQuote, error) {
	fctx, cancel := context.WithTimeout(ctx, a.cfg.FetchTimeout)
	defer cancel()

	ch := make(chan fetchResult, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				ch <- fetchResult{err: domain.NewFetchError(src.Name(), domain.FailureMalformed,
					fmt.Errorf("source panicked: %v", r))}
			}
		}()
		q, err := src.FetchQuote(fctx, pair)
		ch <- fetchResult{quote: q, err: err}
	}()

	select {
	case r := <-ch:
		return r.quote, r.err
	case <-fctx.Done():
		return domain.PriceQuote{}, domain.NewFetchError(src.Name(), domain.FailureNetwork,
			fmt.Errorf("fetch timed out after %s: %w", a.cfg.FetchTimeout, fctx.Err()))
	}
}

// validateQuote comprueba el invariante de precio positivo y que el quote
// venga etiquetado con el venue que lo produjo.
func validateQuote(venue string, q domain.PriceQuote) error {
	if q.Venue != venue {
		return domain.NewFetchError(venue, domain.FailureMalformed,
			fmt.Errorf("quote labelled %q", q.Venue))
	}
	if !q.Price.IsPositive() {
		return domain.NewFetchError(venue, domain.FailureMalformed,
			fmt.Errorf("non-positive price %s", q.Price))
	}
	return nil
}
