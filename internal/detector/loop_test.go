package detector_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/detector"
	"github.com/alejandrodnm/polyarb/internal/domain"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

// pairSource devuelve un precio distinto por par.
type pairSource struct {
	name   string
	prices map[string]string
}

func (p pairSource) Name() string { return p.name }

func (p pairSource) FetchQuote(_ context.Context, pair domain.TokenPair) (domain.PriceQuote, error) {
	price, ok := p.prices[pair.Label()]
	if !ok {
		return domain.PriceQuote{}, domain.NewFetchError(p.name, domain.FailureUnsupportedPair, errors.New("no pool"))
	}
	return domain.PriceQuote{Venue: p.name, Pair: pair, Price: decimal.RequireFromString(price)}, nil
}

func newLoop(t *testing.T, store ports.OpportunityStore, srcs []ports.PriceSource, pairs []domain.TokenPair, notifiers ...ports.Notifier) *detector.Loop {
	t.Helper()
	agg := detector.NewAggregator(detector.AggregatorConfig{FetchTimeout: time.Second}, srcs)
	ev := detector.NewEvaluator(defaultEvalConfig(agg.Venues()...), store, nil)
	return detector.New(detector.Config{Interval: 20 * time.Millisecond, Pairs: pairs}, agg, ev, notifiers...)
}

// --- RunOnce ---

func TestRunOnce_EvaluatesEveryPair(t *testing.T) {
	store := &mockStore{}
	notifier := &mockNotifier{}
	srcs := []ports.PriceSource{
		pairSource{name: "uniswap_v2", prices: map[string]string{"WETH/USDC": "3000", "WBTC/USDC": "60000"}},
		pairSource{name: "quickswap", prices: map[string]string{"WETH/USDC": "3060", "WBTC/USDC": "60001"}},
	}
	loop := newLoop(t, store, srcs, []domain.TokenPair{wethUSDC, wbtcUSDC}, notifier)

	report := loop.RunOnce(context.Background())

	assert.NotEmpty(t, report.TickID)
	require.Len(t, report.Pairs, 2)
	assert.Equal(t, "WETH/USDC", report.Pairs[0].Pair)
	assert.Equal(t, detector.OutcomeAccepted, report.Pairs[0].Outcome)
	assert.Equal(t, "WBTC/USDC", report.Pairs[1].Pair)
	assert.Equal(t, detector.OutcomeBelowThreshold, report.Pairs[1].Outcome)

	accepted := report.Accepted()
	require.Len(t, accepted, 1)
	assert.Equal(t, "uniswap_v2", accepted[0].BuyVenue)
	assert.Equal(t, "quickswap", accepted[0].SellVenue)

	assert.Equal(t, 1, store.count())
	assert.Equal(t, 1, notifier.calls)
	assert.Len(t, notifier.notified, 1)
	assert.Zero(t, report.Errors())
}

func TestRunOnce_InsufficientQuotesIsNotAnError(t *testing.T) {
	store := &mockStore{}
	srcs := []ports.PriceSource{
		pairSource{name: "a", prices: map[string]string{"WETH/USDC": "100"}},
		pairSource{name: "b", prices: map[string]string{}},
	}
	report := newLoop(t, store, srcs, []domain.TokenPair{wethUSDC}).RunOnce(context.Background())

	require.Len(t, report.Pairs, 1)
	assert.Equal(t, detector.OutcomeInsufficientQuotes, report.Pairs[0].Outcome)
	assert.Equal(t, 1, report.Pairs[0].Quotes)
	assert.Equal(t, 1, report.Pairs[0].Failures)
	assert.NoError(t, report.Pairs[0].Err)
	assert.Zero(t, store.count())
}

func TestRunOnce_StorageFailureDoesNotStopNextTick(t *testing.T) {
	store := &mockStore{}
	store.setErr(errors.New("database is locked"))
	srcs := []ports.PriceSource{
		pairSource{name: "a", prices: map[string]string{"WETH/USDC": "100"}},
		pairSource{name: "b", prices: map[string]string{"WETH/USDC": "110"}},
	}
	notifier := &mockNotifier{}
	loop := newLoop(t, store, srcs, []domain.TokenPair{wethUSDC}, notifier)

	first := loop.RunOnce(context.Background())
	require.Len(t, first.Pairs, 1)
	assert.ErrorIs(t, first.Pairs[0].Err, domain.ErrStorage)
	assert.Equal(t, detector.OutcomeAccepted, first.Pairs[0].Outcome)
	assert.Equal(t, 1, first.Errors())
	assert.Empty(t, first.Accepted(), "la oportunidad no persistida se pierde")
	assert.Empty(t, notifier.notified)

	store.setErr(nil)
	second := loop.RunOnce(context.Background())
	assert.Zero(t, second.Errors())
	require.Len(t, notifier.notified, 1)
	assert.Equal(t, int64(1), notifier.notified[0].ID)
	assert.NotEqual(t, first.TickID, second.TickID)
	assert.Equal(t, 1, store.count())
}

func TestRunOnce_HungVenueDoesNotBlockOpportunity(t *testing.T) {
	block := make(chan struct{})
	t.Cleanup(func() { close(block) })

	store := &mockStore{}
	srcs := []ports.PriceSource{
		&mockSource{name: "hung", price: "1", block: block},
		&mockSource{name: "a", price: "3000"},
		&mockSource{name: "b", price: "3060"},
	}
	agg := detector.NewAggregator(detector.AggregatorConfig{FetchTimeout: 50 * time.Millisecond}, srcs)
	ev := detector.NewEvaluator(defaultEvalConfig(agg.Venues()...), store, nil)
	loop := detector.New(detector.Config{Interval: time.Minute, Pairs: []domain.TokenPair{wethUSDC}}, agg, ev)

	report := loop.RunOnce(context.Background())

	require.Len(t, report.Pairs, 1)
	res := report.Pairs[0]
	assert.Equal(t, detector.OutcomeAccepted, res.Outcome)
	assert.Equal(t, 2, res.Quotes)
	assert.Equal(t, 1, res.Failures)
	require.NotNil(t, res.Opportunity)
	assert.Equal(t, "a", res.Opportunity.BuyVenue)
	assert.Equal(t, "b", res.Opportunity.SellVenue)
	assert.Equal(t, 1, store.count())
	assert.Less(t, report.Duration, time.Second)
}

func TestRunOnce_NotifierErrorIsLoggedOnly(t *testing.T) {
	failing := &mockNotifier{err: errors.New("redis down")}
	ok := &mockNotifier{}
	srcs := []ports.PriceSource{
		pairSource{name: "a", prices: map[string]string{"WETH/USDC": "100"}},
		pairSource{name: "b", prices: map[string]string{"WETH/USDC": "110"}},
	}
	report := newLoop(t, nil, srcs, []domain.TokenPair{wethUSDC}, failing, ok).RunOnce(context.Background())

	assert.Len(t, report.Accepted(), 1)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, ok.calls)
}

// --- Run ---

func TestRun_TicksUntilCancelled(t *testing.T) {
	store := &mockStore{}
	srcs := []ports.PriceSource{
		pairSource{name: "a", prices: map[string]string{"WETH/USDC": "100"}},
		pairSource{name: "b", prices: map[string]string{"WETH/USDC": "110"}},
	}
	loop := newLoop(t, store, srcs, []domain.TokenPair{wethUSDC})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- loop.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Run no terminó tras cancelar el contexto")
	}
	assert.GreaterOrEqual(t, store.count(), 2, "primer tick inmediato más al menos uno del ticker")
}

func TestRun_OnceRunsSingleTick(t *testing.T) {
	store := &mockStore{}
	srcs := []ports.PriceSource{
		pairSource{name: "a", prices: map[string]string{"WETH/USDC": "100"}},
		pairSource{name: "b", prices: map[string]string{"WETH/USDC": "110"}},
	}
	agg := detector.NewAggregator(detector.AggregatorConfig{}, srcs)
	ev := detector.NewEvaluator(defaultEvalConfig(agg.Venues()...), store, nil)
	loop := detector.New(detector.Config{Interval: time.Hour, Pairs: []domain.TokenPair{wethUSDC}, Once: true}, agg, ev)

	require.NoError(t, loop.Run(context.Background()))
	assert.Equal(t, 1, store.count())
}
