package dex

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// StaticSource returns fixed prices keyed by pair label ("WETH/USDC").
// Used in dry-run mode and for venues without an on-chain endpoint.
type StaticSource struct {
	name   string
	prices map[string]decimal.Decimal
}

// NewStaticSource parses the configured prices. Prices must be positive decimals.
func NewStaticSource(name string, prices map[string]string) (*StaticSource, error) {
	parsed := make(map[string]decimal.Decimal, len(prices))
	for label, raw := range prices {
		p, err := decimal.NewFromString(raw)
		if err != nil {
			return nil, fmt.Errorf("dex: venue %s: price for %s: %w: %w", name, label, domain.ErrConfig, err)
		}
		if !p.IsPositive() {
			return nil, fmt.Errorf("dex: venue %s: price for %s must be positive: %w", name, label, domain.ErrConfig)
		}
		parsed[label] = p
	}
	return &StaticSource{name: name, prices: parsed}, nil
}

// Name returns the venue label.
func (s *StaticSource) Name() string { return s.name }

// FetchQuote returns the configured price, or UnsupportedPair if there is none.
func (s *StaticSource) FetchQuote(ctx context.Context, pair domain.TokenPair) (domain.PriceQuote, error) {
	if err := ctx.Err(); err != nil {
		return domain.PriceQuote{}, domain.NewFetchError(s.name, domain.FailureNetwork, err)
	}
	price, ok := s.prices[pair.Label()]
	if !ok {
		return domain.PriceQuote{}, domain.NewFetchError(s.name, domain.FailureUnsupportedPair,
			fmt.Errorf("no static price for %s", pair.Label()))
	}
	return domain.PriceQuote{
		Venue:      s.name,
		Pair:       pair,
		Price:      price,
		Liquidity:  decimal.Zero,
		CapturedAt: time.Now().UTC(),
	}, nil
}
