package dex

import (
	"context"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

func TestStaticSource(t *testing.T) {
	src, err := NewStaticSource("fixture", map[string]string{"WETH/USDC": "3012.25"})
	require.NoError(t, err)
	assert.Equal(t, "fixture", src.Name())

	q, err := src.FetchQuote(context.Background(), wethUSDC)
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.RequireFromString("3012.25")))
	assert.Equal(t, "fixture", q.Venue)

	other := domain.TokenPair{Base: domain.Token{Symbol: "WBTC"}, Quote: usdc}
	_, err = src.FetchQuote(context.Background(), other)
	assert.ErrorIs(t, err, domain.ErrUnsupportedPair)
}

func TestNewStaticSource_RejectsBadPrices(t *testing.T) {
	for _, raw := range []string{"abc", "0", "-1"} {
		_, err := NewStaticSource("fixture", map[string]string{"WETH/USDC": raw})
		assert.ErrorIs(t, err, domain.ErrConfig, "price %q", raw)
	}
}
