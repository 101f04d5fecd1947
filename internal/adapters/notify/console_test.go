package notify_test

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/adapters/notify"
	"github.com/alejandrodnm/polyarb/internal/domain"
)

func makeOpp(pair, buy, sell string, net string) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		ID:               7,
		Timestamp:        time.Now(),
		Pair:             pair,
		BuyVenue:         buy,
		SellVenue:        sell,
		BuyPrice:         decimal.RequireFromString("3000"),
		SellPrice:        decimal.RequireFromString("3040"),
		PriceDelta:       decimal.RequireFromString("40"),
		GrossProfit:      decimal.RequireFromString("13.3333"),
		NetProfit:        decimal.RequireFromString(net),
		ProfitPercentage: decimal.RequireFromString("1.33"),
		TradeNotional:    decimal.NewFromInt(1000),
		GasCost:          decimal.RequireFromString("0.018"),
	}
}

func TestConsole_Notify_Compact(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, false)

	err := n.Notify(context.Background(), []domain.ArbitrageOpportunity{
		makeOpp("WETH/USDC", "uniswap_v2", "quickswap", "13.3153"),
		makeOpp("WBTC/USDC", "sushiswap", "uniswap_v2", "5.5"),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "WETH/USDC buy uniswap_v2")
	assert.Contains(t, out, "sell quickswap")
	assert.Contains(t, out, "net $13.3153")
	assert.Contains(t, out, "WBTC/USDC")
	assert.Equal(t, 2, bytes.Count(buf.Bytes(), []byte("\n")))
}

func TestConsole_Notify_Table(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	err := n.Notify(context.Background(), []domain.ArbitrageOpportunity{
		makeOpp("WETH/USDC", "uniswap_v2", "quickswap", "13.3153"),
	})
	require.NoError(t, err)

	out := buf.String()
	assert.Contains(t, out, "1 opportunities")
	assert.Contains(t, out, "WETH/USDC")
	assert.Contains(t, out, "3000.000000")
	assert.Contains(t, out, "13.3153")
}

func TestConsole_Notify_Empty(t *testing.T) {
	var buf bytes.Buffer
	n := notify.NewConsoleWriter(&buf, true)

	require.NoError(t, n.Notify(context.Background(), nil))
	assert.Contains(t, buf.String(), "no opportunities found")
}

func TestRenderTable_UnsavedHasNoID(t *testing.T) {
	var buf bytes.Buffer
	o := makeOpp("WETH/USDC", "a", "b", "1")
	o.ID = 0

	require.NoError(t, notify.RenderTable(&buf, []domain.ArbitrageOpportunity{o}))
	assert.Contains(t, buf.String(), "-")
	assert.Contains(t, buf.String(), "WETH/USDC")
}
