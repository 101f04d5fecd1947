package main

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/config"
	"github.com/alejandrodnm/polyarb/internal/domain"
)

func staticConfig(t *testing.T) *config.Config {
	t.Helper()
	off := false
	return &config.Config{
		Chain: config.ChainConfig{ChainID: 137},
		Gas:   config.GasConfig{PriceGwei: 30},
		Tokens: map[string]config.TokenConfig{
			"WETH": {Address: "0x7ceB23fD6bC0adD59E62ac25578270cFf1b9f619", Decimals: 18},
			"USDC": {Address: "0x2791Bca1f2de4661ED88A30C99A7a9449Aa84174", Decimals: 6},
		},
		Pairs: []config.PairConfig{{Base: "WETH", Quote: "USDC"}},
		Venues: []config.VenueConfig{
			{Name: "a", Kind: config.KindStatic, Prices: map[string]string{"WETH/USDC": "3000"}},
			{Name: "off", Kind: config.KindStatic, Enabled: &off, Prices: map[string]string{"WETH/USDC": "1"}},
			{Name: "b", Kind: config.KindStatic, Prices: map[string]string{"WETH/USDC": "3060"}},
		},
		Storage: config.StorageConfig{Driver: "sqlite", DSN: filepath.Join(t.TempDir(), "polyarb.db")},
		Notify:  config.NotifyConfig{Console: true},
	}
}

func TestBuildSources_StaticVenuesInOrder(t *testing.T) {
	cfg := staticConfig(t)

	sources, err := buildSources(context.Background(), cfg)
	require.NoError(t, err)
	require.Len(t, sources, 2)
	assert.Equal(t, "a", sources[0].Name())
	assert.Equal(t, "b", sources[1].Name())

	pairs, err := cfg.TokenPairs()
	require.NoError(t, err)
	q, err := sources[1].FetchQuote(context.Background(), pairs[0])
	require.NoError(t, err)
	assert.True(t, q.Price.Equal(decimal.NewFromInt(3060)))
}

func TestBuildSources_UnknownKind(t *testing.T) {
	cfg := staticConfig(t)
	cfg.Venues = append(cfg.Venues, config.VenueConfig{Name: "x", Kind: "carrier_pigeon"})

	_, err := buildSources(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown kind")
}

func TestBuildGasPricer_Static(t *testing.T) {
	gas, err := buildGasPricer(context.Background(), staticConfig(t))
	require.NoError(t, err)

	gwei, err := gas.GasPriceGwei(context.Background())
	require.NoError(t, err)
	assert.InDelta(t, 30.0, gwei, 1e-9)
}

func TestOpenStore_SQLiteAndPrune(t *testing.T) {
	cfg := staticConfig(t)
	store, err := openStore(context.Background(), cfg)
	require.NoError(t, err)
	defer store.Close()

	old := domain.ArbitrageOpportunity{
		Timestamp:        time.Now().Add(-48 * time.Hour),
		Pair:             "WETH/USDC",
		BuyVenue:         "a",
		SellVenue:        "b",
		BuyPrice:         decimal.NewFromInt(3000),
		SellPrice:        decimal.NewFromInt(3060),
		PriceDelta:       decimal.NewFromInt(60),
		GrossProfit:      decimal.NewFromInt(20),
		NetProfit:        decimal.NewFromInt(20),
		ProfitPercentage: decimal.NewFromInt(2),
		TradeNotional:    decimal.NewFromInt(1000),
		GasCost:          decimal.Zero,
	}
	_, err = store.Save(context.Background(), old)
	require.NoError(t, err)

	fresh := old
	fresh.Timestamp = time.Now()
	_, err = store.Save(context.Background(), fresh)
	require.NoError(t, err)

	pruneHistory(context.Background(), store, 24*time.Hour)

	opps, err := store.ListRecent(context.Background(), 10)
	require.NoError(t, err)
	assert.Len(t, opps, 1)
}

func TestBuildNotifiers_ConsoleOnly(t *testing.T) {
	notifiers, closeAll, err := buildNotifiers(context.Background(), staticConfig(t))
	require.NoError(t, err)
	defer closeAll()
	assert.Len(t, notifiers, 1)
}
