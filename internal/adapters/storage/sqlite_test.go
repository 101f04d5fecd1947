package storage_test

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alejandrodnm/polyarb/internal/adapters/storage"
	"github.com/alejandrodnm/polyarb/internal/domain"
)

func d(s string) decimal.Decimal { return decimal.RequireFromString(s) }

func makeOpportunity(pair string, at time.Time, net string) domain.ArbitrageOpportunity {
	return domain.ArbitrageOpportunity{
		Timestamp:        at.UTC(),
		Pair:             pair,
		BuyVenue:         "uniswap_v2",
		SellVenue:        "quickswap",
		BuyPrice:         d("3000.123456789012345678"),
		SellPrice:        d("3031.5"),
		PriceDelta:       d("31.376543210987654322"),
		GrossProfit:      d("10.45"),
		NetProfit:        d(net),
		ProfitPercentage: d("1.0347"),
		TradeNotional:    d("1000"),
		GasCost:          d("0.018"),
	}
}

func openSQLite(t *testing.T) *storage.SQLiteStorage {
	t.Helper()
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestSQLiteStorage_SaveAssignsIncreasingIDs(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	now := time.Now()

	id1, err := db.Save(ctx, makeOpportunity("WETH/USDC", now, "10"))
	require.NoError(t, err)
	id2, err := db.Save(ctx, makeOpportunity("WETH/USDC", now, "11"))
	require.NoError(t, err)

	assert.Positive(t, id1)
	assert.Greater(t, id2, id1)
}

func TestSQLiteStorage_RoundTripIsExact(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	at := time.Date(2026, 3, 14, 15, 9, 26, 535897932, time.UTC)
	opp := makeOpportunity("WETH/USDC", at, "10.432")

	id, err := db.Save(ctx, opp)
	require.NoError(t, err)

	got, err := db.ListRecent(ctx, 1)
	require.NoError(t, err)
	require.Len(t, got, 1)

	assert.Equal(t, id, got[0].ID)
	assert.True(t, got[0].Timestamp.Equal(at), "nanosegundos preservados")
	assert.Equal(t, "WETH/USDC", got[0].Pair)
	assert.Equal(t, "uniswap_v2", got[0].BuyVenue)
	assert.Equal(t, "quickswap", got[0].SellVenue)
	assert.True(t, got[0].BuyPrice.Equal(opp.BuyPrice), "buy=%s", got[0].BuyPrice)
	assert.True(t, got[0].PriceDelta.Equal(opp.PriceDelta))
	assert.True(t, got[0].NetProfit.Equal(opp.NetProfit))
	assert.True(t, got[0].ProfitPercentage.Equal(opp.ProfitPercentage))
	assert.True(t, got[0].GasCost.Equal(opp.GasCost))
}

func TestSQLiteStorage_ListRecentNewestFirstAndBounded(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	base := time.Now().Add(-time.Hour)

	// insertados desordenados; dos con el mismo timestamp
	offsets := []time.Duration{5, 1, 3, 3, 9, 0, 7}
	for i, off := range offsets {
		_, err := db.Save(ctx, makeOpportunity("WETH/USDC", base.Add(off*time.Second), fmt.Sprintf("%d", i)))
		require.NoError(t, err)
	}

	got, err := db.ListRecent(ctx, 5)
	require.NoError(t, err)
	require.Len(t, got, 5)

	for i := 1; i < len(got); i++ {
		prev, cur := got[i-1], got[i]
		assert.True(t,
			prev.Timestamp.After(cur.Timestamp) || (prev.Timestamp.Equal(cur.Timestamp) && prev.ID > cur.ID),
			"orden estrictamente descendente en %d", i)
	}
	assert.True(t, got[0].Timestamp.Equal(base.Add(9*time.Second).UTC()))

	all, err := db.ListRecent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, len(offsets))
}

func TestSQLiteStorage_ListRecentNonPositiveLimit(t *testing.T) {
	db := openSQLite(t)
	_, err := db.Save(context.Background(), makeOpportunity("WETH/USDC", time.Now(), "1"))
	require.NoError(t, err)

	for _, limit := range []int{0, -3} {
		got, err := db.ListRecent(context.Background(), limit)
		require.NoError(t, err)
		assert.Empty(t, got)
	}
}

func TestSQLiteStorage_ListByPair(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	now := time.Now()

	for i, pair := range []string{"WETH/USDC", "WBTC/USDC", "WETH/USDC"} {
		_, err := db.Save(ctx, makeOpportunity(pair, now.Add(time.Duration(i)*time.Second), "1"))
		require.NoError(t, err)
	}

	got, err := db.ListByPair(ctx, "WETH/USDC", 10)
	require.NoError(t, err)
	require.Len(t, got, 2)
	for _, o := range got {
		assert.Equal(t, "WETH/USDC", o.Pair)
	}

	none, err := db.ListByPair(ctx, "DAI/USDC", 10)
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestSQLiteStorage_Prune(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()
	now := time.Now()

	_, err := db.Save(ctx, makeOpportunity("WETH/USDC", now.Add(-40*24*time.Hour), "1"))
	require.NoError(t, err)
	_, err = db.Save(ctx, makeOpportunity("WETH/USDC", now, "2"))
	require.NoError(t, err)

	n, err := db.Prune(ctx, now.Add(-30*24*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	left, err := db.ListRecent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.True(t, left[0].NetProfit.Equal(d("2")))
}

func TestSQLiteStorage_ConcurrentSaves(t *testing.T) {
	db := openSQLite(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	ids := make([]int64, 20)
	errs := make([]error, 20)
	for i := range ids {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ids[i], errs[i] = db.Save(ctx, makeOpportunity("WETH/USDC", time.Now(), "1"))
		}()
	}
	wg.Wait()

	seen := map[int64]bool{}
	for i := range ids {
		require.NoError(t, errs[i])
		assert.False(t, seen[ids[i]], "id duplicado %d", ids[i])
		seen[ids[i]] = true
	}

	all, err := db.ListRecent(ctx, 100)
	require.NoError(t, err)
	assert.Len(t, all, 20)
}

func TestSQLiteStorage_ClosedDBReturnsStorageError(t *testing.T) {
	db, err := storage.NewSQLiteStorage(":memory:")
	require.NoError(t, err)
	require.NoError(t, db.Close())

	_, err = db.Save(context.Background(), makeOpportunity("WETH/USDC", time.Now(), "1"))
	assert.ErrorIs(t, err, domain.ErrStorage)
}
