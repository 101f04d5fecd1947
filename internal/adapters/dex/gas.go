package dex

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

const defaultGasCacheTTL = 30 * time.Second

// GasPriceSuggester is the subset of ethclient.Client used by GasOracle.
type GasPriceSuggester interface {
	SuggestGasPrice(ctx context.Context) (*big.Int, error)
}

// GasOracle implements ports.GasPricer using eth_gasPrice, caching the value
// to avoid one RPC call per pair per tick.
type GasOracle struct {
	client GasPriceSuggester
	ttl    time.Duration
	now    func() time.Time

	mu        sync.RWMutex
	cachedWei *big.Int
	updatedAt time.Time
}

// NewGasOracle creates a GasOracle. ttl <= 0 uses the default.
func NewGasOracle(client GasPriceSuggester, ttl time.Duration) *GasOracle {
	if ttl <= 0 {
		ttl = defaultGasCacheTTL
	}
	return &GasOracle{client: client, ttl: ttl, now: time.Now}
}

// GasPriceGwei returns the current gas price in gwei. On RPC failure a stale
// cached value is preferred over an error; with nothing cached the error is
// returned and the caller falls back to its configured price.
func (o *GasOracle) GasPriceGwei(ctx context.Context) (float64, error) {
	o.mu.RLock()
	cached := o.cachedWei
	updatedAt := o.updatedAt
	o.mu.RUnlock()

	if cached != nil && o.now().Sub(updatedAt) < o.ttl {
		return weiToGwei(cached), nil
	}

	price, err := o.client.SuggestGasPrice(ctx)
	if err != nil || price == nil || price.Sign() < 0 {
		if err == nil {
			err = fmt.Errorf("invalid gas price %v", price)
		}
		if cached != nil {
			slog.Warn("gas price refresh failed, using cached value", "gwei", weiToGwei(cached), "err", err)
			return weiToGwei(cached), nil
		}
		return 0, fmt.Errorf("dex.GasPriceGwei: %w", err)
	}

	o.mu.Lock()
	o.cachedWei = new(big.Int).Set(price)
	o.updatedAt = o.now()
	o.mu.Unlock()

	gwei := weiToGwei(price)
	slog.Debug("gas price refreshed", "gwei", gwei)
	return gwei, nil
}

func weiToGwei(wei *big.Int) float64 {
	return decimal.NewFromBigInt(wei, -9).InexactFloat64()
}
