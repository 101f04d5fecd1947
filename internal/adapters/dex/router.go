package dex

// On-chain price source for Uniswap-V2-compatible routers (Uniswap V2, QuickSwap,
// SushiSwap on Polygon).
//
// The quote is a single fixed-size probe: getAmountsOut(10^baseDecimals,
// [base, quote]). When a factory address is configured, the pair reserves are
// read as well to fill PriceQuote.Liquidity.

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math/big"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/ethereum/go-ethereum/rpc"
	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

// Contract ABIs
var (
	routerABI  abi.ABI
	factoryABI abi.ABI
	pairABI    abi.ABI
)

func init() {
	var err error

	routerABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getAmountsOut",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "amountIn", "type": "uint256"},
				{"name": "path", "type": "address[]"}
			],
			"outputs": [{"name": "amounts", "type": "uint256[]"}]
		}
	]`))
	if err != nil {
		panic("router abi parse: " + err.Error())
	}

	factoryABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getPair",
			"type": "function",
			"stateMutability": "view",
			"inputs": [
				{"name": "tokenA", "type": "address"},
				{"name": "tokenB", "type": "address"}
			],
			"outputs": [{"name": "pair", "type": "address"}]
		}
	]`))
	if err != nil {
		panic("factory abi parse: " + err.Error())
	}

	pairABI, err = abi.JSON(strings.NewReader(`[
		{
			"name": "getReserves",
			"type": "function",
			"stateMutability": "view",
			"inputs": [],
			"outputs": [
				{"name": "reserve0", "type": "uint112"},
				{"name": "reserve1", "type": "uint112"},
				{"name": "blockTimestampLast", "type": "uint32"}
			]
		}
	]`))
	if err != nil {
		panic("pair abi parse: " + err.Error())
	}
}

// ContractCaller is the read-only subset of ethclient.Client used by RouterSource.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dial connects to an EVM JSON-RPC endpoint.
func Dial(ctx context.Context, rpcURL string) (*ethclient.Client, error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, fmt.Errorf("dex: dial rpc %s: %w", rpcURL, err)
	}
	return client, nil
}

// RouterSource implements ports.PriceSource against a V2 router contract.
type RouterSource struct {
	name    string
	caller  ContractCaller
	router  common.Address
	factory common.Address // zero = no liquidity probe
	limiter *rate.Limiter
	now     func() time.Time
}

// RouterConfig describes one router venue.
type RouterConfig struct {
	Name           string
	RouterAddress  string
	FactoryAddress string  // optional
	RatePerSec     float64 // 0 = unlimited
}

// NewRouterSource creates a router venue. Each venue owns its caller and limiter.
func NewRouterSource(cfg RouterConfig, caller ContractCaller) (*RouterSource, error) {
	if !common.IsHexAddress(cfg.RouterAddress) {
		return nil, fmt.Errorf("dex: venue %s: invalid router address %q: %w", cfg.Name, cfg.RouterAddress, domain.ErrConfig)
	}
	var factory common.Address
	if cfg.FactoryAddress != "" {
		if !common.IsHexAddress(cfg.FactoryAddress) {
			return nil, fmt.Errorf("dex: venue %s: invalid factory address %q: %w", cfg.Name, cfg.FactoryAddress, domain.ErrConfig)
		}
		factory = common.HexToAddress(cfg.FactoryAddress)
	}

	limit := rate.Inf
	if cfg.RatePerSec > 0 {
		limit = rate.Limit(cfg.RatePerSec)
	}

	return &RouterSource{
		name:    cfg.Name,
		caller:  caller,
		router:  common.HexToAddress(cfg.RouterAddress),
		factory: factory,
		limiter: rate.NewLimiter(limit, 1),
		now:     time.Now,
	}, nil
}

// Name returns the venue label.
func (s *RouterSource) Name() string { return s.name }

// FetchQuote asks the router how much quote token one base token buys.
func (s *RouterSource) FetchQuote(ctx context.Context, pair domain.TokenPair) (domain.PriceQuote, error) {
	if err := s.limiter.Wait(ctx); err != nil {
		return domain.PriceQuote{}, s.fail(domain.FailureNetwork, fmt.Errorf("rate limiter: %w", err))
	}

	base := common.HexToAddress(pair.Base.Address)
	quote := common.HexToAddress(pair.Quote.Address)
	amountIn := domain.UnitAmount(pair.Base.Decimals)

	callData, err := routerABI.Pack("getAmountsOut", amountIn, []common.Address{base, quote})
	if err != nil {
		return domain.PriceQuote{}, s.fail(domain.FailureMalformed, fmt.Errorf("pack getAmountsOut: %w", err))
	}

	out, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &s.router, Data: callData}, nil)
	if err != nil {
		return domain.PriceQuote{}, s.fail(classifyCallError(err), fmt.Errorf("getAmountsOut: %w", err))
	}
	if len(out) == 0 {
		return domain.PriceQuote{}, s.fail(domain.FailureMalformed, errors.New("getAmountsOut: empty response"))
	}

	vals, err := routerABI.Unpack("getAmountsOut", out)
	if err != nil || len(vals) == 0 {
		return domain.PriceQuote{}, s.fail(domain.FailureMalformed, fmt.Errorf("unpack getAmountsOut: %w", err))
	}
	amounts, ok := vals[0].([]*big.Int)
	if !ok || len(amounts) != 2 {
		return domain.PriceQuote{}, s.fail(domain.FailureMalformed, fmt.Errorf("getAmountsOut: unexpected amounts %v", vals[0]))
	}

	price, ok := domain.PriceFromAmounts(amountIn, amounts[1], pair.Base.Decimals, pair.Quote.Decimals)
	if !ok {
		return domain.PriceQuote{}, s.fail(domain.FailureMalformed, fmt.Errorf("getAmountsOut: non-positive amount out %s", amounts[1]))
	}

	q := domain.PriceQuote{
		Venue:      s.name,
		Pair:       pair,
		Price:      price,
		Liquidity:  decimal.Zero,
		CapturedAt: s.now().UTC(),
	}

	if s.factory != (common.Address{}) {
		// liquidity is informational; a failed probe keeps the quote
		liq, err := s.liquidity(ctx, base, quote, pair.Quote.Decimals)
		if err != nil {
			slog.Debug("liquidity probe failed", "venue", s.name, "pair", pair.Label(), "err", err)
		} else {
			q.Liquidity = liq
		}
	}
	return q, nil
}

// liquidity returns the quote-token reserve of the base/quote pool.
func (s *RouterSource) liquidity(ctx context.Context, base, quote common.Address, quoteDecimals uint8) (decimal.Decimal, error) {
	callData, err := factoryABI.Pack("getPair", base, quote)
	if err != nil {
		return decimal.Zero, s.fail(domain.FailureMalformed, fmt.Errorf("pack getPair: %w", err))
	}
	out, err := s.caller.CallContract(ctx, ethereum.CallMsg{To: &s.factory, Data: callData}, nil)
	if err != nil {
		return decimal.Zero, s.fail(classifyCallError(err), fmt.Errorf("getPair: %w", err))
	}
	vals, err := factoryABI.Unpack("getPair", out)
	if err != nil || len(vals) == 0 {
		return decimal.Zero, s.fail(domain.FailureMalformed, fmt.Errorf("unpack getPair: %w", err))
	}
	pairAddr, ok := vals[0].(common.Address)
	if !ok {
		return decimal.Zero, s.fail(domain.FailureMalformed, fmt.Errorf("getPair: unexpected value %v", vals[0]))
	}
	if pairAddr == (common.Address{}) {
		return decimal.Zero, s.fail(domain.FailureUnsupportedPair, errors.New("factory has no pool for pair"))
	}

	callData, err = pairABI.Pack("getReserves")
	if err != nil {
		return decimal.Zero, s.fail(domain.FailureMalformed, fmt.Errorf("pack getReserves: %w", err))
	}
	out, err = s.caller.CallContract(ctx, ethereum.CallMsg{To: &pairAddr, Data: callData}, nil)
	if err != nil {
		return decimal.Zero, s.fail(classifyCallError(err), fmt.Errorf("getReserves: %w", err))
	}
	vals, err = pairABI.Unpack("getReserves", out)
	if err != nil || len(vals) < 2 {
		return decimal.Zero, s.fail(domain.FailureMalformed, fmt.Errorf("unpack getReserves: %w", err))
	}
	r0, ok0 := vals[0].(*big.Int)
	r1, ok1 := vals[1].(*big.Int)
	if !ok0 || !ok1 {
		return decimal.Zero, s.fail(domain.FailureMalformed, errors.New("getReserves: unexpected reserve types"))
	}

	// V2 pools sort tokens by address: token0 < token1
	reserve := r1
	if bytes.Compare(quote.Bytes(), base.Bytes()) < 0 {
		reserve = r0
	}
	return decimal.NewFromBigInt(reserve, -int32(quoteDecimals)), nil
}

func (s *RouterSource) fail(kind domain.FailureKind, err error) error {
	return domain.NewFetchError(s.name, kind, err)
}

// classifyCallError separates contract reverts (the router has no path for the
// pair) from transport failures.
func classifyCallError(err error) domain.FailureKind {
	var dataErr rpc.DataError
	if errors.As(err, &dataErr) || strings.Contains(err.Error(), "execution reverted") {
		return domain.FailureUnsupportedPair
	}
	return domain.FailureNetwork
}
