package quoteapi

// HTTP price source for aggregator quote APIs (1inch-style):
//
//	GET {base}/{chainID}/quote?src=<base token>&dst=<quote token>&amount=<10^decimals>
//	→ {"dstAmount": "3456789012"}
//
// Each Source owns its http.Client and rate limiter. 429 and 5xx are retried
// with exponential backoff inside the caller's deadline.

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"math/big"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/time/rate"

	"github.com/alejandrodnm/polyarb/internal/domain"
)

const (
	defaultBaseURL = "https://api.1inch.dev/swap/v6.0"

	// 1inch dev tier: 1 rps. Se deja margen.
	defaultRatePerSec = 0.8

	maxRetries    = 2
	baseRetryWait = 250 * time.Millisecond
)

// Config describes one quote API venue.
type Config struct {
	Name       string
	BaseURL    string
	APIKey     string
	ChainID    int64
	RatePerSec float64
}

// Source implements ports.PriceSource over an HTTP quote endpoint.
type Source struct {
	name    string
	http    *http.Client
	baseURL string
	apiKey  string
	chainID int64
	limiter *rate.Limiter
	wait    time.Duration
}

// New creates a Source. An empty BaseURL uses the public 1inch endpoint.
func New(cfg Config) *Source {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.RatePerSec <= 0 {
		cfg.RatePerSec = defaultRatePerSec
	}
	return &Source{
		name:    cfg.Name,
		http:    &http.Client{Timeout: 10 * time.Second},
		baseURL: cfg.BaseURL,
		apiKey:  cfg.APIKey,
		chainID: cfg.ChainID,
		limiter: rate.NewLimiter(rate.Limit(cfg.RatePerSec), 1),
		wait:    baseRetryWait,
	}
}

// Name returns the venue label.
func (s *Source) Name() string { return s.name }

type quoteResponse struct {
	DstAmount string `json:"dstAmount"`
}

// FetchQuote asks the API how much quote token one base token buys.
func (s *Source) FetchQuote(ctx context.Context, pair domain.TokenPair) (domain.PriceQuote, error) {
	amountIn := domain.UnitAmount(pair.Base.Decimals)

	q := url.Values{}
	q.Set("src", pair.Base.Address)
	q.Set("dst", pair.Quote.Address)
	q.Set("amount", amountIn.String())
	endpoint := fmt.Sprintf("%s/%s/quote?%s", s.baseURL, strconv.FormatInt(s.chainID, 10), q.Encode())

	var resp quoteResponse
	if err := s.get(ctx, endpoint, &resp); err != nil {
		return domain.PriceQuote{}, err
	}

	amountOut, ok := new(big.Int).SetString(resp.DstAmount, 10)
	if !ok {
		return domain.PriceQuote{}, s.fail(domain.FailureMalformed, fmt.Errorf("dstAmount %q is not an integer", resp.DstAmount))
	}
	price, ok := domain.PriceFromAmounts(amountIn, amountOut, pair.Base.Decimals, pair.Quote.Decimals)
	if !ok {
		return domain.PriceQuote{}, s.fail(domain.FailureMalformed, fmt.Errorf("non-positive dstAmount %s", amountOut))
	}

	return domain.PriceQuote{
		Venue:      s.name,
		Pair:       pair,
		Price:      price,
		Liquidity:  decimal.Zero,
		CapturedAt: time.Now().UTC(),
	}, nil
}

// get hace un GET con rate limiting y retries, clasificando el fallo.
func (s *Source) get(ctx context.Context, endpoint string, out any) error {
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			s.sleep(ctx, attempt-1)
		}
		if err := s.limiter.Wait(ctx); err != nil {
			return s.fail(domain.FailureNetwork, fmt.Errorf("rate limiter: %w", err))
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
		if err != nil {
			return s.fail(domain.FailureNetwork, fmt.Errorf("build request: %w", err))
		}
		req.Header.Set("Accept", "application/json")
		if s.apiKey != "" {
			req.Header.Set("Authorization", "Bearer "+s.apiKey)
		}

		resp, err := s.http.Do(req)
		if err != nil {
			lastErr = err
			if ctx.Err() != nil {
				break
			}
			continue
		}

		switch {
		case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500:
			resp.Body.Close()
			lastErr = fmt.Errorf("status %d", resp.StatusCode)
			slog.Debug("quote api retry", "venue", s.name, "status", resp.StatusCode, "attempt", attempt+1)
			continue

		case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
			resp.Body.Close()
			slog.Error("quote api rejected credentials", "venue", s.name, "status", resp.StatusCode)
			return s.fail(domain.FailureNetwork, fmt.Errorf("auth error %d: check api_key", resp.StatusCode))

		case resp.StatusCode >= 400:
			body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
			resp.Body.Close()
			return s.fail(domain.FailureUnsupportedPair, fmt.Errorf("client error %d: %s", resp.StatusCode, body))
		}

		err = json.NewDecoder(resp.Body).Decode(out)
		resp.Body.Close()
		if err != nil {
			return s.fail(domain.FailureMalformed, fmt.Errorf("decode response: %w", err))
		}
		return nil
	}
	if lastErr == nil {
		lastErr = errors.New("no attempt made")
	}
	return s.fail(domain.FailureNetwork, fmt.Errorf("request failed after %d retries: %w", maxRetries, lastErr))
}

// sleep espera con backoff exponencial, respetando el contexto.
func (s *Source) sleep(ctx context.Context, attempt int) {
	wait := time.Duration(math.Pow(2, float64(attempt))) * s.wait
	select {
	case <-time.After(wait):
	case <-ctx.Done():
	}
}

func (s *Source) fail(kind domain.FailureKind, err error) error {
	return domain.NewFetchError(s.name, kind, err)
}
