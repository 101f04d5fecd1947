package httpapi

// Read-only HTTP API over the opportunity history.
//
//	GET /healthz
//	GET /api/v1/opportunities?limit=20&pair=WETH/USDC

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/alejandrodnm/polyarb/internal/domain"
	"github.com/alejandrodnm/polyarb/internal/ports"
)

const (
	defaultLimit = 20
	maxLimit     = 500
)

// OpportunitiesResponse is the body of GET /api/v1/opportunities.
type OpportunitiesResponse struct {
	Opportunities []domain.ArbitrageOpportunity `json:"opportunities"`
	Count         int                           `json:"count"`
	Limit         int                           `json:"limit"`
	Pair          string                        `json:"pair,omitempty"`
}

// Server serves the read API.
type Server struct {
	store  ports.OpportunityStore
	venues []string
	engine *gin.Engine
	srv    *http.Server
}

// New builds the server. venues is reported by /healthz.
func New(addr string, store ports.OpportunityStore, venues []string) *Server {
	engine := gin.New()
	engine.Use(gin.Recovery())

	s := &Server{
		store:  store,
		venues: venues,
		engine: engine,
		srv: &http.Server{
			Addr:              addr,
			Handler:           engine,
			ReadHeaderTimeout: 5 * time.Second,
		},
	}

	engine.GET("/healthz", s.health)
	v1 := engine.Group("/api/v1")
	v1.GET("/opportunities", s.listOpportunities)
	return s
}

// Handler exposes the router (tests).
func (s *Server) Handler() http.Handler { return s.engine }

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		slog.Info("api listening", "addr", s.srv.Addr)
		if err := s.srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("httpapi.Run: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("httpapi.Run: shutdown: %w", err)
	}
	slog.Info("api stopped")
	return nil
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"status":  "ok",
		"venues":  s.venues,
		"storage": s.store != nil,
		"time":    time.Now().UTC(),
	})
}

func (s *Server) listOpportunities(c *gin.Context) {
	if s.store == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "storage disabled (dry-run)"})
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultLimit)))
	if err != nil || limit < 1 || limit > maxLimit {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid limit parameter (1-%d)", maxLimit)})
		return
	}
	pair := c.Query("pair")

	var opps []domain.ArbitrageOpportunity
	if pair != "" {
		opps, err = s.store.ListByPair(c.Request.Context(), pair, limit)
	} else {
		opps, err = s.store.ListRecent(c.Request.Context(), limit)
	}
	if err != nil {
		slog.Error("list opportunities failed", "pair", pair, "err", err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to read opportunities"})
		return
	}

	c.JSON(http.StatusOK, OpportunitiesResponse{
		Opportunities: opps,
		Count:         len(opps),
		Limit:         limit,
		Pair:          pair,
	})
}
