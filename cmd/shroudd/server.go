// server.go - HTTP surface for the UI/orchestration layer
package main

import (
	"context"
	"crypto/rand"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"shroud/internal/asset"
	"shroud/internal/common"
	"shroud/internal/pool"
)

// Server exposes account management, the three pipelines, and progress
// reads over HTTP.
type Server struct {
	pool    *pool.Pool
	health  *HealthChecker
	limiter *AccountRateLimiter
	stats   *StatsCollector
	log     zerolog.Logger
}

// NewServer creates the HTTP surface around a pool.
func NewServer(p *pool.Pool, health *HealthChecker, limiter *AccountRateLimiter, stats *StatsCollector, log zerolog.Logger) *Server {
	return &Server{pool: p, health: health, limiter: limiter, stats: stats, log: log}
}

// Router builds the gin engine with all routes registered.
func (s *Server) Router() *gin.Engine {
	router := gin.New()
	router.Use(gin.Recovery())

	router.GET("/health", s.handleHealth)
	router.GET("/stats", s.handleStats)
	router.POST("/accounts", s.handleCreateAccount)
	router.GET("/accounts/:address", s.handleGetAccount)
	router.GET("/accounts/:address/progress", s.handleProgress)
	router.POST("/deposit", s.handleDeposit)
	router.POST("/withdraw", s.handleWithdraw)
	router.POST("/swap", s.handleSwap)
	return router
}

func (s *Server) handleHealth(c *gin.Context) {
	health := s.health.CheckHealth()
	status := http.StatusOK
	if health.OverallStatus == Unhealthy {
		status = http.StatusServiceUnavailable
	}
	c.JSON(status, health)
}

func (s *Server) handleStats(c *gin.Context) {
	c.JSON(http.StatusOK, s.stats.Summary())
}

// statusFor maps the failure taxonomy onto HTTP statuses. Every failure is
// operation-scoped and retryable, so nothing maps to a permanent class.
func statusFor(err error) int {
	switch {
	case errors.Is(err, pool.ErrAccountNotFound):
		return http.StatusNotFound
	case errors.Is(err, pool.ErrAccountAlreadyExists),
		errors.Is(err, pool.ErrOperationInFlight):
		return http.StatusConflict
	case errors.Is(err, pool.ErrLogUnavailable),
		errors.Is(err, pool.ErrProvingKeyUnavailable),
		errors.Is(err, pool.ErrSubmissionFailed),
		errors.Is(err, pool.ErrConfirmationTimeout):
		return http.StatusBadGateway
	case errors.Is(err, pool.ErrProofCancelled):
		return http.StatusServiceUnavailable
	case errors.Is(err, pool.ErrProofComputationFailed):
		return http.StatusInternalServerError
	default:
		return http.StatusBadRequest
	}
}

func (s *Server) fail(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

type createAccountRequest struct {
	Address string `json:"address" binding:"required"`
	// Nonce restores an existing secret; omitted means derive a fresh one.
	Nonce string `json:"nonce"`
}

func (s *Server) handleCreateAccount(c *gin.Context) {
	var req createAccountRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	var nonce common.Hash
	if req.Nonce != "" {
		parsed, err := common.HexToHash(req.Nonce)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid nonce: " + err.Error()})
			return
		}
		nonce = parsed
	} else {
		if _, err := rand.Read(nonce[:]); err != nil {
			s.fail(c, err)
			return
		}
	}
	acc, err := s.pool.Store().CreateAccount(req.Address, nonce)
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusCreated, acc)
}

func (s *Server) handleGetAccount(c *gin.Context) {
	acc, err := s.pool.Store().Account(c.Param("address"))
	if err != nil {
		s.fail(c, err)
		return
	}
	c.JSON(http.StatusOK, acc)
}

func (s *Server) handleProgress(c *gin.Context) {
	snap, ok := s.pool.Progress(c.Param("address"))
	if !ok {
		c.JSON(http.StatusNotFound, gin.H{"error": "no operation recorded for this account"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

// runOperation applies the per-account rate limit, runs one pipeline and
// records its outcome in the stats collector.
func (s *Server) runOperation(c *gin.Context, kind, address string, run func(ctx context.Context) (*pool.Receipt, error)) {
	if !s.limiter.Allow(address) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded for this account"})
		return
	}
	s.stats.OperationStarted(kind)
	start := time.Now()
	receipt, err := run(c.Request.Context())
	if err != nil {
		s.stats.OperationFailed(kind)
		s.fail(c, err)
		return
	}
	s.stats.OperationConfirmed(kind, time.Since(start))
	c.JSON(http.StatusOK, receipt)
}

type transferRequest struct {
	Address string   `json:"address" binding:"required"`
	Asset   asset.ID `json:"asset" binding:"required"`
	Amount  string   `json:"amount" binding:"required"`
}

func (s *Server) handleDeposit(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.runOperation(c, "deposit", req.Address, func(ctx context.Context) (*pool.Receipt, error) {
		return s.pool.Deposit(ctx, req.Address, req.Asset, req.Amount)
	})
}

func (s *Server) handleWithdraw(c *gin.Context) {
	var req transferRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.runOperation(c, "withdraw", req.Address, func(ctx context.Context) (*pool.Receipt, error) {
		return s.pool.Withdraw(ctx, req.Address, req.Asset, req.Amount)
	})
}

type swapRequest struct {
	Address     string   `json:"address" binding:"required"`
	Sell        asset.ID `json:"sell" binding:"required"`
	AmountOut   string   `json:"amountOut" binding:"required"`
	Buy         asset.ID `json:"buy" binding:"required"`
	MinReceived string   `json:"minReceived" binding:"required"`
}

func (s *Server) handleSwap(c *gin.Context) {
	var req swapRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	s.runOperation(c, "swap", req.Address, func(ctx context.Context) (*pool.Receipt, error) {
		return s.pool.Swap(ctx, req.Address, req.Sell, req.AmountOut, req.Buy, req.MinReceived)
	})
}
