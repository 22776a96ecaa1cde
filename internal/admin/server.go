// Package admin serves the read-only ledger views, metrics and an operator
// path for submitting operations over HTTP.
package admin

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"engine/internal/bus"
	"engine/internal/codec"
	"engine/internal/errors"
	"engine/internal/ledger"
	"engine/internal/obs"
	"engine/internal/schema"
)

const queryTimeout = 2 * time.Second

// Ledger runs read functions against the live store.
type Ledger interface {
	Query(ctx context.Context, fn func(*ledger.Store)) error
}

// Publisher enqueues operations without blocking.
type Publisher interface {
	TryPublish(m bus.Message) error
}

type Server struct {
	ledger    Ledger
	publisher Publisher
	metrics   *obs.Metrics
	gatherer  prometheus.Gatherer
	now       func() time.Time
	router    *gin.Engine
}

func NewServer(l Ledger, publisher Publisher, metrics *obs.Metrics, gatherer prometheus.Gatherer) *Server {
	s := &Server{
		ledger:    l,
		publisher: publisher,
		metrics:   metrics,
		gatherer:  gatherer,
		now:       time.Now,
		router:    gin.New(),
	}
	s.router.Use(gin.Recovery())
	s.registerRoutes()
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

func (s *Server) registerRoutes() {
	s.router.GET("/healthz", s.healthz)
	s.router.GET("/stats", s.stats)
	if s.gatherer != nil {
		s.router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{})))
	}

	wallets := s.router.Group("/wallets")
	{
		wallets.GET("", s.listWallets)
		wallets.GET("/:clientID", s.clientWallets)
	}

	ops := s.router.Group("/operations")
	{
		ops.POST("/cash", s.submitCash)
		ops.POST("/balance", s.submitBalance)
	}
}

func (s *Server) healthz(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) stats(c *gin.Context) {
	c.JSON(http.StatusOK, s.metrics.Snapshot())
}

func (s *Server) listWallets(c *gin.Context) {
	var wallets []schema.Wallet
	if !s.query(c, func(st *ledger.Store) { wallets = st.Snapshot() }) {
		return
	}
	c.JSON(http.StatusOK, gin.H{"wallets": wallets})
}

func (s *Server) clientWallets(c *gin.Context) {
	clientID := c.Param("clientID")
	var wallets []schema.Wallet
	if !s.query(c, func(st *ledger.Store) { wallets = st.ClientWallets(clientID) }) {
		return
	}
	if len(wallets) == 0 {
		c.JSON(http.StatusNotFound, gin.H{"error": "no wallets for client " + clientID})
		return
	}
	c.JSON(http.StatusOK, gin.H{"clientId": clientID, "wallets": wallets})
}

func (s *Server) query(c *gin.Context, fn func(*ledger.Store)) bool {
	ctx, cancel := context.WithTimeout(c.Request.Context(), queryTimeout)
	defer cancel()
	if err := s.ledger.Query(ctx, fn); err != nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
		return false
	}
	return true
}

type cashRequest struct {
	ID       string  `json:"id"`
	ClientID string  `json:"clientId" binding:"required"`
	AssetID  string  `json:"assetId" binding:"required"`
	Volume   float64 `json:"volume"`
}

type balanceRequest struct {
	UID      int64   `json:"uid"`
	ClientID string  `json:"clientId" binding:"required"`
	AssetID  string  `json:"assetId" binding:"required"`
	Amount   float64 `json:"amount"`
}

func (s *Server) submitCash(c *gin.Context) {
	var req cashRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload := codec.EncodeCashInOutOperation(nil, schema.CashInOutOperation{
		ID:        req.ID,
		ClientID:  req.ClientID,
		AssetID:   req.AssetID,
		Volume:    req.Volume,
		Timestamp: s.now().UnixMilli(),
	})
	s.publish(c, schema.MessageCashInOutOperation, payload)
}

func (s *Server) submitBalance(c *gin.Context) {
	var req balanceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	payload := codec.EncodeBalanceUpdate(nil, schema.BalanceUpdate{
		UID:      req.UID,
		ClientID: req.ClientID,
		AssetID:  req.AssetID,
		Amount:   req.Amount,
	})
	s.publish(c, schema.MessageBalanceUpdate, payload)
}

func (s *Server) publish(c *gin.Context, t schema.MessageType, payload []byte) {
	header := schema.NewHeader(t, 0, s.now().UnixNano())
	err := s.publisher.TryPublish(bus.Message{Header: header, Payload: payload})
	switch {
	case err == nil:
		c.JSON(http.StatusAccepted, gin.H{"status": "queued"})
	case errors.Is(err, bus.ErrQueueFull):
		s.metrics.IncQueueDrop()
		c.JSON(http.StatusTooManyRequests, gin.H{"error": err.Error()})
	default:
		s.metrics.IncQueueClosed()
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": err.Error()})
	}
}
