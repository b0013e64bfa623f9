package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/ZentaChain/graphshake/pkg/protocol"
	"github.com/ZentaChain/graphshake/pkg/storage"
)

const maxListLimit = 500

// HealthResponse is returned by /health.
type HealthResponse struct {
	Status    string    `json:"status"`
	Version   string    `json:"version"`
	Role      string    `json:"role,omitempty"`
	Addr      string    `json:"addr,omitempty"`
	Uptime    string    `json:"uptime"`
	Timestamp time.Time `json:"timestamp"`
}

// HandshakesResponse is returned by the handshake listing routes.
type HandshakesResponse struct {
	Success    bool                       `json:"success"`
	Count      int                        `json:"count"`
	Handshakes []*storage.HandshakeRecord `json:"handshakes"`
}

// StatsResponse is returned by /api/v1/stats.
type StatsResponse struct {
	Success bool           `json:"success"`
	Ledger  *storage.Stats `json:"ledger,omitempty"`
	Handled uint64         `json:"handled"`
	Uptime  string         `json:"uptime"`
}

// handleHealth handles GET /health
func (s *Server) handleHealth(c *gin.Context) {
	resp := HealthResponse{
		Status:    "healthy",
		Version:   Version,
		Role:      s.role,
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		Timestamp: time.Now().UTC(),
	}
	if s.node != nil {
		resp.Addr = s.node.Addr()
	}
	c.JSON(http.StatusOK, resp)
}

// handleListHandshakes handles GET /api/v1/handshakes?limit=N
func (s *Server) handleListHandshakes(c *gin.Context) {
	if !s.requireLedger(c) {
		return
	}

	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			c.JSON(http.StatusBadRequest, ErrorResponse{
				Error:   "Invalid limit",
				Message: "limit must be a positive integer",
			})
			return
		}
		limit = min(n, maxListLimit)
	}

	recs, err := s.ledger.Recent(limit)
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, HandshakesResponse{Success: true, Count: len(recs), Handshakes: recs})
}

// handleGetHandshake handles GET /api/v1/handshakes/:id
func (s *Server) handleGetHandshake(c *gin.Context) {
	if !s.requireLedger(c) {
		return
	}

	id, err := protocol.ParseSessionID(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{
			Error:   "Invalid session ID",
			Message: err.Error(),
		})
		return
	}

	recs, err := s.ledger.Get(id.String())
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "Handshake not found"})
		return
	}
	if err != nil {
		s.internalError(c, err)
		return
	}
	c.JSON(http.StatusOK, HandshakesResponse{Success: true, Count: len(recs), Handshakes: recs})
}

// handleStats handles GET /api/v1/stats
func (s *Server) handleStats(c *gin.Context) {
	resp := StatsResponse{Success: true, Uptime: time.Since(s.started).Round(time.Second).String()}
	if s.node != nil {
		resp.Handled = s.node.Handled()
		resp.Uptime = s.node.Uptime().Round(time.Second).String()
	}
	if s.ledger != nil {
		st, err := s.ledger.Stats()
		if err != nil {
			s.internalError(c, err)
			return
		}
		resp.Ledger = st
	}
	c.JSON(http.StatusOK, resp)
}

func (s *Server) requireLedger(c *gin.Context) bool {
	if s.ledger != nil {
		return true
	}
	c.JSON(http.StatusServiceUnavailable, ErrorResponse{
		Error:   "Storage disabled",
		Message: "no handshake ledger is configured",
	})
	return false
}

func (s *Server) internalError(c *gin.Context, err error) {
	s.logger.Errorw("request failed", "path", c.Request.URL.Path, "err", err)
	c.JSON(http.StatusInternalServerError, ErrorResponse{Error: "Internal error", Message: err.Error()})
}
