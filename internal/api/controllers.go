package api

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
)

// getStatus reports the full engine status: connection health, execution
// counters, and the risk summary.
func (s *Server) getStatus(c *gin.Context) {
	status := gin.H{
		"symbol":  s.Meta.Symbol,
		"venue":   s.Meta.Venue,
		"version": s.Meta.Version,
		"risk":    s.Gate.Summary(),
	}
	if s.Client != nil {
		status["connection"] = s.Client.Info()
	}
	if s.Orders != nil {
		status["execution"] = s.Orders.Stats()
	}
	c.JSON(http.StatusOK, status)
}

func (s *Server) getActiveOrders(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"orders": s.Orders.ActiveOrders()})
}

func (s *Server) getRecentOrders(c *gin.Context) {
	limit := 50
	if raw := c.Query("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 || n > 500 {
			c.JSON(http.StatusBadRequest, gin.H{
				"code":  "INVALID_LIMIT",
				"error": "limit must be between 1 and 500",
			})
			return
		}
		limit = n
	}

	// Prefer persisted history so completed orders survive restarts.
	if s.DB != nil {
		rows, err := s.DB.ListRecentOrders(c.Request.Context(), limit)
		if err != nil {
			c.JSON(http.StatusInternalServerError, gin.H{
				"code":  "INTERNAL_ERROR",
				"error": err.Error(),
			})
			return
		}
		c.JSON(http.StatusOK, gin.H{"orders": rows})
		return
	}
	c.JSON(http.StatusOK, gin.H{"orders": s.Orders.RecentOrders(limit)})
}

func (s *Server) getRisk(c *gin.Context) {
	c.JSON(http.StatusOK, s.Gate.Summary())
}

func (s *Server) getBalance(c *gin.Context) {
	if s.Client == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{
			"code":  "NO_CONNECTION",
			"error": "venue connection unavailable",
		})
		return
	}
	balance, err := s.Client.QueryBalance(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"code":  "VENUE_ERROR",
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"balance": balance})
}

// resumeTrading clears an active pause window.
func (s *Server) resumeTrading(c *gin.Context) {
	s.Gate.ForceResume()
	c.JSON(http.StatusOK, gin.H{"status": s.Gate.State()})
}

// resetDaily clears the daily loss and trade counters.
func (s *Server) resetDaily(c *gin.Context) {
	s.Gate.ResetDailyStats()
	c.JSON(http.StatusOK, gin.H{"stats": s.Gate.Stats()})
}
