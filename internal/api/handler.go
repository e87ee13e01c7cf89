package api

import (
	"net/http"
	"time"

	"scalping-core/internal/events"
	"scalping-core/internal/order"
	"scalping-core/internal/risk"
	"scalping-core/pkg/db"
	"scalping-core/pkg/deriv"

	"github.com/gin-gonic/gin"
	"golang.org/x/time/rate"
)

// Server exposes the engine's observable state and operator controls.
type Server struct {
	Router       *gin.Engine
	Bus          *events.Bus
	DB           *db.Database
	Gate         *risk.Gate
	Orders       *order.Manager
	Client       *deriv.Client
	JWTSecret    string
	OperatorHash string
	Meta         SystemMeta

	limiter *ipRateLimiter
}

// SystemMeta describes runtime status exposed to the operator.
type SystemMeta struct {
	Symbol  string
	Venue   string
	Version string
}

func NewServer(bus *events.Bus, database *db.Database, gate *risk.Gate, orders *order.Manager, client *deriv.Client, meta SystemMeta, jwtSecret, operatorHash string) *Server {
	r := gin.New()

	// 20 req/s per IP with room for dashboard page loads.
	limiter := newIPRateLimiter(rate.Limit(20), 50, 5*time.Minute)

	// Middleware stack (order matters!)
	r.Use(gin.Recovery())
	r.Use(RequestIDMiddleware())
	r.Use(RequestLogger())
	r.Use(limiter.middleware())
	r.Use(TimeoutMiddleware(30 * time.Second))
	r.Use(CORSMiddleware())

	s := &Server{
		Router:       r,
		Bus:          bus,
		DB:           database,
		Gate:         gate,
		Orders:       orders,
		Client:       client,
		JWTSecret:    jwtSecret,
		OperatorHash: operatorHash,
		Meta:         meta,
		limiter:      limiter,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)

	api := s.Router.Group("/api")
	{
		api.GET("/status", s.getStatus)
		api.GET("/orders/active", s.getActiveOrders)
		api.GET("/orders/recent", s.getRecentOrders)

		api.POST("/auth/login", s.login)

		protected := api.Group("")
		protected.Use(AuthMiddleware(s.JWTSecret))
		{
			protected.GET("/risk", s.getRisk)
			protected.GET("/balance", s.getBalance)
			protected.POST("/risk/resume", s.resumeTrading)
			protected.POST("/risk/reset-daily", s.resetDaily)
		}
	}
}

func (s *Server) health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

func (s *Server) Start(addr string) error {
	return s.Router.Run(addr)
}

// Close stops the server's background workers.
func (s *Server) Close() {
	s.limiter.Close()
}
