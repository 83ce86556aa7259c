// Package api exposes the gateway over HTTP and websocket: per-account
// session operations, trade placement/close, and quote streaming.
package api

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"mt5-gateway/internal/errs"
	"mt5-gateway/internal/events"
	"mt5-gateway/internal/registry"
	"mt5-gateway/internal/trade"
	"mt5-gateway/pkg/db"
)

// Meta describes runtime identity exposed on /health.
type Meta struct {
	Version      string
	InstanceID   string
	MockTerminal bool
}

// Server wires HTTP endpoints around the registry and executor.
type Server struct {
	Router    *gin.Engine
	Registry  *registry.Registry
	Exec      *trade.Executor
	Bus       *events.Bus
	Journal   *db.Database
	JWTSecret string
	Meta      Meta
}

// NewServer builds the router with the full middleware stack.
func NewServer(reg *registry.Registry, exec *trade.Executor, bus *events.Bus, journal *db.Database, jwtSecret string, meta Meta) *Server {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLogger())
	r.Use(RateLimitMiddleware())
	r.Use(CORSMiddleware())

	s := &Server{
		Router:    r,
		Registry:  reg,
		Exec:      exec,
		Bus:       bus,
		Journal:   journal,
		JWTSecret: jwtSecret,
		Meta:      meta,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	s.Router.GET("/health", s.health)
	s.Router.GET("/ws", s.websocket)

	api := s.Router.Group("/api")
	api.Use(AuthMiddleware(s.JWTSecret))
	{
		api.POST("/connect", s.connect)
		api.POST("/disconnect", s.disconnect)
		api.GET("/symbols", s.symbols)
		api.GET("/symbol/:symbol", s.symbolInfo)
		api.GET("/price/:symbol", s.price)
		api.POST("/trade", s.placeTrade)
		api.POST("/close", s.closeTrade)
		api.GET("/positions", s.positions)
		api.GET("/account", s.account)
		api.GET("/executions", s.executions)
	}
}

func ok(c *gin.Context, data any) {
	c.JSON(http.StatusOK, gin.H{"success": true, "data": data})
}

func fail(c *gin.Context, err error) {
	status := http.StatusBadRequest
	switch errs.KindOf(err) {
	case errs.KindNotFound, errs.KindNoPrice:
		status = http.StatusNotFound
	case errs.KindNotConnected:
		status = http.StatusConflict
	case errs.KindUnknown:
		status = http.StatusInternalServerError
	}
	c.JSON(status, gin.H{
		"success": false,
		"error": gin.H{
			"kind":    errs.KindOf(err).String(),
			"code":    errs.CodeOf(err),
			"message": err.Error(),
		},
	})
}
