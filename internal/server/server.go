// Package server assembles the HTTP router for the handoff service.
package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"foxtrail/handoff/internal/transfer/handler"
)

// Pinger reports store liveness for the health endpoint.
type Pinger interface {
	Ping() error
}

// NewRouter builds the gin engine with all transfer routes registered.
// pinger may be nil; the health endpoint then only reports process liveness.
func NewRouter(transferHandler *handler.Handler, authMiddleware gin.HandlerFunc, pinger Pinger) *gin.Engine {
	router := gin.New()
	router.Use(gin.Logger(), gin.Recovery())

	router.GET("/healthz", func(c *gin.Context) {
		if pinger != nil {
			if err := pinger.Ping(); err != nil {
				c.JSON(http.StatusServiceUnavailable, gin.H{"status": "store unavailable"})
				return
			}
		}
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})

	transfer := router.Group("/transfer")
	{
		sessions := transfer.Group("/sessions")
		sessions.Use(authMiddleware)
		{
			sessions.POST("", transferHandler.CreateSession)
			sessions.GET("/current", transferHandler.CurrentSession)
			sessions.DELETE("", transferHandler.DeleteSession)
		}
		// Claiming is unauthenticated: the consumer device is signing in.
		transfer.POST("/claims", transferHandler.Claim)
	}

	return router
}
