package httpapi

import (
	"github.com/gin-gonic/gin"
)

// Register wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func Register(r *gin.Engine, h Handlers, authMW gin.HandlerFunc) {
	// public
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")

	// AUTH routes (token issuance).
	authGroup := v1.Group("/auth")
	{
		authGroup.POST("/login", h.Login)
		authGroup.POST("/refresh", h.Refresh)
	}

	// Everything below requires an access token.
	protected := v1.Group("")
	protected.Use(authMW)
	{
		protected.POST("/rooms/provision", h.ProvisionRoom)

		sessions := protected.Group("/sessions")
		{
			sessions.POST("/start", h.StartSession)
			sessions.POST("/end", h.EndSession)
			sessions.GET("", h.ListSessions)
			sessions.DELETE("", h.DeleteAllSessions)
			sessions.GET("/:session_id", h.GetSession)
			sessions.DELETE("/:session_id", h.DeleteSession)
			sessions.POST("/:session_id/turns", h.AppendTurn)
			sessions.GET("/:session_id/turns", h.ListTurns)
		}
	}
}
