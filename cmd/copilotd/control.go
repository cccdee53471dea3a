package main

import (
	"errors"
	"net/http"

	"voice-copilot/internal/callmanager"
	"voice-copilot/internal/calls"

	"github.com/gin-gonic/gin"
)

// registerControlRoutes wires the local control API. It is bound to loopback
// in practice; there is no auth between the UI and the daemon.
func registerControlRoutes(r *gin.Engine, m *callmanager.Manager, prefs *callmanager.AtomicPreferences) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	v1 := r.Group("/v1")

	call := v1.Group("/call")
	{
		call.GET("", func(c *gin.Context) {
			sess, ok := m.Snapshot()
			if !ok {
				c.JSON(http.StatusOK, gin.H{"active": false})
				return
			}
			c.JSON(http.StatusOK, gin.H{"active": sess.State.InProgress(), "session": sess})
		})

		call.POST("/start", func(c *gin.Context) {
			var req struct {
				Handle string `json:"handle"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
				return
			}
			if req.Handle == "" {
				req.Handle = "copilot"
			}
			id, err := m.RequestStartCall(c.Request.Context(), req.Handle)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusAccepted, gin.H{"call_uuid": id.String()})
		})

		call.POST("/end", func(c *gin.Context) {
			if err := m.RequestEndCall(c.Request.Context()); err != nil {
				if errors.Is(err, callmanager.ErrNoActiveCall) {
					c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "no active call"})
					return
				}
				c.AbortWithStatusJSON(http.StatusBadGateway, gin.H{"error": err.Error()})
				return
			}
			c.Status(http.StatusAccepted)
		})

		call.POST("/turns", func(c *gin.Context) {
			var req struct {
				Speaker string `json:"speaker"`
				Text    string `json:"text"`
			}
			if err := c.ShouldBindJSON(&req); err != nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
				return
			}
			speaker := calls.Speaker(req.Speaker)
			if !calls.ValidSpeaker(speaker) || req.Text == "" {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "speaker and text required"})
				return
			}
			// Best-effort by contract; accepted even if the call just ended.
			m.RecordTurn(speaker, req.Text)
			c.Status(http.StatusAccepted)
		})
	}

	prefsGroup := v1.Group("/preferences")
	{
		prefsGroup.GET("/logging", func(c *gin.Context) {
			c.JSON(http.StatusOK, gin.H{"enabled": prefs.LoggingEnabled()})
		})
		prefsGroup.PUT("/logging", func(c *gin.Context) {
			var req struct {
				Enabled *bool `json:"enabled"`
			}
			if err := c.ShouldBindJSON(&req); err != nil || req.Enabled == nil {
				c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "enabled required"})
				return
			}
			// Applies to the next call; in-progress calls keep their snapshot.
			prefs.SetLoggingEnabled(*req.Enabled)
			c.JSON(http.StatusOK, gin.H{"enabled": prefs.LoggingEnabled()})
		})
	}
}
