package httpapi

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"voice-copilot/internal/audit"
	"voice-copilot/internal/auth"
	"voice-copilot/internal/calls"
	"voice-copilot/internal/roomtoken"
	"voice-copilot/internal/store"
	"voice-copilot/pkg/utils"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

// Handlers groups HTTP handlers for dependency injection.
// Keep these thin: parse/validate input, call internal services, return JSON.
type Handlers struct {
	Auth     *auth.Manager
	Sessions *store.Service
	Minter   *roomtoken.Minter

	// Audit records privacy-relevant data operations. Optional and
	// best-effort: a failed audit write never fails the operation.
	Audit *audit.Service

	// Redis backs the per-user call-slot guard. Optional: without it the
	// backend trusts the device to enforce single-active-call on its own.
	Redis *redis.Client

	// SlotTTL bounds how long a crashed device can hold the call slot.
	SlotTTL time.Duration

	Log *slog.Logger
}

const defaultSlotTTL = 4 * time.Hour

func (h Handlers) slotTTL() time.Duration {
	if h.SlotTTL > 0 {
		return h.SlotTTL
	}
	return defaultSlotTTL
}

func (h Handlers) logger() *slog.Logger {
	if h.Log != nil {
		return h.Log
	}
	return slog.Default()
}

/* ===================== AUTH ===================== */

type loginRequest struct {
	UserID string `json:"user_id"`
}

// Login issues a JWT token pair.
//
// NOTE: This is a skeleton-only endpoint. Real systems must validate credentials.
func (h Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.UserID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "user_id required"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), req.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

type refreshRequest struct {
	RefreshToken string `json:"refresh_token"`
}

// Refresh exchanges a valid refresh token for a new pair.
func (h Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "refresh_token required"})
		return
	}
	claims, err := h.Auth.Verify(req.RefreshToken, auth.TokenTypeRefresh, time.Now())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
		return
	}
	pair, err := h.Auth.IssuePair(time.Now(), claims.UserID)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token issuance failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"access_token":  pair.AccessToken,
		"refresh_token": pair.RefreshToken,
		"expires_at":    pair.ExpiresAt.UTC().Format(time.RFC3339),
	})
}

/* ===================== ROOMS ===================== */

type provisionRequest struct {
	SessionID           string `json:"session_id"`
	ParticipantIdentity string `json:"participant_identity"`
}

// ProvisionRoom creates a room-scoped media credential for one call. It also
// takes the user's call slot: a second device racing a call start gets a 409
// here, mirroring the device-side single-active-call rule.
func (h Handlers) ProvisionRoom(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req provisionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	if req.SessionID == "" || req.ParticipantIdentity == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id and participant_identity required"})
		return
	}

	if h.Redis != nil {
		ok, err := utils.AcquireCallSlot(c.Request.Context(), h.Redis, userID, h.slotTTL())
		if err != nil {
			h.logger().Error("call slot acquire failed", "user_id", userID, "err", err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "slot check failed"})
			return
		}
		if !ok {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "call already in progress"})
			return
		}
	}

	roomName := "call-" + req.SessionID
	token, err := h.Minter.Mint(time.Now(), roomName, req.ParticipantIdentity)
	if err != nil {
		if h.Redis != nil {
			_ = utils.ReleaseCallSlot(c.Request.Context(), h.Redis, userID)
		}
		h.logger().Error("join token mint failed", "user_id", userID, "err", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "token mint failed"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"room_name":    roomName,
		"join_token":   token,
		"endpoint_url": h.Minter.URL(),
	})
}

/* ===================== SESSIONS ===================== */

type startSessionRequest struct {
	Context        string `json:"context"`
	LoggingEnabled *bool  `json:"logging_enabled"`
}

// StartSession opens a session record for a call whose logging is enabled.
func (h Handlers) StartSession(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req startSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}
	logging := true
	if req.LoggingEnabled != nil {
		logging = *req.LoggingEnabled
	}

	sess, err := h.Sessions.StartSession(c.Request.Context(), userID, calls.Context(req.Context), logging)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"session_id": sess.ID})
}

type endSessionRequest struct {
	SessionID string `json:"session_id"`
	EndedAt   string `json:"ended_at"`
}

// EndSession closes a session record and frees the user's call slot.
func (h Handlers) EndSession(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}

	var req endSessionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.SessionID == "" {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "session_id required"})
		return
	}

	var endedAt time.Time
	if req.EndedAt != "" {
		endedAt, err = time.Parse(time.RFC3339Nano, req.EndedAt)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "ended_at must be RFC3339"})
			return
		}
	}

	if _, err := h.Sessions.EndSession(c.Request.Context(), userID, req.SessionID, endedAt); err != nil {
		h.abortStoreErr(c, err)
		return
	}

	if h.Redis != nil {
		if err := utils.ReleaseCallSlot(c.Request.Context(), h.Redis, userID); err != nil {
			// The TTL reclaims the slot eventually; the end itself succeeded.
			h.logger().Warn("call slot release failed", "user_id", userID, "err", err)
		}
	}
	c.Status(http.StatusNoContent)
}

type appendTurnRequest struct {
	Speaker   string `json:"speaker"`
	Text      string `json:"text"`
	Timestamp string `json:"timestamp"`
}

// AppendTurn records one conversation turn on an open session.
func (h Handlers) AppendTurn(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	sessionID := c.Param("session_id")

	var req appendTurnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid json"})
		return
	}

	var ts time.Time
	if req.Timestamp != "" {
		ts, err = time.Parse(time.RFC3339Nano, req.Timestamp)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "timestamp must be RFC3339"})
			return
		}
	}

	turn, err := h.Sessions.AppendTurn(c.Request.Context(), userID, sessionID, calls.Speaker(req.Speaker), req.Text, ts)
	if err != nil {
		h.abortStoreErr(c, err)
		return
	}
	c.JSON(http.StatusCreated, turn)
}

// ListSessions returns the user's sessions, newest first.
func (h Handlers) ListSessions(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	limit, _ := strconv.Atoi(c.Query("limit"))
	offset, _ := strconv.Atoi(c.Query("offset"))

	sessions, err := h.Sessions.ListSessions(c.Request.Context(), userID, limit, offset)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "list failed"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

// GetSession returns one session.
func (h Handlers) GetSession(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	sess, err := h.Sessions.GetSession(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		h.abortStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, sess)
}

// ListTurns returns a session's turns in timestamp order.
func (h Handlers) ListTurns(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	turns, err := h.Sessions.ListTurns(c.Request.Context(), userID, c.Param("session_id"))
	if err != nil {
		h.abortStoreErr(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"turns": turns})
}

// DeleteSession removes one session and its turns.
func (h Handlers) DeleteSession(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	sessionID := c.Param("session_id")
	if err := h.Sessions.DeleteSession(c.Request.Context(), userID, sessionID); err != nil {
		h.abortStoreErr(c, err)
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogSessionDeleted(c.Request.Context(), userID, sessionID); err != nil {
			h.logger().Warn("audit write failed", "user_id", userID, "err", err)
		}
	}
	c.Status(http.StatusNoContent)
}

// DeleteAllSessions wipes the user's entire history.
func (h Handlers) DeleteAllSessions(c *gin.Context) {
	userID, err := auth.UserID(c.Request.Context())
	if err != nil {
		c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthenticated"})
		return
	}
	if err := h.Sessions.DeleteAllSessions(c.Request.Context(), userID); err != nil {
		c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "delete failed"})
		return
	}
	if h.Audit != nil {
		if err := h.Audit.LogHistoryWiped(c.Request.Context(), userID); err != nil {
			h.logger().Warn("audit write failed", "user_id", userID, "err", err)
		}
	}
	c.Status(http.StatusNoContent)
}

func (h Handlers) abortStoreErr(c *gin.Context, err error) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "session not found"})
	case errors.Is(err, store.ErrSessionEnded):
		c.AbortWithStatusJSON(http.StatusConflict, gin.H{"error": "session already ended"})
	default:
		c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	}
}
