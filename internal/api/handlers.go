package api

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"raggate/internal/redis"
	"raggate/internal/service/history"
	"raggate/internal/service/orchestrator"
	"raggate/internal/service/registry"
	"raggate/internal/worker"
)

// defaultUserID is used when a request carries no user identifier.
const defaultUserID = "default_user"

// Turner handles one query turn.
type Turner interface {
	HandleTurn(ctx context.Context, req orchestrator.TurnRequest) (*orchestrator.TurnResult, error)
}

// Handler wires HTTP routes to the turn orchestrator and the derived reads.
type Handler struct {
	turns    Turner
	store    *history.Store
	registry *registry.Registry
	db       *sql.DB
	cache    *redis.Client
	limiter  *rateLimiter
}

// NewHandler constructs a Handler instance. cache may be nil; rateLimit <= 0
// disables per-user limiting.
func NewHandler(turns Turner, store *history.Store, reg *registry.Registry, db *sql.DB, cache *redis.Client, rateLimit int) *Handler {
	return &Handler{
		turns:    turns,
		store:    store,
		registry: reg,
		db:       db,
		cache:    cache,
		limiter:  newRateLimiter(cache, rateLimit),
	}
}

// RegisterRoutes attaches all HTTP routes to the router.
func (h *Handler) RegisterRoutes(router *gin.Engine) {
	api := router.Group("/api")
	api.POST("/query", h.submitQuery)
	api.GET("/chat_history/:session_id/:user_id", h.getChatHistory)
	api.GET("/sessions/:user_id", h.getSessions)
	api.GET("/health", h.health)
}

type queryRequest struct {
	Text       string `json:"text"`
	UserID     string `json:"user_id"`
	SessionID  string `json:"session_id"`
	NewSession bool   `json:"new_session"`
}

func (h *Handler) submitQuery(c *gin.Context) {
	var req queryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body"})
		return
	}
	if strings.TrimSpace(req.Text) == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "text is required"})
		return
	}
	userID := strings.TrimSpace(req.UserID)
	if userID == "" {
		userID = defaultUserID
	}
	if !h.limiter.allow(c.Request.Context(), userID) {
		c.JSON(http.StatusTooManyRequests, gin.H{"error": "rate limit exceeded"})
		return
	}

	result, err := h.turns.HandleTurn(c.Request.Context(), orchestrator.TurnRequest{
		Text:       req.Text,
		UserID:     userID,
		SessionID:  req.SessionID,
		NewSession: req.NewSession,
	})
	if err != nil {
		switch {
		case errors.Is(err, worker.ErrGateBusy):
			c.JSON(http.StatusTooManyRequests, gin.H{"error": "server is busy, please retry"})
		case errors.Is(err, orchestrator.ErrUpstream):
			c.JSON(http.StatusBadGateway, gin.H{"error": err.Error()})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		}
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"content":    result.Content,
		"session_id": result.SessionID,
		"created":    result.Created,
	})
}

func (h *Handler) getChatHistory(c *gin.Context) {
	sessionID := c.Param("session_id")
	userID := c.Param("user_id")
	messages, err := h.store.History(c.Request.Context(), sessionID, userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	// A pair with no messages is a valid empty history, not an error.
	c.JSON(http.StatusOK, gin.H{
		"messages":   messages,
		"session_id": sessionID,
	})
}

func (h *Handler) getSessions(c *gin.Context) {
	userID := c.Param("user_id")
	sessions, err := h.registry.ListSessions(c.Request.Context(), userID)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
		return
	}
	c.JSON(http.StatusOK, gin.H{"sessions": sessions})
}

func (h *Handler) health(c *gin.Context) {
	ctx, cancel := context.WithTimeout(c.Request.Context(), 2*time.Second)
	defer cancel()

	database := "connected"
	if h.db == nil || h.db.PingContext(ctx) != nil {
		database = "unreachable"
	}
	body := gin.H{
		"status":   "healthy",
		"database": database,
	}
	if h.cache != nil {
		cache := "connected"
		if h.cache.Ping(ctx) != nil {
			cache = "unreachable"
		}
		body["cache"] = cache
	}
	c.JSON(http.StatusOK, body)
}
