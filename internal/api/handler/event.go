package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inaltera/inaltera/internal/event"
	"github.com/inaltera/inaltera/internal/principal"
)

// EventHandler exposes the owner's audit trail.
type EventHandler struct {
	recorder *event.Recorder
	tokens   *principal.TokenIssuer
	logger   *zap.Logger
}

// NewEventHandler creates a new EventHandler.
func NewEventHandler(recorder *event.Recorder, tokens *principal.TokenIssuer, logger *zap.Logger) *EventHandler {
	return &EventHandler{recorder: recorder, tokens: tokens, logger: logger}
}

// Register mounts the event routes on the given router group.
func (h *EventHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/events", principal.RequireOwner(h.tokens), h.List)
}

// List handles GET /events — the caller's audit events, most recent first.
// An optional limit query parameter caps the result.
func (h *EventHandler) List(c *gin.Context) {
	limit := 0
	if v := c.Query("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			c.JSON(http.StatusBadRequest, gin.H{"error": "limit must be a non-negative integer"})
			return
		}
		limit = n
	}

	entries, err := h.recorder.List(c.Request.Context(), principal.OwnerFromCtx(c), limit)
	if err != nil {
		h.logger.Error("list audit events", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": entries, "count": len(entries)})
}
