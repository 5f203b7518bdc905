package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/inaltera/inaltera/internal/invoice"
)

// VerifyHandler serves the unauthenticated hash verification endpoint. Anyone
// holding a printed verification reference can confirm the document is on the
// ledger; the response never distinguishes malformed, unknown, or mistyped
// hashes.
type VerifyHandler struct {
	svc *invoice.Service
}

// NewVerifyHandler creates a new VerifyHandler.
func NewVerifyHandler(svc *invoice.Service) *VerifyHandler {
	return &VerifyHandler{svc: svc}
}

// Register mounts the public verification route on the given router group.
// The group is expected to carry the public rate limiter.
func (h *VerifyHandler) Register(rg *gin.RouterGroup) {
	rg.GET("/verify/:hash", h.Verify)
}

// Verify handles GET /verify/:hash.
func (h *VerifyHandler) Verify(c *gin.Context) {
	summary, ok := h.svc.VerifyPublic(c.Request.Context(), c.Param("hash"))
	RecordVerify(ok)
	if !ok {
		c.JSON(http.StatusOK, gin.H{"valid": false})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true, "document": summary})
}
