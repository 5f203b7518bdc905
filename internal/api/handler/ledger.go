package handler

import (
	"context"
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/inaltera/inaltera/internal/ledger"
	"github.com/inaltera/inaltera/internal/principal"
)

// chainAuditor verifies a full chain; satisfied by the invoice service and the
// event recorder.
type chainAuditor interface {
	Audit(ctx context.Context) error
}

// LedgerHandler exposes the integrity audit endpoints for both chains.
type LedgerHandler struct {
	invoices chainAuditor
	events   chainAuditor
	tokens   *principal.TokenIssuer
	logger   *zap.Logger
}

// NewLedgerHandler creates a new LedgerHandler.
func NewLedgerHandler(invoices, events chainAuditor, tokens *principal.TokenIssuer, logger *zap.Logger) *LedgerHandler {
	return &LedgerHandler{invoices: invoices, events: events, tokens: tokens, logger: logger}
}

// Register mounts the audit routes on the given router group.
func (h *LedgerHandler) Register(rg *gin.RouterGroup) {
	l := rg.Group("/ledger", principal.RequireOwner(h.tokens))
	{
		l.GET("/invoices/audit", h.AuditInvoices)
		l.GET("/events/audit", h.AuditEvents)
	}
}

// AuditInvoices handles GET /ledger/invoices/audit — walks the invoice chain.
func (h *LedgerHandler) AuditInvoices(c *gin.Context) {
	h.audit(c, "invoices", h.invoices)
}

// AuditEvents handles GET /ledger/events/audit — walks the audit-event chain.
func (h *LedgerHandler) AuditEvents(c *gin.Context) {
	h.audit(c, "events", h.events)
}

// audit reports integrity as data, not as an HTTP failure: a tampered chain
// is a successful audit with a negative result.
func (h *LedgerHandler) audit(c *gin.Context, name string, auditor chainAuditor) {
	err := auditor.Audit(c.Request.Context())
	if err == nil {
		c.JSON(http.StatusOK, gin.H{"ledger": name, "valid": true})
		return
	}

	var ie *ledger.IntegrityError
	if errors.As(err, &ie) {
		h.logger.Warn("ledger integrity check failed",
			zap.String("ledger", name),
			zap.Int64("first_tampered_id", ie.ID),
		)
		c.JSON(http.StatusOK, gin.H{
			"ledger":            name,
			"valid":             false,
			"first_tampered_id": ie.ID,
			"reason":            ie.Reason,
		})
		return
	}

	h.logger.Error("ledger audit", zap.String("ledger", name), zap.Error(err))
	c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to audit ledger"})
}
