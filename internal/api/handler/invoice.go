// Package handler exposes the ledger services over HTTP.
package handler

import (
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/inaltera/inaltera/internal/invoice"
	"github.com/inaltera/inaltera/internal/ledger"
	"github.com/inaltera/inaltera/internal/principal"
)

// maxUploadSize caps third-party documents accepted for legalization.
const maxUploadSize = 10 << 20 // 10 MiB

// InvoiceHandler handles HTTP requests for the invoice ledger.
type InvoiceHandler struct {
	svc    *invoice.Service
	tokens *principal.TokenIssuer
	logger *zap.Logger
}

// NewInvoiceHandler creates a new InvoiceHandler.
func NewInvoiceHandler(svc *invoice.Service, tokens *principal.TokenIssuer, logger *zap.Logger) *InvoiceHandler {
	return &InvoiceHandler{svc: svc, tokens: tokens, logger: logger}
}

// Register mounts the invoice routes on the given router group. All routes
// require an owner session token.
func (h *InvoiceHandler) Register(rg *gin.RouterGroup) {
	auth := principal.RequireOwner(h.tokens)
	inv := rg.Group("/invoices", auth)
	{
		inv.POST("", h.Create)
		inv.POST("/import", h.Import)
		inv.POST("/:doc/cancel", h.Cancel)
		inv.GET("", h.List)
		inv.GET("/:id/record", h.GetRecord)
		inv.GET("/:id/artifact", h.GetArtifact)
	}
	rg.GET("/usage", auth, h.Usage)
}

type lineItemRequest struct {
	Description string `json:"description" binding:"required"`
	Quantity    int64  `json:"quantity"    binding:"required,gt=0"`
	UnitPrice   string `json:"unit_price"  binding:"required"`
	VATRate     int    `json:"vat_rate"    binding:"gte=0,lte=100"`
}

type createInvoiceRequest struct {
	Counterparty      string            `json:"counterparty" binding:"required"`
	CounterpartyTaxID string            `json:"counterparty_tax_id"`
	Items             []lineItemRequest `json:"items" binding:"required,min=1,dive"`
	Notes             string            `json:"notes"`
}

type cancelRequest struct {
	Reason string `json:"reason" binding:"required"`
}

// Create handles POST /invoices — issues a new invoice on the ledger.
func (h *InvoiceHandler) Create(c *gin.Context) {
	var req createInvoiceRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	draft := invoice.Draft{
		Counterparty:      req.Counterparty,
		CounterpartyTaxID: req.CounterpartyTaxID,
		Notes:             req.Notes,
	}
	for _, li := range req.Items {
		price, err := decimal.NewFromString(li.UnitPrice)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid unit_price %q", li.UnitPrice)})
			return
		}
		draft.Items = append(draft.Items, invoice.LineItem{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   price,
			VATRate:     li.VATRate,
		})
	}

	entry, err := h.svc.Issue(c.Request.Context(), principal.OwnerFromCtx(c), draft)
	if err != nil {
		h.writeServiceError(c, err, "issue invoice")
		return
	}

	RecordLedgerAppend("invoices")
	c.JSON(http.StatusCreated, entry)
}

// Import handles POST /invoices/import — legalizes a third-party document.
// The document is sent as multipart form data under the "document" field.
func (h *InvoiceHandler) Import(c *gin.Context) {
	docNumber := c.PostForm("doc_number")
	totalStr := c.PostForm("total")
	if docNumber == "" || totalStr == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "doc_number and total are required"})
		return
	}
	total, err := decimal.NewFromString(totalStr)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": fmt.Sprintf("invalid total %q", totalStr)})
		return
	}

	var issuedAt time.Time
	if v := c.PostForm("issued_at"); v != "" {
		issuedAt, err = time.Parse(time.RFC3339, v)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "issued_at must be RFC 3339"})
			return
		}
	}

	fh, err := c.FormFile("document")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "document file is required"})
		return
	}
	if fh.Size > maxUploadSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "document exceeds the upload limit"})
		return
	}
	f, err := fh.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable document upload"})
		return
	}
	defer f.Close()
	doc := make([]byte, fh.Size)
	if _, err := io.ReadFull(f, doc); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable document upload"})
		return
	}

	entry, err := h.svc.Legalize(c.Request.Context(), principal.OwnerFromCtx(c), invoice.Upload{
		DocNumber:    docNumber,
		Counterparty: c.PostForm("counterparty"),
		Total:        total,
		IssuedAt:     issuedAt,
		Filename:     fh.Filename,
		Document:     doc,
	})
	if err != nil {
		h.writeServiceError(c, err, "legalize document")
		return
	}

	RecordLedgerAppend("invoices")
	c.JSON(http.StatusCreated, entry)
}

// Cancel handles POST /invoices/:doc/cancel — appends a cancellation record.
func (h *InvoiceHandler) Cancel(c *gin.Context) {
	var req cancelRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	entry, err := h.svc.Cancel(c.Request.Context(), principal.OwnerFromCtx(c), c.Param("doc"), req.Reason)
	if err != nil {
		switch {
		case errors.Is(err, invoice.ErrAlreadyCancelled):
			c.JSON(http.StatusConflict, gin.H{"error": "invoice is already cancelled"})
		case errors.Is(err, invoice.ErrNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "invoice not found"})
		default:
			h.writeServiceError(c, err, "cancel invoice")
		}
		return
	}

	RecordLedgerAppend("invoices")
	c.JSON(http.StatusCreated, entry)
}

// List handles GET /invoices — returns the owner's records, most recent first.
func (h *InvoiceHandler) List(c *gin.Context) {
	entries, err := h.svc.List(c.Request.Context(), principal.OwnerFromCtx(c))
	if err != nil {
		h.writeServiceError(c, err, "list invoices")
		return
	}
	c.JSON(http.StatusOK, gin.H{"invoices": entries, "count": len(entries)})
}

// GetRecord handles GET /invoices/:id/record — exports the traceability
// record for one of the owner's entries.
func (h *InvoiceHandler) GetRecord(c *gin.Context) {
	id, ok := h.entryID(c)
	if !ok {
		return
	}

	tr, err := h.svc.Trace(c.Request.Context(), principal.OwnerFromCtx(c), id)
	if err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "record not found"})
			return
		}
		h.writeServiceError(c, err, "export traceability record")
		return
	}
	c.JSON(http.StatusOK, tr)
}

// GetArtifact handles GET /invoices/:id/artifact — streams the stored
// artifact for one of the owner's entries.
func (h *InvoiceHandler) GetArtifact(c *gin.Context) {
	id, ok := h.entryID(c)
	if !ok {
		return
	}

	name, data, err := h.svc.Artifact(c.Request.Context(), principal.OwnerFromCtx(c), id)
	if err != nil {
		if errors.Is(err, invoice.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "artifact not found"})
			return
		}
		h.writeServiceError(c, err, "load artifact")
		return
	}

	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name))
	c.Data(http.StatusOK, "application/octet-stream", data)
}

// Usage handles GET /usage — the owner's issuance volume this month.
func (h *InvoiceHandler) Usage(c *gin.Context) {
	report, err := h.svc.Usage(c.Request.Context(), principal.OwnerFromCtx(c))
	if err != nil {
		h.writeServiceError(c, err, "usage report")
		return
	}
	c.JSON(http.StatusOK, report)
}

func (h *InvoiceHandler) entryID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "id must be a positive integer"})
		return 0, false
	}
	return id, true
}

// writeServiceError maps service failures that are not routine business
// conditions. A binding failure means the ledger write itself succeeded or
// was compensated; the caller gets an explicit error either way.
func (h *InvoiceHandler) writeServiceError(c *gin.Context, err error, op string) {
	var be *invoice.BindingError
	switch {
	case errors.As(err, &be):
		h.logger.Error(op, zap.Error(err))
		c.JSON(http.StatusBadGateway, gin.H{"error": "artifact binding failed, the record was not finalized"})
	case errors.Is(err, ledger.ErrConcurrentAppend):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "ledger busy, retry"})
	default:
		h.logger.Error(op, zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "internal error"})
	}
}
