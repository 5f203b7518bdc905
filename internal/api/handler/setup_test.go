package handler_test

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/inaltera/inaltera/internal/api/handler"
	"github.com/inaltera/inaltera/internal/binder"
	"github.com/inaltera/inaltera/internal/event"
	"github.com/inaltera/inaltera/internal/invoice"
	"github.com/inaltera/inaltera/internal/ledger"
	"github.com/inaltera/inaltera/internal/principal"
)

type env struct {
	router *gin.Engine
	tokens *principal.TokenIssuer
	store  *invoice.MemoryStore
	events *event.MemoryStore
}

func setupRouter(t *testing.T) *env {
	t.Helper()
	gin.SetMode(gin.TestMode)

	store := invoice.NewMemoryStore()
	eventStore := event.NewMemoryStore()
	artifacts, err := binder.NewFSStore(t.TempDir())
	if err != nil {
		t.Fatal(err)
	}
	b := binder.New("http://localhost:3000", binder.PassthroughStamper{}, artifacts, zap.NewNop())
	recorder := event.NewRecorder(
		ledger.NewService[event.Payload]("events", eventStore, zap.NewNop()),
		eventStore, zap.NewNop(),
	)
	t.Cleanup(recorder.Close)
	svc := invoice.NewService(store, b, invoice.JSONRenderer{}, recorder, zap.NewNop())
	tokens := principal.NewTokenIssuer([]byte("test-secret"), "https://api.test", time.Hour)

	r := gin.New()
	v1 := r.Group("/api/v1")
	handler.NewInvoiceHandler(svc, tokens, zap.NewNop()).Register(v1)
	handler.NewEventHandler(recorder, tokens, zap.NewNop()).Register(v1)
	handler.NewLedgerHandler(svc, recorder, tokens, zap.NewNop()).Register(v1)
	handler.NewVerifyHandler(svc).Register(v1)

	return &env{router: r, tokens: tokens, store: store, events: eventStore}
}

func (e *env) bearer(t *testing.T, owner uuid.UUID) string {
	t.Helper()
	token, err := e.tokens.Issue(owner, "")
	if err != nil {
		t.Fatal(err)
	}
	return "Bearer " + token
}

func (e *env) do(t *testing.T, method, path, auth, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var resp map[string]any
	if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
		t.Fatalf("malformed response body: %v: %s", err, w.Body.String())
	}
	return resp
}

const createBody = `{
	"counterparty": "Acme S.L.",
	"items": [{"description": "Consulting", "quantity": 2, "unit_price": "10.00", "vat_rate": 21}]
}`

// createInvoice issues an invoice through the API and returns the decoded entry.
func (e *env) createInvoice(t *testing.T, auth string) map[string]any {
	t.Helper()
	w := e.do(t, http.MethodPost, "/api/v1/invoices", auth, createBody)
	if w.Code != http.StatusCreated {
		t.Fatalf("create invoice: expected 201, got %d: %s", w.Code, w.Body.String())
	}
	return decode(t, w)
}
