package client_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/inaltera/inaltera/pkg/client"
)

var ctx = context.Background()

func TestVerify_valid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.HasPrefix(r.URL.Path, "/api/v1/verify/") {
			t.Errorf("unexpected path %s", r.URL.Path)
		}
		if r.Header.Get("Authorization") != "" {
			t.Error("verify must not send a token when none is configured")
		}
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"valid": true, "document": {"doc_number": "F-1", "counterparty": "Acme", "total": "24.20"}}`))
	}))
	defer srv.Close()

	c := client.New(srv.URL)
	res, err := c.Verify(ctx, strings.Repeat("ab", 32))
	if err != nil {
		t.Fatal(err)
	}
	if !res.Valid || res.Document == nil || res.Document.DocNumber != "F-1" {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestVerify_notValid(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"valid": false}`))
	}))
	defer srv.Close()

	res, err := client.New(srv.URL).Verify(ctx, "deadbeef")
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.Document != nil {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestRecords_sendsBearerToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer tok-123" {
			t.Errorf("Authorization: got %q", got)
		}
		w.Write([]byte(`{"invoices": [{"id": 1, "current_hash": "aa", "payload": {"doc_number": "F-1", "status": "valid"}}], "count": 1}`))
	}))
	defer srv.Close()

	c := client.New(srv.URL, client.WithBearerToken("tok-123"))
	records, err := c.Records(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(records) != 1 || records[0].Payload.DocNumber != "F-1" {
		t.Errorf("unexpected records: %+v", records)
	}
}

func TestAuditInvoices_tampered(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"ledger": "invoices", "valid": false, "first_tampered_id": 7, "reason": "hash mismatch"}`))
	}))
	defer srv.Close()

	res, err := client.New(srv.URL, client.WithBearerToken("t")).AuditInvoices(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if res.Valid || res.FirstTamperedID != 7 {
		t.Errorf("unexpected result: %+v", res)
	}
}

func TestGet_surfacesAPIError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"error": "Bearer token required"}`))
	}))
	defer srv.Close()

	_, err := client.New(srv.URL).Usage(ctx)
	if err == nil || !strings.Contains(err.Error(), "Bearer token required") {
		t.Errorf("expected API error to surface, got %v", err)
	}
}
