// Package client provides the Go SDK for the Inaltera ledger API: public hash
// verification, owner-scoped record access, and chain audits.
package client

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// VerifyResult is the outcome of a public hash verification.
type VerifyResult struct {
	Valid    bool             `json:"valid"`
	Document *DocumentSummary `json:"document,omitempty"`
}

// DocumentSummary is the redacted document view attached to a valid result.
type DocumentSummary struct {
	DocNumber    string    `json:"doc_number"`
	Counterparty string    `json:"counterparty"`
	Total        string    `json:"total"`
	CreatedAt    time.Time `json:"created_at"`
}

// AuditResult reports a full-chain integrity walk.
type AuditResult struct {
	Ledger          string `json:"ledger"`
	Valid           bool   `json:"valid"`
	FirstTamperedID int64  `json:"first_tampered_id,omitempty"`
	Reason          string `json:"reason,omitempty"`
}

// Record is a hash-linked invoice record as returned by the API.
type Record struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Payload   struct {
		OwnerID         string    `json:"owner_id"`
		DocNumber       string    `json:"doc_number"`
		Counterparty    string    `json:"counterparty"`
		Total           string    `json:"total"`
		Kind            string    `json:"kind"`
		OccurredAt      time.Time `json:"occurred_at"`
		CancelReason    string    `json:"cancel_reason,omitempty"`
		DocDigest       string    `json:"doc_digest,omitempty"`
		Status          string    `json:"status"`
		VerificationRef string    `json:"verification_ref,omitempty"`
		ArtifactName    string    `json:"artifact_name,omitempty"`
	} `json:"payload"`
	PrevHash    string `json:"prev_hash"`
	CurrentHash string `json:"current_hash"`
}

// Event is an audit event as returned by the API.
type Event struct {
	ID        int64     `json:"id"`
	CreatedAt time.Time `json:"created_at"`
	Payload   struct {
		ActorID     string    `json:"actor_id"`
		Category    string    `json:"category"`
		Description string    `json:"description"`
		Level       string    `json:"level"`
		OccurredAt  time.Time `json:"occurred_at"`
	} `json:"payload"`
	PrevHash    string `json:"prev_hash"`
	CurrentHash string `json:"current_hash"`
}

// Usage is an owner's monthly issuance report.
type Usage struct {
	Used    int       `json:"used"`
	Limit   int       `json:"limit"`
	Percent int       `json:"percent"`
	ResetAt time.Time `json:"reset_at"`
}

// Client talks to an Inaltera API server.
type Client struct {
	baseURL    string
	httpClient *http.Client
	token      string
}

// Option is a functional option for configuring a Client.
type Option func(*Client)

// WithHTTPClient sets a custom http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithBearerToken attaches an owner session token to every request. Required
// for everything except Verify.
func WithBearerToken(token string) Option {
	return func(c *Client) { c.token = token }
}

// New creates a Client connected to baseURL.
func New(baseURL string, opts ...Option) *Client {
	c := &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{Timeout: 10 * time.Second},
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// Verify checks a claimed hash against the ledger. No authentication needed.
func (c *Client) Verify(ctx context.Context, hash string) (*VerifyResult, error) {
	var out VerifyResult
	if err := c.get(ctx, "/api/v1/verify/"+url.PathEscape(hash), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuditInvoices walks the full invoice chain on the server.
func (c *Client) AuditInvoices(ctx context.Context) (*AuditResult, error) {
	var out AuditResult
	if err := c.get(ctx, "/api/v1/ledger/invoices/audit", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// AuditEvents walks the full audit-event chain on the server.
func (c *Client) AuditEvents(ctx context.Context) (*AuditResult, error) {
	var out AuditResult
	if err := c.get(ctx, "/api/v1/ledger/events/audit", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Records lists the caller's invoice records, most recent first.
func (c *Client) Records(ctx context.Context) ([]Record, error) {
	var out struct {
		Invoices []Record `json:"invoices"`
	}
	if err := c.get(ctx, "/api/v1/invoices", &out); err != nil {
		return nil, err
	}
	return out.Invoices, nil
}

// Events lists the caller's audit events, most recent first. limit 0 means no
// limit.
func (c *Client) Events(ctx context.Context, limit int) ([]Event, error) {
	path := "/api/v1/events"
	if limit > 0 {
		path += "?limit=" + strconv.Itoa(limit)
	}
	var out struct {
		Events []Event `json:"events"`
	}
	if err := c.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return out.Events, nil
}

// Usage fetches the caller's issuance volume for the current month.
func (c *Client) Usage(ctx context.Context) (*Usage, error) {
	var out Usage
	if err := c.get(ctx, "/api/v1/usage", &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (c *Client) get(ctx context.Context, path string, out any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var apiErr struct {
			Error string `json:"error"`
		}
		if json.Unmarshal(body, &apiErr) == nil && apiErr.Error != "" {
			return fmt.Errorf("server error %d: %s", resp.StatusCode, apiErr.Error)
		}
		return fmt.Errorf("server error %d: %s", resp.StatusCode, string(body))
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}
