package invoice

import (
	"encoding/json"
	"fmt"
	"time"
)

// JSONRenderer produces a structured JSON artifact for an issued invoice.
// It is the default when no PDF rendering collaborator is configured; the
// ledger is indifferent to the artifact format since only its digest is
// hashed.
type JSONRenderer struct{}

// Render implements Renderer.
func (JSONRenderer) Render(docNumber string, draft Draft, total string, issuedAt time.Time) ([]byte, string, error) {
	type line struct {
		Description string `json:"description"`
		Quantity    int64  `json:"quantity"`
		UnitPrice   string `json:"unit_price"`
		VATRate     int    `json:"vat_rate"`
		Gross       string `json:"gross"`
	}
	doc := struct {
		DocNumber    string    `json:"doc_number"`
		IssuedAt     time.Time `json:"issued_at"`
		Counterparty string    `json:"counterparty"`
		TaxID        string    `json:"counterparty_tax_id,omitempty"`
		Lines        []line    `json:"lines"`
		Total        string    `json:"total"`
		Notes        string    `json:"notes,omitempty"`
	}{
		DocNumber:    docNumber,
		IssuedAt:     issuedAt,
		Counterparty: draft.Counterparty,
		TaxID:        draft.CounterpartyTaxID,
		Total:        total,
		Notes:        draft.Notes,
	}
	for _, li := range draft.Items {
		doc.Lines = append(doc.Lines, line{
			Description: li.Description,
			Quantity:    li.Quantity,
			UnitPrice:   li.UnitPrice.StringFixed(2),
			VATRate:     li.VATRate,
			Gross:       li.Gross().StringFixed(2),
		})
	}

	out, err := json.MarshalIndent(doc, "", "  ")
	if err != nil {
		return nil, "", fmt.Errorf("marshal invoice document: %w", err)
	}
	return out, docNumber + ".json", nil
}
