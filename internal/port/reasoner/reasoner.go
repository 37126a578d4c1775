// Package reasoner defines ports for the external reasoning collaborators:
// GL suggestion for the cascade's last tier, and structured extraction of
// invoice fields from raw document text. Both may time out or return
// garbage; callers degrade to fixed defaults.
package reasoner

import (
	"context"

	"github.com/apfabric/apfabric/internal/domain/invoice"
)

// Suggestion is an externally reasoned GL classification.
type Suggestion struct {
	GLCode     string  `json:"gl_code"`
	Confidence float64 `json:"confidence"`
}

// Extraction holds structured fields pulled from raw invoice text.
// Nil pointers mean the field was not found.
type Extraction struct {
	VendorName  string             `json:"vendor_name"`
	Amount      *float64           `json:"amount"`
	PONumber    *string            `json:"po_number"`
	Description string             `json:"description"`
	LineItems   []invoice.LineItem `json:"line_items"`
}

// Reasoner suggests a GL code for an invoice the cascade could not classify.
type Reasoner interface {
	SuggestGL(ctx context.Context, vendorName, description string) (*Suggestion, error)
}

// Extractor parses structured invoice fields out of messy document text.
type Extractor interface {
	ExtractInvoice(ctx context.Context, rawText string) (*Extraction, error)
}
