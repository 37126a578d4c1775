// Package invoice defines the Invoice domain entity and input sanitization.
package invoice

import (
	"strconv"
	"strings"
	"time"
)

// Status represents the lifecycle state of an invoice.
type Status string

const (
	StatusPending          Status = "pending"
	StatusProcessed        Status = "processed"
	StatusDuplicateBlocked Status = "duplicate_blocked"
	StatusError            Status = "error"

	// StatusApproved marks historical invoices whose coding was confirmed.
	// Approved rows are the training and variance-history population.
	StatusApproved Status = "approved"
)

// LineItem is a single billed line. Immutable once persisted; belongs to
// exactly one invoice or purchase order.
type LineItem struct {
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	UOM         string  `json:"uom,omitempty"`
}

// Invoice is the transient pipeline input and the persisted record.
// Amount, PONumber and SESNumber are pointers: nil means "missing", which
// downstream stages handle as an explicit branch rather than an error.
type Invoice struct {
	ID           string     `json:"id"`
	VendorID     string     `json:"vendor_id"`
	VendorName   string     `json:"vendor_name"`
	Amount       *float64   `json:"amount"`
	Description  string     `json:"description"`
	PONumber     *string    `json:"po_number,omitempty"`
	SESNumber    *string    `json:"ses_number,omitempty"`
	LineItems    []LineItem `json:"line_items,omitempty"`
	DateReceived time.Time  `json:"date_received"`
	Status       Status     `json:"status"`
	GLCode       string     `json:"gl_code,omitempty"`
	IsDuplicate  bool       `json:"is_duplicate"`
}

// AmountValue returns the amount, or 0 when it is missing.
func (inv *Invoice) AmountValue() float64 {
	if inv.Amount == nil {
		return 0
	}
	return *inv.Amount
}

// PORef returns the purchase order reference, or "" when missing.
func (inv *Invoice) PORef() string {
	if inv.PONumber == nil {
		return ""
	}
	return *inv.PONumber
}

// poPlaceholders are string renderings of "no PO" that upstream systems emit.
var poPlaceholders = map[string]bool{
	"": true, "none": true, "null": true, "not found": true,
	"false": true, "undefined": true,
}

// NormalizePO maps placeholder PO strings to nil and trims real references.
func NormalizePO(raw string) *string {
	s := strings.TrimSpace(raw)
	if poPlaceholders[strings.ToLower(s)] {
		return nil
	}
	return &s
}

// ParseAmount converts a free-form amount string to a float, tolerating
// thousands separators. Unparsable or empty input yields nil.
func ParseAmount(raw string) *float64 {
	s := strings.ReplaceAll(strings.TrimSpace(raw), ",", "")
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return nil
	}
	return &f
}
