// Package intake performs first-pass triage of an incoming invoice: type
// classification from the concept catalog, missing-PO detection with fuzzy
// recovery against open orders, and the human-review gate for bad amounts.
package intake

import (
	"context"
	"fmt"
	"math"
	"strings"

	"github.com/apfabric/apfabric/internal/config"
	"github.com/apfabric/apfabric/internal/domain/invoice"
	"github.com/apfabric/apfabric/internal/memory"
	"github.com/apfabric/apfabric/internal/port/ledger"
)

// Invoice types assigned at intake.
const (
	TypeGoods   = "goods"
	TypeService = "service"
	TypeTravel  = "travel"
)

// PO statuses.
const (
	POFound   = "found"
	POMissing = "missing"
)

// Result is the outcome of intake triage.
type Result struct {
	VendorName          string                `json:"vendor_name"`
	Amount              *float64              `json:"amount"`
	InvoiceType         string                `json:"invoice_type"`
	POStatus            string                `json:"po_status"`
	SuggestedPO         string                `json:"suggested_po,omitempty"`
	SemanticContext     []memory.ConceptMatch `json:"semantic_context"`
	RequiresPORequest   bool                  `json:"requires_po_request"`
	RequiresHumanReview bool                  `json:"requires_human_review"`
}

// Agent performs intake triage.
type Agent struct {
	cfg    config.Intake
	memory *memory.Store
	ledger ledger.Ledger
}

// New creates the agent.
func New(cfg config.Intake, mem *memory.Store, l ledger.Ledger) *Agent {
	return &Agent{cfg: cfg, memory: mem, ledger: l}
}

// Process triages the invoice. It does not mutate the invoice: orchestration
// decides what to do with a suggested PO or a review flag.
func (a *Agent) Process(ctx context.Context, inv *invoice.Invoice) (*Result, error) {
	matches, err := a.memory.SemanticSearch(inv.Description+" "+inv.VendorName, 3)
	if err != nil {
		return nil, fmt.Errorf("classify invoice type: %w", err)
	}

	invoiceType := TypeGoods
	for _, m := range matches {
		if strings.Contains(m.Concept, "service") || strings.Contains(m.Concept, "maintenance") {
			invoiceType = TypeService
			break
		}
		if strings.Contains(m.Concept, "travel") {
			invoiceType = TypeTravel
			break
		}
	}

	res := &Result{
		VendorName:          inv.VendorName,
		Amount:              inv.Amount,
		InvoiceType:         invoiceType,
		POStatus:            POFound,
		RequiresHumanReview: inv.Amount == nil || *inv.Amount <= 0,
	}
	if len(matches) > 2 {
		matches = matches[:2]
	}
	res.SemanticContext = matches

	if inv.PORef() == "" {
		res.POStatus = POMissing
		if inv.Amount != nil {
			suggested, err := a.fuzzyPOMatch(ctx, inv.VendorName, *inv.Amount)
			if err != nil {
				return nil, err
			}
			res.SuggestedPO = suggested
		}
		res.RequiresPORequest = res.SuggestedPO == ""
	}
	return res, nil
}

// fuzzyPOMatch looks for an open order whose vendor name contains (or is
// contained by) the invoice's vendor name and whose total is within the
// amount tolerance.
func (a *Agent) fuzzyPOMatch(ctx context.Context, vendorName string, amount float64) (string, error) {
	orders, err := a.ledger.ListOpenPurchaseOrders(ctx)
	if err != nil {
		return "", fmt.Errorf("list open purchase orders: %w", err)
	}

	vendorLower := strings.ToLower(vendorName)
	for _, po := range orders {
		v, err := a.ledger.GetVendor(ctx, po.VendorID)
		if err != nil {
			continue
		}
		nameLower := strings.ToLower(v.Name)
		if !strings.Contains(vendorLower, nameLower) && !strings.Contains(nameLower, vendorLower) {
			continue
		}
		if math.Abs(po.TotalAmount-amount)/math.Max(amount, 1) < a.cfg.AmountTolerance {
			return po.ID, nil
		}
	}
	return "", nil
}
