// Package variance resolves price differences between invoices and their
// purchase orders. The acceptable tolerance is not fixed: a prior is blended
// with the vendor's observed variance history, so vendors with volatile but
// legitimate pricing earn wider bands over time.
package variance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/apfabric/apfabric/internal/config"
	"github.com/apfabric/apfabric/internal/domain"
	"github.com/apfabric/apfabric/internal/port/ledger"
	"github.com/apfabric/apfabric/internal/stats"
)

// Decisions, in descending order of confidence in the charge.
const (
	DecisionAutoApprove      = "auto_approve"
	DecisionReviewVerified   = "review_with_verification"
	DecisionReject           = "reject"
	DecisionRequiresApproval = "requires_approval"
)

// StatusNoPO marks evaluations that had no purchase order amount to compare.
const StatusNoPO = "no_po"

// surchargeKeywords mark descriptions that may explain a price overage.
var surchargeKeywords = []string{
	"freight", "surcharge", "fuel", "detention", "weather", "steel index",
}

// verifiablePatterns are surcharge claims we treat as externally checkable.
var verifiablePatterns = []string{
	"fuel", "steel index", "freight", "weather", "detention", "surcharge",
}

// Result is the outcome of one variance evaluation.
type Result struct {
	Status         string  `json:"variance_status,omitempty"`
	POAmount       float64 `json:"po_amount"`
	InvoiceAmount  float64 `json:"invoice_amount"`
	VariancePct    float64 `json:"variance_pct"`
	Threshold      float64 `json:"dynamic_threshold"`
	HasSurcharge   bool    `json:"has_surcharge"`
	Decision       string  `json:"decision,omitempty"`
	RequiresReview bool    `json:"requires_review"`
}

// Agent evaluates invoice-vs-PO price variance.
type Agent struct {
	cfg    config.Variance
	ledger ledger.Ledger
}

// New creates the agent.
func New(cfg config.Variance, l ledger.Ledger) *Agent {
	return &Agent{cfg: cfg, ledger: l}
}

// Evaluate compares the invoice amount to the PO amount under the vendor's
// dynamic tolerance. A zero PO amount yields the no-PO status.
func (a *Agent) Evaluate(ctx context.Context, poAmount, invoiceAmount float64, description, vendorID string) (*Result, error) {
	if poAmount == 0 {
		return &Result{Status: StatusNoPO, RequiresReview: false}, nil
	}

	variancePct := (invoiceAmount - poAmount) / poAmount
	hasSurcharge := containsAny(description, surchargeKeywords)

	threshold, err := a.dynamicThreshold(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		POAmount:      poAmount,
		InvoiceAmount: invoiceAmount,
		VariancePct:   variancePct,
		Threshold:     threshold,
		HasSurcharge:  hasSurcharge,
	}
	switch {
	case math.Abs(variancePct) <= threshold:
		res.Decision = DecisionAutoApprove
	case hasSurcharge && variancePct > 0:
		// An overage with a surcharge claim: accept for review only when
		// the claim matches a verifiable pattern.
		if verifySurcharge(description) {
			res.Decision = DecisionReviewVerified
		} else {
			res.Decision = DecisionReject
		}
		res.RequiresReview = true
	default:
		res.Decision = DecisionRequiresApproval
		res.RequiresReview = true
	}
	return res, nil
}

// dynamicThreshold blends the prior tolerance with the 75th percentile of
// the vendor's historical absolute variances, weighted by history volume.
func (a *Agent) dynamicThreshold(ctx context.Context, vendorID string) (float64, error) {
	history, err := a.ledger.ListVendorPOInvoices(ctx, vendorID)
	if err != nil {
		return 0, fmt.Errorf("load variance history for %s: %w", vendorID, err)
	}

	var observed []float64
	for _, inv := range history {
		po, err := a.ledger.GetPurchaseOrder(ctx, inv.PORef())
		if errors.Is(err, domain.ErrNotFound) {
			continue
		}
		if err != nil {
			return 0, fmt.Errorf("load purchase order %s: %w", inv.PORef(), err)
		}
		if po.TotalAmount > 0 {
			observed = append(observed, math.Abs(inv.AmountValue()-po.TotalAmount)/po.TotalAmount)
		}
	}
	return stats.BlendThreshold(a.cfg.PriorTolerance, a.cfg.PriorStrength, observed, a.cfg.Percentile), nil
}

func verifySurcharge(description string) bool {
	return containsAny(description, verifiablePatterns)
}

func containsAny(s string, keywords []string) bool {
	lower := strings.ToLower(s)
	for _, kw := range keywords {
		if strings.Contains(lower, kw) {
			return true
		}
	}
	return false
}
