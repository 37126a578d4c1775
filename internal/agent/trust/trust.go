// Package trust scores vendor payment reliability with a Beta-Bernoulli
// estimator and splits payments accordingly: full release for trusted
// vendors, tax withheld for the middle band, blocked for the rest.
package trust

import (
	"context"
	"errors"
	"fmt"

	"github.com/apfabric/apfabric/internal/config"
	"github.com/apfabric/apfabric/internal/domain"
	"github.com/apfabric/apfabric/internal/port/ledger"
	"github.com/apfabric/apfabric/internal/stats"
)

// Payment actions, from most to least trusted.
const (
	ActionFullPayment    = "full_payment"
	ActionPartialTaxHeld = "partial_payment_tax_held"
	ActionBlock          = "block_for_verification"
)

// Verification states reported alongside the action.
const (
	VerificationAuto    = "auto_verified"
	VerificationPending = "pending"
)

// Result is the outcome of one trust evaluation.
type Result struct {
	VendorID           string  `json:"vendor_id"`
	TrustScore         float64 `json:"trust_score"`
	PaymentAction      string  `json:"payment_action"`
	BaseAmount         float64 `json:"base_amount"`
	WithheldAmount     float64 `json:"withheld_amount"`
	VerificationStatus string  `json:"verification_status"`
}

// Agent evaluates vendor trust from payment history.
type Agent struct {
	cfg    config.Trust
	ledger ledger.Ledger
}

// New creates the agent.
func New(cfg config.Trust, l ledger.Ledger) *Agent {
	return &Agent{cfg: cfg, ledger: l}
}

// Evaluate computes the vendor's trust score and the resulting payment
// split for the given amount. Unknown vendors and vendors without payment
// history get the neutral prior.
func (a *Agent) Evaluate(ctx context.Context, vendorID string, amount float64) (*Result, error) {
	score, err := a.score(ctx, vendorID)
	if err != nil {
		return nil, err
	}

	res := &Result{
		VendorID:           vendorID,
		TrustScore:         score,
		VerificationStatus: VerificationPending,
	}
	switch {
	case score >= a.cfg.FullPaymentMin:
		res.PaymentAction = ActionFullPayment
		res.BaseAmount = amount
		res.VerificationStatus = VerificationAuto
	case score >= a.cfg.PartialMin:
		res.PaymentAction = ActionPartialTaxHeld
		res.WithheldAmount = amount * a.cfg.WithholdPercent
		res.BaseAmount = amount - res.WithheldAmount
	default:
		res.PaymentAction = ActionBlock
		res.WithheldAmount = amount * a.cfg.WithholdPercent
		res.BaseAmount = amount - res.WithheldAmount
	}
	return res, nil
}

func (a *Agent) score(ctx context.Context, vendorID string) (float64, error) {
	v, err := a.ledger.GetVendor(ctx, vendorID)
	if errors.Is(err, domain.ErrNotFound) {
		return a.cfg.NeutralPrior, nil
	}
	if err != nil {
		return 0, fmt.Errorf("load vendor %s: %w", vendorID, err)
	}
	if v.HistoricalPayments == 0 {
		return a.cfg.NeutralPrior, nil
	}
	return stats.BetaMean(v.SuccessfulPayments, v.HistoricalPayments), nil
}
