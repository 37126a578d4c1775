// Package matching implements the three-way purchase order match and the
// service entry sheet check. Line items are matched to PO lines by TF-IDF
// cosine similarity rather than exact text, so reworded descriptions still
// reconcile.
package matching

import (
	"context"
	"errors"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/apfabric/apfabric/internal/config"
	"github.com/apfabric/apfabric/internal/domain"
	"github.com/apfabric/apfabric/internal/domain/invoice"
	"github.com/apfabric/apfabric/internal/port/ledger"
	"github.com/apfabric/apfabric/internal/textsim"
)

// PO match decisions.
const (
	DecisionAutoApprove    = "auto_approve"
	DecisionReviewRequired = "review_required"
	DecisionReject         = "reject"
)

// SES statuses.
const (
	SESExists  = "exists"
	SESMissing = "missing"
)

// SES recommended actions when the sheet is missing.
const (
	ActionCreateSES  = "create_ses"
	ActionRequestSES = "request_ses"
)

// LineMatch pairs one invoice line with its best PO line candidate.
type LineMatch struct {
	InvoiceItem invoice.LineItem `json:"invoice_item"`
	POItem      string           `json:"po_item,omitempty"`
	Similarity  float64          `json:"similarity"`
	QtyMatch    bool             `json:"qty_match"`
	RateMatch   bool             `json:"rate_match"`
}

// POResult is the outcome of a three-way match.
type POResult struct {
	PONumber          string      `json:"po_number,omitempty"`
	LineMatches       []LineMatch `json:"line_matches,omitempty"`
	AverageConfidence float64     `json:"average_confidence"`
	Decision          string      `json:"decision"`
	Reason            string      `json:"reason,omitempty"`
}

// Evidence is a proof-of-work hit from operational records.
type Evidence struct {
	Source     string    `json:"source"`
	Content    string    `json:"evidence"`
	Date       time.Time `json:"date"`
	Confidence float64   `json:"confidence"`
}

// SESResult is the outcome of a service entry sheet check.
type SESResult struct {
	Status            string    `json:"ses_status"`
	SESNumber         string    `json:"ses_number,omitempty"`
	ProofOfWork       *Evidence `json:"proof_of_work,omitempty"`
	RecommendedAction string    `json:"recommended_action,omitempty"`
}

// Agent performs PO matching and SES checks against the ledger.
type Agent struct {
	cfg    config.Matching
	ledger ledger.Ledger
}

// New creates the agent.
func New(cfg config.Matching, l ledger.Ledger) *Agent {
	return &Agent{cfg: cfg, ledger: l}
}

// MatchPO reconciles the invoice's line items against its referenced
// purchase order. Missing or empty POs reject without error; ledger
// failures propagate.
func (a *Agent) MatchPO(ctx context.Context, inv *invoice.Invoice) (*POResult, error) {
	poNumber := inv.PORef()
	if poNumber == "" {
		return &POResult{Decision: DecisionReject, Reason: "no PO provided"}, nil
	}

	if _, err := a.ledger.GetPurchaseOrder(ctx, poNumber); err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return &POResult{PONumber: poNumber, Decision: DecisionReject, Reason: "PO not found in ERP"}, nil
		}
		return nil, fmt.Errorf("load purchase order %s: %w", poNumber, err)
	}

	poItems, err := a.ledger.ListPurchaseOrderItems(ctx, poNumber)
	if err != nil {
		return nil, fmt.Errorf("load PO items for %s: %w", poNumber, err)
	}
	if len(poItems) == 0 {
		return &POResult{PONumber: poNumber, Decision: DecisionReject, Reason: "PO has no line items"}, nil
	}
	if len(inv.LineItems) == 0 {
		return &POResult{PONumber: poNumber, Decision: DecisionReject, Reason: "invoice has no line items"}, nil
	}

	// Vocabulary is fitted per PO: similarity is relative to this order's
	// own line descriptions.
	descriptions := make([]string, len(poItems))
	for i, item := range poItems {
		descriptions[i] = item.Description
	}
	vectorizer := textsim.NewVectorizer(textsim.WithMaxFeatures(200))
	if err := vectorizer.Fit(descriptions); err != nil {
		return nil, fmt.Errorf("index PO items for %s: %w", poNumber, err)
	}
	poVectors := make([][]float64, len(poItems))
	for i, desc := range descriptions {
		if poVectors[i], err = vectorizer.Transform(desc); err != nil {
			return nil, err
		}
	}

	matches := make([]LineMatch, 0, len(inv.LineItems))
	var totalConfidence float64
	for _, line := range inv.LineItems {
		match := LineMatch{InvoiceItem: line}
		if line.Description != "" {
			lineVec, err := vectorizer.Transform(line.Description)
			if err != nil {
				return nil, err
			}
			for i, poVec := range poVectors {
				if sim := textsim.Cosine(lineVec, poVec); sim > match.Similarity {
					match.Similarity = sim
					match.POItem = poItems[i].Description
					match.QtyMatch = line.Quantity == poItems[i].Quantity
					match.RateMatch = math.Abs(line.Rate-poItems[i].Rate)/math.Max(poItems[i].Rate, 1) < a.cfg.RateTolerance
				}
			}
		}
		totalConfidence += match.Similarity
		matches = append(matches, match)
	}

	avg := totalConfidence / float64(len(matches))
	res := &POResult{PONumber: poNumber, LineMatches: matches, AverageConfidence: avg}
	switch {
	case avg >= a.cfg.AutoApproveMin:
		res.Decision = DecisionAutoApprove
	case avg >= a.cfg.ReviewMin:
		res.Decision = DecisionReviewRequired
	default:
		res.Decision = DecisionReject
	}
	return res, nil
}

// CheckSES verifies a service entry sheet exists, or hunts operational
// records for proof the work happened.
func (a *Agent) CheckSES(ctx context.Context, inv *invoice.Invoice) (*SESResult, error) {
	if inv.SESNumber != nil && *inv.SESNumber != "" {
		return &SESResult{Status: SESExists, SESNumber: *inv.SESNumber}, nil
	}

	evidence, err := a.searchProofOfWork(ctx, inv.Description)
	if err != nil {
		return nil, err
	}

	res := &SESResult{Status: SESMissing, ProofOfWork: evidence, RecommendedAction: ActionRequestSES}
	if evidence != nil {
		res.RecommendedAction = ActionCreateSES
	}
	return res, nil
}

// searchProofOfWork scans operational records for the first one sharing a
// word with the invoice description.
func (a *Agent) searchProofOfWork(ctx context.Context, description string) (*Evidence, error) {
	proofs, err := a.ledger.ListOperationalProofs(ctx)
	if err != nil {
		return nil, fmt.Errorf("load operational proofs: %w", err)
	}

	words := strings.Fields(strings.ToLower(description))
	for _, p := range proofs {
		content := strings.ToLower(p.Content)
		for _, w := range words {
			if strings.Contains(content, w) {
				return &Evidence{Source: p.Source, Content: p.Content, Date: p.Date, Confidence: 0.75}, nil
			}
		}
	}
	return nil, nil
}
