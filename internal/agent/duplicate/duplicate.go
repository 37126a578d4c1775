// Package duplicate flags repeat and near-repeat invoices by combining
// kernel density estimation over invoice fingerprints with character-level
// fuzzy matching of descriptions at identical amounts.
package duplicate

import (
	"context"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/apfabric/apfabric/internal/config"
	"github.com/apfabric/apfabric/internal/domain/invoice"
	"github.com/apfabric/apfabric/internal/port/ledger"
	"github.com/apfabric/apfabric/internal/stats"
	"github.com/apfabric/apfabric/internal/textsim"
)

// Detection methods reported in Result.Method.
const (
	MethodInsufficientData = "insufficient_data"
	MethodDensity          = "kernel_density_estimation"
	MethodDensityAndFuzzy  = "kde_and_fuzzy_text_match"
)

// Result is the outcome of one duplicate check.
type Result struct {
	IsDuplicate     bool    `json:"is_duplicate"`
	DensityScore    float64 `json:"density_score"`
	FuzzySimilarity float64 `json:"fuzzy_similarity"`
	MatchedID       string  `json:"matched_historical_id,omitempty"`
	Method          string  `json:"method"`
	Confidence      float64 `json:"confidence"`
}

// Agent runs duplicate detection against the full invoice ledger.
type Agent struct {
	cfg    config.Duplicate
	ledger ledger.Ledger
}

// New creates the agent.
func New(cfg config.Duplicate, l ledger.Ledger) *Agent {
	return &Agent{cfg: cfg, ledger: l}
}

// Check evaluates the invoice against history. With fewer than the minimum
// historical invoices it reports not-duplicate via the insufficient-data
// branch rather than guessing from a sparse density surface.
func (a *Agent) Check(ctx context.Context, inv *invoice.Invoice) (*Result, error) {
	history, err := a.ledger.ListInvoices(ctx)
	if err != nil {
		return nil, fmt.Errorf("load invoice history: %w", err)
	}
	if len(history) < a.cfg.MinHistory {
		return &Result{IsDuplicate: false, Confidence: 0, Method: MethodInsufficientData}, nil
	}

	newDesc := strings.ToLower(inv.Description)
	newAmount := inv.AmountValue()

	var (
		bestFuzzy   float64
		bestFuzzyID string
	)
	vectors := make([][]float64, 0, len(history))
	for _, hist := range history {
		vectors = append(vectors, fingerprint(hist.VendorID, hist.AmountValue(), hist.DateReceived, hist.Description))

		// Fuzzy text comparison only makes sense at (near) identical amounts.
		if math.Abs(newAmount-hist.AmountValue()) < 0.01 {
			ratio := textsim.Ratio(newDesc, strings.ToLower(hist.Description))
			if ratio > bestFuzzy {
				bestFuzzy = ratio
				bestFuzzyID = hist.ID
			}
		}
	}

	scaler, err := stats.FitScaler(vectors)
	if err != nil {
		return nil, fmt.Errorf("fit fingerprint scaler: %w", err)
	}
	kde, err := stats.FitKDE(scaler.TransformAll(vectors), a.cfg.Bandwidth)
	if err != nil {
		return nil, fmt.Errorf("fit density estimator: %w", err)
	}

	date := inv.DateReceived
	if date.IsZero() {
		date = time.Now()
	}
	fp := fingerprint(inv.VendorID, newAmount, date, inv.Description)
	logDensity := kde.LogDensity(scaler.Transform(fp))

	isDense := logDensity > a.cfg.DensityThreshold
	isFuzzy := bestFuzzy > a.cfg.FuzzyThreshold

	res := &Result{
		IsDuplicate:     isDense || isFuzzy,
		DensityScore:    logDensity,
		FuzzySimilarity: bestFuzzy,
		Method:          MethodDensity,
	}
	switch {
	case isFuzzy:
		res.Method = MethodDensityAndFuzzy
		res.MatchedID = bestFuzzyID
		res.Confidence = 0.98
	case isDense:
		res.Confidence = 0.9
	default:
		res.Confidence = 0.3
	}
	return res, nil
}

// fingerprint projects an invoice into the five-dimensional space used for
// density estimation: vendor identity hash, amount bucketed to the nearest
// hundred, weekday, day of month, and description hash.
func fingerprint(vendorID string, amount float64, date time.Time, description string) []float64 {
	if date.IsZero() {
		// Matches the neutral fingerprint for unparsable dates.
		return []float64{runeSum(vendorID), bucket(amount), 0, 1, runeSum(description)}
	}
	return []float64{
		runeSum(vendorID),
		bucket(amount),
		float64(weekday(date)),
		float64(date.Day()),
		runeSum(description),
	}
}

func bucket(amount float64) float64 {
	return math.Round(amount/100) * 100
}

// weekday maps Monday to 0 through Sunday to 6.
func weekday(t time.Time) int {
	return (int(t.Weekday()) + 6) % 7
}

func runeSum(s string) float64 {
	var sum float64
	for _, r := range s {
		sum += float64(r)
	}
	return sum
}
