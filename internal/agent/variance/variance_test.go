package variance

import (
	"context"
	"errors"
	"fmt"
	"math"
	"testing"

	"github.com/apfabric/apfabric/internal/config"
	"github.com/apfabric/apfabric/internal/domain/invoice"
	"github.com/apfabric/apfabric/internal/domain/purchase"
	"github.com/apfabric/apfabric/internal/port/ledger/ledgertest"
)

func amt(v float64) *float64 { return &v }
func ref(s string) *string   { return &s }

// seedVarianceHistory gives V001 five approved PO invoices with absolute
// variances of 4, 6, 8, 10 and 12 percent.
func seedVarianceHistory(fake *ledgertest.Fake) {
	overs := []float64{104000, 106000, 108000, 110000, 112000}
	for i, amount := range overs {
		poID := fmt.Sprintf("PO-%03d", i+1)
		fake.Orders[poID] = purchase.Order{ID: poID, VendorID: "V001", TotalAmount: 100000, Status: purchase.StatusClosed}
		fake.Invoices = append(fake.Invoices, invoice.Invoice{
			ID:       fmt.Sprintf("INV-%03d", i+1),
			VendorID: "V001",
			Amount:   amt(amount),
			PONumber: ref(poID),
			Status:   invoice.StatusApproved,
		})
	}
}

func TestEvaluateNoPO(t *testing.T) {
	a := New(config.Defaults().Variance, ledgertest.New())

	res, err := a.Evaluate(context.Background(), 0, 5000, "anything", "V001")
	if err != nil {
		t.Fatal(err)
	}
	if res.Status != StatusNoPO {
		t.Errorf("status = %s, want %s", res.Status, StatusNoPO)
	}
	if res.RequiresReview {
		t.Error("no-PO evaluation must not require review")
	}
}

func TestEvaluateAutoApproveWithinPrior(t *testing.T) {
	a := New(config.Defaults().Variance, ledgertest.New())

	// No history: threshold is the 5% prior. 3% under stays inside.
	res, err := a.Evaluate(context.Background(), 100000, 97000, "monthly retainer", "V-NEW")
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != DecisionAutoApprove {
		t.Errorf("decision = %s, want %s", res.Decision, DecisionAutoApprove)
	}
	if res.Threshold != 0.05 {
		t.Errorf("threshold = %v, want prior 0.05", res.Threshold)
	}
	if res.RequiresReview {
		t.Error("auto-approve must not require review")
	}
}

func TestEvaluateSurchargeOverageReview(t *testing.T) {
	fake := ledgertest.New()
	seedVarianceHistory(fake)
	a := New(config.Defaults().Variance, fake)

	// p75 of history is 0.10; blended with the prior at equal weight the
	// threshold lands at 0.075. A 12% freight overage exceeds it.
	res, err := a.Evaluate(context.Background(), 100000, 112000,
		"Steel coils with freight surcharge for fuel", "V001")
	if err != nil {
		t.Fatal(err)
	}
	if math.Abs(res.Threshold-0.075) > 1e-9 {
		t.Errorf("threshold = %v, want 0.075", res.Threshold)
	}
	if math.Abs(res.VariancePct-0.12) > 1e-9 {
		t.Errorf("variance = %v, want 0.12", res.VariancePct)
	}
	if !res.HasSurcharge {
		t.Error("expected surcharge flag")
	}
	if res.Decision != DecisionReviewVerified {
		t.Errorf("decision = %s, want %s", res.Decision, DecisionReviewVerified)
	}
	if !res.RequiresReview {
		t.Error("verified surcharge must still require review")
	}
}

func TestEvaluateHistoryWidensThreshold(t *testing.T) {
	fake := ledgertest.New()
	seedVarianceHistory(fake)
	a := New(config.Defaults().Variance, fake)

	// 7% would breach the bare prior but sits inside the earned band.
	res, err := a.Evaluate(context.Background(), 100000, 107000, "steel sheets", "V001")
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != DecisionAutoApprove {
		t.Errorf("decision = %s (threshold %v), want %s",
			res.Decision, res.Threshold, DecisionAutoApprove)
	}
}

func TestEvaluateUnexplainedVarianceRequiresApproval(t *testing.T) {
	a := New(config.Defaults().Variance, ledgertest.New())

	// Large overage with no surcharge language.
	res, err := a.Evaluate(context.Background(), 100000, 130000, "office chairs", "V-NEW")
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != DecisionRequiresApproval {
		t.Errorf("decision = %s, want %s", res.Decision, DecisionRequiresApproval)
	}

	// Undercharge with surcharge words still needs approval: the surcharge
	// branch only explains positive variance.
	res, err = a.Evaluate(context.Background(), 100000, 80000, "freight surcharge applied", "V-NEW")
	if err != nil {
		t.Fatal(err)
	}
	if res.Decision != DecisionRequiresApproval {
		t.Errorf("negative variance decision = %s, want %s", res.Decision, DecisionRequiresApproval)
	}
}

func TestDynamicThresholdSkipsMissingPOs(t *testing.T) {
	fake := ledgertest.New()
	// History row referencing a PO the ERP no longer has.
	fake.Invoices = append(fake.Invoices, invoice.Invoice{
		ID: "INV-001", VendorID: "V001", Amount: amt(50000),
		PONumber: ref("PO-GONE"), Status: invoice.StatusApproved,
	})
	a := New(config.Defaults().Variance, fake)

	threshold, err := a.dynamicThreshold(context.Background(), "V001")
	if err != nil {
		t.Fatal(err)
	}
	if threshold != 0.05 {
		t.Errorf("threshold = %v, want prior when all history is unresolvable", threshold)
	}
}

func TestEvaluateLedgerError(t *testing.T) {
	fake := ledgertest.New()
	fake.Err = errors.New("connection reset")
	a := New(config.Defaults().Variance, fake)

	if _, err := a.Evaluate(context.Background(), 100000, 110000, "steel", "V001"); err == nil {
		t.Fatal("expected error when ledger is unavailable")
	}
}

func TestVerifySurcharge(t *testing.T) {
	if !verifySurcharge("Fuel surcharge due to price hike") {
		t.Error("fuel surcharge should verify")
	}
	if !verifySurcharge("steel index adjustment") {
		t.Error("steel index should verify")
	}
	if verifySurcharge("premium packaging upgrade") {
		t.Error("unrecognized claim should not verify")
	}
}
