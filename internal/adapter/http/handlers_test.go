package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/apfabric/apfabric/internal/agent/duplicate"
	"github.com/apfabric/apfabric/internal/agent/glcode"
	"github.com/apfabric/apfabric/internal/agent/intake"
	"github.com/apfabric/apfabric/internal/agent/matching"
	"github.com/apfabric/apfabric/internal/agent/trust"
	"github.com/apfabric/apfabric/internal/agent/variance"
	"github.com/apfabric/apfabric/internal/config"
	"github.com/apfabric/apfabric/internal/domain/invoice"
	"github.com/apfabric/apfabric/internal/domain/runlog"
	"github.com/apfabric/apfabric/internal/domain/vendor"
	"github.com/apfabric/apfabric/internal/memory"
	"github.com/apfabric/apfabric/internal/port/ledger/ledgertest"
	"github.com/apfabric/apfabric/internal/port/reasoner"
	"github.com/apfabric/apfabric/internal/service"
)

type fakeExtractor struct {
	ext *reasoner.Extraction
	err error
}

func (f *fakeExtractor) ExtractInvoice(context.Context, string) (*reasoner.Extraction, error) {
	return f.ext, f.err
}

func newTestRouter(t *testing.T, fake *ledgertest.Fake, extractor reasoner.Extractor) http.Handler {
	t.Helper()
	cfg := config.Defaults()
	mem, err := memory.New()
	if err != nil {
		t.Fatal(err)
	}
	log := slog.Default()

	clf := glcode.NewClassifier(cfg.GL)
	intakeAgent := intake.New(cfg.Intake, mem, fake)
	orch := service.NewOrchestrator(
		cfg.Pipeline, fake, mem,
		intakeAgent,
		matching.New(cfg.Matching, fake),
		glcode.New(cfg.GL, mem, clf, nil, log),
		duplicate.New(cfg.Duplicate, fake),
		trust.New(cfg.Trust, fake),
		variance.New(cfg.Variance, fake),
		nil, nil, log,
	)
	trainer := service.NewTrainer(fake, clf, log)
	reporting := service.NewReporting(fake, trainer, cfg.Pipeline.HistoryLimit)

	h := NewHandlers(orch, intakeAgent, trainer, reporting, fake, extractor, log)
	return NewRouter(h, cfg.Server, "apfabric-test")
}

func doRequest(t *testing.T, router http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var reader *strings.Reader
	if body == "" {
		reader = strings.NewReader("")
	} else {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestProcessInvoiceSanitizesInput(t *testing.T) {
	fake := ledgertest.New()
	router := newTestRouter(t, fake, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/invoices/process", `{
		"id": "INV-W1",
		"vendor_id": "V001",
		"vendor_name": "Acme",
		"amount": "45,000",
		"description": "Steel coils",
		"po_number": "NULL"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var plog runlog.ProcessingLog
	if err := json.Unmarshal(rec.Body.Bytes(), &plog); err != nil {
		t.Fatal(err)
	}
	if plog.FinalStatus != invoice.StatusProcessed {
		t.Errorf("final status = %s (error %q)", plog.FinalStatus, plog.Error)
	}

	saved, err := fake.GetInvoice(context.Background(), "INV-W1")
	if err != nil {
		t.Fatal(err)
	}
	if saved.Amount == nil || *saved.Amount != 45000 {
		t.Errorf("amount = %v, want 45000 parsed from formatted string", saved.Amount)
	}
	if saved.PONumber != nil {
		t.Errorf("po = %v, want placeholder normalized to nil", *saved.PONumber)
	}
}

func TestProcessInvoiceRequiresVendor(t *testing.T) {
	router := newTestRouter(t, ledgertest.New(), nil)

	rec := doRequest(t, router, http.MethodPost, "/api/invoices/process", `{"description": "x"}`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProcessInvoiceRejectsMalformedBody(t *testing.T) {
	router := newTestRouter(t, ledgertest.New(), nil)

	rec := doRequest(t, router, http.MethodPost, "/api/invoices/process", `{not json`)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestProcessBatch(t *testing.T) {
	fake := ledgertest.New()
	router := newTestRouter(t, fake, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/invoices/batch", `[
		{"id": "INV-B1", "vendor_id": "V001", "vendor_name": "Acme", "amount": 100, "description": "Steel coils"},
		{"id": "INV-B2", "vendor_id": "V002", "vendor_name": "Beta", "amount": 200, "description": "Printer toner"}
	]`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var logs []runlog.ProcessingLog
	if err := json.Unmarshal(rec.Body.Bytes(), &logs); err != nil {
		t.Fatal(err)
	}
	if len(logs) != 2 || logs[0].InvoiceID != "INV-B1" || logs[1].InvoiceID != "INV-B2" {
		t.Errorf("logs = %+v", logs)
	}
}

func TestIntakeInvoice(t *testing.T) {
	router := newTestRouter(t, ledgertest.New(), nil)

	rec := doRequest(t, router, http.MethodPost, "/api/invoices/intake", `{
		"vendor_id": "V001",
		"vendor_name": "Metro Travels",
		"amount": 12000,
		"description": "Flight and hotel booking for conference travel"
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var res intake.Result
	if err := json.Unmarshal(rec.Body.Bytes(), &res); err != nil {
		t.Fatal(err)
	}
	if res.InvoiceType != intake.TypeTravel {
		t.Errorf("invoice type = %s, want travel", res.InvoiceType)
	}
}

func TestExtractEndpoint(t *testing.T) {
	amount := 990.0
	router := newTestRouter(t, ledgertest.New(), &fakeExtractor{
		ext: &reasoner.Extraction{VendorName: "ACME", Amount: &amount, Description: "Parts"},
	})

	rec := doRequest(t, router, http.MethodPost, "/api/extract", `{"raw_text": "scanned invoice text"}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	var ext reasoner.Extraction
	if err := json.Unmarshal(rec.Body.Bytes(), &ext); err != nil {
		t.Fatal(err)
	}
	if ext.VendorName != "ACME" || ext.Amount == nil || *ext.Amount != 990 {
		t.Errorf("extraction = %+v", ext)
	}
}

func TestExtractWithoutExtractor(t *testing.T) {
	router := newTestRouter(t, ledgertest.New(), nil)

	rec := doRequest(t, router, http.MethodPost, "/api/extract", `{"raw_text": "x"}`)
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestTrainEndpoint(t *testing.T) {
	router := newTestRouter(t, ledgertest.New(), nil)

	rec := doRequest(t, router, http.MethodPost, "/api/train", "")
	if rec.Code != http.StatusAccepted {
		t.Fatalf("status = %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), "training_started") {
		t.Errorf("body = %s", rec.Body)
	}
}

func TestHistoryAndKPIs(t *testing.T) {
	fake := ledgertest.New()
	fake.Invoices = []invoice.Invoice{
		{ID: "INV-1", VendorID: "V001", VendorName: "Acme", Status: invoice.StatusProcessed, GLCode: "GL5100500"},
	}
	router := newTestRouter(t, fake, nil)

	rec := doRequest(t, router, http.MethodGet, "/api/history", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("history status = %d", rec.Code)
	}
	var rows []service.HistoryRow
	if err := json.Unmarshal(rec.Body.Bytes(), &rows); err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].InvoiceID != "INV-1" || !rows[0].STP {
		t.Errorf("rows = %+v", rows)
	}

	rec = doRequest(t, router, http.MethodGet, "/api/kpis", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("kpis status = %d", rec.Code)
	}
	var kpis service.KPIs
	if err := json.Unmarshal(rec.Body.Bytes(), &kpis); err != nil {
		t.Fatal(err)
	}
	if kpis.TotalInvoices != 1 || kpis.STPRate != 100 {
		t.Errorf("kpis = %+v", kpis)
	}
}

func TestFeedback(t *testing.T) {
	fake := ledgertest.New()
	fake.Vendors["V001"] = vendor.Vendor{ID: "V001", Name: "Acme", HistoricalPayments: 5, SuccessfulPayments: 5}
	router := newTestRouter(t, fake, nil)

	rec := doRequest(t, router, http.MethodPost, "/api/feedback", `{
		"invoice_id": "INV-1",
		"vendor_id": "V001",
		"correct_gl_code": "GL5100800",
		"payment_success": true
	}`)
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, body %s", rec.Code, rec.Body)
	}

	if len(fake.Audit) != 1 || fake.Audit[0].Agent != "human_reviewer" {
		t.Errorf("audit = %+v", fake.Audit)
	}
	v := fake.Vendors["V001"]
	if v.HistoricalPayments != 6 || v.SuccessfulPayments != 6 {
		t.Errorf("vendor counters = %+v", v)
	}
}

func TestFeedbackUnknownVendor(t *testing.T) {
	router := newTestRouter(t, ledgertest.New(), nil)

	rec := doRequest(t, router, http.MethodPost, "/api/feedback", `{
		"invoice_id": "INV-1",
		"vendor_id": "V-MISSING",
		"payment_success": false
	}`)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("status = %d", rec.Code)
	}
}

func TestHealth(t *testing.T) {
	router := newTestRouter(t, ledgertest.New(), nil)

	rec := doRequest(t, router, http.MethodGet, "/healthz", "")
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
}
