package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/apfabric/apfabric/internal/agent/intake"
	"github.com/apfabric/apfabric/internal/domain/invoice"
	"github.com/apfabric/apfabric/internal/port/ledger"
	"github.com/apfabric/apfabric/internal/port/reasoner"
	"github.com/apfabric/apfabric/internal/service"
)

// Handlers holds the dependencies for all API endpoints.
type Handlers struct {
	orch      *service.Orchestrator
	intake    *intake.Agent
	trainer   *service.Trainer
	reporting *service.Reporting
	ledger    ledger.Ledger
	extractor reasoner.Extractor
	log       *slog.Logger
}

// NewHandlers creates the handler set. The extractor may be nil, in which
// case /api/extract responds 503.
func NewHandlers(
	orch *service.Orchestrator,
	intakeAgent *intake.Agent,
	trainer *service.Trainer,
	reporting *service.Reporting,
	l ledger.Ledger,
	extractor reasoner.Extractor,
	log *slog.Logger,
) *Handlers {
	return &Handlers{
		orch:      orch,
		intake:    intakeAgent,
		trainer:   trainer,
		reporting: reporting,
		ledger:    l,
		extractor: extractor,
		log:       log,
	}
}

// invoiceRequest is the wire form of an invoice. Amounts arrive as numbers
// or formatted strings; PO references arrive as anything upstream systems
// render for "missing".
type invoiceRequest struct {
	ID           string             `json:"id"`
	VendorID     string             `json:"vendor_id"`
	VendorName   string             `json:"vendor_name"`
	Amount       json.RawMessage    `json:"amount"`
	Description  string             `json:"description"`
	PONumber     string             `json:"po_number"`
	SESNumber    string             `json:"ses_number"`
	LineItems    []invoice.LineItem `json:"line_items"`
	DateReceived *time.Time         `json:"date_received"`
}

// toInvoice sanitizes the wire form into a domain invoice.
func (req *invoiceRequest) toInvoice() *invoice.Invoice {
	inv := &invoice.Invoice{
		ID:          strings.TrimSpace(req.ID),
		VendorID:    strings.TrimSpace(req.VendorID),
		VendorName:  strings.TrimSpace(req.VendorName),
		Description: strings.TrimSpace(req.Description),
		Amount:      parseAmountField(req.Amount),
		PONumber:    invoice.NormalizePO(req.PONumber),
		LineItems:   req.LineItems,
	}
	if ses := strings.TrimSpace(req.SESNumber); ses != "" {
		inv.SESNumber = &ses
	}
	if req.DateReceived != nil {
		inv.DateReceived = *req.DateReceived
	}
	return inv
}

// parseAmountField accepts a JSON number or a formatted string; anything
// unparsable maps to nil, which the pipeline treats as "missing".
func parseAmountField(raw json.RawMessage) *float64 {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var f float64
	if err := json.Unmarshal(raw, &f); err == nil {
		return &f
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil
	}
	return invoice.ParseAmount(s)
}

// ProcessInvoice runs the full decision pipeline for one invoice.
func (h *Handlers) ProcessInvoice(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[invoiceRequest](w, r)
	if !ok {
		return
	}
	if req.VendorID == "" {
		writeError(w, http.StatusBadRequest, "vendor_id is required")
		return
	}

	plog := h.orch.Process(r.Context(), req.toInvoice())
	writeJSON(w, http.StatusOK, plog)
}

// ProcessBatch runs the pipeline over a batch of invoices concurrently.
func (h *Handlers) ProcessBatch(w http.ResponseWriter, r *http.Request) {
	reqs, ok := readJSON[[]invoiceRequest](w, r)
	if !ok {
		return
	}
	if len(reqs) == 0 {
		writeError(w, http.StatusBadRequest, "empty batch")
		return
	}

	invs := make([]*invoice.Invoice, len(reqs))
	for i := range reqs {
		if reqs[i].VendorID == "" {
			writeError(w, http.StatusBadRequest, "vendor_id is required for every invoice")
			return
		}
		invs[i] = reqs[i].toInvoice()
	}

	logs := h.orch.ProcessBatch(r.Context(), invs)
	writeJSON(w, http.StatusOK, logs)
}

// IntakeInvoice runs only the intake analysis: type classification,
// PO recovery and review flags, without a decision.
func (h *Handlers) IntakeInvoice(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[invoiceRequest](w, r)
	if !ok {
		return
	}

	res, err := h.intake.Process(r.Context(), req.toInvoice())
	if err != nil {
		writeDomainError(w, err, "intake failed")
		return
	}
	writeJSON(w, http.StatusOK, res)
}

type extractRequest struct {
	RawText string `json:"raw_text"`
}

// ExtractInvoice parses structured invoice fields out of raw document text.
func (h *Handlers) ExtractInvoice(w http.ResponseWriter, r *http.Request) {
	if h.extractor == nil {
		writeError(w, http.StatusServiceUnavailable, "extraction service not configured")
		return
	}
	req, ok := readJSON[extractRequest](w, r)
	if !ok {
		return
	}
	if strings.TrimSpace(req.RawText) == "" {
		writeError(w, http.StatusBadRequest, "raw_text is required")
		return
	}

	ext, err := h.extractor.ExtractInvoice(r.Context(), req.RawText)
	if err != nil {
		writeDomainError(w, err, "extraction failed")
		return
	}
	writeJSON(w, http.StatusOK, ext)
}

// Train kicks off classifier retraining in the background. Training must
// outlive the request, so the request context is detached.
func (h *Handlers) Train(w http.ResponseWriter, r *http.Request) {
	h.trainer.TrainAsync(context.WithoutCancel(r.Context()))
	writeJSON(w, http.StatusAccepted, map[string]string{"status": "training_started"})
}

// History returns recent processing outcomes, newest first.
func (h *Handlers) History(w http.ResponseWriter, r *http.Request) {
	rows, err := h.reporting.History(r.Context())
	if err != nil {
		writeDomainError(w, err, "history unavailable")
		return
	}
	writeJSON(w, http.StatusOK, rows)
}

// KPIs returns pipeline health indicators.
func (h *Handlers) KPIs(w http.ResponseWriter, r *http.Request) {
	kpis, err := h.reporting.KPIs(r.Context())
	if err != nil {
		writeDomainError(w, err, "kpis unavailable")
		return
	}
	writeJSON(w, http.StatusOK, kpis)
}

type feedbackRequest struct {
	InvoiceID      string `json:"invoice_id"`
	VendorID       string `json:"vendor_id"`
	CorrectGLCode  string `json:"correct_gl_code"`
	PaymentSuccess *bool  `json:"payment_success"`
}

// Feedback records a reviewer correction: the corrected GL code goes to the
// audit trail and the payment outcome updates the vendor's trust counters.
func (h *Handlers) Feedback(w http.ResponseWriter, r *http.Request) {
	req, ok := readJSON[feedbackRequest](w, r)
	if !ok {
		return
	}
	if req.InvoiceID == "" || req.VendorID == "" {
		writeError(w, http.StatusBadRequest, "invoice_id and vendor_id are required")
		return
	}

	details, _ := json.Marshal(map[string]any{
		"correct_gl_code": req.CorrectGLCode,
		"payment_success": req.PaymentSuccess,
	})
	entry := ledger.AuditEntry{
		InvoiceID: req.InvoiceID,
		Action:    "feedback",
		Agent:     "human_reviewer",
		Details:   string(details),
		Timestamp: time.Now().UTC(),
	}
	if err := h.ledger.AppendAuditLog(r.Context(), entry); err != nil {
		writeDomainError(w, err, "record feedback failed")
		return
	}

	if req.PaymentSuccess != nil {
		if err := h.ledger.RecordPaymentOutcome(r.Context(), req.VendorID, *req.PaymentSuccess); err != nil {
			writeDomainError(w, err, "vendor not found")
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "recorded"})
}

// Health reports service liveness.
func (h *Handlers) Health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
