// Package ledgertest provides an in-memory Ledger implementation for tests.
package ledgertest

import (
	"context"
	"errors"
	"sync"

	"github.com/apfabric/apfabric/internal/domain"
	"github.com/apfabric/apfabric/internal/domain/invoice"
	"github.com/apfabric/apfabric/internal/domain/proof"
	"github.com/apfabric/apfabric/internal/domain/purchase"
	"github.com/apfabric/apfabric/internal/domain/vendor"
	"github.com/apfabric/apfabric/internal/port/ledger"
)

// Fake is an in-memory ledger. Populate the exported fields directly; set
// Err to force every method to fail with it, or FailOn to fail only the
// named method.
type Fake struct {
	mu sync.Mutex

	Vendors  map[string]vendor.Vendor
	Orders   map[string]purchase.Order
	Items    map[string][]purchase.Item
	Invoices []invoice.Invoice
	Proofs   []proof.OperationalProof
	Audit    []ledger.AuditEntry

	Err    error
	FailOn string
}

// New returns an empty fake.
func New() *Fake {
	return &Fake{
		Vendors: map[string]vendor.Vendor{},
		Orders:  map[string]purchase.Order{},
		Items:   map[string][]purchase.Item{},
	}
}

var _ ledger.Ledger = (*Fake)(nil)

func (f *Fake) fail(method string) error {
	if f.Err != nil {
		return f.Err
	}
	if f.FailOn == method {
		return errors.New(method + " failed")
	}
	return nil
}

func (f *Fake) GetVendor(_ context.Context, id string) (*vendor.Vendor, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("GetVendor"); err != nil {
		return nil, err
	}
	v, ok := f.Vendors[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &v, nil
}

func (f *Fake) RecordPaymentOutcome(_ context.Context, vendorID string, success bool) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("RecordPaymentOutcome"); err != nil {
		return err
	}
	v, ok := f.Vendors[vendorID]
	if !ok {
		return domain.ErrNotFound
	}
	v.HistoricalPayments++
	if success {
		v.SuccessfulPayments++
	}
	f.Vendors[vendorID] = v
	return nil
}

func (f *Fake) GetPurchaseOrder(_ context.Context, id string) (*purchase.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("GetPurchaseOrder"); err != nil {
		return nil, err
	}
	po, ok := f.Orders[id]
	if !ok {
		return nil, domain.ErrNotFound
	}
	return &po, nil
}

func (f *Fake) ListOpenPurchaseOrders(_ context.Context) ([]purchase.Order, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ListOpenPurchaseOrders"); err != nil {
		return nil, err
	}
	var out []purchase.Order
	for _, po := range f.Orders {
		if po.Status == purchase.StatusOpen {
			out = append(out, po)
		}
	}
	return out, nil
}

func (f *Fake) ListPurchaseOrderItems(_ context.Context, poID string) ([]purchase.Item, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ListPurchaseOrderItems"); err != nil {
		return nil, err
	}
	return f.Items[poID], nil
}

func (f *Fake) GetInvoice(_ context.Context, id string) (*invoice.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("GetInvoice"); err != nil {
		return nil, err
	}
	for i := range f.Invoices {
		if f.Invoices[i].ID == id {
			inv := f.Invoices[i]
			return &inv, nil
		}
	}
	return nil, domain.ErrNotFound
}

func (f *Fake) ListInvoices(_ context.Context) ([]invoice.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ListInvoices"); err != nil {
		return nil, err
	}
	out := make([]invoice.Invoice, len(f.Invoices))
	copy(out, f.Invoices)
	return out, nil
}

func (f *Fake) ListRecentInvoices(_ context.Context, limit int) ([]invoice.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ListRecentInvoices"); err != nil {
		return nil, err
	}
	var out []invoice.Invoice
	for i := len(f.Invoices) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, f.Invoices[i])
	}
	return out, nil
}

func (f *Fake) ListCodedInvoices(_ context.Context) ([]invoice.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ListCodedInvoices"); err != nil {
		return nil, err
	}
	var out []invoice.Invoice
	for _, inv := range f.Invoices {
		if inv.Status == invoice.StatusApproved && inv.GLCode != "" {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *Fake) ListVendorPOInvoices(_ context.Context, vendorID string) ([]invoice.Invoice, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ListVendorPOInvoices"); err != nil {
		return nil, err
	}
	var out []invoice.Invoice
	for _, inv := range f.Invoices {
		if inv.VendorID == vendorID && inv.PONumber != nil && inv.Status == invoice.StatusApproved {
			out = append(out, inv)
		}
	}
	return out, nil
}

func (f *Fake) SaveInvoice(_ context.Context, inv *invoice.Invoice) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("SaveInvoice"); err != nil {
		return err
	}
	for i := range f.Invoices {
		if f.Invoices[i].ID == inv.ID {
			f.Invoices[i] = *inv
			return nil
		}
	}
	f.Invoices = append(f.Invoices, *inv)
	return nil
}

func (f *Fake) InvoiceStats(_ context.Context) (*ledger.Stats, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("InvoiceStats"); err != nil {
		return nil, err
	}
	s := &ledger.Stats{Total: len(f.Invoices)}
	for _, inv := range f.Invoices {
		if inv.Status == invoice.StatusProcessed {
			s.Processed++
		}
		if inv.IsDuplicate || inv.Status == invoice.StatusDuplicateBlocked {
			s.Duplicates++
		}
	}
	return s, nil
}

func (f *Fake) ListOperationalProofs(_ context.Context) ([]proof.OperationalProof, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("ListOperationalProofs"); err != nil {
		return nil, err
	}
	out := make([]proof.OperationalProof, len(f.Proofs))
	copy(out, f.Proofs)
	return out, nil
}

func (f *Fake) AppendAuditLog(_ context.Context, entry ledger.AuditEntry) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.fail("AppendAuditLog"); err != nil {
		return err
	}
	f.Audit = append(f.Audit, entry)
	return nil
}
