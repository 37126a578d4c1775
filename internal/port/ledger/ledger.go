// Package ledger defines the persistent ledger port: vendors, purchase
// orders, invoices, operational proofs and audit logs. The pipeline reads
// these views for its statistical decisions and writes invoice outcomes and
// audit entries; schema and connection lifecycle belong to the adapter.
package ledger

import (
	"context"
	"time"

	"github.com/apfabric/apfabric/internal/domain/invoice"
	"github.com/apfabric/apfabric/internal/domain/proof"
	"github.com/apfabric/apfabric/internal/domain/purchase"
	"github.com/apfabric/apfabric/internal/domain/vendor"
)

// AuditEntry is one append-only audit log row for a pipeline stage.
type AuditEntry struct {
	InvoiceID string    `json:"invoice_id"`
	Action    string    `json:"action"`
	Agent     string    `json:"agent"`
	Details   string    `json:"details"`
	Timestamp time.Time `json:"timestamp"`
}

// Stats aggregates invoice counts for KPI reporting.
type Stats struct {
	Total      int `json:"total"`
	Processed  int `json:"processed"`
	Duplicates int `json:"duplicates"`
}

// Ledger is the port interface for persistent AP records.
type Ledger interface {
	// Vendors
	GetVendor(ctx context.Context, id string) (*vendor.Vendor, error)
	// RecordPaymentOutcome bumps the vendor's historical counter, and the
	// successful counter when success is true. Serialized per vendor.
	RecordPaymentOutcome(ctx context.Context, vendorID string, success bool) error

	// Purchase orders
	GetPurchaseOrder(ctx context.Context, id string) (*purchase.Order, error)
	ListOpenPurchaseOrders(ctx context.Context) ([]purchase.Order, error)
	ListPurchaseOrderItems(ctx context.Context, poID string) ([]purchase.Item, error)

	// Invoices
	GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error)
	ListInvoices(ctx context.Context) ([]invoice.Invoice, error)
	ListRecentInvoices(ctx context.Context, limit int) ([]invoice.Invoice, error)
	// ListCodedInvoices returns approved invoices carrying a GL code — the
	// classifier training population.
	ListCodedInvoices(ctx context.Context) ([]invoice.Invoice, error)
	// ListVendorPOInvoices returns the vendor's approved invoices that
	// reference a purchase order — the variance history population.
	ListVendorPOInvoices(ctx context.Context, vendorID string) ([]invoice.Invoice, error)
	SaveInvoice(ctx context.Context, inv *invoice.Invoice) error
	InvoiceStats(ctx context.Context) (*Stats, error)

	// Evidence and audit
	ListOperationalProofs(ctx context.Context) ([]proof.OperationalProof, error)
	AppendAuditLog(ctx context.Context, entry AuditEntry) error
}
