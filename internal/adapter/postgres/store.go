package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/apfabric/apfabric/internal/domain"
	"github.com/apfabric/apfabric/internal/domain/invoice"
	"github.com/apfabric/apfabric/internal/domain/proof"
	"github.com/apfabric/apfabric/internal/domain/purchase"
	"github.com/apfabric/apfabric/internal/domain/vendor"
	"github.com/apfabric/apfabric/internal/port/ledger"
)

// Store implements ledger.Ledger using PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore creates a new Store backed by the given connection pool.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

var _ ledger.Ledger = (*Store)(nil)

// --- Vendors ---

func (s *Store) GetVendor(ctx context.Context, id string) (*vendor.Vendor, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, name, trust_score, historical_payments, successful_payments
		 FROM vendors WHERE id = $1`, id)

	var v vendor.Vendor
	err := row.Scan(&v.ID, &v.Name, &v.TrustScore, &v.HistoricalPayments, &v.SuccessfulPayments)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get vendor %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get vendor %s: %w", id, err)
	}
	return &v, nil
}

func (s *Store) RecordPaymentOutcome(ctx context.Context, vendorID string, success bool) error {
	successInc := 0
	if success {
		successInc = 1
	}
	tag, err := s.pool.Exec(ctx,
		`UPDATE vendors
		 SET historical_payments = historical_payments + 1,
		     successful_payments = successful_payments + $2
		 WHERE id = $1`, vendorID, successInc)
	if err != nil {
		return fmt.Errorf("record payment outcome %s: %w", vendorID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("record payment outcome %s: %w", vendorID, domain.ErrNotFound)
	}
	return nil
}

// --- Purchase orders ---

func (s *Store) GetPurchaseOrder(ctx context.Context, id string) (*purchase.Order, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT id, vendor_id, total_amount, status FROM purchase_orders WHERE id = $1`, id)

	var po purchase.Order
	err := row.Scan(&po.ID, &po.VendorID, &po.TotalAmount, &po.Status)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get purchase order %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get purchase order %s: %w", id, err)
	}
	return &po, nil
}

func (s *Store) ListOpenPurchaseOrders(ctx context.Context) ([]purchase.Order, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, vendor_id, total_amount, status FROM purchase_orders WHERE status = 'open' ORDER BY id`)
	if err != nil {
		return nil, fmt.Errorf("list open purchase orders: %w", err)
	}
	defer rows.Close()

	var orders []purchase.Order
	for rows.Next() {
		var po purchase.Order
		if err := rows.Scan(&po.ID, &po.VendorID, &po.TotalAmount, &po.Status); err != nil {
			return nil, fmt.Errorf("scan purchase order: %w", err)
		}
		orders = append(orders, po)
	}
	return orders, rows.Err()
}

func (s *Store) ListPurchaseOrderItems(ctx context.Context, poID string) ([]purchase.Item, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, po_id, description, quantity, rate, COALESCE(uom, '')
		 FROM po_items WHERE po_id = $1 ORDER BY id`, poID)
	if err != nil {
		return nil, fmt.Errorf("list po items %s: %w", poID, err)
	}
	defer rows.Close()

	var items []purchase.Item
	for rows.Next() {
		var it purchase.Item
		if err := rows.Scan(&it.ID, &it.POID, &it.Description, &it.Quantity, &it.Rate, &it.UOM); err != nil {
			return nil, fmt.Errorf("scan po item: %w", err)
		}
		items = append(items, it)
	}
	return items, rows.Err()
}

// --- Invoices ---

const invoiceColumns = `id, vendor_id, vendor_name, po_number, ses_number, amount,
	description, date_received, status, gl_code, is_duplicate`

func scanInvoice(row pgx.Row) (invoice.Invoice, error) {
	var inv invoice.Invoice
	var glCode *string
	err := row.Scan(&inv.ID, &inv.VendorID, &inv.VendorName, &inv.PONumber, &inv.SESNumber,
		&inv.Amount, &inv.Description, &inv.DateReceived, &inv.Status, &glCode, &inv.IsDuplicate)
	if err != nil {
		return invoice.Invoice{}, err
	}
	if glCode != nil {
		inv.GLCode = *glCode
	}
	return inv, nil
}

func (s *Store) GetInvoice(ctx context.Context, id string) (*invoice.Invoice, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT `+invoiceColumns+` FROM invoices WHERE id = $1`, id)

	inv, err := scanInvoice(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("get invoice %s: %w", id, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("get invoice %s: %w", id, err)
	}

	items, err := s.listLineItems(ctx, id)
	if err != nil {
		return nil, err
	}
	inv.LineItems = items
	return &inv, nil
}

func (s *Store) listLineItems(ctx context.Context, invoiceID string) ([]invoice.LineItem, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT description, quantity, rate, COALESCE(uom, '')
		 FROM invoice_line_items WHERE invoice_id = $1 ORDER BY id`, invoiceID)
	if err != nil {
		return nil, fmt.Errorf("list line items %s: %w", invoiceID, err)
	}
	defer rows.Close()

	var items []invoice.LineItem
	for rows.Next() {
		var li invoice.LineItem
		if err := rows.Scan(&li.Description, &li.Quantity, &li.Rate, &li.UOM); err != nil {
			return nil, fmt.Errorf("scan line item: %w", err)
		}
		items = append(items, li)
	}
	return items, rows.Err()
}

func (s *Store) queryInvoices(ctx context.Context, label, query string, args ...any) ([]invoice.Invoice, error) {
	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", label, err)
	}
	defer rows.Close()

	var invoices []invoice.Invoice
	for rows.Next() {
		inv, err := scanInvoice(rows)
		if err != nil {
			return nil, fmt.Errorf("%s: scan: %w", label, err)
		}
		invoices = append(invoices, inv)
	}
	return invoices, rows.Err()
}

func (s *Store) ListInvoices(ctx context.Context) ([]invoice.Invoice, error) {
	return s.queryInvoices(ctx, "list invoices",
		`SELECT `+invoiceColumns+` FROM invoices ORDER BY date_received`)
}

func (s *Store) ListRecentInvoices(ctx context.Context, limit int) ([]invoice.Invoice, error) {
	return s.queryInvoices(ctx, "list recent invoices",
		`SELECT `+invoiceColumns+` FROM invoices ORDER BY date_received DESC LIMIT $1`, limit)
}

func (s *Store) ListCodedInvoices(ctx context.Context) ([]invoice.Invoice, error) {
	return s.queryInvoices(ctx, "list coded invoices",
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE status = 'approved' AND gl_code IS NOT NULL AND gl_code <> ''`)
}

func (s *Store) ListVendorPOInvoices(ctx context.Context, vendorID string) ([]invoice.Invoice, error) {
	return s.queryInvoices(ctx, "list vendor po invoices",
		`SELECT `+invoiceColumns+` FROM invoices
		 WHERE vendor_id = $1 AND po_number IS NOT NULL AND status = 'approved'`, vendorID)
}

func (s *Store) SaveInvoice(ctx context.Context, inv *invoice.Invoice) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("save invoice %s: begin: %w", inv.ID, err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	_, err = tx.Exec(ctx,
		`INSERT INTO invoices (id, vendor_id, vendor_name, po_number, ses_number, amount,
		                       description, date_received, status, gl_code, is_duplicate)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
		 ON CONFLICT (id) DO UPDATE SET
		   vendor_id = EXCLUDED.vendor_id,
		   vendor_name = EXCLUDED.vendor_name,
		   po_number = EXCLUDED.po_number,
		   ses_number = EXCLUDED.ses_number,
		   amount = EXCLUDED.amount,
		   description = EXCLUDED.description,
		   status = EXCLUDED.status,
		   gl_code = EXCLUDED.gl_code,
		   is_duplicate = EXCLUDED.is_duplicate`,
		inv.ID, inv.VendorID, inv.VendorName, inv.PONumber, inv.SESNumber, inv.Amount,
		inv.Description, inv.DateReceived, inv.Status, nullable(inv.GLCode), inv.IsDuplicate)
	if err != nil {
		return fmt.Errorf("save invoice %s: %w", inv.ID, err)
	}

	if _, err := tx.Exec(ctx,
		`DELETE FROM invoice_line_items WHERE invoice_id = $1`, inv.ID); err != nil {
		return fmt.Errorf("save invoice %s: clear line items: %w", inv.ID, err)
	}
	for _, li := range inv.LineItems {
		if _, err := tx.Exec(ctx,
			`INSERT INTO invoice_line_items (invoice_id, description, quantity, rate, uom)
			 VALUES ($1, $2, $3, $4, NULLIF($5, ''))`,
			inv.ID, li.Description, li.Quantity, li.Rate, li.UOM); err != nil {
			return fmt.Errorf("save invoice %s: line item: %w", inv.ID, err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("save invoice %s: commit: %w", inv.ID, err)
	}
	return nil
}

func (s *Store) InvoiceStats(ctx context.Context) (*ledger.Stats, error) {
	row := s.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'processed'),
		        COUNT(*) FILTER (WHERE is_duplicate OR status = 'duplicate_blocked')
		 FROM invoices`)

	var st ledger.Stats
	if err := row.Scan(&st.Total, &st.Processed, &st.Duplicates); err != nil {
		return nil, fmt.Errorf("invoice stats: %w", err)
	}
	return &st, nil
}

// --- Operational proofs ---

func (s *Store) ListOperationalProofs(ctx context.Context) ([]proof.OperationalProof, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, source, content, date FROM operational_proofs ORDER BY date DESC`)
	if err != nil {
		return nil, fmt.Errorf("list operational proofs: %w", err)
	}
	defer rows.Close()

	var proofs []proof.OperationalProof
	for rows.Next() {
		var p proof.OperationalProof
		if err := rows.Scan(&p.ID, &p.Source, &p.Content, &p.Date); err != nil {
			return nil, fmt.Errorf("scan operational proof: %w", err)
		}
		proofs = append(proofs, p)
	}
	return proofs, rows.Err()
}

// --- Audit log ---

func (s *Store) AppendAuditLog(ctx context.Context, entry ledger.AuditEntry) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO audit_logs (invoice_id, action, agent, details, timestamp)
		 VALUES ($1, $2, $3, $4, $5)`,
		entry.InvoiceID, entry.Action, entry.Agent, entry.Details, entry.Timestamp)
	if err != nil {
		return fmt.Errorf("append audit log %s: %w", entry.InvoiceID, err)
	}
	return nil
}

// nullable maps "" to NULL so empty GL codes don't count as coded rows.
func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
