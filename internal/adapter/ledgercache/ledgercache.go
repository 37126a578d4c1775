// Package ledgercache decorates a ledger with a read-through cache for the
// reference data every pipeline stage touches: vendors, purchase orders, PO
// lines and operational proofs. Invoice reads stay uncached because each
// processed invoice changes them.
package ledgercache

import (
	"context"
	"encoding/json"
	"time"

	"github.com/apfabric/apfabric/internal/domain/proof"
	"github.com/apfabric/apfabric/internal/domain/purchase"
	"github.com/apfabric/apfabric/internal/domain/vendor"
	"github.com/apfabric/apfabric/internal/port/cache"
	"github.com/apfabric/apfabric/internal/port/ledger"
)

const proofsKey = "proofs:all"

// Ledger wraps an underlying ledger with cached reference reads. Uncached
// methods are delegated to the embedded ledger.
type Ledger struct {
	ledger.Ledger

	cache cache.Cache
	ttl   time.Duration
}

// New wraps the given ledger.
func New(l ledger.Ledger, c cache.Cache, ttl time.Duration) *Ledger {
	return &Ledger{Ledger: l, cache: c, ttl: ttl}
}

func (l *Ledger) GetVendor(ctx context.Context, id string) (*vendor.Vendor, error) {
	key := "vendor:" + id
	if data, ok, err := l.cache.Get(ctx, key); err == nil && ok {
		var v vendor.Vendor
		if json.Unmarshal(data, &v) == nil {
			return &v, nil
		}
	}

	v, err := l.Ledger.GetVendor(ctx, id)
	if err != nil {
		return nil, err
	}
	l.store(ctx, key, v)
	return v, nil
}

// RecordPaymentOutcome mutates the vendor's trust counters, so the cached
// copy is dropped before delegating.
func (l *Ledger) RecordPaymentOutcome(ctx context.Context, vendorID string, success bool) error {
	_ = l.cache.Delete(ctx, "vendor:"+vendorID)
	return l.Ledger.RecordPaymentOutcome(ctx, vendorID, success)
}

func (l *Ledger) GetPurchaseOrder(ctx context.Context, id string) (*purchase.Order, error) {
	key := "po:" + id
	if data, ok, err := l.cache.Get(ctx, key); err == nil && ok {
		var po purchase.Order
		if json.Unmarshal(data, &po) == nil {
			return &po, nil
		}
	}

	po, err := l.Ledger.GetPurchaseOrder(ctx, id)
	if err != nil {
		return nil, err
	}
	l.store(ctx, key, po)
	return po, nil
}

func (l *Ledger) ListPurchaseOrderItems(ctx context.Context, poID string) ([]purchase.Item, error) {
	key := "po_items:" + poID
	if data, ok, err := l.cache.Get(ctx, key); err == nil && ok {
		var items []purchase.Item
		if json.Unmarshal(data, &items) == nil {
			return items, nil
		}
	}

	items, err := l.Ledger.ListPurchaseOrderItems(ctx, poID)
	if err != nil {
		return nil, err
	}
	l.store(ctx, key, items)
	return items, nil
}

func (l *Ledger) ListOperationalProofs(ctx context.Context) ([]proof.OperationalProof, error) {
	if data, ok, err := l.cache.Get(ctx, proofsKey); err == nil && ok {
		var proofs []proof.OperationalProof
		if json.Unmarshal(data, &proofs) == nil {
			return proofs, nil
		}
	}

	proofs, err := l.Ledger.ListOperationalProofs(ctx)
	if err != nil {
		return nil, err
	}
	l.store(ctx, proofsKey, proofs)
	return proofs, nil
}

// store caches a value best-effort. A failed write only costs a re-read.
func (l *Ledger) store(ctx context.Context, key string, v any) {
	data, err := json.Marshal(v)
	if err != nil {
		return
	}
	_ = l.cache.Set(ctx, key, data, l.ttl)
}
