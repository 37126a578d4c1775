package ledgercache_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/apfabric/apfabric/internal/adapter/ledgercache"
	"github.com/apfabric/apfabric/internal/domain/purchase"
	"github.com/apfabric/apfabric/internal/domain/vendor"
	"github.com/apfabric/apfabric/internal/port/ledger/ledgertest"
)

// memCache is a simple in-memory cache for testing.
type memCache struct {
	mu   sync.Mutex
	data map[string][]byte
}

func newMemCache() *memCache {
	return &memCache{data: make(map[string][]byte)}
}

func (m *memCache) Get(_ context.Context, key string) (data []byte, ok bool, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	v, ok := m.data[key]
	return v, ok, nil
}

func (m *memCache) Set(_ context.Context, key string, value []byte, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data[key] = value
	return nil
}

func (m *memCache) Delete(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, key)
	return nil
}

func TestGetVendorReadThrough(t *testing.T) {
	fake := ledgertest.New()
	fake.Vendors["V001"] = vendor.Vendor{ID: "V001", Name: "Acme", HistoricalPayments: 10, SuccessfulPayments: 9}
	mc := newMemCache()
	l := ledgercache.New(fake, mc, time.Minute)
	ctx := context.Background()

	v, err := l.GetVendor(ctx, "V001")
	if err != nil {
		t.Fatal(err)
	}
	if v.Name != "Acme" {
		t.Errorf("vendor = %+v", v)
	}

	// Second read is served from cache: mutate the backing store and check
	// the stale copy comes back.
	fake.Vendors["V001"] = vendor.Vendor{ID: "V001", Name: "Renamed"}
	v, err = l.GetVendor(ctx, "V001")
	if err != nil {
		t.Fatal(err)
	}
	if v.Name != "Acme" {
		t.Errorf("expected cached vendor, got %+v", v)
	}
}

func TestRecordPaymentOutcomeInvalidates(t *testing.T) {
	fake := ledgertest.New()
	fake.Vendors["V001"] = vendor.Vendor{ID: "V001", Name: "Acme", HistoricalPayments: 10, SuccessfulPayments: 9}
	mc := newMemCache()
	l := ledgercache.New(fake, mc, time.Minute)
	ctx := context.Background()

	if _, err := l.GetVendor(ctx, "V001"); err != nil {
		t.Fatal(err)
	}
	if err := l.RecordPaymentOutcome(ctx, "V001", true); err != nil {
		t.Fatal(err)
	}

	v, err := l.GetVendor(ctx, "V001")
	if err != nil {
		t.Fatal(err)
	}
	if v.HistoricalPayments != 11 || v.SuccessfulPayments != 10 {
		t.Errorf("expected fresh counters after invalidation, got %+v", v)
	}
}

func TestGetPurchaseOrderCached(t *testing.T) {
	fake := ledgertest.New()
	fake.Orders["PO-1"] = purchase.Order{ID: "PO-1", VendorID: "V001", TotalAmount: 5000, Status: purchase.StatusOpen}
	mc := newMemCache()
	l := ledgercache.New(fake, mc, time.Minute)
	ctx := context.Background()

	if _, err := l.GetPurchaseOrder(ctx, "PO-1"); err != nil {
		t.Fatal(err)
	}
	delete(fake.Orders, "PO-1")

	po, err := l.GetPurchaseOrder(ctx, "PO-1")
	if err != nil {
		t.Fatalf("expected cached order, got error %v", err)
	}
	if po.TotalAmount != 5000 {
		t.Errorf("order = %+v", po)
	}
}

func TestUncachedMethodsDelegate(t *testing.T) {
	fake := ledgertest.New()
	mc := newMemCache()
	l := ledgercache.New(fake, mc, time.Minute)

	if _, err := l.ListInvoices(context.Background()); err != nil {
		t.Fatal(err)
	}
	if len(mc.data) != 0 {
		t.Errorf("invoice reads must not populate the cache, got keys %v", mc.data)
	}
}
