package mistral

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/apfabric/apfabric/internal/config"
	"github.com/apfabric/apfabric/internal/domain"
	"github.com/apfabric/apfabric/internal/resilience"
)

// chatServer fakes the completions endpoint, returning the given message
// content wrapped in the chat response envelope.
func chatServer(t *testing.T, handler func(r *http.Request) (string, int)) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		content, status := handler(r)
		if status >= 400 {
			w.WriteHeader(status)
			_, _ = w.Write([]byte(`{"error":"boom"}`))
			return
		}
		resp := map[string]any{
			"choices": []map[string]any{
				{"message": map[string]any{"content": content}},
			},
		}
		_ = json.NewEncoder(w).Encode(resp)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func newTestClient(url string) *Client {
	return NewClient(config.Reasoner{
		URL:     url,
		APIKey:  "test-key",
		Model:   "mistral-small-latest",
		Timeout: 5 * time.Second,
	})
}

func TestSuggestGL(t *testing.T) {
	srv := chatServer(t, func(r *http.Request) (string, int) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
			t.Errorf("authorization = %q", got)
		}
		var req map[string]any
		_ = json.NewDecoder(r.Body).Decode(&req)
		if req["model"] != "mistral-small-latest" {
			t.Errorf("model = %v", req["model"])
		}
		return `{"gl_code": "GL5100800", "confidence": 0.82}`, 200
	})

	c := newTestClient(srv.URL)
	sug, err := c.SuggestGL(context.Background(), "Swift Cargo", "Freight charges")
	if err != nil {
		t.Fatal(err)
	}
	if sug.GLCode != "GL5100800" || sug.Confidence != 0.82 {
		t.Errorf("suggestion = %+v", sug)
	}
}

func TestSuggestGLDefaultsOnSparseOutput(t *testing.T) {
	srv := chatServer(t, func(*http.Request) (string, int) {
		return `{}`, 200
	})

	c := newTestClient(srv.URL)
	sug, err := c.SuggestGL(context.Background(), "Acme", "Misc")
	if err != nil {
		t.Fatal(err)
	}
	if sug.GLCode != "GL5100700" || sug.Confidence != 0.6 {
		t.Errorf("suggestion = %+v, want consulting default with 0.6 confidence", sug)
	}
}

func TestSuggestGLAPIErrorIsUnavailable(t *testing.T) {
	srv := chatServer(t, func(*http.Request) (string, int) {
		return "", http.StatusBadGateway
	})

	c := newTestClient(srv.URL)
	_, err := c.SuggestGL(context.Background(), "Acme", "Misc")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}

func TestBreakerOpensAfterFailures(t *testing.T) {
	srv := chatServer(t, func(*http.Request) (string, int) {
		return "", http.StatusInternalServerError
	})

	c := newTestClient(srv.URL)
	b := resilience.NewBreaker(2, time.Minute)
	c.SetBreaker(b)

	for range 2 {
		_, _ = c.SuggestGL(context.Background(), "Acme", "Misc")
	}
	if b.State() != resilience.StateOpen {
		t.Fatalf("breaker state = %v, want open", b.State())
	}
}

func TestExtractInvoiceSingleChunk(t *testing.T) {
	srv := chatServer(t, func(*http.Request) (string, int) {
		return `{
			"vendor_name": "SWIFT CARGO",
			"amount": "1,250.50",
			"po_number": "PO-2024-001",
			"description": "Freight services March",
			"line_items": [
				{"description": "Freight leg 1", "quantity": 1, "rate": 1000.50},
				{"description": "Fuel surcharge", "quantity": "1", "rate": "250.00"}
			]
		}`, 200
	})

	c := newTestClient(srv.URL)
	ext, err := c.ExtractInvoice(context.Background(), "raw ocr text")
	if err != nil {
		t.Fatal(err)
	}
	if ext.VendorName != "SWIFT CARGO" {
		t.Errorf("vendor = %q", ext.VendorName)
	}
	if ext.Amount == nil || *ext.Amount != 1250.50 {
		t.Errorf("amount = %v, want 1250.50 parsed from string with separator", ext.Amount)
	}
	if ext.PONumber == nil || *ext.PONumber != "PO-2024-001" {
		t.Errorf("po = %v", ext.PONumber)
	}
	if len(ext.LineItems) != 2 || ext.LineItems[1].Rate != 250 {
		t.Errorf("line items = %+v", ext.LineItems)
	}
}

func TestExtractInvoiceAmountFromLineItems(t *testing.T) {
	srv := chatServer(t, func(*http.Request) (string, int) {
		return `{
			"vendor_name": "Acme",
			"amount": null,
			"po_number": null,
			"description": "Parts",
			"line_items": [
				{"description": "Bolts", "quantity": 10, "rate": 5},
				{"description": "Nuts", "quantity": 20, "rate": 2.5}
			]
		}`, 200
	})

	c := newTestClient(srv.URL)
	ext, err := c.ExtractInvoice(context.Background(), "raw ocr text")
	if err != nil {
		t.Fatal(err)
	}
	if ext.Amount == nil || *ext.Amount != 100 {
		t.Errorf("amount = %v, want 100 summed from lines", ext.Amount)
	}
}

func TestExtractInvoiceMergesChunks(t *testing.T) {
	var call int
	srv := chatServer(t, func(*http.Request) (string, int) {
		call++
		switch call {
		case 1:
			return `{"vendor_name": "ZENITH SOFT", "amount": 500, "po_number": null, "description": "Subtotal page", "line_items": []}`, 200
		default:
			return `{"vendor_name": "OTHER CORP", "amount": 90000, "po_number": "PO-9", "description": "ignored", "line_items": [{"description": "License", "quantity": 1, "rate": 90000}]}`, 200
		}
	})

	c := newTestClient(srv.URL)
	// Two chunks: text longer than one chunk size.
	ext, err := c.ExtractInvoice(context.Background(), strings.Repeat("x", extractChunkSize+10))
	if err != nil {
		t.Fatal(err)
	}
	// First vendor and description stick, the larger amount wins.
	if ext.VendorName != "ZENITH SOFT" || ext.Description != "Subtotal page" {
		t.Errorf("extraction = %+v", ext)
	}
	if ext.Amount == nil || *ext.Amount != 90000 {
		t.Errorf("amount = %v, want grand total 90000", ext.Amount)
	}
	if ext.PONumber == nil || *ext.PONumber != "PO-9" {
		t.Errorf("po = %v", ext.PONumber)
	}
}

func TestExtractInvoiceAllChunksFail(t *testing.T) {
	srv := chatServer(t, func(*http.Request) (string, int) {
		return "", http.StatusServiceUnavailable
	})

	c := newTestClient(srv.URL)
	_, err := c.ExtractInvoice(context.Background(), "raw ocr text")
	if !errors.Is(err, domain.ErrUnavailable) {
		t.Fatalf("err = %v, want ErrUnavailable", err)
	}
}
