// Package mistral implements the reasoner ports against the Mistral chat
// completions API in JSON mode. It covers the cascade's last classification
// tier and structured extraction of invoice fields from OCR text.
package mistral

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/apfabric/apfabric/internal/config"
	"github.com/apfabric/apfabric/internal/domain"
	"github.com/apfabric/apfabric/internal/domain/invoice"
	"github.com/apfabric/apfabric/internal/port/reasoner"
	"github.com/apfabric/apfabric/internal/resilience"
)

// glCatalog is the account list offered to the model for classification.
const glCatalog = `- GL5100500: Software/IT
- GL5200100: Travel
- GL5100300: Hardware/Raw Materials
- GL5300100: Rent
- GL5300200: Utilities
- GL5200200: Marketing
- GL5100400: Maintenance
- GL5100600: Legal
- GL5100700: Consulting/IT Services
- GL5100800: Logistics/Shipping
- GL5400100: Construction/Civil`

// extractChunkSize bounds the OCR text sent per request so multi-page
// documents don't blow the context window or the request timeout.
const extractChunkSize = 4000

// Client talks to the Mistral chat completions endpoint.
type Client struct {
	url        string
	apiKey     string
	model      string
	httpClient *http.Client
	breaker    *resilience.Breaker
}

// NewClient creates a Mistral client from configuration.
func NewClient(cfg config.Reasoner) *Client {
	return &Client{
		url:    cfg.URL,
		apiKey: cfg.APIKey,
		model:  cfg.Model,
		httpClient: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

var (
	_ reasoner.Reasoner  = (*Client)(nil)
	_ reasoner.Extractor = (*Client)(nil)
)

// SuggestGL asks the model to pick a GL account for an invoice the earlier
// cascade tiers could not classify.
func (c *Client) SuggestGL(ctx context.Context, vendorName, description string) (*reasoner.Suggestion, error) {
	prompt := fmt.Sprintf(`Classify invoice to GL code.

Vendor: %s
Description: %s

GL Codes:
%s

Respond JSON: {"gl_code": "...", "confidence": 0.X}`, vendorName, description, glCatalog)

	content, err := c.complete(ctx, prompt, 150)
	if err != nil {
		return nil, fmt.Errorf("suggest gl: %w", err)
	}

	var raw struct {
		GLCode     string   `json:"gl_code"`
		Confidence *float64 `json:"confidence"`
	}
	if err := json.Unmarshal([]byte(content), &raw); err != nil {
		return nil, fmt.Errorf("suggest gl: decode model output: %w", err)
	}

	sug := &reasoner.Suggestion{GLCode: raw.GLCode, Confidence: 0.6}
	if sug.GLCode == "" {
		sug.GLCode = "GL5100700"
	}
	if raw.Confidence != nil {
		sug.Confidence = *raw.Confidence
	}
	return sug, nil
}

// rawExtraction mirrors the JSON schema the model is instructed to emit.
type rawExtraction struct {
	VendorName string          `json:"vendor_name"`
	Amount     json.RawMessage `json:"amount"`
	PONumber   json.RawMessage `json:"po_number"`
	Desc       string          `json:"description"`
	LineItems  []struct {
		Description string          `json:"description"`
		Quantity    json.RawMessage `json:"quantity"`
		Rate        json.RawMessage `json:"rate"`
	} `json:"line_items"`
}

// ExtractInvoice parses structured fields out of OCR text. The text is split
// into chunks processed sequentially; findings merge into one record, and
// extraction exits early once vendor, amount and line items are all present.
func (c *Client) ExtractInvoice(ctx context.Context, rawText string) (*reasoner.Extraction, error) {
	chunks := splitChunks(rawText, extractChunkSize)

	out := &reasoner.Extraction{VendorName: "Unknown"}
	var anyOK bool
	for idx, chunk := range chunks {
		prompt := extractionPrompt(chunk, idx+1, len(chunks))
		content, err := c.complete(ctx, prompt, 0)
		if err != nil {
			// A failed chunk costs accuracy, not the whole document.
			continue
		}

		var raw rawExtraction
		if err := json.Unmarshal([]byte(content), &raw); err != nil {
			continue
		}
		anyOK = true
		mergeChunk(out, &raw)

		if out.VendorName != "Unknown" && out.Amount != nil && *out.Amount > 0 &&
			len(out.LineItems) > 0 && idx >= 1 {
			break
		}
	}
	if !anyOK {
		return nil, fmt.Errorf("extract invoice: all %d chunks failed: %w", len(chunks), domain.ErrUnavailable)
	}

	// An absent grand total is recomputed from the lines.
	if (out.Amount == nil || *out.Amount == 0) && len(out.LineItems) > 0 {
		var total float64
		for _, li := range out.LineItems {
			total += li.Quantity * li.Rate
		}
		out.Amount = &total
	}
	return out, nil
}

func extractionPrompt(chunk string, idx, total int) string {
	return fmt.Sprintf(`You are an elite Accounts Payable extraction AI. Your job is to extract highly accurate financial data from a specific chunk of OCR text.

Always respond in valid JSON using EXACTLY this schema:
{
    "vendor_name": "string",
    "amount": "float or null",
    "po_number": "string or null",
    "description": "string",
    "line_items": [
        {
            "description": "string",
            "quantity": 0.0,
            "rate": 0.0
        }
    ]
}

IMPORTANT RULES:
1. PO NUMBER: Look for "Purchase Order", "PO No.". If none, null.
2. AMOUNT: Look for Total Amount, Grand Total. If no clear grand total is in this specific text chunk, output null. Do not guess.
3. DATA TYPES: amount, quantity, and rate MUST be floats. Strip commas.
4. VENDOR: Standardize primary billing entity to an uppercase string.
5. If this chunk is just random terms and has no invoice data, output nulls and empty lists.

--- RAW INVOICE TEXT CHUNK (%d/%d) ---
%s`, idx, total, chunk)
}

// mergeChunk folds one chunk's findings into the master record: first
// non-empty vendor/PO/description wins, the largest amount wins (a grand
// total beats a subtotal), line items accumulate.
func mergeChunk(out *reasoner.Extraction, raw *rawExtraction) {
	if name := strings.TrimSpace(raw.VendorName); name != "" {
		if upper := strings.ToUpper(name); upper != "UNKNOWN" && upper != "STRING" && out.VendorName == "Unknown" {
			out.VendorName = name
		}
	}
	if po := jsonString(raw.PONumber); po != "" {
		if upper := strings.ToUpper(po); upper != "NULL" && upper != "NONE" && upper != "STRING" && out.PONumber == nil {
			out.PONumber = &po
		}
	}
	if desc := strings.TrimSpace(raw.Desc); desc != "" && strings.ToUpper(desc) != "STRING" && out.Description == "" {
		out.Description = desc
	}
	if amount := jsonFloat(raw.Amount); amount != nil && *amount > 0 {
		if out.Amount == nil || *amount > *out.Amount {
			out.Amount = amount
		}
	}
	for _, li := range raw.LineItems {
		desc := strings.TrimSpace(li.Description)
		if desc == "" {
			continue
		}
		item := invoice.LineItem{Description: desc, Quantity: 1}
		if q := jsonFloat(li.Quantity); q != nil && *q > 0 {
			item.Quantity = *q
		}
		if r := jsonFloat(li.Rate); r != nil {
			item.Rate = *r
		}
		out.LineItems = append(out.LineItems, item)
	}
}

// jsonFloat tolerates the model emitting numbers as strings with separators.
func jsonFloat(raw json.RawMessage) *float64 {
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
	s = strings.ReplaceAll(strings.TrimSpace(s), ",", "")
	if s == "" {
		return nil
	}
	if _, err := fmt.Sscanf(s, "%g", &f); err != nil {
		return nil
	}
	return &f
}

func jsonString(raw json.RawMessage) string {
	if len(raw) == 0 || string(raw) == "null" {
		return ""
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}
	return strings.Trim(strings.TrimSpace(string(raw)), `"`)
}

func splitChunks(s string, size int) []string {
	if s == "" {
		return []string{""}
	}
	var chunks []string
	for len(s) > size {
		chunks = append(chunks, s[:size])
		s = s[size:]
	}
	return append(chunks, s)
}

// --- transport ---

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	ResponseFormat responseFmt   `json:"response_format"`
	Temperature    float64       `json:"temperature"`
	MaxTokens      int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type responseFmt struct {
	Type string `json:"type"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

// complete runs one JSON-mode chat completion and returns the message content.
func (c *Client) complete(ctx context.Context, prompt string, maxTokens int) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:          c.model,
		Messages:       []chatMessage{{Role: "user", Content: prompt}},
		ResponseFormat: responseFmt{Type: "json_object"},
		MaxTokens:      maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("marshal request: %w", err)
	}

	var content string
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Authorization", "Bearer "+c.apiKey)

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}
		if resp.StatusCode >= 400 {
			return fmt.Errorf("%w: mistral API error %d: %s", domain.ErrUnavailable, resp.StatusCode, truncate(data, 200))
		}

		var cr chatResponse
		if err := json.Unmarshal(data, &cr); err != nil {
			return fmt.Errorf("unmarshal response: %w", err)
		}
		if len(cr.Choices) == 0 {
			return fmt.Errorf("%w: empty choices", domain.ErrUnavailable)
		}
		content = cr.Choices[0].Message.Content
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return "", err
		}
		return content, nil
	}
	if err := call(); err != nil {
		return "", err
	}
	return content, nil
}

func truncate(data []byte, n int) string {
	if len(data) <= n {
		return string(data)
	}
	return string(data[:n]) + "..."
}
