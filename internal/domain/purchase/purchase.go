// Package purchase defines purchase order entities. Purchase orders are a
// read-only view owned by the ERP; the pipeline never mutates them.
package purchase

// Order status values.
const (
	StatusOpen   = "open"
	StatusClosed = "closed"
)

// Item is a committed purchase order line.
type Item struct {
	ID          int     `json:"id"`
	POID        string  `json:"po_id"`
	Description string  `json:"description"`
	Quantity    float64 `json:"quantity"`
	Rate        float64 `json:"rate"`
	UOM         string  `json:"uom,omitempty"`
}

// Order is a pre-approved commitment to a vendor.
type Order struct {
	ID          string  `json:"id"`
	VendorID    string  `json:"vendor_id"`
	TotalAmount float64 `json:"total_amount"`
	Status      string  `json:"status"`
	Items       []Item  `json:"items,omitempty"`
}
