package orders

import "time"

type Address struct {
	Name       string `json:"name"`
	Line1      string `json:"line1"`
	Line2      string `json:"line2,omitempty"`
	City       string `json:"city"`
	Region     string `json:"region,omitempty"`
	PostalCode string `json:"postal_code"`
	Country    string `json:"country"`
}

type Order struct {
	ID               string
	ExternalID       string
	BuyerID          string
	StoreID          string
	PaymentStatus    PaymentStatus
	ProcessorRef     string
	ProcessorEventID string
	ClientSecret     string
	TotalCents       int
	Currency         string
	ShippingAddress  *Address
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// Line snapshots price and quantity at purchase time; later variant price
// changes do not touch historical orders.
type Line struct {
	ID             string
	OrderID        string
	VariantID      string
	SKU            string
	Title          string
	UnitPriceCents int
	Qty            int
	LineTotalCents int
}

func (l Line) Consistent() bool { return l.LineTotalCents == l.UnitPriceCents*l.Qty }

// --- read-side (materializer) shapes ---

type LineView struct {
	VariantID      string `json:"variant_id"`
	ProductID      string `json:"product_id,omitempty"`
	ProductTitle   string `json:"product_title,omitempty"`
	SKU            string `json:"sku"`
	Title          string `json:"title"`
	UnitPriceCents int    `json:"unit_price_cents"`
	Qty            int    `json:"qty"`
	LineTotalCents int    `json:"line_total_cents"`
}

type OrderView struct {
	ID              string        `json:"id"`
	BuyerID         string        `json:"buyer_id"`
	StoreID         string        `json:"store_id"`
	PaymentStatus   PaymentStatus `json:"payment_status"`
	ProcessorRef    string        `json:"processor_ref,omitempty"`
	TotalCents      int           `json:"total_cents"`
	Currency        string        `json:"currency"`
	ShippingAddress *Address      `json:"shipping_address,omitempty"`
	Lines           []LineView    `json:"lines"`
	CreatedAt       time.Time     `json:"created_at"`
	UpdatedAt       time.Time     `json:"updated_at"`
}
