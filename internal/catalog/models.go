package catalog

import "time"

type Product struct {
	ID          string
	StoreID     string
	Title       string
	Description string
	ImageURLs   []string
	Disabled    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type Variant struct {
	ID         string
	ProductID  string
	SKU        string
	Title      string
	PriceCents int
	Currency   string // fixed at creation
	Disabled   bool
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

type InventoryItem struct {
	VariantID string
	Stock     int
	Reserved  int
	UpdatedAt time.Time
}

func (i InventoryItem) Available() int { return i.Stock - i.Reserved }

// VariantInfo is the denormalized row checkout validates against.
type VariantInfo struct {
	ID              string
	ProductID       string
	StoreID         string
	SKU             string
	Title           string
	PriceCents      int
	Currency        string
	Disabled        bool
	ProductDisabled bool
}

func (v VariantInfo) Sellable() bool { return !v.Disabled && !v.ProductDisabled }
